package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Anilsharma012/vastralaya4-sub000/internal"
	"github.com/Anilsharma012/vastralaya4-sub000/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ReferralService interface {
	// Attribute opens a pending referral for a fresh signup. An empty or
	// unresolvable code is a no-op (nil, nil), never a failure: signup must
	// not break on a bad referral code.
	Attribute(ctx context.Context, newUserID internal.UserID, suppliedCode string) (*internal.Referral, error)
	// HandleOrderEvent reacts to order status transitions: delivered
	// converts and credits, cancelled/refunded reverses. Everything else is
	// ignored. Safe to call repeatedly for the same event.
	HandleOrderEvent(ctx context.Context, event internal.OrderEvent) error
	GetReferralsByReferrer(ctx context.Context, ref internal.ReferrerRef) ([]internal.Referral, error)
}

type ReferralServiceImpl struct {
	Registry   *CodeRegistry
	Referrals  storage.ReferralStorage
	Users      storage.UserStorage
	Ledger     *Ledger
	Calculator *Calculator
	Notifier   Notifier
	Config     internal.CommissionConfig
	Logger     *zap.Logger
}

var _ ReferralService = (*ReferralServiceImpl)(nil)

func (s *ReferralServiceImpl) Attribute(ctx context.Context, newUserID internal.UserID, suppliedCode string) (*internal.Referral, error) {
	code := NormalizeCode(suppliedCode)
	if code == "" {
		return nil, nil
	}
	referrer, err := s.Registry.Resolve(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		s.Logger.Info("referral code did not resolve", zap.String("code", code))
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("resolve referral code error: %w", err)
	}
	if referrer.Ref.Kind == internal.KindUser && referrer.Ref.ID == int(newUserID) {
		s.Logger.Info("self-referral rejected", zap.Int("user_id", int(newUserID)))
		return nil, nil
	}
	now := time.Now()
	referral := internal.Referral{
		ID:             uuid.New(),
		Referrer:       referrer.Ref,
		ReferredUserID: newUserID,
		Code:           code,
		Status:         internal.ReferralPending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.Config.ReferralWindow()),
	}
	err = s.Referrals.AddReferral(ctx, referral)
	if errors.Is(err, storage.ErrAlreadyExists) {
		// Attribution is one-shot per referred account.
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("add referral error: %w", err)
	}
	return &referral, nil
}

func (s *ReferralServiceImpl) HandleOrderEvent(ctx context.Context, event internal.OrderEvent) error {
	switch event.Status {
	case internal.OrderDelivered:
		return s.convert(ctx, event)
	case internal.OrderCancelled, internal.OrderRefunded:
		return s.reverse(ctx, event)
	default:
		return nil
	}
}

func (s *ReferralServiceImpl) GetReferralsByReferrer(ctx context.Context, ref internal.ReferrerRef) ([]internal.Referral, error) {
	return s.Referrals.GetReferralsByReferrer(ctx, ref)
}

func (s *ReferralServiceImpl) convert(ctx context.Context, event internal.OrderEvent) error {
	referral, err := s.Referrals.GetReferralByReferredUser(ctx, event.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	} else if err != nil {
		return fmt.Errorf("get referral error: %w", err)
	}
	if referral.Status == internal.ReferralExpired {
		return nil
	}
	referrer, err := s.Users.GetReferrer(ctx, referral.Referrer)
	if err != nil {
		return fmt.Errorf("get referrer error: %w", err)
	}
	amount := s.Calculator.Compute(referrer, event.Total)
	won, err := s.Referrals.MarkConverted(ctx, referral.ID, event.OrderID, amount, time.Now())
	if err != nil {
		return fmt.Errorf("mark converted error: %w", err)
	}
	if !won {
		// The transition was taken by the expirer, by a concurrent event,
		// or by an earlier delivery of this same event. Credit is still
		// re-issued when this exact order was the converter, so a crash
		// between the transition and the credit stays recoverable; the
		// processed-order marker keeps it single-shot.
		referral, err = s.Referrals.GetReferralByReferredUser(ctx, event.UserID)
		if err != nil {
			return fmt.Errorf("reload referral error: %w", err)
		}
		if referral.Status != internal.ReferralConverted ||
			referral.OrderID == nil || *referral.OrderID != event.OrderID {
			return nil
		}
		if referral.Commission != nil {
			amount = *referral.Commission
		}
	}
	err = s.Ledger.CreditForOrder(ctx, referral.Referrer, event.OrderID, amount)
	if err != nil {
		return err
	}
	s.notifyCredited(ctx, referral.Referrer, event.OrderID, amount)
	return nil
}

func (s *ReferralServiceImpl) reverse(ctx context.Context, event internal.OrderEvent) error {
	referral, err := s.Referrals.GetReferralByReferredUser(ctx, event.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	} else if err != nil {
		return fmt.Errorf("get referral error: %w", err)
	}
	if referral.Status != internal.ReferralConverted ||
		referral.OrderID == nil || *referral.OrderID != event.OrderID ||
		referral.Commission == nil {
		return nil
	}
	return s.Ledger.Reverse(ctx, referral.Referrer, event.OrderID, *referral.Commission)
}

func (s *ReferralServiceImpl) notifyCredited(ctx context.Context, ref internal.ReferrerRef, orderID string, amount internal.Money) {
	if s.Notifier == nil {
		return
	}
	// Delivery failures never roll back the committed credit.
	err := s.Notifier.CommissionCredited(ctx, ref, orderID, amount)
	if err != nil {
		s.Logger.Warn("commission credited notification failed",
			zap.String("order_id", orderID), zap.Error(err))
	}
}
