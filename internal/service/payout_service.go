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

var (
	ErrBelowMinimum         = errors.New("amount is below the minimum payout")
	ErrVerificationRequired = errors.New("identity verification required")
	ErrInvalidOutcome       = errors.New("invalid settlement outcome")
	ErrNoPayoutMethod       = errors.New("no disbursement method on file")
)

type PayoutService interface {
	// RequestPayout validates minimum amount, balance sufficiency and the
	// KYC gate, then reserves the amount and records a pending payout as
	// one logical unit.
	RequestPayout(ctx context.Context, ref internal.ReferrerRef, amount internal.Money) (internal.Payout, error)
	// Settle finalizes a payout with outcome paid, rejected or failed.
	// Settling an already-terminal payout returns it unchanged.
	Settle(ctx context.Context, id uuid.UUID, outcome internal.PayoutStatus) (internal.Payout, error)
	GetPayouts(ctx context.Context, ref internal.ReferrerRef) ([]internal.Payout, error)
}

type PayoutServiceImpl struct {
	Users    storage.UserStorage
	Ledger   *Ledger
	Notifier Notifier
	Config   internal.CommissionConfig
	Logger   *zap.Logger
}

var _ PayoutService = (*PayoutServiceImpl)(nil)

func (s *PayoutServiceImpl) RequestPayout(ctx context.Context, ref internal.ReferrerRef, amount internal.Money) (internal.Payout, error) {
	var payout internal.Payout
	if amount < s.Config.MinPayout {
		return payout, ErrBelowMinimum
	}
	// Advisory balance check first so the rejection order stays stable;
	// the reservation below re-checks atomically against races.
	account, err := s.Ledger.Account(ctx, ref)
	if err != nil {
		return payout, fmt.Errorf("get account error: %w", err)
	}
	if amount > account.Available {
		return payout, ErrInsufficientBalance
	}
	referrer, err := s.Users.GetReferrer(ctx, ref)
	if err != nil {
		return payout, fmt.Errorf("get referrer error: %w", err)
	}
	if s.Config.RequireKYC && !referrer.KYCVerified {
		return payout, ErrVerificationRequired
	}
	if referrer.PayoutMethod == "" {
		return payout, ErrNoPayoutMethod
	}
	payout = internal.Payout{
		ID:        uuid.New(),
		Referrer:  ref,
		Amount:    amount,
		Method:    referrer.PayoutMethod,
		Target:    referrer.PayoutTarget,
		Status:    internal.PayoutPending,
		CreatedAt: time.Now(),
	}
	err = s.Ledger.ReserveForPayout(ctx, payout)
	if err != nil {
		return internal.Payout{}, err
	}
	s.Logger.Info("payout requested",
		zap.String("payout_id", payout.ID.String()), zap.Any("referrer", ref),
		zap.Int64("amount", int64(amount)))
	return payout, nil
}

func (s *PayoutServiceImpl) Settle(ctx context.Context, id uuid.UUID, outcome internal.PayoutStatus) (internal.Payout, error) {
	switch outcome {
	case internal.PayoutPaid, internal.PayoutRejected, internal.PayoutFailed:
	default:
		return internal.Payout{}, ErrInvalidOutcome
	}
	payout, err := s.Ledger.Store.GetPayout(ctx, id)
	if err != nil {
		return internal.Payout{}, err
	}
	settled, applied, err := s.Ledger.Settle(ctx, payout, outcome)
	if err != nil {
		return internal.Payout{}, err
	}
	if applied && s.Notifier != nil {
		err = s.Notifier.PayoutSettled(ctx, settled)
		if err != nil {
			s.Logger.Warn("payout settled notification failed",
				zap.String("payout_id", id.String()), zap.Error(err))
		}
	}
	return settled, nil
}

func (s *PayoutServiceImpl) GetPayouts(ctx context.Context, ref internal.ReferrerRef) ([]internal.Payout, error) {
	return s.Ledger.Store.GetPayoutsByReferrer(ctx, ref)
}
