package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Anilsharma012/vastralaya4-sub000/internal"
	"github.com/Anilsharma012/vastralaya4-sub000/internal/storage"
	"go.uber.org/zap"
)

var (
	ErrInsufficientPending = errors.New("amount exceeds pending commission")
	ErrInsufficientBalance = errors.New("amount exceeds available commission")
)

// Ledger is the single mutation path for commission account balances.
// Every money movement between the pending, available and paid buckets
// goes through here; each call maps to one atomic storage operation.
type Ledger struct {
	Store  storage.CommissionStorage
	Logger *zap.Logger
}

func (l *Ledger) Account(ctx context.Context, ref internal.ReferrerRef) (internal.CommissionAccount, error) {
	return l.Store.GetAccount(ctx, ref)
}

// CreditForOrder adds a commission to pending and totalEarned, once per
// order id. A duplicate order event is a silent no-op.
func (l *Ledger) CreditForOrder(ctx context.Context, ref internal.ReferrerRef, orderID string, amount internal.Money) error {
	err := l.Store.CreditForOrder(ctx, ref, orderID, amount)
	if errors.Is(err, storage.ErrAlreadyProcessed) {
		l.Logger.Info("duplicate credit skipped",
			zap.String("order_id", orderID), zap.Any("referrer", ref))
		return nil
	} else if err != nil {
		return fmt.Errorf("credit commission error: %w", err)
	}
	l.Logger.Info("commission credited",
		zap.String("order_id", orderID), zap.Any("referrer", ref), zap.Int64("amount", int64(amount)))
	return nil
}

// Mature moves an amount from pending to available. Insufficient pending
// is an upstream logic error and is surfaced, never clamped.
func (l *Ledger) Mature(ctx context.Context, ref internal.ReferrerRef, amount internal.Money) error {
	if amount <= 0 {
		return ErrInsufficientPending
	}
	err := l.Store.Mature(ctx, ref, amount)
	if errors.Is(err, storage.ErrInsufficientFunds) {
		return ErrInsufficientPending
	} else if err != nil {
		return fmt.Errorf("mature commission error: %w", err)
	}
	l.Logger.Info("commission matured",
		zap.Any("referrer", ref), zap.Int64("amount", int64(amount)))
	return nil
}

// ReserveForPayout debits available and records the payout in one atomic
// unit, so concurrent requests observe the already-reserved balance.
func (l *Ledger) ReserveForPayout(ctx context.Context, payout internal.Payout) error {
	err := l.Store.CreatePayout(ctx, payout)
	if errors.Is(err, storage.ErrInsufficientFunds) {
		return ErrInsufficientBalance
	} else if err != nil {
		return fmt.Errorf("reserve for payout error: %w", err)
	}
	return nil
}

// Settle finalizes a payout. Paid settles into paidAmount; rejected and
// failed release the reservation back to available. Terminal payouts
// no-op idempotently.
func (l *Ledger) Settle(ctx context.Context, payout internal.Payout, outcome internal.PayoutStatus) (internal.Payout, bool, error) {
	settled, applied, err := l.Store.SettlePayout(ctx, payout.ID, outcome)
	if err != nil {
		return internal.Payout{}, false, fmt.Errorf("settle payout error: %w", err)
	}
	if applied {
		l.Logger.Info("payout settled",
			zap.String("payout_id", payout.ID.String()), zap.String("outcome", string(outcome)))
	}
	return settled, applied, nil
}

// Reverse claws a credited commission back out of pending, then available.
// A remainder that was already paid out is booked as a flagged liability
// for manual reconciliation; balances never go negative.
func (l *Ledger) Reverse(ctx context.Context, ref internal.ReferrerRef, orderID string, amount internal.Money) error {
	result, err := l.Store.Reverse(ctx, ref, orderID, amount)
	if errors.Is(err, storage.ErrAlreadyProcessed) {
		l.Logger.Info("duplicate reversal skipped", zap.String("order_id", orderID))
		return nil
	} else if err != nil {
		return fmt.Errorf("reverse commission error: %w", err)
	}
	if result.Shortfall > 0 {
		l.Logger.Warn("reversal shortfall booked as liability",
			zap.String("order_id", orderID), zap.Any("referrer", ref),
			zap.Int64("shortfall", int64(result.Shortfall)))
	}
	l.Logger.Info("commission reversed",
		zap.String("order_id", orderID), zap.Any("referrer", ref),
		zap.Int64("from_pending", int64(result.FromPending)),
		zap.Int64("from_available", int64(result.FromAvailable)))
	return nil
}
