package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Anilsharma012/vastralaya4-sub000/internal"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrCodeTaken         = errors.New("referral code already taken")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAlreadyProcessed  = errors.New("order already processed")
)

type UserStorage interface {
	// AddUser creates the user row together with its zeroed commission
	// account. The referral code is assigned afterwards via SetReferralCode.
	AddUser(ctx context.Context, login string, hashedPass string) (internal.UserID, error)
	GetUser(ctx context.Context, login string) (internal.UserID, string, error)
	AddInfluencer(ctx context.Context, name string, handle string, tier internal.Tier) (internal.InfluencerID, error)
	// SetReferralCode fails with ErrCodeTaken when the code is held by any
	// referrer of either kind; callers retry with a salted variant.
	SetReferralCode(ctx context.Context, ref internal.ReferrerRef, code string) error
	GetReferrerByCode(ctx context.Context, kind internal.ReferrerKind, code string) (internal.Referrer, error)
	GetReferrer(ctx context.Context, ref internal.ReferrerRef) (internal.Referrer, error)
	UpdateInfluencerTier(ctx context.Context, id internal.InfluencerID, tier internal.Tier) error
	SetKYCVerified(ctx context.Context, ref internal.ReferrerRef, verified bool) error
	SetPayoutMethod(ctx context.Context, ref internal.ReferrerRef, method internal.PayoutMethod, target string) error
	Close()
}

type ReferralStorage interface {
	// AddReferral fails with ErrAlreadyExists when the referred user has
	// already been attributed (attribution is one-shot per account).
	AddReferral(ctx context.Context, referral internal.Referral) error
	GetReferralByReferredUser(ctx context.Context, userID internal.UserID) (internal.Referral, error)
	GetReferralsByReferrer(ctx context.Context, ref internal.ReferrerRef) ([]internal.Referral, error)
	// MarkConverted transitions pending->converted only when the referral is
	// still pending and not past expiry at the given instant (the expiry
	// boundary is inclusive). Returns false when the transition was lost.
	MarkConverted(ctx context.Context, id uuid.UUID, orderID string, amount internal.Money, now time.Time) (bool, error)
	// ExpireStale transitions every pending referral with expiry strictly
	// before now to expired, returning the number swept.
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
	Close()
}

// ReversalResult reports how a commission reversal was absorbed across the
// account's buckets.
type ReversalResult struct {
	FromPending   internal.Money
	FromAvailable internal.Money
	Shortfall     internal.Money
}

// CommissionStorage owns every mutation of the commission account counters
// and the payout records. Each method is one atomic unit: either a single
// conditional UPDATE or an explicit transaction.
type CommissionStorage interface {
	GetAccount(ctx context.Context, ref internal.ReferrerRef) (internal.CommissionAccount, error)
	// CreditForOrder adds amount to pending and totalEarned, recording the
	// order id as processed. A second call for the same order returns
	// ErrAlreadyProcessed without crediting.
	CreditForOrder(ctx context.Context, ref internal.ReferrerRef, orderID string, amount internal.Money) error
	// Mature moves amount from pending to available; ErrInsufficientFunds
	// when pending does not cover it. Never clamps.
	Mature(ctx context.Context, ref internal.ReferrerRef, amount internal.Money) error
	// CreatePayout reserves amount out of available and inserts the payout
	// in one transaction; ErrInsufficientFunds when available is short.
	CreatePayout(ctx context.Context, payout internal.Payout) error
	GetPayout(ctx context.Context, id uuid.UUID) (internal.Payout, error)
	GetPayoutsByReferrer(ctx context.Context, ref internal.ReferrerRef) ([]internal.Payout, error)
	// SettlePayout finalizes a payout: paid adds to paidAmount, rejected and
	// failed return the reservation to available. Returns applied=false when
	// the payout was already terminal (idempotent no-op).
	SettlePayout(ctx context.Context, id uuid.UUID, outcome internal.PayoutStatus) (internal.Payout, bool, error)
	// Reverse debits a previously credited amount, pending bucket first,
	// then available; whatever neither bucket covers is booked as liability.
	// Idempotent per order id via the processed-orders marker.
	Reverse(ctx context.Context, ref internal.ReferrerRef, orderID string, amount internal.Money) (ReversalResult, error)
	Close()
}

func DoMigrations(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithDatabaseInstance("file://./migrations", "postgres", driver)
	if err != nil {
		return err
	}
	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
