package internal

import (
	"time"

	"github.com/google/uuid"
)

type UserID int

type InfluencerID int

type Token string

// Money is an amount in the smallest currency unit (paise).
type Money int64

type ReferrerKind string

const (
	KindUser       ReferrerKind = "user"
	KindInfluencer ReferrerKind = "influencer"
)

// ReferrerRef identifies one referrer across both kinds.
type ReferrerRef struct {
	Kind ReferrerKind `json:"kind"`
	ID   int          `json:"id"`
}

type Tier string

const (
	TierBase     Tier = "base"
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
	TierDiamond  Tier = "diamond"
)

// Referrer is the resolved view of a RegularUser or Influencer for
// commissioning purposes. Tier is always TierBase for users.
type Referrer struct {
	Ref          ReferrerRef
	Code         string
	Tier         Tier
	KYCVerified  bool
	PayoutMethod PayoutMethod
	PayoutTarget string
}

type ReferralStatus string

const (
	ReferralPending   ReferralStatus = "pending"
	ReferralConverted ReferralStatus = "converted"
	ReferralExpired   ReferralStatus = "expired"
)

type Referral struct {
	ID             uuid.UUID      `json:"id"`
	Referrer       ReferrerRef    `json:"referrer"`
	ReferredUserID UserID         `json:"referred_user_id"`
	Code           string         `json:"code"`
	Status         ReferralStatus `json:"status"`
	OrderID        *string        `json:"order_id,omitempty"`
	Commission     *Money         `json:"commission,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	ExpiresAt      time.Time      `json:"expires_at"`
}

// CommissionAccount holds the running balances of one referrer.
// Conservation invariant: TotalEarned == Pending + Available + Paid plus
// whatever is reserved in open payouts. Liability records reversal
// shortfalls awaiting manual reconciliation, outside the conservation sum.
type CommissionAccount struct {
	Referrer    ReferrerRef `json:"referrer"`
	Pending     Money       `json:"pending_amount"`
	Available   Money       `json:"available_amount"`
	Paid        Money       `json:"paid_amount"`
	TotalEarned Money       `json:"total_earned"`
	Liability   Money       `json:"liability_amount"`
}

type PayoutMethod string

const (
	PayoutBank PayoutMethod = "bank"
	PayoutUPI  PayoutMethod = "upi"
)

type PayoutStatus string

const (
	PayoutPending PayoutStatus = "pending"
	// PayoutApproved is written by the external disbursement system between
	// picking a payout up and reporting its outcome; no API here sets it.
	// Settlement accepts it as a non-terminal source state.
	PayoutApproved PayoutStatus = "approved"
	PayoutPaid     PayoutStatus = "paid"
	PayoutRejected PayoutStatus = "rejected"
	PayoutFailed   PayoutStatus = "failed"
)

// Terminal reports whether no further settlement may change the payout.
func (s PayoutStatus) Terminal() bool {
	return s == PayoutPaid || s == PayoutRejected || s == PayoutFailed
}

// Payout is a withdrawal request against a commission account. The
// disbursement method is snapshotted at request time.
type Payout struct {
	ID          uuid.UUID    `json:"id"`
	Referrer    ReferrerRef  `json:"referrer"`
	Amount      Money        `json:"amount"`
	Method      PayoutMethod `json:"method"`
	Target      string       `json:"target"`
	Status      PayoutStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	ProcessedAt *time.Time   `json:"processed_at,omitempty"`
}

type OrderStatus string

const (
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
	OrderRefunded  OrderStatus = "refunded"
)

// OrderEvent is the order-lifecycle notification consumed by the core.
// Statuses other than delivered/cancelled/refunded are ignored.
type OrderEvent struct {
	OrderID string      `json:"order_id"`
	UserID  UserID      `json:"user_id"`
	Total   Money       `json:"total"`
	Status  OrderStatus `json:"status"`
}
