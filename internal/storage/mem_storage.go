package storage

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Anilsharma012/vastralaya4-sub000/internal"
	"github.com/google/uuid"
)

// MemStorage is an in-memory implementation of all three storage
// interfaces, used in tests. A single mutex serializes every mutation,
// which gives each operation the same atomicity the SQL implementations
// get from conditional updates and transactions.
type MemStorage struct {
	mu sync.Mutex

	nextUserID       int
	nextInfluencerID int
	users            map[internal.UserID]*memUser
	logins           map[string]internal.UserID
	influencers      map[internal.InfluencerID]*memInfluencer
	handles          map[string]internal.InfluencerID
	codes            map[string]internal.ReferrerRef

	referrals map[uuid.UUID]*internal.Referral
	byUser    map[internal.UserID]uuid.UUID

	accounts  map[internal.ReferrerRef]*internal.CommissionAccount
	payouts   map[uuid.UUID]*internal.Payout
	processed map[string]bool
}

type memUser struct {
	login        string
	password     string
	code         string
	kycVerified  bool
	payoutMethod internal.PayoutMethod
	payoutTarget string
}

type memInfluencer struct {
	name         string
	handle       string
	tier         internal.Tier
	code         string
	kycVerified  bool
	payoutMethod internal.PayoutMethod
	payoutTarget string
}

var (
	_ UserStorage       = (*MemStorage)(nil)
	_ ReferralStorage   = (*MemStorage)(nil)
	_ CommissionStorage = (*MemStorage)(nil)
)

func NewMemStorage() *MemStorage {
	return &MemStorage{
		users:       make(map[internal.UserID]*memUser),
		logins:      make(map[string]internal.UserID),
		influencers: make(map[internal.InfluencerID]*memInfluencer),
		handles:     make(map[string]internal.InfluencerID),
		codes:       make(map[string]internal.ReferrerRef),
		referrals:   make(map[uuid.UUID]*internal.Referral),
		byUser:      make(map[internal.UserID]uuid.UUID),
		accounts:    make(map[internal.ReferrerRef]*internal.CommissionAccount),
		payouts:     make(map[uuid.UUID]*internal.Payout),
		processed:   make(map[string]bool),
	}
}

func (m *MemStorage) Close() {}

func (m *MemStorage) AddUser(_ context.Context, login string, hashedPass string) (internal.UserID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.logins[login]; ok {
		return 0, ErrAlreadyExists
	}
	m.nextUserID++
	id := internal.UserID(m.nextUserID)
	m.users[id] = &memUser{login: login, password: hashedPass}
	m.logins[login] = id
	ref := internal.ReferrerRef{Kind: internal.KindUser, ID: int(id)}
	m.accounts[ref] = &internal.CommissionAccount{Referrer: ref}
	return id, nil
}

func (m *MemStorage) GetUser(_ context.Context, login string) (internal.UserID, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.logins[login]
	if !ok {
		return 0, "", ErrNotFound
	}
	return id, m.users[id].password, nil
}

func (m *MemStorage) AddInfluencer(_ context.Context, name string, handle string, tier internal.Tier) (internal.InfluencerID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.handles[handle]; ok {
		return 0, ErrAlreadyExists
	}
	m.nextInfluencerID++
	id := internal.InfluencerID(m.nextInfluencerID)
	m.influencers[id] = &memInfluencer{name: name, handle: handle, tier: tier}
	m.handles[handle] = id
	ref := internal.ReferrerRef{Kind: internal.KindInfluencer, ID: int(id)}
	m.accounts[ref] = &internal.CommissionAccount{Referrer: ref}
	return id, nil
}

func (m *MemStorage) SetReferralCode(_ context.Context, ref internal.ReferrerRef, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.codes[code]; ok {
		return ErrCodeTaken
	}
	switch ref.Kind {
	case internal.KindUser:
		user, ok := m.users[internal.UserID(ref.ID)]
		if !ok {
			return ErrNotFound
		}
		user.code = code
	case internal.KindInfluencer:
		influencer, ok := m.influencers[internal.InfluencerID(ref.ID)]
		if !ok {
			return ErrNotFound
		}
		influencer.code = code
	}
	m.codes[code] = ref
	return nil
}

func (m *MemStorage) GetReferrerByCode(_ context.Context, kind internal.ReferrerKind, code string) (internal.Referrer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref, ok := m.codes[strings.ToUpper(code)]
	if !ok || ref.Kind != kind {
		return internal.Referrer{}, ErrNotFound
	}
	return m.referrerLocked(ref)
}

func (m *MemStorage) GetReferrer(_ context.Context, ref internal.ReferrerRef) (internal.Referrer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.referrerLocked(ref)
}

func (m *MemStorage) referrerLocked(ref internal.ReferrerRef) (internal.Referrer, error) {
	switch ref.Kind {
	case internal.KindUser:
		user, ok := m.users[internal.UserID(ref.ID)]
		if !ok {
			return internal.Referrer{}, ErrNotFound
		}
		return internal.Referrer{
			Ref:          ref,
			Code:         user.code,
			Tier:         internal.TierBase,
			KYCVerified:  user.kycVerified,
			PayoutMethod: user.payoutMethod,
			PayoutTarget: user.payoutTarget,
		}, nil
	case internal.KindInfluencer:
		influencer, ok := m.influencers[internal.InfluencerID(ref.ID)]
		if !ok {
			return internal.Referrer{}, ErrNotFound
		}
		return internal.Referrer{
			Ref:          ref,
			Code:         influencer.code,
			Tier:         influencer.tier,
			KYCVerified:  influencer.kycVerified,
			PayoutMethod: influencer.payoutMethod,
			PayoutTarget: influencer.payoutTarget,
		}, nil
	}
	return internal.Referrer{}, ErrNotFound
}

func (m *MemStorage) UpdateInfluencerTier(_ context.Context, id internal.InfluencerID, tier internal.Tier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	influencer, ok := m.influencers[id]
	if !ok {
		return ErrNotFound
	}
	influencer.tier = tier
	return nil
}

func (m *MemStorage) SetKYCVerified(_ context.Context, ref internal.ReferrerRef, verified bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch ref.Kind {
	case internal.KindUser:
		user, ok := m.users[internal.UserID(ref.ID)]
		if !ok {
			return ErrNotFound
		}
		user.kycVerified = verified
	case internal.KindInfluencer:
		influencer, ok := m.influencers[internal.InfluencerID(ref.ID)]
		if !ok {
			return ErrNotFound
		}
		influencer.kycVerified = verified
	}
	return nil
}

func (m *MemStorage) SetPayoutMethod(_ context.Context, ref internal.ReferrerRef, method internal.PayoutMethod, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch ref.Kind {
	case internal.KindUser:
		user, ok := m.users[internal.UserID(ref.ID)]
		if !ok {
			return ErrNotFound
		}
		user.payoutMethod, user.payoutTarget = method, target
	case internal.KindInfluencer:
		influencer, ok := m.influencers[internal.InfluencerID(ref.ID)]
		if !ok {
			return ErrNotFound
		}
		influencer.payoutMethod, influencer.payoutTarget = method, target
	}
	return nil
}

func (m *MemStorage) AddReferral(_ context.Context, referral internal.Referral) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byUser[referral.ReferredUserID]; ok {
		return ErrAlreadyExists
	}
	stored := referral
	m.referrals[referral.ID] = &stored
	m.byUser[referral.ReferredUserID] = referral.ID
	return nil
}

func (m *MemStorage) GetReferralByReferredUser(_ context.Context, userID internal.UserID) (internal.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byUser[userID]
	if !ok {
		return internal.Referral{}, ErrNotFound
	}
	return *m.referrals[id], nil
}

func (m *MemStorage) GetReferralsByReferrer(_ context.Context, ref internal.ReferrerRef) ([]internal.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var referrals []internal.Referral
	for _, referral := range m.referrals {
		if referral.Referrer == ref {
			referrals = append(referrals, *referral)
		}
	}
	return referrals, nil
}

func (m *MemStorage) MarkConverted(_ context.Context, id uuid.UUID, orderID string, amount internal.Money, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	referral, ok := m.referrals[id]
	if !ok {
		return false, nil
	}
	// Inclusive expiry boundary: a referral expiring exactly now converts.
	if referral.Status != internal.ReferralPending || referral.ExpiresAt.Before(now) {
		return false, nil
	}
	referral.Status = internal.ReferralConverted
	referral.OrderID = &orderID
	referral.Commission = &amount
	return true, nil
}

func (m *MemStorage) ExpireStale(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var swept int64
	for _, referral := range m.referrals {
		if referral.Status == internal.ReferralPending && referral.ExpiresAt.Before(now) {
			referral.Status = internal.ReferralExpired
			swept++
		}
	}
	return swept, nil
}

func (m *MemStorage) GetAccount(_ context.Context, ref internal.ReferrerRef) (internal.CommissionAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[ref]
	if !ok {
		return internal.CommissionAccount{}, ErrNotFound
	}
	return *account, nil
}

func (m *MemStorage) CreditForOrder(_ context.Context, ref internal.ReferrerRef, orderID string, amount internal.Money) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed[orderID+"/credit"] {
		return ErrAlreadyProcessed
	}
	account, ok := m.accounts[ref]
	if !ok {
		return ErrNotFound
	}
	m.processed[orderID+"/credit"] = true
	account.Pending += amount
	account.TotalEarned += amount
	return nil
}

func (m *MemStorage) Mature(_ context.Context, ref internal.ReferrerRef, amount internal.Money) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[ref]
	if !ok || account.Pending < amount {
		return ErrInsufficientFunds
	}
	account.Pending -= amount
	account.Available += amount
	return nil
}

func (m *MemStorage) CreatePayout(_ context.Context, payout internal.Payout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[payout.Referrer]
	if !ok {
		return ErrNotFound
	}
	if account.Available < payout.Amount {
		return ErrInsufficientFunds
	}
	account.Available -= payout.Amount
	stored := payout
	m.payouts[payout.ID] = &stored
	return nil
}

func (m *MemStorage) GetPayout(_ context.Context, id uuid.UUID) (internal.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payout, ok := m.payouts[id]
	if !ok {
		return internal.Payout{}, ErrNotFound
	}
	return *payout, nil
}

func (m *MemStorage) GetPayoutsByReferrer(_ context.Context, ref internal.ReferrerRef) ([]internal.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var payouts []internal.Payout
	for _, payout := range m.payouts {
		if payout.Referrer == ref {
			payouts = append(payouts, *payout)
		}
	}
	return payouts, nil
}

func (m *MemStorage) SettlePayout(_ context.Context, id uuid.UUID, outcome internal.PayoutStatus) (internal.Payout, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payout, ok := m.payouts[id]
	if !ok {
		return internal.Payout{}, false, ErrNotFound
	}
	if payout.Status.Terminal() {
		return *payout, false, nil
	}
	account := m.accounts[payout.Referrer]
	if outcome == internal.PayoutPaid {
		account.Paid += payout.Amount
	} else {
		account.Available += payout.Amount
	}
	now := time.Now()
	payout.Status = outcome
	payout.ProcessedAt = &now
	return *payout, true, nil
}

func (m *MemStorage) Reverse(_ context.Context, ref internal.ReferrerRef, orderID string, amount internal.Money) (ReversalResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed[orderID+"/reversal"] {
		return ReversalResult{}, ErrAlreadyProcessed
	}
	account, ok := m.accounts[ref]
	if !ok {
		return ReversalResult{}, ErrNotFound
	}
	m.processed[orderID+"/reversal"] = true
	result := splitReversal(*account, amount)
	account.Pending -= result.FromPending
	account.Available -= result.FromAvailable
	account.TotalEarned -= result.FromPending + result.FromAvailable
	account.Liability += result.Shortfall
	return result, nil
}
