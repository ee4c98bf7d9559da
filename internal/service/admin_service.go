package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Anilsharma012/vastralaya4-sub000/internal"
	"github.com/Anilsharma012/vastralaya4-sub000/internal/storage"
	"go.uber.org/zap"
)

var ErrUnknownTier = errors.New("unknown tier")

// AdminService covers the administrative surface: influencer onboarding,
// tier changes, KYC flags and disbursement details.
type AdminService interface {
	CreateInfluencer(ctx context.Context, name string, handle string, tier internal.Tier) (internal.InfluencerID, string, error)
	UpdateInfluencerTier(ctx context.Context, id internal.InfluencerID, tier internal.Tier) error
	SetKYCVerified(ctx context.Context, ref internal.ReferrerRef, verified bool) error
	SetPayoutMethod(ctx context.Context, ref internal.ReferrerRef, method internal.PayoutMethod, target string) error
}

type AdminServiceImpl struct {
	Store    storage.UserStorage
	Registry *CodeRegistry
	Logger   *zap.Logger
}

var _ AdminService = (*AdminServiceImpl)(nil)

func (s *AdminServiceImpl) CreateInfluencer(ctx context.Context, name string, handle string, tier internal.Tier) (internal.InfluencerID, string, error) {
	if !validInfluencerTier(tier) {
		return 0, "", ErrUnknownTier
	}
	id, err := s.Store.AddInfluencer(ctx, name, handle, tier)
	if err != nil {
		return 0, "", err
	}
	code, err := s.Registry.AssignCode(ctx, internal.ReferrerRef{Kind: internal.KindInfluencer, ID: int(id)})
	if err != nil {
		return 0, "", fmt.Errorf("assign influencer code error: %w", err)
	}
	s.Logger.Info("influencer created",
		zap.Int("id", int(id)), zap.String("handle", handle), zap.String("tier", string(tier)))
	return id, code, nil
}

func (s *AdminServiceImpl) UpdateInfluencerTier(ctx context.Context, id internal.InfluencerID, tier internal.Tier) error {
	if !validInfluencerTier(tier) {
		return ErrUnknownTier
	}
	return s.Store.UpdateInfluencerTier(ctx, id, tier)
}

func (s *AdminServiceImpl) SetKYCVerified(ctx context.Context, ref internal.ReferrerRef, verified bool) error {
	return s.Store.SetKYCVerified(ctx, ref, verified)
}

func (s *AdminServiceImpl) SetPayoutMethod(ctx context.Context, ref internal.ReferrerRef, method internal.PayoutMethod, target string) error {
	if method != internal.PayoutBank && method != internal.PayoutUPI {
		return fmt.Errorf("unsupported payout method %q", method)
	}
	return s.Store.SetPayoutMethod(ctx, ref, method, target)
}

func validInfluencerTier(tier internal.Tier) bool {
	switch tier {
	case internal.TierBronze, internal.TierSilver, internal.TierGold, internal.TierPlatinum, internal.TierDiamond:
		return true
	default:
		return false
	}
}
