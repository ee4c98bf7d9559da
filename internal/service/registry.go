package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/Anilsharma012/vastralaya4-sub000/internal"
	"github.com/Anilsharma012/vastralaya4-sub000/internal/storage"
)

const codeAssignAttempts = 5

var ErrCodeExhausted = errors.New("could not assign a unique referral code")

// CodeRegistry generates referral codes and resolves supplied codes to
// referrers across both kinds.
type CodeRegistry struct {
	Store  storage.UserStorage
	Prefix string
}

// GenerateCode derives a deterministic code for an owner: the configured
// prefix plus six upper-case hex characters of the owner id. Attempts past
// the first salt the suffix with a hash so persistence-time collisions can
// be retried.
func (r *CodeRegistry) GenerateCode(ref internal.ReferrerRef, attempt int) string {
	if attempt == 0 {
		return fmt.Sprintf("%s%06X", r.Prefix, ref.ID&0xFFFFFF)
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s/%d#%d", ref.Kind, ref.ID, attempt)))
	suffix := strings.ToUpper(hex.EncodeToString(sum[:3]))
	return r.Prefix + suffix
}

// AssignCode persists a generated code for the referrer, retrying with
// salted variants while the uniqueness constraint rejects it.
func (r *CodeRegistry) AssignCode(ctx context.Context, ref internal.ReferrerRef) (string, error) {
	for attempt := 0; attempt < codeAssignAttempts; attempt++ {
		code := r.GenerateCode(ref, attempt)
		err := r.Store.SetReferralCode(ctx, ref, code)
		if errors.Is(err, storage.ErrCodeTaken) {
			continue
		} else if err != nil {
			return "", fmt.Errorf("assign referral code error: %w", err)
		}
		return code, nil
	}
	return "", ErrCodeExhausted
}

// Resolve looks a supplied code up case-insensitively, trimmed. A regular
// user holding the code wins over an influencer holding the same one; the
// generation scheme should make that impossible, so the precedence is a
// tie-break, not an error.
func (r *CodeRegistry) Resolve(ctx context.Context, code string) (internal.Referrer, error) {
	normalized := NormalizeCode(code)
	referrer, err := r.Store.GetReferrerByCode(ctx, internal.KindUser, normalized)
	if err == nil {
		return referrer, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return internal.Referrer{}, err
	}
	return r.Store.GetReferrerByCode(ctx, internal.KindInfluencer, normalized)
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
