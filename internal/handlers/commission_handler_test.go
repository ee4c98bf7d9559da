package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/Anilsharma012/vastralaya4-sub000/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCommission(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()
	userID, _, err := registerUser(t, f, "a", "pass")
	require.NoError(t, err)
	userRef := internal.ReferrerRef{Kind: internal.KindUser, ID: int(userID)}
	require.NoError(t, f.ledger.CreditForOrder(ctx, userRef, "ord-1", 5000))
	resp := f.do(http.MethodPost, "/api/admin/influencers",
		`{"name": "Meera", "handle": "meera", "tier": "gold"}`, adminHeaders())
	require.Equal(t, http.StatusCreated, resp.Code)
	var created CreateInfluencerResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))

	t.Run("user account with the base rate", func(t *testing.T) {
		resp := f.do(http.MethodGet, fmt.Sprintf("/api/referrers/user/%d/commission", userID), "", adminHeaders())
		require.Equal(t, http.StatusOK, resp.Code)
		var commission CommissionResponse
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &commission))
		assert.Equal(t, internal.Money(5000), commission.PendingAmount)
		assert.Equal(t, internal.Money(5000), commission.TotalEarned)
		assert.Equal(t, 5.0, commission.Rate)
	})

	t.Run("influencer account with the tier rate", func(t *testing.T) {
		resp := f.do(http.MethodGet, fmt.Sprintf("/api/referrers/influencer/%d/commission", created.ID), "", adminHeaders())
		require.Equal(t, http.StatusOK, resp.Code)
		var commission CommissionResponse
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &commission))
		assert.Equal(t, 10.0, commission.Rate)
	})

	t.Run("unknown account", func(t *testing.T) {
		resp := f.do(http.MethodGet, "/api/referrers/user/999/commission", "", adminHeaders())
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("own commission via token", func(t *testing.T) {
		token, err := f.authService.CreateToken(userID)
		require.NoError(t, err)
		resp := f.do(http.MethodGet, "/api/user/commission", "",
			map[string]string{authHeader: string(token)})
		require.Equal(t, http.StatusOK, resp.Code)
		var commission CommissionResponse
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &commission))
		assert.Equal(t, internal.Money(5000), commission.PendingAmount)
	})
}

func TestRequestOwnPayout(t *testing.T) {
	ctx := context.Background()

	// newPayoutUser funds a user with 100000 paise of available commission.
	newPayoutUser := func(t *testing.T, verified bool, withMethod bool) (*handlerFixture, internal.ReferrerRef, string) {
		t.Helper()
		f := newHandlerFixture(t)
		userID, _, err := registerUser(t, f, "a", "pass")
		require.NoError(t, err)
		ref := internal.ReferrerRef{Kind: internal.KindUser, ID: int(userID)}
		require.NoError(t, f.ledger.CreditForOrder(ctx, ref, "seed", 100000))
		require.NoError(t, f.ledger.Mature(ctx, ref, 100000))
		require.NoError(t, f.store.SetKYCVerified(ctx, ref, verified))
		if withMethod {
			require.NoError(t, f.store.SetPayoutMethod(ctx, ref, internal.PayoutUPI, "a@upi"))
		}
		token, err := f.authService.CreateToken(userID)
		require.NoError(t, err)
		return f, ref, string(token)
	}

	tests := []struct {
		name       string
		verified   bool
		withMethod bool
		request    string
		wantStatus int
		wantError  string
	}{
		{
			name:       "successful request",
			verified:   true,
			withMethod: true,
			request:    `{"amount": 60000}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "below minimum",
			verified:   true,
			withMethod: true,
			request:    `{"amount": 49999}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "BELOW_MINIMUM",
		},
		{
			name:       "insufficient balance",
			verified:   true,
			withMethod: true,
			request:    `{"amount": 100001}`,
			wantStatus: http.StatusPaymentRequired,
			wantError:  "INSUFFICIENT_BALANCE",
		},
		{
			name:       "verification required",
			verified:   false,
			withMethod: true,
			request:    `{"amount": 60000}`,
			wantStatus: http.StatusForbidden,
			wantError:  "VERIFICATION_REQUIRED",
		},
		{
			name:       "no payout method",
			verified:   true,
			withMethod: false,
			request:    `{"amount": 60000}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "NO_PAYOUT_METHOD",
		},
		{
			name:       "missing amount",
			verified:   true,
			withMethod: true,
			request:    `{}`,
			wantStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ref, token := newPayoutUser(t, tt.verified, tt.withMethod)
			resp := f.do(http.MethodPost, "/api/user/payouts", tt.request,
				map[string]string{authHeader: token})
			assert.Equal(t, tt.wantStatus, resp.Code)
			if tt.wantError != "" {
				var errResp errorResponse
				require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
				assert.Equal(t, tt.wantError, errResp.Error)
			}
			account, err := f.ledger.Account(ctx, ref)
			require.NoError(t, err)
			if tt.wantStatus == http.StatusCreated {
				var payout PayoutResponse
				require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payout))
				assert.Equal(t, internal.PayoutPending, payout.Status)
				assert.Equal(t, internal.Money(40000), account.Available)
			} else {
				// A rejected request must leave the balance untouched.
				assert.Equal(t, internal.Money(100000), account.Available)
			}
		})
	}

	t.Run("payout listing", func(t *testing.T) {
		f, _, token := newPayoutUser(t, true, true)
		headers := map[string]string{authHeader: token}

		resp := f.do(http.MethodGet, "/api/user/payouts", "", headers)
		assert.Equal(t, http.StatusNoContent, resp.Code)

		resp = f.do(http.MethodPost, "/api/user/payouts", `{"amount": 60000}`, headers)
		require.Equal(t, http.StatusCreated, resp.Code)

		resp = f.do(http.MethodGet, "/api/user/payouts", "", headers)
		require.Equal(t, http.StatusOK, resp.Code)
		var payouts []internal.Payout
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payouts))
		require.Len(t, payouts, 1)
		assert.Equal(t, internal.Money(60000), payouts[0].Amount)
	})
}

func TestSettlePayoutEndpoint(t *testing.T) {
	ctx := context.Background()
	f := newHandlerFixture(t)
	userID, _, err := registerUser(t, f, "a", "pass")
	require.NoError(t, err)
	ref := internal.ReferrerRef{Kind: internal.KindUser, ID: int(userID)}
	require.NoError(t, f.ledger.CreditForOrder(ctx, ref, "seed", 100000))
	require.NoError(t, f.ledger.Mature(ctx, ref, 100000))
	require.NoError(t, f.store.SetKYCVerified(ctx, ref, true))
	require.NoError(t, f.store.SetPayoutMethod(ctx, ref, internal.PayoutUPI, "a@upi"))
	token, err := f.authService.CreateToken(userID)
	require.NoError(t, err)
	resp := f.do(http.MethodPost, "/api/user/payouts", `{"amount": 60000}`,
		map[string]string{authHeader: string(token)})
	require.Equal(t, http.StatusCreated, resp.Code)
	var created PayoutResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))

	tests := []struct {
		name       string
		payoutID   string
		request    string
		wantStatus int
	}{
		{
			name:       "invalid outcome",
			payoutID:   created.PayoutID,
			request:    `{"outcome": "approved"}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "unknown payout",
			payoutID:   "b9b7a02e-4b6c-4f8a-9f64-0d8f0a2f1c11",
			request:    `{"outcome": "paid"}`,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "malformed payout id",
			payoutID:   "not-a-uuid",
			request:    `{"outcome": "paid"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "paid",
			payoutID:   created.PayoutID,
			request:    `{"outcome": "paid"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "settling again answers with the final state",
			payoutID:   created.PayoutID,
			request:    `{"outcome": "rejected"}`,
			wantStatus: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(http.MethodPost, "/api/payouts/"+tt.payoutID+"/settle", tt.request, adminHeaders())
			assert.Equal(t, tt.wantStatus, resp.Code)
		})
	}

	account, err := f.ledger.Account(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, internal.Money(60000), account.Paid)
	assert.Equal(t, internal.Money(40000), account.Available)
}

func TestMatureEndpoint(t *testing.T) {
	ctx := context.Background()
	f := newHandlerFixture(t)
	userID, _, err := registerUser(t, f, "a", "pass")
	require.NoError(t, err)
	ref := internal.ReferrerRef{Kind: internal.KindUser, ID: int(userID)}
	require.NoError(t, f.ledger.CreditForOrder(ctx, ref, "ord-1", 5000))
	maturePath := fmt.Sprintf("/api/admin/commission/user/%d/mature", userID)

	tests := []struct {
		name       string
		request    string
		wantStatus int
	}{
		{
			name:       "mature the full pending amount",
			request:    `{"amount": 5000}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "nothing left to mature",
			request:    `{"amount": 1}`,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "missing amount",
			request:    `{}`,
			wantStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(http.MethodPost, maturePath, tt.request, adminHeaders())
			assert.Equal(t, tt.wantStatus, resp.Code)
		})
	}

	account, err := f.ledger.Account(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, internal.Money(5000), account.Available)
}

func TestInfluencerAdmin(t *testing.T) {
	f := newHandlerFixture(t)

	t.Run("create", func(t *testing.T) {
		resp := f.do(http.MethodPost, "/api/admin/influencers",
			`{"name": "Meera", "handle": "meera", "tier": "silver"}`, adminHeaders())
		require.Equal(t, http.StatusCreated, resp.Code)
		var created CreateInfluencerResponse
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))
		assert.NotZero(t, created.ID)
		assert.Contains(t, created.ReferralCode, "SHRIBALAJI")
	})

	t.Run("duplicate handle", func(t *testing.T) {
		resp := f.do(http.MethodPost, "/api/admin/influencers",
			`{"name": "Other", "handle": "meera", "tier": "silver"}`, adminHeaders())
		assert.Equal(t, http.StatusConflict, resp.Code)
	})

	t.Run("unknown tier", func(t *testing.T) {
		resp := f.do(http.MethodPost, "/api/admin/influencers",
			`{"name": "Meera", "handle": "meera2", "tier": "wood"}`, adminHeaders())
		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})

	t.Run("missing handle", func(t *testing.T) {
		resp := f.do(http.MethodPost, "/api/admin/influencers",
			`{"name": "Meera", "tier": "silver"}`, adminHeaders())
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("tier update", func(t *testing.T) {
		resp := f.do(http.MethodPut, "/api/admin/influencers/1/tier",
			`{"tier": "diamond"}`, adminHeaders())
		assert.Equal(t, http.StatusOK, resp.Code)

		resp = f.do(http.MethodPut, "/api/admin/influencers/1/tier",
			`{"tier": "wood"}`, adminHeaders())
		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)

		resp = f.do(http.MethodPut, "/api/admin/influencers/99/tier",
			`{"tier": "gold"}`, adminHeaders())
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("kyc flag", func(t *testing.T) {
		resp := f.do(http.MethodPut, "/api/admin/referrers/influencer/1/kyc",
			`{"verified": true}`, adminHeaders())
		assert.Equal(t, http.StatusOK, resp.Code)

		resp = f.do(http.MethodPut, "/api/admin/referrers/influencer/99/kyc",
			`{"verified": true}`, adminHeaders())
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})
}

func TestInfluencerPayoutFlow(t *testing.T) {
	ctx := context.Background()
	f := newHandlerFixture(t)
	resp := f.do(http.MethodPost, "/api/admin/influencers",
		`{"name": "Meera", "handle": "meera", "tier": "gold"}`, adminHeaders())
	require.Equal(t, http.StatusCreated, resp.Code)
	var created CreateInfluencerResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))
	ref := internal.ReferrerRef{Kind: internal.KindInfluencer, ID: int(created.ID)}
	require.NoError(t, f.ledger.CreditForOrder(ctx, ref, "ord-1", 100000))
	require.NoError(t, f.ledger.Mature(ctx, ref, 100000))
	resp = f.do(http.MethodPut, fmt.Sprintf("/api/admin/referrers/influencer/%d/kyc", created.ID),
		`{"verified": true}`, adminHeaders())
	require.Equal(t, http.StatusOK, resp.Code)
	methodPath := fmt.Sprintf("/api/admin/referrers/influencer/%d/payout-method", created.ID)
	payoutPath := fmt.Sprintf("/api/referrers/influencer/%d/payouts", created.ID)

	t.Run("request without a method on file", func(t *testing.T) {
		resp := f.do(http.MethodPost, payoutPath, `{"amount": 60000}`, adminHeaders())
		require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
		var errResp errorResponse
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
		assert.Equal(t, "NO_PAYOUT_METHOD", errResp.Error)
	})

	t.Run("admin puts the method on file", func(t *testing.T) {
		resp := f.do(http.MethodPut, methodPath,
			`{"method": "bank", "target": "IN1234567890"}`, adminHeaders())
		require.Equal(t, http.StatusOK, resp.Code)
	})

	t.Run("payout request now succeeds and settles", func(t *testing.T) {
		resp := f.do(http.MethodPost, payoutPath, `{"amount": 60000}`, adminHeaders())
		require.Equal(t, http.StatusCreated, resp.Code)
		var payout PayoutResponse
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payout))
		assert.Equal(t, internal.PayoutPending, payout.Status)

		resp = f.do(http.MethodPost, "/api/payouts/"+payout.PayoutID+"/settle",
			`{"outcome": "paid"}`, adminHeaders())
		require.Equal(t, http.StatusOK, resp.Code)

		account, err := f.ledger.Account(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, internal.Money(60000), account.Paid)
		assert.Equal(t, internal.Money(40000), account.Available)
	})

	t.Run("unknown referrer", func(t *testing.T) {
		resp := f.do(http.MethodPut, "/api/admin/referrers/influencer/99/payout-method",
			`{"method": "bank", "target": "IN1234567890"}`, adminHeaders())
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("unsupported method", func(t *testing.T) {
		resp := f.do(http.MethodPut, methodPath,
			`{"method": "cheque", "target": "x"}`, adminHeaders())
		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})
}

func TestSetOwnPayoutMethod(t *testing.T) {
	f := newHandlerFixture(t)
	userID, _, err := registerUser(t, f, "a", "pass")
	require.NoError(t, err)
	token, err := f.authService.CreateToken(userID)
	require.NoError(t, err)
	headers := map[string]string{authHeader: string(token)}

	tests := []struct {
		name       string
		request    string
		wantStatus int
	}{
		{
			name:       "upi method",
			request:    `{"method": "upi", "target": "a@upi"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "bank method",
			request:    `{"method": "bank", "target": "IN1234567890"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "unsupported method",
			request:    `{"method": "cheque", "target": "a"}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "missing target",
			request:    `{"method": "upi"}`,
			wantStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(http.MethodPut, "/api/user/payout-method", tt.request, headers)
			assert.Equal(t, tt.wantStatus, resp.Code)
		})
	}

	referrer, err := f.store.GetReferrer(context.Background(), internal.ReferrerRef{Kind: internal.KindUser, ID: int(userID)})
	require.NoError(t, err)
	assert.Equal(t, internal.PayoutBank, referrer.PayoutMethod)
	assert.Equal(t, "IN1234567890", referrer.PayoutTarget)
}
