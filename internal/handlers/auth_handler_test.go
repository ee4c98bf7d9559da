package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/Anilsharma012/vastralaya4-sub000/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterUser(t *testing.T) {
	f := newHandlerFixture(t)
	referrerID, referrerCode, err := registerUser(t, f, "referrer", "pass")
	require.NoError(t, err)
	require.NotZero(t, referrerID)

	tests := []struct {
		name           string
		request        string
		wantStatus     int
		wantToken      bool
		wantAttributed bool
	}{
		{
			name:           "registration without a code",
			request:        `{"login": "plain", "password": "pass"}`,
			wantStatus:     http.StatusOK,
			wantToken:      true,
			wantAttributed: false,
		},
		{
			name:           "registration with a referral code",
			request:        `{"login": "referred", "password": "pass", "referral_code": "` + referrerCode + `"}`,
			wantStatus:     http.StatusOK,
			wantToken:      true,
			wantAttributed: true,
		},
		{
			name:           "unknown code registers without attribution",
			request:        `{"login": "other", "password": "pass", "referral_code": "NOSUCHCODE"}`,
			wantStatus:     http.StatusOK,
			wantToken:      true,
			wantAttributed: false,
		},
		{
			name:       "duplicate login",
			request:    `{"login": "plain", "password": "pass"}`,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "missing password",
			request:    `{"login": "nopass"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "empty body",
			request:    "",
			wantStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(http.MethodPost, "/api/user/register", tt.request, nil)
			assert.Equal(t, tt.wantStatus, resp.Code)
			if tt.wantToken {
				assert.NotEmpty(t, resp.Header().Get(authHeader))
			}
			if resp.Code == http.StatusOK {
				var registered RegisterResponse
				require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &registered))
				assert.NotZero(t, registered.UserID)
				if tt.wantAttributed {
					assert.NotNil(t, registered.ReferralID)
				} else {
					assert.Nil(t, registered.ReferralID)
				}
			}
		})
	}
}

func TestAuthUser(t *testing.T) {
	f := newHandlerFixture(t)
	_, _, err := registerUser(t, f, "a", "correct")
	require.NoError(t, err)

	tests := []struct {
		name       string
		request    string
		wantStatus int
	}{
		{
			name:       "correct credentials",
			request:    `{"login": "a", "password": "correct"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "wrong password",
			request:    `{"login": "a", "password": "wrong"}`,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "unknown login",
			request:    `{"login": "b", "password": "correct"}`,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing login",
			request:    `{"password": "correct"}`,
			wantStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(http.MethodPost, "/api/user/login", tt.request, nil)
			assert.Equal(t, tt.wantStatus, resp.Code)
			if tt.wantStatus == http.StatusOK {
				assert.NotEmpty(t, resp.Header().Get(authHeader))
			}
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	f := newHandlerFixture(t)
	userID, _, err := registerUser(t, f, "a", "pass")
	require.NoError(t, err)
	token, err := f.authService.CreateToken(userID)
	require.NoError(t, err)

	tests := []struct {
		name       string
		token      string
		wantStatus int
	}{
		{
			name:       "valid token",
			token:      string(token),
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing token",
			token:      "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "garbage token",
			token:      "deadbeef",
			wantStatus: http.StatusUnauthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(http.MethodGet, "/api/user/commission", "",
				map[string]string{authHeader: tt.token})
			assert.Equal(t, tt.wantStatus, resp.Code)
		})
	}
}

// registerUser registers through the service layer and returns the id and
// the assigned referral code.
func registerUser(t *testing.T, f *handlerFixture, login string, pass string) (internal.UserID, string, error) {
	t.Helper()
	ctx := context.Background()
	userID, _, err := f.authService.RegisterUser(ctx, login, pass)
	if err != nil {
		return 0, "", err
	}
	referrer, err := f.store.GetReferrer(ctx, internal.ReferrerRef{Kind: internal.KindUser, ID: int(userID)})
	if err != nil {
		return 0, "", err
	}
	return userID, referrer.Code, nil
}
