package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/Anilsharma012/vastralaya4-sub000/internal"
	"github.com/Anilsharma012/vastralaya4-sub000/internal/service"
	"github.com/Anilsharma012/vastralaya4-sub000/internal/storage"
	"go.uber.org/zap"
)

const (
	userIDKey  = authContextKey("userID")
	authHeader = "Authorization"
)

type authContextKey string

type AuthHandler struct {
	authService     service.AuthService
	referralService service.ReferralService
	logger          *zap.Logger
}

func (a *AuthHandler) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, req *http.Request) {
		userID, err := a.authService.CheckToken(req.Header.Get(authHeader))
		if errors.Is(err, service.ErrUnauthorized) {
			http.Error(writer, err.Error(), http.StatusUnauthorized)
			return
		} else if err != nil {
			a.logger.Error("check token error", zap.Error(err))
			http.Error(writer, "Internal server error", http.StatusInternalServerError)
			return
		}
		ctx := context.WithValue(req.Context(), userIDKey, userID)
		next.ServeHTTP(writer, req.WithContext(ctx))
	})
}

func GetUserIDFromContext(ctx context.Context) internal.UserID {
	return ctx.Value(userIDKey).(internal.UserID)
}

type RegisterData struct {
	Login        string `json:"login"`
	Password     string `json:"password"`
	ReferralCode string `json:"referral_code,omitempty"`
}

type RegisterResponse struct {
	UserID     internal.UserID `json:"user_id"`
	ReferralID *string         `json:"referral_id"`
}

func (a *AuthHandler) RegisterUser(writer http.ResponseWriter, req *http.Request) {
	var registerReq RegisterData
	if !unmarshalRequest(writer, req, &registerReq) {
		return
	}
	if !a.validateAuthData(writer, registerReq.Login, registerReq.Password) {
		return
	}
	userID, token, err := a.authService.RegisterUser(req.Context(), registerReq.Login, registerReq.Password)
	if errors.Is(err, storage.ErrAlreadyExists) {
		http.Error(writer, err.Error(), http.StatusConflict)
		return
	} else if err != nil {
		a.logger.Error("register user error", zap.Error(err))
		http.Error(writer, "Internal server error", http.StatusInternalServerError)
		return
	}
	response := RegisterResponse{UserID: userID}
	// A bad referral code must never fail registration.
	referral, err := a.referralService.Attribute(req.Context(), userID, registerReq.ReferralCode)
	if err != nil {
		a.logger.Error("attribute referral error", zap.Int("user_id", int(userID)), zap.Error(err))
	} else if referral != nil {
		id := referral.ID.String()
		response.ReferralID = &id
	}
	writer.Header().Set(authHeader, string(token))
	marshalResponse(writer, http.StatusOK, response)
}

type AuthData struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (a *AuthHandler) AuthUser(writer http.ResponseWriter, req *http.Request) {
	var authReq AuthData
	if !unmarshalRequest(writer, req, &authReq) {
		return
	}
	if !a.validateAuthData(writer, authReq.Login, authReq.Password) {
		return
	}
	token, err := a.authService.AuthUser(req.Context(), authReq.Login, authReq.Password)
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, service.ErrIncorrectPassword) {
		http.Error(writer, err.Error(), http.StatusUnauthorized)
		return
	} else if err != nil {
		a.logger.Error("authentication user error", zap.Error(err))
		http.Error(writer, "Internal server error", http.StatusInternalServerError)
		return
	}
	writer.Header().Set(authHeader, string(token))
	writer.WriteHeader(http.StatusOK)
}

func (a *AuthHandler) validateAuthData(writer http.ResponseWriter, login string, password string) bool {
	if login == "" {
		http.Error(writer, "Login is required", http.StatusBadRequest)
		return false
	}
	if password == "" {
		http.Error(writer, "Password is required", http.StatusBadRequest)
		return false
	}
	return true
}
