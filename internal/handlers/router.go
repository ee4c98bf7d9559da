package handlers

import (
	"crypto/hmac"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/Anilsharma012/vastralaya4-sub000/internal"
	"github.com/Anilsharma012/vastralaya4-sub000/internal/service"
	"github.com/Anilsharma012/vastralaya4-sub000/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type RouterDeps struct {
	AuthService     service.AuthService
	ReferralService service.ReferralService
	PayoutService   service.PayoutService
	AdminService    service.AdminService
	Ledger          *service.Ledger
	Users           storage.UserStorage
	Config          internal.Config
	Logger          *zap.Logger
}

func NewRouter(deps RouterDeps) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	authHandler := &AuthHandler{
		authService:     deps.AuthService,
		referralService: deps.ReferralService,
		logger:          deps.Logger,
	}
	referralHandler := &ReferralHandler{
		referralService: deps.ReferralService,
		logger:          deps.Logger,
	}
	commissionHandler := &CommissionHandler{
		ledger:        deps.Ledger,
		payoutService: deps.PayoutService,
		adminService:  deps.AdminService,
		users:         deps.Users,
		config:        deps.Config.Commission,
		logger:        deps.Logger,
	}

	r.Post("/api/user/register", authHandler.RegisterUser)
	r.Post("/api/user/login", authHandler.AuthUser)

	authRequiredGroup := r.Group(nil)
	authRequiredGroup.Use(authHandler.Auth)
	authRequiredGroup.Get("/api/user/commission", commissionHandler.GetOwnCommission)
	authRequiredGroup.Get("/api/user/referrals", referralHandler.GetOwnReferrals)
	authRequiredGroup.Post("/api/user/payouts", commissionHandler.RequestOwnPayout)
	authRequiredGroup.Get("/api/user/payouts", commissionHandler.GetOwnPayouts)
	authRequiredGroup.Put("/api/user/payout-method", commissionHandler.SetOwnPayoutMethod)

	internalGroup := r.Group(nil)
	internalGroup.Use(AdminAuth(deps.Config.AdminKey))
	internalGroup.Post("/api/referrals/attribute", referralHandler.Attribute)
	internalGroup.Post("/api/orders/event", referralHandler.OrderEvent)
	internalGroup.Get("/api/referrers/{kind}/{id}/commission", commissionHandler.GetCommission)
	internalGroup.Get("/api/referrers/{kind}/{id}/referrals", referralHandler.ListReferrals)
	internalGroup.Post("/api/referrers/{kind}/{id}/payouts", commissionHandler.RequestPayout)
	internalGroup.Post("/api/payouts/{id}/settle", commissionHandler.SettlePayout)
	internalGroup.Post("/api/admin/commission/{kind}/{id}/mature", commissionHandler.Mature)
	internalGroup.Post("/api/admin/influencers", commissionHandler.CreateInfluencer)
	internalGroup.Put("/api/admin/influencers/{id}/tier", commissionHandler.UpdateInfluencerTier)
	internalGroup.Put("/api/admin/referrers/{kind}/{id}/kyc", commissionHandler.SetKYC)
	internalGroup.Put("/api/admin/referrers/{kind}/{id}/payout-method", commissionHandler.SetReferrerPayoutMethod)

	r.NotFound(func(writer http.ResponseWriter, request *http.Request) {
		http.Error(writer, "Wrong request", http.StatusBadRequest)
	})

	r.MethodNotAllowed(func(writer http.ResponseWriter, request *http.Request) {
		http.Error(writer, "Method not allowed", http.StatusBadRequest)
	})
	return r
}

// AdminAuth gates the internal and administrative endpoints behind a
// static bearer key.
func AdminAuth(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, req *http.Request) {
			if key == "" {
				http.Error(writer, "Admin API is not configured", http.StatusForbidden)
				return
			}
			supplied := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
			if !hmac.Equal([]byte(supplied), []byte(key)) {
				http.Error(writer, "Invalid API key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(writer, req)
		})
	}
}

// referrerFromURL parses the {kind}/{id} pair used by the internal routes.
func referrerFromURL(writer http.ResponseWriter, req *http.Request) (internal.ReferrerRef, bool) {
	kind := internal.ReferrerKind(chi.URLParam(req, "kind"))
	if kind != internal.KindUser && kind != internal.KindInfluencer {
		http.Error(writer, "Unknown referrer kind", http.StatusBadRequest)
		return internal.ReferrerRef{}, false
	}
	id, err := strconv.Atoi(chi.URLParam(req, "id"))
	if err != nil || id <= 0 {
		http.Error(writer, "Invalid referrer id", http.StatusBadRequest)
		return internal.ReferrerRef{}, false
	}
	return internal.ReferrerRef{Kind: kind, ID: id}, true
}

func unmarshalRequest(writer http.ResponseWriter, req *http.Request, v any) bool {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return false
	}
	if len(body) == 0 {
		http.Error(writer, "Request body is required", http.StatusBadRequest)
		return false
	}
	err = json.Unmarshal(body, v)
	if err != nil {
		http.Error(writer, "Failed to parse request body", http.StatusBadRequest)
		return false
	}
	return true
}

func marshalResponse(writer http.ResponseWriter, status int, response any) {
	respJSON, err := json.Marshal(response)
	if err != nil {
		http.Error(writer, "Internal server error", http.StatusInternalServerError)
		return
	}
	writer.Header().Set("content-type", "application/json")
	writer.WriteHeader(status)
	writer.Write(respJSON)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(writer http.ResponseWriter, status int, code string) {
	marshalResponse(writer, status, errorResponse{Error: code})
}
