package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Anilsharma012/vastralaya4-sub000/internal"
	"github.com/Anilsharma012/vastralaya4-sub000/internal/service"
	"github.com/Anilsharma012/vastralaya4-sub000/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CommissionHandler struct {
	ledger        *service.Ledger
	payoutService service.PayoutService
	adminService  service.AdminService
	users         storage.UserStorage
	config        internal.CommissionConfig
	logger        *zap.Logger
}

type CommissionResponse struct {
	PendingAmount   internal.Money `json:"pending_amount"`
	AvailableAmount internal.Money `json:"available_amount"`
	PaidAmount      internal.Money `json:"paid_amount"`
	TotalEarned     internal.Money `json:"total_earned"`
	LiabilityAmount internal.Money `json:"liability_amount,omitempty"`
	Rate            float64        `json:"rate"`
}

func (h *CommissionHandler) GetCommission(writer http.ResponseWriter, req *http.Request) {
	ref, ok := referrerFromURL(writer, req)
	if !ok {
		return
	}
	h.writeCommission(writer, req, ref)
}

func (h *CommissionHandler) GetOwnCommission(writer http.ResponseWriter, req *http.Request) {
	userID := GetUserIDFromContext(req.Context())
	h.writeCommission(writer, req, internal.ReferrerRef{Kind: internal.KindUser, ID: int(userID)})
}

func (h *CommissionHandler) writeCommission(writer http.ResponseWriter, req *http.Request, ref internal.ReferrerRef) {
	account, err := h.ledger.Account(req.Context(), ref)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(writer, err.Error(), http.StatusNotFound)
		return
	} else if err != nil {
		h.logger.Error("get commission account error", zap.Error(err))
		http.Error(writer, "Internal server error", http.StatusInternalServerError)
		return
	}
	// The influencer tier is needed for the effective rate.
	rate := h.config.BaseRate
	if ref.Kind == internal.KindInfluencer {
		referrer, err := h.users.GetReferrer(req.Context(), ref)
		if err == nil {
			rate = h.config.RateFor(ref.Kind, referrer.Tier)
		}
	}
	marshalResponse(writer, http.StatusOK, CommissionResponse{
		PendingAmount:   account.Pending,
		AvailableAmount: account.Available,
		PaidAmount:      account.Paid,
		TotalEarned:     account.TotalEarned,
		LiabilityAmount: account.Liability,
		Rate:            rate,
	})
}

type PayoutRequest struct {
	Amount internal.Money `json:"amount"`
}

type PayoutResponse struct {
	PayoutID string                `json:"payout_id"`
	Status   internal.PayoutStatus `json:"status"`
}

func (h *CommissionHandler) RequestPayout(writer http.ResponseWriter, req *http.Request) {
	ref, ok := referrerFromURL(writer, req)
	if !ok {
		return
	}
	h.requestPayout(writer, req, ref)
}

func (h *CommissionHandler) RequestOwnPayout(writer http.ResponseWriter, req *http.Request) {
	userID := GetUserIDFromContext(req.Context())
	h.requestPayout(writer, req, internal.ReferrerRef{Kind: internal.KindUser, ID: int(userID)})
}

func (h *CommissionHandler) requestPayout(writer http.ResponseWriter, req *http.Request, ref internal.ReferrerRef) {
	var payoutReq PayoutRequest
	if !unmarshalRequest(writer, req, &payoutReq) {
		return
	}
	if payoutReq.Amount <= 0 {
		http.Error(writer, "Amount is required", http.StatusBadRequest)
		return
	}
	payout, err := h.payoutService.RequestPayout(req.Context(), ref, payoutReq.Amount)
	switch {
	case errors.Is(err, service.ErrBelowMinimum):
		writeError(writer, http.StatusUnprocessableEntity, "BELOW_MINIMUM")
		return
	case errors.Is(err, service.ErrInsufficientBalance):
		writeError(writer, http.StatusPaymentRequired, "INSUFFICIENT_BALANCE")
		return
	case errors.Is(err, service.ErrVerificationRequired):
		writeError(writer, http.StatusForbidden, "VERIFICATION_REQUIRED")
		return
	case errors.Is(err, service.ErrNoPayoutMethod):
		writeError(writer, http.StatusUnprocessableEntity, "NO_PAYOUT_METHOD")
		return
	case errors.Is(err, storage.ErrNotFound):
		http.Error(writer, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		h.logger.Error("request payout error", zap.Error(err))
		http.Error(writer, "Internal server error", http.StatusInternalServerError)
		return
	}
	marshalResponse(writer, http.StatusCreated, PayoutResponse{
		PayoutID: payout.ID.String(),
		Status:   payout.Status,
	})
}

func (h *CommissionHandler) GetOwnPayouts(writer http.ResponseWriter, req *http.Request) {
	userID := GetUserIDFromContext(req.Context())
	payouts, err := h.payoutService.GetPayouts(req.Context(), internal.ReferrerRef{Kind: internal.KindUser, ID: int(userID)})
	if err != nil {
		h.logger.Error("get payouts error", zap.Error(err))
		http.Error(writer, "Internal server error", http.StatusInternalServerError)
		return
	}
	if len(payouts) == 0 {
		writer.WriteHeader(http.StatusNoContent)
		return
	}
	marshalResponse(writer, http.StatusOK, payouts)
}

type SettleRequest struct {
	Outcome internal.PayoutStatus `json:"outcome"`
}

func (h *CommissionHandler) SettlePayout(writer http.ResponseWriter, req *http.Request) {
	payoutID, err := uuid.Parse(chi.URLParam(req, "id"))
	if err != nil {
		http.Error(writer, "Invalid payout id", http.StatusBadRequest)
		return
	}
	var settleReq SettleRequest
	if !unmarshalRequest(writer, req, &settleReq) {
		return
	}
	payout, err := h.payoutService.Settle(req.Context(), payoutID, settleReq.Outcome)
	if errors.Is(err, service.ErrInvalidOutcome) {
		writeError(writer, http.StatusUnprocessableEntity, "INVALID_OUTCOME")
		return
	} else if errors.Is(err, storage.ErrNotFound) {
		http.Error(writer, err.Error(), http.StatusNotFound)
		return
	} else if err != nil {
		h.logger.Error("settle payout error", zap.Error(err))
		http.Error(writer, "Internal server error", http.StatusInternalServerError)
		return
	}
	marshalResponse(writer, http.StatusOK, payout)
}

type MatureRequest struct {
	Amount internal.Money `json:"amount"`
}

func (h *CommissionHandler) Mature(writer http.ResponseWriter, req *http.Request) {
	ref, ok := referrerFromURL(writer, req)
	if !ok {
		return
	}
	var matureReq MatureRequest
	if !unmarshalRequest(writer, req, &matureReq) {
		return
	}
	if matureReq.Amount <= 0 {
		http.Error(writer, "Amount is required", http.StatusBadRequest)
		return
	}
	err := h.ledger.Mature(req.Context(), ref, matureReq.Amount)
	if errors.Is(err, service.ErrInsufficientPending) {
		writeError(writer, http.StatusConflict, "INSUFFICIENT_PENDING")
		return
	} else if err != nil {
		h.logger.Error("mature commission error", zap.Error(err))
		http.Error(writer, "Internal server error", http.StatusInternalServerError)
		return
	}
	writer.WriteHeader(http.StatusOK)
}

type CreateInfluencerRequest struct {
	Name   string        `json:"name"`
	Handle string        `json:"handle"`
	Tier   internal.Tier `json:"tier"`
}

type CreateInfluencerResponse struct {
	ID           internal.InfluencerID `json:"id"`
	ReferralCode string                `json:"referral_code"`
}

func (h *CommissionHandler) CreateInfluencer(writer http.ResponseWriter, req *http.Request) {
	var createReq CreateInfluencerRequest
	if !unmarshalRequest(writer, req, &createReq) {
		return
	}
	if createReq.Name == "" || createReq.Handle == "" {
		http.Error(writer, "Name and handle are required", http.StatusBadRequest)
		return
	}
	id, code, err := h.adminService.CreateInfluencer(req.Context(), createReq.Name, createReq.Handle, createReq.Tier)
	if errors.Is(err, service.ErrUnknownTier) {
		writeError(writer, http.StatusUnprocessableEntity, "UNKNOWN_TIER")
		return
	} else if errors.Is(err, storage.ErrAlreadyExists) {
		http.Error(writer, err.Error(), http.StatusConflict)
		return
	} else if err != nil {
		h.logger.Error("create influencer error", zap.Error(err))
		http.Error(writer, "Internal server error", http.StatusInternalServerError)
		return
	}
	marshalResponse(writer, http.StatusCreated, CreateInfluencerResponse{ID: id, ReferralCode: code})
}

type UpdateTierRequest struct {
	Tier internal.Tier `json:"tier"`
}

func (h *CommissionHandler) UpdateInfluencerTier(writer http.ResponseWriter, req *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(req, "id"))
	if err != nil {
		http.Error(writer, "Invalid influencer id", http.StatusBadRequest)
		return
	}
	var tierReq UpdateTierRequest
	if !unmarshalRequest(writer, req, &tierReq) {
		return
	}
	err = h.adminService.UpdateInfluencerTier(req.Context(), internal.InfluencerID(id), tierReq.Tier)
	if errors.Is(err, service.ErrUnknownTier) {
		writeError(writer, http.StatusUnprocessableEntity, "UNKNOWN_TIER")
		return
	} else if errors.Is(err, storage.ErrNotFound) {
		http.Error(writer, err.Error(), http.StatusNotFound)
		return
	} else if err != nil {
		h.logger.Error("update tier error", zap.Error(err))
		http.Error(writer, "Internal server error", http.StatusInternalServerError)
		return
	}
	writer.WriteHeader(http.StatusOK)
}

type KYCRequest struct {
	Verified bool `json:"verified"`
}

func (h *CommissionHandler) SetKYC(writer http.ResponseWriter, req *http.Request) {
	ref, ok := referrerFromURL(writer, req)
	if !ok {
		return
	}
	var kycReq KYCRequest
	if !unmarshalRequest(writer, req, &kycReq) {
		return
	}
	err := h.adminService.SetKYCVerified(req.Context(), ref, kycReq.Verified)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(writer, err.Error(), http.StatusNotFound)
		return
	} else if err != nil {
		h.logger.Error("set kyc error", zap.Error(err))
		http.Error(writer, "Internal server error", http.StatusInternalServerError)
		return
	}
	writer.WriteHeader(http.StatusOK)
}

type PayoutMethodRequest struct {
	Method internal.PayoutMethod `json:"method"`
	Target string                `json:"target"`
}

func (h *CommissionHandler) SetOwnPayoutMethod(writer http.ResponseWriter, req *http.Request) {
	userID := GetUserIDFromContext(req.Context())
	h.setPayoutMethod(writer, req, internal.ReferrerRef{Kind: internal.KindUser, ID: int(userID)})
}

// SetReferrerPayoutMethod is the administrative counterpart: influencers
// have no self-service surface, so their disbursement details are put on
// file here.
func (h *CommissionHandler) SetReferrerPayoutMethod(writer http.ResponseWriter, req *http.Request) {
	ref, ok := referrerFromURL(writer, req)
	if !ok {
		return
	}
	h.setPayoutMethod(writer, req, ref)
}

func (h *CommissionHandler) setPayoutMethod(writer http.ResponseWriter, req *http.Request, ref internal.ReferrerRef) {
	var methodReq PayoutMethodRequest
	if !unmarshalRequest(writer, req, &methodReq) {
		return
	}
	if methodReq.Target == "" {
		http.Error(writer, "Target is required", http.StatusBadRequest)
		return
	}
	err := h.adminService.SetPayoutMethod(req.Context(), ref, methodReq.Method, methodReq.Target)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(writer, err.Error(), http.StatusNotFound)
		return
	} else if err != nil {
		http.Error(writer, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writer.WriteHeader(http.StatusOK)
}
