package handlers

import (
	"net/http"

	"github.com/Anilsharma012/vastralaya4-sub000/internal"
	"github.com/Anilsharma012/vastralaya4-sub000/internal/service"
	"go.uber.org/zap"
)

type ReferralHandler struct {
	referralService service.ReferralService
	logger          *zap.Logger
}

type AttributeRequest struct {
	NewUserID    internal.UserID `json:"new_user_id"`
	ReferralCode string          `json:"referral_code"`
}

type AttributeResponse struct {
	ReferralID *string `json:"referral_id"`
}

// Attribute is the internal call used by the signup collaborator. An
// unresolvable or empty code answers with a null referral id, not an error.
func (h *ReferralHandler) Attribute(writer http.ResponseWriter, req *http.Request) {
	var attributeReq AttributeRequest
	if !unmarshalRequest(writer, req, &attributeReq) {
		return
	}
	if attributeReq.NewUserID == 0 {
		http.Error(writer, "New user id is required", http.StatusBadRequest)
		return
	}
	referral, err := h.referralService.Attribute(req.Context(), attributeReq.NewUserID, attributeReq.ReferralCode)
	if err != nil {
		h.logger.Error("attribute referral error", zap.Error(err))
		http.Error(writer, "Internal server error", http.StatusInternalServerError)
		return
	}
	var response AttributeResponse
	if referral != nil {
		id := referral.ID.String()
		response.ReferralID = &id
	}
	marshalResponse(writer, http.StatusOK, response)
}

// OrderEvent is the hook invoked by the order-lifecycle collaborator on
// every status transition. Uninteresting statuses are acknowledged and
// ignored.
func (h *ReferralHandler) OrderEvent(writer http.ResponseWriter, req *http.Request) {
	var event internal.OrderEvent
	if !unmarshalRequest(writer, req, &event) {
		return
	}
	if event.OrderID == "" {
		http.Error(writer, "Order id is required", http.StatusBadRequest)
		return
	}
	if event.UserID == 0 {
		http.Error(writer, "User id is required", http.StatusBadRequest)
		return
	}
	if event.Total < 0 {
		http.Error(writer, "Total must not be negative", http.StatusBadRequest)
		return
	}
	err := h.referralService.HandleOrderEvent(req.Context(), event)
	if err != nil {
		h.logger.Error("handle order event error",
			zap.String("order_id", event.OrderID), zap.Error(err))
		http.Error(writer, "Internal server error", http.StatusInternalServerError)
		return
	}
	writer.WriteHeader(http.StatusOK)
}

func (h *ReferralHandler) ListReferrals(writer http.ResponseWriter, req *http.Request) {
	ref, ok := referrerFromURL(writer, req)
	if !ok {
		return
	}
	h.writeReferrals(writer, req, ref)
}

func (h *ReferralHandler) GetOwnReferrals(writer http.ResponseWriter, req *http.Request) {
	userID := GetUserIDFromContext(req.Context())
	h.writeReferrals(writer, req, internal.ReferrerRef{Kind: internal.KindUser, ID: int(userID)})
}

func (h *ReferralHandler) writeReferrals(writer http.ResponseWriter, req *http.Request, ref internal.ReferrerRef) {
	referrals, err := h.referralService.GetReferralsByReferrer(req.Context(), ref)
	if err != nil {
		h.logger.Error("get referrals error", zap.Error(err))
		http.Error(writer, "Internal server error", http.StatusInternalServerError)
		return
	}
	if len(referrals) == 0 {
		writer.WriteHeader(http.StatusNoContent)
		return
	}
	marshalResponse(writer, http.StatusOK, referrals)
}
