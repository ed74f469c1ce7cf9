package handler

import (
	"net/http"

	"github.com/frinder/internal/middleware"
	"github.com/frinder/internal/service"
)

// CheckoutHandler обслуживает save-pending-checkout. Вызывается до открытия оплаты, без авторизации.
type CheckoutHandler struct {
	checkout *service.CheckoutService
}

func NewCheckoutHandler(checkout *service.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout}
}

type savePendingRequest struct {
	FirebaseUID string `json:"firebaseUid"`
	WhopUserID  string `json:"whopUserId"`
}

type savePendingResponse struct {
	Success bool `json:"success"`
}

func (h *CheckoutHandler) SavePending(w http.ResponseWriter, r *http.Request) {
	var req savePendingRequest
	if !decode(w, r, &req) {
		return
	}
	if _, err := h.checkout.SavePending(r.Context(), req.FirebaseUID, req.WhopUserID); err != nil {
		writeServiceError(w, "save pending checkout", err)
		return
	}
	writeJSON(w, http.StatusOK, savePendingResponse{Success: true})
}

// Subscription: состояние подписки текущего пользователя.
func (h *CheckoutHandler) Subscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.checkout.Subscription(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, "get subscription", err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
