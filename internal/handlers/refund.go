package handlers

import (
	"net/http"

	"github.com/gitshopapp/storefront/internal/services"
)

// RequestRefund needs no session; the ref code identifies the order.
func (h *Handlers) RequestRefund(w http.ResponseWriter, r *http.Request) {
	var req services.RefundInput
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	refund, err := h.refundService.RequestRefund(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusCreated, struct {
		Message  string `json:"message"`
		RefundID string `json:"refund_id"`
	}{Message: "Your request was received.", RefundID: refund.ID.String()})
}
