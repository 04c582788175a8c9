package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/gitshopapp/storefront/internal/services"
)

type paymentRequest struct {
	Token   string `json:"token"`
	OrderID string `json:"order_id"`
	Email   string `json:"email"`
}

// Pay charges the active order, or the one named in the body, with the
// method chosen at checkout.
func (h *Handlers) Pay(w http.ResponseWriter, r *http.Request) {
	method, err := services.ParsePaymentMethod(mux.Vars(r)["method"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if method != services.PaymentMethodStripe {
		h.writeJSON(w, r, http.StatusNotImplemented, errorResponse{
			Error: "This payment option is not available yet",
			Code:  "not_implemented",
		})
		return
	}

	var req paymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	var orderID uuid.UUID
	if req.OrderID != "" {
		orderID, err = uuid.Parse(req.OrderID)
		if err != nil {
			h.writeError(w, r, services.ErrOrderNotFound)
			return
		}
	}

	result, err := h.paymentService.Charge(r.Context(), services.ChargeInput{
		UserID:       shopperID(r),
		OrderID:      orderID,
		Token:        req.Token,
		ReceiptEmail: req.Email,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, struct {
		Message string `json:"message"`
		*services.ChargeResult
	}{Message: "Your order was successful!", ChargeResult: result})
}
