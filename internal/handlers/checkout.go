package handlers

import (
	"net/http"

	"github.com/gitshopapp/storefront/internal/services"
)

type checkoutRequest struct {
	UseDefaultShipping bool                  `json:"use_default_shipping"`
	Shipping           services.AddressInput `json:"shipping"`
	SetDefaultShipping bool                  `json:"set_default_shipping"`
	SameBillingAddress bool                  `json:"same_billing_address"`
	UseDefaultBilling  bool                  `json:"use_default_billing"`
	Billing            services.AddressInput `json:"billing"`
	SetDefaultBilling  bool                  `json:"set_default_billing"`
	PaymentOption      string                `json:"payment_option"`
}

type couponRequest struct {
	Code string `json:"code"`
}

func (h *Handlers) CheckoutForm(w http.ResponseWriter, r *http.Request) {
	form, err := h.checkoutService.Form(r.Context(), shopperID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, form)
}

// SubmitCheckout stores the addresses and tells the client which payment
// route to call next.
func (h *Handlers) SubmitCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.checkoutService.Checkout(r.Context(), services.CheckoutInput{
		UserID:             shopperID(r),
		UseDefaultShipping: req.UseDefaultShipping,
		Shipping:           req.Shipping,
		SetDefaultShipping: req.SetDefaultShipping,
		SameBillingAddress: req.SameBillingAddress,
		UseDefaultBilling:  req.UseDefaultBilling,
		Billing:            req.Billing,
		SetDefaultBilling:  req.SetDefaultBilling,
		PaymentOption:      req.PaymentOption,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, struct {
		*services.CheckoutResult
		Next string `json:"next"`
	}{CheckoutResult: result, Next: "/api/payment/" + string(result.PaymentMethod)})
}

func (h *Handlers) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	summary, err := h.couponService.ApplyCoupon(r.Context(), shopperID(r), req.Code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, cartResponse{Message: "Successfully added coupon", Cart: summary})
}
