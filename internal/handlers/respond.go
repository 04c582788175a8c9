package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gitshopapp/storefront/internal/payment"
	"github.com/gitshopapp/storefront/internal/services"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

var errMalformedBody = errors.New("malformed request body")

func (h *Handlers) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.loggerFromContext(r.Context()).Error("failed to encode response", "error", err)
	}
}

// writeError maps a service error to its status and a message the shopper
// can read. Internal details only reach the log.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	logger := h.loggerFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err, "status", status)
	} else {
		logger.Info("request rejected", "error", err, "status", status)
	}

	message := services.UserMessage(err)
	if errors.Is(err, errMalformedBody) {
		message = "Malformed request body"
	}
	h.writeJSON(w, r, status, errorResponse{Error: message, Code: code})
}

func statusFor(err error) (int, string) {
	if gatewayErr, ok := payment.AsGatewayError(err); ok {
		return http.StatusPaymentRequired, string(gatewayErr.Kind)
	}
	switch {
	case errors.Is(err, errMalformedBody):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, services.ErrValidation):
		return http.StatusUnprocessableEntity, "invalid"
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	return nil
}
