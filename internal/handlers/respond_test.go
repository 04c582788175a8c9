package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gitshopapp/storefront/internal/payment"
	"github.com/gitshopapp/storefront/internal/services"
)

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "not found", err: services.ErrItemNotFound, wantStatus: http.StatusNotFound, wantCode: "not_found"},
		{name: "validation", err: fmt.Errorf("checkout: %w", services.ErrInvalidPaymentMethod), wantStatus: http.StatusUnprocessableEntity, wantCode: "invalid"},
		{name: "user error", err: services.UserError{Message: "bad country"}, wantStatus: http.StatusUnprocessableEntity, wantCode: "invalid"},
		{name: "conflict", err: services.ErrOrderAlreadyPaid, wantStatus: http.StatusConflict, wantCode: "conflict"},
		{name: "gateway", err: payment.NewError(payment.KindConnectivity, "", nil), wantStatus: http.StatusPaymentRequired, wantCode: "connectivity"},
		{name: "malformed", err: fmt.Errorf("%w: eof", errMalformedBody), wantStatus: http.StatusBadRequest, wantCode: "bad_request"},
		{name: "unexpected", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantCode: "internal"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			status, code := statusFor(tt.err)
			if status != tt.wantStatus || code != tt.wantCode {
				t.Fatalf("expected %d/%s, got %d/%s", tt.wantStatus, tt.wantCode, status, code)
			}
		})
	}
}

func TestWriteError_HidesInternalDetails(t *testing.T) {
	t.Parallel()

	h := &Handlers{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	rec := httptest.NewRecorder()

	h.writeError(rec, req, errors.New("pq: relation \"orders\" does not exist"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if strings.Contains(body.Error, "relation") {
		t.Fatalf("expected internal error to be hidden, got %q", body.Error)
	}
	if body.Error != "A serious error occurred. We have been notified." {
		t.Fatalf("unexpected message %q", body.Error)
	}
}

func TestDecodeJSON_RejectsUnknownFields(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/api/coupon", strings.NewReader(`{"code":"SAVE5","amount":100}`))
	rec := httptest.NewRecorder()

	var dest couponRequest
	err := decodeJSON(rec, req, &dest)
	if !errors.Is(err, errMalformedBody) {
		t.Fatalf("expected malformed body error, got %v", err)
	}
}
