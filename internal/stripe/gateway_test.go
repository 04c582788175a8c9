package stripe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/stripe/stripe-go/v84"

	"github.com/gitshopapp/storefront/internal/payment"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		want    payment.ErrorKind
		wantMsg string
	}{
		{
			name:    "card error",
			err:     &stripe.Error{Type: stripe.ErrorTypeCard, Msg: "Your card was declined.", HTTPStatusCode: http.StatusPaymentRequired},
			want:    payment.KindDeclined,
			wantMsg: "Your card was declined.",
		},
		{
			name: "rate limited",
			err:  &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, HTTPStatusCode: http.StatusTooManyRequests},
			want: payment.KindRateLimited,
		},
		{
			name: "bad api key",
			err:  &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, HTTPStatusCode: http.StatusUnauthorized},
			want: payment.KindAuthFailure,
		},
		{
			name: "invalid parameters",
			err:  &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, HTTPStatusCode: http.StatusBadRequest},
			want: payment.KindInvalidRequest,
		},
		{
			name: "stripe api error",
			err:  &stripe.Error{Type: stripe.ErrorTypeAPI, HTTPStatusCode: http.StatusInternalServerError},
			want: payment.KindGeneric,
		},
		{
			name: "wrapped stripe error",
			err:  fmt.Errorf("request failed: %w", &stripe.Error{Type: stripe.ErrorTypeCard}),
			want: payment.KindDeclined,
		},
		{
			name: "network failure",
			err:  &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
			want: payment.KindConnectivity,
		},
		{
			name: "deadline exceeded",
			err:  fmt.Errorf("post: %w", context.DeadlineExceeded),
			want: payment.KindConnectivity,
		},
		{
			name: "anything else",
			err:  errors.New("boom"),
			want: payment.KindUnexpected,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := classify(tt.err)
			if got.Kind != tt.want {
				t.Fatalf("expected kind %s, got %s", tt.want, got.Kind)
			}
			if tt.wantMsg != "" && got.UserMessage() != tt.wantMsg {
				t.Fatalf("expected message %q, got %q", tt.wantMsg, got.UserMessage())
			}
		})
	}
}

func TestCreateChargeRejectsNonPositiveAmount(t *testing.T) {
	t.Parallel()

	gateway := NewGateway(Config{SecretKey: "sk_test_123"})
	_, err := gateway.CreateCharge(context.Background(), payment.ChargeRequest{AmountCents: 0, Currency: "usd", Token: "pm_card_visa"})

	gatewayErr, ok := payment.AsGatewayError(err)
	if !ok {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if gatewayErr.Kind != payment.KindInvalidRequest {
		t.Fatalf("expected invalid request, got %s", gatewayErr.Kind)
	}
}
