// Package stripe provides the Stripe card gateway.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/gitshopapp/storefront/internal/observability"
	"github.com/gitshopapp/storefront/internal/payment"
)

type Config struct {
	SecretKey         string
	Timeout           time.Duration
	MaxNetworkRetries int64
}

// Gateway charges card payment methods through confirmed PaymentIntents.
type Gateway struct {
	client *stripe.Client
}

var _ payment.Gateway = (*Gateway)(nil)

func NewGateway(cfg Config) *Gateway {
	backends := stripe.NewBackendsWithConfig(&stripe.BackendConfig{
		HTTPClient:        observability.NewHTTPClient(cfg.Timeout),
		MaxNetworkRetries: stripe.Int64(cfg.MaxNetworkRetries),
	})

	return &Gateway{
		client: stripe.NewClient(cfg.SecretKey, stripe.WithBackends(backends)),
	}
}

// CreateCharge confirms a PaymentIntent for the token in a single request.
// Charges that would need further customer action fail as declines.
func (g *Gateway) CreateCharge(ctx context.Context, req payment.ChargeRequest) (*payment.Charge, error) {
	if ctx == nil {
		return nil, payment.NewError(payment.KindUnexpected, "", fmt.Errorf("context is required"))
	}
	if req.AmountCents <= 0 {
		return nil, payment.NewError(payment.KindInvalidRequest, "", fmt.Errorf("amount must be positive, got %d", req.AmountCents))
	}

	params := &stripe.PaymentIntentCreateParams{
		Amount:                stripe.Int64(req.AmountCents),
		Currency:              stripe.String(req.Currency),
		PaymentMethod:         stripe.String(req.Token),
		PaymentMethodTypes:    stripe.StringSlice([]string{"card"}),
		Confirm:               stripe.Bool(true),
		ErrorOnRequiresAction: stripe.Bool(true),
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	intent, err := g.client.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return nil, classify(err)
	}

	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, payment.NewError(payment.KindUnexpected, "", fmt.Errorf("payment intent %s finished with status %s", intent.ID, intent.Status))
	}

	return &payment.Charge{
		ID:          intent.ID,
		AmountCents: intent.Amount,
		Currency:    string(intent.Currency),
	}, nil
}

func (g *Gateway) RefundCharge(ctx context.Context, chargeID string) error {
	if ctx == nil {
		return payment.NewError(payment.KindUnexpected, "", fmt.Errorf("context is required"))
	}

	params := &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(chargeID),
	}
	params.SetIdempotencyKey("refund-" + chargeID)

	if _, err := g.client.V1Refunds.Create(ctx, params); err != nil {
		return classify(err)
	}
	return nil
}

// classify maps Stripe and transport errors onto payment error kinds.
func classify(err error) *payment.GatewayError {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.Type == stripe.ErrorTypeCard:
			return payment.NewError(payment.KindDeclined, stripeErr.Msg, err)
		case stripeErr.HTTPStatusCode == http.StatusTooManyRequests || stripeErr.Code == stripe.ErrorCodeRateLimit:
			return payment.NewError(payment.KindRateLimited, "", err)
		case stripeErr.HTTPStatusCode == http.StatusUnauthorized:
			return payment.NewError(payment.KindAuthFailure, "", err)
		case stripeErr.Type == stripe.ErrorTypeInvalidRequest:
			return payment.NewError(payment.KindInvalidRequest, "", err)
		default:
			return payment.NewError(payment.KindGeneric, "", err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return payment.NewError(payment.KindConnectivity, "", err)
	}

	return payment.NewError(payment.KindUnexpected, "", err)
}
