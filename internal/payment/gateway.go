// Package payment defines the card gateway contract and its classified failures.
package payment

import (
	"context"
	"errors"
	"fmt"
)

type ChargeRequest struct {
	AmountCents    int64
	Currency       string
	Token          string
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

type Charge struct {
	ID          string
	AmountCents int64
	Currency    string
}

// Gateway charges a card token. Implementations return *GatewayError for
// every failure so callers can choose a user message without inspecting
// provider types.
type Gateway interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	RefundCharge(ctx context.Context, chargeID string) error
}

type ErrorKind string

const (
	KindDeclined       ErrorKind = "declined"
	KindRateLimited    ErrorKind = "rate_limited"
	KindInvalidRequest ErrorKind = "invalid_request"
	KindAuthFailure    ErrorKind = "auth_failure"
	KindConnectivity   ErrorKind = "connectivity"
	KindGeneric        ErrorKind = "generic"
	KindUnexpected     ErrorKind = "unexpected"
)

type GatewayError struct {
	Kind ErrorKind
	// Message is the provider's own description, shown only for declines.
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment gateway %s: %v", e.Kind, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("payment gateway %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("payment gateway %s", e.Kind)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// UserMessage is safe to show to the shopper.
func (e *GatewayError) UserMessage() string {
	switch e.Kind {
	case KindDeclined:
		if e.Message != "" {
			return e.Message
		}
		return "Your card was declined."
	case KindRateLimited:
		return "Rate limit error"
	case KindInvalidRequest:
		return "Invalid parameters"
	case KindAuthFailure:
		return "Not authenticated"
	case KindConnectivity:
		return "Network Error"
	case KindGeneric:
		return "Something went wrong. You were not charged. Please try again."
	default:
		return "A serious error occurred. We have been notified."
	}
}

// Retryable reports whether the same request may succeed later.
func (e *GatewayError) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindConnectivity
}

func NewError(kind ErrorKind, message string, err error) *GatewayError {
	return &GatewayError{Kind: kind, Message: message, Err: err}
}

// AsGatewayError returns the classified failure carried by err, if any.
func AsGatewayError(err error) (*GatewayError, bool) {
	var gatewayErr *GatewayError
	if errors.As(err, &gatewayErr) {
		return gatewayErr, true
	}
	return nil, false
}
