package services

import (
	"errors"
	"fmt"

	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/payment"
)

// Error classes. Every error returned by the services wraps exactly one of
// these, or is a *payment.GatewayError.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
)

var (
	ErrNoActiveOrder          = fmt.Errorf("%w: no active order", ErrNotFound)
	ErrItemNotFound           = fmt.Errorf("%w: item does not exist", ErrNotFound)
	ErrItemNotInCart          = fmt.Errorf("%w: item not in cart", ErrNotFound)
	ErrCouponNotFound         = fmt.Errorf("%w: coupon does not exist", ErrNotFound)
	ErrOrderNotFound          = fmt.Errorf("%w: order does not exist", ErrNotFound)
	ErrNoDefaultAddress       = fmt.Errorf("%w: no default address", ErrNotFound)
	ErrIncompleteAddress      = fmt.Errorf("%w: required address fields missing", ErrValidation)
	ErrInvalidPaymentMethod   = fmt.Errorf("%w: invalid payment option", ErrValidation)
	ErrInvalidCoupon          = fmt.Errorf("%w: coupon would leave nothing to pay", ErrValidation)
	ErrNoBillingAddress       = fmt.Errorf("%w: order has no billing address", ErrValidation)
	ErrEmptyOrder             = fmt.Errorf("%w: order has nothing to pay", ErrValidation)
	ErrMissingPaymentToken    = fmt.Errorf("%w: payment token is required", ErrValidation)
	ErrOrderAlreadyPaid       = fmt.Errorf("%w: order already paid", ErrConflict)
	ErrPaymentInProgress      = fmt.Errorf("%w: payment already in progress", ErrConflict)
	ErrOrderChanged           = fmt.Errorf("%w: order changed during payment", ErrConflict)
	ErrRefundAlreadyRequested = fmt.Errorf("%w: refund already requested", ErrConflict)
	ErrActiveOrderConflict    = fmt.Errorf("%w: concurrent active order", ErrConflict)
)

// UserError is a validation failure whose message is safe to show as is.
type UserError struct {
	Message string
}

func (e UserError) Error() string {
	return e.Message
}

func (e UserError) Is(target error) bool {
	return target == ErrValidation
}

// AddressError ties an address failure to the address type it concerns.
type AddressError struct {
	Type models.AddressType
	Err  error
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("%s address: %v", e.Type, e.Err)
}

func (e *AddressError) Unwrap() error {
	return e.Err
}

const genericFailureMessage = "A serious error occurred. We have been notified."

// UserMessage maps any service error to a message fit for the storefront.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	if gatewayErr, ok := payment.AsGatewayError(err); ok {
		return gatewayErr.UserMessage()
	}

	var userErr UserError
	if errors.As(err, &userErr) {
		return userErr.Message
	}

	var addressErr *AddressError
	if errors.As(err, &addressErr) {
		switch {
		case errors.Is(addressErr.Err, ErrNoDefaultAddress):
			return fmt.Sprintf("No default %s address available", addressErr.Type)
		case errors.Is(addressErr.Err, ErrIncompleteAddress):
			return fmt.Sprintf("Please fill in the required %s address fields", addressErr.Type)
		}
	}

	switch {
	case errors.Is(err, ErrNoActiveOrder):
		return "You do not have an active order"
	case errors.Is(err, ErrItemNotFound):
		return "This item does not exist"
	case errors.Is(err, ErrItemNotInCart):
		return "This item was not in your cart"
	case errors.Is(err, ErrCouponNotFound):
		return "This coupon does not exist"
	case errors.Is(err, ErrInvalidCoupon):
		return "This coupon cannot be applied to your order"
	case errors.Is(err, ErrOrderNotFound):
		return "This order does not exist."
	case errors.Is(err, ErrNoDefaultAddress):
		return "No default address available"
	case errors.Is(err, ErrIncompleteAddress):
		return "Please fill in the required address fields"
	case errors.Is(err, ErrInvalidPaymentMethod):
		return "Invalid payment option selected"
	case errors.Is(err, ErrNoBillingAddress):
		return "You have not added a billing address"
	case errors.Is(err, ErrEmptyOrder):
		return "Your cart is empty"
	case errors.Is(err, ErrMissingPaymentToken):
		return "Please provide your card details"
	case errors.Is(err, ErrOrderAlreadyPaid):
		return "This order has already been paid"
	case errors.Is(err, ErrPaymentInProgress):
		return "A payment for this order is already being processed"
	case errors.Is(err, ErrOrderChanged):
		return "Your cart changed while your payment was processed. You were not charged. Please review your cart and pay again."
	case errors.Is(err, ErrRefundAlreadyRequested):
		return "A refund has already been requested for this order"
	case errors.Is(err, ErrActiveOrderConflict):
		return "Your cart changed while we were updating it. Please try again."
	default:
		return genericFailureMessage
	}
}
