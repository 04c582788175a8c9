package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/gitshopapp/storefront/internal/catalog"
	"github.com/gitshopapp/storefront/internal/db"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/metrics"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/observability"
)

type PaymentMethod string

const (
	PaymentMethodStripe PaymentMethod = "stripe"
	PaymentMethodPayPal PaymentMethod = "paypal"
)

// ParsePaymentMethod accepts the method name or its single-letter form.
func ParsePaymentMethod(option string) (PaymentMethod, error) {
	switch strings.ToLower(strings.TrimSpace(option)) {
	case "stripe", "s":
		return PaymentMethodStripe, nil
	case "paypal", "p":
		return PaymentMethodPayPal, nil
	default:
		return "", ErrInvalidPaymentMethod
	}
}

type AddressInput struct {
	Street    string `json:"street" validate:"required,max=100"`
	Apartment string `json:"apartment" validate:"max=100"`
	Country   string `json:"country" validate:"required,iso3166_1_alpha2"`
	Zip       string `json:"zip" validate:"required,max=20"`
}

func (a AddressInput) normalized() AddressInput {
	return AddressInput{
		Street:    strings.TrimSpace(a.Street),
		Apartment: strings.TrimSpace(a.Apartment),
		Country:   strings.ToUpper(strings.TrimSpace(a.Country)),
		Zip:       strings.TrimSpace(a.Zip),
	}
}

type CheckoutInput struct {
	UserID             string
	UseDefaultShipping bool
	Shipping           AddressInput
	SetDefaultShipping bool
	SameBillingAddress bool
	UseDefaultBilling  bool
	Billing            AddressInput
	SetDefaultBilling  bool
	PaymentOption      string
}

type CheckoutResult struct {
	Order         *OrderSummary `json:"order"`
	PaymentMethod PaymentMethod `json:"payment_method"`
}

type CheckoutForm struct {
	Order           *OrderSummary   `json:"order"`
	DefaultShipping *models.Address `json:"default_shipping,omitempty"`
	DefaultBilling  *models.Address `json:"default_billing,omitempty"`
}

var addressValidator = validator.New(validator.WithRequiredStructEnabled())

type CheckoutService struct {
	store   db.Store
	pricer  *catalog.Pricer
	metrics *metrics.Recorder
	logger  *slog.Logger
}

func NewCheckoutService(store db.Store, pricer *catalog.Pricer, recorder *metrics.Recorder, logger *slog.Logger) *CheckoutService {
	if pricer == nil {
		pricer = catalog.NewPricer()
	}
	return &CheckoutService{store: store, pricer: pricer, metrics: recorder, logger: logger}
}

func (s *CheckoutService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// Form returns the active order with the user's default addresses, if any.
func (s *CheckoutService) Form(ctx context.Context, userID string) (*CheckoutForm, error) {
	form := &CheckoutForm{}
	err := s.store.WithUserTx(ctx, userID, func(tx db.Tx) error {
		order, err := activeOrder(ctx, tx, userID)
		if err != nil {
			return err
		}
		form.Order = summarize(s.pricer, order)

		if form.DefaultShipping, err = optionalDefault(ctx, tx, userID, models.AddressShipping); err != nil {
			return err
		}
		form.DefaultBilling, err = optionalDefault(ctx, tx, userID, models.AddressBilling)
		return err
	})
	if err != nil {
		return nil, err
	}
	return form, nil
}

// Checkout resolves shipping and billing addresses, snapshots them onto the
// active order and hands back the chosen payment method. Nothing is written
// unless every step succeeds.
func (s *CheckoutService) Checkout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	span, ctx := observability.StartSpan(ctx, "service.checkout.submit", "Checkout")
	defer span.Finish()

	var (
		order  *models.Order
		method PaymentMethod
	)
	err := withUserTx(ctx, s.store, input.UserID, func(tx db.Tx) error {
		active, err := activeOrder(ctx, tx, input.UserID)
		if err != nil {
			return err
		}
		if len(active.Items) == 0 {
			return ErrEmptyOrder
		}

		shipping, err := s.resolveAddress(ctx, tx, input.UserID, models.AddressShipping, input.UseDefaultShipping, input.Shipping, input.SetDefaultShipping)
		if err != nil {
			return err
		}

		var billing *models.Address
		if input.SameBillingAddress {
			billing = &models.Address{
				UserID:    input.UserID,
				Street:    shipping.Street,
				Apartment: shipping.Apartment,
				Country:   shipping.Country,
				Zip:       shipping.Zip,
				Type:      models.AddressBilling,
			}
			if err := tx.CreateAddress(ctx, billing); err != nil {
				return err
			}
		} else {
			billing, err = s.resolveAddress(ctx, tx, input.UserID, models.AddressBilling, input.UseDefaultBilling, input.Billing, input.SetDefaultBilling)
			if err != nil {
				return err
			}
		}

		active.ShippingAddress = shipping.Snapshot()
		active.BillingAddress = billing.Snapshot()
		if err := tx.SaveOrder(ctx, active); err != nil {
			return err
		}

		method, err = ParsePaymentMethod(input.PaymentOption)
		if err != nil {
			return err
		}
		order = active
		return nil
	})
	if err != nil {
		s.metrics.Checkout(checkoutOutcome(err))
		return nil, err
	}

	s.metrics.Checkout("ok")
	s.loggerFromContext(ctx).Info("checkout completed", "user_id", input.UserID, "order_id", order.ID, "payment_method", method)
	return &CheckoutResult{Order: summarize(s.pricer, order), PaymentMethod: method}, nil
}

func (s *CheckoutService) resolveAddress(ctx context.Context, tx db.Tx, userID string, addressType models.AddressType, useDefault bool, input AddressInput, setDefault bool) (*models.Address, error) {
	if useDefault {
		address, err := tx.GetDefaultAddress(ctx, userID, addressType)
		if errors.Is(err, db.ErrNotFound) {
			return nil, &AddressError{Type: addressType, Err: ErrNoDefaultAddress}
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get default %s address: %w", addressType, err)
		}
		return address, nil
	}

	input = input.normalized()
	if err := validateAddress(addressType, input); err != nil {
		return nil, err
	}

	if setDefault {
		if err := tx.ClearDefaultAddress(ctx, userID, addressType); err != nil {
			return nil, err
		}
	}

	address := &models.Address{
		UserID:    userID,
		Street:    input.Street,
		Apartment: input.Apartment,
		Country:   input.Country,
		Zip:       input.Zip,
		Type:      addressType,
		Default:   setDefault,
	}
	if err := tx.CreateAddress(ctx, address); err != nil {
		return nil, err
	}
	return address, nil
}

func validateAddress(addressType models.AddressType, input AddressInput) error {
	err := addressValidator.Struct(input)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return fmt.Errorf("failed to validate %s address: %w", addressType, err)
	}
	for _, fieldErr := range validationErrs {
		if fieldErr.Tag() == "required" {
			return &AddressError{Type: addressType, Err: ErrIncompleteAddress}
		}
	}

	fieldErr := validationErrs[0]
	switch fieldErr.Tag() {
	case "iso3166_1_alpha2":
		return UserError{Message: fmt.Sprintf("Please choose a valid %s country", addressType)}
	default:
		return UserError{Message: fmt.Sprintf("The %s address %s is too long", addressType, strings.ToLower(fieldErr.Field()))}
	}
}

func optionalDefault(ctx context.Context, tx db.Tx, userID string, addressType models.AddressType) (*models.Address, error) {
	address, err := tx.GetDefaultAddress(ctx, userID, addressType)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get default %s address: %w", addressType, err)
	}
	return address, nil
}

func checkoutOutcome(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}
