package services

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitshopapp/storefront/internal/cache"
	"github.com/gitshopapp/storefront/internal/db"
	"github.com/gitshopapp/storefront/internal/events"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/payment"
)

var refCodePattern = regexp.MustCompile(`^[a-z0-9]{20}$`)

func TestPaymentService_Charge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.checkedOut(t, "user-1", "shirt", "shirt")

	result, err := f.payments.Charge(ctx, ChargeInput{UserID: "user-1", Token: "pm_card_visa", ReceiptEmail: "buyer@example.com"})
	require.NoError(t, err)

	order := result.Order.Order
	assert.True(t, order.Ordered)
	assert.False(t, order.OrderedAt.IsZero())
	assert.Regexp(t, refCodePattern, order.RefCode)
	assert.Equal(t, models.StatePaid, result.Order.State)
	require.NotNil(t, result.Payment)
	assert.Equal(t, int64(1998), result.Payment.AmountCents)
	for _, line := range order.Items {
		assert.True(t, line.Ordered)
	}

	require.Len(t, f.gateway.charges, 1)
	charge := f.gateway.charges[0]
	assert.Equal(t, int64(1998), charge.AmountCents)
	assert.Equal(t, "usd", charge.Currency)
	assert.Equal(t, "pm_card_visa", charge.Token)
	assert.Equal(t, order.ID.String(), charge.Metadata["order_id"])
	assert.Equal(t, idempotencyKey(order.ID, "pm_card_visa", 1998), charge.IdempotencyKey)

	assert.Equal(t, []string{order.RefCode + ":buyer@example.com"}, f.notifier.paid)
	assert.Equal(t, []string{events.TypeOrderPaid}, f.events.types())

	_, err = f.cart.GetCart(ctx, "user-1")
	assert.ErrorIs(t, err, ErrNoActiveOrder, "a paid order is no longer the cart")

	stored := loadOrder(t, f.store, order.ID)
	require.NotNil(t, stored.Payment)
	assert.Equal(t, result.Payment.ChargeID, stored.Payment.ChargeID)
}

func TestPaymentService_ChargeTwice(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	order := f.paid(t, "user-1", "shirt")

	_, err := f.payments.Charge(ctx, ChargeInput{UserID: "user-1", OrderID: order.ID, Token: "pm_card_visa"})
	require.ErrorIs(t, err, ErrOrderAlreadyPaid)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 1, f.gateway.chargeCount())

	_, err = f.payments.Charge(ctx, ChargeInput{UserID: "user-1", Token: "pm_card_visa"})
	assert.ErrorIs(t, err, ErrNoActiveOrder)
}

func TestPaymentService_GatewayFailureLeavesOrderUnpaid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		kind    payment.ErrorKind
		message string
	}{
		{
			name:    "connectivity",
			err:     payment.NewError(payment.KindConnectivity, "", errors.New("dial tcp: timeout")),
			kind:    payment.KindConnectivity,
			message: "Network Error",
		},
		{
			name:    "declined",
			err:     payment.NewError(payment.KindDeclined, "Your card has insufficient funds.", nil),
			kind:    payment.KindDeclined,
			message: "Your card has insufficient funds.",
		},
		{
			name:    "rate limited",
			err:     payment.NewError(payment.KindRateLimited, "", nil),
			kind:    payment.KindRateLimited,
			message: "Rate limit error",
		},
		{
			name:    "unclassified",
			err:     errors.New("boom"),
			kind:    payment.KindUnexpected,
			message: "A serious error occurred. We have been notified.",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			f := newFixture(t)
			summary := f.checkedOut(t, "user-1", "shirt")
			f.gateway.err = tt.err

			_, err := f.payments.Charge(ctx, ChargeInput{UserID: "user-1", Token: "pm_card_visa"})
			require.Error(t, err)
			gatewayErr, ok := payment.AsGatewayError(err)
			require.True(t, ok)
			assert.Equal(t, tt.kind, gatewayErr.Kind)
			assert.Equal(t, tt.message, UserMessage(err))

			stored := loadOrder(t, f.store, summary.Order.ID)
			assert.False(t, stored.Ordered)
			assert.Nil(t, stored.Payment)
			assert.Empty(t, stored.RefCode)
			assert.Empty(t, f.events.types())

			// The lock is released, so a retry reaches the gateway.
			f.gateway.err = nil
			_, err = f.payments.Charge(ctx, ChargeInput{UserID: "user-1", Token: "pm_card_visa"})
			require.NoError(t, err)
		})
	}
}

func TestPaymentService_Preconditions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("missing token", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.checkedOut(t, "user-1", "shirt")

		_, err := f.payments.Charge(ctx, ChargeInput{UserID: "user-1", Token: "  "})
		assert.ErrorIs(t, err, ErrMissingPaymentToken)
		assert.Zero(t, f.gateway.chargeCount())
	})

	t.Run("no billing address", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.cart.AddItem(ctx, "user-1", "shirt")
		require.NoError(t, err)

		_, err = f.payments.Charge(ctx, ChargeInput{UserID: "user-1", Token: "pm_card_visa"})
		assert.ErrorIs(t, err, ErrNoBillingAddress)
		assert.Equal(t, "You have not added a billing address", UserMessage(err))
		assert.Zero(t, f.gateway.chargeCount())
	})

	t.Run("emptied cart", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.checkedOut(t, "user-1", "shirt")
		_, err := f.cart.RemoveItem(ctx, "user-1", "shirt")
		require.NoError(t, err)

		_, err = f.payments.Charge(ctx, ChargeInput{UserID: "user-1", Token: "pm_card_visa"})
		assert.ErrorIs(t, err, ErrEmptyOrder)
		assert.Zero(t, f.gateway.chargeCount())
	})

	t.Run("someone else's order", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		summary := f.checkedOut(t, "user-1", "shirt")

		_, err := f.payments.Charge(ctx, ChargeInput{UserID: "user-2", OrderID: summary.Order.ID, Token: "pm_card_visa"})
		assert.ErrorIs(t, err, ErrOrderNotFound)
		assert.Zero(t, f.gateway.chargeCount())
	})

	t.Run("payment in progress", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		summary := f.checkedOut(t, "user-1", "shirt")

		acquired, err := f.cache.SetNX(ctx, cache.PaymentLockKey(summary.Order.ID.String()), "other", paymentLockTTL)
		require.NoError(t, err)
		require.True(t, acquired)

		_, err = f.payments.Charge(ctx, ChargeInput{UserID: "user-1", Token: "pm_card_visa"})
		assert.ErrorIs(t, err, ErrPaymentInProgress)
		assert.ErrorIs(t, err, ErrConflict)
		assert.Zero(t, f.gateway.chargeCount())
	})
}

func TestPaymentService_RefundsChargeWhenFinalizeFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	summary := f.checkedOut(t, "user-1", "shirt")

	// A payment already holding the charge id makes the finalizing insert fail.
	require.NoError(t, f.store.WithTx(ctx, func(tx db.Tx) error {
		other := &models.Order{UserID: "user-2"}
		if err := tx.CreateOrder(ctx, other); err != nil {
			return err
		}
		return tx.CreatePayment(ctx, &models.Payment{ChargeID: "pi_dup", UserID: "user-2", OrderID: other.ID, AmountCents: 100})
	}))
	f.gateway.chargeID = "pi_dup"

	_, err := f.payments.Charge(ctx, ChargeInput{UserID: "user-1", Token: "pm_card_visa"})
	require.Error(t, err)
	gatewayErr, ok := payment.AsGatewayError(err)
	require.True(t, ok)
	assert.Equal(t, payment.KindGeneric, gatewayErr.Kind)
	assert.Equal(t, "Something went wrong. You were not charged. Please try again.", UserMessage(err))
	assert.Equal(t, []string{"pi_dup"}, f.gateway.refunds)

	stored := loadOrder(t, f.store, summary.Order.ID)
	assert.False(t, stored.Ordered)
	assert.Empty(t, stored.RefCode)
	assert.Empty(t, f.notifier.paid)
}

func TestPaymentService_CartChangedDuringCharge(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		change    func(ctx context.Context, f *fixture) error
		retryCost int64
	}{
		{
			name: "item added",
			change: func(ctx context.Context, f *fixture) error {
				_, err := f.cart.AddItem(ctx, "user-1", "jacket")
				return err
			},
			retryCost: 5998,
		},
		{
			name: "unit removed",
			change: func(ctx context.Context, f *fixture) error {
				_, err := f.cart.RemoveItem(ctx, "user-1", "shirt")
				return err
			},
			retryCost: 999,
		},
		{
			name: "coupon applied",
			change: func(ctx context.Context, f *fixture) error {
				_, err := f.coupons.ApplyCoupon(ctx, "user-1", "SAVE5")
				return err
			},
			retryCost: 1498,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			f := newFixture(t)
			summary := f.checkedOut(t, "user-1", "shirt", "shirt")
			f.gateway.during = func() {
				require.NoError(t, tt.change(ctx, f))
			}

			_, err := f.payments.Charge(ctx, ChargeInput{UserID: "user-1", Token: "pm_card_visa"})
			require.ErrorIs(t, err, ErrOrderChanged)
			assert.ErrorIs(t, err, ErrConflict)
			assert.Contains(t, UserMessage(err), "You were not charged")
			require.Len(t, f.gateway.refunds, 1, "the mismatched charge is refunded")

			stored := loadOrder(t, f.store, summary.Order.ID)
			assert.False(t, stored.Ordered)
			assert.Nil(t, stored.Payment)
			assert.Empty(t, stored.RefCode)
			for _, line := range stored.Items {
				assert.False(t, line.Ordered)
			}
			assert.Empty(t, f.notifier.paid)
			assert.Empty(t, f.events.types())

			f.gateway.during = nil
			result, err := f.payments.Charge(ctx, ChargeInput{UserID: "user-1", Token: "pm_card_visa"})
			require.NoError(t, err)
			assert.Equal(t, tt.retryCost, result.Payment.AmountCents)
			assert.Equal(t, 2, f.gateway.chargeCount())
			assert.NotEqual(t, f.gateway.charges[0].IdempotencyKey, f.gateway.charges[1].IdempotencyKey)
		})
	}
}

func TestIdempotencyKey(t *testing.T) {
	t.Parallel()

	orderID := uuid.New()
	assert.Equal(t, idempotencyKey(orderID, "pm_a", 999), idempotencyKey(orderID, "pm_a", 999))
	assert.NotEqual(t, idempotencyKey(orderID, "pm_a", 999), idempotencyKey(orderID, "pm_b", 999))
	assert.NotEqual(t, idempotencyKey(orderID, "pm_a", 999), idempotencyKey(uuid.New(), "pm_a", 999))
	assert.NotEqual(t, idempotencyKey(orderID, "pm_a", 999), idempotencyKey(orderID, "pm_a", 1998), "a changed cart is a new charge")
}

func TestNewRefCode(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{})
	for range 100 {
		code, err := newRefCode()
		require.NoError(t, err)
		require.Regexp(t, refCodePattern, code)
		seen[code] = struct{}{}
	}
	assert.Len(t, seen, 100)
}

func loadOrder(t *testing.T, store db.Store, id uuid.UUID) *models.Order {
	t.Helper()
	var order *models.Order
	require.NoError(t, store.WithTx(context.Background(), func(tx db.Tx) error {
		var err error
		order, err = tx.GetOrder(context.Background(), id)
		return err
	}))
	return order
}
