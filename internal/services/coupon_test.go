package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCouponService_ApplyCoupon(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	_, err := f.cart.AddItem(ctx, "user-1", "shirt")
	require.NoError(t, err)

	summary, err := f.coupons.ApplyCoupon(ctx, "user-1", "SAVE5")
	require.NoError(t, err)
	require.NotNil(t, summary.Order.Coupon)
	assert.Equal(t, "SAVE5", summary.Order.Coupon.Code)
	assert.Equal(t, "9.99", summary.Subtotal.StringFixed(2))
	assert.Equal(t, "5.00", summary.Discount.StringFixed(2))
	assert.Equal(t, "4.99", summary.Total.StringFixed(2))
	assert.Equal(t, int64(499), summary.TotalCents)
}

func TestCouponService_RejectsCouponExceedingTotal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	_, err := f.cart.AddItem(ctx, "user-1", "socks")
	require.NoError(t, err)

	_, err = f.coupons.ApplyCoupon(ctx, "user-1", "SAVE5")
	require.ErrorIs(t, err, ErrInvalidCoupon)
	assert.ErrorIs(t, err, ErrValidation)

	summary, err := f.cart.GetCart(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, summary.Order.Coupon)
	assert.Equal(t, "3.00", summary.Total.StringFixed(2))
}

func TestCouponService_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	_, err := f.coupons.ApplyCoupon(ctx, "user-1", "SAVE5")
	assert.ErrorIs(t, err, ErrNoActiveOrder)

	_, err = f.cart.AddItem(ctx, "user-1", "jacket")
	require.NoError(t, err)

	for _, code := range []string{"", "  ", "NOPE"} {
		_, err = f.coupons.ApplyCoupon(ctx, "user-1", code)
		assert.ErrorIs(t, err, ErrCouponNotFound, "code %q", code)
	}
}
