package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitshopapp/storefront/internal/events"
	"github.com/gitshopapp/storefront/internal/models"
)

func TestRefundService_RequestRefund(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	order := f.paid(t, "user-1", "jacket")

	refund, err := f.refunds.RequestRefund(ctx, RefundInput{
		RefCode: order.RefCode,
		Reason:  "Wrong size",
		Email:   "buyer@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, order.ID, refund.OrderID)
	assert.Equal(t, "Wrong size", refund.Reason)
	assert.False(t, refund.Accepted)

	stored := loadOrder(t, f.store, order.ID)
	assert.True(t, stored.RefundRequested)
	assert.False(t, stored.RefundGranted)
	assert.Equal(t, models.StateRefundRequested, stored.State())

	assert.Equal(t, []string{order.RefCode + ":buyer@example.com"}, f.notifier.refunds)
	assert.Contains(t, f.events.types(), events.TypeRefundRequested)

	// Any session may ask, but only once per order.
	_, err = f.refunds.RequestRefund(ctx, RefundInput{RefCode: order.RefCode, Reason: "Again", Email: "other@example.com"})
	require.ErrorIs(t, err, ErrRefundAlreadyRequested)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRefundService_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	order := f.paid(t, "user-1", "shirt")

	tests := []struct {
		name    string
		input   RefundInput
		wantErr error
		message string
	}{
		{
			name:    "unknown ref code",
			input:   RefundInput{RefCode: "aaaaaaaaaaaaaaaaaaaa", Reason: "Broken", Email: "buyer@example.com"},
			wantErr: ErrOrderNotFound,
			message: "This order does not exist.",
		},
		{
			name:    "blank ref code",
			input:   RefundInput{RefCode: " ", Reason: "Broken", Email: "buyer@example.com"},
			wantErr: ErrOrderNotFound,
			message: "This order does not exist.",
		},
		{
			name:    "invalid email",
			input:   RefundInput{RefCode: order.RefCode, Reason: "Broken", Email: "not-an-email"},
			wantErr: ErrValidation,
			message: "Please enter a valid email address",
		},
		{
			name:    "missing reason",
			input:   RefundInput{RefCode: order.RefCode, Email: "buyer@example.com"},
			wantErr: ErrValidation,
			message: "Please tell us why you want a refund",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.refunds.RequestRefund(ctx, tt.input)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.message, UserMessage(err))
		})
	}

	assert.False(t, loadOrder(t, f.store, order.ID).RefundRequested)
}

func TestAdminService_GrantRequestedRefunds(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	first := f.paid(t, "user-1", "shirt")
	second := f.paid(t, "user-2", "socks")
	untouched := f.paid(t, "user-3", "jacket")

	for _, order := range []*models.Order{first, second} {
		_, err := f.refunds.RequestRefund(ctx, RefundInput{RefCode: order.RefCode, Reason: "Changed my mind", Email: "buyer@example.com"})
		require.NoError(t, err)
	}

	granted, err := f.admin.GrantRequestedRefunds(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), granted)
	assert.Contains(t, f.events.types(), events.TypeRefundsGranted)

	for _, order := range []*models.Order{first, second} {
		stored := loadOrder(t, f.store, order.ID)
		assert.False(t, stored.RefundRequested)
		assert.True(t, stored.RefundGranted)
		assert.Equal(t, models.StateRefundGranted, stored.State())
	}
	assert.Equal(t, models.StatePaid, loadOrder(t, f.store, untouched.ID).State())

	granted, err = f.admin.GrantRequestedRefunds(ctx)
	require.NoError(t, err)
	assert.Zero(t, granted)

	_, err = f.refunds.RequestRefund(ctx, RefundInput{RefCode: first.RefCode, Reason: "Again", Email: "buyer@example.com"})
	assert.ErrorIs(t, err, ErrRefundAlreadyRequested)
}

func TestAdminService_UpdateDelivery(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	order := f.paid(t, "user-1", "shirt")
	yes := true

	updated, err := f.admin.UpdateDelivery(ctx, DeliveryInput{RefCode: order.RefCode, Received: &yes})
	require.NoError(t, err)
	assert.True(t, updated.Received)
	assert.True(t, updated.BeingDelivered)

	stored := loadOrder(t, f.store, order.ID)
	assert.True(t, stored.Received)

	_, err = f.admin.UpdateDelivery(ctx, DeliveryInput{RefCode: "missing", BeingDelivered: &yes})
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = f.admin.UpdateDelivery(ctx, DeliveryInput{RefCode: order.RefCode})
	assert.ErrorIs(t, err, ErrValidation)
}
