package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/gitshopapp/storefront/internal/db"
	"github.com/gitshopapp/storefront/internal/events"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/metrics"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/observability"
)

type DeliveryInput struct {
	RefCode        string
	BeingDelivered *bool
	Received       *bool
}

// AdminService holds the back-office actions on paid orders.
type AdminService struct {
	store     db.Store
	publisher events.Publisher
	metrics   *metrics.Recorder
	logger    *slog.Logger
}

func NewAdminService(store db.Store, publisher events.Publisher, recorder *metrics.Recorder, logger *slog.Logger) *AdminService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &AdminService{store: store, publisher: publisher, metrics: recorder, logger: logger}
}

func (s *AdminService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// GrantRequestedRefunds flips every pending refund request to granted and
// returns how many orders changed.
func (s *AdminService) GrantRequestedRefunds(ctx context.Context) (int64, error) {
	span, ctx := observability.StartSpan(ctx, "service.admin.grant_refunds", "GrantRequestedRefunds")
	defer span.Finish()

	var granted int64
	err := s.store.WithTx(ctx, func(tx db.Tx) error {
		var err error
		granted, err = tx.GrantRequestedRefunds(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to grant refunds: %w", err)
	}

	s.metrics.Refund("granted", granted)
	observability.MeterFromContext(ctx).Count("refund.granted", granted, sentry.WithAttributes(
		attribute.String("source", "admin"),
	))
	s.loggerFromContext(ctx).Info("requested refunds granted", "count", granted)

	if granted > 0 {
		err = s.publisher.Publish(ctx, events.Event{
			Type:       events.TypeRefundsGranted,
			Count:      granted,
			OccurredAt: time.Now().UTC(),
		})
		if err != nil {
			s.loggerFromContext(ctx).Warn("failed to publish refunds granted event", "error", err)
		}
	}
	return granted, nil
}

// UpdateDelivery sets the delivery flags of a paid order. A received order
// is also marked as being delivered.
func (s *AdminService) UpdateDelivery(ctx context.Context, input DeliveryInput) (*models.Order, error) {
	span, ctx := observability.StartSpan(ctx, "service.admin.update_delivery", "UpdateDelivery")
	defer span.Finish()

	input.RefCode = strings.TrimSpace(input.RefCode)
	if input.RefCode == "" {
		return nil, ErrOrderNotFound
	}
	if input.BeingDelivered == nil && input.Received == nil {
		return nil, UserError{Message: "Nothing to update"}
	}

	var owner string
	err := s.store.WithTx(ctx, func(tx db.Tx) error {
		order, err := tx.GetOrderByRefCode(ctx, input.RefCode)
		if err != nil {
			return err
		}
		owner = order.UserID
		return nil
	})
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up order: %w", err)
	}

	var order *models.Order
	err = s.store.WithUserTx(ctx, owner, func(tx db.Tx) error {
		var err error
		order, err = tx.GetOrderByRefCode(ctx, input.RefCode)
		if errors.Is(err, db.ErrNotFound) || (err == nil && !order.Ordered) {
			return ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to reload order: %w", err)
		}

		if input.BeingDelivered != nil {
			order.BeingDelivered = *input.BeingDelivered
		}
		if input.Received != nil {
			order.Received = *input.Received
			if order.Received {
				order.BeingDelivered = true
			}
		}
		return tx.SaveOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	s.loggerFromContext(ctx).Info("order delivery updated",
		"order_id", order.ID,
		"being_delivered", order.BeingDelivered,
		"received", order.Received,
	)
	return order, nil
}
