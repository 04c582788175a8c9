package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/gitshopapp/storefront/internal/db"
	"github.com/gitshopapp/storefront/internal/events"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/metrics"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/observability"
)

type RefundInput struct {
	RefCode string `json:"ref_code" validate:"required"`
	Reason  string `json:"reason" validate:"required,max=2000"`
	Email   string `json:"email" validate:"required,email"`
}

var refundValidator = validator.New(validator.WithRequiredStructEnabled())

// RefundService records refund requests. Orders are found by ref code alone,
// so a request does not need the buyer's session.
type RefundService struct {
	store     db.Store
	notifier  OrderNotifier
	publisher events.Publisher
	metrics   *metrics.Recorder
	logger    *slog.Logger
}

func NewRefundService(store db.Store, notifier OrderNotifier, publisher events.Publisher, recorder *metrics.Recorder, logger *slog.Logger) *RefundService {
	if notifier == nil {
		notifier = noopOrderNotifier{}
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &RefundService{
		store:     store,
		notifier:  notifier,
		publisher: publisher,
		metrics:   recorder,
		logger:    logger,
	}
}

func (s *RefundService) RequestRefund(ctx context.Context, input RefundInput) (*models.Refund, error) {
	span, ctx := observability.StartSpan(ctx, "service.refund.request", "RequestRefund")
	defer span.Finish()

	input.RefCode = strings.TrimSpace(input.RefCode)
	input.Reason = strings.TrimSpace(input.Reason)
	input.Email = strings.TrimSpace(input.Email)
	if err := validateRefund(input); err != nil {
		s.metrics.Refund("rejected", 1)
		return nil, err
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
		s.metrics.Refund("not_found", 1)
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up order: %w", err)
	}

	// Mutate under the owner's lock so a concurrent request for the same order
	// sees the flag set by the first.
	var (
		order  *models.Order
		refund *models.Refund
	)
	err = s.store.WithUserTx(ctx, owner, func(tx db.Tx) error {
		var err error
		order, err = tx.GetOrderByRefCode(ctx, input.RefCode)
		if errors.Is(err, db.ErrNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to reload order: %w", err)
		}
		if !order.Ordered {
			return ErrOrderNotFound
		}
		if order.RefundRequested || order.RefundGranted {
			return ErrRefundAlreadyRequested
		}

		refund = &models.Refund{
			OrderID: order.ID,
			Reason:  input.Reason,
			Email:   input.Email,
		}
		if err := tx.CreateRefund(ctx, refund); err != nil {
			return err
		}
		order.RefundRequested = true
		return tx.SaveOrder(ctx, order)
	})
	if err != nil {
		if errors.Is(err, ErrRefundAlreadyRequested) {
			s.metrics.Refund("duplicate", 1)
		}
		return nil, err
	}

	s.metrics.Refund("requested", 1)
	logger := logging.FromContext(ctx, s.logger).With("order_id", order.ID, "ref_code", order.RefCode)
	logger.Info("refund requested")

	if err := s.notifier.RefundRequested(ctx, order, refund); err != nil {
		logger.Warn("failed to send refund acknowledgement", "error", err)
	}
	err = s.publisher.Publish(ctx, events.Event{
		Type:       events.TypeRefundRequested,
		OrderID:    order.ID.String(),
		UserID:     order.UserID,
		RefCode:    order.RefCode,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		logger.Warn("failed to publish refund requested event", "error", err)
	}

	return refund, nil
}

func validateRefund(input RefundInput) error {
	err := refundValidator.Struct(input)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return fmt.Errorf("failed to validate refund request: %w", err)
	}
	switch fieldErr := validationErrs[0]; {
	case fieldErr.Field() == "RefCode":
		return ErrOrderNotFound
	case fieldErr.Field() == "Email":
		return UserError{Message: "Please enter a valid email address"}
	case fieldErr.Tag() == "required":
		return UserError{Message: "Please tell us why you want a refund"}
	default:
		return UserError{Message: "The refund reason is too long"}
	}
}
