package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"github.com/gitshopapp/storefront/internal/cache"
	"github.com/gitshopapp/storefront/internal/catalog"
	"github.com/gitshopapp/storefront/internal/db"
	"github.com/gitshopapp/storefront/internal/events"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/metrics"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/observability"
	"github.com/gitshopapp/storefront/internal/payment"
)

const (
	paymentLockTTL  = 2 * time.Minute
	refCodeAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

type ChargeInput struct {
	UserID string
	// OrderID selects a specific order; the zero value means the active order.
	OrderID uuid.UUID
	Token   string
	// ReceiptEmail receives the order confirmation when set.
	ReceiptEmail string
}

type ChargeResult struct {
	Order   *OrderSummary   `json:"order"`
	Payment *models.Payment `json:"payment"`
}

type PaymentDependencies struct {
	Store     db.Store
	Gateway   payment.Gateway
	Locks     cache.Provider
	Pricer    *catalog.Pricer
	Notifier  OrderNotifier
	Publisher events.Publisher
	Metrics   *metrics.Recorder
	Currency  string
	Logger    *slog.Logger
}

// PaymentService charges an order at most once and finalizes it atomically.
type PaymentService struct {
	store     db.Store
	gateway   payment.Gateway
	locks     cache.Provider
	pricer    *catalog.Pricer
	notifier  OrderNotifier
	publisher events.Publisher
	metrics   *metrics.Recorder
	currency  string
	logger    *slog.Logger
}

func NewPaymentService(deps PaymentDependencies) (*PaymentService, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("payment gateway is required")
	}
	if deps.Locks == nil {
		return nil, fmt.Errorf("lock provider is required")
	}
	if deps.Pricer == nil {
		deps.Pricer = catalog.NewPricer()
	}
	if deps.Notifier == nil {
		deps.Notifier = noopOrderNotifier{}
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NoopPublisher{}
	}
	if deps.Currency == "" {
		deps.Currency = "usd"
	}

	return &PaymentService{
		store:     deps.Store,
		gateway:   deps.Gateway,
		locks:     deps.Locks,
		pricer:    deps.Pricer,
		notifier:  deps.Notifier,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		currency:  deps.Currency,
		logger:    deps.Logger,
	}, nil
}

func (s *PaymentService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// Charge pays for an order with a card token. Preconditions are checked
// before and again after taking the per-order lock; the gateway is only
// contacted while the lock is held. A gateway failure leaves the order
// untouched.
func (s *PaymentService) Charge(ctx context.Context, input ChargeInput) (*ChargeResult, error) {
	span := sentry.StartSpan(
		ctx,
		"service.payment.charge",
		sentry.WithOpName("service.payment"),
		sentry.WithDescription("Charge"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx).With("user_id", input.UserID)
	meter := observability.MeterFromContext(ctx)
	recordFailure := func(reason string) {
		s.metrics.Payment(reason, 0)
		observability.CountOutcome(ctx, "payment.charge", reason)
	}
	meter.Count("payment.charge.attempted", 1)

	input.Token = strings.TrimSpace(input.Token)
	if input.Token == "" {
		recordFailure("invalid")
		return nil, ErrMissingPaymentToken
	}

	order, amountCents, err := s.payableOrder(ctx, input)
	if err != nil {
		recordFailure(paymentRejection(err))
		return nil, err
	}
	logger = logger.With("order_id", order.ID)

	lockKey := cache.PaymentLockKey(order.ID.String())
	lockOwner := uuid.NewString()
	acquired, err := s.locks.SetNX(ctx, lockKey, lockOwner, paymentLockTTL)
	if err != nil {
		recordFailure("lock_failed")
		return nil, fmt.Errorf("failed to acquire payment lock: %w", err)
	}
	if !acquired {
		recordFailure("in_progress")
		return nil, ErrPaymentInProgress
	}
	defer func() {
		released, err := s.locks.Release(context.WithoutCancel(ctx), lockKey, lockOwner)
		if err != nil {
			logger.Warn("failed to release payment lock", "error", err)
		} else if !released {
			logger.Warn("payment lock expired before the charge finished")
		}
	}()

	// Another request may have finished between the first check and the lock.
	order, amountCents, err = s.payableOrder(ctx, ChargeInput{UserID: input.UserID, OrderID: order.ID})
	if err != nil {
		recordFailure(paymentRejection(err))
		return nil, err
	}

	charge, err := s.gateway.CreateCharge(ctx, payment.ChargeRequest{
		AmountCents:    amountCents,
		Currency:       s.currency,
		Token:          input.Token,
		Description:    fmt.Sprintf("Order %s", order.ID),
		IdempotencyKey: idempotencyKey(order.ID, input.Token, amountCents),
		Metadata: map[string]string{
			"order_id": order.ID.String(),
			"user_id":  input.UserID,
		},
	})
	if err != nil {
		gatewayErr, ok := payment.AsGatewayError(err)
		if !ok {
			gatewayErr = payment.NewError(payment.KindUnexpected, "", err)
		}
		recordFailure(string(gatewayErr.Kind))
		s.logGatewayFailure(logger, gatewayErr)
		return nil, fmt.Errorf("failed to charge order %s: %w", order.ID, gatewayErr)
	}
	logger = logger.With("charge_id", charge.ID)

	paid, replayed, err := s.finalize(ctx, order, input.UserID, charge)
	if err != nil {
		recordFailure("finalize_failed")
		return nil, s.compensate(ctx, logger, charge, err)
	}

	if !replayed {
		s.metrics.Payment("succeeded", paid.Payment.AmountCents)
		observability.CountOutcome(ctx, "payment.charge", "succeeded")
		logger.Info("order paid", "ref_code", paid.RefCode, "amount_cents", paid.Payment.AmountCents)
		s.afterPayment(ctx, logger, paid, input.ReceiptEmail)
	}

	return &ChargeResult{Order: summarize(s.pricer, paid), Payment: paid.Payment}, nil
}

// payableOrder loads the order and checks every precondition that does not
// need the gateway.
func (s *PaymentService) payableOrder(ctx context.Context, input ChargeInput) (*models.Order, int64, error) {
	var order *models.Order
	err := s.store.WithUserTx(ctx, input.UserID, func(tx db.Tx) error {
		var err error
		if input.OrderID == uuid.Nil {
			order, err = activeOrder(ctx, tx, input.UserID)
			return err
		}

		order, err = tx.GetOrder(ctx, input.OrderID)
		if errors.Is(err, db.ErrNotFound) || (err == nil && order.UserID != input.UserID) {
			return ErrOrderNotFound
		}
		return err
	})
	if err != nil {
		return nil, 0, err
	}

	if order.Ordered {
		return nil, 0, ErrOrderAlreadyPaid
	}
	if order.BillingAddress == nil {
		return nil, 0, ErrNoBillingAddress
	}
	if len(order.Items) == 0 {
		return nil, 0, ErrEmptyOrder
	}
	amountCents := s.pricer.TotalCents(order)
	if amountCents <= 0 {
		return nil, 0, ErrEmptyOrder
	}
	return order, amountCents, nil
}

// finalize records the payment and closes the order in one transaction.
// replayed is true when the order was already closed by this same charge,
// which happens when the gateway deduplicated a retried request. The order
// must still hold exactly the lines and total that were charged; the cart
// stays editable while the gateway call is in flight.
func (s *PaymentService) finalize(ctx context.Context, charged *models.Order, userID string, charge *payment.Charge) (*models.Order, bool, error) {
	var (
		order    *models.Order
		replayed bool
	)
	err := s.store.WithUserTx(ctx, userID, func(tx db.Tx) error {
		var err error
		order, err = tx.GetOrder(ctx, charged.ID)
		if err != nil {
			return fmt.Errorf("failed to reload order: %w", err)
		}
		if order.Ordered {
			if order.Payment != nil && order.Payment.ChargeID == charge.ID {
				replayed = true
				return nil
			}
			return ErrOrderAlreadyPaid
		}
		if total := s.pricer.TotalCents(order); total != charge.AmountCents || lineSet(order) != lineSet(charged) {
			return fmt.Errorf("%w: charged %d cents, order now totals %d", ErrOrderChanged, charge.AmountCents, total)
		}

		refCode, err := newRefCode()
		if err != nil {
			return err
		}

		paymentRecord := &models.Payment{
			ChargeID:    charge.ID,
			UserID:      userID,
			OrderID:     order.ID,
			AmountCents: charge.AmountCents,
			Currency:    s.currency,
		}
		if err := tx.CreatePayment(ctx, paymentRecord); err != nil {
			return err
		}
		if err := tx.MarkOrderItemsOrdered(ctx, order.ID); err != nil {
			return err
		}

		order.Ordered = true
		order.OrderedAt = time.Now().UTC()
		order.RefCode = refCode
		if err := tx.SaveOrder(ctx, order); err != nil {
			return err
		}

		order.Payment = paymentRecord
		for i := range order.Items {
			order.Items[i].Ordered = true
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return order, replayed, nil
}

// compensate refunds a charge whose order could not be finalized, so the
// shopper is never charged for an order the store does not know is paid.
func (s *PaymentService) compensate(ctx context.Context, logger *slog.Logger, charge *payment.Charge, cause error) error {
	refundErr := s.gateway.RefundCharge(context.WithoutCancel(ctx), charge.ID)
	if refundErr != nil {
		logger.Error("charge captured but order not finalized and refund failed; manual refund required",
			"error", cause,
			"refund_error", refundErr,
			"amount_cents", charge.AmountCents,
		)
		sentry.CaptureException(fmt.Errorf("unrecorded charge %s: %w", charge.ID, cause))
		return payment.NewError(payment.KindUnexpected, "", cause)
	}

	logger.Error("charge captured but order not finalized; charge refunded", "error", cause)
	if errors.Is(cause, ErrOrderAlreadyPaid) || errors.Is(cause, ErrOrderChanged) {
		return cause
	}
	return payment.NewError(payment.KindGeneric, "", cause)
}

func (s *PaymentService) afterPayment(ctx context.Context, logger *slog.Logger, order *models.Order, receiptEmail string) {
	if err := s.notifier.OrderPaid(ctx, order, receiptEmail); err != nil {
		logger.Warn("failed to send order confirmation", "error", err)
	}

	err := s.publisher.Publish(ctx, events.Event{
		Type:        events.TypeOrderPaid,
		OrderID:     order.ID.String(),
		UserID:      order.UserID,
		RefCode:     order.RefCode,
		AmountCents: order.Payment.AmountCents,
		Currency:    order.Payment.Currency,
		ChargeID:    order.Payment.ChargeID,
		OccurredAt:  order.OrderedAt,
	})
	if err != nil {
		logger.Warn("failed to publish order paid event", "error", err)
	}
}

func (s *PaymentService) logGatewayFailure(logger *slog.Logger, err *payment.GatewayError) {
	switch err.Kind {
	case payment.KindDeclined, payment.KindInvalidRequest:
		logger.Info("payment rejected by gateway", "kind", err.Kind, "error", err)
	case payment.KindRateLimited, payment.KindConnectivity:
		logger.Warn("payment gateway unavailable", "kind", err.Kind, "error", err)
	default:
		logger.Error("payment gateway failure", "kind", err.Kind, "error", err)
	}
}

func paymentRejection(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "already_paid"
	case errors.Is(err, ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}

// lineSet identifies the attached lines and their quantities.
func lineSet(order *models.Order) string {
	lines := make([]string, 0, len(order.Items))
	for _, line := range order.Items {
		lines = append(lines, line.ID.String()+"x"+strconv.Itoa(line.Quantity))
	}
	slices.Sort(lines)
	return strings.Join(lines, ",")
}

// idempotencyKey is stable for one order, token and amount so a resubmitted
// form cannot create a second charge at the gateway, while a retry after the
// cart changed is a new request.
func idempotencyKey(orderID uuid.UUID, token string, amountCents int64) string {
	sum := sha256.Sum256([]byte(orderID.String() + ":" + token + ":" + strconv.FormatInt(amountCents, 10)))
	return "charge-" + hex.EncodeToString(sum[:16])
}

func newRefCode() (string, error) {
	limit := big.NewInt(int64(len(refCodeAlphabet)))
	code := make([]byte, models.RefCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate ref code: %w", err)
		}
		code[i] = refCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}
