package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gitshopapp/storefront/internal/catalog"
	"github.com/gitshopapp/storefront/internal/db"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/metrics"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/observability"
)

// CartService owns a shopper's active order: the single unpaid order that
// collects their lines.
type CartService struct {
	store   db.Store
	pricer  *catalog.Pricer
	metrics *metrics.Recorder
	logger  *slog.Logger
}

func NewCartService(store db.Store, pricer *catalog.Pricer, recorder *metrics.Recorder, logger *slog.Logger) *CartService {
	if pricer == nil {
		pricer = catalog.NewPricer()
	}
	return &CartService{
		store:   store,
		pricer:  pricer,
		metrics: recorder,
		logger:  logger,
	}
}

func (s *CartService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// AddItem puts one more unit of the item into the user's active order,
// creating the order and the line as needed.
func (s *CartService) AddItem(ctx context.Context, userID, slug string) (*OrderSummary, error) {
	span, ctx := observability.StartSpan(ctx, "service.cart.add_item", "AddItem")
	defer span.Finish()

	var order *models.Order
	err := withUserTx(ctx, s.store, userID, func(tx db.Tx) error {
		item, err := lookupItem(ctx, tx, slug)
		if err != nil {
			return err
		}

		active, err := activeOrCreate(ctx, tx, userID)
		if err != nil {
			return err
		}

		line, err := tx.FindOpenOrderItem(ctx, userID, item.ID)
		switch {
		case errors.Is(err, db.ErrNotFound):
			line = &models.OrderItem{UserID: userID, Item: *item}
		case err != nil:
			return fmt.Errorf("failed to find open order item: %w", err)
		}

		if line.OrderID != nil && *line.OrderID == active.ID {
			line.Quantity++
		} else {
			orderID := active.ID
			line.OrderID = &orderID
			line.Quantity = 1
		}
		if err := tx.SaveOrderItem(ctx, line); err != nil {
			return err
		}

		order, err = tx.GetOrder(ctx, active.ID)
		return err
	})
	s.record("add", err)
	if err != nil {
		return nil, err
	}

	s.loggerFromContext(ctx).Info("item added to cart", "user_id", userID, "slug", slug, "order_id", order.ID)
	return summarize(s.pricer, order), nil
}

// RemoveItem takes one unit off the line. The last unit detaches the line
// from the order with its quantity zeroed.
func (s *CartService) RemoveItem(ctx context.Context, userID, slug string) (*OrderSummary, error) {
	span, ctx := observability.StartSpan(ctx, "service.cart.remove_item", "RemoveItem")
	defer span.Finish()

	order, err := s.mutateLine(ctx, userID, slug, func(line *models.OrderItem) {
		if line.Quantity > 1 {
			line.Quantity--
			return
		}
		line.Quantity = 0
		line.OrderID = nil
	})
	s.record("remove", err)
	if err != nil {
		return nil, err
	}
	return summarize(s.pricer, order), nil
}

// RemoveItemCompletely detaches the line whatever its quantity.
func (s *CartService) RemoveItemCompletely(ctx context.Context, userID, slug string) (*OrderSummary, error) {
	span, ctx := observability.StartSpan(ctx, "service.cart.remove_item_completely", "RemoveItemCompletely")
	defer span.Finish()

	order, err := s.mutateLine(ctx, userID, slug, func(line *models.OrderItem) {
		line.Quantity = 0
		line.OrderID = nil
	})
	s.record("remove_all", err)
	if err != nil {
		return nil, err
	}
	return summarize(s.pricer, order), nil
}

func (s *CartService) mutateLine(ctx context.Context, userID, slug string, mutate func(*models.OrderItem)) (*models.Order, error) {
	var order *models.Order
	err := withUserTx(ctx, s.store, userID, func(tx db.Tx) error {
		if _, err := lookupItem(ctx, tx, slug); err != nil {
			return err
		}

		active, err := activeOrder(ctx, tx, userID)
		if err != nil {
			return err
		}

		line, ok := active.Line(slug)
		if !ok {
			return ErrItemNotInCart
		}
		mutate(line)
		if err := tx.SaveOrderItem(ctx, line); err != nil {
			return err
		}

		order, err = tx.GetOrder(ctx, active.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// GetCart returns the priced active order.
func (s *CartService) GetCart(ctx context.Context, userID string) (*OrderSummary, error) {
	var order *models.Order
	err := s.store.WithUserTx(ctx, userID, func(tx db.Tx) error {
		var err error
		order, err = activeOrder(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return summarize(s.pricer, order), nil
}

func (s *CartService) record(operation string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, ErrConflict):
		outcome = "conflict"
	default:
		outcome = "error"
	}
	s.metrics.CartOperation(operation, outcome)
}

func lookupItem(ctx context.Context, tx db.Tx, slug string) (*models.Item, error) {
	item, err := tx.GetItemBySlug(ctx, slug)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item %s: %w", slug, err)
	}
	return item, nil
}

func activeOrder(ctx context.Context, tx db.Tx, userID string) (*models.Order, error) {
	order, err := tx.GetActiveOrder(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNoActiveOrder
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active order: %w", err)
	}
	return order, nil
}

func activeOrCreate(ctx context.Context, tx db.Tx, userID string) (*models.Order, error) {
	order, err := tx.GetActiveOrder(ctx, userID)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("failed to get active order: %w", err)
	}

	order = &models.Order{UserID: userID}
	if err := tx.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}
