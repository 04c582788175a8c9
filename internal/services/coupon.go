package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gitshopapp/storefront/internal/catalog"
	"github.com/gitshopapp/storefront/internal/db"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/observability"
)

type CouponService struct {
	store  db.Store
	pricer *catalog.Pricer
	logger *slog.Logger
}

func NewCouponService(store db.Store, pricer *catalog.Pricer, logger *slog.Logger) *CouponService {
	if pricer == nil {
		pricer = catalog.NewPricer()
	}
	return &CouponService{store: store, pricer: pricer, logger: logger}
}

// ApplyCoupon attaches the coupon to the active order, replacing any
// previous one. A coupon that would leave nothing to pay is refused and the
// order keeps whatever coupon it had.
func (s *CouponService) ApplyCoupon(ctx context.Context, userID, code string) (*OrderSummary, error) {
	span, ctx := observability.StartSpan(ctx, "service.coupon.apply", "ApplyCoupon")
	defer span.Finish()

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrCouponNotFound
	}

	var order *models.Order
	err := withUserTx(ctx, s.store, userID, func(tx db.Tx) error {
		active, err := activeOrder(ctx, tx, userID)
		if err != nil {
			return err
		}

		coupon, err := tx.GetCouponByCode(ctx, code)
		if errors.Is(err, db.ErrNotFound) {
			return ErrCouponNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get coupon: %w", err)
		}

		candidate := active.Clone()
		candidate.Coupon = coupon
		if !s.pricer.Total(candidate).IsPositive() {
			return ErrInvalidCoupon
		}

		if err := tx.SaveOrder(ctx, candidate); err != nil {
			return err
		}
		order = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx, s.logger).Info("coupon applied", "user_id", userID, "order_id", order.ID, "code", code)
	return summarize(s.pricer, order), nil
}
