package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gitshopapp/storefront/internal/cache"
	"github.com/gitshopapp/storefront/internal/catalog"
	"github.com/gitshopapp/storefront/internal/db"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/observability"
)

const (
	ItemsPerPage     = 10
	catalogCacheTTL  = 5 * time.Minute
	maxCachedListing = 100
)

type ItemPage struct {
	Items       []models.Item `json:"items"`
	Page        int           `json:"page"`
	TotalPages  int           `json:"total_pages"`
	TotalItems  int           `json:"total_items"`
	HasNext     bool          `json:"has_next"`
	HasPrevious bool          `json:"has_previous"`
}

// CatalogService reads items through the cache. Concurrent misses for the
// same key share one store read.
type CatalogService struct {
	store     db.Store
	cache     cache.Provider
	validator *catalog.Validator
	group     singleflight.Group
	logger    *slog.Logger
}

func NewCatalogService(store db.Store, cacheProvider cache.Provider, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		store:     store,
		cache:     cacheProvider,
		validator: catalog.NewValidator(),
		logger:    logger,
	}
}

func (s *CatalogService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

func (s *CatalogService) ListItems(ctx context.Context, page int) (*ItemPage, error) {
	span, ctx := observability.StartSpan(ctx, "service.catalog.list_items", "ListItems")
	defer span.Finish()

	if page < 1 {
		page = 1
	}

	var result ItemPage
	err := s.cached(ctx, cache.ItemPageKey(page), &result, func() (any, error) {
		var (
			items []models.Item
			total int
		)
		err := s.store.WithTx(ctx, func(tx db.Tx) error {
			var err error
			if total, err = tx.CountItems(ctx); err != nil {
				return err
			}
			items, err = tx.ListItems(ctx, ItemsPerPage, (page-1)*ItemsPerPage)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list items: %w", err)
		}

		totalPages := (total + ItemsPerPage - 1) / ItemsPerPage
		if items == nil {
			items = []models.Item{}
		}
		return &ItemPage{
			Items:       items,
			Page:        page,
			TotalPages:  totalPages,
			TotalItems:  total,
			HasNext:     page < totalPages,
			HasPrevious: page > 1,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *CatalogService) GetItem(ctx context.Context, slug string) (*models.Item, error) {
	span, ctx := observability.StartSpan(ctx, "service.catalog.get_item", "GetItem")
	defer span.Finish()

	var item models.Item
	err := s.cached(ctx, cache.ItemKey(slug), &item, func() (any, error) {
		var found *models.Item
		err := s.store.WithTx(ctx, func(tx db.Tx) error {
			var err error
			found, err = tx.GetItemBySlug(ctx, slug)
			return err
		})
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrItemNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get item %s: %w", slug, err)
		}
		return found, nil
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Seed validates a catalog file and upserts its items and coupons.
func (s *CatalogService) Seed(ctx context.Context, seed *catalog.SeedFile) error {
	if err := s.validator.Validate(seed); err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}

	items := make([]models.Item, 0, len(seed.Items))
	for _, cfg := range seed.Items {
		item, err := cfg.ToItem()
		if err != nil {
			return err
		}
		items = append(items, item)
	}
	coupons := make([]models.Coupon, 0, len(seed.Coupons))
	for _, cfg := range seed.Coupons {
		coupon, err := cfg.ToCoupon()
		if err != nil {
			return err
		}
		coupons = append(coupons, coupon)
	}

	err := s.store.WithTx(ctx, func(tx db.Tx) error {
		for i := range items {
			if err := tx.UpsertItem(ctx, &items[i]); err != nil {
				return err
			}
		}
		for i := range coupons {
			if err := tx.UpsertCoupon(ctx, &coupons[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to seed catalog: %w", err)
	}

	s.invalidate(ctx, items)
	s.loggerFromContext(ctx).Info("catalog seeded", "items", len(items), "coupons", len(coupons))
	return nil
}

func (s *CatalogService) invalidate(ctx context.Context, items []models.Item) {
	if s.cache == nil {
		return
	}
	logger := s.loggerFromContext(ctx)
	for _, item := range items {
		if err := s.cache.Delete(ctx, cache.ItemKey(item.Slug)); err != nil {
			logger.Warn("failed to invalidate cached item", "slug", item.Slug, "error", err)
		}
	}
	for page := 1; page <= maxCachedListing; page++ {
		if err := s.cache.Delete(ctx, cache.ItemPageKey(page)); err != nil {
			logger.Warn("failed to invalidate cached page", "page", page, "error", err)
			return
		}
	}
}

// cached decodes key into dest, or calls load once per key across
// concurrent callers and stores the JSON result. Cache failures only cost
// a store read.
func (s *CatalogService) cached(ctx context.Context, key string, dest any, load func() (any, error)) error {
	logger := s.loggerFromContext(ctx)

	if s.cache != nil {
		raw, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			if jsonErr := json.Unmarshal([]byte(raw), dest); jsonErr == nil {
				return nil
			}
			logger.Warn("discarding undecodable cache entry", "key", key)
		case !errors.Is(err, cache.ErrNotFound):
			logger.Warn("cache read failed", "key", key, "error", err)
		}
	}

	value, err, _ := s.group.Do(key, func() (any, error) {
		loaded, err := load()
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(loaded)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", key, err)
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, key, string(payload), catalogCacheTTL); err != nil {
				logger.Warn("cache write failed", "key", key, "error", err)
			}
		}
		return payload, nil
	})
	if err != nil {
		return err
	}

	return json.Unmarshal(value.([]byte), dest)
}
