package db

import (
	"context"

	"github.com/google/uuid"

	"github.com/gitshopapp/storefront/internal/models"
)

// Store runs units of work. Every function passed to WithUserTx sees a
// consistent view and commits atomically; transactions for the same user
// are serialized.
type Store interface {
	WithTx(ctx context.Context, fn func(Tx) error) error
	WithUserTx(ctx context.Context, userID string, fn func(Tx) error) error
	Ping(ctx context.Context) error
	Close()
}

// Tx is the repository surface available inside a transaction.
type Tx interface {
	GetItemBySlug(ctx context.Context, slug string) (*models.Item, error)
	ListItems(ctx context.Context, limit, offset int) ([]models.Item, error)
	CountItems(ctx context.Context) (int, error)
	UpsertItem(ctx context.Context, item *models.Item) error

	GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
	UpsertCoupon(ctx context.Context, coupon *models.Coupon) error

	GetActiveOrder(ctx context.Context, userID string) (*models.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetOrderByRefCode(ctx context.Context, refCode string) (*models.Order, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	SaveOrder(ctx context.Context, order *models.Order) error
	GrantRequestedRefunds(ctx context.Context) (int64, error)

	FindOpenOrderItem(ctx context.Context, userID string, itemID uuid.UUID) (*models.OrderItem, error)
	SaveOrderItem(ctx context.Context, line *models.OrderItem) error
	MarkOrderItemsOrdered(ctx context.Context, orderID uuid.UUID) error

	CreateAddress(ctx context.Context, address *models.Address) error
	GetDefaultAddress(ctx context.Context, userID string, addressType models.AddressType) (*models.Address, error)
	ClearDefaultAddress(ctx context.Context, userID string, addressType models.AddressType) error

	CreatePayment(ctx context.Context, payment *models.Payment) error
	CreateRefund(ctx context.Context, refund *models.Refund) error
}
