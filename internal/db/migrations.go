package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS items (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		title TEXT NOT NULL,
		price NUMERIC(12, 2) NOT NULL CHECK (price > 0),
		discount_price NUMERIC(12, 2),
		category TEXT NOT NULL,
		label TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		image TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS coupons (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		code TEXT NOT NULL UNIQUE,
		amount NUMERIC(12, 2) NOT NULL CHECK (amount > 0)
	)`,
	`CREATE TABLE IF NOT EXISTS addresses (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id TEXT NOT NULL,
		street TEXT NOT NULL,
		apartment TEXT NOT NULL DEFAULT '',
		country CHAR(2) NOT NULL,
		zip TEXT NOT NULL,
		address_type CHAR(1) NOT NULL CHECK (address_type IN ('S', 'B')),
		is_default BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS addresses_one_default_idx
		ON addresses (user_id, address_type) WHERE is_default`,
	`CREATE TABLE IF NOT EXISTS orders (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id TEXT NOT NULL,
		ref_code TEXT UNIQUE,
		shipping_address JSONB,
		billing_address JSONB,
		coupon_id UUID REFERENCES coupons (id),
		ordered BOOLEAN NOT NULL DEFAULT false,
		being_delivered BOOLEAN NOT NULL DEFAULT false,
		received BOOLEAN NOT NULL DEFAULT false,
		refund_requested BOOLEAN NOT NULL DEFAULT false,
		refund_granted BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		ordered_at TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS orders_one_active_idx
		ON orders (user_id) WHERE NOT ordered`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id TEXT NOT NULL,
		item_id UUID NOT NULL REFERENCES items (id),
		order_id UUID REFERENCES orders (id),
		quantity INTEGER NOT NULL DEFAULT 1 CHECK (quantity >= 0),
		ordered BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS order_items_one_open_idx
		ON order_items (user_id, item_id) WHERE NOT ordered`,
	`CREATE INDEX IF NOT EXISTS order_items_order_id_idx ON order_items (order_id)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		charge_id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		order_id UUID NOT NULL UNIQUE REFERENCES orders (id),
		amount_cents BIGINT NOT NULL CHECK (amount_cents > 0),
		currency TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS refunds (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		order_id UUID NOT NULL REFERENCES orders (id),
		reason TEXT NOT NULL,
		email TEXT NOT NULL,
		accepted BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	return pgx.BeginTxFunc(ctx, pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for i, stmt := range schema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to apply schema statement %d: %w", i, err)
			}
		}
		return nil
	})
}
