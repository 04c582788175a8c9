package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/gitshopapp/storefront/internal/crypto"
	"github.com/gitshopapp/storefront/internal/models"
)

type PostgresStore struct {
	pool   *pgxpool.Pool
	crypto crypto.Encryptor
	logger *slog.Logger
}

func NewPostgresStore(pool *pgxpool.Pool, encryptor crypto.Encryptor, logger *slog.Logger) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresStore{
		pool:   pool,
		crypto: encryptor,
		logger: logger,
	}, nil
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx, crypto: s.crypto})
	})
}

// WithUserTx takes a transaction-scoped advisory lock on the user id, so
// read-modify-write cycles on one shopper's cart never interleave.
func (s *PostgresStore) WithUserTx(ctx context.Context, userID string, fn func(Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
			return fmt.Errorf("failed to lock user %s: %w", userID, err)
		}
		return fn(&pgTx{tx: tx, crypto: s.crypto})
	})
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

type pgTx struct {
	tx     pgx.Tx
	crypto crypto.Encryptor
}

const itemColumns = `i.id, i.title, i.price::text, i.discount_price::text, i.category, i.label, i.slug, i.description, i.image, i.created_at`

func scanItem(row pgx.Row, extra ...any) (*models.Item, error) {
	var (
		item          models.Item
		price         string
		discountPrice pgtype.Text
		category      string
		label         string
	)
	dest := append(extra, &item.ID, &item.Title, &price, &discountPrice, &category, &label, &item.Slug, &item.Description, &item.Image, &item.CreatedAt)
	if err := row.Scan(dest...); err != nil {
		return nil, mapError(err)
	}
	if err := applyItemPrices(&item, price, discountPrice); err != nil {
		return nil, err
	}
	item.Category = models.ItemCategory(category)
	item.Label = models.ItemLabel(label)
	return &item, nil
}

func applyItemPrices(item *models.Item, price string, discountPrice pgtype.Text) error {
	parsed, err := decimal.NewFromString(price)
	if err != nil {
		return fmt.Errorf("failed to parse price of item %s: %w", item.ID, err)
	}
	item.Price = parsed
	if discountPrice.Valid {
		discount, err := decimal.NewFromString(discountPrice.String)
		if err != nil {
			return fmt.Errorf("failed to parse discount price of item %s: %w", item.ID, err)
		}
		item.DiscountPrice = decimal.NewNullDecimal(discount)
	}
	return nil
}

func (t *pgTx) GetItemBySlug(ctx context.Context, slug string) (*models.Item, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM items i WHERE i.slug = $1`, slug)
	return scanItem(row)
}

func (t *pgTx) ListItems(ctx context.Context, limit, offset int) ([]models.Item, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+itemColumns+` FROM items i ORDER BY i.created_at, i.slug LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (t *pgTx) CountItems(ctx context.Context) (int, error) {
	var count int
	if err := t.tx.QueryRow(ctx, `SELECT count(*) FROM items`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return count, nil
}

func (t *pgTx) UpsertItem(ctx context.Context, item *models.Item) error {
	var discount pgtype.Text
	if item.DiscountPrice.Valid {
		discount = pgtype.Text{String: item.DiscountPrice.Decimal.String(), Valid: true}
	}

	err := t.tx.QueryRow(ctx, `
		INSERT INTO items (title, price, discount_price, category, label, slug, description, image)
		VALUES ($1, $2::numeric, $3::numeric, $4, $5, $6, $7, $8)
		ON CONFLICT (slug) DO UPDATE SET
			title = EXCLUDED.title,
			price = EXCLUDED.price,
			discount_price = EXCLUDED.discount_price,
			category = EXCLUDED.category,
			label = EXCLUDED.label,
			description = EXCLUDED.description,
			image = EXCLUDED.image
		RETURNING id, created_at`,
		item.Title, item.Price.String(), discount, string(item.Category), string(item.Label), item.Slug, item.Description, item.Image,
	).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert item %s: %w", item.Slug, mapError(err))
	}
	return nil
}

func (t *pgTx) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var (
		coupon models.Coupon
		amount string
	)
	err := t.tx.QueryRow(ctx, `SELECT id, code, amount::text FROM coupons WHERE code = $1`, code).Scan(&coupon.ID, &coupon.Code, &amount)
	if err != nil {
		return nil, mapError(err)
	}
	coupon.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse coupon amount: %w", err)
	}
	return &coupon, nil
}

func (t *pgTx) UpsertCoupon(ctx context.Context, coupon *models.Coupon) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO coupons (code, amount) VALUES ($1, $2::numeric)
		ON CONFLICT (code) DO UPDATE SET amount = EXCLUDED.amount
		RETURNING id`,
		coupon.Code, coupon.Amount.String(),
	).Scan(&coupon.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert coupon %s: %w", coupon.Code, mapError(err))
	}
	return nil
}

const orderSelect = `
	SELECT o.id, o.user_id, COALESCE(o.ref_code, ''), o.shipping_address, o.billing_address,
		o.ordered, o.being_delivered, o.received, o.refund_requested, o.refund_granted,
		o.created_at, o.ordered_at,
		c.id, c.code, c.amount::text,
		p.id, p.charge_id, p.amount_cents, p.currency, p.created_at
	FROM orders o
	LEFT JOIN coupons c ON c.id = o.coupon_id
	LEFT JOIN payments p ON p.order_id = o.id`

func (t *pgTx) scanOrder(ctx context.Context, row pgx.Row) (*models.Order, error) {
	var (
		order           models.Order
		shippingAddress []byte
		billingAddress  []byte
		orderedAt       pgtype.Timestamptz
		couponID        pgtype.UUID
		couponCode      pgtype.Text
		couponAmount    pgtype.Text
		paymentID       pgtype.UUID
		chargeID        pgtype.Text
		amountCents     pgtype.Int8
		currency        pgtype.Text
		paidAt          pgtype.Timestamptz
	)

	err := row.Scan(
		&order.ID, &order.UserID, &order.RefCode, &shippingAddress, &billingAddress,
		&order.Ordered, &order.BeingDelivered, &order.Received, &order.RefundRequested, &order.RefundGranted,
		&order.CreatedAt, &orderedAt,
		&couponID, &couponCode, &couponAmount,
		&paymentID, &chargeID, &amountCents, &currency, &paidAt,
	)
	if err != nil {
		return nil, mapError(err)
	}

	if orderedAt.Valid {
		order.OrderedAt = orderedAt.Time
	}
	if order.ShippingAddress, err = decodeAddress(shippingAddress); err != nil {
		return nil, err
	}
	if order.BillingAddress, err = decodeAddress(billingAddress); err != nil {
		return nil, err
	}
	if couponID.Valid {
		amount, err := decimal.NewFromString(couponAmount.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse coupon amount: %w", err)
		}
		order.Coupon = &models.Coupon{ID: uuid.UUID(couponID.Bytes), Code: couponCode.String, Amount: amount}
	}
	if paymentID.Valid {
		order.Payment = &models.Payment{
			ID:          uuid.UUID(paymentID.Bytes),
			ChargeID:    chargeID.String,
			UserID:      order.UserID,
			OrderID:     order.ID,
			AmountCents: amountCents.Int64,
			Currency:    currency.String,
			CreatedAt:   paidAt.Time,
		}
	}

	items, err := t.orderLines(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return &order, nil
}

func (t *pgTx) orderLines(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT oi.id, oi.user_id, oi.quantity, oi.ordered, `+itemColumns+`
		FROM order_items oi
		JOIN items i ON i.id = oi.item_id
		WHERE oi.order_id = $1
		ORDER BY oi.created_at, oi.id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	lines := []models.OrderItem{}
	for rows.Next() {
		var line models.OrderItem
		item, err := scanItem(rows, &line.ID, &line.UserID, &line.Quantity, &line.Ordered)
		if err != nil {
			return nil, err
		}
		id := orderID
		line.OrderID = &id
		line.Item = *item
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func decodeAddress(raw []byte) (*models.Address, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var address models.Address
	if err := json.Unmarshal(raw, &address); err != nil {
		return nil, fmt.Errorf("failed to decode address snapshot: %w", err)
	}
	return &address, nil
}

func encodeAddress(address *models.Address) ([]byte, error) {
	if address == nil {
		return nil, nil
	}
	return json.Marshal(address)
}

func (t *pgTx) GetActiveOrder(ctx context.Context, userID string) (*models.Order, error) {
	return t.scanOrder(ctx, t.tx.QueryRow(ctx, orderSelect+` WHERE o.user_id = $1 AND NOT o.ordered`, userID))
}

func (t *pgTx) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return t.scanOrder(ctx, t.tx.QueryRow(ctx, orderSelect+` WHERE o.id = $1`, id))
}

func (t *pgTx) GetOrderByRefCode(ctx context.Context, refCode string) (*models.Order, error) {
	return t.scanOrder(ctx, t.tx.QueryRow(ctx, orderSelect+` WHERE o.ref_code = $1`, strings.TrimSpace(refCode)))
}

func (t *pgTx) CreateOrder(ctx context.Context, order *models.Order) error {
	err := t.tx.QueryRow(ctx, `INSERT INTO orders (user_id) VALUES ($1) RETURNING id, created_at`, order.UserID).
		Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", mapError(err))
	}
	if order.Items == nil {
		order.Items = []models.OrderItem{}
	}
	return nil
}

func (t *pgTx) SaveOrder(ctx context.Context, order *models.Order) error {
	shipping, err := encodeAddress(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to encode shipping address: %w", err)
	}
	billing, err := encodeAddress(order.BillingAddress)
	if err != nil {
		return fmt.Errorf("failed to encode billing address: %w", err)
	}

	var couponID *uuid.UUID
	if order.Coupon != nil {
		id := order.Coupon.ID
		couponID = &id
	}
	orderedAt := pgtype.Timestamptz{Time: order.OrderedAt, Valid: !order.OrderedAt.IsZero()}

	tag, err := t.tx.Exec(ctx, `
		UPDATE orders SET
			ref_code = NULLIF($2, ''),
			shipping_address = $3,
			billing_address = $4,
			coupon_id = $5,
			ordered = $6,
			being_delivered = $7,
			received = $8,
			refund_requested = $9,
			refund_granted = $10,
			ordered_at = $11
		WHERE id = $1`,
		order.ID, order.RefCode, shipping, billing, couponID,
		order.Ordered, order.BeingDelivered, order.Received, order.RefundRequested, order.RefundGranted,
		orderedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save order %s: %w", order.ID, mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) GrantRequestedRefunds(ctx context.Context) (int64, error) {
	if _, err := t.tx.Exec(ctx, `
		UPDATE refunds SET accepted = true
		WHERE NOT accepted AND order_id IN (SELECT id FROM orders WHERE refund_requested)`); err != nil {
		return 0, fmt.Errorf("failed to accept refunds: %w", err)
	}

	tag, err := t.tx.Exec(ctx, `UPDATE orders SET refund_requested = false, refund_granted = true WHERE refund_requested`)
	if err != nil {
		return 0, fmt.Errorf("failed to grant refunds: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) FindOpenOrderItem(ctx context.Context, userID string, itemID uuid.UUID) (*models.OrderItem, error) {
	var (
		line    models.OrderItem
		orderID pgtype.UUID
	)
	row := t.tx.QueryRow(ctx, `
		SELECT oi.id, oi.user_id, oi.order_id, oi.quantity, oi.ordered, `+itemColumns+`
		FROM order_items oi
		JOIN items i ON i.id = oi.item_id
		WHERE oi.user_id = $1 AND oi.item_id = $2 AND NOT oi.ordered`, userID, itemID)
	item, err := scanItem(row, &line.ID, &line.UserID, &orderID, &line.Quantity, &line.Ordered)
	if err != nil {
		return nil, err
	}
	if orderID.Valid {
		id := uuid.UUID(orderID.Bytes)
		line.OrderID = &id
	}
	line.Item = *item
	return &line, nil
}

func (t *pgTx) SaveOrderItem(ctx context.Context, line *models.OrderItem) error {
	if line.ID == uuid.Nil {
		err := t.tx.QueryRow(ctx, `
			INSERT INTO order_items (user_id, item_id, order_id, quantity, ordered)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			line.UserID, line.Item.ID, line.OrderID, line.Quantity, line.Ordered,
		).Scan(&line.ID)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", mapError(err))
		}
		return nil
	}

	tag, err := t.tx.Exec(ctx, `UPDATE order_items SET order_id = $2, quantity = $3, ordered = $4 WHERE id = $1`,
		line.ID, line.OrderID, line.Quantity, line.Ordered)
	if err != nil {
		return fmt.Errorf("failed to update order item %s: %w", line.ID, mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) MarkOrderItemsOrdered(ctx context.Context, orderID uuid.UUID) error {
	if _, err := t.tx.Exec(ctx, `UPDATE order_items SET ordered = true WHERE order_id = $1`, orderID); err != nil {
		return fmt.Errorf("failed to mark order items ordered: %w", err)
	}
	return nil
}

func (t *pgTx) CreateAddress(ctx context.Context, address *models.Address) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO addresses (user_id, street, apartment, country, zip, address_type, is_default)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		address.UserID, address.Street, address.Apartment, address.Country, address.Zip, string(address.Type), address.Default,
	).Scan(&address.ID, &address.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create %s address: %w", address.Type, mapError(err))
	}
	return nil
}

func (t *pgTx) GetDefaultAddress(ctx context.Context, userID string, addressType models.AddressType) (*models.Address, error) {
	var (
		address  models.Address
		typeCode string
	)
	err := t.tx.QueryRow(ctx, `
		SELECT id, user_id, street, apartment, country, zip, address_type, is_default, created_at
		FROM addresses
		WHERE user_id = $1 AND address_type = $2 AND is_default`,
		userID, string(addressType),
	).Scan(&address.ID, &address.UserID, &address.Street, &address.Apartment, &address.Country, &address.Zip, &typeCode, &address.Default, &address.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	address.Type = models.AddressType(typeCode)
	return &address, nil
}

func (t *pgTx) ClearDefaultAddress(ctx context.Context, userID string, addressType models.AddressType) error {
	_, err := t.tx.Exec(ctx, `UPDATE addresses SET is_default = false WHERE user_id = $1 AND address_type = $2 AND is_default`,
		userID, string(addressType))
	if err != nil {
		return fmt.Errorf("failed to clear default %s address: %w", addressType, err)
	}
	return nil
}

func (t *pgTx) CreatePayment(ctx context.Context, payment *models.Payment) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO payments (charge_id, user_id, order_id, amount_cents, currency)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		payment.ChargeID, payment.UserID, payment.OrderID, payment.AmountCents, payment.Currency,
	).Scan(&payment.ID, &payment.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", mapError(err))
	}
	return nil
}

func (t *pgTx) CreateRefund(ctx context.Context, refund *models.Refund) error {
	email, err := t.crypto.Seal(crypto.PurposeRefundEmail, refund.Email)
	if err != nil {
		return fmt.Errorf("failed to encrypt refund email: %w", err)
	}

	err = t.tx.QueryRow(ctx, `
		INSERT INTO refunds (order_id, reason, email, accepted)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		refund.OrderID, refund.Reason, email, refund.Accepted,
	).Scan(&refund.ID, &refund.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create refund: %w", mapError(err))
	}
	return nil
}
