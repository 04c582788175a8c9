package db

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gitshopapp/storefront/internal/models"
)

// MemoryStore keeps all data in process. Transactions run one at a time
// against a private copy of the state that replaces the shared state only
// when the unit of work succeeds.
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState
}

type memoryLine struct {
	line models.OrderItem
	seq  uint64
}

type memoryState struct {
	items     map[uuid.UUID]models.Item
	itemOrder []uuid.UUID
	coupons   map[string]models.Coupon
	orders    map[uuid.UUID]*models.Order
	lines     map[uuid.UUID]memoryLine
	addresses map[uuid.UUID]models.Address
	payments  map[uuid.UUID]models.Payment
	refunds   map[uuid.UUID]models.Refund
	seq       uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memoryState{
			items:     make(map[uuid.UUID]models.Item),
			coupons:   make(map[string]models.Coupon),
			orders:    make(map[uuid.UUID]*models.Order),
			lines:     make(map[uuid.UUID]memoryLine),
			addresses: make(map[uuid.UUID]models.Address),
			payments:  make(map[uuid.UUID]models.Payment),
			refunds:   make(map[uuid.UUID]models.Refund),
		},
	}
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(Tx) error) error {
	if ctx == nil {
		return fmt.Errorf("context is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	working := s.state.clone()
	if err := fn(&memoryTx{state: working}); err != nil {
		return err
	}
	s.state = working
	return nil
}

// WithUserTx is WithTx; the store lock already serializes every transaction.
func (s *MemoryStore) WithUserTx(ctx context.Context, _ string, fn func(Tx) error) error {
	return s.WithTx(ctx, fn)
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close() {}

func (st *memoryState) clone() *memoryState {
	cloned := &memoryState{
		items:     maps.Clone(st.items),
		itemOrder: slices.Clone(st.itemOrder),
		coupons:   maps.Clone(st.coupons),
		orders:    make(map[uuid.UUID]*models.Order, len(st.orders)),
		lines:     make(map[uuid.UUID]memoryLine, len(st.lines)),
		addresses: maps.Clone(st.addresses),
		payments:  maps.Clone(st.payments),
		refunds:   maps.Clone(st.refunds),
		seq:       st.seq,
	}
	for id, order := range st.orders {
		cloned.orders[id] = order.Clone()
	}
	for id, entry := range st.lines {
		cloned.lines[id] = memoryLine{line: entry.line.Clone(), seq: entry.seq}
	}
	return cloned
}

func (st *memoryState) next() uint64 {
	st.seq++
	return st.seq
}

type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) GetItemBySlug(_ context.Context, slug string) (*models.Item, error) {
	for _, item := range t.state.items {
		if item.Slug == slug {
			found := item
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memoryTx) ListItems(_ context.Context, limit, offset int) ([]models.Item, error) {
	if offset >= len(t.state.itemOrder) {
		return nil, nil
	}
	end := min(offset+limit, len(t.state.itemOrder))

	items := make([]models.Item, 0, end-offset)
	for _, id := range t.state.itemOrder[offset:end] {
		items = append(items, t.state.items[id])
	}
	return items, nil
}

func (t *memoryTx) CountItems(_ context.Context) (int, error) {
	return len(t.state.items), nil
}

func (t *memoryTx) UpsertItem(_ context.Context, item *models.Item) error {
	for id, existing := range t.state.items {
		if existing.Slug == item.Slug {
			item.ID = id
			item.CreatedAt = existing.CreatedAt
			t.state.items[id] = *item
			return nil
		}
	}

	item.ID = uuid.New()
	item.CreatedAt = time.Now().UTC()
	t.state.items[item.ID] = *item
	t.state.itemOrder = append(t.state.itemOrder, item.ID)
	return nil
}

func (t *memoryTx) GetCouponByCode(_ context.Context, code string) (*models.Coupon, error) {
	coupon, ok := t.state.coupons[code]
	if !ok {
		return nil, ErrNotFound
	}
	return &coupon, nil
}

func (t *memoryTx) UpsertCoupon(_ context.Context, coupon *models.Coupon) error {
	if existing, ok := t.state.coupons[coupon.Code]; ok {
		coupon.ID = existing.ID
	} else {
		coupon.ID = uuid.New()
	}
	t.state.coupons[coupon.Code] = *coupon
	return nil
}

// assemble joins an order row with its lines and payment.
func (t *memoryTx) assemble(stored *models.Order) *models.Order {
	order := stored.Clone()

	attached := make([]memoryLine, 0)
	for _, entry := range t.state.lines {
		if entry.line.OrderID != nil && *entry.line.OrderID == order.ID {
			attached = append(attached, entry)
		}
	}
	slices.SortFunc(attached, func(a, b memoryLine) int {
		return cmp.Compare(a.seq, b.seq)
	})

	order.Items = make([]models.OrderItem, 0, len(attached))
	for _, entry := range attached {
		line := entry.line.Clone()
		line.Item = t.state.items[line.Item.ID]
		order.Items = append(order.Items, line)
	}

	order.Payment = nil
	for _, payment := range t.state.payments {
		if payment.OrderID == order.ID {
			found := payment
			order.Payment = &found
			break
		}
	}
	return order
}

func (t *memoryTx) activeOrderFor(userID string) *models.Order {
	for _, order := range t.state.orders {
		if order.UserID == userID && !order.Ordered {
			return order
		}
	}
	return nil
}

func (t *memoryTx) GetActiveOrder(_ context.Context, userID string) (*models.Order, error) {
	order := t.activeOrderFor(userID)
	if order == nil {
		return nil, ErrNotFound
	}
	return t.assemble(order), nil
}

func (t *memoryTx) GetOrder(_ context.Context, id uuid.UUID) (*models.Order, error) {
	order, ok := t.state.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.assemble(order), nil
}

func (t *memoryTx) GetOrderByRefCode(_ context.Context, refCode string) (*models.Order, error) {
	if refCode == "" {
		return nil, ErrNotFound
	}
	for _, order := range t.state.orders {
		if order.RefCode == refCode {
			return t.assemble(order), nil
		}
	}
	return nil, ErrNotFound
}

func (t *memoryTx) CreateOrder(_ context.Context, order *models.Order) error {
	if !order.Ordered && t.activeOrderFor(order.UserID) != nil {
		return fmt.Errorf("%w: orders_one_active_idx", ErrConflict)
	}

	order.ID = uuid.New()
	order.CreatedAt = time.Now().UTC()
	if order.Items == nil {
		order.Items = []models.OrderItem{}
	}
	t.state.orders[order.ID] = stripOrder(order)
	return nil
}

func (t *memoryTx) SaveOrder(_ context.Context, order *models.Order) error {
	if _, ok := t.state.orders[order.ID]; !ok {
		return ErrNotFound
	}
	for id, other := range t.state.orders {
		if id == order.ID {
			continue
		}
		if order.RefCode != "" && other.RefCode == order.RefCode {
			return fmt.Errorf("%w: orders_ref_code_key", ErrConflict)
		}
		if !order.Ordered && !other.Ordered && other.UserID == order.UserID {
			return fmt.Errorf("%w: orders_one_active_idx", ErrConflict)
		}
	}
	t.state.orders[order.ID] = stripOrder(order)
	return nil
}

// stripOrder drops the joined fields that are stored elsewhere.
func stripOrder(order *models.Order) *models.Order {
	stored := order.Clone()
	stored.Items = nil
	stored.Payment = nil
	return stored
}

func (t *memoryTx) GrantRequestedRefunds(_ context.Context) (int64, error) {
	var granted int64
	for _, order := range t.state.orders {
		if !order.RefundRequested {
			continue
		}
		for id, refund := range t.state.refunds {
			if refund.OrderID == order.ID && !refund.Accepted {
				refund.Accepted = true
				t.state.refunds[id] = refund
			}
		}
		order.RefundRequested = false
		order.RefundGranted = true
		granted++
	}
	return granted, nil
}

func (t *memoryTx) FindOpenOrderItem(_ context.Context, userID string, itemID uuid.UUID) (*models.OrderItem, error) {
	for _, entry := range t.state.lines {
		if entry.line.UserID == userID && entry.line.Item.ID == itemID && !entry.line.Ordered {
			line := entry.line.Clone()
			line.Item = t.state.items[itemID]
			return &line, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memoryTx) SaveOrderItem(_ context.Context, line *models.OrderItem) error {
	if line.ID == uuid.Nil {
		for _, entry := range t.state.lines {
			if entry.line.UserID == line.UserID && entry.line.Item.ID == line.Item.ID && !entry.line.Ordered && !line.Ordered {
				return fmt.Errorf("%w: order_items_one_open_idx", ErrConflict)
			}
		}
		line.ID = uuid.New()
		t.state.lines[line.ID] = memoryLine{line: line.Clone(), seq: t.state.next()}
		return nil
	}

	entry, ok := t.state.lines[line.ID]
	if !ok {
		return ErrNotFound
	}
	entry.line = line.Clone()
	t.state.lines[line.ID] = entry
	return nil
}

func (t *memoryTx) MarkOrderItemsOrdered(_ context.Context, orderID uuid.UUID) error {
	for id, entry := range t.state.lines {
		if entry.line.OrderID != nil && *entry.line.OrderID == orderID {
			entry.line.Ordered = true
			t.state.lines[id] = entry
		}
	}
	return nil
}

func (t *memoryTx) CreateAddress(_ context.Context, address *models.Address) error {
	if address.Default {
		if _, err := t.GetDefaultAddress(context.Background(), address.UserID, address.Type); err == nil {
			return fmt.Errorf("%w: addresses_one_default_idx", ErrConflict)
		}
	}
	address.ID = uuid.New()
	address.CreatedAt = time.Now().UTC()
	t.state.addresses[address.ID] = *address
	return nil
}

func (t *memoryTx) GetDefaultAddress(_ context.Context, userID string, addressType models.AddressType) (*models.Address, error) {
	for _, address := range t.state.addresses {
		if address.UserID == userID && address.Type == addressType && address.Default {
			found := address
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memoryTx) ClearDefaultAddress(_ context.Context, userID string, addressType models.AddressType) error {
	for id, address := range t.state.addresses {
		if address.UserID == userID && address.Type == addressType && address.Default {
			address.Default = false
			t.state.addresses[id] = address
		}
	}
	return nil
}

func (t *memoryTx) CreatePayment(_ context.Context, payment *models.Payment) error {
	for _, existing := range t.state.payments {
		if existing.ChargeID == payment.ChargeID || existing.OrderID == payment.OrderID {
			return fmt.Errorf("%w: payments_order_id_key", ErrConflict)
		}
	}
	payment.ID = uuid.New()
	payment.CreatedAt = time.Now().UTC()
	t.state.payments[payment.ID] = *payment
	return nil
}

func (t *memoryTx) CreateRefund(_ context.Context, refund *models.Refund) error {
	refund.ID = uuid.New()
	refund.CreatedAt = time.Now().UTC()
	t.state.refunds[refund.ID] = *refund
	return nil
}
