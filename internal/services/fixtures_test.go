package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/gitshopapp/storefront/internal/cache"
	"github.com/gitshopapp/storefront/internal/catalog"
	"github.com/gitshopapp/storefront/internal/db"
	"github.com/gitshopapp/storefront/internal/events"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/payment"
)

type fixture struct {
	store    *db.MemoryStore
	cache    *cache.MemoryProvider
	pricer   *catalog.Pricer
	gateway  *fakeGateway
	notifier *recordingNotifier
	events   *recordingPublisher
	logger   *slog.Logger

	cart     *CartService
	coupons  *CouponService
	checkout *CheckoutService
	payments *PaymentService
	refunds  *RefundService
	admin    *AdminService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	memoryCache, err := cache.NewMemoryProvider()
	require.NoError(t, err)

	f := &fixture{
		store:    db.NewMemoryStore(),
		cache:    memoryCache,
		pricer:   catalog.NewPricer(),
		gateway:  &fakeGateway{},
		notifier: &recordingNotifier{},
		events:   &recordingPublisher{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	f.seed(t,
		models.Item{Title: "Shirt", Slug: "shirt", Price: decimal.RequireFromString("9.99"), Category: models.CategoryShirt, Label: models.LabelPrimary},
		models.Item{
			Title:         "Jacket",
			Slug:          "jacket",
			Price:         decimal.RequireFromString("50.00"),
			DiscountPrice: decimal.NewNullDecimal(decimal.RequireFromString("40.00")),
			Category:      models.CategoryOutwear,
			Label:         models.LabelDanger,
		},
		models.Item{Title: "Socks", Slug: "socks", Price: decimal.RequireFromString("3.00"), Category: models.CategorySportWear, Label: models.LabelSecondary},
	)
	require.NoError(t, f.store.WithTx(context.Background(), func(tx db.Tx) error {
		return tx.UpsertCoupon(context.Background(), &models.Coupon{Code: "SAVE5", Amount: decimal.RequireFromString("5.00")})
	}))

	f.cart = NewCartService(f.store, f.pricer, nil, f.logger)
	f.coupons = NewCouponService(f.store, f.pricer, f.logger)
	f.checkout = NewCheckoutService(f.store, f.pricer, nil, f.logger)
	f.payments, err = NewPaymentService(PaymentDependencies{
		Store:     f.store,
		Gateway:   f.gateway,
		Locks:     f.cache,
		Pricer:    f.pricer,
		Notifier:  f.notifier,
		Publisher: f.events,
		Logger:    f.logger,
	})
	require.NoError(t, err)
	f.refunds = NewRefundService(f.store, f.notifier, f.events, nil, f.logger)
	f.admin = NewAdminService(f.store, f.events, nil, f.logger)
	return f
}

func (f *fixture) seed(t *testing.T, items ...models.Item) {
	t.Helper()
	require.NoError(t, f.store.WithTx(context.Background(), func(tx db.Tx) error {
		for i := range items {
			if err := tx.UpsertItem(context.Background(), &items[i]); err != nil {
				return err
			}
		}
		return nil
	}))
}

var testAddress = AddressInput{Street: "1 Main St", Country: "US", Zip: "10001"}

// checkedOut fills a cart for userID and submits the checkout form.
func (f *fixture) checkedOut(t *testing.T, userID string, slugs ...string) *OrderSummary {
	t.Helper()
	ctx := context.Background()
	for _, slug := range slugs {
		_, err := f.cart.AddItem(ctx, userID, slug)
		require.NoError(t, err)
	}
	result, err := f.checkout.Checkout(ctx, CheckoutInput{
		UserID:             userID,
		Shipping:           testAddress,
		SameBillingAddress: true,
		PaymentOption:      "stripe",
	})
	require.NoError(t, err)
	return result.Order
}

// paid runs an order all the way through a successful charge.
func (f *fixture) paid(t *testing.T, userID string, slugs ...string) *models.Order {
	t.Helper()
	f.checkedOut(t, userID, slugs...)
	result, err := f.payments.Charge(context.Background(), ChargeInput{UserID: userID, Token: "pm_card_visa"})
	require.NoError(t, err)
	return result.Order.Order
}

type fakeGateway struct {
	mu       sync.Mutex
	err      error
	chargeID string
	charges  []payment.ChargeRequest
	refunds  []string

	// during runs while the charge is in flight, outside the gateway lock.
	during func()
}

func (g *fakeGateway) CreateCharge(_ context.Context, req payment.ChargeRequest) (*payment.Charge, error) {
	g.mu.Lock()
	during := g.during
	g.mu.Unlock()
	if during != nil {
		during()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.charges = append(g.charges, req)
	if g.err != nil {
		return nil, g.err
	}
	id := g.chargeID
	if id == "" {
		id = "pi_" + uuid.NewString()
	}
	return &payment.Charge{ID: id, AmountCents: req.AmountCents, Currency: req.Currency}, nil
}

func (g *fakeGateway) RefundCharge(_ context.Context, chargeID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, chargeID)
	return nil
}

func (g *fakeGateway) chargeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.charges)
}

type recordingNotifier struct {
	mu      sync.Mutex
	paid    []string
	refunds []string
}

func (n *recordingNotifier) OrderPaid(_ context.Context, order *models.Order, recipient string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paid = append(n.paid, order.RefCode+":"+recipient)
	return nil
}

func (n *recordingNotifier) RefundRequested(_ context.Context, order *models.Order, refund *models.Refund) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.refunds = append(n.refunds, order.RefCode+":"+refund.Email)
	return nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.published))
	for _, event := range p.published {
		types = append(types, event.Type)
	}
	return types
}
