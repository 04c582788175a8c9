package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gitshopapp/storefront/internal/config"
	"github.com/gitshopapp/storefront/internal/db"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/metrics"
	"github.com/gitshopapp/storefront/internal/services"
	"github.com/gitshopapp/storefront/internal/session"
)

const maxRequestBodyBytes = 64 << 10

// Handlers provides the storefront's JSON API.
type Handlers struct {
	config          *config.Config
	store           db.Store
	catalogService  *services.CatalogService
	cartService     *services.CartService
	couponService   *services.CouponService
	checkoutService *services.CheckoutService
	paymentService  *services.PaymentService
	refundService   *services.RefundService
	adminService    *services.AdminService
	sessionManager  *session.Manager
	metrics         *metrics.Recorder
	logger          *slog.Logger
}

type Dependencies struct {
	Config          *config.Config
	Store           db.Store
	CatalogService  *services.CatalogService
	CartService     *services.CartService
	CouponService   *services.CouponService
	CheckoutService *services.CheckoutService
	PaymentService  *services.PaymentService
	RefundService   *services.RefundService
	AdminService    *services.AdminService
	SessionManager  *session.Manager
	Metrics         *metrics.Recorder
	Logger          *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.Config == nil {
		return nil, fmt.Errorf("handlers dependencies: config is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("handlers dependencies: store is required")
	}
	if deps.CatalogService == nil {
		return nil, fmt.Errorf("handlers dependencies: catalogService is required")
	}
	if deps.CartService == nil {
		return nil, fmt.Errorf("handlers dependencies: cartService is required")
	}
	if deps.CouponService == nil {
		return nil, fmt.Errorf("handlers dependencies: couponService is required")
	}
	if deps.CheckoutService == nil {
		return nil, fmt.Errorf("handlers dependencies: checkoutService is required")
	}
	if deps.PaymentService == nil {
		return nil, fmt.Errorf("handlers dependencies: paymentService is required")
	}
	if deps.RefundService == nil {
		return nil, fmt.Errorf("handlers dependencies: refundService is required")
	}
	if deps.AdminService == nil {
		return nil, fmt.Errorf("handlers dependencies: adminService is required")
	}
	if deps.SessionManager == nil {
		return nil, fmt.Errorf("handlers dependencies: sessionManager is required")
	}

	return &Handlers{
		config:          deps.Config,
		store:           deps.Store,
		catalogService:  deps.CatalogService,
		cartService:     deps.CartService,
		couponService:   deps.CouponService,
		checkoutService: deps.CheckoutService,
		paymentService:  deps.PaymentService,
		refundService:   deps.RefundService,
		adminService:    deps.AdminService,
		sessionManager:  deps.SessionManager,
		metrics:         deps.Metrics,
		logger:          logger.With("component", "handlers"),
	}, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if err := h.store.Ping(ctx); err != nil {
		logger.Error("store health check failed", "error", err)
		http.Error(w, "Store unhealthy", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	}); err != nil {
		logger.Error("failed to encode health response", "error", err)
	}
}

// Metrics serves the Prometheus registry.
func (h *Handlers) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		http.NotFound(w, r)
		return
	}
	h.metrics.Handler().ServeHTTP(w, r)
}

// SessionMiddleware adds session data to the request context
func (h *Handlers) SessionMiddleware(next http.Handler) http.Handler {
	return h.sessionManager.Middleware(next)
}

// RequireShopper guarantees a shopper session for cart and checkout routes.
func (h *Handlers) RequireShopper(next http.Handler) http.Handler {
	return h.sessionManager.RequireShopper(h.logger)(next)
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}

func SecureCookiesFromConfig(cfg *config.Config) bool {
	if cfg == nil {
		return false
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL != "" {
		if parsed, err := url.Parse(baseURL); err == nil {
			return strings.EqualFold(parsed.Scheme, "https")
		}
	}

	return cfg.Port == "443" || cfg.Port == "8443"
}
