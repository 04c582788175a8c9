package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/gitshopapp/storefront/internal/config"
	"github.com/gitshopapp/storefront/internal/handlers"
)

const shutdownTimeout = 30 * time.Second

// Server owns the HTTP listener for the storefront API.
type Server struct {
	logger     *slog.Logger
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handlers) (*Server, error) {
	switch {
	case cfg == nil:
		return nil, fmt.Errorf("config is required")
	case logger == nil:
		return nil, fmt.Errorf("logger is required")
	case h == nil:
		return nil, fmt.Errorf("handlers are required")
	}

	return &Server{
		logger: logger.With("component", "server"),
		httpServer: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           NewRouter(h),
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			// Card charges wait on Stripe, so writes get more room than reads.
			WriteTimeout:   cfg.StripeTimeout + 15*time.Second,
			IdleTimeout:    60 * time.Second,
			MaxHeaderBytes: 1 << 20,
		},
	}, nil
}

// Run serves until ctx is cancelled, then drains in-flight requests. A
// payment that is mid-charge gets the full shutdown window to finish.
func (s *Server) Run(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", s.httpServer.Addr)
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down cleanly: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// NewRouter wires every route onto the handlers.
func NewRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()
	r.Use(h.Tracing)
	r.Use(h.RequestLogger)
	r.Use(h.Recover)
	r.Use(h.SessionMiddleware)
	r.Use(h.MetricsContext)
	r.Use(h.SecurityHeaders)
	r.HandleFunc("/health", h.Health).Methods("GET").Name("health")
	r.HandleFunc("/metrics", h.Metrics).Methods("GET").Name("metrics")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Not Found"}` + "\n")) //nolint
	})

	api := r.PathPrefix("/api").Subrouter()
	api.Use(h.RequireSameOrigin)

	// Public catalog and refund routes
	api.HandleFunc("/items", h.ListItems).Methods("GET").Name("items.list")
	api.HandleFunc("/items/{slug}", h.GetItem).Methods("GET").Name("items.show")
	api.HandleFunc("/refunds", h.RequestRefund).Methods("POST").Name("refunds.request")
	api.HandleFunc("/session", h.EndSession).Methods("DELETE").Name("session.end")

	// Shopper routes - a session is issued on first use
	shopper := api.NewRoute().Subrouter()
	shopper.Use(h.RequireShopper)
	shopper.HandleFunc("/session", h.CreateSession).Methods("POST").Name("session.create")
	shopper.HandleFunc("/cart", h.GetCart).Methods("GET").Name("cart.show")
	shopper.HandleFunc("/cart/items/{slug}", h.AddToCart).Methods("POST").Name("cart.add")
	shopper.HandleFunc("/cart/items/{slug}", h.RemoveFromCart).Methods("DELETE").Name("cart.remove")
	shopper.HandleFunc("/cart/items/{slug}/all", h.RemoveAllFromCart).Methods("DELETE").Name("cart.remove_all")
	shopper.HandleFunc("/checkout", h.CheckoutForm).Methods("GET").Name("checkout.form")
	shopper.HandleFunc("/checkout", h.SubmitCheckout).Methods("POST").Name("checkout.submit")
	shopper.HandleFunc("/coupon", h.ApplyCoupon).Methods("POST").Name("coupon.apply")
	shopper.HandleFunc("/payment/{method}", h.Pay).Methods("POST").Name("payment.charge")

	// Admin routes - bearer token
	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(h.RequireAdmin)
	admin.HandleFunc("/refunds/grant", h.AdminGrantRefunds).Methods("POST").Name("admin.refunds.grant")
	admin.HandleFunc("/orders/{ref}/delivery", h.AdminUpdateDelivery).Methods("POST").Name("admin.orders.delivery")

	return r
}
