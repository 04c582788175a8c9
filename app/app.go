package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
	"github.com/lmittmann/tint"

	"github.com/gitshopapp/storefront/internal/cache"
	"github.com/gitshopapp/storefront/internal/catalog"
	"github.com/gitshopapp/storefront/internal/config"
	"github.com/gitshopapp/storefront/internal/crypto"
	"github.com/gitshopapp/storefront/internal/db"
	"github.com/gitshopapp/storefront/internal/email"
	"github.com/gitshopapp/storefront/internal/events"
	"github.com/gitshopapp/storefront/internal/handlers"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/metrics"
	"github.com/gitshopapp/storefront/internal/services"
	"github.com/gitshopapp/storefront/internal/session"
	"github.com/gitshopapp/storefront/internal/stripe"
)

type App struct {
	Config         *config.Config
	Logger         *slog.Logger
	Store          db.Store
	CacheProvider  cache.Provider
	SessionManager *session.Manager
	Publisher      events.Publisher
	Handlers       *handlers.Handlers

	sentryEnabled bool
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	sentryEnabled, err := initSentry(cfg)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg, sentryEnabled)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	a := &App{Config: cfg, Logger: logger, sentryEnabled: sentryEnabled}
	if err := a.build(startupCtx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config
	logger := a.Logger

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	a.Store = store

	cacheProvider, err := cache.NewProvider(cache.Config{
		Provider:              cfg.CacheProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize cache provider: %w", err)
	}
	a.CacheProvider = cacheProvider

	sessionStore, err := session.NewStore(ctx, session.Config{
		Provider:              cfg.SessionStoreProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize session store: %w", err)
	}
	a.SessionManager = session.NewManager(sessionStore, handlers.SecureCookiesFromConfig(cfg))

	publisher, err := events.NewPublisher(events.Config{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
	}, logger.With("component", "events"))
	if err != nil {
		return fmt.Errorf("failed to initialize event publisher: %w", err)
	}
	a.Publisher = publisher

	emailProvider, err := email.NewProvider(email.Config{APIKey: cfg.ResendAPIKey, From: cfg.EmailFrom})
	if err != nil {
		return fmt.Errorf("failed to initialize email provider: %w", err)
	}

	pricer := catalog.NewPricer()
	recorder := metrics.NewRecorder()
	notifier := services.NewEmailOrderNotifier(emailProvider, pricer, cfg.BaseURL)

	catalogService := services.NewCatalogService(store, cacheProvider, logger.With("component", "catalog_service"))
	if cfg.CatalogPath != "" {
		seed, err := catalog.NewParser().ParseFile(cfg.CatalogPath)
		if err != nil {
			return fmt.Errorf("failed to read catalog: %w", err)
		}
		if err := catalogService.Seed(ctx, seed); err != nil {
			return fmt.Errorf("failed to seed catalog: %w", err)
		}
		logger.Info("catalog seeded", "path", cfg.CatalogPath, "items", len(seed.Items), "coupons", len(seed.Coupons))
	}

	paymentService, err := services.NewPaymentService(services.PaymentDependencies{
		Store: store,
		Gateway: stripe.NewGateway(stripe.Config{
			SecretKey:         cfg.StripeSecretKey,
			Timeout:           cfg.StripeTimeout,
			MaxNetworkRetries: cfg.StripeMaxNetworkRetries,
		}),
		Locks:     cacheProvider,
		Pricer:    pricer,
		Notifier:  notifier,
		Publisher: publisher,
		Metrics:   recorder,
		Currency:  cfg.StripeCurrency,
		Logger:    logger.With("component", "payment_service"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize payment service: %w", err)
	}

	h, err := handlers.New(handlers.Dependencies{
		Config:          cfg,
		Store:           store,
		CatalogService:  catalogService,
		CartService:     services.NewCartService(store, pricer, recorder, logger.With("component", "cart_service")),
		CouponService:   services.NewCouponService(store, pricer, logger.With("component", "coupon_service")),
		CheckoutService: services.NewCheckoutService(store, pricer, recorder, logger.With("component", "checkout_service")),
		PaymentService:  paymentService,
		RefundService:   services.NewRefundService(store, notifier, publisher, recorder, logger.With("component", "refund_service")),
		AdminService:    services.NewAdminService(store, publisher, recorder, logger.With("component", "admin_service")),
		SessionManager:  a.SessionManager,
		Metrics:         recorder,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize handlers: %w", err)
	}
	a.Handlers = h
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (db.Store, error) {
	if cfg.StoreProvider != "postgres" {
		logger.Warn("using in-memory store; data is lost on restart")
		return db.NewMemoryStore(), nil
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL, logger.With("component", "db"))
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	store, err := db.NewPostgresStore(pool, encryptor, logger.With("component", "store"))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	return store, nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			a.Logger.Warn("failed to close event publisher", "error", err)
		}
	}
	if a.SessionManager != nil {
		closeSessionManager(a.Logger, a.SessionManager)
	}
	if a.CacheProvider != nil {
		closeCacheProvider(a.Logger, a.CacheProvider)
	}
	if a.Store != nil {
		a.Store.Close()
	}
	if a.sentryEnabled {
		sentry.Flush(2 * time.Second)
	}
}

func initSentry(cfg *config.Config) (bool, error) {
	if strings.TrimSpace(cfg.SentryDSN) == "" {
		return false, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.SentryEnvironment,
		EnableTracing:    cfg.SentryTracesSampleRate > 0,
		TracesSampleRate: cfg.SentryTracesSampleRate,
	})
	if err != nil {
		return false, fmt.Errorf("failed to initialize sentry: %w", err)
	}
	return true, nil
}

func newLogger(cfg *config.Config, reportToSentry bool) *slog.Logger {
	var handler slog.Handler
	format := strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})
	default:
		handler = tint.NewHandler(os.Stdout, &tint.Options{Level: cfg.LogLevel})
	}

	if reportToSentry {
		sentryHandler := sentryslog.Option{
			EventLevel: []slog.Level{slog.LevelError},
		}.NewSentryHandler(context.Background())
		handler = logging.NewFanout(handler, sentryHandler)
	}
	return slog.New(handler)
}

func closeSessionManager(logger *slog.Logger, manager *session.Manager) {
	if manager == nil {
		return
	}
	if err := manager.Close(); err != nil && logger != nil {
		logger.Warn("failed to close session manager", "error", err)
	}
}

func closeCacheProvider(logger *slog.Logger, provider cache.Provider) {
	if provider == nil {
		return
	}
	if err := provider.Close(); err != nil && logger != nil {
		logger.Warn("failed to close cache provider", "error", err)
	}
}
