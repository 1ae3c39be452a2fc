package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/joao-fontenele/storefront/internal/auth"
	"github.com/joao-fontenele/storefront/internal/cart"
	"github.com/joao-fontenele/storefront/internal/catalog"
	"github.com/joao-fontenele/storefront/internal/checkout"
	"github.com/joao-fontenele/storefront/internal/config"
	"github.com/joao-fontenele/storefront/internal/inventory"
	"github.com/joao-fontenele/storefront/internal/messaging"
	"github.com/joao-fontenele/storefront/internal/orderfeed"
	"github.com/joao-fontenele/storefront/internal/orders"
	"github.com/joao-fontenele/storefront/internal/payment"
	"github.com/joao-fontenele/storefront/internal/telemetry"
	"github.com/joao-fontenele/storefront/internal/users"
)

const serviceName = "storefront-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := telemetry.NewLogger(serviceName, cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("storefront api stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, serviceName, cfg.ServiceVersion)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, cfg.ServiceVersion)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownMeter(context.Background()) }()

	db, err := telemetry.OpenDB(ctx, "postgres", cfg.PostgresURL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	var publisher messaging.Publisher = messaging.LogPublisher{Logger: logger}
	if len(cfg.KafkaBrokers) > 0 {
		producer := messaging.NewProducer(cfg.KafkaBrokers)
		defer func() { _ = producer.Close() }()
		publisher = producer
	} else {
		logger.Warn("KAFKA_BROKERS not set, order events will only be logged")
	}

	images, err := catalog.NewImageStore(cfg.UploadDir)
	if err != nil {
		return err
	}

	feed := orderfeed.NewHub(logger)
	defer feed.Close()

	app := newApplication(cfg, logger, db, publisher, newPaymentProvider(cfg, logger), images, feed, metricsHandler)

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: otelhttp.NewHandler(app.routes(), serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting storefront api", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		feed.Close()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newApplication(
	cfg config.Config,
	logger *slog.Logger,
	db *sql.DB,
	publisher messaging.Publisher,
	provider payment.Provider,
	images catalog.Images,
	feed *orderfeed.Hub,
	metrics http.Handler,
) *application {
	carts := cart.NewCartRepository(db)
	userRepo := users.NewUserRepository(db, carts)
	orderRepo := orders.NewOrderRepository(db, carts)
	notifier := orders.NewNotifier(publisher, feed, logger)
	tokens := auth.NewTokens(cfg.JWTSecret, auth.TokenTTL)

	return &application{
		cfg:        cfg,
		logger:     logger,
		middleware: auth.NewMiddleware(tokens, userRepo, logger),
		users:      users.NewHandler(userRepo, tokens, cfg.CookieSecure, logger),
		catalog:    catalog.NewHandler(catalog.NewCatalogRepository(db), images, cfg.PublicBaseURL, logger),
		carts:      cart.NewHandler(carts, cfg.PublicBaseURL, logger),
		orders:     orders.NewHandler(orderRepo, notifier, cfg.PublicBaseURL, logger),
		checkout: checkout.NewHandler(checkout.Deps{
			Carts:    carts,
			Sessions: checkout.NewSessionRepository(db),
			Orders:   orderRepo,
			Users:    userRepo,
			Provider: provider,
			Notifier: notifier,
			Currency: cfg.Currency,
		}, logger),
		inventory: inventory.NewHandler(inventory.NewInventoryRepository(db), logger),
		feed:      feed,
		metrics:   metrics,
	}
}

// newPaymentProvider returns Stripe when a key is configured, otherwise a provider
// that marks every session paid so checkout works locally.
func newPaymentProvider(cfg config.Config, logger *slog.Logger) payment.Provider {
	if cfg.StripeSecretKey == "" {
		logger.Warn("STRIPE_SECRET_KEY not set, using fake payment provider")
		return payment.NewFake(cfg.CheckoutSuccessURL)
	}

	stripe := payment.NewStripe(payment.StripeConfig{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		SuccessURL:    cfg.CheckoutSuccessURL,
		CancelURL:     cfg.CheckoutCancelURL,
	})
	return payment.NewRetrying(stripe, 3, logger)
}
