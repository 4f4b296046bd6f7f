package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjellgren/kasse/internal"
	"github.com/kjellgren/kasse/internal/billing"
	"github.com/kjellgren/kasse/internal/bootstrap"
	"github.com/kjellgren/kasse/internal/postgres"
	"github.com/kjellgren/kasse/internal/service"
	"github.com/kjellgren/kasse/internal/telemetry"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database/sql connection for migrations
	logger.Info("Connecting to database...")
	sqlDB, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()

	// Verify database connection
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	logger.Info("Database connection established")

	// Run migrations
	logger.Info("Running database migrations...")
	if err := internal.RunMigrations(sqlDB); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database migrations completed successfully")

	// Initialize pgx connection pool for application
	pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	store := postgres.NewOrderStore(pool)

	// Seed the payment-method registry
	if err := bootstrap.EnsurePaymentMethods(ctx, store, logger); err != nil {
		return fmt.Errorf("failed to seed payment methods: %w", err)
	}

	// Initialize Stripe billing provider
	logger.Info("Initializing Stripe billing provider...")
	stripeConfig := billing.StripeConfig{
		APIKey: cfg.Stripe.SecretKey,
	}
	stripeProvider, err := billing.NewStripeProvider(stripeConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize Stripe provider: %w", err)
	}
	logger.Info("Stripe billing provider initialized", "test_mode", stripeConfig.IsTestMode())

	providers := []billing.Provider{stripeProvider}

	// Initialize invoice gateway provider when configured
	if cfg.EInvoice.BaseURL != "" {
		einvoiceProvider, err := billing.NewEInvoiceProvider(billing.EInvoiceConfig{
			BaseURL: cfg.EInvoice.BaseURL,
			APIKey:  cfg.EInvoice.APIKey,
			Timeout: cfg.EInvoice.Timeout,
		}, nil)
		if err != nil {
			return fmt.Errorf("failed to initialize invoice gateway provider: %w", err)
		}
		providers = append(providers, einvoiceProvider)
		logger.Info("Invoice gateway provider initialized", "base_url", cfg.EInvoice.BaseURL)
	} else {
		logger.Warn("EINVOICE_BASE_URL not set, email/EHF invoicing disabled")
	}

	registry := billing.NewRegistry(providers...)
	metrics := telemetry.NewMetrics(nil, "kasse")

	orders := service.NewOrderService(store, registry, service.Config{
		Currency: cfg.Currency,
	}, logger, metrics, nil)

	logger.Info("Order core initialized", "currency", cfg.Currency)

	// Expose metrics and a liveness probe. The order core itself is consumed
	// as a library; this process only carries operational endpoints.
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleGetOrder(w, r, orders)
	})

	addr := fmt.Sprintf(":%d", cfg.MetricsPort)
	logger.Info("Starting operational endpoints", "address", addr)

	if err := http.ListenAndServe(addr, mux); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
