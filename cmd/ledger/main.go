package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/pj-finance-ledger/internal/config"
	"github.com/boddenberg/pj-finance-ledger/internal/handler"
	"github.com/boddenberg/pj-finance-ledger/internal/infra/cache"
	"github.com/boddenberg/pj-finance-ledger/internal/infra/client"
	"github.com/boddenberg/pj-finance-ledger/internal/infra/memory"
	"github.com/boddenberg/pj-finance-ledger/internal/infra/observability"
	"github.com/boddenberg/pj-finance-ledger/internal/infra/postgres"
	"github.com/boddenberg/pj-finance-ledger/internal/infra/ratelimit"
	"github.com/boddenberg/pj-finance-ledger/internal/infra/resilience"
	"github.com/boddenberg/pj-finance-ledger/internal/port"
	"github.com/boddenberg/pj-finance-ledger/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("data_backend", cfg.DataBackend),
		zap.Bool("run_migrations", cfg.RunMigrations),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Int("advisor_rate_limit", cfg.AdvisorRateLimit),
		zap.Duration("advisor_rate_window", cfg.AdvisorRateWindow),
		zap.Bool("auth_enabled", cfg.JWTSecret != ""),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "pj-finance-ledger")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Store ---
	var store port.LedgerStore
	switch cfg.DataBackend {
	case config.BackendPostgres:
		db, err := postgres.Open(postgres.Options{
			DSN:             cfg.DatabaseURL,
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLife,
		}, logger)
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		if cfg.RunMigrations {
			if err := postgres.RunMigrations(db, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
		store = postgres.NewStore(db)
		logger.Info("using postgres as data backend")
	default:
		store = memory.New()
		logger.Warn("using in-memory data backend, data is lost on restart")
	}

	// --- Cache ---
	categoryCache := cache.New[string](cfg.CacheTTL)
	defer categoryCache.Stop()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("advisor", logger)

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	advisorClient := client.NewAdvisorClient(httpClient, cfg.AdvisorAPIURL, cb, resilienceCfg, logger)

	limiter := ratelimit.NewFixedWindow(ratelimit.Config{
		Limit:  cfg.AdvisorRateLimit,
		Window: cfg.AdvisorRateWindow,
	})
	defer limiter.Stop()

	// --- Services ---
	categorySvc := service.NewCategoryService(store, categoryCache, metrics, logger)
	ledgerSvc := service.NewLedgerService(store, metrics, logger)
	invoiceSvc := service.NewInvoiceService(store, categorySvc, metrics, logger)
	statsSvc := service.NewStatsService(ledgerSvc, store, metrics, logger)
	advisorSvc := service.NewAdvisorService(statsSvc, invoiceSvc, advisorClient, limiter, metrics, logger)

	// --- Router ---
	router := handler.NewRouter(handler.Services{
		Ledger:     ledgerSvc,
		Invoices:   invoiceSvc,
		Stats:      statsSvc,
		Categories: categorySvc,
		Advisor:    advisorSvc,
	}, store, cfg.JWTSecret, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
