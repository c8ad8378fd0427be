package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayo6706/paynxt/internal/api"
	"github.com/ayo6706/paynxt/internal/api/middleware"
	"github.com/ayo6706/paynxt/internal/boltstore"
	"github.com/ayo6706/paynxt/internal/config"
	"github.com/ayo6706/paynxt/internal/db"
	"github.com/ayo6706/paynxt/internal/idempotency"
	"github.com/ayo6706/paynxt/internal/observability"
	"github.com/ayo6706/paynxt/internal/repository"
	"github.com/ayo6706/paynxt/internal/service"
	"github.com/ayo6706/paynxt/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Ledger is the store both processes run against: Postgres or the embedded
// bolt file, chosen by STORE_DRIVER.
type Ledger interface {
	service.QueryStore
	Ping(ctx context.Context) error
	Close() error
}

// Run bootstraps the HTTP API and the reconciliation worker, blocking until
// shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateAPI(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	logger, err := NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ledger, err := OpenLedger(ctx, cfg, "paynxt-api")
	if err != nil {
		return err
	}
	defer ledger.Close()

	var cache redis.Cmdable
	if cfg.RedisURL != "" {
		redisClient, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
		cache = redisClient
	} else {
		logger.Info("REDIS_URL not set, idempotency responses are served from the ledger store only")
	}

	idemStore := idempotency.NewStore(cache, ledger.Queries(), cfg.IdempotencyTTL)
	services := NewServices(ledger, cfg)

	reconWorker := worker.NewReconciliationWorker(service.NewReconciliationService(ledger)).
		WithInterval(cfg.ReconciliationInterval).
		WithLogger(logger)
	stopRecon := reconWorker.Run(ctx)
	logger.Info("reconciliation worker started", zap.Duration("interval", cfg.ReconciliationInterval))

	stopSettlement := startInProcessSettlement(ctx, ledger, cfg, logger)

	router := api.NewRouter(cfg, logger, ledger, idemStore, cache, services)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort), zap.String("store", cfg.StoreDriver))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping reconciliation worker")
	stopRecon()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	// The server is drained first so no intake lands after the last pass.
	graceCtx, graceCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer graceCancel()
	if err := stopSettlement(graceCtx); err != nil {
		logger.Warn("settlement worker did not stop within grace period", zap.Duration("grace", cfg.ShutdownGrace), zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

// RunWorker runs the settlement worker until SIGINT/SIGTERM, then lets the
// item in flight finish within SHUTDOWN_GRACE. It refuses bolt, where the API
// process settles on its own.
func RunWorker() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateWorker(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	logger, err := NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ledger, err := OpenLedger(ctx, cfg, "paynxt-sweeper")
	if err != nil {
		return err
	}
	defer ledger.Close()

	settlementWorker := NewSettlementWorker(ledger, cfg, logger)
	go settlementWorker.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("shutdown signal received", zap.String("signal", sig.String()))

	graceCtx, graceCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer graceCancel()
	if err := settlementWorker.Shutdown(graceCtx); err != nil {
		logger.Warn("settlement worker did not stop within grace period", zap.Duration("grace", cfg.ShutdownGrace), zap.Error(err))
		return err
	}

	logger.Info("shutdown complete")
	return nil
}

// NewServices builds the API-facing services over ledger.
func NewServices(ledger service.QueryStore, cfg *config.Config) api.Services {
	return api.Services{
		Accounts:    service.NewAccountService(ledger),
		Transfers:   service.NewTransferService(ledger).WithStrictAdvisory(cfg.AdvisoryStrict),
		PayRequests: service.NewPayRequestService(ledger).WithStrictAdvisory(cfg.AdvisoryStrict),
	}
}

// NewSettlementWorker wires a settlement worker to ledger with the configured
// poll interval, batch size and unit timeout.
func NewSettlementWorker(ledger service.QueryStore, cfg *config.Config, logger *zap.Logger) *worker.SettlementWorker {
	return worker.NewSettlementWorker(service.NewSettlementService(ledger)).
		WithPollInterval(cfg.PollInterval).
		WithBatchSize(cfg.BatchSize).
		WithUnitTimeout(cfg.SettlementUnitTimeout).
		WithLogger(logger)
}

// startInProcessSettlement runs the settlement worker over the API's own
// ledger when the store cannot be shared with a sweeper process. The returned
// function stops it; it is a no-op when settlement runs elsewhere.
func startInProcessSettlement(ctx context.Context, ledger service.QueryStore, cfg *config.Config, logger *zap.Logger) func(context.Context) error {
	if !cfg.SettlesInProcess() {
		return func(context.Context) error { return nil }
	}
	settlementWorker := NewSettlementWorker(ledger, cfg, logger)
	settlementWorker.Run(ctx)
	logger.Info("settlement worker running in the API process", zap.String("store", cfg.StoreDriver))
	return settlementWorker.Shutdown
}

// OpenLedger opens the configured store. Postgres schemas are migrated on
// open; bolt buckets are created by boltstore.Open. component names the
// process in Postgres connection metadata.
func OpenLedger(ctx context.Context, cfg *config.Config, component string) (Ledger, error) {
	switch cfg.StoreDriver {
	case config.DriverBolt:
		store, err := boltstore.Open(cfg.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("open bolt store: %w", err)
		}
		return store, nil
	default:
		pool, err := db.Connect(ctx, cfg.DatabaseURL,
			db.WithApplicationName(component),
			db.WithMaxConns(cfg.DBMaxConns),
		)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		return repository.NewStore(pool), nil
	}
}

// NewLogger builds the production JSON logger at the given level.
func NewLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
