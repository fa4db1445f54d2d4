package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/rl1809/scan-sync/internal/adapter/activity"
	"github.com/rl1809/scan-sync/internal/adapter/auth"
	"github.com/rl1809/scan-sync/internal/adapter/handler"
	"github.com/rl1809/scan-sync/internal/adapter/rpc"
	"github.com/rl1809/scan-sync/internal/adapter/storage"
	"github.com/rl1809/scan-sync/internal/config"
	"github.com/rl1809/scan-sync/internal/core/service"
	"github.com/rl1809/scan-sync/internal/logging"
	"github.com/rl1809/scan-sync/internal/port"
)

type canonicalStore interface {
	port.InventoryRepository
	port.ActivityLogger
}

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Server, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	ledger, closeLedger, err := openLedger(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLedger()

	verifier, err := newVerifier(cfg, logger)
	if err != nil {
		return err
	}

	// Activity writes go through the worker pool so the store's latency
	// never lands on the reconcile path.
	activityQueue := activity.NewQueue(store, cfg.ActivityQueueSize, cfg.ActivityWorkers, logger)
	logger.Info("started activity workers", "workers", cfg.ActivityWorkers)

	reconcileService := service.NewReconcileService(store,
		service.WithLedger(ledger),
		service.WithActivityLogger(activityQueue),
		service.WithLogger(logger),
		service.WithLowStockThreshold(cfg.LowStockThreshold),
		service.WithMaxAttempts(cfg.MaxAttempts),
	)

	// gRPC server
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.AuthInterceptor(verifier)))
	rpc.RegisterInventorySyncServer(grpcServer, handler.NewGRPCHandler(reconcileService, logger))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}

	go func() {
		logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", "error", err)
		}
	}()

	// HTTP server
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Mount("/", handler.NewHTTPHandler(reconcileService, verifier, logger).Routes())

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", "error", err)
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	activityQueue.Close()
	logger.Info("activity workers stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Server, logger *slog.Logger) (canonicalStore, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverMySQL:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open mysql: %w", err)
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ping mysql: %w", err)
		}
		adapter := storage.NewMySQLAdapter(db)
		if err := adapter.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("connected to mysql")
		return adapter, func() { db.Close() }, nil

	case config.DriverPostgres:
		pool, err := storage.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		adapter := storage.NewPostgresAdapter(pool)
		if err := adapter.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("connected to postgres")
		return adapter, pool.Close, nil

	case config.DriverMongo:
		client, err := storage.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		adapter := storage.NewMongoAdapter(client.Database(cfg.MongoDB))
		if err := adapter.EnsureIndexes(ctx); err != nil {
			client.Disconnect(context.Background())
			return nil, nil, err
		}
		logger.Info("connected to mongo", "database", cfg.MongoDB)
		return adapter, func() { client.Disconnect(context.Background()) }, nil

	default:
		logger.Warn("using in-memory canonical store, state is lost on restart")
		return storage.NewMemoryAdapter(), func() {}, nil
	}
}

func openLedger(ctx context.Context, cfg *config.Server, logger *slog.Logger) (port.IdempotencyLedger, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR not set, idempotency ledger is process-local")
		return storage.NewMemoryLedger(cfg.IdempotencyTTL), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	logger.Info("connected to redis", "addr", cfg.RedisAddr)
	return storage.NewRedisLedger(rdb, cfg.IdempotencyTTL), func() { rdb.Close() }, nil
}

func newVerifier(cfg *config.Server, logger *slog.Logger) (port.TokenVerifier, error) {
	if cfg.AuthURL != "" {
		logger.Info("verifying tokens remotely", "url", cfg.AuthURL)
		return auth.NewRemoteVerifier(cfg.AuthURL, nil), nil
	}
	tokens, err := auth.ParseTokens(cfg.AuthTokens)
	if err != nil {
		return nil, fmt.Errorf("AUTH_TOKENS: %w", err)
	}
	if len(tokens) == 0 {
		logger.Warn("no AUTH_TOKENS configured, every request will be rejected")
	}
	return auth.NewStaticVerifier(tokens), nil
}
