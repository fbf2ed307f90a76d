package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-faster/errors"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/cart-store/internal/adapter/handler"
	"github.com/rl1809/cart-store/internal/adapter/storage"
	"github.com/rl1809/cart-store/internal/config"
	"github.com/rl1809/cart-store/internal/core/service"
	"github.com/rl1809/cart-store/internal/logging"
	"github.com/rl1809/cart-store/internal/port"
)

const shutdownTimeout = 5 * time.Second

// backend groups the ports served by the configured storage.
type backend struct {
	slots    port.SlotRepository
	guard    port.IdempotencyGuard
	receipts port.ReceiptRepository
	catalog  port.CatalogSource
	closers  []func() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := logging.New(logging.Options{Service: "cart-store", Env: cfg.Env, Level: cfg.LogLevel})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		for _, closeFn := range b.closers {
			if err := closeFn(); err != nil {
				logger.Warn("failed to close connection", zap.Error(err))
			}
		}
		logger.Info("connections closed")
	}()

	catalog := service.NewCatalogView(b.catalog, service.WithCatalogLogger(logger))
	if err := catalog.Load(ctx); err != nil {
		return err
	}

	checkout := service.NewCheckoutService(b.guard, cfg.QueueSize)

	// Start worker pool
	var wg sync.WaitGroup
	worker := &service.ReceiptWorker{Receipts: b.receipts, Slots: b.slots, Logger: logger}
	for i := 0; i < cfg.WorkerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			worker.Run(id, checkout.Receipts())
		}(i)
	}
	logger.Info("started receipt workers", zap.Int("count", cfg.WorkerCount))

	storeOpts := []service.CartOption{service.WithTaxRate(cfg.TaxRate)}

	grpcServer := grpc.NewServer()
	handler.RegisterCartServiceServer(grpcServer, handler.NewGRPCHandler(catalog, checkout, b.slots, logger, storeOpts...))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(handler.CartServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewHTTPHandler(catalog, checkout, b.slots, logger, storeOpts...).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return errors.Wrap(err, "listen grpc")
		}
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "serve http")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP shutdown incomplete", zap.Error(err))
		}
		logger.Info("HTTP server stopped")

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")
		return nil
	})

	err = g.Wait()

	// Drain queued receipts before closing connections
	checkout.Close()
	wg.Wait()
	logger.Info("workers stopped")

	return err
}

func openBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (*backend, error) {
	b := &backend{}

	var mysqlAdapter *storage.MySQLAdapter
	if cfg.UsesMySQL() {
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, errors.Wrap(err, "open mysql")
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
		b.closers = append(b.closers, db.Close)

		mysqlAdapter = storage.NewMySQLAdapter(db)
		if err := mysqlAdapter.Ping(ctx); err != nil {
			return nil, errors.Wrap(err, "ping mysql")
		}
		if err := mysqlAdapter.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		logger.Info("connected to mysql")
	}

	switch cfg.Storage {
	case config.StorageRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		b.closers = append(b.closers, rdb.Close)

		redisAdapter := storage.NewRedisAdapter(rdb).WithIdempotencyTTL(cfg.IdempotencyTTL)
		if err := redisAdapter.Ping(ctx); err != nil {
			return nil, errors.Wrap(err, "ping redis")
		}
		logger.Info("connected to redis")

		b.slots, b.guard, b.receipts = redisAdapter, redisAdapter, mysqlAdapter
	case config.StorageMySQL:
		b.slots, b.guard, b.receipts = mysqlAdapter, mysqlAdapter, mysqlAdapter
	case config.StorageMemory:
		mem := storage.NewMemoryAdapter()
		b.slots, b.guard, b.receipts = mem, mem, mem
		logger.Warn("using in-memory storage, carts will not survive a restart")
	}

	switch cfg.CatalogSource {
	case config.CatalogMySQL:
		b.catalog = mysqlAdapter
	default:
		b.catalog = storage.NewJSONCatalog(cfg.CatalogPath)
	}

	return b, nil
}
