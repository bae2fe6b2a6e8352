package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/warehouse-inventory/internal/adapter/handler"
	"github.com/rl1809/warehouse-inventory/internal/adapter/identity"
	"github.com/rl1809/warehouse-inventory/internal/adapter/idgen"
	"github.com/rl1809/warehouse-inventory/internal/adapter/metrics"
	"github.com/rl1809/warehouse-inventory/internal/adapter/storage"
	"github.com/rl1809/warehouse-inventory/internal/config"
	"github.com/rl1809/warehouse-inventory/internal/core/service"
	"github.com/rl1809/warehouse-inventory/internal/port"
)

type repositories interface {
	port.InventoryRepository
	port.AssociateRepository
}

func main() {
	flags := config.NewFlagSet("inventory-server")
	if err := flags.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	cfg, err := config.Load(flags)
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		zap.NewExample().Fatal("failed to build logger", zap.Error(err))
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	repo, closeRepo, err := openRepository(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer closeRepo()

	// Initialize cache
	var cache port.CacheRepository
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect redis", zap.Error(err))
		}
		defer rdb.Close()
		cache = storage.NewRedisAdapter(rdb)
		logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		cache = storage.NewLRUCache(cfg.Redis.LocalSize, cfg.Auth.TokenTTL)
		logger.Info("using in-process cache", zap.Int("size", cfg.Redis.LocalSize))
	}

	ids, err := idgen.NewSnowflake(cfg.IDGen.Node)
	if err != nil {
		logger.Fatal("failed to create id generator", zap.Error(err))
	}
	issuer, err := identity.NewJWTIssuer(cfg.Auth.JWTSecret)
	if err != nil {
		logger.Fatal("failed to create token issuer", zap.Error(err))
	}

	// Initialize metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := metrics.NewPrometheusRecorder(registry)
	if err != nil {
		logger.Fatal("failed to register metrics", zap.Error(err))
	}

	// Initialize services
	inventoryService := service.NewInventoryService(repo, ids,
		service.WithCache(cache),
		service.WithRecorder(recorder),
		service.WithLogger(logger.Named("inventory")),
	)
	authService := service.NewAuthService(repo, ids, issuer, cache, cfg.Auth.TokenTTL, logger.Named("auth"))

	// Initialize gRPC server
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		handler.LoggingInterceptor(logger.Named("grpc")),
		handler.AuthInterceptor(authService),
	))
	handler.NewGRPCHandler(inventoryService).Register(grpcServer)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", cfg.GRPC.Addr), zap.Error(err))
	}

	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPC.Addr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(inventoryService, authService, logger.Named("http"))
	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: handler.NewRouter(httpHandler, registry),
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")
}

// openRepository returns the configured store and a func that releases it.
func openRepository(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (repositories, func() error, error) {
	if cfg.Driver == "" || cfg.Driver == "memory" {
		logger.Warn("using in-memory storage, data is lost on restart")
		return storage.NewMemoryAdapter(), func() error { return nil }, nil
	}

	adapter, closeDB, err := storage.OpenSQLAdapter(ctx, cfg.Driver, cfg.DSN, storage.PoolConfig{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Info("connected to database", zap.String("driver", cfg.Driver))
	return adapter, closeDB, nil
}
