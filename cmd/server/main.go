package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/rl1809/parts-ledger/internal/adapter/catalog"
	"github.com/rl1809/parts-ledger/internal/adapter/directory"
	"github.com/rl1809/parts-ledger/internal/adapter/handler"
	"github.com/rl1809/parts-ledger/internal/adapter/messaging"
	"github.com/rl1809/parts-ledger/internal/adapter/storage"
	"github.com/rl1809/parts-ledger/internal/config"
	"github.com/rl1809/parts-ledger/internal/core/service"
	"github.com/rl1809/parts-ledger/internal/observability"
	"github.com/rl1809/parts-ledger/internal/port"
)

const (
	publishWorkers   = 4
	publishQueueSize = 10000
	shutdownTimeout  = 10 * time.Second
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	otelShutdown, err := observability.Setup(ctx, observability.Settings{
		ServiceName:    config.ServiceName,
		ServiceVersion: config.ServiceVersion,
		Endpoint:       cfg.OtelEndpoint,
		Insecure:       cfg.Development,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup telemetry: %v\n", err)
	}

	logger, err := observability.NewLogger(config.ServiceName, cfg.LogLevel, cfg.Development, cfg.OtelEndpoint != "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	var closers []func() error

	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	closers = append(closers, closeRepo)

	cache, closeCache, err := openCache(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open cache", zap.Error(err))
	}
	closers = append(closers, closeCache)

	parts, err := openCatalog(cfg, logger)
	if err != nil {
		logger.Fatal("failed to open catalog", zap.Error(err))
	}

	dir := directory.NewMemoryDirectory()
	if cfg.DirectoryFile != "" {
		if dir, err = directory.LoadFile(cfg.DirectoryFile); err != nil {
			logger.Fatal("failed to load directory", zap.Error(err))
		}
	}

	publisher, err := openPublisher(cfg, logger)
	if err != nil {
		logger.Fatal("failed to open event publisher", zap.Error(err))
	}
	if publisher != nil {
		async := messaging.NewAsyncPublisher(publisher, publishWorkers, publishQueueSize, logger)
		publisher = async
		closers = append(closers, async.Close)
	}

	opts := service.Options{
		MaxRetries:        cfg.MaxRetries,
		WarningMultiplier: cfg.WarningMultiplier,
		ConsumptionWindow: cfg.ConsumptionWindow,
	}
	bus := service.NewEventBus(logger, publisher)
	svc := handler.Services{
		Items:           service.NewItemService(repo, parts, bus, logger, opts),
		Ledger:          service.NewLedgerService(repo, parts, dir, bus, logger, opts),
		Availability:    service.NewAvailabilityService(repo, dir, cache, bus, logger, opts),
		Critical:        service.NewCriticalReportService(repo, parts, logger, opts),
		Recommendations: service.NewRecommendationService(repo, parts, dir, logger, opts),
	}

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	handler.RegisterInventoryServer(grpcServer, handler.NewGRPCHandler(svc, logger))
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// Initialize HTTP server
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewHTTPHandler(svc, logger).Routes(cfg.AllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	var errs error
	for i := len(closers) - 1; i >= 0; i-- {
		errs = errors.Join(errs, closers[i]())
	}
	errs = errors.Join(errs, otelShutdown(shutdownCtx))
	if errs != nil {
		logger.Error("shutdown completed with errors", zap.Error(errs))
		return
	}
	logger.Info("connections closed")
}

func openRepository(ctx context.Context, cfg *config.Config, logger *zap.Logger) (port.StockRepository, func() error, error) {
	if cfg.Storage == config.StorageMemory {
		logger.Warn("using in-memory storage, data is lost on restart")
		return storage.NewMemoryAdapter(), func() error { return nil }, nil
	}

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
	if err := adapter.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	logger.Info("connected to mysql")
	return adapter, db.Close, nil
}

func openCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (port.AvailabilityCache, func() error, error) {
	switch cfg.Cache {
	case config.CacheRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, PoolSize: 100})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		logger.Info("connected to redis")
		return storage.NewRedisAdapter(rdb, cfg.CacheTTL), rdb.Close, nil
	case config.CacheLRU:
		return storage.NewLRUCache(cfg.CacheSize, cfg.CacheTTL), func() error { return nil }, nil
	}
	return nil, func() error { return nil }, nil
}

func openCatalog(cfg *config.Config, logger *zap.Logger) (port.PartCatalog, error) {
	switch {
	case cfg.CatalogURL != "":
		return catalog.NewHTTPCatalog(cfg.CatalogURL, nil, 0, logger), nil
	case cfg.CatalogFile != "":
		return catalog.LoadFile(cfg.CatalogFile)
	}
	logger.Warn("no catalog configured, every part lookup will miss")
	return catalog.NewMemoryCatalog(), nil
}

func openPublisher(cfg *config.Config, logger *zap.Logger) (port.EventPublisher, error) {
	switch cfg.Events {
	case config.EventsKafka:
		return messaging.NewKafkaPublisher(cfg.KafkaBroker, cfg.KafkaTopic, otel.GetTracerProvider(), logger)
	case config.EventsRabbitMQ:
		return messaging.NewRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange, logger)
	case config.EventsLog:
		return messaging.NewLogPublisher(logger), nil
	}
	return nil, nil
}
