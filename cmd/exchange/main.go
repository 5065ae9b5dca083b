package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"exchange-core/internal/api"
	"exchange-core/internal/config"
	"exchange-core/internal/engine"
	"exchange-core/internal/eventbus/kafka"
	"exchange-core/internal/logging"
	"exchange-core/internal/metrics"
	"exchange-core/internal/projection"
)

func main() {
	configPath := flag.String("config", os.Getenv("EXCHANGE_CONFIG"), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	base, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	logger := base.With(zap.String("service", cfg.ServiceName), zap.String("env", cfg.Env))
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("exchange stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	if cfg.Env == "dev" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	eng := engine.NewEngine(cfg.EngineConfig(),
		engine.WithLogger(logger.Named("engine")),
		engine.WithMetrics(m),
	)

	orders := projection.NewMemoryOrderRepository()
	trades := projection.NewMemoryTradeRepository()
	if err := eng.Subscribe(projection.NewProjector(orders, trades, logger.Named("projection"))); err != nil {
		return err
	}
	if err := eng.Subscribe(engine.LogSubscriber{Log: logger.Named("results")}); err != nil {
		return err
	}

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewSyncProducer(cfg.Kafka.Brokers, cfg.Kafka.ClientID)
		if err != nil {
			return err
		}
		bridge := kafka.NewBridge(producer, cfg.Kafka.Topic, logger.Named("kafka"), kafka.NewProducerMetrics(registry))
		defer func() {
			if err := bridge.Close(); err != nil {
				logger.Warn("kafka producer close failed", zap.Error(err))
			}
		}()
		if err := eng.Subscribe(bridge); err != nil {
			return err
		}
	}

	eng.Start()

	handler := api.NewHandler(eng, orders, trades, api.HandlerConfig{
		RequestTimeout: cfg.HTTP.RequestTimeout,
		IdempotencyTTL: cfg.HTTP.IdempotencyTTL,
		Logger:         logger.Named("api"),
	})
	router := api.NewRouter(handler, api.RouterConfig{
		Logger:         logger.Named("http"),
		MetricsPath:    cfg.MetricsPath,
		MetricsHandler: metrics.Handler(registry),
		Middleware:     []gin.HandlerFunc{m.Middleware()},
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go cleanupIdempotency(ctx, handler.Idempotency(), cfg.HTTP.IdempotencyTTL)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}

	// Everything already sequenced is processed and published before exit.
	eng.Stop()
	return runErr
}

func cleanupIdempotency(ctx context.Context, store *api.IdempotencyStore, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store.Cleanup()
		}
	}
}
