package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AfshinJalili/sentinel/libs/health"
	"github.com/AfshinJalili/sentinel/libs/httpmiddleware"
	"github.com/AfshinJalili/sentinel/libs/kafka"
	"github.com/AfshinJalili/sentinel/libs/logging"
	"github.com/AfshinJalili/sentinel/libs/metrics"
	"github.com/AfshinJalili/sentinel/libs/trace"
	"github.com/AfshinJalili/sentinel/services/platform/internal/config"
	"github.com/AfshinJalili/sentinel/services/platform/internal/handlers"
	"github.com/AfshinJalili/sentinel/services/platform/internal/rate"
	"github.com/AfshinJalili/sentinel/services/platform/internal/security"
	"github.com/AfshinJalili/sentinel/services/platform/internal/service"
	"github.com/AfshinJalili/sentinel/services/platform/internal/storage"
	"github.com/AfshinJalili/sentinel/services/platform/internal/usage"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

const (
	storeOpenTimeout = 15 * time.Second
	drainTimeout     = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "platform: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := logging.NewLogger(cfg.App.LogLevel, cfg.App.ServiceName, cfg.App.Env)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := trace.Init(ctx, trace.ConfigFromEnv(cfg.App.ServiceName, cfg.App.Env))
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	} else {
		defer func() { _ = shutdownTracer(context.WithoutCancel(ctx)) }()
	}

	gin.SetMode(gin.ReleaseMode)
	if cfg.App.IsDev() {
		gin.SetMode(gin.DebugMode)
	}

	registry := metrics.NewRegistry()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	limiter, closeLimiter, err := buildLimiter(cfg, logger)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	defer func() { _ = closeLimiter() }()

	recorder, closeProducer, err := buildRecorder(cfg, store, registry, logger)
	if err != nil {
		return fmt.Errorf("usage recorder: %w", err)
	}
	defer func() { _ = closeProducer() }()

	hasher, err := security.NewHasher(cfg.Argon2)
	if err != nil {
		return fmt.Errorf("hasher: %w", err)
	}
	tokens, err := security.NewTokenCodec(cfg.TokenCodec(), nil)
	if err != nil {
		return fmt.Errorf("token codec: %w", err)
	}

	svc := service.New(store, hasher, tokens, service.Options{
		KeyTag:        cfg.Keys.Tag,
		MaxActiveKeys: cfg.Keys.MaxActiveKeys,
	}, logger, service.NewMetrics(registry))

	ready := health.NewManager(true)
	ready.AddCheck("store", store.Ping)

	router := gin.New()
	router.Use(
		httpmiddleware.RequestID(),
		httpmiddleware.Logger(logger, metrics.NewHTTP(registry)),
		httpmiddleware.Recovery(logger),
		trace.Middleware(cfg.App.ServiceName),
	)
	router.GET("/healthz", health.LivenessHandler)
	router.GET("/health", health.LivenessHandler)
	router.GET("/readyz", health.ReadinessHandler(ready))
	router.GET(cfg.App.MetricsPath, gin.WrapH(metrics.Handler(registry)))

	var usageRecorder handlers.UsageRecorder
	if recorder != nil {
		usageRecorder = recorder
	}
	handlers.New(svc, limiter, usageRecorder, logger).RegisterRoutes(router)

	server := &http.Server{
		Addr:         cfg.App.HTTP.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.App.HTTP.ReadTimeout,
		WriteTimeout: cfg.App.HTTP.WriteTimeout,
		IdleTimeout:  cfg.App.HTTP.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("platform service listening", "addr", server.Addr, "store", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdown(server, ready, logger)
	svc.Wait()
	if recorder != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := recorder.Close(drainCtx); err != nil {
			logger.Error("usage recorder drain failed", "error", err)
		}
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Backend, error) {
	ctx, cancel := context.WithTimeout(ctx, storeOpenTimeout)
	defer cancel()

	store, err := storage.Open(ctx, cfg.Store(), logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	if cfg.StoreDriver == storage.DriverSQLite {
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return store, nil
}

func buildLimiter(cfg *config.Config, logger *slog.Logger) (rate.Limiter, func() error, error) {
	if cfg.RateLimit.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.Redis.Addr,
			Password: cfg.RateLimit.Redis.Password,
			DB:       cfg.RateLimit.Redis.DB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			if cfg.App.IsDev() {
				logger.Warn("redis rate limiter unavailable, falling back to memory", "error", err)
				return rate.NewMemory(cfg.RateLimit.LoginLimit, cfg.RateLimit.Window), func() error { return nil }, nil
			}
			return nil, nil, err
		}

		return rate.NewRedisLimiter(client, cfg.RateLimit.LoginLimit, cfg.RateLimit.Window, cfg.RateLimit.Redis.Prefix), client.Close, nil
	}

	if !cfg.App.IsDev() {
		logger.Warn("rate limiter redis not configured, limits are per instance")
	}
	return rate.NewMemory(cfg.RateLimit.LoginLimit, cfg.RateLimit.Window), func() error { return nil }, nil
}

// buildRecorder returns a nil recorder when usage recording is disabled.
func buildRecorder(cfg *config.Config, store storage.Backend, registry prometheus.Registerer, logger *slog.Logger) (*usage.Recorder, func() error, error) {
	noop := func() error { return nil }
	if !cfg.Usage.Enabled {
		return nil, noop, nil
	}

	closeProducer := noop
	var sinks usage.MultiSink
	if len(cfg.Usage.KafkaBrokers) > 0 {
		producerMetrics := kafka.NewProducerMetrics(registry)
		producerCfg := kafka.ProducerConfig{Brokers: cfg.Usage.KafkaBrokers, ClientID: cfg.App.ServiceName}
		producer, err := kafka.NewSyncProducer(producerCfg, logger, producerMetrics)
		if err != nil {
			return nil, nil, fmt.Errorf("kafka producer: %w", err)
		}
		closeProducer = producer.Close

		var publisher kafka.Publisher = producer
		if cfg.Usage.DLQTopic != "" {
			publisher = kafka.NewDLQPublisher(producer, producer, cfg.Usage.DLQTopic, logger)
		}
		sinks = append(sinks, usage.NewKafkaSink(publisher, cfg.Usage.Topic, cfg.App.ServiceName))
	}
	if cfg.Usage.StoreLogs || len(sinks) == 0 {
		sinks = append(sinks, usage.NewStorageSink(store))
	}

	var sink usage.Sink = sinks
	if len(sinks) == 1 {
		sink = sinks[0]
	}
	return usage.NewRecorder(sink, usage.Options{
		BufferSize:    cfg.Usage.BufferSize,
		BatchSize:     cfg.Usage.BatchSize,
		FlushInterval: cfg.Usage.FlushInterval,
	}, logger, usage.NewMetrics(registry)), closeProducer, nil
}

func shutdown(server *http.Server, ready *health.Manager, logger *slog.Logger) {
	ready.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	logger.Info("shutdown started")
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		return
	}
	logger.Info("shutdown complete")
}
