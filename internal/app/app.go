package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nguthrie/ucp-agent/internal/config"
	"github.com/nguthrie/ucp-agent/internal/event"
	handler "github.com/nguthrie/ucp-agent/internal/handler/http"
	"github.com/nguthrie/ucp-agent/internal/repository"
	"github.com/nguthrie/ucp-agent/internal/repository/memory"
	redisrepo "github.com/nguthrie/ucp-agent/internal/repository/redis"
	"github.com/nguthrie/ucp-agent/internal/service"
	"github.com/nguthrie/ucp-agent/internal/ucp"
	"github.com/nguthrie/ucp-agent/pkg/database"
	"github.com/nguthrie/ucp-agent/pkg/health"
	"github.com/nguthrie/ucp-agent/pkg/httpclient"
	pkgkafka "github.com/nguthrie/ucp-agent/pkg/kafka"
	"github.com/nguthrie/ucp-agent/pkg/middleware"
	"github.com/nguthrie/ucp-agent/pkg/tracing"
)

// App wires together all dependencies and runs the UCP agent.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	redisClient    *redis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "ucp-agent",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Session and profile stores: Redis when configured, in-memory otherwise.
	var (
		redisClient *redis.Client
		sessions    repository.SessionStore
		profiles    repository.ProfileStore
	)
	if cfg.RedisEnabled {
		redisClient, err = database.NewRedisClient(ctx, database.RedisConfig{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("connected to Redis",
			slog.String("host", cfg.RedisHost),
			slog.Int("port", cfg.RedisPort),
		)
		sessions = redisrepo.NewSessionStore(redisClient, time.Duration(cfg.SessionTTLHours)*time.Hour)
		profiles = redisrepo.NewProfileStore(redisClient, time.Duration(cfg.ProfileTTLHours)*time.Hour)
	} else {
		logger.Info("redis disabled, using in-memory stores")
		sessions = memory.NewSessionStore()
		profiles = memory.NewProfileStore()
	}

	// Kafka producer for lifecycle events.
	var (
		producer       *pkgkafka.Producer
		eventPublisher service.EventPublisher
	)
	if cfg.KafkaEnabled {
		kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
		producer = pkgkafka.NewProducer(kafkaCfg, logger)
		eventPublisher = event.NewProducer(producer, logger)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	} else {
		logger.Info("kafka disabled, lifecycle events will not be published")
	}

	// Outbound merchant HTTP client. No retries: each checkout operation is
	// exactly one round trip, and retry policy belongs to the caller.
	baseClient := httpclient.New(httpclient.Config{
		Timeout:         time.Duration(cfg.MerchantTimeoutSeconds) * time.Second,
		MaxRetries:      0,
		MaxConnsPerHost: cfg.MerchantMaxConns,
	})

	var doer ucp.HTTPDoer = baseClient
	if cfg.CBEnabled {
		cbCfg := httpclient.CircuitBreakerConfig{
			Name:         "ucp-merchant",
			MaxRequests:  cfg.CBMaxRequests,
			Interval:     time.Duration(cfg.CBInterval) * time.Second,
			Timeout:      time.Duration(cfg.CBTimeout) * time.Second,
			FailureRatio: cfg.CBFailureRatio,
			MinRequests:  cfg.CBMinRequests,
		}
		doer = httpclient.NewCircuitBreakerClient(baseClient, cbCfg, logger)
		logger.Info("circuit breaker initialized",
			slog.String("name", cbCfg.Name),
			slog.Uint64("max_requests", uint64(cbCfg.MaxRequests)),
			slog.Uint64("min_requests", uint64(cbCfg.MinRequests)),
		)
	}

	// Build the dependency graph.
	ucpClient := ucp.NewClient(doer, logger)
	orchestrator := service.NewOrchestrator(ucpClient, sessions, profiles, eventPublisher, service.FirstAvailable, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	if redisClient != nil {
		healthHandler.Register("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	if producer != nil {
		healthHandler.Register("kafka", func(ctx context.Context) error {
			return producer.Ping(ctx)
		})
	}

	// HTTP router.
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.Environment = cfg.Environment
	if len(cfg.CORSAllowedOrigins) > 0 {
		corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins
	}
	router := handler.NewRouter(orchestrator, healthHandler, corsCfg, logger, cfg.PprofAllowedCIDRs)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		redisClient:    redisClient,
		producer:       producer,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush spans from drained requests)
// 3. Kafka producer
// 4. Redis client
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
