package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	zlog "github.com/rs/zerolog/log"

	"github.com/ayush/medical-report-worker/internal/api"
	"github.com/ayush/medical-report-worker/internal/cache"
	"github.com/ayush/medical-report-worker/internal/config"
	"github.com/ayush/medical-report-worker/internal/generation"
	"github.com/ayush/medical-report-worker/internal/knowledge"
	"github.com/ayush/medical-report-worker/internal/logging"
	"github.com/ayush/medical-report-worker/internal/queue"
	"github.com/ayush/medical-report-worker/internal/store"
	"github.com/ayush/medical-report-worker/internal/worker"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		zlog.Error().Err(err).Msg("load config")
		return 1
	}
	if err := cfg.ValidateWorker(); err != nil {
		zlog.Error().Err(err).Msg("worker config")
		return 1
	}
	logger := logging.New("report-worker", cfg.Env, cfg.LogLevel)
	ctx := context.Background()

	// ── MongoDB ──────────────────────────────────────────────
	mongoClient, err := store.ConnectMongo(ctx, cfg.MongoURL)
	if err != nil {
		logger.Error().Err(err).Msg("mongo connect")
		return 1
	}
	defer mongoClient.Disconnect(context.Background())
	mongoStore := store.NewMongoStore(mongoClient.Database(cfg.MongoDB))
	if err := mongoStore.EnsureIndexes(ctx); err != nil {
		logger.Error().Err(err).Msg("mongo indexes")
		return 1
	}

	// ── Cache (Redis, or in-process) ─────────────────────────
	backend, closeCache, err := cache.Open(ctx, cfg.UseMemoryCache(), cfg.RedisURL, cfg.CacheDefaultTTL, logger)
	if err != nil {
		logger.Error().Err(err).Msg("redis connect")
		return 1
	}
	defer closeCache()
	reportCache := cache.NewReports(backend, cfg.CacheReportTTL)

	// ── RabbitMQ ─────────────────────────────────────────────
	qc, err := queue.Dial(queue.Config{
		URL:             cfg.RabbitMQURL,
		RequestQueue:    cfg.RequestQueue,
		ResponseQueue:   cfg.ResponseQueue,
		DeadLetterQueue: cfg.DeadLetterQueue(),
		Prefetch:        cfg.PrefetchCount,
		MaxRetries:      cfg.MaxRetries,
	}, logger)
	if err != nil {
		logger.Error().Err(err).Msg("rabbitmq connect")
		return 1
	}
	defer qc.Close()

	deps := worker.Deps{
		Store:   mongoStore,
		Content: knowledge.NewLookup(mongoStore, logger),
		Generator: generation.NewOpenAIClient(generation.Config{
			BaseURL:           cfg.OpenAIBaseURL,
			APIKey:            cfg.OpenAIAPIKey,
			Model:             cfg.OpenAIModel,
			Temperature:       cfg.OpenAITemperature,
			MaxTokens:         cfg.OpenAIMaxTokens,
			RequestsPerMinute: cfg.OpenAIRPM,
		}),
		Cache:   reportCache,
		Metrics: worker.NewMetrics(prometheus.DefaultRegisterer),
	}

	// ── PostgreSQL (optional job ledger) ─────────────────────
	if cfg.PostgresDSN != "" {
		pgPool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Error().Err(err).Msg("postgres connect")
			return 1
		}
		defer pgPool.Close()
		pgStore := store.NewPostgresStore(pgPool)
		if err := pgStore.Migrate(ctx); err != nil {
			logger.Error().Err(err).Msg("postgres migrate")
			return 1
		}
		deps.Ledger = pgStore
	}

	// ── MinIO (optional artifacts) ───────────────────────────
	if cfg.MinioEndpoint != "" {
		minioStore, err := store.NewMinioStore(
			ctx, cfg.MinioEndpoint, cfg.MinioAccessKey,
			cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL,
		)
		if err != nil {
			logger.Error().Err(err).Msg("minio connect")
			return 1
		}
		deps.Artifacts = minioStore
	}

	proc := worker.NewProcessor(deps, cfg.CostPer1KTokens, logger)
	runner := worker.NewRunner(qc, qc, proc, logger)

	// ── Health + metrics ─────────────────────────────────────
	hr := chi.NewRouter()
	hr.Get("/health", api.HealthHandler(qc.Healthy))
	hr.Handle("/metrics", promhttp.Handler())
	healthSrv := &http.Server{
		Addr:              ":" + cfg.WorkerHealthPort,
		Handler:           hr,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("port", cfg.WorkerHealthPort).Msg("health server listening")
		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("health server error")
		}
	}()
	defer func() {
		shutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		healthSrv.Shutdown(shutCtx)
	}()

	// ── Consume ──────────────────────────────────────────────
	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runner.Run(runCtx); err != nil && runCtx.Err() == nil {
		logger.Error().Err(err).Msg("worker stopped unexpectedly")
		return 1
	}
	logger.Info().Msg("shutting down")
	return 0
}
