package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	zlog "github.com/rs/zerolog/log"

	"github.com/ayush/medical-report-worker/internal/api"
	"github.com/ayush/medical-report-worker/internal/cache"
	"github.com/ayush/medical-report-worker/internal/config"
	"github.com/ayush/medical-report-worker/internal/knowledge"
	"github.com/ayush/medical-report-worker/internal/logging"
	"github.com/ayush/medical-report-worker/internal/queue"
	"github.com/ayush/medical-report-worker/internal/store"
)

func main() {
	os.Exit(run())
}

// run returns the exit code so deferred releases happen on every path.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		zlog.Error().Err(err).Msg("load config")
		return 1
	}
	logger := logging.New("report-api", cfg.Env, cfg.LogLevel)
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

	// ── Handlers ─────────────────────────────────────────────
	handler := &api.Handler{
		Reports:    mongoStore,
		Cache:      reportCache,
		Publisher:  qc,
		Categories: knowledge.NewLookup(mongoStore, logger),
		Importer:   knowledge.NewImporter(mongoStore, logger),
		KBDir:      os.DirFS(cfg.KBDir),
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
		handler.Jobs = pgStore
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
		handler.Files = minioStore
	}

	// ── Router ───────────────────────────────────────────────
	r := api.NewRouter(handler, api.RouterConfig{
		Logger:      logger,
		CORSOrigins: cfg.CORSOrigins,
		Healthy:     qc.Healthy,
		Metrics:     promhttp.Handler(),
	})

	// ── Server ───────────────────────────────────────────────
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Port).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	code := 0
	select {
	case <-quit:
	case err, ok := <-serveErr:
		if ok {
			logger.Error().Err(err).Msg("server error")
			code = 1
		}
	}

	logger.Info().Msg("shutting down")
	shutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
	return code
}
