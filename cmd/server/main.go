package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	httpAdapter "github.com/phygrid/wiserecon/internal/adapter/http"
	"github.com/phygrid/wiserecon/internal/adapter/http/handler"
	llmAdapter "github.com/phygrid/wiserecon/internal/adapter/llm"
	"github.com/phygrid/wiserecon/internal/adapter/qdrant"
	postgresRepo "github.com/phygrid/wiserecon/internal/adapter/repository/postgres"
	redisRepo "github.com/phygrid/wiserecon/internal/adapter/repository/redis"
	"github.com/phygrid/wiserecon/internal/adapter/slack"
	"github.com/phygrid/wiserecon/internal/adapter/spectre"
	"github.com/phygrid/wiserecon/internal/adapter/wise"
	"github.com/phygrid/wiserecon/internal/domain"
	"github.com/phygrid/wiserecon/internal/infrastructure/config"
	"github.com/phygrid/wiserecon/internal/infrastructure/logger"
	"github.com/phygrid/wiserecon/internal/infrastructure/metrics"
	"github.com/phygrid/wiserecon/internal/infrastructure/postgres"
	"github.com/phygrid/wiserecon/internal/infrastructure/redis"
	"github.com/phygrid/wiserecon/internal/matching"
	"github.com/phygrid/wiserecon/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLog := logger.New(logger.Config{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: "wiserecon",
	})

	ctx := context.Background()

	entities, err := domain.LoadEntityRegistry(cfg.EntityMapPath)
	if err != nil {
		appLog.Fatal().Err(err).Str("path", cfg.EntityMapPath).Msg("failed to load entity map")
	}

	if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath, appLog); err != nil {
		appLog.Fatal().Err(err).Msg("failed to run migrations")
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns, cfg.DatabaseMinConns)
	if err != nil {
		appLog.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()
	appLog.Info().Msg("connected to postgres")

	redisClient, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		appLog.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	appLog.Info().Msg("connected to redis")

	mtr := metrics.New()

	// External clients.
	var signer *wise.Signer
	if cfg.WisePrivateKeyPath != "" {
		if signer, err = wise.NewSignerFromFile(cfg.WisePrivateKeyPath); err != nil {
			appLog.Warn().Err(err).Msg("sca signing unavailable, statement fetches will fail on challenge")
			signer = nil
		}
	}
	bank := wise.NewClient(cfg.WiseAPIBase, cfg.WiseAPIToken, signer, cfg.WiseSessionTTL, cfg.WiseRatePerSec, appLog)
	approval := spectre.NewClient(cfg.SpectreAPIURL, cfg.SpectreAPIKey, appLog)
	notifier := slack.NewNotifier(cfg.SlackWebhookURL, cfg.SlackChannel, appLog)

	vectors := qdrant.NewClient(cfg.QdrantURL, cfg.QdrantAPIKey, "transaction_patterns", cfg.EmbeddingDim, appLog)
	if err := vectors.EnsureCollection(ctx); err != nil {
		appLog.Warn().Err(err).Msg("vector collection check failed, pattern boost degraded")
	}

	// The embedder and LLM share one model-call budget.
	modelBucket := rate.NewLimiter(rate.Limit(cfg.LLMRatePerSec), 1)
	embedder := llmAdapter.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDim, modelBucket)

	var llmMatcher *matching.LLMMatcher
	if cfg.LLMEnabled && cfg.OpenAIAPIKey != "" {
		scorer := llmAdapter.NewOpenAIScorer(cfg.OpenAIAPIKey, cfg.LLMModel, modelBucket)
		llmMatcher = matching.NewLLMMatcher(scorer, appLog)
	}

	// Repositories and stores.
	retrier := postgresRepo.NewRetrier(appLog)
	txManager := postgresRepo.NewTxManager(pool)
	txRepo := postgresRepo.NewTransactionRepository(pool, retrier)
	cursorRepo := postgresRepo.NewCursorRepository(pool, retrier)
	statsRepo := postgresRepo.NewStatsRepository(pool, retrier)
	glCache := redisRepo.NewCache(redisClient)
	leases := redisRepo.NewLeaseStore(redisClient, cfg.LeaseTTL)
	pollCursor := redisRepo.NewPollCursor(redisClient)
	idGen := postgresRepo.NewULIDGenerator()

	clock := usecase.RealClock{}

	// Use cases.
	syncUC := usecase.NewSyncUseCase(bank, txRepo, cursorRepo, entities, notifier, clock, usecase.SyncConfig{
		Overlap:     cfg.SyncOverlap,
		InitialBack: cfg.SyncInitialBack,
	}, appLog).WithMetrics(mtr)

	glFetch := usecase.NewGLFetcher(approval, glCache, cfg.GLCacheTTL, appLog)
	patternIndex := usecase.NewPatternIndex(embedder, vectors, cfg.PatternSimilarityMin, appLog)

	reconUC := usecase.NewReconcileUseCase(
		txRepo, txManager, glFetch, patternIndex, statsRepo, approval, leases,
		matching.NewPipeline(llmMatcher), entities, notifier, idGen, clock,
		usecase.ReconcileConfig{
			MaxTxPerRun:        cfg.BatchMaxTxPerRun,
			BatchDeadline:      cfg.BatchDeadline,
			TxDeadline:         cfg.TxDeadline,
			Workers:            cfg.MatchWorkers,
			DateWindowDays:     cfg.MatchDateWindowDays,
			QuarantineAlertMin: cfg.QuarantineAlertMin,
		}, appLog).WithMetrics(mtr)

	learnUC := usecase.NewLearnUseCase(approval, txRepo, statsRepo, patternIndex, pollCursor, entities, clock, appLog)

	scheduler := usecase.NewScheduler(syncUC, reconUC, learnUC, txRepo, notifier, clock, usecase.SchedulerConfig{
		Interval:   cfg.SchedulerInterval,
		DigestHour: cfg.DigestHour,
	}, appLog)

	// HTTP surface.
	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		HealthHandler: handler.NewHealthHandler(pool, redisClient, vectors),
		ReconHandler:  handler.NewReconHandler(syncUC, reconUC, learnUC),
		Logger:        appLog,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.SchedulerEnabled {
		go func() {
			if err := scheduler.Run(runCtx); err != nil && runCtx.Err() == nil {
				appLog.Error().Err(err).Msg("scheduler stopped")
			}
		}()
	}

	go func() {
		appLog.Info().Str("port", cfg.HTTPPort).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLog.Fatal().Err(err).Msg("server forced to shutdown")
	}

	appLog.Info().Msg("stopped")
}
