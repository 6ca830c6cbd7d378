package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/comercia/comercia/internal/app"
	"github.com/comercia/comercia/internal/counterparties"
	"github.com/comercia/comercia/internal/fiscal"
	"github.com/comercia/comercia/internal/observability"
	"github.com/comercia/comercia/internal/pipeline"
	"github.com/comercia/comercia/internal/platform/cache"
	"github.com/comercia/comercia/internal/platform/db"
	"github.com/comercia/comercia/internal/quotes"
	"github.com/comercia/comercia/internal/sequence"
	"github.com/comercia/comercia/internal/shared"
	"github.com/comercia/comercia/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	counterpartyService := counterparties.NewService(counterparties.NewRepository(dbpool), logger)
	quoteService := quotes.NewService(quotes.NewRepository(dbpool), quotes.Options{
		Sequencer:   sequence.NewRedisGenerator(redisClient),
		Notifier:    jobClient,
		Metrics:     metrics,
		Idempotency: shared.NewIdempotencyStore(dbpool),
		Logger:      logger,
		Validity:    cfg.QuoteValidity,
	})
	pipelineService := pipeline.NewService(pipeline.NewRepository(dbpool), quoteService, counterpartyService, pipeline.Options{
		Notifier: jobClient,
		Metrics:  metrics,
		Audit:    shared.NewAuditLogger(dbpool),
		Logger:   logger,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		QuotesHandler:   quotes.NewHandler(logger, quoteService),
		PipelineHandler: pipeline.NewHandler(logger, pipelineService),
		FiscalHandler:   fiscal.NewHandler(logger, counterpartyService),
		JobHandler:      jobs.NewHandler(inspector, logger),
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
