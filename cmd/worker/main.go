package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/Danu-Nur/lumbung-sub003/internal/app"
	"github.com/Danu-Nur/lumbung-sub003/internal/ledger"
	"github.com/Danu-Nur/lumbung-sub003/internal/platform/cache"
	"github.com/Danu-Nur/lumbung-sub003/internal/platform/db"
	"github.com/Danu-Nur/lumbung-sub003/internal/shared"
	"github.com/Danu-Nur/lumbung-sub003/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	stats := jobs.NewStatsRecomputer(pool, redisClient, logger)
	integrity := jobs.NewIntegrityScanner(pool, ledger.NewRepository(pool), logger)
	janitor := jobs.NewIdempotencyJanitor(shared.NewIdempotencyStore(pool), cfg.IdempotencyKeepFor, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Stats:       stats,
		Integrity:   integrity,
		Janitor:     janitor,
		Concurrency: cfg.WorkerConcurrency,
		Cron: []jobs.CronRegistration{
			{Spec: cfg.IntegrityScanCron, Task: jobs.NewLedgerIntegrityTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.IdempotencySweepCron, Task: jobs.NewIdempotencySweepTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
