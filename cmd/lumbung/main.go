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

	"github.com/Danu-Nur/lumbung-sub003/internal/adjustment"
	"github.com/Danu-Nur/lumbung-sub003/internal/app"
	"github.com/Danu-Nur/lumbung-sub003/internal/importer"
	"github.com/Danu-Nur/lumbung-sub003/internal/ledger"
	"github.com/Danu-Nur/lumbung-sub003/internal/masterdata"
	"github.com/Danu-Nur/lumbung-sub003/internal/opname"
	"github.com/Danu-Nur/lumbung-sub003/internal/platform/cache"
	"github.com/Danu-Nur/lumbung-sub003/internal/platform/db"
	"github.com/Danu-Nur/lumbung-sub003/internal/receiving"
	"github.com/Danu-Nur/lumbung-sub003/internal/shared"
	"github.com/Danu-Nur/lumbung-sub003/internal/transfer"
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

	invalidator := cache.NewInvalidator(redisClient, logger)
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	refData := masterdata.NewRepository(pool)

	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	ledgerRepo := ledger.NewRepository(pool)
	recorder := ledger.NewRecorder(ledgerRepo, refData, auditLogger, invalidator, logger)

	adjustmentService := adjustment.NewService(adjustment.NewRepository(pool), recorder, logger)
	transferService := transfer.NewService(transfer.NewRepository(pool), recorder, refData, logger)
	opnameService := opname.NewService(opname.NewRepository(pool), adjustmentService, recorder, refData,
		opname.UncountedPolicy(cfg.OpnameUncountedPolicy), logger)
	receivingService := receiving.NewService(receiving.NewRepository(pool), recorder, idempotencyStore, jobClient, logger)
	importerService := importer.NewService(refData, adjustmentService, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		LedgerHandler:     ledger.NewHandler(logger, recorder),
		AdjustmentHandler: adjustment.NewHandler(logger, adjustmentService),
		TransferHandler:   transfer.NewHandler(logger, transferService),
		OpnameHandler:     opname.NewHandler(logger, opnameService),
		ReceivingHandler:  receiving.NewHandler(logger, receivingService),
		ImporterHandler:   importer.NewHandler(logger, importerService),
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
