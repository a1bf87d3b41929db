package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/vela-pos/vela-pos/internal/accounts"
	"github.com/vela-pos/vela-pos/internal/app"
	"github.com/vela-pos/vela-pos/internal/cashbook"
	"github.com/vela-pos/vela-pos/internal/credit"
	jobmetrics "github.com/vela-pos/vela-pos/internal/jobs"
	"github.com/vela-pos/vela-pos/internal/ledger"
	"github.com/vela-pos/vela-pos/internal/platform/cache"
	"github.com/vela-pos/vela-pos/internal/platform/db"
	"github.com/vela-pos/vela-pos/internal/products"
	"github.com/vela-pos/vela-pos/internal/sales"
	"github.com/vela-pos/vela-pos/internal/shared"
	"github.com/vela-pos/vela-pos/internal/stock"
	"github.com/vela-pos/vela-pos/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	var accountCache *accounts.Cache
	if redisClient != nil {
		accountCache = accounts.NewCache(redisClient, cfg.AccountCacheTTL)
	}
	accountsService := accounts.NewService(accounts.NewRepository(pool), accountCache)
	ledgerService := ledger.NewService(ledger.NewRepository(pool), accountsService, auditLogger)
	stockService := stock.NewService(stock.NewRepository(pool), auditLogger)
	creditService := credit.NewService(credit.NewRepository(pool), auditLogger)
	cashbookService := cashbook.NewService(cashbook.NewRepository(pool))
	productsService := products.NewService(products.NewRepository(pool))
	salesService := sales.NewService(
		sales.NewRepository(pool),
		sales.NewFollowupRepository(pool),
		stockService,
		creditService,
		cashbookService,
		ledgerService,
		productsService,
		auditLogger,
		nil,
		logger,
		cfg.FollowupMaxAttempts,
	)

	metrics := jobmetrics.NewMetrics(nil)
	redriveJob := jobs.NewSettlementRedriveJob(salesService, logger, metrics)

	redriveTask, err := jobs.NewSettlementRedriveTask(jobs.SettlementRedrivePayload{Limit: 100})
	if err != nil {
		logger.Error("build redrive task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSettlementRedrive, Handler: redriveJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.FollowupRedriveSpec, Task: redriveTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
