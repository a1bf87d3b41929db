package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vela-pos/vela-pos/internal/accounts"
	"github.com/vela-pos/vela-pos/internal/app"
	"github.com/vela-pos/vela-pos/internal/cashbook"
	"github.com/vela-pos/vela-pos/internal/credit"
	"github.com/vela-pos/vela-pos/internal/expenses"
	"github.com/vela-pos/vela-pos/internal/ledger"
	"github.com/vela-pos/vela-pos/internal/observability"
	"github.com/vela-pos/vela-pos/internal/platform/cache"
	"github.com/vela-pos/vela-pos/internal/platform/db"
	"github.com/vela-pos/vela-pos/internal/products"
	"github.com/vela-pos/vela-pos/internal/sales"
	"github.com/vela-pos/vela-pos/internal/shared"
	"github.com/vela-pos/vela-pos/internal/stock"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, account cache disabled", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	validate := validator.New()
	metrics := observability.NewMetrics()
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
	expensesService := expenses.NewService(expenses.NewRepository(pool), accountsService, ledgerService, cashbookService, auditLogger)
	salesService := sales.NewService(
		sales.NewRepository(pool),
		sales.NewFollowupRepository(pool),
		stockService,
		creditService,
		cashbookService,
		ledgerService,
		productsService,
		auditLogger,
		metrics,
		logger,
		cfg.FollowupMaxAttempts,
	)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Pool:            pool,
		AccountsHandler: accounts.NewHandler(logger, accountsService, validate),
		LedgerHandler:   ledger.NewHandler(logger, ledgerService, validate),
		StockHandler:    stock.NewHandler(logger, stockService, validate),
		CreditHandler:   credit.NewHandler(logger, creditService, validate),
		SalesHandler:    sales.NewHandler(logger, salesService, validate),
		ExpensesHandler: expenses.NewHandler(logger, expensesService, validate),
		ProductsHandler: products.NewHandler(logger, productsService, validate),
		CashbookHandler: cashbook.NewHandler(logger, cashbookService, validate),
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
