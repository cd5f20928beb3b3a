package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/opsledger/opsledger/internal/app"
	"github.com/opsledger/opsledger/internal/auth"
	"github.com/opsledger/opsledger/internal/expenses"
	"github.com/opsledger/opsledger/internal/observability"
	"github.com/opsledger/opsledger/internal/platform/cache"
	"github.com/opsledger/opsledger/internal/platform/db"
	"github.com/opsledger/opsledger/internal/projects"
	"github.com/opsledger/opsledger/internal/rates"
	"github.com/opsledger/opsledger/internal/shared"
	"github.com/opsledger/opsledger/internal/tracking"
	"github.com/opsledger/opsledger/jobs"
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
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	clock := shared.SystemClock{}
	billingLoc := cfg.BillingLocation()

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, redisClient, cfg.AuthTokenTTL)
	authHandler := auth.NewHandler(logger, authService)
	authMiddleware := auth.NewMiddleware(authService)

	projectRepo := projects.NewRepository(pool)

	trackingRepo := tracking.NewRepository(pool)
	trackingService := tracking.NewService(trackingRepo, projectRepo, clock, logger, metrics)
	trackingHandler := tracking.NewHandler(logger, trackingService)

	rateRepo := rates.NewRepository(pool)
	ratesHandler := rates.NewHandler(logger, rateRepo)

	expenseRepo := expenses.NewRepository(pool)
	locker := shared.NewLocker(redisClient, cfg.ReconcileLockTTL)
	reconciler := expenses.NewReconciler(expenses.ReconcilerConfig{
		Expenses:       expenseRepo,
		Items:          trackingRepo,
		Projects:       projectRepo,
		Rates:          rateRepo,
		Locker:         locker,
		Clock:          clock,
		BillingLoc:     billingLoc,
		FallbackPerson: cfg.ReconcileFallbackPerson,
		Logger:         logger,
		Metrics:        metrics,
	})

	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	currentPeriod := func() shared.BillingPeriod {
		return shared.PeriodForTime(clock.Now(), billingLoc)
	}
	expensesHandler := expenses.NewHandler(logger, reconciler, jobClient, currentPeriod)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AuthHandler:     authHandler,
		AuthMiddleware:  authMiddleware,
		TrackingHandler: trackingHandler,
		RatesHandler:    ratesHandler,
		ExpensesHandler: expensesHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", slog.Any("error", err))
	}
}
