package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/opsledger/opsledger/internal/app"
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

	reconciler := expenses.NewReconciler(expenses.ReconcilerConfig{
		Expenses:       expenses.NewRepository(pool),
		Items:          tracking.NewRepository(pool),
		Projects:       projects.NewRepository(pool),
		Rates:          rates.NewRepository(pool),
		Locker:         shared.NewLocker(redisClient, cfg.ReconcileLockTTL),
		Clock:          clock,
		BillingLoc:     cfg.BillingLocation(),
		FallbackPerson: cfg.ReconcileFallbackPerson,
		Logger:         logger,
		Metrics:        metrics,
	})
	reconcileJob := jobs.NewReconcileAllJob(reconciler, logger)

	cronTask, err := jobs.NewReconcileAllTask(jobs.ReconcileAllPayload{RequestedAt: time.Now()})
	if err != nil {
		logger.Error("build reconcile task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskExpenseReconcileAll, Handler: reconcileJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ReconcileCron, Task: cronTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
