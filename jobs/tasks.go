package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/opsledger/opsledger/internal/expenses"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskExpenseReconcileAll is the task type for registry-wide expense
	// reconciliation.
	TaskExpenseReconcileAll = "expenses:reconcile_all"
)

// ReconcileAllPayload parameterises a reconcile-all run.
type ReconcileAllPayload struct {
	RequestedAt time.Time `json:"requestedAt"`
}

// NewReconcileAllTask constructs an Asynq task.
func NewReconcileAllTask(payload ReconcileAllPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExpenseReconcileAll, data), nil
}

// ReconcileAllJob processes TaskExpenseReconcileAll tasks. The reconciler is
// idempotent, so asynq retries after partial failures are safe.
type ReconcileAllJob struct {
	reconciler *expenses.Reconciler
	logger     *slog.Logger
}

// NewReconcileAllJob constructs the job.
func NewReconcileAllJob(reconciler *expenses.Reconciler, logger *slog.Logger) *ReconcileAllJob {
	return &ReconcileAllJob{reconciler: reconciler, logger: logger}
}

// Handle runs the reconciliation and logs its outcome.
func (j *ReconcileAllJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ReconcileAllPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	result, err := j.reconciler.GenerateExpensesForAll(ctx)
	if err != nil {
		j.logger.Error("reconcile-all failed", slog.Any("error", err))
		return err
	}
	j.logger.Info("reconcile-all finished",
		slog.String("period", result.Period.String()),
		slog.Int("created", result.Created),
		slog.Int("errors", len(result.Errors)))
	for _, msg := range result.Errors {
		j.logger.Warn("reconcile-all item error", slog.String("detail", msg))
	}
	return nil
}
