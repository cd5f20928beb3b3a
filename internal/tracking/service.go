package tracking

import (
	"context"
	"log/slog"

	"github.com/opsledger/opsledger/internal/observability"
	"github.com/opsledger/opsledger/internal/shared"
)

// ProjectRollup accumulates completed feature hours per project member.
// Failures here must never fail the timer transition itself.
type ProjectRollup interface {
	AddUserHours(ctx context.Context, projectID, person string, hours float64) error
}

// Service executes timer transitions on work items.
type Service struct {
	repo    Repository
	rollup  ProjectRollup
	clock   shared.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewService constructs the timer service. rollup and metrics may be nil.
func NewService(repo Repository, rollup ProjectRollup, clock shared.Clock, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &Service{repo: repo, rollup: rollup, clock: clock, logger: logger, metrics: metrics}
}

// TransitionResult reports the outcome of a timer action.
type TransitionResult struct {
	Item    WorkItem
	Message string
	Applied bool
}

// Track applies a timer action to one work item. Repeated starts and pauses
// while idle are benign no-ops returning the current state. The transition
// runs under a per-item row lock so concurrent calls on the same item
// serialize and cannot bank the same interval twice.
func (s *Service) Track(ctx context.Context, kind ItemKind, projectID, id string, action TimerAction) (TransitionResult, error) {
	if _, err := ParseTimerAction(string(action)); err != nil {
		return TransitionResult{}, err
	}

	now := s.clock.Now()
	var result TransitionResult
	item, err := s.repo.UpdateTimer(ctx, kind, projectID, id, func(item *WorkItem) (bool, error) {
		changed, message := applyTransition(item, action, now)
		result.Message = message
		result.Applied = changed
		return changed, nil
	})
	if err != nil {
		s.observe(action, "error")
		return TransitionResult{}, err
	}
	result.Item = item

	if result.Applied {
		s.observe(action, "applied")
	} else {
		s.observe(action, "noop")
	}

	// Best-effort per-project hours rollup on feature completion. A rollup
	// failure is logged and swallowed so the completion itself stands.
	if result.Applied && action == ActionComplete && kind == KindFeature && item.Assignee != "" && item.ActualHours != nil && s.rollup != nil {
		if err := s.rollup.AddUserHours(ctx, projectID, item.Assignee, *item.ActualHours); err != nil {
			s.logger.Error("project hours rollup failed",
				slog.String("projectId", projectID),
				slog.String("assignee", item.Assignee),
				slog.Any("error", err))
		}
	}

	return result, nil
}

func (s *Service) observe(action TimerAction, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveTimerTransition(string(action), outcome)
	}
}
