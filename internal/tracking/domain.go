package tracking

import (
	"errors"
	"math"
	"time"
)

// ItemKind enumerates the two trackable work-item kinds.
type ItemKind string

const (
	KindTask    ItemKind = "team-task"
	KindFeature ItemKind = "feature"
)

// ItemStatus enumerates work-item statuses relevant to the timer.
type ItemStatus string

const (
	StatusPending    ItemStatus = "pending"
	StatusBacklog    ItemStatus = "backlog"
	StatusInProgress ItemStatus = "in-progress"
	// Tasks finish as "completed", features as "done". Both count as
	// terminal for the timer and as billable for reconciliation.
	StatusCompleted ItemStatus = "completed"
	StatusDone      ItemStatus = "done"
)

// CompletedStatusFor returns the terminal status for a kind.
func CompletedStatusFor(kind ItemKind) ItemStatus {
	if kind == KindFeature {
		return StatusDone
	}
	return StatusCompleted
}

// IsCompletedStatus reports whether a status is terminal for either kind.
func IsCompletedStatus(status ItemStatus) bool {
	return status == StatusCompleted || status == StatusDone
}

// WorkItem is one unit of trackable work. ProjectID is empty for tasks.
type WorkItem struct {
	ID                 string     `json:"id"`
	Kind               ItemKind   `json:"kind"`
	ProjectID          string     `json:"projectId,omitempty"`
	Title              string     `json:"title"`
	Category           string     `json:"category,omitempty"`
	Assignee           string     `json:"assignee,omitempty"`
	Status             ItemStatus `json:"status"`
	StartedAt          *time.Time `json:"startedAt,omitempty"`
	AccumulatedSeconds int64      `json:"accumulatedSeconds"`
	ActualHours        *float64   `json:"actualHours,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// TimerRunning reports whether an interval is currently open.
func (w *WorkItem) TimerRunning() bool {
	return w.StartedAt != nil
}

// Completed reports whether the item reached its terminal status.
func (w *WorkItem) Completed() bool {
	return IsCompletedStatus(w.Status)
}

// TimerAction enumerates the supported timer transitions.
type TimerAction string

const (
	ActionStart    TimerAction = "start"
	ActionPause    TimerAction = "pause"
	ActionComplete TimerAction = "complete"
)

// ErrInvalidAction indicates an unsupported timer action.
var ErrInvalidAction = errors.New("invalid timer action")

// ParseTimerAction validates an action string.
func ParseTimerAction(s string) (TimerAction, error) {
	switch TimerAction(s) {
	case ActionStart, ActionPause, ActionComplete:
		return TimerAction(s), nil
	}
	return "", ErrInvalidAction
}

// RoundHours converts banked seconds to hours rounded half-up to one decimal.
func RoundHours(seconds int64) float64 {
	return math.Round(float64(seconds)/3600*10) / 10
}

// applyTransition mutates item according to action at instant now. It returns
// whether the item changed and a human-readable status message. Elapsed time
// is floored to whole seconds at every pause/complete boundary; fractions
// below one second are dropped per boundary, never carried over.
func applyTransition(item *WorkItem, action TimerAction, now time.Time) (bool, string) {
	if item.Completed() {
		return false, "item already completed"
	}

	switch action {
	case ActionStart:
		if item.TimerRunning() {
			return false, "timer already running"
		}
		startedAt := now
		item.StartedAt = &startedAt
		item.Status = StatusInProgress
		return true, "timer started"

	case ActionPause:
		if !item.TimerRunning() {
			return false, "no timer running"
		}
		bankInterval(item, now)
		return true, "timer paused"

	case ActionComplete:
		if item.TimerRunning() {
			bankInterval(item, now)
		}
		hours := RoundHours(item.AccumulatedSeconds)
		item.ActualHours = &hours
		item.Status = CompletedStatusFor(item.Kind)
		return true, "timer completed"
	}
	return false, ""
}

func bankInterval(item *WorkItem, now time.Time) {
	elapsed := int64(math.Floor(now.Sub(*item.StartedAt).Seconds()))
	if elapsed > 0 {
		item.AccumulatedSeconds += elapsed
	}
	item.StartedAt = nil
}
