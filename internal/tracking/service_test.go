package tracking_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opsledger/opsledger/internal/tracking"
	_ "github.com/opsledger/opsledger/testing"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type memoryItemRepo struct {
	items map[string]tracking.WorkItem
}

func newMemoryItemRepo(items ...tracking.WorkItem) *memoryItemRepo {
	repo := &memoryItemRepo{items: make(map[string]tracking.WorkItem)}
	for _, item := range items {
		repo.items[itemKey(item.Kind, item.ProjectID, item.ID)] = item
	}
	return repo
}

func itemKey(kind tracking.ItemKind, projectID, id string) string {
	return string(kind) + "/" + projectID + "/" + id
}

func (r *memoryItemRepo) GetWorkItem(ctx context.Context, kind tracking.ItemKind, projectID, id string) (tracking.WorkItem, error) {
	item, ok := r.items[itemKey(kind, projectID, id)]
	if !ok {
		return tracking.WorkItem{}, tracking.ErrItemNotFound
	}
	return item, nil
}

func (r *memoryItemRepo) UpdateTimer(ctx context.Context, kind tracking.ItemKind, projectID, id string, apply func(*tracking.WorkItem) (bool, error)) (tracking.WorkItem, error) {
	key := itemKey(kind, projectID, id)
	item, ok := r.items[key]
	if !ok {
		return tracking.WorkItem{}, tracking.ErrItemNotFound
	}
	changed, err := apply(&item)
	if err != nil {
		return tracking.WorkItem{}, err
	}
	if changed {
		item.UpdatedAt = time.Now()
		r.items[key] = item
	}
	return item, nil
}

func (r *memoryItemRepo) ListCompletedTasksByAssignee(ctx context.Context, assignee string) ([]tracking.WorkItem, error) {
	var out []tracking.WorkItem
	for _, item := range r.items {
		if item.Kind == tracking.KindTask && item.Status == tracking.StatusCompleted && item.Assignee == assignee {
			out = append(out, item)
		}
	}
	return out, nil
}

func (r *memoryItemRepo) ListCompletedUnassignedTasks(ctx context.Context) ([]tracking.WorkItem, error) {
	var out []tracking.WorkItem
	for _, item := range r.items {
		if item.Kind == tracking.KindTask && item.Status == tracking.StatusCompleted && item.Assignee == "" {
			out = append(out, item)
		}
	}
	return out, nil
}

func (r *memoryItemRepo) ListFeaturesByProject(ctx context.Context, projectID string) ([]tracking.WorkItem, error) {
	var out []tracking.WorkItem
	for _, item := range r.items {
		if item.Kind == tracking.KindFeature && item.ProjectID == projectID {
			out = append(out, item)
		}
	}
	return out, nil
}

type recordingRollup struct {
	calls []rollupCall
	err   error
}

type rollupCall struct {
	projectID string
	person    string
	hours     float64
}

func (r *recordingRollup) AddUserHours(ctx context.Context, projectID, person string, hours float64) error {
	r.calls = append(r.calls, rollupCall{projectID: projectID, person: person, hours: hours})
	return r.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(repo tracking.Repository, rollup tracking.ProjectRollup, clock *fakeClock) *tracking.Service {
	return tracking.NewService(repo, rollup, clock, testLogger(), nil)
}

func TestTrackStartThenRepeatIsNoOp(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)}
	repo := newMemoryItemRepo(tracking.WorkItem{ID: "T-1", Kind: tracking.KindTask, Status: tracking.StatusPending})
	svc := newService(repo, nil, clock)

	result, err := svc.Track(context.Background(), tracking.KindTask, "", "T-1", tracking.ActionStart)
	require.NoError(t, err)
	require.True(t, result.Applied)
	require.Equal(t, tracking.StatusInProgress, result.Item.Status)
	require.NotNil(t, result.Item.StartedAt)
	require.Equal(t, clock.now, *result.Item.StartedAt)

	clock.Advance(42 * time.Second)
	again, err := svc.Track(context.Background(), tracking.KindTask, "", "T-1", tracking.ActionStart)
	require.NoError(t, err)
	require.False(t, again.Applied)
	require.Equal(t, "timer already running", again.Message)
	// The original start instant must survive the repeated start.
	require.Equal(t, *result.Item.StartedAt, *again.Item.StartedAt)
}

func TestTrackPauseWithoutRunningTimer(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)}
	repo := newMemoryItemRepo(tracking.WorkItem{ID: "T-1", Kind: tracking.KindTask, Status: tracking.StatusPending})
	svc := newService(repo, nil, clock)

	result, err := svc.Track(context.Background(), tracking.KindTask, "", "T-1", tracking.ActionPause)
	require.NoError(t, err)
	require.False(t, result.Applied)
	require.Equal(t, "no timer running", result.Message)
	require.Equal(t, int64(0), result.Item.AccumulatedSeconds)
}

func TestTrackFloorsSecondsPerPauseBoundary(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)}
	repo := newMemoryItemRepo(tracking.WorkItem{ID: "T-1", Kind: tracking.KindTask, Status: tracking.StatusPending})
	svc := newService(repo, nil, clock)
	ctx := context.Background()

	_, err := svc.Track(ctx, tracking.KindTask, "", "T-1", tracking.ActionStart)
	require.NoError(t, err)
	clock.Advance(90*time.Second + 900*time.Millisecond)
	paused, err := svc.Track(ctx, tracking.KindTask, "", "T-1", tracking.ActionPause)
	require.NoError(t, err)
	require.Equal(t, int64(90), paused.Item.AccumulatedSeconds)
	require.Nil(t, paused.Item.StartedAt)
	// Pause keeps the working status; only complete is terminal.
	require.Equal(t, tracking.StatusInProgress, paused.Item.Status)

	_, err = svc.Track(ctx, tracking.KindTask, "", "T-1", tracking.ActionStart)
	require.NoError(t, err)
	clock.Advance(60*time.Second + 900*time.Millisecond)
	paused, err = svc.Track(ctx, tracking.KindTask, "", "T-1", tracking.ActionPause)
	require.NoError(t, err)
	// Sub-second fractions are dropped at each boundary, never carried.
	require.Equal(t, int64(150), paused.Item.AccumulatedSeconds)

	done, err := svc.Track(ctx, tracking.KindTask, "", "T-1", tracking.ActionComplete)
	require.NoError(t, err)
	require.Equal(t, tracking.StatusCompleted, done.Item.Status)
	require.NotNil(t, done.Item.ActualHours)
	require.Equal(t, 0.0, *done.Item.ActualHours)
}

func TestTrackCompleteFoldsRunningInterval(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)}
	repo := newMemoryItemRepo(tracking.WorkItem{ID: "F-1", Kind: tracking.KindFeature, ProjectID: "PRJ-1", Status: tracking.StatusBacklog})
	svc := newService(repo, nil, clock)
	ctx := context.Background()

	_, err := svc.Track(ctx, tracking.KindFeature, "PRJ-1", "F-1", tracking.ActionStart)
	require.NoError(t, err)
	clock.Advance(time.Hour)
	done, err := svc.Track(ctx, tracking.KindFeature, "PRJ-1", "F-1", tracking.ActionComplete)
	require.NoError(t, err)
	require.Equal(t, int64(3600), done.Item.AccumulatedSeconds)
	require.Nil(t, done.Item.StartedAt)
	require.Equal(t, tracking.StatusDone, done.Item.Status)
	require.NotNil(t, done.Item.ActualHours)
	require.Equal(t, 1.0, *done.Item.ActualHours)
}

func TestTrackCompletedItemIsNoOp(t *testing.T) {
	hours := 1.5
	clock := &fakeClock{now: time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)}
	repo := newMemoryItemRepo(tracking.WorkItem{
		ID: "T-1", Kind: tracking.KindTask, Status: tracking.StatusCompleted,
		AccumulatedSeconds: 5400, ActualHours: &hours,
	})
	svc := newService(repo, nil, clock)

	for _, action := range []tracking.TimerAction{tracking.ActionStart, tracking.ActionPause, tracking.ActionComplete} {
		result, err := svc.Track(context.Background(), tracking.KindTask, "", "T-1", action)
		require.NoError(t, err)
		require.False(t, result.Applied)
		require.Equal(t, "item already completed", result.Message)
		require.Equal(t, int64(5400), result.Item.AccumulatedSeconds)
		require.Equal(t, tracking.StatusCompleted, result.Item.Status)
	}
}

func TestTrackInvalidAction(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	repo := newMemoryItemRepo(tracking.WorkItem{ID: "T-1", Kind: tracking.KindTask, Status: tracking.StatusPending})
	svc := newService(repo, nil, clock)

	_, err := svc.Track(context.Background(), tracking.KindTask, "", "T-1", "restart")
	require.ErrorIs(t, err, tracking.ErrInvalidAction)
}

func TestTrackUnknownItem(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	svc := newService(newMemoryItemRepo(), nil, clock)

	_, err := svc.Track(context.Background(), tracking.KindTask, "", "missing", tracking.ActionStart)
	require.ErrorIs(t, err, tracking.ErrItemNotFound)
}

func TestFeatureCompletionRollsUpProjectHours(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)}
	repo := newMemoryItemRepo(tracking.WorkItem{
		ID: "F-1", Kind: tracking.KindFeature, ProjectID: "PRJ-1",
		Assignee: "dev@corp.test", Status: tracking.StatusInProgress,
		AccumulatedSeconds: 9000,
	})
	rollup := &recordingRollup{}
	svc := newService(repo, rollup, clock)

	_, err := svc.Track(context.Background(), tracking.KindFeature, "PRJ-1", "F-1", tracking.ActionComplete)
	require.NoError(t, err)
	require.Len(t, rollup.calls, 1)
	require.Equal(t, "PRJ-1", rollup.calls[0].projectID)
	require.Equal(t, "dev@corp.test", rollup.calls[0].person)
	require.Equal(t, 2.5, rollup.calls[0].hours)
}

func TestRollupFailureDoesNotFailCompletion(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)}
	repo := newMemoryItemRepo(tracking.WorkItem{
		ID: "F-1", Kind: tracking.KindFeature, ProjectID: "PRJ-1",
		Assignee: "dev@corp.test", Status: tracking.StatusInProgress,
		AccumulatedSeconds: 3600,
	})
	rollup := &recordingRollup{err: errors.New("rollup store down")}
	svc := newService(repo, rollup, clock)

	result, err := svc.Track(context.Background(), tracking.KindFeature, "PRJ-1", "F-1", tracking.ActionComplete)
	require.NoError(t, err)
	require.True(t, result.Applied)
	require.Equal(t, tracking.StatusDone, result.Item.Status)

	stored, err := repo.GetWorkItem(context.Background(), tracking.KindFeature, "PRJ-1", "F-1")
	require.NoError(t, err)
	require.Equal(t, tracking.StatusDone, stored.Status)
}

func TestTaskCompletionSkipsRollup(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)}
	repo := newMemoryItemRepo(tracking.WorkItem{
		ID: "T-1", Kind: tracking.KindTask, Assignee: "dev@corp.test",
		Status: tracking.StatusInProgress, AccumulatedSeconds: 3600,
	})
	rollup := &recordingRollup{}
	svc := newService(repo, rollup, clock)

	_, err := svc.Track(context.Background(), tracking.KindTask, "", "T-1", tracking.ActionComplete)
	require.NoError(t, err)
	require.Empty(t, rollup.calls)
}
