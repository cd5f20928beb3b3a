package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opsledger/opsledger/internal/platform/db"
)

// ErrItemNotFound indicates an unknown work item.
var ErrItemNotFound = errors.New("work item not found")

// Repository defines work-item data access.
type Repository interface {
	GetWorkItem(ctx context.Context, kind ItemKind, projectID, id string) (WorkItem, error)
	// UpdateTimer applies a timer mutation under a per-item row lock. The
	// callback reports whether the item changed; unchanged items are not
	// written back.
	UpdateTimer(ctx context.Context, kind ItemKind, projectID, id string, apply func(*WorkItem) (bool, error)) (WorkItem, error)
	ListCompletedTasksByAssignee(ctx context.Context, assignee string) ([]WorkItem, error)
	ListCompletedUnassignedTasks(ctx context.Context) ([]WorkItem, error)
	ListFeaturesByProject(ctx context.Context, projectID string) ([]WorkItem, error)
}

var _ Repository = (*pgRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const workItemColumns = `kind, id, project_id, title, category, assignee, status, started_at, accumulated_seconds, actual_hours, created_at, updated_at`

func scanWorkItem(row pgx.Row) (WorkItem, error) {
	var item WorkItem
	err := row.Scan(
		&item.Kind, &item.ID, &item.ProjectID, &item.Title, &item.Category,
		&item.Assignee, &item.Status, &item.StartedAt, &item.AccumulatedSeconds,
		&item.ActualHours, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WorkItem{}, ErrItemNotFound
		}
		return WorkItem{}, err
	}
	return item, nil
}

func (r *pgRepository) GetWorkItem(ctx context.Context, kind ItemKind, projectID, id string) (WorkItem, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+workItemColumns+` FROM work_items WHERE kind = $1 AND project_id = $2 AND id = $3`,
		kind, projectID, id)
	return scanWorkItem(row)
}

func (r *pgRepository) UpdateTimer(ctx context.Context, kind ItemKind, projectID, id string, apply func(*WorkItem) (bool, error)) (WorkItem, error) {
	var item WorkItem
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`SELECT `+workItemColumns+` FROM work_items WHERE kind = $1 AND project_id = $2 AND id = $3 FOR UPDATE`,
			kind, projectID, id)
		var err error
		item, err = scanWorkItem(row)
		if err != nil {
			return err
		}
		changed, err := apply(&item)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		item.UpdatedAt = time.Now()
		_, err = tx.Exec(ctx, `
			UPDATE work_items
			SET status = $4, started_at = $5, accumulated_seconds = $6, actual_hours = $7, updated_at = $8
			WHERE kind = $1 AND project_id = $2 AND id = $3`,
			kind, projectID, id,
			item.Status, item.StartedAt, item.AccumulatedSeconds, item.ActualHours, item.UpdatedAt)
		return err
	})
	if err != nil {
		return WorkItem{}, err
	}
	return item, nil
}

func (r *pgRepository) ListCompletedTasksByAssignee(ctx context.Context, assignee string) ([]WorkItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+workItemColumns+` FROM work_items WHERE kind = $1 AND status = $2 AND assignee = $3 ORDER BY id`,
		KindTask, StatusCompleted, assignee)
	if err != nil {
		return nil, err
	}
	return collectWorkItems(rows)
}

func (r *pgRepository) ListCompletedUnassignedTasks(ctx context.Context) ([]WorkItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+workItemColumns+` FROM work_items WHERE kind = $1 AND status = $2 AND assignee = '' ORDER BY id`,
		KindTask, StatusCompleted)
	if err != nil {
		return nil, err
	}
	return collectWorkItems(rows)
}

func (r *pgRepository) ListFeaturesByProject(ctx context.Context, projectID string) ([]WorkItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+workItemColumns+` FROM work_items WHERE kind = $1 AND project_id = $2 ORDER BY id`,
		KindFeature, projectID)
	if err != nil {
		return nil, err
	}
	return collectWorkItems(rows)
}

func collectWorkItems(rows pgx.Rows) ([]WorkItem, error) {
	defer rows.Close()
	var items []WorkItem
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
