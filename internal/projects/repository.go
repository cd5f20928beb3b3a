package projects

import (
	"context"
	"errors"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opsledger/opsledger/internal/platform/db"
	"github.com/opsledger/opsledger/internal/shared"
)

// Repository provides PostgreSQL backed project access.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListProjects returns all projects.
func (r *Repository) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, client, created_at, updated_at FROM projects ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Client, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetProject loads one project by id.
func (r *Repository) GetProject(ctx context.Context, id string) (Project, error) {
	var p Project
	err := r.pool.QueryRow(ctx, `SELECT id, name, client, created_at, updated_at FROM projects WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Client, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, shared.ErrNotFound
		}
		return Project{}, err
	}
	return p, nil
}

// AddUserHours adds completed feature hours to a project member's running
// total, rounded to one decimal. The upsert runs in its own transaction so
// concurrent completions on the same project serialize on the row.
func (r *Repository) AddUserHours(ctx context.Context, projectID, person string, hours float64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var current float64
		err := tx.QueryRow(ctx,
			`SELECT hours FROM project_user_hours WHERE project_id = $1 AND person = $2 FOR UPDATE`,
			projectID, person).Scan(&current)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		total := math.Round((current+hours)*10) / 10
		_, err = tx.Exec(ctx, `
			INSERT INTO project_user_hours (project_id, person, hours)
			VALUES ($1, $2, $3)
			ON CONFLICT (project_id, person) DO UPDATE SET hours = EXCLUDED.hours`,
			projectID, person, total)
		return err
	})
}
