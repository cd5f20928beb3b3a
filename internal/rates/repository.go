package rates

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opsledger/opsledger/internal/shared"
)

// Repository defines rate registry data access.
type Repository interface {
	ListRates(ctx context.Context) ([]RateEntry, error)
	GetRateByEmail(ctx context.Context, email string) (RateEntry, error)
	CreateRate(ctx context.Context, entry RateEntry) (RateEntry, error)
	UpdateRate(ctx context.Context, id, personName string, hourlyRate float64) (RateEntry, error)
	DeleteRate(ctx context.Context, id string) error
}

var _ Repository = (*PGRepository)(nil)

// PGRepository provides PostgreSQL backed rate persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const rateColumns = `id, person_email, person_name, hourly_rate, created_at, updated_at`

// ListRates returns all configured rate entries.
func (r *PGRepository) ListRates(ctx context.Context) ([]RateEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+rateColumns+` FROM hourly_rates ORDER BY person_email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RateEntry
	for rows.Next() {
		var e RateEntry
		if err := rows.Scan(&e.ID, &e.PersonEmail, &e.PersonName, &e.HourlyRate, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetRateByEmail loads the rate entry for a person.
func (r *PGRepository) GetRateByEmail(ctx context.Context, email string) (RateEntry, error) {
	var e RateEntry
	err := r.pool.QueryRow(ctx, `SELECT `+rateColumns+` FROM hourly_rates WHERE person_email = $1`, email).
		Scan(&e.ID, &e.PersonEmail, &e.PersonName, &e.HourlyRate, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RateEntry{}, shared.ErrNotFound
		}
		return RateEntry{}, err
	}
	return e, nil
}

// CreateRate inserts a new rate entry.
func (r *PGRepository) CreateRate(ctx context.Context, entry RateEntry) (RateEntry, error) {
	now := time.Now()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	_, err := r.pool.Exec(ctx, `
		INSERT INTO hourly_rates (id, person_email, person_name, hourly_rate, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.PersonEmail, entry.PersonName, entry.HourlyRate, entry.CreatedAt, entry.UpdatedAt)
	if err != nil {
		return RateEntry{}, err
	}
	return entry, nil
}

// UpdateRate updates name and rate for an existing entry.
func (r *PGRepository) UpdateRate(ctx context.Context, id, personName string, hourlyRate float64) (RateEntry, error) {
	var e RateEntry
	err := r.pool.QueryRow(ctx, `
		UPDATE hourly_rates SET person_name = $2, hourly_rate = $3, updated_at = $4
		WHERE id = $1
		RETURNING `+rateColumns,
		id, personName, hourlyRate, time.Now()).
		Scan(&e.ID, &e.PersonEmail, &e.PersonName, &e.HourlyRate, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RateEntry{}, shared.ErrNotFound
		}
		return RateEntry{}, err
	}
	return e, nil
}

// DeleteRate removes a rate entry.
func (r *PGRepository) DeleteRate(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM hourly_rates WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
