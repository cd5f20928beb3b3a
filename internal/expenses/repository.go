package expenses

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opsledger/opsledger/internal/shared"
)

// ErrDuplicateExpense indicates the (work item, billing period) pair is
// already billed. The expenses table carries a unique constraint on
// (source_kind, source_id, billing_period); a losing concurrent insert
// surfaces here instead of creating a duplicate.
var ErrDuplicateExpense = errors.New("expense already exists for work item and period")

// Repository defines expense data access.
type Repository interface {
	CreateExpense(ctx context.Context, record ExpenseRecord) (ExpenseRecord, error)
	ListExpensesByPeriod(ctx context.Context, period shared.BillingPeriod) ([]ExpenseRecord, error)
}

var _ Repository = (*pgRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const expenseColumns = `id, person, concept, category, company, hours, hourly_rate, subtotal, tax, total, billing_period, source_kind, source_id, status, created_at`

func (r *pgRepository) CreateExpense(ctx context.Context, record ExpenseRecord) (ExpenseRecord, error) {
	record.CreatedAt = time.Now()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO expenses (`+expenseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		record.ID, record.Person, record.Concept, record.Category, record.Company,
		record.Hours, record.HourlyRate, record.Subtotal, record.Tax, record.Total,
		record.BillingPeriod, record.SourceKind, record.SourceID, record.Status, record.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ExpenseRecord{}, ErrDuplicateExpense
		}
		return ExpenseRecord{}, err
	}
	return record, nil
}

func (r *pgRepository) ListExpensesByPeriod(ctx context.Context, period shared.BillingPeriod) ([]ExpenseRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE billing_period = $1 ORDER BY created_at`, period)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ExpenseRecord
	for rows.Next() {
		var e ExpenseRecord
		if err := rows.Scan(&e.ID, &e.Person, &e.Concept, &e.Category, &e.Company,
			&e.Hours, &e.HourlyRate, &e.Subtotal, &e.Tax, &e.Total,
			&e.BillingPeriod, &e.SourceKind, &e.SourceID, &e.Status, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
