package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/minibank/counter-service/internal/domain"
)

// CounterDirectory implements domain.CounterDirectory over the counters and
// counter_staff tables maintained by branch management. This service only
// ever reads them.
type CounterDirectory struct {
	pool *pgxpool.Pool
}

// NewCounterDirectory creates a new CounterDirectory.
func NewCounterDirectory(pool *pgxpool.Pool) *CounterDirectory {
	return &CounterDirectory{
		pool: pool,
	}
}

const counterColumns = `counter_id, code, name, address, is_active, max_staff, created_at, updated_at`

// ListActiveCounters returns all counters with is_active = true.
func (d *CounterDirectory) ListActiveCounters(ctx context.Context) ([]*domain.Counter, error) {
	query := `SELECT ` + counterColumns + ` FROM counters WHERE is_active = TRUE ORDER BY code`

	rows, err := d.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active counters: %w", err)
	}
	defer rows.Close()

	var result []*domain.Counter
	for rows.Next() {
		counter, err := scanCounter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan counter: %w", err)
		}
		result = append(result, counter)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read counters: %w", err)
	}
	return result, nil
}

// GetCounter retrieves a counter by id.
func (d *CounterDirectory) GetCounter(ctx context.Context, id uuid.UUID) (*domain.Counter, error) {
	query := `SELECT ` + counterColumns + ` FROM counters WHERE counter_id = $1`

	counter, err := scanCounter(d.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCounterNotFound
		}
		return nil, fmt.Errorf("failed to get counter: %w", err)
	}
	return counter, nil
}

// IsStaffAssigned reports whether the staff member actively works at the counter.
func (d *CounterDirectory) IsStaffAssigned(ctx context.Context, counterID, staffID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM counter_staff
			WHERE counter_id = $1 AND user_id = $2 AND is_active = TRUE
		)
	`

	var assigned bool
	if err := d.pool.QueryRow(ctx, query, counterID, staffID).Scan(&assigned); err != nil {
		return false, fmt.Errorf("failed to check staff assignment: %w", err)
	}
	return assigned, nil
}

func scanCounter(row pgx.Row) (*domain.Counter, error) {
	var c domain.Counter
	err := row.Scan(
		&c.ID,
		&c.Code,
		&c.Name,
		&c.Address,
		&c.IsActive,
		&c.MaxStaff,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
