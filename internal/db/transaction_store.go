package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/minibank/counter-service/internal/domain"
)

// querier is the query surface shared by pgxpool.Pool and pgx.Tx, so every
// method transparently joins an open transaction from the context.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TransactionStore implements domain.TransactionStore using PostgreSQL.
type TransactionStore struct {
	pool *pgxpool.Pool
	txm  *TransactionManager
}

// NewTransactionStore creates a new TransactionStore.
func NewTransactionStore(pool *pgxpool.Pool, txm *TransactionManager) *TransactionStore {
	return &TransactionStore{
		pool: pool,
		txm:  txm,
	}
}

func (s *TransactionStore) querier(ctx context.Context) querier {
	if tx := getTx(ctx); tx != nil {
		return tx
	}
	return s.pool
}

const transactionColumns = `
	id, code, kind, customer_id, amount_value,
	counter_id, assigned_staff_id, status,
	created_at, resolved_at, version
`

// Create persists a new transaction.
func (s *TransactionStore) Create(ctx context.Context, tx *domain.CounterTransaction) error {
	query := `
		INSERT INTO counter_transactions (
			id, code, kind, customer_id, amount_value,
			counter_id, assigned_staff_id, status,
			created_at, resolved_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.querier(ctx).Exec(ctx, query,
		tx.ID,
		tx.Code,
		string(tx.Kind),
		tx.CustomerID,
		tx.Amount.String(),
		tx.CounterID,
		tx.AssignedStaffID,
		string(tx.Status),
		tx.CreatedAt,
		tx.ResolvedAt,
		tx.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// GetByID retrieves a transaction by its unique identifier.
func (s *TransactionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.CounterTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM counter_transactions WHERE id = $1`

	tx, err := scanTransaction(s.querier(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

// ListByCustomer returns the customer's transactions, newest first.
func (s *TransactionStore) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]*domain.CounterTransaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM counter_transactions
		WHERE customer_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.querier(ctx).Query(ctx, query, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions by customer: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// ListPendingByCounter returns PENDING transactions for a counter, oldest first.
func (s *TransactionStore) ListPendingByCounter(ctx context.Context, counterID uuid.UUID, limit int) ([]*domain.CounterTransaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM counter_transactions
		WHERE counter_id = $1 AND status = $2
		ORDER BY created_at ASC
		LIMIT $3
	`

	rows, err := s.querier(ctx).Query(ctx, query, counterID, string(domain.StatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// ListPendingOlderThan returns PENDING transactions created before cutoff.
func (s *TransactionStore) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*domain.CounterTransaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM counter_transactions
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at ASC
		LIMIT $3
	`

	rows, err := s.querier(ctx).Query(ctx, query, string(domain.StatusPending), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale transactions: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// CountPendingByCounter returns PENDING counts grouped by counter.
func (s *TransactionStore) CountPendingByCounter(ctx context.Context) (map[uuid.UUID]int, error) {
	query := `
		SELECT counter_id, COUNT(*)
		FROM counter_transactions
		WHERE status = $1
		GROUP BY counter_id
	`

	rows, err := s.querier(ctx).Query(ctx, query, string(domain.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("failed to count pending transactions: %w", err)
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var counterID uuid.UUID
		var n int
		if err := rows.Scan(&counterID, &n); err != nil {
			return nil, fmt.Errorf("failed to scan pending count: %w", err)
		}
		counts[counterID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pending counts: %w", err)
	}
	return counts, nil
}

// CompareAndTransition atomically moves the record between statuses. The row
// lock, status check and update run in a single database transaction, so of
// two concurrent actors exactly one wins.
func (s *TransactionStore) CompareAndTransition(ctx context.Context, id uuid.UUID, expectedStatus, newStatus domain.Status, expectedVersion int64, staffID *uuid.UUID, resolvedAt time.Time) error {
	return s.txm.WithTransaction(ctx, func(txCtx context.Context) error {
		q := s.querier(txCtx)

		var status string
		var version int64
		err := q.QueryRow(txCtx,
			`SELECT status, version FROM counter_transactions WHERE id = $1 FOR UPDATE`, id,
		).Scan(&status, &version)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrTransactionNotFound
			}
			return fmt.Errorf("failed to lock transaction: %w", err)
		}

		if domain.Status(status).Terminal() {
			return domain.ErrAlreadyResolved
		}
		if domain.Status(status) != expectedStatus || version != expectedVersion {
			return domain.ErrVersionConflict
		}

		_, err = q.Exec(txCtx, `
			UPDATE counter_transactions
			SET status = $2,
			    version = version + 1,
			    assigned_staff_id = $3,
			    resolved_at = $4
			WHERE id = $1
		`, id, string(newStatus), staffID, resolvedAt)
		if err != nil {
			return fmt.Errorf("failed to transition transaction: %w", err)
		}
		return nil
	})
}

func scanTransaction(row pgx.Row) (*domain.CounterTransaction, error) {
	var tx domain.CounterTransaction
	var kind, status, amountValue string

	err := row.Scan(
		&tx.ID,
		&tx.Code,
		&kind,
		&tx.CustomerID,
		&amountValue,
		&tx.CounterID,
		&tx.AssignedStaffID,
		&status,
		&tx.CreatedAt,
		&tx.ResolvedAt,
		&tx.Version,
	)
	if err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(amountValue)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amountValue, err)
	}
	tx.Amount = amount
	tx.Kind = domain.Kind(kind)
	tx.Status = domain.Status(status)
	return &tx, nil
}

func collectTransactions(rows pgx.Rows) ([]*domain.CounterTransaction, error) {
	var result []*domain.CounterTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}
	return result, nil
}
