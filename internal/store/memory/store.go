// Package memory provides in-memory implementations of the transaction store
// and counter directory, used in tests and for local development without
// PostgreSQL.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/minibank/counter-service/internal/domain"
)

// TransactionStore is an in-memory domain.TransactionStore. It is safe for
// concurrent use; CompareAndTransition holds the store mutex for the whole
// check-and-set, which gives the same exactly-one-winner guarantee as a
// single database transaction.
type TransactionStore struct {
	mu  sync.Mutex
	txs map[uuid.UUID]*domain.CounterTransaction
}

// NewTransactionStore creates an empty TransactionStore.
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{
		txs: make(map[uuid.UUID]*domain.CounterTransaction),
	}
}

// Create persists a new transaction.
func (s *TransactionStore) Create(ctx context.Context, tx *domain.CounterTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.txs[tx.ID] = tx.Clone()
	return nil
}

// GetByID retrieves a transaction by id.
func (s *TransactionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.CounterTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return tx.Clone(), nil
}

// ListByCustomer returns the customer's transactions newest first, bounded.
func (s *TransactionStore) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]*domain.CounterTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.CounterTransaction
	for _, tx := range s.txs {
		if tx.CustomerID == customerID {
			result = append(result, tx.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ListPendingByCounter returns PENDING transactions for a counter, oldest first.
func (s *TransactionStore) ListPendingByCounter(ctx context.Context, counterID uuid.UUID, limit int) ([]*domain.CounterTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.CounterTransaction
	for _, tx := range s.txs {
		if tx.CounterID == counterID && tx.Status == domain.StatusPending {
			result = append(result, tx.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ListPendingOlderThan returns PENDING transactions created before cutoff.
func (s *TransactionStore) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*domain.CounterTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.CounterTransaction
	for _, tx := range s.txs {
		if tx.Status == domain.StatusPending && tx.CreatedAt.Before(cutoff) {
			result = append(result, tx.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// CountPendingByCounter returns PENDING counts per counter.
func (s *TransactionStore) CountPendingByCounter(ctx context.Context) (map[uuid.UUID]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[uuid.UUID]int)
	for _, tx := range s.txs {
		if tx.Status == domain.StatusPending {
			counts[tx.CounterID]++
		}
	}
	return counts, nil
}

// CompareAndTransition atomically moves a record between statuses. See
// domain.TransactionStore for the contract.
func (s *TransactionStore) CompareAndTransition(ctx context.Context, id uuid.UUID, expectedStatus, newStatus domain.Status, expectedVersion int64, staffID *uuid.UUID, resolvedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[id]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	if tx.Status.Terminal() {
		return domain.ErrAlreadyResolved
	}
	if tx.Status != expectedStatus || tx.Version != expectedVersion {
		return domain.ErrVersionConflict
	}

	tx.Status = newStatus
	tx.Version++
	if newStatus.Terminal() {
		at := resolvedAt
		tx.ResolvedAt = &at
	}
	if staffID != nil {
		sid := *staffID
		tx.AssignedStaffID = &sid
	}
	return nil
}
