package domain

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AssignmentResolver picks the counter that handles a newly created request so
// the customer never has to choose a specific staff member. Policy: the active
// counter with the fewest currently-PENDING transactions wins; ties are broken
// randomly. If no active counter exists the resolver fails closed and nothing
// is persisted.
type AssignmentResolver struct {
	store     TransactionStore
	directory CounterDirectory
	logger    *zap.Logger
}

// NewAssignmentResolver creates an AssignmentResolver.
func NewAssignmentResolver(store TransactionStore, directory CounterDirectory, logger *zap.Logger) *AssignmentResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentResolver{
		store:     store,
		directory: directory,
		logger:    logger,
	}
}

// Resolve selects the least-loaded active counter.
// Returns ErrNoCounterAvailable when no counter is active.
func (r *AssignmentResolver) Resolve(ctx context.Context) (*Counter, error) {
	counters, err := r.directory.ListActiveCounters(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active counters: %w", err)
	}
	if len(counters) == 0 {
		return nil, ErrNoCounterAvailable
	}

	pending, err := r.store.CountPendingByCounter(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending transactions: %w", err)
	}

	least := make([]*Counter, 0, len(counters))
	min := -1
	for _, c := range counters {
		n := pending[c.ID]
		switch {
		case min < 0 || n < min:
			min = n
			least = least[:0]
			least = append(least, c)
		case n == min:
			least = append(least, c)
		}
	}

	selected := least[rand.Intn(len(least))]
	r.logger.Debug("assigned counter",
		zap.String("counter_id", selected.ID.String()),
		zap.String("counter_code", selected.Code),
		zap.Int("pending_count", min),
	)
	return selected, nil
}

// ResolveExplicit validates a counter chosen by the caller. An unknown counter
// yields ErrCounterNotFound; an inactive one yields ErrNoCounterAvailable.
func (r *AssignmentResolver) ResolveExplicit(ctx context.Context, counterID uuid.UUID) (*Counter, error) {
	counter, err := r.directory.GetCounter(ctx, counterID)
	if err != nil {
		return nil, err
	}
	if !counter.IsActive {
		return nil, ErrNoCounterAvailable
	}
	return counter, nil
}
