package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/minibank/counter-service/internal/metrics"
)

// DefaultListLimit bounds polled list reads so continuous refresh stays cheap.
const DefaultListLimit = 50

// LifecycleEngine is the state machine for counter transactions. It validates
// transitions, enforces actor permissions, applies the balance effect on
// confirmation and emits state-change events. All mutations go through the
// store's compare-and-transition primitive, which is the single serialization
// point per record.
type LifecycleEngine struct {
	store      TransactionStore
	directory  CounterDirectory
	resolver   *AssignmentResolver
	settlement SettlementTrigger
	balances   BalanceReader
	reconciler SettlementReconciler
	events     EventPublisher
	logger     *zap.Logger
	now        func() time.Time
}

// NewLifecycleEngine creates a LifecycleEngine. balances, reconciler and
// events may be nil: the advisory withdraw pre-check, settlement retry queue
// and event publication are then skipped.
func NewLifecycleEngine(
	store TransactionStore,
	directory CounterDirectory,
	resolver *AssignmentResolver,
	settlement SettlementTrigger,
	balances BalanceReader,
	reconciler SettlementReconciler,
	events EventPublisher,
	logger *zap.Logger,
) *LifecycleEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleEngine{
		store:      store,
		directory:  directory,
		resolver:   resolver,
		settlement: settlement,
		balances:   balances,
		reconciler: reconciler,
		events:     events,
		logger:     logger,
		now:        time.Now,
	}
}

// CreateDeposit creates a PENDING counter deposit request. If counterID is nil
// the assignment resolver picks the least-loaded active counter.
func (e *LifecycleEngine) CreateDeposit(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal, counterID *uuid.UUID) (*CounterTransaction, error) {
	return e.create(ctx, KindCounterDeposit, customerID, amount, counterID)
}

// CreateWithdraw creates a PENDING counter withdrawal request. Before creating
// the record, the customer's available balance is checked against the amount.
// The check is advisory: the authoritative check happens at confirmation time
// against the then-current balance.
func (e *LifecycleEngine) CreateWithdraw(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal, counterID *uuid.UUID) (*CounterTransaction, error) {
	if amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	if e.balances != nil {
		balance, err := e.balances.AvailableBalance(ctx, customerID)
		if err != nil {
			// Advisory only: the account service may be briefly unreachable
			// while the eventual confirmation still succeeds.
			e.logger.Warn("balance pre-check unavailable, proceeding",
				zap.String("customer_id", customerID.String()),
				zap.Error(err),
			)
		} else if balance.LessThan(amount) {
			return nil, ErrInsufficientFunds
		}
	}

	return e.create(ctx, KindCounterWithdraw, customerID, amount, counterID)
}

func (e *LifecycleEngine) create(ctx context.Context, kind Kind, customerID uuid.UUID, amount decimal.Decimal, counterID *uuid.UUID) (*CounterTransaction, error) {
	if !kind.Valid() {
		return nil, ErrUnknownKind
	}
	if amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	var counter *Counter
	var err error
	if counterID != nil {
		counter, err = e.resolver.ResolveExplicit(ctx, *counterID)
	} else {
		counter, err = e.resolver.Resolve(ctx)
	}
	if err != nil {
		return nil, err
	}

	tx := NewCounterTransaction(kind, customerID, amount, counter)
	if err := e.store.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to persist transaction: %w", err)
	}

	e.logger.Info("counter transaction created",
		zap.String("transaction_id", tx.ID.String()),
		zap.String("code", tx.Code),
		zap.String("kind", string(kind)),
		zap.String("counter_id", counter.ID.String()),
		zap.String("amount", amount.String()),
	)
	e.publish(ctx, EventCreated, tx)
	return tx, nil
}

// Confirm is invoked by staff once cash changed hands at the counter. Any
// active staff member of the transaction's counter may confirm; the acting
// staff identity is recorded for audit. The balance effect is applied only
// after the store commits the SUCCESS transition. If the effect then fails,
// the state is not reverted: the transaction is queued for reconciliation and
// ErrSettlementInconsistency is returned.
func (e *LifecycleEngine) Confirm(ctx context.Context, id, staffID uuid.UUID) (*CounterTransaction, error) {
	tx, err := e.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status.Terminal() {
		metrics.TransitionsTotal.WithLabelValues(string(EventConfirmed), metrics.OutcomeAlreadyResolved).Inc()
		return tx, ErrAlreadyResolved
	}

	assigned, err := e.directory.IsStaffAssigned(ctx, tx.CounterID, staffID)
	if err != nil {
		return nil, fmt.Errorf("failed to check staff assignment: %w", err)
	}
	if !assigned {
		metrics.TransitionsTotal.WithLabelValues(string(EventConfirmed), metrics.OutcomeDenied).Inc()
		return nil, ErrNotAuthorizedForCounter
	}

	resolvedAt := e.now().UTC()
	err = e.store.CompareAndTransition(ctx, id, StatusPending, StatusSuccess, tx.Version, &staffID, resolvedAt)
	if err != nil {
		return e.transitionFailed(ctx, id, EventConfirmed, err)
	}

	tx.Status = StatusSuccess
	tx.AssignedStaffID = &staffID
	tx.ResolvedAt = &resolvedAt
	tx.Version++
	metrics.TransitionsTotal.WithLabelValues(string(EventConfirmed), metrics.OutcomeOK).Inc()

	e.logger.Info("counter transaction confirmed",
		zap.String("transaction_id", tx.ID.String()),
		zap.String("staff_id", staffID.String()),
	)
	e.publish(ctx, EventConfirmed, tx)

	if err := e.settlement.ApplyEffect(ctx, tx.CustomerID, tx.SignedAmount(), tx.ID); err != nil {
		metrics.SettlementFailuresTotal.Inc()
		e.logger.Error("balance effect failed after committed transition",
			zap.String("transaction_id", tx.ID.String()),
			zap.Error(err),
		)
		if e.reconciler != nil {
			e.reconciler.Enqueue(tx)
		}
		return tx, fmt.Errorf("%w: %v", ErrSettlementInconsistency, err)
	}

	return tx, nil
}

// Cancel is invoked by the owning customer. Cancellation is always permitted
// while PENDING; there is no "staff already started" sub-state. A concurrent
// confirm is resolved solely by the store's atomicity.
func (e *LifecycleEngine) Cancel(ctx context.Context, id, customerID uuid.UUID) (*CounterTransaction, error) {
	tx, err := e.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.CustomerID != customerID {
		metrics.TransitionsTotal.WithLabelValues(string(EventCancelled), metrics.OutcomeDenied).Inc()
		return nil, ErrNotOwner
	}
	if tx.Status.Terminal() {
		metrics.TransitionsTotal.WithLabelValues(string(EventCancelled), metrics.OutcomeAlreadyResolved).Inc()
		return tx, ErrAlreadyResolved
	}

	resolvedAt := e.now().UTC()
	err = e.store.CompareAndTransition(ctx, id, StatusPending, StatusCancelled, tx.Version, nil, resolvedAt)
	if err != nil {
		return e.transitionFailed(ctx, id, EventCancelled, err)
	}

	tx.Status = StatusCancelled
	tx.ResolvedAt = &resolvedAt
	tx.Version++
	metrics.TransitionsTotal.WithLabelValues(string(EventCancelled), metrics.OutcomeOK).Inc()

	e.logger.Info("counter transaction cancelled",
		zap.String("transaction_id", tx.ID.String()),
		zap.String("customer_id", customerID.String()),
	)
	e.publish(ctx, EventCancelled, tx)
	return tx, nil
}

// transitionFailed normalizes a failed compare-and-transition. On
// ErrAlreadyResolved the authoritative record is re-fetched so the caller can
// display the resolved state instead of an error.
func (e *LifecycleEngine) transitionFailed(ctx context.Context, id uuid.UUID, event EventType, err error) (*CounterTransaction, error) {
	switch {
	case errors.Is(err, ErrAlreadyResolved):
		metrics.TransitionsTotal.WithLabelValues(string(event), metrics.OutcomeAlreadyResolved).Inc()
		current, getErr := e.store.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return current, ErrAlreadyResolved
	case errors.Is(err, ErrVersionConflict):
		metrics.TransitionsTotal.WithLabelValues(string(event), metrics.OutcomeConflict).Inc()
		return nil, err
	default:
		metrics.TransitionsTotal.WithLabelValues(string(event), metrics.OutcomeError).Inc()
		return nil, fmt.Errorf("transition failed: %w", err)
	}
}

// Get retrieves a single transaction.
func (e *LifecycleEngine) Get(ctx context.Context, id uuid.UUID) (*CounterTransaction, error) {
	return e.store.GetByID(ctx, id)
}

// ListForCustomer returns the customer's PENDING and recent terminal
// transactions, newest first, bounded for continuous polling.
func (e *LifecycleEngine) ListForCustomer(ctx context.Context, customerID uuid.UUID) ([]*CounterTransaction, error) {
	return e.store.ListByCustomer(ctx, customerID, DefaultListLimit)
}

// ListQueue returns the PENDING transactions assigned to a counter, oldest
// first. The counter must exist.
func (e *LifecycleEngine) ListQueue(ctx context.Context, counterID uuid.UUID) ([]*CounterTransaction, error) {
	if _, err := e.directory.GetCounter(ctx, counterID); err != nil {
		return nil, err
	}
	return e.store.ListPendingByCounter(ctx, counterID, DefaultListLimit)
}

// ExpireStale transitions PENDING transactions older than maxAge to FAILED.
// No balance effect is applied. Races with concurrent confirms or cancels are
// benign: the loser of the compare-and-transition is skipped.
func (e *LifecycleEngine) ExpireStale(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := e.now().UTC().Add(-maxAge)
	stale, err := e.store.ListPendingOlderThan(ctx, cutoff, DefaultListLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale transactions: %w", err)
	}

	expired := 0
	for _, tx := range stale {
		resolvedAt := e.now().UTC()
		err := e.store.CompareAndTransition(ctx, tx.ID, StatusPending, StatusFailed, tx.Version, nil, resolvedAt)
		if err != nil {
			if errors.Is(err, ErrAlreadyResolved) || errors.Is(err, ErrVersionConflict) {
				continue
			}
			return expired, fmt.Errorf("failed to expire transaction %s: %w", tx.ID, err)
		}
		tx.Status = StatusFailed
		tx.ResolvedAt = &resolvedAt
		tx.Version++
		expired++
		metrics.TransitionsTotal.WithLabelValues(string(EventExpired), metrics.OutcomeOK).Inc()
		e.publish(ctx, EventExpired, tx)
	}

	if expired > 0 {
		e.logger.Info("expired stale transactions", zap.Int("count", expired))
	}
	return expired, nil
}

// RunExpirySweeper runs ExpireStale on the given interval until ctx is done.
// Intended to be launched as a goroutine when a maximum pending age is
// configured; by default PENDING records stay open indefinitely.
func (e *LifecycleEngine) RunExpirySweeper(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.ExpireStale(ctx, maxAge); err != nil {
				e.logger.Warn("expiry sweep failed", zap.Error(err))
			}
		}
	}
}

// publish emits a lifecycle event, best-effort. A publish failure never fails
// the operation: the store is the source of truth and consumers re-poll.
func (e *LifecycleEngine) publish(ctx context.Context, event EventType, tx *CounterTransaction) {
	if e.events == nil {
		return
	}
	le := LifecycleEvent{
		Type:        event,
		Transaction: tx.Clone(),
		OccurredAt:  e.now().UTC(),
	}
	if err := e.events.PublishLifecycleEvent(ctx, le); err != nil {
		e.logger.Warn("failed to publish lifecycle event",
			zap.String("event", string(event)),
			zap.String("transaction_id", tx.ID.String()),
			zap.Error(err),
		)
	}
}
