package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionStore is the durable record of every counter transaction and the
// source of truth for its state. CompareAndTransition is the only mutation
// path after creation.
type TransactionStore interface {
	// Create persists a new PENDING transaction.
	Create(ctx context.Context, tx *CounterTransaction) error

	// GetByID retrieves a transaction by its unique identifier.
	// Returns ErrTransactionNotFound if no record exists.
	GetByID(ctx context.Context, id uuid.UUID) (*CounterTransaction, error)

	// ListByCustomer returns the customer's PENDING transactions plus recent
	// terminal ones, newest first, bounded by limit. Reads are polled
	// continuously, so the result must stay cheap.
	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]*CounterTransaction, error)

	// ListPendingByCounter returns the PENDING transactions assigned to a
	// counter, oldest first (FIFO fairness), bounded by limit.
	ListPendingByCounter(ctx context.Context, counterID uuid.UUID, limit int) ([]*CounterTransaction, error)

	// ListPendingOlderThan returns PENDING transactions created before cutoff,
	// bounded by limit. Used by the expiry sweeper.
	ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*CounterTransaction, error)

	// CountPendingByCounter returns the number of PENDING transactions per
	// counter. Counters with no pending work may be absent from the map.
	CountPendingByCounter(ctx context.Context) (map[uuid.UUID]int, error)

	// CompareAndTransition atomically moves the record from expectedStatus to
	// newStatus if and only if the stored version equals expectedVersion.
	// staffID and resolvedAt are recorded with the transition. Exactly one of
	// two concurrent callers can succeed.
	//
	// Returns ErrTransactionNotFound if the record doesn't exist,
	// ErrAlreadyResolved if it is already terminal, and ErrVersionConflict if
	// the status matched but the version didn't.
	CompareAndTransition(ctx context.Context, id uuid.UUID, expectedStatus, newStatus Status, expectedVersion int64, staffID *uuid.UUID, resolvedAt time.Time) error
}

// CounterDirectory is the read-only registry of physical counters and their
// staff, consumed from the branch management collaborator.
type CounterDirectory interface {
	// ListActiveCounters returns all counters with IsActive == true.
	ListActiveCounters(ctx context.Context) ([]*Counter, error)

	// GetCounter retrieves a counter by id.
	// Returns ErrCounterNotFound if no counter exists.
	GetCounter(ctx context.Context, id uuid.UUID) (*Counter, error)

	// IsStaffAssigned reports whether the staff member actively works at the
	// given counter. Any staff at the transaction's counter may confirm it.
	IsStaffAssigned(ctx context.Context, counterID, staffID uuid.UUID) (bool, error)
}

// SettlementTrigger applies the monetary effect of a confirmed transaction.
// causeID is the transaction id; implementations must be safe to retry with
// the same causeID without double-applying.
type SettlementTrigger interface {
	ApplyEffect(ctx context.Context, customerID uuid.UUID, signedAmount decimal.Decimal, causeID uuid.UUID) error
}

// BalanceReader exposes the advisory balance lookup used on withdrawal
// creation. The authoritative check happens at confirmation time.
type BalanceReader interface {
	AvailableBalance(ctx context.Context, customerID uuid.UUID) (decimal.Decimal, error)
}

// SettlementReconciler queues transactions whose state committed to SUCCESS
// but whose balance effect failed, for out-of-band retry against the same
// cause id.
type SettlementReconciler interface {
	Enqueue(tx *CounterTransaction)
}

// EventType identifies a lifecycle state change.
type EventType string

const (
	EventCreated   EventType = "created"
	EventConfirmed EventType = "confirmed"
	EventCancelled EventType = "cancelled"
	EventExpired   EventType = "expired"
)

// LifecycleEvent is emitted after every successful mutation so read-side
// consumers (notifications, dashboards) can observe state changes without
// polling the store.
type LifecycleEvent struct {
	Type        EventType
	Transaction *CounterTransaction
	OccurredAt  time.Time
}

// EventPublisher publishes lifecycle events to external systems (e.g. RabbitMQ).
// Publication is best-effort; the store remains the source of truth.
type EventPublisher interface {
	PublishLifecycleEvent(ctx context.Context, event LifecycleEvent) error
}
