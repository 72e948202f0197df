package domain

import "errors"

var (
	// ErrInvalidAmount is returned when the requested amount is not strictly positive
	ErrInvalidAmount = errors.New("invalid amount: must be positive")

	// ErrUnknownKind is returned when the transaction kind is not a counter kind
	ErrUnknownKind = errors.New("unknown transaction kind")

	// ErrTransactionNotFound is returned when a transaction doesn't exist
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrCounterNotFound is returned when the referenced counter doesn't exist
	ErrCounterNotFound = errors.New("counter not found")

	// ErrNoCounterAvailable is returned when no active counter can take the request.
	// Creation fails closed: no record is persisted.
	ErrNoCounterAvailable = errors.New("no counter available")

	// ErrNotOwner is returned when a customer acts on a transaction they don't own
	ErrNotOwner = errors.New("transaction is not owned by the acting customer")

	// ErrNotAuthorizedForCounter is returned when staff confirm a transaction
	// assigned to a counter they don't work at
	ErrNotAuthorizedForCounter = errors.New("staff is not assigned to the transaction's counter")

	// ErrAlreadyResolved is returned when acting on a transaction that already
	// reached a terminal status. Both actors poll and may race benignly, so this
	// is an idempotent outcome rather than a hard failure.
	ErrAlreadyResolved = errors.New("transaction already resolved")

	// ErrVersionConflict is returned when a compare-and-transition lost a race
	// against a concurrent writer. Callers should re-fetch and retry at most once.
	ErrVersionConflict = errors.New("transaction version conflict")

	// ErrInsufficientFunds is returned by the advisory balance pre-check on
	// withdrawal creation
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrSettlementInconsistency is returned when the state transition to SUCCESS
	// committed but applying the balance effect failed. The transaction state is
	// the source of truth and is never reverted; the effect is queued for
	// reconciliation against the same cause id.
	ErrSettlementInconsistency = errors.New("settlement inconsistency: state committed, balance effect pending reconciliation")
)

// IsAlreadyResolved reports whether err indicates a benign race on a terminal record.
func IsAlreadyResolved(err error) bool {
	return errors.Is(err, ErrAlreadyResolved)
}

// IsVersionConflict reports whether err indicates a lost compare-and-transition race.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
