package domain

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind represents the type of a counter-mediated transaction.
type Kind string

const (
	// KindCounterDeposit is cash handed over at a counter and credited to the account
	KindCounterDeposit Kind = "COUNTER_DEPOSIT"

	// KindCounterWithdraw is cash paid out at a counter and debited from the account
	KindCounterWithdraw Kind = "COUNTER_WITHDRAW"
)

// Valid reports whether k is a known counter transaction kind.
func (k Kind) Valid() bool {
	return k == KindCounterDeposit || k == KindCounterWithdraw
}

// Status represents the lifecycle state of a counter transaction.
type Status string

const (
	// StatusPending indicates the request awaits staff confirmation or customer cancellation
	StatusPending Status = "PENDING"

	// StatusSuccess indicates staff confirmed the transaction and the balance effect applies
	StatusSuccess Status = "SUCCESS"

	// StatusCancelled indicates the owning customer cancelled the request before confirmation
	StatusCancelled Status = "CANCELLED"

	// StatusFailed indicates the request expired without being acted on
	StatusFailed Status = "FAILED"
)

// Terminal reports whether s is a terminal status. No transition leaves a
// terminal status.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusCancelled || s == StatusFailed
}

// CounterTransaction is the core entity: a cash deposit or withdrawal requested
// by a customer and fulfilled in person at a physical counter.
//
// ID, Code, Kind, CustomerID, Amount and CounterID are immutable after creation.
// Status, AssignedStaffID, ResolvedAt and Version are mutated only through the
// store's compare-and-transition primitive. Records are never deleted; terminal
// records persist for audit.
type CounterTransaction struct {
	ID              uuid.UUID       // Unique identifier, assigned at creation
	Code            string          // Short human-presentable code quoted at the counter
	Kind            Kind            // COUNTER_DEPOSIT or COUNTER_WITHDRAW
	CustomerID      uuid.UUID       // Owning customer
	Amount          decimal.Decimal // Strictly positive; no partial fulfillment
	CounterID       uuid.UUID       // Counter assigned at creation
	AssignedStaffID *uuid.UUID      // Confirming staff; set only with the SUCCESS transition
	Status          Status          // Lifecycle state
	CreatedAt       time.Time       // Creation timestamp
	ResolvedAt      *time.Time      // Set when a terminal status is reached
	Version         int64           // Optimistic concurrency revision
}

// Counter is the physical branch location entity, consumed read-only from the
// counter directory. It is used only for assignment and display.
type Counter struct {
	ID        uuid.UUID
	Code      string // Short counter code (e.g. Q001)
	Name      string
	Address   string
	IsActive  bool
	MaxStaff  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewCounterTransaction creates a PENDING transaction assigned to the given
// counter. The presentable code embeds the counter code so staff can locate
// the queue a customer is quoting from.
func NewCounterTransaction(kind Kind, customerID uuid.UUID, amount decimal.Decimal, counter *Counter) *CounterTransaction {
	now := time.Now().UTC()
	return &CounterTransaction{
		ID:         uuid.New(),
		Code:       GenerateCode(counter.Code, now),
		Kind:       kind,
		CustomerID: customerID,
		Amount:     amount,
		CounterID:  counter.ID,
		Status:     StatusPending,
		CreatedAt:  now,
		Version:    1,
	}
}

// GenerateCode builds the short code shown to the customer: the counter code,
// six random digits and the creation date as DDMMYY.
func GenerateCode(counterCode string, now time.Time) string {
	return fmt.Sprintf("%s-%06d-%s", counterCode, rand.Intn(1000000), now.Format("020106"))
}

// SignedAmount returns the balance effect of the transaction: positive for a
// deposit (credit), negative for a withdrawal (debit).
func (t *CounterTransaction) SignedAmount() decimal.Decimal {
	if t.Kind == KindCounterWithdraw {
		return t.Amount.Neg()
	}
	return t.Amount
}

// Clone returns a copy with pointer fields duplicated, so store implementations
// can hand out records without sharing mutable state.
func (t *CounterTransaction) Clone() *CounterTransaction {
	c := *t
	if t.AssignedStaffID != nil {
		id := *t.AssignedStaffID
		c.AssignedStaffID = &id
	}
	if t.ResolvedAt != nil {
		at := *t.ResolvedAt
		c.ResolvedAt = &at
	}
	return &c
}
