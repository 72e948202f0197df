package domain_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/minibank/counter-service/internal/domain"
	"github.com/minibank/counter-service/internal/store/memory"
)

// recordingTrigger is a mock settlement trigger recording every effect call.
type recordingTrigger struct {
	mu    sync.Mutex
	calls []effectCall
	fail  func(causeID uuid.UUID) error
}

type effectCall struct {
	customerID uuid.UUID
	amount     decimal.Decimal
	causeID    uuid.UUID
}

func (r *recordingTrigger) ApplyEffect(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal, causeID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		if err := r.fail(causeID); err != nil {
			return err
		}
	}
	r.calls = append(r.calls, effectCall{customerID: customerID, amount: amount, causeID: causeID})
	return nil
}

func (r *recordingTrigger) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// stubBalances is a mock balance reader.
type stubBalances struct {
	balance decimal.Decimal
	err     error
}

func (s *stubBalances) AvailableBalance(ctx context.Context, customerID uuid.UUID) (decimal.Decimal, error) {
	return s.balance, s.err
}

// recordingReconciler captures transactions queued for settlement retry.
type recordingReconciler struct {
	mu  sync.Mutex
	txs []*domain.CounterTransaction
}

func (r *recordingReconciler) Enqueue(tx *domain.CounterTransaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs = append(r.txs, tx)
}

// recordingPublisher captures lifecycle events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.LifecycleEvent
}

func (r *recordingPublisher) PublishLifecycleEvent(ctx context.Context, event domain.LifecycleEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingPublisher) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.EventType
	for _, e := range r.events {
		result = append(result, e.Type)
	}
	return result
}

type engineFixture struct {
	engine     *domain.LifecycleEngine
	store      *memory.TransactionStore
	directory  *memory.CounterDirectory
	trigger    *recordingTrigger
	balances   *stubBalances
	reconciler *recordingReconciler
	publisher  *recordingPublisher
	counter    *domain.Counter
	staffID    uuid.UUID
	customerID uuid.UUID
}

func newFixture(t *testing.T) *engineFixture {
	t.Helper()

	counter := &domain.Counter{
		ID:       uuid.New(),
		Code:     "Q001",
		Name:     "Main branch",
		IsActive: true,
		MaxStaff: 3,
	}
	directory := memory.NewCounterDirectory(counter)
	staffID := uuid.New()
	directory.AssignStaff(counter.ID, staffID)

	store := memory.NewTransactionStore()
	trigger := &recordingTrigger{}
	balances := &stubBalances{balance: decimal.NewFromInt(10_000_000)}
	reconciler := &recordingReconciler{}
	publisher := &recordingPublisher{}

	resolver := domain.NewAssignmentResolver(store, directory, nil)
	engine := domain.NewLifecycleEngine(store, directory, resolver, trigger, balances, reconciler, publisher, nil)

	return &engineFixture{
		engine:     engine,
		store:      store,
		directory:  directory,
		trigger:    trigger,
		balances:   balances,
		reconciler: reconciler,
		publisher:  publisher,
		counter:    counter,
		staffID:    staffID,
		customerID: uuid.New(),
	}
}

// TestDepositConfirmFlow covers the happy path: deposit assigned to the
// least-loaded active counter, confirmed by staff, balance credited once.
func TestDepositConfirmFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	amount := decimal.NewFromInt(500_000)
	tx, err := f.engine.CreateDeposit(ctx, f.customerID, amount, nil)
	if err != nil {
		t.Fatalf("CreateDeposit failed: %v", err)
	}
	if tx.Status != domain.StatusPending {
		t.Errorf("expected PENDING, got %s", tx.Status)
	}
	if tx.CounterID != f.counter.ID {
		t.Errorf("expected assignment to counter %s, got %s", f.counter.ID, tx.CounterID)
	}
	if tx.Code == "" {
		t.Error("expected a presentable transaction code")
	}
	if tx.AssignedStaffID != nil {
		t.Error("staff must not be assigned before confirmation")
	}

	confirmed, err := f.engine.Confirm(ctx, tx.ID, f.staffID)
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if confirmed.Status != domain.StatusSuccess {
		t.Errorf("expected SUCCESS, got %s", confirmed.Status)
	}
	if confirmed.AssignedStaffID == nil || *confirmed.AssignedStaffID != f.staffID {
		t.Error("expected confirming staff recorded")
	}
	if confirmed.ResolvedAt == nil {
		t.Error("expected resolvedAt set")
	}

	if f.trigger.callCount() != 1 {
		t.Fatalf("expected exactly one balance effect, got %d", f.trigger.callCount())
	}
	call := f.trigger.calls[0]
	if !call.amount.Equal(amount) {
		t.Errorf("expected credit of %s, got %s", amount, call.amount)
	}
	if call.causeID != tx.ID {
		t.Errorf("expected cause id %s, got %s", tx.ID, call.causeID)
	}

	got := f.publisher.types()
	want := []domain.EventType{domain.EventCreated, domain.EventConfirmed}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("expected events %v, got %v", want, got)
	}
}

// TestWithdrawCancelFlow: customer cancels before staff acts; balance is
// untouched and a later confirm is an idempotent no-op.
func TestWithdrawCancelFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	amount := decimal.NewFromInt(1_000_000)
	tx, err := f.engine.CreateWithdraw(ctx, f.customerID, amount, nil)
	if err != nil {
		t.Fatalf("CreateWithdraw failed: %v", err)
	}

	cancelled, err := f.engine.Cancel(ctx, tx.ID, f.customerID)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if cancelled.Status != domain.StatusCancelled {
		t.Errorf("expected CANCELLED, got %s", cancelled.Status)
	}
	if f.trigger.callCount() != 0 {
		t.Errorf("expected no balance effect, got %d calls", f.trigger.callCount())
	}

	// Staff confirm after cancellation resolves benignly.
	current, err := f.engine.Confirm(ctx, tx.ID, f.staffID)
	if !errors.Is(err, domain.ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}
	if current.Status != domain.StatusCancelled {
		t.Errorf("expected authoritative CANCELLED record, got %s", current.Status)
	}
	if f.trigger.callCount() != 0 {
		t.Errorf("balance must stay untouched after late confirm, got %d calls", f.trigger.callCount())
	}
}

// TestConcurrentConfirms: two staff confirm the same transaction; exactly one
// wins and the balance effect is applied exactly once.
func TestConcurrentConfirms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	secondStaff := uuid.New()
	f.directory.AssignStaff(f.counter.ID, secondStaff)

	tx, err := f.engine.CreateDeposit(ctx, f.customerID, decimal.NewFromInt(250_000), nil)
	if err != nil {
		t.Fatalf("CreateDeposit failed: %v", err)
	}

	staff := []uuid.UUID{f.staffID, secondStaff}
	results := make([]error, len(staff))
	var wg sync.WaitGroup
	for i, id := range staff {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			_, results[i] = f.engine.Confirm(ctx, tx.ID, id)
		}(i, id)
	}
	wg.Wait()

	var wins, benign int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrAlreadyResolved), errors.Is(err, domain.ErrVersionConflict):
			benign++
		default:
			t.Fatalf("unexpected confirm error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winning confirm, got %d", wins)
	}
	if benign != 1 {
		t.Fatalf("expected one benign loser, got %d", benign)
	}
	if f.trigger.callCount() != 1 {
		t.Fatalf("expected exactly one balance effect, got %d", f.trigger.callCount())
	}
}

// TestConcurrentConfirmAndCancel: the race is resolved solely by the store's
// atomicity; the balance is touched only if the confirm won.
func TestConcurrentConfirmAndCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tx, err := f.engine.CreateDeposit(ctx, f.customerID, decimal.NewFromInt(75_000), nil)
	if err != nil {
		t.Fatalf("CreateDeposit failed: %v", err)
	}

	var confirmErr, cancelErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, confirmErr = f.engine.Confirm(ctx, tx.ID, f.staffID)
	}()
	go func() {
		defer wg.Done()
		_, cancelErr = f.engine.Cancel(ctx, tx.ID, f.customerID)
	}()
	wg.Wait()

	confirmWon := confirmErr == nil
	cancelWon := cancelErr == nil
	if confirmWon == cancelWon {
		t.Fatalf("expected exactly one winner, confirm=%v cancel=%v", confirmErr, cancelErr)
	}

	final, err := f.engine.Get(ctx, tx.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if confirmWon {
		if final.Status != domain.StatusSuccess {
			t.Errorf("expected SUCCESS, got %s", final.Status)
		}
		if f.trigger.callCount() != 1 {
			t.Errorf("expected one balance effect, got %d", f.trigger.callCount())
		}
	} else {
		if final.Status != domain.StatusCancelled {
			t.Errorf("expected CANCELLED, got %s", final.Status)
		}
		if f.trigger.callCount() != 0 {
			t.Errorf("expected no balance effect, got %d", f.trigger.callCount())
		}
	}
}

// TestCreateFailsClosed: no active counter means no record is ever persisted.
func TestCreateFailsClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.directory.SetActive(f.counter.ID, false)

	_, err := f.engine.CreateDeposit(ctx, f.customerID, decimal.NewFromInt(100), nil)
	if !errors.Is(err, domain.ErrNoCounterAvailable) {
		t.Fatalf("expected ErrNoCounterAvailable, got %v", err)
	}

	txs, err := f.engine.ListForCustomer(ctx, f.customerID)
	if err != nil {
		t.Fatalf("ListForCustomer failed: %v", err)
	}
	if len(txs) != 0 {
		t.Fatalf("expected no persisted records, got %d", len(txs))
	}
}

func TestIdempotentCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tx, err := f.engine.CreateDeposit(ctx, f.customerID, decimal.NewFromInt(100), nil)
	if err != nil {
		t.Fatalf("CreateDeposit failed: %v", err)
	}

	first, err := f.engine.Cancel(ctx, tx.ID, f.customerID)
	if err != nil {
		t.Fatalf("first Cancel failed: %v", err)
	}
	second, err := f.engine.Cancel(ctx, tx.ID, f.customerID)
	if !errors.Is(err, domain.ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved on second cancel, got %v", err)
	}
	if first.Version != second.Version {
		t.Errorf("second cancel must not change state: versions %d vs %d", first.Version, second.Version)
	}
}

func TestConfirmPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tx, err := f.engine.CreateDeposit(ctx, f.customerID, decimal.NewFromInt(100), nil)
	if err != nil {
		t.Fatalf("CreateDeposit failed: %v", err)
	}

	outsider := uuid.New()
	if _, err := f.engine.Confirm(ctx, tx.ID, outsider); !errors.Is(err, domain.ErrNotAuthorizedForCounter) {
		t.Fatalf("expected ErrNotAuthorizedForCounter, got %v", err)
	}

	if _, err := f.engine.Cancel(ctx, tx.ID, uuid.New()); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	// Permission failures must not change state.
	current, err := f.engine.Get(ctx, tx.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if current.Status != domain.StatusPending {
		t.Errorf("expected PENDING after denied attempts, got %s", current.Status)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		amount  decimal.Decimal
		wantErr error
	}{
		{name: "zero amount", amount: decimal.Zero, wantErr: domain.ErrInvalidAmount},
		{name: "negative amount", amount: decimal.NewFromInt(-5), wantErr: domain.ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.engine.CreateDeposit(ctx, f.customerID, tt.amount, nil); !errors.Is(err, tt.wantErr) {
				t.Errorf("deposit: expected %v, got %v", tt.wantErr, err)
			}
			if _, err := f.engine.CreateWithdraw(ctx, f.customerID, tt.amount, nil); !errors.Is(err, tt.wantErr) {
				t.Errorf("withdraw: expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestWithdrawBalancePreCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.balances.balance = decimal.NewFromInt(500)
	_, err := f.engine.CreateWithdraw(ctx, f.customerID, decimal.NewFromInt(1_000), nil)
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// The check is advisory: an unreachable account service must not block
	// creation, since the authoritative check happens at confirmation.
	f.balances.err = errors.New("account service down")
	if _, err := f.engine.CreateWithdraw(ctx, f.customerID, decimal.NewFromInt(1_000), nil); err != nil {
		t.Fatalf("expected creation despite balance lookup failure, got %v", err)
	}
}

// TestSettlementInconsistency: a trigger failure after the committed SUCCESS
// transition must never revert the state; the transaction is queued for
// reconciliation instead.
func TestSettlementInconsistency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tx, err := f.engine.CreateDeposit(ctx, f.customerID, decimal.NewFromInt(300_000), nil)
	if err != nil {
		t.Fatalf("CreateDeposit failed: %v", err)
	}

	f.trigger.fail = func(uuid.UUID) error { return errors.New("account service unavailable") }

	confirmed, err := f.engine.Confirm(ctx, tx.ID, f.staffID)
	if !errors.Is(err, domain.ErrSettlementInconsistency) {
		t.Fatalf("expected ErrSettlementInconsistency, got %v", err)
	}
	if confirmed == nil || confirmed.Status != domain.StatusSuccess {
		t.Fatal("state must remain SUCCESS after settlement failure")
	}

	stored, err := f.engine.Get(ctx, tx.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.Status != domain.StatusSuccess {
		t.Errorf("stored state must be SUCCESS, got %s", stored.Status)
	}

	if len(f.reconciler.txs) != 1 || f.reconciler.txs[0].ID != tx.ID {
		t.Fatal("expected the transaction queued for reconciliation")
	}
}

func TestExpireStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale := domain.NewCounterTransaction(domain.KindCounterDeposit, f.customerID, decimal.NewFromInt(100), f.counter)
	stale.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	if err := f.store.Create(ctx, stale); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	fresh, err := f.engine.CreateDeposit(ctx, f.customerID, decimal.NewFromInt(200), nil)
	if err != nil {
		t.Fatalf("CreateDeposit failed: %v", err)
	}

	expired, err := f.engine.ExpireStale(ctx, time.Hour)
	if err != nil {
		t.Fatalf("ExpireStale failed: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expired transaction, got %d", expired)
	}

	got, _ := f.engine.Get(ctx, stale.ID)
	if got.Status != domain.StatusFailed {
		t.Errorf("expected FAILED, got %s", got.Status)
	}
	kept, _ := f.engine.Get(ctx, fresh.ID)
	if kept.Status != domain.StatusPending {
		t.Errorf("fresh transaction must stay PENDING, got %s", kept.Status)
	}
	if f.trigger.callCount() != 0 {
		t.Errorf("expiry must not touch balances, got %d calls", f.trigger.callCount())
	}
}

func TestListQueueOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.engine.CreateDeposit(ctx, f.customerID, decimal.NewFromInt(100), nil)
	if err != nil {
		t.Fatalf("CreateDeposit failed: %v", err)
	}
	// Distinct creation times for a deterministic FIFO assertion.
	time.Sleep(5 * time.Millisecond)
	second, err := f.engine.CreateDeposit(ctx, uuid.New(), decimal.NewFromInt(200), nil)
	if err != nil {
		t.Fatalf("CreateDeposit failed: %v", err)
	}

	queue, err := f.engine.ListQueue(ctx, f.counter.ID)
	if err != nil {
		t.Fatalf("ListQueue failed: %v", err)
	}
	if len(queue) != 2 {
		t.Fatalf("expected 2 queued transactions, got %d", len(queue))
	}
	if queue[0].ID != first.ID || queue[1].ID != second.ID {
		t.Error("expected oldest-first queue ordering")
	}

	if _, err := f.engine.ListQueue(ctx, uuid.New()); !errors.Is(err, domain.ErrCounterNotFound) {
		t.Fatalf("expected ErrCounterNotFound for unknown counter, got %v", err)
	}
}
