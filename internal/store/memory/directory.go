package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/minibank/counter-service/internal/domain"
)

// CounterDirectory is an in-memory domain.CounterDirectory seeded with a
// fixed set of counters and staff assignments. It mirrors the read-only view
// this service gets from branch management.
type CounterDirectory struct {
	mu       sync.RWMutex
	counters map[uuid.UUID]*domain.Counter
	staff    map[uuid.UUID]map[uuid.UUID]bool // counter id -> staff ids
}

// NewCounterDirectory creates a directory with the given seed counters.
func NewCounterDirectory(counters ...*domain.Counter) *CounterDirectory {
	d := &CounterDirectory{
		counters: make(map[uuid.UUID]*domain.Counter),
		staff:    make(map[uuid.UUID]map[uuid.UUID]bool),
	}
	for _, c := range counters {
		d.counters[c.ID] = c
	}
	return d
}

// AssignStaff registers a staff member at a counter.
func (d *CounterDirectory) AssignStaff(counterID, staffID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.staff[counterID] == nil {
		d.staff[counterID] = make(map[uuid.UUID]bool)
	}
	d.staff[counterID][staffID] = true
}

// SetActive flips a counter's active flag.
func (d *CounterDirectory) SetActive(counterID uuid.UUID, active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if c, ok := d.counters[counterID]; ok {
		c.IsActive = active
	}
}

// ListActiveCounters returns all counters with IsActive == true.
func (d *CounterDirectory) ListActiveCounters(ctx context.Context) ([]*domain.Counter, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*domain.Counter
	for _, c := range d.counters {
		if c.IsActive {
			copied := *c
			result = append(result, &copied)
		}
	}
	return result, nil
}

// GetCounter retrieves a counter by id.
func (d *CounterDirectory) GetCounter(ctx context.Context, id uuid.UUID) (*domain.Counter, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.counters[id]
	if !ok {
		return nil, domain.ErrCounterNotFound
	}
	copied := *c
	return &copied, nil
}

// IsStaffAssigned reports whether the staff member works at the counter.
func (d *CounterDirectory) IsStaffAssigned(ctx context.Context, counterID, staffID uuid.UUID) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.staff[counterID][staffID], nil
}
