package settlement

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/minibank/counter-service/internal/domain"
	"github.com/minibank/counter-service/internal/metrics"
)

// Reconciler retries balance effects that failed after the SUCCESS transition
// already committed. The transaction state is never reverted; the effect
// catches up here, retried with the same cause id so a retry can never
// double-apply.
type Reconciler struct {
	trigger  domain.SettlementTrigger
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	pending []*domain.CounterTransaction
}

// NewReconciler creates a Reconciler retrying on the given interval.
func NewReconciler(trigger domain.SettlementTrigger, interval time.Duration, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		trigger:  trigger,
		interval: interval,
		logger:   logger,
	}
}

// Enqueue adds a transaction whose balance effect is still outstanding.
func (r *Reconciler) Enqueue(tx *domain.CounterTransaction) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending = append(r.pending, tx.Clone())
	metrics.ReconciliationQueueDepth.Set(float64(len(r.pending)))
	r.logger.Warn("settlement queued for reconciliation",
		zap.String("transaction_id", tx.ID.String()),
		zap.Int("queue_depth", len(r.pending)),
	)
}

// Depth returns the number of transactions awaiting reconciliation.
func (r *Reconciler) Depth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Run retries outstanding effects until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.drain(ctx)
		}
	}
}

// drain attempts every queued effect once; failures stay queued.
func (r *Reconciler) drain(ctx context.Context) {
	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	var remaining []*domain.CounterTransaction
	for _, tx := range batch {
		err := r.trigger.ApplyEffect(ctx, tx.CustomerID, tx.SignedAmount(), tx.ID)
		if err != nil {
			r.logger.Warn("settlement retry failed",
				zap.String("transaction_id", tx.ID.String()),
				zap.Error(err),
			)
			remaining = append(remaining, tx)
			continue
		}
		r.logger.Info("settlement reconciled",
			zap.String("transaction_id", tx.ID.String()),
		)
	}

	r.mu.Lock()
	r.pending = append(remaining, r.pending...)
	metrics.ReconciliationQueueDepth.Set(float64(len(r.pending)))
	r.mu.Unlock()
}
