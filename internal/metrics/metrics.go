// Package metrics exposes Prometheus collectors for the transaction lifecycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransitionsTotal counts lifecycle transition attempts by event and outcome.
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "counter_service",
		Name:      "lifecycle_transitions_total",
		Help:      "Lifecycle transition attempts partitioned by event and outcome.",
	}, []string{"event", "outcome"})

	// SettlementFailuresTotal counts balance effects that failed after the state
	// transition committed and were queued for reconciliation.
	SettlementFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "counter_service",
		Name:      "settlement_failures_total",
		Help:      "Balance effects queued for reconciliation after a committed SUCCESS transition.",
	})

	// ReconciliationQueueDepth tracks transactions awaiting settlement retry.
	ReconciliationQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "counter_service",
		Name:      "reconciliation_queue_depth",
		Help:      "Transactions whose balance effect is pending reconciliation.",
	})
)

// Transition outcomes.
const (
	OutcomeOK              = "ok"
	OutcomeAlreadyResolved = "already_resolved"
	OutcomeConflict        = "version_conflict"
	OutcomeDenied          = "denied"
	OutcomeError           = "error"
)
