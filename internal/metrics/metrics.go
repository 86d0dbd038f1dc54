// Package metrics exposes Prometheus counters for the write path and the
// batch engines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransactionsRecorded counts journal appends by transaction type.
	TransactionsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "transactions_recorded_total",
		Help:      "Journal transactions recorded, by type.",
	}, []string{"type"})

	// CorrectionsApplied counts balance corrections written by reconciliation.
	CorrectionsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "reconcile_corrections_total",
		Help:      "Balance corrections applied by the reconciliation engine.",
	})

	// ReconcileRuns counts reconciliation passes by outcome (clean, corrected, skipped).
	ReconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "reconcile_runs_total",
		Help:      "Per-customer reconciliation runs, by outcome.",
	}, []string{"outcome"})

	// IntegrityFindings counts link problems observed by the integrity checker.
	IntegrityFindings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "integrity_findings_total",
		Help:      "Orphaned and missing sale-payment links observed.",
	}, []string{"kind"})
)
