// Package metrics holds the prometheus collectors of the shift ledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics
var (
	StopMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiftledger_stop_mutations_total",
			Help: "Committed stop mutations by operation",
		},
		[]string{"operation"},
	)
	StopDurations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shiftledger_stop_duration_minutes",
			Help:    "Duration of closed stops in minutes",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 240, 480},
		},
	)
	ShiftTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiftledger_shift_transitions_total",
			Help: "Shift state machine transitions by event and result",
		},
		[]string{"event", "result"},
	)
	BackendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiftledger_backend_errors_total",
			Help: "Failed backend calls by operation",
		},
		[]string{"operation"},
	)
	ReconcileRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiftledger_reconcile_runs_total",
			Help: "Provisional store flushes by result",
		},
		[]string{"result"},
	)
	ReconciledRecords = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shiftledger_reconciled_records_total",
			Help: "Provisional stops pushed to the ledger",
		},
	)
	PublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiftledger_publish_failures_total",
			Help: "Ledger events that could not be published, by sink",
		},
		[]string{"sink"},
	)
)
