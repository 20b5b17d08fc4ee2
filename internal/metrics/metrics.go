package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransactionsRecorded counts recorded transactions by type and status
	TransactionsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "points_transactions_recorded_total",
			Help: "Total number of transactions recorded",
		},
		[]string{"type", "status"},
	)

	// PointsAwarded tracks points granted through the incremental write path
	PointsAwarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "points_awarded_total",
			Help: "Total points awarded through the incremental write path",
		},
	)

	// FallbackWrites counts transaction inserts that fell back to the raw SQL path
	FallbackWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "points_tx_fallback_writes_total",
			Help: "Total transaction inserts served by the raw SQL fallback path",
		},
	)

	// ReconcileRuns counts reconciliation runs by trigger
	ReconcileRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "points_reconcile_runs_total",
			Help: "Total reconciliation runs by trigger",
		},
		[]string{"trigger"},
	)

	// ReconcileDuration tracks reconciliation processing time
	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "points_reconcile_duration_seconds",
			Help:    "Reconciliation run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// DriftCorrected counts reconciliation runs that changed a user's total
	DriftCorrected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "points_drift_corrected_total",
			Help: "Total number of user totals corrected by reconciliation",
		},
	)

	// WSClients tracks currently connected broadcast subscribers
	WSClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "points_ws_clients",
			Help: "Number of currently connected websocket subscribers",
		},
	)

	// EventsPublished counts broadcast events by type
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "points_events_published_total",
			Help: "Total broadcast events published by type",
		},
		[]string{"type"},
	)

	// ErrorsTotal counts errors by component
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "points_errors_total",
			Help: "Total number of errors by component",
		},
		[]string{"component"},
	)
)
