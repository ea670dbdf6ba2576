// Package metrics registers the prometheus instruments shared by the
// engine, sink and scheduler. Scrape them from /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ItemsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestd_items_processed_total",
		Help: "Work items classified, by terminal ledger outcome",
	}, []string{"job", "outcome"})

	ItemsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestd_items_skipped_total",
		Help: "Work items skipped because the ledger already classified them",
	}, []string{"job"})

	RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestd_runs_total",
		Help: "Engine invocations, by resulting status",
	}, []string{"job", "result"})

	RunDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ingestd_run_duration_seconds",
		Help:    "Wall-clock duration of one engine invocation",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"job"})

	BudgetInterruptions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestd_budget_interruptions_total",
		Help: "Runs cut short by the execution budget",
	}, []string{"job"})

	SinkRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingestd_sink_retries_total",
		Help: "Transient sink failures that triggered a backoff retry",
	})

	SinkWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestd_sink_writes_total",
		Help: "Sink write attempts, by final result",
	}, []string{"result"})

	ContinuationsScheduled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestd_continuations_scheduled_total",
		Help: "One-shot continuations registered with the scheduler",
	}, []string{"job"})

	ContinuationsFired = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestd_continuations_fired_total",
		Help: "Continuations dispatched into engine runs",
	}, []string{"job"})

	LedgerSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingestd_ledger_swept_total",
		Help: "Ledger entries removed by the retention sweep",
	})
)

func init() {
	prometheus.MustRegister(
		ItemsProcessed,
		ItemsSkipped,
		RunsTotal,
		RunDuration,
		BudgetInterruptions,
		SinkRetries,
		SinkWrites,
		ContinuationsScheduled,
		ContinuationsFired,
		LedgerSwept,
	)
}
