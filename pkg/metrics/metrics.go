// Package metrics defines Prometheus metrics for the case runtime.
//
// Metrics register with the default registry so they're served
// automatically at /metrics via promhttp.Handler.
//
// Metric naming follows Prometheus conventions:
//   - caseruntime_ prefix for all custom metrics
//   - _total suffix for counters
//   - _seconds suffix for duration histograms/gauges
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RunsTotal counts run engine runs by terminal status.
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caseruntime_runs_total",
			Help: "Total number of agent runs by terminal status.",
		},
		[]string{"status"},
	)

	// RunDurationSeconds is a histogram of run duration from claim to
	// terminal status.
	RunDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "caseruntime_run_duration_seconds",
			Help:    "Duration of agent runs in seconds, from claim to terminal status.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"status"},
	)

	// ActiveRuns is the number of runs currently executing across all
	// workers.
	ActiveRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "caseruntime_active_runs",
			Help: "Number of runs currently executing.",
		},
	)

	// ProposalsTotal counts proposals by action type and outcome
	// (gated, auto_executed).
	ProposalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caseruntime_proposals_total",
			Help: "Total proposals produced by the decision pipeline, by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	// DecisionsTotal counts human decisions recorded against gated
	// proposals, by the action taken.
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caseruntime_decisions_total",
			Help: "Total human decisions recorded against gated proposals.",
		},
		[]string{"action"},
	)

	// ExecutionsTotal counts executions by provider and final status.
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caseruntime_executions_total",
			Help: "Total executions attempted, by provider and final status.",
		},
		[]string{"provider", "status"},
	)

	// OrphanedRunsTotal counts runs the reaper has recovered from a dead
	// worker's lock.
	OrphanedRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "caseruntime_orphaned_runs_total",
			Help: "Total runs recovered by the orphan reaper after an expired lock.",
		},
	)

	// ScheduledTriggersTotal counts scheduler-dispatched triggers by
	// outcome.
	ScheduledTriggersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caseruntime_scheduled_triggers_total",
			Help: "Total triggers dispatched by the scheduler, by dispatch outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		RunsTotal,
		RunDurationSeconds,
		ActiveRuns,
		ProposalsTotal,
		DecisionsTotal,
		ExecutionsTotal,
		OrphanedRunsTotal,
		ScheduledTriggersTotal,
	)
}

// RecordRunComplete records a run's terminal status and duration.
func RecordRunComplete(status string, duration time.Duration) {
	RunsTotal.WithLabelValues(status).Inc()
	RunDurationSeconds.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordProposalGated records a proposal that paused for human review.
func RecordProposalGated(action string) {
	ProposalsTotal.WithLabelValues(action, "gated").Inc()
}

// RecordProposalAutoExecuted records a proposal the pipeline executed
// without human review.
func RecordProposalAutoExecuted(action string) {
	ProposalsTotal.WithLabelValues(action, "auto_executed").Inc()
}

// RecordDecision records a human decision against a gated proposal.
func RecordDecision(action string) {
	DecisionsTotal.WithLabelValues(action).Inc()
}

// RecordExecution records an execution's final provider and status.
func RecordExecution(provider, status string) {
	ExecutionsTotal.WithLabelValues(provider, status).Inc()
}

// RecordOrphanRecovered records one run recovered by the orphan reaper.
func RecordOrphanRecovered() {
	OrphanedRunsTotal.Inc()
}

// RecordScheduledTrigger records one scheduler dispatch outcome.
func RecordScheduledTrigger(outcome string) {
	ScheduledTriggersTotal.WithLabelValues(outcome).Inc()
}
