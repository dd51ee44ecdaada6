// Package runengine claims and executes queued runs: a single-flight
// worker pool generalized from the teacher's pkg/queue, keyed on cases
// instead of alert sessions (spec.md §4.4, invariant I7).
package runengine

import (
	"context"
	"errors"
	"time"

	"github.com/foiacase/caseruntime/pkg/reducer"
	"github.com/foiacase/caseruntime/pkg/store"
)

// Sentinel errors for the polling loop's internal control flow.
var (
	// ErrNoRunsAvailable indicates no queued runs are waiting to be claimed.
	ErrNoRunsAvailable = errors.New("no runs available")

	// ErrAtCapacity indicates the global concurrent run limit has been reached.
	ErrAtCapacity = errors.New("at capacity")
)

// DispatchOutcome is the result enum of Dispatcher.Dispatch, per spec.md §4.4.
type DispatchOutcome string

// Dispatch outcomes.
const (
	OutcomeDispatched       DispatchOutcome = "dispatched"
	OutcomeSkippedLocked    DispatchOutcome = "skipped_locked"
	OutcomeCaseNotFound     DispatchOutcome = "case_not_found"
	OutcomeAlreadySent      DispatchOutcome = "already_sent"
	OutcomeActiveRunExists  DispatchOutcome = "active_run_exists"
)

// DispatchResult is returned by Dispatcher.Dispatch.
type DispatchResult struct {
	RunID   int64
	Outcome DispatchOutcome
}

// Trigger describes what caused a run to be requested.
type Trigger struct {
	Type             store.RunTriggerType
	TriggerMessageID *int64
	ScheduledKey     *string
	AutopilotMode    store.AutopilotMode
}

// Executor runs the Decision Pipeline to completion for a single claimed
// run. It owns the pipeline's entire node sequence internally, the same
// division of responsibility as the teacher's SessionExecutor: the worker
// only claims, locks, heartbeats, and records the terminal transition.
type Executor interface {
	Execute(ctx context.Context, run *store.Run, cs *store.Case) *ExecutionResult
}

// ExecutionResult is the terminal outcome of a claimed run's pipeline
// execution, translated by the worker into a RUN_* reducer event.
type ExecutionResult struct {
	Event reducer.CaseEvent // EventRunCompleted, EventRunFailed, or EventRunWaiting
	Ctx   reducer.Context   // proposal/execution/portal task ids the event needs
	Err   error             // set when Event is EventRunFailed
}

// PoolHealth reports the run engine's aggregate health.
type PoolHealth struct {
	IsHealthy        bool           `json:"is_healthy"`
	DBReachable      bool           `json:"db_reachable"`
	DBError          string         `json:"db_error,omitempty"`
	WorkerID         string         `json:"worker_id"`
	ActiveWorkers    int            `json:"active_workers"`
	TotalWorkers     int            `json:"total_workers"`
	ActiveRuns       int            `json:"active_runs"`
	MaxConcurrent    int            `json:"max_concurrent"`
	QueueDepth       int            `json:"queue_depth"`
	WorkerStats      []WorkerHealth `json:"worker_stats"`
	LastOrphanScan   time.Time      `json:"last_orphan_scan"`
	OrphansRecovered int            `json:"orphans_recovered"`
}

// WorkerHealth reports a single worker goroutine's health.
type WorkerHealth struct {
	ID             string    `json:"id"`
	Status         string    `json:"status"` // "idle" or "working"
	CurrentRunID   int64     `json:"current_run_id,omitempty"`
	RunsProcessed  int       `json:"runs_processed"`
	LastActivity   time.Time `json:"last_activity"`
}
