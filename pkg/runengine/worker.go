package runengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/foiacase/caseruntime/pkg/config"
	"github.com/foiacase/caseruntime/pkg/events"
	"github.com/foiacase/caseruntime/pkg/metrics"
	"github.com/foiacase/caseruntime/pkg/reducer"
	"github.com/foiacase/caseruntime/pkg/runtime"
	"github.com/foiacase/caseruntime/pkg/store"
)

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// RunRegistry is the subset of WorkerPool a Worker uses for cancellation
// registration, split out so Worker can be tested without a full pool.
type RunRegistry interface {
	RegisterRun(runID int64, cancel context.CancelFunc)
	UnregisterRun(runID int64)
}

// Worker polls for queued runs, claims one at a time, and drives it
// through the advisory lock, the Decision Pipeline, and the terminal
// transition. Generalized from the teacher's pkg/queue.Worker.
type Worker struct {
	id          string
	client      *store.Client
	config      *config.RunEngineConfig
	transitioner *runtime.Transitioner
	executor    Executor
	publisher   *events.Publisher
	pool        RunRegistry
	stopCh      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup

	mu            sync.RWMutex
	status        WorkerStatus
	currentRunID  int64
	runsProcessed int
	lastActivity  time.Time
	lockedConns   map[int64]lockedConn
}

// NewWorker creates a new run engine worker. publisher may be nil
// (real-time event delivery disabled, e.g. in tests).
func NewWorker(id string, client *store.Client, cfg *config.RunEngineConfig, transitioner *runtime.Transitioner, executor Executor, pool RunRegistry, publisher *events.Publisher) *Worker {
	return &Worker{
		id:           id,
		client:       client,
		config:       cfg,
		transitioner: transitioner,
		executor:     executor,
		publisher:    publisher,
		pool:         pool,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker's polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for its current run to finish.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the worker's current health snapshot.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:            w.id,
		Status:        string(w.status),
		CurrentRunID:  w.currentRunID,
		RunsProcessed: w.runsProcessed,
		LastActivity:  w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id)
	log.Info("run engine worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("run engine worker shutting down")
			return
		case <-ctx.Done():
			log.Info("context cancelled, run engine worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoRunsAvailable) || errors.Is(err, ErrAtCapacity) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("error processing run", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess claims one queued run and drives it to a terminal state.
// Mirrors the teacher's Worker.pollAndProcess: capacity check, claim,
// register for cancellation, heartbeat, execute, record terminal status.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	activeCount, err := w.countActiveRuns(ctx)
	if err != nil {
		return fmt.Errorf("checking active runs: %w", err)
	}
	if activeCount >= w.config.MaxConcurrentRuns {
		return ErrAtCapacity
	}

	run, err := w.client.ClaimNextQueuedRun(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNoRunsAvailable
	}
	if err != nil {
		return fmt.Errorf("claiming next run: %w", err)
	}

	log := slog.With("run_id", run.ID, "case_id", run.CaseID, "worker_id", w.id)

	claimed, cs, err := w.acquireCaseLock(ctx, run)
	if err != nil {
		return fmt.Errorf("acquiring case lock for run %d: %w", run.ID, err)
	}
	if !claimed {
		log.Warn("advisory lock unavailable, marking run skipped_locked")
		if err := w.client.MarkRunSkippedLocked(ctx, run.ID); err != nil {
			return fmt.Errorf("marking run %d skipped_locked: %w", run.ID, err)
		}
		return nil
	}
	defer w.releaseCaseLock(context.Background(), run.CaseID)

	log.Info("run claimed")
	if _, err := w.transitioner.Transition(ctx, runtime.Input{
		CaseID:            run.CaseID,
		Event:             reducer.EventRunClaimed,
		Ctx:               reducer.Context{RunID: run.ID},
		IdempotencyFields: []string{fmt.Sprintf("%d", run.ID)},
	}); err != nil {
		return fmt.Errorf("transitioning run %d to claimed: %w", run.ID, err)
	}
	w.publishRunStatus(ctx, run.ID, run.CaseID, string(store.RunStatusRunning))

	w.setStatus(WorkerStatusWorking, run.ID)
	defer w.setStatus(WorkerStatusIdle, 0)
	claimedAt := time.Now()

	runCtx, cancelRun := context.WithTimeout(ctx, w.config.RunTimeout)
	defer cancelRun()

	w.pool.RegisterRun(run.ID, cancelRun)
	defer w.pool.UnregisterRun(run.ID)

	heartbeatCtx, cancelHeartbeat := context.WithCancel(runCtx)
	go w.runHeartbeat(heartbeatCtx, run.ID, run.CaseID)

	result := w.executor.Execute(runCtx, run, cs)
	cancelHeartbeat()

	if result == nil {
		result = synthesizeTimeoutOrCancelResult(runCtx)
	}

	if err := w.recordTerminal(context.Background(), run, result); err != nil {
		log.Error("failed to record terminal run status", "error", err)
		return err
	}
	metrics.RecordRunComplete(terminalRunStatusFor(result.Event), time.Since(claimedAt))

	w.mu.Lock()
	w.runsProcessed++
	w.mu.Unlock()

	log.Info("run processing complete", "event", result.Event)
	return nil
}

// synthesizeTimeoutOrCancelResult builds a safe terminal result when the
// executor returns nil, the same nil-guard the teacher's worker applies to
// a misbehaving SessionExecutor.
func synthesizeTimeoutOrCancelResult(runCtx context.Context) *ExecutionResult {
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return &ExecutionResult{Event: reducer.EventRunFailed, Err: fmt.Errorf("run timed out")}
	case errors.Is(runCtx.Err(), context.Canceled):
		return &ExecutionResult{Event: reducer.EventRunFailed, Err: context.Canceled}
	default:
		return &ExecutionResult{Event: reducer.EventRunFailed, Err: fmt.Errorf("executor returned nil result")}
	}
}

// acquireCaseLock checks out a dedicated connection and attempts the
// session-level advisory lock. The connection is cached on the worker for
// the run's duration via releaseCaseLock's counterpart close.
func (w *Worker) acquireCaseLock(ctx context.Context, run *store.Run) (bool, *store.Case, error) {
	cs, err := w.client.GetCase(ctx, run.CaseID)
	if err != nil {
		return false, nil, err
	}

	conn, err := w.client.DB().Conn(ctx)
	if err != nil {
		return false, nil, fmt.Errorf("checking out connection for advisory lock: %w", err)
	}

	acquired, err := store.TryAcquireCaseLock(ctx, conn, run.CaseID)
	if err != nil {
		_ = conn.Close()
		return false, nil, err
	}
	if !acquired {
		_ = conn.Close()
		return false, cs, nil
	}

	w.mu.Lock()
	if w.lockedConns == nil {
		w.lockedConns = make(map[int64]lockedConn)
	}
	w.lockedConns[run.CaseID] = lockedConn{conn: conn}
	w.mu.Unlock()

	return true, cs, nil
}

func (w *Worker) releaseCaseLock(ctx context.Context, caseID int64) {
	w.mu.Lock()
	lc, ok := w.lockedConns[caseID]
	if ok {
		delete(w.lockedConns, caseID)
	}
	w.mu.Unlock()
	if !ok {
		return
	}
	if err := store.ReleaseCaseLock(ctx, lc.conn, caseID); err != nil {
		slog.Warn("failed to release advisory lock", "case_id", caseID, "error", err)
	}
	_ = lc.conn.Close()
}

// runHeartbeat periodically refreshes heartbeat_at and broadcasts a
// transient run.heartbeat event, per spec.md §4.4 step 6 (≥ every 10s).
func (w *Worker) runHeartbeat(ctx context.Context, runID, caseID int64) {
	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.client.Heartbeat(ctx, runID); err != nil {
				slog.Warn("heartbeat update failed", "run_id", runID, "error", err)
				continue
			}
			if w.publisher != nil {
				if err := w.publisher.PublishRunHeartbeat(ctx, runID, caseID); err != nil {
					slog.Warn("failed to publish run heartbeat", "run_id", runID, "error", err)
				}
			}
		}
	}
}

// recordTerminal translates the executor's result into the appropriate
// RUN_* reducer event and applies it through the runtime transition.
func (w *Worker) recordTerminal(ctx context.Context, run *store.Run, result *ExecutionResult) error {
	rctx := result.Ctx
	rctx.RunID = run.ID

	event := result.Event
	if event == "" {
		event = reducer.EventRunFailed
	}

	if _, err := w.transitioner.Transition(ctx, runtime.Input{
		CaseID:            run.CaseID,
		Event:             event,
		Ctx:               rctx,
		IdempotencyFields: []string{fmt.Sprintf("%d", run.ID)},
	}); err != nil {
		return fmt.Errorf("transitioning run %d terminal event %s: %w", run.ID, event, err)
	}

	w.publishRunStatus(ctx, run.ID, run.CaseID, terminalRunStatusFor(event))
	return nil
}

func terminalRunStatusFor(event reducer.CaseEvent) string {
	switch event {
	case reducer.EventRunCompleted:
		return string(store.RunStatusCompleted)
	case reducer.EventRunWaiting:
		return string(store.RunStatusWaiting)
	default:
		return string(store.RunStatusFailed)
	}
}

func (w *Worker) publishRunStatus(ctx context.Context, runID, caseID int64, status string) {
	if w.publisher == nil {
		return
	}
	if err := w.publisher.PublishRunStatus(ctx, runID, caseID, status); err != nil {
		slog.Warn("failed to publish run status", "run_id", runID, "status", status, "error", err)
	}
}

func (w *Worker) countActiveRuns(ctx context.Context) (int, error) {
	return w.client.CountRunsByStatus(ctx, store.RunStatusRunning)
}

// pollInterval returns the poll duration with jitter.
func (w *Worker) pollInterval() time.Duration {
	base := w.config.PollInterval
	jitter := w.config.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

func (w *Worker) setStatus(status WorkerStatus, runID int64) {
	w.mu.Lock()
	prev := w.status
	w.status = status
	w.currentRunID = runID
	w.lastActivity = time.Now()
	w.mu.Unlock()

	if prev != WorkerStatusWorking && status == WorkerStatusWorking {
		metrics.ActiveRuns.Inc()
	} else if prev == WorkerStatusWorking && status != WorkerStatusWorking {
		metrics.ActiveRuns.Dec()
	}
}

type lockedConn struct {
	conn *sql.Conn
}
