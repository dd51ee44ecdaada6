package runengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foiacase/caseruntime/pkg/metrics"
	"github.com/foiacase/caseruntime/pkg/reducer"
	"github.com/foiacase/caseruntime/pkg/runtime"
	"github.com/foiacase/caseruntime/pkg/store"
)

// reaperState tracks stale-run reaper metrics (thread-safe).
type reaperState struct {
	mu        sync.Mutex
	lastScan  time.Time
	recovered int
}

// runStaleRunReaper periodically sweeps for runs whose heartbeat has gone
// silent, per spec.md §4.4 step 8. All processes run this independently —
// the reducer's RUN_STALE_CLEANED transition is idempotent per run.
func (p *WorkerPool) runStaleRunReaper(ctx context.Context) {
	ticker := time.NewTicker(p.config.OrphanDetectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.reapStaleRuns(ctx); err != nil {
				slog.Error("stale run reaper failed", "error", err)
			}
		}
	}
}

// reapStaleRuns finds running runs with a stale heartbeat and transitions
// each to failed via RUN_STALE_CLEANED.
func (p *WorkerPool) reapStaleRuns(ctx context.Context) error {
	threshold := time.Now().Add(-p.config.OrphanThreshold)

	stale, err := p.client.ListStaleRunningRuns(ctx, threshold)
	if err != nil {
		return fmt.Errorf("failed to list stale runs: %w", err)
	}

	if len(stale) == 0 {
		p.reaper.mu.Lock()
		p.reaper.lastScan = time.Now()
		p.reaper.mu.Unlock()
		return nil
	}

	slog.Warn("detected stale runs", "count", len(stale))

	recovered, failed := 0, 0
	for _, run := range stale {
		if err := p.reapOne(ctx, run); err != nil {
			slog.Error("failed to reap stale run", "run_id", run.ID, "error", err)
			failed++
			continue
		}
		recovered++
	}

	p.reaper.mu.Lock()
	p.reaper.lastScan = time.Now()
	p.reaper.recovered += recovered
	p.reaper.mu.Unlock()

	if failed > 0 {
		slog.Warn("stale run reap completed with failures", "total", len(stale), "recovered", recovered, "failed", failed)
	}
	return nil
}

func (p *WorkerPool) reapOne(ctx context.Context, run *store.Run) error {
	log := slog.With("run_id", run.ID, "case_id", run.CaseID)

	runFailureOnly, err := p.isRunFailureOnly(ctx, run.CaseID)
	if err != nil {
		return fmt.Errorf("checking requires_human cause for case %d: %w", run.CaseID, err)
	}

	_, err = p.transitioner.Transition(ctx, runtime.Input{
		CaseID:            run.CaseID,
		Event:             reducer.EventRunStaleCleaned,
		Ctx:               reducer.Context{RunID: run.ID, RunFailureOnly: runFailureOnly},
		IdempotencyFields: []string{fmt.Sprintf("%d", run.ID)},
	})
	if err != nil {
		return fmt.Errorf("failed to transition run %d to stale_cleaned: %w", run.ID, err)
	}

	if p.publisher != nil {
		if err := p.publisher.PublishRunStatus(ctx, run.ID, run.CaseID, string(store.RunStatusFailed)); err != nil {
			slog.Warn("failed to publish stale run status", "run_id", run.ID, "error", err)
		}
	}

	lastHeartbeat := "unknown"
	if run.HeartbeatAt != nil {
		lastHeartbeat = run.HeartbeatAt.Format(time.RFC3339)
	}
	log.Warn("stale run marked failed", "last_heartbeat", lastHeartbeat)
	metrics.RecordOrphanRecovered()
	return nil
}

// isRunFailureOnly reports whether the case's requires_human flag, if set,
// stems solely from this run stalling rather than from a pending proposal
// awaiting human decision — spec.md's RunFailureOnly clears requires_human
// only when the run itself was the sole cause.
func (p *WorkerPool) isRunFailureOnly(ctx context.Context, caseID int64) (bool, error) {
	_, err := p.client.GetActiveProposalForCase(ctx, caseID)
	if errors.Is(err, store.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// CleanupStartupStaleRuns performs a one-time recovery pass for runs left
// running by a previous process that crashed, called once during startup
// before the worker pool begins polling.
func CleanupStartupStaleRuns(ctx context.Context, client *store.Client, transitioner *runtime.Transitioner) error {
	stale, err := client.ListStaleRunningRuns(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("failed to query startup stale runs: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	slog.Warn("found stale runs from previous process", "count", len(stale))

	for _, run := range stale {
		runFailureOnly := true
		if _, err := client.GetActiveProposalForCase(ctx, run.CaseID); err == nil {
			runFailureOnly = false
		}
		if _, err := transitioner.Transition(ctx, runtime.Input{
			CaseID:            run.CaseID,
			Event:             reducer.EventRunStaleCleaned,
			Ctx:               reducer.Context{RunID: run.ID, RunFailureOnly: runFailureOnly},
			IdempotencyFields: []string{fmt.Sprintf("%d", run.ID)},
		}); err != nil {
			slog.Error("failed to recover startup stale run", "run_id", run.ID, "error", err)
			continue
		}
		slog.Info("startup stale run recovered", "run_id", run.ID)
	}

	return nil
}
