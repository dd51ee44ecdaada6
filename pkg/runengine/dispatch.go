package runengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/foiacase/caseruntime/pkg/store"
)

// Dispatcher implements dispatch(caseId, trigger), the synchronous half of
// the run engine's contract (spec.md §4.4 steps 1-3). The asynchronous
// claim-and-execute half lives in Worker.pollAndProcess.
type Dispatcher struct {
	client  *store.Client
	lockTTL time.Duration
}

// NewDispatcher builds a Dispatcher. lockTTL is the T_lock budget recorded
// on the inserted run row for the reaper's benefit.
func NewDispatcher(client *store.Client, lockTTL time.Duration) *Dispatcher {
	return &Dispatcher{client: client, lockTTL: lockTTL}
}

// Dispatch loads the case, checks for an existing active run, and — if
// clear — inserts a queued run row for a worker to claim. It never runs
// the pipeline itself.
func (d *Dispatcher) Dispatch(ctx context.Context, caseID int64, trig Trigger) (DispatchResult, error) {
	cs, err := d.client.GetCase(ctx, caseID)
	if errors.Is(err, store.ErrNotFound) {
		return DispatchResult{Outcome: OutcomeCaseNotFound}, nil
	}
	if err != nil {
		return DispatchResult{}, fmt.Errorf("failed to load case %d: %w", caseID, err)
	}

	if cs.Status.IsTerminal() {
		return DispatchResult{Outcome: OutcomeAlreadySent}, nil
	}

	if active, err := d.client.GetActiveRunForCase(ctx, caseID); err == nil {
		return DispatchResult{RunID: active.ID, Outcome: OutcomeActiveRunExists}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return DispatchResult{}, fmt.Errorf("failed to check active run for case %d: %w", caseID, err)
	}

	now := time.Now()
	lockExpires := now.Add(d.lockTTL)

	var inserted *store.Run
	err = d.client.WithTx(ctx, func(tx *sql.Tx) error {
		run, insertErr := store.InsertRunInTx(ctx, tx, &store.Run{
			CaseID:                caseID,
			TriggerType:           trig.Type,
			TriggerMessageID:      trig.TriggerMessageID,
			ScheduledKey:          trig.ScheduledKey,
			Status:                store.RunStatusQueued,
			HeartbeatAt:           &now,
			LockExpiresAt:         &lockExpires,
			AutopilotModeSnapshot: trig.AutopilotMode,
		})
		if insertErr != nil {
			return insertErr
		}
		inserted = run
		return nil
	})

	if errors.Is(err, store.ErrActiveRunExists) {
		active, getErr := d.client.GetActiveRunForCase(ctx, caseID)
		if getErr != nil {
			return DispatchResult{}, fmt.Errorf("failed to load active run after insert race for case %d: %w", caseID, getErr)
		}
		return DispatchResult{RunID: active.ID, Outcome: OutcomeActiveRunExists}, nil
	}
	if errors.Is(err, store.ErrAlreadyExists) {
		// Duplicate scheduled_key: a followup/deadline trigger already
		// dispatched for this (case, key) pair — treat as dedup, not error.
		return DispatchResult{Outcome: OutcomeActiveRunExists}, nil
	}
	if err != nil {
		return DispatchResult{}, fmt.Errorf("failed to insert run for case %d: %w", caseID, err)
	}

	return DispatchResult{RunID: inserted.ID, Outcome: OutcomeDispatched}, nil
}
