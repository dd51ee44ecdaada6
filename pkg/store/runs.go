package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const runColumns = `id, case_id, trigger_type, trigger_message_id, scheduled_key, status,
	started_at, ended_at, heartbeat_at, lock_expires_at, autopilot_mode_snapshot, error, created_at`

func scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	var r Run
	if err := row.Scan(
		&r.ID, &r.CaseID, &r.TriggerType, &r.TriggerMessageID, &r.ScheduledKey, &r.Status,
		&r.StartedAt, &r.EndedAt, &r.HeartbeatAt, &r.LockExpiresAt, &r.AutopilotModeSnapshot, &r.Error, &r.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetActiveRunForCase returns the case's single active run, if any, per
// invariant I4/I7. Returns ErrNotFound when no active run exists.
func (c *Client) GetActiveRunForCase(ctx context.Context, caseID int64) (*Run, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM agent_runs
		WHERE case_id = $1 AND status IN ('created','queued','running','paused','waiting','gated')`,
		caseID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active run for case %d: %w", caseID, err)
	}
	return r, nil
}

// InsertRunInTx creates a run row within an already-open transaction; no
// case row lock is taken. Translates a partial-unique-index conflict on
// the active-run index into ErrActiveRunExists, the race lost by a
// concurrent dispatch(caseId, ...) call — e.g. two dispatchers inserting
// a run for the same case at once.
func InsertRunInTx(ctx context.Context, tx *sql.Tx, r *Run) (*Run, error) {
	row := tx.QueryRowContext(ctx, `
		INSERT INTO agent_runs (
			case_id, trigger_type, trigger_message_id, scheduled_key, status,
			started_at, ended_at, heartbeat_at, lock_expires_at, autopilot_mode_snapshot, error
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING `+runColumns,
		r.CaseID, r.TriggerType, r.TriggerMessageID, r.ScheduledKey, r.Status,
		r.StartedAt, r.EndedAt, r.HeartbeatAt, r.LockExpiresAt, r.AutopilotModeSnapshot, r.Error,
	)
	out, err := scanRun(row)
	if err != nil {
		if isUniqueViolation(err) {
			switch constraintName(err) {
			case "agent_runs_case_id_active_key":
				return nil, ErrActiveRunExists
			case "agent_runs_scheduled_key_key":
				return nil, ErrAlreadyExists
			}
		}
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}
	return out, nil
}

// GetRun loads a run by id.
func (c *Client) GetRun(ctx context.Context, id int64) (*Run, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM agent_runs WHERE id = $1`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %d: %w", id, err)
	}
	return r, nil
}

// UpdateRunStatusInTx transitions a run's status, optionally setting
// started_at/ended_at/error, within an open transaction.
func UpdateRunStatusInTx(ctx context.Context, tx *sql.Tx, runID int64, status RunStatus, startedAt, endedAt *time.Time, runErr *string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE agent_runs SET
			status = $2,
			started_at = COALESCE(started_at, $3),
			ended_at = COALESCE($4, ended_at),
			error = COALESCE($5, error),
			heartbeat_at = now()
		WHERE id = $1`,
		runID, status, startedAt, endedAt, runErr,
	)
	if err != nil {
		return fmt.Errorf("failed to update run %d status: %w", runID, err)
	}
	return nil
}

// CancelSiblingRunsInTx transitions every other active run for the case to
// failed, the reducer's defensive cleanup on RUN_CLAIMED per spec.md §4.4
// step 5 ("reducer cancels sibling active runs defensively").
func CancelSiblingRunsInTx(ctx context.Context, tx *sql.Tx, caseID, exceptRunID int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE agent_runs SET status = 'failed', ended_at = now(), error = 'superseded by sibling run'
		WHERE case_id = $1 AND id <> $2
		  AND status IN ('created','queued','running','paused','waiting','gated')`,
		caseID, exceptRunID,
	)
	if err != nil {
		return fmt.Errorf("failed to cancel sibling runs for case %d: %w", caseID, err)
	}
	return nil
}

// Heartbeat refreshes heartbeat_at for a running run, called from the
// worker's periodic ticker (spec.md §4.4 step 6, ≥ every 10 s).
func (c *Client) Heartbeat(ctx context.Context, runID int64) error {
	_, err := c.db.ExecContext(ctx, `UPDATE agent_runs SET heartbeat_at = now() WHERE id = $1 AND status = 'running'`, runID)
	if err != nil {
		return fmt.Errorf("failed to heartbeat run %d: %w", runID, err)
	}
	return nil
}

// ClaimNextQueuedRun claims one queued run for processing using
// SELECT ... FOR UPDATE SKIP LOCKED, the row-claiming pattern workers use
// to pull from the queue without contending on the same row.
func (c *Client) ClaimNextQueuedRun(ctx context.Context) (*Run, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM agent_runs
		WHERE status = 'queued'
		ORDER BY created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1`)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim queued run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE agent_runs SET status = 'running', started_at = now(), heartbeat_at = now() WHERE id = $1`, r.ID); err != nil {
		return nil, fmt.Errorf("failed to mark run %d running: %w", r.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim of run %d: %w", r.ID, err)
	}

	r.Status = RunStatusRunning
	return r, nil
}

// CountRunsByStatus returns the number of runs currently in the given
// status, the run engine's best-effort global-capacity check (spec.md §5,
// racy with concurrent workers but bounded by worker count and poll jitter).
func (c *Client) CountRunsByStatus(ctx context.Context, status RunStatus) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT count(*) FROM agent_runs WHERE status = $1`, status).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count runs with status %s: %w", status, err)
	}
	return n, nil
}

// ListStaleRunningRuns returns runs whose heartbeat is older than
// threshold, the stale-run reaper's selection set (spec.md §4.4 step 8).
func (c *Client) ListStaleRunningRuns(ctx context.Context, threshold time.Time) ([]*Run, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM agent_runs WHERE status = 'running' AND heartbeat_at < $1`, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkRunSkippedLocked records that a run could not acquire the advisory
// lock, per spec.md §4.4 step 4.
func (c *Client) MarkRunSkippedLocked(ctx context.Context, runID int64) error {
	_, err := c.db.ExecContext(ctx, `UPDATE agent_runs SET status = 'skipped_locked', ended_at = now() WHERE id = $1`, runID)
	if err != nil {
		return fmt.Errorf("failed to mark run %d skipped_locked: %w", runID, err)
	}
	return nil
}
