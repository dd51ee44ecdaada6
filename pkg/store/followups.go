package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const followupColumns = `case_id, next_followup_date, followup_count, status, scheduled_key, updated_at`

func scanFollowup(row interface{ Scan(...any) error }) (*FollowupSchedule, error) {
	var f FollowupSchedule
	if err := row.Scan(&f.CaseID, &f.NextFollowupDate, &f.FollowupCount, &f.Status, &f.ScheduledKey, &f.UpdatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

// UpsertFollowupScheduleInTx creates or replaces a case's followup timer.
// One row per case (primary key is case_id), so this is always an upsert.
func UpsertFollowupScheduleInTx(ctx context.Context, tx *sql.Tx, f *FollowupSchedule) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO follow_up_schedule (case_id, next_followup_date, followup_count, status, scheduled_key)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (case_id) DO UPDATE SET
			next_followup_date = EXCLUDED.next_followup_date,
			followup_count = EXCLUDED.followup_count,
			status = EXCLUDED.status,
			scheduled_key = EXCLUDED.scheduled_key,
			updated_at = now()`,
		f.CaseID, f.NextFollowupDate, f.FollowupCount, f.Status, f.ScheduledKey,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert followup schedule for case %d: %w", f.CaseID, err)
	}
	return nil
}

// GetFollowupSchedule loads the followup timer for a case.
func (c *Client) GetFollowupSchedule(ctx context.Context, caseID int64) (*FollowupSchedule, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+followupColumns+` FROM follow_up_schedule WHERE case_id = $1`, caseID)
	f, err := scanFollowup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get followup schedule for case %d: %w", caseID, err)
	}
	return f, nil
}

// SetFollowupStatusInTx transitions a followup's status, used by the
// reducer's "followup alignment" safety net (cancelled on terminal status,
// paused on review status).
func SetFollowupStatusInTx(ctx context.Context, tx *sql.Tx, caseID int64, status FollowupStatus) error {
	_, err := tx.ExecContext(ctx, `UPDATE follow_up_schedule SET status = $2, updated_at = now() WHERE case_id = $1`, caseID, status)
	if err != nil {
		return fmt.Errorf("failed to set followup status for case %d: %w", caseID, err)
	}
	return nil
}

// ListDueFollowups returns scheduled followups whose next_followup_date has
// passed, the selection set for the scheduler's followup dispatch job
// (spec.md §4.7, every 5 min).
func (c *Client) ListDueFollowups(ctx context.Context, now time.Time) ([]*FollowupSchedule, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT `+followupColumns+` FROM follow_up_schedule
		WHERE status = 'scheduled' AND next_followup_date <= $1`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due followups: %w", err)
	}
	defer rows.Close()

	var out []*FollowupSchedule
	for rows.Next() {
		f, err := scanFollowup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan followup row: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// MarkFollowupProcessing flips a due followup to processing so a second
// scheduler replica racing the same tick skips it, using a conditional
// UPDATE analogous to ClaimExecution.
func (c *Client) MarkFollowupProcessing(ctx context.Context, caseID int64) (bool, error) {
	res, err := c.db.ExecContext(ctx, `
		UPDATE follow_up_schedule SET status = 'processing', updated_at = now()
		WHERE case_id = $1 AND status = 'scheduled'`, caseID)
	if err != nil {
		return false, fmt.Errorf("failed to mark followup processing for case %d: %w", caseID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected marking followup processing for case %d: %w", caseID, err)
	}
	return n == 1, nil
}
