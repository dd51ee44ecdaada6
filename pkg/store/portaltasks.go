package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const portalTaskColumns = `id, case_id, proposal_id, execution_id, portal_url, content,
	instructions, status, assignee, confirmation_number, created_at, updated_at`

func scanPortalTask(row interface{ Scan(...any) error }) (*PortalTask, error) {
	var t PortalTask
	if err := row.Scan(
		&t.ID, &t.CaseID, &t.ProposalID, &t.ExecutionID, &t.PortalURL, &t.Content,
		&t.Instructions, &t.Status, &t.Assignee, &t.ConfirmationNumber, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &t, nil
}

// InsertPortalTask creates a human work item for a portal submission the
// system could not automate (spec.md §3, PortalTask entity).
func (c *Client) InsertPortalTask(ctx context.Context, t *PortalTask) (*PortalTask, error) {
	row := c.db.QueryRowContext(ctx, `
		INSERT INTO portal_tasks (case_id, proposal_id, execution_id, portal_url, content, instructions, status, assignee, confirmation_number)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING `+portalTaskColumns,
		t.CaseID, t.ProposalID, t.ExecutionID, t.PortalURL, t.Content, t.Instructions, t.Status, t.Assignee, t.ConfirmationNumber,
	)
	out, err := scanPortalTask(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert portal task: %w", err)
	}
	return out, nil
}

// GetPortalTask loads a portal task by id.
func (c *Client) GetPortalTask(ctx context.Context, id int64) (*PortalTask, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+portalTaskColumns+` FROM portal_tasks WHERE id = $1`, id)
	t, err := scanPortalTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portal task %d: %w", id, err)
	}
	return t, nil
}

// UpdatePortalTaskStatus transitions a portal task's status, setting a
// confirmation number when provided.
func (c *Client) UpdatePortalTaskStatus(ctx context.Context, id int64, status PortalTaskStatus, confirmationNumber *string) error {
	res, err := c.db.ExecContext(ctx, `
		UPDATE portal_tasks SET status = $2, confirmation_number = COALESCE($3, confirmation_number), updated_at = now()
		WHERE id = $1`,
		id, status, confirmationNumber,
	)
	if err != nil {
		return fmt.Errorf("failed to update portal task %d status: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected updating portal task %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListStuckPortalTasks returns PENDING portal tasks older than cutoff, the
// selection set for the scheduler's stuck-portal reaper (spec.md §4.7,
// every 30 min, threshold 24 h).
func (c *Client) ListStuckPortalTasks(ctx context.Context, cutoff time.Time) ([]*PortalTask, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT `+portalTaskColumns+` FROM portal_tasks WHERE status = 'PENDING' AND created_at < $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stuck portal tasks: %w", err)
	}
	defer rows.Close()

	var out []*PortalTask
	for rows.Next() {
		t, err := scanPortalTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portal task row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
