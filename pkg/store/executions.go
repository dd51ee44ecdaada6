package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const executionColumns = `id, case_id, proposal_id, run_id, execution_key, action_type,
	status, provider, provider_message_id, error, retry_count, created_at, updated_at`

func scanExecution(row interface{ Scan(...any) error }) (*Execution, error) {
	var e Execution
	if err := row.Scan(
		&e.ID, &e.CaseID, &e.ProposalID, &e.RunID, &e.ExecutionKey, &e.ActionType,
		&e.Status, &e.Provider, &e.ProviderMessageID, &e.Error, &e.RetryCount, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &e, nil
}

// InsertExecution creates an execution row for an already-claimed
// execution_key (see ClaimExecution). A duplicate execution_key means two
// executors raced on the same claim, which the unique constraint rejects —
// translated to ErrAlreadyExists.
func (c *Client) InsertExecution(ctx context.Context, e *Execution) (*Execution, error) {
	row := c.db.QueryRowContext(ctx, `
		INSERT INTO executions (case_id, proposal_id, run_id, execution_key, action_type, status, provider, provider_message_id, error, retry_count)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING `+executionColumns,
		e.CaseID, e.ProposalID, e.RunID, e.ExecutionKey, e.ActionType, e.Status, e.Provider, e.ProviderMessageID, e.Error, e.RetryCount,
	)
	out, err := scanExecution(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to insert execution: %w", err)
	}
	return out, nil
}

// GetExecution loads an execution by id.
func (c *Client) GetExecution(ctx context.Context, id int64) (*Execution, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM executions WHERE id = $1`, id)
	e, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution %d: %w", id, err)
	}
	return e, nil
}

// UpdateExecutionResult records the outcome of a send attempt.
func (c *Client) UpdateExecutionResult(ctx context.Context, id int64, status ExecutionStatus, providerMessageID, execErr *string) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE executions SET status = $2, provider_message_id = COALESCE($3, provider_message_id),
			error = $4, updated_at = now()
		WHERE id = $1`,
		id, status, providerMessageID, execErr,
	)
	if err != nil {
		return fmt.Errorf("failed to update execution %d result: %w", id, err)
	}
	return nil
}

// IncrementRetryCount bumps retry_count after a failed send, returning the
// new count so the caller can compare against max_retries.
func (c *Client) IncrementRetryCount(ctx context.Context, id int64) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx, `UPDATE executions SET retry_count = retry_count + 1, updated_at = now() WHERE id = $1 RETURNING retry_count`, id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to increment retry count for execution %d: %w", id, err)
	}
	return count, nil
}

// CountOutboundExecutionsSince counts outbound (provider <> 'none')
// executions for a case since a cutoff, the rate-limit scan described in
// spec.md §4.6 ("per-case outbound executions capped at N per hour").
func (c *Client) CountOutboundExecutionsSince(ctx context.Context, caseID int64, since time.Time) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM executions
		WHERE case_id = $1 AND provider <> 'none' AND created_at >= $2`,
		caseID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count outbound executions for case %d: %w", caseID, err)
	}
	return count, nil
}
