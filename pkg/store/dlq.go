package store

import (
	"context"
	"encoding/json"
	"fmt"
)

const dlqColumns = `id, queue_name, job_id, job_data, error, attempt_count, case_id, resolution, created_at`

func scanDLQEntry(row interface{ Scan(...any) error }) (*DeadLetterEntry, error) {
	var e DeadLetterEntry
	if err := row.Scan(&e.ID, &e.QueueName, &e.JobID, &e.JobData, &e.Error, &e.AttemptCount, &e.CaseID, &e.Resolution, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// InsertDeadLetter records a job that exhausted its retry budget, per
// spec.md §4.6 ("Failures write to the Dead-Letter Queue after
// retry_count >= max_retries").
func (c *Client) InsertDeadLetter(ctx context.Context, queueName, jobID string, jobData any, lastErr string, attemptCount int, caseID *int64) (*DeadLetterEntry, error) {
	data, err := json.Marshal(jobData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dead letter job data: %w", err)
	}

	row := c.db.QueryRowContext(ctx, `
		INSERT INTO dead_letter_queue (queue_name, job_id, job_data, error, attempt_count, case_id)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING `+dlqColumns,
		queueName, jobID, data, lastErr, attemptCount, caseID,
	)
	out, err := scanDLQEntry(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert dead letter entry: %w", err)
	}
	return out, nil
}

// ListUnresolvedDeadLetters returns dead letter entries awaiting human
// resolution for a queue.
func (c *Client) ListUnresolvedDeadLetters(ctx context.Context, queueName string) ([]*DeadLetterEntry, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT `+dlqColumns+` FROM dead_letter_queue WHERE queue_name = $1 AND resolution IS NULL ORDER BY created_at ASC`, queueName)
	if err != nil {
		return nil, fmt.Errorf("failed to list unresolved dead letters for queue %s: %w", queueName, err)
	}
	defer rows.Close()

	var out []*DeadLetterEntry
	for rows.Next() {
		e, err := scanDLQEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dead letter row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ResolveDeadLetter records a human resolution for a dead letter entry.
func (c *Client) ResolveDeadLetter(ctx context.Context, id int64, resolution string) error {
	res, err := c.db.ExecContext(ctx, `UPDATE dead_letter_queue SET resolution = $2 WHERE id = $1 AND resolution IS NULL`, id, resolution)
	if err != nil {
		return fmt.Errorf("failed to resolve dead letter %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected resolving dead letter %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
