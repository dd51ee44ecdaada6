package store

import (
	"context"
	"fmt"
)

const phoneQueueColumns = `id, case_id, reason, status, enqueued_at, resolved_at`

func scanPhoneQueueEntry(row interface{ Scan(...any) error }) (*PhoneCallQueueEntry, error) {
	var e PhoneCallQueueEntry
	if err := row.Scan(&e.ID, &e.CaseID, &e.Reason, &e.Status, &e.EnqueuedAt, &e.ResolvedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// EnqueuePhoneCall records a case for phone follow-up. Its caller is the
// scheduler's stuck-portal reaper, which enqueues cases whose portal task
// stayed PENDING for more than 24h.
func (c *Client) EnqueuePhoneCall(ctx context.Context, caseID int64, reason string) (*PhoneCallQueueEntry, error) {
	row := c.db.QueryRowContext(ctx, `
		INSERT INTO phone_call_queue (case_id, reason) VALUES ($1, $2)
		RETURNING `+phoneQueueColumns,
		caseID, reason,
	)
	out, err := scanPhoneQueueEntry(row)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue phone call for case %d: %w", caseID, err)
	}
	return out, nil
}

// ListPendingPhoneCalls returns unresolved phone escalation entries, for
// the human-facing queue view.
func (c *Client) ListPendingPhoneCalls(ctx context.Context) ([]*PhoneCallQueueEntry, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT `+phoneQueueColumns+` FROM phone_call_queue WHERE status = 'pending' ORDER BY enqueued_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending phone calls: %w", err)
	}
	defer rows.Close()

	var out []*PhoneCallQueueEntry
	for rows.Next() {
		e, err := scanPhoneQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan phone queue row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ResolvePhoneCall marks a phone escalation entry resolved.
func (c *Client) ResolvePhoneCall(ctx context.Context, id int64) error {
	res, err := c.db.ExecContext(ctx, `UPDATE phone_call_queue SET status = 'resolved', resolved_at = now() WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("failed to resolve phone call %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected resolving phone call %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
