package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// InsertEvent persists one row of the event bus backing table on the
// client's own connection and fires no pg_notify. pkg/events.Publisher
// does not call it; it runs its own INSERT and pg_notify in one
// transaction.
func (c *Client) InsertEvent(ctx context.Context, channel, eventType string, payload json.RawMessage) (int64, error) {
	var id int64
	err := c.db.QueryRowContext(ctx, `
		INSERT INTO events (channel, event_type, payload, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING id`,
		channel, eventType, payload,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert event on channel %s: %w", channel, err)
	}
	return id, nil
}

// EventRow is a row of the event bus backing table, returned to catchup
// subscribers that missed NOTIFY delivery while disconnected.
type EventRow struct {
	ID      int64
	Payload json.RawMessage
}

// GetEventsSince returns events on a channel after sinceID, oldest first,
// capped at limit rows. Used by pkg/events.StoreCatchupAdapter to serve
// catchup requests from reconnecting WebSocket clients.
func (c *Client) GetEventsSince(ctx context.Context, channel string, sinceID, limit int) ([]EventRow, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, payload FROM events
		WHERE channel = $1 AND id > $2
		ORDER BY id ASC
		LIMIT $3`,
		channel, sinceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events since %d on channel %s: %w", sinceID, channel, err)
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var r EventRow
		if err := rows.Scan(&r.ID, &r.Payload); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
