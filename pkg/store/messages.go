package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const messageColumns = `id, case_id, direction, provider_message_id, subject, body, headers,
	created_at, processed_at, processed_run_id`

func scanMessage(row interface{ Scan(...any) error }) (*Message, error) {
	var m Message
	var headers []byte
	if err := row.Scan(
		&m.ID, &m.CaseID, &m.Direction, &m.ProviderMessageID, &m.Subject, &m.Body, &headers,
		&m.CreatedAt, &m.ProcessedAt, &m.ProcessedRunID,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(headers, &m.Headers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal headers: %w", err)
	}
	return &m, nil
}

// InsertMessageIdempotent inserts a message, treating a duplicate
// provider_message_id as success (returns the existing row) rather than an
// error — the idempotent-insert behavior POST /webhooks/inbound relies on
// per spec.md §6.
func (c *Client) InsertMessageIdempotent(ctx context.Context, in *Message) (msg *Message, inserted bool, err error) {
	headers, err := json.Marshal(in.Headers)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal headers: %w", err)
	}

	row := c.db.QueryRowContext(ctx, `
		INSERT INTO messages (case_id, direction, provider_message_id, subject, body, headers)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING `+messageColumns,
		in.CaseID, in.Direction, in.ProviderMessageID, in.Subject, in.Body, headers,
	)
	m, err := scanMessage(row)
	if err == nil {
		return m, true, nil
	}
	if isUniqueViolation(err) && in.ProviderMessageID != nil {
		existing, getErr := c.GetMessageByProviderID(ctx, *in.ProviderMessageID)
		if getErr != nil {
			return nil, false, fmt.Errorf("failed to load existing message after dedup conflict: %w", getErr)
		}
		return existing, false, nil
	}
	return nil, false, fmt.Errorf("failed to insert message: %w", err)
}

// GetMessageByProviderID looks up a message by its provider_message_id.
func (c *Client) GetMessageByProviderID(ctx context.Context, providerMessageID string) (*Message, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE provider_message_id = $1`, providerMessageID)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message by provider id: %w", err)
	}
	return m, nil
}

// GetMessage loads a message by id.
func (c *Client) GetMessage(ctx context.Context, id int64) (*Message, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message %d: %w", id, err)
	}
	return m, nil
}

// ListMessagesForCase returns every message on a case, oldest first, for
// the case timeline endpoint.
func (c *Client) ListMessagesForCase(ctx context.Context, caseID int64) ([]*Message, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE case_id = $1 ORDER BY created_at ASC`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages for case %d: %w", caseID, err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkMessageProcessedInTx records which run consumed a message, idempotent on
// replay since it is always set to the same run id for a given message.
func MarkMessageProcessedInTx(ctx context.Context, tx *sql.Tx, messageID, runID int64) error {
	_, err := tx.ExecContext(ctx, `UPDATE messages SET processed_at = now(), processed_run_id = $2 WHERE id = $1`, messageID, runID)
	if err != nil {
		return fmt.Errorf("failed to mark message %d processed: %w", messageID, err)
	}
	return nil
}
