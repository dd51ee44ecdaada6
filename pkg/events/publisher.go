package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Publisher publishes case, run, and proposal lifecycle events for
// delivery to WebSocket subscribers and internal listeners.
// Persistent events are stored in the events table then broadcast via
// NOTIFY, both inside one transaction the publisher opens itself.
// Transient events (heartbeats) are broadcast via NOTIFY only.
type Publisher struct {
	db *sql.DB
}

// NewPublisher creates a new Publisher. The db parameter should be the
// *sql.DB from store.Client.DB().
func NewPublisher(db *sql.DB) *Publisher {
	return &Publisher{db: db}
}

// PublishCaseTransition persists and broadcasts a case.transition event.
// Called by pkg/runtime after a transition's transaction commits, so it
// runs on its own connection rather than inside the transition's tx —
// unlike the teacher's persistAndNotify, which held the INSERT/NOTIFY
// pair inside the caller's transaction, a case transition's correctness
// does not depend on the notification landing atomically with the
// mutation: a missed notify only delays a subscriber's refresh, it never
// produces a wrong case state.
func (p *Publisher) PublishCaseTransition(ctx context.Context, caseID int64, event, status string, requiresHuman bool, pauseReason string) error {
	payload := CaseTransitionPayload{
		Type:          EventTypeCaseTransition,
		CaseID:        caseID,
		Event:         event,
		Status:        status,
		RequiresHuman: requiresHuman,
		PauseReason:   pauseReason,
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal CaseTransitionPayload: %w", err)
	}
	if err := p.persistAndNotify(ctx, EventTypeCaseTransition, CaseChannel(caseID), payloadJSON); err != nil {
		slog.Warn("failed to publish case transition", "case_id", caseID, "event", event, "error", err)
		return err
	}
	return nil
}

// PublishRunStatus persists and broadcasts a run.status event on the
// owning case's channel.
func (p *Publisher) PublishRunStatus(ctx context.Context, runID, caseID int64, status string) error {
	payload := RunStatusPayload{
		Type:      EventTypeRunStatus,
		RunID:     runID,
		CaseID:    caseID,
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal RunStatusPayload: %w", err)
	}
	return p.persistAndNotify(ctx, EventTypeRunStatus, CaseChannel(caseID), payloadJSON)
}

// PublishProposalStatus persists and broadcasts a proposal.status event
// on the owning case's channel.
func (p *Publisher) PublishProposalStatus(ctx context.Context, proposalID, caseID int64, status string) error {
	payload := ProposalStatusPayload{
		Type:       EventTypeProposalStatus,
		ProposalID: proposalID,
		CaseID:     caseID,
		Status:     status,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal ProposalStatusPayload: %w", err)
	}
	return p.persistAndNotify(ctx, EventTypeProposalStatus, CaseChannel(caseID), payloadJSON)
}

// PublishRunHeartbeat broadcasts a run.heartbeat transient event (no DB
// persistence) — used by the run engine worker to signal liveness while a
// run is in flight, per the stale-run reaper's requirement for a recent
// heartbeat.
func (p *Publisher) PublishRunHeartbeat(ctx context.Context, runID, caseID int64) error {
	payload := RunHeartbeatPayload{
		Type:      EventTypeRunHeartbeat,
		RunID:     runID,
		CaseID:    caseID,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal RunHeartbeatPayload: %w", err)
	}
	return p.notifyOnly(ctx, CaseChannel(caseID), payloadJSON)
}

// --- Internal core methods ---

// persistAndNotify persists a pre-marshaled event to the database and
// broadcasts via NOTIFY in a single transaction (pg_notify is
// transactional — held until COMMIT).
func (p *Publisher) persistAndNotify(ctx context.Context, eventType, channel string, payloadJSON []byte) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var eventID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO events (channel, event_type, payload, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		channel, eventType, payloadJSON, time.Now(),
	).Scan(&eventID)
	if err != nil {
		return fmt.Errorf("failed to persist event: %w", err)
	}

	notifyPayload, err := injectDBEventIDAndTruncate(payloadJSON, eventID)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, notifyPayload); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event transaction: %w", err)
	}

	return nil
}

// notifyOnly broadcasts a pre-marshaled event via NOTIFY without
// persisting to DB.
func (p *Publisher) notifyOnly(ctx context.Context, channel string, payloadJSON []byte) error {
	notifyPayload, err := truncateIfNeeded(string(payloadJSON))
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, notifyPayload)
	if err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}
	return nil
}

// --- Internal helpers ---

// injectDBEventIDAndTruncate adds db_event_id to the JSON payload for
// NOTIFY delivery and applies truncation if the result exceeds
// PostgreSQL's limit.
func injectDBEventIDAndTruncate(payloadJSON []byte, dbEventID int64) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(payloadJSON, &m); err != nil {
		return "", fmt.Errorf("failed to unmarshal payload for db_event_id injection: %w", err)
	}
	m["db_event_id"] = dbEventID

	enrichedBytes, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal enriched NOTIFY payload: %w", err)
	}

	return truncateIfNeeded(string(enrichedBytes))
}

// truncateIfNeeded returns the payload string as-is if it fits within
// PostgreSQL's 8000-byte NOTIFY limit, otherwise returns a minimal
// truncation envelope with only routing fields.
func truncateIfNeeded(payloadStr string) (string, error) {
	if len(payloadStr) <= 7900 {
		return payloadStr, nil
	}
	return buildTruncatedPayload([]byte(payloadStr))
}

// buildTruncatedPayload creates a minimal truncation envelope from the
// full JSON payload bytes, extracting only the routing fields the client
// needs to fetch the complete event from the database.
func buildTruncatedPayload(payloadBytes []byte) (string, error) {
	var routing struct {
		Type      string `json:"type"`
		CaseID    int64  `json:"case_id"`
		DBEventID *int64 `json:"db_event_id,omitempty"`
	}
	if err := json.Unmarshal(payloadBytes, &routing); err != nil {
		return "", fmt.Errorf("failed to extract routing fields for truncation: %w", err)
	}

	truncated := map[string]any{
		"type":      routing.Type,
		"case_id":   routing.CaseID,
		"truncated": true,
	}
	if routing.DBEventID != nil {
		truncated["db_event_id"] = *routing.DBEventID
	}

	truncBytes, err := json.Marshal(truncated)
	if err != nil {
		return "", fmt.Errorf("failed to marshal truncated payload: %w", err)
	}
	return string(truncBytes), nil
}
