package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const caseColumns = `id, status, substatus, requires_human, pause_reason, next_due_at,
	autopilot_mode, channel, agency_name, agency_jurisdiction, agency_email, portal_url,
	requested_records, scope_items, constraints, send_date, last_response_date,
	created_at, updated_at, deleted_at`

func scanCase(row interface{ Scan(...any) error }) (*Case, error) {
	var c Case
	var requestedRecords, scopeItems, constraints []byte
	if err := row.Scan(
		&c.ID, &c.Status, &c.Substatus, &c.RequiresHuman, &c.PauseReason, &c.NextDueAt,
		&c.AutopilotMode, &c.Channel, &c.AgencyName, &c.AgencyJurisdiction, &c.AgencyEmail, &c.PortalURL,
		&requestedRecords, &scopeItems, &constraints, &c.SendDate, &c.LastResponseDate,
		&c.CreatedAt, &c.UpdatedAt, &c.DeletedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(requestedRecords, &c.RequestedRecords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal requested_records: %w", err)
	}
	if err := json.Unmarshal(scopeItems, &c.ScopeItems); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scope_items: %w", err)
	}
	if err := json.Unmarshal(constraints, &c.Constraints); err != nil {
		return nil, fmt.Errorf("failed to unmarshal constraints: %w", err)
	}
	return &c, nil
}

// GetCase loads a case by id. Returns ErrNotFound if absent or soft-deleted.
func (c *Client) GetCase(ctx context.Context, id int64) (*Case, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = $1 AND deleted_at IS NULL`, id)
	cs, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get case %d: %w", id, err)
	}
	return cs, nil
}

// GetCaseForUpdate loads a case within tx with a row lock, the mutex
// mechanism described in spec.md §5 ("the case row is the mutex").
func GetCaseForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*Case, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id)
	cs, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load case %d for update: %w", id, err)
	}
	return cs, nil
}

// InsertCase creates a new case. Enforces invariant I1 (email or portal URL
// present) via a check constraint at the database level; a violation here
// surfaces as a *ValidationError on field "channel".
func (c *Client) InsertCase(ctx context.Context, in *Case) (*Case, error) {
	requestedRecords, err := json.Marshal(in.RequestedRecords)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal requested_records: %w", err)
	}
	scopeItems, err := json.Marshal(in.ScopeItems)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scope_items: %w", err)
	}
	constraints, err := json.Marshal(in.Constraints)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal constraints: %w", err)
	}

	row := c.db.QueryRowContext(ctx, `
		INSERT INTO cases (
			status, substatus, requires_human, pause_reason, next_due_at, autopilot_mode,
			channel, agency_name, agency_jurisdiction, agency_email, portal_url,
			requested_records, scope_items, constraints, send_date, last_response_date
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING `+caseColumns,
		in.Status, in.Substatus, in.RequiresHuman, in.PauseReason, in.NextDueAt, in.AutopilotMode,
		in.Channel, in.AgencyName, in.AgencyJurisdiction, in.AgencyEmail, in.PortalURL,
		requestedRecords, scopeItems, constraints, in.SendDate, in.LastResponseDate,
	)
	cs, err := scanCase(row)
	if err != nil {
		if isCheckViolation(err) {
			return nil, NewValidationError("channel", "case must have an email or portal URL for its channel")
		}
		return nil, fmt.Errorf("failed to insert case: %w", err)
	}
	return cs, nil
}

// UpdateCaseInTx applies a full-row update to a case already locked via
// GetCaseForUpdate in the same transaction. Called by the runtime
// transition after the reducer produces its Mutations.
func UpdateCaseInTx(ctx context.Context, tx *sql.Tx, cs *Case) error {
	requestedRecords, err := json.Marshal(cs.RequestedRecords)
	if err != nil {
		return fmt.Errorf("failed to marshal requested_records: %w", err)
	}
	scopeItems, err := json.Marshal(cs.ScopeItems)
	if err != nil {
		return fmt.Errorf("failed to marshal scope_items: %w", err)
	}
	constraints, err := json.Marshal(cs.Constraints)
	if err != nil {
		return fmt.Errorf("failed to marshal constraints: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE cases SET
			status = $2, substatus = $3, requires_human = $4, pause_reason = $5,
			next_due_at = $6, autopilot_mode = $7, scope_items = $8, constraints = $9,
			send_date = $10, last_response_date = $11, portal_url = $12, agency_email = $13,
			requested_records = $14, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`,
		cs.ID, cs.Status, cs.Substatus, cs.RequiresHuman, cs.PauseReason,
		cs.NextDueAt, cs.AutopilotMode, scopeItems, constraints,
		cs.SendDate, cs.LastResponseDate, cs.PortalURL, cs.AgencyEmail,
		requestedRecords,
	)
	if err != nil {
		return fmt.Errorf("failed to update case %d: %w", cs.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected updating case %d: %w", cs.ID, err)
	}
	if n == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// SoftDeleteCase soft-deletes a case by setting deleted_at; its status is
// left unchanged. Used by the retention prune sweep.
func (c *Client) SoftDeleteCase(ctx context.Context, id int64) error {
	res, err := c.db.ExecContext(ctx, `UPDATE cases SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to soft delete case %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected soft-deleting case %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCasesWithDueDeadlines returns cases whose next_due_at has passed and
// that currently have no active run, the selection set for the scheduler's
// deadline sweep (spec.md §4.7).
func (c *Client) ListCasesWithDueDeadlines(ctx context.Context, now time.Time) ([]*Case, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT `+caseColumns+` FROM cases c
		WHERE c.deleted_at IS NULL
		  AND c.next_due_at IS NOT NULL AND c.next_due_at < $1
		  AND NOT EXISTS (
			SELECT 1 FROM agent_runs r
			WHERE r.case_id = c.id
			  AND r.status IN ('created','queued','running','paused','waiting','gated')
		  )`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases with due deadlines: %w", err)
	}
	defer rows.Close()

	var out []*Case
	for rows.Next() {
		cs, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan case row: %w", err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// ListCaseIDsEligibleForRetention returns ids of terminal, non-deleted
// cases last updated before cutoff, the selection set for the retention
// sweep's soft-delete pass (invariant I3 restricts soft-delete to the
// terminal set).
func (c *Client) ListCaseIDsEligibleForRetention(ctx context.Context, cutoff time.Time) ([]int64, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id FROM cases
		WHERE deleted_at IS NULL AND updated_at < $1
		  AND status IN ('completed', 'cancelled')`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases eligible for retention: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan case id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// isCheckViolation reports whether err is a Postgres CHECK constraint
// violation (SQLSTATE 23514), without importing pgx's error type directly
// so callers that swap drivers in tests still compile.
func isCheckViolation(err error) bool {
	return pgErrorCode(err) == "23514"
}
