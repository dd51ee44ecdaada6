package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const ledgerColumns = `id, case_id, event, transition_key, context, mutations_applied, projection, created_at`

func scanLedgerEntry(row interface{ Scan(...any) error }) (*EventLedgerEntry, error) {
	var e EventLedgerEntry
	if err := row.Scan(&e.ID, &e.CaseID, &e.Event, &e.TransitionKey, &e.Context, &e.MutationsApplied, &e.Projection, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// AppendLedgerEntryInTx inserts the ledger row for a transition before any
// mutation is applied, per spec.md §4.2 ("inserts the ledger row first").
// A duplicate (case_id, transition_key) is the replay-idempotency signal —
// translated to ErrAlreadyApplied so the caller can load and return the
// prior projection instead of re-applying mutations.
func AppendLedgerEntryInTx(ctx context.Context, tx *sql.Tx, e *EventLedgerEntry) (*EventLedgerEntry, error) {
	row := tx.QueryRowContext(ctx, `
		INSERT INTO case_event_ledger (case_id, event, transition_key, context, mutations_applied, projection)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING `+ledgerColumns,
		e.CaseID, e.Event, e.TransitionKey, e.Context, e.MutationsApplied, e.Projection,
	)
	out, err := scanLedgerEntry(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyApplied
		}
		return nil, fmt.Errorf("failed to append ledger entry for case %d: %w", e.CaseID, err)
	}
	return out, nil
}

// GetLedgerEntryByTransitionKeyInTx loads the prior ledger row for a
// transition_key already applied to a case, used to return the idempotent
// replay's prior projection when AppendLedgerEntryInTx reports
// ErrAlreadyApplied.
func GetLedgerEntryByTransitionKeyInTx(ctx context.Context, tx *sql.Tx, caseID int64, transitionKey string) (*EventLedgerEntry, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+ledgerColumns+` FROM case_event_ledger WHERE case_id = $1 AND transition_key = $2`,
		caseID, transitionKey,
	)
	e, err := scanLedgerEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger entry for case %d transition %s: %w", caseID, transitionKey, err)
	}
	return e, nil
}

// ListLedgerForCase returns a case's ledger timeline in commit order, the
// ordering guarantee described in spec.md §5 ("the ledger's (case_id,
// created_at, id) index defines the timeline").
func (c *Client) ListLedgerForCase(ctx context.Context, caseID int64) ([]*EventLedgerEntry, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT `+ledgerColumns+` FROM case_event_ledger WHERE case_id = $1 ORDER BY created_at ASC, id ASC`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger for case %d: %w", caseID, err)
	}
	defer rows.Close()

	var out []*EventLedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PruneLedgerOlderThan deletes ledger rows older than cutoff, the
// scheduler's retention prune job (spec.md §4.7, default 90 d).
func (c *Client) PruneLedgerOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM case_event_ledger WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune ledger entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected pruning ledger: %w", err)
	}
	return n, nil
}

// PruneProposalSnapshotsOlderThan clears pipeline_state on terminal
// proposals older than cutoff, the scheduler's snapshot prune job (spec.md
// §4.7, default 30 d). The proposal row itself is kept; only the resume
// checkpoint blob is cleared, since old terminal proposals remain part of
// the case history.
func (c *Client) PruneProposalSnapshotsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := c.db.ExecContext(ctx, `
		UPDATE proposals SET pipeline_state = NULL
		WHERE pipeline_state IS NOT NULL AND updated_at < $1
		  AND status IN ('EXECUTED','DISMISSED','SUPERSEDED','FAILED')`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune proposal snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected pruning proposal snapshots: %w", err)
	}
	return n, nil
}

// MarshalJSON is a small helper used by pkg/runtime to build ledger context
// blobs without importing encoding/json directly in every call site.
func MarshalJSON(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ledger payload: %w", err)
	}
	return b, nil
}
