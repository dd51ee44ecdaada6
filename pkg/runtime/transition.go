// Package runtime implements the runtime transition (C3): the single
// choke point through which every case-state change flows. It wraps the
// pure reducer in a database transaction, computes the replay-idempotency
// token, writes the ledger row before applying any mutation, and emits a
// post-commit event. No other code path may issue `UPDATE cases SET
// status = ...` — see DESIGN.md.
package runtime

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/foiacase/caseruntime/pkg/events"
	"github.com/foiacase/caseruntime/pkg/reducer"
	"github.com/foiacase/caseruntime/pkg/store"
)

// Transitioner applies case events inside transactions, the sole entry
// point for case-state mutation.
type Transitioner struct {
	client    *store.Client
	publisher *events.Publisher
}

// NewTransitioner builds a Transitioner. publisher may be nil in tests
// that do not need post-commit notification.
func NewTransitioner(client *store.Client, publisher *events.Publisher) *Transitioner {
	return &Transitioner{client: client, publisher: publisher}
}

// Input is the request to transition a case's runtime state.
type Input struct {
	CaseID int64
	Event  reducer.CaseEvent
	Ctx    reducer.Context

	// TransitionKey, when set, is used verbatim instead of the derived
	// hash — callers with a natural idempotency token (e.g. a webhook's
	// provider_message_id) should set this explicitly.
	TransitionKey string

	// IdempotencyFields feed the default transition_key derivation when
	// TransitionKey is empty.
	IdempotencyFields []string
}

// Result is returned by Transition, either freshly computed or replayed
// from a prior ledger row sharing the same transition_key.
type Result struct {
	Projection reducer.Projection
	Replayed   bool
}

// Transition loads the case snapshot under FOR UPDATE, applies the
// reducer, writes the ledger row first, then the mutations — all inside
// one transaction. A duplicate transition_key returns the prior
// projection without reapplying mutations (spec.md §4.2).
func (t *Transitioner) Transition(ctx context.Context, in Input) (Result, error) {
	transitionKey := in.TransitionKey
	if transitionKey == "" {
		transitionKey = deriveTransitionKey(in.CaseID, in.Event, in.IdempotencyFields)
	}

	var result Result
	err := t.client.WithTx(ctx, func(tx *sql.Tx) error {
		cs, err := store.GetCaseForUpdate(ctx, tx, in.CaseID)
		if err != nil {
			return err
		}

		snapshot, err := loadSnapshot(ctx, tx, t.client, cs)
		if err != nil {
			return fmt.Errorf("failed to load snapshot for case %d: %w", in.CaseID, err)
		}

		mutations, projection, err := reducer.Apply(snapshot, in.Event, in.Ctx)
		if err != nil {
			return fmt.Errorf("reducer rejected event: %w", err)
		}

		contextBlob, err := json.Marshal(in.Ctx)
		if err != nil {
			return fmt.Errorf("failed to marshal transition context: %w", err)
		}
		mutationsBlob, err := json.Marshal(mutations)
		if err != nil {
			return fmt.Errorf("failed to marshal mutations: %w", err)
		}
		projectionBlob, err := json.Marshal(projection)
		if err != nil {
			return fmt.Errorf("failed to marshal projection: %w", err)
		}

		_, err = store.AppendLedgerEntryInTx(ctx, tx, &store.EventLedgerEntry{
			CaseID:           in.CaseID,
			Event:            string(in.Event),
			TransitionKey:    transitionKey,
			Context:          contextBlob,
			MutationsApplied: mutationsBlob,
			Projection:       projectionBlob,
		})
		if errors.Is(err, store.ErrAlreadyApplied) {
			prior, getErr := store.GetLedgerEntryByTransitionKeyInTx(ctx, tx, in.CaseID, transitionKey)
			if getErr != nil {
				return fmt.Errorf("failed to load prior ledger entry for replay: %w", getErr)
			}
			var priorProjection reducer.Projection
			if unmarshalErr := json.Unmarshal(prior.Projection, &priorProjection); unmarshalErr != nil {
				return fmt.Errorf("failed to unmarshal prior projection: %w", unmarshalErr)
			}
			result = Result{Projection: priorProjection, Replayed: true}
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to append ledger entry: %w", err)
		}

		if err := applyMutations(ctx, tx, cs, mutations, in.Ctx); err != nil {
			return fmt.Errorf("failed to apply mutations: %w", err)
		}

		result = Result{Projection: projection, Replayed: false}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if !result.Replayed && t.publisher != nil {
		proj := result.Projection
		if err := t.publisher.PublishCaseTransition(ctx, in.CaseID, string(in.Event), string(proj.CaseStatus), proj.RequiresHuman, string(proj.PauseReason)); err != nil {
			// Notification failure never rolls back a committed transition;
			// subscribers simply miss a push and fall back to polling.
			slog.Warn("failed to publish case transition event", "case_id", in.CaseID, "event", in.Event, "error", err)
		}
	}

	return result, nil
}

// loadSnapshot assembles the reducer's view of a case from its active
// run, active proposal, and followup schedule; portal tasks are not
// loaded.
func loadSnapshot(ctx context.Context, tx *sql.Tx, client *store.Client, cs *store.Case) (reducer.Snapshot, error) {
	snap := reducer.Snapshot{Case: cs}

	activeRun, err := client.GetActiveRunForCase(ctx, cs.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return snap, err
	}
	if err == nil {
		snap.ActiveRun = activeRun
	}

	activeProposal, err := client.GetActiveProposalForCase(ctx, cs.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return snap, err
	}
	if err == nil {
		snap.Proposals = []*store.Proposal{activeProposal}
	}

	followup, err := client.GetFollowupSchedule(ctx, cs.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return snap, err
	}
	if err == nil {
		snap.Followup = followup
	}

	return snap, nil
}

// applyMutations writes the reducer's intended mutation set. Order
// matters only in that every write happens after the ledger row commits
// within the same transaction (enforced by the caller).
func applyMutations(ctx context.Context, tx *sql.Tx, cs *store.Case, m reducer.Mutations, rctx reducer.Context) error {
	caseChanged := false
	if m.CaseStatus != nil {
		cs.Status = *m.CaseStatus
		caseChanged = true
	}
	if m.CaseSubstatus != nil {
		cs.Substatus = *m.CaseSubstatus
		caseChanged = true
	}
	if m.CaseRequiresHuman != nil {
		cs.RequiresHuman = *m.CaseRequiresHuman
		caseChanged = true
	}
	if m.CasePauseReason != nil {
		cs.PauseReason = *m.CasePauseReason
		caseChanged = true
	}
	if m.CasePortalURL != nil {
		cs.PortalURL = *m.CasePortalURL
		caseChanged = true
	}
	if caseChanged {
		if err := store.UpdateCaseInTx(ctx, tx, cs); err != nil {
			return fmt.Errorf("failed to update case %d: %w", cs.ID, err)
		}
	}

	if m.RunStatus != nil && rctx.RunID != 0 {
		if err := store.UpdateRunStatusInTx(ctx, tx, rctx.RunID, *m.RunStatus, nil, nil, nil); err != nil {
			return err
		}
	}

	if m.AgentRunsCancelOthers && rctx.RunID != 0 {
		if err := store.CancelSiblingRunsInTx(ctx, tx, cs.ID, rctx.RunID); err != nil {
			return err
		}
	}

	for proposalID, status := range m.ProposalStatusUpdates {
		var pauseReason *store.PauseReason
		if m.CasePauseReason != nil {
			pauseReason = m.CasePauseReason
		}
		if err := store.UpdateProposalStatusInTx(ctx, tx, proposalID, status, pauseReason); err != nil {
			return err
		}
	}

	if m.ProposalsDismissAll {
		var except *int64
		if rctx.ProposalID != 0 {
			except = &rctx.ProposalID
		}
		if err := store.DismissActiveProposalsInTx(ctx, tx, cs.ID, except); err != nil {
			return err
		}
	}

	if m.PortalTaskStatus != nil && rctx.PortalTaskID != 0 {
		// Portal task status writes use the non-tx accessor's SQL shape
		// but must run on tx to stay inside the transition's atomicity
		// boundary; issue it directly here rather than via *Client.
		_, err := tx.ExecContext(ctx, `
			UPDATE portal_tasks SET status = $2, confirmation_number = COALESCE($3, confirmation_number), updated_at = now()
			WHERE id = $1`,
			rctx.PortalTaskID, *m.PortalTaskStatus, m.PortalTaskConfirmationCode,
		)
		if err != nil {
			return fmt.Errorf("failed to update portal task %d: %w", rctx.PortalTaskID, err)
		}
	}

	if m.FollowupStatus != nil {
		if err := store.SetFollowupStatusInTx(ctx, tx, cs.ID, *m.FollowupStatus); err != nil {
			return err
		}
	}

	return nil
}

// deriveTransitionKey computes a deterministic hash of the case id, event,
// and idempotency fields, used when the caller has no natural token.
func deriveTransitionKey(caseID int64, event reducer.CaseEvent, fields []string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d:%s", caseID, event)
	for _, f := range fields {
		fmt.Fprintf(h, ":%s", f)
	}
	return hex.EncodeToString(h.Sum(nil))
}
