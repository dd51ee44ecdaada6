package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const proposalColumns = `id, case_id, run_id, proposal_key, execution_key, action_type,
	trigger_message_id, draft_subject, draft_body, reasoning, confidence, risk_flags, warnings,
	can_auto_execute, requires_human, pause_reason, status, pipeline_state,
	decision_type, adjustment_instruction, created_at, updated_at`

func scanProposal(row interface{ Scan(...any) error }) (*Proposal, error) {
	var p Proposal
	var reasoning, riskFlags, warnings []byte
	if err := row.Scan(
		&p.ID, &p.CaseID, &p.RunID, &p.ProposalKey, &p.ExecutionKey, &p.ActionType,
		&p.TriggerMessageID, &p.DraftSubject, &p.DraftBody, &reasoning, &p.Confidence, &riskFlags, &warnings,
		&p.CanAutoExecute, &p.RequiresHuman, &p.PauseReason, &p.Status, &p.PipelineState,
		&p.DecisionType, &p.AdjustmentInstruction, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(reasoning, &p.Reasoning); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reasoning: %w", err)
	}
	if err := json.Unmarshal(riskFlags, &p.RiskFlags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal risk_flags: %w", err)
	}
	if err := json.Unmarshal(warnings, &p.Warnings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal warnings: %w", err)
	}
	return &p, nil
}

// UpsertProposalInTx inserts a proposal, or merges onto the existing row
// sharing the same proposal_key when a retry of the same run/action
// produces a new draft — the "merge drafts emitted by retries" behavior
// from spec.md §4.5.
func UpsertProposalInTx(ctx context.Context, tx *sql.Tx, p *Proposal) (*Proposal, error) {
	reasoning, err := json.Marshal(p.Reasoning)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reasoning: %w", err)
	}
	riskFlags, err := json.Marshal(p.RiskFlags)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal risk_flags: %w", err)
	}
	warnings, err := json.Marshal(p.Warnings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal warnings: %w", err)
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO proposals (
			case_id, run_id, proposal_key, action_type, trigger_message_id,
			draft_subject, draft_body, reasoning, confidence, risk_flags, warnings,
			can_auto_execute, requires_human, pause_reason, status, pipeline_state
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (proposal_key) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			draft_subject = EXCLUDED.draft_subject,
			draft_body = EXCLUDED.draft_body,
			reasoning = EXCLUDED.reasoning,
			confidence = EXCLUDED.confidence,
			risk_flags = EXCLUDED.risk_flags,
			warnings = EXCLUDED.warnings,
			can_auto_execute = EXCLUDED.can_auto_execute,
			requires_human = EXCLUDED.requires_human,
			pause_reason = EXCLUDED.pause_reason,
			status = EXCLUDED.status,
			pipeline_state = EXCLUDED.pipeline_state,
			updated_at = now()
		RETURNING `+proposalColumns,
		p.CaseID, p.RunID, p.ProposalKey, p.ActionType, p.TriggerMessageID,
		p.DraftSubject, p.DraftBody, reasoning, p.Confidence, riskFlags, warnings,
		p.CanAutoExecute, p.RequiresHuman, p.PauseReason, p.Status, p.PipelineState,
	)
	out, err := scanProposal(row)
	if err != nil {
		if isUniqueViolation(err) && constraintName(err) == "proposals_case_id_active_key" {
			return nil, ErrActiveRunExists
		}
		return nil, fmt.Errorf("failed to upsert proposal %s: %w", p.ProposalKey, err)
	}
	return out, nil
}

// GetProposal loads a proposal by id.
func (c *Client) GetProposal(ctx context.Context, id int64) (*Proposal, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id = $1`, id)
	p, err := scanProposal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get proposal %d: %w", id, err)
	}
	return p, nil
}

// GetProposalForUpdate loads a proposal with a row lock within tx, used
// before applying a human decision.
func GetProposalForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*Proposal, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id = $1 FOR UPDATE`, id)
	p, err := scanProposal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load proposal %d for update: %w", id, err)
	}
	return p, nil
}

// GetActiveProposalForCase returns the case's single active proposal, if
// any, per invariant I5.
func (c *Client) GetActiveProposalForCase(ctx context.Context, caseID int64) (*Proposal, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT `+proposalColumns+` FROM proposals
		WHERE case_id = $1 AND status IN ('PENDING_APPROVAL','BLOCKED','DECISION_RECEIVED','PENDING_PORTAL')`,
		caseID)
	p, err := scanProposal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active proposal for case %d: %w", caseID, err)
	}
	return p, nil
}

// ClaimExecution atomically transitions a proposal's execution_key from
// null to non-null, per spec.md §4.5: "UPDATE proposals SET execution_key =
// :key WHERE id = :id AND execution_key IS NULL AND status NOT IN
// (EXECUTED, BLOCKED)". Returns true only when exactly one row updated.
func (c *Client) ClaimExecution(ctx context.Context, proposalID int64, executionKey string) (bool, error) {
	res, err := c.db.ExecContext(ctx, `
		UPDATE proposals SET execution_key = $2, updated_at = now()
		WHERE id = $1 AND execution_key IS NULL AND status NOT IN ('EXECUTED', 'BLOCKED')`,
		proposalID, executionKey,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to claim execution for proposal %d: %w", proposalID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected claiming execution for proposal %d: %w", proposalID, err)
	}
	return n == 1, nil
}

// UpdateProposalStatusInTx transitions a proposal's status within an open
// transaction, optionally updating pause_reason.
func UpdateProposalStatusInTx(ctx context.Context, tx *sql.Tx, proposalID int64, status ProposalStatus, pauseReason *PauseReason) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE proposals SET status = $2, pause_reason = COALESCE($3, pause_reason), updated_at = now()
		WHERE id = $1`,
		proposalID, status, pauseReason,
	)
	if err != nil {
		return fmt.Errorf("failed to update proposal %d status: %w", proposalID, err)
	}
	return nil
}

// HasExecutedAction reports whether a case has ever carried an executed
// proposal of the given action type, used to distinguish a first
// RESEARCH_AGENCY pass from a repeat one across separate runs.
func (c *Client) HasExecutedAction(ctx context.Context, caseID int64, action ActionType) (bool, error) {
	var exists bool
	err := c.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM proposals
			WHERE case_id = $1 AND action_type = $2 AND status = 'EXECUTED'
		)`, caseID, action).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check executed actions for case %d: %w", caseID, err)
	}
	return exists, nil
}

// RecordDecision posts a reviewer's decision against a gated proposal,
// moving it from PENDING_APPROVAL to DECISION_RECEIVED so the next resume
// run knows what the reviewer chose, per spec.md invariant I6: a decision
// can land exactly once per proposal. decisionType is one of
// APPROVE/ADJUST/DISMISS.
//
// The proposal's gating run sits in the waiting status, which is part of
// the run active set, so it still blocks dispatch(caseId, ...) after the
// decision lands. RecordDecision closes that run out as completed in the
// same transaction, clearing the way for the resume run the caller
// dispatches next (spec.md §6).
func (c *Client) RecordDecision(ctx context.Context, proposalID, runID int64, decisionType, adjustmentInstruction string) error {
	return c.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE proposals SET status = 'DECISION_RECEIVED', decision_type = $2,
				adjustment_instruction = $3, updated_at = now()
			WHERE id = $1 AND status = 'PENDING_APPROVAL'`,
			proposalID, decisionType, adjustmentInstruction,
		)
		if err != nil {
			return fmt.Errorf("failed to record decision for proposal %d: %w", proposalID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected recording decision for proposal %d: %w", proposalID, err)
		}
		if n == 0 {
			return ErrDecisionAlreadyReceived
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE agent_runs SET status = 'completed', ended_at = now()
			WHERE id = $1 AND status = 'waiting'`,
			runID,
		); err != nil {
			return fmt.Errorf("failed to close waiting run %d for proposal %d: %w", runID, proposalID, err)
		}
		return nil
	})
}

// DismissActiveProposalsInTx dismisses every active proposal for a case,
// the reducer's "proposal alignment" safety net from spec.md §4.1.
func DismissActiveProposalsInTx(ctx context.Context, tx *sql.Tx, caseID int64, exceptProposalID *int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE proposals SET status = 'DISMISSED', updated_at = now()
		WHERE case_id = $1 AND ($2::bigint IS NULL OR id <> $2)
		  AND status IN ('PENDING_APPROVAL','BLOCKED','DECISION_RECEIVED','PENDING_PORTAL')`,
		caseID, exceptProposalID,
	)
	if err != nil {
		return fmt.Errorf("failed to dismiss active proposals for case %d: %w", caseID, err)
	}
	return nil
}
