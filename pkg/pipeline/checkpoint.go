package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/foiacase/caseruntime/pkg/store"
)

// checkpoint is the JSON shape persisted to Proposal.PipelineState on
// gating, per spec.md §4.3 "the stored proposal is the checkpoint" and
// §9's "graph with checkpoints" reduction. Only the fields a resume needs
// to re-enter at draft_response or execute_action are kept; Case and
// TriggerMessage are reloaded fresh rather than frozen, since a resume may
// run long after the case has moved on.
type checkpoint struct {
	Classification   Classification   `json:"classification"`
	RequiresResponse bool              `json:"requires_response"`
	PortalURL        string            `json:"portal_url,omitempty"`
	FeeAmountCents   *int64            `json:"fee_amount_cents,omitempty"`
	DenialSubtype    DenialSubtype     `json:"denial_subtype,omitempty"`
	KeyPoints        []string          `json:"key_points,omitempty"`
	Action           store.ActionType  `json:"action"`
	PauseReason      store.PauseReason `json:"pause_reason,omitempty"`
	DraftSubject     string            `json:"draft_subject,omitempty"`
	DraftBody        string            `json:"draft_body,omitempty"`
	Reasoning        []string          `json:"reasoning,omitempty"`
}

// checkpointFrom captures the subset of State a gated proposal needs to
// resume later.
func checkpointFrom(s State) checkpoint {
	return checkpoint{
		Classification:   s.Classification,
		RequiresResponse: s.RequiresResponse,
		PortalURL:        s.PortalURL,
		FeeAmountCents:   s.FeeAmountCents,
		DenialSubtype:    s.DenialSubtype,
		KeyPoints:        s.KeyPoints,
		Action:           s.Action,
		PauseReason:      s.PauseReason,
		DraftSubject:     s.DraftSubject,
		DraftBody:        s.DraftBody,
		Reasoning:        s.Reasoning,
	}
}

// marshalCheckpoint serializes a State for storage as Proposal.PipelineState.
func marshalCheckpoint(s State) (json.RawMessage, error) {
	b, err := json.Marshal(checkpointFrom(s))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pipeline checkpoint: %w", err)
	}
	return b, nil
}

// applyCheckpoint rehydrates a resumed State from a paused proposal's
// stored checkpoint.
func applyCheckpoint(s State, raw json.RawMessage) (State, error) {
	if len(raw) == 0 {
		return s, nil
	}
	var cp checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return s, fmt.Errorf("failed to unmarshal pipeline checkpoint: %w", err)
	}
	s.Classification = cp.Classification
	s.RequiresResponse = cp.RequiresResponse
	s.PortalURL = cp.PortalURL
	s.FeeAmountCents = cp.FeeAmountCents
	s.DenialSubtype = cp.DenialSubtype
	s.KeyPoints = cp.KeyPoints
	s.Action = cp.Action
	s.PauseReason = cp.PauseReason
	s.DraftSubject = cp.DraftSubject
	s.DraftBody = cp.DraftBody
	s.Reasoning = cp.Reasoning
	return s, nil
}
