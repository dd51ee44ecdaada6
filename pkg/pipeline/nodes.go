package pipeline

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/foiacase/caseruntime/pkg/masking"
	"github.com/foiacase/caseruntime/pkg/store"
)

// loadContext is the pipeline's single entry node. On a fresh run it
// reloads the case and, for message-triggered runs, the triggering
// message. On a resume run it additionally rehydrates the paused
// proposal's checkpoint. The only I/O besides the initial case read the
// Decision Pipeline performs before classify_inbound.
func (e *Executor) loadContext(ctx context.Context, run *store.Run, cs *store.Case) (State, error) {
	s := State{
		CaseID:  cs.ID,
		RunID:   run.ID,
		Case:    cs,
		Trigger: run.TriggerType,
	}

	if run.TriggerMessageID != nil {
		msg, err := e.client.GetMessage(ctx, *run.TriggerMessageID)
		if err != nil {
			return s, fmt.Errorf("loading trigger message %d: %w", *run.TriggerMessageID, err)
		}
		s.TriggerMessage = msg
	}

	researched, err := e.client.HasExecutedAction(ctx, cs.ID, store.ActionResearchAgency)
	if err != nil {
		return s, fmt.Errorf("checking prior research for case %d: %w", cs.ID, err)
	}
	s.PriorResearchDone = researched

	if run.TriggerType == store.TriggerResume {
		proposal, err := e.client.GetActiveProposalForCase(ctx, cs.ID)
		if err != nil {
			return s, fmt.Errorf("loading paused proposal for resume run: %w", err)
		}
		s.ResumeProposal = proposal
		s.ProposalID = proposal.ID
		s, err = applyCheckpoint(s, proposal.PipelineState)
		if err != nil {
			return s, err
		}
		if proposal.DecisionType == nil {
			return s, fmt.Errorf("resume run %d targets proposal %d with no decision recorded", run.ID, proposal.ID)
		}
		s.Resume = &HumanDecision{
			Type:                  HumanDecisionType(*proposal.DecisionType),
			AdjustmentInstruction: proposal.AdjustmentInstruction,
		}
	}

	return s, nil
}

// classifyInbound calls the pluggable classifier for message-triggered
// runs. Timer and resume triggers skip classification entirely — there is
// no new inbound stimulus to interpret.
func (e *Executor) classifyInbound(ctx context.Context, s State) (State, error) {
	if s.Trigger == store.TriggerResume || s.TriggerMessage == nil {
		s.RequiresResponse = true
		return s, nil
	}

	out, err := e.classifier.Classify(ctx, ClassifyInput{
		Case:           s.Case,
		TriggerMessage: s.TriggerMessage,
		PriorResearch:  s.PriorResearchDone,
	})
	if err != nil {
		return s, fmt.Errorf("classifying inbound message %d: %w", s.TriggerMessage.ID, err)
	}

	s.Classification = out.Classification
	s.RequiresResponse = out.RequiresResponse
	s.PortalURL = out.PortalURL
	s.FeeAmountCents = out.FeeAmountCents
	s.DenialSubtype = out.DenialSubtype
	s.KeyPoints = out.KeyPoints
	return s, nil
}

// updateConstraints (spec.md's extract_constraints) persists the
// classifier's structured extractions onto the case's constraints blob,
// masking any PII before it lands in the store. Does nothing when the run
// has no trigger message. Only values extracted this round are written;
// keys and a portal_url set by a prior round are left as they are.
func (e *Executor) updateConstraints(ctx context.Context, s State) error {
	if s.TriggerMessage == nil {
		return nil
	}

	return e.client.WithTx(ctx, func(tx *sql.Tx) error {
		cs, err := store.GetCaseForUpdate(ctx, tx, s.CaseID)
		if err != nil {
			return err
		}
		if cs.Constraints == nil {
			cs.Constraints = store.JSONMap{}
		}
		if s.FeeAmountCents != nil {
			cs.Constraints["fee_amount_cents"] = *s.FeeAmountCents
		}
		if s.DenialSubtype != "" {
			cs.Constraints["denial_subtype"] = string(s.DenialSubtype)
		}
		if len(s.KeyPoints) > 0 {
			masked := make([]string, len(s.KeyPoints))
			for i, kp := range s.KeyPoints {
				masked[i] = e.masker.Mask(kp)
			}
			cs.Constraints["key_points"] = masked
		}
		if s.PortalURL != "" {
			cs.PortalURL = s.PortalURL
		}
		return store.UpdateCaseInTx(ctx, tx, cs)
	})
}

// draftResponse calls the pluggable drafter for any action the static
// table marks requires-draft. NONE and the research/administrative
// actions skip drafting entirely.
func (e *Executor) draftResponse(ctx context.Context, s State) (State, error) {
	rule := ruleFor(s.Action)
	if !rule.requiresDraft {
		return s, nil
	}

	out, err := e.drafter.Draft(ctx, DraftInput{
		Case:                  s.Case,
		TriggerMessage:        s.TriggerMessage,
		Action:                s.Action,
		Classification:        s.Classification,
		Reasoning:             s.Reasoning,
		AdjustmentInstruction: s.AdjustmentInstruction,
	})
	if err != nil {
		return s, fmt.Errorf("drafting response for action %s: %w", s.Action, err)
	}

	s.DraftSubject = maskIfSet(e.masker, out.Subject)
	s.DraftBody = maskIfSet(e.masker, out.Body)
	s.Reasoning = append(s.Reasoning, out.Reasoning...)
	return s, nil
}

func maskIfSet(m *masking.Service, text string) string {
	if text == "" {
		return text
	}
	return m.Mask(text)
}
