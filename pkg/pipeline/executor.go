package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/foiacase/caseruntime/pkg/config"
	"github.com/foiacase/caseruntime/pkg/masking"
	"github.com/foiacase/caseruntime/pkg/metrics"
	"github.com/foiacase/caseruntime/pkg/reducer"
	"github.com/foiacase/caseruntime/pkg/runengine"
	"github.com/foiacase/caseruntime/pkg/runtime"
	"github.com/foiacase/caseruntime/pkg/store"
)

// Executor drives the Decision Pipeline's node sequence for a single
// claimed run to completion, satisfying runengine.Executor. Generalized
// from the teacher's RealSessionExecutor: load → classify → decide →
// draft → safety-check → gate-or-execute → execute/commit, sequential,
// fail-fast on any node error, with every durable case-level fact (a
// gated proposal, a sent email, a closed case) committed through the
// runtime transition as it happens rather than batched at the end.
type Executor struct {
	client     *store.Client
	transitioner *runtime.Transitioner
	policy     *config.PolicyConfig
	classifier Classifier
	drafter    Drafter
	channels   map[store.ExecutionProvider]Channel
	masker     *masking.Service
}

// NewExecutor builds a pipeline Executor. channels may omit providers the
// deployment doesn't use; execute_action falls back to a PENDING_HUMAN
// execution when no Channel is registered for the chosen provider.
func NewExecutor(client *store.Client, transitioner *runtime.Transitioner, policy *config.PolicyConfig, classifier Classifier, drafter Drafter, channels []Channel, masker *masking.Service) *Executor {
	byProvider := make(map[store.ExecutionProvider]Channel, len(channels))
	for _, ch := range channels {
		byProvider[ch.Provider()] = ch
	}
	return &Executor{
		client:       client,
		transitioner: transitioner,
		policy:       policy,
		classifier:   classifier,
		drafter:      drafter,
		channels:     byProvider,
		masker:       masker,
	}
}

// Execute runs the full node sequence for one claimed run. Returns only
// one of EventRunCompleted, EventRunWaiting, or EventRunFailed — every
// other case-level event this run produces (PROPOSAL_GATED, EMAIL_SENT,
// CASE_WRONG_AGENCY, ...) is committed through the transitioner inside
// this method, matching the worker's documented division of labor.
func (e *Executor) Execute(ctx context.Context, run *store.Run, cs *store.Case) *runengine.ExecutionResult {
	log := slog.With("run_id", run.ID, "case_id", cs.ID, "trigger", run.TriggerType)

	s, err := e.loadContext(ctx, run, cs)
	if err != nil {
		log.Error("pipeline: load_context failed", "error", err)
		return &runengine.ExecutionResult{Event: reducer.EventRunFailed, Err: err}
	}

	if run.TriggerType == store.TriggerResume {
		return e.executeResume(ctx, s)
	}

	s, err = e.classifyInbound(ctx, s)
	if err != nil {
		log.Error("pipeline: classify_inbound failed", "error", err)
		return &runengine.ExecutionResult{Event: reducer.EventRunFailed, Err: err}
	}

	if err := e.updateConstraints(ctx, s); err != nil {
		log.Error("pipeline: update_constraints failed", "error", err)
		return &runengine.ExecutionResult{Event: reducer.EventRunFailed, Err: err}
	}

	routed := decideNextAction(s, e.policy)
	s.Action = routed.action
	s.IsComplete = routed.isComplete
	if routed.pauseReason != "" {
		s.PauseReason = routed.pauseReason
	}
	s.Reasoning = append(s.Reasoning, fmt.Sprintf("routed to %s", routed.action))

	if routed.createPortalTask {
		if err := e.createPortalTaskForRedirect(ctx, s); err != nil {
			log.Error("pipeline: portal redirect handling failed", "error", err)
			return &runengine.ExecutionResult{Event: reducer.EventRunFailed, Err: err}
		}
	}

	if s.IsComplete {
		return e.commitEarlyCompletion(ctx, s)
	}

	s, err = e.draftResponse(ctx, s)
	if err != nil {
		log.Error("pipeline: draft_response failed", "error", err)
		return &runengine.ExecutionResult{Event: reducer.EventRunFailed, Err: err}
	}

	riskFlags, warnings := safetyCheck(s, &e.policy.Safety)
	s.RiskFlags = append(s.RiskFlags, riskFlags...)
	s.Warnings = append(s.Warnings, warnings...)

	gated := gateOrExecute(s.Action, cs.AutopilotMode, s.RiskFlags, routed.forceGate, e.policy)
	s.Gated = gated
	s.CanAutoExecute = !gated

	if gated {
		return e.commitGated(ctx, s)
	}
	return e.commitAutoExecute(ctx, s)
}

// executeResume re-enters the pipeline at draft_response (ADJUST),
// execute_action (APPROVE), or commit_state (DISMISS), per spec.md §4.3
// "Resume semantics".
func (e *Executor) executeResume(ctx context.Context, s State) *runengine.ExecutionResult {
	log := slog.With("run_id", s.RunID, "case_id", s.CaseID, "proposal_id", s.ProposalID)

	if s.Resume == nil {
		err := fmt.Errorf("resume run %d has no human decision attached", s.RunID)
		log.Error("pipeline: resume missing decision", "error", err)
		return &runengine.ExecutionResult{Event: reducer.EventRunFailed, Err: err}
	}

	switch s.Resume.Type {
	case DecisionDismiss:
		if _, err := e.transitioner.Transition(ctx, runtime.Input{
			CaseID:            s.CaseID,
			Event:             reducer.EventProposalDismissed,
			Ctx:               reducer.Context{RunID: s.RunID, ProposalID: s.ProposalID},
			IdempotencyFields: []string{fmt.Sprintf("%d", s.RunID), fmt.Sprintf("%d", s.ProposalID)},
		}); err != nil {
			return &runengine.ExecutionResult{Event: reducer.EventRunFailed, Err: err}
		}
		return &runengine.ExecutionResult{Event: reducer.EventRunCompleted}

	case DecisionAdjust:
		s.AdjustmentInstruction = s.Resume.AdjustmentInstruction
		var err error
		s, err = e.draftResponse(ctx, s)
		if err != nil {
			return &runengine.ExecutionResult{Event: reducer.EventRunFailed, Err: err}
		}
		riskFlags, warnings := safetyCheck(s, &e.policy.Safety)
		s.RiskFlags = append(s.RiskFlags, riskFlags...)
		s.Warnings = append(s.Warnings, warnings...)
		// An adjusted draft always returns to human review: the
		// adjustment itself was a human's input, but the redrafted text
		// has not yet been reviewed.
		return e.commitGated(ctx, s)

	case DecisionApprove:
		s.Gated = false
		s.CanAutoExecute = true
		return e.commitAutoExecute(ctx, s)

	default:
		err := fmt.Errorf("unknown resume decision %q", s.Resume.Type)
		log.Error("pipeline: unknown resume decision", "error", err)
		return &runengine.ExecutionResult{Event: reducer.EventRunFailed, Err: err}
	}
}

// commitEarlyCompletion handles the routing policy's early-completion
// paths (steps 1, 3, 4): action NONE, no proposal, no draft — just the
// matching case-level event and a completed run.
func (e *Executor) commitEarlyCompletion(ctx context.Context, s State) *runengine.ExecutionResult {
	event := caseEventForEarlyCompletion(s)
	if event != "" {
		if _, err := e.transitioner.Transition(ctx, runtime.Input{
			CaseID:            s.CaseID,
			Event:             event,
			Ctx:               reducer.Context{RunID: s.RunID},
			IdempotencyFields: []string{fmt.Sprintf("%d", s.RunID), string(s.Classification), string(s.Action)},
		}); err != nil {
			return &runengine.ExecutionResult{Event: reducer.EventRunFailed, Err: err}
		}
	}
	return &runengine.ExecutionResult{Event: reducer.EventRunCompleted}
}

// caseEventForEarlyCompletion maps a NONE-routed classification onto the
// case-level reducer event it implies, per spec.md §4.3 steps 1/3/4.
func caseEventForEarlyCompletion(s State) reducer.CaseEvent {
	switch s.Classification {
	case ClassificationAcknowledgment:
		return reducer.EventAcknowledgmentReceived
	case ClassificationRecordsReady, ClassificationDelivery:
		return reducer.EventCaseResponded
	case ClassificationPortalRedirect:
		return reducer.EventPortalTaskCreated
	default:
		// requires_response == false with no specific classification:
		// nothing further to record beyond the run completing.
		return ""
	}
}

// createPortalTaskForRedirect inserts the human work item for step 4's
// "create PortalTask" side effect. No proposal is created for a portal
// redirect — there is no action for a human to approve, only a task to
// complete outside this system.
func (e *Executor) createPortalTaskForRedirect(ctx context.Context, s State) error {
	_, err := e.client.InsertPortalTask(ctx, &store.PortalTask{
		CaseID:       s.CaseID,
		PortalURL:    s.PortalURL,
		Content:      e.masker.Mask(requestSummary(s)),
		Instructions: "Agency redirected this request to its portal. Submit the request there and record the confirmation number.",
		Status:       store.PortalTaskStatusPending,
	})
	return err
}

func requestSummary(s State) string {
	if s.TriggerMessage == nil {
		return ""
	}
	return s.TriggerMessage.Body
}

// commitGated creates (or re-upserts, on retry) a PENDING_APPROVAL
// proposal carrying the checkpoint and transitions PROPOSAL_GATED, which
// in one reducer mutation pauses the run, flips the case into the review
// set, and sets pause_reason — so the worker records EventRunWaiting as
// the run's own terminal status.
func (e *Executor) commitGated(ctx context.Context, s State) *runengine.ExecutionResult {
	proposal, err := e.upsertProposal(ctx, s, store.ProposalStatusPendingApproval)
	if err != nil {
		return &runengine.ExecutionResult{Event: reducer.EventRunFailed, Err: err}
	}

	if _, err := e.transitioner.Transition(ctx, runtime.Input{
		CaseID:            s.CaseID,
		Event:             reducer.EventProposalGated,
		Ctx:               reducer.Context{RunID: s.RunID, ProposalID: proposal.ID, PauseReason: s.PauseReason},
		IdempotencyFields: []string{fmt.Sprintf("%d", s.RunID), fmt.Sprintf("%d", proposal.ID)},
	}); err != nil {
		return &runengine.ExecutionResult{Event: reducer.EventRunFailed, Err: err}
	}

	metrics.RecordProposalGated(string(s.Action))
	return &runengine.ExecutionResult{Event: reducer.EventRunWaiting, Ctx: reducer.Context{ProposalID: proposal.ID}}
}

// commitAutoExecute drives execute_action for an auto-executable or
// human-approved action: claims an execution key, sends through the
// registered Channel, records the outcome, and commits the case-level
// event the send implies.
func (e *Executor) commitAutoExecute(ctx context.Context, s State) *runengine.ExecutionResult {
	proposal, err := e.upsertProposal(ctx, s, store.ProposalStatusApproved)
	if err != nil {
		return &runengine.ExecutionResult{Event: reducer.EventRunFailed, Err: err}
	}
	metrics.RecordProposalAutoExecuted(string(s.Action))

	rule := ruleFor(s.Action)
	provider := providerForAction(s.Action, s.Case.Channel)

	if provider == store.ProviderNone {
		if _, err := e.transitioner.Transition(ctx, runtime.Input{
			CaseID:            s.CaseID,
			Event:             reducer.EventProposalExecuted,
			Ctx:               reducer.Context{RunID: s.RunID, ProposalID: proposal.ID},
			IdempotencyFields: []string{fmt.Sprintf("%d", s.RunID), fmt.Sprintf("%d", proposal.ID)},
		}); err != nil {
			return &runengine.ExecutionResult{Event: reducer.EventRunFailed, Err: err}
		}
		if err := e.commitAdministrativeAction(ctx, s, proposal.ID); err != nil {
			return &runengine.ExecutionResult{Event: reducer.EventRunFailed, Err: err}
		}
		return &runengine.ExecutionResult{Event: reducer.EventRunCompleted, Ctx: reducer.Context{ProposalID: proposal.ID}}
	}

	executionKey := fmt.Sprintf("%d:%s", proposal.ID, s.Action)
	claimed, err := e.client.ClaimExecution(ctx, proposal.ID, executionKey)
	if err != nil {
		return &runengine.ExecutionResult{Event: reducer.EventRunFailed, Err: err}
	}
	if !claimed {
		// A prior attempt already claimed this proposal's execution —
		// replay as completed rather than sending a second time
		// (invariant I6: no two executions share a key).
		return &runengine.ExecutionResult{Event: reducer.EventRunCompleted, Ctx: reducer.Context{ProposalID: proposal.ID}}
	}

	execution, err := e.client.InsertExecution(ctx, &store.Execution{
		CaseID:       s.CaseID,
		ProposalID:   proposal.ID,
		RunID:        s.RunID,
		ExecutionKey: executionKey,
		ActionType:   s.Action,
		Status:       store.ExecutionStatusQueued,
		Provider:     provider,
	})
	if err != nil {
		return &runengine.ExecutionResult{Event: reducer.EventRunFailed, Err: err}
	}

	if rule.requiresDraft && provider == store.ProviderPortal && e.channels[store.ProviderPortal] == nil {
		// No automated portal adapter registered: fall back to a human
		// work item rather than failing the run outright.
		if err := e.fallBackToPortalTask(ctx, s, proposal, execution); err != nil {
			return &runengine.ExecutionResult{Event: reducer.EventRunFailed, Err: err}
		}
		return &runengine.ExecutionResult{Event: reducer.EventRunWaiting, Ctx: reducer.Context{ProposalID: proposal.ID}}
	}

	channel, ok := e.channels[provider]
	if !ok {
		err := fmt.Errorf("no channel registered for provider %s", provider)
		_ = e.client.UpdateExecutionResult(ctx, execution.ID, store.ExecutionStatusFailed, nil, strPtr(err.Error()))
		return &runengine.ExecutionResult{Event: reducer.EventRunFailed, Err: err}
	}

	providerMessageID, sendErr := channel.Send(ctx, SendIntent{
		Case:     s.Case,
		Proposal: proposal,
		Subject:  s.DraftSubject,
		Body:     s.DraftBody,
	})
	if sendErr != nil {
		_ = e.client.UpdateExecutionResult(ctx, execution.ID, store.ExecutionStatusFailed, nil, strPtr(sendErr.Error()))
		metrics.RecordExecution(string(provider), string(store.ExecutionStatusFailed))
		if _, err := e.transitioner.Transition(ctx, runtime.Input{
			CaseID:            s.CaseID,
			Event:             reducer.EventEmailFailed,
			Ctx:               reducer.Context{RunID: s.RunID, ProposalID: proposal.ID},
			IdempotencyFields: []string{executionKey},
		}); err != nil {
			return &runengine.ExecutionResult{Event: reducer.EventRunFailed, Err: err}
		}
		return &runengine.ExecutionResult{Event: reducer.EventRunFailed, Err: sendErr}
	}

	if err := e.client.UpdateExecutionResult(ctx, execution.ID, store.ExecutionStatusSent, &providerMessageID, nil); err != nil {
		return &runengine.ExecutionResult{Event: reducer.EventRunFailed, Err: err}
	}
	metrics.RecordExecution(string(provider), string(store.ExecutionStatusSent))
	if _, err := e.transitioner.Transition(ctx, runtime.Input{
		CaseID:            s.CaseID,
		Event:             reducer.EventProposalExecuted,
		Ctx:               reducer.Context{RunID: s.RunID, ProposalID: proposal.ID, ExecutionID: execution.ID},
		IdempotencyFields: []string{executionKey},
	}); err != nil {
		return &runengine.ExecutionResult{Event: reducer.EventRunFailed, Err: err}
	}
	if _, err := e.transitioner.Transition(ctx, runtime.Input{
		CaseID:            s.CaseID,
		Event:             reducer.EventEmailSent,
		Ctx:               reducer.Context{RunID: s.RunID, ProposalID: proposal.ID, ExecutionID: execution.ID},
		IdempotencyFields: []string{executionKey},
	}); err != nil {
		return &runengine.ExecutionResult{Event: reducer.EventRunFailed, Err: err}
	}

	return &runengine.ExecutionResult{Event: reducer.EventRunCompleted, Ctx: reducer.Context{ProposalID: proposal.ID, ExecutionID: execution.ID}}
}

// commitAdministrativeAction fires the case-level event implied by an
// action with no external side effect (RESEARCH_AGENCY, CLOSE_CASE,
// ESCALATE). proposalID identifies the proposal that authorized the
// action, feeding the transition's idempotency key.
func (e *Executor) commitAdministrativeAction(ctx context.Context, s State, proposalID int64) error {
	var event reducer.CaseEvent
	switch s.Action {
	case store.ActionCloseCase:
		event = reducer.EventCaseCompleted
	case store.ActionEscalate:
		event = reducer.EventCaseEscalated
	case store.ActionResearchAgency:
		if s.PauseReason != store.PauseReasonWrongAgency {
			// A no_records denial routed here to look for the right
			// office before reformulating; no case status change until
			// that research produces its own next message.
			return nil
		}
		event = reducer.EventCaseWrongAgency
	default:
		return nil
	}
	_, err := e.transitioner.Transition(ctx, runtime.Input{
		CaseID:            s.CaseID,
		Event:             event,
		Ctx:               reducer.Context{RunID: s.RunID},
		IdempotencyFields: []string{fmt.Sprintf("%d", s.RunID), fmt.Sprintf("%d", proposalID)},
	})
	return err
}

// fallBackToPortalTask converts a claimed execution that has no automated
// portal channel into a human work item, marking the execution pending on
// a human and the case waiting.
func (e *Executor) fallBackToPortalTask(ctx context.Context, s State, proposal *store.Proposal, execution *store.Execution) error {
	if err := e.client.UpdateExecutionResult(ctx, execution.ID, store.ExecutionStatusPendingHuman, nil, nil); err != nil {
		return err
	}
	if _, err := e.client.InsertPortalTask(ctx, &store.PortalTask{
		CaseID:      s.CaseID,
		ProposalID:  &proposal.ID,
		ExecutionID: &execution.ID,
		PortalURL:   s.Case.PortalURL,
		Content:     e.masker.Mask(s.DraftBody),
		Instructions: fmt.Sprintf("Submit this %s request via the agency portal.", s.Action),
		Status:      store.PortalTaskStatusPending,
	}); err != nil {
		return err
	}
	_, err := e.transitioner.Transition(ctx, runtime.Input{
		CaseID:            s.CaseID,
		Event:             reducer.EventPortalStarted,
		Ctx:               reducer.Context{RunID: s.RunID, ProposalID: proposal.ID},
		IdempotencyFields: []string{fmt.Sprintf("%d", s.RunID), fmt.Sprintf("%d", proposal.ID)},
	})
	return err
}

// providerForAction maps an action plus the case's submission channel
// onto the execution provider, per spec.md §1's email/portal collaborators.
func providerForAction(action store.ActionType, channel store.SubmissionChannel) store.ExecutionProvider {
	rule := ruleFor(action)
	if !rule.requiresDraft {
		return store.ProviderNone
	}
	if action == store.ActionSubmitPortal {
		return store.ProviderPortal
	}
	switch channel {
	case store.ChannelPortal:
		return store.ProviderPortal
	default:
		return store.ProviderEmail
	}
}

// upsertProposal writes the proposal row for this run's decision,
// deterministically keyed so a retried run merges onto the same row
// instead of creating a duplicate (spec.md §3 invariant I5, §4.5).
func (e *Executor) upsertProposal(ctx context.Context, s State, status store.ProposalStatus) (*store.Proposal, error) {
	// A resume reuses the paused proposal's own key so an ADJUST redraft
	// merges onto the same row instead of opening a second active
	// proposal for the case (invariant I5).
	var proposalKey string
	if s.ResumeProposal != nil {
		proposalKey = s.ResumeProposal.ProposalKey
	} else {
		var triggerMsgID int64
		if s.TriggerMessage != nil {
			triggerMsgID = s.TriggerMessage.ID
		}
		proposalKey = fmt.Sprintf("%d:%d:%s:%d", s.CaseID, triggerMsgID, s.Action, s.RunID)
	}

	checkpoint, err := marshalCheckpoint(s)
	if err != nil {
		return nil, err
	}

	pauseReason := s.PauseReason
	if pauseReason == "" {
		pauseReason = ruleFor(s.Action).defaultPauseReason
	}

	var out *store.Proposal
	err = e.client.WithTx(ctx, func(tx *sql.Tx) error {
		var triggerMsgIDPtr *int64
		if s.TriggerMessage != nil {
			triggerMsgIDPtr = &s.TriggerMessage.ID
		}
		p, err := store.UpsertProposalInTx(ctx, tx, &store.Proposal{
			CaseID:           s.CaseID,
			RunID:            s.RunID,
			ProposalKey:      proposalKey,
			ActionType:       s.Action,
			TriggerMessageID: triggerMsgIDPtr,
			DraftSubject:     s.DraftSubject,
			DraftBody:        s.DraftBody,
			Reasoning:        s.Reasoning,
			Confidence:       1.0,
			RiskFlags:        s.RiskFlags,
			Warnings:         s.Warnings,
			CanAutoExecute:   s.CanAutoExecute,
			RequiresHuman:    s.Gated,
			PauseReason:      pauseReason,
			Status:           status,
			PipelineState:    checkpoint,
		})
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("upserting proposal for run %d: %w", s.RunID, err)
	}
	return out, nil
}

func strPtr(s string) *string { return &s }
