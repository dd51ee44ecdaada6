package reducer

import (
	"fmt"

	"github.com/foiacase/caseruntime/pkg/store"
)

// isTerminal and isReview read store.TerminalSet and store.ReviewSet
// directly; this package keeps no copy of either set.
func isTerminal(s store.CaseStatus) bool { return store.TerminalSet[s] }
func isReview(s store.CaseStatus) bool   { return store.ReviewSet[s] }

// dismissingStatuses are the case statuses whose safety net dismisses all
// active proposals, per spec.md §4.1 ("Proposal alignment").
var dismissingStatuses = map[store.CaseStatus]bool{
	store.CaseStatusSent:             true,
	store.CaseStatusAwaitingResponse: true,
	store.CaseStatusResponded:        true,
	store.CaseStatusCompleted:        true,
	store.CaseStatusCancelled:        true,
}

func statusPtr(s store.CaseStatus) *store.CaseStatus       { return &s }
func boolPtr(b bool) *bool                                 { return &b }
func pauseReasonPtr(p store.PauseReason) *store.PauseReason { return &p }
func stringPtr(s string) *string                            { return &s }

// Apply runs the case reducer: a total, pure function over the known event
// set. It never performs I/O and never reads the clock; any instant it
// needs must already be embedded in snapshot or ctx.
func Apply(snapshot Snapshot, event CaseEvent, ctx Context) (Mutations, Projection, error) {
	if snapshot.Case == nil {
		return Mutations{}, Projection{}, fmt.Errorf("reducer: snapshot has no case")
	}

	m, err := applyEvent(snapshot, event, ctx)
	if err != nil {
		return Mutations{}, Projection{}, err
	}

	applySafetyNets(snapshot, &m)

	proj := buildProjection(snapshot, m)
	return m, proj, nil
}

// applyEvent dispatches per-event logic. Each case sets only the fields
// the event is specifically responsible for; safety nets run afterward.
func applyEvent(s Snapshot, event CaseEvent, ctx Context) (Mutations, error) {
	var m Mutations

	switch event {
	case EventCaseSent:
		m.CaseStatus = statusPtr(store.CaseStatusSent)

	case EventPortalStarted:
		m.CaseStatus = statusPtr(store.CaseStatusPortalInProgress)

	case EventPortalCompleted:
		m.CaseStatus = statusPtr(store.CaseStatusSent)
		m.PortalTaskStatus = portalTaskStatusPtr(store.PortalTaskStatusCompleted)
		if ctx.ConfirmationCode != "" {
			m.PortalTaskConfirmationCode = stringPtr(ctx.ConfirmationCode)
		}

	case EventPortalFailed:
		m.CaseStatus = statusPtr(store.CaseStatusNeedsHumanReview)
		m.CasePauseReason = pauseReasonPtr(store.PauseReasonUnspecified)
		m.PortalTaskStatus = portalTaskStatusPtr(store.PortalTaskStatusFailed)

	case EventPortalTimedOut, EventPortalAborted:
		m.CaseStatus = statusPtr(store.CaseStatusNeedsHumanReview)
		m.PortalTaskStatus = portalTaskStatusPtr(store.PortalTaskStatusFailed)

	case EventPortalTaskCreated:
		m.CreatePortalTask = true
		m.CaseStatus = statusPtr(store.CaseStatusPortalInProgress)

	case EventPortalStuck:
		m.PortalTaskStatus = portalTaskStatusPtr(store.PortalTaskStatusStuck)
		m.CaseStatus = statusPtr(store.CaseStatusNeedsHumanReview)

	case EventEmailSent:
		m.CaseStatus = statusPtr(store.CaseStatusSent)

	case EventEmailFailed:
		m.CaseStatus = statusPtr(store.CaseStatusNeedsHumanReview)

	case EventFeeQuoteReceived:
		m.CaseStatus = statusPtr(store.CaseStatusNeedsFeeApproval)
		m.CasePauseReason = pauseReasonPtr(store.PauseReasonFeeQuote)

	case EventAcknowledgmentReceived:
		m.CaseStatus = statusPtr(store.CaseStatusAwaitingResponse)

	case EventCaseResponded:
		m.CaseStatus = statusPtr(store.CaseStatusResponded)

	case EventCaseWrongAgency:
		m.CaseStatus = statusPtr(store.CaseStatusNeedsHumanReview)
		m.CasePauseReason = pauseReasonPtr(store.PauseReasonWrongAgency)

	case EventCaseEscalated:
		m.CaseStatus = statusPtr(store.CaseStatusNeedsHumanReview)
		m.CasePauseReason = pauseReasonPtr(store.PauseReasonHostile)

	case EventCaseReconciled:
		m.CaseStatus = statusPtr(store.CaseStatusAwaitingResponse)
		m.CaseRequiresHuman = boolPtr(false)

	case EventCaseCompleted:
		m.CaseStatus = statusPtr(store.CaseStatusCompleted)

	case EventCaseCancelled:
		m.CaseStatus = statusPtr(store.CaseStatusCancelled)

	case EventRunClaimed:
		m.RunStatus = runStatusPtr(store.RunStatusRunning)
		m.AgentRunsCancelOthers = true

	case EventRunWaiting:
		m.RunStatus = runStatusPtr(store.RunStatusWaiting)

	case EventRunCompleted:
		m.RunStatus = runStatusPtr(store.RunStatusCompleted)

	case EventRunFailed:
		m.RunStatus = runStatusPtr(store.RunStatusFailed)
		m.CaseStatus = statusPtr(store.CaseStatusNeedsHumanReview)

	case EventRunStaleCleaned:
		m.RunStatus = runStatusPtr(store.RunStatusFailed)
		if ctx.RunFailureOnly {
			m.CaseRequiresHuman = boolPtr(false)
			m.CasePauseReason = pauseReasonPtr(store.PauseReasonUnspecified)
		}

	case EventProposalGated:
		if ctx.ProposalID == 0 {
			return m, fmt.Errorf("reducer: PROPOSAL_GATED requires ctx.ProposalID")
		}
		m.ProposalStatusUpdates = map[int64]store.ProposalStatus{ctx.ProposalID: store.ProposalStatusPendingApproval}
		m.CaseRequiresHuman = boolPtr(true)
		m.RunStatus = runStatusPtr(store.RunStatusPaused)
		if ctx.PauseReason == store.PauseReasonFeeQuote {
			m.CaseStatus = statusPtr(store.CaseStatusNeedsFeeApproval)
		} else {
			m.CaseStatus = statusPtr(store.CaseStatusNeedsHumanReview)
		}
		if ctx.PauseReason != "" {
			m.CasePauseReason = pauseReasonPtr(ctx.PauseReason)
		}

	case EventProposalApproved:
		if ctx.ProposalID == 0 {
			return m, fmt.Errorf("reducer: PROPOSAL_APPROVED requires ctx.ProposalID")
		}
		m.ProposalStatusUpdates = map[int64]store.ProposalStatus{ctx.ProposalID: store.ProposalStatusApproved}

	case EventProposalDismissed:
		if ctx.ProposalID == 0 {
			return m, fmt.Errorf("reducer: PROPOSAL_DISMISSED requires ctx.ProposalID")
		}
		m.ProposalStatusUpdates = map[int64]store.ProposalStatus{ctx.ProposalID: store.ProposalStatusDismissed}

	case EventProposalExecuted:
		if ctx.ProposalID == 0 {
			return m, fmt.Errorf("reducer: PROPOSAL_EXECUTED requires ctx.ProposalID")
		}
		m.ProposalStatusUpdates = map[int64]store.ProposalStatus{ctx.ProposalID: store.ProposalStatusExecuted}

	case EventProposalBlocked:
		if ctx.ProposalID == 0 {
			return m, fmt.Errorf("reducer: PROPOSAL_BLOCKED requires ctx.ProposalID")
		}
		m.ProposalStatusUpdates = map[int64]store.ProposalStatus{ctx.ProposalID: store.ProposalStatusBlocked}
		m.CaseRequiresHuman = boolPtr(true)

	case EventProposalCancelled:
		if ctx.ProposalID == 0 {
			return m, fmt.Errorf("reducer: PROPOSAL_CANCELLED requires ctx.ProposalID")
		}
		m.ProposalStatusUpdates = map[int64]store.ProposalStatus{ctx.ProposalID: store.ProposalStatusSuperseded}

	case EventStaleFlagsCleared:
		m.CaseRequiresHuman = boolPtr(false)
		m.CasePauseReason = pauseReasonPtr(store.PauseReasonUnspecified)

	case EventStuckPortalTaskFailed:
		m.PortalTaskStatus = portalTaskStatusPtr(store.PortalTaskStatusStuck)

	default:
		return m, fmt.Errorf("reducer: unknown event %q", event)
	}

	return m, nil
}

// applySafetyNets implements the per-spec safety nets applied after
// per-event logic (spec.md §4.1). Tie-break: the reducer's own
// CasePauseReason, set above, wins over a safety-net default when
// non-empty; dismissal flags never overwrite an explicit per-proposal
// mutation targeting the same proposal (the "tie-break" rule).
func applySafetyNets(s Snapshot, m *Mutations) {
	targetStatus := s.Case.Status
	if m.CaseStatus != nil {
		targetStatus = *m.CaseStatus
	}

	targetRequiresHuman := s.Case.RequiresHuman
	if m.CaseRequiresHuman != nil {
		targetRequiresHuman = *m.CaseRequiresHuman
	}

	targetPauseReason := s.Case.PauseReason
	if m.CasePauseReason != nil {
		targetPauseReason = *m.CasePauseReason
	}

	if isReview(targetStatus) {
		if targetPauseReason == "" {
			m.CasePauseReason = pauseReasonPtr(store.PauseReasonUnspecified)
		}
		if !targetRequiresHuman {
			m.CaseRequiresHuman = boolPtr(true)
		}
	} else if isReview(s.Case.Status) {
		// Leaving the review set: clear requires_human and pause_reason,
		// unless the event itself already set them explicitly (e.g. a
		// RUN_FAILED immediately following could re-enter review).
		if m.CaseRequiresHuman == nil {
			m.CaseRequiresHuman = boolPtr(false)
		}
		if m.CasePauseReason == nil {
			m.CasePauseReason = pauseReasonPtr(store.PauseReasonUnspecified)
		}
	}

	// Followup alignment.
	if s.Followup != nil {
		if isTerminal(targetStatus) {
			m.FollowupStatus = followupStatusPtr(store.FollowupStatusCancelled)
		} else if isReview(targetStatus) {
			m.FollowupStatus = followupStatusPtr(store.FollowupStatusPaused)
		}
	}

	// Proposal alignment: dismiss-all unless an explicit per-proposal
	// mutation already targets the case's active proposal (tie-break rule).
	if dismissingStatuses[targetStatus] {
		m.ProposalsDismissAll = true
	}
}

func buildProjection(s Snapshot, m Mutations) Projection {
	status := s.Case.Status
	if m.CaseStatus != nil {
		status = *m.CaseStatus
	}
	requiresHuman := s.Case.RequiresHuman
	if m.CaseRequiresHuman != nil {
		requiresHuman = *m.CaseRequiresHuman
	}
	pauseReason := s.Case.PauseReason
	if m.CasePauseReason != nil {
		pauseReason = *m.CasePauseReason
	}

	return Projection{
		CaseID:        s.Case.ID,
		CaseStatus:    status,
		RequiresHuman: requiresHuman,
		PauseReason:   pauseReason,
		IsComplete:    isTerminal(status),
	}
}

func runStatusPtr(s store.RunStatus) *store.RunStatus                     { return &s }
func portalTaskStatusPtr(s store.PortalTaskStatus) *store.PortalTaskStatus { return &s }
func followupStatusPtr(s store.FollowupStatus) *store.FollowupStatus       { return &s }
