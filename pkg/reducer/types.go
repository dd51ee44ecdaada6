// Package reducer implements the case reducer: a pure function from
// (snapshot, event, context) to (mutations, projection). No I/O, no
// randomness, no clock reads — every input the reducer needs arrives in
// its arguments, the same discipline the teacher applies to
// pkg/agent/orchestrator's node functions (state in, state delta out).
package reducer

import "github.com/foiacase/caseruntime/pkg/store"

// CaseEvent is the closed set of events the reducer accepts, per spec.md
// §4.1. Unknown events fail loudly rather than silently no-op.
type CaseEvent string

// Case events.
const (
	EventCaseSent              CaseEvent = "CASE_SENT"
	EventPortalStarted         CaseEvent = "PORTAL_STARTED"
	EventPortalCompleted       CaseEvent = "PORTAL_COMPLETED"
	EventPortalFailed          CaseEvent = "PORTAL_FAILED"
	EventPortalTimedOut        CaseEvent = "PORTAL_TIMED_OUT"
	EventPortalAborted         CaseEvent = "PORTAL_ABORTED"
	EventPortalTaskCreated     CaseEvent = "PORTAL_TASK_CREATED"
	EventPortalStuck           CaseEvent = "PORTAL_STUCK"
	EventEmailSent             CaseEvent = "EMAIL_SENT"
	EventEmailFailed           CaseEvent = "EMAIL_FAILED"
	EventFeeQuoteReceived      CaseEvent = "FEE_QUOTE_RECEIVED"
	EventAcknowledgmentReceived CaseEvent = "ACKNOWLEDGMENT_RECEIVED"
	EventCaseResponded         CaseEvent = "CASE_RESPONDED"
	EventCaseWrongAgency       CaseEvent = "CASE_WRONG_AGENCY"
	EventCaseEscalated         CaseEvent = "CASE_ESCALATED"
	EventCaseReconciled        CaseEvent = "CASE_RECONCILED"
	EventCaseCompleted         CaseEvent = "CASE_COMPLETED"
	EventCaseCancelled         CaseEvent = "CASE_CANCELLED"
	EventRunClaimed            CaseEvent = "RUN_CLAIMED"
	EventRunWaiting            CaseEvent = "RUN_WAITING"
	EventRunCompleted          CaseEvent = "RUN_COMPLETED"
	EventRunFailed             CaseEvent = "RUN_FAILED"
	EventRunStaleCleaned       CaseEvent = "RUN_STALE_CLEANED"
	EventProposalGated         CaseEvent = "PROPOSAL_GATED"
	EventProposalApproved      CaseEvent = "PROPOSAL_APPROVED"
	EventProposalDismissed     CaseEvent = "PROPOSAL_DISMISSED"
	EventProposalExecuted      CaseEvent = "PROPOSAL_EXECUTED"
	EventProposalBlocked       CaseEvent = "PROPOSAL_BLOCKED"
	EventProposalCancelled     CaseEvent = "PROPOSAL_CANCELLED"
	EventStaleFlagsCleared     CaseEvent = "STALE_FLAGS_CLEARED"
	EventStuckPortalTaskFailed CaseEvent = "STUCK_PORTAL_TASK_FAILED"
)

// Snapshot is the reducer's complete view of a case, assembled by the
// runtime transition under the case row's FOR UPDATE lock.
type Snapshot struct {
	Case        *store.Case
	ActiveRun   *store.Run
	Proposals   []*store.Proposal
	PortalTasks []*store.PortalTask
	Followup    *store.FollowupSchedule
}

// Context carries event-specific parameters the reducer needs but that do
// not belong on the snapshot — e.g. which proposal a PROPOSAL_APPROVED
// event refers to, or the portal URL and confirmation code of a portal task.
type Context struct {
	RunID            int64
	ProposalID       int64
	ExecutionID      int64
	PortalTaskID     int64
	PortalURL        string
	ConfirmationCode string
	RunFailureOnly   bool // RUN_STALE_CLEANED: true when the stale run was the sole cause of requires_human
	PauseReason      store.PauseReason // PROPOSAL_GATED: why the gating proposal paused, picks the review status
	TransitionKey    string
}

// Mutations is the reducer's intended write set, applied by the runtime
// transition (pkg/runtime) after the ledger row commits.
type Mutations struct {
	CaseStatus        *store.CaseStatus
	CaseSubstatus     *string
	CaseRequiresHuman *bool
	CasePauseReason   *store.PauseReason
	CasePortalURL     *string

	RunStatus *store.RunStatus

	ProposalsDismissAll    bool
	ProposalsDismissPortal bool
	AgentRunsCancelOthers  bool

	ProposalStatusUpdates map[int64]store.ProposalStatus

	PortalTaskStatus           *store.PortalTaskStatus
	PortalTaskConfirmationCode *string

	FollowupStatus *store.FollowupStatus

	CreatePortalTask bool
}

// Projection summarizes the post-event state for the caller (API response,
// dispatcher decision) without requiring a second read of the database.
type Projection struct {
	CaseID        int64
	CaseStatus    store.CaseStatus
	RequiresHuman bool
	PauseReason   store.PauseReason
	IsComplete    bool
}
