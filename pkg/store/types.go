// Package store provides the durable record of cases, messages, runs,
// proposals, executions, portal tasks, followups, and the event ledger.
//
// It is accessed directly through database/sql over the jackc/pgx/v5
// driver rather than through an ORM. Table shapes below transcribe the
// column, index, and edge conventions declared in ent/schema/*.go (kept in
// this tree as reference) onto hand-written SQL migrations — see
// DESIGN.md for why entgo.io/ent's generated client could not be used.
package store

import (
	"encoding/json"
	"time"
)

// CaseStatus is the lifecycle status of a case, per spec.md §3.
type CaseStatus string

// Case statuses, following spec.md §3's lifecycle summary.
const (
	CaseStatusReadyToSend        CaseStatus = "ready_to_send"
	CaseStatusPortalInProgress   CaseStatus = "portal_in_progress"
	CaseStatusSent               CaseStatus = "sent"
	CaseStatusAwaitingResponse   CaseStatus = "awaiting_response"
	CaseStatusResponded          CaseStatus = "responded"
	CaseStatusNeedsHumanReview   CaseStatus = "needs_human_review"
	CaseStatusNeedsFeeApproval   CaseStatus = "needs_human_fee_approval"
	CaseStatusNeedsContactInfo   CaseStatus = "needs_contact_info"
	CaseStatusNeedsPhoneCall     CaseStatus = "needs_phone_call"
	CaseStatusCompleted          CaseStatus = "completed"
	CaseStatusCancelled          CaseStatus = "cancelled"
)

// ReviewSet is the set of case statuses that require a human, per GLOSSARY.
var ReviewSet = map[CaseStatus]bool{
	CaseStatusNeedsHumanReview: true,
	CaseStatusNeedsFeeApproval: true,
	CaseStatusNeedsContactInfo: true,
	CaseStatusNeedsPhoneCall:   true,
}

// TerminalSet is the set of case statuses from which no further work
// happens, per GLOSSARY.
var TerminalSet = map[CaseStatus]bool{
	CaseStatusCompleted: true,
	CaseStatusCancelled: true,
}

// IsReview reports whether a status is in the review set.
func (s CaseStatus) IsReview() bool { return ReviewSet[s] }

// IsTerminal reports whether a status is in the terminal set.
func (s CaseStatus) IsTerminal() bool { return TerminalSet[s] }

// SubmissionChannel is how a case's requests are sent to the agency.
type SubmissionChannel string

// Submission channels, per spec.md §3 invariant I1.
const (
	ChannelEmail  SubmissionChannel = "email"
	ChannelPortal SubmissionChannel = "portal"
	ChannelBoth   SubmissionChannel = "both"
	ChannelManual SubmissionChannel = "manual"
)

// AutopilotMode mirrors config.AutopilotMode, duplicated here to keep
// pkg/store free of a config.* import (a case row's autopilot_mode is
// persisted state, not a config knob).
type AutopilotMode string

// Autopilot modes, per spec.md GLOSSARY.
const (
	AutopilotAuto       AutopilotMode = "AUTO"
	AutopilotSupervised AutopilotMode = "SUPERVISED"
	AutopilotManual     AutopilotMode = "MANUAL"
)

// PauseReason is the enumerated label attached to a case in the review set.
type PauseReason string

// Pause reasons.
const (
	PauseReasonUnspecified  PauseReason = "UNSPECIFIED"
	PauseReasonFeeQuote     PauseReason = "FEE_QUOTE"
	PauseReasonDenial       PauseReason = "DENIAL"
	PauseReasonWrongAgency  PauseReason = "WRONG_AGENCY"
	PauseReasonHostile      PauseReason = "HOSTILE"
	PauseReasonClarify      PauseReason = "CLARIFICATION_REQUEST"
	PauseReasonLowConfidence PauseReason = "LOW_CONFIDENCE"
)

// JSONMap is a generic JSON object column value.
type JSONMap map[string]any

// MarshalJSON encodes the map via json.Marshal, writing {} for a nil map.
func (m JSONMap) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(m))
}

// Case is the unit of work, per spec.md §3.
type Case struct {
	ID                int64
	Status            CaseStatus
	Substatus         string
	RequiresHuman     bool
	PauseReason       PauseReason
	NextDueAt         *time.Time
	AutopilotMode     AutopilotMode
	Channel           SubmissionChannel
	AgencyName        string
	AgencyJurisdiction string
	AgencyEmail       string
	PortalURL         string
	RequestedRecords  []string
	ScopeItems        JSONMap
	Constraints       JSONMap
	SendDate          *time.Time
	LastResponseDate  *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         *time.Time
}

// MessageDirection is the direction of a Message.
type MessageDirection string

// Message directions.
const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

// Message is inbound or outbound communication on a case, per spec.md §3.
type Message struct {
	ID                int64
	CaseID            int64
	Direction         MessageDirection
	ProviderMessageID *string
	Subject           string
	Body              string
	Headers           JSONMap
	CreatedAt         time.Time
	ProcessedAt       *time.Time
	ProcessedRunID    *int64
}

// RunTriggerType is what caused a run to be dispatched, per spec.md §3.
type RunTriggerType string

// Run trigger types.
const (
	TriggerInitialRequest  RunTriggerType = "initial_request"
	TriggerInboundMessage  RunTriggerType = "inbound_message"
	TriggerFollowup        RunTriggerType = "followup_trigger"
	TriggerResume          RunTriggerType = "resume"
	TriggerManual          RunTriggerType = "manual"
	TriggerDeadlineEscalation RunTriggerType = "deadline_escalation"
)

// RunStatus is the lifecycle status of a Run, per spec.md §3.
type RunStatus string

// Run statuses.
const (
	RunStatusCreated       RunStatus = "created"
	RunStatusQueued        RunStatus = "queued"
	RunStatusRunning       RunStatus = "running"
	RunStatusPaused        RunStatus = "paused"
	RunStatusWaiting       RunStatus = "waiting"
	RunStatusGated         RunStatus = "gated"
	RunStatusCompleted     RunStatus = "completed"
	RunStatusFailed        RunStatus = "failed"
	RunStatusSkippedLocked RunStatus = "skipped_locked"
)

// ActiveRunSet is the run-status active set, per GLOSSARY.
var ActiveRunSet = map[RunStatus]bool{
	RunStatusCreated: true,
	RunStatusQueued:  true,
	RunStatusRunning: true,
	RunStatusPaused:  true,
	RunStatusWaiting: true,
	RunStatusGated:   true,
}

// Run is a single invocation of the Decision Pipeline for a case.
type Run struct {
	ID                int64
	CaseID            int64
	TriggerType       RunTriggerType
	TriggerMessageID  *int64
	ScheduledKey      *string
	Status            RunStatus
	StartedAt         *time.Time
	EndedAt           *time.Time
	HeartbeatAt       *time.Time
	LockExpiresAt     *time.Time
	AutopilotModeSnapshot AutopilotMode
	Error             *string
	CreatedAt         time.Time
}

// ActionType is the closed set of normalized pipeline actions, per spec.md §4.3.
type ActionType string

// Action types.
const (
	ActionSendRebuttal           ActionType = "SEND_REBUTTAL"
	ActionAcceptFee              ActionType = "ACCEPT_FEE"
	ActionNegotiateFee           ActionType = "NEGOTIATE_FEE"
	ActionSendClarification      ActionType = "SEND_CLARIFICATION"
	ActionSendFollowup           ActionType = "SEND_FOLLOWUP"
	ActionSendInitialRequest     ActionType = "SEND_INITIAL_REQUEST"
	ActionRespondPartialApproval ActionType = "RESPOND_PARTIAL_APPROVAL"
	ActionCloseCase              ActionType = "CLOSE_CASE"
	ActionResearchAgency         ActionType = "RESEARCH_AGENCY"
	ActionReformulateRequest     ActionType = "REFORMULATE_REQUEST"
	ActionSubmitPortal           ActionType = "SUBMIT_PORTAL"
	ActionEscalate               ActionType = "ESCALATE"
	ActionNone                   ActionType = "NONE"
)

// ProposalStatus is the lifecycle status of a Proposal, per spec.md §3.
type ProposalStatus string

// Proposal statuses.
const (
	ProposalStatusDraft            ProposalStatus = "DRAFT"
	ProposalStatusPendingApproval  ProposalStatus = "PENDING_APPROVAL"
	ProposalStatusApproved         ProposalStatus = "APPROVED"
	ProposalStatusDecisionReceived ProposalStatus = "DECISION_RECEIVED"
	ProposalStatusPendingPortal    ProposalStatus = "PENDING_PORTAL"
	ProposalStatusBlocked          ProposalStatus = "BLOCKED"
	ProposalStatusExecuted         ProposalStatus = "EXECUTED"
	ProposalStatusDismissed        ProposalStatus = "DISMISSED"
	ProposalStatusSuperseded       ProposalStatus = "SUPERSEDED"
	ProposalStatusFailed           ProposalStatus = "FAILED"
)

// ActiveProposalSet is the proposal-status active set, per GLOSSARY.
var ActiveProposalSet = map[ProposalStatus]bool{
	ProposalStatusPendingApproval:  true,
	ProposalStatusBlocked:          true,
	ProposalStatusDecisionReceived: true,
	ProposalStatusPendingPortal:    true,
}

// Proposal is a decision artifact recommending a next action, per spec.md §3.
type Proposal struct {
	ID               int64
	CaseID           int64
	RunID            int64
	ProposalKey      string
	ExecutionKey     *string
	ActionType       ActionType
	TriggerMessageID *int64
	DraftSubject     string
	DraftBody        string
	Reasoning        []string
	Confidence       float64
	RiskFlags        []string
	Warnings         []string
	CanAutoExecute   bool
	RequiresHuman    bool
	PauseReason      PauseReason
	Status           ProposalStatus
	PipelineState    json.RawMessage // checkpoint for resume, per spec.md §9
	// DecisionType and AdjustmentInstruction carry a reviewer's posted
	// decision (APPROVE/ADJUST/DISMISS) from RecordDecision through to the
	// resume run that acts on it.
	DecisionType          *string
	AdjustmentInstruction string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// ExecutionStatus is the lifecycle status of an Execution, per spec.md §3.
type ExecutionStatus string

// Execution statuses.
const (
	ExecutionStatusQueued       ExecutionStatus = "QUEUED"
	ExecutionStatusSent         ExecutionStatus = "SENT"
	ExecutionStatusSkipped      ExecutionStatus = "SKIPPED"
	ExecutionStatusFailed       ExecutionStatus = "FAILED"
	ExecutionStatusPendingHuman ExecutionStatus = "PENDING_HUMAN"
)

// ExecutionProvider is the side-effect channel used by an Execution.
type ExecutionProvider string

// Execution providers, per spec.md §1 (email/portal are the only external
// collaborators named; "none" marks a no-op execution, e.g. for ActionNone).
const (
	ProviderEmail  ExecutionProvider = "email"
	ProviderPortal ExecutionProvider = "portal"
	ProviderNone   ExecutionProvider = "none"
)

// Execution is a single side-effect attempt, per spec.md §3.
type Execution struct {
	ID                int64
	CaseID            int64
	ProposalID        int64
	RunID             int64
	ExecutionKey      string
	ActionType        ActionType
	Status            ExecutionStatus
	Provider          ExecutionProvider
	ProviderMessageID *string
	Error             *string
	RetryCount        int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PortalTaskStatus is the lifecycle status of a PortalTask.
type PortalTaskStatus string

// Portal task statuses.
const (
	PortalTaskStatusPending   PortalTaskStatus = "PENDING"
	PortalTaskStatusClaimed   PortalTaskStatus = "CLAIMED"
	PortalTaskStatusCompleted PortalTaskStatus = "COMPLETED"
	PortalTaskStatusStuck     PortalTaskStatus = "STUCK"
	PortalTaskStatusFailed    PortalTaskStatus = "FAILED"
)

// PortalTask is a human work item for a portal submission the system could
// not automate, per spec.md §3.
type PortalTask struct {
	ID                 int64
	CaseID             int64
	ProposalID         *int64
	ExecutionID        *int64
	PortalURL          string
	Content            string
	Instructions       string
	Status             PortalTaskStatus
	Assignee           *string
	ConfirmationNumber *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// FollowupStatus is the lifecycle status of a FollowupSchedule.
type FollowupStatus string

// Followup statuses.
const (
	FollowupStatusScheduled  FollowupStatus = "scheduled"
	FollowupStatusProcessing FollowupStatus = "processing"
	FollowupStatusSent       FollowupStatus = "sent"
	FollowupStatusPaused     FollowupStatus = "paused"
	FollowupStatusMaxReached FollowupStatus = "max_reached"
	FollowupStatusCancelled  FollowupStatus = "cancelled"
	FollowupStatusFailed     FollowupStatus = "failed"
)

// FollowupSchedule is the timer entity per case, per spec.md §3.
type FollowupSchedule struct {
	CaseID           int64
	NextFollowupDate time.Time
	FollowupCount    int
	Status           FollowupStatus
	ScheduledKey     *string
	UpdatedAt        time.Time
}

// EventLedgerEntry is an append-only audit row of a runtime transition, per
// spec.md §3.
type EventLedgerEntry struct {
	ID                int64
	CaseID            int64
	Event             string
	TransitionKey     string
	Context           json.RawMessage
	MutationsApplied  json.RawMessage
	Projection        json.RawMessage
	CreatedAt         time.Time
}

// DeadLetterEntry is a row in the dead-letter queue, per spec.md §6.
type DeadLetterEntry struct {
	ID           int64
	QueueName    string
	JobID        string
	JobData      json.RawMessage
	Error        string
	AttemptCount int
	CaseID       *int64
	Resolution   *string
	CreatedAt    time.Time
}

// PhoneCallQueueStatus is the lifecycle status of a phone escalation item.
// Supplemental to spec.md — see SPEC_FULL.md "Phone-call escalation queue".
type PhoneCallQueueStatus string

// Phone call queue statuses.
const (
	PhoneCallQueueStatusPending  PhoneCallQueueStatus = "pending"
	PhoneCallQueueStatusClaimed  PhoneCallQueueStatus = "claimed"
	PhoneCallQueueStatusResolved PhoneCallQueueStatus = "resolved"
)

// PhoneCallQueueEntry is a durable escalation item for a case that exhausted
// its automated followup cadence.
type PhoneCallQueueEntry struct {
	ID         int64
	CaseID     int64
	Reason     string
	Status     PhoneCallQueueStatus
	EnqueuedAt time.Time
	ResolvedAt *time.Time
}
