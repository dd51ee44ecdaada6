// Package pipeline implements the Decision Pipeline (C5): the directed
// graph of node functions that turns a case snapshot plus a stimulus into
// a proposed or executed action. Nodes run sequentially within a single
// run — there is no intra-pipeline parallelism, the same single-threaded
// discipline the teacher's chain executor applies to its stage loop
// (pkg/queue/executor.go), generalized here from "agent stages" to
// "decision nodes".
package pipeline

import "github.com/foiacase/caseruntime/pkg/store"

// Classification is the classifier's normalized judgment of an inbound
// stimulus, per spec.md §4.3's routing policy.
type Classification string

// Classifications the routing policy understands.
const (
	ClassificationAcknowledgment      Classification = "ACKNOWLEDGMENT"
	ClassificationRecordsReady        Classification = "RECORDS_READY"
	ClassificationDelivery            Classification = "DELIVERY"
	ClassificationPortalRedirect      Classification = "PORTAL_REDIRECT"
	ClassificationWrongAgency         Classification = "WRONG_AGENCY"
	ClassificationHostile             Classification = "HOSTILE"
	ClassificationPartialApproval     Classification = "PARTIAL_APPROVAL"
	ClassificationFeeQuote            Classification = "FEE_QUOTE"
	ClassificationClarificationRequest Classification = "CLARIFICATION_REQUEST"
	ClassificationDenial              Classification = "DENIAL"
	ClassificationNoResponse          Classification = "NO_RESPONSE"
	ClassificationOther               Classification = "OTHER"
)

// DenialSubtype narrows a DENIAL classification, per spec.md §4.3 step 10.
type DenialSubtype string

// Denial subtypes.
const (
	DenialSubtypeNoRecords            DenialSubtype = "no_records"
	DenialSubtypeWrongAgency          DenialSubtype = "wrong_agency"
	DenialSubtypeOverlyBroad          DenialSubtype = "overly_broad"
	DenialSubtypeExcessiveFees        DenialSubtype = "excessive_fees"
	DenialSubtypeRetentionExpired     DenialSubtype = "retention_expired"
	DenialSubtypeOngoingInvestigation DenialSubtype = "ongoing_investigation"
	DenialSubtypePrivacyExemption     DenialSubtype = "privacy_exemption"
	DenialSubtypeUnknown              DenialSubtype = ""
)

// HumanDecisionType is the decision a reviewer posts against a gated
// proposal, per spec.md §4.3 "Resume semantics".
type HumanDecisionType string

// Human decision types.
const (
	DecisionApprove HumanDecisionType = "APPROVE"
	DecisionAdjust  HumanDecisionType = "ADJUST"
	DecisionDismiss HumanDecisionType = "DISMISS"
)

// HumanDecision carries a posted review decision into a resume run.
type HumanDecision struct {
	Type                  HumanDecisionType
	AdjustmentInstruction string
}

// State is the pipeline's state annotation: the single struct every node
// reads from and writes back to as it passes through the sequence.
// Mirrors spec.md §4.3's "struct with typed fields" reduction of the
// checkpointed-graph model; list fields (KeyPoints, Reasoning, Logs,
// Errors, RiskFlags, Warnings) are append-only by convention, every other
// field is last-write-wins.
type State struct {
	CaseID int64
	RunID  int64

	Case           *store.Case
	Trigger        store.RunTriggerType
	TriggerMessage *store.Message

	// Resume carries the posted decision and the proposal being resumed,
	// set only on trigger = resume.
	Resume         *HumanDecision
	ResumeProposal *store.Proposal

	Classification   Classification
	RequiresResponse bool
	PortalURL        string
	FeeAmountCents   *int64
	DenialSubtype    DenialSubtype
	KeyPoints        []string
	// PriorResearchDone records whether a RESEARCH_AGENCY action already
	// executed for this case on an earlier run, since a fresh State
	// carries no memory of runs prior to this one.
	PriorResearchDone bool

	Action         store.ActionType
	Gated          bool
	PauseReason    store.PauseReason
	CanAutoExecute bool

	DraftSubject          string
	DraftBody             string
	AdjustmentInstruction string

	RiskFlags []string
	Warnings  []string

	// Reasoning is the proposal's ordered reasoning trail, append-only.
	Reasoning []string
	// Logs and Errors are append-only diagnostic trails for operator
	// visibility; they are not written to the checkpoint and not surfaced
	// to the requester.
	Logs   []string
	Errors []string

	IsComplete bool

	ProposalID   int64
	ExecutionID  int64
	PortalTaskID int64
}
