package pipeline

import (
	"context"

	"github.com/foiacase/caseruntime/pkg/store"
)

// ClassifyInput is what classify_inbound hands to the pluggable
// classifier — the out-of-scope "LLM service" collaborator described in
// spec.md §1.
type ClassifyInput struct {
	Case            *store.Case
	TriggerMessage  *store.Message
	PriorResearch   bool // whether a RESEARCH_AGENCY action has already run for this case
}

// ClassifyOutput is the classifier's normalized judgment, feeding
// decide_next_action's routing table directly.
type ClassifyOutput struct {
	Classification   Classification
	RequiresResponse bool
	PortalURL        string
	FeeAmountCents   *int64
	DenialSubtype    DenialSubtype
	KeyPoints        []string
}

// Classifier is the pluggable LLM-backed (or stub) classification
// collaborator. Implementations must be safe for concurrent use across
// workers.
type Classifier interface {
	Classify(ctx context.Context, in ClassifyInput) (ClassifyOutput, error)
}

// DraftInput is what draft_response hands to the pluggable drafter.
type DraftInput struct {
	Case                  *store.Case
	TriggerMessage        *store.Message
	Action                store.ActionType
	Classification        Classification
	Reasoning             []string
	AdjustmentInstruction string // set on an ADJUST resume
}

// DraftOutput is the drafter's proposed correspondence.
type DraftOutput struct {
	Subject   string
	Body      string
	Reasoning []string
}

// Drafter is the pluggable LLM-backed (or stub) drafting collaborator.
type Drafter interface {
	Draft(ctx context.Context, in DraftInput) (DraftOutput, error)
}

// SendIntent is what execute_action hands to the pluggable Channel —
// the out-of-scope "email transport / portal automation" collaborator
// described in spec.md §1, shared with the executor in pkg/executor.
type SendIntent struct {
	Case       *store.Case
	Proposal   *store.Proposal
	Subject    string
	Body       string
}

// Channel drives a single side-effect attempt (email send or portal
// submission) and reports the provider's message/confirmation id.
type Channel interface {
	Provider() store.ExecutionProvider
	Send(ctx context.Context, in SendIntent) (providerMessageID string, err error)
}
