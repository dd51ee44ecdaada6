package pipeline

import "github.com/foiacase/caseruntime/pkg/store"

// actionRule is the static per-action row spec.md §4.3 calls "a static
// table declares per action: requires-draft, may-auto-execute,
// always-gates, default pause reason."
type actionRule struct {
	requiresDraft    bool
	mayAutoExecute   bool
	alwaysGates      bool
	defaultPauseReason store.PauseReason
}

// actionTable is keyed by store.ActionType so it stays in lockstep with
// the single closed enum definition in pkg/store/types.go.
var actionTable = map[store.ActionType]actionRule{
	store.ActionSendInitialRequest: {requiresDraft: true, mayAutoExecute: true},
	store.ActionSendFollowup:       {requiresDraft: true, mayAutoExecute: true},
	store.ActionAcceptFee:          {requiresDraft: true, mayAutoExecute: true, defaultPauseReason: store.PauseReasonFeeQuote},
	store.ActionNegotiateFee:       {requiresDraft: true, alwaysGates: true, defaultPauseReason: store.PauseReasonFeeQuote},
	store.ActionSendClarification:  {requiresDraft: true, defaultPauseReason: store.PauseReasonClarify},
	store.ActionSendRebuttal:       {requiresDraft: true, defaultPauseReason: store.PauseReasonDenial},
	store.ActionRespondPartialApproval: {requiresDraft: true},
	store.ActionCloseCase:          {alwaysGates: true, defaultPauseReason: store.PauseReasonDenial},
	store.ActionResearchAgency:     {},
	store.ActionReformulateRequest: {requiresDraft: true, defaultPauseReason: store.PauseReasonLowConfidence},
	store.ActionSubmitPortal:       {mayAutoExecute: true},
	store.ActionEscalate:           {alwaysGates: true, defaultPauseReason: store.PauseReasonHostile},
	store.ActionNone:               {mayAutoExecute: true},
}

// ruleFor returns the static rule for an action, defaulting to the safest
// posture (gated, no draft) for an action the table doesn't name — this
// should never happen for the closed enum, but a missing entry must fail
// safe rather than silently auto-execute.
func ruleFor(action store.ActionType) actionRule {
	rule, ok := actionTable[action]
	if !ok {
		return actionRule{alwaysGates: true}
	}
	return rule
}
