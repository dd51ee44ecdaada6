package pipeline

import (
	"strings"

	"github.com/foiacase/caseruntime/pkg/config"
	"github.com/foiacase/caseruntime/pkg/store"
)

// strongDenialIndicators are the key-point substrings decide_next_action
// counts when a DENIAL classification carries no denial_subtype, per
// spec.md §4.3 step 10's "unknown/null" fallback.
var strongDenialIndicators = []string{
	"statute", "investigation", "exempt", "sealed", "privacy", "law enforcement",
}

// routingResult is decideNextAction's output: the chosen action plus
// whatever side annotations the routing step itself produces (a pause
// reason override, the portal task creation flag, early completion).
type routingResult struct {
	action      store.ActionType
	pauseReason store.PauseReason
	isComplete  bool
	// forceGate overrides actionTable's alwaysGates for routing decisions
	// that gate independent of the action's own table entry (e.g. the fee
	// thresholds' SUPERVISED carve-out).
	forceGate bool
	// createPortalTask marks step 4's "create PortalTask" side effect.
	createPortalTask bool
}

// decideNextAction applies spec.md §4.3's ten-step, first-match-wins
// routing policy over a classified State. Pure: no I/O, no pluggable
// collaborators — everything it needs already lives on State.
func decideNextAction(s State, policy *config.PolicyConfig) routingResult {
	// Step 1: classifier said no reply needed.
	if !s.RequiresResponse {
		return routingResult{action: store.ActionNone, isComplete: true}
	}

	// Step 2: followup trigger or NO_RESPONSE classification.
	if s.Trigger == store.TriggerFollowup || s.Classification == ClassificationNoResponse {
		return routingResult{action: store.ActionSendFollowup}
	}

	switch s.Classification {
	case ClassificationAcknowledgment, ClassificationRecordsReady, ClassificationDelivery:
		// Step 3.
		return routingResult{action: store.ActionNone, isComplete: true}

	case ClassificationPortalRedirect:
		// Step 4.
		return routingResult{action: store.ActionNone, isComplete: true, createPortalTask: true}

	case ClassificationWrongAgency:
		// Step 5.
		return routingResult{action: store.ActionResearchAgency, pauseReason: store.PauseReasonWrongAgency}

	case ClassificationHostile:
		// Step 6.
		return routingResult{action: store.ActionEscalate, pauseReason: store.PauseReasonHostile}

	case ClassificationPartialApproval:
		// Step 7.
		return routingResult{action: store.ActionRespondPartialApproval}

	case ClassificationFeeQuote:
		// Step 8.
		return decideFeeQuote(s, policy)

	case ClassificationClarificationRequest:
		// Step 9.
		return routingResult{action: store.ActionSendClarification, pauseReason: store.PauseReasonClarify}

	case ClassificationDenial:
		// Step 10.
		return decideDenial(s)
	}

	// No step matched (classifier returned OTHER or an unrecognized
	// value) — fail safe into human review rather than silently closing
	// the case or guessing an action.
	return routingResult{action: store.ActionEscalate, pauseReason: store.PauseReasonLowConfidence, forceGate: true}
}

// decideFeeQuote implements step 8's threshold table. amount is in cents
// to avoid floating-point comparison on money; the config thresholds are
// expressed in whole dollars per spec.md §6 and are converted here.
func decideFeeQuote(s State, policy *config.PolicyConfig) routingResult {
	autoMax := int64(policy.FeeAutoApproveMax) * 100
	negotiateThreshold := int64(policy.FeeNegotiateThreshold) * 100

	var amount int64
	if s.FeeAmountCents != nil {
		amount = *s.FeeAmountCents
	}

	switch {
	case amount <= autoMax:
		return routingResult{action: store.ActionAcceptFee, pauseReason: store.PauseReasonFeeQuote}
	case amount <= negotiateThreshold:
		// Mid-tier fee: forceGate holds regardless of autopilot mode,
		// including AUTO. A fee this size gets a human look even when the
		// case is otherwise running unattended; ACCEPT_FEE's own table
		// entry only covers the SUPERVISED allowlist carve-out, so the
		// AUTO escalation is expressed here instead of teaching
		// gate_or_execute about fee amounts.
		return routingResult{action: store.ActionAcceptFee, pauseReason: store.PauseReasonFeeQuote, forceGate: true}
	default:
		return routingResult{action: store.ActionNegotiateFee, pauseReason: store.PauseReasonFeeQuote, forceGate: true}
	}
}

// decideDenial implements step 10's denial_subtype dispatch, falling back
// to the key_points strength heuristic when the subtype is unknown.
func decideDenial(s State) routingResult {
	switch s.DenialSubtype {
	case DenialSubtypeNoRecords:
		if s.PriorResearchDone {
			return routingResult{action: store.ActionReformulateRequest, pauseReason: store.PauseReasonDenial}
		}
		return routingResult{action: store.ActionResearchAgency, pauseReason: store.PauseReasonDenial}
	case DenialSubtypeWrongAgency:
		return routingResult{action: store.ActionResearchAgency, pauseReason: store.PauseReasonWrongAgency}
	case DenialSubtypeOverlyBroad:
		return routingResult{action: store.ActionReformulateRequest, pauseReason: store.PauseReasonDenial}
	case DenialSubtypeExcessiveFees:
		return routingResult{action: store.ActionNegotiateFee, pauseReason: store.PauseReasonFeeQuote}
	case DenialSubtypeRetentionExpired:
		return routingResult{action: store.ActionEscalate, pauseReason: store.PauseReasonDenial}
	case DenialSubtypeOngoingInvestigation, DenialSubtypePrivacyExemption:
		return routingResult{action: store.ActionSendRebuttal, pauseReason: store.PauseReasonDenial}
	default:
		return decideDenialStrength(s)
	}
}

// decideDenialStrength counts strong indicators in key_points and routes
// per spec.md §4.3 step 10's fallback: strong (>=2) closes the case,
// medium (1) gates a rebuttal even in AUTO, weak (0) lets a rebuttal
// auto-execute.
func decideDenialStrength(s State) routingResult {
	count := 0
	for _, point := range s.KeyPoints {
		lower := strings.ToLower(point)
		for _, indicator := range strongDenialIndicators {
			if strings.Contains(lower, indicator) {
				count++
				break
			}
		}
	}

	switch {
	case count >= 2:
		return routingResult{action: store.ActionCloseCase, pauseReason: store.PauseReasonDenial, forceGate: true}
	case count == 1:
		return routingResult{action: store.ActionSendRebuttal, pauseReason: store.PauseReasonDenial, forceGate: true}
	default:
		return routingResult{action: store.ActionSendRebuttal, pauseReason: store.PauseReasonDenial}
	}
}
