package pipeline

import (
	"github.com/foiacase/caseruntime/pkg/config"
	"github.com/foiacase/caseruntime/pkg/store"
)

// gateOrExecute applies spec.md §4.3's gating policy: given an action, the
// case's autopilot mode, and the safety check's risk flags, decides
// whether the run must pause for human review.
func gateOrExecute(action store.ActionType, autopilot store.AutopilotMode, riskFlags []string, forceGate bool, policy *config.PolicyConfig) bool {
	if len(riskFlags) > 0 {
		return true
	}
	if forceGate {
		return true
	}
	rule := ruleFor(action)
	if rule.alwaysGates {
		return true
	}
	if autopilot == store.AutopilotManual {
		return true
	}
	if autopilot == store.AutopilotSupervised && !onAllowlist(action, policy.AutoAllowlist) {
		return true
	}
	return false
}

func onAllowlist(action store.ActionType, allowlist []string) bool {
	for _, a := range allowlist {
		if store.ActionType(a) == action {
			return true
		}
	}
	return false
}
