package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/foiacase/caseruntime/pkg/store"
)

func TestGateOrExecute_ManualAlwaysGates(t *testing.T) {
	got := gateOrExecute(store.ActionSendInitialRequest, store.AutopilotManual, nil, false, basePolicy())
	assert.True(t, got)
}

func TestGateOrExecute_AutoAllowsNonAlwaysGatesAction(t *testing.T) {
	got := gateOrExecute(store.ActionSendInitialRequest, store.AutopilotAuto, nil, false, basePolicy())
	assert.False(t, got)
}

func TestGateOrExecute_AutoStillGatesAlwaysGatesAction(t *testing.T) {
	got := gateOrExecute(store.ActionCloseCase, store.AutopilotAuto, nil, false, basePolicy())
	assert.True(t, got)
}

func TestGateOrExecute_SupervisedRequiresAllowlist(t *testing.T) {
	policy := basePolicy()
	onAllow := gateOrExecute(store.ActionAcceptFee, store.AutopilotSupervised, nil, false, policy)
	assert.False(t, onAllow)

	offAllow := gateOrExecute(store.ActionSendRebuttal, store.AutopilotSupervised, nil, false, policy)
	assert.True(t, offAllow)
}

func TestGateOrExecute_RiskFlagsAlwaysGate(t *testing.T) {
	got := gateOrExecute(store.ActionSendInitialRequest, store.AutopilotAuto, []string{"forbidden_phrase:waive all rights"}, false, basePolicy())
	assert.True(t, got)
}

func TestGateOrExecute_ForceGateOverridesAutoAllowlist(t *testing.T) {
	got := gateOrExecute(store.ActionAcceptFee, store.AutopilotAuto, nil, true, basePolicy())
	assert.True(t, got)
}
