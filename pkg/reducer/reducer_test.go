package reducer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foiacase/caseruntime/pkg/store"
)

func baseSnapshot(status store.CaseStatus) Snapshot {
	return Snapshot{
		Case: &store.Case{ID: 1, Status: status, PauseReason: store.PauseReasonUnspecified},
	}
}

func TestApply_UnknownEvent(t *testing.T) {
	_, _, err := Apply(baseSnapshot(store.CaseStatusSent), CaseEvent("NOT_A_REAL_EVENT"), Context{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event")
}

func TestApply_NilCase(t *testing.T) {
	_, _, err := Apply(Snapshot{}, EventCaseSent, Context{})
	require.Error(t, err)
}

func TestApply_CaseSent(t *testing.T) {
	m, proj, err := Apply(baseSnapshot(store.CaseStatusReadyToSend), EventCaseSent, Context{})
	require.NoError(t, err)
	require.NotNil(t, m.CaseStatus)
	assert.Equal(t, store.CaseStatusSent, *m.CaseStatus)
	assert.Equal(t, store.CaseStatusSent, proj.CaseStatus)
	assert.False(t, proj.IsComplete)
}

func TestApply_SafetyNet_EnteringReviewSet(t *testing.T) {
	m, proj, err := Apply(baseSnapshot(store.CaseStatusAwaitingResponse), EventCaseWrongAgency, Context{})
	require.NoError(t, err)
	require.NotNil(t, m.CaseRequiresHuman)
	assert.True(t, *m.CaseRequiresHuman)
	require.NotNil(t, m.CasePauseReason)
	assert.Equal(t, store.PauseReasonWrongAgency, *m.CasePauseReason)
	assert.True(t, proj.RequiresHuman)
}

func TestApply_SafetyNet_LeavingReviewSet(t *testing.T) {
	snap := baseSnapshot(store.CaseStatusNeedsHumanReview)
	snap.Case.RequiresHuman = true
	snap.Case.PauseReason = store.PauseReasonWrongAgency

	m, proj, err := Apply(snap, EventCaseReconciled, Context{})
	require.NoError(t, err)
	require.NotNil(t, m.CaseRequiresHuman)
	assert.False(t, *m.CaseRequiresHuman)
	assert.Equal(t, store.PauseReasonUnspecified, proj.PauseReason)
}

func TestApply_ProposalGated_RequiresProposalID(t *testing.T) {
	_, _, err := Apply(baseSnapshot(store.CaseStatusAwaitingResponse), EventProposalGated, Context{})
	require.Error(t, err)
}

func TestApply_ProposalGated(t *testing.T) {
	m, _, err := Apply(baseSnapshot(store.CaseStatusAwaitingResponse), EventProposalGated, Context{ProposalID: 42, PauseReason: store.PauseReasonClarify})
	require.NoError(t, err)
	require.NotNil(t, m.RunStatus)
	assert.Equal(t, store.RunStatusPaused, *m.RunStatus)
	assert.Equal(t, store.ProposalStatusPendingApproval, m.ProposalStatusUpdates[42])
	require.NotNil(t, m.CaseRequiresHuman)
	assert.True(t, *m.CaseRequiresHuman)
	require.NotNil(t, m.CaseStatus)
	assert.Equal(t, store.CaseStatusNeedsHumanReview, *m.CaseStatus)
	require.NotNil(t, m.CasePauseReason)
	assert.Equal(t, store.PauseReasonClarify, *m.CasePauseReason)
}

func TestApply_ProposalGated_FeeQuoteRoutesToFeeApprovalStatus(t *testing.T) {
	m, _, err := Apply(baseSnapshot(store.CaseStatusAwaitingResponse), EventProposalGated, Context{ProposalID: 42, PauseReason: store.PauseReasonFeeQuote})
	require.NoError(t, err)
	require.NotNil(t, m.CaseStatus)
	assert.Equal(t, store.CaseStatusNeedsFeeApproval, *m.CaseStatus)
}

func TestApply_RunClaimed_CancelsSiblings(t *testing.T) {
	m, _, err := Apply(baseSnapshot(store.CaseStatusAwaitingResponse), EventRunClaimed, Context{RunID: 7})
	require.NoError(t, err)
	assert.True(t, m.AgentRunsCancelOthers)
	require.NotNil(t, m.RunStatus)
	assert.Equal(t, store.RunStatusRunning, *m.RunStatus)
}

func TestApply_ProposalAlignment_DismissOnCompleted(t *testing.T) {
	m, _, err := Apply(baseSnapshot(store.CaseStatusResponded), EventCaseCompleted, Context{})
	require.NoError(t, err)
	assert.True(t, m.ProposalsDismissAll)
}

func TestApply_FollowupAlignment_Terminal(t *testing.T) {
	snap := baseSnapshot(store.CaseStatusAwaitingResponse)
	snap.Followup = &store.FollowupSchedule{CaseID: 1, Status: store.FollowupStatusScheduled}

	m, _, err := Apply(snap, EventCaseCompleted, Context{})
	require.NoError(t, err)
	require.NotNil(t, m.FollowupStatus)
	assert.Equal(t, store.FollowupStatusCancelled, *m.FollowupStatus)
}

func TestApply_FollowupAlignment_Review(t *testing.T) {
	snap := baseSnapshot(store.CaseStatusAwaitingResponse)
	snap.Followup = &store.FollowupSchedule{CaseID: 1, Status: store.FollowupStatusScheduled}

	m, _, err := Apply(snap, EventCaseWrongAgency, Context{})
	require.NoError(t, err)
	require.NotNil(t, m.FollowupStatus)
	assert.Equal(t, store.FollowupStatusPaused, *m.FollowupStatus)
}

func TestApply_RunStaleCleaned_ClearsRequiresHumanWhenRunFailureOnly(t *testing.T) {
	m, _, err := Apply(baseSnapshot(store.CaseStatusAwaitingResponse), EventRunStaleCleaned, Context{RunFailureOnly: true})
	require.NoError(t, err)
	require.NotNil(t, m.CaseRequiresHuman)
	assert.False(t, *m.CaseRequiresHuman)
}

func TestApply_Idempotent_SameInputsSameOutput(t *testing.T) {
	snap := baseSnapshot(store.CaseStatusAwaitingResponse)
	m1, p1, err1 := Apply(snap, EventCaseWrongAgency, Context{})
	m2, p2, err2 := Apply(snap, EventCaseWrongAgency, Context{})
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, *m1.CasePauseReason, *m2.CasePauseReason)
	assert.Equal(t, p1, p2)
}
