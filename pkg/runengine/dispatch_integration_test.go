package runengine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foiacase/caseruntime/pkg/store"
	"github.com/foiacase/caseruntime/test/util"
)

func insertTestCase(t *testing.T, client *store.Client, status store.CaseStatus) *store.Case {
	t.Helper()
	cs, err := client.InsertCase(context.Background(), &store.Case{
		Status:        status,
		Channel:       store.ChannelEmail,
		AgencyName:    "Department of Run Engine Testing",
		AgencyEmail:   "foia@example.gov",
		AutopilotMode: store.AutopilotSupervised,
	})
	require.NoError(t, err)
	return cs
}

func TestIntegration_Dispatch_CaseNotFound(t *testing.T) {
	client := util.SetupTestDatabase(t)
	d := NewDispatcher(client, 2*time.Minute)

	result, err := d.Dispatch(context.Background(), 999999, Trigger{Type: store.TriggerManual})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCaseNotFound, result.Outcome)
}

func TestIntegration_Dispatch_AlreadySent(t *testing.T) {
	client := util.SetupTestDatabase(t)
	cs := insertTestCase(t, client, store.CaseStatusCompleted)
	d := NewDispatcher(client, 2*time.Minute)

	result, err := d.Dispatch(context.Background(), cs.ID, Trigger{Type: store.TriggerManual})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadySent, result.Outcome)
}

func TestIntegration_Dispatch_Dispatched(t *testing.T) {
	client := util.SetupTestDatabase(t)
	cs := insertTestCase(t, client, store.CaseStatusReadyToSend)
	d := NewDispatcher(client, 2*time.Minute)

	result, err := d.Dispatch(context.Background(), cs.ID, Trigger{
		Type:          store.TriggerInitialRequest,
		AutopilotMode: store.AutopilotSupervised,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDispatched, result.Outcome)
	assert.NotZero(t, result.RunID)

	run, err := client.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusQueued, run.Status)
	assert.Equal(t, store.TriggerInitialRequest, run.TriggerType)
	assert.NotNil(t, run.LockExpiresAt)
}

func TestIntegration_Dispatch_ActiveRunExists(t *testing.T) {
	client := util.SetupTestDatabase(t)
	cs := insertTestCase(t, client, store.CaseStatusReadyToSend)
	d := NewDispatcher(client, 2*time.Minute)

	first, err := d.Dispatch(context.Background(), cs.ID, Trigger{Type: store.TriggerInitialRequest})
	require.NoError(t, err)
	require.Equal(t, OutcomeDispatched, first.Outcome)

	second, err := d.Dispatch(context.Background(), cs.ID, Trigger{Type: store.TriggerManual})
	require.NoError(t, err)
	assert.Equal(t, OutcomeActiveRunExists, second.Outcome)
	assert.Equal(t, first.RunID, second.RunID)
}

func TestIntegration_Dispatch_DuplicateScheduledKeyDeduped(t *testing.T) {
	client := util.SetupTestDatabase(t)
	cs := insertTestCase(t, client, store.CaseStatusAwaitingResponse)
	d := NewDispatcher(client, 2*time.Minute)

	scheduledKey := fmt.Sprintf("followup:%d:1:2026-01-01", cs.ID)

	first, err := d.Dispatch(context.Background(), cs.ID, Trigger{
		Type:         store.TriggerFollowup,
		ScheduledKey: &scheduledKey,
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeDispatched, first.Outcome)

	// Move the run to a terminal state so the active-run check doesn't
	// short-circuit before the scheduled_key uniqueness check fires.
	_, err = client.DB().ExecContext(context.Background(), `UPDATE agent_runs SET status = 'completed' WHERE id = $1`, first.RunID)
	require.NoError(t, err)

	second, err := d.Dispatch(context.Background(), cs.ID, Trigger{
		Type:         store.TriggerFollowup,
		ScheduledKey: &scheduledKey,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeActiveRunExists, second.Outcome)
}
