package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCaseTransitionPayload(t *testing.T) {
	t.Run("carries the post-transition projection", func(t *testing.T) {
		payload := CaseTransitionPayload{
			Type:          EventTypeCaseTransition,
			CaseID:        42,
			Event:         "PROPOSAL_GATED",
			Status:        "needs_human_review",
			RequiresHuman: true,
			PauseReason:   "fee_quote",
			Timestamp:     time.Now().Format(time.RFC3339Nano),
		}

		assert.Equal(t, EventTypeCaseTransition, payload.Type)
		assert.EqualValues(t, 42, payload.CaseID)
		assert.Equal(t, "PROPOSAL_GATED", payload.Event)
		assert.True(t, payload.RequiresHuman)
		assert.Equal(t, "fee_quote", payload.PauseReason)
		assert.NotEmpty(t, payload.Timestamp)
	})

	t.Run("omits pause_reason when unset", func(t *testing.T) {
		payload := CaseTransitionPayload{
			Type:   EventTypeCaseTransition,
			CaseID: 1,
			Event:  "CASE_SENT",
			Status: "sent",
		}
		assert.Empty(t, payload.PauseReason)
	})
}

func TestRunStatusPayload(t *testing.T) {
	payload := RunStatusPayload{
		Type:      EventTypeRunStatus,
		RunID:     7,
		CaseID:    42,
		Status:    "running",
		Timestamp: time.Now().Format(time.RFC3339Nano),
	}

	assert.Equal(t, EventTypeRunStatus, payload.Type)
	assert.EqualValues(t, 7, payload.RunID)
	assert.EqualValues(t, 42, payload.CaseID)
	assert.Equal(t, "running", payload.Status)
}

func TestProposalStatusPayload(t *testing.T) {
	payload := ProposalStatusPayload{
		Type:       EventTypeProposalStatus,
		ProposalID: 9,
		CaseID:     42,
		Status:     "approved",
		Timestamp:  time.Now().Format(time.RFC3339Nano),
	}

	assert.Equal(t, EventTypeProposalStatus, payload.Type)
	assert.EqualValues(t, 9, payload.ProposalID)
	assert.Equal(t, "approved", payload.Status)
}

func TestRunHeartbeatPayload(t *testing.T) {
	payload := RunHeartbeatPayload{
		Type:   EventTypeRunHeartbeat,
		RunID:  7,
		CaseID: 42,
	}

	assert.Equal(t, EventTypeRunHeartbeat, payload.Type)
	assert.EqualValues(t, 7, payload.RunID)
	assert.EqualValues(t, 42, payload.CaseID)
}
