package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateIfNeeded(t *testing.T) {
	t.Run("passes through normal payload", func(t *testing.T) {
		payload, _ := json.Marshal(CaseTransitionPayload{
			Type:   EventTypeCaseTransition,
			CaseID: 42,
			Status: "sent",
		})

		result, err := truncateIfNeeded(string(payload))
		require.NoError(t, err)
		assert.Contains(t, result, EventTypeCaseTransition)
		assert.Contains(t, result, `"case_id":42`)
	})

	t.Run("truncates oversized payload", func(t *testing.T) {
		longReason := make([]byte, 8000)
		for i := range longReason {
			longReason[i] = 'a'
		}
		payload, _ := json.Marshal(CaseTransitionPayload{
			Type:        EventTypeCaseTransition,
			CaseID:      42,
			Event:       "CASE_WRONG_AGENCY",
			PauseReason: string(longReason),
		})

		result, err := truncateIfNeeded(string(payload))
		require.NoError(t, err)
		assert.Contains(t, result, "truncated")
		assert.Less(t, len(result), 8000)
	})

	t.Run("does not truncate small payload", func(t *testing.T) {
		payload, _ := json.Marshal(RunHeartbeatPayload{
			Type:   EventTypeRunHeartbeat,
			RunID:  7,
			CaseID: 42,
		})

		result, err := truncateIfNeeded(string(payload))
		require.NoError(t, err)
		assert.NotContains(t, result, "truncated")
	})

	t.Run("truncated payload preserves key fields", func(t *testing.T) {
		longReason := make([]byte, 8000)
		for i := range longReason {
			longReason[i] = 'x'
		}
		payload, _ := json.Marshal(CaseTransitionPayload{
			Type:        EventTypeCaseTransition,
			CaseID:      789,
			PauseReason: string(longReason),
		})

		result, err := truncateIfNeeded(string(payload))
		require.NoError(t, err)

		assert.Contains(t, result, EventTypeCaseTransition)
		assert.Contains(t, result, `"case_id":789`)
		assert.Contains(t, result, `"truncated":true`)
		assert.NotContains(t, result, "xxxx")
	})

	t.Run("boundary: payload just under limit is not truncated", func(t *testing.T) {
		base, _ := json.Marshal(CaseTransitionPayload{Type: "t"})
		reasonSize := 7900 - len(base) - 20
		reason := make([]byte, reasonSize)
		for i := range reason {
			reason[i] = 'b'
		}
		payload, _ := json.Marshal(CaseTransitionPayload{Type: "t", PauseReason: string(reason)})
		require.LessOrEqual(t, len(payload), 7900, "test payload should be under limit")

		result, err := truncateIfNeeded(string(payload))
		require.NoError(t, err)
		assert.NotContains(t, result, "truncated")
	})

	t.Run("empty JSON object", func(t *testing.T) {
		result, err := truncateIfNeeded("{}")
		require.NoError(t, err)
		assert.Equal(t, "{}", result)
	})
}

func TestInjectDBEventIDAndTruncate(t *testing.T) {
	t.Run("injects db_event_id into normal payload", func(t *testing.T) {
		payload, _ := json.Marshal(CaseTransitionPayload{
			Type:   EventTypeCaseTransition,
			CaseID: 1,
			Event:  "CASE_SENT",
		})

		result, err := injectDBEventIDAndTruncate(payload, 42)
		require.NoError(t, err)
		assert.Contains(t, result, `"db_event_id":42`)
		assert.Contains(t, result, "CASE_SENT")
	})

	t.Run("truncated payload preserves db_event_id", func(t *testing.T) {
		longReason := make([]byte, 8000)
		for i := range longReason {
			longReason[i] = 'x'
		}
		payload, _ := json.Marshal(CaseTransitionPayload{
			Type:        EventTypeCaseTransition,
			CaseID:      789,
			PauseReason: string(longReason),
		})

		result, err := injectDBEventIDAndTruncate(payload, 42)
		require.NoError(t, err)
		assert.Contains(t, result, `"truncated":true`)
		assert.Contains(t, result, `"db_event_id":42`)
		assert.Contains(t, result, `"case_id":789`)
	})

	t.Run("truncated payload without case_id still carries db_event_id", func(t *testing.T) {
		longMsg := make([]byte, 8000)
		for i := range longMsg {
			longMsg[i] = 'x'
		}
		payload, _ := json.Marshal(struct {
			Type string `json:"type"`
			Blob string `json:"blob"`
		}{Type: "run.heartbeat", Blob: string(longMsg)})

		result, err := injectDBEventIDAndTruncate(payload, 99)
		require.NoError(t, err)
		assert.Contains(t, result, `"truncated":true`)
		assert.Contains(t, result, `"db_event_id":99`)
	})
}

func TestNewPublisher(t *testing.T) {
	publisher := NewPublisher(nil)
	assert.NotNil(t, publisher)
	assert.Nil(t, publisher.db)
}

func TestRunStatusPayload_JSON(t *testing.T) {
	payload := RunStatusPayload{
		Type:      EventTypeRunStatus,
		RunID:     456,
		CaseID:    123,
		Status:    "running",
		Timestamp: "2026-02-10T12:00:00Z",
	}

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	var decoded RunStatusPayload
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, EventTypeRunStatus, decoded.Type)
	assert.EqualValues(t, 123, decoded.CaseID)
	assert.EqualValues(t, 456, decoded.RunID)
	assert.Equal(t, "running", decoded.Status)
	assert.Equal(t, "2026-02-10T12:00:00Z", decoded.Timestamp)
}

func TestProposalStatusPayload_JSON(t *testing.T) {
	payload := ProposalStatusPayload{
		Type:       EventTypeProposalStatus,
		ProposalID: 100,
		CaseID:     200,
		Status:     "pending_approval",
		Timestamp:  "2026-02-13T10:00:00Z",
	}

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	var decoded ProposalStatusPayload
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, EventTypeProposalStatus, decoded.Type)
	assert.EqualValues(t, 200, decoded.CaseID)
	assert.EqualValues(t, 100, decoded.ProposalID)
	assert.Equal(t, "pending_approval", decoded.Status)
}
