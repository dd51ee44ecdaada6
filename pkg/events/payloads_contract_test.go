package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCaseChannelPayloads_ContainCaseID is a contract test between the Go
// backend and any WebSocket client. Clients route incoming events by
// inspecting `data.case_id` in the JSON payload. ANY payload broadcast on
// a case-specific channel (case:{id}) MUST include a non-empty `case_id`
// field — otherwise a subscriber watching multiple cases at once cannot
// tell which case the event belongs to.
//
// If you add a new payload that goes through a case channel, add it here.
func TestCaseChannelPayloads_ContainCaseID(t *testing.T) {
	const testCaseID int64 = 42

	tests := []struct {
		name    string
		payload any
	}{
		{
			name: "CaseTransitionPayload",
			payload: CaseTransitionPayload{
				Type:          EventTypeCaseTransition,
				CaseID:        testCaseID,
				Event:         "CASE_SENT",
				Status:        "sent",
				RequiresHuman: false,
				Timestamp:     "2026-01-01T00:00:00Z",
			},
		},
		{
			name: "RunStatusPayload",
			payload: RunStatusPayload{
				Type:      EventTypeRunStatus,
				RunID:     7,
				CaseID:    testCaseID,
				Status:    "running",
				Timestamp: "2026-01-01T00:00:00Z",
			},
		},
		{
			name: "ProposalStatusPayload",
			payload: ProposalStatusPayload{
				Type:       EventTypeProposalStatus,
				ProposalID: 9,
				CaseID:     testCaseID,
				Status:     "pending_approval",
				Timestamp:  "2026-01-01T00:00:00Z",
			},
		},
		{
			name: "RunHeartbeatPayload",
			payload: RunHeartbeatPayload{
				Type:      EventTypeRunHeartbeat,
				RunID:     7,
				CaseID:    testCaseID,
				Timestamp: "2026-01-01T00:00:00Z",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.payload)
			require.NoError(t, err, "failed to marshal %s", tt.name)

			var parsed map[string]any
			require.NoError(t, json.Unmarshal(data, &parsed), "failed to unmarshal %s", tt.name)

			cid, ok := parsed["case_id"]
			assert.True(t, ok,
				"%s JSON is missing \"case_id\" field — subscribers cannot route this event", tt.name)
			assert.Equal(t, float64(testCaseID), cid,
				"%s case_id has wrong value", tt.name)
		})
	}
}
