package models

import (
	"encoding/json"

	"github.com/foiacase/caseruntime/pkg/store"
)

// TimelineEntry is a single chronological item in a case's timeline,
// merging ledger transitions and messages the way the teacher's
// GET /sessions/:id/timeline merges interactions and stage executions.
type TimelineEntry struct {
	Kind      string          `json:"kind"` // "transition" or "message"
	CreatedAt string          `json:"createdAt"`
	Event     string          `json:"event,omitempty"`
	Direction string          `json:"direction,omitempty"`
	Subject   string          `json:"subject,omitempty"`
	Body      string          `json:"body,omitempty"`
	Context   json.RawMessage `json:"context,omitempty"`
}

// TimelineResponse is the body of GET /cases/:id/timeline.
type TimelineResponse struct {
	CaseID  int64           `json:"caseId"`
	Entries []TimelineEntry `json:"entries"`
}

// NewTimelineResponse merges ledger entries and messages into a single
// chronologically ordered timeline. Both inputs are already ordered
// ascending by created_at, so a standard two-pointer merge preserves
// order without re-sorting.
func NewTimelineResponse(caseID int64, ledger []*store.EventLedgerEntry, messages []*store.Message) TimelineResponse {
	entries := make([]TimelineEntry, 0, len(ledger)+len(messages))
	i, j := 0, 0
	for i < len(ledger) || j < len(messages) {
		switch {
		case j >= len(messages) || (i < len(ledger) && ledger[i].CreatedAt.Before(messages[j].CreatedAt)):
			l := ledger[i]
			entries = append(entries, TimelineEntry{
				Kind:      "transition",
				CreatedAt: l.CreatedAt.UTC().Format(timeLayout),
				Event:     l.Event,
				Context:   json.RawMessage(l.Context),
			})
			i++
		default:
			m := messages[j]
			entries = append(entries, TimelineEntry{
				Kind:      "message",
				CreatedAt: m.CreatedAt.UTC().Format(timeLayout),
				Direction: string(m.Direction),
				Subject:   m.Subject,
				Body:      m.Body,
			})
			j++
		}
	}
	return TimelineResponse{CaseID: caseID, Entries: entries}
}
