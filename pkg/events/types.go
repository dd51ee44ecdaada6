// Package events provides real-time event delivery via PostgreSQL
// NOTIFY/LISTEN for cross-process distribution, and is the mechanism
// pkg/runtime uses to tell the dispatcher, run engine, and any HTTP
// event-stream subscribers that a case transitioned.
//
// ════════════════════════════════════════════════════════════════
// Case Event Lifecycle
// ════════════════════════════════════════════════════════════════
//
// case.transition is fire-and-forget: it is published once a runtime
// transition's database transaction commits, carrying the post-transition
// projection (status, requires_human, pause_reason). There is no
// "started" counterpart — the transaction either commits entirely or not
// at all, so there is nothing partial to stream.
//
// run.status and proposal.status follow the same fire-and-forget shape,
// published on run and proposal status changes respectively so a
// subscriber watching a case channel sees the full picture without
// polling.
//
// run.heartbeat is transient (NOTIFY only, no DB persistence) — a
// high-frequency signal the run engine emits per spec.md's heartbeat
// requirement, not meant to be replayed on reconnect.
// ════════════════════════════════════════════════════════════════
package events

import "strconv"

// Persistent event types (stored in DB + NOTIFY).
const (
	EventTypeCaseTransition = "case.transition"
	EventTypeRunStatus      = "run.status"
	EventTypeProposalStatus = "proposal.status"
)

// Transient event types (NOTIFY only, no DB persistence).
const (
	EventTypeRunHeartbeat = "run.heartbeat"
)

// GlobalCasesChannel is the channel for case-list-level status events,
// subscribed to by a dashboard view watching every case at once.
const GlobalCasesChannel = "cases"

// CaseChannel returns the channel name for a specific case's events.
// Format: "case:{case_id}"
func CaseChannel(caseID int64) string {
	return "case:" + strconv.FormatInt(caseID, 10)
}

// ClientMessage is the JSON structure for client to server WebSocket
// messages on the event-stream endpoint.
type ClientMessage struct {
	Action      string `json:"action"`                  // "subscribe", "unsubscribe", "catchup", "ping"
	Channel     string `json:"channel,omitempty"`       // Channel name (e.g., "case:42")
	LastEventID *int   `json:"last_event_id,omitempty"` // For catchup
}
