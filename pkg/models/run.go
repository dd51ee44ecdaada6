package models

import "github.com/foiacase/caseruntime/pkg/store"

// RunInitialRequest is the body of POST /cases/:id/run-initial.
type RunInitialRequest struct {
	AutopilotMode string `json:"autopilotMode" binding:"required,oneof=AUTO SUPERVISED MANUAL"`
}

// RunInboundRequest is the body of POST /cases/:id/run-inbound.
type RunInboundRequest struct {
	MessageID     int64  `json:"messageId" binding:"required"`
	AutopilotMode string `json:"autopilotMode" binding:"required,oneof=AUTO SUPERVISED MANUAL"`
	ForceNewRun   bool   `json:"forceNewRun"`
}

// RunResponse is the 202 body returned by the run-dispatching endpoints.
type RunResponse struct {
	RunID   int64  `json:"runId"`
	Outcome string `json:"outcome"`
}

// ActiveRunResponse is the 409 body returned when a case already has a run
// in flight.
type ActiveRunResponse struct {
	ActiveRun RunResponse `json:"activeRun"`
}

// NewRunResponse builds the 202 body from a dispatch result.
func NewRunResponse(runID int64, outcome string) RunResponse {
	return RunResponse{RunID: runID, Outcome: outcome}
}

// DecisionRequest is the body of POST /proposals/:id/decision.
type DecisionRequest struct {
	Action      string `json:"action" binding:"required,oneof=APPROVE ADJUST DISMISS"`
	Instruction string `json:"instruction"`
	Reason      string `json:"reason"`
}

// DecidedStatusResponse is the 409 body returned when a proposal's
// decision was already recorded.
type DecidedStatusResponse struct {
	CurrentStatus string `json:"currentStatus"`
}

// WebhookInboundRequest is the provider-shaped payload POSTed to
// /webhooks/inbound.
type WebhookInboundRequest struct {
	From    string            `json:"from" binding:"required"`
	To      string            `json:"to"`
	Subject string            `json:"subject"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

// ProviderMessageID returns the Message-Id header to dedup on, if present.
func (r WebhookInboundRequest) ProviderMessageID() *string {
	if id, ok := r.Headers["Message-Id"]; ok && id != "" {
		return &id
	}
	if id, ok := r.Headers["message-id"]; ok && id != "" {
		return &id
	}
	return nil
}

// ToHeadersMap converts the request's headers into a store.JSONMap,
// folding the From/To envelope fields in so downstream consumers (the
// classifier) see them alongside any transport headers.
func (r WebhookInboundRequest) ToHeadersMap() store.JSONMap {
	m := make(store.JSONMap, len(r.Headers)+2)
	for k, v := range r.Headers {
		m[k] = v
	}
	m["from"] = r.From
	m["to"] = r.To
	return m
}
