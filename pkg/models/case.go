// Package models holds the request and response DTOs exposed by pkg/api,
// kept separate from pkg/store's persistence types the way the teacher
// keeps pkg/models distinct from its ent-generated client: a wire shape
// is free to diverge from a column layout.
package models

import "github.com/foiacase/caseruntime/pkg/store"

// CaseResponse is the wire projection of a store.Case, per the supplemental
// case-read endpoint.
type CaseResponse struct {
	ID                 int64    `json:"id"`
	Status             string   `json:"status"`
	Substatus          string   `json:"substatus"`
	RequiresHuman      bool     `json:"requiresHuman"`
	PauseReason        string   `json:"pauseReason,omitempty"`
	NextDueAt          *string  `json:"nextDueAt,omitempty"`
	AutopilotMode      string   `json:"autopilotMode"`
	Channel            string   `json:"channel"`
	AgencyName         string   `json:"agencyName"`
	AgencyJurisdiction string   `json:"agencyJurisdiction"`
	AgencyEmail        string   `json:"agencyEmail,omitempty"`
	PortalURL          string   `json:"portalUrl,omitempty"`
	RequestedRecords   []string `json:"requestedRecords"`
	SendDate           *string  `json:"sendDate,omitempty"`
	LastResponseDate   *string  `json:"lastResponseDate,omitempty"`
	CreatedAt          string   `json:"createdAt"`
	UpdatedAt          string   `json:"updatedAt"`
}

// NewCaseResponse projects a store.Case into its wire shape.
func NewCaseResponse(c *store.Case) CaseResponse {
	return CaseResponse{
		ID:                 c.ID,
		Status:             string(c.Status),
		Substatus:          c.Substatus,
		RequiresHuman:      c.RequiresHuman,
		PauseReason:        pauseReasonOrEmpty(c.PauseReason),
		NextDueAt:          formatTimePtr(c.NextDueAt),
		AutopilotMode:      string(c.AutopilotMode),
		Channel:            string(c.Channel),
		AgencyName:         c.AgencyName,
		AgencyJurisdiction: c.AgencyJurisdiction,
		AgencyEmail:        c.AgencyEmail,
		PortalURL:          c.PortalURL,
		RequestedRecords:   c.RequestedRecords,
		SendDate:           formatTimePtr(c.SendDate),
		LastResponseDate:   formatTimePtr(c.LastResponseDate),
		CreatedAt:          c.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:          c.UpdatedAt.UTC().Format(timeLayout),
	}
}

func pauseReasonOrEmpty(r store.PauseReason) string {
	if r == store.PauseReasonUnspecified {
		return ""
	}
	return string(r)
}
