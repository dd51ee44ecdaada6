package api

import (
	"net/http"
	"regexp"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/foiacase/caseruntime/pkg/models"
	"github.com/foiacase/caseruntime/pkg/runengine"
	"github.com/foiacase/caseruntime/pkg/store"
)

// toCaseIDPattern extracts the case id embedded in a plus-addressed
// inbound recipient, e.g. "requests+42@ouragency.org" routes to case 42.
// Every outbound message this system sends carries its case's
// plus-address as the Reply-To, so an inbound reply always lands on a
// recognizable "to".
var toCaseIDPattern = regexp.MustCompile(`\+(\d+)@`)

// caseIDFromRecipient resolves the case a webhook payload belongs to from
// its "to" envelope field.
func caseIDFromRecipient(to string) (int64, bool) {
	m := toCaseIDPattern.FindStringSubmatch(to)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// webhookInboundHandler handles POST /webhooks/inbound. Masks PII in the
// message body before it ever reaches the store, idempotently inserts
// the Message (dedup on provider_message_id), and dispatches an
// inbound_message run, per spec.md §6.
func (s *Server) webhookInboundHandler(c *gin.Context) {
	var req models.WebhookInboundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	caseID, ok := caseIDFromRecipient(req.To)
	if !ok {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "could not resolve case from recipient address"})
		return
	}

	maskedBody := s.masker.Mask(req.Body)
	maskedSubject := s.masker.Mask(req.Subject)

	msg, inserted, err := s.client.InsertMessageIdempotent(c.Request.Context(), &store.Message{
		CaseID:            caseID,
		Direction:         store.DirectionInbound,
		ProviderMessageID: req.ProviderMessageID(),
		Subject:           maskedSubject,
		Body:              maskedBody,
		Headers:           req.ToHeadersMap(),
	})
	if err != nil {
		mapStoreError(c, err)
		return
	}

	if !inserted {
		// Duplicate delivery of a message already ingested; still report
		// the stimulus as accepted so the caller's retry logic doesn't
		// treat a dedup as a failure, but don't dispatch a second run for
		// the same message.
		c.JSON(http.StatusAccepted, gin.H{"messageId": msg.ID, "outcome": "duplicate"})
		return
	}

	result, err := s.dispatcher.Dispatch(c.Request.Context(), caseID, runengine.Trigger{
		Type:             store.TriggerInboundMessage,
		TriggerMessageID: &msg.ID,
	})
	if err != nil {
		mapStoreError(c, err)
		return
	}
	writeDispatchResult(c, result)
}
