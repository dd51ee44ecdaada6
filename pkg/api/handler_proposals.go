package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/foiacase/caseruntime/pkg/metrics"
	"github.com/foiacase/caseruntime/pkg/models"
	"github.com/foiacase/caseruntime/pkg/runengine"
	"github.com/foiacase/caseruntime/pkg/store"
)

// decisionNote picks the free-text field RecordDecision persists as
// adjustment_instruction: ADJUST carries the reviewer's rewrite
// instruction, DISMISS carries the reviewer's reason, APPROVE carries
// neither.
func decisionNote(req models.DecisionRequest) string {
	switch req.Action {
	case "ADJUST":
		return req.Instruction
	case "DISMISS":
		return req.Reason
	default:
		return ""
	}
}

// decisionHandler handles POST /proposals/:id/decision. Resolves the
// proposal's case, records the decision, and dispatches a resume run that
// seeds the pipeline from the paused run's checkpoint (the stored
// proposal), per spec.md §4.5's resume semantics.
func (s *Server) decisionHandler(c *gin.Context) {
	proposalID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid proposal id"})
		return
	}

	var req models.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	proposal, err := s.client.GetProposal(c.Request.Context(), proposalID)
	if err != nil {
		mapStoreError(c, err)
		return
	}

	if err := s.client.RecordDecision(c.Request.Context(), proposalID, proposal.RunID, req.Action, decisionNote(req)); err != nil {
		if err == store.ErrDecisionAlreadyReceived {
			current, getErr := s.client.GetProposal(c.Request.Context(), proposalID)
			if getErr != nil {
				mapStoreError(c, getErr)
				return
			}
			c.JSON(http.StatusConflict, models.DecidedStatusResponse{CurrentStatus: string(current.Status)})
			return
		}
		mapStoreError(c, err)
		return
	}
	metrics.RecordDecision(req.Action)

	result, err := s.dispatcher.Dispatch(c.Request.Context(), proposal.CaseID, runengine.Trigger{
		Type: store.TriggerResume,
	})
	if err != nil {
		mapStoreError(c, err)
		return
	}
	writeDispatchResult(c, result)
}
