package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/foiacase/caseruntime/pkg/models"
	"github.com/foiacase/caseruntime/pkg/runengine"
	"github.com/foiacase/caseruntime/pkg/store"
)

// caseIDParam parses the :id path parameter shared by every /cases/:id
// route. Writes a 400 and returns ok=false on a malformed id.
func caseIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid case id"})
		return 0, false
	}
	return id, true
}

// runInitialHandler handles POST /cases/:id/run-initial.
func (s *Server) runInitialHandler(c *gin.Context) {
	caseID, ok := caseIDParam(c)
	if !ok {
		return
	}

	var req models.RunInitialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	result, err := s.dispatcher.Dispatch(c.Request.Context(), caseID, runengine.Trigger{
		Type:          store.TriggerInitialRequest,
		AutopilotMode: store.AutopilotMode(req.AutopilotMode),
	})
	if err != nil {
		mapStoreError(c, err)
		return
	}
	writeDispatchResult(c, result)
}

// runInboundHandler handles POST /cases/:id/run-inbound. ForceNewRun
// cancels the in-flight run before retrying the dispatch once, the only
// caller of WorkerPool.CancelRun outside the reaper — a reviewer who
// decides a stuck run should be abandoned in favor of the new message.
func (s *Server) runInboundHandler(c *gin.Context) {
	caseID, ok := caseIDParam(c)
	if !ok {
		return
	}

	var req models.RunInboundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	trig := runengine.Trigger{
		Type:             store.TriggerInboundMessage,
		TriggerMessageID: &req.MessageID,
		AutopilotMode:    store.AutopilotMode(req.AutopilotMode),
	}

	result, err := s.dispatcher.Dispatch(c.Request.Context(), caseID, trig)
	if err != nil {
		mapStoreError(c, err)
		return
	}

	if req.ForceNewRun && result.Outcome == runengine.OutcomeActiveRunExists && s.workerPool != nil {
		s.workerPool.CancelRun(result.RunID)
		result, err = s.dispatcher.Dispatch(c.Request.Context(), caseID, trig)
		if err != nil {
			mapStoreError(c, err)
			return
		}
	}

	writeDispatchResult(c, result)
}

// writeDispatchResult maps a DispatchResult onto the 202/409 contract
// spec.md §6 specifies for the run-dispatching endpoints.
func writeDispatchResult(c *gin.Context, result runengine.DispatchResult) {
	switch result.Outcome {
	case runengine.OutcomeCaseNotFound:
		c.JSON(http.StatusNotFound, errorResponse{Error: "case not found"})
	case runengine.OutcomeAlreadySent:
		c.JSON(http.StatusConflict, errorResponse{Error: "case is terminal"})
	case runengine.OutcomeActiveRunExists:
		c.JSON(http.StatusConflict, models.ActiveRunResponse{
			ActiveRun: models.NewRunResponse(result.RunID, string(result.Outcome)),
		})
	default:
		c.JSON(http.StatusAccepted, gin.H{"run": models.NewRunResponse(result.RunID, string(result.Outcome))})
	}
}

// getCaseHandler handles GET /cases/:id, the supplemental case-read
// endpoint.
func (s *Server) getCaseHandler(c *gin.Context) {
	caseID, ok := caseIDParam(c)
	if !ok {
		return
	}
	cs, err := s.client.GetCase(c.Request.Context(), caseID)
	if err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewCaseResponse(cs))
}

// getCaseTimelineHandler handles GET /cases/:id/timeline, grounded on the
// teacher's GET /sessions/:id/timeline merge of interactions and stage
// executions — here a merge of ledger transitions and messages.
func (s *Server) getCaseTimelineHandler(c *gin.Context) {
	caseID, ok := caseIDParam(c)
	if !ok {
		return
	}

	if _, err := s.client.GetCase(c.Request.Context(), caseID); err != nil {
		mapStoreError(c, err)
		return
	}

	ledger, err := s.client.ListLedgerForCase(c.Request.Context(), caseID)
	if err != nil {
		mapStoreError(c, err)
		return
	}
	messages, err := s.client.ListMessagesForCase(c.Request.Context(), caseID)
	if err != nil {
		mapStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewTimelineResponse(caseID, ledger, messages))
}
