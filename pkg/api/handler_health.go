package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/foiacase/caseruntime/pkg/models"
)

// healthHandler handles GET /health, extended per the ambient stack to
// report DB reachability, worker pool health, and whether this replica's
// scheduler is wired, beyond the teacher's bare {"status":"ok"}.
func (s *Server) healthHandler(c *gin.Context) {
	resp := models.HealthResponse{
		Status:          "ok",
		SchedulerActive: s.scheduler != nil,
	}

	if err := s.client.Ping(c.Request.Context()); err != nil {
		resp.DBReachable = false
		resp.DBError = err.Error()
		resp.Status = "degraded"
	} else {
		resp.DBReachable = true
	}

	if s.workerPool != nil {
		resp.WorkerPool = s.workerPool.Health()
		if !resp.WorkerPool.IsHealthy {
			resp.Status = "degraded"
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
