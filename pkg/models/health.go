package models

import "github.com/foiacase/caseruntime/pkg/runengine"

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status          string             `json:"status"`
	DBReachable     bool               `json:"dbReachable"`
	DBError         string             `json:"dbError,omitempty"`
	WorkerPool      *runengine.PoolHealth `json:"workerPool,omitempty"`
	SchedulerActive bool               `json:"schedulerActive"`
}
