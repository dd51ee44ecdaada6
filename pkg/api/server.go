// Package api exposes the Case Runtime Core's HTTP surface: the four
// stimulus-ingestion routes from spec.md §6, the supplemental read
// routes, and the ambient health/metrics/event-stream endpoints. Routes
// are served by gin-gonic/gin, the framework this tree's go.mod and
// cmd/caseruntime/main.go actually wire (see DESIGN.md for why the
// echo-based generation captured alongside it in this package's history
// was dropped instead).
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/foiacase/caseruntime/pkg/events"
	"github.com/foiacase/caseruntime/pkg/masking"
	"github.com/foiacase/caseruntime/pkg/runengine"
	"github.com/foiacase/caseruntime/pkg/scheduler"
	"github.com/foiacase/caseruntime/pkg/store"
)

// Server wires the store, run engine, scheduler, event bus, and masking
// service into a gin.Engine, mirroring the construction shape of the
// teacher's pkg/api/server.go (a Set*-wired struct validated before
// Start, rather than a constructor with a dozen positional params).
type Server struct {
	client      *store.Client
	dispatcher  *runengine.Dispatcher
	workerPool  *runengine.WorkerPool
	scheduler   *scheduler.Scheduler
	connManager *events.ConnectionManager
	masker      *masking.Service

	router     *gin.Engine
	httpServer *http.Server
}

// NewServer constructs a Server with no wiring set; callers must use the
// Set* methods and then call ValidateWiring before Start.
func NewServer() *Server {
	return &Server{}
}

// SetStore wires the store client.
func (s *Server) SetStore(c *store.Client) *Server { s.client = c; return s }

// SetDispatcher wires the run dispatcher.
func (s *Server) SetDispatcher(d *runengine.Dispatcher) *Server { s.dispatcher = d; return s }

// SetWorkerPool wires the worker pool, used for health reporting.
func (s *Server) SetWorkerPool(p *runengine.WorkerPool) *Server { s.workerPool = p; return s }

// SetScheduler wires the scheduler, used for health reporting.
func (s *Server) SetScheduler(sc *scheduler.Scheduler) *Server { s.scheduler = sc; return s }

// SetConnManager wires the WebSocket connection manager for the event
// stream endpoint.
func (s *Server) SetConnManager(m *events.ConnectionManager) *Server { s.connManager = m; return s }

// SetMasker wires the PII masking service applied to inbound message
// bodies before they reach the store.
func (s *Server) SetMasker(m *masking.Service) *Server { s.masker = m; return s }

// ValidateWiring checks that every dependency this server needs to serve
// traffic has been set, the same fail-fast-at-startup discipline as the
// teacher's Server.ValidateWiring.
func (s *Server) ValidateWiring() error {
	if s.client == nil {
		return fmt.Errorf("api: store client not wired")
	}
	if s.dispatcher == nil {
		return fmt.Errorf("api: dispatcher not wired")
	}
	if s.masker == nil {
		return fmt.Errorf("api: masking service not wired")
	}
	return nil
}

// setupRoutes registers every route this package serves.
func (s *Server) setupRoutes() {
	s.router = gin.New()
	s.router.Use(gin.Recovery(), securityHeaders())

	s.router.GET("/health", s.healthHandler)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.POST("/cases/:id/run-initial", s.runInitialHandler)
	s.router.POST("/cases/:id/run-inbound", s.runInboundHandler)
	s.router.GET("/cases/:id", s.getCaseHandler)
	s.router.GET("/cases/:id/timeline", s.getCaseTimelineHandler)

	s.router.POST("/proposals/:id/decision", s.decisionHandler)

	s.router.POST("/webhooks/inbound", s.webhookInboundHandler)

	if s.connManager != nil {
		s.router.GET("/events/stream", s.eventStreamHandler)
	}
}

// Router exposes the underlying gin.Engine for tests (httptest against
// s.Router() rather than a live listener).
func (s *Server) Router() *gin.Engine {
	if s.router == nil {
		s.setupRoutes()
	}
	return s.router
}

// Start begins serving on addr. Blocks until Shutdown is called or the
// listener fails for a reason other than a graceful close.
func (s *Server) Start(addr string) error {
	s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown gracefully drains in-flight requests within the given timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
