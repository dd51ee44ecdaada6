package runengine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/foiacase/caseruntime/pkg/config"
	"github.com/foiacase/caseruntime/pkg/events"
	"github.com/foiacase/caseruntime/pkg/runtime"
	"github.com/foiacase/caseruntime/pkg/store"
)

// WorkerPool manages a pool of run engine workers plus the stale-run
// reaper, generalized from the teacher's pkg/queue.WorkerPool.
type WorkerPool struct {
	id           string
	client       *store.Client
	config       *config.RunEngineConfig
	transitioner *runtime.Transitioner
	executor     Executor
	publisher    *events.Publisher
	workers      []*Worker
	stopCh       chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup

	activeRuns map[int64]context.CancelFunc
	mu         sync.RWMutex
	started    bool

	reaper reaperState
}

// NewWorkerPool creates a new run engine worker pool. id identifies this
// process instance (a pod name, a hostname) for health reporting.
func NewWorkerPool(id string, client *store.Client, cfg *config.RunEngineConfig, transitioner *runtime.Transitioner, executor Executor, publisher *events.Publisher) *WorkerPool {
	return &WorkerPool{
		id:           id,
		client:       client,
		config:       cfg,
		transitioner: transitioner,
		executor:     executor,
		publisher:    publisher,
		workers:      make([]*Worker, 0, cfg.WorkerCount),
		stopCh:       make(chan struct{}),
		activeRuns:   make(map[int64]context.CancelFunc),
	}
}

// Start spawns worker goroutines and the stale-run reaper. Safe to call
// once; subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.started {
		slog.Warn("run engine pool already started, ignoring duplicate Start call", "id", p.id)
		return nil
	}
	p.started = true

	slog.Info("starting run engine pool", "id", p.id, "worker_count", p.config.WorkerCount)

	for i := 0; i < p.config.WorkerCount; i++ {
		workerID := fmt.Sprintf("%s-worker-%d", p.id, i)
		w := NewWorker(workerID, p.client, p.config, p.transitioner, p.executor, p, p.publisher)
		p.workers = append(p.workers, w)
		w.Start(ctx)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runStaleRunReaper(ctx)
	}()

	slog.Info("run engine pool started")
	return nil
}

// Stop signals all workers to finish their current run and exit, then
// stops the reaper.
func (p *WorkerPool) Stop() {
	slog.Info("stopping run engine pool gracefully")

	active := p.getActiveRunIDs()
	if len(active) > 0 {
		slog.Info("waiting for active runs to complete", "count", len(active), "run_ids", active)
	}

	for _, w := range p.workers {
		w.Stop()
	}

	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()

	slog.Info("run engine pool stopped gracefully")
}

// RegisterRun stores a cancel function for manual/API-triggered cancellation.
func (p *WorkerPool) RegisterRun(runID int64, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeRuns[runID] = cancel
}

// UnregisterRun removes the cancel function once a run reaches a terminal state.
func (p *WorkerPool) UnregisterRun(runID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.activeRuns, runID)
}

// CancelRun triggers context cancellation for a run on this process.
// Returns true if the run was found here.
func (p *WorkerPool) CancelRun(runID int64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cancel, ok := p.activeRuns[runID]; ok {
		cancel()
		return true
	}
	return false
}

// Health returns the pool's current health snapshot.
func (p *WorkerPool) Health() *PoolHealth {
	ctx := context.Background()

	queueDepth, errQ := p.client.CountRunsByStatus(ctx, store.RunStatusQueued)
	if errQ != nil {
		slog.Error("failed to query queue depth for health check", "id", p.id, "error", errQ)
	}

	activeRuns, errA := p.client.CountRunsByStatus(ctx, store.RunStatusRunning)
	if errA != nil {
		slog.Error("failed to query active runs for health check", "id", p.id, "error", errA)
	}

	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, w := range p.workers {
		stats := w.Health()
		workerStats[i] = stats
		if stats.Status == string(WorkerStatusWorking) {
			activeWorkers++
		}
	}

	dbHealthy := errQ == nil && errA == nil
	isHealthy := len(p.workers) > 0 && activeRuns <= p.config.MaxConcurrentRuns && dbHealthy

	p.reaper.mu.Lock()
	lastScan := p.reaper.lastScan
	recovered := p.reaper.recovered
	p.reaper.mu.Unlock()

	var dbError string
	if !dbHealthy {
		switch {
		case errQ != nil:
			dbError = fmt.Sprintf("queue depth query failed: %v", errQ)
		case errA != nil:
			dbError = fmt.Sprintf("active runs query failed: %v", errA)
		}
	}

	return &PoolHealth{
		IsHealthy:        isHealthy,
		DBReachable:      dbHealthy,
		DBError:          dbError,
		WorkerID:         p.id,
		ActiveWorkers:    activeWorkers,
		TotalWorkers:     len(p.workers),
		ActiveRuns:       activeRuns,
		MaxConcurrent:    p.config.MaxConcurrentRuns,
		QueueDepth:       queueDepth,
		WorkerStats:      workerStats,
		LastOrphanScan:   lastScan,
		OrphansRecovered: recovered,
	}
}

func (p *WorkerPool) getActiveRunIDs() []int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]int64, 0, len(p.activeRuns))
	for id := range p.activeRuns {
		ids = append(ids, id)
	}
	return ids
}
