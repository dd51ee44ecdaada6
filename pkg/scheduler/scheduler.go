// Package scheduler drives the recurring sweeps spec.md §4.7 describes:
// followup dispatch, stuck-portal-task escalation, deadline enforcement,
// and retention pruning. Lifecycle management (Start/Stop on a
// cancelable background goroutine) is generalized from
// pkg/cleanup.Service; the cadence itself is delegated to
// robfig/cron/v3 instead of a single fixed ticker, since the four
// sweeps run on four independent schedules.
package scheduler

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/foiacase/caseruntime/pkg/config"
	"github.com/foiacase/caseruntime/pkg/runengine"
	"github.com/foiacase/caseruntime/pkg/store"
)

// Scheduler owns the cron-driven sweeps and the leader-lease guard that
// keeps them at-most-once across replicas.
type Scheduler struct {
	client     *store.Client
	dispatcher *runengine.Dispatcher
	cfg        *config.SchedulerConfig
	cron       *cron.Cron
}

// New builds a Scheduler. The dispatcher is the same one the inbound
// webhook and manual-trigger endpoints use, so a followup or deadline
// sweep goes through the identical single-active-run check as any other
// trigger source.
func New(client *store.Client, dispatcher *runengine.Dispatcher, cfg *config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		client:     client,
		dispatcher: dispatcher,
		cfg:        cfg,
		cron:       cron.New(),
	}
}

// Start registers the four sweeps on their configured cron expressions
// and starts the cron scheduler's own background goroutine. Safe to call
// once; call Stop before building a new Scheduler to restart.
func (s *Scheduler) Start(ctx context.Context) error {
	jobs := []struct {
		name string
		spec string
		run  func(context.Context)
	}{
		{"followup_dispatch", s.cfg.FollowupDispatchCron, s.dispatchDueFollowups},
		{"stuck_portal_reaper", s.cfg.StuckPortalReaperCron, s.reapStuckPortalTasks},
		{"deadline_sweep", s.cfg.DeadlineSweepCron, s.sweepDeadlines},
		{"retention_prune", s.cfg.RetentionPruneCron, s.pruneRetention},
	}

	for _, j := range jobs {
		j := j
		if _, err := s.cron.AddFunc(j.spec, func() { s.runWithLease(ctx, j.name, j.run) }); err != nil {
			return err
		}
	}

	s.cron.Start()
	slog.Info("scheduler started", "lease_key", s.cfg.LeaderLeaseKey)
	return nil
}

// Stop halts the cron scheduler and waits for any in-flight job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("scheduler stopped")
}

// runWithLease acquires the named advisory lock for the duration of one
// job run so only one replica executes a given sweep on a given tick;
// every other replica's AddFunc invocation for the same tick finds the
// lock held and returns immediately.
func (s *Scheduler) runWithLease(ctx context.Context, jobName string, run func(context.Context)) {
	conn, err := s.client.DB().Conn(ctx)
	if err != nil {
		slog.Error("scheduler: failed to check out connection for lease", "job", jobName, "error", err)
		return
	}
	defer conn.Close()

	leaseKey := s.cfg.LeaderLeaseKey + ":" + jobName
	acquired, err := store.TryAcquireNamedLock(ctx, conn, leaseKey)
	if err != nil {
		slog.Error("scheduler: failed to acquire lease", "job", jobName, "error", err)
		return
	}
	if !acquired {
		slog.Debug("scheduler: lease held elsewhere, skipping tick", "job", jobName)
		return
	}
	defer func() {
		if err := store.ReleaseNamedLock(ctx, conn, leaseKey); err != nil {
			slog.Error("scheduler: failed to release lease", "job", jobName, "error", err)
		}
	}()

	run(ctx)
}
