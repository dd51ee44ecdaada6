package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/foiacase/caseruntime/pkg/metrics"
	"github.com/foiacase/caseruntime/pkg/runengine"
	"github.com/foiacase/caseruntime/pkg/store"
)

// dispatchDueFollowups claims each due FollowupSchedule row and dispatches
// a follow-up run for its case, per spec.md §4.7 (every 5 min by
// default). MarkFollowupProcessing is the single-flight guard: a
// followup a second replica already claimed this tick is silently
// skipped rather than double-dispatched.
func (s *Scheduler) dispatchDueFollowups(ctx context.Context) {
	due, err := s.client.ListDueFollowups(ctx, time.Now())
	if err != nil {
		slog.Error("scheduler: list due followups failed", "error", err)
		return
	}

	for _, f := range due {
		claimed, err := s.client.MarkFollowupProcessing(ctx, f.CaseID)
		if err != nil {
			slog.Error("scheduler: mark followup processing failed", "case_id", f.CaseID, "error", err)
			continue
		}
		if !claimed {
			continue
		}

		scheduledKey := fmt.Sprintf("followup:%d:%d", f.CaseID, f.FollowupCount)
		result, err := s.dispatcher.Dispatch(ctx, f.CaseID, runengine.Trigger{
			Type:         store.TriggerFollowup,
			ScheduledKey: &scheduledKey,
		})
		if err != nil {
			slog.Error("scheduler: dispatch followup failed", "case_id", f.CaseID, "error", err)
			continue
		}
		metrics.RecordScheduledTrigger(string(result.Outcome))
		slog.Info("scheduler: dispatched followup", "case_id", f.CaseID, "run_id", result.RunID, "outcome", result.Outcome)
	}
}

// reapStuckPortalTasks finds PENDING portal tasks older than 24h and
// escalates them to the phone call queue, per spec.md §4.7's
// stuck-portal reaper: a human who never acted on a portal task is
// treated the same as a case that needs a phone follow-up.
func (s *Scheduler) reapStuckPortalTasks(ctx context.Context) {
	cutoff := time.Now().Add(-24 * time.Hour)
	stuck, err := s.client.ListStuckPortalTasks(ctx, cutoff)
	if err != nil {
		slog.Error("scheduler: list stuck portal tasks failed", "error", err)
		return
	}

	for _, t := range stuck {
		if err := s.client.UpdatePortalTaskStatus(ctx, t.ID, store.PortalTaskStatusStuck, nil); err != nil {
			slog.Error("scheduler: mark portal task stuck failed", "task_id", t.ID, "error", err)
			continue
		}
		if _, err := s.client.EnqueuePhoneCall(ctx, t.CaseID, fmt.Sprintf("portal task %d pending over 24h", t.ID)); err != nil {
			slog.Error("scheduler: enqueue phone call for stuck portal task failed", "task_id", t.ID, "error", err)
			continue
		}
		slog.Info("scheduler: escalated stuck portal task to phone queue", "task_id", t.ID, "case_id", t.CaseID)
	}
}

// sweepDeadlines dispatches a run for every case whose next_due_at has
// passed and has no active run, per spec.md §4.7. The dispatcher's own
// active-run check covers the race against an organically-triggered run
// landing between the list and the dispatch.
func (s *Scheduler) sweepDeadlines(ctx context.Context) {
	now := time.Now()
	due, err := s.client.ListCasesWithDueDeadlines(ctx, now)
	if err != nil {
		slog.Error("scheduler: list cases with due deadlines failed", "error", err)
		return
	}

	for _, cs := range due {
		scheduledKey := fmt.Sprintf("deadline:%d:%d", cs.ID, cs.NextDueAt.Unix())
		result, err := s.dispatcher.Dispatch(ctx, cs.ID, runengine.Trigger{
			Type:          store.TriggerDeadlineEscalation,
			ScheduledKey:  &scheduledKey,
			AutopilotMode: cs.AutopilotMode,
		})
		if err != nil {
			slog.Error("scheduler: dispatch deadline escalation failed", "case_id", cs.ID, "error", err)
			continue
		}
		metrics.RecordScheduledTrigger(string(result.Outcome))
		slog.Info("scheduler: dispatched deadline escalation", "case_id", cs.ID, "run_id", result.RunID, "outcome", result.Outcome)
	}
}

// pruneRetention deletes ledger rows and clears terminal proposals'
// checkpoint blobs past their retention windows, per spec.md §4.7's
// nightly retention sweep.
func (s *Scheduler) pruneRetention(ctx context.Context) {
	ledgerCutoff := time.Now().AddDate(0, 0, -s.cfg.LedgerRetentionDays)
	prunedLedger, err := s.client.PruneLedgerOlderThan(ctx, ledgerCutoff)
	if err != nil {
		slog.Error("scheduler: prune ledger failed", "error", err)
	} else if prunedLedger > 0 {
		slog.Info("scheduler: pruned ledger entries", "count", prunedLedger)
	}

	snapshotCutoff := time.Now().AddDate(0, 0, -s.cfg.SnapshotRetentionDays)
	prunedSnapshots, err := s.client.PruneProposalSnapshotsOlderThan(ctx, snapshotCutoff)
	if err != nil {
		slog.Error("scheduler: prune proposal snapshots failed", "error", err)
	} else if prunedSnapshots > 0 {
		slog.Info("scheduler: pruned proposal snapshots", "count", prunedSnapshots)
	}

	caseCutoff := time.Now().AddDate(0, 0, -s.cfg.CaseRetentionDays)
	ids, err := s.client.ListCaseIDsEligibleForRetention(ctx, caseCutoff)
	if err != nil {
		slog.Error("scheduler: list cases eligible for retention failed", "error", err)
		return
	}
	for _, id := range ids {
		if err := s.client.SoftDeleteCase(ctx, id); err != nil {
			slog.Error("scheduler: soft delete case failed", "case_id", id, "error", err)
		}
	}
	if len(ids) > 0 {
		slog.Info("scheduler: soft-deleted terminal cases past retention window", "count", len(ids))
	}
}
