package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	m := &dto.Metric{}
	if err := cv.WithLabelValues(labels...).Write(m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func getCounterPlainValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func getGaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}

func getHistogramCount(hv *prometheus.HistogramVec, labels ...string) uint64 {
	m := &dto.Metric{}
	observer := hv.WithLabelValues(labels...)
	if c, ok := observer.(prometheus.Metric); ok {
		if err := c.Write(m); err != nil {
			return 0
		}
		return m.GetHistogram().GetSampleCount()
	}
	return 0
}

func TestRecordRunComplete(t *testing.T) {
	RecordRunComplete("completed", 3*time.Second)

	val := getCounterValue(RunsTotal, "completed")
	if val < 1 {
		t.Errorf("RunsTotal = %f, want >= 1", val)
	}

	count := getHistogramCount(RunDurationSeconds, "completed")
	if count < 1 {
		t.Errorf("RunDurationSeconds sample count = %d, want >= 1", count)
	}
}

func TestActiveRunsGauge(t *testing.T) {
	ActiveRuns.Set(0)

	ActiveRuns.Inc()
	ActiveRuns.Inc()
	if val := getGaugeValue(ActiveRuns); val != 2 {
		t.Errorf("ActiveRuns = %f, want 2", val)
	}

	ActiveRuns.Dec()
	if val := getGaugeValue(ActiveRuns); val != 1 {
		t.Errorf("ActiveRuns after Dec = %f, want 1", val)
	}
}

func TestRecordProposalGatedAndAutoExecuted(t *testing.T) {
	RecordProposalGated("SEND_FOLLOWUP")
	RecordProposalAutoExecuted("SEND_FOLLOWUP")

	gated := getCounterValue(ProposalsTotal, "SEND_FOLLOWUP", "gated")
	auto := getCounterValue(ProposalsTotal, "SEND_FOLLOWUP", "auto_executed")
	if gated < 1 {
		t.Errorf("ProposalsTotal gated = %f, want >= 1", gated)
	}
	if auto < 1 {
		t.Errorf("ProposalsTotal auto_executed = %f, want >= 1", auto)
	}
}

func TestRecordDecision(t *testing.T) {
	RecordDecision("APPROVE")
	RecordDecision("APPROVE")

	val := getCounterValue(DecisionsTotal, "APPROVE")
	if val < 2 {
		t.Errorf("DecisionsTotal = %f, want >= 2", val)
	}
}

func TestRecordExecution(t *testing.T) {
	RecordExecution("email", "sent")
	RecordExecution("email", "failed")

	sent := getCounterValue(ExecutionsTotal, "email", "sent")
	failed := getCounterValue(ExecutionsTotal, "email", "failed")
	if sent < 1 {
		t.Errorf("ExecutionsTotal sent = %f, want >= 1", sent)
	}
	if failed < 1 {
		t.Errorf("ExecutionsTotal failed = %f, want >= 1", failed)
	}
}

func TestRecordOrphanRecovered(t *testing.T) {
	before := getCounterPlainValue(OrphanedRunsTotal)
	RecordOrphanRecovered()
	after := getCounterPlainValue(OrphanedRunsTotal)

	if after != before+1 {
		t.Errorf("OrphanedRunsTotal = %f, want %f", after, before+1)
	}
}

func TestRecordScheduledTrigger(t *testing.T) {
	RecordScheduledTrigger("dispatched")

	val := getCounterValue(ScheduledTriggersTotal, "dispatched")
	if val < 1 {
		t.Errorf("ScheduledTriggersTotal = %f, want >= 1", val)
	}
}

func TestProposalsTotalLabelIsolation(t *testing.T) {
	RecordProposalGated("SEND_CLARIFICATION")
	RecordProposalAutoExecuted("SEND_INITIAL_REQUEST")

	clarGated := getCounterValue(ProposalsTotal, "SEND_CLARIFICATION", "gated")
	clarAuto := getCounterValue(ProposalsTotal, "SEND_CLARIFICATION", "auto_executed")
	if clarGated < 1 {
		t.Error("SEND_CLARIFICATION gated should be >= 1")
	}
	if clarAuto != 0 {
		t.Errorf("SEND_CLARIFICATION auto_executed = %f, want 0", clarAuto)
	}
}
