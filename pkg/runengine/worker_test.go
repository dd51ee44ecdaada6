package runengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/foiacase/caseruntime/pkg/config"
	"github.com/foiacase/caseruntime/pkg/reducer"
	"github.com/foiacase/caseruntime/pkg/store"
)

func testRunEngineConfig() *config.RunEngineConfig {
	return &config.RunEngineConfig{
		WorkerCount:             5,
		MaxConcurrentRuns:       5,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		RunTimeout:              15 * time.Minute,
		GracefulShutdownTimeout: 15 * time.Minute,
		OrphanDetectionInterval: 5 * time.Minute,
		OrphanThreshold:         5 * time.Minute,
		HeartbeatInterval:       30 * time.Second,
		LockTTL:                 2 * time.Minute,
	}
}

func TestWorkerPollInterval(t *testing.T) {
	cfg := testRunEngineConfig()
	w := NewWorker("test-worker", nil, cfg, nil, nil, nil, nil)

	for i := 0; i < 100; i++ {
		d := w.pollInterval()
		assert.GreaterOrEqual(t, d, 500*time.Millisecond, "poll interval below minimum")
		assert.LessOrEqual(t, d, 1500*time.Millisecond, "poll interval above maximum")
	}
}

func TestWorkerPollIntervalNoJitter(t *testing.T) {
	cfg := testRunEngineConfig()
	cfg.PollIntervalJitter = 0
	w := NewWorker("test-worker", nil, cfg, nil, nil, nil, nil)

	for i := 0; i < 10; i++ {
		d := w.pollInterval()
		assert.Equal(t, 1*time.Second, d, "poll interval should equal base when jitter is 0")
	}
}

func TestWorkerHealth(t *testing.T) {
	cfg := testRunEngineConfig()
	w := NewWorker("worker-1", nil, cfg, nil, nil, nil, nil)

	h := w.Health()
	assert.Equal(t, "worker-1", h.ID)
	assert.Equal(t, string(WorkerStatusIdle), h.Status)
	assert.Zero(t, h.CurrentRunID)
	assert.Equal(t, 0, h.RunsProcessed)

	w.setStatus(WorkerStatusWorking, 42)
	h = w.Health()
	assert.Equal(t, string(WorkerStatusWorking), h.Status)
	assert.EqualValues(t, 42, h.CurrentRunID)

	w.setStatus(WorkerStatusIdle, 0)
	h = w.Health()
	assert.Equal(t, string(WorkerStatusIdle), h.Status)
	assert.Zero(t, h.CurrentRunID)
}

func TestWorker_PublishRunStatusNilPublisher(t *testing.T) {
	cfg := testRunEngineConfig()
	w := NewWorker("worker-1", nil, cfg, nil, nil, nil, nil)

	assert.NotPanics(t, func() {
		w.publishRunStatus(context.Background(), 1, 2, "running")
	})
}

func TestSynthesizeTimeoutOrCancelResult(t *testing.T) {
	t.Run("deadline exceeded", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
		defer cancel()
		time.Sleep(time.Millisecond)

		result := synthesizeTimeoutOrCancelResult(ctx)
		assert.Equal(t, reducer.EventRunFailed, result.Event)
		assert.Error(t, result.Err)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result := synthesizeTimeoutOrCancelResult(ctx)
		assert.Equal(t, reducer.EventRunFailed, result.Event)
		assert.ErrorIs(t, result.Err, context.Canceled)
	})
}

func TestTerminalRunStatusFor(t *testing.T) {
	assert.Equal(t, string(store.RunStatusCompleted), terminalRunStatusFor(reducer.EventRunCompleted))
	assert.Equal(t, string(store.RunStatusWaiting), terminalRunStatusFor(reducer.EventRunWaiting))
	assert.Equal(t, string(store.RunStatusFailed), terminalRunStatusFor(reducer.EventRunFailed))
	assert.Equal(t, string(store.RunStatusFailed), terminalRunStatusFor(reducer.EventRunStaleCleaned))
}
