package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRunEngineConfig(t *testing.T) {
	cfg := DefaultRunEngineConfig()

	assert.Equal(t, 5, cfg.WorkerCount)
	assert.Equal(t, 10, cfg.MaxConcurrentRuns)
	assert.Equal(t, 1*time.Second, cfg.PollInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.PollIntervalJitter)
	assert.Equal(t, 30*time.Second, cfg.OrphanDetectionInterval)
	assert.Equal(t, 60*time.Second, cfg.OrphanThreshold)
	assert.Equal(t, 10*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 120*time.Second, cfg.LockTTL)
	require.NoError(t, cfg.Validate())
}

func TestRunEngineConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RunEngineConfig)
		wantErr string
	}{
		{"nil config", nil, "run engine configuration is nil"},
		{"worker count too low", func(c *RunEngineConfig) { c.WorkerCount = 0 }, "worker_count must be between 1 and 50"},
		{"worker count too high", func(c *RunEngineConfig) { c.WorkerCount = 51 }, "worker_count must be between 1 and 50"},
		{"max concurrent zero", func(c *RunEngineConfig) { c.MaxConcurrentRuns = 0 }, "max_concurrent_runs must be at least 1"},
		{"poll interval zero", func(c *RunEngineConfig) { c.PollInterval = 0 }, "poll_interval must be positive"},
		{"jitter negative", func(c *RunEngineConfig) { c.PollIntervalJitter = -1 }, "poll_interval_jitter must be non-negative"},
		{"jitter too large", func(c *RunEngineConfig) { c.PollIntervalJitter = c.PollInterval }, "poll_interval_jitter must be less than poll_interval"},
		{"run timeout zero", func(c *RunEngineConfig) { c.RunTimeout = 0 }, "run_timeout must be positive"},
		{"orphan threshold zero", func(c *RunEngineConfig) { c.OrphanThreshold = 0 }, "orphan_threshold must be positive"},
		{
			"heartbeat exceeds orphan threshold",
			func(c *RunEngineConfig) { c.OrphanThreshold = time.Minute; c.HeartbeatInterval = time.Minute },
			"heartbeat_interval must be less than orphan_threshold",
		},
		{"lock ttl zero", func(c *RunEngineConfig) { c.LockTTL = 0 }, "lock_ttl must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg *RunEngineConfig
			if tt.mutate != nil {
				cfg = DefaultRunEngineConfig()
				tt.mutate(cfg)
			}

			err := cfg.Validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
