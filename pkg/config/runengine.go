package config

import (
	"fmt"
	"time"
)

// RunEngineConfig controls how the run engine polls, claims, and reaps runs.
// Named and shaped after the teacher's QueueConfig, generalized from
// "sessions" to "runs" for the case runtime.
type RunEngineConfig struct {
	// WorkerCount is the number of worker goroutines per process.
	WorkerCount int `yaml:"worker_count"`

	// MaxConcurrentRuns is the global limit of concurrently running pipeline
	// executions across all processes, enforced by a database COUNT(*) check.
	MaxConcurrentRuns int `yaml:"max_concurrent_runs"`

	// PollInterval is the base interval for checking claimable runs.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is the random jitter applied to PollInterval.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// RunTimeout is the hard cap on a single pipeline execution (spec T_lock
	// governs the advisory lock; RunTimeout governs the worker's own context).
	RunTimeout time.Duration `yaml:"run_timeout"`

	// GracefulShutdownTimeout bounds how long Stop() waits for active runs.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`

	// HeartbeatInterval is how often a running pipeline updates heartbeat_at.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// OrphanDetectionInterval is how often the stale-run reaper sweeps.
	OrphanDetectionInterval time.Duration `yaml:"orphan_detection_interval"`

	// OrphanThreshold (T_reap) is how long a run can go without a heartbeat
	// before it is considered stale.
	OrphanThreshold time.Duration `yaml:"orphan_threshold"`

	// LockTTL (T_lock) bounds how long a run may hold the advisory lock
	// before the reaper is entitled to reclaim it.
	LockTTL time.Duration `yaml:"lock_ttl"`
}

// DefaultRunEngineConfig returns the built-in run engine defaults, matching
// spec.md §6's configuration table.
func DefaultRunEngineConfig() *RunEngineConfig {
	return &RunEngineConfig{
		WorkerCount:             5,
		MaxConcurrentRuns:       10,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		RunTimeout:              5 * time.Minute,
		GracefulShutdownTimeout: 5 * time.Minute,
		HeartbeatInterval:       10 * time.Second,
		OrphanDetectionInterval: 30 * time.Second,
		OrphanThreshold:         60 * time.Second,
		LockTTL:                 120 * time.Second,
	}
}

// Validate checks the run engine configuration for internal consistency,
// mirroring the teacher's NewValidator().validateQueue() checks.
func (c *RunEngineConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("run engine configuration is nil")
	}
	if c.WorkerCount < 1 || c.WorkerCount > 50 {
		return fmt.Errorf("worker_count must be between 1 and 50")
	}
	if c.MaxConcurrentRuns < 1 {
		return fmt.Errorf("max_concurrent_runs must be at least 1")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.PollIntervalJitter < 0 {
		return fmt.Errorf("poll_interval_jitter must be non-negative")
	}
	if c.PollIntervalJitter >= c.PollInterval {
		return fmt.Errorf("poll_interval_jitter must be less than poll_interval")
	}
	if c.RunTimeout <= 0 {
		return fmt.Errorf("run_timeout must be positive")
	}
	if c.GracefulShutdownTimeout <= 0 {
		return fmt.Errorf("graceful_shutdown_timeout must be positive")
	}
	if c.OrphanDetectionInterval <= 0 {
		return fmt.Errorf("orphan_detection_interval must be positive")
	}
	if c.OrphanThreshold <= 0 {
		return fmt.Errorf("orphan_threshold must be positive")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive")
	}
	if c.HeartbeatInterval >= c.OrphanThreshold {
		return fmt.Errorf("heartbeat_interval must be less than orphan_threshold")
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("lock_ttl must be positive")
	}
	return nil
}
