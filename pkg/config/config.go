// Package config loads and assembles application configuration: database
// connection settings from the environment, and policy/run-engine/executor/
// scheduler knobs from a YAML file with built-in defaults.
package config

// Config is the umbrella configuration object encapsulating all
// sub-configurations, mirroring the teacher's Config-of-registries pattern
// in pkg/config/config.go.
type Config struct {
	Database  DatabaseConfig
	RunEngine *RunEngineConfig
	Policy    *PolicyConfig
	Executor  *ExecutorConfig
	Scheduler *SchedulerConfig

	// PodID identifies this process for run ownership and worker naming,
	// mirroring the teacher's pod_id convention.
	PodID string

	// HTTPAddr is the address the API server listens on.
	HTTPAddr string

	// MetricsAddr is not read by the server; the Prometheus /metrics
	// endpoint is always served on the main router at HTTPAddr.
	MetricsAddr string
}

// Stats summarizes the loaded policy configuration for startup logging.
type Stats struct {
	AutoAllowlistSize  int
	ForbiddenPhraseSets int
	FollowupCadence    []int
}

// Stats returns configuration statistics for logging/monitoring, mirroring
// the teacher's Config.Stats().
func (c *Config) Stats() Stats {
	return Stats{
		AutoAllowlistSize:   len(c.Policy.AutoAllowlist),
		ForbiddenPhraseSets: len(c.Policy.Safety.ForbiddenPhrases),
		FollowupCadence:     c.Policy.FollowupCadenceDays,
	}
}
