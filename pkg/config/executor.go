package config

import "time"

// SMTPConfig carries outbound email transport settings for the email
// provider, grounded on legator's EmailChannel field set.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	From     string `yaml:"from"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// PortalConfig carries the base settings for the portal submission
// provider's automated adapter.
type PortalConfig struct {
	AdapterBaseURL string        `yaml:"adapter_base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ExecutorConfig controls retry/backoff and rate limiting for C7.
type ExecutorConfig struct {
	MaxRetries          int           `yaml:"max_retries"`
	BackoffSeed         time.Duration `yaml:"backoff_seed"`
	OutboundRatePerHour int           `yaml:"outbound_rate_per_hour"`

	SMTP   SMTPConfig   `yaml:"smtp"`
	Portal PortalConfig `yaml:"portal"`
}

// DefaultExecutorConfig returns built-in executor defaults from spec.md §4.6.
func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		MaxRetries:          3,
		BackoffSeed:         30 * time.Second,
		OutboundRatePerHour: 3,
		Portal: PortalConfig{
			RequestTimeout: 30 * time.Second,
		},
	}
}

// SchedulerConfig carries the cron expressions for the sweeps named in
// spec.md §4.7 that are driven by robfig/cron/v3's standard 5-field syntax.
// The stale-run reaper runs on its own sub-minute ticker inside the run
// engine instead (see pkg/runengine), grounded on the teacher's
// pkg/queue/orphan.go, because a 30-second cadence does not fit the
// standard cron grid.
type SchedulerConfig struct {
	FollowupDispatchCron  string `yaml:"followup_dispatch_cron"`
	StuckPortalReaperCron string `yaml:"stuck_portal_reaper_cron"`
	DeadlineSweepCron     string `yaml:"deadline_sweep_cron"`
	RetentionPruneCron    string `yaml:"retention_prune_cron"`

	// LeaderLeaseKey is the advisory-lock key used to ensure each sweep runs
	// at-most-once across replicas, per spec.md §4.7 "distributed leader lease".
	LeaderLeaseKey string `yaml:"leader_lease_key"`

	LedgerRetentionDays                  int `yaml:"ledger_retention_days"`
	SnapshotRetentionDays                int `yaml:"snapshot_retention_days"`
	CaseRetentionDays                    int `yaml:"case_retention_days"`
	MaxFailedFollowupsForPhoneEscalation int `yaml:"max_failed_followups_for_phone_escalation"`
}

// DefaultSchedulerConfig returns built-in cadences from spec.md §4.7.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		FollowupDispatchCron:                 "*/5 * * * *",
		StuckPortalReaperCron:                "*/30 * * * *",
		DeadlineSweepCron:                    "0 3 * * *",
		RetentionPruneCron:                   "0 4 * * *",
		LeaderLeaseKey:                       "caseruntime-scheduler",
		LedgerRetentionDays:                  90,
		SnapshotRetentionDays:                30,
		CaseRetentionDays:                    180,
		MaxFailedFollowupsForPhoneEscalation: 3,
	}
}
