package config

import (
	"fmt"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// PolicyYAMLConfig is the top-level shape of the policy YAML file. Only the
// sections present in the file override the built-in defaults returned by
// Default*Config(), mirroring the teacher's load-then-mergo.Merge pattern in
// pkg/config/loader.go.
type PolicyYAMLConfig struct {
	Policy    *PolicyConfig    `yaml:"policy"`
	Executor  *ExecutorConfig  `yaml:"executor"`
	Scheduler *SchedulerConfig `yaml:"scheduler"`
	RunEngine *RunEngineConfig `yaml:"run_engine"`
}

// Load assembles a Config from the environment (database connection) and an
// optional policy YAML file (routing thresholds, safety lists, cron
// cadences, executor/run-engine tuning). A missing policyPath is not an
// error — built-in defaults are used, the same tolerance the teacher shows
// toward optional system.yaml sections.
func Load(podID, httpAddr, policyPath string) (*Config, error) {
	dbCfg, err := LoadDatabaseConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load database config: %w", err)
	}

	policy := DefaultPolicyConfig()
	executor := DefaultExecutorConfig()
	scheduler := DefaultSchedulerConfig()
	runEngine := DefaultRunEngineConfig()

	if policyPath != "" {
		raw, err := os.ReadFile(policyPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read policy config %s: %w", policyPath, err)
			}
		} else {
			expanded := ExpandEnv(raw)

			var yamlCfg PolicyYAMLConfig
			if err := yaml.Unmarshal(expanded, &yamlCfg); err != nil {
				return nil, fmt.Errorf("failed to parse policy config %s: %w", policyPath, err)
			}

			if yamlCfg.Policy != nil {
				if err := mergo.Merge(policy, yamlCfg.Policy, mergo.WithOverride); err != nil {
					return nil, fmt.Errorf("failed to merge policy config: %w", err)
				}
			}
			if yamlCfg.Executor != nil {
				if err := mergo.Merge(executor, yamlCfg.Executor, mergo.WithOverride); err != nil {
					return nil, fmt.Errorf("failed to merge executor config: %w", err)
				}
			}
			if yamlCfg.Scheduler != nil {
				if err := mergo.Merge(scheduler, yamlCfg.Scheduler, mergo.WithOverride); err != nil {
					return nil, fmt.Errorf("failed to merge scheduler config: %w", err)
				}
			}
			if yamlCfg.RunEngine != nil {
				if err := mergo.Merge(runEngine, yamlCfg.RunEngine, mergo.WithOverride); err != nil {
					return nil, fmt.Errorf("failed to merge run engine config: %w", err)
				}
			}
		}
	}

	executor.OutboundRatePerHour = policy.OutboundRatePerHour

	return &Config{
		Database:  dbCfg,
		RunEngine: runEngine,
		Policy:    policy,
		Executor:  executor,
		Scheduler: scheduler,
		PodID:     podID,
		HTTPAddr:  httpAddr,
	}, nil
}
