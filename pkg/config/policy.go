package config

// AutopilotMode is the policy knob on a case controlling how much the
// Decision Pipeline is allowed to auto-execute.
type AutopilotMode string

// Autopilot modes, per spec.md GLOSSARY.
const (
	AutopilotAuto       AutopilotMode = "AUTO"
	AutopilotSupervised AutopilotMode = "SUPERVISED"
	AutopilotManual     AutopilotMode = "MANUAL"
)

// SafetyConfig carries per-action-type forbidden phrase lists and word
// limits consulted by the safety_check pipeline node.
type SafetyConfig struct {
	ForbiddenPhrases map[string][]string `yaml:"forbidden_phrases"`
	WordLimits       map[string]int      `yaml:"word_limits"`
}

// PolicyConfig carries the autopilot and routing policy knobs named in
// spec.md §6. Loaded from YAML the way the teacher's AgentRegistry/
// ChainRegistry/MCPServerRegistry load their definitions from YAML files.
type PolicyConfig struct {
	FeeAutoApproveMax    int `yaml:"fee_auto_approve_max"`
	FeeNegotiateThreshold int `yaml:"fee_negotiate_threshold"`

	AutopilotDefault AutopilotMode `yaml:"autopilot_default"`

	FollowupCadenceDays []int `yaml:"followup_cadence_days"`
	MaxFollowups        int   `yaml:"max_followups"`

	OutboundRatePerHour int `yaml:"outbound_rate_per_hour"`

	Safety SafetyConfig `yaml:"safety"`

	// AutoAllowlist names actions permitted to auto-execute under
	// SUPERVISED autopilot, per spec.md §4.3 gating policy.
	AutoAllowlist []string `yaml:"auto_allowlist"`
}

// DefaultPolicyConfig returns the built-in policy defaults from spec.md §6.
func DefaultPolicyConfig() *PolicyConfig {
	return &PolicyConfig{
		FeeAutoApproveMax:     100,
		FeeNegotiateThreshold: 500,
		AutopilotDefault:      AutopilotSupervised,
		FollowupCadenceDays:   []int{7, 14, 21},
		MaxFollowups:          3,
		OutboundRatePerHour:   3,
		AutoAllowlist: []string{
			"ACCEPT_FEE",
			"SEND_FOLLOWUP",
			"SEND_INITIAL_REQUEST",
		},
		Safety: SafetyConfig{
			ForbiddenPhrases: map[string][]string{
				"SEND_REBUTTAL": {"lawsuit", "sue you", "attorney general"},
				"ESCALATE":      {"threat", "demand"},
			},
			WordLimits: map[string]int{
				"SEND_REBUTTAL":       800,
				"SEND_CLARIFICATION":  300,
				"SEND_FOLLOWUP":       200,
				"RESPOND_PARTIAL_APPROVAL": 400,
			},
		},
	}
}
