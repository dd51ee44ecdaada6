// Package masking applies regex-based PII redaction to requester and
// agency correspondence before it reaches the case store, adapted from
// the teacher's MCP-tool-result masking service into a domain-specific
// one: the teacher masks credentials leaking out of tool results, this
// masks Social Security numbers, phone numbers, and mailing addresses
// leaking into message bodies and case constraints.
package masking

import "log/slog"

// Pattern is a caller-supplied regex pattern, for an operator who needs to
// mask an agency-specific identifier format the built-ins don't cover.
type Pattern struct {
	Name        string
	Regex       string
	Replacement string
	Description string
}

// Config controls which patterns a Service applies.
type Config struct {
	Enabled        bool
	PatternGroup   string    // one of patternGroups, e.g. "requester_pii"
	CustomPatterns []Pattern
}

// Service masks PII in message bodies and case constraint data before
// persistence. Created once at startup; safe for concurrent use, stateless
// beyond its compiled patterns.
type Service struct {
	enabled  bool
	patterns []*CompiledPattern
}

// NewService compiles the configured pattern group plus any custom
// patterns. Patterns that fail to compile are logged and skipped rather
// than failing startup — a malformed custom pattern shouldn't take down
// ingestion for every case.
func NewService(cfg Config) *Service {
	builtin, errs := compileBuiltinPatterns()
	for _, err := range errs {
		slog.Error("failed to compile built-in masking pattern, skipping", "error", err)
	}

	custom, errs := compileCustomPatterns(cfg.CustomPatterns)
	for _, err := range errs {
		slog.Error("failed to compile custom masking pattern, skipping", "error", err)
	}

	seen := make(map[string]bool)
	patterns := resolveGroup(cfg.PatternGroup, builtin, seen)
	for _, cp := range custom {
		patterns = append(patterns, cp)
	}

	slog.Info("masking service initialized",
		"enabled", cfg.Enabled, "pattern_group", cfg.PatternGroup, "pattern_count", len(patterns))

	return &Service{enabled: cfg.Enabled, patterns: patterns}
}

// Mask redacts every configured pattern match in text. Returns text
// unchanged when masking is disabled or text is empty — callers (message
// ingestion, case constraint writes) should call this unconditionally and
// let the config decide whether it's a no-op.
func (s *Service) Mask(text string) string {
	if !s.enabled || text == "" {
		return text
	}
	masked := text
	for _, p := range s.patterns {
		masked = p.Regex.ReplaceAllString(masked, p.Replacement)
	}
	return masked
}
