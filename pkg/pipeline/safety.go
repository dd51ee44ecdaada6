package pipeline

import (
	"fmt"
	"strings"

	"github.com/foiacase/caseruntime/pkg/config"
)

// safetyCheck inspects a drafted response against the per-action
// forbidden-phrase and word-limit tables, populating riskFlags and
// warnings without mutating the draft itself, per spec.md §4.3
// "safety_check".
func safetyCheck(s State, cfg *config.SafetyConfig) (riskFlags, warnings []string) {
	if s.DraftBody == "" {
		return nil, nil
	}

	lowerBody := strings.ToLower(s.DraftBody)
	for _, phrase := range cfg.ForbiddenPhrases[string(s.Action)] {
		if strings.Contains(lowerBody, strings.ToLower(phrase)) {
			riskFlags = append(riskFlags, fmt.Sprintf("forbidden_phrase:%s", phrase))
		}
	}

	if limit, ok := cfg.WordLimits[string(s.Action)]; ok {
		wordCount := len(strings.Fields(s.DraftBody))
		if wordCount > limit {
			warnings = append(warnings, fmt.Sprintf("draft exceeds word limit (%d > %d)", wordCount, limit))
		}
	}

	return riskFlags, warnings
}
