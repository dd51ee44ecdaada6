package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileBuiltinPatterns(t *testing.T) {
	compiled, errs := compileBuiltinPatterns()
	require.Empty(t, errs)
	assert.Len(t, compiled, len(builtinPatterns))
	for name := range builtinPatterns {
		assert.Contains(t, compiled, name)
	}
}

func TestCompileCustomPatterns(t *testing.T) {
	custom := []Pattern{
		{Name: "case_tracking_number", Regex: `\bFOIA-\d{6}\b`, Replacement: "[MASKED_TRACKING_NUMBER]"},
	}
	compiled, errs := compileCustomPatterns(custom)
	require.Empty(t, errs)
	require.Contains(t, compiled, "case_tracking_number")
	assert.Equal(t, "[MASKED_TRACKING_NUMBER]", compiled["case_tracking_number"].Replacement)
}

func TestCompileCustomPatternsInvalidRegexSkipped(t *testing.T) {
	custom := []Pattern{
		{Name: "broken", Regex: `(unclosed`},
	}
	compiled, errs := compileCustomPatterns(custom)
	assert.Len(t, errs, 1)
	assert.NotContains(t, compiled, "broken")
}

func TestResolveGroup(t *testing.T) {
	builtin, errs := compileBuiltinPatterns()
	require.Empty(t, errs)

	seen := make(map[string]bool)
	resolved := resolveGroup("requester_pii", builtin, seen)

	names := make([]string, 0, len(resolved))
	for _, cp := range resolved {
		names = append(names, cp.Name)
	}
	assert.ElementsMatch(t, []string{"ssn", "date_of_birth", "street_address"}, names)
}

func TestResolveGroupUnknownGroup(t *testing.T) {
	builtin, _ := compileBuiltinPatterns()
	resolved := resolveGroup("nonexistent", builtin, make(map[string]bool))
	assert.Nil(t, resolved)
}

func TestResolveGroupDedupesAcrossCalls(t *testing.T) {
	builtin, _ := compileBuiltinPatterns()
	seen := make(map[string]bool)

	first := resolveGroup("contact", builtin, seen)
	second := resolveGroup("requester_pii", builtin, seen)

	assert.NotEmpty(t, first)
	for _, cp := range second {
		assert.NotEqual(t, "street_address", cp.Name, "street_address is shared by both groups and should only appear once")
	}
}

func TestSSNPatternMatches(t *testing.T) {
	compiled, _ := compileBuiltinPatterns()
	ssn := compiled["ssn"]
	require.NotNil(t, ssn)
	assert.True(t, ssn.Regex.MatchString("My SSN is 123-45-6789."))
	assert.False(t, ssn.Regex.MatchString("case FOIA-000123"))
}

func TestPhonePatternMatches(t *testing.T) {
	compiled, _ := compileBuiltinPatterns()
	phone := compiled["phone"]
	require.NotNil(t, phone)
	assert.True(t, phone.Regex.MatchString("Call me at (202) 555-0173."))
	assert.True(t, phone.Regex.MatchString("202-555-0173"))
}
