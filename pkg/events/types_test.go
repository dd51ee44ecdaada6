package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCaseChannel(t *testing.T) {
	tests := []struct {
		name   string
		caseID int64
		want   string
	}{
		{name: "small id", caseID: 1, want: "case:1"},
		{name: "large id", caseID: 918273645, want: "case:918273645"},
		{name: "zero", caseID: 0, want: "case:0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CaseChannel(tt.caseID))
		})
	}
}

func TestEventTypeConstants(t *testing.T) {
	types := []string{
		EventTypeCaseTransition,
		EventTypeRunStatus,
		EventTypeProposalStatus,
		EventTypeRunHeartbeat,
	}

	seen := make(map[string]bool)
	for _, typ := range types {
		assert.NotEmpty(t, typ, "event type should not be empty")
		assert.False(t, seen[typ], "duplicate event type: %s", typ)
		seen[typ] = true
	}
}

func TestGlobalCasesChannel(t *testing.T) {
	assert.Equal(t, "cases", GlobalCasesChannel)
}
