package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/foiacase/caseruntime/pkg/store"
)

func TestSafetyCheck_EmptyDraftNoOp(t *testing.T) {
	flags, warnings := safetyCheck(State{}, &basePolicy().Safety)
	assert.Empty(t, flags)
	assert.Empty(t, warnings)
}

func TestSafetyCheck_ForbiddenPhraseFlagsRisk(t *testing.T) {
	s := State{
		Action:    store.ActionSendRebuttal,
		DraftBody: "If this is not resolved we will pursue a lawsuit.",
	}
	flags, _ := safetyCheck(s, &basePolicy().Safety)
	assert.NotEmpty(t, flags)
}

func TestSafetyCheck_WordLimitWarns(t *testing.T) {
	s := State{
		Action:    store.ActionSendFollowup,
		DraftBody: strings.Repeat("word ", 250),
	}
	_, warnings := safetyCheck(s, &basePolicy().Safety)
	assert.NotEmpty(t, warnings)
}

func TestSafetyCheck_UnderLimitNoWarning(t *testing.T) {
	s := State{
		Action:    store.ActionSendFollowup,
		DraftBody: "Following up on our records request from last month.",
	}
	_, warnings := safetyCheck(s, &basePolicy().Safety)
	assert.Empty(t, warnings)
}
