package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foiacase/caseruntime/pkg/store"
)

func TestMarshalAndApplyCheckpoint_RoundTrips(t *testing.T) {
	amount := int64(4200)
	original := State{
		Classification:   ClassificationFeeQuote,
		RequiresResponse: true,
		FeeAmountCents:   &amount,
		KeyPoints:        []string{"fee quote of $42.00"},
		Action:           store.ActionAcceptFee,
		PauseReason:      store.PauseReasonFeeQuote,
		DraftSubject:     "Re: records request",
		DraftBody:        "We accept the quoted fee.",
		Reasoning:        []string{"routed to ACCEPT_FEE"},
	}

	raw, err := marshalCheckpoint(original)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	rehydrated, err := applyCheckpoint(State{CaseID: 9, RunID: 99}, raw)
	require.NoError(t, err)

	assert.Equal(t, int64(9), rehydrated.CaseID)
	assert.Equal(t, int64(99), rehydrated.RunID)
	assert.Equal(t, original.Classification, rehydrated.Classification)
	assert.Equal(t, *original.FeeAmountCents, *rehydrated.FeeAmountCents)
	assert.Equal(t, original.Action, rehydrated.Action)
	assert.Equal(t, original.DraftBody, rehydrated.DraftBody)
	assert.Equal(t, original.Reasoning, rehydrated.Reasoning)
}

func TestApplyCheckpoint_EmptyRawIsNoOp(t *testing.T) {
	s := State{CaseID: 1, Action: store.ActionNone}
	out, err := applyCheckpoint(s, nil)
	require.NoError(t, err)
	assert.Equal(t, s, out)
}
