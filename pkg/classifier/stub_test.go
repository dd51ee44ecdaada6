package classifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foiacase/caseruntime/pkg/pipeline"
	"github.com/foiacase/caseruntime/pkg/store"
)

func TestStubClassifier_Acknowledgment(t *testing.T) {
	c := NewStubClassifier()
	out, err := c.Classify(context.Background(), pipeline.ClassifyInput{
		TriggerMessage: &store.Message{Body: "We have received your request and will respond within 10 business days."},
	})
	require.NoError(t, err)
	assert.Equal(t, pipeline.ClassificationAcknowledgment, out.Classification)
	assert.False(t, out.RequiresResponse)
}

func TestStubClassifier_FeeQuoteParsesCents(t *testing.T) {
	c := NewStubClassifier()
	out, err := c.Classify(context.Background(), pipeline.ClassifyInput{
		TriggerMessage: &store.Message{Body: "There is a fee of $42.50 to process this request."},
	})
	require.NoError(t, err)
	assert.Equal(t, pipeline.ClassificationFeeQuote, out.Classification)
	require.NotNil(t, out.FeeAmountCents)
	assert.Equal(t, int64(4250), *out.FeeAmountCents)
}

func TestStubClassifier_DenialNoRecords(t *testing.T) {
	c := NewStubClassifier()
	out, err := c.Classify(context.Background(), pipeline.ClassifyInput{
		TriggerMessage: &store.Message{Body: "We were unable to locate any responsive records for this request."},
	})
	require.NoError(t, err)
	assert.Equal(t, pipeline.ClassificationDenial, out.Classification)
	assert.Equal(t, pipeline.DenialSubtypeNoRecords, out.DenialSubtype)
}

func TestStubClassifier_PortalRedirectExtractsURL(t *testing.T) {
	c := NewStubClassifier()
	out, err := c.Classify(context.Background(), pipeline.ClassifyInput{
		TriggerMessage: &store.Message{Body: "Please submit your request through our portal at https://records.example.gov/submit"},
	})
	require.NoError(t, err)
	assert.Equal(t, pipeline.ClassificationPortalRedirect, out.Classification)
	assert.Equal(t, "https://records.example.gov/submit", out.PortalURL)
}

func TestStubDrafter_UsesAgencyName(t *testing.T) {
	d := NewStubDrafter()
	out, err := d.Draft(context.Background(), pipeline.DraftInput{
		Case:   &store.Case{AgencyName: "Springfield Police Department"},
		Action: store.ActionSendInitialRequest,
	})
	require.NoError(t, err)
	assert.Contains(t, out.Body, "Springfield Police Department")
	assert.NotEmpty(t, out.Subject)
}

func TestStubDrafter_AppendsAdjustmentInstruction(t *testing.T) {
	d := NewStubDrafter()
	out, err := d.Draft(context.Background(), pipeline.DraftInput{
		Case:                  &store.Case{AgencyName: "Springfield Police Department"},
		Action:                store.ActionSendRebuttal,
		AdjustmentInstruction: "tone down the legal threat",
	})
	require.NoError(t, err)
	assert.Contains(t, out.Body, "tone down the legal threat")
}
