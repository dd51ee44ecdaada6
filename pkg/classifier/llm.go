package classifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/foiacase/caseruntime/pkg/config"
	"github.com/foiacase/caseruntime/pkg/pipeline"
)

// classifyPrompt is sent as the system prompt for every classification
// call; it pins the model to the closed Classification/DenialSubtype
// enums so the JSON it returns parses straight into ClassifyOutput.
const classifyPrompt = `You are classifying an inbound message on a public records request case.
Respond with a single JSON object with these fields only:
  classification: one of ACKNOWLEDGMENT, RECORDS_READY, DELIVERY, PORTAL_REDIRECT, WRONG_AGENCY, FEE_QUOTE, DENIAL
  requires_response: boolean
  portal_url: string, empty unless classification is PORTAL_REDIRECT
  fee_amount_cents: integer, omit unless classification is FEE_QUOTE
  denial_subtype: one of no_records, wrong_agency, overly_broad, excessive_fees, retention_expired, ongoing_investigation, privacy_exemption, omit unless classification is DENIAL
  key_points: array of short strings pulled verbatim from the message that support the classification
Return only the JSON object, no surrounding text.`

const draftPrompt = `You are drafting correspondence for a public records request case on behalf of the requester.
Write a professional, concise letter appropriate to the requested action.
Respond with a single JSON object with these fields only: subject, body, reasoning (array of short strings explaining the drafting choices).
Return only the JSON object, no surrounding text.`

// LLMClassifier satisfies pipeline.Classifier by prompting a Callable
// (normally one wrapped in a BreakerCallable) and parsing its response.
type LLMClassifier struct {
	call     Callable
	provider *config.LLMProviderConfig
}

func NewLLMClassifier(call Callable, provider *config.LLMProviderConfig) *LLMClassifier {
	return &LLMClassifier{call: call, provider: provider}
}

type classifyResponse struct {
	Classification   string   `json:"classification"`
	RequiresResponse bool     `json:"requires_response"`
	PortalURL        string   `json:"portal_url"`
	FeeAmountCents   *int64   `json:"fee_amount_cents"`
	DenialSubtype    string   `json:"denial_subtype"`
	KeyPoints        []string `json:"key_points"`
}

func (c *LLMClassifier) Classify(ctx context.Context, in pipeline.ClassifyInput) (pipeline.ClassifyOutput, error) {
	body := ""
	if in.TriggerMessage != nil {
		body = in.TriggerMessage.Body
	}
	userPrompt := fmt.Sprintf("Model: %s\n\nMessage:\n%s\n\nPrior research already performed on this case: %v",
		c.provider.Model, body, in.PriorResearch)

	raw, err := c.call.Complete(ctx, classifyPrompt, userPrompt)
	if err != nil {
		return pipeline.ClassifyOutput{}, fmt.Errorf("classifier call failed: %w", err)
	}

	var parsed classifyResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return pipeline.ClassifyOutput{}, fmt.Errorf("parsing classifier response: %w", err)
	}

	return pipeline.ClassifyOutput{
		Classification:   pipeline.Classification(parsed.Classification),
		RequiresResponse: parsed.RequiresResponse,
		PortalURL:        parsed.PortalURL,
		FeeAmountCents:   parsed.FeeAmountCents,
		DenialSubtype:    pipeline.DenialSubtype(parsed.DenialSubtype),
		KeyPoints:        parsed.KeyPoints,
	}, nil
}

// LLMDrafter satisfies pipeline.Drafter the same way LLMClassifier
// satisfies pipeline.Classifier.
type LLMDrafter struct {
	call     Callable
	provider *config.LLMProviderConfig
}

func NewLLMDrafter(call Callable, provider *config.LLMProviderConfig) *LLMDrafter {
	return &LLMDrafter{call: call, provider: provider}
}

type draftResponse struct {
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	Reasoning []string `json:"reasoning"`
}

func (d *LLMDrafter) Draft(ctx context.Context, in pipeline.DraftInput) (pipeline.DraftOutput, error) {
	agency := ""
	if in.Case != nil {
		agency = in.Case.AgencyName
	}
	userPrompt := fmt.Sprintf(
		"Model: %s\nAgency: %s\nAction: %s\nClassification: %s\nReasoning so far: %v\nAdjustment instruction: %s",
		d.provider.Model, agency, in.Action, in.Classification, in.Reasoning, in.AdjustmentInstruction,
	)

	raw, err := d.call.Complete(ctx, draftPrompt, userPrompt)
	if err != nil {
		return pipeline.DraftOutput{}, fmt.Errorf("drafter call failed: %w", err)
	}

	var parsed draftResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return pipeline.DraftOutput{}, fmt.Errorf("parsing drafter response: %w", err)
	}

	return pipeline.DraftOutput{
		Subject:   parsed.Subject,
		Body:      parsed.Body,
		Reasoning: parsed.Reasoning,
	}, nil
}
