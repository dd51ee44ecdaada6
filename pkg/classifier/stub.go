package classifier

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/foiacase/caseruntime/pkg/pipeline"
	"github.com/foiacase/caseruntime/pkg/store"
)

// feeRe pulls the first dollar amount out of a message body, e.g.
// "$42.50" or "$1,200". Good enough for the deterministic stub; the real
// LLM backend extracts this from model output instead.
var feeRe = regexp.MustCompile(`\$\s?([0-9,]+(?:\.[0-9]{2})?)`)

// StubClassifier is a deterministic, keyword-driven stand-in for the
// out-of-scope LLM classification service. It never calls out to
// anything, making it the default collaborator wired in cmd/caseruntime
// and the one exercised by integration tests that don't want a live
// model dependency.
type StubClassifier struct{}

func NewStubClassifier() *StubClassifier { return &StubClassifier{} }

func (s *StubClassifier) Classify(ctx context.Context, in pipeline.ClassifyInput) (pipeline.ClassifyOutput, error) {
	body := ""
	if in.TriggerMessage != nil {
		body = strings.ToLower(in.TriggerMessage.Body)
	}

	out := pipeline.ClassifyOutput{RequiresResponse: true}

	switch {
	case body == "":
		out.Classification = pipeline.ClassificationAcknowledgment
		out.RequiresResponse = false

	case containsAny(body, "acknowledge", "received your request", "will respond within"):
		out.Classification = pipeline.ClassificationAcknowledgment
		out.RequiresResponse = false

	case containsAny(body, "records are attached", "responsive records", "please find enclosed") && !containsAny(body, "no responsive records", "no records exist", "unable to locate"):
		out.Classification = pipeline.ClassificationRecordsReady
		out.KeyPoints = []string{"responsive records attached"}

	case containsAny(body, "tracking number", "delivery confirmation", "shipped"):
		out.Classification = pipeline.ClassificationDelivery

	case containsAny(body, "submit your request through our portal", "use the online portal"):
		out.Classification = pipeline.ClassificationPortalRedirect
		out.PortalURL = extractURL(body)

	case containsAny(body, "wrong agency", "not the correct agency", "refer your request to"):
		out.Classification = pipeline.ClassificationWrongAgency

	case containsAny(body, "fee", "$") && feeRe.MatchString(body):
		out.Classification = pipeline.ClassificationFeeQuote
		if cents, ok := parseFeeCents(body); ok {
			out.FeeAmountCents = &cents
		}

	case containsAny(body, "denied", "deny", "no responsive records", "no records exist", "unable to locate", "exempt"):
		out.Classification = pipeline.ClassificationDenial
		out.DenialSubtype = classifyDenialSubtype(body)
		out.KeyPoints = denialKeyPoints(body)

	default:
		out.Classification = pipeline.ClassificationAcknowledgment
		out.RequiresResponse = false
	}

	return out, nil
}

func classifyDenialSubtype(body string) pipeline.DenialSubtype {
	switch {
	case containsAny(body, "no responsive records", "no records exist", "unable to locate"):
		return pipeline.DenialSubtypeNoRecords
	case containsAny(body, "wrong agency", "not the custodian"):
		return pipeline.DenialSubtypeWrongAgency
	case containsAny(body, "overly broad", "unduly burdensome"):
		return pipeline.DenialSubtypeOverlyBroad
	case containsAny(body, "excessive fee", "cost prohibitive"):
		return pipeline.DenialSubtypeExcessiveFees
	case containsAny(body, "retention period", "records have been destroyed"):
		return pipeline.DenialSubtypeRetentionExpired
	case containsAny(body, "ongoing investigation", "law enforcement investigation"):
		return pipeline.DenialSubtypeOngoingInvestigation
	case containsAny(body, "personal privacy", "privacy exemption"):
		return pipeline.DenialSubtypePrivacyExemption
	default:
		return pipeline.DenialSubtypeUnknown
	}
}

func denialKeyPoints(body string) []string {
	var points []string
	for _, phrase := range []string{"sealed by statute", "ongoing law enforcement investigation", "workload", "national security"} {
		if strings.Contains(body, phrase) {
			points = append(points, phrase)
		}
	}
	return points
}

// StubDrafter produces templated correspondence from the routed action,
// with no model call. Each template is short and deterministic so tests
// asserting on exact output stay stable across runs.
type StubDrafter struct{}

func NewStubDrafter() *StubDrafter { return &StubDrafter{} }

func (d *StubDrafter) Draft(ctx context.Context, in pipeline.DraftInput) (pipeline.DraftOutput, error) {
	agency := "the agency"
	if in.Case != nil && in.Case.AgencyName != "" {
		agency = in.Case.AgencyName
	}

	subject, body := draftTemplate(in.Action, agency)
	if in.AdjustmentInstruction != "" {
		body = fmt.Sprintf("%s\n\n[Revised per reviewer instruction: %s]", body, in.AdjustmentInstruction)
	}

	return pipeline.DraftOutput{
		Subject:   subject,
		Body:      body,
		Reasoning: []string{fmt.Sprintf("templated draft for %s", in.Action)},
	}, nil
}

func draftTemplate(action store.ActionType, agency string) (subject, body string) {
	switch action {
	case store.ActionSendInitialRequest:
		return "Public Records Request",
			fmt.Sprintf("Dear %s,\n\nI am writing to request copies of the records described in this request.\n\nThank you for your attention to this matter.", agency)
	case store.ActionSendFollowup:
		return "Re: Public Records Request (Follow-up)",
			fmt.Sprintf("Dear %s,\n\nI am following up on my earlier records request, to which I have not yet received a substantive response.", agency)
	case store.ActionAcceptFee:
		return "Re: Public Records Request — Fee Accepted",
			fmt.Sprintf("Dear %s,\n\nI accept the quoted fee and authorize you to proceed with fulfilling the request.", agency)
	case store.ActionNegotiateFee:
		return "Re: Public Records Request — Fee Inquiry",
			fmt.Sprintf("Dear %s,\n\nThe quoted fee appears disproportionate to the scope of this request. Please provide an itemized fee estimate or consider narrowing the search.", agency)
	case store.ActionSendClarification:
		return "Re: Public Records Request — Clarification",
			fmt.Sprintf("Dear %s,\n\nTo assist in locating the responsive records, please find clarification of the request's scope below.", agency)
	case store.ActionSendRebuttal:
		return "Re: Public Records Request — Response to Denial",
			fmt.Sprintf("Dear %s,\n\nI respectfully disagree with the stated basis for denial and ask that you reconsider this request.", agency)
	case store.ActionRespondPartialApproval:
		return "Re: Public Records Request — Partial Response",
			fmt.Sprintf("Dear %s,\n\nThank you for the records provided. I request that you continue processing the remaining portions of this request.", agency)
	case store.ActionReformulateRequest:
		return "Revised Public Records Request",
			fmt.Sprintf("Dear %s,\n\nIn light of your response, I am narrowing the scope of my request as described below.", agency)
	default:
		return "Re: Public Records Request", fmt.Sprintf("Dear %s,\n\n", agency)
	}
}

func containsAny(body string, substrs ...string) bool {
	for _, s := range substrs {
		if strings.Contains(body, s) {
			return true
		}
	}
	return false
}

var urlRe = regexp.MustCompile(`https?://\S+`)

func extractURL(body string) string {
	return urlRe.FindString(body)
}

func parseFeeCents(body string) (int64, bool) {
	match := feeRe.FindStringSubmatch(body)
	if len(match) < 2 {
		return 0, false
	}
	amount := strings.ReplaceAll(match[1], ",", "")
	whole := amount
	cents := "00"
	if i := strings.Index(amount, "."); i >= 0 {
		whole = amount[:i]
		cents = amount[i+1:]
		if len(cents) == 1 {
			cents += "0"
		}
	}
	var totalCents int64
	for _, c := range whole {
		if c < '0' || c > '9' {
			return 0, false
		}
		totalCents = totalCents*10 + int64(c-'0')
	}
	totalCents *= 100
	for _, c := range cents {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	var centsVal int64
	fmt.Sscanf(cents, "%d", &centsVal)
	return totalCents + centsVal, true
}
