package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/foiacase/caseruntime/pkg/config"
	"github.com/foiacase/caseruntime/pkg/pipeline"
	"github.com/foiacase/caseruntime/pkg/store"
)

// PortalChannel submits correspondence to an agency's records portal
// through a configured HTTP adapter, grounded on legator's WebhookChannel
// (same POST-JSON-and-check-2xx shape) since no records-portal vendor API
// is fixed by spec.md — the adapter boundary covers whichever portal
// integration a deployment plugs in.
type PortalChannel struct {
	cfg    config.PortalConfig
	client *http.Client
}

func NewPortalChannel(cfg config.PortalConfig) *PortalChannel {
	return &PortalChannel{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

func (p *PortalChannel) Provider() store.ExecutionProvider { return store.ProviderPortal }

type portalSubmission struct {
	CaseID     int64  `json:"case_id"`
	PortalURL  string `json:"portal_url"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
}

type portalSubmissionResult struct {
	ConfirmationID string `json:"confirmation_id"`
}

func (p *PortalChannel) Send(ctx context.Context, in pipeline.SendIntent) (string, error) {
	if p.cfg.AdapterBaseURL == "" {
		return "", fmt.Errorf("no portal adapter configured for case %d", in.Case.ID)
	}

	payload, err := json.Marshal(portalSubmission{
		CaseID:    in.Case.ID,
		PortalURL: in.Case.PortalURL,
		Subject:   in.Subject,
		Body:      in.Body,
	})
	if err != nil {
		return "", fmt.Errorf("encoding portal submission for case %d: %w", in.Case.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.AdapterBaseURL+"/submissions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building portal request for case %d: %w", in.Case.ID, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("portal submission for case %d: %w", in.Case.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("portal adapter returned %d for case %d: %s", resp.StatusCode, in.Case.ID, string(respBody))
	}

	var result portalSubmissionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding portal response for case %d: %w", in.Case.ID, err)
	}
	return result.ConfirmationID, nil
}
