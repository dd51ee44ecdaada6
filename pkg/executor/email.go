package executor

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/foiacase/caseruntime/pkg/config"
	"github.com/foiacase/caseruntime/pkg/pipeline"
	"github.com/foiacase/caseruntime/pkg/store"
)

// EmailChannel sends proposal correspondence via SMTP, grounded on
// legator's EmailChannel (same Host/Port/From/Username/Password field
// set, same net/smtp.PlainAuth + smtp.SendMail call shape) but building
// a full RFC-5322 message instead of a single notification line that
// carries a generated Message-Id. No In-Reply-To or References headers are
// written.
type EmailChannel struct {
	cfg config.SMTPConfig
}

func NewEmailChannel(cfg config.SMTPConfig) *EmailChannel {
	return &EmailChannel{cfg: cfg}
}

func (e *EmailChannel) Provider() store.ExecutionProvider { return store.ProviderEmail }

func (e *EmailChannel) Send(ctx context.Context, in pipeline.SendIntent) (string, error) {
	if in.Case.AgencyEmail == "" {
		return "", fmt.Errorf("case %d has no agency email on file", in.Case.ID)
	}

	messageID := fmt.Sprintf("<%s@caseruntime>", uuid.NewString())
	var headers strings.Builder
	fmt.Fprintf(&headers, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&headers, "To: %s\r\n", in.Case.AgencyEmail)
	fmt.Fprintf(&headers, "Subject: %s\r\n", in.Subject)
	fmt.Fprintf(&headers, "Message-Id: %s\r\n", messageID)
	if in.Case.LastResponseDate != nil {
		// A Date header is written only once the agency has replied at
		// least once; the initial request goes out without one.
		fmt.Fprintf(&headers, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	}
	headers.WriteString("MIME-Version: 1.0\r\n")
	headers.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	headers.WriteString("\r\n")
	headers.WriteString(in.Body)

	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)
	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, e.cfg.From, []string{in.Case.AgencyEmail}, []byte(headers.String())); err != nil {
		return "", fmt.Errorf("sending email for case %d: %w", in.Case.ID, err)
	}

	return messageID, nil
}
