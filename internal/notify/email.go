package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"text/template"
	"time"

	"github.com/fileloader-io/fileloader/internal/config"
)

// maxSampleReasons caps how many DLQ rejection reasons are embedded in a notification
// email — per spec.md §7, stakeholder emails include a sample, not the full DLQ dump.
const maxSampleReasons = 50

var emailBodyTemplate = template.Must(template.New("fileload_notification").Parse(
	`FileLoader report for source "{{.SourceName}}", file "{{.Filename}}"

Outcome: {{.FailureKind}}
Occurred at: {{.OccurredAt}}

Rows read:      {{.RowsRead}}
Rows valid:     {{.RowsValid}}
Rows invalid:   {{.RowsInvalid}}
Rows published: {{.RowsPublished}}
{{if .Detail}}
Detail:
{{.Detail}}
{{end}}
{{if .SampleReasons}}
Sample rejection reasons ({{len .SampleReasons}}):
{{range .SampleReasons}}  - {{.}}
{{end}}{{end}}`))

// EmailNotifier sends Notifications as plain-text email over SMTP. It is used for
// file-level failures (pipeline.FailureKind.IsFileLevel) that business stakeholders must
// act on — bad headers, missing columns, grain violations, threshold breaches.
type EmailNotifier struct {
	host      string
	port      string
	auth      smtp.Auth
	from      string
	limiter   RateLimiter
}

// EmailConfig configures an SMTP relay connection.
type EmailConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// LoadEmailConfigFromEnv reads SMTP configuration from SMTP_HOST/SMTP_PORT/SMTP_USERNAME/
// SMTP_PASSWORD/SMTP_FROM, per spec.md §6's environment configuration keys.
func LoadEmailConfigFromEnv() EmailConfig {
	return EmailConfig{
		Host:     config.GetEnvStr("SMTP_HOST", "localhost"),
		Port:     config.GetEnvStr("SMTP_PORT", "25"),
		Username: config.GetEnvStr("SMTP_USERNAME", ""),
		Password: config.GetEnvStr("SMTP_PASSWORD", ""),
		From:     config.GetEnvStr("SMTP_FROM", "fileloader@localhost"),
	}
}

// NewEmailNotifier builds an EmailNotifier. auth may be PlainAuth constructed from cfg, or
// nil for relays that don't require authentication (local test relays, internal networks).
func NewEmailNotifier(cfg EmailConfig, limiter RateLimiter) *EmailNotifier {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	return &EmailNotifier{
		host:    cfg.Host,
		port:    cfg.Port,
		auth:    auth,
		from:    cfg.From,
		limiter: limiter,
	}
}

// Notify implements Notifier.
func (e *EmailNotifier) Notify(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if e.limiter != nil && !e.limiter.Allow(n.SourceName) {
		return fmt.Errorf("notification suppressed by rate limiter for source %s", n.SourceName)
	}

	if len(n.Recipients) == 0 {
		return nil
	}

	if len(n.SampleReasons) > maxSampleReasons {
		n.SampleReasons = n.SampleReasons[:maxSampleReasons]
	}

	body, err := renderEmailBody(n)
	if err != nil {
		return fmt.Errorf("rendering notification email: %w", err)
	}

	msg := buildMIMEMessage(e.from, n.Recipients, n.CC, subjectFor(n), body)

	addr := e.host + ":" + e.port

	allRecipients := append(append([]string{}, n.Recipients...), n.CC...)

	if err := smtp.SendMail(addr, e.auth, e.from, allRecipients, msg); err != nil {
		return fmt.Errorf("sending notification email for %s/%s: %w", n.SourceName, n.Filename, err)
	}

	return nil
}

func subjectFor(n Notification) string {
	return fmt.Sprintf("[FileLoader] %s: %s (%s)", n.SourceName, n.Filename, n.FailureKind)
}

func renderEmailBody(n Notification) (string, error) {
	var buf bytes.Buffer
	if err := emailBodyTemplate.Execute(&buf, n); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func buildMIMEMessage(from string, to, cc []string, subject, body string) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(to, ", "))

	if len(cc) > 0 {
		fmt.Fprintf(&buf, "Cc: %s\r\n", strings.Join(cc, ", "))
	}

	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(body)

	return buf.Bytes()
}
