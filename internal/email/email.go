// Package email renders and sends transactional email.
package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"ghostwriter/internal/observability"

	"github.com/resend/resend-go/v2"
)

//go:embed templates/*.html
var templateFS embed.FS

// Template names.
const (
	TemplateVerification  = "verification"
	TemplatePasswordReset = "password_reset"
	TemplateAgencyInvite  = "agency_invite"
	TemplateWeeklyDigest  = "weekly_digest"
	TemplatePaymentFailed = "payment_failed"
)

var templateNames = []string{
	TemplateVerification,
	TemplatePasswordReset,
	TemplateAgencyInvite,
	TemplateWeeklyDigest,
	TemplatePaymentFailed,
}

// Message is a rendered email.
type Message struct {
	To       string
	Subject  string
	HTML     string
	Template string
}

// Sender delivers rendered messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ResendConfig configures ResendSender. BaseURL and HTTPClient are for tests.
type ResendConfig struct {
	APIKey     string
	From       string
	BaseURL    string
	HTTPClient *http.Client
}

// ResendSender sends through the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
}

// NewResendSender builds a Resend-backed sender.
func NewResendSender(cfg ResendConfig) (*ResendSender, error) {
	var c *resend.Client
	if cfg.HTTPClient != nil {
		c = resend.NewCustomClient(cfg.HTTPClient, cfg.APIKey)
	} else {
		c = resend.NewClient(cfg.APIKey)
	}
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL + "/")
		if err != nil {
			return nil, fmt.Errorf("parse resend base url: %w", err)
		}
		c.BaseURL = u
	}
	return &ResendSender{client: c, from: cfg.From}, nil
}

func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	_, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	})
	return err
}

// LogSender writes messages to the log instead of sending them.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, msg Message) error {
	s.Logger.InfoContext(ctx, "email not sent (no provider configured)",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("template", msg.Template),
	)
	return nil
}

// Mailer renders the product's emails and hands them to a Sender.
type Mailer struct {
	sender    Sender
	appURL    string
	templates map[string]*template.Template
}

// NewMailer parses the embedded templates. appURL is the frontend base URL
// links point at.
func NewMailer(sender Sender, appURL string) (*Mailer, error) {
	tmpls := make(map[string]*template.Template, len(templateNames))
	for _, name := range templateNames {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse email template %s: %w", name, err)
		}
		tmpls[name] = t
	}
	return &Mailer{sender: sender, appURL: appURL, templates: tmpls}, nil
}

func (m *Mailer) link(path string, query url.Values) string {
	if len(query) == 0 {
		return m.appURL + path
	}
	return m.appURL + path + "?" + query.Encode()
}

func (m *Mailer) send(ctx context.Context, name, to, subject string, data any) error {
	var buf bytes.Buffer
	err := m.templates[name].ExecuteTemplate(&buf, "layout", data)
	if err == nil {
		err = m.sender.Send(ctx, Message{To: to, Subject: subject, HTML: buf.String(), Template: name})
	}
	observability.EmailsSent.WithLabelValues(name, observability.ResultLabel(err)).Inc()
	if err != nil {
		return fmt.Errorf("send %s email: %w", name, err)
	}
	return nil
}

func (m *Mailer) SendVerification(ctx context.Context, to, name, token string) error {
	return m.send(ctx, TemplateVerification, to, "Verify your email", map[string]string{
		"Name": name,
		"Link": m.link("/verify-email", url.Values{"token": {token}}),
	})
}

func (m *Mailer) SendPasswordReset(ctx context.Context, to, name, token string) error {
	return m.send(ctx, TemplatePasswordReset, to, "Reset your password", map[string]string{
		"Name": name,
		"Link": m.link("/reset-password", url.Values{"token": {token}}),
	})
}

func (m *Mailer) SendAgencyInvite(ctx context.Context, to, inviterName, agencyName, token string) error {
	return m.send(ctx, TemplateAgencyInvite, to, fmt.Sprintf("Join %s on Ghostwriter", agencyName), map[string]string{
		"InviterName": inviterName,
		"AgencyName":  agencyName,
		"Link":        m.link("/agency/invite", url.Values{"token": {token}}),
	})
}

func (m *Mailer) SendPaymentFailed(ctx context.Context, to, name, plan string) error {
	return m.send(ctx, TemplatePaymentFailed, to, "Payment failed", map[string]string{
		"Name": name,
		"Plan": plan,
		"Link": m.link("/billing", nil),
	})
}

// DigestPost is the best post of the week.
type DigestPost struct {
	Excerpt        string
	EngagementRate float64
}

// Digest is the weekly summary for one user.
type Digest struct {
	Name           string
	PostsPublished int64
	Impressions    int64
	Engagements    int64
	TopPost        *DigestPost
}

func (m *Mailer) SendWeeklyDigest(ctx context.Context, to string, d Digest) error {
	return m.send(ctx, TemplateWeeklyDigest, to, "Your week on LinkedIn", struct {
		Digest
		Link string
	}{d, m.link("/analytics", nil)})
}
