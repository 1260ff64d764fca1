package notification

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
)

const (
	TemplateTrialReminder = "trial_reminder"
	TemplateSuspension    = "suspension"
	TemplateActivation    = "activation"
)

var templates = template.Must(template.New("notification").Parse(`
{{define "trial_reminder"}}<p>Your free trial for <b>{{.community_name}}</b> ends in {{.days_remaining}} day(s). Subscribe now to keep your community online.</p>{{end}}
{{define "suspension"}}<p>The free trial for <b>{{.community_name}}</b> has ended and the community has been suspended. Subscribe to restore access.</p>{{end}}
{{define "activation"}}<p>Your subscription for <b>{{.community_name}}</b> is now active. Thanks for subscribing!</p>{{end}}
`))

var subjects = map[string]string{
	TemplateTrialReminder: "Your trial is ending soon",
	TemplateSuspension:    "Your community has been suspended",
	TemplateActivation:    "Subscription active",
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPProvider struct {
	cfg Config
}

func NewSMTP(cfg Config) *SMTPProvider {
	return &SMTPProvider{cfg: cfg}
}

func (p *SMTPProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	_ = ctx
	if len(to) == 0 {
		return fmt.Errorf("no recipients")
	}

	auth := smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)

	mime := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n"
	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\n%s\r\n%s", to[0], subject, mime, htmlBody))

	return smtp.SendMail(addr, auth, p.cfg.From, to, msg)
}

func (p *SMTPProvider) SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any) error {
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, templateName, data); err != nil {
		return fmt.Errorf("render template %s: %w", templateName, err)
	}

	subject, ok := subjects[templateName]
	if !ok {
		subject = "Notification"
	}
	if custom, ok := data["subject"].(string); ok && custom != "" {
		subject = custom
	}

	return p.Send(ctx, to, subject, body.String())
}
