package notify

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
)

// Template names available to Render and Send.
const (
	TemplateSubscriptionActivated = "subscription_activated"
	TemplateSubscriptionCanceled  = "subscription_canceled"
	TemplateQuotaLow              = "quota_low"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

var ErrInvalidMessage = errors.New("recipient and subject are required")

// Notice is the data every template renders from.
type Notice struct {
	Email     string
	PlanName  string
	Quota     int
	Unlimited bool
	Remaining int
}

// Message is a templated notification.
type Message struct {
	To       string
	Subject  string
	Template string
	Data     Notice
}

// Sender delivers notification emails.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Render executes the named template with data.
func Render(name string, data Notice) (string, error) {
	var tpl bytes.Buffer
	if err := templates.ExecuteTemplate(&tpl, name+".html", data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", name, err)
	}
	return tpl.String(), nil
}

type SMTPConfig struct {
	From     string
	Password string
	Host     string
	Port     int
}

// Enabled reports whether enough settings are present to send mail.
func (c SMTPConfig) Enabled() bool {
	return c.From != "" && c.Host != "" && c.Port != 0
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender sends HTML emails through an SMTP relay.
type SMTPSender struct {
	cfg      SMTPConfig
	sendMail sendMailFunc
	logger   *slog.Logger
}

func NewSMTPSender(cfg SMTPConfig, logger *slog.Logger) *SMTPSender {
	return &SMTPSender{cfg: cfg, sendMail: smtp.SendMail, logger: logger.With("component", "notify")}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" || msg.Subject == "" {
		return ErrInvalidMessage
	}
	body, err := Render(msg.Template, msg.Data)
	if err != nil {
		return err
	}
	raw, err := s.compose(msg.To, msg.Subject, body)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if s.cfg.Password != "" {
		auth = smtp.PlainAuth("", s.cfg.From, s.cfg.Password, s.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	if err := s.sendMail(addr, auth, s.cfg.From, []string{msg.To}, raw); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("Email sent successfully", "recipient", msg.To, "template", msg.Template)
	return nil
}

func (s *SMTPSender) compose(to, subject, body string) ([]byte, error) {
	var msg bytes.Buffer
	mw := multipart.NewWriter(&msg)

	msg.WriteString("MIME-version: 1.0;\r\n")
	msg.WriteString(fmt.Sprintf("From: %s\r\n", s.cfg.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%s\r\n", mw.Boundary()))
	msg.WriteString("\r\n")

	h := make(textproto.MIMEHeader)
	h.Set("Content-Type", "text/html; charset=UTF-8")
	pw, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create email body part: %w", err)
	}
	if _, err = pw.Write([]byte(body)); err != nil {
		return nil, fmt.Errorf("failed to write email body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return msg.Bytes(), nil
}

// NopSender drops messages; used when SMTP is not configured.
type NopSender struct {
	Logger *slog.Logger
}

func (n NopSender) Send(ctx context.Context, msg Message) error {
	if n.Logger != nil {
		n.Logger.Debug("email skipped, SMTP not configured", "recipient", msg.To, "template", msg.Template)
	}
	return nil
}
