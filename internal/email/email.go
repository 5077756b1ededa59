// Package email sends SMTP mail and renders stored templates.
package email

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/router-for-me/APIGateway/internal/config"
	log "github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// ErrNotConfigured is returned when server, port or sender are missing.
var ErrNotConfigured = errors.New("email: service is not properly configured")

// NotConfiguredMessage is the client-facing text for ErrNotConfigured.
const NotConfiguredMessage = "Email service is not properly configured"

// Recipients accepts either a single address or a list in JSON.
type Recipients []string

// UnmarshalJSON decodes "a@x" or ["a@x", "b@x"].
func (r *Recipients) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*r = nil
		return nil
	}
	var single string
	if errSingle := json.Unmarshal(data, &single); errSingle == nil {
		*r = compact([]string{single})
		return nil
	}
	var list []string
	if errList := json.Unmarshal(data, &list); errList != nil {
		return fmt.Errorf("recipients must be a string or a list of strings")
	}
	*r = compact(list)
	return nil
}

func compact(in []string) Recipients {
	out := make(Recipients, 0, len(in))
	for _, addr := range in {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Message is an outgoing mail. HTML is attached as an alternative part when set.
type Message struct {
	To      Recipients
	Cc      Recipients
	Bcc     Recipients
	ReplyTo string
	Subject string
	Body    string
	HTML    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender sends mail through the configured SMTP relay.
type SMTPSender struct {
	cfg  config.MailConfig
	send func(d *gomail.Dialer, m *gomail.Message) error
}

// NewSMTPSender constructs an SMTPSender from mail config.
func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	return &SMTPSender{
		cfg:  cfg,
		send: func(d *gomail.Dialer, m *gomail.Message) error { return d.DialAndSend(m) },
	}
}

// Configured reports whether server, port and sender are all set.
func (s *SMTPSender) Configured() bool {
	if s == nil {
		return false
	}
	return strings.TrimSpace(s.cfg.Server) != "" && s.cfg.Port > 0 && strings.TrimSpace(s.cfg.DefaultSender) != ""
}

// Compose builds the MIME message for msg.
func (s *SMTPSender) Compose(msg Message) (*gomail.Message, error) {
	if len(msg.To) == 0 {
		return nil, fmt.Errorf("email: no recipients")
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.DefaultSender)
	m.SetHeader("To", msg.To...)
	if len(msg.Cc) > 0 {
		m.SetHeader("Cc", msg.Cc...)
	}
	if len(msg.Bcc) > 0 {
		m.SetHeader("Bcc", msg.Bcc...)
	}
	if replyTo := strings.TrimSpace(msg.ReplyTo); replyTo != "" {
		m.SetHeader("Reply-To", replyTo)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}
	return m, nil
}

// Send delivers msg over the dialer from dialer. Credentials are only sent when
// a username is configured.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if !s.Configured() {
		log.Error("email: configuration is incomplete")
		return ErrNotConfigured
	}
	if ctx != nil {
		if errCtx := ctx.Err(); errCtx != nil {
			return errCtx
		}
	}
	m, errCompose := s.Compose(msg)
	if errCompose != nil {
		return errCompose
	}

	if errSend := s.send(s.dialer(), m); errSend != nil {
		log.WithError(errSend).Error("email: send failed")
		return fmt.Errorf("email: send: %w", errSend)
	}
	log.WithField("to", strings.Join(msg.To, ", ")).Info("email sent")
	return nil
}

// dialer builds the SMTP dialer. UseTLS on port 465 selects implicit TLS.
// On any other port gomail upgrades with STARTTLS whenever the server offers
// it, so UseTLS=false does not turn encryption off there.
func (s *SMTPSender) dialer() *gomail.Dialer {
	d := gomail.NewDialer(s.cfg.Server, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	d.SSL = s.cfg.UseTLS && s.cfg.Port == 465
	return d
}

// RenderTemplate replaces {{key}} placeholders in subject and body.
func RenderTemplate(subject, body string, vars map[string]any) (string, string) {
	if len(vars) == 0 {
		return subject, body
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, "{{"+k+"}}", fmt.Sprint(vars[k]))
	}
	r := strings.NewReplacer(pairs...)
	return r.Replace(subject), r.Replace(body)
}
