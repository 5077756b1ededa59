package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/router-for-me/APIGateway/internal/config"
	"gopkg.in/gomail.v2"
)

func testMailConfig() config.MailConfig {
	return config.MailConfig{Server: "smtp.example.com", Port: 587, UseTLS: true, Username: "u", Password: "p", DefaultSender: "noreply@example.com"}
}

func TestRecipientsUnmarshal(t *testing.T) {
	var body struct {
		To Recipients `json:"to"`
		Cc Recipients `json:"cc"`
	}
	if err := json.Unmarshal([]byte(`{"to":"a@example.com","cc":["b@example.com"," ","c@example.com"]}`), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.To) != 1 || body.To[0] != "a@example.com" {
		t.Fatalf("unexpected to: %v", body.To)
	}
	if len(body.Cc) != 2 || body.Cc[1] != "c@example.com" {
		t.Fatalf("unexpected cc: %v", body.Cc)
	}
	if err := json.Unmarshal([]byte(`{"to":42}`), &body); err == nil {
		t.Fatalf("expected error for numeric recipient")
	}
}

func TestSendComposesMessage(t *testing.T) {
	s := NewSMTPSender(testMailConfig())
	var (
		gotDialer *gomail.Dialer
		gotMsg    *gomail.Message
	)
	s.send = func(d *gomail.Dialer, m *gomail.Message) error {
		gotDialer, gotMsg = d, m
		return nil
	}

	err := s.Send(context.Background(), Message{
		To:      Recipients{"a@example.com", "b@example.com"},
		Cc:      Recipients{"c@example.com"},
		Bcc:     Recipients{"d@example.com"},
		ReplyTo: "reply@example.com",
		Subject: "Hello",
		Body:    "plain body",
		HTML:    "<p>html body</p>",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotDialer.Host != "smtp.example.com" || gotDialer.Port != 587 || gotDialer.SSL {
		t.Fatalf("unexpected dialer: %+v", gotDialer)
	}
	if got := gotMsg.GetHeader("To"); len(got) != 2 {
		t.Fatalf("expected two To addresses, got %v", got)
	}
	if got := gotMsg.GetHeader("Reply-To"); len(got) != 1 || got[0] != "reply@example.com" {
		t.Fatalf("unexpected reply-to %v", got)
	}
	if got := gotMsg.GetHeader("From"); len(got) != 1 || got[0] != "noreply@example.com" {
		t.Fatalf("unexpected from %v", got)
	}

	var buf bytes.Buffer
	if _, errWrite := gotMsg.WriteTo(&buf); errWrite != nil {
		t.Fatalf("write: %v", errWrite)
	}
	raw := buf.String()
	for _, want := range []string{"multipart/alternative", "text/plain", "text/html", "plain body"} {
		if !strings.Contains(raw, want) {
			t.Fatalf("expected message to contain %q", want)
		}
	}
	if strings.Contains(raw, "d@example.com") {
		t.Fatalf("bcc address must not appear in headers")
	}
}

func TestDialerTLSSelection(t *testing.T) {
	cases := []struct {
		port   int
		useTLS bool
		ssl    bool
	}{
		{port: 465, useTLS: true, ssl: true},
		{port: 465, useTLS: false, ssl: false},
		{port: 587, useTLS: true, ssl: false},
		{port: 587, useTLS: false, ssl: false},
	}
	for _, tc := range cases {
		cfg := testMailConfig()
		cfg.Port, cfg.UseTLS = tc.port, tc.useTLS
		d := NewSMTPSender(cfg).dialer()
		if d.SSL != tc.ssl {
			t.Fatalf("port=%d use_tls=%v: expected SSL=%v, got %v", tc.port, tc.useTLS, tc.ssl, d.SSL)
		}
		if d.Host != cfg.Server || d.Port != tc.port || d.Username != "u" {
			t.Fatalf("unexpected dialer: %+v", d)
		}
	}
}

func TestSendNotConfigured(t *testing.T) {
	cfg := testMailConfig()
	cfg.DefaultSender = ""
	s := NewSMTPSender(cfg)
	s.send = func(*gomail.Dialer, *gomail.Message) error {
		t.Fatalf("must not dial")
		return nil
	}
	if err := s.Send(context.Background(), Message{To: Recipients{"a@example.com"}}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSendWrapsTransportError(t *testing.T) {
	s := NewSMTPSender(testMailConfig())
	boom := errors.New("connection refused")
	s.send = func(*gomail.Dialer, *gomail.Message) error { return boom }
	if err := s.Send(context.Background(), Message{To: Recipients{"a@example.com"}}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
}

func TestRenderTemplate(t *testing.T) {
	subject, body := RenderTemplate("Hi {{name}}", "Order {{order}} for {{name}} {{missing}}", map[string]any{
		"name":  "Ada",
		"order": float64(42),
	})
	if subject != "Hi Ada" {
		t.Fatalf("unexpected subject %q", subject)
	}
	if body != "Order 42 for Ada {{missing}}" {
		t.Fatalf("unexpected body %q", body)
	}
}
