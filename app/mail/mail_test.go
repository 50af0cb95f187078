package mail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/resend/resend-go/v2"
)

func TestPersonalizeReplacesEveryOccurrence(t *testing.T) {
	got := Personalize("Oi {{nome}}, {{oferta}} com {{desconto}} off. {{nome}}! {{unknown}}", map[string]string{
		"nome":     "Ana",
		"oferta":   "Kit",
		"desconto": "20%",
	})
	want := "Oi Ana, Kit com 20% off. Ana! {{unknown}}"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestIdentitiesFallBackToDefault(t *testing.T) {
	ids := Identities{
		Default: Identity{FromName: "Logistics", FromEmail: "no-reply@example.com"},
		Domains: map[string]Identity{"d1": {FromName: "Shop", FromEmail: "shop@shop.com"}},
	}
	if ids.ForDomain("d1").FromEmail != "shop@shop.com" {
		t.Fatal("expected domain identity")
	}
	if ids.ForDomain("missing").From() != "Logistics <no-reply@example.com>" {
		t.Fatalf("unexpected fallback: %s", ids.ForDomain("missing").From())
	}
}

func TestRenderTrackingEmail(t *testing.T) {
	subject, html, err := RenderTrackingEmail(TrackingEmailData{
		CustomerName: "Ana <b>",
		TrackingCode: "AB12CD",
		OrderID:      "o-1",
		TrackingURL:  "https://app.example.com/tracking/AB12CD",
		BrandName:    "Logistics",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(subject, "AB12CD") {
		t.Fatalf("unexpected subject: %s", subject)
	}
	if !strings.Contains(html, "https://app.example.com/tracking/AB12CD") || strings.Contains(html, "Ana <b>") {
		t.Fatalf("unexpected html: %s", html)
	}
}

func TestMessageValidate(t *testing.T) {
	if err := (Message{To: []string{"a@x.com"}, Subject: "s"}).Validate(); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
	if err := (Message{From: "a@x.com", To: []string{"b@x.com"}, Subject: "s"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSMTPSenderBuildsMessage(t *testing.T) {
	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotBody string
	)
	sender := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p"})
	sender.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	sender.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotBody = addr, from, to, string(msg)
		return nil
	}

	id, err := sender.Send(context.Background(), Message{
		From:    "Logistics <no-reply@example.com>",
		To:      []string{"Ana <ana@example.com>"},
		ReplyTo: "support@example.com",
		Subject: "Pedido AB12CD",
		HTML:    "<p>ok</p>",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.HasSuffix(id, "@example.com>") {
		t.Fatalf("unexpected message id: %s", id)
	}
	if gotAddr != "smtp.example.com:587" || gotFrom != "no-reply@example.com" || len(gotTo) != 1 || gotTo[0] != "ana@example.com" {
		t.Fatalf("unexpected envelope: %s %s %v", gotAddr, gotFrom, gotTo)
	}
	if !strings.Contains(gotBody, "Reply-To: support@example.com\r\n") || !strings.HasSuffix(gotBody, "\r\n\r\n<p>ok</p>") {
		t.Fatalf("unexpected body: %q", gotBody)
	}
}

func TestSMTPSenderRejectsBadRecipient(t *testing.T) {
	sender := NewSMTPSender(SMTPConfig{Host: "localhost", Port: 25})
	sender.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("sendMail must not be called")
		return nil
	}
	_, err := sender.Send(context.Background(), Message{From: "a@x.com", To: []string{"not an address"}, Subject: "s"})
	if !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestResendSenderSend(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/emails") {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer re_test" {
			t.Fatalf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_123"}`))
	}))
	defer server.Close()

	client := resend.NewClient("re_test")
	base, _ := url.Parse(server.URL + "/")
	client.BaseURL = base

	id, err := NewResendSenderWithClient(client).Send(context.Background(), Message{
		From:    "Logistics <no-reply@example.com>",
		To:      []string{"ana@example.com"},
		Subject: "Oferta",
		HTML:    "<p>hi</p>",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != "msg_123" {
		t.Fatalf("unexpected id: %s", id)
	}
	if received["subject"] != "Oferta" {
		t.Fatalf("unexpected payload: %+v", received)
	}
}
