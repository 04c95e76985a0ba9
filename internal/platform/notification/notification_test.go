package notification

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func newTestService(sender *MockEmailSender) *Service {
	return NewService(sender, NewTemplateEngine(), zerolog.Nop())
}

func TestRenderReplacesPlaceholders(t *testing.T) {
	e := NewTemplateEngine()
	subject, body, err := e.Render("password-reset", map[string]string{
		"reset_link": "https://app.example.com/reset-password/tok",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if subject == "" {
		t.Error("empty subject")
	}
	if !strings.Contains(body, "https://app.example.com/reset-password/tok") {
		t.Errorf("body %q missing reset link", body)
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	e := NewTemplateEngine()
	if _, _, err := e.Render("no-such-template", nil); err == nil {
		t.Error("expected error for unknown template")
	}
}

func TestRenderLeavesUnfilledKeys(t *testing.T) {
	e := NewTemplateEngine()
	_, body, err := e.Render("staff-invite", map[string]string{"name": "Ada"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(body, "{{role}}") {
		t.Error("unfilled placeholder was dropped")
	}
}

func TestSendTemplateSoftSwallowsFailure(t *testing.T) {
	sender := &MockEmailSender{ShouldFail: true, FailError: "relay down"}
	svc := newTestService(sender)

	ok := svc.SendTemplateSoft(context.Background(), "password-reset",
		map[string]string{"reset_link": "x"}, "ada@example.com")
	if ok {
		t.Error("SendTemplateSoft = true on failed delivery")
	}
	if got := svc.Stats()["failed"]; got != 1 {
		t.Errorf("failed = %d, want 1", got)
	}
}

func TestSendRecordsSent(t *testing.T) {
	sender := &MockEmailSender{}
	svc := newTestService(sender)

	msg, err := svc.Send(context.Background(), "ada@example.com", "hi", "body")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg.Status != "sent" || msg.SentAt == nil {
		t.Errorf("message = %+v, want sent with timestamp", msg)
	}
	if got := svc.Stats()["sent"]; got != 1 {
		t.Errorf("sent = %d, want 1", got)
	}
}

func TestRetryOnlyFailedMessages(t *testing.T) {
	sender := &MockEmailSender{ShouldFail: true, FailError: "relay down"}
	svc := newTestService(sender)

	msg, _ := svc.Send(context.Background(), "ada@example.com", "hi", "body")
	if msg.Status != "failed" {
		t.Fatalf("status = %q, want failed", msg.Status)
	}

	sender.ShouldFail = false
	if err := svc.Retry(context.Background(), msg.ID); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if err := svc.Retry(context.Background(), msg.ID); err == nil {
		t.Error("retry of a sent message did not error")
	}
	if err := svc.Retry(context.Background(), "missing"); err == nil {
		t.Error("retry of an unknown message did not error")
	}
}

func TestRetrySuccessClearsFailure(t *testing.T) {
	sender := &MockEmailSender{ShouldFail: true, FailError: "relay down"}
	svc := newTestService(sender)

	msg, _ := svc.Send(context.Background(), "ada@example.com", "hi", "body")

	sender.ShouldFail = false
	if err := svc.Retry(context.Background(), msg.ID); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	stats := svc.Stats()
	if stats["failed"] != 0 {
		t.Errorf("failed = %d, want 0", stats["failed"])
	}
	if stats["sent"] != 1 {
		t.Errorf("sent = %d, want 1", stats["sent"])
	}
}

func TestFailureLedgerIsBounded(t *testing.T) {
	sender := &MockEmailSender{ShouldFail: true, FailError: "relay down"}
	svc := newTestService(sender)

	first, _ := svc.Send(context.Background(), "first@example.com", "hi", "body")
	for i := 0; i < maxFailedRetained; i++ {
		svc.Send(context.Background(), "bulk@example.com", "hi", "body")
	}

	if got := svc.Stats()["failed"]; got != maxFailedRetained {
		t.Errorf("failed = %d, want %d", got, maxFailedRetained)
	}
	// The oldest entry was evicted to make room.
	if err := svc.Retry(context.Background(), first.ID); err == nil {
		t.Error("evicted message is still retryable")
	}
}

func TestRegisterTemplateOverrides(t *testing.T) {
	e := NewTemplateEngine()
	e.RegisterTemplate(Template{ID: "staff-invite", Subject: "custom", Body: "custom body"})

	subject, _, err := e.Render("staff-invite", nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if subject != "custom" {
		t.Errorf("subject = %q, want custom", subject)
	}
}
