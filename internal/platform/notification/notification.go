// Package notification delivers transactional email with template rendering
// and retry. Delivery is always soft-fail from the caller's point of view:
// the owning operation succeeds even when the mail relay is down.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// Template defines a reusable notification template.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates
// pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      "staff-invite",
			Name:    "Staff Invitation",
			Subject: "You have been invited to join MedBeta",
			Body:    "Hello {{name}}, you have been invited to join MedBeta as a {{role}}. Set your password here: {{setup_link}}. The invitation expires on {{expires_at}}.",
		},
		{
			ID:      "password-reset",
			Name:    "Password Reset",
			Subject: "Password Reset Request",
			Body:    "You requested a password reset. Click the following link to reset your password: {{reset_link}}",
		},
		{
			ID:      "appointment-reminder",
			Name:    "Appointment Reminder",
			Subject: "Appointment Reminder for {{patient_name}}",
			Body:    "Dear {{patient_name}}, this is a reminder of your appointment on {{date}} at {{time}} with Dr. {{doctor_name}}.",
		},
		{
			ID:      "prescription-filled",
			Name:    "Prescription Filled",
			Subject: "Your Prescription Has Been Filled",
			Body:    "Dear {{patient_name}}, your prescription has been filled and is ready for pickup at {{pharmacy}}.",
		},
		{
			ID:      "lab-result-ready",
			Name:    "Lab Result Ready",
			Subject: "Your Lab Results Are Ready",
			Body:    "Dear {{patient_name}}, your {{test_name}} results are now available. Please log in to view them.",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are
// left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// Message is a single outbound email and its delivery state.
type Message struct {
	ID         string     `json:"id"`
	Recipient  string     `json:"recipient"`
	Subject    string     `json:"subject"`
	Body       string     `json:"body"`
	TemplateID string     `json:"template_id,omitempty"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// maxFailedRetained bounds the failure ledger. When it overflows the oldest
// failure is dropped; only failed messages are retained at all, successful
// sends just bump a counter.
const maxFailedRetained = 1000

// Service orchestrates rendering, sending, and retrying messages. Delivery
// failures are recorded and logged, never propagated as hard errors to the
// operation that triggered the send.
type Service struct {
	sender    EmailSender
	templates *TemplateEngine
	logger    zerolog.Logger

	mu          sync.RWMutex
	failed      map[string]*Message
	failedOrder []string
	sent        int
}

func NewService(sender EmailSender, templates *TemplateEngine, logger zerolog.Logger) *Service {
	return &Service{
		sender:    sender,
		templates: templates,
		logger:    logger,
		failed:    make(map[string]*Message),
	}
}

// Send delivers an email and records the attempt. The returned error reflects
// delivery only; callers that must not fail on mail trouble ignore it after
// logging (most do, via SendSoft).
func (s *Service) Send(ctx context.Context, to, subject, body string) (*Message, error) {
	msg := &Message{
		ID:        uuid.NewString(),
		Recipient: to,
		Subject:   subject,
		Body:      body,
		CreatedAt: time.Now().UTC(),
		Status:    "pending",
	}

	sendErr := s.sender.SendEmail(ctx, to, subject, body)
	s.record(msg, sendErr)
	return msg, sendErr
}

// SendTemplate renders a template and delivers the result.
func (s *Service) SendTemplate(ctx context.Context, templateID string, data map[string]string, to string) (*Message, error) {
	subject, body, err := s.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	msg := &Message{
		ID:         uuid.NewString(),
		Recipient:  to,
		Subject:    subject,
		Body:       body,
		TemplateID: templateID,
		CreatedAt:  time.Now().UTC(),
		Status:     "pending",
	}

	sendErr := s.sender.SendEmail(ctx, to, subject, body)
	s.record(msg, sendErr)
	return msg, sendErr
}

// SendTemplateSoft renders and delivers, logging any failure instead of
// returning it. Returns false when delivery failed.
func (s *Service) SendTemplateSoft(ctx context.Context, templateID string, data map[string]string, to string) bool {
	_, err := s.SendTemplate(ctx, templateID, data, to)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("template", templateID).
			Str("recipient", to).
			Msg("email delivery failed")
		return false
	}
	return true
}

// Retry re-sends a message from the failure ledger. A successful retry
// removes it from the ledger.
func (s *Service) Retry(ctx context.Context, id string) error {
	s.mu.RLock()
	msg, ok := s.failed[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("failed message %q not found", id)
	}

	sendErr := s.sender.SendEmail(ctx, msg.Recipient, msg.Subject, msg.Body)
	s.record(msg, sendErr)
	return sendErr
}

func (s *Service) record(msg *Message, sendErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sendErr == nil {
		msg.Status = "sent"
		sentAt := time.Now().UTC()
		msg.SentAt = &sentAt
		msg.Error = ""
		s.sent++
		if _, ok := s.failed[msg.ID]; ok {
			delete(s.failed, msg.ID)
			s.dropFromOrder(msg.ID)
		}
		return
	}

	msg.Status = "failed"
	msg.Error = sendErr.Error()
	if _, ok := s.failed[msg.ID]; !ok {
		s.failed[msg.ID] = msg
		s.failedOrder = append(s.failedOrder, msg.ID)
	}
	for len(s.failedOrder) > maxFailedRetained {
		oldest := s.failedOrder[0]
		s.failedOrder = s.failedOrder[1:]
		delete(s.failed, oldest)
	}
}

func (s *Service) dropFromOrder(id string) {
	for i, v := range s.failedOrder {
		if v == id {
			s.failedOrder = append(s.failedOrder[:i], s.failedOrder[i+1:]...)
			return
		}
	}
}

// Stats reports the running sent count and the size of the failure ledger.
func (s *Service) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]int{
		"sent":   s.sent,
		"failed": len(s.failed),
	}
}

// LogSender writes emails to the log instead of sending them. The default
// sender in development.
type LogSender struct {
	Logger zerolog.Logger
}

func (l *LogSender) SendEmail(_ context.Context, to, subject, body string) error {
	l.Logger.Info().
		Str("to", to).
		Str("subject", subject).
		Str("body", body).
		Msg("email (log sender)")
	return nil
}

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}
