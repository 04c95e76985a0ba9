package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	brevoEndpoint    = "https://api.brevo.com/v3/smtp/email"
	sendgridEndpoint = "https://api.sendgrid.com/v3/mail/send"
)

// BrevoSender delivers email through the Brevo transactional API.
type BrevoSender struct {
	APIKey string
	From   string
	Client *http.Client
}

func NewBrevoSender(apiKey, from string) *BrevoSender {
	return &BrevoSender{
		APIKey: apiKey,
		From:   from,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *BrevoSender) SendEmail(ctx context.Context, to, subject, body string) error {
	payload := map[string]any{
		"sender":      map[string]string{"email": s.From},
		"to":          []map[string]string{{"email": to}},
		"subject":     subject,
		"htmlContent": body,
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode brevo payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, brevoEndpoint, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("build brevo request: %w", err)
	}
	req.Header.Set("api-key", s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("brevo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("brevo returned status %d", resp.StatusCode)
	}
	return nil
}

// SendGridSender delivers email through the SendGrid v3 API.
type SendGridSender struct {
	APIKey string
	From   string
	Client *http.Client
}

func NewSendGridSender(apiKey, from string) *SendGridSender {
	return &SendGridSender{
		APIKey: apiKey,
		From:   from,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SendGridSender) SendEmail(ctx context.Context, to, subject, body string) error {
	payload := map[string]any{
		"personalizations": []map[string]any{
			{"to": []map[string]string{{"email": to}}},
		},
		"from":    map[string]string{"email": s.From},
		"subject": subject,
		"content": []map[string]string{
			{"type": "text/html", "value": body},
		},
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode sendgrid payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sendgridEndpoint, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("build sendgrid request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("sendgrid request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}
	return nil
}
