package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Config holds alert webhook settings.
type Config struct {
	WebhookURL string        `yaml:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// alertPayload is the wire format consumed by the chat-alert channel.
type alertPayload struct {
	ProcessID         string         `json:"process_id"`
	ErrorMessage      string         `json:"error_message"`
	ErrorDetails      map[string]any `json:"error_details"`
	RequiresAttention bool           `json:"requires_attention"`
}

// WebhookSender posts escalated failures to a chat webhook. With no
// URL configured it degrades to a logged no-op.
type WebhookSender struct {
	url        string
	httpClient *http.Client
	log        *slog.Logger
}

// NewWebhookSender creates a webhook sender.
func NewWebhookSender(cfg Config) *WebhookSender {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	s := &WebhookSender{
		url:        cfg.WebhookURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        slog.Default().With("component", "notify"),
	}
	if s.url == "" {
		s.log.Warn("Webhook URL not set, escalation alerts disabled")
	}
	return s
}

// SendErrorAlert delivers one escalation notification.
func (s *WebhookSender) SendErrorAlert(
	ctx context.Context,
	processID, message string,
	details map[string]any,
	requiresAttention bool,
) error {
	if s.url == "" {
		s.log.Debug("Dropping alert, no webhook configured", "process_id", processID)
		return nil
	}

	payload := alertPayload{
		ProcessID:         processID,
		ErrorMessage:      message,
		ErrorDetails:      details,
		RequiresAttention: requiresAttention,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("alert webhook returned %d: %s", resp.StatusCode, string(body))
	}

	s.log.Info("Escalation alert sent",
		"process_id", processID, "requires_attention", requiresAttention)
	return nil
}
