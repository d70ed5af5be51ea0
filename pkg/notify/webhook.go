package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/noah-isme/oncall-api/internal/models"
)

// WebhookSink POSTs the transition as JSON to a configured endpoint.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink builds a webhook-backed sink. The client's timeout is left
// to the caller; per-dispatch deadlines come from the context.
func NewWebhookSink(url string, client *http.Client) *WebhookSink {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookSink{url: url, client: client}
}

type webhookPayload struct {
	Summary    string                 `json:"summary"`
	Transition models.ShiftTransition `json:"transition"`
}

// Deliver implements Sink.
func (s *WebhookSink) Deliver(ctx context.Context, t models.ShiftTransition) error {
	body, err := json.Marshal(webhookPayload{Summary: FormatSummary(t), Transition: t})
	if err != nil {
		return fmt.Errorf("encode transition: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post transition: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook rejected transition: status %d", resp.StatusCode)
	}
	return nil
}
