package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookPublisher POSTs each event as JSON to a fixed URL.
type WebhookPublisher struct {
	url    string
	client *http.Client
}

// NewWebhookPublisher creates a WebhookPublisher with the given request timeout.
func NewWebhookPublisher(url string, timeout time.Duration) *WebhookPublisher {
	return &WebhookPublisher{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Publish sends the event with the delivery headers. Any non-2xx response
// is an error so the outbox retries it.
func (p *WebhookPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-Id", ev.ID)
	req.Header.Set("X-Event-Type", string(ev.Type))

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}
