// Package notify delivers run summaries to a chat webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Notifier sends a completion message somewhere humans will see it.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(ctx context.Context, message string) error { return nil }

// Webhook posts messages to a Slack-compatible incoming webhook.
type Webhook struct {
	URL        string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// NewWebhook builds a webhook notifier with sane defaults.
func NewWebhook(url string) *Webhook {
	return &Webhook{URL: url, Timeout: 10 * time.Second}
}

func (w *Webhook) Notify(ctx context.Context, message string) error {
	if w.URL == "" {
		return nil
	}
	if w.HTTPClient == nil {
		w.HTTPClient = &http.Client{Timeout: w.Timeout}
	}
	payload, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook status %d: %s", resp.StatusCode, string(b))
	}
	return nil
}
