package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"gridtrader/internal/core"
)

// WebhookChannel posts a JSON payload to a generic incoming-webhook URL
// (Slack and most chat-ops receivers accept this shape via a thin relay).
type WebhookChannel struct {
	url    string
	client *http.Client
}

// NewWebhookChannel builds a channel posting to url; an empty url makes
// Send a no-op so the channel can be registered unconditionally.
func NewWebhookChannel(url string) *WebhookChannel {
	return &WebhookChannel{url: url, client: &http.Client{Timeout: 5 * time.Second}}
}

func (w *WebhookChannel) Name() string { return "webhook" }

func (w *WebhookChannel) Send(ctx context.Context, n core.Notification) error {
	if w.url == "" {
		return nil
	}

	payload := map[string]interface{}{
		"kind":    n.Kind,
		"message": n.Message,
		"fields":  n.Fields,
		"ts":      time.Now().Unix(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("webhook responded with status %d", resp.StatusCode)
	}
	return nil
}
