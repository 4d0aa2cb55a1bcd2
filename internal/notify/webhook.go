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

// webhookNotifier POSTs notifications as JSON to a configured URL.
type webhookNotifier struct {
	url    string
	client *http.Client
	log    *slog.Logger
}

// NewWebhookNotifier creates a Notifier that delivers to an HTTP endpoint.
// The client timeout bounds the whole request so a hung endpoint cannot
// hold the webhook response open.
func NewWebhookNotifier(url string, timeout time.Duration, log *slog.Logger) Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &webhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		log:    log.With("component", "webhook_notifier"),
	}
}

// webhookBody is the outbound wire format.
type webhookBody struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

func (w *webhookNotifier) Notify(ctx context.Context, n Notification) error {
	body, err := json.Marshal(webhookBody{
		Sender:  n.Sender,
		Content: n.Format(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}

	w.log.DebugContext(ctx, "Notification delivered", "sender", n.Sender)
	return nil
}
