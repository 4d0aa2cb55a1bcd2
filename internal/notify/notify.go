// Package notify implements best-effort dispatch of relevant messages to an
// external notification channel. Failures are reported to the caller, who
// logs and moves on; there are no retries.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/benzvi/groupsift/internal/config"
)

// Notification carries the fields forwarded for a relevant message.
type Notification struct {
	Sender    string
	GroupName string
	Content   string
}

// Notifier sends a single notification. Implementations must honor context
// cancellation and must not retry on failure.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// New constructs the notifier selected by configuration. The HTTP webhook
// backend takes precedence over Telegram when both are configured. Returns
// nil (notifications disabled) when neither is configured.
func New(cfg config.NotifierConfig, log *slog.Logger) (Notifier, error) {
	switch {
	case cfg.WebhookURL != "":
		return NewWebhookNotifier(cfg.WebhookURL, cfg.Timeout, log), nil
	case cfg.TelegramToken != "" && cfg.TelegramChatID != 0:
		return NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID, log)
	case cfg.TelegramToken != "" || cfg.TelegramChatID != 0:
		return nil, fmt.Errorf("telegram notifier requires both token and chat id")
	default:
		return nil, nil
	}
}

// Format renders the notification content with its group context, matching
// the wire contract where the body carries only sender and content.
func (n Notification) Format() string {
	if n.GroupName == "" {
		return n.Content
	}
	return fmt.Sprintf("[%s] %s", n.GroupName, n.Content)
}
