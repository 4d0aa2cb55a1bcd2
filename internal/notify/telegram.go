package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
)

// telegramNotifier forwards notifications to a Telegram chat.
type telegramNotifier struct {
	bot    *bot.Bot
	chatID int64
	log    *slog.Logger
}

// NewTelegramNotifier creates a Notifier that sends to a Telegram chat via
// the Bot API. The bot is used for outbound sends only; no update polling
// is started.
func NewTelegramNotifier(token string, chatID int64, log *slog.Logger) (Notifier, error) {
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &telegramNotifier{
		bot:    b,
		chatID: chatID,
		log:    log.With("component", "telegram_notifier"),
	}, nil
}

func (t *telegramNotifier) Notify(ctx context.Context, n Notification) error {
	text := fmt.Sprintf("%s\nfrom %s", n.Format(), n.Sender)

	if _, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   text,
	}); err != nil {
		return fmt.Errorf("failed to send telegram notification: %w", err)
	}

	t.log.DebugContext(ctx, "Notification delivered", "chat_id", t.chatID, "sender", n.Sender)
	return nil
}
