package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Telegram delivers messages to a fixed chat through the Bot API.
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *zap.Logger
}

var _ Notifier = (*Telegram)(nil)

// NewTelegram builds a Telegram notifier for the given bot token and chat.
func NewTelegram(token string, chatID int64, logger *zap.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram init: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Telegram{api: api, chatID: chatID, logger: logger}, nil
}

// Send posts text to the configured chat.
func (t *Telegram) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.api.Send(msg); err != nil {
		t.logger.Error("telegram send failed", zap.Int64("chat_id", t.chatID), zap.Error(err))
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// LogNotifier writes messages to the log instead of an external channel.
// Used in development when no Telegram bot is configured.
type LogNotifier struct {
	Logger *zap.Logger
}

var _ Notifier = (*LogNotifier)(nil)

// Send logs the message at warn level so codes stand out in local runs.
func (n *LogNotifier) Send(ctx context.Context, text string) error {
	logger := n.Logger
	if logger == nil {
		logger = zap.L()
	}
	logger.Warn("notification (no telegram configured)", zap.String("text", text))
	return nil
}
