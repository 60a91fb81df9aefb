package telegram

import (
	"context"
	"time"

	"github.com/codedrop-io/codedrop/internal/shared/logger"
)

// maxRetryWait caps how long a single notification waits on a 429.
const maxRetryWait = 5 * time.Second

// Notifier delivers a text message to a chat address. Callers treat it as
// fire-and-forget: errors are for logging only.
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// BotNotifier sends notifications through the Bot API.
type BotNotifier struct {
	bot    *BotService
	logger logger.Interface
	after  func(time.Duration) <-chan time.Time
}

func NewBotNotifier(bot *BotService, log logger.Interface) *BotNotifier {
	return &BotNotifier{bot: bot, logger: log, after: time.After}
}

// Send delivers text once, retrying a single time when Telegram rate limits
// us with a short enough retry_after.
func (n *BotNotifier) Send(ctx context.Context, chatID int64, text string) error {
	err := n.bot.SendMessage(ctx, chatID, text)
	if delay, ok := RetryDelay(err); ok && delay <= maxRetryWait {
		n.logger.Debugw("telegram rate limited, retrying", "chat_id", chatID, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-n.after(delay):
		}
		err = n.bot.SendMessage(ctx, chatID, text)
	}

	switch {
	case err == nil:
		n.logger.Debugw("telegram notification sent", "chat_id", chatID)
	case IsChatUnreachable(err):
		n.logger.Infow("telegram chat unreachable", "chat_id", chatID, "error", err)
	default:
		n.logger.Warnw("telegram notification failed", "chat_id", chatID, "error", err)
	}
	return err
}

// NopNotifier discards every message. Used when Telegram is disabled.
type NopNotifier struct{}

func (NopNotifier) Send(context.Context, int64, string) error { return nil }
