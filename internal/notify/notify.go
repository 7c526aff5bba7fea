// Package notify reports scheduled messages that could not be delivered.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"msgflow/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Noop drops every notification. Used when no alert channel is configured.
type Noop struct{}

func (Noop) NotifyFailed(context.Context, *models.ScheduledMessage, string) error { return nil }

// MessageSender is the subset of *tgbotapi.BotAPI used to post messages.
type MessageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts failure alerts to a single ops chat.
type Telegram struct {
	bot    MessageSender
	chatID int64
}

func NewTelegram(bot MessageSender, chatID int64) *Telegram {
	return &Telegram{bot: bot, chatID: chatID}
}

// Connect authorizes the bot token against the Telegram API.
func Connect(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	bot.Debug = false
	slog.Info("telegram bot authorized", slog.String("account", bot.Self.UserName))
	return bot, nil
}

func (t *Telegram) NotifyFailed(ctx context.Context, m *models.ScheduledMessage, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, FailureText(m, reason)))
	return err
}

// FailureText is the alert body for a failed scheduled message.
func FailureText(m *models.ScheduledMessage, reason string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "❌ Scheduled %s message failed\n", m.MessageType)
	fmt.Fprintf(&b, "ID: %s\n", m.ID)
	fmt.Fprintf(&b, "To: %s\n", m.To)
	fmt.Fprintf(&b, "Scheduled: %s\n", m.ScheduledTime.UTC().Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "Attempts: %d\n", m.Attempts)
	fmt.Fprintf(&b, "Reason: %s\n", reason)
	fmt.Fprintf(&b, "Reply /retry %s to send it again.", m.ID)
	return b.String()
}
