package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"msgflow/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const failedListLimit = 10

// Operations are the scheduled-message actions exposed to the ops chat.
type Operations interface {
	List(ctx context.Context, status models.ScheduledStatus) ([]models.ScheduledMessage, error)
	Reschedule(ctx context.Context, id string, at time.Time) (*models.ScheduledMessage, error)
}

// UpdateSource delivers bot updates; *tgbotapi.BotAPI implements it.
type UpdateSource interface {
	MessageSender
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot answers ops commands in the alert chat. Messages from other chats are
// ignored.
type Bot struct {
	api    UpdateSource
	chatID int64
	ops    Operations
}

func NewBot(api UpdateSource, chatID int64, ops Operations) *Bot {
	return &Bot{api: api, chatID: chatID, ops: ops}
}

// Run consumes updates until ctx is done.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	slog.Info("telegram ops bot listening", slog.Int64("chat", b.chatID))
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate answers a single command.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || msg.Chat.ID != b.chatID || !msg.IsCommand() {
		return
	}

	var reply string
	switch msg.Command() {
	case "failed":
		reply = b.failed(ctx)
	case "retry":
		reply = b.retry(ctx, strings.TrimSpace(msg.CommandArguments()))
	default:
		reply = "Commands:\n/failed - list failed scheduled messages\n/retry <id> - send a failed message again"
	}

	if _, err := b.api.Send(tgbotapi.NewMessage(b.chatID, reply)); err != nil {
		slog.Error("telegram reply failed", slog.String("command", msg.Command()), slog.String("error", err.Error()))
	}
}

func (b *Bot) failed(ctx context.Context) string {
	msgs, err := b.ops.List(ctx, models.ScheduledFailed)
	if err != nil {
		return "⚠️ Could not load failed messages: " + err.Error()
	}
	if len(msgs) == 0 {
		return "✅ No failed scheduled messages."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Failed scheduled messages (%d):\n", len(msgs))
	for i, m := range msgs {
		if i == failedListLimit {
			fmt.Fprintf(&sb, "... and %d more", len(msgs)-failedListLimit)
			break
		}
		reason := ""
		if m.LastError != nil {
			reason = " - " + *m.LastError
		}
		fmt.Fprintf(&sb, "%s -> %s%s\n", m.ID, m.To, reason)
	}
	return sb.String()
}

func (b *Bot) retry(ctx context.Context, id string) string {
	if id == "" {
		return "Usage: /retry <id>"
	}
	m, err := b.ops.Reschedule(ctx, id, time.Now())
	if err != nil {
		return "⚠️ Could not reschedule " + id + ": " + err.Error()
	}
	slog.Info("scheduled message rescheduled from telegram", slog.String("id", m.ID))
	return "🔁 " + m.ID + " is pending again and goes out with the next sweep."
}
