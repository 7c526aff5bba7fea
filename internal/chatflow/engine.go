package chatflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"msgflow/backend/internal/config"
	"msgflow/backend/internal/gateway"
	"msgflow/backend/internal/messaging"
	"msgflow/backend/internal/models"
	"msgflow/backend/internal/storage"
)

// ConversationStorage is what the engine reads and writes per phone number.
type ConversationStorage interface {
	ListChatFlows(ctx context.Context) ([]models.ChatFlow, error)
	GetChatFlow(ctx context.Context, id string) (*models.ChatFlow, error)
	ListQuestions(ctx context.Context, flowID string) ([]models.Question, error)

	GetOngoingChat(ctx context.Context, phoneNumber string) (*models.OngoingChat, error)
	PutOngoingChat(ctx context.Context, chat *models.OngoingChat) error
	AdvanceOngoingChat(ctx context.Context, phoneNumber string, version int, flowID, questionID *string) error
	DeleteOngoingChat(ctx context.Context, phoneNumber string, version int) error
	AnswerOngoingChat(ctx context.Context, phoneNumber string, version int, nextQuestionID *string, r *models.UserResponse) error

	FindOrCreateContact(ctx context.Context, phoneNumber string) (*models.Contact, error)
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (func(), error)
	PublishEvent(ctx context.Context, ev models.DeliveryEvent) error
}

// Sender delivers a reply and records it in the message log.
type Sender interface {
	Send(ctx context.Context, req messaging.Request) (*models.MessageLog, error)
}

// TemplateEnsurer returns a named template, creating it if needed.
type TemplateEnsurer interface {
	EnsureByName(ctx context.Context, name, content string) (*models.MessageTemplate, error)
}

type Localizer interface {
	GetString(lang, key string) string
}

// Engine is the conversation state machine. Each phone number is in one of
// three states: no conversation (no row), awaiting a flow selection (row
// without a flow) or in a flow (row with flow and current question).
type Engine struct {
	storage   ConversationStorage
	sender    Sender
	templates TemplateEnsurer
	texts     Localizer
	lang      string

	lockWait  time.Duration
	lockRetry time.Duration
}

func NewEngine(s ConversationStorage, sender Sender, t TemplateEnsurer, texts Localizer) *Engine {
	return &Engine{
		storage:   s,
		sender:    sender,
		templates: t,
		texts:     texts,
		lang:      config.DefaultLanguage,
		lockWait:  config.ConversationLockWait,
		lockRetry: config.ConversationLockRetry,
	}
}

// HandleInbound processes one inbound message. rawFrom may carry the
// "whatsapp:" prefix. The reply is sent to the user and also returned.
func (e *Engine) HandleInbound(ctx context.Context, rawFrom, rawBody string) (string, error) {
	phone := gateway.StripWhatsApp(strings.TrimSpace(rawFrom))
	text := strings.TrimSpace(rawBody)
	if phone == "" {
		return "", fmt.Errorf("%w: sender is required", ErrValidation)
	}

	slog.Info("inbound message", slog.String("phone", phone), slog.String("body", text))

	var contactID *string
	if contact, err := e.storage.FindOrCreateContact(ctx, phone); err != nil {
		slog.Warn("contact lookup failed", slog.String("phone", phone), slog.String("error", err.Error()))
	} else if contact != nil {
		contactID = &contact.ID
	}

	reply, err := e.transitionLocked(ctx, phone, text)
	if errors.Is(err, ErrConversationConflict) {
		slog.Warn("conversation changed concurrently", slog.String("phone", phone))
		reply, err = e.text(config.ReplySessionExpired), nil
	}
	if err != nil {
		return "", err
	}

	return reply, e.reply(ctx, phone, reply, contactID)
}

// StartConversation puts phone directly on the first question of a flow,
// replacing any conversation in progress, and sends that question.
func (e *Engine) StartConversation(ctx context.Context, phone, flowID string) (string, error) {
	phone = gateway.StripWhatsApp(strings.TrimSpace(phone))
	if phone == "" || flowID == "" {
		return "", fmt.Errorf("%w: phoneNumber and chatFlowId are required", ErrValidation)
	}

	flow, err := e.storage.GetChatFlow(ctx, flowID)
	if err != nil {
		return "", err
	}
	if len(flow.Questions) == 0 {
		return "", fmt.Errorf("%w: %w", storage.ErrNotFound, ErrNoQuestions)
	}
	first := flow.Questions[0]

	release, err := e.lock(ctx, phone)
	if errors.Is(err, storage.ErrLocked) {
		return "", ErrConversationConflict
	}
	if err != nil {
		return "", err
	}
	err = e.storage.PutOngoingChat(ctx, &models.OngoingChat{
		PhoneNumber:       phone,
		ChatFlowID:        &flow.ID,
		CurrentQuestionID: &first.ID,
	})
	release()
	if err != nil {
		return "", err
	}

	slog.Info("conversation started", slog.String("phone", phone), slog.String("flow", flow.ID))

	var contactID *string
	if contact, err := e.storage.FindOrCreateContact(ctx, phone); err == nil && contact != nil {
		contactID = &contact.ID
	}
	return first.Question, e.reply(ctx, phone, first.Question, contactID)
}

func (e *Engine) transitionLocked(ctx context.Context, phone, text string) (string, error) {
	release, err := e.lock(ctx, phone)
	if errors.Is(err, storage.ErrLocked) {
		return "", ErrConversationConflict
	}
	if err != nil {
		return "", err
	}
	defer release()

	chat, err := e.storage.GetOngoingChat(ctx, phone)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return e.offerMenu(ctx, phone)
	case err != nil:
		return "", err
	case chat.AwaitingSelection():
		return e.selectFlow(ctx, chat, text)
	default:
		return e.answer(ctx, chat, text)
	}
}

// lock waits up to lockWait for the per-phone lock.
func (e *Engine) lock(ctx context.Context, phone string) (func(), error) {
	deadline := time.Now().Add(e.lockWait)
	for {
		release, err := e.storage.AcquireLock(ctx, "chat:"+phone, config.ConversationLockTTL)
		if !errors.Is(err, storage.ErrLocked) || time.Now().After(deadline) {
			return release, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.lockRetry):
		}
	}
}

func (e *Engine) offerMenu(ctx context.Context, phone string) (string, error) {
	flows, err := e.storage.ListChatFlows(ctx)
	if err != nil {
		return "", err
	}
	if len(flows) == 0 {
		return e.text(config.ReplyNoFlows), nil
	}

	if err := e.storage.PutOngoingChat(ctx, &models.OngoingChat{PhoneNumber: phone}); err != nil {
		return "", err
	}
	slog.Info("flow menu offered", slog.String("phone", phone), slog.Int("flows", len(flows)))
	return e.menu(flows), nil
}

func (e *Engine) menu(flows []models.ChatFlow) string {
	var b strings.Builder
	b.WriteString(e.text(config.ReplyMenuHeader))
	b.WriteString("\n")
	for i, f := range flows {
		fmt.Fprintf(&b, "%d️⃣ %s\n", i+1, f.Name)
	}
	return b.String()
}

func (e *Engine) selectFlow(ctx context.Context, chat *models.OngoingChat, text string) (string, error) {
	flows, err := e.storage.ListChatFlows(ctx)
	if err != nil {
		return "", err
	}

	n, ok := parseSelection(text)
	if !ok || n < 1 || n > len(flows) {
		return e.text(config.ReplyInvalidSelection), nil
	}

	flow := flows[n-1]
	if len(flow.Questions) == 0 {
		return e.text(config.ReplyFlowUnavailable), nil
	}
	first := flow.Questions[0]

	if err := e.advance(ctx, chat, &flow.ID, &first.ID); err != nil {
		return "", err
	}
	slog.Info("flow selected", slog.String("phone", chat.PhoneNumber), slog.String("flow", flow.ID))
	return first.Question, nil
}

func (e *Engine) answer(ctx context.Context, chat *models.OngoingChat, text string) (string, error) {
	if chat.CurrentQuestionID == nil {
		// a flow without a current question cannot take answers; start over
		if err := e.storage.DeleteOngoingChat(ctx, chat.PhoneNumber, chat.Version); err != nil && !errors.Is(err, storage.ErrConflict) {
			return "", err
		}
		return "", ErrConversationConflict
	}
	flowID := *chat.ChatFlowID
	currentID := *chat.CurrentQuestionID

	questions, err := e.storage.ListQuestions(ctx, flowID)
	if err != nil {
		return "", err
	}
	next := nextQuestion(questions, currentID)

	var nextID *string
	if next != nil {
		nextID = &next.ID
	}
	err = e.storage.AnswerOngoingChat(ctx, chat.PhoneNumber, chat.Version, nextID, &models.UserResponse{
		PhoneNumber: chat.PhoneNumber,
		QuestionID:  currentID,
		Response:    text,
	})
	if errors.Is(err, storage.ErrConflict) {
		return "", ErrConversationConflict
	}
	if err != nil {
		return "", err
	}

	if next != nil {
		return next.Question, nil
	}
	return e.completion(ctx, chat.PhoneNumber, flowID), nil
}

func (e *Engine) advance(ctx context.Context, chat *models.OngoingChat, flowID, questionID *string) error {
	err := e.storage.AdvanceOngoingChat(ctx, chat.PhoneNumber, chat.Version, flowID, questionID)
	if errors.Is(err, storage.ErrConflict) {
		return ErrConversationConflict
	}
	return err
}

func (e *Engine) completion(ctx context.Context, phone, flowID string) string {
	if err := e.storage.PublishEvent(ctx, models.DeliveryEvent{
		Type:        models.EventConversationEnded,
		MessageID:   flowID,
		To:          phone,
		MessageType: models.WhatsApp,
	}); err != nil {
		slog.Warn("failed to publish completion event", slog.String("phone", phone), slog.String("error", err.Error()))
	}
	slog.Info("conversation completed", slog.String("phone", phone), slog.String("flow", flowID))

	flow, err := e.storage.GetChatFlow(ctx, flowID)
	if err == nil && flow.CompletionMessage != nil && *flow.CompletionMessage != "" {
		return *flow.CompletionMessage
	}
	return e.text(config.ReplyCompleted)
}

// reply sends text through the pass-through template.
func (e *Engine) reply(ctx context.Context, phone, text string, contactID *string) error {
	tpl, err := e.templates.EnsureByName(ctx, config.PassThroughTemplateName, config.PassThroughTemplateContent)
	if err != nil {
		return fmt.Errorf("pass-through template: %w", err)
	}
	_, err = e.sender.Send(ctx, messaging.Request{
		To:          phone,
		MessageType: models.WhatsApp,
		TemplateID:  tpl.ID,
		Variables:   map[string]string{config.PassThroughVariable: text},
		ContactID:   contactID,
	})
	return err
}

func (e *Engine) text(key string) string {
	return e.texts.GetString(e.lang, key)
}

// nextQuestion returns the question after currentID, or nil at the end. An
// unknown currentID restarts from the first question.
func nextQuestion(questions []models.Question, currentID string) *models.Question {
	idx := -1
	for i := range questions {
		if questions[i].ID == currentID {
			idx = i
			break
		}
	}
	if idx+1 < len(questions) {
		return &questions[idx+1]
	}
	return nil
}

// parseSelection reads a leading, optionally signed, base-10 integer and
// ignores anything after it ("2." and "2 please" both select 2).
func parseSelection(s string) (int, bool) {
	s = strings.TrimSpace(s)
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	j := i
	for j < len(s) && s[j] >= '0' && s[j] <= '9' {
		j++
	}
	if j == i {
		return 0, false
	}
	n, err := strconv.Atoi(s[:j])
	if err != nil {
		return 0, false
	}
	return n, true
}
