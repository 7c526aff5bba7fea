// Package schedule stores deferred messages and delivers the due ones in a
// periodic sweep.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"msgflow/backend/internal/messaging"
	"msgflow/backend/internal/models"
)

// ErrValidation is returned for malformed schedule requests.
var ErrValidation = errors.New("invalid scheduled message")

var phonePattern = regexp.MustCompile(`^\+?[0-9]{6,15}$`)

// Storage is the persistence the scheduling service needs.
type Storage interface {
	GetTemplate(ctx context.Context, id string) (*models.MessageTemplate, error)
	FindOrCreateContact(ctx context.Context, phoneNumber string) (*models.Contact, error)

	CreateScheduledMessage(ctx context.Context, m *models.ScheduledMessage) error
	GetScheduledMessage(ctx context.Context, id string) (*models.ScheduledMessage, error)
	ListScheduledMessages(ctx context.Context, status models.ScheduledStatus) ([]models.ScheduledMessage, error)
	UpdateScheduledMessage(ctx context.Context, id string, updates map[string]any) (*models.ScheduledMessage, error)
	DueScheduledMessages(ctx context.Context, now time.Time, limit int) ([]models.ScheduledMessage, error)
	MarkScheduledSent(ctx context.Context, id, providerMessageID string, sentAt time.Time) error
	MarkScheduledFailed(ctx context.Context, id string, attempts int, reason string) error
	RetryScheduledLater(ctx context.Context, id string, attempts int, next time.Time, reason string) error

	PublishEvent(ctx context.Context, ev models.DeliveryEvent) error
}

// Sender delivers one message and records it in the message log.
type Sender interface {
	Send(ctx context.Context, req messaging.Request) (*models.MessageLog, error)
}

// Notifier is told about every message that ends up FAILED.
type Notifier interface {
	NotifyFailed(ctx context.Context, m *models.ScheduledMessage, reason string) error
}

type Service struct {
	storage   Storage
	sender    Sender
	notifier  Notifier
	policy    RetryPolicy
	batchSize int
	now       func() time.Time
}

// NewService creates the service. batchSize caps the rows handled per sweep;
// zero means no cap.
func NewService(st Storage, sender Sender, notifier Notifier, policy RetryPolicy, batchSize int) *Service {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Service{
		storage:   st,
		sender:    sender,
		notifier:  notifier,
		policy:    policy,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// Input describes a message to schedule. PhoneNumber is accepted as an alias
// of To.
type Input struct {
	To            string             `json:"to"`
	PhoneNumber   string             `json:"phoneNumber"`
	From          *string            `json:"from"`
	MessageType   models.MessageType `json:"messageType"`
	Body          *string            `json:"body"`
	TemplateID    *string            `json:"templateId"`
	Variables     map[string]string  `json:"variables"`
	ScheduledTime time.Time          `json:"scheduledTime"`
}

// UpdateInput replaces only the fields that are set.
type UpdateInput struct {
	TemplateID    *string           `json:"templateId"`
	Variables     map[string]string `json:"variables"`
	ScheduledTime *time.Time        `json:"scheduledTime"`
}

// Schedule validates in and stores it as PENDING. A referenced template must
// exist. Messages with neither body nor template are accepted and fail at send
// time.
func (s *Service) Schedule(ctx context.Context, in Input) (*models.ScheduledMessage, error) {
	to := strings.TrimSpace(in.To)
	if to == "" {
		to = strings.TrimSpace(in.PhoneNumber)
	}
	if to == "" {
		return nil, fmt.Errorf("%w: to is required", ErrValidation)
	}
	if in.ScheduledTime.IsZero() {
		return nil, fmt.Errorf("%w: scheduledTime is required", ErrValidation)
	}
	kind := in.MessageType
	if kind == "" {
		kind = models.WhatsApp
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown message type %q", ErrValidation, in.MessageType)
	}

	if in.TemplateID != nil && *in.TemplateID != "" {
		if _, err := s.storage.GetTemplate(ctx, *in.TemplateID); err != nil {
			return nil, fmt.Errorf("template %s: %w", *in.TemplateID, err)
		}
	} else {
		in.TemplateID = nil
	}

	m := &models.ScheduledMessage{
		To:            to,
		From:          in.From,
		MessageType:   kind,
		Body:          in.Body,
		TemplateID:    in.TemplateID,
		Variables:     models.JSONMapOf(in.Variables),
		ScheduledTime: in.ScheduledTime.UTC(),
		Status:        models.ScheduledPending,
	}
	if phonePattern.MatchString(to) {
		if c, err := s.storage.FindOrCreateContact(ctx, to); err != nil {
			slog.Warn("failed to link contact", slog.String("to", to), slog.String("error", err.Error()))
		} else if c != nil {
			m.ContactID = &c.ID
		}
	}

	if err := s.storage.CreateScheduledMessage(ctx, m); err != nil {
		return nil, err
	}
	slog.Info("message scheduled",
		slog.String("id", m.ID),
		slog.String("to", m.To),
		slog.String("type", string(m.MessageType)),
		slog.Time("at", m.ScheduledTime),
	)
	return m, nil
}

type BulkItem struct {
	ID      string `json:"id,omitempty"`
	To      string `json:"to"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type BulkResult struct {
	Total      int        `json:"total"`
	Successful int        `json:"successful"`
	Failed     int        `json:"failed"`
	Results    []BulkItem `json:"results"`
}

// BulkSchedule schedules every input on its own; failures do not stop the rest.
func (s *Service) BulkSchedule(ctx context.Context, inputs []Input) BulkResult {
	res := BulkResult{Total: len(inputs), Results: make([]BulkItem, 0, len(inputs))}
	for _, in := range inputs {
		item := BulkItem{To: in.To}
		if item.To == "" {
			item.To = in.PhoneNumber
		}
		m, err := s.Schedule(ctx, in)
		if err != nil {
			item.Error = err.Error()
			res.Failed++
		} else {
			item.ID = m.ID
			item.Success = true
			res.Successful++
		}
		res.Results = append(res.Results, item)
	}
	return res
}

// List returns messages by scheduled time. An empty status lists all.
func (s *Service) List(ctx context.Context, status models.ScheduledStatus) ([]models.ScheduledMessage, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	return s.storage.ListScheduledMessages(ctx, status)
}

func (s *Service) Get(ctx context.Context, id string) (*models.ScheduledMessage, error) {
	return s.storage.GetScheduledMessage(ctx, id)
}

// Cancel marks the message CANCELLED whatever its current status.
func (s *Service) Cancel(ctx context.Context, id string) (*models.ScheduledMessage, error) {
	m, err := s.storage.UpdateScheduledMessage(ctx, id, map[string]any{"status": models.ScheduledCancelled})
	if err != nil {
		return nil, err
	}
	slog.Info("scheduled message cancelled", slog.String("id", id))
	return m, nil
}

// Update edits template, variables or time in place. Status is not checked
// and not changed.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*models.ScheduledMessage, error) {
	updates := map[string]any{}
	if in.TemplateID != nil && *in.TemplateID != "" {
		if _, err := s.storage.GetTemplate(ctx, *in.TemplateID); err != nil {
			return nil, fmt.Errorf("template %s: %w", *in.TemplateID, err)
		}
		updates["template_id"] = *in.TemplateID
	}
	if in.Variables != nil {
		updates["variables"] = models.JSONMapOf(in.Variables)
	}
	if in.ScheduledTime != nil {
		if in.ScheduledTime.IsZero() {
			return nil, fmt.Errorf("%w: scheduledTime must not be zero", ErrValidation)
		}
		updates["scheduled_time"] = in.ScheduledTime.UTC()
	}
	return s.storage.UpdateScheduledMessage(ctx, id, updates)
}

// Reschedule puts a message back to PENDING at the given time with a fresh
// attempt count. It is the manual way out of FAILED.
func (s *Service) Reschedule(ctx context.Context, id string, at time.Time) (*models.ScheduledMessage, error) {
	if at.IsZero() {
		return nil, fmt.Errorf("%w: time is required", ErrValidation)
	}
	m, err := s.storage.UpdateScheduledMessage(ctx, id, map[string]any{
		"status":         models.ScheduledPending,
		"scheduled_time": at.UTC(),
		"attempts":       0,
		"last_error":     nil,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("scheduled message rescheduled", slog.String("id", id), slog.Time("at", at.UTC()))
	return m, nil
}
