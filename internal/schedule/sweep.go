package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"msgflow/backend/internal/messaging"
	"msgflow/backend/internal/models"
	"msgflow/backend/internal/storage"
)

// RetryPolicy decides what happens to a failed delivery. With MaxAttempts 1
// the first failure is final.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Max         time.Duration
}

// Backoff returns min(Base*2^(attempt-1), Max) for attempt >= 1.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.Base
	for i := 1; i < attempt; i++ {
		if p.Max > 0 && d >= p.Max {
			break
		}
		d *= 2
	}
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	return d
}

// SweepResult counts the outcomes of one sweep.
type SweepResult struct {
	Due     int `json:"due"`
	Sent    int `json:"sent"`
	Retried int `json:"retried"`
	Failed  int `json:"failed"`
}

// Tick runs a sweep at the current time. It is the scheduler callback.
func (s *Service) Tick(ctx context.Context) {
	if _, err := s.Sweep(ctx, s.now()); err != nil {
		slog.Error("sweep failed", slog.String("error", err.Error()))
	}
}

// Sweep delivers every PENDING message due at now. Each row is handled on its
// own: a failure is recorded on that row and never stops the sweep.
func (s *Service) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	due, err := s.storage.DueScheduledMessages(ctx, now, s.batchSize)
	if err != nil {
		return SweepResult{}, fmt.Errorf("load due messages: %w", err)
	}

	res := SweepResult{Due: len(due)}
	if len(due) > 0 {
		slog.Info("sweep found due messages", slog.Int("count", len(due)))
	}
	for i := range due {
		if ctx.Err() != nil {
			slog.Warn("sweep interrupted", slog.Int("remaining", len(due)-i))
			break
		}
		switch s.deliver(ctx, &due[i], now) {
		case models.ScheduledSent:
			res.Sent++
		case models.ScheduledPending:
			res.Retried++
		case models.ScheduledFailed:
			res.Failed++
		}
	}
	return res, nil
}

// deliver sends one message and records the outcome. It returns the status
// the row ends in, or "" when nothing was recorded.
func (s *Service) deliver(ctx context.Context, m *models.ScheduledMessage, now time.Time) (status models.ScheduledStatus) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduled message panic recovered", slog.String("id", m.ID), slog.Any("panic", r))
			status = s.fail(ctx, m, now, fmt.Sprintf("panic: %v", r))
		}
	}()

	req := messaging.Request{
		To:          m.To,
		MessageType: m.MessageType,
		Variables:   m.StringVariables(),
		ContactID:   m.ContactID,
	}
	if m.TemplateID != nil {
		req.TemplateID = *m.TemplateID
	}
	if m.Body != nil {
		req.Body = *m.Body
	}
	if m.From != nil {
		req.From = *m.From
	}

	entry, err := s.sender.Send(ctx, req)
	if err != nil && errors.Is(err, context.Canceled) {
		return ""
	}
	// the provider has answered; record the outcome even if the sweep is stopping
	ctx = context.WithoutCancel(ctx)
	if err != nil {
		return s.fail(ctx, m, now, err.Error())
	}

	var providerID string
	if entry != nil && entry.ProviderMessageID != nil {
		providerID = *entry.ProviderMessageID
	}
	if err := s.storage.MarkScheduledSent(ctx, m.ID, providerID, now); err != nil {
		outcomeNotRecorded(m, models.ScheduledSent, err)
		return ""
	}
	slog.Info("scheduled message sent", slog.String("id", m.ID), slog.String("to", m.To))
	s.publish(ctx, m, models.EventScheduledSent, models.ScheduledSent, "")
	return models.ScheduledSent
}

// fail applies the retry policy to a failed delivery.
func (s *Service) fail(ctx context.Context, m *models.ScheduledMessage, now time.Time, reason string) models.ScheduledStatus {
	attempts := m.Attempts + 1

	if attempts < s.policy.MaxAttempts {
		next := now.Add(s.policy.Backoff(attempts))
		if err := s.storage.RetryScheduledLater(ctx, m.ID, attempts, next, reason); err != nil {
			outcomeNotRecorded(m, models.ScheduledPending, err)
			return ""
		}
		slog.Warn("scheduled message will be retried",
			slog.String("id", m.ID),
			slog.Int("attempt", attempts),
			slog.Time("next", next),
			slog.String("reason", reason),
		)
		s.publish(ctx, m, models.EventScheduledRetry, models.ScheduledPending, reason)
		return models.ScheduledPending
	}

	if err := s.storage.MarkScheduledFailed(ctx, m.ID, attempts, reason); err != nil {
		outcomeNotRecorded(m, models.ScheduledFailed, err)
		return ""
	}
	slog.Error("scheduled message failed",
		slog.String("id", m.ID),
		slog.Int("attempts", attempts),
		slog.String("reason", reason),
	)
	s.publish(ctx, m, models.EventScheduledFailed, models.ScheduledFailed, reason)

	m.Attempts = attempts
	m.Status = models.ScheduledFailed
	m.LastError = &reason
	if s.notifier != nil {
		if err := s.notifier.NotifyFailed(ctx, m, reason); err != nil {
			slog.Warn("failure notification not delivered", slog.String("id", m.ID), slog.String("error", err.Error()))
		}
	}
	return models.ScheduledFailed
}

// outcomeNotRecorded logs a sweep write that did not land. A conflict means the
// row left PENDING while it was being sent, usually a cancel.
func outcomeNotRecorded(m *models.ScheduledMessage, outcome models.ScheduledStatus, err error) {
	if errors.Is(err, storage.ErrConflict) {
		slog.Warn("scheduled message changed during delivery, outcome dropped",
			slog.String("id", m.ID),
			slog.String("outcome", string(outcome)),
		)
		return
	}
	slog.Error("failed to record scheduled message outcome",
		slog.String("id", m.ID),
		slog.String("outcome", string(outcome)),
		slog.String("error", err.Error()),
	)
}

func (s *Service) publish(ctx context.Context, m *models.ScheduledMessage, typ models.EventType, status models.ScheduledStatus, reason string) {
	err := s.storage.PublishEvent(ctx, models.DeliveryEvent{
		Type:        typ,
		MessageID:   m.ID,
		To:          m.To,
		MessageType: m.MessageType,
		Status:      string(status),
		Error:       reason,
	})
	if err != nil {
		slog.Warn("failed to publish sweep event", slog.String("id", m.ID), slog.String("error", err.Error()))
	}
}
