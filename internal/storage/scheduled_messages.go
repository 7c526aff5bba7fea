package storage

import (
	"context"
	"msgflow/backend/internal/models"
	"time"

	"gorm.io/gorm"
)

func (s *Service) CreateScheduledMessage(ctx context.Context, m *models.ScheduledMessage) error {
	return s.DB.WithContext(ctx).Omit("Template").Create(m).Error
}

func (s *Service) GetScheduledMessage(ctx context.Context, id string) (*models.ScheduledMessage, error) {
	var m models.ScheduledMessage
	if err := s.DB.WithContext(ctx).Preload("Template").Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// ListScheduledMessages returns messages by scheduled time; an empty status
// lists all of them.
func (s *Service) ListScheduledMessages(ctx context.Context, status models.ScheduledStatus) ([]models.ScheduledMessage, error) {
	q := s.DB.WithContext(ctx).Preload("Template").Order("scheduled_time asc")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []models.ScheduledMessage
	err := q.Find(&out).Error
	return out, err
}

// UpdateScheduledMessage applies column updates in place without any status check.
func (s *Service) UpdateScheduledMessage(ctx context.Context, id string, updates map[string]any) (*models.ScheduledMessage, error) {
	if len(updates) > 0 {
		res := s.DB.WithContext(ctx).Model(&models.ScheduledMessage{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, ErrNotFound
		}
	}
	return s.GetScheduledMessage(ctx, id)
}

// DueScheduledMessages selects PENDING rows whose scheduled time has passed.
// limit <= 0 means no limit.
func (s *Service) DueScheduledMessages(ctx context.Context, now time.Time, limit int) ([]models.ScheduledMessage, error) {
	q := s.DB.WithContext(ctx).
		Preload("Template").
		Where("status = ? AND scheduled_time <= ?", models.ScheduledPending, now.UTC()).
		Order("scheduled_time asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.ScheduledMessage
	err := q.Find(&out).Error
	return out, err
}

func (s *Service) MarkScheduledSent(ctx context.Context, id, providerMessageID string, sentAt time.Time) error {
	updates := map[string]any{
		"status":     models.ScheduledSent,
		"sent_at":    sentAt.UTC(),
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": nil,
	}
	if providerMessageID != "" {
		updates["provider_message_id"] = providerMessageID
	}
	return s.updatePending(ctx, id, updates)
}

func (s *Service) MarkScheduledFailed(ctx context.Context, id string, attempts int, reason string) error {
	return s.updatePending(ctx, id, map[string]any{
		"status":     models.ScheduledFailed,
		"attempts":   attempts,
		"last_error": reason,
	})
}

// RetryScheduledLater keeps the row PENDING and moves it to next.
func (s *Service) RetryScheduledLater(ctx context.Context, id string, attempts int, next time.Time, reason string) error {
	return s.updatePending(ctx, id, map[string]any{
		"status":         models.ScheduledPending,
		"attempts":       attempts,
		"scheduled_time": next.UTC(),
		"last_error":     reason,
	})
}

// updatePending writes a sweep outcome only while the row is still PENDING.
// ErrConflict means the status changed underneath the send (e.g. a cancel)
// and the row was left alone.
func (s *Service) updatePending(ctx context.Context, id string, updates map[string]any) error {
	res := s.DB.WithContext(ctx).Model(&models.ScheduledMessage{}).
		Where("id = ? AND status = ?", id, models.ScheduledPending).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}
