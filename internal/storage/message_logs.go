package storage

import (
	"context"
	"msgflow/backend/internal/models"
)

// CreateMessageLog appends an audit row. There is no update path.
func (s *Service) CreateMessageLog(ctx context.Context, l *models.MessageLog) error {
	return s.DB.WithContext(ctx).Create(l).Error
}

// ListMessageLogs returns audit rows newest first.
func (s *Service) ListMessageLogs(ctx context.Context, filter models.MessageLogFilter) ([]models.MessageLog, error) {
	limit, offset := clampPage(filter.Limit, filter.Offset)
	q := s.DB.WithContext(ctx).Order("created_at desc").Limit(limit).Offset(offset)
	if filter.To != "" {
		q = q.Where("\"to\" = ?", filter.To)
	}
	if filter.MessageType != "" {
		q = q.Where("message_type = ?", filter.MessageType)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	var logs []models.MessageLog
	err := q.Find(&logs).Error
	return logs, err
}

func (s *Service) CreateEmailLog(ctx context.Context, l *models.EmailLog) error {
	return s.DB.WithContext(ctx).Create(l).Error
}

func (s *Service) ListEmailLogs(ctx context.Context, limit, offset int) ([]models.EmailLog, error) {
	limit, offset = clampPage(limit, offset)
	var logs []models.EmailLog
	err := s.DB.WithContext(ctx).Order("created_at desc").Limit(limit).Offset(offset).Find(&logs).Error
	return logs, err
}
