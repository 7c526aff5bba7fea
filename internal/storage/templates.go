package storage

import (
	"context"
	"errors"
	"log/slog"
	"msgflow/backend/internal/models"

	"github.com/redis/go-redis/v9"
)

func (s *Service) CreateTemplate(ctx context.Context, t *models.MessageTemplate) error {
	return s.DB.WithContext(ctx).Create(t).Error
}

func (s *Service) GetTemplate(ctx context.Context, id string) (*models.MessageTemplate, error) {
	var t models.MessageTemplate
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (s *Service) ListTemplates(ctx context.Context) ([]models.MessageTemplate, error) {
	var templates []models.MessageTemplate
	err := s.DB.WithContext(ctx).Order("created_at asc").Find(&templates).Error
	return templates, err
}

// EnsureTemplate returns the template with the given name, creating it with
// content on first use. The id is cached in Redis under "template:<name>".
func (s *Service) EnsureTemplate(ctx context.Context, name, content string) (*models.MessageTemplate, error) {
	key := "template:" + name
	if s.Redis != nil {
		id, err := s.Redis.Get(ctx, key).Result()
		switch {
		case err == nil:
			if t, err := s.GetTemplate(ctx, id); err == nil {
				return t, nil
			}
			// stale entry, fall through and refresh it
		case !errors.Is(err, redis.Nil):
			slog.Warn("template cache lookup failed", slog.String("name", name), slog.String("error", err.Error()))
		}
	}

	var t models.MessageTemplate
	res := s.DB.WithContext(ctx).
		Where("name = ?", name).
		FirstOrCreate(&t, models.MessageTemplate{Name: name, Content: content})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected > 0 {
		slog.Info("template created", slog.String("name", name), slog.String("id", t.ID))
	}

	if s.Redis != nil {
		if err := s.Redis.Set(ctx, key, t.ID, 0).Err(); err != nil {
			slog.Warn("template cache store failed", slog.String("name", name), slog.String("error", err.Error()))
		}
	}
	return &t, nil
}
