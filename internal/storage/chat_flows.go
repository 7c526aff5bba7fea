package storage

import (
	"context"
	"msgflow/backend/internal/models"

	"gorm.io/gorm"
)

func orderedQuestions(db *gorm.DB) *gorm.DB {
	return db.Order("position asc, created_at asc")
}

// CreateChatFlow stores a flow with its questions. The flow is appended after
// existing flows and questions keep their slice order.
func (s *Service) CreateChatFlow(ctx context.Context, flow *models.ChatFlow) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last int
		if err := tx.Model(&models.ChatFlow{}).Select("COALESCE(MAX(position), -1)").Scan(&last).Error; err != nil {
			return err
		}
		flow.Position = last + 1
		for i := range flow.Questions {
			flow.Questions[i].Position = i
		}
		return tx.Create(flow).Error
	})
}

// GetChatFlow returns a flow with its questions in order.
func (s *Service) GetChatFlow(ctx context.Context, id string) (*models.ChatFlow, error) {
	var flow models.ChatFlow
	err := s.DB.WithContext(ctx).
		Preload("Questions", orderedQuestions).
		Where("id = ?", id).
		First(&flow).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &flow, nil
}

// ListChatFlows returns all flows in menu order.
func (s *Service) ListChatFlows(ctx context.Context) ([]models.ChatFlow, error) {
	var flows []models.ChatFlow
	err := s.DB.WithContext(ctx).
		Preload("Questions", orderedQuestions).
		Order("position asc, created_at asc").
		Find(&flows).Error
	return flows, err
}

func (s *Service) UpdateChatFlow(ctx context.Context, id string, updates map[string]any) (*models.ChatFlow, error) {
	if len(updates) > 0 {
		res := s.DB.WithContext(ctx).Model(&models.ChatFlow{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, ErrNotFound
		}
	}
	return s.GetChatFlow(ctx, id)
}

// AddQuestion appends a question to the end of an existing flow.
func (s *Service) AddQuestion(ctx context.Context, flowID string, q *models.Question) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var flow models.ChatFlow
		if err := tx.Select("id").Where("id = ?", flowID).First(&flow).Error; err != nil {
			return notFound(err)
		}
		var count int64
		if err := tx.Model(&models.Question{}).Where("chat_flow_id = ?", flowID).Count(&count).Error; err != nil {
			return err
		}
		q.ChatFlowID = flowID
		q.Position = int(count)
		return tx.Create(q).Error
	})
}

func (s *Service) ListQuestions(ctx context.Context, flowID string) ([]models.Question, error) {
	var questions []models.Question
	err := orderedQuestions(s.DB.WithContext(ctx).Where("chat_flow_id = ?", flowID)).Find(&questions).Error
	return questions, err
}

// DeleteChatFlow removes a flow together with its questions, the responses to
// those questions and the conversations bound to it.
func (s *Service) DeleteChatFlow(ctx context.Context, id string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		questionIDs := tx.Model(&models.Question{}).Select("id").Where("chat_flow_id = ?", id)
		if err := tx.Where("question_id IN (?)", questionIDs).Delete(&models.UserResponse{}).Error; err != nil {
			return err
		}
		if err := tx.Where("chat_flow_id = ?", id).Delete(&models.OngoingChat{}).Error; err != nil {
			return err
		}
		if err := tx.Where("chat_flow_id = ?", id).Delete(&models.Question{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.ChatFlow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// DeleteAllChatFlows wipes every flow and all conversation data.
func (s *Service) DeleteAllChatFlows(ctx context.Context) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		for _, m := range []any{&models.UserResponse{}, &models.OngoingChat{}, &models.Question{}, &models.ChatFlow{}} {
			if err := all.Delete(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
