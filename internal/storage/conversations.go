package storage

import (
	"context"
	"errors"
	"msgflow/backend/internal/models"

	"gorm.io/gorm"
)

// GetOngoingChat returns the live conversation of a phone number or ErrNotFound.
func (s *Service) GetOngoingChat(ctx context.Context, phoneNumber string) (*models.OngoingChat, error) {
	var chat models.OngoingChat
	if err := s.DB.WithContext(ctx).Where("phone_number = ?", phoneNumber).First(&chat).Error; err != nil {
		return nil, notFound(err)
	}
	return &chat, nil
}

// PutOngoingChat creates the row or overwrites its flow and question,
// bumping the version either way. chat.Version is updated in place.
func (s *Service) PutOngoingChat(ctx context.Context, chat *models.OngoingChat) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.OngoingChat
		err := tx.Where("phone_number = ?", chat.PhoneNumber).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			chat.Version = 0
			return tx.Create(chat).Error
		}
		if err != nil {
			return err
		}

		chat.Version = existing.Version + 1
		return tx.Model(&models.OngoingChat{}).
			Where("phone_number = ?", chat.PhoneNumber).
			Updates(map[string]any{
				"chat_flow_id":        chat.ChatFlowID,
				"current_question_id": chat.CurrentQuestionID,
				"version":             chat.Version,
			}).Error
	})
}

// AdvanceOngoingChat moves a conversation to a new flow/question only if the
// row is still at the given version. It returns ErrConflict otherwise.
func (s *Service) AdvanceOngoingChat(ctx context.Context, phoneNumber string, version int, flowID, questionID *string) error {
	res := s.DB.WithContext(ctx).Model(&models.OngoingChat{}).
		Where("phone_number = ? AND version = ?", phoneNumber, version).
		Updates(map[string]any{
			"chat_flow_id":        flowID,
			"current_question_id": questionID,
			"version":             gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// DeleteOngoingChat ends a conversation if it is still at the given version.
func (s *Service) DeleteOngoingChat(ctx context.Context, phoneNumber string, version int) error {
	res := s.DB.WithContext(ctx).
		Where("phone_number = ? AND version = ?", phoneNumber, version).
		Delete(&models.OngoingChat{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// AnswerOngoingChat records an answer and moves the conversation on in one
// transaction. A nil nextQuestionID ends the conversation. It returns
// ErrConflict, with nothing written, when the row is no longer at version.
func (s *Service) AnswerOngoingChat(ctx context.Context, phoneNumber string, version int, nextQuestionID *string, r *models.UserResponse) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&models.OngoingChat{}).Where("phone_number = ? AND version = ?", phoneNumber, version)
		var res *gorm.DB
		if nextQuestionID != nil {
			res = q.Updates(map[string]any{
				"current_question_id": nextQuestionID,
				"version":             gorm.Expr("version + 1"),
			})
		} else {
			res = q.Delete(&models.OngoingChat{})
		}
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		return tx.Create(r).Error
	})
}

func (s *Service) ListUserResponses(ctx context.Context, phoneNumber string) ([]models.UserResponse, error) {
	var responses []models.UserResponse
	err := s.DB.WithContext(ctx).
		Where("phone_number = ?", phoneNumber).
		Order("created_at asc").
		Find(&responses).Error
	return responses, err
}
