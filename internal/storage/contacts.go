package storage

import (
	"context"
	"errors"
	"log/slog"
	"msgflow/backend/internal/models"

	"gorm.io/gorm"
)

// FindContactByPhone returns nil without error when no contact matches.
func (s *Service) FindContactByPhone(ctx context.Context, phoneNumber string) (*models.Contact, error) {
	var c models.Contact
	err := s.DB.WithContext(ctx).Where("phone_number = ?", phoneNumber).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Service) CreateContact(ctx context.Context, c *models.Contact) error {
	return s.DB.WithContext(ctx).Create(c).Error
}

// FindOrCreateContact returns the contact for a phone number, creating a bare
// one on first contact.
func (s *Service) FindOrCreateContact(ctx context.Context, phoneNumber string) (*models.Contact, error) {
	var c models.Contact
	res := s.DB.WithContext(ctx).
		Where("phone_number = ?", phoneNumber).
		FirstOrCreate(&c, models.Contact{PhoneNumber: phoneNumber})
	if res.Error != nil {
		slog.Error("failed to find or create contact", slog.String("phone", phoneNumber), slog.String("error", res.Error.Error()))
		return nil, res.Error
	}
	if res.RowsAffected > 0 {
		slog.Info("new contact saved", slog.String("id", c.ID), slog.String("phone", phoneNumber))
	}
	return &c, nil
}

func (s *Service) ListContacts(ctx context.Context) ([]models.Contact, error) {
	var contacts []models.Contact
	err := s.DB.WithContext(ctx).Order("created_at asc").Find(&contacts).Error
	return contacts, err
}
