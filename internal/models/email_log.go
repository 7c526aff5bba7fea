package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// MessageTemplate is reusable content with {name} placeholders.
type MessageTemplate struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"uniqueIndex;not null" json:"name"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	Description *string   `gorm:"type:text" json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (t *MessageTemplate) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return
}

type EmailStatus string

const (
	EmailSent   EmailStatus = "SENT"
	EmailFailed EmailStatus = "FAILED"
)

// EmailLog records one outbound email.
type EmailLog struct {
	ID         string         `gorm:"primaryKey" json:"id"`
	To         pq.StringArray `gorm:"type:text[]" json:"to"`
	Subject    string         `gorm:"type:text;not null" json:"subject"`
	TemplateID *string        `json:"templateId,omitempty"`
	Status     EmailStatus    `gorm:"type:text;not null;index" json:"status"`
	Error      *string        `gorm:"type:text" json:"error,omitempty"`
	CreatedAt  time.Time      `gorm:"index" json:"createdAt"`
}

func (l *EmailLog) BeforeCreate(tx *gorm.DB) (err error) {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return
}
