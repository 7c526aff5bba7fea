package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChatFlow is an ordered questionnaire presented over a messaging channel.
type ChatFlow struct {
	ID                string     `gorm:"primaryKey" json:"id"`
	Name              string     `gorm:"type:text;not null" json:"name"`
	Description       *string    `gorm:"type:text" json:"description,omitempty"`
	CompletionMessage *string    `gorm:"type:text" json:"completionMessage,omitempty"`
	Position          int        `gorm:"not null;default:0;index" json:"position"`
	Questions         []Question `gorm:"foreignKey:ChatFlowID" json:"questions"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

func (f *ChatFlow) BeforeCreate(tx *gorm.DB) (err error) {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	return
}

type FieldType string

const (
	FieldText   FieldType = "TEXT"
	FieldNumber FieldType = "NUMBER"
	FieldEmail  FieldType = "EMAIL"
	FieldPhone  FieldType = "PHONE"
	FieldDate   FieldType = "DATE"
	FieldChoice FieldType = "CHOICE"
)

func (t FieldType) Valid() bool {
	switch t {
	case FieldText, FieldNumber, FieldEmail, FieldPhone, FieldDate, FieldChoice:
		return true
	}
	return false
}

// Question is one prompt of a ChatFlow. FieldType is informational; answers
// are stored verbatim.
type Question struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	ChatFlowID  string    `gorm:"not null;index" json:"chatFlowId"`
	Question    string    `gorm:"type:text;not null" json:"question"`
	FieldName   string    `gorm:"type:text;not null" json:"fieldName"`
	FieldType   FieldType `gorm:"type:text;not null;default:TEXT" json:"fieldType"`
	Description *string   `gorm:"type:text" json:"description,omitempty"`
	Position    int       `gorm:"not null;default:0" json:"position"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (q *Question) BeforeCreate(tx *gorm.DB) (err error) {
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	if q.FieldType == "" {
		q.FieldType = FieldText
	}
	return
}

// OngoingChat is the live conversation state of one phone number.
// A nil ChatFlowID means the flow menu was sent and a selection is pending.
type OngoingChat struct {
	PhoneNumber       string    `gorm:"primaryKey" json:"phoneNumber"`
	ChatFlowID        *string   `gorm:"index" json:"chatFlowId,omitempty"`
	CurrentQuestionID *string   `json:"currentQuestionId,omitempty"`
	Version           int       `gorm:"not null;default:0" json:"version"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// AwaitingSelection reports whether the chat is still on the flow menu.
func (c *OngoingChat) AwaitingSelection() bool {
	return c.ChatFlowID == nil
}

// UserResponse is the verbatim answer to one question.
type UserResponse struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	PhoneNumber string    `gorm:"type:text;not null;index" json:"phoneNumber"`
	QuestionID  string    `gorm:"not null;index" json:"questionId"`
	Response    string    `gorm:"type:text;not null" json:"response"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (r *UserResponse) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return
}
