package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MessageDirection string

const (
	Inbound  MessageDirection = "INBOUND"
	Outbound MessageDirection = "OUTBOUND"
)

type MessageStatus string

const (
	MessageSent      MessageStatus = "SENT"
	MessageFailed    MessageStatus = "FAILED"
	MessageDelivered MessageStatus = "DELIVERED"
)

// MessageType is the channel a message travels on.
type MessageType string

const (
	WhatsApp MessageType = "WHATSAPP"
	SMS      MessageType = "SMS"
)

// Valid reports whether t is a known channel.
func (t MessageType) Valid() bool {
	return t == WhatsApp || t == SMS
}

// MessageLog is an append-only audit record of one send attempt.
type MessageLog struct {
	ID                string           `gorm:"primaryKey" json:"id"`
	To                string           `gorm:"type:text;not null;index" json:"to"`
	From              string           `gorm:"type:text" json:"from"`
	Body              string           `gorm:"type:text;not null" json:"body"`
	Direction         MessageDirection `gorm:"type:text;not null" json:"direction"`
	Status            MessageStatus    `gorm:"type:text;not null;index" json:"status"`
	MessageType       MessageType      `gorm:"type:text;not null" json:"type"`
	ProviderMessageID *string          `gorm:"type:text" json:"providerMessageId,omitempty"`
	Error             *string          `gorm:"type:text" json:"error,omitempty"`
	ContactID         *string          `gorm:"index" json:"contactId,omitempty"`
	CreatedAt         time.Time        `gorm:"index" json:"createdAt"`
}

func (l *MessageLog) BeforeCreate(tx *gorm.DB) (err error) {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return
}

// MessageLogFilter narrows audit queries. Zero values match everything.
type MessageLogFilter struct {
	To          string
	MessageType MessageType
	Status      MessageStatus
	Limit       int
	Offset      int
}
