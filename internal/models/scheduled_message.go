package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ScheduledStatus string

const (
	ScheduledPending   ScheduledStatus = "PENDING"
	ScheduledSent      ScheduledStatus = "SENT"
	ScheduledFailed    ScheduledStatus = "FAILED"
	ScheduledCancelled ScheduledStatus = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s ScheduledStatus) Valid() bool {
	switch s {
	case ScheduledPending, ScheduledSent, ScheduledFailed, ScheduledCancelled:
		return true
	}
	return false
}

// ScheduledMessage is a deferred send request picked up by the sweep once
// ScheduledTime has passed. Either TemplateID or Body must be usable at send
// time; this is not checked at creation.
type ScheduledMessage struct {
	ID                string            `gorm:"primaryKey" json:"id"`
	To                string            `gorm:"type:text;not null" json:"to"`
	From              *string           `gorm:"type:text" json:"from,omitempty"`
	MessageType       MessageType       `gorm:"type:text;not null;default:WHATSAPP" json:"messageType"`
	Body              *string           `gorm:"type:text" json:"body,omitempty"`
	TemplateID        *string           `gorm:"index" json:"templateId,omitempty"`
	Template          *MessageTemplate  `gorm:"foreignKey:TemplateID" json:"messageTemplate,omitempty"`
	Variables         datatypes.JSONMap `json:"variables,omitempty"`
	ScheduledTime     time.Time         `gorm:"not null;index:idx_due,priority:2" json:"scheduledTime"`
	Status            ScheduledStatus   `gorm:"type:text;not null;default:PENDING;index:idx_due,priority:1" json:"status"`
	SentAt            *time.Time        `json:"sentAt,omitempty"`
	ContactID         *string           `gorm:"index" json:"contactId,omitempty"`
	Attempts          int               `gorm:"not null;default:0" json:"attempts"`
	LastError         *string           `gorm:"type:text" json:"lastError,omitempty"`
	ProviderMessageID *string           `gorm:"type:text" json:"providerMessageId,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

func (m *ScheduledMessage) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Status == "" {
		m.Status = ScheduledPending
	}
	if m.MessageType == "" {
		m.MessageType = WhatsApp
	}
	return
}

// StringVariables flattens Variables into template substitutions.
func (m *ScheduledMessage) StringVariables() map[string]string {
	return StringMap(m.Variables)
}

// StringMap converts JSON values to their string form; nil values are dropped.
func StringMap(src datatypes.JSONMap) map[string]string {
	out := make(map[string]string, len(src))
	for k, v := range src {
		switch val := v.(type) {
		case nil:
		case string:
			out[k] = val
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

// JSONMapOf converts template substitutions into a storable JSON map.
func JSONMapOf(vars map[string]string) datatypes.JSONMap {
	if vars == nil {
		return nil
	}
	out := make(datatypes.JSONMap, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out
}
