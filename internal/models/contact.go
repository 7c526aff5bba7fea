package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Contact is a person reachable on a messaging channel, keyed by phone number.
type Contact struct {
	ID          string         `gorm:"primaryKey" json:"id"`
	PhoneNumber string         `gorm:"uniqueIndex;not null" json:"phoneNumber"`
	Name        *string        `json:"name,omitempty"`
	Email       *string        `json:"email,omitempty"`
	Tags        pq.StringArray `gorm:"type:text[]" json:"tags,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// BeforeCreate generates a UUID for the contact if ID is not set yet.
func (c *Contact) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return
}
