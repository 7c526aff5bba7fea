package models

import "time"

type EventType string

const (
	EventMessageLogged     EventType = "message_logged"
	EventScheduledSent     EventType = "scheduled_sent"
	EventScheduledFailed   EventType = "scheduled_failed"
	EventScheduledRetry    EventType = "scheduled_retry"
	EventConversationEnded EventType = "conversation_completed"
)

// DeliveryEvent is broadcast over Redis Pub/Sub and pushed to WebSocket
// subscribers.
type DeliveryEvent struct {
	Type        EventType   `json:"type"`
	MessageID   string      `json:"message_id,omitempty"`
	To          string      `json:"to"`
	MessageType MessageType `json:"message_type,omitempty"`
	Status      string      `json:"status,omitempty"`
	Error       string      `json:"error,omitempty"`
	At          time.Time   `json:"at"`
}

// AllModels lists every table for AutoMigrate.
func AllModels() []any {
	return []any{
		&Contact{},
		&MessageTemplate{},
		&ChatFlow{},
		&Question{},
		&OngoingChat{},
		&UserResponse{},
		&ScheduledMessage{},
		&MessageLog{},
		&EmailLog{},
	}
}
