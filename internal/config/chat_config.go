package config

import "time"

const (
	// Conversation
	PassThroughTemplateName    = "generic_response"
	PassThroughTemplateContent = "{message}"
	PassThroughVariable        = "message"
	DefaultLanguage            = "en"
	ConversationLockTTL        = 30 * time.Second
	ConversationLockWait       = 5 * time.Second
	ConversationLockRetry      = 100 * time.Millisecond

	// Sweep
	DefaultSweepInterval    = time.Minute
	DefaultSweepMaxAttempts = 1
	DefaultBackoffBase      = 30 * time.Second
	DefaultBackoffMax       = 30 * time.Minute

	// Auth
	TokenTTL    = 72 * time.Hour
	TokenIssuer = "msgflow-service"

	// Events
	EventsChannel = "msgflow:events"
)

// Reply keys resolved through the localizer.
const (
	ReplyNoFlows          = "no_flows"
	ReplyMenuHeader       = "menu_header"
	ReplyInvalidSelection = "invalid_selection"
	ReplyFlowUnavailable  = "flow_unavailable"
	ReplyCompleted        = "completed"
	ReplySessionExpired   = "session_expired"
)
