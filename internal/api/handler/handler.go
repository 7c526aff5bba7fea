package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"msgflow/backend/internal/chatflow"
	"msgflow/backend/internal/email"
	"msgflow/backend/internal/gateway"
	"msgflow/backend/internal/messaging"
	"msgflow/backend/internal/models"
	"msgflow/backend/internal/schedule"
	"msgflow/backend/internal/scheduler"
	"msgflow/backend/internal/storage"
	"msgflow/backend/internal/templates"

	"github.com/gin-gonic/gin"
)

type FlowCatalog interface {
	Create(ctx context.Context, in chatflow.CreateFlowInput) (*models.ChatFlow, error)
	Get(ctx context.Context, id string) (*models.ChatFlow, error)
	List(ctx context.Context) ([]models.ChatFlow, error)
	Update(ctx context.Context, id string, in chatflow.UpdateFlowInput) (*models.ChatFlow, error)
	AddQuestion(ctx context.Context, flowID string, in chatflow.QuestionInput) (*models.Question, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
}

type Conversations interface {
	HandleInbound(ctx context.Context, from, body string) (string, error)
	StartConversation(ctx context.Context, phone, flowID string) (string, error)
}

type Schedules interface {
	Schedule(ctx context.Context, in schedule.Input) (*models.ScheduledMessage, error)
	BulkSchedule(ctx context.Context, inputs []schedule.Input) schedule.BulkResult
	List(ctx context.Context, status models.ScheduledStatus) ([]models.ScheduledMessage, error)
	Get(ctx context.Context, id string) (*models.ScheduledMessage, error)
	Update(ctx context.Context, id string, in schedule.UpdateInput) (*models.ScheduledMessage, error)
	Cancel(ctx context.Context, id string) (*models.ScheduledMessage, error)
}

// SweepControl is satisfied by *scheduler.Scheduler.
type SweepControl interface {
	Start() bool
	Stop() bool
	Status() scheduler.Status
}

type Messages interface {
	Send(ctx context.Context, req messaging.Request) (*models.MessageLog, error)
	SendBulk(ctx context.Context, reqs []messaging.Request) messaging.BulkResult
	ListLogs(ctx context.Context, filter models.MessageLogFilter) ([]models.MessageLog, error)
}

type Templates interface {
	Create(ctx context.Context, name, content string, description *string) (*models.MessageTemplate, error)
	List(ctx context.Context) ([]models.MessageTemplate, error)
	Get(ctx context.Context, id string) (*models.MessageTemplate, error)
}

type Mail interface {
	Send(ctx context.Context, req email.Request) (*models.EmailLog, error)
	SendBulk(ctx context.Context, req email.BulkRequest) (email.BulkResult, error)
	ListLogs(ctx context.Context, limit, offset int) ([]models.EmailLog, error)
}

// WebhookVerifier is satisfied by *client.RequestValidator from twilio-go.
type WebhookVerifier interface {
	Validate(url string, params map[string]string, expectedSignature string) bool
}

// EventStream upgrades a request into a live event subscription.
type EventStream interface {
	ServeWS(w http.ResponseWriter, r *http.Request, subscriber string, types []models.EventType) error
}

// Auth holds the credentials used to issue and verify API tokens.
type Auth struct {
	JWTSecret []byte
	APIKey    string
	TokenTTL  time.Duration
}

// Handler wires HTTP routes to the services.
type Handler struct {
	Flows         FlowCatalog
	Conversations Conversations
	Schedules     Schedules
	Sweep         SweepControl
	Messages      Messages
	Templates     Templates
	Mail          Mail
	Events        EventStream
	Auth          Auth
	// AllowedOrigins for CORS; empty allows any origin.
	AllowedOrigins []string
	// Webhook verifies inbound Twilio requests; nil accepts them unsigned.
	Webhook    WebhookVerifier
	WebhookURL string
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// respondError maps service errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, chatflow.ErrValidation),
		errors.Is(err, messaging.ErrValidation),
		errors.Is(err, schedule.ErrValidation),
		errors.Is(err, templates.ErrInvalidTemplate),
		errors.Is(err, email.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, chatflow.ErrConversationConflict),
		errors.Is(err, storage.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, gateway.ErrTransport),
		errors.Is(err, email.ErrDelivery):
		status = http.StatusBadGateway
	case errors.Is(err, email.ErrDisabled):
		status = http.StatusServiceUnavailable
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
