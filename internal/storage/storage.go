package storage

import (
	"context"
	"errors"
	"msgflow/backend/internal/models"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when an optimistic version check fails.
	ErrConflict = errors.New("record was modified concurrently")
)

// Storage is the full persistence surface of the service. Consumers depend on
// narrower interfaces declared in their own packages.
type Storage interface {
	CreateChatFlow(ctx context.Context, flow *models.ChatFlow) error
	GetChatFlow(ctx context.Context, id string) (*models.ChatFlow, error)
	ListChatFlows(ctx context.Context) ([]models.ChatFlow, error)
	UpdateChatFlow(ctx context.Context, id string, updates map[string]any) (*models.ChatFlow, error)
	AddQuestion(ctx context.Context, flowID string, q *models.Question) error
	ListQuestions(ctx context.Context, flowID string) ([]models.Question, error)
	DeleteChatFlow(ctx context.Context, id string) error
	DeleteAllChatFlows(ctx context.Context) error

	GetOngoingChat(ctx context.Context, phoneNumber string) (*models.OngoingChat, error)
	PutOngoingChat(ctx context.Context, chat *models.OngoingChat) error
	AdvanceOngoingChat(ctx context.Context, phoneNumber string, version int, flowID, questionID *string) error
	DeleteOngoingChat(ctx context.Context, phoneNumber string, version int) error
	AnswerOngoingChat(ctx context.Context, phoneNumber string, version int, nextQuestionID *string, r *models.UserResponse) error
	ListUserResponses(ctx context.Context, phoneNumber string) ([]models.UserResponse, error)

	CreateTemplate(ctx context.Context, t *models.MessageTemplate) error
	GetTemplate(ctx context.Context, id string) (*models.MessageTemplate, error)
	ListTemplates(ctx context.Context) ([]models.MessageTemplate, error)
	EnsureTemplate(ctx context.Context, name, content string) (*models.MessageTemplate, error)

	FindContactByPhone(ctx context.Context, phoneNumber string) (*models.Contact, error)
	CreateContact(ctx context.Context, c *models.Contact) error
	FindOrCreateContact(ctx context.Context, phoneNumber string) (*models.Contact, error)
	ListContacts(ctx context.Context) ([]models.Contact, error)

	CreateScheduledMessage(ctx context.Context, m *models.ScheduledMessage) error
	GetScheduledMessage(ctx context.Context, id string) (*models.ScheduledMessage, error)
	ListScheduledMessages(ctx context.Context, status models.ScheduledStatus) ([]models.ScheduledMessage, error)
	UpdateScheduledMessage(ctx context.Context, id string, updates map[string]any) (*models.ScheduledMessage, error)
	DueScheduledMessages(ctx context.Context, now time.Time, limit int) ([]models.ScheduledMessage, error)
	MarkScheduledSent(ctx context.Context, id, providerMessageID string, sentAt time.Time) error
	MarkScheduledFailed(ctx context.Context, id string, attempts int, reason string) error
	RetryScheduledLater(ctx context.Context, id string, attempts int, next time.Time, reason string) error

	CreateMessageLog(ctx context.Context, l *models.MessageLog) error
	ListMessageLogs(ctx context.Context, filter models.MessageLogFilter) ([]models.MessageLog, error)

	CreateEmailLog(ctx context.Context, l *models.EmailLog) error
	ListEmailLogs(ctx context.Context, limit, offset int) ([]models.EmailLog, error)

	AcquireLock(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
	PublishEvent(ctx context.Context, ev models.DeliveryEvent) error
}

var _ Storage = (*Service)(nil)

// Service implements Storage on PostgreSQL (via GORM) and Redis.
// Redis is optional: with a nil client locks are no-ops and events are dropped.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
	}
}

// Migrate creates or updates every table.
func (s *Service) Migrate() error {
	return s.DB.AutoMigrate(models.AllModels()...)
}

// notFound translates GORM's sentinel into ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
