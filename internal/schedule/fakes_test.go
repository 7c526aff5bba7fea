package schedule_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"msgflow/backend/internal/messaging"
	"msgflow/backend/internal/models"
	"msgflow/backend/internal/storage"

	"github.com/stretchr/testify/mock"
	"gorm.io/datatypes"
)

// memStore mirrors the database semantics of scheduled messages in memory.
type memStore struct {
	mu        sync.Mutex
	templates map[string]*models.MessageTemplate
	messages  map[string]*models.ScheduledMessage
	contacts  map[string]*models.Contact
	events    []models.DeliveryEvent
	seq       int
}

func newMemStore() *memStore {
	return &memStore{
		templates: map[string]*models.MessageTemplate{},
		messages:  map[string]*models.ScheduledMessage{},
		contacts:  map[string]*models.Contact{},
	}
}

func (s *memStore) GetTemplate(ctx context.Context, id string) (*models.MessageTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return t, nil
}

func (s *memStore) FindOrCreateContact(ctx context.Context, phone string) (*models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.contacts[phone]; ok {
		return c, nil
	}
	c := &models.Contact{ID: "c-" + phone, PhoneNumber: phone}
	s.contacts[phone] = c
	return c, nil
}

func (s *memStore) CreateScheduledMessage(ctx context.Context, m *models.ScheduledMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		s.seq++
		m.ID = fmt.Sprintf("m%d", s.seq)
	}
	if m.Status == "" {
		m.Status = models.ScheduledPending
	}
	cp := *m
	s.messages[m.ID] = &cp
	return nil
}

func (s *memStore) put(m models.ScheduledMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.ID] = &m
}

func (s *memStore) get(id string) models.ScheduledMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.messages[id]
}

func (s *memStore) GetScheduledMessage(ctx context.Context, id string) (*models.ScheduledMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *memStore) ListScheduledMessages(ctx context.Context, status models.ScheduledStatus) ([]models.ScheduledMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ScheduledMessage
	for _, m := range s.messages {
		if status == "" || m.Status == status {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledTime.Before(out[j].ScheduledTime) })
	return out, nil
}

func (s *memStore) UpdateScheduledMessage(ctx context.Context, id string, updates map[string]any) (*models.ScheduledMessage, error) {
	s.mu.Lock()
	m, ok := s.messages[id]
	if !ok {
		s.mu.Unlock()
		return nil, storage.ErrNotFound
	}
	for k, v := range updates {
		switch k {
		case "status":
			m.Status = v.(models.ScheduledStatus)
		case "template_id":
			id := v.(string)
			m.TemplateID = &id
		case "variables":
			m.Variables = v.(datatypes.JSONMap)
		case "scheduled_time":
			m.ScheduledTime = v.(time.Time)
		case "attempts":
			m.Attempts = v.(int)
		case "last_error":
			m.LastError = nil
		}
	}
	s.mu.Unlock()
	return s.GetScheduledMessage(ctx, id)
}

func (s *memStore) DueScheduledMessages(ctx context.Context, now time.Time, limit int) ([]models.ScheduledMessage, error) {
	all, _ := s.ListScheduledMessages(ctx, models.ScheduledPending)
	var out []models.ScheduledMessage
	for _, m := range all {
		if !m.ScheduledTime.After(now) {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// pending returns the row for a sweep write, or the error the database would
// give: the context's error or ErrConflict once the row left PENDING.
func (s *memStore) pending(ctx context.Context, id string) (*models.ScheduledMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, ok := s.messages[id]
	if !ok || m.Status != models.ScheduledPending {
		return nil, storage.ErrConflict
	}
	return m, nil
}

func (s *memStore) MarkScheduledSent(ctx context.Context, id, providerID string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.pending(ctx, id)
	if err != nil {
		return err
	}
	m.Status = models.ScheduledSent
	m.SentAt = &sentAt
	m.Attempts++
	m.LastError = nil
	if providerID != "" {
		m.ProviderMessageID = &providerID
	}
	return nil
}

func (s *memStore) MarkScheduledFailed(ctx context.Context, id string, attempts int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.pending(ctx, id)
	if err != nil {
		return err
	}
	m.Status = models.ScheduledFailed
	m.Attempts = attempts
	m.LastError = &reason
	return nil
}

func (s *memStore) RetryScheduledLater(ctx context.Context, id string, attempts int, next time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.pending(ctx, id)
	if err != nil {
		return err
	}
	m.Status = models.ScheduledPending
	m.Attempts = attempts
	m.ScheduledTime = next
	m.LastError = &reason
	return nil
}

func (s *memStore) PublishEvent(ctx context.Context, ev models.DeliveryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, req messaging.Request) (*models.MessageLog, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MessageLog), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyFailed(ctx context.Context, msg *models.ScheduledMessage, reason string) error {
	args := m.Called(ctx, msg, reason)
	return args.Error(0)
}
