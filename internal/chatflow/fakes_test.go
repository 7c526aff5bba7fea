package chatflow

import (
	"context"
	"sync"
	"time"

	"msgflow/backend/internal/messaging"
	"msgflow/backend/internal/models"
	"msgflow/backend/internal/storage"

	"github.com/stretchr/testify/mock"
)

// fakeStore keeps conversation state in memory with the same version
// semantics as the database implementation.
type fakeStore struct {
	mu        sync.Mutex
	flows     []models.ChatFlow
	chats     map[string]models.OngoingChat
	responses []models.UserResponse
	contacts  map[string]*models.Contact
	events    []models.DeliveryEvent
	locked    bool
	lockCalls int
	// responseErr fails the answer write as a whole, as a rolled back
	// transaction would.
	responseErr error

	// beforeWrite runs before every versioned write; tests use it to
	// change the row underneath the engine.
	beforeWrite func(s *fakeStore)
}

func newFakeStore(flows ...models.ChatFlow) *fakeStore {
	return &fakeStore{
		flows:    flows,
		chats:    map[string]models.OngoingChat{},
		contacts: map[string]*models.Contact{},
	}
}

func (s *fakeStore) ListChatFlows(ctx context.Context) ([]models.ChatFlow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ChatFlow(nil), s.flows...), nil
}

func (s *fakeStore) GetChatFlow(ctx context.Context, id string) (*models.ChatFlow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.flows {
		if f.ID == id {
			f := f
			return &f, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *fakeStore) ListQuestions(ctx context.Context, flowID string) ([]models.Question, error) {
	f, err := s.GetChatFlow(ctx, flowID)
	if err != nil {
		return nil, nil
	}
	return f.Questions, nil
}

func (s *fakeStore) GetOngoingChat(ctx context.Context, phone string) (*models.OngoingChat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[phone]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &c, nil
}

func (s *fakeStore) PutOngoingChat(ctx context.Context, chat *models.OngoingChat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.chats[chat.PhoneNumber]; ok {
		chat.Version = existing.Version + 1
	} else {
		chat.Version = 0
	}
	s.chats[chat.PhoneNumber] = *chat
	return nil
}

func (s *fakeStore) runBeforeWrite() {
	if s.beforeWrite != nil {
		hook := s.beforeWrite
		s.beforeWrite = nil
		hook(s)
	}
}

func (s *fakeStore) AdvanceOngoingChat(ctx context.Context, phone string, version int, flowID, questionID *string) error {
	s.runBeforeWrite()
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[phone]
	if !ok || c.Version != version {
		return storage.ErrConflict
	}
	c.ChatFlowID = flowID
	c.CurrentQuestionID = questionID
	c.Version++
	s.chats[phone] = c
	return nil
}

func (s *fakeStore) DeleteOngoingChat(ctx context.Context, phone string, version int) error {
	s.runBeforeWrite()
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[phone]
	if !ok || c.Version != version {
		return storage.ErrConflict
	}
	delete(s.chats, phone)
	return nil
}

func (s *fakeStore) AnswerOngoingChat(ctx context.Context, phone string, version int, nextQuestionID *string, r *models.UserResponse) error {
	s.runBeforeWrite()
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[phone]
	if !ok || c.Version != version {
		return storage.ErrConflict
	}
	if s.responseErr != nil {
		return s.responseErr
	}
	if nextQuestionID != nil {
		c.CurrentQuestionID = nextQuestionID
		c.Version++
		s.chats[phone] = c
	} else {
		delete(s.chats, phone)
	}
	s.responses = append(s.responses, *r)
	return nil
}

func (s *fakeStore) FindOrCreateContact(ctx context.Context, phone string) (*models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.contacts[phone]; ok {
		return c, nil
	}
	c := &models.Contact{ID: "contact-" + phone, PhoneNumber: phone}
	s.contacts[phone] = c
	return c, nil
}

func (s *fakeStore) AcquireLock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockCalls++
	if s.locked {
		return nil, storage.ErrLocked
	}
	return func() {}, nil
}

func (s *fakeStore) PublishEvent(ctx context.Context, ev models.DeliveryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeStore) chat(phone string) (models.OngoingChat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[phone]
	return c, ok
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

// sentTexts returns the pass-through text of every reply sent so far.
func (m *MockSender) sentTexts() []string {
	var out []string
	for _, c := range m.Calls {
		if c.Method != "Send" {
			continue
		}
		out = append(out, c.Arguments.Get(1).(messaging.Request).Variables["message"])
	}
	return out
}

type MockTemplates struct {
	mock.Mock
}

func (m *MockTemplates) EnsureByName(ctx context.Context, name, content string) (*models.MessageTemplate, error) {
	args := m.Called(ctx, name, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MessageTemplate), args.Error(1)
}

type MockFlowStorage struct {
	mock.Mock
}

func (m *MockFlowStorage) CreateChatFlow(ctx context.Context, flow *models.ChatFlow) error {
	args := m.Called(ctx, flow)
	return args.Error(0)
}

func (m *MockFlowStorage) GetChatFlow(ctx context.Context, id string) (*models.ChatFlow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatFlow), args.Error(1)
}

func (m *MockFlowStorage) ListChatFlows(ctx context.Context) ([]models.ChatFlow, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.ChatFlow), args.Error(1)
}

func (m *MockFlowStorage) UpdateChatFlow(ctx context.Context, id string, updates map[string]any) (*models.ChatFlow, error) {
	args := m.Called(ctx, id, updates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatFlow), args.Error(1)
}

func (m *MockFlowStorage) AddQuestion(ctx context.Context, flowID string, q *models.Question) error {
	args := m.Called(ctx, flowID, q)
	return args.Error(0)
}

func (m *MockFlowStorage) DeleteChatFlow(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockFlowStorage) DeleteAllChatFlows(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
