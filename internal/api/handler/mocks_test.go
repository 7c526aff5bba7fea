package handler

import (
	"context"

	"msgflow/backend/internal/chatflow"
	"msgflow/backend/internal/email"
	"msgflow/backend/internal/messaging"
	"msgflow/backend/internal/models"
	"msgflow/backend/internal/schedule"

	"github.com/stretchr/testify/mock"
)

type MockFlows struct{ mock.Mock }

func (m *MockFlows) Create(ctx context.Context, in chatflow.CreateFlowInput) (*models.ChatFlow, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatFlow), args.Error(1)
}

func (m *MockFlows) Get(ctx context.Context, id string) (*models.ChatFlow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatFlow), args.Error(1)
}

func (m *MockFlows) List(ctx context.Context) ([]models.ChatFlow, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.ChatFlow), args.Error(1)
}

func (m *MockFlows) Update(ctx context.Context, id string, in chatflow.UpdateFlowInput) (*models.ChatFlow, error) {
	args := m.Called(ctx, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatFlow), args.Error(1)
}

func (m *MockFlows) AddQuestion(ctx context.Context, flowID string, in chatflow.QuestionInput) (*models.Question, error) {
	args := m.Called(ctx, flowID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Question), args.Error(1)
}

func (m *MockFlows) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockFlows) DeleteAll(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type MockConversations struct{ mock.Mock }

func (m *MockConversations) HandleInbound(ctx context.Context, from, body string) (string, error) {
	args := m.Called(ctx, from, body)
	return args.String(0), args.Error(1)
}

func (m *MockConversations) StartConversation(ctx context.Context, phone, flowID string) (string, error) {
	args := m.Called(ctx, phone, flowID)
	return args.String(0), args.Error(1)
}

type MockSchedules struct{ mock.Mock }

func (m *MockSchedules) Schedule(ctx context.Context, in schedule.Input) (*models.ScheduledMessage, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ScheduledMessage), args.Error(1)
}

func (m *MockSchedules) BulkSchedule(ctx context.Context, inputs []schedule.Input) schedule.BulkResult {
	return m.Called(ctx, inputs).Get(0).(schedule.BulkResult)
}

func (m *MockSchedules) List(ctx context.Context, status models.ScheduledStatus) ([]models.ScheduledMessage, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ScheduledMessage), args.Error(1)
}

func (m *MockSchedules) Get(ctx context.Context, id string) (*models.ScheduledMessage, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ScheduledMessage), args.Error(1)
}

func (m *MockSchedules) Update(ctx context.Context, id string, in schedule.UpdateInput) (*models.ScheduledMessage, error) {
	args := m.Called(ctx, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ScheduledMessage), args.Error(1)
}

func (m *MockSchedules) Cancel(ctx context.Context, id string) (*models.ScheduledMessage, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ScheduledMessage), args.Error(1)
}

type MockMessages struct{ mock.Mock }

func (m *MockMessages) Send(ctx context.Context, req messaging.Request) (*models.MessageLog, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MessageLog), args.Error(1)
}

func (m *MockMessages) SendBulk(ctx context.Context, reqs []messaging.Request) messaging.BulkResult {
	return m.Called(ctx, reqs).Get(0).(messaging.BulkResult)
}

func (m *MockMessages) ListLogs(ctx context.Context, filter models.MessageLogFilter) ([]models.MessageLog, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]models.MessageLog), args.Error(1)
}

type MockTemplates struct{ mock.Mock }

func (m *MockTemplates) Create(ctx context.Context, name, content string, description *string) (*models.MessageTemplate, error) {
	args := m.Called(ctx, name, content, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MessageTemplate), args.Error(1)
}

func (m *MockTemplates) List(ctx context.Context) ([]models.MessageTemplate, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.MessageTemplate), args.Error(1)
}

func (m *MockTemplates) Get(ctx context.Context, id string) (*models.MessageTemplate, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MessageTemplate), args.Error(1)
}

type MockMail struct{ mock.Mock }

func (m *MockMail) Send(ctx context.Context, req email.Request) (*models.EmailLog, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EmailLog), args.Error(1)
}

func (m *MockMail) SendBulk(ctx context.Context, req email.BulkRequest) (email.BulkResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(email.BulkResult), args.Error(1)
}

func (m *MockMail) ListLogs(ctx context.Context, limit, offset int) ([]models.EmailLog, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]models.EmailLog), args.Error(1)
}
