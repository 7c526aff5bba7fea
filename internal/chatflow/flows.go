// Package chatflow holds the chat flow catalogue and the per-phone-number
// conversation engine that walks users through a flow over WhatsApp.
package chatflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"msgflow/backend/internal/models"
)

var (
	// ErrValidation is returned for malformed flow or conversation input.
	ErrValidation = errors.New("invalid chat flow input")
	// ErrNoQuestions is returned when a conversation is started on an empty flow.
	ErrNoQuestions = errors.New("chat flow has no questions")
	// ErrConversationConflict means another request changed the conversation
	// between our read and our write.
	ErrConversationConflict = errors.New("conversation was modified concurrently")
)

// FlowStorage is the part of the storage layer the flow catalogue needs.
type FlowStorage interface {
	CreateChatFlow(ctx context.Context, flow *models.ChatFlow) error
	GetChatFlow(ctx context.Context, id string) (*models.ChatFlow, error)
	ListChatFlows(ctx context.Context) ([]models.ChatFlow, error)
	UpdateChatFlow(ctx context.Context, id string, updates map[string]any) (*models.ChatFlow, error)
	AddQuestion(ctx context.Context, flowID string, q *models.Question) error
	DeleteChatFlow(ctx context.Context, id string) error
	DeleteAllChatFlows(ctx context.Context) error
}

type QuestionInput struct {
	Question    string           `json:"question"`
	FieldName   string           `json:"fieldName"`
	FieldType   models.FieldType `json:"fieldType"`
	Description *string          `json:"description"`
}

type CreateFlowInput struct {
	Name              string          `json:"name"`
	Description       *string         `json:"description"`
	CompletionMessage *string         `json:"completionMessage"`
	Questions         []QuestionInput `json:"questions"`
}

// UpdateFlowInput changes only the fields that are set.
type UpdateFlowInput struct {
	Name              *string `json:"name"`
	Description       *string `json:"description"`
	CompletionMessage *string `json:"completionMessage"`
}

type FlowService struct {
	storage FlowStorage
}

func NewFlowService(s FlowStorage) *FlowService {
	return &FlowService{storage: s}
}

func (in QuestionInput) toModel() (models.Question, error) {
	q := models.Question{
		Question:    strings.TrimSpace(in.Question),
		FieldName:   strings.TrimSpace(in.FieldName),
		FieldType:   in.FieldType,
		Description: in.Description,
	}
	if q.Question == "" || q.FieldName == "" {
		return q, fmt.Errorf("%w: question and fieldName are required", ErrValidation)
	}
	if q.FieldType == "" {
		q.FieldType = models.FieldText
	}
	if !q.FieldType.Valid() {
		return q, fmt.Errorf("%w: unknown field type %q", ErrValidation, in.FieldType)
	}
	return q, nil
}

// Create stores a new flow after the existing ones. Questions are kept in the
// order given.
func (s *FlowService) Create(ctx context.Context, in CreateFlowInput) (*models.ChatFlow, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}

	flow := &models.ChatFlow{
		Name:              name,
		Description:       in.Description,
		CompletionMessage: in.CompletionMessage,
		Questions:         make([]models.Question, 0, len(in.Questions)),
	}
	for i, qi := range in.Questions {
		q, err := qi.toModel()
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i+1, err)
		}
		flow.Questions = append(flow.Questions, q)
	}

	if err := s.storage.CreateChatFlow(ctx, flow); err != nil {
		return nil, err
	}
	slog.Info("chat flow created", slog.String("id", flow.ID), slog.String("name", flow.Name), slog.Int("questions", len(flow.Questions)))
	return flow, nil
}

func (s *FlowService) Get(ctx context.Context, id string) (*models.ChatFlow, error) {
	return s.storage.GetChatFlow(ctx, id)
}

func (s *FlowService) List(ctx context.Context) ([]models.ChatFlow, error) {
	return s.storage.ListChatFlows(ctx)
}

func (s *FlowService) Update(ctx context.Context, id string, in UpdateFlowInput) (*models.ChatFlow, error) {
	updates := map[string]any{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name must not be empty", ErrValidation)
		}
		updates["name"] = name
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.CompletionMessage != nil {
		updates["completion_message"] = *in.CompletionMessage
	}
	return s.storage.UpdateChatFlow(ctx, id, updates)
}

// AddQuestion appends a question to the end of a flow.
func (s *FlowService) AddQuestion(ctx context.Context, flowID string, in QuestionInput) (*models.Question, error) {
	q, err := in.toModel()
	if err != nil {
		return nil, err
	}
	if err := s.storage.AddQuestion(ctx, flowID, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *FlowService) Delete(ctx context.Context, id string) error {
	if err := s.storage.DeleteChatFlow(ctx, id); err != nil {
		return err
	}
	slog.Info("chat flow deleted", slog.String("id", id))
	return nil
}

// DeleteAll removes every flow along with all conversations and responses.
func (s *FlowService) DeleteAll(ctx context.Context) error {
	if err := s.storage.DeleteAllChatFlows(ctx); err != nil {
		return err
	}
	slog.Warn("all chat flows deleted")
	return nil
}
