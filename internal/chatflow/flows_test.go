package chatflow

import (
	"context"
	"testing"

	"msgflow/backend/internal/models"
	"msgflow/backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestFlowService_Create(t *testing.T) {
	ms := new(MockFlowStorage)
	ms.On("CreateChatFlow", mock.Anything, mock.AnythingOfType("*models.ChatFlow")).Return(nil)
	svc := NewFlowService(ms)

	flow, err := svc.Create(context.Background(), CreateFlowInput{
		Name:              " Onboarding ",
		CompletionMessage: strPtr("Thanks!"),
		Questions: []QuestionInput{
			{Question: "Name?", FieldName: "name"},
			{Question: "Email?", FieldName: "email", FieldType: models.FieldEmail},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Onboarding", flow.Name)
	require.Len(t, flow.Questions, 2)
	assert.Equal(t, models.FieldText, flow.Questions[0].FieldType)
	assert.Equal(t, models.FieldEmail, flow.Questions[1].FieldType)
	assert.Equal(t, "Thanks!", *flow.CompletionMessage)
	ms.AssertExpectations(t)
}

func TestFlowService_CreateValidation(t *testing.T) {
	ms := new(MockFlowStorage)
	svc := NewFlowService(ms)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateFlowInput{Name: "  "})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, CreateFlowInput{Name: "x", Questions: []QuestionInput{{Question: "Q?"}}})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, CreateFlowInput{Name: "x", Questions: []QuestionInput{{Question: "Q?", FieldName: "f", FieldType: "BOOL"}}})
	assert.ErrorIs(t, err, ErrValidation)

	ms.AssertNotCalled(t, "CreateChatFlow", mock.Anything, mock.Anything)
}

func TestFlowService_Update(t *testing.T) {
	ms := new(MockFlowStorage)
	svc := NewFlowService(ms)
	ctx := context.Background()

	ms.On("UpdateChatFlow", mock.Anything, "f1", map[string]any{
		"name":               "Renamed",
		"completion_message": "Bye",
	}).Return(&models.ChatFlow{ID: "f1", Name: "Renamed"}, nil)

	flow, err := svc.Update(ctx, "f1", UpdateFlowInput{Name: strPtr(" Renamed "), CompletionMessage: strPtr("Bye")})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", flow.Name)

	_, err = svc.Update(ctx, "f1", UpdateFlowInput{Name: strPtr("")})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestFlowService_UpdateMissing(t *testing.T) {
	ms := new(MockFlowStorage)
	ms.On("UpdateChatFlow", mock.Anything, "nope", mock.Anything).Return(nil, storage.ErrNotFound)

	_, err := NewFlowService(ms).Update(context.Background(), "nope", UpdateFlowInput{Description: strPtr("d")})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFlowService_AddQuestion(t *testing.T) {
	ms := new(MockFlowStorage)
	ms.On("AddQuestion", mock.Anything, "f1", mock.MatchedBy(func(q *models.Question) bool {
		return q.Question == "Phone?" && q.FieldType == models.FieldPhone
	})).Return(nil)
	ms.On("AddQuestion", mock.Anything, "missing", mock.Anything).Return(storage.ErrNotFound)
	svc := NewFlowService(ms)

	q, err := svc.AddQuestion(context.Background(), "f1", QuestionInput{Question: "Phone?", FieldName: "phone", FieldType: models.FieldPhone})
	require.NoError(t, err)
	assert.Equal(t, "phone", q.FieldName)

	_, err = svc.AddQuestion(context.Background(), "missing", QuestionInput{Question: "x", FieldName: "y"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFlowService_Delete(t *testing.T) {
	ms := new(MockFlowStorage)
	ms.On("DeleteChatFlow", mock.Anything, "f1").Return(nil)
	ms.On("DeleteChatFlow", mock.Anything, "nope").Return(storage.ErrNotFound)
	ms.On("DeleteAllChatFlows", mock.Anything).Return(nil)
	svc := NewFlowService(ms)
	ctx := context.Background()

	assert.NoError(t, svc.Delete(ctx, "f1"))
	assert.ErrorIs(t, svc.Delete(ctx, "nope"), storage.ErrNotFound)
	assert.NoError(t, svc.DeleteAll(ctx))
	ms.AssertExpectations(t)
}

func TestFlowService_ListAndGet(t *testing.T) {
	ms := new(MockFlowStorage)
	flows := []models.ChatFlow{{ID: "a", Position: 0}, {ID: "b", Position: 1}}
	ms.On("ListChatFlows", mock.Anything).Return(flows, nil)
	ms.On("GetChatFlow", mock.Anything, "b").Return(&flows[1], nil)
	svc := NewFlowService(ms)

	got, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, flows, got)

	one, err := svc.Get(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, "b", one.ID)
}
