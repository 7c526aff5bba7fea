package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"msgflow/backend/internal/chatflow"
	"msgflow/backend/internal/email"
	"msgflow/backend/internal/events"
	"msgflow/backend/internal/gateway"
	"msgflow/backend/internal/messaging"
	"msgflow/backend/internal/models"
	"msgflow/backend/internal/schedule"
	"msgflow/backend/internal/scheduler"
	"msgflow/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	router        *gin.Engine
	handler       *Handler
	flows         *MockFlows
	conversations *MockConversations
	schedules     *MockSchedules
	messages      *MockMessages
	templates     *MockTemplates
	mail          *MockMail
	hub           *events.Hub
	sweep         *scheduler.Scheduler
	token         string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sweep, err := scheduler.New("sweep", time.Hour, func(context.Context) {})
	require.NoError(t, err)
	t.Cleanup(func() { sweep.Stop() })

	hub := events.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	env := &testEnv{
		flows:         &MockFlows{},
		conversations: &MockConversations{},
		schedules:     &MockSchedules{},
		messages:      &MockMessages{},
		templates:     &MockTemplates{},
		mail:          &MockMail{},
		hub:           hub,
		sweep:         sweep,
	}
	env.handler = &Handler{
		Flows:         env.flows,
		Conversations: env.conversations,
		Schedules:     env.schedules,
		Sweep:         sweep,
		Messages:      env.messages,
		Templates:     env.templates,
		Mail:          env.mail,
		Events:        hub,
		Auth:          Auth{JWTSecret: []byte("test-secret"), APIKey: "key-123", TokenTTL: time.Hour},
	}
	env.router = Router(env.handler)

	env.token, err = env.handler.Auth.generateJWT("tester", time.Now())
	require.NoError(t, err)
	return env
}

func (e *testEnv) request(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token)
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &m), "body=%q", rr.Body.String())
	return m
}

func TestHealthIsPublic(t *testing.T) {
	env := newTestEnv(t)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decode(t, rr)["ok"])
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/v1/chat-flows", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSConfig_Origins(t *testing.T) {
	cfg := corsConfig([]string{"https://ops.example.com"})
	assert.False(t, cfg.AllowAllOrigins)
	assert.Equal(t, []string{"https://ops.example.com"}, cfg.AllowOrigins)
	assert.True(t, corsConfig(nil).AllowAllOrigins)
}

func TestIssueToken(t *testing.T) {
	env := newTestEnv(t)

	t.Run("wrong key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/token", nil)
		req.Header.Set("X-API-Key", "nope")
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("valid key returns usable token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/token", nil)
		req.Header.Set("X-API-Key", "key-123")
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)

		token, _ := decode(t, rr)["token"].(string)
		require.NotEmpty(t, token)
		subject, err := env.handler.Auth.parseJWT(token)
		require.NoError(t, err)
		assert.NotEmpty(t, subject)
	})
}

func TestRequireJWT(t *testing.T) {
	env := newTestEnv(t)
	env.flows.On("List", mock.Anything).Return([]models.ChatFlow{}, nil)

	other := Auth{JWTSecret: []byte("other-secret")}
	forged, err := other.generateJWT("intruder", time.Now())
	require.NoError(t, err)
	expired, err := env.handler.Auth.generateJWT("tester", time.Now().Add(-2*time.Hour))
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", "", http.StatusUnauthorized},
		{"garbage", "Bearer abc.def", "", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + forged, "", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, "", http.StatusUnauthorized},
		{"valid header", "Bearer " + env.token, "", http.StatusOK},
		{"valid query", "", "?token=" + env.token, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/chat-flows"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			env.router.ServeHTTP(rr, req)
			assert.Equal(t, tc.want, rr.Code)
		})
	}
}

func TestReceiveWhatsApp_FormWebhook(t *testing.T) {
	env := newTestEnv(t)
	env.conversations.On("HandleInbound", mock.Anything, "whatsapp:+15550001", " 1 ").
		Return("What is your name?", nil)

	form := url.Values{"From": {"whatsapp:+15550001"}, "Body": {" 1 "}}
	req := httptest.NewRequest(http.MethodPost, "/v1/whatsapp/receive", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "What is your name?", decode(t, rr)["message"])
}

func TestReceiveWhatsApp_MissingSender(t *testing.T) {
	env := newTestEnv(t)
	env.conversations.On("HandleInbound", mock.Anything, "", "hi").
		Return("", fmt.Errorf("%w: sender is required", chatflow.ErrValidation))

	req := httptest.NewRequest(http.MethodPost, "/v1/whatsapp/receive", strings.NewReader(`{"Body":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStartConversation(t *testing.T) {
	env := newTestEnv(t)
	env.conversations.On("StartConversation", mock.Anything, "+15550001", "flow-1").Return("First question?", nil)
	env.conversations.On("StartConversation", mock.Anything, "+15550001", "missing").
		Return("", fmt.Errorf("flow missing: %w", storage.ErrNotFound))

	rr := env.request(http.MethodPost, "/v1/whatsapp/start", gin.H{"phoneNumber": "+15550001", "chatFlowId": "flow-1"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "First question?", decode(t, rr)["message"])

	rr = env.request(http.MethodPost, "/v1/whatsapp/start", gin.H{"phoneNumber": "+15550001", "chatFlowId": "missing"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.request(http.MethodPost, "/v1/whatsapp/start", gin.H{"phoneNumber": "+15550001"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestChatFlowRoutes(t *testing.T) {
	env := newTestEnv(t)
	created := &models.ChatFlow{ID: "flow-1", Name: "Signup"}
	env.flows.On("Create", mock.Anything, mock.MatchedBy(func(in chatflow.CreateFlowInput) bool {
		return in.Name == "Signup" && len(in.Questions) == 1 && in.Questions[0].FieldName == "name"
	})).Return(created, nil)
	env.flows.On("Get", mock.Anything, "nope").Return(nil, storage.ErrNotFound)
	env.flows.On("Update", mock.Anything, "flow-1", mock.Anything).Return(created, nil)
	env.flows.On("AddQuestion", mock.Anything, "flow-1", mock.Anything).
		Return(nil, fmt.Errorf("%w: question text is required", chatflow.ErrValidation))
	env.flows.On("Delete", mock.Anything, "flow-1").Return(nil)
	env.flows.On("DeleteAll", mock.Anything).Return(nil)

	rr := env.request(http.MethodPost, "/v1/chat-flows", gin.H{
		"name":      "Signup",
		"questions": []gin.H{{"question": "Name?", "fieldName": "name"}},
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "flow-1", decode(t, rr)["id"])

	assert.Equal(t, http.StatusNotFound, env.request(http.MethodGet, "/v1/chat-flows/nope", nil).Code)
	assert.Equal(t, http.StatusOK, env.request(http.MethodPatch, "/v1/chat-flows/flow-1", gin.H{"name": "New"}).Code)
	assert.Equal(t, http.StatusBadRequest, env.request(http.MethodPost, "/v1/chat-flows/flow-1/questions", gin.H{"fieldName": "x"}).Code)
	assert.Equal(t, http.StatusNoContent, env.request(http.MethodDelete, "/v1/chat-flows/flow-1", nil).Code)
	assert.Equal(t, http.StatusNoContent, env.request(http.MethodDelete, "/v1/chat-flows", nil).Code)
	env.flows.AssertExpectations(t)
}

func TestScheduledMessageRoutes(t *testing.T) {
	env := newTestEnv(t)
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	msg := &models.ScheduledMessage{ID: "sm-1", To: "+15550001", Status: models.ScheduledPending, ScheduledTime: at}
	cancelled := &models.ScheduledMessage{ID: "sm-1", Status: models.ScheduledCancelled}

	env.schedules.On("Schedule", mock.Anything, mock.MatchedBy(func(in schedule.Input) bool {
		return in.To == "+15550001" && in.ScheduledTime.Equal(at)
	})).Return(msg, nil)
	env.schedules.On("List", mock.Anything, models.ScheduledStatus("BOGUS")).
		Return(nil, fmt.Errorf("%w: unknown status", schedule.ErrValidation))
	env.schedules.On("List", mock.Anything, models.ScheduledPending).Return([]models.ScheduledMessage{*msg}, nil)
	env.schedules.On("Cancel", mock.Anything, "sm-1").Return(cancelled, nil)
	env.schedules.On("BulkSchedule", mock.Anything, mock.Anything).
		Return(schedule.BulkResult{Total: 2, Successful: 1, Failed: 1})

	rr := env.request(http.MethodPost, "/v1/scheduled-messages", gin.H{"to": "+15550001", "body": "hi", "scheduledTime": at})
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "PENDING", decode(t, rr)["status"])

	assert.Equal(t, http.StatusBadRequest, env.request(http.MethodGet, "/v1/scheduled-messages?status=BOGUS", nil).Code)
	assert.Equal(t, http.StatusOK, env.request(http.MethodGet, "/v1/scheduled-messages?status=PENDING", nil).Code)

	rr = env.request(http.MethodPost, "/v1/scheduled-messages/sm-1/cancel", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "CANCELLED", decode(t, rr)["status"])
	assert.Equal(t, http.StatusOK, env.request(http.MethodDelete, "/v1/scheduled-messages/sm-1", nil).Code)

	rr = env.request(http.MethodPost, "/v1/scheduled-messages/bulk", gin.H{"messages": []gin.H{{"to": "+1"}, {"to": "+2"}}})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 1, decode(t, rr)["failed"])

	assert.Equal(t, http.StatusBadRequest, env.request(http.MethodPatch, "/v1/scheduled-messages/sm-1", gin.H{}).Code)
	env.schedules.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestSchedulerControl(t *testing.T) {
	env := newTestEnv(t)

	rr := env.request(http.MethodGet, "/v1/scheduler/status", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, decode(t, rr)["running"])

	rr = env.request(http.MethodPost, "/v1/scheduler/start", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, true, body["running"])
	assert.Equal(t, true, body["changed"])

	rr = env.request(http.MethodPost, "/v1/scheduler/start", nil)
	assert.Equal(t, false, decode(t, rr)["changed"])

	rr = env.request(http.MethodPost, "/v1/scheduler/stop", nil)
	assert.Equal(t, false, decode(t, rr)["running"])
}

func TestSendMessages(t *testing.T) {
	env := newTestEnv(t)
	sid := "SM123"
	env.messages.On("Send", mock.Anything, messaging.Request{To: "+15550001", MessageType: models.WhatsApp, Body: "hello"}).
		Return(&models.MessageLog{ID: "log-1", Status: models.MessageSent, ProviderMessageID: &sid}, nil)
	env.messages.On("Send", mock.Anything, messaging.Request{To: "+15550002", MessageType: models.SMS, Body: "hello", From: "+15559999"}).
		Return(&models.MessageLog{ID: "log-2", Status: models.MessageFailed}, fmt.Errorf("%w: unreachable", gateway.ErrTransport))
	env.messages.On("Send", mock.Anything, messaging.Request{To: "+15550003", MessageType: models.WhatsApp}).
		Return(nil, messaging.ErrNoContent)

	rr := env.request(http.MethodPost, "/v1/messages/whatsapp", gin.H{"to": "+15550001", "body": "hello"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "SM123", decode(t, rr)["providerMessageId"])

	rr = env.request(http.MethodPost, "/v1/messages/sms", gin.H{"to": "+15550002", "body": "hello", "from": "+15559999"})
	assert.Equal(t, http.StatusBadGateway, rr.Code)

	rr = env.request(http.MethodPost, "/v1/messages/whatsapp", gin.H{"to": "+15550003"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSendWhatsAppBulk(t *testing.T) {
	env := newTestEnv(t)
	env.messages.On("SendBulk", mock.Anything, mock.MatchedBy(func(reqs []messaging.Request) bool {
		return len(reqs) == 2 && reqs[0].MessageType == models.WhatsApp && reqs[1].TemplateID == "tpl-1"
	})).Return(messaging.BulkResult{Total: 2, Successful: 2})

	rr := env.request(http.MethodPost, "/v1/messages/whatsapp/bulk", gin.H{"messages": []gin.H{
		{"to": "+1", "body": "a"},
		{"to": "+2", "templateId": "tpl-1"},
	}})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 2, decode(t, rr)["successful"])

	rr = env.request(http.MethodPost, "/v1/messages/whatsapp/bulk", gin.H{"messages": []gin.H{{"body": "no recipient"}}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSendSMSBulk(t *testing.T) {
	env := newTestEnv(t)
	env.messages.On("SendBulk", mock.Anything, mock.MatchedBy(func(reqs []messaging.Request) bool {
		return len(reqs) == 2 && reqs[0].MessageType == models.SMS && reqs[1].MessageType == models.SMS &&
			reqs[0].From == "+15557777" && reqs[1].Variables["code"] == "1234"
	})).Return(messaging.BulkResult{Total: 2, Successful: 1, Failed: 1})

	rr := env.request(http.MethodPost, "/v1/messages/sms/bulk", gin.H{"messages": []gin.H{
		{"to": "+1", "body": "a", "from": "+15557777"},
		{"to": "+2", "templateId": "tpl-otp", "variables": gin.H{"code": "1234"}},
	}})
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.EqualValues(t, 1, body["successful"])
	assert.EqualValues(t, 1, body["failed"])

	rr = env.request(http.MethodPost, "/v1/messages/sms/bulk", gin.H{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListMessageLogs_Filter(t *testing.T) {
	env := newTestEnv(t)
	env.messages.On("ListLogs", mock.Anything, models.MessageLogFilter{
		To: "+15550001", MessageType: models.SMS, Status: models.MessageFailed, Limit: 10, Offset: 20,
	}).Return([]models.MessageLog{{ID: "log-1"}}, nil)

	rr := env.request(http.MethodGet, "/v1/messages/logs?phoneNumber=%2B15550001&type=SMS&status=FAILED&limit=10&offset=20", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode(t, rr)["items"], 1)
}

func TestTemplateRoutes(t *testing.T) {
	env := newTestEnv(t)
	env.templates.On("Create", mock.Anything, "welcome", "Hi {name}", (*string)(nil)).
		Return(&models.MessageTemplate{ID: "tpl-1", Name: "welcome"}, nil)
	env.templates.On("Get", mock.Anything, "nope").Return(nil, storage.ErrNotFound)
	env.templates.On("List", mock.Anything).Return([]models.MessageTemplate{{ID: "tpl-1"}}, nil)

	assert.Equal(t, http.StatusCreated, env.request(http.MethodPost, "/v1/templates", gin.H{"name": "welcome", "content": "Hi {name}"}).Code)
	assert.Equal(t, http.StatusBadRequest, env.request(http.MethodPost, "/v1/templates", gin.H{"name": "x"}).Code)
	assert.Equal(t, http.StatusNotFound, env.request(http.MethodGet, "/v1/templates/nope", nil).Code)
	assert.Equal(t, http.StatusOK, env.request(http.MethodGet, "/v1/templates", nil).Code)
}

func TestEmailRoutes(t *testing.T) {
	env := newTestEnv(t)
	env.mail.On("Send", mock.Anything, mock.MatchedBy(func(r email.Request) bool { return r.Subject == "ok" })).
		Return(&models.EmailLog{ID: "e1", Status: models.EmailSent}, nil)
	env.mail.On("Send", mock.Anything, mock.MatchedBy(func(r email.Request) bool { return r.Subject == "off" })).
		Return(nil, email.ErrDisabled)
	env.mail.On("ListLogs", mock.Anything, 50, 0).Return([]models.EmailLog{}, nil)

	assert.Equal(t, http.StatusOK, env.request(http.MethodPost, "/v1/email/send", gin.H{"to": []string{"a@example.com"}, "subject": "ok", "html": "x"}).Code)
	assert.Equal(t, http.StatusServiceUnavailable, env.request(http.MethodPost, "/v1/email/send", gin.H{"to": []string{"a@example.com"}, "subject": "off", "html": "x"}).Code)
	assert.Equal(t, http.StatusOK, env.request(http.MethodGet, "/v1/email/logs", nil).Code)
}

func TestSendEmailBulk(t *testing.T) {
	env := newTestEnv(t)
	env.mail.On("SendBulk", mock.Anything, mock.MatchedBy(func(r email.BulkRequest) bool {
		return r.TemplateID == "tpl-1" && len(r.Recipients) == 2 && r.Recipients[1].Variables["name"] == "Bo"
	})).Return(email.BulkResult{Total: 2, Successful: 2, Results: []email.BulkItem{
		{To: "ana@example.com", Success: true}, {To: "bo@example.com", Success: true},
	}}, nil)
	env.mail.On("SendBulk", mock.Anything, mock.MatchedBy(func(r email.BulkRequest) bool { return len(r.Recipients) == 0 })).
		Return(email.BulkResult{}, email.ErrValidation)

	rr := env.request(http.MethodPost, "/v1/email/bulk", gin.H{
		"subject":    "Welcome",
		"templateId": "tpl-1",
		"recipients": []gin.H{
			{"to": "ana@example.com", "variables": gin.H{"name": "Ana"}},
			{"to": "bo@example.com", "variables": gin.H{"name": "Bo"}},
		},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.EqualValues(t, 2, body["successful"])
	assert.Len(t, body["results"], 2)

	rr = env.request(http.MethodPost, "/v1/email/bulk", gin.H{"subject": "x"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRespondError_Conflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rr := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rr)
	respondError(c, chatflow.ErrConversationConflict)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestServeEvents(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events/ws?types=scheduled_failed&token=" + env.token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.hub.Count() == 1 }, time.Second, 10*time.Millisecond)
	env.hub.Publish(models.DeliveryEvent{Type: models.EventScheduledFailed, MessageID: "sm-1"})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var ev models.DeliveryEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "sm-1", ev.MessageID)

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/events/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
