// Package messaging sends direct and templated WhatsApp/SMS messages and
// keeps the outbound message log.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"msgflow/backend/internal/gateway"
	"msgflow/backend/internal/models"
)

var (
	// ErrValidation is returned for requests that cannot be sent as given.
	ErrValidation = errors.New("invalid message request")
	// ErrNoContent is returned when a message has neither a template nor a body.
	ErrNoContent = fmt.Errorf("%w: no template or body", ErrValidation)
)

// Gateway is the provider that carries messages.
type Gateway interface {
	SendWhatsApp(ctx context.Context, to, body string) (gateway.Delivery, error)
	SendSMS(ctx context.Context, to, body, from string) (gateway.Delivery, error)
}

// Renderer resolves a template and renders it.
type Renderer interface {
	ResolveAndRender(ctx context.Context, id string, vars map[string]string) (string, error)
}

// LogStorage persists the message log and publishes delivery events.
type LogStorage interface {
	CreateMessageLog(ctx context.Context, l *models.MessageLog) error
	ListMessageLogs(ctx context.Context, filter models.MessageLogFilter) ([]models.MessageLog, error)
	PublishEvent(ctx context.Context, ev models.DeliveryEvent) error
}

// Request describes one outbound message. When TemplateID is set it takes
// precedence over Body.
type Request struct {
	To          string
	MessageType models.MessageType
	Body        string
	TemplateID  string
	Variables   map[string]string
	From        string
	ContactID   *string
}

type Service struct {
	gateway        Gateway
	renderer       Renderer
	storage        LogStorage
	whatsAppNumber string
	smsNumber      string
}

func NewService(gw Gateway, r Renderer, s LogStorage, whatsAppNumber, smsNumber string) *Service {
	if smsNumber == "" {
		smsNumber = whatsAppNumber
	}
	return &Service{
		gateway:        gw,
		renderer:       r,
		storage:        s,
		whatsAppNumber: whatsAppNumber,
		smsNumber:      smsNumber,
	}
}

// Send resolves the content of req, hands it to the gateway and appends a
// MessageLog row for the attempt. The row is returned even when the gateway
// fails.
func (s *Service) Send(ctx context.Context, req Request) (*models.MessageLog, error) {
	if strings.TrimSpace(req.To) == "" {
		return nil, fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if req.MessageType == "" {
		req.MessageType = models.WhatsApp
	}
	if !req.MessageType.Valid() {
		return nil, fmt.Errorf("%w: unknown message type %q", ErrValidation, req.MessageType)
	}

	body, err := s.content(ctx, req)
	if err != nil {
		return nil, err
	}

	var (
		d    gateway.Delivery
		from string
	)
	switch req.MessageType {
	case models.SMS:
		from = req.From
		if from == "" {
			from = s.smsNumber
		}
		d, err = s.gateway.SendSMS(ctx, req.To, body, req.From)
	default:
		from = gateway.WhatsAppAddress(s.whatsAppNumber)
		d, err = s.gateway.SendWhatsApp(ctx, req.To, body)
	}

	entry := &models.MessageLog{
		To:          req.To,
		From:        from,
		Body:        body,
		Direction:   models.Outbound,
		Status:      models.MessageSent,
		MessageType: req.MessageType,
		ContactID:   req.ContactID,
	}
	if err != nil {
		reason := err.Error()
		entry.Status = models.MessageFailed
		entry.Error = &reason
	} else if d.ID != "" {
		entry.ProviderMessageID = &d.ID
	}
	s.record(ctx, entry)
	return entry, err
}

// SendWhatsApp sends body directly over WhatsApp.
func (s *Service) SendWhatsApp(ctx context.Context, to, body string) (*models.MessageLog, error) {
	return s.Send(ctx, Request{To: to, MessageType: models.WhatsApp, Body: body})
}

// SendSMS sends body directly as an SMS, optionally from a different number.
func (s *Service) SendSMS(ctx context.Context, to, body, from string) (*models.MessageLog, error) {
	return s.Send(ctx, Request{To: to, MessageType: models.SMS, Body: body, From: from})
}

func (s *Service) content(ctx context.Context, req Request) (string, error) {
	if req.TemplateID != "" {
		return s.renderer.ResolveAndRender(ctx, req.TemplateID, req.Variables)
	}
	if req.Body != "" {
		return req.Body, nil
	}
	return "", ErrNoContent
}

// record appends the log row and publishes it. Failures here never undo a
// send that already happened, so they are only logged.
func (s *Service) record(ctx context.Context, entry *models.MessageLog) {
	if err := s.storage.CreateMessageLog(ctx, entry); err != nil {
		slog.Error("failed to write message log", slog.String("to", entry.To), slog.String("error", err.Error()))
	}

	ev := models.DeliveryEvent{
		Type:        models.EventMessageLogged,
		MessageID:   entry.ID,
		To:          entry.To,
		MessageType: entry.MessageType,
		Status:      string(entry.Status),
	}
	if entry.Error != nil {
		ev.Error = *entry.Error
	}
	if err := s.storage.PublishEvent(ctx, ev); err != nil {
		slog.Warn("failed to publish message event", slog.String("to", entry.To), slog.String("error", err.Error()))
	}

	slog.Info("outbound message",
		slog.String("to", entry.To),
		slog.String("type", string(entry.MessageType)),
		slog.String("status", string(entry.Status)),
	)
}

// BulkItem is the outcome of one message of a bulk send.
type BulkItem struct {
	To        string `json:"to"`
	Success   bool   `json:"success"`
	MessageID string `json:"sid,omitempty"`
	Error     string `json:"error,omitempty"`
}

type BulkResult struct {
	Total      int        `json:"total"`
	Successful int        `json:"successful"`
	Failed     int        `json:"failed"`
	Results    []BulkItem `json:"results"`
}

// SendBulk sends every request independently; one failure does not stop the rest.
func (s *Service) SendBulk(ctx context.Context, reqs []Request) BulkResult {
	res := BulkResult{Total: len(reqs), Results: make([]BulkItem, 0, len(reqs))}
	for _, req := range reqs {
		item := BulkItem{To: req.To}
		entry, err := s.Send(ctx, req)
		if err != nil {
			item.Error = err.Error()
			res.Failed++
		} else {
			item.Success = true
			if entry.ProviderMessageID != nil {
				item.MessageID = *entry.ProviderMessageID
			}
			res.Successful++
		}
		res.Results = append(res.Results, item)
	}
	return res
}

// ListLogs returns message log rows newest first.
func (s *Service) ListLogs(ctx context.Context, filter models.MessageLogFilter) ([]models.MessageLog, error) {
	return s.storage.ListMessageLogs(ctx, filter)
}
