// Package email sends templated email through a pooled SMTP connection and
// records every attempt in the email log.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/mail"
	"net/smtp"
	"regexp"
	"strings"

	"msgflow/backend/internal/config"
	"msgflow/backend/internal/models"

	"github.com/knadh/smtppool"
)

var (
	ErrValidation = errors.New("invalid email request")
	// ErrDisabled is returned when no SMTP server is configured.
	ErrDisabled = errors.New("email sending is not configured")
	// ErrDelivery wraps failures reported by the SMTP server.
	ErrDelivery = errors.New("smtp delivery failed")
)

var tag = regexp.MustCompile(`<[^>]*>`)

// Mailer is satisfied by *smtppool.Pool.
type Mailer interface {
	Send(e smtppool.Email) error
}

type Renderer interface {
	ResolveAndRender(ctx context.Context, templateID string, vars map[string]string) (string, error)
}

type LogStorage interface {
	CreateEmailLog(ctx context.Context, l *models.EmailLog) error
	ListEmailLogs(ctx context.Context, limit, offset int) ([]models.EmailLog, error)
}

// NewPool opens an SMTP connection pool. Credentials are optional.
func NewPool(cfg config.SMTPConfig) (*smtppool.Pool, error) {
	var auth smtp.Auth
	if cfg.Username != "" || cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	pool, err := smtppool.New(smtppool.Opt{
		Host:            cfg.Host,
		Port:            cfg.Port,
		MaxConns:        cfg.MaxConns,
		IdleTimeout:     cfg.SendTimeout,
		PoolWaitTimeout: cfg.SendTimeout,
		TLSConfig:       &tls.Config{ServerName: cfg.Host},
		Auth:            auth,
	})
	if err != nil {
		return nil, fmt.Errorf("smtp pool %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return pool, nil
}

type Request struct {
	To         []string          `json:"to"`
	Subject    string            `json:"subject"`
	TemplateID string            `json:"templateId,omitempty"`
	Variables  map[string]string `json:"variables,omitempty"`
	HTML       string            `json:"html,omitempty"`
	// Text is the plain-text part. When empty it is derived from the HTML.
	Text string `json:"text,omitempty"`
}

// Recipient is one addressee of a bulk send. Non-empty fields override the
// shared ones in BulkRequest.
type Recipient struct {
	To        string            `json:"to"`
	Subject   string            `json:"subject,omitempty"`
	HTML      string            `json:"html,omitempty"`
	Text      string            `json:"text,omitempty"`
	Variables map[string]string `json:"variables,omitempty"`
}

type BulkRequest struct {
	Recipients []Recipient `json:"recipients"`
	Subject    string      `json:"subject,omitempty"`
	TemplateID string      `json:"templateId,omitempty"`
	HTML       string      `json:"html,omitempty"`
	Text       string      `json:"text,omitempty"`
}

type BulkItem struct {
	To      string `json:"to"`
	Success bool   `json:"success"`
	LogID   string `json:"logId,omitempty"`
	Error   string `json:"error,omitempty"`
}

type BulkResult struct {
	Total      int        `json:"total"`
	Successful int        `json:"successful"`
	Failed     int        `json:"failed"`
	Results    []BulkItem `json:"results"`
}

type Service struct {
	mailer   Mailer
	renderer Renderer
	storage  LogStorage
	from     string
}

// NewService builds the email service. A nil mailer makes Send return
// ErrDisabled while logs stay readable.
func NewService(m Mailer, r Renderer, s LogStorage, from string) *Service {
	return &Service{mailer: m, renderer: r, storage: s, from: from}
}

// Send renders and delivers one email. Once content is resolved, the attempt
// is logged whether or not the server accepted it.
func (s *Service) Send(ctx context.Context, req Request) (*models.EmailLog, error) {
	if s.mailer == nil {
		return nil, ErrDisabled
	}
	if err := validate(req); err != nil {
		return nil, err
	}

	body := req.HTML
	if req.TemplateID != "" {
		rendered, err := s.renderer.ResolveAndRender(ctx, req.TemplateID, req.Variables)
		if err != nil {
			return nil, err
		}
		body = rendered
	}

	entry := &models.EmailLog{
		To:      req.To,
		Subject: req.Subject,
		Status:  models.EmailSent,
	}
	if req.TemplateID != "" {
		entry.TemplateID = &req.TemplateID
	}

	text := req.Text
	if text == "" {
		text = plainText(body)
	}
	sendErr := s.mailer.Send(smtppool.Email{
		From:    s.from,
		To:      req.To,
		Subject: req.Subject,
		Text:    []byte(text),
		HTML:    []byte(body),
	})
	if sendErr != nil {
		sendErr = fmt.Errorf("%w: %v", ErrDelivery, sendErr)
		msg := sendErr.Error()
		entry.Status = models.EmailFailed
		entry.Error = &msg
		slog.Error("email send failed", slog.Any("to", req.To), slog.String("error", msg))
	} else {
		slog.Info("email sent", slog.Any("to", req.To), slog.String("subject", req.Subject))
	}

	if err := s.storage.CreateEmailLog(ctx, entry); err != nil {
		slog.Error("failed to write email log", slog.String("error", err.Error()))
	}
	return entry, sendErr
}

// SendBulk sends one email per recipient. Each recipient is validated, sent
// and logged on its own; a failure never stops the rest.
func (s *Service) SendBulk(ctx context.Context, req BulkRequest) (BulkResult, error) {
	if s.mailer == nil {
		return BulkResult{}, ErrDisabled
	}
	if len(req.Recipients) == 0 {
		return BulkResult{}, fmt.Errorf("%w: at least one recipient is required", ErrValidation)
	}

	res := BulkResult{Total: len(req.Recipients), Results: make([]BulkItem, 0, len(req.Recipients))}
	for _, r := range req.Recipients {
		item := BulkItem{To: r.To}
		entry, err := s.Send(ctx, Request{
			To:         []string{r.To},
			Subject:    firstNonEmpty(r.Subject, req.Subject),
			TemplateID: req.TemplateID,
			Variables:  r.Variables,
			HTML:       firstNonEmpty(r.HTML, req.HTML),
			Text:       firstNonEmpty(r.Text, req.Text),
		})
		if entry != nil {
			item.LogID = entry.ID
		}
		if err != nil {
			item.Error = err.Error()
			res.Failed++
		} else {
			item.Success = true
			res.Successful++
		}
		res.Results = append(res.Results, item)
	}
	slog.Info("bulk email finished", slog.Int("total", res.Total), slog.Int("failed", res.Failed))
	return res, nil
}

func (s *Service) ListLogs(ctx context.Context, limit, offset int) ([]models.EmailLog, error) {
	return s.storage.ListEmailLogs(ctx, limit, offset)
}

func validate(req Request) error {
	if len(req.To) == 0 {
		return fmt.Errorf("%w: at least one recipient is required", ErrValidation)
	}
	for _, addr := range req.To {
		if _, err := mail.ParseAddress(addr); err != nil {
			return fmt.Errorf("%w: bad recipient %q", ErrValidation, addr)
		}
	}
	if strings.TrimSpace(req.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrValidation)
	}
	if req.TemplateID == "" && req.HTML == "" {
		return fmt.Errorf("%w: templateId or html is required", ErrValidation)
	}
	return nil
}

// plainText strips tags and collapses whitespace.
func plainText(body string) string {
	return strings.Join(strings.Fields(html.UnescapeString(tag.ReplaceAllString(body, " "))), " ")
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
