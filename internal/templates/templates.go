// Package templates stores message templates and renders their {name}
// placeholders.
package templates

import (
	"context"
	"errors"
	"fmt"
	"msgflow/backend/internal/models"
	"regexp"
	"strings"
)

var placeholder = regexp.MustCompile(`\{(\w+)\}`)

// ErrInvalidTemplate is returned for templates without a name or content.
var ErrInvalidTemplate = errors.New("template name and content are required")

// Render substitutes {name} tokens with vars. Tokens without a value, or
// whose value is empty, are left as they are.
func Render(content string, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(content, func(token string) string {
		key := token[1 : len(token)-1]
		if v := vars[key]; v != "" {
			return v
		}
		return token
	})
}

// TemplateStorage is the part of the storage layer the store needs.
type TemplateStorage interface {
	CreateTemplate(ctx context.Context, t *models.MessageTemplate) error
	GetTemplate(ctx context.Context, id string) (*models.MessageTemplate, error)
	ListTemplates(ctx context.Context) ([]models.MessageTemplate, error)
	EnsureTemplate(ctx context.Context, name, content string) (*models.MessageTemplate, error)
}

type Store struct {
	storage TemplateStorage
}

func NewStore(s TemplateStorage) *Store {
	return &Store{storage: s}
}

// Resolve returns the template with the given id or storage.ErrNotFound.
func (s *Store) Resolve(ctx context.Context, id string) (*models.MessageTemplate, error) {
	t, err := s.storage.GetTemplate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", id, err)
	}
	return t, nil
}

// ResolveAndRender resolves id and renders its content with vars.
func (s *Store) ResolveAndRender(ctx context.Context, id string, vars map[string]string) (string, error) {
	t, err := s.Resolve(ctx, id)
	if err != nil {
		return "", err
	}
	return Render(t.Content, vars), nil
}

// EnsureByName returns the named template, creating it on first use.
func (s *Store) EnsureByName(ctx context.Context, name, content string) (*models.MessageTemplate, error) {
	return s.storage.EnsureTemplate(ctx, name, content)
}

func (s *Store) Create(ctx context.Context, name, content string, description *string) (*models.MessageTemplate, error) {
	name = strings.TrimSpace(name)
	if name == "" || content == "" {
		return nil, ErrInvalidTemplate
	}
	t := &models.MessageTemplate{Name: name, Content: content, Description: description}
	if err := s.storage.CreateTemplate(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) List(ctx context.Context) ([]models.MessageTemplate, error) {
	return s.storage.ListTemplates(ctx)
}

func (s *Store) Get(ctx context.Context, id string) (*models.MessageTemplate, error) {
	return s.Resolve(ctx, id)
}
