// ABOUTME: Template service: validation, CRUD, defaults, variable renames and search
// ABOUTME: Content and variable registry are reconciled on every save

// Package templates is the console's template management layer. It keeps
// each template's variable registry in step with the placeholders in its
// content and records every change in the audit log.
package templates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/2389/assistant-console/internal/auth"
	"github.com/2389/assistant-console/internal/dedupe"
	"github.com/2389/assistant-console/internal/library"
	"github.com/2389/assistant-console/internal/prompt"
	"github.com/2389/assistant-console/internal/search"
	"github.com/2389/assistant-console/internal/store"
)

// MaxNameLength caps template and category names, in runes.
const MaxNameLength = 200

// ErrInvalidTemplate wraps validation failures.
var ErrInvalidTemplate = errors.New("invalid template")

// Store is the persistence the service needs.
type Store interface {
	store.TemplateStore
	store.CategoryStore
	store.SettingsStore
	store.AuditStore
}

// Input carries the editable fields of a template.
type Input struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Category    string            `json:"category"`
	Content     string            `json:"content"`
	Variables   []prompt.Variable `json:"variables"`
	IsActive    *bool             `json:"is_active"`
}

// ListOptions narrows List. A non-empty Query ranks results by relevance
// instead of the store's category/name order.
type ListOptions struct {
	Category *string
	Active   *bool
	Query    string
	Limit    int
}

// Service manages templates, categories and the system prompt.
type Service struct {
	store      Store
	completers Completers
	formatting FormattingSource
	idem       *dedupe.Cache
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCompleters enables Test by giving the service access to providers.
func WithCompleters(c Completers) Option {
	return func(s *Service) { s.completers = c }
}

// WithFormatting adds the formatting instructions to tested prompts.
func WithFormatting(f FormattingSource) Option {
	return func(s *Service) { s.formatting = f }
}

// WithIdempotency rejects repeated Test calls that share an idempotency key.
func WithIdempotency(c *dedupe.Cache) Option {
	return func(s *Service) { s.idem = c }
}

// NewService creates a template service.
func NewService(s Store, opts ...Option) *Service {
	svc := &Service{
		store:  s,
		logger: slog.Default().With("component", "templates"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func (in Input) apply(t *store.Template) {
	t.Name = strings.TrimSpace(in.Name)
	t.Description = strings.TrimSpace(in.Description)
	t.Category = strings.TrimSpace(in.Category)
	t.Content = in.Content
	t.Variables = prompt.Reconcile(in.Content, in.Variables)
	if in.IsActive != nil {
		t.IsActive = *in.IsActive
	}
}

func (s *Service) validate(ctx context.Context, t *store.Template) error {
	if t.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTemplate)
	}
	if utf8.RuneCountInString(t.Name) > MaxNameLength {
		return fmt.Errorf("%w: name must be at most %d characters", ErrInvalidTemplate, MaxNameLength)
	}
	if t.Category != "" {
		if _, err := s.store.GetCategoryByName(ctx, t.Category); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: category %q does not exist", ErrInvalidTemplate, t.Category)
			}
			return err
		}
	}
	if errs := prompt.ValidateVariables(t.Variables); len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTemplate, errs[0].Error())
	}
	return nil
}

// Create validates and stores a new template.
func (s *Service) Create(ctx context.Context, in Input) (*store.Template, error) {
	now := time.Now().UTC()
	t := &store.Template{
		ID:        uuid.New().String(),
		IsActive:  true,
		CreatedBy: auth.ActorID(ctx),
		CreatedAt: now,
		UpdatedAt: now,
	}
	in.apply(t)

	if err := s.validate(ctx, t); err != nil {
		return nil, err
	}
	if err := s.store.CreateTemplate(ctx, t); err != nil {
		return nil, err
	}

	s.record(ctx, store.AuditCreateTemplate, t.ID, map[string]any{"name": t.Name})
	return t, nil
}

// Get returns a template by ID.
func (s *Service) Get(ctx context.Context, id string) (*store.Template, error) {
	return s.store.GetTemplate(ctx, id)
}

// Update replaces a template's editable fields.
func (s *Service) Update(ctx context.Context, id string, in Input) (*store.Template, error) {
	t, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	prevCategory := t.Category
	in.apply(t)
	t.UpdatedAt = time.Now().UTC()
	if t.Category != prevCategory {
		// a default belongs to its old category; the new one keeps its own
		t.IsDefault = false
	}

	if err := s.validate(ctx, t); err != nil {
		return nil, err
	}
	if err := s.store.UpdateTemplate(ctx, t); err != nil {
		return nil, err
	}

	s.record(ctx, store.AuditUpdateTemplate, t.ID, map[string]any{"name": t.Name})
	return t, nil
}

// Delete removes a template and any follow-ups tied to it.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteTemplate(ctx, id); err != nil {
		return err
	}
	s.record(ctx, store.AuditDeleteTemplate, id, nil)
	return nil
}

// List returns templates matching opts.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]*store.Template, error) {
	filter := store.TemplateFilter{Category: opts.Category, Active: opts.Active, Limit: opts.Limit}
	if strings.TrimSpace(opts.Query) != "" {
		// rank over the whole filtered set, then cut
		filter.Limit = 1000
	}

	all, err := s.store.ListTemplates(ctx, filter)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.Query) == "" {
		return all, nil
	}

	docs := make([]search.Document, len(all))
	byID := make(map[string]*store.Template, len(all))
	for i, t := range all {
		docs[i] = search.Document{
			ID:    t.ID,
			Title: t.Name,
			Body:  t.Description + "\n" + t.Category + "\n" + t.Content,
		}
		byID[t.ID] = t
	}

	out := []*store.Template{}
	for _, h := range search.Search(opts.Query, docs, opts.Limit) {
		out = append(out, byID[h.ID])
	}
	return out, nil
}

// Duplicate copies a template under a free "<name> (copy)" name. The copy
// is never the default.
func (s *Service) Duplicate(ctx context.Context, id string) (*store.Template, error) {
	src, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}

	name, err := s.copyName(ctx, src.Name)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	dup := *src
	dup.ID = uuid.New().String()
	dup.Name = name
	dup.Variables = prompt.Clone(src.Variables)
	dup.IsDefault = false
	dup.CreatedBy = auth.ActorID(ctx)
	dup.CreatedAt = now
	dup.UpdatedAt = now

	if err := s.store.CreateTemplate(ctx, &dup); err != nil {
		return nil, err
	}

	s.record(ctx, store.AuditCreateTemplate, dup.ID, map[string]any{"name": dup.Name, "source": src.ID})
	return &dup, nil
}

func (s *Service) copyName(ctx context.Context, base string) (string, error) {
	for i := 1; i < 1000; i++ {
		candidate := base + " (copy)"
		if i > 1 {
			candidate = fmt.Sprintf("%s (copy %d)", base, i)
		}
		if utf8.RuneCountInString(candidate) > MaxNameLength {
			r := []rune(base)
			cut := len(r) - (utf8.RuneCountInString(candidate) - MaxNameLength)
			if cut <= 0 {
				return "", fmt.Errorf("%w: name too long to copy", ErrInvalidTemplate)
			}
			return s.copyName(ctx, string(r[:cut]))
		}
		exists, err := s.store.TemplateNameExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: no free copy name for %q", store.ErrDuplicate, base)
}

// SetDefault makes the template its category's default.
func (s *Service) SetDefault(ctx context.Context, id string) (*store.Template, error) {
	if err := s.store.SetDefaultTemplate(ctx, id); err != nil {
		return nil, err
	}
	s.record(ctx, store.AuditSetDefault, id, nil)
	return s.store.GetTemplate(ctx, id)
}

// SetActive enables or disables a template.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (*store.Template, error) {
	t, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.IsActive == active {
		return t, nil
	}
	t.IsActive = active
	t.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateTemplate(ctx, t); err != nil {
		return nil, err
	}

	s.record(ctx, store.AuditUpdateTemplate, t.ID, map[string]any{"is_active": active})
	return t, nil
}

// RenameVariable renames a registered variable and rewrites its
// placeholders in the content so the two stay in step.
func (s *Service) RenameVariable(ctx context.Context, id, oldName, newName string) (*store.Template, error) {
	t, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}

	vars, err := prompt.RenameVariable(t.Variables, oldName, newName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
	}
	t.Content = prompt.RenamePlaceholders(t.Content, oldName, newName)
	t.Variables = prompt.Reconcile(t.Content, vars)
	t.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateTemplate(ctx, t); err != nil {
		return nil, err
	}

	s.record(ctx, store.AuditRenameVariable, t.ID, map[string]any{"from": oldName, "to": newName})
	return t, nil
}

// CreateFromSuggestion copies a built-in library suggestion into a new
// template. A missing category is created; a taken name gets a copy suffix.
func (s *Service) CreateFromSuggestion(ctx context.Context, name string) (*store.Template, error) {
	sug, err := library.Get(name)
	if err != nil {
		return nil, err
	}

	if sug.Category != "" {
		if _, err := s.store.GetCategoryByName(ctx, sug.Category); errors.Is(err, store.ErrNotFound) {
			if _, err := s.CreateCategory(ctx, CategoryInput{Name: sug.Category}); err != nil && !errors.Is(err, store.ErrDuplicate) {
				return nil, err
			}
		} else if err != nil {
			return nil, err
		}
	}

	templateName := sug.Name
	if exists, err := s.store.TemplateNameExists(ctx, templateName); err != nil {
		return nil, err
	} else if exists {
		if templateName, err = s.copyName(ctx, sug.Name); err != nil {
			return nil, err
		}
	}

	return s.Create(ctx, Input{
		Name:        templateName,
		Description: sug.Description,
		Category:    sug.Category,
		Content:     sug.Content,
		Variables:   prompt.Clone(sug.Variables),
	})
}

func (s *Service) record(ctx context.Context, action store.AuditAction, id string, detail map[string]any) {
	s.recordTarget(ctx, action, "template", id, detail)
}

func (s *Service) recordTarget(ctx context.Context, action store.AuditAction, targetType, id string, detail map[string]any) {
	store.Record(ctx, s.store, s.logger, store.AuditEntry{
		ActorID:    auth.ActorID(ctx),
		Action:     action,
		TargetType: targetType,
		TargetID:   id,
		Detail:     detail,
	})
}
