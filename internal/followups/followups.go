// ABOUTME: Follow-up suggestion service: CRUD, ordering and per-template rendering
// ABOUTME: Suggestions may contain {{placeholders}} filled from the conversation's values

// Package followups manages the suggested questions shown after an answer.
package followups

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
	"github.com/2389/assistant-console/internal/prompt"
	"github.com/2389/assistant-console/internal/store"
)

// MaxTextLength caps a suggestion's length in runes.
const MaxTextLength = 500

// ErrInvalidFollowUp wraps validation failures.
var ErrInvalidFollowUp = errors.New("invalid follow-up")

// Store is the persistence the service needs.
type Store interface {
	store.FollowUpStore
	store.AuditStore
	GetTemplate(ctx context.Context, id string) (*store.Template, error)
	GetCategoryByName(ctx context.Context, name string) (*store.Category, error)
}

// Input carries the editable fields of a follow-up.
type Input struct {
	Text       string `json:"text"`
	Category   string `json:"category"`
	TemplateID string `json:"template_id"`
	IsActive   *bool  `json:"is_active"`
}

// Suggestion is a follow-up rendered for display.
type Suggestion struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Missing []string `json:"missing"`
}

// Service manages follow-ups.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a follow-up service.
func NewService(s Store) *Service {
	return &Service{store: s, logger: slog.Default().With("component", "followups")}
}

func (s *Service) validate(ctx context.Context, f *store.FollowUp) error {
	if f.Text == "" {
		return fmt.Errorf("%w: text is required", ErrInvalidFollowUp)
	}
	if utf8.RuneCountInString(f.Text) > MaxTextLength {
		return fmt.Errorf("%w: text must be at most %d characters", ErrInvalidFollowUp, MaxTextLength)
	}
	if f.TemplateID != "" {
		if _, err := s.store.GetTemplate(ctx, f.TemplateID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: template %s does not exist", ErrInvalidFollowUp, f.TemplateID)
			}
			return err
		}
	}
	if f.Category != "" {
		if _, err := s.store.GetCategoryByName(ctx, f.Category); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: category %q does not exist", ErrInvalidFollowUp, f.Category)
			}
			return err
		}
	}
	return nil
}

func (in Input) apply(f *store.FollowUp) {
	f.Text = strings.TrimSpace(in.Text)
	f.Category = strings.TrimSpace(in.Category)
	f.TemplateID = in.TemplateID
	if in.IsActive != nil {
		f.IsActive = *in.IsActive
	}
}

// Create adds a follow-up at the end of the order.
func (s *Service) Create(ctx context.Context, in Input) (*store.FollowUp, error) {
	now := time.Now().UTC()
	f := &store.FollowUp{ID: uuid.New().String(), IsActive: true, CreatedAt: now, UpdatedAt: now}
	in.apply(f)

	if err := s.validate(ctx, f); err != nil {
		return nil, err
	}
	if err := s.store.CreateFollowUp(ctx, f); err != nil {
		return nil, err
	}

	s.record(ctx, store.AuditCreateFollowUp, f.ID, map[string]any{"text": f.Text})
	return f, nil
}

// Get returns a follow-up by ID.
func (s *Service) Get(ctx context.Context, id string) (*store.FollowUp, error) {
	return s.store.GetFollowUp(ctx, id)
}

// List returns follow-ups in display order.
func (s *Service) List(ctx context.Context, f store.FollowUpFilter) ([]*store.FollowUp, error) {
	return s.store.ListFollowUps(ctx, f)
}

// Update changes a follow-up's text, scope or active flag.
func (s *Service) Update(ctx context.Context, id string, in Input) (*store.FollowUp, error) {
	f, err := s.store.GetFollowUp(ctx, id)
	if err != nil {
		return nil, err
	}
	in.apply(f)
	f.UpdatedAt = time.Now().UTC()

	if err := s.validate(ctx, f); err != nil {
		return nil, err
	}
	if err := s.store.UpdateFollowUp(ctx, f); err != nil {
		return nil, err
	}

	s.record(ctx, store.AuditUpdateFollowUp, f.ID, nil)
	return f, nil
}

// Delete removes a follow-up.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteFollowUp(ctx, id); err != nil {
		return err
	}
	s.record(ctx, store.AuditDeleteFollowUp, id, nil)
	return nil
}

// Reorder puts the listed follow-ups first, in the given order.
func (s *Service) Reorder(ctx context.Context, ids []string) error {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return fmt.Errorf("%w: %s listed twice", ErrInvalidFollowUp, id)
		}
		seen[id] = true
	}

	if err := s.store.ReorderFollowUps(ctx, ids); err != nil {
		return err
	}
	s.record(ctx, store.AuditReorderFollowUps, "", map[string]any{"ids": ids})
	return nil
}

// ForTemplate returns the active suggestions for a template: ones tied to
// it, then ones scoped to its category, then global ones. Each is rendered
// with values; placeholders without a value show as [name].
func (s *Service) ForTemplate(ctx context.Context, templateID string, values map[string]string) ([]Suggestion, error) {
	tmpl, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}

	all, err := s.store.ListFollowUps(ctx, store.FollowUpFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}

	var tied, categorized, global []*store.FollowUp
	for _, f := range all {
		switch {
		case f.TemplateID == tmpl.ID:
			tied = append(tied, f)
		case f.TemplateID != "":
			// tied to another template
		case f.Category != "" && f.Category == tmpl.Category:
			categorized = append(categorized, f)
		case f.Category == "":
			global = append(global, f)
		}
	}

	out := []Suggestion{}
	for _, group := range [][]*store.FollowUp{tied, categorized, global} {
		for _, f := range group {
			out = append(out, render(f, tmpl.Variables, values))
		}
	}
	return out, nil
}

// render fills a suggestion's placeholders. Variables the template defines
// keep their defaults; anything else is treated as a plain string variable.
func render(f *store.FollowUp, templateVars []prompt.Variable, values map[string]string) Suggestion {
	vars := prompt.Reconcile(f.Text, templateVars)
	return Suggestion{
		ID:      f.ID,
		Text:    prompt.Render(f.Text, vars, values),
		Missing: prompt.MissingRequired(f.Text, vars, values),
	}
}

func (s *Service) record(ctx context.Context, action store.AuditAction, id string, detail map[string]any) {
	store.Record(ctx, s.store, s.logger, store.AuditEntry{
		ActorID:    auth.ActorID(ctx),
		Action:     action,
		TargetType: "followup",
		TargetID:   id,
		Detail:     detail,
	})
}
