// ABOUTME: Category management for templates
// ABOUTME: Names are unique; a category in use cannot be deleted

package templates

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/2389/assistant-console/internal/store"
)

// CategoryInput carries the editable fields of a category.
type CategoryInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (in CategoryInput) validate() error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return fmt.Errorf("%w: category name is required", ErrInvalidTemplate)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return fmt.Errorf("%w: category name must be at most %d characters", ErrInvalidTemplate, MaxNameLength)
	}
	return nil
}

// CreateCategory adds a category.
func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (*store.Category, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	c := &store.Category{
		ID:          uuid.New().String(),
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return nil, err
	}

	s.recordTarget(ctx, store.AuditCreateCategory, "category", c.ID, map[string]any{"name": c.Name})
	return c, nil
}

// ListCategories returns every category by name.
func (s *Service) ListCategories(ctx context.Context) ([]*store.Category, error) {
	return s.store.ListCategories(ctx)
}

// UpdateCategory renames or re-describes a category. Templates and
// follow-ups in the category follow a rename.
func (s *Service) UpdateCategory(ctx context.Context, id string, in CategoryInput) (*store.Category, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	c, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	oldName := c.Name
	c.Name = strings.TrimSpace(in.Name)
	c.Description = strings.TrimSpace(in.Description)

	if err := s.store.UpdateCategory(ctx, c); err != nil {
		return nil, err
	}

	detail := map[string]any{"name": c.Name}
	if oldName != c.Name {
		detail["renamed_from"] = oldName
	}
	s.recordTarget(ctx, store.AuditUpdateCategory, "category", c.ID, detail)
	return c, nil
}

// DeleteCategory removes an unused category.
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	if err := s.store.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.recordTarget(ctx, store.AuditDeleteCategory, "category", id, nil)
	return nil
}
