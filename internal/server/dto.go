// ABOUTME: JSON response shapes for store records exposed over the API
// ABOUTME: Provider API keys are masked and password hashes never leave the server

package server

import (
	"time"

	"github.com/2389/assistant-console/internal/prompt"
	"github.com/2389/assistant-console/internal/provider"
	"github.com/2389/assistant-console/internal/store"
)

// TemplateResponse is the JSON form of a template.
type TemplateResponse struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Category    string            `json:"category"`
	Content     string            `json:"content"`
	Variables   []prompt.Variable `json:"variables"`
	Stale       []string          `json:"stale"`
	IsDefault   bool              `json:"is_default"`
	IsActive    bool              `json:"is_active"`
	CreatedBy   string            `json:"created_by"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func toTemplateResponse(t *store.Template) TemplateResponse {
	vars := t.Variables
	if vars == nil {
		vars = []prompt.Variable{}
	}
	stale := prompt.Stale(t.Content, vars)
	if stale == nil {
		stale = []string{}
	}
	return TemplateResponse{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Category:    t.Category,
		Content:     t.Content,
		Variables:   vars,
		Stale:       stale,
		IsDefault:   t.IsDefault,
		IsActive:    t.IsActive,
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func toTemplateResponses(ts []*store.Template) []TemplateResponse {
	out := make([]TemplateResponse, len(ts))
	for i, t := range ts {
		out[i] = toTemplateResponse(t)
	}
	return out
}

// CategoryResponse is the JSON form of a category.
type CategoryResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func toCategoryResponse(c *store.Category) CategoryResponse {
	return CategoryResponse{ID: c.ID, Name: c.Name, Description: c.Description, CreatedAt: c.CreatedAt}
}

// ProviderResponse is the JSON form of a provider with its key masked.
type ProviderResponse struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Kind         string        `json:"kind"`
	BaseURL      string        `json:"base_url"`
	APIKey       string        `json:"api_key"`
	Models       []store.Model `json:"models"`
	DefaultModel string        `json:"default_model"`
	Temperature  float64       `json:"temperature"`
	MaxTokens    int           `json:"max_tokens"`
	IsActive     bool          `json:"is_active"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

func toProviderResponse(p *store.Provider) ProviderResponse {
	models := p.Models
	if models == nil {
		models = []store.Model{}
	}
	return ProviderResponse{
		ID:           p.ID,
		Name:         p.Name,
		Kind:         p.Kind,
		BaseURL:      p.BaseURL,
		APIKey:       provider.MaskKey(p.APIKey),
		Models:       models,
		DefaultModel: p.DefaultModel,
		Temperature:  p.Temperature,
		MaxTokens:    p.MaxTokens,
		IsActive:     p.IsActive,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

// FollowUpResponse is the JSON form of a follow-up.
type FollowUpResponse struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Category   string    `json:"category"`
	TemplateID string    `json:"template_id"`
	Position   int       `json:"position"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toFollowUpResponse(f *store.FollowUp) FollowUpResponse {
	return FollowUpResponse{
		ID:         f.ID,
		Text:       f.Text,
		Category:   f.Category,
		TemplateID: f.TemplateID,
		Position:   f.Position,
		IsActive:   f.IsActive,
		CreatedAt:  f.CreatedAt,
		UpdatedAt:  f.UpdatedAt,
	}
}

// UserResponse is the JSON form of an admin user.
type UserResponse struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name"`
	Role        store.Role `json:"role"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toUserResponse(u *store.AdminUser) UserResponse {
	return UserResponse{ID: u.ID, Username: u.Username, DisplayName: u.DisplayName, Role: u.Role, CreatedAt: u.CreatedAt}
}

// AuditResponse is the JSON form of an audit entry.
type AuditResponse struct {
	ID         string            `json:"id"`
	ActorID    string            `json:"actor_id"`
	Action     store.AuditAction `json:"action"`
	TargetType string            `json:"target_type"`
	TargetID   string            `json:"target_id"`
	Timestamp  time.Time         `json:"timestamp"`
	Detail     map[string]any    `json:"detail,omitempty"`
}

// DocumentResponse describes a document ingested from a directory resource.
// Content is omitted; search returns snippets.
type DocumentResponse struct {
	Path       string    `json:"path"`
	Encoding   string    `json:"encoding"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}
