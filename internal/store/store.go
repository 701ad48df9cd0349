// ABOUTME: Store interfaces and record types for assistant-console persistence
// ABOUTME: Templates, categories, providers, follow-ups, knowledge, settings, users, audit

package store

import (
	"context"
	"errors"
	"time"

	"github.com/2389/assistant-console/internal/prompt"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique name is already taken
var ErrDuplicate = errors.New("already exists")

// ErrCategoryInUse is returned when deleting a category that templates still reference
var ErrCategoryInUse = errors.New("category in use")

// Template is a named, categorized piece of prompt text plus its variable registry
type Template struct {
	ID          string
	Name        string
	Description string
	Category    string // category name, empty for uncategorized
	Content     string
	Variables   []prompt.Variable
	IsDefault   bool
	IsActive    bool
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TemplateFilter narrows ListTemplates results
type TemplateFilter struct {
	Category *string
	Active   *bool
	Limit    int // default 500, max 1000
}

// Category groups templates
type Category struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
}

// Provider is a registered AI model provider
type Provider struct {
	ID           string
	Name         string
	Kind         string // openai, azure, openai_compatible
	BaseURL      string
	APIKey       string
	Models       []Model
	DefaultModel string
	Temperature  float64
	MaxTokens    int
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Model is one model offered by a provider
type Model struct {
	ID            string `json:"id"`
	DisplayName   string `json:"display_name"`
	ContextWindow int    `json:"context_window"`
}

// FollowUp is a suggested follow-up question shown after an answer
type FollowUp struct {
	ID         string
	Text       string
	Category   string // empty means any category
	TemplateID string // empty means not tied to a template
	Position   int
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// FollowUpFilter narrows ListFollowUps results
type FollowUpFilter struct {
	TemplateID *string
	Category   *string
	ActiveOnly bool
}

// KnowledgeResource is a knowledge-base entry. Payload holds the JSON body of
// the type-specific fields and is interpreted by the knowledge package.
type KnowledgeResource struct {
	ID           string
	Type         string // ARTICLE, FAQ, FILE_UPLOAD, DIRECTORY
	Title        string
	Payload      []byte
	LastSyncedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// KnowledgeDocument is a file ingested from a DIRECTORY resource
type KnowledgeDocument struct {
	ID         string
	ResourceID string
	Path       string // relative to the resource root
	Content    string
	Encoding   string
	Size       int64
	ModifiedAt time.Time
}

// TemplateStore persists templates
type TemplateStore interface {
	CreateTemplate(ctx context.Context, t *Template) error
	GetTemplate(ctx context.Context, id string) (*Template, error)
	UpdateTemplate(ctx context.Context, t *Template) error
	DeleteTemplate(ctx context.Context, id string) error
	ListTemplates(ctx context.Context, f TemplateFilter) ([]*Template, error)
	SetDefaultTemplate(ctx context.Context, id string) error
	TemplateNameExists(ctx context.Context, name string) (bool, error)
}

// CategoryStore persists template categories
type CategoryStore interface {
	CreateCategory(ctx context.Context, c *Category) error
	GetCategory(ctx context.Context, id string) (*Category, error)
	GetCategoryByName(ctx context.Context, name string) (*Category, error)
	UpdateCategory(ctx context.Context, c *Category) error
	DeleteCategory(ctx context.Context, id string) error
	ListCategories(ctx context.Context) ([]*Category, error)
}

// SettingsStore persists singleton settings documents as JSON
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) ([]byte, error)
	PutSetting(ctx context.Context, key string, value []byte) error
}

// ProviderStore persists model providers
type ProviderStore interface {
	CreateProvider(ctx context.Context, p *Provider) error
	GetProvider(ctx context.Context, id string) (*Provider, error)
	UpdateProvider(ctx context.Context, p *Provider) error
	DeleteProvider(ctx context.Context, id string) error
	ListProviders(ctx context.Context) ([]*Provider, error)
}

// FollowUpStore persists follow-up suggestions
type FollowUpStore interface {
	CreateFollowUp(ctx context.Context, f *FollowUp) error
	GetFollowUp(ctx context.Context, id string) (*FollowUp, error)
	UpdateFollowUp(ctx context.Context, f *FollowUp) error
	DeleteFollowUp(ctx context.Context, id string) error
	ListFollowUps(ctx context.Context, f FollowUpFilter) ([]*FollowUp, error)
	ReorderFollowUps(ctx context.Context, ids []string) error
}

// KnowledgeStore persists knowledge-base resources and their documents
type KnowledgeStore interface {
	CreateKnowledgeResource(ctx context.Context, r *KnowledgeResource) error
	GetKnowledgeResource(ctx context.Context, id string) (*KnowledgeResource, error)
	UpdateKnowledgeResource(ctx context.Context, r *KnowledgeResource) error
	DeleteKnowledgeResource(ctx context.Context, id string) error
	ListKnowledgeResources(ctx context.Context, resourceType string) ([]*KnowledgeResource, error)
	ReplaceKnowledgeDocuments(ctx context.Context, resourceID string, docs []*KnowledgeDocument, syncedAt time.Time) error
	ListKnowledgeDocuments(ctx context.Context, resourceID string) ([]*KnowledgeDocument, error)
}

// Store is the full persistence surface implemented by SQLiteStore
type Store interface {
	TemplateStore
	CategoryStore
	SettingsStore
	ProviderStore
	FollowUpStore
	KnowledgeStore
	AdminStore
	AuditStore

	// Ping checks the database connection
	Ping(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}
