// ABOUTME: Provider registry service: validation, CRUD, key masking and connection tests
// ABOUTME: Every mutation is recorded in the audit log

// Package provider manages the AI model providers the console can call.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/assistant-console/internal/auth"
	"github.com/2389/assistant-console/internal/config"
	"github.com/2389/assistant-console/internal/store"
)

// Provider kinds.
const (
	KindOpenAI           = "openai"
	KindAzure            = "azure"
	KindOpenAICompatible = "openai_compatible"
)

// ErrInvalidProvider wraps every validation failure.
var ErrInvalidProvider = errors.New("invalid provider")

// ErrProviderInactive is returned when calling a disabled provider.
var ErrProviderInactive = errors.New("provider is inactive")

// Store is the persistence the service needs.
type Store interface {
	store.ProviderStore
	store.AuditStore
}

// Input carries the editable fields of a provider. An empty APIKey on
// update keeps the stored key.
type Input struct {
	Name         string        `json:"name"`
	Kind         string        `json:"kind"`
	BaseURL      string        `json:"base_url"`
	APIKey       string        `json:"api_key"`
	Models       []store.Model `json:"models"`
	DefaultModel string        `json:"default_model"`
	Temperature  *float64      `json:"temperature"`
	MaxTokens    int           `json:"max_tokens"`
	IsActive     *bool         `json:"is_active"`
}

// TestResult is the outcome of TestConnection.
type TestResult struct {
	OK       bool          `json:"ok"`
	Model    string        `json:"model"`
	Response string        `json:"response,omitempty"`
	Error    string        `json:"error,omitempty"`
	Latency  time.Duration `json:"latency_ns"`
}

// Service manages providers.
type Service struct {
	store     Store
	newClient CompleterFactory
	timeout   time.Duration
	logger    *slog.Logger
}

// NewService creates a provider service. A nil factory uses NewOpenAICompleter.
func NewService(s Store, factory CompleterFactory, timeout time.Duration) *Service {
	if factory == nil {
		factory = NewOpenAICompleter
	}
	return &Service{
		store:     s,
		newClient: factory,
		timeout:   timeout,
		logger:    slog.Default().With("component", "provider"),
	}
}

// Validate checks a provider record.
func Validate(p *store.Provider) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidProvider, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(p.Name) == "" {
		return invalid("name is required")
	}
	switch p.Kind {
	case KindOpenAI, KindAzure, KindOpenAICompatible:
	default:
		return invalid("kind %q is not one of openai, azure, openai_compatible", p.Kind)
	}

	if p.BaseURL == "" && p.Kind != KindOpenAI {
		return invalid("base_url is required for %s providers", p.Kind)
	}
	if p.BaseURL != "" {
		u, err := url.Parse(p.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("base_url %q must be an absolute http(s) URL", p.BaseURL)
		}
	}

	if p.Temperature < 0 || p.Temperature > 2 {
		return invalid("temperature must be between 0 and 2")
	}
	if p.MaxTokens < 0 {
		return invalid("max_tokens must not be negative")
	}

	seen := make(map[string]bool, len(p.Models))
	for _, m := range p.Models {
		if strings.TrimSpace(m.ID) == "" {
			return invalid("model id is required")
		}
		if seen[m.ID] {
			return invalid("model %q listed twice", m.ID)
		}
		if m.ContextWindow < 0 {
			return invalid("model %q context_window must not be negative", m.ID)
		}
		seen[m.ID] = true
	}
	if p.DefaultModel != "" && len(p.Models) > 0 && !seen[p.DefaultModel] {
		return invalid("default_model %q is not in models", p.DefaultModel)
	}
	return nil
}

// MaskKey hides all but the last four characters of an API key.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return strings.Repeat("•", 4)
	}
	return strings.Repeat("•", 4) + key[len(key)-4:]
}

func (in Input) apply(p *store.Provider) {
	p.Name = strings.TrimSpace(in.Name)
	p.Kind = in.Kind
	p.BaseURL = strings.TrimRight(in.BaseURL, "/")
	if in.APIKey != "" {
		p.APIKey = in.APIKey
	}
	p.Models = in.Models
	if p.Models == nil {
		p.Models = []store.Model{}
	}
	p.DefaultModel = in.DefaultModel
	if p.DefaultModel == "" && len(p.Models) > 0 {
		p.DefaultModel = p.Models[0].ID
	}
	if in.Temperature != nil {
		p.Temperature = *in.Temperature
	}
	p.MaxTokens = in.MaxTokens
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
}

// Create validates and stores a new provider.
func (s *Service) Create(ctx context.Context, in Input) (*store.Provider, error) {
	now := time.Now().UTC()
	p := &store.Provider{
		ID:          uuid.New().String(),
		Temperature: 0.7,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	in.apply(p)

	if err := Validate(p); err != nil {
		return nil, err
	}
	if err := s.store.CreateProvider(ctx, p); err != nil {
		return nil, err
	}

	s.record(ctx, store.AuditCreateProvider, p.ID, map[string]any{"name": p.Name, "kind": p.Kind})
	s.logger.Info("provider created", "id", p.ID, "kind", p.Kind)
	return p, nil
}

// Get returns a provider by ID.
func (s *Service) Get(ctx context.Context, id string) (*store.Provider, error) {
	return s.store.GetProvider(ctx, id)
}

// List returns every provider.
func (s *Service) List(ctx context.Context) ([]*store.Provider, error) {
	return s.store.ListProviders(ctx)
}

// Update replaces a provider's fields.
func (s *Service) Update(ctx context.Context, id string, in Input) (*store.Provider, error) {
	p, err := s.store.GetProvider(ctx, id)
	if err != nil {
		return nil, err
	}
	in.apply(p)
	p.UpdatedAt = time.Now().UTC()

	if err := Validate(p); err != nil {
		return nil, err
	}
	if err := s.store.UpdateProvider(ctx, p); err != nil {
		return nil, err
	}

	s.record(ctx, store.AuditUpdateProvider, p.ID, map[string]any{"name": p.Name, "key_changed": in.APIKey != ""})
	return p, nil
}

// Delete removes a provider.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteProvider(ctx, id); err != nil {
		return err
	}
	s.record(ctx, store.AuditDeleteProvider, id, nil)
	return nil
}

// Completer returns a client for the provider and the model to use. An
// empty model selects the provider's default.
func (s *Service) Completer(ctx context.Context, id, model string) (Completer, *store.Provider, string, error) {
	p, err := s.store.GetProvider(ctx, id)
	if err != nil {
		return nil, nil, "", err
	}
	if !p.IsActive {
		return nil, nil, "", ErrProviderInactive
	}
	if model == "" {
		model = p.DefaultModel
	}
	if model == "" {
		return nil, nil, "", fmt.Errorf("%w: no model given and no default_model set", ErrInvalidProvider)
	}
	return s.newClient(p, s.timeout), p, model, nil
}

// TestConnection sends a one-line prompt to the provider. Provider failures
// are reported in the result, not as an error.
func (s *Service) TestConnection(ctx context.Context, id, model string) (*TestResult, error) {
	client, p, model, err := s.Completer(ctx, id, model)
	if err != nil {
		return nil, err
	}

	resp, err := client.Complete(ctx, Request{
		Model:       model,
		Prompt:      "Reply with the single word: pong",
		Temperature: p.Temperature,
		MaxTokens:   16,
	})
	if err != nil {
		s.logger.Warn("provider test failed", "id", id, "model", model, "error", err)
		return &TestResult{OK: false, Model: model, Error: err.Error()}, nil
	}

	return &TestResult{OK: true, Model: resp.Model, Response: resp.Content, Latency: resp.Latency}, nil
}

// Seed creates the configured providers when none exist yet.
func (s *Service) Seed(ctx context.Context, seeds []config.ProviderSeed) (int, error) {
	existing, err := s.store.ListProviders(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 || len(seeds) == 0 {
		return 0, nil
	}

	for _, seed := range seeds {
		models := make([]store.Model, len(seed.Models))
		for i, m := range seed.Models {
			models[i] = store.Model{ID: m, DisplayName: m}
		}
		kind := seed.Kind
		if kind == "" {
			kind = KindOpenAI
		}
		if _, err := s.Create(ctx, Input{
			Name:         seed.Name,
			Kind:         kind,
			BaseURL:      seed.BaseURL,
			APIKey:       seed.APIKey,
			Models:       models,
			DefaultModel: seed.DefaultModel,
		}); err != nil {
			return 0, fmt.Errorf("seeding provider %q: %w", seed.Name, err)
		}
	}
	return len(seeds), nil
}

func (s *Service) record(ctx context.Context, action store.AuditAction, id string, detail map[string]any) {
	store.Record(ctx, s.store, s.logger, store.AuditEntry{
		ActorID:    auth.ActorID(ctx),
		Action:     action,
		TargetType: "provider",
		TargetID:   id,
		Detail:     detail,
	})
}
