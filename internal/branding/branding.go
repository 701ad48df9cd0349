// ABOUTME: Chat widget branding settings with validation and defaults
// ABOUTME: Stored as a singleton JSON document in the settings table

// Package branding manages the product name, logo, colors and copy shown in
// the end-user chat widget.
package branding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/2389/assistant-console/internal/auth"
	"github.com/2389/assistant-console/internal/store"
)

const settingsKey = "branding"

// ErrInvalidBranding wraps validation failures.
var ErrInvalidBranding = errors.New("invalid branding")

var hexColor = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Branding is the widget's look and copy.
type Branding struct {
	ProductName     string `json:"product_name"`
	LogoURL         string `json:"logo_url"`
	PrimaryColor    string `json:"primary_color"`
	AccentColor     string `json:"accent_color"`
	WelcomeMessage  string `json:"welcome_message"`
	ChatPlaceholder string `json:"chat_placeholder"`
}

// Defaults returns the branding used before anything is saved.
func Defaults() Branding {
	return Branding{
		ProductName:     "Assistant",
		PrimaryColor:    "#2563eb",
		AccentColor:     "#f59e0b",
		WelcomeMessage:  "Hi! How can I help you today?",
		ChatPlaceholder: "Ask a question…",
	}
}

// Normalize trims whitespace and lowercases colors.
func (b Branding) Normalize() Branding {
	b.ProductName = strings.TrimSpace(b.ProductName)
	b.LogoURL = strings.TrimSpace(b.LogoURL)
	b.PrimaryColor = strings.ToLower(strings.TrimSpace(b.PrimaryColor))
	b.AccentColor = strings.ToLower(strings.TrimSpace(b.AccentColor))
	b.WelcomeMessage = strings.TrimSpace(b.WelcomeMessage)
	b.ChatPlaceholder = strings.TrimSpace(b.ChatPlaceholder)
	return b
}

// Validate checks b.
func (b Branding) Validate() error {
	if b.ProductName == "" {
		return fmt.Errorf("%w: product_name is required", ErrInvalidBranding)
	}
	if utf8.RuneCountInString(b.ProductName) > 80 {
		return fmt.Errorf("%w: product_name must be at most 80 characters", ErrInvalidBranding)
	}
	if b.LogoURL != "" {
		u, err := url.Parse(b.LogoURL)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http" && u.Scheme != "data") {
			return fmt.Errorf("%w: logo_url must be an http(s) or data URL", ErrInvalidBranding)
		}
	}
	for field, c := range map[string]string{"primary_color": b.PrimaryColor, "accent_color": b.AccentColor} {
		if !hexColor.MatchString(c) {
			return fmt.Errorf("%w: %s %q must be #rgb or #rrggbb", ErrInvalidBranding, field, c)
		}
	}
	if utf8.RuneCountInString(b.WelcomeMessage) > 1000 {
		return fmt.Errorf("%w: welcome_message must be at most 1000 characters", ErrInvalidBranding)
	}
	if utf8.RuneCountInString(b.ChatPlaceholder) > 120 {
		return fmt.Errorf("%w: chat_placeholder must be at most 120 characters", ErrInvalidBranding)
	}
	return nil
}

// Store is the persistence the service needs.
type Store interface {
	store.SettingsStore
	store.AuditStore
}

// Service reads and writes branding.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a branding service.
func NewService(s Store) *Service {
	return &Service{store: s, logger: slog.Default().With("component", "branding")}
}

// Get returns the saved branding or the defaults.
func (svc *Service) Get(ctx context.Context) (Branding, error) {
	return store.LoadSetting(ctx, svc.store, settingsKey, Defaults())
}

// Update normalizes, validates and saves b.
func (svc *Service) Update(ctx context.Context, b Branding) (Branding, error) {
	b = b.Normalize()
	if err := b.Validate(); err != nil {
		return Branding{}, err
	}
	if err := store.SaveSetting(ctx, svc.store, settingsKey, b); err != nil {
		return Branding{}, err
	}

	store.Record(ctx, svc.store, svc.logger, store.AuditEntry{
		ActorID:    auth.ActorID(ctx),
		Action:     store.AuditUpdateBranding,
		TargetType: "setting",
		TargetID:   settingsKey,
		Detail:     map[string]any{"product_name": b.ProductName},
	})
	return b, nil
}
