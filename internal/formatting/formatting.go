// ABOUTME: Response formatting rules and their application to model output
// ABOUTME: Markdown is rendered to HTML with goldmark; rules also become system prompt instructions

// Package formatting holds the console-wide response formatting settings.
package formatting

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/2389/assistant-console/internal/auth"
	"github.com/2389/assistant-console/internal/store"
)

const settingsKey = "formatting"

// MaxLengthLimit caps Settings.MaxLength.
const MaxLengthLimit = 100000

// Citation styles.
const (
	CitationNone     = "none"
	CitationInline   = "inline"
	CitationFootnote = "footnote"
)

// ErrInvalidSettings wraps validation failures.
var ErrInvalidSettings = errors.New("invalid formatting settings")

// Settings control how assistant answers are shaped.
type Settings struct {
	Markdown         bool   `json:"markdown"`
	MaxLength        int    `json:"max_length"` // runes, 0 means unlimited
	CodeHighlighting bool   `json:"code_highlighting"`
	CitationStyle    string `json:"citation_style"`
	Tone             string `json:"tone"`
}

// Defaults returns the settings used before anything is saved.
func Defaults() Settings {
	return Settings{
		Markdown:         true,
		CodeHighlighting: true,
		CitationStyle:    CitationInline,
		Tone:             "neutral",
	}
}

// Validate checks s.
func (s Settings) Validate() error {
	if s.MaxLength < 0 || s.MaxLength > MaxLengthLimit {
		return fmt.Errorf("%w: max_length must be between 0 and %d", ErrInvalidSettings, MaxLengthLimit)
	}
	switch s.CitationStyle {
	case CitationNone, CitationInline, CitationFootnote:
	default:
		return fmt.Errorf("%w: citation_style %q is not one of none, inline, footnote", ErrInvalidSettings, s.CitationStyle)
	}
	if utf8.RuneCountInString(s.Tone) > 64 {
		return fmt.Errorf("%w: tone must be at most 64 characters", ErrInvalidSettings)
	}
	return nil
}

// Result is formatted output.
type Result struct {
	Text      string `json:"text"`
	HTML      string `json:"html"`
	Truncated bool   `json:"truncated"`
}

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
)

// RenderMarkdown converts markdown to HTML. Raw HTML in the source is dropped.
func RenderMarkdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return buf.String(), nil
}

// Apply truncates text to MaxLength runes and renders it to HTML, as
// markdown when enabled or as escaped text otherwise.
func Apply(s Settings, text string) (Result, error) {
	res := Result{Text: text}
	if s.MaxLength > 0 && utf8.RuneCountInString(text) > s.MaxLength {
		res.Text = string([]rune(text)[:s.MaxLength])
		res.Truncated = true
	}

	if s.Markdown {
		out, err := RenderMarkdown(res.Text)
		if err != nil {
			return Result{}, err
		}
		res.HTML = out
		return res, nil
	}

	escaped := html.EscapeString(res.Text)
	res.HTML = "<p>" + strings.ReplaceAll(escaped, "\n", "<br>\n") + "</p>\n"
	return res, nil
}

// Instructions turns the settings into a system prompt fragment.
func Instructions(s Settings) string {
	var lines []string
	if s.Markdown {
		lines = append(lines, "Format answers in Markdown.")
		if s.CodeHighlighting {
			lines = append(lines, "Put code in fenced blocks tagged with the language.")
		}
	} else {
		lines = append(lines, "Answer in plain text without Markdown.")
	}
	if s.MaxLength > 0 {
		lines = append(lines, fmt.Sprintf("Keep answers under %d characters.", s.MaxLength))
	}
	switch s.CitationStyle {
	case CitationInline:
		lines = append(lines, "Cite sources inline, like [1].")
	case CitationFootnote:
		lines = append(lines, "Cite sources as numbered footnotes at the end.")
	}
	if tone := strings.TrimSpace(s.Tone); tone != "" {
		lines = append(lines, fmt.Sprintf("Use a %s tone.", tone))
	}
	return strings.Join(lines, "\n")
}

// Store is the persistence the service needs.
type Store interface {
	store.SettingsStore
	store.AuditStore
}

// Service reads and writes the formatting settings.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a formatting service.
func NewService(s Store) *Service {
	return &Service{store: s, logger: slog.Default().With("component", "formatting")}
}

// Get returns the saved settings or the defaults.
func (svc *Service) Get(ctx context.Context) (Settings, error) {
	return store.LoadSetting(ctx, svc.store, settingsKey, Defaults())
}

// Update validates and saves s.
func (svc *Service) Update(ctx context.Context, s Settings) (Settings, error) {
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	if err := store.SaveSetting(ctx, svc.store, settingsKey, s); err != nil {
		return Settings{}, err
	}

	store.Record(ctx, svc.store, svc.logger, store.AuditEntry{
		ActorID:    auth.ActorID(ctx),
		Action:     store.AuditUpdateFormatting,
		TargetType: "setting",
		TargetID:   settingsKey,
	})
	return s, nil
}

// Apply formats text with the saved settings.
func (svc *Service) Apply(ctx context.Context, text string) (Result, error) {
	s, err := svc.Get(ctx)
	if err != nil {
		return Result{}, err
	}
	return Apply(s, text)
}
