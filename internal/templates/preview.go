// ABOUTME: Template previews and live model tests
// ABOUTME: Previews render locally; tests send the rendered prompt to a provider

package templates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/2389/assistant-console/internal/auth"
	"github.com/2389/assistant-console/internal/dedupe"
	"github.com/2389/assistant-console/internal/formatting"
	"github.com/2389/assistant-console/internal/prompt"
	"github.com/2389/assistant-console/internal/provider"
	"github.com/2389/assistant-console/internal/store"
)

var (
	// ErrInvalidValues is returned by Test when the values do not satisfy
	// the template. The error is a *ValuesError carrying the details.
	ErrInvalidValues = errors.New("invalid variable values")

	// ErrDuplicateRequest is returned when an idempotency key is reused
	// inside its window.
	ErrDuplicateRequest = errors.New("duplicate request")

	// ErrTestUnavailable is returned by Test when no providers are wired.
	ErrTestUnavailable = errors.New("template testing is not configured")
)

// Completers hands out provider clients. *provider.Service implements it.
type Completers interface {
	Completer(ctx context.Context, id, model string) (provider.Completer, *store.Provider, string, error)
}

// FormattingSource supplies the response formatting settings.
// *formatting.Service implements it.
type FormattingSource interface {
	Get(ctx context.Context) (formatting.Settings, error)
}

// ValuesError reports why a set of values cannot be sent to a model.
type ValuesError struct {
	Report prompt.RenderReport
}

func (e *ValuesError) Error() string {
	var parts []string
	if len(e.Report.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Report.Missing, ", "))
	}
	for _, ve := range e.Report.Errors {
		parts = append(parts, ve.Error())
	}
	return fmt.Sprintf("%s: %s", ErrInvalidValues, strings.Join(parts, "; "))
}

func (e *ValuesError) Unwrap() error { return ErrInvalidValues }

// Preview is a local render of a template.
type Preview struct {
	Text      string                   `json:"text"`
	HTML      string                   `json:"html"`
	Variables []prompt.Variable        `json:"variables"`
	Missing   []string                 `json:"missing"`
	Stale     []string                 `json:"stale"`
	Errors    []prompt.ValidationError `json:"errors"`
}

// ScanResult lists the placeholders found in content.
type ScanResult struct {
	Placeholders []string          `json:"placeholders"`
	Variables    []prompt.Variable `json:"variables"`
}

// TestRequest describes a live test of a template against a model.
type TestRequest struct {
	Values         map[string]string `json:"values"`
	ProviderID     string            `json:"provider_id"`
	Model          string            `json:"model"`
	IdempotencyKey string            `json:"-"`
}

// TestResult is a model's answer to a rendered template.
type TestResult struct {
	System       string         `json:"system"`
	Prompt       string         `json:"prompt"`
	Response     string         `json:"response"`
	HTML         string         `json:"html"`
	Truncated    bool           `json:"truncated"`
	Model        string         `json:"model"`
	FinishReason string         `json:"finish_reason"`
	Usage        provider.Usage `json:"usage"`
	Latency      time.Duration  `json:"latency_ns"`
}

// Scan reconciles content against vars without saving anything, so an
// editor can show the registry a save would produce.
func Scan(content string, vars []prompt.Variable) ScanResult {
	return ScanResult{
		Placeholders: prompt.Scan(content),
		Variables:    prompt.Reconcile(content, vars),
	}
}

// Preview renders a stored template with values.
func (s *Service) Preview(ctx context.Context, id string, values map[string]string) (*Preview, error) {
	t, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	return PreviewContent(t.Content, t.Variables, values)
}

// PreviewContent renders unsaved content. Placeholders without a
// registered variable are treated as new string variables.
func PreviewContent(content string, vars []prompt.Variable, values map[string]string) (*Preview, error) {
	reconciled := prompt.Reconcile(content, vars)
	text, report := prompt.RenderStrict(content, reconciled, values)

	html, err := formatting.RenderMarkdown(text)
	if err != nil {
		return nil, fmt.Errorf("rendering preview: %w", err)
	}

	return &Preview{
		Text:      text,
		HTML:      html,
		Variables: reconciled,
		Missing:   report.Missing,
		Stale:     prompt.Stale(content, reconciled),
		Errors:    report.Errors,
	}, nil
}

// Test renders a template strictly, prepends the system prompt and the
// formatting instructions, and sends it to a provider. Repeating a request
// with the same idempotency key inside the window fails with
// ErrDuplicateRequest; a failed attempt frees the key for a retry.
func (s *Service) Test(ctx context.Context, id string, req TestRequest) (*TestResult, error) {
	if s.completers == nil {
		return nil, ErrTestUnavailable
	}

	t, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}

	text, report := prompt.RenderStrict(t.Content, t.Variables, req.Values)
	if !report.OK() {
		return nil, &ValuesError{Report: report}
	}

	var claimed string
	if s.idem != nil && req.IdempotencyKey != "" {
		claimed = dedupe.Key(auth.ActorID(ctx), "template-test:"+id, req.IdempotencyKey)
		if !s.idem.Claim(claimed) {
			return nil, ErrDuplicateRequest
		}
	}

	result, err := s.runTest(ctx, t, text, req)
	if err != nil && claimed != "" {
		s.idem.Release(claimed)
	}
	return result, err
}

func (s *Service) runTest(ctx context.Context, t *store.Template, text string, req TestRequest) (*TestResult, error) {
	client, p, model, err := s.completers.Completer(ctx, req.ProviderID, req.Model)
	if err != nil {
		return nil, err
	}

	sp, err := s.GetSystemPrompt(ctx)
	if err != nil {
		return nil, err
	}
	system := prompt.Render(sp.Content, sp.Variables, req.Values)

	settings := formatting.Defaults()
	if s.formatting != nil {
		if settings, err = s.formatting.Get(ctx); err != nil {
			return nil, err
		}
		system = joinNonEmpty(system, formatting.Instructions(settings))
	}

	resp, err := client.Complete(ctx, provider.Request{
		Model:       model,
		System:      system,
		Prompt:      text,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	})
	if err != nil {
		s.logger.Warn("template test failed", "template", t.ID, "provider", p.ID, "model", model, "error", err)
		return nil, err
	}

	formatted, err := formatting.Apply(settings, resp.Content)
	if err != nil {
		return nil, err
	}

	s.logger.Info("template tested",
		"template", t.ID,
		"provider", p.Name,
		"model", resp.Model,
		"tokens", resp.Usage.TotalTokens,
		"latency", resp.Latency,
	)

	return &TestResult{
		System:       system,
		Prompt:       text,
		Response:     formatted.Text,
		HTML:         formatted.HTML,
		Truncated:    formatted.Truncated,
		Model:        resp.Model,
		FinishReason: resp.FinishReason,
		Usage:        resp.Usage,
		Latency:      resp.Latency,
	}, nil
}

func joinNonEmpty(parts ...string) string {
	var out []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}
