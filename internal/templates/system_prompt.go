// ABOUTME: The console-wide system prompt, stored as a singleton setting
// ABOUTME: Its content carries a variable registry like any template

package templates

import (
	"context"
	"fmt"
	"time"

	"github.com/2389/assistant-console/internal/auth"
	"github.com/2389/assistant-console/internal/prompt"
	"github.com/2389/assistant-console/internal/store"
)

const systemPromptKey = "system_prompt"

// SystemPrompt is prepended to every rendered template sent to a model.
type SystemPrompt struct {
	Content   string            `json:"content"`
	Variables []prompt.Variable `json:"variables"`
	UpdatedAt time.Time         `json:"updated_at"`
	UpdatedBy string            `json:"updated_by"`
}

// SystemPromptInput carries the editable fields of the system prompt.
type SystemPromptInput struct {
	Content   string            `json:"content"`
	Variables []prompt.Variable `json:"variables"`
}

// GetSystemPrompt returns the saved system prompt, empty if never set.
func (s *Service) GetSystemPrompt(ctx context.Context) (SystemPrompt, error) {
	sp, err := store.LoadSetting(ctx, s.store, systemPromptKey, SystemPrompt{Variables: []prompt.Variable{}})
	if err != nil {
		return SystemPrompt{}, err
	}
	// older documents may predate a placeholder edit made by hand
	sp.Variables = prompt.Reconcile(sp.Content, sp.Variables)
	return sp, nil
}

// UpdateSystemPrompt reconciles, validates and saves the system prompt.
func (s *Service) UpdateSystemPrompt(ctx context.Context, in SystemPromptInput) (SystemPrompt, error) {
	sp := SystemPrompt{
		Content:   in.Content,
		Variables: prompt.Reconcile(in.Content, in.Variables),
		UpdatedAt: time.Now().UTC(),
		UpdatedBy: auth.ActorID(ctx),
	}
	if errs := prompt.ValidateVariables(sp.Variables); len(errs) > 0 {
		return SystemPrompt{}, fmt.Errorf("%w: %s", ErrInvalidTemplate, errs[0].Error())
	}
	if err := store.SaveSetting(ctx, s.store, systemPromptKey, sp); err != nil {
		return SystemPrompt{}, err
	}

	s.recordTarget(ctx, store.AuditUpdateSystemPrompt, "setting", systemPromptKey, map[string]any{
		"variables": prompt.Names(sp.Variables),
	})
	return sp, nil
}
