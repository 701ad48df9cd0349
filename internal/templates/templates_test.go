// ABOUTME: Tests for the template service
// ABOUTME: Runs against a temporary SQLite store

package templates

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/assistant-console/internal/auth"
	"github.com/2389/assistant-console/internal/dedupe"
	"github.com/2389/assistant-console/internal/formatting"
	"github.com/2389/assistant-console/internal/library"
	"github.com/2389/assistant-console/internal/prompt"
	"github.com/2389/assistant-console/internal/provider"
	"github.com/2389/assistant-console/internal/store"
)

func setupTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func editorContext() context.Context {
	return auth.WithAuth(context.Background(), &auth.AuthContext{
		UserID:   "user-1",
		Username: "ed",
		Role:     store.RoleEditor,
	})
}

func TestService_CreateReconcilesVariables(t *testing.T) {
	st := setupTestStore(t)
	svc := NewService(st)
	ctx := editorContext()

	tmpl, err := svc.Create(ctx, Input{
		Name:    "  Greeting  ",
		Content: "Hello {{name}}, welcome to {{ product }}.",
		Variables: []prompt.Variable{
			{Name: "name", Type: prompt.TypeString, Required: true, Description: "customer"},
			{Name: "old", Type: prompt.TypeString},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Greeting", tmpl.Name)
	assert.Equal(t, "user-1", tmpl.CreatedBy)
	assert.True(t, tmpl.IsActive)
	assert.Equal(t, []string{"name", "old", "product"}, prompt.Names(tmpl.Variables))
	assert.Equal(t, "customer", tmpl.Variables[0].Description)

	stored, err := svc.Get(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, tmpl.Variables, stored.Variables)

	entries, err := st.ListAuditLog(ctx, store.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, store.AuditCreateTemplate, entries[0].Action)
	assert.Equal(t, "user-1", entries[0].ActorID)
}

func TestService_CreateValidates(t *testing.T) {
	svc := NewService(setupTestStore(t))
	ctx := context.Background()

	tests := []struct {
		name string
		in   Input
	}{
		{"empty name", Input{Name: "  ", Content: "x"}},
		{"long name", Input{Name: strings.Repeat("x", MaxNameLength+1), Content: "x"}},
		{"unknown category", Input{Name: "a", Category: "ghost", Content: "x"}},
		{"bad default", Input{Name: "a", Content: "{{n}}", Variables: []prompt.Variable{
			{Name: "n", Type: prompt.TypeNumber, DefaultValue: prompt.StringPtr("many")},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.in)
			assert.ErrorIs(t, err, ErrInvalidTemplate)
		})
	}

	_, err := svc.Create(ctx, Input{Name: "dup", Content: "x"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, Input{Name: "dup", Content: "y"})
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestService_UpdateKeepsStaleVariables(t *testing.T) {
	svc := NewService(setupTestStore(t))
	ctx := context.Background()

	tmpl, err := svc.Create(ctx, Input{Name: "t", Content: "{{a}} {{b}}"})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, tmpl.ID, Input{Name: "t", Content: "{{a}} {{c}}", Variables: tmpl.Variables})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, prompt.Names(updated.Variables))

	_, err = svc.Update(ctx, "missing", Input{Name: "t"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestService_ListWithQuery(t *testing.T) {
	svc := NewService(setupTestStore(t))
	ctx := context.Background()

	for _, in := range []Input{
		{Name: "Refund request", Content: "Handle a refund for {{order}}"},
		{Name: "Résumé review", Content: "Review this CV"},
		{Name: "Weekly report", Content: "Summarize the week"},
	} {
		_, err := svc.Create(ctx, in)
		require.NoError(t, err)
	}

	all, err := svc.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	hits, err := svc.List(ctx, ListOptions{Query: "resume"})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "Résumé review", hits[0].Name)

	hits, err = svc.List(ctx, ListOptions{Query: "refund"})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "Refund request", hits[0].Name)
}

func TestService_Duplicate(t *testing.T) {
	svc := NewService(setupTestStore(t))
	ctx := context.Background()

	src, err := svc.Create(ctx, Input{Name: "Base", Content: "{{x}}"})
	require.NoError(t, err)
	_, err = svc.SetDefault(ctx, src.ID)
	require.NoError(t, err)

	first, err := svc.Duplicate(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, "Base (copy)", first.Name)
	assert.False(t, first.IsDefault)
	assert.Equal(t, src.Variables, first.Variables)

	second, err := svc.Duplicate(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, "Base (copy 2)", second.Name)
}

func TestService_SetDefaultIsPerCategory(t *testing.T) {
	svc := NewService(setupTestStore(t))
	ctx := context.Background()

	_, err := svc.CreateCategory(ctx, CategoryInput{Name: "support"})
	require.NoError(t, err)

	a, err := svc.Create(ctx, Input{Name: "a", Category: "support", Content: "a"})
	require.NoError(t, err)
	b, err := svc.Create(ctx, Input{Name: "b", Category: "support", Content: "b"})
	require.NoError(t, err)
	other, err := svc.Create(ctx, Input{Name: "c", Content: "c"})
	require.NoError(t, err)

	_, err = svc.SetDefault(ctx, other.ID)
	require.NoError(t, err)
	_, err = svc.SetDefault(ctx, a.ID)
	require.NoError(t, err)
	got, err := svc.SetDefault(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDefault)

	a, err = svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, a.IsDefault)

	other, err = svc.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.True(t, other.IsDefault)
}

func TestService_UpdateCategoryKeepsOneDefault(t *testing.T) {
	svc := NewService(setupTestStore(t))
	ctx := context.Background()

	for _, name := range []string{"A", "B"} {
		_, err := svc.CreateCategory(ctx, CategoryInput{Name: name})
		require.NoError(t, err)
	}
	a, err := svc.Create(ctx, Input{Name: "a", Category: "A", Content: "a"})
	require.NoError(t, err)
	b, err := svc.Create(ctx, Input{Name: "b", Category: "B", Content: "b"})
	require.NoError(t, err)
	_, err = svc.SetDefault(ctx, a.ID)
	require.NoError(t, err)
	_, err = svc.SetDefault(ctx, b.ID)
	require.NoError(t, err)

	moved, err := svc.Update(ctx, a.ID, Input{Name: "a", Category: "B", Content: "a"})
	require.NoError(t, err)
	assert.False(t, moved.IsDefault)

	catB := "B"
	inB, err := svc.List(ctx, ListOptions{Category: &catB})
	require.NoError(t, err)
	require.Len(t, inB, 2)
	defaults := 0
	for _, tmpl := range inB {
		if tmpl.IsDefault {
			defaults++
			assert.Equal(t, b.ID, tmpl.ID)
		}
	}
	assert.Equal(t, 1, defaults)

	// editing within the same category leaves the flag alone
	kept, err := svc.Update(ctx, b.ID, Input{Name: "b", Category: "B", Content: "b2"})
	require.NoError(t, err)
	assert.True(t, kept.IsDefault)
}

func TestService_CreateAcceptsScannedNamesWithBraces(t *testing.T) {
	svc := NewService(setupTestStore(t))
	ctx := context.Background()

	content := "JSON example: {{{a}} and {{x {{y}}"
	tmpl, err := svc.Create(ctx, Input{Name: "t", Content: content})
	require.NoError(t, err)
	assert.Equal(t, []string{"{a", "x {{y"}, prompt.Names(tmpl.Variables))

	updated, err := svc.Update(ctx, tmpl.ID, Input{Name: "t", Content: content + " {{z}}", Variables: tmpl.Variables})
	require.NoError(t, err)
	assert.Equal(t, []string{"{a", "x {{y", "z"}, prompt.Names(updated.Variables))

	sp, err := svc.UpdateSystemPrompt(ctx, SystemPromptInput{Content: content})
	require.NoError(t, err)
	assert.Equal(t, []string{"{a", "x {{y"}, prompt.Names(sp.Variables))
}

func TestService_SetActive(t *testing.T) {
	svc := NewService(setupTestStore(t))
	ctx := context.Background()

	tmpl, err := svc.Create(ctx, Input{Name: "t", Content: "x"})
	require.NoError(t, err)

	got, err := svc.SetActive(ctx, tmpl.ID, false)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	active := true
	list, err := svc.List(ctx, ListOptions{Active: &active})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestService_RenameVariable(t *testing.T) {
	svc := NewService(setupTestStore(t))
	ctx := context.Background()

	tmpl, err := svc.Create(ctx, Input{
		Name:    "t",
		Content: "Hi {{ name }}, {{name}} again. {{other}}",
		Variables: []prompt.Variable{
			{Name: "name", Type: prompt.TypeString, Required: true},
		},
	})
	require.NoError(t, err)

	got, err := svc.RenameVariable(ctx, tmpl.ID, "name", "customer")
	require.NoError(t, err)
	assert.Equal(t, "Hi {{customer}}, {{customer}} again. {{other}}", got.Content)
	assert.Equal(t, []string{"customer", "other"}, prompt.Names(got.Variables))
	assert.True(t, got.Variables[0].Required)

	_, err = svc.RenameVariable(ctx, tmpl.ID, "customer", "other")
	assert.ErrorIs(t, err, ErrInvalidTemplate)
	_, err = svc.RenameVariable(ctx, tmpl.ID, "ghost", "x")
	assert.ErrorIs(t, err, ErrInvalidTemplate)
}

func TestService_Categories(t *testing.T) {
	svc := NewService(setupTestStore(t))
	ctx := context.Background()

	c, err := svc.CreateCategory(ctx, CategoryInput{Name: "sales"})
	require.NoError(t, err)
	_, err = svc.CreateCategory(ctx, CategoryInput{Name: "sales"})
	assert.ErrorIs(t, err, store.ErrDuplicate)
	_, err = svc.CreateCategory(ctx, CategoryInput{Name: " "})
	assert.ErrorIs(t, err, ErrInvalidTemplate)

	tmpl, err := svc.Create(ctx, Input{Name: "pitch", Category: "sales", Content: "x"})
	require.NoError(t, err)

	_, err = svc.UpdateCategory(ctx, c.ID, CategoryInput{Name: "revenue"})
	require.NoError(t, err)
	tmpl, err = svc.Get(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "revenue", tmpl.Category)

	assert.ErrorIs(t, svc.DeleteCategory(ctx, c.ID), store.ErrCategoryInUse)
	require.NoError(t, svc.Delete(ctx, tmpl.ID))
	require.NoError(t, svc.DeleteCategory(ctx, c.ID))

	list, err := svc.ListCategories(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestService_SystemPrompt(t *testing.T) {
	svc := NewService(setupTestStore(t))
	ctx := editorContext()

	sp, err := svc.GetSystemPrompt(ctx)
	require.NoError(t, err)
	assert.Empty(t, sp.Content)
	assert.Empty(t, sp.Variables)

	sp, err = svc.UpdateSystemPrompt(ctx, SystemPromptInput{Content: "You help {{company}} customers."})
	require.NoError(t, err)
	assert.Equal(t, []string{"company"}, prompt.Names(sp.Variables))
	assert.Equal(t, "user-1", sp.UpdatedBy)

	got, err := svc.GetSystemPrompt(ctx)
	require.NoError(t, err)
	assert.Equal(t, sp.Content, got.Content)
}

func TestService_CreateFromSuggestion(t *testing.T) {
	svc := NewService(setupTestStore(t))
	ctx := context.Background()

	first, err := svc.CreateFromSuggestion(ctx, "Meeting follow-up email")
	require.NoError(t, err)
	assert.Equal(t, "writing", first.Category)
	assert.Contains(t, prompt.Names(first.Variables), "notes")

	cats, err := svc.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "writing", cats[0].Name)

	second, err := svc.CreateFromSuggestion(ctx, "Meeting follow-up email")
	require.NoError(t, err)
	assert.Equal(t, first.Name+" (copy)", second.Name)

	_, err = svc.CreateFromSuggestion(ctx, "nope")
	assert.ErrorIs(t, err, library.ErrUnknownSuggestion)
}

func TestPreviewContent(t *testing.T) {
	p, err := PreviewContent("**Hi** {{name}}, from {{team}}", []prompt.Variable{
		{Name: "name", Type: prompt.TypeString, Required: true},
		{Name: "gone", Type: prompt.TypeString},
		{Name: "team", Type: prompt.TypeString, DefaultValue: prompt.StringPtr("Support")},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "**Hi** [name], from Support", p.Text)
	assert.Contains(t, p.HTML, "<strong>Hi</strong>")
	assert.Equal(t, []string{"name"}, p.Missing)
	assert.Equal(t, []string{"gone"}, p.Stale)
	assert.Empty(t, p.Errors)
}

func TestScan(t *testing.T) {
	res := Scan("{{a}} {{b}} {{a}}", []prompt.Variable{{Name: "z", Type: prompt.TypeString}})
	assert.Equal(t, []string{"a", "b"}, res.Placeholders)
	assert.Equal(t, []string{"z", "a", "b"}, prompt.Names(res.Variables))
}

type fakeCompleter struct {
	calls []provider.Request
	err   error
}

func (f *fakeCompleter) Complete(_ context.Context, req provider.Request) (*provider.Response, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return &provider.Response{
		Content: "**pong**",
		Model:   req.Model,
		Usage:   provider.Usage{TotalTokens: 7},
		Latency: time.Millisecond,
	}, nil
}

type fakeCompleters struct {
	client *fakeCompleter
}

func (f fakeCompleters) Completer(_ context.Context, id, model string) (provider.Completer, *store.Provider, string, error) {
	if id != "p1" {
		return nil, nil, "", store.ErrNotFound
	}
	if model == "" {
		model = "gpt-test"
	}
	return f.client, &store.Provider{ID: "p1", Name: "fake", Temperature: 0.2, MaxTokens: 64}, model, nil
}

type staticFormatting formatting.Settings

func (s staticFormatting) Get(context.Context) (formatting.Settings, error) {
	return formatting.Settings(s), nil
}

func TestService_Test(t *testing.T) {
	st := setupTestStore(t)
	client := &fakeCompleter{}
	cache := dedupe.New(time.Minute, 100)
	t.Cleanup(cache.Close)

	svc := NewService(st,
		WithCompleters(fakeCompleters{client: client}),
		WithFormatting(staticFormatting(formatting.Settings{Markdown: true, CitationStyle: formatting.CitationNone})),
		WithIdempotency(cache),
	)
	ctx := editorContext()

	_, err := svc.UpdateSystemPrompt(ctx, SystemPromptInput{Content: "You work for {{company}}."})
	require.NoError(t, err)

	tmpl, err := svc.Create(ctx, Input{
		Name:    "t",
		Content: "Answer {{question}}",
		Variables: []prompt.Variable{
			{Name: "question", Type: prompt.TypeString, Required: true},
		},
	})
	require.NoError(t, err)

	t.Run("missing values", func(t *testing.T) {
		_, err := svc.Test(ctx, tmpl.ID, TestRequest{ProviderID: "p1"})
		require.ErrorIs(t, err, ErrInvalidValues)
		var ve *ValuesError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, []string{"question"}, ve.Report.Missing)
		assert.Empty(t, client.calls)
	})

	t.Run("success", func(t *testing.T) {
		res, err := svc.Test(ctx, tmpl.ID, TestRequest{
			ProviderID:     "p1",
			Values:         map[string]string{"question": "ping?", "company": "Acme"},
			IdempotencyKey: "k1",
		})
		require.NoError(t, err)
		assert.Equal(t, "Answer ping?", res.Prompt)
		assert.Equal(t, "gpt-test", res.Model)
		assert.Contains(t, res.System, "You work for Acme.")
		assert.Contains(t, res.System, "Format answers in Markdown.")
		assert.Contains(t, res.HTML, "<strong>pong</strong>")
		assert.Equal(t, 7, res.Usage.TotalTokens)

		require.Len(t, client.calls, 1)
		assert.Equal(t, 64, client.calls[0].MaxTokens)
	})

	t.Run("duplicate key", func(t *testing.T) {
		_, err := svc.Test(ctx, tmpl.ID, TestRequest{
			ProviderID:     "p1",
			Values:         map[string]string{"question": "ping?"},
			IdempotencyKey: "k1",
		})
		assert.ErrorIs(t, err, ErrDuplicateRequest)
	})

	t.Run("failure releases key", func(t *testing.T) {
		client.err = errors.New("boom")
		_, err := svc.Test(ctx, tmpl.ID, TestRequest{
			ProviderID:     "p1",
			Values:         map[string]string{"question": "again"},
			IdempotencyKey: "k2",
		})
		require.Error(t, err)

		client.err = nil
		_, err = svc.Test(ctx, tmpl.ID, TestRequest{
			ProviderID:     "p1",
			Values:         map[string]string{"question": "again"},
			IdempotencyKey: "k2",
		})
		assert.NoError(t, err)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := svc.Test(ctx, tmpl.ID, TestRequest{ProviderID: "nope", Values: map[string]string{"question": "q"}})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestService_TestUnavailable(t *testing.T) {
	svc := NewService(setupTestStore(t))
	_, err := svc.Test(context.Background(), "any", TestRequest{})
	assert.ErrorIs(t, err, ErrTestUnavailable)
}
