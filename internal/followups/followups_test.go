// ABOUTME: Tests for follow-up suggestions
// ABOUTME: Covers ordering and rendering against template values

package followups

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/assistant-console/internal/prompt"
	"github.com/2389/assistant-console/internal/store"
)

func setupTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedTemplate(t *testing.T, st *store.SQLiteStore, id, category string) {
	t.Helper()
	now := time.Now().UTC()
	if category != "" {
		if _, err := st.GetCategoryByName(context.Background(), category); err != nil {
			require.NoError(t, st.CreateCategory(context.Background(), &store.Category{ID: "cat-" + category, Name: category, CreatedAt: now}))
		}
	}
	require.NoError(t, st.CreateTemplate(context.Background(), &store.Template{
		ID:       id,
		Name:     "tmpl " + id,
		Category: category,
		Content:  "Help with {{product}}",
		Variables: []prompt.Variable{{
			Name: "product", Type: prompt.TypeString, DefaultValue: prompt.StringPtr("our app"),
		}},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}))
}

func TestService_CreateValidates(t *testing.T) {
	svc := NewService(setupTestStore(t))
	ctx := context.Background()

	_, err := svc.Create(ctx, Input{Text: "   "})
	assert.ErrorIs(t, err, ErrInvalidFollowUp)

	_, err = svc.Create(ctx, Input{Text: "ok", TemplateID: "missing"})
	assert.ErrorIs(t, err, ErrInvalidFollowUp)

	_, err = svc.Create(ctx, Input{Text: "ok", Category: "nope"})
	assert.ErrorIs(t, err, ErrInvalidFollowUp)

	f, err := svc.Create(ctx, Input{Text: "  What else?  "})
	require.NoError(t, err)
	assert.Equal(t, "What else?", f.Text)
	assert.True(t, f.IsActive)
}

func TestService_Reorder(t *testing.T) {
	svc := NewService(setupTestStore(t))
	ctx := context.Background()

	var ids []string
	for _, text := range []string{"one", "two", "three"} {
		f, err := svc.Create(ctx, Input{Text: text})
		require.NoError(t, err)
		ids = append(ids, f.ID)
	}

	require.NoError(t, svc.Reorder(ctx, []string{ids[2], ids[0], ids[1]}))
	list, err := svc.List(ctx, store.FollowUpFilter{})
	require.NoError(t, err)
	assert.Equal(t, "three", list[0].Text)
	assert.Equal(t, "one", list[1].Text)

	assert.ErrorIs(t, svc.Reorder(ctx, []string{ids[0], ids[0]}), ErrInvalidFollowUp)
}

func TestService_ForTemplate(t *testing.T) {
	st := setupTestStore(t)
	svc := NewService(st)
	ctx := context.Background()

	seedTemplate(t, st, "t1", "support")
	seedTemplate(t, st, "t2", "support")
	seedTemplate(t, st, "t3", "sales")

	off := false
	for _, in := range []Input{
		{Text: "Global about {{product}}"},
		{Text: "Support tip for {{customer}}", Category: "support"},
		{Text: "Sales only", Category: "sales"},
		{Text: "Tied to t1: {{product}}", TemplateID: "t1"},
		{Text: "Tied to t2", TemplateID: "t2"},
		{Text: "Disabled", IsActive: &off},
	} {
		_, err := svc.Create(ctx, in)
		require.NoError(t, err)
	}

	got, err := svc.ForTemplate(ctx, "t1", map[string]string{"product": "Widget"})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "Tied to t1: Widget", got[0].Text)
	assert.Equal(t, "Support tip for [customer]", got[1].Text)
	assert.Equal(t, []string{"customer"}, got[1].Missing)
	assert.Equal(t, "Global about Widget", got[2].Text)
	assert.Empty(t, got[2].Missing)

	// template default fills in when no value is given
	got, err = svc.ForTemplate(ctx, "t3", nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Sales only", got[0].Text)
	assert.Equal(t, "Global about our app", got[1].Text)

	_, err = svc.ForTemplate(ctx, "missing", nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestService_UpdateDelete(t *testing.T) {
	svc := NewService(setupTestStore(t))
	ctx := context.Background()

	f, err := svc.Create(ctx, Input{Text: "before"})
	require.NoError(t, err)

	off := false
	updated, err := svc.Update(ctx, f.ID, Input{Text: "after", IsActive: &off})
	require.NoError(t, err)
	assert.Equal(t, "after", updated.Text)
	assert.False(t, updated.IsActive)

	require.NoError(t, svc.Delete(ctx, f.ID))
	_, err = svc.Get(ctx, f.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, f.ID), store.ErrNotFound)
}
