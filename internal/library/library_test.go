package library

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/assistant-console/internal/prompt"
)

func TestLoad_Builtin(t *testing.T) {
	suggestions, err := Load()
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)

	for i := 1; i < len(suggestions); i++ {
		assert.Less(t, suggestions[i-1].Name, suggestions[i].Name, "sorted by name")
	}

	for _, s := range suggestions {
		// every placeholder has a registry entry
		for _, name := range prompt.Scan(s.Content) {
			assert.Contains(t, prompt.Names(s.Variables), name, s.Name)
		}
		assert.Empty(t, prompt.ValidateVariables(s.Variables), s.Name)
	}
}

func TestLoad_ReconcilesUndeclaredPlaceholders(t *testing.T) {
	suggestions, err := Load()
	require.NoError(t, err)

	var followup *Suggestion
	for _, s := range suggestions {
		if s.Name == "Meeting follow-up email" {
			followup = s
		}
	}
	require.NotNil(t, followup)

	// notes is used in content but not declared in the YAML
	last := followup.Variables[len(followup.Variables)-1]
	assert.Equal(t, "notes", last.Name)
	assert.Equal(t, prompt.TypeString, last.Type)
	assert.True(t, last.Required)
}

func TestGet(t *testing.T) {
	s, err := Get("Code reviewer")
	require.NoError(t, err)
	assert.Equal(t, "engineering", s.Category)

	_, err = Get("nope")
	assert.ErrorIs(t, err, ErrUnknownSuggestion)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name  string
		files fstest.MapFS
	}{
		{"missing name", fstest.MapFS{"b/a.yaml": {Data: []byte("content: hi")}}},
		{"missing content", fstest.MapFS{"b/a.yaml": {Data: []byte("name: a")}}},
		{"bad yaml", fstest.MapFS{"b/a.yaml": {Data: []byte("name: [")}}},
		{"bad type", fstest.MapFS{"b/a.yaml": {Data: []byte("name: a\ncontent: '{{x}}'\nvariables:\n  - name: x\n    type: blob\n")}}},
		{"duplicate", fstest.MapFS{
			"b/a.yaml": {Data: []byte("name: a\ncontent: hi")},
			"b/b.yaml": {Data: []byte("name: a\ncontent: hi")},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(tt.files, "b")
			assert.Error(t, err)
		})
	}
}
