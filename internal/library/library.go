// Package library provides the built-in template suggestions shown in the
// console's template gallery.
package library

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/2389/assistant-console/internal/prompt"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// ErrUnknownSuggestion is returned by Get for a name not in the library.
var ErrUnknownSuggestion = errors.New("unknown suggestion")

// Suggestion is a ready-made template an editor can copy into the console.
type Suggestion struct {
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description" json:"description"`
	Category    string            `yaml:"category" json:"category"`
	Content     string            `yaml:"content" json:"content"`
	Variables   []prompt.Variable `yaml:"variables,omitempty" json:"variables"`
	Tags        []string          `yaml:"tags,omitempty" json:"tags"`
}

// Load returns the built-in suggestions sorted by name. Each suggestion's
// variables are reconciled against its content.
func Load() ([]*Suggestion, error) {
	return load(builtinFS, "builtin")
}

func load(fsys fs.FS, dir string) ([]*Suggestion, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read builtin suggestions: %w", err)
	}

	suggestions := make([]*Suggestion, 0, len(entries))
	seen := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		data, err := fs.ReadFile(fsys, dir+"/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read suggestion %s: %w", entry.Name(), err)
		}
		s, err := parseSuggestion(data)
		if err != nil {
			return nil, fmt.Errorf("parse suggestion %s: %w", entry.Name(), err)
		}
		if prev, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("suggestion %q defined in both %s and %s", s.Name, prev, entry.Name())
		}
		seen[s.Name] = entry.Name()
		suggestions = append(suggestions, s)
	}

	sort.Slice(suggestions, func(i, j int) bool {
		return suggestions[i].Name < suggestions[j].Name
	})

	return suggestions, nil
}

func parseSuggestion(data []byte) (*Suggestion, error) {
	var s Suggestion
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if strings.TrimSpace(s.Name) == "" {
		return nil, errors.New("name is required")
	}
	if strings.TrimSpace(s.Content) == "" {
		return nil, errors.New("content is required")
	}

	for i := range s.Variables {
		if s.Variables[i].Type == "" {
			s.Variables[i].Type = prompt.TypeString
		}
	}
	s.Variables = prompt.Reconcile(s.Content, s.Variables)
	if errs := prompt.ValidateVariables(s.Variables); len(errs) > 0 {
		return nil, errs[0]
	}
	if s.Tags == nil {
		s.Tags = []string{}
	}
	return &s, nil
}

// Get returns the suggestion with the given name.
func Get(name string) (*Suggestion, error) {
	all, err := Load()
	if err != nil {
		return nil, err
	}
	for _, s := range all {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSuggestion, name)
}
