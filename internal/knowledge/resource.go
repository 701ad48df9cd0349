// ABOUTME: Knowledge resource model: a tagged union over article, FAQ, upload and directory
// ABOUTME: Converts between the typed form and the store's JSON payload column

// Package knowledge manages the assistant's knowledge base: hand-written
// articles and FAQs, uploaded files, and directories synced from disk.
package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/2389/assistant-console/internal/store"
)

// ResourceType discriminates the Resource union.
type ResourceType string

const (
	TypeArticle    ResourceType = "ARTICLE"
	TypeFAQ        ResourceType = "FAQ"
	TypeFileUpload ResourceType = "FILE_UPLOAD"
	TypeDirectory  ResourceType = "DIRECTORY"
)

// MaxTitleLength caps resource titles, in runes.
const MaxTitleLength = 200

// ErrInvalidResource wraps validation failures.
var ErrInvalidResource = errors.New("invalid knowledge resource")

// IsValid reports whether t is a known resource type.
func (t ResourceType) IsValid() bool {
	switch t {
	case TypeArticle, TypeFAQ, TypeFileUpload, TypeDirectory:
		return true
	}
	return false
}

// Article is free-form reference text.
type Article struct {
	Body string `json:"body"`
}

// FAQ is one question and its answer.
type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// FileUpload is an uploaded file decoded to UTF-8.
type FileUpload struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
	Size     int64  `json:"size"`     // bytes as uploaded
	Encoding string `json:"encoding"` // detected source encoding
}

// Directory is a folder on the server whose matching files are ingested.
type Directory struct {
	Path    string   `json:"path"`
	Include []string `json:"include"`
	Ignore  []string `json:"ignore"`
}

// Resource is a knowledge-base entry. Exactly one of the variant fields is
// set, the one matching Type.
type Resource struct {
	ID           string       `json:"id"`
	Type         ResourceType `json:"type"`
	Title        string       `json:"title"`
	Article      *Article     `json:"article,omitempty"`
	FAQ          *FAQ         `json:"faq,omitempty"`
	File         *FileUpload  `json:"file,omitempty"`
	Directory    *Directory   `json:"directory,omitempty"`
	LastSyncedAt *time.Time   `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Validate checks the title and that the variant matches the type.
func (r *Resource) Validate() error {
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidResource)
	}
	if utf8.RuneCountInString(r.Title) > MaxTitleLength {
		return fmt.Errorf("%w: title must be at most %d characters", ErrInvalidResource, MaxTitleLength)
	}
	if !r.Type.IsValid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidResource, r.Type)
	}

	set := 0
	for _, present := range []bool{r.Article != nil, r.FAQ != nil, r.File != nil, r.Directory != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: exactly one of article, faq, file, directory must be set", ErrInvalidResource)
	}

	switch r.Type {
	case TypeArticle:
		if r.Article == nil {
			return fmt.Errorf("%w: ARTICLE needs an article body", ErrInvalidResource)
		}
		if strings.TrimSpace(r.Article.Body) == "" {
			return fmt.Errorf("%w: article body is required", ErrInvalidResource)
		}
	case TypeFAQ:
		if r.FAQ == nil {
			return fmt.Errorf("%w: FAQ needs a question and answer", ErrInvalidResource)
		}
		if strings.TrimSpace(r.FAQ.Question) == "" || strings.TrimSpace(r.FAQ.Answer) == "" {
			return fmt.Errorf("%w: question and answer are required", ErrInvalidResource)
		}
	case TypeFileUpload:
		if r.File == nil {
			return fmt.Errorf("%w: FILE_UPLOAD needs a file", ErrInvalidResource)
		}
		if strings.TrimSpace(r.File.Filename) == "" {
			return fmt.Errorf("%w: filename is required", ErrInvalidResource)
		}
	case TypeDirectory:
		if r.Directory == nil {
			return fmt.Errorf("%w: DIRECTORY needs a path", ErrInvalidResource)
		}
		return r.Directory.validate()
	}
	return nil
}

// Text returns the searchable body of the resource. Directory resources
// return an empty string; their documents are searched separately.
func (r *Resource) Text() string {
	switch {
	case r.Article != nil:
		return r.Article.Body
	case r.FAQ != nil:
		return r.FAQ.Question + "\n" + r.FAQ.Answer
	case r.File != nil:
		return r.File.Content
	}
	return ""
}

func (r *Resource) payload() any {
	switch r.Type {
	case TypeArticle:
		return r.Article
	case TypeFAQ:
		return r.FAQ
	case TypeFileUpload:
		return r.File
	default:
		return r.Directory
	}
}

func (r *Resource) toRecord() (*store.KnowledgeResource, error) {
	raw, err := json.Marshal(r.payload())
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", r.Type, err)
	}
	return &store.KnowledgeResource{
		ID:           r.ID,
		Type:         string(r.Type),
		Title:        r.Title,
		Payload:      raw,
		LastSyncedAt: r.LastSyncedAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}, nil
}

func fromRecord(rec *store.KnowledgeResource) (*Resource, error) {
	r := &Resource{
		ID:           rec.ID,
		Type:         ResourceType(rec.Type),
		Title:        rec.Title,
		LastSyncedAt: rec.LastSyncedAt,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}

	var target any
	switch r.Type {
	case TypeArticle:
		r.Article = &Article{}
		target = r.Article
	case TypeFAQ:
		r.FAQ = &FAQ{}
		target = r.FAQ
	case TypeFileUpload:
		r.File = &FileUpload{}
		target = r.File
	case TypeDirectory:
		r.Directory = &Directory{}
		target = r.Directory
	default:
		return nil, fmt.Errorf("resource %s has unknown type %q", rec.ID, rec.Type)
	}

	if len(rec.Payload) > 0 {
		if err := json.Unmarshal(rec.Payload, target); err != nil {
			return nil, fmt.Errorf("decoding %s payload for %s: %w", r.Type, rec.ID, err)
		}
	}
	return r, nil
}
