// ABOUTME: Knowledge service: resource CRUD, file uploads and ranked search
// ABOUTME: Directory resources are synced from disk by sync.go and watched by watcher.go

package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/assistant-console/internal/auth"
	"github.com/2389/assistant-console/internal/config"
	"github.com/2389/assistant-console/internal/search"
	"github.com/2389/assistant-console/internal/store"
)

// ErrTooLarge is returned for uploads and files over the size limit.
var ErrTooLarge = errors.New("file exceeds upload limit")

// Store is the persistence the service needs.
type Store interface {
	store.KnowledgeStore
	store.AuditStore
}

// Tracker is told when directory resources appear or go away.
// *Watcher implements it.
type Tracker interface {
	Track(id, root string) error
	Untrack(id string)
}

// UploadInput describes a file upload.
type UploadInput struct {
	Title    string // defaults to the filename
	Filename string
	Charset  string // optional declared charset
	Body     io.Reader
}

// SearchResult is one ranked match. Path is set for documents inside a
// directory resource.
type SearchResult struct {
	ResourceID string       `json:"resource_id"`
	Type       ResourceType `json:"type"`
	Title      string       `json:"title"`
	Path       string       `json:"path,omitempty"`
	Score      int          `json:"score"`
	Snippet    string       `json:"snippet"`
}

// Service manages knowledge resources.
type Service struct {
	store   Store
	cfg     config.KnowledgeConfig
	tracker Tracker
	logger  *slog.Logger
}

// NewService creates a knowledge service.
func NewService(s Store, cfg config.KnowledgeConfig) *Service {
	if cfg.SyncWorkers < 1 {
		cfg.SyncWorkers = 1
	}
	return &Service{
		store:  s,
		cfg:    cfg,
		logger: slog.Default().With("component", "knowledge"),
	}
}

// SetTracker registers a watcher for directory resources.
func (s *Service) SetTracker(t Tracker) {
	s.tracker = t
}

// Create validates and stores a resource. FILE_UPLOAD resources are
// created through Upload so their content is decoded.
func (s *Service) Create(ctx context.Context, r *Resource) (*Resource, error) {
	if r.Type == TypeFileUpload && r.File != nil {
		r.File.Size = int64(len(r.File.Content))
		if r.File.Encoding == "" {
			r.File.Encoding = "utf-8"
		}
		if s.cfg.MaxUploadBytes > 0 && r.File.Size > s.cfg.MaxUploadBytes {
			return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, r.File.Size, s.cfg.MaxUploadBytes)
		}
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	r.ID = uuid.New().String()
	r.LastSyncedAt = nil
	r.CreatedAt = now
	r.UpdatedAt = now

	rec, err := r.toRecord()
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateKnowledgeResource(ctx, rec); err != nil {
		return nil, err
	}

	s.record(ctx, store.AuditCreateKnowledge, r.ID, map[string]any{"type": r.Type, "title": r.Title})
	s.track(r)
	return r, nil
}

// Get returns a resource by ID.
func (s *Service) Get(ctx context.Context, id string) (*Resource, error) {
	rec, err := s.store.GetKnowledgeResource(ctx, id)
	if err != nil {
		return nil, err
	}
	return fromRecord(rec)
}

// List returns resources, optionally of one type, newest first.
func (s *Service) List(ctx context.Context, t ResourceType) ([]*Resource, error) {
	if t != "" && !t.IsValid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidResource, t)
	}
	recs, err := s.store.ListKnowledgeResources(ctx, string(t))
	if err != nil {
		return nil, err
	}

	out := make([]*Resource, 0, len(recs))
	for _, rec := range recs {
		r, err := fromRecord(rec)
		if err != nil {
			s.logger.Warn("skipping unreadable resource", "id", rec.ID, "error", err)
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Update replaces a resource's title and variant. The type cannot change.
func (s *Service) Update(ctx context.Context, id string, in *Resource) (*Resource, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Type != "" && in.Type != cur.Type {
		return nil, fmt.Errorf("%w: type cannot change from %s to %s", ErrInvalidResource, cur.Type, in.Type)
	}

	next := *in
	next.ID = cur.ID
	next.Type = cur.Type
	next.CreatedAt = cur.CreatedAt
	next.LastSyncedAt = cur.LastSyncedAt
	next.UpdatedAt = time.Now().UTC()
	if next.Type == TypeFileUpload && next.File != nil {
		next.File.Size = int64(len(next.File.Content))
		if next.File.Encoding == "" {
			next.File.Encoding = cur.File.Encoding
		}
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}

	rec, err := next.toRecord()
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateKnowledgeResource(ctx, rec); err != nil {
		return nil, err
	}

	s.record(ctx, store.AuditUpdateKnowledge, id, map[string]any{"title": next.Title})
	s.track(&next)
	return &next, nil
}

// Delete removes a resource and its ingested documents.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteKnowledgeResource(ctx, id); err != nil {
		return err
	}
	if s.tracker != nil {
		s.tracker.Untrack(id)
	}
	s.record(ctx, store.AuditDeleteKnowledge, id, nil)
	return nil
}

// Upload reads a file, decodes it to UTF-8 and stores it as a FILE_UPLOAD
// resource. Files over knowledge.max_upload_bytes are rejected.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*Resource, error) {
	filename := filepath.Base(strings.TrimSpace(in.Filename))
	if filename == "." || filename == string(filepath.Separator) || filename == "" {
		return nil, fmt.Errorf("%w: filename is required", ErrInvalidResource)
	}

	data, err := readLimited(in.Body, s.cfg.MaxUploadBytes)
	if err != nil {
		return nil, err
	}

	content, enc, err := Decode(data, in.Charset)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidResource, filename, err)
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = filename
	}

	r := &Resource{
		Type:  TypeFileUpload,
		Title: title,
		File: &FileUpload{
			Filename: filename,
			Content:  content,
			Encoding: enc,
		},
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	r.ID = uuid.New().String()
	r.File.Size = int64(len(data))
	r.CreatedAt = now
	r.UpdatedAt = now

	rec, err := r.toRecord()
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateKnowledgeResource(ctx, rec); err != nil {
		return nil, err
	}

	s.logger.Info("uploaded knowledge file", "id", r.ID, "filename", filename, "bytes", len(data), "encoding", enc)
	s.record(ctx, store.AuditCreateKnowledge, r.ID, map[string]any{"type": r.Type, "filename": filename})
	return r, nil
}

// readLimited reads all of r, failing with ErrTooLarge past limit bytes.
// A limit of zero or less means no limit.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: empty upload", ErrInvalidResource)
	}
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, limit)
	}
	return data, nil
}

// Search ranks resources and synced documents against query.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	resources, err := s.List(ctx, "")
	if err != nil {
		return nil, err
	}

	type origin struct {
		resource *Resource
		path     string
	}
	var docs []search.Document
	origins := make(map[string]origin)

	for _, r := range resources {
		if r.Type != TypeDirectory {
			docs = append(docs, search.Document{ID: r.ID, Title: r.Title, Body: r.Text()})
			origins[r.ID] = origin{resource: r}
			continue
		}

		files, err := s.store.ListKnowledgeDocuments(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		for _, d := range files {
			key := r.ID + "/" + d.Path
			docs = append(docs, search.Document{ID: key, Title: r.Title + " / " + d.Path, Body: d.Content})
			origins[key] = origin{resource: r, path: d.Path}
		}
	}

	hits := search.Search(query, docs, limit)
	out := make([]SearchResult, len(hits))
	for i, h := range hits {
		o := origins[h.ID]
		out[i] = SearchResult{
			ResourceID: o.resource.ID,
			Type:       o.resource.Type,
			Title:      o.resource.Title,
			Path:       o.path,
			Score:      h.Score,
			Snippet:    h.Snippet,
		}
	}
	return out, nil
}

// Documents returns the files synced for a directory resource.
func (s *Service) Documents(ctx context.Context, id string) ([]*store.KnowledgeDocument, error) {
	if _, err := s.store.GetKnowledgeResource(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListKnowledgeDocuments(ctx, id)
}

func (s *Service) track(r *Resource) {
	if s.tracker == nil || r.Directory == nil {
		return
	}
	if err := s.tracker.Track(r.ID, r.Directory.Path); err != nil {
		s.logger.Warn("cannot watch directory", "id", r.ID, "path", r.Directory.Path, "error", err)
	}
}

func (s *Service) record(ctx context.Context, action store.AuditAction, id string, detail map[string]any) {
	store.Record(ctx, s.store, s.logger, store.AuditEntry{
		ActorID:    auth.ActorID(ctx),
		Action:     action,
		TargetType: "knowledge",
		TargetID:   id,
		Detail:     detail,
	})
}
