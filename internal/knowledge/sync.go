// ABOUTME: Directory sync: walks a DIRECTORY resource's path and ingests matching files
// ABOUTME: Globs use doublestar; files are read and decoded concurrently with errgroup

package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/2389/assistant-console/internal/store"
)

// DefaultInclude is used when a directory resource lists no include globs.
var DefaultInclude = []string{"**/*.{md,markdown,txt,text,rst,html,htm,csv,json,yaml,yml}"}

// ErrNotDirectory is returned when syncing a resource that is not a DIRECTORY.
var ErrNotDirectory = errors.New("resource is not a directory")

// SyncResult summarizes one sync.
type SyncResult struct {
	ResourceID string        `json:"resource_id"`
	Documents  int           `json:"documents"`
	Skipped    []SkippedFile `json:"skipped"`
	SyncedAt   time.Time     `json:"synced_at"`
	Duration   time.Duration `json:"duration_ns"`
}

// SkippedFile is a matching file that could not be ingested.
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

func (d *Directory) validate() error {
	d.Path = strings.TrimSpace(d.Path)
	if d.Path == "" {
		return fmt.Errorf("%w: directory path is required", ErrInvalidResource)
	}
	if !filepath.IsAbs(d.Path) {
		return fmt.Errorf("%w: directory path must be absolute", ErrInvalidResource)
	}
	d.Path = filepath.Clean(d.Path)
	if d.Include == nil {
		d.Include = []string{}
	}
	if d.Ignore == nil {
		d.Ignore = []string{}
	}
	for _, p := range append(append([]string{}, d.Include...), d.Ignore...) {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("%w: bad glob %q", ErrInvalidResource, p)
		}
	}
	return nil
}

// matcher decides which relative, slash-separated paths a sync keeps.
type matcher struct {
	include []string
	ignore  []string
}

func newMatcher(d *Directory, globalIgnore []string) matcher {
	m := matcher{include: d.Include, ignore: append(append([]string{}, globalIgnore...), d.Ignore...)}
	if len(m.include) == 0 {
		m.include = DefaultInclude
	}
	return m
}

func (m matcher) ignored(rel string) bool {
	for _, p := range m.ignore {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func (m matcher) included(rel string) bool {
	if m.ignored(rel) {
		return false
	}
	for _, p := range m.include {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// skipDir reports whether a whole directory can be pruned from the walk.
func (m matcher) skipDir(rel string) bool {
	if strings.HasPrefix(path.Base(rel), ".") {
		return true
	}
	return m.ignored(rel) || m.ignored(rel+"/")
}

// Sync re-reads a DIRECTORY resource from disk and replaces its documents.
// Files over the upload limit or not decodable as text are skipped and
// reported; a failure to walk the directory fails the sync.
func (s *Service) Sync(ctx context.Context, id string) (*SyncResult, error) {
	start := time.Now()
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Type != TypeDirectory || r.Directory == nil {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotDirectory, id, r.Type)
	}

	m := newMatcher(r.Directory, s.cfg.Ignore)
	paths, err := collect(r.Directory.Path, m)
	if err != nil {
		return nil, err
	}

	docs := make([]*store.KnowledgeDocument, len(paths))
	skipped := make([]SkippedFile, 0)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.SyncWorkers)
	for i, rel := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, reason := s.readDocument(r.Directory.Path, rel)
			if reason != "" {
				mu.Lock()
				skipped = append(skipped, SkippedFile{Path: rel, Reason: reason})
				mu.Unlock()
				return nil
			}
			doc.ResourceID = id
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("syncing %s: %w", r.Directory.Path, err)
	}

	kept := docs[:0]
	for _, d := range docs {
		if d != nil {
			kept = append(kept, d)
		}
	}
	sort.Slice(skipped, func(i, j int) bool { return skipped[i].Path < skipped[j].Path })

	syncedAt := time.Now().UTC()
	if err := s.store.ReplaceKnowledgeDocuments(ctx, id, kept, syncedAt); err != nil {
		return nil, err
	}

	res := &SyncResult{
		ResourceID: id,
		Documents:  len(kept),
		Skipped:    skipped,
		SyncedAt:   syncedAt,
		Duration:   time.Since(start),
	}
	s.logger.Info("synced knowledge directory",
		"id", id,
		"path", r.Directory.Path,
		"documents", res.Documents,
		"skipped", len(skipped),
		"duration", res.Duration,
	)
	s.record(ctx, store.AuditSyncKnowledge, id, map[string]any{"documents": res.Documents, "skipped": len(skipped)})
	return res, nil
}

// collect walks root and returns the matching files as sorted,
// slash-separated relative paths.
func collect(root string, m matcher) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidResource, root)
	}

	var paths []string
	err = fs.WalkDir(os.DirFS(root), ".", func(rel string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if m.skipDir(rel) {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && m.included(rel) {
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// readDocument loads one file. A non-empty reason means the file was skipped.
func (s *Service) readDocument(root, rel string) (*store.KnowledgeDocument, string) {
	full := filepath.Join(root, filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if err != nil {
		return nil, err.Error()
	}
	if s.cfg.MaxUploadBytes > 0 && info.Size() > s.cfg.MaxUploadBytes {
		return nil, fmt.Sprintf("larger than %d bytes", s.cfg.MaxUploadBytes)
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, err.Error()
	}
	content, enc, err := Decode(data, "")
	if err != nil {
		return nil, err.Error()
	}

	return &store.KnowledgeDocument{
		ID:         uuid.New().String(),
		Path:       rel,
		Content:    content,
		Encoding:   enc,
		Size:       info.Size(),
		ModifiedAt: info.ModTime().UTC(),
	}, ""
}
