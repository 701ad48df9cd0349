// ABOUTME: Filesystem watcher that re-syncs DIRECTORY resources when their files change
// ABOUTME: fsnotify events are mapped to resources and debounced before each sync

package knowledge

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const maxPendingSyncs = 64

// Syncer re-reads one directory resource. *Service implements it.
type Syncer interface {
	Sync(ctx context.Context, id string) (*SyncResult, error)
}

// Watcher watches the roots of directory resources and calls Sync on the
// owning resource after changes settle.
type Watcher struct {
	fs        *fsnotify.Watcher
	fsMu      sync.Mutex
	syncer    Syncer
	debouncer *debouncer
	logger    *slog.Logger

	mu    sync.RWMutex
	roots map[string]string // resource ID -> root
	ctx   context.Context
}

// NewWatcher creates a watcher that debounces changes for window.
func NewWatcher(syncer Syncer, window time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fs:     fsw,
		syncer: syncer,
		roots:  make(map[string]string),
		ctx:    context.Background(),
		logger: slog.Default().With("component", "knowledge-watcher"),
	}
	w.debouncer = newDebouncer(window, maxPendingSyncs, w.flush)
	return w, nil
}

// Track starts watching root, and every directory under it, for resource id.
// Tracking an id again moves it to the new root.
func (w *Watcher) Track(id, root string) error {
	root = filepath.Clean(root)

	w.mu.Lock()
	old, had := w.roots[id]
	w.roots[id] = root
	w.mu.Unlock()

	if had && old != root {
		w.removeTree(old)
	}
	return w.addTree(root)
}

// Untrack stops watching the root of resource id.
func (w *Watcher) Untrack(id string) {
	w.mu.Lock()
	root, ok := w.roots[id]
	delete(w.roots, id)
	w.mu.Unlock()

	if ok {
		w.removeTree(root)
	}
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		w.fsMu.Lock()
		err = w.fs.Add(p)
		w.fsMu.Unlock()
		if err != nil {
			w.logger.Debug("cannot watch directory", "path", p, "error", err)
		}
		return nil
	})
}

func (w *Watcher) removeTree(root string) {
	w.fsMu.Lock()
	defer w.fsMu.Unlock()
	for _, p := range w.fs.WatchList() {
		if p == root || strings.HasPrefix(p, root+string(filepath.Separator)) {
			_ = w.fs.Remove(p)
		}
	}
}

// owners returns the resources whose root contains p.
func (w *Watcher) owners(p string) []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var ids []string
	for id, root := range w.roots {
		if p == root || strings.HasPrefix(p, root+string(filepath.Separator)) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Run handles events until ctx is done, then stops the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()

	w.logger.Info("watching knowledge directories")
	defer w.close()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(event)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.resyncAll()
				continue
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.addTree(event.Name)
		}
	}

	w.logger.Debug("file event", "path", event.Name, "op", event.Op.String())
	for _, id := range w.owners(event.Name) {
		w.debouncer.Add(id)
	}
}

func (w *Watcher) resyncAll() {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for id := range w.roots {
		w.debouncer.Add(id)
	}
}

func (w *Watcher) flush(ids []string) {
	w.mu.RLock()
	ctx := w.ctx
	w.mu.RUnlock()

	sort.Strings(ids)
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		if _, err := w.syncer.Sync(ctx, id); err != nil {
			w.logger.Warn("re-sync failed", "id", id, "error", err)
		}
	}
}

func (w *Watcher) close() {
	w.debouncer.Stop()
	w.fsMu.Lock()
	defer w.fsMu.Unlock()
	if err := w.fs.Close(); err != nil {
		w.logger.Warn("closing watcher", "error", err)
	}
}

// TrackAll registers every directory resource the service knows about.
func TrackAll(ctx context.Context, svc *Service, w *Watcher) error {
	dirs, err := svc.List(ctx, TypeDirectory)
	if err != nil {
		return err
	}
	for _, r := range dirs {
		if err := w.Track(r.ID, r.Directory.Path); err != nil {
			svc.logger.Warn("cannot watch directory", "id", r.ID, "path", r.Directory.Path, "error", err)
		}
	}
	return nil
}
