// ABOUTME: Coalesces bursts of filesystem events into one sync per directory
// ABOUTME: A quiet window restarts on every event for the same key

package knowledge

import (
	"sync"
	"time"
)

// debouncer batches keys until no new key has arrived for window, then
// hands the batch to onFlush. A batch reaching maxBatch flushes at once.
type debouncer struct {
	window   time.Duration
	maxBatch int
	pending  map[string]struct{}
	mu       sync.Mutex
	timer    *time.Timer
	onFlush  func([]string)
	stopped  bool
}

func newDebouncer(window time.Duration, maxBatch int, onFlush func([]string)) *debouncer {
	return &debouncer{
		window:   window,
		maxBatch: maxBatch,
		pending:  make(map[string]struct{}),
		onFlush:  onFlush,
	}
}

func (d *debouncer) Add(key string) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	d.pending[key] = struct{}{}
	if len(d.pending) >= d.maxBatch {
		d.flushLocked()
		return
	}

	d.timer = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		if d.stopped {
			d.mu.Unlock()
			return
		}
		d.flushLocked()
	})
	d.mu.Unlock()
}

// flushLocked must be called with mu held and releases it.
func (d *debouncer) flushLocked() {
	keys := make([]string, 0, len(d.pending))
	for k := range d.pending {
		keys = append(keys, k)
	}
	d.pending = make(map[string]struct{})
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	if len(keys) > 0 && d.onFlush != nil {
		d.onFlush(keys)
	}
}

// Stop flushes anything pending and ignores later keys.
func (d *debouncer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	if len(d.pending) > 0 {
		d.flushLocked()
		return
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
}
