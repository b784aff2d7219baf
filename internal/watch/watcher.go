// Package watch regenerates a network's configs when its traces change.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"illusiongen/internal/logging"
)

// ErrStopped is returned by Start once the watcher has been stopped.
var ErrStopped = errors.New("watcher stopped")

// Regenerator rebuilds everything derived from one network's traces.
type Regenerator interface {
	Regenerate(ctx context.Context, network string) error
}

// RegeneratorFunc adapts a function to Regenerator.
type RegeneratorFunc func(ctx context.Context, network string) error

// Regenerate calls f.
func (f RegeneratorFunc) Regenerate(ctx context.Context, network string) error {
	return f(ctx, network)
}

// Stats tracks watcher activity.
type Stats struct {
	Events        int
	Regenerations int
	Errors        int
	LastEventPath string
	LastEventType string
	LastEventTime time.Time
}

// Watcher watches the trace tree of every network and calls the
// Regenerator once a network's .csv files have been quiet for the debounce
// window.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	roots       map[string]string // network root dir -> network
	regen       Regenerator
	debounceMap map[string]time.Time // network -> last event
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	stopped     bool
	closeOnce   sync.Once

	stats Stats
}

// New creates a Watcher. roots maps each network's trace directory
// (<schedule_dir>/<network>_<word>_<batch>) to the network name.
func New(roots map[string]string, regen Regenerator, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	cleaned := make(map[string]string, len(roots))
	for dir, network := range roots {
		cleaned[filepath.Clean(dir)] = network
	}

	return &Watcher{
		watcher:     fw,
		roots:       cleaned,
		regen:       regen,
		debounceMap: make(map[string]time.Time),
		debounceDur: debounce,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start adds every directory under the network roots and starts the event
// loop. It does not block. A stopped Watcher cannot be restarted.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return ErrStopped
	}
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	for dir, network := range w.roots {
		if _, err := os.Stat(dir); err != nil {
			logging.Get(logging.CategoryWatch).Warn("%s: trace root %s not found, not watched", network, dir)
			continue
		}
		w.addTree(dir)
	}

	go w.run(ctx)
	return nil
}

// Stop stops the event loop, waits for it to exit and releases the
// underlying watcher. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	wasRunning := w.running
	w.running = false
	w.stopped = true
	w.mu.Unlock()

	if wasRunning {
		close(w.stopCh)
		<-w.doneCh
		logging.Watch("stopped")
	}

	w.closeOnce.Do(func() {
		if err := w.watcher.Close(); err != nil {
			logging.WatchError("error closing watcher: %v", err)
		}
	})
}

// Done is closed when the event loop exits.
func (w *Watcher) Done() <-chan struct{} {
	return w.doneCh
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.debounceDur / 5
	if tick > 100*time.Millisecond {
		tick = 100 * time.Millisecond
	}
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	debounceTicker := time.NewTicker(tick)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.WatchDebug("context cancelled")
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.WatchError("watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-debounceTicker.C:
			w.processDebounced(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			// a new config directory may already hold traces
			w.addTree(event.Name)
			w.touchTree(event.Name)
			return
		}
	}

	if !strings.HasSuffix(event.Name, ".csv") {
		return
	}

	var eventType string
	switch {
	case event.Op&fsnotify.Create != 0:
		eventType = "create"
	case event.Op&fsnotify.Write != 0:
		eventType = "modify"
	case event.Op&fsnotify.Remove != 0:
		eventType = "delete"
	case event.Op&fsnotify.Rename != 0:
		eventType = "rename"
	default:
		return
	}

	network, ok := w.networkFor(event.Name)
	if !ok {
		return
	}
	logging.WatchDebug("%s event for %s (%s)", eventType, event.Name, network)

	w.mu.Lock()
	w.stats.Events++
	w.stats.LastEventPath = event.Name
	w.stats.LastEventType = eventType
	w.stats.LastEventTime = time.Now()
	w.debounceMap[network] = time.Now()
	w.mu.Unlock()
}

// touchTree marks the network of dir dirty if dir already holds traces.
func (w *Watcher) touchTree(dir string) {
	network, ok := w.networkFor(dir)
	if !ok {
		return
	}
	found := false
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() && strings.HasSuffix(path, ".csv") {
			found = true
			return fs.SkipAll
		}
		return nil
	})
	if found {
		w.mu.Lock()
		w.debounceMap[network] = time.Now()
		w.mu.Unlock()
	}
}

func (w *Watcher) processDebounced(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var ready []string
	for network, last := range w.debounceMap {
		if now.Sub(last) >= w.debounceDur {
			ready = append(ready, network)
			delete(w.debounceMap, network)
		}
	}
	w.mu.Unlock()

	sort.Strings(ready)
	for _, network := range ready {
		if ctx.Err() != nil {
			return
		}
		logging.Watch("traces of %s changed, regenerating", network)
		err := w.regen.Regenerate(ctx, network)
		w.mu.Lock()
		w.stats.Regenerations++
		if err != nil {
			w.stats.Errors++
		}
		w.mu.Unlock()
		if err != nil {
			logging.WatchError("regenerate %s: %v", network, err)
		}
	}
}

func (w *Watcher) addTree(root string) {
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			logging.WatchError("watch %s: %v", path, err)
			return nil
		}
		logging.WatchDebug("watching %s", path)
		return nil
	})
}

func (w *Watcher) networkFor(path string) (string, bool) {
	path = filepath.Clean(path)
	for dir, network := range w.roots {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return network, true
		}
	}
	return "", false
}

// GetStats returns the current watcher statistics.
func (w *Watcher) GetStats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// WatchedDirs returns the directories being watched.
func (w *Watcher) WatchedDirs() []string {
	return w.watcher.WatchList()
}
