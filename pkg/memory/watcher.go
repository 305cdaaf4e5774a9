package memory

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ChangeType classifies a file change delivered to the watch callback.
type ChangeType string

const (
	ChangeCreated  ChangeType = "created"
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
)

// ChangeCallback receives debounced file changes.
type ChangeCallback func(path string, change ChangeType)

// Watcher observes markdown files under registered paths and reports
// debounced changes. Implementations must tolerate Stop without Start and
// repeated Stop calls.
type Watcher interface {
	AddPath(path string) error
	RemovePath(path string) error
	Start() error
	Stop() error
	IsRunning() bool
}

// NewWatcher builds the requested watcher: native fsnotify by default,
// falling back to mtime polling when forced or when the platform watcher
// cannot be created.
func NewWatcher(debounce time.Duration, callback ChangeCallback, logger zerolog.Logger, usePolling bool) Watcher {
	if !usePolling {
		fw, err := NewFSWatcher(debounce, callback, logger)
		if err == nil {
			return fw
		}
		logger.Warn().Err(err).Msg("Native file watcher unavailable, using polling")
	}
	return NewPollingWatcher(2*time.Second, callback, logger)
}

// isMarkdown reports whether the path names a markdown file.
func isMarkdown(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".md" || ext == ".markdown"
}

// FSWatcher is the fsnotify-backed watcher. Changes within the debounce
// window coalesce: a shared timer resets on every event and the pending set
// is flushed in one callback burst when it fires.
type FSWatcher struct {
	watcher  *fsnotify.Watcher
	callback ChangeCallback
	logger   zerolog.Logger
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]ChangeType
	timer   *time.Timer
	running bool
	stopCh  chan struct{}
}

// NewFSWatcher creates an fsnotify watcher with the given debounce window.
func NewFSWatcher(debounce time.Duration, callback ChangeCallback, logger zerolog.Logger) (*FSWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = time.Second
	}

	return &FSWatcher{
		watcher:  watcher,
		callback: callback,
		logger:   logger.With().Str("component", "memory-watcher").Logger(),
		debounce: debounce,
		pending:  make(map[string]ChangeType),
	}, nil
}

// AddPath registers a file or directory with the watcher.
func (fw *FSWatcher) AddPath(path string) error {
	return fw.watcher.Add(path)
}

// RemovePath deregisters a path. Unknown paths are not an error.
func (fw *FSWatcher) RemovePath(path string) error {
	if err := fw.watcher.Remove(path); err != nil {
		fw.logger.Debug().Err(err).Str("path", path).Msg("Remove from watcher failed")
	}
	return nil
}

// Start begins delivering events. Idempotent.
func (fw *FSWatcher) Start() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.running {
		return nil
	}
	fw.running = true
	fw.stopCh = make(chan struct{})
	go fw.run(fw.stopCh)
	return nil
}

// Stop halts delivery and closes the underlying watcher.
func (fw *FSWatcher) Stop() error {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return nil
	}
	fw.running = false
	close(fw.stopCh)
	if fw.timer != nil {
		fw.timer.Stop()
		fw.timer = nil
	}
	fw.pending = make(map[string]ChangeType)
	fw.mu.Unlock()

	return fw.watcher.Close()
}

// IsRunning reports whether the watcher is delivering events.
func (fw *FSWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.running
}

func (fw *FSWatcher) run(stopCh chan struct{}) {
	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error().Err(err).Msg("File watcher error")

		case <-stopCh:
			return
		}
	}
}

func (fw *FSWatcher) handleEvent(event fsnotify.Event) {
	if !isMarkdown(event.Name) {
		return
	}

	var change ChangeType
	switch {
	case event.Has(fsnotify.Create):
		change = ChangeCreated
	case event.Has(fsnotify.Write):
		change = ChangeModified
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// Rename delivers a fresh create for the new name.
		change = ChangeDeleted
	default:
		return
	}

	fw.logger.Debug().
		Str("file", filepath.Base(event.Name)).
		Str("change", string(change)).
		Msg("File change detected")

	fw.mu.Lock()
	defer fw.mu.Unlock()
	if !fw.running {
		return
	}

	// A delete after a create/modify within the window wins; everything
	// else keeps the latest classification.
	fw.pending[event.Name] = change

	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.timer = time.AfterFunc(fw.debounce, fw.flush)
}

// flush delivers every pending change in one burst.
func (fw *FSWatcher) flush() {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return
	}
	batch := fw.pending
	fw.pending = make(map[string]ChangeType)
	fw.timer = nil
	fw.mu.Unlock()

	for path, change := range batch {
		fw.callback(path, change)
	}
}

// PollingWatcher is the fallback watcher for platforms where fsnotify
// cannot run. It stats registered paths on an interval and compares mtimes.
type PollingWatcher struct {
	callback ChangeCallback
	logger   zerolog.Logger
	interval time.Duration

	mu      sync.Mutex
	paths   map[string]bool
	mtimes  map[string]time.Time
	running bool
	stopCh  chan struct{}
}

// NewPollingWatcher creates a watcher that polls on the given interval.
func NewPollingWatcher(interval time.Duration, callback ChangeCallback, logger zerolog.Logger) *PollingWatcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &PollingWatcher{
		callback: callback,
		logger:   logger.With().Str("component", "memory-watcher-poll").Logger(),
		interval: interval,
		paths:    make(map[string]bool),
		mtimes:   make(map[string]time.Time),
	}
}

// AddPath registers a file or directory to poll.
func (pw *PollingWatcher) AddPath(path string) error {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	pw.paths[path] = true
	for file, mtime := range scanMarkdown(path) {
		pw.mtimes[file] = mtime
	}
	return nil
}

// RemovePath deregisters a path and forgets its files.
func (pw *PollingWatcher) RemovePath(path string) error {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	delete(pw.paths, path)
	for file := range pw.mtimes {
		if file == path || strings.HasPrefix(file, path+string(filepath.Separator)) {
			delete(pw.mtimes, file)
		}
	}
	return nil
}

// Start begins the polling loop. Idempotent.
func (pw *PollingWatcher) Start() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	if pw.running {
		return nil
	}
	pw.running = true
	pw.stopCh = make(chan struct{})
	go pw.loop(pw.stopCh)
	return nil
}

// Stop halts the polling loop.
func (pw *PollingWatcher) Stop() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	if !pw.running {
		return nil
	}
	pw.running = false
	close(pw.stopCh)
	return nil
}

// IsRunning reports whether the polling loop is active.
func (pw *PollingWatcher) IsRunning() bool {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	return pw.running
}

func (pw *PollingWatcher) loop(stopCh chan struct{}) {
	ticker := time.NewTicker(pw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pw.poll()
		case <-stopCh:
			return
		}
	}
}

// poll diffs the current markdown mtimes against the last scan.
func (pw *PollingWatcher) poll() {
	pw.mu.Lock()
	paths := make([]string, 0, len(pw.paths))
	for p := range pw.paths {
		paths = append(paths, p)
	}
	pw.mu.Unlock()

	current := make(map[string]time.Time)
	for _, p := range paths {
		for file, mtime := range scanMarkdown(p) {
			current[file] = mtime
		}
	}

	type event struct {
		path   string
		change ChangeType
	}
	var events []event

	pw.mu.Lock()
	for file, mtime := range current {
		prev, known := pw.mtimes[file]
		switch {
		case !known:
			events = append(events, event{file, ChangeCreated})
		case mtime.After(prev):
			events = append(events, event{file, ChangeModified})
		}
	}
	for file := range pw.mtimes {
		if _, still := current[file]; !still {
			events = append(events, event{file, ChangeDeleted})
		}
	}
	pw.mtimes = current
	running := pw.running
	pw.mu.Unlock()

	if !running {
		return
	}
	for _, ev := range events {
		pw.logger.Debug().
			Str("file", filepath.Base(ev.path)).
			Str("change", string(ev.change)).
			Msg("Poll detected change")
		pw.callback(ev.path, ev.change)
	}
}

// scanMarkdown returns mtimes for the markdown files at or under path.
func scanMarkdown(path string) map[string]time.Time {
	result := make(map[string]time.Time)

	info, err := os.Stat(path)
	if err != nil {
		return result
	}
	if !info.IsDir() {
		if isMarkdown(path) {
			result[path] = info.ModTime()
		}
		return result
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return result
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		full := filepath.Join(path, entry.Name())
		if !isMarkdown(full) {
			continue
		}
		if fi, err := entry.Info(); err == nil {
			result[full] = fi.ModTime()
		}
	}
	return result
}
