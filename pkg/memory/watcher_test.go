package memory

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type changeRecorder struct {
	mu      sync.Mutex
	changes map[string]ChangeType
}

func newChangeRecorder() *changeRecorder {
	return &changeRecorder{changes: make(map[string]ChangeType)}
}

func (r *changeRecorder) callback(path string, change ChangeType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes[path] = change
}

func (r *changeRecorder) get(path string) (ChangeType, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.changes[path]
	return c, ok
}

func TestIsMarkdown(t *testing.T) {
	assert.True(t, isMarkdown("notes.md"))
	assert.True(t, isMarkdown("NOTES.MD"))
	assert.True(t, isMarkdown("doc.markdown"))
	assert.False(t, isMarkdown("main.go"))
	assert.False(t, isMarkdown("md"))
}

func TestNewWatcher_ForcedPolling(t *testing.T) {
	w := NewWatcher(time.Second, func(string, ChangeType) {}, zerolog.Nop(), true)
	_, ok := w.(*PollingWatcher)
	assert.True(t, ok)
}

func TestFSWatcher_StartStopIdempotent(t *testing.T) {
	fw, err := NewFSWatcher(time.Second, func(string, ChangeType) {}, zerolog.Nop())
	require.NoError(t, err)

	assert.False(t, fw.IsRunning())
	require.NoError(t, fw.Start())
	require.NoError(t, fw.Start())
	assert.True(t, fw.IsRunning())

	require.NoError(t, fw.Stop())
	require.NoError(t, fw.Stop())
	assert.False(t, fw.IsRunning())
}

func TestFSWatcher_DebouncedChanges(t *testing.T) {
	dir := t.TempDir()
	rec := newChangeRecorder()

	fw, err := NewFSWatcher(50*time.Millisecond, rec.callback, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, fw.AddPath(dir))
	require.NoError(t, fw.Start())
	defer fw.Stop()

	path := filepath.Join(dir, "note.md")
	require.NoError(t, os.WriteFile(path, []byte("first"), 0o644))

	assert.Eventually(t, func() bool {
		_, ok := rec.get(path)
		return ok
	}, 2*time.Second, 20*time.Millisecond)

	// Non-markdown files never reach the callback.
	other := filepath.Join(dir, "ignored.txt")
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))
	time.Sleep(200 * time.Millisecond)
	_, ok := rec.get(other)
	assert.False(t, ok)
}

func TestPollingWatcher_Lifecycle(t *testing.T) {
	pw := NewPollingWatcher(20*time.Millisecond, func(string, ChangeType) {}, zerolog.Nop())

	assert.False(t, pw.IsRunning())
	require.NoError(t, pw.Start())
	assert.True(t, pw.IsRunning())
	require.NoError(t, pw.Stop())
	assert.False(t, pw.IsRunning())
	require.NoError(t, pw.Stop())
}

func TestPollingWatcher_DetectsChanges(t *testing.T) {
	dir := t.TempDir()
	rec := newChangeRecorder()

	existing := filepath.Join(dir, "existing.md")
	require.NoError(t, os.WriteFile(existing, []byte("present before watch"), 0o644))

	pw := NewPollingWatcher(20*time.Millisecond, rec.callback, zerolog.Nop())
	require.NoError(t, pw.AddPath(dir))
	require.NoError(t, pw.Start())
	defer pw.Stop()

	// Created after the baseline scan.
	created := filepath.Join(dir, "created.md")
	require.NoError(t, os.WriteFile(created, []byte("new"), 0o644))
	assert.Eventually(t, func() bool {
		c, ok := rec.get(created)
		return ok && c == ChangeCreated
	}, 2*time.Second, 10*time.Millisecond)

	// Touch with a future mtime so the change is visible regardless of
	// filesystem timestamp granularity.
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(existing, future, future))
	assert.Eventually(t, func() bool {
		c, ok := rec.get(existing)
		return ok && c == ChangeModified
	}, 2*time.Second, 10*time.Millisecond)

	// Deletion.
	require.NoError(t, os.Remove(created))
	assert.Eventually(t, func() bool {
		c, _ := rec.get(created)
		return c == ChangeDeleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPollingWatcher_RemovePath(t *testing.T) {
	dir := t.TempDir()
	rec := newChangeRecorder()

	pw := NewPollingWatcher(20*time.Millisecond, rec.callback, zerolog.Nop())
	require.NoError(t, pw.AddPath(dir))
	require.NoError(t, pw.RemovePath(dir))
	require.NoError(t, pw.Start())
	defer pw.Stop()

	path := filepath.Join(dir, "unwatched.md")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	time.Sleep(100 * time.Millisecond)

	_, ok := rec.get(path)
	assert.False(t, ok)
}
