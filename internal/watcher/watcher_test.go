package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loopscan/internal/config"
	"loopscan/internal/discovery"
	"loopscan/internal/logging"
)

type recorder struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *recorder) handle(files []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, files)
	return nil
}

func (r *recorder) snapshot() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...)
}

func TestDebouncerCollapsesBursts(t *testing.T) {
	d := newDebouncer(20*time.Millisecond, logging.Discard())
	rec := &recorder{}

	for _, path := range []string{"/src/b.cpp", "/src/a.cpp", "/src/b.cpp"} {
		d.add(FileChangeEvent{Path: path, Operation: "WRITE"}, rec.handle)
	}

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"/src/a.cpp", "/src/b.cpp"}, rec.snapshot()[0])

	d.add(FileChangeEvent{Path: "/src/c.cpp"}, rec.handle)
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"/src/c.cpp"}, rec.snapshot()[1])
}

func TestDebouncerStop(t *testing.T) {
	d := newDebouncer(20*time.Millisecond, logging.Discard())
	rec := &recorder{}

	d.add(FileChangeEvent{Path: "/src/a.cpp"}, rec.handle)
	d.stop()
	d.add(FileChangeEvent{Path: "/src/b.cpp"}, rec.handle)

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func newTestWatcher(t *testing.T, root string) *FileWatcher {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Files.ExcludeDirs = []string{"third_party"}
	disc, err := discovery.New(discovery.OptionsFromConfig(root, cfg.Files))
	require.NoError(t, err)
	fw, err := NewFileWatcher(disc, nil, 10*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { fw.Close() })
	return fw
}

func TestNewFileWatcherNeedsDiscoverer(t *testing.T) {
	_, err := NewFileWatcher(nil, nil, 0)
	assert.Error(t, err)
}

func TestIsEditorArtifact(t *testing.T) {
	for _, file := range []string{"/src/.main.cpp", "/src/main.cpp~", "/src/main.cpp.swp", "/src/x.tmp", "/src/a.cpp.orig"} {
		assert.True(t, isEditorArtifact(file), file)
	}
	assert.False(t, isEditorArtifact("/src/main.cpp"))
}

func TestWatchTree(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"src/core", "build/gen", ".git/objects", "third_party/lib", ".config"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, filepath.FromSlash(dir)), 0755))
	}

	fw := newTestWatcher(t, root)
	rec := &recorder{}
	require.NoError(t, fw.watchTree(fw.disc.Root()))

	base := fw.disc.Root()
	assert.Equal(t, []string{
		base,
		filepath.Join(base, ".config"),
		filepath.Join(base, "src"),
		filepath.Join(base, "src", "core"),
	}, fw.WatchedDirs())

	added := filepath.Join(base, "src", "extra")
	require.NoError(t, os.MkdirAll(filepath.Join(added, "deep"), 0755))
	fw.onEvent(fsnotify.Event{Name: added, Op: fsnotify.Create}, rec.handle)
	assert.Contains(t, fw.WatchedDirs(), added)
	assert.Contains(t, fw.WatchedDirs(), filepath.Join(added, "deep"))

	skipped := filepath.Join(base, "out")
	require.NoError(t, os.Mkdir(skipped, 0755))
	fw.onEvent(fsnotify.Event{Name: skipped, Op: fsnotify.Create}, rec.handle)
	assert.NotContains(t, fw.WatchedDirs(), skipped)

	fw.onEvent(fsnotify.Event{Name: added, Op: fsnotify.Remove}, rec.handle)
	assert.NotContains(t, fw.WatchedDirs(), added)
	assert.NotContains(t, fw.WatchedDirs(), filepath.Join(added, "deep"))
	assert.Empty(t, rec.snapshot())
}

func TestOnEventFiltersAndDebounces(t *testing.T) {
	root := t.TempDir()
	fw := newTestWatcher(t, root)
	rec := &recorder{}

	base := fw.disc.Root()
	source := filepath.Join(base, "main.cpp")
	fw.onEvent(fsnotify.Event{Name: source, Op: fsnotify.Write}, rec.handle)
	fw.onEvent(fsnotify.Event{Name: filepath.Join(base, "notes.md"), Op: fsnotify.Write}, rec.handle)
	fw.onEvent(fsnotify.Event{Name: filepath.Join(base, ".main.cpp"), Op: fsnotify.Write}, rec.handle)
	fw.onEvent(fsnotify.Event{Name: source, Op: fsnotify.Remove}, rec.handle)

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{source}, rec.snapshot()[0])
}
