package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"loopscan/internal/discovery"
	"loopscan/internal/logging"
)

// DefaultDelay is how long the watcher waits for changes to settle.
const DefaultDelay = 500 * time.Millisecond

// FileWatcher follows the directories a scan covers and reports changed
// source files. Directory and extension rules come from the scan's
// discoverer, so a watched tree is the scanned tree.
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	disc      *discovery.Discoverer
	logger    *slog.Logger
	debouncer *debouncer

	mu   sync.Mutex
	dirs map[string]bool
}

type FileChangeEvent struct {
	Path      string
	Operation string
	Timestamp time.Time
}

// FileChangeHandler receives the changed source paths of one settled burst
// of events, sorted.
type FileChangeHandler func([]string) error

func NewFileWatcher(disc *discovery.Discoverer, logger *slog.Logger, delay time.Duration) (*FileWatcher, error) {
	if disc == nil {
		return nil, errors.New("file watcher needs a discoverer")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	logger = logging.OrDiscard(logger)
	return &FileWatcher{
		watcher:   w,
		disc:      disc,
		logger:    logger,
		debouncer: newDebouncer(delay, logger),
		dirs:      make(map[string]bool),
	}, nil
}

// Watch registers the scan root and its subdirectories and starts
// delivering changes to handler in the background.
func (fw *FileWatcher) Watch(handler FileChangeHandler) error {
	root := fw.disc.Root()
	if err := fw.watchTree(root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}
	go fw.run(handler)
	return nil
}

func (fw *FileWatcher) watchTree(top string) error {
	return filepath.WalkDir(top, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path != top && errors.Is(err, fs.ErrPermission) {
				return fs.SkipDir
			}
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		if path != top && fw.disc.SkipDir(entry.Name()) {
			return fs.SkipDir
		}

		fw.mu.Lock()
		defer fw.mu.Unlock()
		if fw.dirs[path] {
			return nil
		}
		if err := fw.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to add directory %s to watcher: %w", path, err)
		}
		fw.dirs[path] = true
		return nil
	})
}

func (fw *FileWatcher) run(handler FileChangeHandler) {
	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.onEvent(event, handler)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (fw *FileWatcher) onEvent(event fsnotify.Event, handler FileChangeHandler) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if fw.disc.SkipDir(filepath.Base(event.Name)) {
				return
			}
			if err := fw.watchTree(event.Name); err != nil {
				fw.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
			}
			return
		}
	}
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		fw.forget(event.Name)
	}
	if !fw.disc.HasSourceExtension(event.Name) || isEditorArtifact(event.Name) {
		return
	}

	fw.logger.Debug("source file changed", "path", event.Name, "op", event.Op.String())
	fw.debouncer.add(FileChangeEvent{
		Path:      event.Name,
		Operation: event.Op.String(),
		Timestamp: time.Now(),
	}, handler)
}

// forget drops a removed directory and everything below it. fsnotify stops
// delivering for it on its own.
func (fw *FileWatcher) forget(path string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	prefix := path + string(filepath.Separator)
	for dir := range fw.dirs {
		if dir == path || strings.HasPrefix(dir, prefix) {
			delete(fw.dirs, dir)
		}
	}
}

// isEditorArtifact matches swap, backup and hidden temp files that editors
// write next to sources.
func isEditorArtifact(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") {
		return true
	}
	switch filepath.Ext(name) {
	case ".swp", ".swo", ".tmp", ".orig":
		return true
	}
	return false
}

func (fw *FileWatcher) Close() error {
	fw.debouncer.stop()
	return fw.watcher.Close()
}

// WatchedDirs returns the watched directories, sorted.
func (fw *FileWatcher) WatchedDirs() []string {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	dirs := make([]string, 0, len(fw.dirs))
	for dir := range fw.dirs {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}
