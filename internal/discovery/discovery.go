// Package discovery finds the C and C++ source files of a scan and fixes
// their processing order.
package discovery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"loopscan/internal/config"
)

var (
	// ErrRootPathNotExist indicates the root path does not exist.
	ErrRootPathNotExist = errors.New("root path does not exist")

	// ErrRootPathNotDir indicates the root path is not a directory.
	ErrRootPathNotDir = errors.New("root path is not a directory")

	// ErrInvalidPattern indicates a glob pattern could not be compiled.
	ErrInvalidPattern = errors.New("invalid glob pattern")
)

// defaultExcludedDirs are build output, VCS and IDE directories that never
// hold sources worth scanning.
var defaultExcludedDirs = map[string]struct{}{
	".git":                {},
	".svn":                {},
	".hg":                 {},
	"build":               {},
	"Build":               {},
	"cmake-build-debug":   {},
	"cmake-build-release": {},
	"CMakeFiles":          {},
	"node_modules":        {},
	"__pycache__":         {},
	".vscode":             {},
	".idea":               {},
	".vs":                 {},
	"out":                 {},
	"bin":                 {},
	"obj":                 {},
	"Debug":               {},
	"Release":             {},
	"x64":                 {},
	"x86":                 {},
}

// hiddenAllowed are hidden directories that are still descended into.
var hiddenAllowed = map[string]struct{}{
	".config": {},
	".src":    {},
}

// File is one discovered source file.
type File struct {
	Path    string
	Size    int64
	ModTime time.Time
}

type Options struct {
	Root           string
	Extensions     []string
	Include        []string
	Exclude        []string
	ExcludeDirs    []string
	MaxFileSize    int64 // bytes, 0 for no limit
	FollowSymlinks bool
}

// OptionsFromConfig builds discovery options for root from the files
// section of the configuration.
func OptionsFromConfig(root string, cfg config.FilesConfig) Options {
	return Options{
		Root:           root,
		Extensions:     cfg.Extensions,
		Include:        cfg.Include,
		Exclude:        cfg.Exclude,
		ExcludeDirs:    cfg.ExcludeDirs,
		MaxFileSize:    int64(cfg.MaxFileSize) * 1024,
		FollowSymlinks: cfg.FollowSymlinks,
	}
}

type Discoverer struct {
	opts            Options
	root            string
	extensions      map[string]struct{}
	excludeDirs     map[string]struct{}
	includeMatchers []glob.Glob
	excludeMatchers []glob.Glob
}

// New validates the root and compiles the patterns.
func New(opts Options) (*Discoverer, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRootPathNotExist, opts.Root)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRootPathNotExist, root)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootPathNotDir, root)
	}

	d := &Discoverer{
		opts:        opts,
		root:        root,
		extensions:  make(map[string]struct{}),
		excludeDirs: make(map[string]struct{}),
	}
	for _, ext := range opts.Extensions {
		d.extensions[strings.ToLower(ext)] = struct{}{}
	}
	for _, dir := range opts.ExcludeDirs {
		d.excludeDirs[dir] = struct{}{}
	}
	if d.includeMatchers, err = compileGlobs(opts.Include); err != nil {
		return nil, err
	}
	if d.excludeMatchers, err = compileGlobs(opts.Exclude); err != nil {
		return nil, err
	}
	return d, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	matchers := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		matcher, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidPattern, pattern, err)
		}
		matchers = append(matchers, matcher)
	}
	return matchers, nil
}

// Root returns the absolute scan root.
func (d *Discoverer) Root() string {
	return d.root
}

// Discover walks the root and returns matching files sorted by absolute
// path. The order is the scan's processing order.
func (d *Discoverer) Discover(ctx context.Context) ([]File, error) {
	var files []File
	visited := map[string]bool{d.root: true}

	var walk func(dir, virtual string) error
	walk = func(dir, virtual string) error {
		return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				if os.IsPermission(err) {
					return nil
				}
				return err
			}
			rel, relErr := filepath.Rel(dir, path)
			if relErr != nil {
				return nil
			}
			shown := filepath.Join(virtual, rel)

			if entry.IsDir() {
				if path != dir && d.SkipDir(entry.Name()) {
					return fs.SkipDir
				}
				return nil
			}

			if entry.Type()&os.ModeSymlink != 0 {
				if !d.opts.FollowSymlinks {
					return nil
				}
				target, err := filepath.EvalSymlinks(path)
				if err != nil {
					return nil
				}
				info, err := os.Stat(target)
				if err != nil {
					return nil
				}
				if info.IsDir() {
					if visited[target] || d.SkipDir(entry.Name()) {
						return nil
					}
					visited[target] = true
					return walk(target, shown)
				}
				if f, ok := d.accept(shown, info); ok {
					files = append(files, f)
				}
				return nil
			}

			info, err := entry.Info()
			if err != nil {
				return nil
			}
			if f, ok := d.accept(shown, info); ok {
				files = append(files, f)
			}
			return nil
		})
	}

	if err := walk(d.root, d.root); err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", d.root, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Match reports whether path would be discovered by a fresh walk, and
// returns its file details when it would.
func (d *Discoverer) Match(path string) (File, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return File{}, false
	}
	rel, err := filepath.Rel(d.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return File{}, false
	}
	for _, part := range strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/") {
		if part != "." && d.SkipDir(part) {
			return File{}, false
		}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return File{}, false
	}
	return d.accept(abs, info)
}

// SkipDir reports whether a directory with this base name is never
// descended into.
func (d *Discoverer) SkipDir(name string) bool {
	if _, ok := defaultExcludedDirs[name]; ok {
		return true
	}
	if _, ok := d.excludeDirs[name]; ok {
		return true
	}
	if strings.HasPrefix(name, ".") {
		_, allowed := hiddenAllowed[name]
		return !allowed
	}
	return false
}

// HasSourceExtension reports whether path has one of the scanned
// extensions.
func (d *Discoverer) HasSourceExtension(path string) bool {
	_, ok := d.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

func (d *Discoverer) accept(path string, info fs.FileInfo) (File, bool) {
	if !info.Mode().IsRegular() || !d.HasSourceExtension(path) {
		return File{}, false
	}
	if d.opts.MaxFileSize > 0 && info.Size() > d.opts.MaxFileSize {
		return File{}, false
	}
	rel, err := filepath.Rel(d.root, path)
	if err != nil {
		return File{}, false
	}
	if !d.matches(filepath.ToSlash(rel), filepath.Base(path)) {
		return File{}, false
	}
	return File{Path: path, Size: info.Size(), ModTime: info.ModTime()}, true
}

// matches applies the exclude patterns, then the include patterns when any
// are configured. Patterns are tried against the slash path relative to the
// root and against the base name.
func (d *Discoverer) matches(rel, name string) bool {
	for _, m := range d.excludeMatchers {
		if m.Match(rel) || m.Match(name) {
			return false
		}
	}
	if len(d.includeMatchers) == 0 {
		return true
	}
	for _, m := range d.includeMatchers {
		if m.Match(rel) || m.Match(name) {
			return true
		}
	}
	return false
}

// Fingerprint identifies the discovery configuration. A checkpoint is only
// resumable by a scan with the same fingerprint, since only then is the
// processing order reproduced.
func (d *Discoverer) Fingerprint() string {
	h := sha256.New()
	write := func(label string, values []string) {
		sorted := append([]string(nil), values...)
		sort.Strings(sorted)
		fmt.Fprintf(h, "%s=%s\n", label, strings.Join(sorted, ","))
	}
	fmt.Fprintf(h, "root=%s\n", d.root)
	write("extensions", d.opts.Extensions)
	write("include", d.opts.Include)
	write("exclude", d.opts.Exclude)
	write("exclude_dirs", d.opts.ExcludeDirs)
	fmt.Fprintf(h, "max_file_size=%d\nfollow_symlinks=%t\n", d.opts.MaxFileSize, d.opts.FollowSymlinks)
	return hex.EncodeToString(h.Sum(nil))
}
