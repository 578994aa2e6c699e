// SPDX-License-Identifier: MPL-2.0

// Package watch re-runs a callback when build inputs change on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last event before a callback
// fires. Editors that write a temp file and rename it produce several events.
const DefaultDebounce = 300 * time.Millisecond

var (
	// ErrAlreadyRunning is returned when Run is called a second time.
	ErrAlreadyRunning = errors.New("watcher already running")

	// ErrInvalidPattern is returned for a malformed glob.
	ErrInvalidPattern = errors.New("invalid glob pattern")

	// Python bytecode, virtualenvs and tool caches change on every test run
	// and never belong in the image.
	defaultIgnores = []string{
		".git/**",
		"**/.git/**",
		"**/__pycache__/**",
		"**/*.pyc",
		"**/.venv/**",
		"**/.pytest_cache/**",
		"**/.mypy_cache/**",
		"**/.ruff_cache/**",
		"**/*.swp",
		"**/*.swo",
		"**/*~",
		"**/.DS_Store",
	}
)

type (
	// Config holds the parameters for a Watcher.
	Config struct {
		// Root is the directory to watch. Patterns are relative to it.
		Root string

		// Patterns select the files that trigger OnChange. An empty slice
		// matches every non-ignored file.
		Patterns []string

		// Ignore is merged with the built-in ignores.
		Ignore []string

		// Debounce falls back to DefaultDebounce when not positive.
		Debounce time.Duration

		// OnChange receives the sorted, deduplicated changed paths relative
		// to Root. Calls never overlap.
		OnChange func(ctx context.Context, changed []string) error

		// Logger defaults to a discarding logger.
		Logger *log.Logger
	}

	// Watcher monitors Root and fires a debounced callback on matching
	// changes. A Watcher runs once.
	Watcher struct {
		cfg      Config
		fsw      *fsnotify.Watcher
		ignores  []string
		debounce time.Duration
		root     string
		logger   *log.Logger
		started  atomic.Bool
	}
)

// InputPatterns returns the watch patterns for a project whose spec file,
// lock file, descriptor file and source tree are given relative to the root.
// Blank entries are skipped.
func InputPatterns(specFile, lockFile, descriptorFile, sourceDir string) []string {
	var out []string
	for _, f := range []string{specFile, lockFile, descriptorFile} {
		if f != "" {
			out = append(out, filepath.ToSlash(filepath.Clean(f)))
		}
	}
	if sourceDir != "" {
		src := filepath.ToSlash(filepath.Clean(sourceDir))
		if src == "." {
			out = append(out, "**")
		} else {
			out = append(out, src, src+"/**")
		}
	}
	return out
}

// New resolves Root, validates the patterns, and registers every
// non-ignored directory below Root.
func New(cfg Config) (*Watcher, error) {
	root := cfg.Root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("watch: working directory: %w", err)
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve %s: %w", root, err)
	}

	for _, pat := range slices.Concat(cfg.Patterns, cfg.Ignore) {
		if !doublestar.ValidatePattern(pat) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, pat)
		}
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}

	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		ignores:  slices.Concat(defaultIgnores, cfg.Ignore),
		debounce: debounce,
		root:     abs,
		logger:   logger,
	}
	if err := w.addTree(abs); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run processes events until ctx is canceled. It returns nil on
// cancellation and an error when the underlying watcher breaks.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer func() {
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("close watcher", "err", err)
		}
	}()

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
		busy    atomic.Bool
	)

	fire := func() {
		if ctx.Err() != nil {
			return
		}
		if !busy.CompareAndSwap(false, true) {
			// Retry once the current callback has had time to finish.
			mu.Lock()
			timer.Reset(w.debounce)
			mu.Unlock()
			return
		}
		defer busy.Store(false)

		mu.Lock()
		changed := slices.Sorted(maps.Keys(pending))
		clear(pending)
		mu.Unlock()
		if len(changed) == 0 || w.cfg.OnChange == nil {
			return
		}
		w.logger.Debug("inputs changed", "paths", changed)
		if err := w.cfg.OnChange(ctx, changed); err != nil {
			w.logger.Error("rebuild failed", "err", err)
		}
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: event channel closed")
			}
			rel := w.rel(evt.Name)
			if evt.Has(fsnotify.Create) {
				w.maybeAdd(evt.Name, rel)
			}
			if w.ignored(rel) || w.ignored(rel+"/") || !w.matches(rel) {
				continue
			}
			mu.Lock()
			pending[rel] = struct{}{}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: error channel closed")
			}
			if isFatalFsnotifyError(err) {
				return fmt.Errorf("watch: %w", err)
			}
			w.logger.Warn("watch error", "err", err)
		}
	}
}

func (w *Watcher) rel(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (w *Watcher) addTree(dir string) error {
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("skipping unreadable path", "path", path, "err", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.ignored(w.rel(path)+"/") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: add %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch: walk %s: %w", dir, err)
	}
	return nil
}

// maybeAdd extends the watch to directories created after startup.
func (w *Watcher) maybeAdd(path, rel string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() || w.ignored(rel+"/") {
		return
	}
	if err := w.addTree(path); err != nil {
		w.logger.Warn("watch new directory", "path", path, "err", err)
	}
}

func (w *Watcher) ignored(rel string) bool {
	return matchAny(w.ignores, rel)
}

func (w *Watcher) matches(rel string) bool {
	return len(w.cfg.Patterns) == 0 || matchAny(w.cfg.Patterns, rel)
}

func matchAny(patterns []string, rel string) bool {
	for _, pat := range patterns {
		if ok, err := doublestar.Match(pat, rel); err == nil && ok {
			return true
		}
	}
	return false
}
