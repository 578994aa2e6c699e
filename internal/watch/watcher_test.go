// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// start runs a watcher over root and returns the channel of callback batches.
func start(t *testing.T, cfg Config) <-chan []string {
	t.Helper()
	batches := make(chan []string, 16)
	cfg.Debounce = 50 * time.Millisecond
	cfg.OnChange = func(_ context.Context, changed []string) error {
		batches <- changed
		return nil
	}
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run() error: %v", err)
		}
	})
	return batches
}

func next(t *testing.T, batches <-chan []string) []string {
	t.Helper()
	select {
	case b := <-batches:
		return b
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change batch")
		return nil
	}
}

func TestInputPatterns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                     string
		spec, lock, desc, source string
		want                     []string
	}{
		{
			name: "poetry project", spec: "pyproject.toml", lock: "poetry.lock", desc: "berth.cue", source: "app",
			want: []string{"pyproject.toml", "poetry.lock", "berth.cue", "app", "app/**"},
		},
		{
			name: "nested source is cleaned", spec: "pyproject.toml", lock: "poetry.lock", source: "./services/api/",
			want: []string{"pyproject.toml", "poetry.lock", "services/api", "services/api/**"},
		},
		{
			name: "root source watches everything", spec: "pyproject.toml", lock: "poetry.lock", source: ".",
			want: []string{"pyproject.toml", "poetry.lock", "**"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := InputPatterns(tt.spec, tt.lock, tt.desc, tt.source)
			if !slices.Equal(got, tt.want) {
				t.Errorf("InputPatterns() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewRejectsInvalidPattern(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Root: t.TempDir(), Patterns: []string{"app/[*"}})
	if !errors.Is(err, ErrInvalidPattern) {
		t.Fatalf("New() error = %v, want ErrInvalidPattern", err)
	}
}

func TestWatcherDebouncesSourceChanges(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	write(t, root, "app/src/main.py", "app = None\n")
	batches := start(t, Config{Root: root, Patterns: InputPatterns("pyproject.toml", "poetry.lock", "", "app")})

	write(t, root, "app/src/main.py", "app = 1\n")
	write(t, root, "app/src/routes.py", "routes = []\n")
	write(t, root, "pyproject.toml", "[tool.poetry]\n")

	seen := map[string]bool{}
	deadline := time.After(5 * time.Second)
	for !(seen["app/src/main.py"] && seen["app/src/routes.py"] && seen["pyproject.toml"]) {
		select {
		case b := <-batches:
			if !slices.IsSorted(b) {
				t.Errorf("batch %v is not sorted", b)
			}
			for _, p := range b {
				seen[p] = true
			}
		case <-deadline:
			t.Fatalf("changes not reported, saw %v", seen)
		}
	}
}

func TestWatcherSkipsUnrelatedAndIgnoredFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	write(t, root, "app/src/main.py", "app = None\n")
	batches := start(t, Config{Root: root, Patterns: InputPatterns("pyproject.toml", "poetry.lock", "", "app")})

	write(t, root, "README.md", "docs\n")
	write(t, root, "app/src/__pycache__/main.cpython-311.pyc", "bytecode")
	write(t, root, "app/src/main.py.swp", "swap")
	time.Sleep(200 * time.Millisecond)
	write(t, root, "poetry.lock", "[metadata]\n")

	got := next(t, batches)
	if !slices.Equal(got, []string{"poetry.lock"}) {
		t.Errorf("changed = %v, want [poetry.lock]", got)
	}
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	write(t, root, "app/src/main.py", "app = None\n")
	batches := start(t, Config{Root: root, Patterns: []string{"app/**"}})

	if err := os.MkdirAll(filepath.Join(root, "app", "src", "api"), 0o755); err != nil {
		t.Fatal(err)
	}
	// Give the watcher a moment to register the new directory.
	time.Sleep(100 * time.Millisecond)
	write(t, root, "app/src/api/users.py", "users = []\n")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case b := <-batches:
			if slices.Contains(b, "app/src/api/users.py") {
				return
			}
		case <-deadline:
			t.Fatal("file in new directory not reported")
		}
	}
}

func TestRunTwice(t *testing.T) {
	t.Parallel()

	w, err := New(Config{Root: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("first Run() = %v", err)
	}
	if err := w.Run(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Run() = %v, want ErrAlreadyRunning", err)
	}
}

func TestDefaultIgnores(t *testing.T) {
	t.Parallel()

	w := &Watcher{ignores: defaultIgnores}
	for path, want := range map[string]bool{
		".git/HEAD":                         true,
		"app/__pycache__/x.cpython-311.pyc": true,
		"app/src/main.pyc":                  true,
		".venv/lib/python3.11/site.py":      true,
		"app/.pytest_cache/v/cache":         true,
		"app/src/main.py~":                  true,
		"app/src/main.py":                   false,
		"pyproject.toml":                    false,
		"poetry.lock":                       false,
	} {
		if got := w.ignored(path); got != want {
			t.Errorf("ignored(%q) = %v, want %v", path, got, want)
		}
	}
}
