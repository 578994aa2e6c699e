// SPDX-License-Identifier: MPL-2.0

package build

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/berthbuild/berth/internal/buildctx"
	"github.com/berthbuild/berth/internal/container"
	"github.com/berthbuild/berth/internal/testutil"
	"github.com/berthbuild/berth/pkg/descriptor"
	"github.com/berthbuild/berth/pkg/manifest"
)

// fakeEngine records builds and snapshots the staged Dockerfile.
type fakeEngine struct {
	mu         sync.Mutex
	exists     bool
	buildErr   error
	builds     []container.BuildOptions
	dockerfile string
}

func (f *fakeEngine) Name() string                            { return "fake" }
func (f *fakeEngine) Available(context.Context) bool          { return true }
func (f *fakeEngine) Version(context.Context) (string, error) { return "1.0", nil }

func (f *fakeEngine) Build(_ context.Context, opts container.BuildOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds = append(f.builds, opts)
	data, err := os.ReadFile(filepath.Join(opts.ContextDir, opts.Dockerfile))
	if err != nil {
		return err
	}
	f.dockerfile = string(data)
	return f.buildErr
}

func (f *fakeEngine) Run(context.Context, container.RunOptions) (*container.RunResult, error) {
	return &container.RunResult{}, nil
}

func (f *fakeEngine) ImageExists(context.Context, string) (bool, error) { return f.exists, nil }

func (f *fakeEngine) RemoveImage(context.Context, string, bool) error { return nil }

func newTestBuilder(t *testing.T, engine container.Engine, opts ...Option) *Builder {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Apply(
		WithCacheDir(t.TempDir()),
		WithContextParent(t.TempDir()),
		WithOutput(io.Discard),
		WithClock(func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }),
	)
	cfg.Apply(opts...)
	return NewBuilder(engine, cfg, log.New(io.Discard))
}

func TestBuild(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	b := newTestBuilder(t, engine, WithRevision("abc123"))
	root := testutil.WriteProject(t, testutil.DefaultProject())

	res, err := b.Build(context.Background(), root, descriptor.Default())
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if res.Cached {
		t.Error("Cached = true for a fresh build")
	}
	if len(engine.builds) != 1 {
		t.Fatalf("engine builds = %d, want 1", len(engine.builds))
	}

	opts := engine.builds[0]
	if opts.Tag != res.Tag || !strings.HasPrefix(res.Tag, DefaultTagPrefix+":") {
		t.Errorf("tag = %q, result tag = %q", opts.Tag, res.Tag)
	}
	if opts.Labels[LabelCacheKey] != res.Plan.Key() || opts.Labels[LabelRevision] != "abc123" {
		t.Errorf("labels = %v", opts.Labels)
	}
	if opts.BuildArgs != nil {
		t.Errorf("BuildArgs = %v, want none", opts.BuildArgs)
	}
	if engine.dockerfile != string(res.Dockerfile) {
		t.Error("staged Dockerfile differs from the rendered one")
	}
	if _, err := os.Stat(opts.ContextDir); !os.IsNotExist(err) {
		t.Errorf("build context %s was not removed", opts.ContextDir)
	}

	rec, err := LoadRecord(b.Config().CacheDir, res.Root)
	if err != nil {
		t.Fatalf("LoadRecord() error: %v", err)
	}
	if rec.Key != res.Plan.Key() || rec.Tag != res.Tag || rec.Engine != "fake" || rec.Revision != "abc123" {
		t.Errorf("record = %+v", rec)
	}
	if len(rec.Keys()) != len(res.Plan.Steps) {
		t.Errorf("record steps = %d, want %d", len(rec.Keys()), len(res.Plan.Steps))
	}
	if !rec.BuiltAt.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("BuiltAt = %v", rec.BuiltAt)
	}
}

func TestBuild_ReusesExistingImage(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{exists: true}
	b := newTestBuilder(t, engine)
	root := testutil.WriteProject(t, testutil.DefaultProject())

	res, err := b.Build(context.Background(), root, descriptor.Default())
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if !res.Cached || len(engine.builds) != 0 {
		t.Errorf("Cached = %v, builds = %d", res.Cached, len(engine.builds))
	}
}

func TestBuild_ForceRebuild(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{exists: true}
	b := newTestBuilder(t, engine, WithForceRebuild(true), WithReproducible(true))
	root := testutil.WriteProject(t, testutil.DefaultProject())

	if _, err := b.Build(context.Background(), root, descriptor.Default()); err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if len(engine.builds) != 1 {
		t.Fatalf("builds = %d, want 1", len(engine.builds))
	}
	if engine.builds[0].BuildArgs[SourceDateEpochArg] != "0" {
		t.Errorf("BuildArgs = %v", engine.builds[0].BuildArgs)
	}
}

func TestBuild_StaleLockFailsBeforeEngine(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	b := newTestBuilder(t, engine)
	spec := testutil.PyProject + "httpx = \"^0.27\"\n"
	root := testutil.WriteProject(t, testutil.DefaultProject().With("pyproject.toml", spec))

	_, err := b.Build(context.Background(), root, descriptor.Default())
	if !errors.Is(err, manifest.ErrLockMismatch) {
		t.Fatalf("Build() error = %v, want ErrLockMismatch", err)
	}
	if len(engine.builds) != 0 {
		t.Error("engine was invoked for an inconsistent manifest pair")
	}
}

func TestBuild_MissingSource(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	b := newTestBuilder(t, engine)
	root := testutil.WriteProject(t, testutil.DefaultProject().Without("app/src/main.py").Without("app/src/__init__.py"))

	if _, err := b.Build(context.Background(), root, descriptor.Default()); !errors.Is(err, buildctx.ErrMissingSource) {
		t.Fatalf("Build() error = %v, want ErrMissingSource", err)
	}
	if len(engine.builds) != 0 {
		t.Error("engine was invoked without a source tree")
	}
}

func TestBuild_EngineFailureWritesNoRecord(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{buildErr: errors.New("exit status 1")}
	b := newTestBuilder(t, engine)
	root := testutil.WriteProject(t, testutil.DefaultProject())

	if _, err := b.Build(context.Background(), root, descriptor.Default()); err == nil {
		t.Fatal("Build() should fail")
	}
	if len(engine.builds) != 1 {
		t.Errorf("builds = %d, want exactly 1 (no retry)", len(engine.builds))
	}
	abs, _ := filepath.Abs(root)
	if _, err := LoadRecord(b.Config().CacheDir, abs); !errors.Is(err, ErrNoRecord) {
		t.Errorf("LoadRecord() error = %v, want ErrNoRecord", err)
	}
}

func TestBuild_InvalidDescriptor(t *testing.T) {
	t.Parallel()

	d := descriptor.Default()
	d.WorkDir = "relative"
	engine := &fakeEngine{}
	_, err := newTestBuilder(t, engine).Build(context.Background(), testutil.WriteProject(t, testutil.DefaultProject()), d)
	if !errors.Is(err, descriptor.ErrInvalidDescriptor) {
		t.Fatalf("Build() error = %v, want ErrInvalidDescriptor", err)
	}
}

func TestBuild_SourceEditChangesTagOnly(t *testing.T) {
	t.Parallel()

	a, err := Prepare(testutil.WriteProject(t, testutil.DefaultProject()), descriptor.Default(), "")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Prepare(testutil.WriteProject(t, testutil.DefaultProject().With("app/src/main.py", "app = 2\n")), descriptor.Default(), "")
	if err != nil {
		t.Fatal(err)
	}
	if a.Tag == b.Tag {
		t.Error("source edit did not change the image tag")
	}
}

func TestTag(t *testing.T) {
	t.Parallel()

	if got := Tag("", "0123456789abcdef"); got != "berth/app:0123456789ab" {
		t.Errorf("Tag() = %q", got)
	}
	if got := Tag("registry.local/svc", "abc"); got != "registry.local/svc:abc" {
		t.Errorf("Tag() = %q", got)
	}
}

func TestRecordPathIsPerProject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if RecordPath(dir, "/a") == RecordPath(dir, "/b") {
		t.Error("different projects share a record path")
	}
}
