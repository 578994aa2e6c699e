// SPDX-License-Identifier: MPL-2.0

package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/berthbuild/berth/internal/buildctx"
	"github.com/berthbuild/berth/internal/container"
	"github.com/berthbuild/berth/internal/dockerfile"
	"github.com/berthbuild/berth/internal/plan"
	"github.com/berthbuild/berth/pkg/descriptor"
)

// SourceDateEpochArg is the build argument set for reproducible builds.
const SourceDateEpochArg = "SOURCE_DATE_EPOCH"

type (
	// Builder builds images for one engine.
	Builder struct {
		engine container.Engine
		config *Config
		logger *log.Logger
	}

	// Prepared is everything known about a build before the engine runs.
	Prepared struct {
		Root       string
		Inputs     *buildctx.Inputs
		Plan       *plan.Plan
		Dockerfile []byte
		// Tag is the tag the image is (or would be) built under.
		Tag string
	}

	// Result is the outcome of Build.
	Result struct {
		*Prepared
		// Cached is true when an image with the tag already existed and no
		// build ran.
		Cached bool
		// Record is the record written for this build; nil when cached.
		Record *Record
	}
)

// NewBuilder creates a Builder. A nil cfg means DefaultConfig.
func NewBuilder(engine container.Engine, cfg *Config, logger *log.Logger) *Builder {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "build"})
	}
	return &Builder{engine: engine, config: cfg, logger: logger}
}

// Config returns the builder's configuration.
func (b *Builder) Config() *Config {
	return b.config
}

// Prepare validates d, resolves the inputs under root, plans the layers and
// renders the Dockerfile. It fails on a bad manifest pair before the source
// tree is read.
func (b *Builder) Prepare(root string, d *descriptor.Descriptor) (*Prepared, error) {
	return Prepare(root, d, b.config.TagPrefix)
}

// Prepare is Builder.Prepare without an engine.
func Prepare(root string, d *descriptor.Descriptor, tagPrefix string) (*Prepared, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	in, err := buildctx.Resolve(root, d)
	if err != nil {
		return nil, err
	}

	p, err := plan.New(d, in)
	if err != nil {
		return nil, err
	}

	df, err := dockerfile.RenderChecked(p)
	if err != nil {
		return nil, err
	}

	return &Prepared{
		Root:       in.Root,
		Inputs:     in,
		Plan:       p,
		Dockerfile: df,
		Tag:        Tag(tagPrefix, p.Key()),
	}, nil
}

// Tag returns "<prefix>:<first 12 hex digits of key>".
func Tag(prefix, key string) string {
	if prefix == "" {
		prefix = DefaultTagPrefix
	}
	if len(key) > 12 {
		key = key[:12]
	}
	return prefix + ":" + key
}

// Build prepares and builds the image for the project at root. An existing
// image with the same tag is reused unless ForceRebuild is set. Build
// failures are returned as is; nothing is retried and no tag is left behind.
func (b *Builder) Build(ctx context.Context, root string, d *descriptor.Descriptor) (*Result, error) {
	prep, err := b.Prepare(root, d)
	if err != nil {
		return nil, err
	}

	logger := b.logger.With("tag", prep.Tag)

	if !b.config.ForceRebuild {
		exists, _ := b.engine.ImageExists(ctx, prep.Tag) //nolint:errcheck // Error treated as "not found"
		if exists {
			logger.Info("image up to date")
			return &Result{Prepared: prep, Cached: true}, nil
		}
	}

	ctxDir, cleanup, err := prepareBuildContext(b.config.ContextParent)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if err := stage(prep, ctxDir); err != nil {
		return nil, fmt.Errorf("failed to stage build context: %w", err)
	}
	logger.Debug("staged build context", "dir", ctxDir, "files", prep.Inputs.Source.Files())

	opts := container.BuildOptions{
		ContextDir: ctxDir,
		Dockerfile: buildctx.DockerfileName,
		Tag:        prep.Tag,
		NoCache:    b.config.NoCache,
		Labels:     b.labels(prep),
		Stdout:     b.config.Output,
		Stderr:     b.config.Output,
	}
	if b.config.Reproducible {
		opts.BuildArgs = map[string]string{SourceDateEpochArg: "0"}
	}

	logger.Info("building image", "engine", b.engine.Name(), "steps", len(prep.Plan.Steps))
	if err := b.engine.Build(ctx, opts); err != nil {
		return nil, err
	}

	rec := NewRecord(prep.Root, prep.Tag, b.engine.Name(), prep.Plan, b.config.Now())
	rec.Revision = b.config.Revision
	if b.config.CacheDir != "" {
		if err := SaveRecord(b.config.CacheDir, prep.Root, rec); err != nil {
			// The image is built; a missing record only costs --since-last.
			logger.Warn("could not save build record", "err", err)
		}
	}

	logger.Info("image built")
	return &Result{Prepared: prep, Record: rec}, nil
}

func (b *Builder) labels(prep *Prepared) map[string]string {
	labels := map[string]string{LabelCacheKey: prep.Plan.Key()}
	if b.config.Revision != "" {
		labels[LabelRevision] = b.config.Revision
	}
	return labels
}

// prepareBuildContext creates an empty directory for the build context.
//
// Docker installed via Snap cannot read /tmp or hidden directories under
// $HOME, so the context lives in a visible directory in the user's home when
// there is one.
func prepareBuildContext(parent string) (dir string, cleanup func(), err error) {
	if parent == "" {
		parent = defaultContextParent()
	}

	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", nil, fmt.Errorf("failed to create build context parent directory: %w", err)
	}

	dir, err = os.MkdirTemp(parent, "ctx-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	return dir, func() { _ = os.RemoveAll(dir) }, nil // Cleanup temp dir; error non-critical
}

func defaultContextParent() string {
	if home, err := os.UserHomeDir(); err == nil {
		if _, statErr := os.Stat(home); statErr == nil {
			return filepath.Join(home, "berth-build")
		}
	}
	return filepath.Join(os.TempDir(), "berth-build")
}

func stage(prep *Prepared, dir string) error {
	return buildctx.Stage(prep.Inputs, prep.Dockerfile, dir)
}
