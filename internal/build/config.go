// SPDX-License-Identifier: MPL-2.0

package build

import (
	"io"
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultTagPrefix is the repository part of image tags.
	DefaultTagPrefix = "berth/app"

	// LabelCacheKey carries the plan key on every built image.
	LabelCacheKey = "dev.berth.cache-key"

	// LabelRevision carries the source revision when known.
	LabelRevision = "org.opencontainers.image.revision"
)

type (
	// Config holds the options of a Builder.
	Config struct {
		// ForceRebuild bypasses an existing image with the same tag
		ForceRebuild bool

		// NoCache disables the engine's layer cache
		NoCache bool

		// Reproducible pins SOURCE_DATE_EPOCH=0 so that timestamps written
		// by the build tools do not vary between builds
		Reproducible bool

		// TagPrefix is the repository part of the image tag
		TagPrefix string

		// CacheDir holds build records.
		// Default: ~/.cache/berth
		CacheDir string

		// ContextParent is where build contexts are staged. Empty means
		// ~/berth-build, falling back to the system temp directory.
		ContextParent string

		// Revision is the source revision recorded as an image label
		Revision string

		// Output receives engine output.
		// Default: os.Stderr
		Output io.Writer

		// Now returns the time stamped on build records.
		Now func() time.Time
	}

	// Option is a functional option for configuring a Config.
	Option func(*Config)
)

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	cacheDir := ""
	if dir, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(dir, "berth")
	}

	return &Config{
		TagPrefix: DefaultTagPrefix,
		CacheDir:  cacheDir,
		Output:    os.Stderr,
		Now:       time.Now,
	}
}

// WithForceRebuild returns an Option that sets ForceRebuild on the config.
func WithForceRebuild(force bool) Option {
	return func(c *Config) {
		c.ForceRebuild = force
	}
}

// WithNoCache returns an Option that sets NoCache on the config.
func WithNoCache(noCache bool) Option {
	return func(c *Config) {
		c.NoCache = noCache
	}
}

// WithReproducible returns an Option that sets Reproducible on the config.
func WithReproducible(reproducible bool) Option {
	return func(c *Config) {
		c.Reproducible = reproducible
	}
}

// WithTagPrefix returns an Option that sets TagPrefix on the config.
// A blank prefix keeps the current one.
func WithTagPrefix(prefix string) Option {
	return func(c *Config) {
		if prefix != "" {
			c.TagPrefix = prefix
		}
	}
}

// WithCacheDir returns an Option that sets CacheDir on the config.
// A blank directory keeps the current one.
func WithCacheDir(dir string) Option {
	return func(c *Config) {
		if dir != "" {
			c.CacheDir = dir
		}
	}
}

// WithContextParent returns an Option that sets ContextParent on the config.
func WithContextParent(dir string) Option {
	return func(c *Config) {
		c.ContextParent = dir
	}
}

// WithRevision returns an Option that sets Revision on the config.
func WithRevision(rev string) Option {
	return func(c *Config) {
		c.Revision = rev
	}
}

// WithOutput returns an Option that sets Output on the config.
func WithOutput(w io.Writer) Option {
	return func(c *Config) {
		c.Output = w
	}
}

// WithClock returns an Option that sets Now on the config.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		c.Now = now
	}
}

// Apply applies the given options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
