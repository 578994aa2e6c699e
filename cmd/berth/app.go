// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/berthbuild/berth/internal/build"
	"github.com/berthbuild/berth/internal/config"
	"github.com/berthbuild/berth/internal/container"
	"github.com/berthbuild/berth/internal/issue"
	"github.com/berthbuild/berth/internal/vcs"
	"github.com/berthbuild/berth/pkg/descriptor"
)

type (
	// App wires CLI services and shared dependencies. Every command handler
	// receives the App and reaches configuration and engines through it.
	App struct {
		Config  ConfigProvider
		Engines EngineFactory
		stdout  io.Writer
		stderr  io.Writer

		buildOptions []build.Option
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config  ConfigProvider
		Engines EngineFactory
		Stdout  io.Writer
		Stderr  io.Writer
		// BuildOptions are applied to every Builder before command flags.
		BuildOptions []build.Option
	}

	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}

	// EngineFactory returns the container engine selected by cfg.
	EngineFactory func(ctx context.Context, cfg *config.Config) (container.Engine, error)

	// globalOptions holds the persistent flags.
	globalOptions struct {
		verbose        bool
		configPath     string
		projectDir     string
		descriptorPath string
	}

	// project is a loaded project: its root, descriptor and the effective
	// user configuration.
	project struct {
		root       string
		descPath   string
		descriptor *descriptor.Descriptor
		fromFile   bool
		config     *config.Config
		verbose    bool
	}
)

// NewApp creates an App, filling unset dependencies with production defaults.
func NewApp(deps Dependencies) *App {
	app := &App{
		Config:  deps.Config,
		Engines: deps.Engines,
		stdout:  deps.Stdout,
		stderr:  deps.Stderr,

		buildOptions: deps.BuildOptions,
	}
	if app.Config == nil {
		app.Config = config.NewProvider()
	}
	if app.Engines == nil {
		app.Engines = defaultEngine
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	return app
}

func defaultEngine(ctx context.Context, cfg *config.Config) (container.Engine, error) {
	return container.NewEngine(ctx, container.EngineType(cfg.ContainerEngine), cfg.BuildKit.Address)
}

// loadProject resolves the project root, loads the user configuration and
// the project's berth.cue (or the default descriptor when there is none).
func (app *App) loadProject(ctx context.Context, g *globalOptions) (*project, error) {
	root, err := filepath.Abs(g.projectDir)
	if err != nil {
		return nil, err
	}

	cfg, err := app.Config.Load(ctx, config.LoadOptions{ConfigFilePath: g.configPath, WorkDir: root})
	if err != nil {
		return nil, err
	}

	descPath := filepath.Join(root, descriptor.FileName)
	if g.descriptorPath != "" {
		if descPath, err = filepath.Abs(g.descriptorPath); err != nil {
			return nil, err
		}
	}
	d, fromFile, err := descriptor.LoadOrDefault(descPath)
	if err != nil {
		return nil, err
	}

	return &project{
		root:       root,
		descPath:   descPath,
		descriptor: d,
		fromFile:   fromFile,
		config:     cfg,
		verbose:    g.verbose || cfg.UI.Verbose,
	}, nil
}

// logger returns a component logger writing to stderr.
func (app *App) logger(p *project, prefix string) *log.Logger {
	level := log.InfoLevel
	if p.verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(app.stderr, log.Options{Prefix: prefix, Level: level})
}

// builder creates a Builder for engine configured from the project.
func (app *App) builder(p *project, engine container.Engine, opts ...build.Option) *build.Builder {
	cfg := build.DefaultConfig()
	cfg.Apply(
		build.WithTagPrefix(p.config.Build.TagPrefix),
		build.WithReproducible(p.config.Build.Reproducible),
		build.WithOutput(app.stderr),
	)
	if p.config.Build.CacheDir != "" {
		cfg.Apply(build.WithCacheDir(p.config.Build.CacheDir))
	}
	if rev, err := vcs.Read(p.root); err == nil {
		cfg.Apply(build.WithRevision(rev.String()))
	} else if !errors.Is(err, vcs.ErrNotRepository) {
		app.logger(p, "vcs").Debug("no source revision", "err", err)
	}
	cfg.Apply(app.buildOptions...)
	cfg.Apply(opts...)

	return build.NewBuilder(engine, cfg, app.logger(p, "build"))
}

// cacheDir returns the directory holding build records.
func (p *project) cacheDir() string {
	if p.config.Build.CacheDir != "" {
		return p.config.Build.CacheDir
	}
	return build.DefaultConfig().CacheDir
}

// engine returns the configured container engine.
func (app *App) engine(ctx context.Context, p *project) (container.Engine, error) {
	engine, err := app.Engines(ctx, p.config)
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("select container engine").
			WithResource(string(p.config.ContainerEngine)).
			WithIssue(issue.EngineNotFoundID).
			WithSuggestion("Install Docker or Podman, or set container_engine in config.cue").
			WithSuggestion("Run 'berth doctor' to check the environment").
			Wrap(err).
			BuildError()
	}
	return engine, nil
}
