// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/berthbuild/berth/internal/build"
	"github.com/berthbuild/berth/internal/container"
	"github.com/berthbuild/berth/internal/watch"
)

type buildFlags struct {
	force   bool
	noCache bool
}

func (f *buildFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.force, "force", false, "rebuild even if an image with the same cache key exists")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "do not use the engine's layer cache")
}

func (f *buildFlags) options() []build.Option {
	return []build.Option{build.WithForceRebuild(f.force), build.WithNoCache(f.noCache)}
}

func newBuildCommand(app *App, g *globalOptions) *cobra.Command {
	flags := &buildFlags{}
	var watchInputs bool
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the service image",
		Long: `Build the service image.

The manifest pair is checked before anything else; a missing or stale lock
file stops the build before the application source is staged. The image is
tagged with the first 12 hex digits of its cache key, so an unchanged
project reuses the existing image.

With --watch, berth keeps running and rebuilds whenever the manifest pair,
the descriptor or the application source changes. A failed rebuild is
reported and the previous image stays in place.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := app.loadProject(cmd.Context(), g)
			if err != nil {
				return err
			}
			engine, err := app.engine(cmd.Context(), p)
			if err != nil {
				return err
			}
			_, err = app.buildImage(cmd.Context(), p, engine, flags)
			if !watchInputs {
				return err
			}
			if err != nil {
				renderError(app.stderr, err, p.verbose)
			}
			return app.watchAndBuild(cmd.Context(), g, p, engine, flags)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVarP(&watchInputs, "watch", "w", false, "rebuild when build inputs change")
	return cmd
}

// watchAndBuild rebuilds on every change to the project's build inputs until
// ctx is canceled. The descriptor is reloaded before each rebuild.
func (app *App) watchAndBuild(ctx context.Context, g *globalOptions, p *project, engine container.Engine, flags *buildFlags) error {
	descRel, err := filepath.Rel(p.root, p.descPath)
	if err != nil || strings.HasPrefix(descRel, "..") {
		descRel = ""
	}
	d := p.descriptor
	logger := app.logger(p, "watch")
	w, err := watch.New(watch.Config{
		Root:     p.root,
		Patterns: watch.InputPatterns(d.Manifest.SpecFile, d.Manifest.LockFile, descRel, d.Source.Path),
		Logger:   logger,
		OnChange: func(ctx context.Context, changed []string) error {
			logger.Info("rebuilding", "changed", len(changed))
			next, err := app.loadProject(ctx, g)
			if err != nil {
				return err
			}
			_, err = app.buildImage(ctx, next, engine, flags)
			return err
		},
	})
	if err != nil {
		return err
	}
	logger.Info("watching for changes", "root", p.root)
	return w.Run(ctx)
}

// buildImage builds (or reuses) the project image and reports the tag.
func (app *App) buildImage(ctx context.Context, p *project, engine container.Engine, flags *buildFlags) (*build.Result, error) {
	res, err := app.builder(p, engine, flags.options()...).Build(ctx, p.root, p.descriptor)
	if err != nil {
		return nil, err
	}

	status := SuccessStyle.Render("Built")
	if res.Cached {
		status = SubtitleStyle.Render("Up to date")
	}
	fmt.Fprintf(app.stdout, "%s %s\n", status, CmdStyle.Render(res.Tag))
	return res, nil
}
