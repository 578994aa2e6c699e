// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/berthbuild/berth/internal/build"
)

func newPlanCommand(app *App, g *globalOptions) *cobra.Command {
	var sinceLast, raw bool
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the ordered image layers and their cache keys",
		Long: `Show the ordered image layers and their cache keys.

With --since-last, each layer is compared with the last successful build of
this project and marked as cached or to be rebuilt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := app.loadProject(cmd.Context(), g)
			if err != nil {
				return err
			}
			prep, err := build.Prepare(p.root, p.descriptor, p.config.Build.TagPrefix)
			if err != nil {
				return err
			}

			var stale []bool
			if sinceLast {
				rec, err := build.LoadRecord(p.cacheDir(), prep.Root)
				switch {
				case err == nil:
					stale = prep.Plan.Stale(rec.Keys())
				case errors.Is(err, build.ErrNoRecord):
					stale = prep.Plan.Stale(nil)
				default:
					return err
				}
			}

			md := prep.Plan.Markdown(stale) + "\nImage tag: `" + prep.Tag + "`\n"
			if raw {
				fmt.Fprint(app.stdout, md)
				return nil
			}
			out, err := renderMarkdown(md)
			if err != nil {
				return err
			}
			fmt.Fprint(app.stdout, out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&sinceLast, "since-last", false, "mark layers that changed since the last build")
	cmd.Flags().BoolVar(&raw, "raw", false, "print Markdown without terminal rendering")
	return cmd
}

func renderMarkdown(md string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(120),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return r.Render(md)
}
