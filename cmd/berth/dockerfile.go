// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/berthbuild/berth/internal/build"
)

func newDockerfileCommand(app *App, g *globalOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "dockerfile",
		Short: "Render the Dockerfile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := app.loadProject(cmd.Context(), g)
			if err != nil {
				return err
			}
			prep, err := build.Prepare(p.root, p.descriptor, p.config.Build.TagPrefix)
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err := app.stdout.Write(prep.Dockerfile)
				return err
			}
			if err := os.WriteFile(output, prep.Dockerfile, 0o644); err != nil {
				return fmt.Errorf("failed to write Dockerfile: %w", err)
			}
			fmt.Fprintf(app.stderr, "%s %s\n", SuccessStyle.Render("Wrote"), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}
