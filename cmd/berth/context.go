// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/berthbuild/berth/internal/build"
	"github.com/berthbuild/berth/internal/buildctx"
)

func newContextCommand(app *App, g *globalOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Export the build context as a deterministic tar archive",
		Long: `Export the build context as a tar archive.

Entries are written in a fixed order with zeroed timestamps and root
ownership, so identical projects produce byte-identical archives. The sha256
of the archive is printed to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			if output == "" {
				return errors.New("--output is required (use - for stdout)")
			}

			p, err := app.loadProject(cmd.Context(), g)
			if err != nil {
				return err
			}
			prep, err := build.Prepare(p.root, p.descriptor, p.config.Build.TagPrefix)
			if err != nil {
				return err
			}

			var w io.Writer = app.stdout
			if output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create archive: %w", err)
				}
				defer func() {
					if closeErr := f.Close(); closeErr != nil && err == nil {
						err = closeErr
					}
				}()
				w = f
			}

			digest, err := buildctx.WriteArchive(w, prep.Inputs, prep.Dockerfile)
			if err != nil {
				return fmt.Errorf("failed to write archive: %w", err)
			}
			fmt.Fprintf(app.stderr, "sha256:%s\n", digest)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "archive path, or - for stdout")
	return cmd
}
