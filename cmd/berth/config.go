// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/berthbuild/berth/internal/config"
)

// newConfigCommand creates the `berth config` command tree.
func newConfigCommand(app *App, g *globalOptions) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage berth configuration",
		Long: `Manage berth configuration.

Configuration is stored in:
  - Linux: ~/.config/berth/config.cue
  - macOS: ~/Library/Application Support/berth/config.cue
  - Windows: %APPDATA%\berth\config.cue

BERTH_* environment variables override file values, for example
BERTH_CONTAINER_ENGINE=podman or BERTH_BUILD_REPRODUCIBLE=true.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as CUE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			workDir, err := filepath.Abs(g.projectDir)
			if err != nil {
				return err
			}
			cfg, source, err := config.LoadWithSource(cmd.Context(), config.LoadOptions{
				ConfigFilePath: g.configPath,
				WorkDir:        workDir,
			})
			if err != nil {
				return err
			}
			if source == "" {
				source = "(defaults)"
			}
			fmt.Fprintf(app.stdout, "// source: %s\n", source)
			fmt.Fprint(app.stdout, config.GenerateCUE(cfg))
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the user configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := config.ConfigDir()
			if err != nil {
				return err
			}
			fmt.Fprintln(app.stdout, filepath.Join(dir, config.ConfigFileName+"."+config.ConfigFileExt))
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the user configuration file with default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := config.ConfigDir()
			if err != nil {
				return err
			}
			existing := filepath.Join(dir, config.ConfigFileName+"."+config.ConfigFileExt)
			if _, err := os.Stat(existing); err == nil {
				fmt.Fprintf(app.stdout, "%s %s\n", SubtitleStyle.Render("Exists"), existing)
				return nil
			}
			path, err := config.Save(config.DefaultConfig())
			if err != nil {
				return err
			}
			fmt.Fprintf(app.stdout, "%s %s\n", SuccessStyle.Render("Created"), path)
			return nil
		},
	})

	return cfgCmd
}
