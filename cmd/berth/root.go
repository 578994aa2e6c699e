// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for berth.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// NewRootCommand creates the berth command tree bound to app.
func NewRootCommand(app *App) *cobra.Command {
	g := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "berth",
		Short: "Build and launch Python web services as container images",
		Long: TitleStyle.Render("berth") + SubtitleStyle.Render(" - build and launch Python web services") + `

berth turns a Poetry project (pyproject.toml, poetry.lock and an app/
source tree) into a layered container image whose dependency layer is
reused across source edits, and launches the ASGI server on the port
the hosting platform provides in PORT (default 8000).

` + SubtitleStyle.Render("Examples:") + `
  berth plan --since-last    Show which layers a build would execute
  berth build                Build (or reuse) the image
  berth run -p 8080:8000     Build, then run the image locally
  berth launch               Start the server in this environment`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/berth/config.cue)")
	rootCmd.PersistentFlags().StringVarP(&g.projectDir, "project", "C", ".", "project root directory")
	rootCmd.PersistentFlags().StringVar(&g.descriptorPath, "descriptor", "", "descriptor file (default is <project>/berth.cue)")

	rootCmd.AddCommand(
		newBuildCommand(app, g),
		newPlanCommand(app, g),
		newDockerfileCommand(app, g),
		newContextCommand(app, g),
		newRunCommand(app, g),
		newLaunchCommand(app, g),
		newDoctorCommand(app, g),
		newConfigCommand(app, g),
	)

	// Errors are rendered once, after the command returns.
	rootCmd.SetErr(app.stderr)
	rootCmd.SetOut(app.stdout)
	return rootCmd
}

// Execute runs the berth CLI and exits with the command's exit code.
// It is called by main.main().
func Execute() {
	app := NewApp(Dependencies{})
	rootCmd := NewRootCommand(app)

	err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
		fang.WithErrorHandler(func(w io.Writer, _ fang.Styles, err error) {
			verbose, _ := rootCmd.PersistentFlags().GetBool("verbose") //nolint:errcheck // flag is registered above
			renderError(w, err, verbose)
		}),
	)
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(int(exitErr.Code))
		}
		os.Exit(1)
	}
}
