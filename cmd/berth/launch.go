// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/berthbuild/berth/internal/issue"
	"github.com/berthbuild/berth/internal/launch"
	"github.com/berthbuild/berth/pkg/types"
)

func newLaunchCommand(app *App, g *globalOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Start the server process with the port from the environment",
		Long: `Start the server process.

The port is read from the launch port variable (PORT by default) when it is
set and non-empty, and falls back to the default port (8000) otherwise. The
process sees the descriptor's environment and module search path and runs
in the source tree (the working directory when launched inside the image).
It runs in the foreground; its exit code becomes berth's exit code.
Interrupt or SIGTERM is forwarded to the process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := app.loadProject(cmd.Context(), g)
			if err != nil {
				return err
			}

			cfg, err := launch.NewConfig(p.descriptor.Launch, os.LookupEnv)
			if err != nil {
				return launchConfigError(p.descriptor.Launch.PortEnv.String(), err)
			}

			if dryRun {
				fmt.Fprintln(app.stdout, strings.Join(cfg.Argv(), " "))
				return nil
			}

			env, dir := launch.Environment(p.root, p.descriptor)
			launcher := launch.NewLauncher(cfg,
				launch.WithOutput(app.stdout, app.stderr),
				launch.WithEnv(env...),
				launch.WithDir(dir),
				launch.WithLogger(app.logger(p, "launch")),
			)
			code, err := launcher.Run(cmd.Context())
			if err != nil {
				return &ExitError{Code: code, Err: err}
			}
			if code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the expanded command instead of running it")
	return cmd
}

func launchConfigError(portEnv string, err error) error {
	if errors.Is(err, types.ErrInvalidPort) {
		return issue.NewErrorContext().
			WithOperation("resolve listening port").
			WithResource(portEnv).
			WithIssue(issue.InvalidPortID).
			WithSuggestion("Set " + portEnv + " to a number in 1-65535, or unset it to use the default port").
			Wrap(err).
			BuildError()
	}
	return issue.NewErrorContext().
		WithOperation("expand launch command").
		WithIssue(issue.DescriptorInvalidID).
		WithSuggestion("The launch command must be a single command without pipes, lists or redirections").
		Wrap(err).
		BuildError()
}
