// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/berthbuild/berth/internal/container"
	"github.com/berthbuild/berth/internal/issue"
	"github.com/berthbuild/berth/pkg/descriptor"
	"github.com/berthbuild/berth/pkg/types"
)

func newRunCommand(app *App, g *globalOptions) *cobra.Command {
	flags := &buildFlags{}
	var (
		publish []string
		envVars []string
		name    string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build the image, then run it in the foreground",
		Long: `Build the image (or reuse it), then run it in the foreground.

The container's exit code becomes berth's exit code. Pass -e PORT=<n> to
simulate a hosting platform that assigns the port; without -p the
container port is published on the same host port.`,
		Example: `  berth run
  berth run -e PORT=9000 -p 8080:9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			p, err := app.loadProject(ctx, g)
			if err != nil {
				return err
			}

			env, err := parseEnvVars(envVars)
			if err != nil {
				return err
			}
			port, err := containerPort(p.descriptor.Launch, env)
			if err != nil {
				return err
			}
			ports, err := parsePublish(publish, port)
			if err != nil {
				return err
			}

			engine, err := app.engine(ctx, p)
			if err != nil {
				return err
			}
			res, err := app.buildImage(ctx, p, engine, flags)
			if err != nil {
				return err
			}

			app.logger(p, "run").Info("starting container", "image", res.Tag, "port", port)
			result, err := engine.Run(ctx, container.RunOptions{
				Image:  res.Tag,
				Name:   name,
				Env:    env,
				Ports:  ports,
				Remove: true,
				Stdout: app.stdout,
				Stderr: app.stderr,
			})
			if err != nil {
				return err
			}
			if result.Error != nil {
				return &ExitError{Code: result.ExitCode, Err: result.Error}
			}
			if result.ExitCode != 0 {
				return &ExitError{Code: result.ExitCode}
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringArrayVarP(&publish, "publish", "p", nil, "publish a container port (host:container or port)")
	cmd.Flags().StringArrayVarP(&envVars, "env", "e", nil, "set a container environment variable (NAME=value)")
	cmd.Flags().StringVar(&name, "name", "", "container name")
	return cmd
}

func parseEnvVars(pairs []string) (map[string]string, error) {
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --env %q: expected NAME=value", pair)
		}
		if err := descriptor.EnvName(k).Validate(); err != nil {
			return nil, err
		}
		env[k] = v
	}
	return env, nil
}

// containerPort returns the port the server will bind inside the container:
// the port variable from env when set and non-empty, else the default.
func containerPort(l descriptor.Launch, env map[string]string) (types.Port, error) {
	raw, ok := env[string(l.PortEnv)]
	if !ok || raw == "" {
		return l.DefaultPort, nil
	}
	port, err := types.ParsePort(raw)
	if err != nil {
		return 0, issue.NewErrorContext().
			WithOperation("resolve container port").
			WithResource(string(l.PortEnv)).
			WithIssue(issue.InvalidPortID).
			WithSuggestion(fmt.Sprintf("Pass -e %s=<1-65535>, or omit it to use %d", l.PortEnv, l.DefaultPort)).
			Wrap(err).
			BuildError()
	}
	return port, nil
}

func parsePublish(specs []string, port types.Port) ([]container.PortMapping, error) {
	if len(specs) == 0 {
		return []container.PortMapping{{HostPort: port, ContainerPort: port}}, nil
	}
	ports := make([]container.PortMapping, 0, len(specs))
	for _, s := range specs {
		pm, err := container.ParsePortMapping(s)
		if err != nil {
			return nil, err
		}
		ports = append(ports, pm)
	}
	return ports, nil
}
