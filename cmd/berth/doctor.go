// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/berthbuild/berth/internal/buildctx"
	"github.com/berthbuild/berth/pkg/descriptor"
	"github.com/berthbuild/berth/pkg/types"
)

type (
	checkStatus int

	// checkResult is one line of the doctor report.
	checkResult struct {
		name   string
		status checkStatus
		detail string
	}
)

const (
	checkOK checkStatus = iota
	checkWarn
	checkFail
)

func newDoctorCommand(app *App, g *globalOptions) *cobra.Command {
	var skipEngine bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the project and environment before building",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := app.loadProject(cmd.Context(), g)
			if err != nil {
				return err
			}

			results := checkProject(p.root, p.descriptor, os.LookupEnv)
			if !skipEngine {
				results = append(results, app.checkEngine(cmd.Context(), p))
			}

			fmt.Fprintln(app.stdout, TitleStyle.Render("berth doctor"))
			failed := false
			for _, r := range results {
				fmt.Fprintln(app.stdout, r.render())
				failed = failed || r.status == checkFail
			}
			if failed {
				return &ExitError{Code: 1}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipEngine, "skip-engine", false, "do not check the container engine")
	return cmd
}

func (r checkResult) render() string {
	var mark string
	switch r.status {
	case checkOK:
		mark = SuccessStyle.Render("✓")
	case checkWarn:
		mark = WarningStyle.Render("!")
	default:
		mark = ErrorStyle.Render("✗")
	}
	line := fmt.Sprintf("  %s %s", mark, r.name)
	if r.detail != "" {
		line += SubtitleStyle.Render(": " + r.detail)
	}
	return line
}

// checkProject runs the checks that need no container engine. A failed
// descriptor or manifest check stops the source checks, in build order.
func checkProject(root string, d *descriptor.Descriptor, lookup func(string) (string, bool)) []checkResult {
	var results []checkResult

	if err := d.Validate(); err != nil {
		return append(results, checkResult{"descriptor", checkFail, err.Error()})
	}
	results = append(results, checkResult{"descriptor", checkOK, ""})

	pair, err := buildctx.ResolveManifest(root, d)
	if err != nil {
		return append(results, checkResult{"manifest pair", checkFail, err.Error()})
	}
	results = append(results, checkResult{"manifest pair", checkOK,
		fmt.Sprintf("%d locked packages", len(pair.Lock.Packages))})

	in, err := buildctx.Resolve(root, d)
	if err != nil {
		return append(results, checkResult{"application source", checkFail, err.Error()})
	}
	results = append(results, checkResult{"application source", checkOK,
		fmt.Sprintf("%d files", in.Source.Files())})

	results = append(results, checkModulePath(d, in.Source))
	results = append(results, checkPortEnv(d.Launch, lookup))
	return results
}

// checkModulePath warns when the entry module of the launch command is not
// found under the module search path once the source is copied.
func checkModulePath(d *descriptor.Descriptor, tree *buildctx.Tree) checkResult {
	const name = "module search path"

	module, _, _ := strings.Cut(d.Launch.AppRef, ":")
	modulePath := strings.ReplaceAll(module, ".", "/")
	sourceRoot := path.Join(string(d.WorkDir), d.Source.Dest)

	for _, candidate := range []string{modulePath + ".py", modulePath + "/__init__.py"} {
		inImage := path.Join(string(d.ModulePath), candidate)
		rel, ok := strings.CutPrefix(inImage, sourceRoot+"/")
		if !ok {
			continue
		}
		if slices.ContainsFunc(tree.Entries, func(e buildctx.Entry) bool { return e.Path == rel }) {
			return checkResult{name, checkOK, fmt.Sprintf("%s resolves to %s", module, inImage)}
		}
	}
	return checkResult{name, checkWarn, fmt.Sprintf("%s not found under %s; the server will fail to import it",
		module, d.ModulePath)}
}

func checkPortEnv(l descriptor.Launch, lookup func(string) (string, bool)) checkResult {
	name := "port (" + l.PortEnv.String() + ")"
	raw, ok := lookup(l.PortEnv.String())
	if !ok || raw == "" {
		return checkResult{name, checkOK, fmt.Sprintf("unset, default %d", l.DefaultPort)}
	}
	if _, err := types.ParsePort(raw); err != nil {
		return checkResult{name, checkFail, err.Error()}
	}
	return checkResult{name, checkOK, raw}
}

func (app *App) checkEngine(ctx context.Context, p *project) checkResult {
	const name = "container engine"
	engine, err := app.Engines(ctx, p.config)
	if err != nil {
		return checkResult{name, checkFail, err.Error()}
	}
	version, err := engine.Version(ctx)
	if err != nil {
		return checkResult{name, checkWarn, fmt.Sprintf("%s: %v", engine.Name(), err)}
	}
	return checkResult{name, checkOK, engine.Name() + " " + version}
}
