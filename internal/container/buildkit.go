// SPDX-License-Identifier: MPL-2.0

//go:build buildkit

package container

import (
	"context"
	"fmt"
	"io"
	"maps"
	"path/filepath"
	"slices"
	"time"

	"github.com/moby/buildkit/client"
)

func buildkitCompiledIn() bool { return true }

// Available checks that buildkitd answers an info request.
func (e *BuildKitEngine) Available(ctx context.Context) bool {
	_, err := e.Version(ctx)
	return err == nil
}

// Version returns the buildkitd version.
func (e *BuildKitEngine) Version(ctx context.Context) (string, error) {
	c, err := client.New(ctx, e.address)
	if err != nil {
		return "", fmt.Errorf("connect buildkit client at %s: %w", e.address, err)
	}
	defer func() { _ = c.Close() }()

	info, err := c.Info(ctx)
	if err != nil {
		return "", fmt.Errorf("query buildkit at %s: %w", e.address, err)
	}
	return info.BuildkitVersion.Version, nil
}

// Build solves the Dockerfile with the dockerfile.v0 frontend and exports
// the result as an image named opts.Tag. Vertex progress is written to
// opts.Stderr.
func (e *BuildKitEngine) Build(ctx context.Context, opts BuildOptions) error {
	if opts.ContextDir == "" {
		return buildContainerError(e.Name(), opts, fmt.Errorf("no build context directory"))
	}

	dockerfile := opts.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}
	if !filepath.IsAbs(dockerfile) {
		dockerfile = filepath.Join(opts.ContextDir, dockerfile)
	}

	c, err := client.New(ctx, e.address)
	if err != nil {
		return buildContainerError(e.Name(), opts, fmt.Errorf("connect buildkit client at %s: %w", e.address, err))
	}
	defer func() { _ = c.Close() }()

	solveOpt := client.SolveOpt{
		Frontend:      "dockerfile.v0",
		FrontendAttrs: frontendAttrs(filepath.Base(dockerfile), opts),
		LocalDirs: map[string]string{
			"context":    opts.ContextDir,
			"dockerfile": filepath.Dir(dockerfile),
		},
		Exports: []client.ExportEntry{
			{
				Type: client.ExporterImage,
				Attrs: map[string]string{
					"name": opts.Tag,
					"push": "false",
				},
			},
		},
	}

	ch := make(chan *client.SolveStatus)
	done := make(chan struct{})
	go func() {
		defer close(done)
		writeProgress(opts.Stderr, ch)
	}()

	_, err = c.Solve(ctx, nil, solveOpt, ch)
	<-done
	if err != nil {
		return buildContainerError(e.Name(), opts, fmt.Errorf("solve image %s via buildkit: %w", opts.Tag, err))
	}
	return nil
}

func frontendAttrs(filename string, opts BuildOptions) map[string]string {
	attrs := map[string]string{"filename": filename}
	for _, k := range slices.Sorted(maps.Keys(opts.BuildArgs)) {
		attrs["build-arg:"+k] = opts.BuildArgs[k]
	}
	for _, k := range slices.Sorted(maps.Keys(opts.Labels)) {
		attrs["label:"+k] = opts.Labels[k]
	}
	if opts.NoCache {
		attrs["no-cache"] = ""
	}
	return attrs
}

// writeProgress prints each vertex once, when it completes. It drains ch
// until the solver closes it.
func writeProgress(w io.Writer, ch <-chan *client.SolveStatus) {
	seen := make(map[string]bool)
	for status := range ch {
		if w == nil {
			continue
		}
		for _, v := range status.Vertexes {
			if v.Completed == nil || seen[v.Digest.String()] {
				continue
			}
			seen[v.Digest.String()] = true
			switch {
			case v.Error != "":
				fmt.Fprintf(w, "ERROR %s: %s\n", v.Name, v.Error)
			case v.Cached:
				fmt.Fprintf(w, "CACHED %s\n", v.Name)
			case v.Started != nil:
				fmt.Fprintf(w, "DONE %s (%s)\n", v.Name, v.Completed.Sub(*v.Started).Round(time.Millisecond))
			default:
				fmt.Fprintf(w, "DONE %s\n", v.Name)
			}
		}
	}
}
