// SPDX-License-Identifier: MPL-2.0

package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"os/exec"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/berthbuild/berth/internal/issue"
	"github.com/berthbuild/berth/pkg/types"
)

// runStopGrace is how long a foreground run may take to exit after the
// context is cancelled and SIGTERM has been forwarded to the CLI.
const runStopGrace = 10 * time.Second

type (
	// ExecCommandFunc is the function signature for creating exec.Cmd.
	// This allows injection of mock implementations for testing.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// BaseCLIEngineOption configures a BaseCLIEngine.
	BaseCLIEngineOption func(*BaseCLIEngine)

	// BaseCLIEngine provides common implementation for CLI-based container engines.
	// Docker and Podman engines embed this struct; engine-specific methods
	// (Name, Available, Version, ImageExists) remain on the concrete types.
	BaseCLIEngine struct {
		name        string
		binaryPath  string
		execCommand ExecCommandFunc
	}
)

// WithName sets the engine name used in error messages.
func WithName(name string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.name = name
	}
}

// WithExecCommand sets a custom exec command function for testing.
func WithExecCommand(fn ExecCommandFunc) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.execCommand = fn
	}
}

// WithBinaryPath overrides the binary found on PATH.
func WithBinaryPath(path string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.binaryPath = path
	}
}

// NewBaseCLIEngine creates a new base engine with the given binary path.
func NewBaseCLIEngine(binaryPath string, opts ...BaseCLIEngineOption) *BaseCLIEngine {
	e := &BaseCLIEngine{
		binaryPath:  binaryPath,
		execCommand: exec.CommandContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BinaryPath returns the path to the container engine binary.
func (e *BaseCLIEngine) BinaryPath() string {
	return e.binaryPath
}

// BuildArgs constructs arguments for a build command. Build args and labels
// are emitted in key order so identical options give identical argv.
//
// Generated command: <binary> build [options] <context>
func (e *BaseCLIEngine) BuildArgs(opts BuildOptions) []string {
	args := []string{"build"}

	if opts.Dockerfile != "" {
		dockerfilePath := opts.Dockerfile
		if !filepath.IsAbs(dockerfilePath) && opts.ContextDir != "" {
			dockerfilePath = filepath.Join(opts.ContextDir, dockerfilePath)
		}
		args = append(args, "-f", dockerfilePath)
	}

	if opts.Tag != "" {
		args = append(args, "-t", opts.Tag)
	}

	if opts.NoCache {
		args = append(args, "--no-cache")
	}

	for _, k := range slices.Sorted(maps.Keys(opts.BuildArgs)) {
		args = append(args, "--build-arg", k+"="+opts.BuildArgs[k])
	}

	for _, k := range slices.Sorted(maps.Keys(opts.Labels)) {
		args = append(args, "--label", k+"="+opts.Labels[k])
	}

	args = append(args, opts.ContextDir)

	return args
}

// RunArgs constructs arguments for a run command.
//
// Generated command: <binary> run [options] <image>
func (e *BaseCLIEngine) RunArgs(opts RunOptions) []string {
	args := []string{"run"}

	if opts.Remove {
		args = append(args, "--rm")
	}

	if opts.Name != "" {
		args = append(args, "--name", opts.Name)
	}

	for _, k := range slices.Sorted(maps.Keys(opts.Env)) {
		args = append(args, "-e", k+"="+opts.Env[k])
	}

	for _, p := range opts.Ports {
		args = append(args, "-p", p.String())
	}

	return append(args, opts.Image)
}

// RemoveImageArgs constructs arguments for an image remove command.
func (e *BaseCLIEngine) RemoveImageArgs(image string, force bool) []string {
	args := []string{"rmi"}
	if force {
		args = append(args, "-f")
	}
	return append(args, image)
}

// CreateCommand creates an exec.Cmd for the given arguments.
func (e *BaseCLIEngine) CreateCommand(ctx context.Context, args ...string) *exec.Cmd {
	return e.execCommand(ctx, e.binaryPath, args...)
}

// RunCommandStatus executes a command and returns only the error status.
func (e *BaseCLIEngine) RunCommandStatus(ctx context.Context, args ...string) error {
	cmd := e.CreateCommand(ctx, args...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("command %s %v failed: %w", e.binaryPath, args, err)
	}
	return nil
}

// RunCommandWithOutput executes a command with stdout captured to a buffer.
func (e *BaseCLIEngine) RunCommandWithOutput(ctx context.Context, args ...string) (string, error) {
	cmd := e.CreateCommand(ctx, args...)
	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("command %s %v failed: %w", e.binaryPath, args, err)
	}

	return out.String(), nil
}

// Build builds an image from a Dockerfile. The CLI output is streamed to the
// option writers.
func (e *BaseCLIEngine) Build(ctx context.Context, opts BuildOptions) error {
	if opts.ContextDir == "" {
		return buildContainerError(e.name, opts, errors.New("no build context directory"))
	}

	cmd := e.CreateCommand(ctx, e.BuildArgs(opts)...)
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	if err := cmd.Run(); err != nil {
		return buildContainerError(e.name, opts, err)
	}

	return nil
}

// Run runs a container in the foreground and returns its exit code.
// A non-zero exit code is captured in RunResult.ExitCode (not returned as
// error). A CLI killed by a signal reports 128 plus the signal number.
// Only failures to start the CLI set RunResult.Error. Cancelling ctx
// forwards SIGTERM to the CLI, which proxies it to the container.
func (e *BaseCLIEngine) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	for _, p := range opts.Ports {
		if err := p.Validate(); err != nil {
			return nil, runContainerError(e.name, opts, err)
		}
	}

	cmd := e.CreateCommand(ctx, e.RunArgs(opts)...)
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = runStopGrace

	err := cmd.Run()

	// A CLI that ran has a ProcessState even when err is ctx.Err() after a
	// cancellation it handled cleanly.
	result := &RunResult{}
	switch {
	case cmd.ProcessState != nil:
		result.ExitCode = types.FromProcessState(cmd.ProcessState)
	case err != nil:
		result.ExitCode = 1
		result.Error = runContainerError(e.name, opts, err)
	}

	return result, nil
}

// RemoveImage removes an image.
func (e *BaseCLIEngine) RemoveImage(ctx context.Context, image string, force bool) error {
	return e.RunCommandStatus(ctx, e.RemoveImageArgs(image, force)...)
}

// buildContainerError creates an actionable error for image build failures.
func buildContainerError(engine string, opts BuildOptions, cause error) error {
	ctx := issue.NewErrorContext().
		WithOperation("build container image").
		WithIssue(issue.ImageBuildFailedID)

	switch {
	case opts.Tag != "":
		ctx.WithResource(opts.Tag)
	case opts.ContextDir != "":
		ctx.WithResource(opts.ContextDir)
	}

	ctx.WithSuggestion("Check the build output above for the failing step")
	ctx.WithSuggestion("Regenerate the lock file if dependency installation failed (try: poetry lock)")
	ctx.WithSuggestion("Ensure the base image is available (try: " + engine + " pull <base-image>)")

	return ctx.Wrap(cause).BuildError()
}

// runContainerError creates an actionable error for container run failures.
func runContainerError(engine string, opts RunOptions, cause error) error {
	ctx := issue.NewErrorContext().
		WithOperation("run container").
		WithResource(opts.Image).
		WithIssue(issue.LaunchFailedID)

	ctx.WithSuggestion("Verify the image exists (try: " + engine + " images)")
	ctx.WithSuggestion("Ensure port mappings don't conflict with running services")

	return ctx.Wrap(cause).BuildError()
}
