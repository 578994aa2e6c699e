// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/berthbuild/berth/pkg/types"
)

const (
	EngineTypePodman   EngineType = "podman"
	EngineTypeDocker   EngineType = "docker"
	EngineTypeBuildKit EngineType = "buildkit"
)

var (
	// ErrEngineNotAvailable is the sentinel error wrapped by EngineNotAvailableError.
	ErrEngineNotAvailable = errors.New("container engine not available")

	// ErrUnknownEngineType is the sentinel error wrapped by UnknownEngineTypeError.
	ErrUnknownEngineType = errors.New("unknown container engine type")

	// ErrRunUnsupported is returned by engines that can build images but not
	// run containers.
	ErrRunUnsupported = errors.New("engine cannot run containers")
)

type (
	// Engine builds images and runs containers.
	Engine interface {
		// Name returns the engine name (docker, podman or buildkit)
		Name() string
		// Available checks if the engine is usable on this system
		Available(ctx context.Context) bool
		// Version returns the engine version
		Version(ctx context.Context) (string, error)

		// Build builds an image from a Dockerfile
		Build(ctx context.Context, opts BuildOptions) error
		// Run runs a container in the foreground until it exits
		Run(ctx context.Context, opts RunOptions) (*RunResult, error)
		// ImageExists checks if an image exists
		ImageExists(ctx context.Context, image string) (bool, error)
		// RemoveImage removes an image
		RemoveImage(ctx context.Context, image string, force bool) error
	}

	// BuildOptions contains options for building an image.
	BuildOptions struct {
		// ContextDir is the build context directory
		ContextDir string
		// Dockerfile is the path to the Dockerfile (relative to ContextDir)
		Dockerfile string
		// Tag is the image tag
		Tag string
		// BuildArgs are build-time variables
		BuildArgs map[string]string
		// Labels are added to the image config on top of any LABEL instructions
		Labels map[string]string
		// NoCache disables the build cache
		NoCache bool
		// Stdout is where to write build output
		Stdout io.Writer
		// Stderr is where to write build errors
		Stderr io.Writer
	}

	// RunOptions contains options for running a container.
	RunOptions struct {
		// Image is the image to run
		Image string
		// Name is the container name
		Name string
		// Env contains environment variables
		Env map[string]string
		// Ports are published ports
		Ports []PortMapping
		// Remove automatically removes the container after exit
		Remove bool
		// Stdout is where to write standard output
		Stdout io.Writer
		// Stderr is where to write standard error
		Stderr io.Writer
	}

	// RunResult contains the result of running a container.
	RunResult struct {
		// ExitCode is the exit code of the container's main process, or of
		// the engine CLI when the container never started.
		ExitCode types.ExitCode
		// Error is set when the engine could not be executed at all
		Error error
	}

	// EngineType identifies the container engine type.
	EngineType string

	// EngineNotAvailableError is returned when no usable engine is found.
	EngineNotAvailableError struct {
		Engine string
		Reason string
	}

	// UnknownEngineTypeError is returned for an engine type that is not
	// docker, podman or buildkit.
	UnknownEngineTypeError struct {
		Value EngineType
	}
)

// String returns the engine type name.
func (t EngineType) String() string { return string(t) }

// Validate returns an error if the type is not a known engine.
func (t EngineType) Validate() error {
	switch t {
	case EngineTypeDocker, EngineTypePodman, EngineTypeBuildKit:
		return nil
	default:
		return &UnknownEngineTypeError{Value: t}
	}
}

func (e *EngineNotAvailableError) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

// Unwrap returns ErrEngineNotAvailable for errors.Is() compatibility.
func (e *EngineNotAvailableError) Unwrap() error { return ErrEngineNotAvailable }

func (e *UnknownEngineTypeError) Error() string {
	return fmt.Sprintf("unknown container engine type %q (valid: docker, podman, buildkit)", e.Value)
}

// Unwrap returns ErrUnknownEngineType for errors.Is() compatibility.
func (e *UnknownEngineTypeError) Unwrap() error { return ErrUnknownEngineType }

// NewEngine returns the preferred engine, falling back from docker to
// podman and vice versa. BuildKit has no fallback. The options configure the
// CLI engines.
func NewEngine(ctx context.Context, preferredType EngineType, buildkitAddr string, opts ...BaseCLIEngineOption) (Engine, error) {
	switch preferredType {
	case EngineTypePodman:
		if engine := NewPodmanEngine(opts...); engine.Available(ctx) {
			return engine, nil
		}
		if engine := NewDockerEngine(opts...); engine.Available(ctx) {
			return engine, nil
		}
		return nil, &EngineNotAvailableError{
			Engine: "podman",
			Reason: "podman is not installed or not accessible, and docker fallback is also not available",
		}

	case EngineTypeDocker:
		if engine := NewDockerEngine(opts...); engine.Available(ctx) {
			return engine, nil
		}
		if engine := NewPodmanEngine(opts...); engine.Available(ctx) {
			return engine, nil
		}
		return nil, &EngineNotAvailableError{
			Engine: "docker",
			Reason: "docker is not installed or not accessible, and podman fallback is also not available",
		}

	case EngineTypeBuildKit:
		engine := NewBuildKitEngine(buildkitAddr)
		if !engine.Available(ctx) {
			return nil, &EngineNotAvailableError{
				Engine: "buildkit",
				Reason: "buildkitd is not reachable at " + engine.Address(),
			}
		}
		return engine, nil

	default:
		return nil, &UnknownEngineTypeError{Value: preferredType}
	}
}

// AutoDetectEngine tries podman first and then docker.
func AutoDetectEngine(ctx context.Context, opts ...BaseCLIEngineOption) (Engine, error) {
	if podman := NewPodmanEngine(opts...); podman.Available(ctx) {
		return podman, nil
	}
	if docker := NewDockerEngine(opts...); docker.Available(ctx) {
		return docker, nil
	}
	return nil, &EngineNotAvailableError{
		Engine: "any",
		Reason: "no container engine (podman or docker) is available on this system",
	}
}
