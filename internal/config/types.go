// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	// ContainerEngineDocker builds and runs images with the docker CLI.
	ContainerEngineDocker ContainerEngine = "docker"
	// ContainerEnginePodman builds and runs images with the podman CLI.
	ContainerEnginePodman ContainerEngine = "podman"
	// ContainerEngineBuildKit builds images with a buildkitd daemon.
	// Defined locally to avoid coupling config to internal/container.
	ContainerEngineBuildKit ContainerEngine = "buildkit"

	// DefaultBuildKitAddress is the rootful buildkitd socket.
	DefaultBuildKitAddress = "unix:///run/buildkit/buildkitd.sock"
	// DefaultTagPrefix is the repository part of image tags.
	DefaultTagPrefix = "berth/app"
)

var (
	// ErrInvalidContainerEngine is returned when a ContainerEngine value is not recognized.
	ErrInvalidContainerEngine = errors.New("invalid container engine")
	// ErrInvalidTagPrefix is returned when a tag prefix is not a valid image repository.
	ErrInvalidTagPrefix = errors.New("invalid tag prefix")
	// ErrInvalidBuildKitAddress is returned when a buildkit address has no scheme.
	ErrInvalidBuildKitAddress = errors.New("invalid buildkit address")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")

	tagPrefixPattern = regexp.MustCompile(`^[a-z0-9]+([._/-][a-z0-9]+)*$`)
)

type (
	// ContainerEngine specifies which container engine to use.
	ContainerEngine string

	// InvalidContainerEngineError is returned when a ContainerEngine value is not recognized.
	// It wraps ErrInvalidContainerEngine for errors.Is() compatibility.
	InvalidContainerEngineError struct {
		Value ContainerEngine
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig and collects field-level errors.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// BuildKitConfig configures the buildkit engine.
	BuildKitConfig struct {
		Address string `json:"address" mapstructure:"address"`
	}

	// BuildConfig configures image builds.
	BuildConfig struct {
		// CacheDir holds build records. Empty means the user cache directory.
		CacheDir     string `json:"cache_dir" mapstructure:"cache_dir"`
		TagPrefix    string `json:"tag_prefix" mapstructure:"tag_prefix"`
		Reproducible bool   `json:"reproducible" mapstructure:"reproducible"`
	}

	// UIConfig configures terminal output.
	UIConfig struct {
		Verbose bool `json:"verbose" mapstructure:"verbose"`
	}

	// Config is the effective berth configuration.
	Config struct {
		ContainerEngine ContainerEngine `json:"container_engine" mapstructure:"container_engine"`
		BuildKit        BuildKitConfig  `json:"buildkit" mapstructure:"buildkit"`
		Build           BuildConfig     `json:"build" mapstructure:"build"`
		UI              UIConfig        `json:"ui" mapstructure:"ui"`
	}
)

// DefaultConfig returns the configuration used when no file or override is present.
func DefaultConfig() *Config {
	return &Config{
		ContainerEngine: ContainerEngineDocker,
		BuildKit:        BuildKitConfig{Address: DefaultBuildKitAddress},
		Build:           BuildConfig{TagPrefix: DefaultTagPrefix},
	}
}

// String returns the string representation of the ContainerEngine.
func (ce ContainerEngine) String() string { return string(ce) }

// Validate returns an error if the engine is not docker, podman or buildkit.
func (ce ContainerEngine) Validate() error {
	switch ce {
	case ContainerEngineDocker, ContainerEnginePodman, ContainerEngineBuildKit:
		return nil
	default:
		return &InvalidContainerEngineError{Value: ce}
	}
}

// Error implements the error interface.
func (e *InvalidContainerEngineError) Error() string {
	return fmt.Sprintf("invalid container engine %q (valid: docker, podman, buildkit)", e.Value)
}

// Unwrap returns ErrInvalidContainerEngine for errors.Is() compatibility.
func (e *InvalidContainerEngineError) Unwrap() error { return ErrInvalidContainerEngine }

// Validate checks every field and returns an *InvalidConfigError listing
// all problems, or nil.
func (c *Config) Validate() error {
	var errs []error
	if err := c.ContainerEngine.Validate(); err != nil {
		errs = append(errs, err)
	}
	if addr := c.BuildKit.Address; addr != "" && !strings.Contains(addr, "://") {
		errs = append(errs, fmt.Errorf("%w %q: missing scheme", ErrInvalidBuildKitAddress, addr))
	}
	if !tagPrefixPattern.MatchString(c.Build.TagPrefix) {
		errs = append(errs, fmt.Errorf("%w %q", ErrInvalidTagPrefix, c.Build.TagPrefix))
	}
	if c.Build.CacheDir != "" && strings.TrimSpace(c.Build.CacheDir) == "" {
		errs = append(errs, errors.New("build.cache_dir must not be whitespace-only"))
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return "invalid config: " + strings.Join(msgs, "; ")
}

// Unwrap returns ErrInvalidConfig and the field errors.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}
