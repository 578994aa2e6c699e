// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"strings"
)

// DefaultBuildKitAddress is the buildkitd socket used when none is configured.
const DefaultBuildKitAddress = "unix:///run/buildkit/buildkitd.sock"

// ErrBuildKitNotCompiled is returned by the BuildKit engine in binaries built
// without the "buildkit" tag.
var ErrBuildKitNotCompiled = errors.New("buildkit support not compiled in (rebuild with -tags buildkit)")

// BuildKitEngine builds images by talking to buildkitd directly. It can
// build and export images but cannot run them.
type BuildKitEngine struct {
	address string
}

// NewBuildKitEngine returns an engine for the buildkitd at address, or at
// DefaultBuildKitAddress when address is blank.
func NewBuildKitEngine(address string) *BuildKitEngine {
	address = strings.TrimSpace(address)
	if address == "" {
		address = DefaultBuildKitAddress
	}
	return &BuildKitEngine{address: address}
}

// Name returns the engine name.
func (e *BuildKitEngine) Name() string { return string(EngineTypeBuildKit) }

// Address returns the buildkitd address.
func (e *BuildKitEngine) Address() string { return e.address }

// CompiledIn reports whether this binary carries the BuildKit client.
func (e *BuildKitEngine) CompiledIn() bool { return buildkitCompiledIn() }

// Run is not supported: images exported by buildkitd are run with docker
// or podman.
func (e *BuildKitEngine) Run(context.Context, RunOptions) (*RunResult, error) {
	return nil, ErrRunUnsupported
}

// ImageExists always reports false; buildkitd keeps no queryable image
// store, so every build goes through the solver and its own cache.
func (e *BuildKitEngine) ImageExists(context.Context, string) (bool, error) {
	return false, nil
}

// RemoveImage is not supported.
func (e *BuildKitEngine) RemoveImage(context.Context, string, bool) error {
	return ErrRunUnsupported
}
