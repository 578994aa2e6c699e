// SPDX-License-Identifier: MPL-2.0

//go:build !buildkit

package container

import "context"

func buildkitCompiledIn() bool { return false }

// Available is always false without the BuildKit client.
func (e *BuildKitEngine) Available(context.Context) bool { return false }

// Version returns ErrBuildKitNotCompiled.
func (e *BuildKitEngine) Version(context.Context) (string, error) {
	return "", ErrBuildKitNotCompiled
}

// Build returns ErrBuildKitNotCompiled wrapped in an actionable error.
func (e *BuildKitEngine) Build(_ context.Context, opts BuildOptions) error {
	return buildContainerError(e.Name(), opts, ErrBuildKitNotCompiled)
}
