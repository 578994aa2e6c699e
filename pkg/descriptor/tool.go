// SPDX-License-Identifier: MPL-2.0

package descriptor

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedTool is the sentinel error wrapped by UnsupportedToolError.
var ErrUnsupportedTool = errors.New("unsupported dependency tool")

type (
	// DependencyTool is the dependency manager installed into the base image.
	// Only Poetry is supported.
	DependencyTool struct {
		Name    string `json:"name"`
		Version string `json:"version"`
		// InstallArgs are appended to "poetry install".
		InstallArgs []string `json:"install_args,omitempty"`
	}

	// UnsupportedToolError is returned for an unknown tool name or a
	// version that is not a single token.
	UnsupportedToolError struct {
		Name    string
		Version string
	}
)

// DefaultDependencyTool returns Poetry pinned to DefaultToolVersion.
// The project itself is not installed; only its dependencies are.
func DefaultDependencyTool() DependencyTool {
	return DependencyTool{
		Name:        DefaultToolName,
		Version:     DefaultToolVersion,
		InstallArgs: []string{"--no-root", "--no-ansi"},
	}
}

// SetupCommand installs the tool itself with pip, pinned to Version.
func (t DependencyTool) SetupCommand() string {
	return "pip install --no-cache-dir " + shellWord(t.Name+"=="+t.Version)
}

// InstallCommand resolves the locked dependencies and then removes the
// tool's package cache so it does not end up in the layer. Every argument
// and the cache path are shell-quoted.
func (t DependencyTool) InstallCommand(cacheDir string) string {
	words := []string{shellWord(t.Name), "install"}
	for _, arg := range t.InstallArgs {
		words = append(words, shellWord(arg))
	}
	if cacheDir != "" {
		words = append(words, "&&", "rm", "-rf", shellWord(cacheDir))
	}
	return strings.Join(words, " ")
}

// Validate checks the tool name and version.
func (t DependencyTool) Validate() error {
	if t.Name != DefaultToolName || t.Version == "" || strings.ContainsAny(t.Version, " \t\n") || hasControl(t.Version) {
		return &UnsupportedToolError{Name: t.Name, Version: t.Version}
	}
	for _, arg := range t.InstallArgs {
		if hasControl(arg) {
			return &UnsupportedToolError{Name: t.Name, Version: t.Version}
		}
	}
	return nil
}

// Error implements the error interface.
func (e *UnsupportedToolError) Error() string {
	return fmt.Sprintf("unsupported dependency tool %q version %q (supported: %s)", e.Name, e.Version, DefaultToolName)
}

// Unwrap returns ErrUnsupportedTool for errors.Is() compatibility.
func (e *UnsupportedToolError) Unwrap() error { return ErrUnsupportedTool }
