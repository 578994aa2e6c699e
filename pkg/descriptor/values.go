// SPDX-License-Identifier: MPL-2.0

package descriptor

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/distribution/reference"
)

var (
	// ErrInvalidImageRef is the sentinel error wrapped by InvalidImageRefError.
	ErrInvalidImageRef = errors.New("invalid image reference")

	// ErrInvalidContainerPath is the sentinel error wrapped by InvalidContainerPathError.
	ErrInvalidContainerPath = errors.New("invalid container path")

	// ErrInvalidEnvName is the sentinel error wrapped by InvalidEnvNameError.
	ErrInvalidEnvName = errors.New("invalid environment variable name")

	// ErrInvalidRelPath is the sentinel error wrapped by InvalidRelPathError.
	ErrInvalidRelPath = errors.New("invalid project-relative path")

	envNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

type (
	// ImageRef is a container image reference such as "python:3.11-slim".
	// It must parse as a normalized reference and carry a tag or digest so
	// the base layer is pinned.
	ImageRef string

	// InvalidImageRefError is returned when an ImageRef does not parse or is untagged.
	InvalidImageRefError struct {
		Value  ImageRef
		Reason string
	}

	// ContainerPath is an absolute, clean path inside the image.
	ContainerPath string

	// InvalidContainerPathError is returned when a ContainerPath is relative,
	// not clean, or contains control characters.
	InvalidContainerPathError struct {
		Value ContainerPath
	}

	// EnvName is an environment variable name.
	EnvName string

	// InvalidEnvNameError is returned when an EnvName is not a valid identifier.
	InvalidEnvNameError struct {
		Value EnvName
	}

	// InvalidRelPathError is returned when a project-relative path is empty,
	// absolute, or climbs out of the project root.
	InvalidRelPathError struct {
		Field string
		Value string
	}
)

// String returns the reference text.
func (r ImageRef) String() string { return string(r) }

// Validate checks that the reference parses and is pinned by tag or digest.
func (r ImageRef) Validate() error {
	named, err := reference.ParseNormalizedNamed(string(r))
	if err != nil {
		return &InvalidImageRefError{Value: r, Reason: err.Error()}
	}
	_, tagged := named.(reference.Tagged)
	_, digested := named.(reference.Digested)
	if !tagged && !digested {
		return &InvalidImageRefError{Value: r, Reason: "missing tag or digest"}
	}
	return nil
}

// Error implements the error interface.
func (e *InvalidImageRefError) Error() string {
	return fmt.Sprintf("invalid image reference %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidImageRef for errors.Is() compatibility.
func (e *InvalidImageRefError) Unwrap() error { return ErrInvalidImageRef }

// String returns the path text.
func (p ContainerPath) String() string { return string(p) }

// Validate checks that the path is absolute and already clean.
func (p ContainerPath) Validate() error {
	s := string(p)
	if !strings.HasPrefix(s, "/") || path.Clean(s) != s || hasControl(s) {
		return &InvalidContainerPathError{Value: p}
	}
	return nil
}

// Error implements the error interface.
func (e *InvalidContainerPathError) Error() string {
	return fmt.Sprintf("invalid container path %q: must be absolute and clean", e.Value)
}

// Unwrap returns ErrInvalidContainerPath for errors.Is() compatibility.
func (e *InvalidContainerPathError) Unwrap() error { return ErrInvalidContainerPath }

// String returns the name.
func (n EnvName) String() string { return string(n) }

// Validate checks the name against [A-Za-z_][A-Za-z0-9_]*.
func (n EnvName) Validate() error {
	if !envNamePattern.MatchString(string(n)) {
		return &InvalidEnvNameError{Value: n}
	}
	return nil
}

// Error implements the error interface.
func (e *InvalidEnvNameError) Error() string {
	return fmt.Sprintf("invalid environment variable name %q", e.Value)
}

// Unwrap returns ErrInvalidEnvName for errors.Is() compatibility.
func (e *InvalidEnvNameError) Unwrap() error { return ErrInvalidEnvName }

// validateRelPath checks a path that is resolved against the project root.
func validateRelPath(field, p string) error {
	clean := path.Clean(p)
	if p == "" || path.IsAbs(p) || clean == ".." || strings.HasPrefix(clean, "../") || hasControl(p) {
		return &InvalidRelPathError{Field: field, Value: p}
	}
	return nil
}

// Error implements the error interface.
func (e *InvalidRelPathError) Error() string {
	return fmt.Sprintf("%s: invalid path %q: must be relative to the project root", e.Field, e.Value)
}

// Unwrap returns ErrInvalidRelPath for errors.Is() compatibility.
func (e *InvalidRelPathError) Unwrap() error { return ErrInvalidRelPath }

func hasControl(s string) bool {
	return strings.ContainsAny(s, "\n\r\t\x00")
}
