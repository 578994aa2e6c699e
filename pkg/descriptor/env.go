// SPDX-License-Identifier: MPL-2.0

package descriptor

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrInvalidEnvValue is the sentinel error wrapped by InvalidEnvValueError.
var ErrInvalidEnvValue = errors.New("invalid environment variable value")

type (
	// EnvSet maps variable names to values. Iteration order is never used
	// directly; Sorted gives the order used for rendering and hashing.
	EnvSet map[string]string

	// EnvVar is one name/value pair.
	EnvVar struct {
		Name  EnvName
		Value string
	}

	// InvalidEnvValueError is returned when a value cannot be written on a
	// single Dockerfile line.
	InvalidEnvValueError struct {
		Name EnvName
	}
)

// Sorted returns the variables ordered by name.
func (s EnvSet) Sorted() []EnvVar {
	vars := make([]EnvVar, 0, len(s))
	for k, v := range s {
		vars = append(vars, EnvVar{Name: EnvName(k), Value: v})
	}
	slices.SortFunc(vars, func(a, b EnvVar) int { return strings.Compare(string(a.Name), string(b.Name)) })
	return vars
}

// Validate checks every name and value.
func (s EnvSet) Validate() []error {
	var errs []error
	for _, v := range s.Sorted() {
		if err := v.Name.Validate(); err != nil {
			errs = append(errs, err)
		}
		if hasControl(v.Value) {
			errs = append(errs, &InvalidEnvValueError{Name: v.Name})
		}
	}
	return errs
}

// Environ returns the set as NAME=value strings, sorted by name.
func (s EnvSet) Environ() []string {
	out := make([]string, 0, len(s))
	for _, v := range s.Sorted() {
		out = append(out, string(v.Name)+"="+v.Value)
	}
	return out
}

// Error implements the error interface.
func (e *InvalidEnvValueError) Error() string {
	return fmt.Sprintf("invalid value for %s: must not contain newlines, tabs or NUL", e.Name)
}

// Unwrap returns ErrInvalidEnvValue for errors.Is() compatibility.
func (e *InvalidEnvValueError) Unwrap() error { return ErrInvalidEnvValue }
