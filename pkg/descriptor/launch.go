// SPDX-License-Identifier: MPL-2.0

package descriptor

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/berthbuild/berth/pkg/types"
)

// ErrInvalidLaunch is the sentinel error wrapped by InvalidLaunchError.
var ErrInvalidLaunch = errors.New("invalid launch command")

var plainWord = regexp.MustCompile(`^[A-Za-z0-9_./:=@%+,-]+$`)

type (
	// Launch is the process entry point. It is rendered as one shell
	// string so that the port variable is read when the container starts.
	Launch struct {
		// Program is the ASGI server executable.
		Program string `json:"program"`
		// AppRef is the "module:attribute" application object reference.
		AppRef string `json:"app"`
		// Host is the bind address.
		Host string `json:"host"`
		// PortEnv is the variable the hosting platform sets.
		PortEnv EnvName `json:"port_env"`
		// DefaultPort is used when PortEnv is unset or empty.
		DefaultPort types.Port `json:"default_port"`
		// ExtraArgs are appended after the port flag, shell-quoted.
		ExtraArgs []string `json:"extra_args,omitempty"`
	}

	// InvalidLaunchError is returned when a launch field cannot be rendered.
	InvalidLaunchError struct {
		Field  string
		Reason string
	}
)

// DefaultLaunch returns "uvicorn src.main:app --host 0.0.0.0 --port ${PORT:-8000}".
func DefaultLaunch() Launch {
	return Launch{
		Program:     DefaultProgram,
		AppRef:      DefaultAppRef,
		Host:        DefaultHost,
		PortEnv:     DefaultPortEnv,
		DefaultPort: DefaultPort,
	}
}

// PortExpr is the shell parameter expansion that picks the port at start
// time, e.g. "${PORT:-8000}".
func (l Launch) PortExpr() string {
	return fmt.Sprintf("${%s:-%d}", l.PortEnv, l.DefaultPort)
}

// CommandLine renders the launch string. Every word except the port
// expansion is a literal.
func (l Launch) CommandLine() string {
	words := []string{
		shellWord(l.Program),
		shellWord(l.AppRef),
		"--host", shellWord(l.Host),
		"--port", l.PortExpr(),
	}
	for _, arg := range l.ExtraArgs {
		words = append(words, shellWord(arg))
	}
	return strings.Join(words, " ")
}

// Validate checks that every field renders to a single literal word.
func (l Launch) Validate() []error {
	var errs []error
	words := []struct{ field, value string }{
		{"program", l.Program},
		{"app", l.AppRef},
		{"host", l.Host},
	}
	for _, w := range words {
		if !plainWord.MatchString(w.value) {
			errs = append(errs, &InvalidLaunchError{Field: w.field, Reason: fmt.Sprintf("%q is not a plain word", w.value)})
		}
	}
	if !strings.Contains(l.AppRef, ":") {
		errs = append(errs, &InvalidLaunchError{Field: "app", Reason: "expected module:attribute"})
	}
	if err := l.PortEnv.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := l.DefaultPort.Validate(); err != nil {
		errs = append(errs, err)
	}
	for i, arg := range l.ExtraArgs {
		if hasControl(arg) {
			errs = append(errs, &InvalidLaunchError{Field: fmt.Sprintf("extra_args[%d]", i), Reason: "contains control characters"})
		}
	}
	return errs
}

// Error implements the error interface.
func (e *InvalidLaunchError) Error() string {
	return fmt.Sprintf("launch.%s: %s", e.Field, e.Reason)
}

// Unwrap returns ErrInvalidLaunch for errors.Is() compatibility.
func (e *InvalidLaunchError) Unwrap() error { return ErrInvalidLaunch }

// shellWord returns s unchanged when it needs no quoting, else a POSIX
// single-quoted form.
func shellWord(s string) string {
	if plainWord.MatchString(s) {
		return s
	}
	q, err := syntax.Quote(s, syntax.LangPOSIX)
	if err != nil {
		// Only invalid UTF-8 and NUL fail; Validate reports those.
		return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
	}
	return q
}
