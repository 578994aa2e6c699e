// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidPort is the sentinel error wrapped by InvalidPortError.
var ErrInvalidPort = errors.New("invalid port")

type (
	// Port is a TCP port a server binds to. Valid values are 1-65535;
	// the zero value is invalid because a service always binds somewhere.
	Port int

	// InvalidPortError is returned when a port is out of range or when a
	// textual port cannot be parsed as a decimal integer.
	InvalidPortError struct {
		// Raw is the original text when the port came from a string.
		Raw   string
		Value Port
	}
)

// ParsePort parses a decimal port number. Surrounding whitespace is ignored.
func ParsePort(s string) (Port, error) {
	trimmed := strings.TrimSpace(s)
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, &InvalidPortError{Raw: s}
	}
	p := Port(n)
	if err := p.Validate(); err != nil {
		return 0, &InvalidPortError{Raw: s, Value: p}
	}
	return p, nil
}

// String returns the decimal string representation of the Port.
func (p Port) String() string { return strconv.Itoa(int(p)) }

// Validate returns an error if the port is outside 1-65535.
func (p Port) Validate() error {
	if p < 1 || p > 65535 {
		return &InvalidPortError{Value: p}
	}
	return nil
}

// Error implements the error interface for InvalidPortError.
func (e *InvalidPortError) Error() string {
	if e.Raw != "" {
		return fmt.Sprintf("invalid port %q: must be a decimal integer in 1-65535", e.Raw)
	}
	return fmt.Sprintf("invalid port %d: must be in 1-65535", e.Value)
}

// Unwrap returns ErrInvalidPort for errors.Is() compatibility.
func (e *InvalidPortError) Unwrap() error { return ErrInvalidPort }
