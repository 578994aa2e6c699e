// SPDX-License-Identifier: MPL-2.0

package container

import (
	"errors"
	"fmt"
	"strings"

	"github.com/berthbuild/berth/pkg/types"
)

// ErrInvalidPortMapping is the sentinel error wrapped by InvalidPortMappingError.
var ErrInvalidPortMapping = errors.New("invalid port mapping")

type (
	// PortMapping publishes a container TCP port on the host.
	PortMapping struct {
		HostPort      types.Port
		ContainerPort types.Port
	}

	// InvalidPortMappingError is returned when a mapping cannot be parsed.
	InvalidPortMappingError struct {
		Value string
		Err   error
	}
)

// ParsePortMapping parses "host:container" or a bare "port", which publishes
// the same port on both sides.
func ParsePortMapping(s string) (PortMapping, error) {
	hostPart, containerPart, found := strings.Cut(s, ":")
	if !found {
		containerPart = hostPart
	}

	host, err := types.ParsePort(hostPart)
	if err != nil {
		return PortMapping{}, &InvalidPortMappingError{Value: s, Err: err}
	}
	ctr, err := types.ParsePort(containerPart)
	if err != nil {
		return PortMapping{}, &InvalidPortMappingError{Value: s, Err: err}
	}
	return PortMapping{HostPort: host, ContainerPort: ctr}, nil
}

// String returns the mapping in "host:container" format for the -p flag.
func (p PortMapping) String() string {
	return fmt.Sprintf("%d:%d", p.HostPort, p.ContainerPort)
}

// Validate returns an error if either port is out of range.
func (p PortMapping) Validate() error {
	return errors.Join(p.HostPort.Validate(), p.ContainerPort.Validate())
}

// Error implements the error interface.
func (e *InvalidPortMappingError) Error() string {
	return fmt.Sprintf("invalid port mapping %q (want host:container): %v", e.Value, e.Err)
}

// Unwrap returns ErrInvalidPortMapping and the port error.
func (e *InvalidPortMappingError) Unwrap() []error { return []error{ErrInvalidPortMapping, e.Err} }
