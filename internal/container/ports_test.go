// SPDX-License-Identifier: MPL-2.0

package container

import (
	"errors"
	"testing"

	"github.com/berthbuild/berth/pkg/types"
)

func TestParsePortMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    PortMapping
		wantErr bool
	}{
		{in: "8080:8000", want: PortMapping{HostPort: 8080, ContainerPort: 8000}},
		{in: "9090", want: PortMapping{HostPort: 9090, ContainerPort: 9090}},
		{in: " 80 : 8000 ", want: PortMapping{HostPort: 80, ContainerPort: 8000}},
		{in: "0:8000", wantErr: true},
		{in: "http:8000", wantErr: true},
		{in: "8080:70000", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParsePortMapping(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPortMapping) || !errors.Is(err, types.ErrInvalidPort) {
					t.Errorf("ParsePortMapping(%q) error = %v", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePortMapping(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParsePortMapping(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
			if got.String() == "" {
				t.Error("String() is empty")
			}
		})
	}
}
