// SPDX-License-Identifier: MPL-2.0

package descriptor

import (
	_ "embed"
	"fmt"
	"maps"
	"os"

	"github.com/berthbuild/berth/pkg/cueutil"
	"github.com/berthbuild/berth/pkg/types"
)

// FileName is the project file berth looks for at the project root.
const FileName = "berth.cue"

//go:embed descriptor_schema.cue
var schema []byte

// file mirrors the schema: every field optional so that absent fields keep
// their defaults.
type file struct {
	BaseImage *string `json:"base_image"`
	Tool      *struct {
		Name        *string  `json:"name"`
		Version     *string  `json:"version"`
		InstallArgs []string `json:"install_args"`
	} `json:"dependency_tool"`
	Manifest *struct {
		SpecFile *string `json:"spec_file"`
		LockFile *string `json:"lock_file"`
	} `json:"manifest"`
	Env     map[string]string `json:"env"`
	WorkDir *string           `json:"workdir"`
	Source  *struct {
		Path *string `json:"path"`
		Dest *string `json:"dest"`
	} `json:"source"`
	ModulePath *string `json:"module_path"`
	Launch     *struct {
		Program     *string  `json:"program"`
		AppRef      *string  `json:"app"`
		Host        *string  `json:"host"`
		PortEnv     *string  `json:"port_env"`
		DefaultPort *int     `json:"default_port"`
		ExtraArgs   []string `json:"extra_args"`
	} `json:"launch"`
	Labels map[string]string `json:"labels"`
}

// Load reads a berth.cue file, validates it against the schema, overlays it
// on Default and validates the result.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}
	return Parse(data, path)
}

// LoadOrDefault loads path when it exists and returns Default otherwise.
func LoadOrDefault(path string) (d *Descriptor, fromFile bool, err error) {
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		return Default(), false, nil
	}
	d, err = Load(path)
	return d, err == nil, err
}

// Parse is Load for in-memory data; filename is used in error messages.
func Parse(data []byte, filename string) (*Descriptor, error) {
	f, err := cueutil.ParseAndDecode[file](schema, data, "#Descriptor", cueutil.WithFilename(filename))
	if err != nil {
		return nil, &InvalidDescriptorError{FieldErrs: []error{err}}
	}

	d := Default()
	f.overlay(d)

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func (f *file) overlay(d *Descriptor) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}

	if f.BaseImage != nil {
		d.BaseImage = ImageRef(*f.BaseImage)
	}
	if t := f.Tool; t != nil {
		set(&d.Tool.Name, t.Name)
		set(&d.Tool.Version, t.Version)
		if t.InstallArgs != nil {
			d.Tool.InstallArgs = t.InstallArgs
		}
	}
	if m := f.Manifest; m != nil {
		set(&d.Manifest.SpecFile, m.SpecFile)
		set(&d.Manifest.LockFile, m.LockFile)
	}
	maps.Copy(d.Env, f.Env)
	if f.WorkDir != nil {
		d.WorkDir = ContainerPath(*f.WorkDir)
		// The module path follows the working directory unless set explicitly.
		d.ModulePath = d.WorkDir
	}
	if s := f.Source; s != nil {
		set(&d.Source.Path, s.Path)
		set(&d.Source.Dest, s.Dest)
	}
	if f.ModulePath != nil {
		d.ModulePath = ContainerPath(*f.ModulePath)
	}
	if l := f.Launch; l != nil {
		set(&d.Launch.Program, l.Program)
		set(&d.Launch.AppRef, l.AppRef)
		set(&d.Launch.Host, l.Host)
		if l.PortEnv != nil {
			d.Launch.PortEnv = EnvName(*l.PortEnv)
		}
		if l.DefaultPort != nil {
			d.Launch.DefaultPort = types.Port(*l.DefaultPort)
		}
		if l.ExtraArgs != nil {
			d.Launch.ExtraArgs = l.ExtraArgs
		}
	}
	if len(f.Labels) > 0 {
		if d.Labels == nil {
			d.Labels = map[string]string{}
		}
		maps.Copy(d.Labels, f.Labels)
	}
}
