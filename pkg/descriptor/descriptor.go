// SPDX-License-Identifier: MPL-2.0

package descriptor

import (
	"maps"

	"github.com/berthbuild/berth/pkg/types"
)

// Defaults for a Poetry-managed ASGI service.
const (
	DefaultBaseImage   ImageRef      = "python:3.11-slim"
	DefaultWorkDir     ContainerPath = "/app"
	DefaultSourcePath                = "app"
	DefaultSourceDest                = "."
	DefaultSpecFile                  = "pyproject.toml"
	DefaultLockFile                  = "poetry.lock"
	DefaultToolName                  = "poetry"
	DefaultToolVersion               = "1.8.3"
	DefaultProgram                   = "uvicorn"
	DefaultAppRef                    = "src.main:app"
	DefaultHost                      = "0.0.0.0"
	DefaultPortEnv     EnvName       = "PORT"
	DefaultPort        types.Port    = 8000

	// ModulePathEnv is the interpreter's module search path variable.
	ModulePathEnv EnvName = "PYTHONPATH"
)

type (
	// Descriptor describes one image and the process it starts.
	Descriptor struct {
		// BaseImage provides the interpreter.
		BaseImage ImageRef `json:"base_image"`
		// Tool is the dependency manager installed into the base image.
		Tool DependencyTool `json:"dependency_tool"`
		// Manifest is the dependency spec file and its lock file, relative to
		// the project root.
		Manifest ManifestPair `json:"manifest"`
		// Env is declared before the dependency install and is visible to
		// every later step and to the running container.
		Env EnvSet `json:"env"`
		// WorkDir anchors every relative copy and is the process's cwd.
		WorkDir ContainerPath `json:"workdir"`
		// Source is the application source tree.
		Source Source `json:"source"`
		// ModulePath is exported as PYTHONPATH after the source copy.
		ModulePath ContainerPath `json:"module_path"`
		// Launch is the process entry point.
		Launch Launch `json:"launch"`
		// Labels are added to the final image config.
		Labels map[string]string `json:"labels,omitempty"`
	}

	// ManifestPair names the human-edited spec file and the machine-generated
	// lock file. Both are relative to the project root.
	ManifestPair struct {
		SpecFile string `json:"spec_file"`
		LockFile string `json:"lock_file"`
	}

	// Source names the application source tree (relative to the project root)
	// and where it lands relative to WorkDir.
	Source struct {
		Path string `json:"path"`
		Dest string `json:"dest"`
	}
)

// Default returns the descriptor for a Poetry project whose application
// object is src.main:app under ./app.
func Default() *Descriptor {
	return &Descriptor{
		BaseImage: DefaultBaseImage,
		Tool:      DefaultDependencyTool(),
		Manifest: ManifestPair{
			SpecFile: DefaultSpecFile,
			LockFile: DefaultLockFile,
		},
		Env: EnvSet{
			"POETRY_NO_INTERACTION":     "1",
			"POETRY_VIRTUALENVS_CREATE": "false",
			"POETRY_CACHE_DIR":          "/tmp/poetry_cache",
			"PYTHONUNBUFFERED":          "1",
		},
		WorkDir:    DefaultWorkDir,
		Source:     Source{Path: DefaultSourcePath, Dest: DefaultSourceDest},
		ModulePath: DefaultWorkDir,
		Launch:     DefaultLaunch(),
	}
}

// Clone returns a deep copy.
func (d *Descriptor) Clone() *Descriptor {
	c := *d
	c.Tool.InstallArgs = append([]string(nil), d.Tool.InstallArgs...)
	c.Env = maps.Clone(d.Env)
	c.Labels = maps.Clone(d.Labels)
	c.Launch.ExtraArgs = append([]string(nil), d.Launch.ExtraArgs...)
	return &c
}

// RuntimeEnv returns the environment a launched process sees from the image:
// the declared set plus the module search path.
func (d *Descriptor) RuntimeEnv() EnvSet {
	env := maps.Clone(d.Env)
	if env == nil {
		env = EnvSet{}
	}
	env[string(ModulePathEnv)] = string(d.ModulePath)
	return env
}
