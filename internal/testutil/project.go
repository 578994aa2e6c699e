// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"maps"
	"testing"
)

const (
	// PyProject is a minimal Poetry spec file matching Lock.
	PyProject = `[tool.poetry]
name = "service"
version = "0.1.0"

[tool.poetry.dependencies]
python = "^3.11"
fastapi = "^0.115"
uvicorn = "^0.30"
`

	// Lock is a lock file that pins every dependency of PyProject. It has a
	// placeholder content-hash and no package files, so Poetry cannot
	// install from it; the container build tests lock a real project.
	Lock = `[[package]]
name = "fastapi"
version = "0.115.0"

[[package]]
name = "uvicorn"
version = "0.30.6"

[metadata]
lock-version = "2.0"
python-versions = "^3.11"
content-hash = "0d1f2c"
`

	// MainModule is the entry module of the fixture service.
	MainModule = `from fastapi import FastAPI

app = FastAPI()


@app.get("/")
def root():
    return {"status": "ok"}
`
)

// Project describes a fixture project. Files maps slash-separated paths
// relative to the project root to their content.
type Project struct {
	Files map[string]string
}

// DefaultProject returns the fixture for the default descriptor: a manifest
// pair at the root and an "app" source tree with src/main.py.
func DefaultProject() Project {
	return Project{Files: map[string]string{
		"pyproject.toml":      PyProject,
		"poetry.lock":         Lock,
		"app/src/__init__.py": "",
		"app/src/main.py":     MainModule,
	}}
}

// With returns a copy of p with path set to content.
func (p Project) With(path, content string) Project {
	files := maps.Clone(p.Files)
	files[path] = content
	return Project{Files: files}
}

// Without returns a copy of p with path removed.
func (p Project) Without(path string) Project {
	files := maps.Clone(p.Files)
	delete(files, path)
	return Project{Files: files}
}

// WriteProject writes p into a fresh temporary directory and returns it.
func WriteProject(t testing.TB, p Project) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range p.Files {
		MustWriteFile(t, root, rel, content)
	}
	return root
}
