// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const poetrySpec = `
[tool.poetry]
name = "chatbot"
version = "0.1.0"

[tool.poetry.dependencies]
python = "^3.11"
FastAPI = "^0.115"
uvicorn = {extras = ["standard"], version = "^0.30"}
langchain_openai = "^0.2"

[tool.poetry.group.dev.dependencies]
pytest = "^8.0"
`

const poetryLock = `
[[package]]
name = "fastapi"
version = "0.115.0"

[[package]]
name = "uvicorn"
version = "0.30.6"

[[package]]
name = "langchain-openai"
version = "0.2.1"

[[package]]
name = "pytest"
version = "8.3.3"

[metadata]
lock-version = "2.0"
python-versions = "^3.11"
content-hash = "8f2a0c"
`

func TestParseSpec_Poetry(t *testing.T) {
	t.Parallel()

	spec, err := ParseSpec([]byte(poetrySpec))
	if err != nil {
		t.Fatalf("ParseSpec() error: %v", err)
	}
	if spec.Name != "chatbot" || spec.Python != "^3.11" {
		t.Errorf("spec = %+v", spec)
	}
	want := []string{"fastapi", "langchain-openai", "pytest", "uvicorn"}
	if !reflect.DeepEqual(spec.Dependencies, want) {
		t.Errorf("Dependencies = %v, want %v", spec.Dependencies, want)
	}
}

func TestParseSpec_PEP621(t *testing.T) {
	t.Parallel()

	src := `
[project]
name = "svc"
version = "1.0.0"
requires-python = ">=3.11"
dependencies = ["uvicorn[standard]>=0.30", "Starlette ; python_version >= '3.11'", "httpx"]

[project.optional-dependencies]
test = ["pytest>=8"]
`
	spec, err := ParseSpec([]byte(src))
	if err != nil {
		t.Fatalf("ParseSpec() error: %v", err)
	}
	want := []string{"httpx", "pytest", "starlette", "uvicorn"}
	if !reflect.DeepEqual(spec.Dependencies, want) {
		t.Errorf("Dependencies = %v, want %v", spec.Dependencies, want)
	}
	if spec.Python != ">=3.11" {
		t.Errorf("Python = %q", spec.Python)
	}
}

func TestParseSpec_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		src     string
		wantMsg string
	}{
		{"no tables", `[build-system]` + "\n" + `requires = ["poetry-core"]`, "neither"},
		{"no python", "[tool.poetry]\nname = \"x\"\n[tool.poetry.dependencies]\nhttpx = \"*\"\n", "python constraint"},
		{"bad toml", "[tool.poetry\nname = 1", "line"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseSpec([]byte(tt.src))
			if err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("ParseSpec() error = %v, want containing %q", err, tt.wantMsg)
			}
		})
	}
}

func TestParseLock(t *testing.T) {
	t.Parallel()

	lock, err := ParseLock([]byte(poetryLock))
	if err != nil {
		t.Fatalf("ParseLock() error: %v", err)
	}
	if lock.ContentHash != "8f2a0c" || lock.LockVersion != "2.0" {
		t.Errorf("metadata = %+v", lock)
	}
	if lock.Packages["langchain-openai"] != "0.2.1" {
		t.Errorf("Packages = %v", lock.Packages)
	}

	if _, err := ParseLock([]byte(`[[package]]` + "\nname = \"x\"\n")); err == nil {
		t.Error("ParseLock() without metadata should fail")
	}
}

func TestReadAndCheck(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	specPath := filepath.Join(dir, "pyproject.toml")
	lockPath := filepath.Join(dir, "poetry.lock")
	writeFile(t, specPath, poetrySpec)
	writeFile(t, lockPath, poetryLock)

	pair, err := Read(specPath, lockPath)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if err := pair.Check(); err != nil {
		t.Errorf("Check() = %v, want nil", err)
	}
	if pair.SpecDigest != Digest([]byte(poetrySpec)) || len(pair.LockDigest) != 64 {
		t.Errorf("digests = %q, %q", pair.SpecDigest, pair.LockDigest)
	}
}

func TestCheck_StaleLock(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	specPath := filepath.Join(dir, "pyproject.toml")
	lockPath := filepath.Join(dir, "poetry.lock")
	writeFile(t, specPath, poetrySpec+"\n[tool.poetry.group.docs.dependencies]\nmkdocs = \"^1.6\"\n")
	writeFile(t, lockPath, poetryLock)

	pair, err := Read(specPath, lockPath)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	err = pair.Check()
	if !errors.Is(err, ErrLockMismatch) {
		t.Fatalf("Check() = %v, want ErrLockMismatch", err)
	}
	var stale *StaleLockError
	if !errors.As(err, &stale) || !reflect.DeepEqual(stale.Missing, []string{"mkdocs"}) {
		t.Errorf("Missing = %v, want [mkdocs]", stale)
	}
}

func TestRead_MissingLock(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	specPath := filepath.Join(dir, "pyproject.toml")
	writeFile(t, specPath, poetrySpec)

	_, err := Read(specPath, filepath.Join(dir, "poetry.lock"))
	if !errors.Is(err, ErrManifest) {
		t.Errorf("Read() = %v, want ErrManifest", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Read() = %v, want fs.ErrNotExist in the chain", err)
	}
}

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"FastAPI":          "fastapi",
		"langchain_openai": "langchain-openai",
		"zope.interface":   "zope-interface",
		"a__b--c":          "a-b-c",
	}
	for in, want := range tests {
		if got := NormalizeName(in); got != want {
			t.Errorf("NormalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
