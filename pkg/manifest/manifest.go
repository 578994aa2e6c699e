// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

var (
	// ErrManifest is the sentinel for a manifest file that is missing or unparsable.
	ErrManifest = errors.New("invalid manifest")

	// ErrLockMismatch is the sentinel for a lock file that does not cover the spec file.
	ErrLockMismatch = errors.New("lock file does not match spec file")

	nameSeparators = regexp.MustCompile(`[-_.]+`)
)

type (
	// Spec is the part of pyproject.toml berth cares about.
	Spec struct {
		Name    string
		Version string
		// Python is the interpreter constraint, e.g. "^3.11".
		Python string
		// Dependencies are normalized names of every direct dependency in
		// every group, excluding the interpreter itself.
		Dependencies []string
	}

	// Lock is the part of poetry.lock berth cares about.
	Lock struct {
		LockVersion    string
		PythonVersions string
		ContentHash    string
		// Packages maps normalized package names to locked versions.
		Packages map[string]string
	}

	// Pair is a parsed manifest pair with the sha256 of each file's bytes.
	Pair struct {
		SpecPath   string
		LockPath   string
		Spec       *Spec
		Lock       *Lock
		SpecDigest string
		LockDigest string
	}

	// FileError is returned when a manifest file cannot be read or parsed.
	FileError struct {
		Path string
		Err  error
	}

	// StaleLockError is returned when direct dependencies have no locked package.
	StaleLockError struct {
		LockPath string
		Missing  []string
	}

	pyproject struct {
		Tool struct {
			Poetry *poetrySection `toml:"poetry"`
		} `toml:"tool"`
		Project *projectSection `toml:"project"`
	}

	poetrySection struct {
		Name            string         `toml:"name"`
		Version         string         `toml:"version"`
		Dependencies    map[string]any `toml:"dependencies"`
		DevDependencies map[string]any `toml:"dev-dependencies"`
		Group           map[string]struct {
			Dependencies map[string]any `toml:"dependencies"`
		} `toml:"group"`
	}

	projectSection struct {
		Name                 string              `toml:"name"`
		Version              string              `toml:"version"`
		RequiresPython       string              `toml:"requires-python"`
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	}

	lockDocument struct {
		Package []struct {
			Name    string `toml:"name"`
			Version string `toml:"version"`
		} `toml:"package"`
		Metadata struct {
			LockVersion    string `toml:"lock-version"`
			PythonVersions string `toml:"python-versions"`
			ContentHash    string `toml:"content-hash"`
		} `toml:"metadata"`
	}
)

// Read parses both files and returns the pair. It does not check that the
// lock covers the spec; call Check for that.
func Read(specPath, lockPath string) (*Pair, error) {
	specData, err := os.ReadFile(specPath)
	if err != nil {
		return nil, &FileError{Path: specPath, Err: err}
	}
	lockData, err := os.ReadFile(lockPath)
	if err != nil {
		return nil, &FileError{Path: lockPath, Err: err}
	}

	spec, err := ParseSpec(specData)
	if err != nil {
		return nil, &FileError{Path: specPath, Err: err}
	}
	lock, err := ParseLock(lockData)
	if err != nil {
		return nil, &FileError{Path: lockPath, Err: err}
	}

	return &Pair{
		SpecPath:   specPath,
		LockPath:   lockPath,
		Spec:       spec,
		Lock:       lock,
		SpecDigest: Digest(specData),
		LockDigest: Digest(lockData),
	}, nil
}

// ParseSpec parses a pyproject.toml with either a [tool.poetry] or a PEP 621
// [project] table. [tool.poetry] wins when both are present.
func ParseSpec(data []byte) (*Spec, error) {
	var doc pyproject
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, describeTOMLError(err)
	}

	switch {
	case doc.Tool.Poetry != nil:
		p := doc.Tool.Poetry
		spec := &Spec{Name: p.Name, Version: p.Version}
		if py, ok := p.Dependencies["python"].(string); ok {
			spec.Python = py
		}
		deps := map[string]bool{}
		addKeys := func(m map[string]any) {
			for name := range m {
				if n := NormalizeName(name); n != "python" {
					deps[n] = true
				}
			}
		}
		addKeys(p.Dependencies)
		addKeys(p.DevDependencies)
		for _, g := range p.Group {
			addKeys(g.Dependencies)
		}
		spec.Dependencies = sortedKeys(deps)
		if spec.Python == "" {
			return nil, errors.New("[tool.poetry.dependencies] must declare a python constraint")
		}
		return spec, nil

	case doc.Project != nil:
		p := doc.Project
		spec := &Spec{Name: p.Name, Version: p.Version, Python: p.RequiresPython}
		deps := map[string]bool{}
		for _, req := range p.Dependencies {
			deps[requirementName(req)] = true
		}
		for _, reqs := range p.OptionalDependencies {
			for _, req := range reqs {
				deps[requirementName(req)] = true
			}
		}
		delete(deps, "")
		spec.Dependencies = sortedKeys(deps)
		return spec, nil

	default:
		return nil, errors.New("neither [tool.poetry] nor [project] table found")
	}
}

// ParseLock parses a poetry.lock.
func ParseLock(data []byte) (*Lock, error) {
	var doc lockDocument
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, describeTOMLError(err)
	}
	if doc.Metadata.ContentHash == "" || doc.Metadata.LockVersion == "" {
		return nil, errors.New("[metadata] must carry lock-version and content-hash")
	}

	lock := &Lock{
		LockVersion:    doc.Metadata.LockVersion,
		PythonVersions: doc.Metadata.PythonVersions,
		ContentHash:    doc.Metadata.ContentHash,
		Packages:       make(map[string]string, len(doc.Package)),
	}
	for _, pkg := range doc.Package {
		lock.Packages[NormalizeName(pkg.Name)] = pkg.Version
	}
	return lock, nil
}

// Check reports every direct dependency of the spec that has no locked package.
func (p *Pair) Check() error {
	var missing []string
	for _, dep := range p.Spec.Dependencies {
		if _, ok := p.Lock.Packages[dep]; !ok {
			missing = append(missing, dep)
		}
	}
	if len(missing) > 0 {
		return &StaleLockError{LockPath: p.LockPath, Missing: missing}
	}
	return nil
}

// NormalizeName applies PEP 503 normalization: lowercase, with runs of
// "-", "_" and "." collapsed to "-".
func NormalizeName(name string) string {
	return nameSeparators.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// Digest returns the hex sha256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Error implements the error interface.
func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// Unwrap exposes ErrManifest and the underlying cause.
func (e *FileError) Unwrap() []error { return []error{ErrManifest, e.Err} }

// Error implements the error interface.
func (e *StaleLockError) Error() string {
	return fmt.Sprintf("%s: no locked package for %s", e.LockPath, strings.Join(e.Missing, ", "))
}

// Unwrap returns ErrLockMismatch for errors.Is() compatibility.
func (e *StaleLockError) Unwrap() error { return ErrLockMismatch }

// requirementName extracts the distribution name from a PEP 508 requirement
// such as "uvicorn[standard]>=0.30 ; python_version >= '3.11'".
func requirementName(req string) string {
	end := strings.IndexAny(req, "[<>=!~;( @")
	if end >= 0 {
		req = req[:end]
	}
	return NormalizeName(req)
}

func describeTOMLError(err error) error {
	var decodeErr *toml.DecodeError
	if errors.As(err, &decodeErr) {
		row, col := decodeErr.Position()
		return fmt.Errorf("line %d, column %d: %w", row, col, err)
	}
	return err
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
