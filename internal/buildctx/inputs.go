// SPDX-License-Identifier: MPL-2.0

package buildctx

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/berthbuild/berth/pkg/descriptor"
	"github.com/berthbuild/berth/pkg/manifest"
)

var (
	// ErrMissingSource is the sentinel error wrapped by MissingSourceError.
	ErrMissingSource = errors.New("missing application source")

	// ErrReservedPath is the sentinel error wrapped by ReservedPathError.
	ErrReservedPath = errors.New("source tree overlaps a reserved build context path")

	// reservedPaths are written by berth or read by the engine at the
	// context root.
	reservedPaths = []string{DockerfileName, ".dockerignore"}
)

type (
	// Inputs are the resolved, digested inputs of one build.
	Inputs struct {
		// Root is the absolute project root.
		Root string
		// Manifest is the checked manifest pair.
		Manifest *manifest.Pair
		// Source is the walked application source tree.
		Source *Tree
		// Descriptor is the descriptor the inputs were resolved for.
		Descriptor *descriptor.Descriptor
	}

	// MissingSourceError is returned when the source path does not exist or
	// is not a directory.
	MissingSourceError struct {
		Path string
		Err  error
	}

	// ReservedPathError is returned when a source file would land on a
	// context path berth writes itself, such as the generated Dockerfile.
	ReservedPathError struct {
		Path string
	}
)

// ResolveManifest reads and checks the manifest pair only.
func ResolveManifest(root string, d *descriptor.Descriptor) (*manifest.Pair, error) {
	specPath, err := securejoin.SecureJoin(root, d.Manifest.SpecFile)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", d.Manifest.SpecFile, err)
	}
	lockPath, err := securejoin.SecureJoin(root, d.Manifest.LockFile)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", d.Manifest.LockFile, err)
	}

	pair, err := manifest.Read(specPath, lockPath)
	if err != nil {
		return nil, err
	}
	if err := pair.Check(); err != nil {
		return nil, err
	}
	return pair, nil
}

// Resolve resolves the manifest pair and then the source tree. When the
// manifest pair is missing, unparsable or stale, the source tree is not
// touched.
func Resolve(root string, d *descriptor.Descriptor) (*Inputs, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}

	pair, err := ResolveManifest(absRoot, d)
	if err != nil {
		return nil, err
	}

	// SecureJoin keeps symlinks inside the project root.
	srcPath, err := securejoin.SecureJoin(absRoot, d.Source.Path)
	if err != nil {
		return nil, &MissingSourceError{Path: d.Source.Path, Err: err}
	}
	info, err := os.Stat(srcPath)
	if err != nil {
		return nil, &MissingSourceError{Path: d.Source.Path, Err: err}
	}
	if !info.IsDir() {
		return nil, &MissingSourceError{Path: d.Source.Path, Err: errors.New("not a directory")}
	}

	tree, err := WalkTree(srcPath)
	if err != nil {
		return nil, err
	}

	in := &Inputs{Root: absRoot, Manifest: pair, Source: tree, Descriptor: d}
	for _, e := range tree.Entries {
		if p := in.contextPath(e); slices.Contains(reservedPaths, p) {
			return nil, &ReservedPathError{Path: p}
		}
	}
	return in, nil
}

// contextPath is where e lands inside the build context.
func (in *Inputs) contextPath(e Entry) string {
	return path.Join(path.Clean(filepath.ToSlash(in.Descriptor.Source.Path)), e.Path)
}

// isManifest reports whether e is one of the manifest pair, which is staged
// before the source tree and must not be written twice.
func (in *Inputs) isManifest(e Entry) bool {
	p := in.contextPath(e)
	m := in.Descriptor.Manifest
	return e.Kind == KindFile && (p == path.Clean(m.SpecFile) || p == path.Clean(m.LockFile))
}

// Error implements the error interface.
func (e *MissingSourceError) Error() string {
	return fmt.Sprintf("source tree %q: %v", e.Path, e.Err)
}

// Unwrap exposes ErrMissingSource and the underlying cause.
func (e *MissingSourceError) Unwrap() []error { return []error{ErrMissingSource, e.Err} }

// Error implements the error interface.
func (e *ReservedPathError) Error() string {
	return fmt.Sprintf("source file %q would replace a file berth writes into the build context", e.Path)
}

// Unwrap returns ErrReservedPath for errors.Is() compatibility.
func (e *ReservedPathError) Unwrap() error { return ErrReservedPath }
