// SPDX-License-Identifier: MPL-2.0

package buildctx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DockerfileName is the name of the rendered Dockerfile inside the context.
const DockerfileName = "Dockerfile"

// Stage writes the build context into dst: the Dockerfile, then the manifest
// pair, then the source tree. Files are copied verbatim; only the
// executable bit of each file's mode is carried over.
func Stage(in *Inputs, dockerfile []byte, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("create context directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dst, DockerfileName), dockerfile, 0o644); err != nil {
		return fmt.Errorf("write Dockerfile: %w", err)
	}

	d := in.Descriptor
	manifestFiles := []struct{ src, rel string }{
		{in.Manifest.SpecPath, d.Manifest.SpecFile},
		{in.Manifest.LockPath, d.Manifest.LockFile},
	}
	for _, f := range manifestFiles {
		if err := copyFile(f.src, filepath.Join(dst, filepath.FromSlash(f.rel)), false); err != nil {
			return fmt.Errorf("stage %s: %w", f.rel, err)
		}
	}

	srcDst := filepath.Join(dst, filepath.FromSlash(d.Source.Path))
	if err := os.MkdirAll(srcDst, 0o755); err != nil {
		return fmt.Errorf("stage source tree: %w", err)
	}
	for _, e := range in.Source.Entries {
		if in.isManifest(e) {
			continue
		}
		from := filepath.Join(in.Source.Root, filepath.FromSlash(e.Path))
		to := filepath.Join(srcDst, filepath.FromSlash(e.Path))
		var err error
		switch e.Kind {
		case KindDir:
			err = os.MkdirAll(to, 0o755)
		case KindSymlink:
			err = os.Symlink(e.LinkTarget, to)
		case KindFile:
			err = copyFile(from, to, e.Executable)
		}
		if err != nil {
			return fmt.Errorf("stage %s: %w", e.Path, err)
		}
	}
	return nil
}

func copyFile(src, dst string, executable bool) (err error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer func() { _ = in.Close() }() // Read-only file; close error non-critical

	mode := os.FileMode(0o644)
	if executable {
		mode = 0o755
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close destination file: %w", closeErr)
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy file contents: %w", err)
	}
	return nil
}
