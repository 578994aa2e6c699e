// SPDX-License-Identifier: MPL-2.0

package buildctx

import (
	"archive/tar"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"
)

// epoch is the timestamp written for every archive entry.
var epoch = time.Unix(0, 0).UTC()

// WriteArchive writes the build context as a tar stream with a fixed entry
// order (Dockerfile, manifest pair, source tree sorted by path), zeroed
// timestamps and root ownership. It returns the sha256 of the stream.
// Identical inputs produce byte-identical archives.
func WriteArchive(w io.Writer, in *Inputs, dockerfile []byte) (string, error) {
	h := sha256.New()
	tw := tar.NewWriter(io.MultiWriter(w, h))

	if err := writeBytes(tw, DockerfileName, dockerfile); err != nil {
		return "", err
	}

	d := in.Descriptor
	for _, f := range []struct{ src, rel string }{
		{in.Manifest.SpecPath, d.Manifest.SpecFile},
		{in.Manifest.LockPath, d.Manifest.LockFile},
	} {
		if err := writeFile(tw, f.src, f.rel, false); err != nil {
			return "", err
		}
	}

	prefix := path.Clean(d.Source.Path)
	if err := tw.WriteHeader(dirHeader(prefix)); err != nil {
		return "", err
	}
	for _, e := range in.Source.Entries {
		if in.isManifest(e) {
			continue
		}
		name := path.Join(prefix, e.Path)
		var err error
		switch e.Kind {
		case KindDir:
			err = tw.WriteHeader(dirHeader(name))
		case KindSymlink:
			err = tw.WriteHeader(&tar.Header{
				Typeflag: tar.TypeSymlink,
				Name:     name,
				Linkname: e.LinkTarget,
				Mode:     0o777,
				ModTime:  epoch,
				Format:   tar.FormatPAX,
			})
		case KindFile:
			err = writeFile(tw, filepath.Join(in.Source.Root, filepath.FromSlash(e.Path)), name, e.Executable)
		}
		if err != nil {
			return "", fmt.Errorf("archive %s: %w", name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func dirHeader(name string) *tar.Header {
	return &tar.Header{
		Typeflag: tar.TypeDir,
		Name:     name + "/",
		Mode:     0o755,
		ModTime:  epoch,
		Format:   tar.FormatPAX,
	}
}

func writeBytes(tw *tar.Writer, name string, data []byte) error {
	if err := tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(data)),
		ModTime:  epoch,
		Format:   tar.FormatPAX,
	}); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}

func writeFile(tw *tar.Writer, src, name string, executable bool) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }() // Read-only file; close error non-critical

	info, err := f.Stat()
	if err != nil {
		return err
	}
	mode := int64(0o644)
	if executable {
		mode = 0o755
	}
	if err := tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     mode,
		Size:     info.Size(),
		ModTime:  epoch,
		Format:   tar.FormatPAX,
	}); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}
