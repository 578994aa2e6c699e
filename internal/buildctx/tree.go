// SPDX-License-Identifier: MPL-2.0

package buildctx

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

type (
	// EntryKind is the type of a tree entry.
	EntryKind int

	// Entry is one file, directory or symlink of a source tree.
	Entry struct {
		// Path is slash-separated and relative to the tree root.
		Path string
		Kind EntryKind
		// Executable is true when any execute bit is set (files only).
		Executable bool
		Size       int64
		// Digest is the hex sha256 of the content (files) or link target.
		Digest string
		// LinkTarget is set for symlinks.
		LinkTarget string
	}

	// Tree is a walked, digested directory.
	Tree struct {
		// Root is the absolute host path of the tree.
		Root    string
		Entries []Entry
		Digest  string
	}
)

const (
	KindFile EntryKind = iota
	KindDir
	KindSymlink
)

// String returns a short name for the kind.
func (k EntryKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	case KindSymlink:
		return "symlink"
	default:
		return fmt.Sprintf("EntryKind(%d)", int(k))
	}
}

// WalkTree walks root without following symlinks and digests every entry.
// Entries are sorted by path; the tree digest covers paths, kinds, the
// executable bit and content, with every field length-prefixed.
func WalkTree(root string) (*Tree, error) {
	var entries []Entry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		entry := Entry{Path: filepath.ToSlash(rel)}

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			entry.Kind = KindSymlink
			entry.LinkTarget = target
			entry.Digest = hashBytes([]byte(target))
		case d.IsDir():
			entry.Kind = KindDir
		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				return err
			}
			digest, err := hashFile(path)
			if err != nil {
				return err
			}
			entry.Kind = KindFile
			entry.Size = info.Size()
			entry.Executable = info.Mode().Perm()&0o111 != 0
			entry.Digest = digest
		default:
			// Sockets, devices and pipes cannot be part of an image layer.
			return fmt.Errorf("%s: unsupported file type %s", entry.Path, d.Type())
		}

		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	slices.SortFunc(entries, func(a, b Entry) int { return strings.Compare(a.Path, b.Path) })

	return &Tree{Root: root, Entries: entries, Digest: digestEntries(entries)}, nil
}

// Files returns the number of regular files in the tree.
func (t *Tree) Files() int {
	n := 0
	for _, e := range t.Entries {
		if e.Kind == KindFile {
			n++
		}
	}
	return n
}

func digestEntries(entries []Entry) string {
	h := sha256.New()
	writeField := func(data string) {
		var prefix [8]byte
		binary.BigEndian.PutUint64(prefix[:], uint64(len(data)))
		h.Write(prefix[:])
		h.Write([]byte(data))
	}

	writeField(fmt.Sprintf("%d", len(entries)))
	for _, e := range entries {
		writeField(e.Path)
		writeField(e.Kind.String())
		if e.Executable {
			writeField("x")
		} else {
			writeField("-")
		}
		writeField(e.Digest)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }() // Read-only file; close error non-critical

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
