// SPDX-License-Identifier: MPL-2.0

package buildctx

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/berthbuild/berth/internal/testutil"
	"github.com/berthbuild/berth/pkg/descriptor"
	"github.com/berthbuild/berth/pkg/manifest"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	root := testutil.WriteProject(t, testutil.DefaultProject())
	in, err := Resolve(root, descriptor.Default())
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if in.Source.Files() != 2 {
		t.Errorf("Files() = %d, want 2", in.Source.Files())
	}
	if in.Manifest.Spec.Name != "service" {
		t.Errorf("Spec.Name = %q", in.Manifest.Spec.Name)
	}

	want := []string{"src", "src/__init__.py", "src/main.py"}
	if len(in.Source.Entries) != len(want) {
		t.Fatalf("Entries = %d, want %d", len(in.Source.Entries), len(want))
	}
	for i, e := range in.Source.Entries {
		if e.Path != want[i] {
			t.Errorf("Entries[%d] = %q, want %q", i, e.Path, want[i])
		}
	}
}

func TestResolve_MissingSource(t *testing.T) {
	t.Parallel()

	p := testutil.DefaultProject().Without("app/src/__init__.py").Without("app/src/main.py")
	root := testutil.WriteProject(t, p)

	_, err := Resolve(root, descriptor.Default())
	if !errors.Is(err, ErrMissingSource) {
		t.Fatalf("Resolve() error = %v, want ErrMissingSource", err)
	}
	var mse *MissingSourceError
	if !errors.As(err, &mse) || mse.Path != "app" {
		t.Errorf("MissingSourceError = %+v", mse)
	}
}

func TestResolve_SourceIsFile(t *testing.T) {
	t.Parallel()

	d := descriptor.Default()
	d.Source.Path = "pyproject.toml"
	root := testutil.WriteProject(t, testutil.DefaultProject())

	if _, err := Resolve(root, d); !errors.Is(err, ErrMissingSource) {
		t.Fatalf("Resolve() error = %v, want ErrMissingSource", err)
	}
}

func TestResolve_ManifestCheckedFirst(t *testing.T) {
	t.Parallel()

	// Both the lock and the source tree are missing; the manifest failure wins.
	p := testutil.Project{Files: map[string]string{"pyproject.toml": testutil.PyProject}}
	root := testutil.WriteProject(t, p)

	_, err := Resolve(root, descriptor.Default())
	if !errors.Is(err, manifest.ErrManifest) {
		t.Fatalf("Resolve() error = %v, want ErrManifest", err)
	}
	if errors.Is(err, ErrMissingSource) {
		t.Error("source tree was resolved before the manifest pair")
	}
}

func TestResolve_StaleLock(t *testing.T) {
	t.Parallel()

	spec := testutil.PyProject + "httpx = \"^0.27\"\n"
	root := testutil.WriteProject(t, testutil.DefaultProject().With("pyproject.toml", spec))

	if _, err := Resolve(root, descriptor.Default()); !errors.Is(err, manifest.ErrLockMismatch) {
		t.Fatalf("Resolve() error = %v, want ErrLockMismatch", err)
	}
}

func TestResolve_SymlinkEscapeStaysInRoot(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("symlinks require privileges on windows")
	}

	root := testutil.WriteProject(t, testutil.DefaultProject())
	outside := t.TempDir()
	testutil.MustWriteFile(t, outside, "secret.py", "x = 1")
	if err := os.Symlink(outside, filepath.Join(root, "escape")); err != nil {
		t.Fatalf("Symlink() error: %v", err)
	}

	d := descriptor.Default()
	d.Source.Path = "escape"

	// SecureJoin resolves the absolute link target inside the root, where it
	// does not exist.
	if _, err := Resolve(root, d); !errors.Is(err, ErrMissingSource) {
		t.Fatalf("Resolve() error = %v, want ErrMissingSource", err)
	}
}

func TestWalkTree_DigestTracksContent(t *testing.T) {
	t.Parallel()

	a := testutil.WriteProject(t, testutil.DefaultProject())
	b := testutil.WriteProject(t, testutil.DefaultProject())
	c := testutil.WriteProject(t, testutil.DefaultProject().With("app/src/main.py", "app = None\n"))

	ta, err := WalkTree(filepath.Join(a, "app"))
	if err != nil {
		t.Fatal(err)
	}
	tb, err := WalkTree(filepath.Join(b, "app"))
	if err != nil {
		t.Fatal(err)
	}
	tc, err := WalkTree(filepath.Join(c, "app"))
	if err != nil {
		t.Fatal(err)
	}

	if ta.Digest != tb.Digest {
		t.Error("identical trees produced different digests")
	}
	if ta.Digest == tc.Digest {
		t.Error("changed content did not change the digest")
	}
}

func TestStage(t *testing.T) {
	t.Parallel()

	root := testutil.WriteProject(t, testutil.DefaultProject())
	in, err := Resolve(root, descriptor.Default())
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	dst := t.TempDir()
	if err := Stage(in, []byte("FROM scratch\n"), dst); err != nil {
		t.Fatalf("Stage() error: %v", err)
	}

	for rel, want := range map[string]string{
		"Dockerfile":      "FROM scratch\n",
		"pyproject.toml":  testutil.PyProject,
		"poetry.lock":     testutil.Lock,
		"app/src/main.py": testutil.MainModule,
	} {
		got, err := os.ReadFile(filepath.Join(dst, filepath.FromSlash(rel)))
		if err != nil {
			t.Errorf("ReadFile(%s) error: %v", rel, err)
			continue
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", rel, got, want)
		}
	}
}

func TestWriteArchive_Deterministic(t *testing.T) {
	t.Parallel()

	a := testutil.WriteProject(t, testutil.DefaultProject())
	b := testutil.WriteProject(t, testutil.DefaultProject())

	archive := func(root string) ([]byte, string) {
		t.Helper()
		in, err := Resolve(root, descriptor.Default())
		if err != nil {
			t.Fatalf("Resolve() error: %v", err)
		}
		var buf bytes.Buffer
		digest, err := WriteArchive(&buf, in, []byte("FROM scratch\n"))
		if err != nil {
			t.Fatalf("WriteArchive() error: %v", err)
		}
		return buf.Bytes(), digest
	}

	bytesA, digestA := archive(a)
	bytesB, digestB := archive(b)
	if digestA != digestB || !bytes.Equal(bytesA, bytesB) {
		t.Error("identical projects produced different archives")
	}

	var names []string
	tr := tar.NewReader(bytes.NewReader(bytesA))
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next() error: %v", err)
		}
		if !hdr.ModTime.Equal(epoch) || hdr.Uid != 0 || hdr.Gid != 0 {
			t.Errorf("%s: header not normalised: %+v", hdr.Name, hdr)
		}
		names = append(names, hdr.Name)
	}

	want := []string{"Dockerfile", "pyproject.toml", "poetry.lock", "app/", "app/src/", "app/src/__init__.py", "app/src/main.py"}
	if len(names) != len(want) {
		t.Fatalf("entries = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("entry[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestResolve_ReservedContextPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		file string
		src  string
	}{
		{"dockerfile at project root", "Dockerfile", "."},
		{"dockerignore at project root", ".dockerignore", "."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			root := testutil.WriteProject(t, testutil.DefaultProject().With(tt.file, "FROM scratch\n"))
			d := descriptor.Default()
			d.Source.Path = tt.src

			_, err := Resolve(root, d)
			if !errors.Is(err, ErrReservedPath) {
				t.Fatalf("Resolve() error = %v, want ErrReservedPath", err)
			}
			var rpe *ReservedPathError
			if !errors.As(err, &rpe) || rpe.Path != filepath.Base(tt.file) {
				t.Errorf("ReservedPathError = %+v", rpe)
			}
		})
	}
}

func TestResolve_DockerfileBelowContextRootAllowed(t *testing.T) {
	t.Parallel()

	root := testutil.WriteProject(t, testutil.DefaultProject().With("app/docker/Dockerfile", "FROM scratch\n"))
	if _, err := Resolve(root, descriptor.Default()); err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
}

func TestWriteArchive_ProjectRootSourceHasUniqueEntries(t *testing.T) {
	t.Parallel()

	root := testutil.WriteProject(t, testutil.DefaultProject())
	d := descriptor.Default()
	d.Source.Path = "."
	in, err := Resolve(root, d)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	var buf bytes.Buffer
	if _, err := WriteArchive(&buf, in, []byte("FROM scratch\n")); err != nil {
		t.Fatalf("WriteArchive() error: %v", err)
	}

	seen := map[string]int{}
	tr := tar.NewReader(&buf)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next() error: %v", err)
		}
		seen[hdr.Name]++
	}
	for name, n := range seen {
		if n > 1 {
			t.Errorf("entry %q written %d times", name, n)
		}
	}
	for _, name := range []string{DockerfileName, "pyproject.toml", "poetry.lock", "app/src/main.py"} {
		if seen[name] != 1 {
			t.Errorf("entry %q written %d times, want 1", name, seen[name])
		}
	}
}

func TestStage_ProjectRootSourceKeepsGeneratedDockerfile(t *testing.T) {
	t.Parallel()

	root := testutil.WriteProject(t, testutil.DefaultProject())
	d := descriptor.Default()
	d.Source.Path = "."
	in, err := Resolve(root, d)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	dst := t.TempDir()
	if err := Stage(in, []byte("FROM python:3.11-slim\n"), dst); err != nil {
		t.Fatalf("Stage() error: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dst, DockerfileName))
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if string(got) != "FROM python:3.11-slim\n" {
		t.Errorf("Dockerfile = %q", got)
	}
}
