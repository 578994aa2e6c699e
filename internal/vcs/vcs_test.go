// SPDX-License-Identifier: MPL-2.0

package vcs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func initRepo(t *testing.T) (string, *git.Repository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit() error: %v", err)
	}
	return dir, repo
}

func commitFile(t *testing.T, dir string, repo *git.Repository, name, content string) string {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := wt.Add(name); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	sig := &object.Signature{Name: "berth", Email: "berth@example.com", When: time.Unix(0, 0)}
	hash, err := wt.Commit("add "+name, &git.CommitOptions{Author: sig, Committer: sig})
	if err != nil {
		t.Fatalf("Commit() error: %v", err)
	}
	return hash.String()
}

func TestRead(t *testing.T) {
	t.Parallel()

	dir, repo := initRepo(t)
	want := commitFile(t, dir, repo, "pyproject.toml", "[tool.poetry]\n")

	// Nested directories resolve to the enclosing repository.
	sub := filepath.Join(dir, "app", "src")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	rev, err := Read(sub)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if rev.Commit != want {
		t.Errorf("Commit = %s, want %s", rev.Commit, want)
	}
	if rev.Dirty {
		t.Error("clean worktree reported dirty")
	}
	if rev.String() != want || len(rev.Short()) != 12 {
		t.Errorf("String() = %s, Short() = %s", rev.String(), rev.Short())
	}
}

func TestRead_Dirty(t *testing.T) {
	t.Parallel()

	dir, repo := initRepo(t)
	commitFile(t, dir, repo, "poetry.lock", "a")
	if err := os.WriteFile(filepath.Join(dir, "poetry.lock"), []byte("b"), 0o644); err != nil {
		t.Fatal(err)
	}

	rev, err := Read(dir)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if !rev.Dirty {
		t.Error("modified worktree reported clean")
	}
	if rev.String() != rev.Commit+"-dirty" {
		t.Errorf("String() = %s", rev.String())
	}
}

func TestRead_Errors(t *testing.T) {
	t.Parallel()

	if _, err := Read(t.TempDir()); !errors.Is(err, ErrNotRepository) {
		t.Errorf("plain directory: error = %v, want ErrNotRepository", err)
	}

	dir, _ := initRepo(t)
	if _, err := Read(dir); !errors.Is(err, ErrNoCommits) {
		t.Errorf("empty repository: error = %v, want ErrNoCommits", err)
	}
}
