// SPDX-License-Identifier: MPL-2.0

// Package vcs reads the source revision of a project checkout for image
// labels.
package vcs

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

var (
	// ErrNotRepository is returned when the project is not inside a git worktree.
	ErrNotRepository = errors.New("not a git repository")

	// ErrNoCommits is returned for a repository without a HEAD commit.
	ErrNoCommits = errors.New("repository has no commits")
)

// Revision describes the checked-out commit.
type Revision struct {
	// Commit is the full hex hash of HEAD.
	Commit string
	// Dirty reports uncommitted changes in the worktree.
	Dirty bool
}

// String returns the commit hash, suffixed with "-dirty" for a modified worktree.
func (r Revision) String() string {
	if r.Dirty {
		return r.Commit + "-dirty"
	}
	return r.Commit
}

// Short returns the first 12 characters of the commit hash.
func (r Revision) Short() string {
	if len(r.Commit) > 12 {
		return r.Commit[:12]
	}
	return r.Commit
}

// Read opens the repository containing dir, searching parent directories,
// and returns its HEAD revision.
func Read(dir string) (Revision, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return Revision{}, ErrNotRepository
		}
		return Revision{}, fmt.Errorf("open repository: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return Revision{}, ErrNoCommits
		}
		return Revision{}, fmt.Errorf("read head: %w", err)
	}

	rev := Revision{Commit: head.Hash().String()}

	wt, err := repo.Worktree()
	if err != nil {
		// Bare repositories have no worktree to be dirty.
		if errors.Is(err, git.ErrIsBareRepository) {
			return rev, nil
		}
		return Revision{}, fmt.Errorf("worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return Revision{}, fmt.Errorf("worktree status: %w", err)
	}
	rev.Dirty = !status.IsClean()
	return rev, nil
}
