// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/berthbuild/berth/internal/buildctx"
	"github.com/berthbuild/berth/internal/container"
	"github.com/berthbuild/berth/internal/dockerfile"
	"github.com/berthbuild/berth/internal/issue"
	"github.com/berthbuild/berth/pkg/descriptor"
	"github.com/berthbuild/berth/pkg/manifest"
	"github.com/berthbuild/berth/pkg/types"
)

// classifyError maps a command failure to an issue catalog ID. An ID set on
// an ActionableError in the chain wins over sentinel matching.
func classifyError(err error) issue.ID {
	var ae *issue.ActionableError
	if errors.As(err, &ae) && ae.Issue != 0 {
		return ae.Issue
	}

	switch {
	case errors.Is(err, manifest.ErrLockMismatch):
		return issue.LockMismatchID
	case errors.Is(err, manifest.ErrManifest):
		return issue.ManifestInvalidID
	case errors.Is(err, buildctx.ErrMissingSource):
		return issue.SourceMissingID
	case errors.Is(err, buildctx.ErrReservedPath):
		return issue.DescriptorInvalidID
	case errors.Is(err, descriptor.ErrInvalidDescriptor):
		return issue.DescriptorInvalidID
	case errors.Is(err, dockerfile.ErrInvalidDockerfile):
		return issue.DockerfileInvalidID
	case errors.Is(err, container.ErrEngineNotAvailable):
		return issue.EngineNotFoundID
	case errors.Is(err, types.ErrInvalidPort):
		return issue.InvalidPortID
	default:
		return 0
	}
}

// formatErrorForDisplay formats an error for user display. ActionableErrors
// use their Format method; verbose mode adds the full error chain.
func formatErrorForDisplay(err error, verbose bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verbose)
	}
	return err.Error()
}

// renderError writes the error and, in verbose mode, the matching catalog
// page. ExitErrors without a cause print nothing: the child process has
// already reported its failure.
func renderError(w io.Writer, err error, verbose bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return
	}

	fmt.Fprintf(w, "\n%s %s\n", ErrorStyle.Render("Error:"), formatErrorForDisplay(err, verbose))

	if !verbose {
		return
	}
	id := classifyError(err)
	if id == 0 {
		return
	}
	if page := issue.Get(id); page != nil {
		rendered, renderErr := page.Render("dark")
		if renderErr != nil {
			log.Warn("failed to render issue catalog entry", "issue", id, "err", renderErr)
			return
		}
		fmt.Fprint(w, rendered)
	}
}
