// SPDX-License-Identifier: MPL-2.0

// Package container provides an abstraction layer over image builders and
// container runtimes.
//
// Docker and Podman are driven through their CLIs; both embed BaseCLIEngine,
// which builds argument lists and runs the binary through an injectable
// ExecCommandFunc so tests can substitute a helper process. A BuildKit
// engine that talks to buildkitd directly is compiled in with the "buildkit"
// build tag.
//
// Engines never retry. A failed build or run is reported once, with the
// engine output already streamed to the caller's writers.
package container
