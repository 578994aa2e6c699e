// SPDX-License-Identifier: MPL-2.0

// Package launch starts the service process.
//
// Process-wide environment is read exactly once, by NewConfig, into an
// immutable Config; nothing else in the package looks at ambient state. The
// Launcher runs one process per instance and moves through NotStarted,
// Running and Exited exactly once. It never restarts the process and never
// retries a failed start; the process's exit code is returned verbatim.
package launch
