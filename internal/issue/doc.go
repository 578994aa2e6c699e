// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable error handling with user-friendly messages.
//
// ActionableError carries the failed operation, the resource involved and a list
// of remediation hints. Issue is a catalog of Markdown guidance pages, rendered
// with glamour, that the CLI prints for well-known failure classes such as an
// inconsistent manifest pair or a missing source tree.
package issue
