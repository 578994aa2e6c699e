// SPDX-License-Identifier: MPL-2.0

// Package cueutil holds the compile, unify, validate and decode flow shared
// by every CUE file berth reads (the project descriptor and the user config),
// plus error formatting that reports JSON-style field paths.
package cueutil
