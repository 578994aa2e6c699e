// SPDX-License-Identifier: MPL-2.0

// Package types defines small value types shared by the descriptor, build and
// launch packages. Each type carries its own validation and returns typed
// errors that wrap a package sentinel, so callers can use errors.Is.
//
// This package is a leaf dependency: it imports only the standard library.
package types
