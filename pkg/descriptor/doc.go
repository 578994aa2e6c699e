// SPDX-License-Identifier: MPL-2.0

// Package descriptor defines the image descriptor: everything berth needs to
// know to turn a Python web-service project into a container image and to
// start it.
//
// A Descriptor is built once (from Default or from a berth.cue project file
// via Load) and is treated as immutable afterward. Values are validated with
// typed errors that wrap package sentinels, so callers can use errors.Is:
//
//	d, err := descriptor.Load("berth.cue")
//	if errors.Is(err, descriptor.ErrInvalidDescriptor) { ... }
//
// The launch command is kept as a single shell-evaluated string whose port
// is read from the environment at container start, never at build time.
package descriptor
