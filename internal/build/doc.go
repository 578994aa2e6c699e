// SPDX-License-Identifier: MPL-2.0

// Package build turns a project directory and a descriptor into a tagged
// image.
//
// A build resolves its inputs (manifest pair first, then source tree),
// plans the layers, renders and parses the Dockerfile, and only then stages
// a build context and hands it to a container engine. Images are tagged with
// the plan's final cache key, so an unchanged project is recognised without
// invoking the engine at all. Every successful build leaves a TOML record in
// the cache directory, which "berth plan --since-last" compares against.
package build
