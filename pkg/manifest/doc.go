// SPDX-License-Identifier: MPL-2.0

// Package manifest reads a Poetry manifest pair: the human-edited
// pyproject.toml and the machine-generated poetry.lock.
//
// The checks here are a pre-flight run before any application source is
// staged. They catch a missing or unparsable file and a direct dependency
// that has no locked package. Version-constraint solving stays with Poetry
// inside the image build, which remains the authority on lock consistency.
package manifest
