// SPDX-License-Identifier: MPL-2.0

// Package plan orders the layers of an image build and assigns each layer a
// chained cache key.
//
// The order is fixed: base image, environment, dependency tool, working
// directory, manifest pair, dependency install, source tree, module search
// path, exposed port, labels, launch command. Everything the dependency
// install depends on comes before the source tree, so a source-only change
// keeps every key up to and including the install.
//
// Keys chain: each key hashes the previous key together with the step's
// kind, instruction text and input digest. A change to any step therefore
// changes its key and every key after it, and identical inputs always give
// identical keys.
package plan
