// SPDX-License-Identifier: MPL-2.0

// Package buildctx resolves, digests and stages the inputs of an image build.
//
// Resolution is ordered: the manifest pair is read and checked first, and the
// application source tree is only looked at once the manifest pair is known
// to be good. A bad manifest pair therefore fails the build before any source
// is materialized.
//
// Digests are content based (relative path, executable bit and bytes, in
// sorted order), never timestamps, so identical inputs always produce
// identical digests and identical context archives.
package buildctx
