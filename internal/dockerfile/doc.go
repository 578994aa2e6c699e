// SPDX-License-Identifier: MPL-2.0

// Package dockerfile renders a build plan as a Dockerfile and checks the
// result with the BuildKit Dockerfile parser.
package dockerfile
