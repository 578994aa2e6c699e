// SPDX-License-Identifier: MPL-2.0

// Package config loads the berth user configuration with Viper, using CUE as
// the file format.
//
// The file is read from --config when given, otherwise from
// $XDG_CONFIG_HOME/berth/config.cue (the platform equivalent on macOS and
// Windows), otherwise from ./config.cue. Values are validated against the
// embedded #Config schema before they are merged over the defaults.
// Environment variables prefixed with BERTH_ override file values, with dots
// in key names replaced by underscores (BERTH_BUILD_TAG_PREFIX).
package config
