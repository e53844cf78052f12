// SPDX-License-Identifier: MPL-2.0

// Package config handles application configuration using Viper with CUE as the file format.
//
// Configuration is loaded from an explicit --config path, then from
// $XDG_CONFIG_HOME/manylinux-inspector/config.cue (~/.config when unset), then
// from ./config.cue. Files are validated against the embedded #Config schema
// (config_schema.cue) before being merged over the defaults, and every key can
// be overridden through INSPECTOR_* environment variables
// (e.g. INSPECTOR_POLL_WORKERS).
package config
