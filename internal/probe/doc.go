// SPDX-License-Identifier: MPL-2.0

// Package probe runs the fixed inspection sequence against a running
// container and turns the resulting command log into a flat report.
//
// The log is the source of truth: Summarize and Fields derive everything
// from it, so cached reports can be re-summarised without re-probing.
package probe
