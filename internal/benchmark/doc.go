// SPDX-License-Identifier: MPL-2.0

// Package benchmark provides benchmarks for PGO profile generation.
// They cover the hot paths of a poll pass without a container engine:
//   - probing an image through a scripted engine and summarizing the log
//   - saving and reloading cached reports
//   - grouping reports into versions and rendering the site
//   - loading and validating the CUE configuration
//
// To generate a profile, run:
//
//	go test -run='^$' -bench=. -cpuprofile=default.pgo ./internal/benchmark
package benchmark
