// SPDX-License-Identifier: MPL-2.0

// Package site renders the cached reports into a static site.
//
// Reports are grouped into versions: one image name and tag across all of
// its architectures (manylinux_2_28 tagged 2024-08-12-7fde9b1 on x86_64,
// aarch64 and so on). Each version's fields are the report fields of its
// architectures, combined into a single line with SummariseValues.
//
// The renderer writes index.html, a JSON index of all versions with the
// latest-tags index embedded, one JSON file per version and a gzip blob of
// every report.
package site
