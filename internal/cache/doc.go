// SPDX-License-Identifier: MPL-2.0

// Package cache stores inspection reports as one JSON file per image
// reference and keeps the index of the latest tag per repository.
//
// Entries are written atomically (temp file + rename) so a crash never
// leaves a truncated report that would later be mistaken for a cache hit.
package cache
