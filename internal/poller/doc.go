// SPDX-License-Identifier: MPL-2.0

// Package poller discovers recent image tags on a registry and inspects them
// with a bounded pool of workers.
//
// A pass lists the repositories of a namespace, selects the tag each
// repository's "latest" points at (and optionally every tag modified in the
// last N days), inspects the de-duplicated images, and rewrites the
// latest-tags index when it changed. Failures of individual images are
// logged and counted but never abort a pass.
package poller
