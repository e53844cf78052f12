// SPDX-License-Identifier: MPL-2.0

// Package inspector inspects one image and stores its report in the cache.
package inspector
