// SPDX-License-Identifier: MPL-2.0

// Package registry queries a quay.io-style registry API for the public
// repositories of a namespace and their tags, and decides which tags are
// recent enough to inspect.
package registry
