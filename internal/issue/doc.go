// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable errors and a catalog of Markdown guidance
// shown when inspecting images, polling the registry or rendering the site fails.
package issue
