// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"path/filepath"
	"testing"
)

// SetConfigHome points HOME and XDG_CONFIG_HOME at dir for the rest of the
// test and returns the directory the application config lives in.
// Tests calling it must not run in parallel.
func SetConfigHome(t *testing.T, dir string) string {
	t.Helper()
	t.Setenv("HOME", dir)
	configHome := filepath.Join(dir, ".config")
	t.Setenv("XDG_CONFIG_HOME", configHome)
	return filepath.Join(configHome, "manylinux-inspector")
}
