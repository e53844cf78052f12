// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"path/filepath"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"
)

// TestMain registers the CLI as an in-process command for the scripts in
// testdata/script.
func TestMain(m *testing.M) {
	testscript.Main(m, map[string]func(){
		"manylinux-inspector": Execute,
	})
}

// TestCLI runs the testscript scenarios against the real command tree.
func TestCLI(t *testing.T) {
	testscript.Run(t, testscript.Params{
		Dir: filepath.Join("testdata", "script"),
		Setup: func(env *testscript.Env) error {
			env.Setenv("HOME", env.WorkDir)
			env.Setenv("XDG_CONFIG_HOME", filepath.Join(env.WorkDir, ".config"))
			env.Setenv("NO_COLOR", "1")
			return nil
		},
		// Continue running all scripts even if one fails
		ContinueOnError: true,
	})
}
