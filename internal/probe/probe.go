// SPDX-License-Identifier: MPL-2.0

package probe

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/manylinux-inspector/manylinux-inspector/internal/container"
)

const (
	// PythonDir holds one directory per bundled interpreter.
	PythonDir = "/opt/python"
	// PythonGlob matches interpreter binaries below PythonDir.
	PythonGlob = "*/bin/python"
)

// PackageManagers are looked up with `which`, in this order.
var PackageManagers = []string{"dnf", "yum", "apt-get", "apk", "pacman", "zypper", "emerge"}

var (
	osCommands = [][]string{
		{"cat", "/etc/os-release"},
		{"cat", "/etc/redhat-release"},
		{"ldd", "--version"},
	}

	toolCommands = [][]string{
		{"auditwheel", "--version"},
		{"patchelf", "--version"},
		{"git", "--version"},
		{"curl", "--version"},
		{"openssl", "version"},
		{"pipx", "--version"},
		{"pipx", "list", "--short"},
	}

	pythonArgs = [][]string{
		{"--version"},
		{"-c", "import setuptools; print(setuptools.__version__)"},
		{"-m", "pip", "--version"},
		{"-m", "pip", "freeze"},
	}
)

type (
	// Caller executes commands inside an inspection container.
	Caller interface {
		Call(ctx context.Context, args ...string) (container.CallResult, error)
		Glob(ctx context.Context, dir, pattern string) ([]string, error)
	}

	// LogEntry records one executed command.
	LogEntry struct {
		Command    []string `json:"command"`
		ReturnCode int      `json:"return_code"`
		Stdout     string   `json:"stdout"`
		Stderr     string   `json:"stderr"`
	}

	// Result is the outcome of a probe run.
	Result struct {
		Log     []LogEntry `json:"log"`
		Summary Summary    `json:"summary"`
	}
)

// OK reports whether the command exited with status 0.
func (e LogEntry) OK() bool { return e.ReturnCode == 0 }

// StaticSequence returns the commands run before interpreter discovery.
func StaticSequence() [][]string {
	var seq [][]string
	seq = append(seq, osCommands...)
	for _, pm := range PackageManagers {
		seq = append(seq, []string{"which", pm})
	}
	seq = append(seq, toolCommands...)
	return cloneCommands(seq)
}

// PythonSequence returns the commands run for one interpreter.
func PythonSequence(python string) [][]string {
	seq := make([][]string, 0, len(pythonArgs))
	for _, args := range pythonArgs {
		seq = append(seq, append([]string{python}, args...))
	}
	return seq
}

// Run executes the probe sequence in order. Failing commands are recorded,
// not fatal; an error from the Caller aborts the run.
func Run(ctx context.Context, c Caller) (*Result, error) {
	var entries []LogEntry

	run := func(args []string) error {
		res, err := c.Call(ctx, args...)
		if err != nil {
			return fmt.Errorf("probe %v: %w", args, err)
		}
		slog.Debug("probe command", "command", args, "return_code", res.ReturnCode)
		entries = append(entries, LogEntry{
			Command:    slices.Clone(args),
			ReturnCode: res.ReturnCode,
			Stdout:     res.Stdout,
			Stderr:     res.Stderr,
		})
		return nil
	}

	for _, args := range StaticSequence() {
		if err := run(args); err != nil {
			return nil, err
		}
	}

	pythons, err := c.Glob(ctx, PythonDir, PythonGlob)
	if err != nil {
		return nil, fmt.Errorf("discover interpreters: %w", err)
	}
	pythons = slices.Clone(pythons)
	slices.Sort(pythons)

	for _, python := range pythons {
		for _, args := range PythonSequence(python) {
			if err := run(args); err != nil {
				return nil, err
			}
		}
	}

	return &Result{Log: entries, Summary: Summarize(entries)}, nil
}

func cloneCommands(in [][]string) [][]string {
	out := make([][]string, len(in))
	for i, c := range in {
		out[i] = slices.Clone(c)
	}
	return out
}
