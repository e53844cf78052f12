// SPDX-License-Identifier: MPL-2.0

package enginetest

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/manylinux-inspector/manylinux-inspector/internal/container"
)

type (
	// Response is a scripted command outcome.
	Response struct {
		ExitCode int
		Stdout   string
		Stderr   string
	}

	// Engine is a scripted container.Engine. Commands without a scripted
	// response exit 127. Shell glob loops are answered with GlobMatches.
	Engine struct {
		mu sync.Mutex

		// Responses maps a space-joined command to its outcome
		Responses map[string]Response
		// GlobMatches is printed by any `sh -c` glob loop
		GlobMatches []string

		startErr error
		execErrs map[string]error
		starts   []container.StartOptions
		execs    [][]string
		removed  []container.ContainerID
		pulled   []string
		running  map[container.ContainerID]bool
	}
)

// New creates an engine with no scripted responses.
func New() *Engine {
	return &Engine{
		Responses: map[string]Response{},
		execErrs:  map[string]error{},
		running:   map[container.ContainerID]bool{},
	}
}

// Script adds a response for command.
func (e *Engine) Script(resp Response, command ...string) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Responses[strings.Join(command, " ")] = resp
	return e
}

// FailStart makes every Start return err.
func (e *Engine) FailStart(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startErr = err
}

// FailExec makes every exec whose program is name return err.
func (e *Engine) FailExec(name string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.execErrs[name] = err
}

func (e *Engine) Name() string { return "fake" }
func (e *Engine) Available() bool { return true }
func (e *Engine) Version(context.Context) (string, error) { return "0.0.0", nil }
func (e *Engine) ImageExists(context.Context, string) (bool, error) { return true, nil }

// Pull records the image.
func (e *Engine) Pull(_ context.Context, image, _ string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pulled = append(e.pulled, image)
	return nil
}

// Start records opts and marks the container running.
func (e *Engine) Start(ctx context.Context, opts container.StartOptions) (container.ContainerID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.starts = append(e.starts, opts)
	if e.startErr != nil {
		return "", e.startErr
	}
	id := container.ContainerID("fake-" + opts.Name)
	e.running[id] = true
	return id, nil
}

// Exec answers command from the script.
func (e *Engine) Exec(ctx context.Context, id container.ContainerID, command []string, _ container.ExecOptions) (*container.ExecResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.execs = append(e.execs, slices.Clone(command))
	if !e.running[id] {
		return nil, fmt.Errorf("no such container: %s", id)
	}

	args := command
	if len(args) > 0 && args[0] == "linux32" {
		args = args[1:]
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty exec")
	}
	if err, ok := e.execErrs[args[0]]; ok {
		return nil, err
	}
	if args[0] == "/bin/true" {
		return &container.ExecResult{}, nil
	}
	if len(args) == 3 && args[0] == "sh" && args[1] == "-c" && strings.HasPrefix(args[2], "for f in ") {
		var out strings.Builder
		for _, m := range e.GlobMatches {
			out.WriteString(m + "\n")
		}
		return &container.ExecResult{Stdout: []byte(out.String())}, nil
	}

	resp, ok := e.Responses[strings.Join(args, " ")]
	if !ok {
		return &container.ExecResult{ExitCode: 127, Stderr: []byte(args[0] + ": command not found\n")}, nil
	}
	return &container.ExecResult{
		ExitCode: resp.ExitCode,
		Stdout:   []byte(resp.Stdout),
		Stderr:   []byte(resp.Stderr),
	}, nil
}

// Remove marks the container gone.
func (e *Engine) Remove(_ context.Context, id container.ContainerID, _ container.RemoveOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removed = append(e.removed, id)
	delete(e.running, id)
	return nil
}

// Starts returns the recorded start options.
func (e *Engine) Starts() []container.StartOptions {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.starts)
}

// Execs returns every executed command, including linux32 prefixes.
func (e *Engine) Execs() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.execs)
}

// Pulled returns the pulled images.
func (e *Engine) Pulled() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.pulled)
}

// Removed returns the removed container IDs.
func (e *Engine) Removed() []container.ContainerID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.removed)
}

// Running returns the number of containers started and not removed.
func (e *Engine) Running() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.running)
}
