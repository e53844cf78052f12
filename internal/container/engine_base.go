// SPDX-License-Identifier: MPL-2.0

package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/manylinux-inspector/manylinux-inspector/internal/issue"
)

// linux32Prefix switches the personality of the executed command so that
// uname reports a 32-bit machine.
const linux32Prefix = "linux32"

type (
	// ExecCommandFunc is the function signature for creating exec.Cmd.
	// This allows injection of mock implementations for testing.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// BaseCLIEngineOption configures a BaseCLIEngine.
	BaseCLIEngineOption func(*BaseCLIEngine)

	// BaseCLIEngine provides common implementation for CLI-based container engines.
	// Docker and Podman engines embed this struct; engine-specific methods
	// (Available, Version) remain on the concrete types.
	BaseCLIEngine struct {
		name        string // Engine name for error messages (e.g., "docker", "podman")
		binaryPath  string
		execCommand ExecCommandFunc
	}

	// CommandError is returned when the engine binary itself fails. It keeps
	// the captured stderr so callers and IsTransientError can inspect it.
	CommandError struct {
		Binary string
		Args   []string
		Stderr string
		Err    error
	}
)

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %s %s failed: %v", e.Binary, strings.Join(e.Args, " "), e.Err)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// --- Option Functions ---

// WithName sets the engine name used in error messages.
func WithName(name string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.name = name
	}
}

// WithExecCommand sets a custom exec command function for testing.
func WithExecCommand(fn ExecCommandFunc) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.execCommand = fn
	}
}

// WithBinaryPath overrides the engine binary resolved from PATH.
func WithBinaryPath(path string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.binaryPath = path
	}
}

// --- Constructor ---

// NewBaseCLIEngine creates a new base engine with the given binary path.
func NewBaseCLIEngine(binaryPath string, opts ...BaseCLIEngineOption) *BaseCLIEngine {
	e := &BaseCLIEngine{
		binaryPath:  binaryPath,
		execCommand: exec.CommandContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// --- Accessor Methods ---

// BinaryPath returns the path to the container engine binary.
func (e *BaseCLIEngine) BinaryPath() string {
	return e.binaryPath
}

// --- Argument Builders ---

// StartArgs constructs arguments for starting a detached container.
//
// Generated command: <binary> run --name <name> --detach [--tty] [--platform P] [-e K=V...] <image>
func (e *BaseCLIEngine) StartArgs(opts StartOptions) []string {
	args := []string{"run"}

	if opts.Name != "" {
		args = append(args, "--name", opts.Name)
	}

	args = append(args, "--detach")

	if opts.TTY {
		args = append(args, "--tty")
	}

	if opts.Platform != "" {
		args = append(args, "--platform", opts.Platform)
	}

	args = append(args, envArgs(opts.Env)...)
	args = append(args, opts.Image)

	return args
}

// ExecArgs constructs arguments for a container exec command.
//
// Generated command: <binary> exec [-e K=V...] <container> <command...>
func (e *BaseCLIEngine) ExecArgs(id ContainerID, command []string, opts ExecOptions) []string {
	args := []string{"exec"}
	args = append(args, envArgs(opts.Env)...)
	args = append(args, string(id))
	args = append(args, command...)
	return args
}

// RemoveArgs constructs arguments for a container remove command.
func (e *BaseCLIEngine) RemoveArgs(id ContainerID, opts RemoveOptions) []string {
	args := []string{"rm"}
	if opts.Force {
		args = append(args, "--force")
	}
	if opts.Volumes {
		args = append(args, "--volumes")
	}
	args = append(args, string(id))
	return args
}

// PullArgs constructs arguments for an image pull command.
func (e *BaseCLIEngine) PullArgs(image, platform string) []string {
	args := []string{"pull"}
	if platform != "" {
		args = append(args, "--platform", platform)
	}
	args = append(args, image)
	return args
}

func envArgs(env map[string]string) []string {
	var args []string
	for _, kv := range envList(env) {
		args = append(args, "-e", kv)
	}
	return args
}

// --- Command Execution ---

// CreateCommand creates an exec.Cmd for the given arguments.
func (e *BaseCLIEngine) CreateCommand(ctx context.Context, args ...string) *exec.Cmd {
	return e.execCommand(ctx, e.binaryPath, args...)
}

// RunCommandWithOutput executes a command and returns its stdout.
// A failing command yields a *CommandError carrying the captured stderr.
func (e *BaseCLIEngine) RunCommandWithOutput(ctx context.Context, args ...string) (string, error) {
	cmd := e.CreateCommand(ctx, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", &CommandError{Binary: e.binaryPath, Args: args, Stderr: stderr.String(), Err: err}
	}

	return stdout.String(), nil
}

// RunCommandStatus executes a command and returns only the error status.
func (e *BaseCLIEngine) RunCommandStatus(ctx context.Context, args ...string) error {
	_, err := e.RunCommandWithOutput(ctx, args...)
	return err
}

// --- Promoted Engine Methods (shared by Docker and Podman) ---

// ImageExists checks if an image is present locally.
func (e *BaseCLIEngine) ImageExists(ctx context.Context, image string) (bool, error) {
	err := e.RunCommandStatus(ctx, "image", "inspect", image)
	if err == nil {
		return true, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, err
}

// Pull fetches an image.
func (e *BaseCLIEngine) Pull(ctx context.Context, image, platform string) error {
	if err := e.RunCommandStatus(ctx, e.PullArgs(image, platform)...); err != nil {
		return pullImageError(e.name, image, err)
	}
	return nil
}

// Start starts a detached container. The engine prints the container ID on
// success; when it does not, the requested name is used as the ID.
func (e *BaseCLIEngine) Start(ctx context.Context, opts StartOptions) (ContainerID, error) {
	out, err := e.RunCommandWithOutput(ctx, e.StartArgs(opts)...)
	if err != nil {
		return "", err
	}
	if id := strings.TrimSpace(out); id != "" {
		return ContainerID(id), nil
	}
	return ContainerID(opts.Name), nil
}

// Exec runs a command in a running container.
// A non-zero exit code is captured in ExecResult.ExitCode (not returned as error).
// Only infrastructure failures (binary not found, cancelled context) are errors.
func (e *BaseCLIEngine) Exec(ctx context.Context, id ContainerID, command []string, opts ExecOptions) (*ExecResult, error) {
	args := e.ExecArgs(id, command, opts)

	cmd := e.CreateCommand(ctx, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("exec in container %s: %w", id, ctxErr)
	}

	result := &ExecResult{}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, &CommandError{Binary: e.binaryPath, Args: args, Stderr: stderr.String(), Err: err}
		}
		result.ExitCode = exitErr.ExitCode()
	}
	result.Stdout = stdout.Bytes()
	result.Stderr = stderr.Bytes()

	return result, nil
}

// Remove removes a container.
func (e *BaseCLIEngine) Remove(ctx context.Context, id ContainerID, opts RemoveOptions) error {
	return e.RunCommandStatus(ctx, e.RemoveArgs(id, opts)...)
}

// --- Actionable Error Helpers ---

// pullImageError creates an actionable error for image pull failures.
func pullImageError(engine, image string, cause error) error {
	return issue.NewErrorContext().
		WithOperation("pull image").
		WithResource(image).
		WithSuggestion("Check that the image reference is spelled correctly").
		WithSuggestion("Verify network access to the registry (try: " + engine + " pull " + image + ")").
		Wrap(cause).
		BuildError()
}

// startContainerError creates an actionable error for container start failures.
func startContainerError(engine, image string, cause error) error {
	return issue.NewErrorContext().
		WithOperation("start inspection container").
		WithResource(image).
		WithSuggestion("Verify the image exists (try: " + engine + " image inspect " + image + ")").
		WithSuggestion("Foreign-architecture images need binfmt emulation registered on the host").
		WithSuggestion("Run with --verbose to see the engine output").
		Wrap(fmt.Errorf("%w: %w", ErrStartFailed, cause)).
		BuildError()
}
