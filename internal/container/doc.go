// SPDX-License-Identifier: MPL-2.0

// Package container runs ephemeral inspection containers.
//
// Engines abstract the container runtime: DockerEngine and PodmanEngine drive
// the respective CLI binaries through BaseCLIEngine, and APIEngine talks to the
// Docker daemon through the Engine SDK. A Session is the handle to one running
// container; it is opened detached with a TTY, accepts synchronous command
// execution (Call, Glob) and is force-removed together with its anonymous
// volumes on Close.
//
// Non-zero exit codes of executed commands are data, reported through
// ExecResult.ExitCode and CallResult.ReturnCode. Only infrastructure failures
// (missing engine binary, daemon errors, cancelled contexts) are returned as
// Go errors.
package container
