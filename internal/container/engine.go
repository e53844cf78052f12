// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"
)

const (
	EngineTypePodman    EngineType = "podman"
	EngineTypeDocker    EngineType = "docker"
	EngineTypeDockerAPI EngineType = "docker-api"
)

type (
	// Engine defines the container operations needed to inspect an image.
	Engine interface {
		// Name returns the engine name (docker, podman or docker-api)
		Name() string
		// Available checks if the engine is available on the system
		Available() bool
		// Version returns the engine version
		Version(ctx context.Context) (string, error)
		// ImageExists checks if an image is present locally
		ImageExists(ctx context.Context, image string) (bool, error)
		// Pull fetches an image from its registry
		Pull(ctx context.Context, image string, platform string) error
		// Start creates and starts a detached container and returns its ID
		Start(ctx context.Context, opts StartOptions) (ContainerID, error)
		// Exec runs a command in a running container, capturing its output
		Exec(ctx context.Context, id ContainerID, command []string, opts ExecOptions) (*ExecResult, error)
		// Remove removes a container
		Remove(ctx context.Context, id ContainerID, opts RemoveOptions) error
	}

	// EngineType identifies the container engine type
	EngineType string

	// ContainerID identifies a container. Engines accept either the ID the
	// engine assigned or the container name.
	ContainerID string

	// StartOptions contains options for starting a long-lived container.
	StartOptions struct {
		// Image is the image to run
		Image string
		// Name is the container name
		Name string
		// Platform selects a non-native platform (e.g. "linux/arm64")
		Platform string
		// TTY allocates a pseudo-TTY so the image's default shell stays up
		TTY bool
		// Env contains environment variables
		Env map[string]string
	}

	// ExecOptions contains options for executing a command in a container.
	ExecOptions struct {
		// Env contains environment variables
		Env map[string]string
	}

	// RemoveOptions contains options for removing a container.
	RemoveOptions struct {
		// Force kills a running container before removal
		Force bool
		// Volumes removes anonymous volumes attached to the container
		Volumes bool
	}

	// ExecResult contains the outcome of a command executed in a container.
	ExecResult struct {
		// ExitCode is the exit code of the command
		ExitCode int
		// Stdout is the raw standard output
		Stdout []byte
		// Stderr is the raw standard error
		Stderr []byte
	}

	// ErrEngineNotAvailable is returned when a container engine is not available
	ErrEngineNotAvailable struct {
		Engine string
		Reason string
	}
)

func (t EngineType) String() string { return string(t) }

// Validate returns an error if the EngineType is not a known engine.
func (t EngineType) Validate() error {
	switch t {
	case EngineTypeDocker, EngineTypePodman, EngineTypeDockerAPI:
		return nil
	default:
		return fmt.Errorf("unknown container engine type: %s", t)
	}
}

func (id ContainerID) String() string { return string(id) }

func (e *ErrEngineNotAvailable) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

// NewEngine creates a new container engine based on preference.
// When the preferred engine is not available, the other CLI engine is tried.
func NewEngine(preferredType EngineType) (Engine, error) {
	switch preferredType {
	case EngineTypePodman:
		engine := NewPodmanEngine()
		if engine.Available() {
			return engine, nil
		}
		// Fall back to Docker
		dockerEngine := NewDockerEngine()
		if dockerEngine.Available() {
			return dockerEngine, nil
		}
		return nil, &ErrEngineNotAvailable{
			Engine: "podman",
			Reason: "podman is not installed or not accessible, and docker fallback is also not available",
		}

	case EngineTypeDocker:
		engine := NewDockerEngine()
		if engine.Available() {
			return engine, nil
		}
		// Fall back to Podman
		podmanEngine := NewPodmanEngine()
		if podmanEngine.Available() {
			return podmanEngine, nil
		}
		return nil, &ErrEngineNotAvailable{
			Engine: "docker",
			Reason: "docker is not installed or not accessible, and podman fallback is also not available",
		}

	case EngineTypeDockerAPI:
		engine, err := NewAPIEngine()
		if err == nil && engine.Available() {
			return engine, nil
		}
		if engine != nil {
			_ = engine.Close()
		}
		// Fall back to the CLI
		dockerEngine := NewDockerEngine()
		if dockerEngine.Available() {
			return dockerEngine, nil
		}
		reason := "the docker daemon API is not reachable"
		if err != nil {
			reason = err.Error()
		}
		return nil, &ErrEngineNotAvailable{Engine: "docker-api", Reason: reason}

	default:
		return nil, preferredType.Validate()
	}
}

// AutoDetectEngine tries to find an available container engine.
// Docker is tried first since the published manylinux images are built and
// tested against it.
func AutoDetectEngine() (Engine, error) {
	docker := NewDockerEngine()
	if docker.Available() {
		return docker, nil
	}

	podman := NewPodmanEngine()
	if podman.Available() {
		return podman, nil
	}

	return nil, &ErrEngineNotAvailable{
		Engine: "any",
		Reason: "no container engine (docker or podman) is available on this system",
	}
}
