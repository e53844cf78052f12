// SPDX-License-Identifier: MPL-2.0

package container

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

const apiPingTimeout = 5 * time.Second

var _ dockerAPI = (*client.Client)(nil)

type (
	// dockerAPI is the subset of the Docker SDK client used by APIEngine.
	dockerAPI interface {
		Ping(ctx context.Context) (types.Ping, error)
		ServerVersion(ctx context.Context) (types.Version, error)
		ImageInspect(ctx context.Context, imageID string, opts ...client.ImageInspectOption) (image.InspectResponse, error)
		ImagePull(ctx context.Context, ref string, opts image.PullOptions) (io.ReadCloser, error)
		ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
		ContainerStart(ctx context.Context, containerID string, opts container.StartOptions) error
		ContainerExecCreate(ctx context.Context, containerID string, opts container.ExecOptions) (container.ExecCreateResponse, error)
		ContainerExecAttach(ctx context.Context, execID string, opts container.ExecAttachOptions) (types.HijackedResponse, error)
		ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error)
		ContainerRemove(ctx context.Context, containerID string, opts container.RemoveOptions) error
		Close() error
	}

	// APIEngine implements the Engine interface by talking to the Docker daemon
	// through the Engine API instead of the docker binary.
	APIEngine struct {
		client dockerAPI
	}
)

// NewAPIEngine creates an engine from the standard DOCKER_* environment,
// negotiating the API version with the daemon.
func NewAPIEngine() (*APIEngine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &APIEngine{client: cli}, nil
}

// Name returns the engine name.
func (e *APIEngine) Name() string {
	return string(EngineTypeDockerAPI)
}

// Available reports whether the daemon answers a ping.
func (e *APIEngine) Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), apiPingTimeout)
	defer cancel()
	_, err := e.client.Ping(ctx)
	return err == nil
}

// Version returns the daemon version.
func (e *APIEngine) Version(ctx context.Context) (string, error) {
	v, err := e.client.ServerVersion(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get docker version: %w", err)
	}
	return v.Version, nil
}

// ImageExists checks if an image is present locally.
func (e *APIEngine) ImageExists(ctx context.Context, ref string) (bool, error) {
	_, err := e.client.ImageInspect(ctx, ref)
	if err == nil {
		return true, nil
	}
	if client.IsErrNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("inspect image %s: %w", ref, err)
}

// Pull fetches an image, draining the progress stream.
func (e *APIEngine) Pull(ctx context.Context, ref, platform string) error {
	reader, err := e.client.ImagePull(ctx, ref, image.PullOptions{Platform: platform})
	if err != nil {
		return pullImageError(e.Name(), ref, err)
	}
	defer reader.Close()

	if _, err := io.Copy(io.Discard, reader); err != nil {
		return pullImageError(e.Name(), ref, err)
	}
	return nil
}

// Start creates and starts a detached container. An image missing locally is
// pulled and the create retried once, matching `docker run`.
func (e *APIEngine) Start(ctx context.Context, opts StartOptions) (ContainerID, error) {
	config := &container.Config{
		Image: opts.Image,
		Tty:   opts.TTY,
		Env:   envList(opts.Env),
	}
	platform := parsePlatform(opts.Platform)

	resp, err := e.client.ContainerCreate(ctx, config, &container.HostConfig{}, nil, platform, opts.Name)
	if client.IsErrNotFound(err) {
		slog.Debug("image not present locally, pulling", "image", opts.Image)
		if pullErr := e.Pull(ctx, opts.Image, opts.Platform); pullErr != nil {
			return "", pullErr
		}
		resp, err = e.client.ContainerCreate(ctx, config, &container.HostConfig{}, nil, platform, opts.Name)
	}
	if err != nil {
		return "", fmt.Errorf("create container for %s: %w", opts.Image, err)
	}
	for _, w := range resp.Warnings {
		slog.Warn("container create warning", "container", opts.Name, "warning", w)
	}

	if err := e.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = e.client.ContainerRemove(context.WithoutCancel(ctx), resp.ID, container.RemoveOptions{Force: true, RemoveVolumes: true})
		return "", fmt.Errorf("start container %s: %w", opts.Name, err)
	}

	return ContainerID(resp.ID), nil
}

// Exec runs a command in a running container. The exit code is read back
// with an exec inspect once the output stream is drained.
func (e *APIEngine) Exec(ctx context.Context, id ContainerID, command []string, opts ExecOptions) (*ExecResult, error) {
	execResp, err := e.client.ContainerExecCreate(ctx, string(id), container.ExecOptions{
		Cmd:          command,
		Env:          envList(opts.Env),
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create exec in %s: %w", id, err)
	}

	attachResp, err := e.client.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("attach exec in %s: %w", id, err)
	}
	defer attachResp.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attachResp.Reader); err != nil {
		return nil, fmt.Errorf("read exec output in %s: %w", id, err)
	}

	inspect, err := e.client.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return nil, fmt.Errorf("inspect exec in %s: %w", id, err)
	}

	return &ExecResult{
		ExitCode: inspect.ExitCode,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
	}, nil
}

// Remove removes a container.
func (e *APIEngine) Remove(ctx context.Context, id ContainerID, opts RemoveOptions) error {
	err := e.client.ContainerRemove(ctx, string(id), container.RemoveOptions{
		Force:         opts.Force,
		RemoveVolumes: opts.Volumes,
	})
	if err != nil {
		return fmt.Errorf("remove container %s: %w", id, err)
	}
	return nil
}

// Close releases the underlying API client.
func (e *APIEngine) Close() error {
	return e.client.Close()
}

func envList(env map[string]string) []string {
	var out []string
	for _, k := range slices.Sorted(maps.Keys(env)) {
		out = append(out, k+"="+env[k])
	}
	return out
}

// parsePlatform converts "os/arch[/variant]" into an OCI platform.
func parsePlatform(platform string) *ocispec.Platform {
	if platform == "" {
		return nil
	}
	parts := strings.SplitN(platform, "/", 3)
	p := &ocispec.Platform{OS: parts[0]}
	if len(parts) > 1 {
		p.Architecture = parts[1]
	}
	if len(parts) > 2 {
		p.Variant = parts[2]
	}
	return p
}
