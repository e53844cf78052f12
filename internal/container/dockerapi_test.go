// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

type (
	// notFoundError satisfies the errdefs NotFound classification.
	notFoundError struct{ msg string }

	// fakeDockerAPI answers the calls APIEngine.Start makes. Unused methods
	// fall through to the nil embedded interface.
	fakeDockerAPI struct {
		dockerAPI

		present   map[string]bool
		pullErr   error
		creates   []string
		pulls     []string
		platforms []string
		started   []string
	}
)

func (e notFoundError) Error() string { return e.msg }
func (notFoundError) NotFound() {}

func (f *fakeDockerAPI) ContainerCreate(_ context.Context, config *container.Config, _ *container.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, name string) (container.CreateResponse, error) {
	f.creates = append(f.creates, config.Image)
	if !f.present[config.Image] {
		return container.CreateResponse{}, notFoundError{msg: "No such image: " + config.Image}
	}
	return container.CreateResponse{ID: "id-" + name}, nil
}

func (f *fakeDockerAPI) ImagePull(_ context.Context, ref string, opts image.PullOptions) (io.ReadCloser, error) {
	f.pulls = append(f.pulls, ref)
	f.platforms = append(f.platforms, opts.Platform)
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	f.present[ref] = true
	return io.NopCloser(strings.NewReader(`{"status":"Downloaded newer image"}`)), nil
}

func (f *fakeDockerAPI) ContainerStart(_ context.Context, id string, _ container.StartOptions) error {
	f.started = append(f.started, id)
	return nil
}

func (f *fakeDockerAPI) ContainerRemove(context.Context, string, container.RemoveOptions) error {
	return nil
}

func TestAPIEngine_StartUsesLocalImage(t *testing.T) {
	t.Parallel()

	fake := &fakeDockerAPI{present: map[string]bool{"alpine:3.20": true}}
	e := &APIEngine{client: fake}

	id, err := e.Start(t.Context(), StartOptions{Image: "alpine:3.20", Name: "c1", TTY: true})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if id != "id-c1" {
		t.Errorf("Start() = %q, want %q", id, "id-c1")
	}
	if len(fake.pulls) != 0 {
		t.Errorf("pulled %v, want no pull for a local image", fake.pulls)
	}
}

func TestAPIEngine_StartPullsMissingImage(t *testing.T) {
	t.Parallel()

	fake := &fakeDockerAPI{present: map[string]bool{}}
	e := &APIEngine{client: fake}

	id, err := e.Start(t.Context(), StartOptions{Image: "quay.io/pypa/manylinux_2_28_aarch64:latest", Name: "c1", Platform: "linux/arm64"})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if id != "id-c1" {
		t.Errorf("Start() = %q, want %q", id, "id-c1")
	}
	if len(fake.pulls) != 1 || fake.pulls[0] != "quay.io/pypa/manylinux_2_28_aarch64:latest" {
		t.Errorf("pulls = %v, want the missing image once", fake.pulls)
	}
	if fake.platforms[0] != "linux/arm64" {
		t.Errorf("pull platform = %q, want linux/arm64", fake.platforms[0])
	}
	if len(fake.creates) != 2 {
		t.Errorf("ContainerCreate called %d times, want 2", len(fake.creates))
	}
	if len(fake.started) != 1 {
		t.Errorf("ContainerStart called %d times, want 1", len(fake.started))
	}
}

func TestAPIEngine_StartPullFailure(t *testing.T) {
	t.Parallel()

	pullErr := errors.New("manifest unknown")
	fake := &fakeDockerAPI{present: map[string]bool{}, pullErr: pullErr}
	e := &APIEngine{client: fake}

	_, err := e.Start(t.Context(), StartOptions{Image: "quay.io/pypa/missing:latest", Name: "c1"})
	if !errors.Is(err, pullErr) {
		t.Fatalf("Start() error = %v, want the pull error", err)
	}
	if len(fake.creates) != 1 {
		t.Errorf("ContainerCreate called %d times, want 1 after a failed pull", len(fake.creates))
	}
	if len(fake.started) != 0 {
		t.Error("no container may be started when the pull fails")
	}
}
