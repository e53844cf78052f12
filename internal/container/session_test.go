// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
)

// fakeEngine is an in-memory Engine that scripts exec results by command.
type fakeEngine struct {
	mu       sync.Mutex
	startErr []error
	execFn   func(command []string) (*ExecResult, error)
	pulled   []string
	started  []StartOptions
	execs    [][]string
	removed  []ContainerID
}

func (f *fakeEngine) Name() string { return "fake" }
func (f *fakeEngine) Available() bool { return true }
func (f *fakeEngine) Version(context.Context) (string, error) { return "1.0", nil }
func (f *fakeEngine) ImageExists(context.Context, string) (bool, error) { return true, nil }

func (f *fakeEngine) Pull(_ context.Context, image, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulled = append(f.pulled, image)
	return nil
}

func (f *fakeEngine) Start(_ context.Context, opts StartOptions) (ContainerID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, opts)
	if len(f.startErr) > 0 {
		err := f.startErr[0]
		f.startErr = f.startErr[1:]
		if err != nil {
			return "", err
		}
	}
	return ContainerID("id-" + opts.Name), nil
}

func (f *fakeEngine) Exec(_ context.Context, _ ContainerID, command []string, _ ExecOptions) (*ExecResult, error) {
	f.mu.Lock()
	f.execs = append(f.execs, command)
	fn := f.execFn
	f.mu.Unlock()
	if fn == nil {
		return &ExecResult{}, nil
	}
	return fn(command)
}

func (f *fakeEngine) Remove(_ context.Context, id ContainerID, opts RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !opts.Force || !opts.Volumes {
		return errors.New("session teardown must force-remove with volumes")
	}
	f.removed = append(f.removed, id)
	return nil
}

func TestOpen_EmptyImage(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), &fakeEngine{}, SessionOptions{Image: "  "}); !errors.Is(err, ErrEmptyImage) {
		t.Fatalf("Open() error = %v, want ErrEmptyImage", err)
	}
}

func TestOpen_StartsNamedTTYContainer(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	s, err := Open(context.Background(), engine, SessionOptions{Image: "img:1", Pull: true})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer s.Close(context.Background())

	if !strings.HasPrefix(s.Name(), NamePrefix) || len(s.Name()) != len(NamePrefix)+36 {
		t.Errorf("unexpected container name %q", s.Name())
	}
	if len(engine.started) != 1 || !engine.started[0].TTY || engine.started[0].Image != "img:1" {
		t.Errorf("unexpected start options %+v", engine.started)
	}
	if !slices.Equal(engine.pulled, []string{"img:1"}) {
		t.Errorf("pulled = %v", engine.pulled)
	}
	if len(engine.execs) != 1 || !slices.Equal(engine.execs[0], []string{"/bin/true"}) {
		t.Errorf("expected the no-op readiness check, got %v", engine.execs)
	}
}

func TestOpen_RetriesTransientStart(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{startErr: []error{errors.New("OCI runtime error: race")}}
	s, err := Open(context.Background(), engine, SessionOptions{Image: "img"})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer s.Close(context.Background())

	if len(engine.started) != 2 {
		t.Errorf("expected 2 start attempts, got %d", len(engine.started))
	}
}

func TestOpen_PermanentStartFailure(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{startErr: []error{errors.New("manifest unknown")}}
	_, err := Open(context.Background(), engine, SessionOptions{Image: "img"})
	if err == nil || !strings.Contains(err.Error(), "manifest unknown") {
		t.Fatalf("Open() error = %v", err)
	}
	if !errors.Is(err, ErrStartFailed) {
		t.Errorf("Open() error = %v, want it to wrap ErrStartFailed", err)
	}
	if len(engine.started) != 1 {
		t.Errorf("permanent failure should not be retried, got %d attempts", len(engine.started))
	}
}

func TestOpen_NotReadyTearsDown(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{execFn: func([]string) (*ExecResult, error) {
		return &ExecResult{ExitCode: 126, Stderr: []byte("exec format error")}, nil
	}}
	_, err := Open(context.Background(), engine, SessionOptions{Image: "img"})
	if !errors.Is(err, ErrContainerNotReady) {
		t.Fatalf("Open() error = %v, want ErrContainerNotReady", err)
	}
	if !strings.Contains(err.Error(), "exec format error") {
		t.Errorf("error should carry stderr: %v", err)
	}
	if len(engine.removed) != 1 {
		t.Errorf("container should be removed after failed readiness check, removed=%v", engine.removed)
	}
}

func TestSession_CallSimulate32Bit(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{execFn: func(command []string) (*ExecResult, error) {
		if command[len(command)-1] == "-m" {
			return &ExecResult{Stdout: []byte("i686\n")}, nil
		}
		return &ExecResult{}, nil
	}}
	s, err := Open(context.Background(), engine, SessionOptions{Image: "img", Simulate32Bit: true})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer s.Close(context.Background())

	res, err := s.Call(context.Background(), "uname", "-m")
	if err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if !res.OK() || res.Stdout != "i686\n" {
		t.Errorf("Call() = %+v", res)
	}
	if !slices.Equal(res.Args, []string{"uname", "-m"}) {
		t.Errorf("Args should not include the linux32 prefix: %v", res.Args)
	}
	last := engine.execs[len(engine.execs)-1]
	if !slices.Equal(last, []string{"linux32", "uname", "-m"}) {
		t.Errorf("exec command = %v", last)
	}
	if first := engine.execs[0]; !slices.Equal(first, []string{"linux32", "/bin/true"}) {
		t.Errorf("readiness check should also be prefixed, got %v", first)
	}
}

func TestSession_CallNonZeroAndInvalidUTF8(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{execFn: func(command []string) (*ExecResult, error) {
		if command[0] == "which" {
			return &ExecResult{ExitCode: 1, Stderr: []byte("no dnf in\xff")}, nil
		}
		return &ExecResult{}, nil
	}}
	s, err := Open(context.Background(), engine, SessionOptions{Image: "img"})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer s.Close(context.Background())

	res, err := s.Call(context.Background(), "which", "dnf")
	if err != nil {
		t.Fatalf("non-zero exit must not be an error: %v", err)
	}
	if res.OK() || res.ReturnCode != 1 {
		t.Errorf("Call() = %+v", res)
	}
	if res.Stderr != "no dnf in\uFFFD" {
		t.Errorf("Stderr = %q", res.Stderr)
	}

	if _, err := s.Call(context.Background()); !errors.Is(err, ErrEmptyCommand) {
		t.Errorf("Call() without args error = %v", err)
	}
}

func TestSession_Glob(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{execFn: func(command []string) (*ExecResult, error) {
		if command[0] == "sh" {
			if !strings.Contains(command[2], "/opt/python/*/bin/python") {
				return &ExecResult{ExitCode: 2, Stderr: []byte("bad script")}, nil
			}
			return &ExecResult{Stdout: []byte("/opt/python/cp39-cp39/bin/python\n/opt/python/cp311-cp311/bin/python\n")}, nil
		}
		return &ExecResult{}, nil
	}}
	s, err := Open(context.Background(), engine, SessionOptions{Image: "img"})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer s.Close(context.Background())

	got, err := s.Glob(context.Background(), "/opt/python", "*/bin/python")
	if err != nil {
		t.Fatalf("Glob() error: %v", err)
	}
	want := []string{"/opt/python/cp311-cp311/bin/python", "/opt/python/cp39-cp39/bin/python"}
	if !slices.Equal(got, want) {
		t.Errorf("Glob() = %v, want %v", got, want)
	}

	if _, err := s.Glob(context.Background(), "/opt", "*; rm -rf /"); !errors.Is(err, ErrInvalidGlob) {
		t.Errorf("Glob() with shell metacharacters error = %v", err)
	}
}

func TestSession_GlobNoMatch(t *testing.T) {
	t.Parallel()

	s, err := Open(context.Background(), &fakeEngine{}, SessionOptions{Image: "img"})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer s.Close(context.Background())

	got, err := s.Glob(context.Background(), "/opt/python", "*/bin/python")
	if err != nil {
		t.Fatalf("Glob() error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Glob() = %#v, want empty non-nil slice", got)
	}
}

func TestSession_CloseIdempotentAfterCancel(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	s, err := Open(context.Background(), engine, SessionOptions{Image: "img"})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}
	if len(engine.removed) != 1 || engine.removed[0] != s.ID() {
		t.Errorf("removed = %v, want exactly [%s]", engine.removed, s.ID())
	}
	if _, err := s.Call(context.Background(), "true"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Call() after Close error = %v", err)
	}
}

func TestWithSession_ErrorPrecedence(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	probeErr := errors.New("probe failed")
	err := WithSession(context.Background(), engine, SessionOptions{Image: "img"}, func(s *Session) error {
		return probeErr
	})
	if !errors.Is(err, probeErr) {
		t.Fatalf("WithSession() error = %v, want probe error", err)
	}
	if len(engine.removed) != 1 {
		t.Errorf("session should be closed even when fn fails")
	}
}
