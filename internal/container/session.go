// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"mvdan.cc/sh/v3/syntax"
)

const (
	// NamePrefix prefixes the names of all inspection containers.
	NamePrefix = "manylinuxinspector-"

	startAttempts = 3
	startBackoff  = time.Second
	closeTimeout  = 30 * time.Second
)

var (
	// ErrEmptyImage is returned when a session is opened without an image.
	ErrEmptyImage = errors.New("must have a non-empty image to run")
	// ErrContainerNotReady is returned when the started container fails the no-op readiness check.
	ErrContainerNotReady = errors.New("container is not ready")
	// ErrStartFailed is returned when the engine could not start the container.
	ErrStartFailed = errors.New("container start failed")
	// ErrEmptyCommand is returned when Call is given no arguments.
	ErrEmptyCommand = errors.New("empty command")
	// ErrSessionClosed is returned when a closed session is used.
	ErrSessionClosed = errors.New("session is closed")
	// ErrInvalidGlob is returned for glob patterns with characters outside the glob alphabet.
	ErrInvalidGlob = errors.New("invalid glob pattern")

	noopCommand = []string{"/bin/true"}

	globPatternRe = regexp.MustCompile(`^[A-Za-z0-9_.*?/\[\]!+-]+$`)
)

type (
	// SessionOptions configures an inspection container.
	SessionOptions struct {
		// Image is the image reference to run
		Image string
		// Simulate32Bit prefixes every executed command with linux32
		Simulate32Bit bool
		// Platform selects a non-native platform (e.g. "linux/arm64")
		Platform string
		// Pull fetches the image before starting, even when present locally
		Pull bool
	}

	// Session is a handle to one running inspection container.
	Session struct {
		engine Engine
		opts   SessionOptions
		name   string
		id     ContainerID

		mu     sync.Mutex
		closed bool
	}

	// CallResult is the captured outcome of one command.
	CallResult struct {
		Args       []string
		ReturnCode int
		Stdout     string
		Stderr     string
	}
)

// OK reports whether the command exited with status 0.
func (r CallResult) OK() bool {
	return r.ReturnCode == 0
}

// Open starts a detached container with a TTY from opts.Image and checks
// that it can execute commands. Transient engine failures during start are
// retried. If the readiness check fails the container is removed again.
func Open(ctx context.Context, engine Engine, opts SessionOptions) (*Session, error) {
	if strings.TrimSpace(opts.Image) == "" {
		return nil, ErrEmptyImage
	}

	if opts.Pull {
		if err := engine.Pull(ctx, opts.Image, opts.Platform); err != nil {
			return nil, err
		}
	}

	s := &Session{
		engine: engine,
		opts:   opts,
		name:   NamePrefix + uuid.NewString(),
	}

	err := RetryWithBackoff(ctx, startAttempts, startBackoff, func(attempt int) (bool, error) {
		id, err := engine.Start(ctx, StartOptions{
			Image:    opts.Image,
			Name:     s.name,
			Platform: opts.Platform,
			TTY:      true,
		})
		if err != nil {
			transient := IsTransientError(err)
			if transient {
				slog.Debug("transient container start failure", "image", opts.Image, "attempt", attempt+1, "error", err)
				// A failed run may still leave a created container behind under our name.
				_ = engine.Remove(context.WithoutCancel(ctx), ContainerID(s.name), RemoveOptions{Force: true, Volumes: true})
			}
			return transient, err
		}
		s.id = id
		return false, nil
	})
	if err != nil {
		return nil, startContainerError(engine.Name(), opts.Image, err)
	}

	slog.Debug("container started", "image", opts.Image, "name", s.name, "engine", engine.Name())

	noop, err := s.Call(ctx, noopCommand...)
	if err != nil {
		return nil, errors.Join(err, s.Close(ctx))
	}
	if !noop.OK() {
		notReady := fmt.Errorf("%w: %s exited %d: %s", ErrContainerNotReady, noopCommand[0], noop.ReturnCode, strings.TrimSpace(noop.Stderr))
		return nil, errors.Join(notReady, s.Close(ctx))
	}

	return s, nil
}

// WithSession opens a session, calls fn and always closes the session.
// An error from fn takes precedence; when both fn and Close fail the errors are joined.
func WithSession(ctx context.Context, engine Engine, opts SessionOptions, fn func(*Session) error) (err error) {
	s, err := Open(ctx, engine, opts)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(ctx); closeErr != nil {
			if err == nil {
				err = closeErr
			} else {
				err = errors.Join(err, closeErr)
			}
		}
	}()
	return fn(s)
}

// Name returns the container name.
func (s *Session) Name() string { return s.name }

// ID returns the container ID reported by the engine.
func (s *Session) ID() ContainerID { return s.id }

// Image returns the image the container runs.
func (s *Session) Image() string { return s.opts.Image }

// Call runs args synchronously inside the container and captures stdout,
// stderr and the return code separately. A non-zero return code is not an
// error. Output that is not valid UTF-8 is decoded with replacement characters.
func (s *Session) Call(ctx context.Context, args ...string) (CallResult, error) {
	if len(args) == 0 {
		return CallResult{}, ErrEmptyCommand
	}
	if s.isClosed() {
		return CallResult{}, ErrSessionClosed
	}

	command := args
	if s.opts.Simulate32Bit {
		command = append([]string{linux32Prefix}, args...)
	}

	res, err := s.engine.Exec(ctx, s.id, command, ExecOptions{})
	if err != nil {
		return CallResult{}, err
	}

	return CallResult{
		Args:       slices.Clone(args),
		ReturnCode: res.ExitCode,
		Stdout:     decodeOutput(res.Stdout),
		Stderr:     decodeOutput(res.Stderr),
	}, nil
}

// Glob expands pattern relative to dir inside the container and returns the
// existing matches in sorted order. No match yields an empty slice.
func (s *Session) Glob(ctx context.Context, dir, pattern string) ([]string, error) {
	if dir == "" || !globPatternRe.MatchString(pattern) {
		return nil, fmt.Errorf("%w: %q in %q", ErrInvalidGlob, pattern, dir)
	}

	quotedDir, err := syntax.Quote(strings.TrimSuffix(dir, "/"), syntax.LangPOSIX)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGlob, err)
	}

	script := fmt.Sprintf(`for f in %s/%s; do if [ -e "$f" ]; then printf '%%s\n' "$f"; fi; done`, quotedDir, pattern)
	res, err := s.Call(ctx, "sh", "-c", script)
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, fmt.Errorf("glob %s/%s: exit %d: %s", dir, pattern, res.ReturnCode, strings.TrimSpace(res.Stderr))
	}

	matches := []string{}
	for line := range strings.SplitSeq(res.Stdout, "\n") {
		line = strings.TrimRight(line, "\r")
		if line != "" {
			matches = append(matches, line)
		}
	}
	slices.Sort(matches)
	return matches, nil
}

// Close force-removes the container and its anonymous volumes. It runs even
// when ctx is already cancelled and is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	rmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()

	target := s.id
	if target == "" {
		target = ContainerID(s.name)
	}
	if err := s.engine.Remove(rmCtx, target, RemoveOptions{Force: true, Volumes: true}); err != nil {
		return fmt.Errorf("remove container %s: %w", s.name, err)
	}
	slog.Debug("container removed", "name", s.name)
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func decodeOutput(b []byte) string {
	return strings.ToValidUTF8(string(b), "\uFFFD")
}
