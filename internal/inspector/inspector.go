// SPDX-License-Identifier: MPL-2.0

package inspector

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/manylinux-inspector/manylinux-inspector/internal/cache"
	"github.com/manylinux-inspector/manylinux-inspector/internal/container"
	"github.com/manylinux-inspector/manylinux-inspector/internal/issue"
	"github.com/manylinux-inspector/manylinux-inspector/internal/probe"
)

type (
	// Options configures how images are run.
	Options struct {
		// Simulate32Bit prefixes every command with linux32
		Simulate32Bit bool
		// Auto32Bit enables Simulate32Bit for images whose name ends in _i686
		Auto32Bit bool
		// Platform is passed to the engine when starting the container
		Platform string
		// Pull fetches the image before each inspection
		Pull bool
		// Timeout bounds one inspection; zero means no limit
		Timeout time.Duration
	}

	// Inspector runs the probe sequence in fresh containers and caches the
	// results.
	Inspector struct {
		engine container.Engine
		store  *cache.Store
		opts   Options
	}

	// Outcome describes one Inspect call.
	Outcome struct {
		Image string
		// Path is the cache file holding the report
		Path string
		// Skipped is true when a cached report was reused
		Skipped  bool
		Duration time.Duration
		Entry    *cache.Entry
	}
)

// New creates an Inspector.
func New(engine container.Engine, store *cache.Store, opts Options) *Inspector {
	return &Inspector{engine: engine, store: store, opts: opts}
}

// Store returns the report cache.
func (i *Inspector) Store() *cache.Store { return i.store }

// Inspect returns the cached report of image, or probes the image and saves
// a new report when none is cached or force is set.
func (i *Inspector) Inspect(ctx context.Context, image string, force bool) (*Outcome, error) {
	start := time.Now()
	entry, computed, err := i.store.Ensure(ctx, image, force, func(ctx context.Context) (*probe.Result, error) {
		return i.Probe(ctx, image)
	})
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		Image:    image,
		Path:     i.store.Path(image),
		Skipped:  !computed,
		Duration: time.Since(start),
		Entry:    entry,
	}
	if out.Skipped {
		slog.Info("already inspected, use --force to re-inspect", "image", image)
	} else {
		slog.Info("inspected", "image", image, "path", out.Path, "duration", out.Duration.Round(time.Millisecond))
	}
	return out, nil
}

// Probe runs the probe sequence in a fresh container without touching the cache.
func (i *Inspector) Probe(ctx context.Context, image string) (*probe.Result, error) {
	if i.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.opts.Timeout)
		defer cancel()
	}

	opts := container.SessionOptions{
		Image:         image,
		Simulate32Bit: i.simulate32Bit(image),
		Platform:      i.opts.Platform,
		Pull:          i.opts.Pull,
	}

	var res *probe.Result
	err := container.WithSession(ctx, i.engine, opts, func(s *container.Session) error {
		slog.Debug("probing", "image", image, "container", s.Name(), "linux32", opts.Simulate32Bit)
		var err error
		res, err = probe.Run(ctx, s)
		return err
	})
	if err != nil {
		return nil, inspectError(image, err)
	}
	return res, nil
}

func (i *Inspector) simulate32Bit(image string) bool {
	if i.opts.Simulate32Bit {
		return true
	}
	if !i.opts.Auto32Bit {
		return false
	}
	repo, _, _ := strings.Cut(image, ":")
	return strings.HasSuffix(repo, "_i686")
}

func inspectError(image string, cause error) error {
	return issue.NewErrorContext().
		WithOperation("inspect image").
		WithResource(image).
		WithSuggestion("Check that the container engine is running").
		WithSuggestion("Re-run with --verbose to see each probe command").
		Wrap(cause).
		BuildError()
}
