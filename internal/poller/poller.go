// SPDX-License-Identifier: MPL-2.0

package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/manylinux-inspector/manylinux-inspector/internal/cache"
	"github.com/manylinux-inspector/manylinux-inspector/internal/inspector"
	"github.com/manylinux-inspector/manylinux-inspector/internal/metrics"
	"github.com/manylinux-inspector/manylinux-inspector/internal/registry"
)

// DefaultWorkers is the number of images inspected concurrently.
const DefaultWorkers = 4

type (
	// Source lists repositories and their tags.
	Source interface {
		ListRepositories(ctx context.Context, namespace string) ([]registry.Repository, error)
		Tags(ctx context.Context, repo registry.Repository) ([]registry.Tag, error)
	}

	// Inspector inspects and caches one image.
	Inspector interface {
		Inspect(ctx context.Context, image string, force bool) (*inspector.Outcome, error)
	}

	// Clock provides the current time and interval waits.
	Clock interface {
		Now() time.Time
		After(d time.Duration) <-chan time.Time
	}

	// Options configures a Poller.
	Options struct {
		// Registry is the host used in image references (e.g. quay.io)
		Registry string
		// Namespace is the registry namespace to list
		Namespace string
		// WithinDays additionally inspects every tag modified in the last N days; 0 disables
		WithinDays int
		// Workers bounds concurrent inspections; <= 0 means DefaultWorkers
		Workers int
		// MaxLatestAge skips repositories whose latest tag is older; <= 0 means registry.DefaultMaxLatestAge
		MaxLatestAge time.Duration
		// LatestPath is the latest-tags index file; empty disables writing it
		LatestPath string
		// Force re-inspects images that are already cached
		Force bool
	}

	// Option configures optional Poller collaborators.
	Option func(*Poller)

	// Poller runs discovery and inspection passes.
	Poller struct {
		source    Source
		inspector Inspector
		opts      Options
		metrics   *metrics.Metrics
		clock     Clock
	}

	// Discovery is the result of listing the registry.
	Discovery struct {
		// Images to inspect, de-duplicated, in discovery order
		Images []registry.Image
		// Latest maps repository references to the tag "latest" points at
		Latest map[string]string
		// Errors holds per-repository failures
		Errors []error
	}

	// PassResult summarizes one pass.
	PassResult struct {
		Images        []string
		Inspected     int
		Skipped       int
		Failed        int
		LatestWritten bool
		Started       time.Time
		Duration      time.Duration
	}

	realClock struct{}
)

func (realClock) Now() time.Time { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// WithMetrics records passes and inspections in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Poller) {
		p.metrics = m
	}
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(p *Poller) {
		p.clock = c
	}
}

// New creates a Poller.
func New(source Source, ins Inspector, opts Options, options ...Option) *Poller {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.MaxLatestAge <= 0 {
		opts.MaxLatestAge = registry.DefaultMaxLatestAge
	}
	if opts.Namespace == "" {
		opts.Namespace = registry.DefaultNamespace
	}
	p := &Poller{source: source, inspector: ins, opts: opts, clock: realClock{}}
	for _, o := range options {
		o(p)
	}
	return p
}

// Discover lists the namespace and selects the images to inspect. A failure
// to list repositories is returned; failures for single repositories are
// collected in Discovery.Errors.
func (p *Poller) Discover(ctx context.Context) (*Discovery, error) {
	repos, err := p.source.ListRepositories(ctx, p.opts.Namespace)
	if err != nil {
		return nil, fmt.Errorf("list repositories in %s: %w", p.opts.Namespace, err)
	}

	now := p.clock.Now()
	d := &Discovery{Latest: map[string]string{}}
	seen := map[string]bool{}
	add := func(img registry.Image) {
		if ref := img.Ref(); !seen[ref] {
			seen[ref] = true
			d.Images = append(d.Images, img)
		}
	}

	for _, repo := range repos {
		tags, err := p.source.Tags(ctx, repo)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			slog.Warn("cannot list tags", "repository", repo.String(), "error", err)
			d.Errors = append(d.Errors, fmt.Errorf("tags of %s: %w", repo, err))
			continue
		}

		latest, err := registry.SelectLatest(tags, now, p.opts.MaxLatestAge)
		switch {
		case err == nil:
			img := registry.Image{Registry: p.opts.Registry, Repository: repo, Tag: latest.Name}
			d.Latest[img.RepoRef()] = latest.Name
			add(img)
		case errors.Is(err, registry.ErrLatestTooOld):
			slog.Info("ignoring stale repository", "repository", repo.String(), "reason", err)
		default:
			slog.Warn("no usable latest tag", "repository", repo.String(), "error", err)
		}

		if p.opts.WithinDays > 0 {
			within := time.Duration(p.opts.WithinDays) * 24 * time.Hour
			for _, t := range registry.SelectRecent(tags, now, within) {
				add(registry.Image{Registry: p.opts.Registry, Repository: repo, Tag: t.Name})
			}
		}
	}

	slog.Info("found images to inspect", "count", len(d.Images))
	for _, img := range d.Images {
		slog.Debug("queued", "image", img.Ref())
	}
	return d, nil
}

// RunOnce performs one pass. The returned error joins the per-image and
// per-repository failures; the PassResult is still valid in that case. A
// nil PassResult means the pass could not start.
func (p *Poller) RunOnce(ctx context.Context) (*PassResult, error) {
	started := p.clock.Now()
	d, err := p.Discover(ctx)
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordPassFailure()
		}
		return nil, err
	}

	res := &PassResult{Started: started}
	outcomes := make([]*inspector.Outcome, len(d.Images))
	errs := make([]error, len(d.Images))

	var g errgroup.Group
	g.SetLimit(p.opts.Workers)
	for i, img := range d.Images {
		ref := img.Ref()
		res.Images = append(res.Images, ref)
		g.Go(func() error {
			if ctx.Err() != nil {
				errs[i] = fmt.Errorf("inspect %s: %w", ref, ctx.Err())
				return nil
			}
			slog.Info("inspecting", "image", ref)
			out, err := p.inspector.Inspect(ctx, ref, p.opts.Force)
			if err != nil {
				slog.Error("inspection failed", "image", ref, "error", err)
				errs[i] = fmt.Errorf("inspect %s: %w", ref, err)
				return nil
			}
			outcomes[i] = out
			return nil
		})
	}
	_ = g.Wait()

	for i := range d.Images {
		switch {
		case errs[i] != nil:
			res.Failed++
			p.recordInspection(metrics.OutcomeFailed, 0)
		case outcomes[i].Skipped:
			res.Skipped++
			p.recordInspection(metrics.OutcomeSkipped, 0)
		default:
			res.Inspected++
			p.recordInspection(metrics.OutcomeInspected, outcomes[i].Duration)
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, errors.Join(append([]error{ctxErr}, errs...)...)
	}

	allErrs := slices.Concat(d.Errors, errs)
	switch {
	case p.opts.LatestPath == "":
	case len(d.Errors) > 0:
		slog.Warn("not updating latest index: some repositories could not be listed", "path", p.opts.LatestPath)
	default:
		written, err := cache.WriteLatestIfChanged(p.opts.LatestPath, d.Latest, p.clock.Now())
		if err != nil {
			allErrs = append(allErrs, err)
		}
		res.LatestWritten = written
		if written {
			slog.Info("latest images changed", "path", p.opts.LatestPath)
		} else if err == nil {
			slog.Info("no changes to latest images, not writing")
		}
	}

	res.Duration = p.clock.Now().Sub(started)
	if p.metrics != nil {
		p.metrics.RecordPass(p.clock.Now(), res.LatestWritten)
	}
	slog.Info("pass finished",
		"images", len(res.Images),
		"inspected", res.Inspected,
		"skipped", res.Skipped,
		"failed", res.Failed,
		"latest_written", res.LatestWritten)

	return res, errors.Join(allErrs...)
}

// Run performs a pass immediately and then one every interval until ctx is
// cancelled. onPass runs after every pass that started, including passes
// with failed images; its error is logged. interval <= 0 runs a single pass.
func (p *Poller) Run(ctx context.Context, interval time.Duration, onPass func(context.Context, *PassResult) error) error {
	for {
		res, err := p.RunOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			slog.Error("polling pass finished with errors", "error", err)
		}
		if res != nil && onPass != nil {
			if err := onPass(ctx, res); err != nil {
				slog.Error("post-pass hook failed", "error", err)
			}
		}
		if interval <= 0 {
			return err
		}

		slog.Debug("waiting for next pass", "interval", interval)
		select {
		case <-ctx.Done():
			return nil
		case <-p.clock.After(interval):
		}
	}
}

func (p *Poller) recordInspection(outcome string, d time.Duration) {
	if p.metrics != nil {
		p.metrics.RecordInspection(outcome, d)
	}
}
