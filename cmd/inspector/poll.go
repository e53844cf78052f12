// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/manylinux-inspector/manylinux-inspector/internal/config"
	"github.com/manylinux-inspector/manylinux-inspector/internal/inspector"
	"github.com/manylinux-inspector/manylinux-inspector/internal/metrics"
	"github.com/manylinux-inspector/manylinux-inspector/internal/poller"
)

type pollFlags struct {
	withinDays  int
	workers     int
	interval    time.Duration
	once        bool
	force       bool
	render      bool
	metricsAddr string
}

func newPollCommand(app *App) *cobra.Command {
	var flags pollFlags

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Inspect the latest (and recently updated) images of the registry",
		Long: `Inspect the latest (and recently updated) images of the registry.

Every repository of the configured namespace is listed. The tag that "latest"
points at is inspected, and with --within-days every tag modified in the last
N days as well. latest.json is rewritten when the set of latest tags changes.

Without --once the pass is repeated every --interval until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPoll(cmd, app, &flags)
		},
	}

	cmd.Flags().IntVar(&flags.withinDays, "within-days", -1, "also inspect tags modified in the last N days (default from config)")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "number of concurrent inspections (default from config)")
	cmd.Flags().DurationVar(&flags.interval, "interval", 0, "time between passes (default from config)")
	cmd.Flags().BoolVar(&flags.once, "once", false, "run a single pass and exit")
	cmd.Flags().BoolVar(&flags.force, "force", false, "re-inspect images that already have a cached report")
	cmd.Flags().BoolVar(&flags.render, "render", false, "render the site after every pass")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve /metrics, /healthz and the site on this address (e.g. :9090)")
	return cmd
}

// apply overlays explicitly set flags on the poll configuration.
func (f *pollFlags) apply(cmd *cobra.Command, cfg *config.PollConfig) {
	if cmd.Flags().Changed("within-days") {
		cfg.WithinDays = f.withinDays
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = f.workers
	}
	if cmd.Flags().Changed("interval") {
		cfg.Interval = f.interval
	}
	if f.once {
		cfg.Interval = 0
	}
}

func runPoll(cmd *cobra.Command, app *App, flags *pollFlags) error {
	cfg, err := app.loadConfig(cmd.Context())
	if err != nil {
		return app.fail(cmd, err)
	}
	flags.apply(cmd, &cfg.Poll)
	if err := cfg.Validate(); err != nil {
		return app.fail(cmd, err)
	}

	eng, err := app.engine(cfg)
	if err != nil {
		return app.fail(cmd, err)
	}

	client := app.registryClient(cfg)
	m := metrics.New()
	p := poller.New(client, app.inspector(cfg, eng, inspector.Options{}), poller.Options{
		Registry:     client.Host(),
		Namespace:    cfg.Registry.Namespace,
		WithinDays:   cfg.Poll.WithinDays,
		Workers:      cfg.Poll.Workers,
		MaxLatestAge: cfg.Poll.MaxLatestAge(),
		LatestPath:   cfg.LatestPath(),
		Force:        flags.force,
	}, poller.WithMetrics(m))

	onPass := func(ctx context.Context, res *poller.PassResult) error {
		app.printPass(res)
		if !flags.render {
			return nil
		}
		rendered, err := app.renderer(cfg).Render(ctx)
		if err != nil {
			return err
		}
		app.printRender(cfg.SiteDir, rendered)
		return nil
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if flags.metricsAddr != "" {
		siteDir := ""
		if flags.render {
			siteDir = cfg.SiteDir
		}
		g.Go(func() error {
			return metrics.Serve(gctx, flags.metricsAddr, metrics.Router(m, siteDir), nil)
		})
	}
	g.Go(func() error {
		defer cancel()
		return p.Run(gctx, cfg.Poll.Interval, onPass)
	})

	if err := g.Wait(); err != nil {
		if id, ok := issueForError(err); ok {
			app.renderIssue(id)
		}
		return app.fail(cmd, err)
	}
	return nil
}

func (a *App) printPass(res *poller.PassResult) {
	icon := SuccessStyle.Render(iconSuccess)
	if res.Failed > 0 {
		icon = ErrorStyle.Render(iconError)
	}
	fmt.Fprintf(a.stdout, "%s pass: %d images, %d inspected, %d cached, %d failed %s\n",
		icon, len(res.Images), res.Inspected, res.Skipped, res.Failed,
		SubtitleStyle.Render(fmt.Sprintf("(%s)", res.Duration.Round(time.Second))))
	if res.LatestWritten {
		fmt.Fprintf(a.stdout, "  latest tags changed, %s\n", SubtitleStyle.Render("latest.json updated"))
	}
}
