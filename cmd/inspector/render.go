// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/manylinux-inspector/manylinux-inspector/internal/config"
	"github.com/manylinux-inspector/manylinux-inspector/internal/site"
	"github.com/manylinux-inspector/manylinux-inspector/internal/watch"
)

const renderDebounce = 500 * time.Millisecond

func newRenderCommand(app *App) *cobra.Command {
	var watchMode bool

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the cached reports into the static site",
		Long: `Render the cached reports into the static site.

Reports are grouped into versions (one image name and tag across
architectures) and written to the site directory together with the search
index and index.html. With --watch the site is rendered again whenever a
report or latest.json changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := app.loadConfig(ctx)
			if err != nil {
				return app.fail(cmd, err)
			}

			renderer := app.renderer(cfg)
			res, err := renderer.Render(ctx)
			if err != nil {
				return app.fail(cmd, err)
			}
			app.printRender(cfg.SiteDir, res)

			if !watchMode {
				return nil
			}
			if err := app.watchAndRender(ctx, cfg, renderer); err != nil {
				return app.fail(cmd, err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "render again when reports change")
	return cmd
}

// watchAndRender re-renders the site on report or latest.json changes
// until ctx is cancelled.
func (a *App) watchAndRender(ctx context.Context, cfg *config.Config, renderer *site.Renderer) error {
	w, err := watch.New(watch.Config{
		Dirs:     []string{cfg.CacheDir, cfg.DataDir},
		Patterns: []string{"*.json"},
		// the site's own index when site_dir overlaps data_dir
		Ignore:   []string{"index.json"},
		Debounce: renderDebounce,
		OnChange: func(ctx context.Context, changed []string) error {
			slog.Debug("reports changed", "files", len(changed))
			res, err := renderer.Render(ctx)
			if err != nil {
				return err
			}
			a.printRender(cfg.SiteDir, res)
			return nil
		},
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "%s watching %s and %s %s\n", SubtitleStyle.Render("→"),
		RefStyle.Render(cfg.CacheDir), RefStyle.Render(cfg.DataDir), SubtitleStyle.Render("(Ctrl+C to stop)"))
	return w.Run(ctx)
}

func (a *App) printRender(siteDir string, res *site.RenderResult) {
	fmt.Fprintf(a.stdout, "%s rendered %d reports into %d versions in %s",
		SuccessStyle.Render(iconSuccess), res.Reports, res.Versions, RefStyle.Render(siteDir))
	if res.Skipped > 0 {
		fmt.Fprintf(a.stdout, " %s", WarningStyle.Render(fmt.Sprintf("(%d unparseable image names skipped)", res.Skipped)))
	}
	fmt.Fprintln(a.stdout)
}
