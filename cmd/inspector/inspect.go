// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/manylinux-inspector/manylinux-inspector/internal/inspector"
	"github.com/manylinux-inspector/manylinux-inspector/internal/issue"
)

type inspectFlags struct {
	force    bool
	bit32    bool
	pull     bool
	platform string
}

func (f *inspectFlags) register(cmd *cobra.Command, withForce bool) {
	if withForce {
		cmd.Flags().BoolVar(&f.force, "force", false, "re-inspect images that already have a cached report")
	}
	cmd.Flags().BoolVar(&f.bit32, "32bit", false, "run every command through linux32")
	cmd.Flags().BoolVar(&f.pull, "pull", false, "pull the image before inspecting it")
	cmd.Flags().StringVar(&f.platform, "platform", "", "platform to run a foreign-architecture image as (e.g. linux/arm64)")
}

func (f *inspectFlags) options() inspector.Options {
	return inspector.Options{Simulate32Bit: f.bit32, Pull: f.pull, Platform: f.platform}
}

func newInspectCommand(app *App) *cobra.Command {
	var flags inspectFlags

	cmd := &cobra.Command{
		Use:   "inspect <image>...",
		Short: "Inspect images and cache their reports",
		Long: `Inspect images and cache their reports.

Each image is started in a fresh container and probed. The report is written
to the cache directory unless one already exists, in which case the image is
skipped; use --force to inspect it again.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, app, &flags, args)
		},
	}
	flags.register(cmd, true)
	return cmd
}

func runInspect(cmd *cobra.Command, app *App, flags *inspectFlags, images []string) error {
	ctx := cmd.Context()

	cfg, err := app.loadConfig(ctx)
	if err != nil {
		return app.fail(cmd, err)
	}
	eng, err := app.engine(cfg)
	if err != nil {
		return app.fail(cmd, err)
	}
	ins := app.inspector(cfg, eng, flags.options())

	var errs []error
	explained := map[issue.Id]bool{}
	for _, image := range images {
		outcome, err := ins.Inspect(ctx, image, flags.force)
		if err != nil {
			if ctx.Err() != nil {
				return app.fail(cmd, ctx.Err())
			}
			fmt.Fprintf(app.stdout, "%s %s\n", ErrorStyle.Render(iconError), RefStyle.Render(image))
			fmt.Fprintln(app.stderr, formatErrorForDisplay(err, cfg.UI.Verbose))
			if id, ok := issueForError(err); ok && !explained[id] {
				app.renderIssue(id)
				explained[id] = true
			}
			errs = append(errs, err)
			continue
		}
		if outcome.Skipped {
			fmt.Fprintf(app.stdout, "%s %s %s\n", WarningStyle.Render(iconSkipped), RefStyle.Render(image), SubtitleStyle.Render("(cached: "+outcome.Path+")"))
			continue
		}
		fmt.Fprintf(app.stdout, "%s %s %s\n", SuccessStyle.Render(iconSuccess), RefStyle.Render(image),
			SubtitleStyle.Render(fmt.Sprintf("(%s, %s)", outcome.Path, outcome.Duration.Round(100*time.Millisecond))))
	}

	if len(errs) > 0 {
		slog.Debug("inspect finished with failures", "failed", len(errs), "total", len(images))
		cmd.SilenceErrors = true
		cmd.SilenceUsage = true
		return &ExitError{Code: 1, Err: errors.Join(errs...)}
	}
	return nil
}

func newProbeCommand(app *App) *cobra.Command {
	var flags inspectFlags

	cmd := &cobra.Command{
		Use:   "probe <image>",
		Short: "Probe one image and print the raw result as JSON",
		Long: `Probe one image and print the raw result as JSON.

The result is written to stdout and is not cached.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := app.loadConfig(ctx)
			if err != nil {
				return app.fail(cmd, err)
			}
			eng, err := app.engine(cfg)
			if err != nil {
				return app.fail(cmd, err)
			}

			res, err := app.inspector(cfg, eng, flags.options()).Probe(ctx, args[0])
			if err != nil {
				return app.fail(cmd, err)
			}

			enc := json.NewEncoder(app.stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	flags.register(cmd, false)
	return cmd
}
