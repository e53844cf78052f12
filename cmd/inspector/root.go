// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the manylinux-inspector command line interface.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/manylinux-inspector/manylinux-inspector/internal/config"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// newRootCommand builds the command tree around app.
func newRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "manylinux-inspector",
		Short: "Inspect the contents of manylinux and musllinux images",
		Long: TitleStyle.Render("manylinux-inspector") + SubtitleStyle.Render(" - what is inside the Python wheel-building images") + `

manylinux-inspector starts each image in a throwaway container, records the
OS, libc, package manager, Python interpreters and tools it finds, and caches
one JSON report per image. Reports are rendered into a static comparison site.

` + SubtitleStyle.Render("Examples:") + `
  manylinux-inspector inspect quay.io/pypa/manylinux2014_x86_64:latest
  manylinux-inspector poll --within-days 30 --render
  manylinux-inspector render --watch
  manylinux-inspector search manylinux_2_28`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.setupLogging(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.BoolVarP(&app.flags.verbose, "verbose", "v", false, "enable verbose output")
	flags.StringVar(&app.flags.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/manylinux-inspector/config.cue)")
	flags.StringVar(&app.flags.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.SetOut(app.stdout)
	root.SetErr(app.stderr)

	root.AddCommand(
		newInspectCommand(app),
		newProbeCommand(app),
		newPollCommand(app),
		newRenderCommand(app),
		newSearchCommand(app),
		newShowCommand(app),
		newConfigCommand(app),
		newVersionCommand(app),
	)
	return root
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI and exits the process with the resulting status.
// This is called by main.main().
func Execute() {
	app, err := NewApp(Dependencies{})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// fang overrides rootCmd.Version, so the version goes through WithVersion.
	if err := fang.Execute(
		context.Background(),
		newRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// setupLogging installs the process-wide slog handler. --log-level wins,
// then --verbose (debug), then the configured level.
func (a *App) setupLogging(ctx context.Context) error {
	level := a.flags.logLevel
	if level == "" && a.flags.verbose {
		level = string(config.LogLevelDebug)
	}
	if level == "" {
		// A broken config is reported by the command that needs it.
		if cfg, err := a.loadConfig(ctx); err == nil {
			level = string(cfg.UI.LogLevel)
			if cfg.UI.Verbose {
				level = string(config.LogLevelDebug)
			}
		}
	}
	if level == "" {
		level = string(config.LogLevelInfo)
	}

	logger, err := newLogger(a.stderr, level)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(logger))
	return nil
}

func newLogger(w io.Writer, level string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return log.NewWithOptions(w, log.Options{
		Prefix:          "inspector",
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
	}), nil
}
