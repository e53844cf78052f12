// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/manylinux-inspector/manylinux-inspector/internal/cache"
	"github.com/manylinux-inspector/manylinux-inspector/internal/config"
	"github.com/manylinux-inspector/manylinux-inspector/internal/container"
	"github.com/manylinux-inspector/manylinux-inspector/internal/inspector"
	"github.com/manylinux-inspector/manylinux-inspector/internal/issue"
	"github.com/manylinux-inspector/manylinux-inspector/internal/registry"
	"github.com/manylinux-inspector/manylinux-inspector/internal/site"
)

type (
	// App wires CLI services and shared dependencies. Every command handler
	// receives an App and builds its collaborators through it.
	App struct {
		Config  ConfigProvider
		Engines EngineFactory
		stdout  io.Writer
		stderr  io.Writer
		now     func() time.Time
		flags   globalFlags
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config  ConfigProvider
		Engines EngineFactory
		Stdout  io.Writer
		Stderr  io.Writer
		Now     func() time.Time
	}

	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}

	// EngineFactory returns the container engine selected by configuration.
	EngineFactory func(engine config.ContainerEngine) (container.Engine, error)

	// globalFlags holds the persistent root flags.
	globalFlags struct {
		verbose    bool
		configPath string
		logLevel   string
	}
)

// NewApp creates an App, filling unset dependencies with production defaults.
func NewApp(deps Dependencies) (*App, error) {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.Engines == nil {
		deps.Engines = newEngine
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	return &App{
		Config:  deps.Config,
		Engines: deps.Engines,
		stdout:  deps.Stdout,
		stderr:  deps.Stderr,
		now:     deps.Now,
	}, nil
}

// newEngine resolves the configured engine; auto tries docker, then podman.
func newEngine(engine config.ContainerEngine) (container.Engine, error) {
	if engine == config.ContainerEngineAuto || engine == "" {
		return container.AutoDetectEngine()
	}
	return container.NewEngine(container.EngineType(engine))
}

// loadConfig loads the configuration named by --config, applying the
// --verbose flag on top.
func (a *App) loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: a.flags.configPath})
	if err != nil {
		return nil, err
	}
	if a.flags.verbose {
		cfg.UI.Verbose = true
	}
	return cfg, nil
}

// engine creates the container engine for cfg. When no engine is available
// the matching issue is rendered to stderr.
func (a *App) engine(cfg *config.Config) (container.Engine, error) {
	eng, err := a.Engines(cfg.ContainerEngine)
	if err != nil {
		var notAvailable *container.ErrEngineNotAvailable
		if errors.As(err, &notAvailable) {
			a.renderIssue(issue.ContainerEngineNotFoundId)
		}
		return nil, err
	}
	return eng, nil
}

// inspector builds an Inspector over the configured cache.
func (a *App) inspector(cfg *config.Config, eng container.Engine, opts inspector.Options) *inspector.Inspector {
	if opts.Timeout == 0 {
		opts.Timeout = cfg.Inspect.Timeout
	}
	opts.Simulate32Bit = opts.Simulate32Bit || cfg.Inspect.Simulate32Bit
	opts.Pull = opts.Pull || cfg.Inspect.Pull
	opts.Auto32Bit = true
	return inspector.New(eng, a.store(cfg), opts)
}

func (a *App) store(cfg *config.Config) *cache.Store {
	return cache.NewStore(cfg.CacheDir, cache.WithClock(a.now))
}

func (a *App) registryClient(cfg *config.Config) *registry.Client {
	return registry.NewClient(cfg.Registry.URL,
		registry.WithRateLimit(cfg.Registry.RequestsPerSecond),
		registry.WithUserAgent("manylinux-inspector/"+Version),
	)
}

func (a *App) renderer(cfg *config.Config) *site.Renderer {
	return site.NewRenderer(a.store(cfg), cfg.LatestPath(), cfg.SiteDir, site.WithNow(a.now))
}

// renderIssue writes the Markdown help for id to stderr. Rendering failures
// are ignored; the command error is still reported.
func (a *App) renderIssue(id issue.Id) {
	iss := issue.Get(id)
	if iss == nil {
		return
	}
	rendered, err := iss.Render("auto")
	if err != nil {
		return
	}
	fmt.Fprint(a.stderr, rendered)
}

// issueForError returns the catalog entry explaining err.
func issueForError(err error) (issue.Id, bool) {
	switch {
	case registry.IsUnreachable(err):
		return issue.RegistryUnreachableId, true
	case errors.Is(err, container.ErrStartFailed), errors.Is(err, container.ErrContainerNotReady):
		return issue.ContainerStartFailedId, true
	case errors.Is(err, cache.ErrNotWritable):
		return issue.CacheNotWritableId, true
	case errors.Is(err, cache.ErrNotFound):
		return issue.ImageNotInspectedId, true
	default:
		return 0, false
	}
}

// fail reports err on stderr in its actionable form and returns an
// ExitError so that cobra does not print it a second time.
func (a *App) fail(cmd *cobra.Command, err error) error {
	fmt.Fprintln(a.stderr, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, a.flags.verbose))
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	return &ExitError{Code: 1, Err: err}
}

// formatErrorForDisplay formats an error for user display.
// ActionableErrors use their Format method, which lists suggestions and,
// in verbose mode, the full error chain.
func formatErrorForDisplay(err error, verbose bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verbose)
	}
	return err.Error()
}
