// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/viper"

	"github.com/manylinux-inspector/manylinux-inspector/internal/issue"
)

const (
	// AppName is the application name.
	AppName = "manylinux-inspector"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes environment overrides (INSPECTOR_POLL_WORKERS).
	EnvPrefix = "INSPECTOR"
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns $XDG_CONFIG_HOME/manylinux-inspector, defaulting to
// ~/.config when XDG_CONFIG_HOME is unset.
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, AppName), nil
}

// DefaultConfigPath returns the config file path inside dir, or inside
// ConfigDir when dir is empty.
func DefaultConfigPath(dir string) (string, error) {
	if dir == "" {
		var err error
		if dir, err = ConfigDir(); err != nil {
			return "", err
		}
	}
	return filepath.Join(dir, ConfigFileName+"."+ConfigFileExt), nil
}

// LoadWithPath loads the configuration and reports which file it came from.
// Lookup order is opts.ConfigFilePath, the config directory, then
// ./config.cue; with no file the defaults apply. Environment overrides are
// applied last.
func LoadWithPath(ctx context.Context, opts LoadOptions) (*Loaded, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := newViper()

	path, err := resolveConfigPath(opts)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := loadCUEIntoViper(v, path); err != nil {
			return nil, loadError(path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, loadError(path, fmt.Errorf("failed to parse config: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, loadError(path, err)
	}

	return &Loaded{Config: &cfg, Path: path}, nil
}

func newViper() *viper.Viper {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("container_engine", string(defaults.ContainerEngine))
	v.SetDefault("cache_dir", defaults.CacheDir)
	v.SetDefault("data_dir", defaults.DataDir)
	v.SetDefault("site_dir", defaults.SiteDir)
	v.SetDefault("registry.url", defaults.Registry.URL)
	v.SetDefault("registry.namespace", defaults.Registry.Namespace)
	v.SetDefault("registry.requests_per_second", defaults.Registry.RequestsPerSecond)
	v.SetDefault("poll.workers", defaults.Poll.Workers)
	v.SetDefault("poll.within_days", defaults.Poll.WithinDays)
	v.SetDefault("poll.interval", defaults.Poll.Interval)
	v.SetDefault("poll.max_latest_age_days", defaults.Poll.MaxLatestAgeDays)
	v.SetDefault("inspect.simulate_32bit", defaults.Inspect.Simulate32Bit)
	v.SetDefault("inspect.pull", defaults.Inspect.Pull)
	v.SetDefault("inspect.timeout", defaults.Inspect.Timeout)
	v.SetDefault("ui.verbose", defaults.UI.Verbose)
	v.SetDefault("ui.log_level", string(defaults.UI.LogLevel))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// resolveConfigPath returns the first config file in lookup order, or "" when
// none exists. An explicit path that does not exist is an error.
func resolveConfigPath(opts LoadOptions) (string, error) {
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Run 'manylinux-inspector config init' to create a default configuration").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		return opts.ConfigFilePath, nil
	}

	dirPath, err := DefaultConfigPath(opts.ConfigDirPath)
	if err != nil {
		return "", err
	}
	for _, candidate := range []string{dirPath, ConfigFileName + "." + ConfigFileExt} {
		if fileExists(candidate) {
			return candidate, nil
		}
	}
	return "", nil
}

// loadCUEIntoViper parses a CUE file, validates it against the #Config schema,
// and merges its contents into Viper.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if len(data) > maxConfigFileSize {
		return fmt.Errorf("%s: file size %d bytes exceeds maximum %d bytes", path, len(data), maxConfigFileSize)
	}

	configMap, err := decodeCUE(data, path)
	if err != nil {
		return err
	}

	// MergeConfigMap keeps defaults for absent keys and leaves env overrides on top.
	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

func decodeCUE(data []byte, path string) (map[string]any, error) {
	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return nil, fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return nil, formatCUEError(userValue.Err(), path)
	}

	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err, path)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return nil, formatCUEError(err, path)
	}
	return configMap, nil
}

func loadError(path string, cause error) error {
	ctx := issue.NewErrorContext().
		WithOperation("load configuration").
		WithSuggestion("Check that the file contains valid CUE syntax").
		WithSuggestion("Verify the values match the schema (see 'manylinux-inspector config show')").
		WithSuggestion("Check INSPECTOR_* environment variables for invalid overrides")
	if path != "" {
		ctx = ctx.WithResource(path)
	}
	return ctx.Wrap(cause).BuildError()
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes the default configuration to path unless a file
// already exists there. It reports whether a file was written.
func CreateDefaultConfig(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return false, fmt.Errorf("failed to write config file: %w", err)
	}
	return true, nil
}

// GenerateCUE generates a CUE representation of the configuration.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// manylinux-inspector configuration\n")
	sb.WriteString("// Every key may be overridden with INSPECTOR_<KEY> (dots become underscores).\n\n")

	fmt.Fprintf(&sb, "container_engine: %q\n", cfg.ContainerEngine)
	fmt.Fprintf(&sb, "cache_dir:        %q\n", cfg.CacheDir)
	fmt.Fprintf(&sb, "data_dir:         %q\n", cfg.DataDir)
	fmt.Fprintf(&sb, "site_dir:         %q\n", cfg.SiteDir)

	sb.WriteString("\nregistry: {\n")
	fmt.Fprintf(&sb, "\turl:                 %q\n", cfg.Registry.URL)
	fmt.Fprintf(&sb, "\tnamespace:           %q\n", cfg.Registry.Namespace)
	fmt.Fprintf(&sb, "\trequests_per_second: %v\n", cfg.Registry.RequestsPerSecond)
	sb.WriteString("}\n")

	sb.WriteString("\npoll: {\n")
	fmt.Fprintf(&sb, "\tworkers:             %d\n", cfg.Poll.Workers)
	fmt.Fprintf(&sb, "\twithin_days:         %d\n", cfg.Poll.WithinDays)
	fmt.Fprintf(&sb, "\tinterval:            %q\n", formatDuration(cfg.Poll.Interval))
	fmt.Fprintf(&sb, "\tmax_latest_age_days: %d\n", cfg.Poll.MaxLatestAgeDays)
	sb.WriteString("}\n")

	sb.WriteString("\ninspect: {\n")
	fmt.Fprintf(&sb, "\tsimulate_32bit: %v\n", cfg.Inspect.Simulate32Bit)
	fmt.Fprintf(&sb, "\tpull:           %v\n", cfg.Inspect.Pull)
	fmt.Fprintf(&sb, "\ttimeout:        %q\n", formatDuration(cfg.Inspect.Timeout))
	sb.WriteString("}\n")

	sb.WriteString("\nui: {\n")
	fmt.Fprintf(&sb, "\tverbose:   %v\n", cfg.UI.Verbose)
	fmt.Fprintf(&sb, "\tlog_level: %q\n", cfg.UI.LogLevel)
	sb.WriteString("}\n")

	return sb.String()
}

// formatDuration trims the zero minute and second units of
// time.Duration.String ("1h0m0s" becomes "1h").
func formatDuration(d time.Duration) string {
	s := d.String()
	if strings.HasSuffix(s, "m0s") {
		s = strings.TrimSuffix(s, "0s")
	}
	if strings.HasSuffix(s, "h0m") {
		s = strings.TrimSuffix(s, "0m")
	}
	return s
}
