// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/manylinux-inspector/manylinux-inspector/internal/registry"
)

const (
	// ContainerEngineAuto picks the first available CLI engine.
	ContainerEngineAuto ContainerEngine = "auto"
	// ContainerEngineDocker uses the docker binary.
	ContainerEngineDocker ContainerEngine = "docker"
	// ContainerEnginePodman uses the podman binary.
	ContainerEnginePodman ContainerEngine = "podman"
	// ContainerEngineDockerAPI talks to the Docker daemon API directly.
	ContainerEngineDockerAPI ContainerEngine = "docker-api"

	// LogLevelDebug enables debug logging.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo is the default log level.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn only logs warnings and errors.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError only logs errors.
	LogLevelError LogLevel = "error"
)

var (
	// ErrInvalidContainerEngine is returned when a ContainerEngine value is not recognized.
	ErrInvalidContainerEngine = errors.New("invalid container engine")
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// ContainerEngine specifies which container runtime to use.
	ContainerEngine string

	// LogLevel is the minimum level of emitted log records.
	LogLevel string

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig and collects every field-level error.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		// ContainerEngine selects docker, podman, docker-api or auto-detection
		ContainerEngine ContainerEngine `json:"container_engine" mapstructure:"container_engine"`
		// CacheDir holds one JSON report per inspected image
		CacheDir string `json:"cache_dir" mapstructure:"cache_dir"`
		// DataDir holds latest.json
		DataDir string `json:"data_dir" mapstructure:"data_dir"`
		// SiteDir is where the static site is rendered
		SiteDir string `json:"site_dir" mapstructure:"site_dir"`
		// Registry configures the image registry API
		Registry RegistryConfig `json:"registry" mapstructure:"registry"`
		// Poll configures discovery passes
		Poll PollConfig `json:"poll" mapstructure:"poll"`
		// Inspect configures single-image inspections
		Inspect InspectConfig `json:"inspect" mapstructure:"inspect"`
		// UI configures output and logging
		UI UIConfig `json:"ui" mapstructure:"ui"`
	}

	// RegistryConfig configures the registry API client.
	RegistryConfig struct {
		URL               string  `json:"url" mapstructure:"url"`
		Namespace         string  `json:"namespace" mapstructure:"namespace"`
		RequestsPerSecond float64 `json:"requests_per_second" mapstructure:"requests_per_second"`
	}

	// PollConfig configures the poller.
	PollConfig struct {
		// Workers bounds concurrent inspections
		Workers int `json:"workers" mapstructure:"workers"`
		// WithinDays also inspects tags modified in the last N days (0 disables)
		WithinDays int `json:"within_days" mapstructure:"within_days"`
		// Interval between passes; zero runs a single pass
		Interval time.Duration `json:"interval" mapstructure:"interval"`
		// MaxLatestAgeDays skips repositories whose latest tag is older
		MaxLatestAgeDays int `json:"max_latest_age_days" mapstructure:"max_latest_age_days"`
	}

	// InspectConfig configures inspections.
	InspectConfig struct {
		Simulate32Bit bool          `json:"simulate_32bit" mapstructure:"simulate_32bit"`
		Pull          bool          `json:"pull" mapstructure:"pull"`
		Timeout       time.Duration `json:"timeout" mapstructure:"timeout"`
	}

	// UIConfig configures the user interface.
	UIConfig struct {
		Verbose  bool     `json:"verbose" mapstructure:"verbose"`
		LogLevel LogLevel `json:"log_level" mapstructure:"log_level"`
	}
)

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		ContainerEngine: ContainerEngineAuto,
		CacheDir:        "cache",
		DataDir:         "data",
		SiteDir:         "site",
		Registry: RegistryConfig{
			URL:               registry.DefaultBaseURL,
			Namespace:         registry.DefaultNamespace,
			RequestsPerSecond: 5,
		},
		Poll: PollConfig{
			Workers:          4,
			WithinDays:       0,
			Interval:         0,
			MaxLatestAgeDays: int(registry.DefaultMaxLatestAge / (24 * time.Hour)),
		},
		Inspect: InspectConfig{
			Timeout: 10 * time.Minute,
		},
		UI: UIConfig{
			LogLevel: LogLevelInfo,
		},
	}
}

func (e ContainerEngine) String() string { return string(e) }

// Validate returns an error if the engine is not recognized.
func (e ContainerEngine) Validate() error {
	switch e {
	case ContainerEngineAuto, ContainerEngineDocker, ContainerEnginePodman, ContainerEngineDockerAPI:
		return nil
	default:
		return fmt.Errorf("%w: %q (valid: auto, docker, podman, docker-api)", ErrInvalidContainerEngine, string(e))
	}
}

func (l LogLevel) String() string { return string(l) }

// Validate returns an error if the level is not recognized.
func (l LogLevel) Validate() error {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return nil
	default:
		return fmt.Errorf("%w: %q (valid: debug, info, warn, error)", ErrInvalidLogLevel, string(l))
	}
}

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %v", errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidConfig for errors.Is compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// Validate checks constraints that hold after environment overrides, which
// bypass the CUE schema.
func (c *Config) Validate() error {
	var errs []error
	if err := c.ContainerEngine.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.UI.LogLevel.Validate(); err != nil {
		errs = append(errs, err)
	}
	for _, dir := range []struct{ key, value string }{
		{"cache_dir", c.CacheDir},
		{"data_dir", c.DataDir},
		{"site_dir", c.SiteDir},
	} {
		if dir.value == "" {
			errs = append(errs, fmt.Errorf("%s must not be empty", dir.key))
		}
	}
	if c.Poll.Workers < 1 {
		errs = append(errs, fmt.Errorf("poll.workers must be at least 1, got %d", c.Poll.Workers))
	}
	if c.Poll.WithinDays < 0 {
		errs = append(errs, fmt.Errorf("poll.within_days must not be negative, got %d", c.Poll.WithinDays))
	}
	if c.Poll.Interval < 0 {
		errs = append(errs, fmt.Errorf("poll.interval must not be negative, got %s", c.Poll.Interval))
	}
	if c.Poll.MaxLatestAgeDays < 1 {
		errs = append(errs, fmt.Errorf("poll.max_latest_age_days must be at least 1, got %d", c.Poll.MaxLatestAgeDays))
	}
	if c.Registry.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("registry.requests_per_second must not be negative, got %g", c.Registry.RequestsPerSecond))
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// LatestPath returns the path of latest.json inside DataDir.
func (c *Config) LatestPath() string {
	return filepath.Join(c.DataDir, "latest.json")
}

// MaxLatestAge returns MaxLatestAgeDays as a duration.
func (c *PollConfig) MaxLatestAge() time.Duration {
	return time.Duration(c.MaxLatestAgeDays) * 24 * time.Hour
}
