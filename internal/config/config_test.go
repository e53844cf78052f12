// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/manylinux-inspector/manylinux-inspector/internal/issue"
	"github.com/manylinux-inspector/manylinux-inspector/internal/testutil"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
	if cfg.ContainerEngine != ContainerEngineAuto {
		t.Errorf("ContainerEngine = %q, want auto", cfg.ContainerEngine)
	}
	if cfg.Poll.Workers != 4 {
		t.Errorf("Poll.Workers = %d, want 4", cfg.Poll.Workers)
	}
	if cfg.Poll.MaxLatestAgeDays != 365 {
		t.Errorf("Poll.MaxLatestAgeDays = %d, want 365", cfg.Poll.MaxLatestAgeDays)
	}
	if got := cfg.Poll.MaxLatestAge(); got != 365*24*time.Hour {
		t.Errorf("MaxLatestAge() = %s", got)
	}
	if got, want := cfg.LatestPath(), filepath.Join("data", "latest.json"); got != want {
		t.Errorf("LatestPath() = %q, want %q", got, want)
	}
}

func TestLoadWithPath_NoFileUsesDefaults(t *testing.T) {
	t.Parallel()

	loaded, err := LoadWithPath(t.Context(), LoadOptions{ConfigDirPath: t.TempDir()})
	if err != nil {
		t.Fatalf("LoadWithPath() error: %v", err)
	}
	if loaded.Path != "" {
		t.Errorf("Path = %q, want empty", loaded.Path)
	}
	if diff := cmp.Diff(DefaultConfig(), loaded.Config); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadWithPath_ConfigDirFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.cue")
	testutil.MustWriteFile(t, path, `
container_engine: "podman"
cache_dir: "/var/cache/inspector"
registry: namespace: "pypa"
poll: {
	workers:     8
	within_days: 14
	interval:    "30m"
}
inspect: timeout: "90s"
ui: log_level: "debug"
`)

	loaded, err := LoadWithPath(t.Context(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("LoadWithPath() error: %v", err)
	}
	if loaded.Path != path {
		t.Errorf("Path = %q, want %q", loaded.Path, path)
	}

	want := DefaultConfig()
	want.ContainerEngine = ContainerEnginePodman
	want.CacheDir = "/var/cache/inspector"
	want.Poll.Workers = 8
	want.Poll.WithinDays = 14
	want.Poll.Interval = 30 * time.Minute
	want.Inspect.Timeout = 90 * time.Second
	want.UI.LogLevel = LogLevelDebug
	if diff := cmp.Diff(want, loaded.Config); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadWithPath_ExplicitFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "custom.cue")
	testutil.MustWriteFile(t, path, `site_dir: "public"`+"\n")

	loaded, err := LoadWithPath(t.Context(), LoadOptions{ConfigFilePath: path, ConfigDirPath: t.TempDir()})
	if err != nil {
		t.Fatalf("LoadWithPath() error: %v", err)
	}
	if loaded.Path != path || loaded.Config.SiteDir != "public" {
		t.Errorf("got path %q site_dir %q", loaded.Path, loaded.Config.SiteDir)
	}
}

func TestLoadWithPath_ExplicitFileMissing(t *testing.T) {
	t.Parallel()

	_, err := LoadWithPath(t.Context(), LoadOptions{ConfigFilePath: filepath.Join(t.TempDir(), "nope.cue")})
	if err == nil {
		t.Fatal("LoadWithPath() error = nil, want error")
	}
	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		t.Fatalf("error type = %T, want *issue.ActionableError", err)
	}
	if !ae.HasSuggestions() {
		t.Error("expected suggestions on missing config error")
	}
}

func TestLoadWithPath_SchemaViolations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{name: "unknown engine", content: `container_engine: "lxc"`, wantMsg: "container_engine"},
		{name: "workers zero", content: `poll: workers: 0`, wantMsg: "workers"},
		{name: "bad interval", content: `poll: interval: "soon"`, wantMsg: "interval"},
		{name: "unknown key", content: `colour: "blue"`, wantMsg: "colour"},
		{name: "bad registry url", content: `registry: url: "quay.io"`, wantMsg: "url"},
		{name: "syntax error", content: `poll: {`, wantMsg: "config.cue"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			testutil.MustWriteFile(t, filepath.Join(dir, "config.cue"), tt.content+"\n")

			_, err := LoadWithPath(t.Context(), LoadOptions{ConfigDirPath: dir})
			if err == nil {
				t.Fatal("LoadWithPath() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoadWithPath_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if _, err := LoadWithPath(ctx, LoadOptions{ConfigDirPath: t.TempDir()}); err == nil {
		t.Fatal("LoadWithPath() error = nil, want cancellation error")
	}
}

func TestLoadWithPath_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	testutil.MustWriteFile(t, filepath.Join(dir, "config.cue"), "poll: workers: 2\n")
	t.Setenv("INSPECTOR_POLL_WORKERS", "6")
	t.Setenv("INSPECTOR_INSPECT_TIMEOUT", "2m")
	t.Setenv("INSPECTOR_UI_VERBOSE", "true")

	loaded, err := LoadWithPath(t.Context(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("LoadWithPath() error: %v", err)
	}
	cfg := loaded.Config
	if cfg.Poll.Workers != 6 {
		t.Errorf("Poll.Workers = %d, want 6 (env beats file)", cfg.Poll.Workers)
	}
	if cfg.Inspect.Timeout != 2*time.Minute {
		t.Errorf("Inspect.Timeout = %s, want 2m", cfg.Inspect.Timeout)
	}
	if !cfg.UI.Verbose {
		t.Error("UI.Verbose = false, want true")
	}
}

func TestLoadWithPath_InvalidEnvOverride(t *testing.T) {
	t.Setenv("INSPECTOR_CONTAINER_ENGINE", "lxc")

	_, err := LoadWithPath(t.Context(), LoadOptions{ConfigDirPath: t.TempDir()})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("LoadWithPath() error = %v, want ErrInvalidConfig", err)
	}
	if !strings.Contains(err.Error(), "lxc") {
		t.Errorf("error %q does not mention the bad value", err)
	}
}

func TestConfigDir(t *testing.T) {
	want := testutil.SetConfigHome(t, t.TempDir())

	got, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() error: %v", err)
	}
	if got != want {
		t.Errorf("ConfigDir() = %q, want %q", got, want)
	}

	path, err := DefaultConfigPath("")
	if err != nil {
		t.Fatalf("DefaultConfigPath() error: %v", err)
	}
	if path != filepath.Join(want, "config.cue") {
		t.Errorf("DefaultConfigPath() = %q", path)
	}
}

func TestConfigDirOverride(t *testing.T) {
	override := t.TempDir()
	SetConfigDirOverride(override)
	t.Cleanup(Reset)

	got, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() error: %v", err)
	}
	if got != override {
		t.Errorf("ConfigDir() = %q, want %q", got, override)
	}
}

func TestLoadWithPath_WorkingDirFallback(t *testing.T) {
	testutil.SetConfigHome(t, t.TempDir())
	wd := t.TempDir()
	t.Chdir(wd)
	testutil.MustWriteFile(t, filepath.Join(wd, "config.cue"), `data_dir: "out/data"`+"\n")

	loaded, err := LoadWithPath(t.Context(), LoadOptions{})
	if err != nil {
		t.Fatalf("LoadWithPath() error: %v", err)
	}
	if loaded.Path != "config.cue" || loaded.Config.DataDir != "out/data" {
		t.Errorf("got path %q data_dir %q", loaded.Path, loaded.Config.DataDir)
	}
}

func TestCreateDefaultConfigRoundTrip(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested")
	path := filepath.Join(dir, "config.cue")

	created, err := CreateDefaultConfig(path)
	if err != nil || !created {
		t.Fatalf("CreateDefaultConfig() = %v, %v; want true, nil", created, err)
	}
	created, err = CreateDefaultConfig(path)
	if err != nil || created {
		t.Fatalf("second CreateDefaultConfig() = %v, %v; want false, nil", created, err)
	}

	loaded, err := LoadWithPath(t.Context(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), loaded.Config); diff != "" {
		t.Errorf("generated config mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{90 * time.Second, "1m30s"},
		{10 * time.Minute, "10m"},
		{time.Hour, "1h"},
		{time.Hour + 30*time.Minute, "1h30m"},
		{2*time.Hour + 5*time.Second, "2h0m5s"},
		{1500 * time.Millisecond, "1.5s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestProvider(t *testing.T) {
	t.Parallel()

	cfg, err := NewProvider().Load(t.Context(), LoadOptions{ConfigDirPath: t.TempDir()})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Registry.Namespace != "pypa" {
		t.Errorf("Registry.Namespace = %q", cfg.Registry.Namespace)
	}
}
