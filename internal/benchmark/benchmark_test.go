// SPDX-License-Identifier: MPL-2.0

package benchmark

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/manylinux-inspector/manylinux-inspector/internal/cache"
	"github.com/manylinux-inspector/manylinux-inspector/internal/config"
	"github.com/manylinux-inspector/manylinux-inspector/internal/inspector"
	"github.com/manylinux-inspector/manylinux-inspector/internal/probe"
	"github.com/manylinux-inspector/manylinux-inspector/internal/site"
	"github.com/manylinux-inspector/manylinux-inspector/internal/testutil"
	"github.com/manylinux-inspector/manylinux-inspector/internal/testutil/enginetest"
)

const sampleConfig = `
container_engine: "docker"
poll: {
	workers:     8
	within_days: 30
	interval:    "6h"
}
inspect: {
	simulate_32bit: false
	timeout:        "5m"
}
ui: log_level: "warn"
`

var (
	benchNow = time.Date(2024, 8, 20, 12, 0, 0, 0, time.UTC)

	sampleRepos = []string{"manylinux2014", "manylinux_2_28", "musllinux_1_2"}
	sampleArchs = []string{"x86_64", "aarch64", "i686", "ppc64le", "s390x"}
	sampleTags  = []string{"2024-08-12-7fde9b1", "2024-08-05-a1b2c3d", "2024-07-29-0f1e2d3"}
)

// sampleResult probes the Manylinux fixture once.
func sampleResult(b *testing.B) *probe.Result {
	b.Helper()
	store := cache.NewStore(b.TempDir())
	res, err := inspector.New(enginetest.Manylinux(), store, inspector.Options{}).Probe(b.Context(), "quay.io/pypa/manylinux_2_28_x86_64:latest")
	if err != nil {
		b.Fatalf("probe fixture: %v", err)
	}
	return res
}

// populate saves one report per repository, architecture and tag.
func populate(b *testing.B, store *cache.Store, res *probe.Result) int {
	b.Helper()
	n := 0
	for _, repo := range sampleRepos {
		for _, arch := range sampleArchs {
			for _, tag := range sampleTags {
				image := fmt.Sprintf("quay.io/pypa/%s_%s:%s", repo, arch, tag)
				if _, err := store.Save(image, res); err != nil {
					b.Fatalf("save %s: %v", image, err)
				}
				n++
			}
		}
	}
	return n
}

// BenchmarkProbeRun measures the full command sequence against a scripted engine.
func BenchmarkProbeRun(b *testing.B) {
	store := cache.NewStore(b.TempDir())
	insp := inspector.New(enginetest.Manylinux(), store, inspector.Options{})

	b.ReportAllocs()
	for b.Loop() {
		if _, err := insp.Probe(b.Context(), "quay.io/pypa/manylinux_2_28_x86_64:latest"); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSummarize measures deriving the summary from a command log.
func BenchmarkSummarize(b *testing.B) {
	res := sampleResult(b)

	b.ReportAllocs()
	for b.Loop() {
		_ = probe.Summarize(res.Log)
	}
}

// BenchmarkSummaryFields measures flattening a summary into display fields.
func BenchmarkSummaryFields(b *testing.B) {
	summary := sampleResult(b).Summary

	b.ReportAllocs()
	for b.Loop() {
		_ = probe.SortFields(summary.Fields())
	}
}

// BenchmarkCacheLoadAll measures reading every cached report.
func BenchmarkCacheLoadAll(b *testing.B) {
	store := cache.NewStore(b.TempDir(), cache.WithClock(func() time.Time { return benchNow }))
	want := populate(b, store, sampleResult(b))

	b.ReportAllocs()
	for b.Loop() {
		entries, err := store.LoadAll()
		if err != nil {
			b.Fatal(err)
		}
		if len(entries) != want {
			b.Fatalf("LoadAll() = %d entries, want %d", len(entries), want)
		}
	}
}

// BenchmarkGroupVersions measures grouping cached reports by repository and tag.
func BenchmarkGroupVersions(b *testing.B) {
	store := cache.NewStore(b.TempDir(), cache.WithClock(func() time.Time { return benchNow }))
	populate(b, store, sampleResult(b))
	entries, err := store.LoadAll()
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	for b.Loop() {
		versions, skipped := site.GroupVersions(entries)
		if skipped != 0 || len(versions) != len(sampleRepos)*len(sampleTags) {
			b.Fatalf("GroupVersions() = %d versions, %d skipped", len(versions), skipped)
		}
	}
}

// BenchmarkRender measures a full site render.
func BenchmarkRender(b *testing.B) {
	dir := b.TempDir()
	store := cache.NewStore(filepath.Join(dir, "cache"), cache.WithClock(func() time.Time { return benchNow }))
	populate(b, store, sampleResult(b))
	r := site.NewRenderer(store, filepath.Join(dir, "data", "latest.json"), filepath.Join(dir, "site"),
		site.WithNow(func() time.Time { return benchNow }))

	b.ReportAllocs()
	for b.Loop() {
		if _, err := r.Render(b.Context()); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSearch measures index queries.
func BenchmarkSearch(b *testing.B) {
	dir := b.TempDir()
	store := cache.NewStore(filepath.Join(dir, "cache"), cache.WithClock(func() time.Time { return benchNow }))
	populate(b, store, sampleResult(b))
	siteDir := filepath.Join(dir, "site")
	if _, err := site.NewRenderer(store, filepath.Join(dir, "latest.json"), siteDir).Render(b.Context()); err != nil {
		b.Fatal(err)
	}
	idx, err := site.LoadIndex(siteDir)
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	for b.Loop() {
		_ = idx.Search("manylinux_2_28,musl")
		_ = idx.Search("all")
	}
}

// BenchmarkConfigLoad measures CUE schema validation and decoding of a config file.
func BenchmarkConfigLoad(b *testing.B) {
	dir := b.TempDir()
	path := filepath.Join(dir, "config.cue")
	testutil.MustWriteFile(b, path, sampleConfig)

	b.ReportAllocs()
	for b.Loop() {
		loaded, err := config.LoadWithPath(b.Context(), config.LoadOptions{ConfigFilePath: path})
		if err != nil {
			b.Fatal(err)
		}
		if loaded.Config.Poll.Workers != 8 {
			b.Fatalf("workers = %d, want 8", loaded.Config.Poll.Workers)
		}
	}
}
