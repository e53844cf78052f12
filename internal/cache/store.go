// SPDX-License-Identifier: MPL-2.0

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/manylinux-inspector/manylinux-inspector/internal/issue"
	"github.com/manylinux-inspector/manylinux-inspector/internal/probe"
)

const entryExt = ".json"

var (
	// ErrNotFound is returned when no cached report exists for an image.
	ErrNotFound = errors.New("no cached report")
	// ErrNotWritable is returned when a report cannot be written to the cache directory.
	ErrNotWritable = errors.New("cache not writable")
)

type (
	// Metadata describes a cached report.
	Metadata struct {
		Image string `json:"image"`
		// GeneratedAt is the probe time in Unix seconds
		GeneratedAt float64 `json:"generated_at"`
	}

	// Entry is the on-disk envelope of one report.
	Entry struct {
		Metadata Metadata     `json:"metadata"`
		Data     probe.Result `json:"data"`
	}

	// ComputeFunc produces a fresh report for an image.
	ComputeFunc func(ctx context.Context) (*probe.Result, error)

	// Store is a directory of cached reports.
	Store struct {
		dir   string
		now   func() time.Time
		group singleflight.Group

		mu      sync.Mutex
		flights map[string]*flight
	}

	flight struct {
		ctx     context.Context
		cancel  context.CancelFunc
		waiters int
	}

	// StoreOption configures a Store.
	StoreOption func(*Store)

	ensureResult struct {
		entry    *Entry
		computed bool
	}
)

// WithClock sets the time source used for GeneratedAt.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a store rooted at dir. The directory is created on the first Save.
func NewStore(dir string, opts ...StoreOption) *Store {
	s := &Store{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the cache filename of an image reference: every '/' and ':'
// replaced by '_', plus ".json".
func Key(image string) string {
	return strings.NewReplacer("/", "_", ":", "_").Replace(image) + entryExt
}

// UnixSeconds converts t to fractional Unix seconds.
func UnixSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
}

// GeneratedTime returns GeneratedAt as a time.Time.
func (m Metadata) GeneratedTime() time.Time {
	sec := int64(m.GeneratedAt)
	return time.Unix(sec, int64((m.GeneratedAt-float64(sec))*float64(time.Second)))
}

// Dir returns the cache directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the file path of an image's report.
func (s *Store) Path(image string) string {
	return filepath.Join(s.dir, Key(image))
}

// Has reports whether a report exists for image.
func (s *Store) Has(image string) (bool, error) {
	_, err := os.Stat(s.Path(image))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat cache entry for %s: %w", image, err)
}

// Load reads the report of image. A missing entry yields an error wrapping ErrNotFound.
func (s *Store) Load(image string) (*Entry, error) {
	entry, err := readEntry(s.Path(image))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w for %s", ErrNotFound, image)
	}
	return entry, err
}

// Save wraps res in an envelope stamped with the current time and writes it.
func (s *Store) Save(image string, res *probe.Result) (*Entry, error) {
	entry := &Entry{
		Metadata: Metadata{Image: image, GeneratedAt: UnixSeconds(s.now())},
		Data:     *res,
	}
	if err := s.SaveEntry(entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// SaveEntry writes entry atomically under the key of its image.
func (s *Store) SaveEntry(entry *Entry) error {
	if entry.Metadata.Image == "" {
		return errors.New("cache entry has no image")
	}
	path := s.Path(entry.Metadata.Image)
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode report for %s: %w", entry.Metadata.Image, err)
	}
	if err := WriteFileAtomic(path, data); err != nil {
		return issue.NewErrorContext().
			WithOperation("save report").
			WithResource(path).
			WithSuggestion("Check that the cache directory is writable").
			Wrap(fmt.Errorf("%w: %w", ErrNotWritable, err)).
			BuildError()
	}
	return nil
}

// List returns the paths of all cached reports in sorted order. A missing
// cache directory is an empty cache.
func (s *Store) List() ([]string, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list cache %s: %w", s.dir, err)
	}

	var paths []string
	for _, de := range dirEntries {
		if de.IsDir() || filepath.Ext(de.Name()) != entryExt || strings.HasPrefix(de.Name(), ".") {
			continue
		}
		paths = append(paths, filepath.Join(s.dir, de.Name()))
	}
	slices.Sort(paths)
	return paths, nil
}

// LoadAll reads every cached report in List order.
func (s *Store) LoadAll() ([]*Entry, error) {
	paths, err := s.List()
	if err != nil {
		return nil, err
	}
	entries := make([]*Entry, 0, len(paths))
	for _, p := range paths {
		entry, err := readEntry(p)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Ensure returns the cached report of image, computing and saving it when it
// is missing or force is set. computed reports whether compute ran.
// Concurrent calls for the same image and force share one computation. The
// computation outlives the caller that started it and is cancelled only once
// every waiting caller has returned.
func (s *Store) Ensure(ctx context.Context, image string, force bool, compute ComputeFunc) (entry *Entry, computed bool, err error) {
	key := Key(image)
	if force {
		key = "force:" + key
	}

	f := s.joinFlight(ctx, key)
	defer s.leaveFlight(key, f)

	ch := s.group.DoChan(key, func() (any, error) {
		defer s.endFlight(key, f)
		return s.ensure(f.ctx, image, force, compute)
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		if res.Shared {
			slog.Debug("shared in-flight inspection", "image", image, "force", force)
		}
		r := res.Val.(ensureResult)
		return r.entry, r.computed, nil
	}
}

func (s *Store) ensure(ctx context.Context, image string, force bool, compute ComputeFunc) (ensureResult, error) {
	if !force {
		cached, err := s.Load(image)
		if err == nil {
			return ensureResult{entry: cached}, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return ensureResult{}, err
		}
	}

	res, err := compute(ctx)
	if err != nil {
		return ensureResult{}, err
	}
	saved, err := s.Save(image, res)
	if err != nil {
		return ensureResult{}, err
	}
	slog.Debug("report saved", "image", image, "path", s.Path(image))
	return ensureResult{entry: saved, computed: true}, nil
}

// joinFlight registers ctx's caller as a waiter of the flight for key,
// creating the flight context when none is in progress.
func (s *Store) joinFlight(ctx context.Context, key string) *flight {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.flights == nil {
		s.flights = make(map[string]*flight)
	}
	f, ok := s.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		s.flights[key] = f
	}
	f.waiters++
	return f
}

// leaveFlight drops one waiter. The last waiter to leave cancels a flight
// that is still running and makes the next caller start a fresh one.
func (s *Store) leaveFlight(key string, f *flight) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if s.flights[key] == f {
		delete(s.flights, key)
		s.group.Forget(key)
	}
}

func (s *Store) endFlight(key string, f *flight) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.flights[key] == f {
		delete(s.flights, key)
	}
}

func readEntry(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", path, err)
	}
	return &entry, nil
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it over path.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	renamed := false
	defer func() {
		if !renamed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	renamed = true
	return nil
}
