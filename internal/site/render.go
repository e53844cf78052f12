// SPDX-License-Identifier: MPL-2.0

package site

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/manylinux-inspector/manylinux-inspector/internal/cache"
	"github.com/manylinux-inspector/manylinux-inspector/internal/issue"
	"github.com/manylinux-inspector/manylinux-inspector/internal/probe"
)

const (
	// ReportsFile is the site-relative path of the combined reports blob.
	ReportsFile = "data/reports.json.gz"
	// VersionsDir is the site-relative directory of per-version files.
	VersionsDir = "data/versions"
)

//go:embed templates/index.html.tmpl
var templateFS embed.FS

var indexTemplate = template.Must(template.New("index.html.tmpl").ParseFS(templateFS, "templates/index.html.tmpl"))

type (
	// Renderer writes the static site from the report cache.
	Renderer struct {
		store      *cache.Store
		latestPath string
		siteDir    string
		now        func() time.Time
	}

	// RendererOption configures a Renderer.
	RendererOption func(*Renderer)

	// RenderResult summarizes one render.
	RenderResult struct {
		Reports  int
		Versions int
		// Skipped counts reports whose image name could not be parsed
		Skipped int
		// Removed counts stale version files deleted from the site
		Removed int
	}

	page struct {
		GeneratedAt string
		Columns     []column
		Rows        []row
		Versions    []column
		Standards   []Standard
	}

	column struct {
		ID       string
		Name     string
		Tag      string
		Date     string
		Ago      string
		Commit   string
		Archs    string
		Filename string
		Latest   bool
	}

	row struct {
		Label   string
		Variant string
		Header  bool
		Nested  bool
		Cells   []string
	}
)

// WithNow sets the time source used for relative dates.
func WithNow(now func() time.Time) RendererOption {
	return func(r *Renderer) {
		r.now = now
	}
}

// NewRenderer creates a renderer reading reports from store and the
// latest-tags index from latestPath, writing into siteDir.
func NewRenderer(store *cache.Store, latestPath, siteDir string, opts ...RendererOption) *Renderer {
	r := &Renderer{store: store, latestPath: latestPath, siteDir: siteDir, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SiteDir returns the output directory.
func (r *Renderer) SiteDir() string { return r.siteDir }

// Render regenerates the whole site.
func (r *Renderer) Render(ctx context.Context) (*RenderResult, error) {
	entries, err := r.store.LoadAll()
	if err != nil {
		return nil, renderError(r.store.Dir(), err)
	}
	latest, err := cache.ReadLatest(r.latestPath)
	if err != nil {
		return nil, renderError(r.latestPath, err)
	}

	versions, skipped := GroupVersions(entries)
	res := &RenderResult{Reports: len(entries), Versions: len(versions), Skipped: skipped}

	idx := &Index{VersionsReports: make([]VersionRef, 0, len(versions)), Latest: *latest}
	for _, v := range versions {
		idx.VersionsReports = append(idx.VersionsReports, v.Ref())
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.writeJSON(IndexFile, idx); err != nil {
		return nil, err
	}

	written := map[string]bool{}
	for _, v := range versions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := v.Filename()
		written[name] = true
		vf := versionFile{Metadata: v.VersionKey, ReportsByArch: v.Reports}
		if err := r.writeJSON(VersionsDir+"/"+name, vf); err != nil {
			return nil, err
		}
	}
	if res.Removed, err = r.removeStaleVersions(written); err != nil {
		return nil, err
	}

	if err := r.writeReports(entries); err != nil {
		return nil, err
	}
	if err := r.writeHTML(versions, idx); err != nil {
		return nil, err
	}

	slog.Info("site rendered", "dir", r.siteDir, "reports", res.Reports, "versions", res.Versions)
	return res, nil
}

func (r *Renderer) path(rel string) string {
	return filepath.Join(r.siteDir, filepath.FromSlash(rel))
}

func (r *Renderer) writeJSON(rel string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", rel, err)
	}
	if err := cache.WriteFileAtomic(r.path(rel), raw); err != nil {
		return renderError(r.path(rel), err)
	}
	return nil
}

func (r *Renderer) writeReports(entries []*cache.Entry) error {
	if entries == nil {
		entries = []*cache.Entry{}
	}
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(zw).Encode(entries); err != nil {
		return fmt.Errorf("encode reports: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress reports: %w", err)
	}
	if err := cache.WriteFileAtomic(r.path(ReportsFile), buf.Bytes()); err != nil {
		return renderError(r.path(ReportsFile), err)
	}
	return nil
}

func (r *Renderer) removeStaleVersions(keep map[string]bool) (int, error) {
	dir := r.path(VersionsDir)
	des, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, renderError(dir, err)
	}
	removed := 0
	for _, de := range des {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ".json") || keep[name] {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return removed, renderError(dir, err)
		}
		removed++
	}
	return removed, nil
}

func (r *Renderer) writeHTML(versions []*Version, idx *Index) error {
	now := r.now()

	latestIDs := map[string]bool{}
	for _, ref := range idx.LatestVersionRefs() {
		latestIDs[ref.ID()] = true
	}

	p := page{
		GeneratedAt: now.UTC().Format(time.RFC1123),
		Standards:   Standards,
	}

	var shown []*Version
	for _, v := range versions {
		col := newColumn(v, now, latestIDs[v.ID()])
		p.Versions = append(p.Versions, col)
		if col.Latest {
			shown = append(shown, v)
			p.Columns = append(p.Columns, col)
		}
	}
	if len(shown) == 0 {
		shown = versions
		p.Columns = p.Versions
	}
	p.Rows = buildRows(shown)

	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, p); err != nil {
		return fmt.Errorf("render index.html: %w", err)
	}
	if err := cache.WriteFileAtomic(r.path("index.html"), buf.Bytes()); err != nil {
		return renderError(r.path("index.html"), err)
	}
	return nil
}

func newColumn(v *Version, now time.Time, latest bool) column {
	col := column{
		ID:       v.ID(),
		Name:     v.Name,
		Tag:      v.Tag,
		Commit:   CommitFromTag(v.Tag),
		Archs:    strings.Join(v.Archs(), ", "),
		Filename: VersionsDir + "/" + v.Filename(),
		Latest:   latest,
	}
	if d, ok := v.Date(); ok {
		col.Date = d.Format(time.DateOnly)
		col.Ago = TimeAgo(d, now)
	}
	return col
}

// buildRows lays the fields of all versions out as table rows, one cell per
// version. Rows follow probe.CompareFieldIDs.
func buildRows(versions []*Version) []row {
	type fieldRow struct {
		field probe.Field
		cells []string
	}

	byID := map[string]*fieldRow{}
	var fields []probe.Field
	for i, v := range versions {
		for _, f := range v.Fields() {
			fr, ok := byID[f.ID]
			if !ok {
				fr = &fieldRow{field: f, cells: make([]string, len(versions))}
				byID[f.ID] = fr
				fields = append(fields, f)
			}
			fr.cells[i] = f.Value
		}
	}

	rows := make([]row, 0, len(fields))
	for _, f := range probe.SortFields(fields) {
		fr := byID[f.ID]
		rows = append(rows, row{
			Label:   f.Label,
			Variant: f.Variant,
			Header:  f.ID == probe.FieldGlobalTools || isInterpreterField(f.ID),
			Nested:  strings.HasPrefix(f.ID, probe.FieldGlobalTools+".") || (strings.HasPrefix(f.ID, "python.") && !isInterpreterField(f.ID)),
			Cells:   fr.cells,
		})
	}
	return rows
}

func isInterpreterField(id string) bool {
	rest, ok := strings.CutPrefix(id, "python.")
	return ok && !strings.Contains(rest, ".")
}

func renderError(path string, cause error) error {
	return issue.NewErrorContext().
		WithOperation("render site").
		WithResource(path).
		WithSuggestion("Check that the cache, data and site directories are readable and writable").
		Wrap(cause).
		BuildError()
}
