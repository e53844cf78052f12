// SPDX-License-Identifier: MPL-2.0

package site

import (
	"cmp"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/manylinux-inspector/manylinux-inspector/internal/cache"
	"github.com/manylinux-inspector/manylinux-inspector/internal/probe"
)

type (
	// VersionKey identifies one version.
	VersionKey struct {
		Domain string `json:"domain"`
		Org    string `json:"org"`
		Name   string `json:"name"`
		Tag    string `json:"tag"`
	}

	// Version is one image name and tag across architectures.
	Version struct {
		VersionKey
		Reports map[string]*cache.Entry
	}

	// VersionRef is the index entry of a version.
	VersionRef struct {
		VersionKey
		Archs    []string `json:"archs"`
		Filename string   `json:"filename"`
	}

	// versionFile is the on-disk shape of data/versions/<file>.json.
	versionFile struct {
		Metadata      VersionKey              `json:"metadata"`
		ReportsByArch map[string]*cache.Entry `json:"reports_by_arch"`
	}
)

// ID returns domain/org/name:tag.
func (k VersionKey) ID() string {
	return k.Domain + "/" + k.Org + "/" + k.Name + ":" + k.Tag
}

// Filename returns the version's data file name.
func (k VersionKey) Filename() string {
	return strings.Join([]string{k.Domain, k.Org, k.Name, k.Tag}, "_") + ".json"
}

// Date returns the build date encoded in the tag.
func (k VersionKey) Date() (time.Time, bool) {
	return DateFromTag(k.Tag)
}

// Archs returns the architectures with a report, ordered by CompareArchs.
func (v *Version) Archs() []string {
	return slices.SortedFunc(maps.Keys(v.Reports), CompareArchs)
}

// Ref returns the index entry of v.
func (v *Version) Ref() VersionRef {
	return VersionRef{VersionKey: v.VersionKey, Archs: v.Archs(), Filename: v.Filename()}
}

// Fields combines the report fields of every architecture. A field only
// reported by some architectures is summarised over those.
func (v *Version) Fields() []probe.Field {
	type combined struct {
		first  probe.Field
		values []KeyedValue
	}

	var order []string
	byID := map[string]*combined{}
	for _, arch := range v.Archs() {
		for _, f := range ReportFields(v.Reports[arch]) {
			c, ok := byID[f.ID]
			if !ok {
				c = &combined{first: f}
				byID[f.ID] = c
				order = append(order, f.ID)
			}
			value := f.Value
			if f.Missing {
				value = NoneValue
			}
			c.values = append(c.values, KeyedValue{Key: arch, Value: value})
		}
	}

	fields := make([]probe.Field, 0, len(order))
	for _, id := range order {
		c := byID[id]
		fields = append(fields, probe.Field{
			ID:      id,
			Label:   c.first.Label,
			Variant: c.first.Variant,
			Value:   SummariseValues(c.values),
		})
	}
	return probe.SortFields(fields)
}

// ReportFields derives the fields of one cached report. Reports are
// re-summarised from their command log so older reports pick up new
// extraction rules.
func ReportFields(e *cache.Entry) []probe.Field {
	if len(e.Data.Log) == 0 {
		return e.Data.Summary.Fields()
	}
	return probe.Summarize(e.Data.Log).Fields()
}

// GroupVersions groups cache entries by domain, org, name and tag. Entries
// whose image does not follow the naming scheme are logged and skipped.
// Versions are ordered newest tag date first.
func GroupVersions(entries []*cache.Entry) (versions []*Version, skipped int) {
	byKey := map[VersionKey]*Version{}
	for _, e := range entries {
		ref, err := ParseImageRef(e.Metadata.Image)
		if err != nil {
			slog.Warn("skipping report", "image", e.Metadata.Image, "error", err)
			skipped++
			continue
		}
		key := VersionKey{Domain: ref.Domain, Org: ref.Org, Name: ref.Name, Tag: ref.Tag}
		v, ok := byKey[key]
		if !ok {
			v = &Version{VersionKey: key, Reports: map[string]*cache.Entry{}}
			byKey[key] = v
			versions = append(versions, v)
		}
		if prev, dup := v.Reports[ref.Arch]; dup && prev.Metadata.GeneratedAt > e.Metadata.GeneratedAt {
			continue
		}
		v.Reports[ref.Arch] = e
	}
	slices.SortStableFunc(versions, func(a, b *Version) int { return CompareVersions(a.VersionKey, b.VersionKey) })
	return versions, skipped
}

// CompareVersions orders by tag date (newest first, undated last), then by
// standard, then by ID.
func CompareVersions(a, b VersionKey) int {
	ad, aok := a.Date()
	bd, bok := b.Date()
	switch {
	case aok && !bok:
		return -1
	case !aok && bok:
		return 1
	case aok && bok && !ad.Equal(bd):
		return bd.Compare(ad)
	}
	return cmp.Or(
		CompareStandards(a.Name, b.Name),
		strings.Compare(a.ID(), b.ID()),
	)
}
