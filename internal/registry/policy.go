// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	// LatestTag is the moving tag that points at the newest build.
	LatestTag = "latest"
	// DefaultMaxLatestAge skips repositories whose latest tag is older than a year.
	DefaultMaxLatestAge = 365 * 24 * time.Hour
)

var (
	// ErrNoLatestTag is returned when a repository has no "latest" tag.
	ErrNoLatestTag = errors.New(`no "latest" tag`)
	// ErrLatestTooOld is returned when the latest tag is older than the allowed age.
	ErrLatestTooOld = errors.New("latest tag is too old")
	// ErrNoMatchingTag is returned when no other tag shares the latest manifest.
	ErrNoMatchingTag = errors.New("no tag matches the latest manifest")
	// ErrBadTimestamp is returned when a tag timestamp cannot be parsed.
	ErrBadTimestamp = errors.New("unparseable timestamp")

	timestampLayouts = []string{
		time.RFC1123Z,
		time.RFC1123,
		time.RFC3339Nano,
		time.RFC3339,
		time.RFC822Z,
		time.RFC822,
		time.RFC850,
		time.ANSIC,
		"2006-01-02 15:04:05",
	}
)

// Image is a concrete tag of a repository on a registry.
type Image struct {
	Registry   string
	Repository Repository
	Tag        string
}

// RepoRef returns registry/namespace/name.
func (i Image) RepoRef() string {
	return i.Registry + "/" + i.Repository.String()
}

// Ref returns registry/namespace/name:tag.
func (i Image) Ref() string {
	return i.RepoRef() + ":" + i.Tag
}

func (i Image) String() string { return i.Ref() }

// ParseTimestamp parses the registry's last-modified timestamps.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
}

// SelectLatest returns the concrete tag that "latest" points at, matched by
// manifest digest. Repositories whose latest tag is older than maxAge are
// skipped with ErrLatestTooOld. When several tags share the digest the
// greatest name wins, which for date-stamped tags is the newest.
func SelectLatest(tags []Tag, now time.Time, maxAge time.Duration) (Tag, error) {
	var latest *Tag
	for i := range tags {
		if tags[i].Name == LatestTag {
			latest = &tags[i]
			break
		}
	}
	if latest == nil {
		return Tag{}, ErrNoLatestTag
	}

	updated, err := ParseTimestamp(latest.LastModified)
	if err != nil {
		return Tag{}, err
	}
	if age := now.Sub(updated); maxAge > 0 && age > maxAge {
		return Tag{}, fmt.Errorf("%w: %.0f days old", ErrLatestTooOld, age.Hours()/24)
	}

	var match *Tag
	for i := range tags {
		t := &tags[i]
		if t.Name == LatestTag || t.ManifestDigest == "" || t.ManifestDigest != latest.ManifestDigest {
			continue
		}
		if match == nil || t.Name > match.Name {
			match = t
		}
	}
	if match == nil {
		return Tag{}, ErrNoMatchingTag
	}
	return *match, nil
}

// SelectRecent returns every tag other than "latest" modified after
// now - within, in input order. Tags with unparseable timestamps are logged
// and skipped.
func SelectRecent(tags []Tag, now time.Time, within time.Duration) []Tag {
	earliest := now.Add(-within)
	var out []Tag
	for _, t := range tags {
		if t.Name == LatestTag {
			continue
		}
		updated, err := ParseTimestamp(t.LastModified)
		if err != nil {
			slog.Warn("skipping tag", "tag", t.Name, "error", err)
			continue
		}
		if updated.After(earliest) {
			out = append(out, t)
		}
	}
	return out
}
