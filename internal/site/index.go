// SPDX-License-Identifier: MPL-2.0

package site

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/manylinux-inspector/manylinux-inspector/internal/cache"
)

const (
	// IndexFile is the site-relative path of the versions index.
	IndexFile = "data/index.json"

	minQueryLen = 3
)

// Index lists every rendered version together with the latest-tags index.
type Index struct {
	VersionsReports []VersionRef      `json:"versions_reports"`
	Latest          cache.LatestIndex `json:"latest"`
}

// LoadIndex reads the index of a rendered site.
func LoadIndex(siteDir string) (*Index, error) {
	path := filepath.Join(siteDir, filepath.FromSlash(IndexFile))
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read site index: %w", err)
	}
	var idx Index
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("decode site index %s: %w", path, err)
	}
	return &idx, nil
}

// Search finds versions by query, case-insensitively. Queries shorter than
// three characters match nothing. "latest" matches the versions a
// repository's latest tag points at, "all" matches everything, and anything
// else is a comma-separated list of substrings of domain/org/name:tag.
func (idx *Index) Search(query string) []VersionRef {
	q := strings.ToLower(strings.TrimSpace(query))
	if utf8.RuneCountInString(q) < minQueryLen {
		return nil
	}

	switch q {
	case "latest":
		return idx.LatestVersionRefs()
	case "all":
		return idx.VersionsReports
	}

	var parts []string
	for part := range strings.SplitSeq(q, ",") {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}

	var out []VersionRef
	for _, ref := range idx.VersionsReports {
		id := strings.ToLower(ref.ID())
		for _, part := range parts {
			if strings.Contains(id, part) {
				out = append(out, ref)
				break
			}
		}
	}
	return out
}

// LatestVersionRefs returns the versions that some repository's latest tag
// points at. Repository references carry the arch suffix, versions don't.
func (idx *Index) LatestVersionRefs() []VersionRef {
	var out []VersionRef
	for _, ref := range idx.VersionsReports {
		base := ref.Domain + "/" + ref.Org + "/" + ref.Name
		for repo, tag := range idx.Latest.Data {
			if tag == ref.Tag && (repo == base || strings.HasPrefix(repo, base+"_")) {
				out = append(out, ref)
				break
			}
		}
	}
	return out
}
