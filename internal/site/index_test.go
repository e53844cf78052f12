// SPDX-License-Identifier: MPL-2.0

package site

import (
	"testing"

	"github.com/manylinux-inspector/manylinux-inspector/internal/cache"
)

func testIndex() *Index {
	ref := func(name, tag string) VersionRef {
		k := VersionKey{Domain: "quay.io", Org: "pypa", Name: name, Tag: tag}
		return VersionRef{VersionKey: k, Archs: []string{"x86_64"}, Filename: k.Filename()}
	}
	return &Index{
		VersionsReports: []VersionRef{
			ref("manylinux_2_28", "2024-08-12-7fde9b1"),
			ref("manylinux2014", "2024-08-12-7fde9b1"),
			ref("manylinux_2_28", "2024-01-02-aaaaaaa"),
			ref("musllinux_1_2", "2024-08-12-7fde9b1"),
		},
		Latest: cache.LatestIndex{Data: map[string]string{
			"quay.io/pypa/manylinux_2_28_x86_64": "2024-08-12-7fde9b1",
			"quay.io/pypa/manylinux2014_aarch64": "2024-08-12-7fde9b1",
		}},
	}
}

func TestIndex_Search(t *testing.T) {
	t.Parallel()

	idx := testIndex()
	tests := []struct {
		query string
		want  []string
	}{
		{"ma", nil},
		{"all", []string{
			"quay.io/pypa/manylinux_2_28:2024-08-12-7fde9b1",
			"quay.io/pypa/manylinux2014:2024-08-12-7fde9b1",
			"quay.io/pypa/manylinux_2_28:2024-01-02-aaaaaaa",
			"quay.io/pypa/musllinux_1_2:2024-08-12-7fde9b1",
		}},
		{"LATEST", []string{
			"quay.io/pypa/manylinux_2_28:2024-08-12-7fde9b1",
			"quay.io/pypa/manylinux2014:2024-08-12-7fde9b1",
		}},
		{"musl", []string{"quay.io/pypa/musllinux_1_2:2024-08-12-7fde9b1"}},
		{"2014, 2024-01", []string{
			"quay.io/pypa/manylinux2014:2024-08-12-7fde9b1",
			"quay.io/pypa/manylinux_2_28:2024-01-02-aaaaaaa",
		}},
		{"nothing-like-this", nil},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			t.Parallel()
			var got []string
			for _, r := range idx.Search(tt.query) {
				got = append(got, r.ID())
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Search(%q) = %v, want %v", tt.query, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Search(%q)[%d] = %q, want %q", tt.query, i, got[i], tt.want[i])
				}
			}
		})
	}
}
