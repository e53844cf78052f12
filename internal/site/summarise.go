// SPDX-License-Identifier: MPL-2.0

package site

import (
	"fmt"
	"slices"
	"strings"
)

// NoneValue stands in for values a report could not determine.
const NoneValue = "None"

// KeyedValue is a value found on one platform.
type KeyedValue struct {
	Key   string
	Value string
}

type valueCount struct {
	value string
	keys  []string
}

// SummariseValues combines the per-platform values of one field:
//
//   - all equal: the value itself
//   - one value held by more platforms than any other: that value, with the
//     rest in brackets, e.g. "3.11.9 (3.11.8 on ppc64le)"
//   - a tie: every value with its platforms, e.g. "a on x86_64, b on i686"
func SummariseValues(values []KeyedValue) string {
	var counts []*valueCount
	for _, kv := range values {
		i := slices.IndexFunc(counts, func(c *valueCount) bool { return c.value == kv.Value })
		if i == -1 {
			counts = append(counts, &valueCount{value: kv.Value})
			i = len(counts) - 1
		}
		counts[i].keys = append(counts[i].keys, kv.Key)
	}
	slices.SortStableFunc(counts, func(a, b *valueCount) int { return len(b.keys) - len(a.keys) })

	switch {
	case len(counts) == 0:
		return ""
	case len(counts) == 1:
		return counts[0].value
	case len(counts[0].keys) > len(counts[1].keys):
		majority := counts[0].value
		if majority == "" {
			majority = NoneValue
		}
		return fmt.Sprintf("%s (%s)", majority, describe(counts[1:]))
	default:
		return describe(counts)
	}
}

func describe(counts []*valueCount) string {
	parts := make([]string, len(counts))
	for i, c := range counts {
		parts[i] = c.value + " on " + FormatList(c.keys)
	}
	return strings.Join(parts, ", ")
}

// FormatList joins items as "a, b and c".
func FormatList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}
