// SPDX-License-Identifier: MPL-2.0

package probe

import (
	"slices"
	"testing"
)

func TestSummary_Fields(t *testing.T) {
	t.Parallel()

	s := Summary{
		OS: "AlmaLinux 8",
		Pythons: []PythonEnv{
			{Identifier: "cp27-cp27mu", Path: "/opt/python/cp27-cp27mu/bin/python"},
			{Identifier: "cp312-cp312", Version: "3.12.0", Tools: []Tool{{"pip", "23.2"}}},
		},
		GlobalTools: []Tool{{"git", "2.39"}},
	}

	fields := s.Fields()
	var ids []string
	for _, f := range fields {
		ids = append(ids, f.ID)
	}
	want := []string{
		"os", "os.libc", "os.packageManager",
		"python.cp27-cp27mu",
		"python.cp312-cp312", "python.cp312-cp312.pip",
		"global-tools", "global-tools.git",
	}
	if !slices.Equal(ids, want) {
		t.Fatalf("field ids = %v, want %v", ids, want)
	}

	if !fields[1].Missing || fields[0].Missing {
		t.Errorf("Missing flags wrong: %+v %+v", fields[0], fields[1])
	}
	if fields[3].Label != "CPython 2.7" || fields[3].Variant != "mu" || !fields[3].Missing {
		t.Errorf("py27 field = %+v", fields[3])
	}
	if fields[6].Missing || fields[6].Value != "" {
		t.Errorf("global-tools header = %+v", fields[6])
	}
}

func TestSortFields(t *testing.T) {
	t.Parallel()

	in := []Field{
		{ID: "python.cp39-cp39"},
		{ID: "global-tools.git"},
		{ID: "python.pp310-pypy310_pp73"},
		{ID: "os.libc"},
		{ID: "python.cp312-cp312.pip"},
		{ID: "global-tools"},
		{ID: "python.cp312-cp312"},
		{ID: "os"},
		{ID: "python.cp27-cp27mu"},
	}

	var got []string
	for _, f := range SortFields(in) {
		got = append(got, f.ID)
	}
	want := []string{
		"os", "os.libc",
		"global-tools", "global-tools.git",
		"python.cp312-cp312", "python.cp312-cp312.pip",
		"python.cp39-cp39",
		"python.cp27-cp27mu",
		"python.pp310-pypy310_pp73",
	}
	if !slices.Equal(got, want) {
		t.Errorf("SortFields() = %v, want %v", got, want)
	}
	if in[0].ID != "python.cp39-cp39" {
		t.Error("SortFields() must not reorder its input")
	}
}
