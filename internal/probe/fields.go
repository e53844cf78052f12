// SPDX-License-Identifier: MPL-2.0

package probe

import (
	"cmp"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

const (
	FieldOS             = "os"
	FieldLibc           = "os.libc"
	FieldPackageManager = "os.packageManager"
	FieldGlobalTools    = "global-tools"
)

var pythonFieldRe = regexp.MustCompile(`python\.(\w*?)(\d)(\d+)-(.*)`)

// Field is one displayable row of a report.
type Field struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Variant string `json:"variant,omitempty"`
	Value   string `json:"value"`
	// Missing marks a value that could not be determined
	Missing bool `json:"missing,omitempty"`
}

// Fields lists the report rows: OS facts, one row per interpreter followed
// by its tools, then a global-tools header and one row per global tool.
func (s Summary) Fields() []Field {
	fields := []Field{
		optionalField(FieldOS, "OS", s.OS),
		optionalField(FieldLibc, "libc", s.Libc),
		optionalField(FieldPackageManager, "Package manager", s.PackageManager),
	}

	for _, py := range s.Pythons {
		name, variant := PrettyName(py.Identifier)
		f := optionalField("python."+py.Identifier, name, py.Version)
		f.Variant = variant
		fields = append(fields, f)
		for _, tool := range py.Tools {
			fields = append(fields, Field{ID: "python." + py.Identifier + "." + tool.Name, Label: tool.Name, Value: tool.Version})
		}
	}

	fields = append(fields, Field{ID: FieldGlobalTools, Label: "Global Tools"})
	for _, tool := range s.GlobalTools {
		fields = append(fields, Field{ID: FieldGlobalTools + "." + tool.Name, Label: tool.Name, Value: tool.Version})
	}

	return fields
}

func optionalField(id, label, value string) Field {
	return Field{ID: id, Label: label, Value: value, Missing: value == ""}
}

type fieldSortKey struct {
	python      bool
	priority    bool
	interpreter string
	major       int
	minor       int
	rest        string
	id          string
}

func sortKey(id string) fieldSortKey {
	m := pythonFieldRe.FindStringSubmatch(id)
	if m == nil {
		return fieldSortKey{priority: !strings.HasPrefix(id, "os"), id: id}
	}
	major, _ := strconv.Atoi(m[2])
	minor, _ := strconv.Atoi(m[3])
	return fieldSortKey{python: true, interpreter: m[1], major: major, minor: minor, rest: m[4], id: id}
}

// CompareFieldIDs orders OS fields first, then the remaining non-interpreter
// fields by id, then interpreter fields by interpreter, newest version first.
func CompareFieldIDs(a, b string) int {
	ka, kb := sortKey(a), sortKey(b)
	if ka.python != kb.python {
		if ka.python {
			return 1
		}
		return -1
	}
	if ka.priority != kb.priority {
		if ka.priority {
			return 1
		}
		return -1
	}
	return cmp.Or(
		cmp.Compare(ka.interpreter, kb.interpreter),
		cmp.Compare(kb.major, ka.major),
		cmp.Compare(kb.minor, ka.minor),
		cmp.Compare(ka.rest, kb.rest),
		cmp.Compare(ka.id, kb.id),
	)
}

// SortFields returns fields ordered by CompareFieldIDs. The sort is stable.
func SortFields(fields []Field) []Field {
	out := slices.Clone(fields)
	slices.SortStableFunc(out, func(a, b Field) int { return CompareFieldIDs(a.ID, b.ID) })
	return out
}
