// SPDX-License-Identifier: MPL-2.0

package site

import "slices"

// Standard is a wheel platform policy with a short description.
type Standard struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Standards lists the known policies, newest first.
var Standards = []Standard{
	{
		Name: "manylinux_2_34",
		Description: "manylinux_2_34 is the latest of the manylinux standards, with a glibc version of 2.34. " +
			"It's based on AlmaLinux, a community-driven Linux distribution forked from CentOS and RHEL. " +
			"Its tag was defined in the generic PEP 600.",
	},
	{
		Name: "manylinux_2_28",
		Description: "manylinux_2_28 is a previous manylinux standard, with a glibc version of 2.28. " +
			"It's based on AlmaLinux, a community-driven Linux distribution forked from CentOS and RHEL. " +
			"Its tag was defined in the generic PEP 600.",
	},
	{
		Name: "manylinux_2_24",
		Description: "manylinux_2_24 is a previous manylinux standard, with a glibc version of 2.24. " +
			"It's the only manylinux standard based on Debian. Its tag was defined in the generic PEP 600.",
	},
	{
		Name: "manylinux2014",
		Description: "manylinux2014 is a manylinux standard with a glibc version of 2.17. " +
			"It's the final manylinux standard based on CentOS, in this case CentOS 7. Its policy was defined in PEP 599.",
	},
	{
		Name: "manylinux2010",
		Description: "manylinux2010 is a manylinux standard with a glibc version of 2.12. " +
			"The images are based on CentOS 6. Its tag was defined in PEP 571.",
	},
	{
		Name: "manylinux1",
		Description: "manylinux1 is the first manylinux standard, with a glibc version of 2.5. " +
			"The images are based on CentOS 5.11. It was defined in PEP 513.",
	},
	{
		Name: "musllinux_1_1",
		Description: "musllinux_1_1 is a wheel policy based on the musl libc, in this case musl v1.1. " +
			"The images are based on Alpine. It was defined in PEP 656.",
	},
}

// LookupStandard returns the standard called name.
func LookupStandard(name string) (Standard, bool) {
	i := slices.IndexFunc(Standards, func(s Standard) bool { return s.Name == name })
	if i == -1 {
		return Standard{}, false
	}
	return Standards[i], true
}

// CompareStandards orders known standards by catalog position and unknown
// names after them. Two unknown names compare equal.
func CompareStandards(a, b string) int {
	ai := slices.IndexFunc(Standards, func(s Standard) bool { return s.Name == a })
	bi := slices.IndexFunc(Standards, func(s Standard) bool { return s.Name == b })
	switch {
	case ai == -1 && bi == -1:
		return 0
	case ai == -1:
		return 1
	case bi == -1:
		return -1
	default:
		return ai - bi
	}
}
