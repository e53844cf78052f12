// SPDX-License-Identifier: MPL-2.0

package site

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// MultiArch is the arch of repositories without an arch suffix.
const MultiArch = "multiarch"

var (
	// ErrUnparseableName is returned for image names outside the manylinux naming scheme.
	ErrUnparseableName = errors.New("image name does not follow the <standard>_<arch> scheme")

	archOrder = []string{"x86_64", "i686", "aarch64", "ppc64le", "s390x"}

	repoNameRe = regexp.MustCompile(`^(?P<domain>.*)/(?P<org>.*)/(?P<name>[a-z]*(?:\d|\d{4}|(?:_\d+)+))(?:_(?P<arch>.*))?$`)
)

type (
	// RepoName is a repository reference split into its parts.
	RepoName struct {
		Domain string `json:"domain"`
		Org    string `json:"org"`
		// Name is the standard, e.g. manylinux_2_28 or musllinux_1_2
		Name string `json:"name"`
		Arch string `json:"arch"`
	}

	// ImageRef is a parsed image reference.
	ImageRef struct {
		RepoName
		Tag string `json:"tag"`
	}
)

// ParseRepoName splits domain/org/<name>[_<arch>]. The name is a lowercase
// word followed by a single digit, a four digit year or _N groups.
func ParseRepoName(repo string) (RepoName, error) {
	m := repoNameRe.FindStringSubmatch(repo)
	if m == nil {
		return RepoName{}, fmt.Errorf("%w: %q", ErrUnparseableName, repo)
	}
	rn := RepoName{
		Domain: m[repoNameRe.SubexpIndex("domain")],
		Org:    m[repoNameRe.SubexpIndex("org")],
		Name:   m[repoNameRe.SubexpIndex("name")],
		Arch:   m[repoNameRe.SubexpIndex("arch")],
	}
	if rn.Domain == "" || rn.Org == "" || rn.Name == "" {
		return RepoName{}, fmt.Errorf("%w: %q is missing parts", ErrUnparseableName, repo)
	}
	if rn.Arch == "" {
		rn.Arch = MultiArch
	}
	return rn, nil
}

// ParseImageRef splits an image reference into repository parts and tag.
func ParseImageRef(image string) (ImageRef, error) {
	colon := strings.LastIndex(image, ":")
	if colon == -1 || colon < strings.LastIndex(image, "/") {
		return ImageRef{}, fmt.Errorf("%w: %q has no tag", ErrUnparseableName, image)
	}
	rn, err := ParseRepoName(image[:colon])
	if err != nil {
		return ImageRef{}, err
	}
	tag := image[colon+1:]
	if tag == "" {
		return ImageRef{}, fmt.Errorf("%w: %q has an empty tag", ErrUnparseableName, image)
	}
	return ImageRef{RepoName: rn, Tag: tag}, nil
}

// CompareArchs orders x86_64, i686, aarch64, ppc64le, s390x first and
// everything else alphabetically after them.
func CompareArchs(a, b string) int {
	ai, bi := slices.Index(archOrder, a), slices.Index(archOrder, b)
	switch {
	case ai == -1 && bi == -1:
		return strings.Compare(a, b)
	case ai == -1:
		return 1
	case bi == -1:
		return -1
	default:
		return ai - bi
	}
}
