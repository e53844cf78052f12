// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"cmp"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"
)

type Id int

const (
	ContainerEngineNotFoundId Id = iota + 1
	ContainerStartFailedId
	ImageNotInspectedId
	CacheNotWritableId
	RegistryUnreachableId
	ConfigLoadFailedId
	SiteNotRenderedId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink
	extLinks []HttpLink // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render renders the issue as terminal Markdown using the given glamour style
// ("dark", "light", "notty", "auto" or a path to a style JSON file).
func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n## See also\n"
		for _, link := range i.docLinks {
			extraMd += "\n- <" + string(link) + ">"
		}
		for _, link := range i.extLinks {
			extraMd += "\n- <" + string(link) + ">"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	containerEngineNotFoundIssue = &Issue{
		id: ContainerEngineNotFoundId,
		mdMsg: `
# No container engine available!

Inspecting an image needs docker or podman on this machine.

## Things you can try:
- Check that the engine is installed and on your PATH:
~~~
$ docker version
$ podman version
~~~
- Pick the engine explicitly in your config:
~~~cue
container_engine: "podman"
~~~
- Use the Docker API engine when only the daemon socket is reachable:
~~~cue
container_engine: "docker-api"
~~~`,
		extLinks: []HttpLink{"https://docs.docker.com/engine/install/", "https://podman.io/docs/installation"},
	}

	containerStartFailedIssue = &Issue{
		id: ContainerStartFailedId,
		mdMsg: `
# The inspection container did not start!

The image was found but the ephemeral container could not be created or did
not answer the readiness check (` + "`/bin/true`" + `).

## Things you can try:
- Pull the image manually to rule out registry problems:
~~~
$ docker pull quay.io/pypa/manylinux2014_x86_64:latest
~~~
- Foreign architectures need binfmt/qemu emulation registered on the host
- Run again with ` + "`--verbose`" + ` to see the engine output`,
	}

	imageNotInspectedIssue = &Issue{
		id: ImageNotInspectedId,
		mdMsg: `
# No cached report for this image!

The report cache has no entry for the requested image.

## Things you can try:
- Inspect the image first:
~~~
$ manylinux-inspector inspect quay.io/pypa/manylinux_2_28_x86_64:latest
~~~
- Check that ` + "`cache_dir`" + ` in your config points at the right directory`,
	}

	cacheNotWritableIssue = &Issue{
		id: CacheNotWritableId,
		mdMsg: `
# Could not write to the report cache!

Reports are written atomically into the cache directory; the directory must
exist or be creatable, and be writable by the current user.

## Things you can try:
- Check the permissions of the cache directory
- Point ` + "`cache_dir`" + ` at a writable location`,
	}

	registryUnreachableIssue = &Issue{
		id: RegistryUnreachableId,
		mdMsg: `
# The registry API could not be queried!

Polling lists public repositories of a namespace and their tags through the
registry HTTP API.

## Things you can try:
- Check network connectivity to the registry
- Verify ` + "`registry.url`" + ` and ` + "`registry.namespace`" + ` in your config
- Lower ` + "`registry.requests_per_second`" + ` if the registry is rate limiting you`,
		extLinks: []HttpLink{"https://docs.quay.io/api/"},
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

The config file is CUE and is validated against a schema before use.

## Things you can try:
- Print the effective configuration:
~~~
$ manylinux-inspector config show
~~~
- Write a fresh default file:
~~~
$ manylinux-inspector config init
~~~`,
		extLinks: []HttpLink{"https://cuelang.org/docs/"},
	}

	siteNotRenderedIssue = &Issue{
		id: SiteNotRenderedId,
		mdMsg: `
# The site index is missing!

Searching reads the rendered ` + "`data/index.json`" + ` from the site directory.

## Things you can try:
- Render the site first:
~~~
$ manylinux-inspector render
~~~`,
	}

	issues = map[Id]*Issue{
		containerEngineNotFoundIssue.Id(): containerEngineNotFoundIssue,
		containerStartFailedIssue.Id():    containerStartFailedIssue,
		imageNotInspectedIssue.Id():       imageNotInspectedIssue,
		cacheNotWritableIssue.Id():        cacheNotWritableIssue,
		registryUnreachableIssue.Id():     registryUnreachableIssue,
		configLoadFailedIssue.Id():        configLoadFailedIssue,
		siteNotRenderedIssue.Id():         siteNotRenderedIssue,
	}
)

// Values returns every catalogued issue ordered by Id.
func Values() []*Issue {
	out := make([]*Issue, 0, len(issues))
	for _, i := range issues {
		out = append(out, i)
	}
	slices.SortFunc(out, func(a, b *Issue) int { return cmp.Compare(a.id, b.id) })
	return out
}

func Get(id Id) *Issue {
	return issues[id]
}
