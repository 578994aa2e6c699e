// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"cmp"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
)

// Catalog identifiers. The zero value means "no catalog page".
const (
	ManifestInvalidID ID = iota + 1
	LockMismatchID
	SourceMissingID
	DescriptorInvalidID
	DockerfileInvalidID
	EngineNotFoundID
	ImageBuildFailedID
	InvalidPortID
	LaunchFailedID
)

type (
	// ID identifies a catalog page.
	ID int

	// MarkdownMsg is Markdown text rendered for the user.
	MarkdownMsg string

	// HTTPLink is a documentation link shown under "See also".
	HTTPLink string

	// Issue is a catalog page describing a failure class and how to fix it.
	Issue struct {
		id       ID
		mdMsg    MarkdownMsg
		docLinks []HTTPLink
	}
)

// render is replaced in tests.
var render = glamour.Render

// ID returns the catalog identifier.
func (i *Issue) ID() ID { return i.id }

// MarkdownMsg returns the raw Markdown body.
func (i *Issue) MarkdownMsg() MarkdownMsg { return i.mdMsg }

// DocLinks returns a copy of the documentation links.
func (i *Issue) DocLinks() []HTTPLink { return slices.Clone(i.docLinks) }

// Render renders the page with the given glamour style ("dark", "light",
// "notty", or a path to a JSON style file).
func (i *Issue) Render(stylePath string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range i.docLinks {
			md.WriteString("- <" + string(link) + ">\n")
		}
	}
	return render(md.String(), stylePath)
}

// Get returns the catalog page for id, or nil if there is none.
func Get(id ID) *Issue {
	return catalog[id]
}

// Values returns every catalog page ordered by ID.
func Values() []*Issue {
	pages := maps.Values(catalog)
	slices.SortFunc(pages, func(a, b *Issue) int { return cmp.Compare(a.id, b.id) })
	return pages
}

var catalog = map[ID]*Issue{
	ManifestInvalidID: {
		id: ManifestInvalidID,
		mdMsg: `
# The manifest pair could not be read

berth needs both the dependency spec file and its lock file at the
project root before any application source is staged.

## Things you can try
- Check that ` + "`pyproject.toml`" + ` and ` + "`poetry.lock`" + ` exist next to ` + "`berth.cue`" + `
- Validate the TOML syntax of both files
- Regenerate the lock file:
~~~
$ poetry lock
~~~`,
		docLinks: []HTTPLink{"https://python-poetry.org/docs/basic-usage/#installing-dependencies"},
	},
	LockMismatchID: {
		id: LockMismatchID,
		mdMsg: `
# The lock file is out of date

A dependency declared in the spec file has no entry in the lock file.
The build stops here, before the application source is copied.

## Things you can try
- Regenerate the lock file and commit it:
~~~
$ poetry lock
~~~
- Or remove the dependency from the spec file if it is no longer needed`,
		docLinks: []HTTPLink{"https://python-poetry.org/docs/cli/#lock"},
	},
	SourceMissingID: {
		id: SourceMissingID,
		mdMsg: `
# The application source tree is missing

The source directory named in the descriptor does not exist inside the
project root.

## Things you can try
- Check ` + "`source.path`" + ` in ` + "`berth.cue`" + ` (default: ` + "`app`" + `)
- Run berth from the project root, or pass ` + "`--project`" + ``,
	},
	DescriptorInvalidID: {
		id: DescriptorInvalidID,
		mdMsg: `
# The build descriptor is invalid

` + "`berth.cue`" + ` did not match the descriptor schema or failed validation.

## Things you can try
- Print the effective descriptor:
~~~
$ berth dockerfile
~~~
- Remove the offending field to fall back to the default`,
	},
	DockerfileInvalidID: {
		id: DockerfileInvalidID,
		mdMsg: `
# The rendered Dockerfile did not parse

This usually means a descriptor value contains a newline or an unbalanced
quote. Check string values in ` + "`berth.cue`" + `.`,
	},
	EngineNotFoundID: {
		id: EngineNotFoundID,
		mdMsg: `
# No container engine is available

berth drives Docker or Podman through their CLIs, or talks to a BuildKit
daemon directly.

## Things you can try
- Install Docker or Podman and make sure the daemon is running
- Select an engine explicitly:
~~~
$ BERTH_CONTAINER_ENGINE=podman berth build
~~~`,
	},
	ImageBuildFailedID: {
		id: ImageBuildFailedID,
		mdMsg: `
# The image build failed

The container engine reported a failure. No image was tagged.

## Things you can try
- Re-run with ` + "`--verbose`" + ` to see the full engine output
- If dependency installation failed, regenerate the lock file
- Force a rebuild without cache: ` + "`berth build --force --no-cache`" + ``,
	},
	InvalidPortID: {
		id: InvalidPortID,
		mdMsg: `
# The PORT value is not usable

The hosting platform supplied a PORT that is not a decimal integer in the
range 1-65535. Unset PORT to fall back to the default port.`,
	},
	LaunchFailedID: {
		id: LaunchFailedID,
		mdMsg: `
# The server process could not be started

The launch command was expanded but the program could not be executed.

## Things you can try
- Check that the server program is installed in the runtime environment
- Check the module search path (` + "`PYTHONPATH`" + `) covers the entry module`,
	},
}
