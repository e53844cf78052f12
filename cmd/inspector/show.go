// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/manylinux-inspector/manylinux-inspector/internal/cache"
	"github.com/manylinux-inspector/manylinux-inspector/internal/issue"
	"github.com/manylinux-inspector/manylinux-inspector/internal/probe"
	"github.com/manylinux-inspector/manylinux-inspector/internal/site"
)

func newShowCommand(app *App) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "show <image>",
		Short: "Show the cached report of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig(cmd.Context())
			if err != nil {
				return app.fail(cmd, err)
			}

			entry, err := app.store(cfg).Load(args[0])
			if err != nil {
				if errors.Is(err, cache.ErrNotFound) {
					app.renderIssue(issue.ImageNotInspectedId)
				}
				return app.fail(cmd, err)
			}

			md := reportMarkdown(entry)
			if raw {
				_, err := fmt.Fprint(app.stdout, md)
				return err
			}

			r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
			if err != nil {
				return app.fail(cmd, err)
			}
			out, err := r.Render(md)
			if err != nil {
				return app.fail(cmd, err)
			}
			_, err = fmt.Fprint(app.stdout, out)
			return err
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the Markdown source instead of rendering it")
	return cmd
}

// reportMarkdown renders a cached report as a Markdown table. Interpreter
// tools are indented below their interpreter.
func reportMarkdown(entry *cache.Entry) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", entry.Metadata.Image)
	fmt.Fprintf(&sb, "Inspected %s\n\n", entry.Metadata.GeneratedTime().UTC().Format(time.RFC1123))
	sb.WriteString("| | |\n|---|---|\n")

	for _, f := range site.ReportFields(entry) {
		label := f.Label
		if f.Variant != "" {
			label += " (" + f.Variant + ")"
		}
		value := f.Value
		if f.Missing {
			value = site.NoneValue
		}

		switch {
		case f.ID == probe.FieldGlobalTools:
			fmt.Fprintf(&sb, "| **%s** | |\n", escapeCell(label))
		case isToolField(f.ID):
			fmt.Fprintf(&sb, "| &nbsp;&nbsp;%s | %s |\n", escapeCell(label), escapeCell(value))
		default:
			fmt.Fprintf(&sb, "| %s | %s |\n", escapeCell(label), escapeCell(value))
		}
	}
	return sb.String()
}

// isToolField reports whether id names a tool of an interpreter or a global
// tool, e.g. python.cp312-cp312.pip or global-tools.cmake.
func isToolField(id string) bool {
	if strings.HasPrefix(id, probe.FieldGlobalTools+".") {
		return true
	}
	return strings.HasPrefix(id, "python.") && strings.Count(id, ".") >= 2
}

func escapeCell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", `\|`), "\n", " ")
}
