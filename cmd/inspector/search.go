// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/cobra"

	"github.com/manylinux-inspector/manylinux-inspector/internal/issue"
	"github.com/manylinux-inspector/manylinux-inspector/internal/site"
)

func newSearchCommand(app *App) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the rendered site for image versions",
		Long: `Search the rendered site for image versions.

The query is matched case-insensitively against domain/org/name:tag. Separate
several terms with commas to match any of them. "latest" lists the versions
the repositories' latest tags point at and "all" lists everything. Queries
shorter than three characters match nothing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig(cmd.Context())
			if err != nil {
				return app.fail(cmd, err)
			}

			idx, err := site.LoadIndex(cfg.SiteDir)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					app.renderIssue(issue.SiteNotRenderedId)
				}
				return app.fail(cmd, err)
			}

			refs := idx.Search(args[0])
			if asJSON {
				enc := json.NewEncoder(app.stdout)
				enc.SetIndent("", "  ")
				if refs == nil {
					refs = []site.VersionRef{}
				}
				return enc.Encode(refs)
			}

			if len(refs) == 0 {
				fmt.Fprintln(app.stdout, SubtitleStyle.Render("no matching versions"))
				return nil
			}
			for _, ref := range refs {
				date := ""
				if d, ok := ref.Date(); ok {
					date = d.Format("2006-01-02")
				}
				fmt.Fprintf(app.stdout, "%s  %s  %s\n", RefStyle.Render(ref.ID()), strings.Join(ref.Archs, ","), SubtitleStyle.Render(date))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the matching index entries as JSON")
	return cmd
}
