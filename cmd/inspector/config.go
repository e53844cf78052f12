// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/manylinux-inspector/manylinux-inspector/internal/config"
	"github.com/manylinux-inspector/manylinux-inspector/internal/issue"
)

// newConfigCommand creates the `config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage configuration.

Configuration is read from --config, else from
$XDG_CONFIG_HOME/manylinux-inspector/config.cue (~/.config when unset), else
from ./config.cue. Every key can be overridden with an INSPECTOR_ environment
variable, e.g. INSPECTOR_POLL_WORKERS=8.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.LoadWithPath(cmd.Context(), config.LoadOptions{ConfigFilePath: app.flags.configPath})
			if err != nil {
				app.renderIssue(issue.ConfigLoadFailedId)
				return app.fail(cmd, err)
			}

			fmt.Fprintln(app.stdout, TitleStyle.Render("Current Configuration"))
			fmt.Fprintln(app.stdout)
			source := SubtitleStyle.Render("(using defaults)")
			if loaded.Path != "" {
				source = loaded.Path
			}
			fmt.Fprintf(app.stdout, "%s: %s\n\n", RefStyle.Render("Config file"), source)
			fmt.Fprint(app.stdout, config.GenerateCUE(loaded.Config))
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.LoadWithPath(cmd.Context(), config.LoadOptions{ConfigFilePath: app.flags.configPath})
			if err == nil && loaded.Path != "" {
				fmt.Fprintln(app.stdout, loaded.Path)
				return nil
			}
			path, pathErr := config.DefaultConfigPath("")
			if pathErr != nil {
				return app.fail(cmd, pathErr)
			}
			fmt.Fprintf(app.stdout, "%s %s\n", path, SubtitleStyle.Render("(not created yet)"))
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := app.flags.configPath
			if path == "" {
				var err error
				if path, err = config.DefaultConfigPath(""); err != nil {
					return app.fail(cmd, err)
				}
			}
			created, err := config.CreateDefaultConfig(path)
			if err != nil {
				return app.fail(cmd, err)
			}
			if !created {
				fmt.Fprintf(app.stdout, "%s %s already exists\n", WarningStyle.Render(iconSkipped), path)
				return nil
			}
			fmt.Fprintf(app.stdout, "%s created %s\n", SuccessStyle.Render(iconSuccess), RefStyle.Render(path))
			return nil
		},
	})

	var asJSON bool
	dump := &cobra.Command{
		Use:   "dump",
		Short: "Output the effective configuration as CUE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.loadConfig(cmd.Context())
			if err != nil {
				return app.fail(cmd, err)
			}
			if asJSON {
				enc := json.NewEncoder(app.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}
			fmt.Fprint(app.stdout, config.GenerateCUE(cfg))
			return nil
		},
	}
	dump.Flags().BoolVar(&asJSON, "json", false, "output JSON instead of CUE")
	cfgCmd.AddCommand(dump)

	return cfgCmd
}

func newVersionCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			_, err := fmt.Fprintf(app.stdout, "manylinux-inspector %s\n", getVersionString())
			return err
		},
	}
}
