package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/fixfactory/internal/db"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage named sets of settings overrides",
}

var profileSaveCmd = &cobra.Command{
	Use:   "save <name> key=value...",
	Short: "Create or replace a profile",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := parseAssignments(args[1:])
		if err != nil {
			return err
		}

		a, cleanup, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := a.db.SaveProfile(cmd.Context(), db.Profile{Name: args[0], Settings: settings}); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Saved profile %s (%d settings).\n", args[0], len(settings))
		return nil
	},
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		profiles, err := a.db.ListProfiles(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return writeJSON(a.out, profiles)
		}
		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		for _, p := range profiles {
			fmt.Fprintf(tw, "%s\t%d settings\t%s\n", p.Name, len(p.Settings), p.UpdatedAt)
		}
		return tw.Flush()
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a profile's settings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		p, err := a.db.GetProfile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return writeJSON(a.out, p)
		}
		printSettings(a, p.Settings)
		return nil
	},
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := a.db.DeleteProfile(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Deleted profile %s.\n", args[0])
		return nil
	},
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Read, write, export and import settings",
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		return a.db.SetSetting(cmd.Context(), args[0], args[1])
	},
}

var settingsGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print one setting, or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		if len(args) == 1 {
			v, err := a.db.GetSetting(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, v)
			return nil
		}
		all, err := a.db.ListSettings(cmd.Context())
		if err != nil {
			return err
		}
		printSettings(a, all)
		return nil
	},
}

var settingsExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export settings, profiles, projects and folder links as JSON",
	Long: `Export settings, profiles, registered projects and their folder links.
Session logs and request history are not included. Without a file the
document is written to stdout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		exp, err := a.db.ExportSettings(cmd.Context())
		if err != nil {
			return err
		}
		if len(args) == 0 {
			return writeJSON(a.out, exp)
		}
		data, err := json.MarshalIndent(exp, "", "  ")
		if err != nil {
			return fmt.Errorf("encode export: %w", err)
		}
		if err := os.WriteFile(args[0], append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		fmt.Fprintf(a.out, "Exported %d settings, %d profiles and %d projects to %s.\n",
			len(exp.Settings), len(exp.Profiles), len(exp.Projects), args[0])
		return nil
	},
}

var settingsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a settings export",
	Long: `Import a document written by "settings export". --mode replace drops the
existing settings, profiles, folder links and session logs first; --mode
merge keeps them and lets imported entries win on conflict. Projects are
always merged.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("mode")

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read import: %w", err)
		}
		var exp db.SettingsExport
		if err := json.Unmarshal(data, &exp); err != nil {
			return fmt.Errorf("parse import: %w", err)
		}

		a, cleanup, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := a.db.ImportSettings(cmd.Context(), &exp, db.ImportMode(mode)); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Imported %d settings, %d profiles and %d projects (%s).\n",
			len(exp.Settings), len(exp.Profiles), len(exp.Projects), mode)
		return nil
	},
}

func parseAssignments(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid setting %q: want key=value", arg)
		}
		out[k] = v
	}
	return out, nil
}

func printSettings(a *app, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(a.out, "%s=%s\n", k, m[k])
	}
}

func init() {
	profileCmd.AddCommand(profileSaveCmd)
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileDeleteCmd)
	addFormatFlag(profileListCmd, profileShowCmd)

	settingsImportCmd.Flags().String("mode", string(db.ImportMerge), "Import mode: replace or merge")
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsExportCmd)
	settingsCmd.AddCommand(settingsImportCmd)
}
