package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/fixfactory/internal/backend"
	"github.com/lucasnoah/fixfactory/internal/db"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage registered projects and their linked folders",
}

var projectAddCmd = &cobra.Command{
	Use:   "add [path]",
	Short: "Register a project directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		path, err := a.targetPath(args)
		if err != nil {
			return err
		}
		p, err := a.db.AddProject(cmd.Context(), path)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Project %d: %s (%s)\n", p.ID, p.Name, p.Path)
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered projects",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		projects, err := a.db.ListProjects(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return writeJSON(a.out, projects)
		}
		if len(projects) == 0 {
			fmt.Fprintln(a.out, "No projects registered.")
			return nil
		}
		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tPATH")
		for _, p := range projects {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", p.ID, p.Name, p.Path)
		}
		return tw.Flush()
	},
}

var projectRemoveCmd = &cobra.Command{
	Use:   "remove <id|path>",
	Short: "Unregister a project with its session log and folder links",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		p, err := resolveProject(cmd.Context(), a.db, args[0])
		if err != nil {
			return err
		}
		if err := a.db.RemoveProject(cmd.Context(), p.ID); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Removed project %d (%s).\n", p.ID, p.Path)
		return nil
	},
}

var projectLinkCmd = &cobra.Command{
	Use:   "link <id|path> <folder>",
	Short: "Link an extra folder to a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		label, _ := cmd.Flags().GetString("label")

		a, cleanup, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		p, err := resolveProject(cmd.Context(), a.db, args[0])
		if err != nil {
			return err
		}
		folder, err := filepath.Abs(args[1])
		if err != nil {
			return fmt.Errorf("resolve folder %s: %w", args[1], err)
		}
		if err := a.db.LinkFolder(cmd.Context(), db.FolderLink{ProjectID: p.ID, Folder: folder, Label: label}); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Linked %s to project %d.\n", folder, p.ID)
		return nil
	},
}

var projectUnlinkCmd = &cobra.Command{
	Use:   "unlink <id|path> <folder>",
	Short: "Remove a folder link",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		p, err := resolveProject(cmd.Context(), a.db, args[0])
		if err != nil {
			return err
		}
		folder, err := filepath.Abs(args[1])
		if err != nil {
			return fmt.Errorf("resolve folder %s: %w", args[1], err)
		}
		if err := a.db.UnlinkFolder(cmd.Context(), p.ID, folder); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Unlinked %s.\n", folder)
		return nil
	},
}

var projectLinksCmd = &cobra.Command{
	Use:   "links <id|path>",
	Short: "List a project's linked folders",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		p, err := resolveProject(cmd.Context(), a.db, args[0])
		if err != nil {
			return err
		}
		links, err := a.db.ListFolderLinks(cmd.Context(), p.ID)
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return writeJSON(a.out, links)
		}
		for _, l := range links {
			if l.Label != "" {
				fmt.Fprintf(a.out, "%s\t%s\n", l.Folder, l.Label)
				continue
			}
			fmt.Fprintln(a.out, l.Folder)
		}
		return nil
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Read and append to a project's session log",
}

var sessionListCmd = &cobra.Command{
	Use:   "list <id|path>",
	Short: "Show a project's session log, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		p, err := resolveProject(cmd.Context(), a.db, args[0])
		if err != nil {
			return err
		}
		entries, err := a.db.ListSessions(cmd.Context(), p.ID)
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return writeJSON(a.out, entries)
		}
		if len(entries) == 0 {
			fmt.Fprintf(a.out, "No session entries for %s.\n", p.Path)
			return nil
		}
		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.CreatedAt, e.Kind, e.Role, e.Text)
		}
		return tw.Flush()
	},
}

var sessionAppendCmd = &cobra.Command{
	Use:   "append <id|path> <text>",
	Short: "Append a note to a project's session log",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		role, _ := cmd.Flags().GetString("role")

		a, cleanup, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		p, err := resolveProject(cmd.Context(), a.db, args[0])
		if err != nil {
			return err
		}
		return a.db.AppendSessionEvent(cmd.Context(), p.ID, kind, role, args[1])
	},
}

// resolveProject accepts a numeric project id or a project path.
func resolveProject(ctx context.Context, d *db.DB, ref string) (*backend.Project, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return d.GetProject(ctx, id)
	}
	abs, err := filepath.Abs(ref)
	if err != nil {
		return nil, fmt.Errorf("resolve path %s: %w", ref, err)
	}
	return d.FindProject(ctx, abs)
}

func init() {
	projectLinkCmd.Flags().String("label", "", "Label for the linked folder")
	projectCmd.AddCommand(projectAddCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectRemoveCmd)
	projectCmd.AddCommand(projectLinkCmd)
	projectCmd.AddCommand(projectUnlinkCmd)
	projectCmd.AddCommand(projectLinksCmd)

	sessionAppendCmd.Flags().String("kind", "note", "Entry kind")
	sessionAppendCmd.Flags().String("role", "user", "Entry role")
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionAppendCmd)

	addFormatFlag(projectListCmd, projectLinksCmd, sessionListCmd)
}
