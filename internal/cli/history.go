package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Set requests aside and switch between them",
}

var historyNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Save the current request to history and start a fresh one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		snap, err := a.history.NewRequest(cmd.Context())
		if err != nil {
			return err
		}
		if snap == nil {
			fmt.Fprintln(a.out, "Started a new request.")
			return nil
		}
		fmt.Fprintf(a.out, "Saved %q as %s. Started a new request.\n", snap.Title, shortID(snap.ID))
		return nil
	},
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved requests, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		items := a.history.List()
		if jsonOutput(cmd) {
			return writeJSON(a.out, items)
		}
		if len(items) == 0 {
			fmt.Fprintln(a.out, "No saved requests.")
			return nil
		}
		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCREATED\tPATH\tTITLE")
		for _, s := range items {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", shortID(s.ID), s.CreatedAt, s.Path, s.Title)
		}
		return tw.Flush()
	},
}

var historySwitchCmd = &cobra.Command{
	Use:   "switch <id>",
	Short: "Restore a saved request (ids may be abbreviated)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := a.history.SwitchTo(args[0]); err != nil {
			return err
		}
		snap := a.store.Snapshot()
		fmt.Fprintf(a.out, "Switched to request on %s (%d messages).\n", snap.Path, len(snap.Transcript))
		return nil
	},
}

var historyRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Delete a saved request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		snap, err := a.history.Get(args[0])
		if err != nil {
			return err
		}
		if err := a.history.Remove(cmd.Context(), snap.ID); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Removed %s.\n", shortID(snap.ID))
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	historyCmd.AddCommand(historyNewCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historySwitchCmd)
	historyCmd.AddCommand(historyRemoveCmd)
	addFormatFlag(historyListCmd)
}
