package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/fixfactory/internal/action"
	"github.com/lucasnoah/fixfactory/internal/backend"
)

var selectCmd = &cobra.Command{
	Use:   "select [group:ID | pack:ID | kind:path]...",
	Short: "Choose which proposed actions to preview and apply",
	Long: `Change the selection over the current report.

Arguments name a group ("group:docs"), a fix pack ("pack:essentials") or a
single action by its key ("create_file:README.md"). They are selected, or
deselected with --off. --all, --none and --recommended are applied first.
Without arguments or flags the current selection is printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		none, _ := cmd.Flags().GetBool("none")
		recommended, _ := cmd.Flags().GetBool("recommended")
		off, _ := cmd.Flags().GetBool("off")

		a, cleanup, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		report, err := a.requireReport()
		if err != nil {
			return err
		}
		sel := a.orch.Selection()

		switch {
		case none:
			sel.Clear()
		case all:
			sel.SelectAll()
		}
		if recommended {
			if err := sel.SelectRecommended(report.RecommendedPackIDs); err != nil {
				return err
			}
		}
		for _, arg := range args {
			if err := applySelectArg(sel, arg, !off); err != nil {
				return err
			}
		}

		selected := sel.Selected()
		if jsonOutput(cmd) {
			keys := make([]string, 0, len(selected))
			for _, act := range selected {
				keys = append(keys, act.Key().String())
			}
			return writeJSON(a.out, keys)
		}
		if len(selected) == 0 {
			fmt.Fprintln(a.out, "Nothing selected.")
			return nil
		}
		fmt.Fprintf(a.out, "Selected %d actions:\n", len(selected))
		for _, act := range selected {
			fmt.Fprintf(a.out, "  %s\n", act.Key())
		}
		return nil
	},
}

func applySelectArg(sel *action.Selection, arg string, on bool) error {
	prefix, rest, ok := strings.Cut(arg, ":")
	if !ok || rest == "" {
		return fmt.Errorf("invalid selector %q: want group:ID, pack:ID or kind:path", arg)
	}
	switch prefix {
	case "group":
		if on {
			return sel.SelectGroup(rest)
		}
		return sel.DeselectGroup(rest)
	case "pack":
		if on {
			return sel.SelectPack(rest)
		}
		return sel.DeselectPack(rest)
	}

	kind := backend.ActionKind(prefix)
	if !kind.Valid() {
		return fmt.Errorf("invalid selector %q: unknown action kind %q", arg, prefix)
	}
	act, found := sel.Lookup(backend.ActionKey{Kind: kind, Path: rest})
	if !found {
		return fmt.Errorf("no proposed action %s", arg)
	}
	if sel.IsSelected(act) != on {
		sel.Toggle(act)
	}
	return nil
}

func init() {
	selectCmd.Flags().Bool("all", false, "Select every proposed action")
	selectCmd.Flags().Bool("none", false, "Clear the selection")
	selectCmd.Flags().Bool("recommended", false, "Select the recommended fix packs")
	selectCmd.Flags().Bool("off", false, "Deselect the named groups, packs or actions")
	addFormatFlag(selectCmd)
}
