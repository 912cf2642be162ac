package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/fixfactory/internal/backend"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [path]",
	Short: "Analyze a project and propose actions",
	Long: `Analyze a project directory. The report becomes the session's current
report: its actions, groups and fix packs are what "select" chooses from.
Analyzing a new report clears the selection and any pending preview.`,
	Args: cobra.MaximumNArgs(1),
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
		report, err := a.orch.Analyze(cmd.Context(), path)
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return writeJSON(a.out, report)
		}
		printReport(a.out, report)
		return nil
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Filter the current report's actions by safety mode",
	Long: `Ask the planner which of the current report's actions to keep.
"safe" keeps only additive actions on paths that do not exist yet;
"all" keeps everything the policy allows. With --select the kept actions
replace the current selection.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("mode")
		sel, _ := cmd.Flags().GetBool("select")

		a, cleanup, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		report, err := a.requireReport()
		if err != nil {
			return err
		}
		res, err := a.planner.GenerateActionsFromReport(cmd.Context(), a.store.Snapshot().Path, report, backend.GenerateMode(mode))
		if err != nil {
			return err
		}
		if sel {
			s := a.orch.Selection()
			s.Clear()
			keys := make([]backend.ActionKey, 0, len(res.Actions))
			for _, act := range res.Actions {
				keys = append(keys, act.Key())
			}
			s.Restore(keys)
		}

		if jsonOutput(cmd) {
			return writeJSON(a.out, res)
		}
		fmt.Fprintf(a.out, "%d actions kept (%s mode):\n", len(res.Actions), mode)
		for _, act := range res.Actions {
			fmt.Fprintf(a.out, "  %s\n", act.Key())
		}
		if len(res.Skipped) > 0 {
			fmt.Fprintln(a.out, "Skipped:")
			for _, sk := range res.Skipped {
				fmt.Fprintf(a.out, "  %s — %s\n", sk.Path, sk.Reason)
			}
		}
		return nil
	},
}

func printReport(w io.Writer, r *backend.AnalyzeReport) {
	if len(r.Findings) > 0 {
		fmt.Fprintln(w, "Findings:")
		for _, f := range r.Findings {
			line := fmt.Sprintf("  [%s] %s", f.Severity, f.Title)
			if f.Path != "" {
				line += " (" + f.Path + ")"
			}
			fmt.Fprintln(w, line)
		}
	}
	if len(r.Recommendations) > 0 {
		fmt.Fprintln(w, "Recommendations:")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(w, "  %s\n", rec.Title)
		}
	}
	if len(r.Actions) > 0 {
		fmt.Fprintln(w, "Actions:")
		for _, act := range r.Actions {
			fmt.Fprintf(w, "  %s\n", act.Key())
		}
	}
	if len(r.ActionGroups) > 0 {
		fmt.Fprintln(w, "Groups:")
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, g := range r.ActionGroups {
			fmt.Fprintf(tw, "  group:%s\t%s\t%d actions\n", g.ID, g.Title, len(g.Actions))
		}
		tw.Flush()
	}
	if len(r.FixPacks) > 0 {
		recommended := make(map[string]bool, len(r.RecommendedPackIDs))
		for _, id := range r.RecommendedPackIDs {
			recommended[id] = true
		}
		fmt.Fprintln(w, "Fix packs:")
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, p := range r.FixPacks {
			mark := ""
			if recommended[p.ID] {
				mark = "recommended"
			}
			fmt.Fprintf(tw, "  pack:%s\t%s\t%s\t%s\n", p.ID, p.Title, strings.Join(p.GroupIDs, ","), mark)
		}
		tw.Flush()
	}
}

func init() {
	generateCmd.Flags().String("mode", string(backend.GenerateSafe), "Generation mode: safe or all")
	generateCmd.Flags().Bool("select", false, "Replace the selection with the kept actions")
	addFormatFlag(analyzeCmd, generateCmd)
}
