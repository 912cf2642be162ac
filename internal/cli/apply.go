package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/fixfactory/internal/backend"
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Preview the selected actions",
	Long: `Ask the backend what the selected actions would change. A successful
preview becomes the pending preview; "apply" applies exactly that set and
refuses if the selection has changed since.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		showDiff, _ := cmd.Flags().GetBool("diff")

		a, cleanup, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := a.orch.PreviewSelection(cmd.Context())
		if err != nil {
			return err
		}
		if res == nil {
			return nil
		}
		if jsonOutput(cmd) {
			return writeJSON(a.out, res)
		}
		for _, d := range res.Diffs {
			line := "  " + d.Summary
			if d.Blocked {
				line += " [blocked: " + d.BlockReason + "]"
			}
			fmt.Fprintln(a.out, line)
			if showDiff && d.IsText() {
				printSides(a.out, d)
			}
		}
		return nil
	},
}

func printSides(w io.Writer, d backend.DiffItem) {
	if d.Before != nil {
		fmt.Fprintf(w, "    --- before\n%s", indent(*d.Before))
	}
	if d.After != nil {
		fmt.Fprintf(w, "    +++ after\n%s", indent(*d.After))
	}
}

func indent(s string) string {
	var b strings.Builder
	for _, line := range strings.SplitAfter(s, "\n") {
		if line == "" {
			continue
		}
		b.WriteString("      ")
		b.WriteString(line)
		if !strings.HasSuffix(line, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply the pending preview as one transaction",
	Long: `Apply the previewed actions atomically. Nothing is written without --yes.
With --auto-check the configured verify checks run after the write and a
failure rolls everything back. A successful apply can be undone.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")

		a, cleanup, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		autoCheck := a.cfg.Apply.AutoCheck
		if cmd.Flags().Changed("auto-check") {
			autoCheck, _ = cmd.Flags().GetBool("auto-check")
		}

		out := a.orch.ApplyPending(cmd.Context(), autoCheck, yes)
		if jsonOutput(cmd) {
			if err := writeJSON(a.out, out); err != nil {
				return err
			}
		} else if out.Result != nil {
			printChecks(a.out, out.Result.Checks)
		}

		switch out.Kind {
		case backend.OutcomeApplied, backend.OutcomeNoop:
			return nil
		case backend.OutcomeConfirmRequired:
			return fmt.Errorf("apply not confirmed: re-run with --yes")
		default:
			return fmt.Errorf("apply %s", out.Kind)
		}
	},
}

var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Revert the most recent applied transaction",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		_, err = a.undo.Undo(cmd.Context())
		return err
	},
}

var redoCmd = &cobra.Command{
	Use:   "redo",
	Short: "Re-apply the most recently undone transaction",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		_, err = a.undo.Redo(cmd.Context())
		return err
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Check the last transaction's files and run the verify checks",
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
		res, err := a.orch.Verify(cmd.Context(), path)
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			if err := writeJSON(a.out, res); err != nil {
				return err
			}
		} else {
			printChecks(a.out, res.Checks)
		}
		if !res.OK {
			return fmt.Errorf("verification failed")
		}
		return nil
	},
}

func printChecks(w io.Writer, results []backend.CheckResult) {
	for _, c := range results {
		status := "PASS"
		if !c.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(w, "[%s] %s — %s\n", status, c.Name, c.Summary)
	}
}

func init() {
	previewCmd.Flags().Bool("diff", false, "Show before and after content for text changes")
	applyCmd.Flags().Bool("yes", false, "Confirm the apply")
	applyCmd.Flags().Bool("auto-check", false, "Run verify checks after writing and roll back on failure (default from config)")
	addFormatFlag(previewCmd, applyCmd, verifyCmd)
}
