package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/fixfactory/internal/checks"
	"github.com/lucasnoah/fixfactory/internal/config"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "List and run the configured verification checks",
}

var checkListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured checks; verify checks are marked with their gate position",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		position := make(map[string]int, len(cfg.Verify))
		for i, name := range cfg.Verify {
			position[name] = i + 1
		}
		names := make([]string, 0, len(cfg.Checks))
		for name := range cfg.Checks {
			names = append(names, name)
		}
		sort.Strings(names)

		w := cmd.OutOrStdout()
		if len(names) == 0 {
			fmt.Fprintln(w, "No checks configured.")
			return nil
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tPARSER\tVERIFY\tCOMMAND")
		for _, name := range names {
			chk := cfg.Checks[name]
			gate := "-"
			if p, ok := position[name]; ok {
				gate = fmt.Sprintf("#%d", p)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, chk.Parser, gate, chk.Command)
		}
		return tw.Flush()
	},
}

var checkRunCmd = &cobra.Command{
	Use:   "run [path]",
	Short: "Run checks in a project directory without applying anything",
	Long: `Run the named checks (--check, repeatable) or, by default, the verify
list in order. Without --continue the run stops at the first failure, the
same way the auto-check gate does.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		names, _ := cmd.Flags().GetStringArray("check")
		cont, _ := cmd.Flags().GetBool("continue")

		a, cleanup, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		path, err := a.targetPath(args)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			names = a.cfg.Verify
		}
		named := make([]config.NamedCheck, 0, len(names))
		for _, name := range names {
			chk, ok := a.cfg.Checks[name]
			if !ok {
				return fmt.Errorf("check %q: %w", name, config.ErrUnknownCheck)
			}
			named = append(named, config.NamedCheck{Name: name, Check: chk})
		}

		runner := checks.NewRunner(&checks.ExecRunner{})
		gate, results, err := runner.RunGate(cmd.Context(), path, checks.GateOpts{
			Gate:     "manual",
			Checks:   runnerChecks(named),
			Continue: cont,
		})
		if err != nil {
			return err
		}

		if jsonOutput(cmd) {
			out, err := gate.JSON()
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, out)
		} else {
			for _, r := range results {
				status := "PASS"
				if !r.Passed {
					status = "FAIL"
				}
				fmt.Fprintf(a.out, "[%s] %s — %s (%dms)\n", status, r.CheckName, r.Summary, r.DurationMs)
			}
		}
		if !gate.Passed {
			return fmt.Errorf("%d check(s) failed", len(gate.RemainingFailures))
		}
		return nil
	},
}

func init() {
	checkRunCmd.Flags().StringArray("check", nil, "Check to run (repeatable; default: the verify list)")
	checkRunCmd.Flags().Bool("continue", false, "Keep running after a failure")
	addFormatFlag(checkRunCmd)
	checkCmd.AddCommand(checkListCmd)
	checkCmd.AddCommand(checkRunCmd)
}
