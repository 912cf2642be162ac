package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lucasnoah/fixfactory/internal/batch"
)

var batchCmd = &cobra.Command{
	Use:   "batch <path>...",
	Short: "Analyze and preview several projects, optionally applying each",
	Long: `Process several project directories in order. Each path is analyzed and
its proposed actions previewed; with --apply --yes they are applied too. A
failure stops only that path. Events stream as they happen.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		apply, _ := cmd.Flags().GetBool("apply")
		yes, _ := cmd.Flags().GetBool("yes")
		attach, _ := cmd.Flags().GetStringArray("attach")

		a, cleanup, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		autoCheck := a.cfg.Apply.AutoCheck
		if cmd.Flags().Changed("auto-check") {
			autoCheck, _ = cmd.Flags().GetBool("auto-check")
		}

		paths := make([]string, 0, len(args))
		for _, p := range args {
			abs, err := filepath.Abs(p)
			if err != nil {
				return fmt.Errorf("resolve path %s: %w", p, err)
			}
			paths = append(paths, abs)
		}

		stream := a.batch.Run(cmd.Context(), batch.Request{
			Paths:         paths,
			ConfirmApply:  apply,
			AutoCheck:     autoCheck,
			UserConfirmed: yes,
			Attachments:   attach,
		})

		asJSON := jsonOutput(cmd)
		enc := json.NewEncoder(a.out)
		failed := 0
		var order batch.Tracker
		for ev := range stream {
			if err := order.Observe(ev); err != nil {
				a.log.Warn("batch event out of order", zap.Error(err))
			}
			if ev.Kind == batch.EventError {
				failed++
			}
			if asJSON {
				if err := enc.Encode(ev); err != nil {
					return err
				}
				continue
			}
			printBatchEvent(a, ev)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d paths failed", failed, len(paths))
		}
		return nil
	},
}

func printBatchEvent(a *app, ev batch.Event) {
	switch ev.Kind {
	case batch.EventReport:
		fmt.Fprintf(a.out, "[%s] analyzed: %d findings, %d actions\n", ev.Path, len(ev.Report.Findings), len(ev.Report.Actions))
	case batch.EventPreview:
		fmt.Fprintf(a.out, "[%s] preview: %d changes, %d blocked\n", ev.Path, len(ev.Preview.Diffs), ev.Preview.Blocked)
		for _, s := range ev.Preview.Summaries() {
			fmt.Fprintf(a.out, "  %s\n", s)
		}
	case batch.EventApply:
		fmt.Fprintf(a.out, "[%s] apply %s\n", ev.Path, ev.Outcome.Kind)
	case batch.EventError:
		fmt.Fprintf(a.out, "[%s] error: %s\n", ev.Path, ev.Error)
	case batch.EventDone:
		fmt.Fprintln(a.out, "Batch finished.")
	}
}

func init() {
	batchCmd.Flags().Bool("apply", false, "Apply each path's proposed actions after previewing")
	batchCmd.Flags().Bool("yes", false, "Confirm the applies")
	batchCmd.Flags().Bool("auto-check", false, "Run verify checks inside each apply (default from config)")
	batchCmd.Flags().StringArray("attach", nil, "Attachment passed through with each path's report (repeatable)")
	addFormatFlag(batchCmd)
}
