package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/fixfactory/internal/backend"
	"github.com/lucasnoah/fixfactory/internal/events"
)

var agenticCmd = &cobra.Command{
	Use:   "agentic <goal>",
	Short: "Run a bounded analyze, plan, apply and verify loop toward a goal",
	Long: `Run an agentic repair loop on a project. Each attempt analyzes, plans,
previews, applies and verifies; a failed verification is reverted and the
next attempt plans again with the failure as context. Starting the run is
the confirmation for every apply inside it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pathFlag, _ := cmd.Flags().GetString("path")

		a, cleanup, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		var pathArgs []string
		if pathFlag != "" {
			pathArgs = []string{pathFlag}
		}
		path, err := a.targetPath(pathArgs)
		if err != nil {
			return err
		}

		cons := backend.Constraints{
			AutoCheck:   a.cfg.Apply.AutoCheck,
			MaxAttempts: a.cfg.Agentic.MaxAttempts,
			MaxActions:  a.cfg.Agentic.MaxActions,
		}
		if cmd.Flags().Changed("auto-check") {
			cons.AutoCheck, _ = cmd.Flags().GetBool("auto-check")
		}
		if cmd.Flags().Changed("max-attempts") {
			cons.MaxAttempts, _ = cmd.Flags().GetInt("max-attempts")
		}
		if cmd.Flags().Changed("max-actions") {
			cons.MaxActions, _ = cmd.Flags().GetInt("max-actions")
		}

		if !jsonOutput(cmd) {
			unsubscribe := a.store.Bus().Subscribe(events.TopicProgress, events.ObserverFunc(func(e events.Event) {
				fmt.Fprintf(a.out, "  → [%d] %s: %s\n", e.Progress.Attempt, e.Progress.Stage, e.Progress.Message)
			}))
			defer unsubscribe()
		}

		res, err := a.agentic.Run(cmd.Context(), path, args[0], cons)
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			if err := writeJSON(a.out, res); err != nil {
				return err
			}
		}
		if !res.Succeeded() {
			return fmt.Errorf("agentic run did not succeed after %d attempts", len(res.Attempts))
		}
		return nil
	},
}

func init() {
	agenticCmd.Flags().String("path", "", "Project directory (default: current session path or working directory)")
	agenticCmd.Flags().Bool("auto-check", false, "Run verify checks inside each apply (default from config)")
	agenticCmd.Flags().Int("max-attempts", 0, "Maximum attempts (default from config)")
	agenticCmd.Flags().Int("max-actions", 0, "Maximum actions per attempt (default from config)")
	addFormatFlag(agenticCmd)
}
