package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "fixfactory",
	Short: "fixfactory — analyze, preview and safely apply project fixes",
	Long: `fixfactory analyzes a project directory, proposes filesystem actions,
previews their diffs and applies the selected set as one atomic transaction
with optional automated checks, rollback, undo and redo.

It also runs bounded agentic repair loops and batches over several projects.
State lives in ~/.fixfactory/ (SQLite for projects and history, JSON for the
transaction log and the current workspace).`,
}

// Execute runs the root command. A panic anywhere below is logged and turned
// into an error so a corrupt local store never leaves the user without a hint.
func Execute() (err error) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("command panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("internal error: %v\nIf this keeps happening, run `fixfactory db reset --yes` to clear local state", r)
		}
	}()
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config file (default ./fixfactory.yaml or ~/.fixfactory/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(selectCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(undoCmd)
	rootCmd.AddCommand(redoCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(agenticCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(serveCmd)
}
