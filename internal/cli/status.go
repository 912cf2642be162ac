package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

type statusInfo struct {
	Path          string `json:"path"`
	Findings      int    `json:"findings"`
	Actions       int    `json:"actions"`
	Selected      int    `json:"selected"`
	Pending       int    `json:"pending"`
	UndoAvailable bool   `json:"undo_available"`
	RedoAvailable bool   `json:"redo_available"`
	LastTx        string `json:"last_tx,omitempty"`
	Requests      int    `json:"saved_requests"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session: report, selection, pending preview and undo state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		snap := a.store.Snapshot()
		info := statusInfo{
			Path:          snap.Path,
			Selected:      a.orch.Selection().Len(),
			UndoAvailable: snap.UndoAvailable,
			RedoAvailable: snap.RedoAvailable,
			Requests:      len(a.history.List()),
		}
		if snap.Report != nil {
			info.Findings = len(snap.Report.Findings)
			info.Actions = len(snap.Report.Actions)
		}
		if snap.Pending != nil {
			info.Pending = len(snap.Pending.Actions)
		}
		if snap.Path != "" {
			if st, err := a.engine.GetUndoStatus(cmd.Context(), snap.Path); err == nil && st.Available {
				info.LastTx = st.TxID
			}
		}

		if jsonOutput(cmd) {
			return writeJSON(a.out, info)
		}

		w := a.out
		if info.Path == "" {
			fmt.Fprintln(w, "No project analyzed yet.")
		} else {
			fmt.Fprintf(w, "%-10s %s\n", "Project:", info.Path)
			fmt.Fprintf(w, "%-10s %d findings, %d actions\n", "Report:", info.Findings, info.Actions)
		}
		fmt.Fprintf(w, "%-10s %d actions\n", "Selected:", info.Selected)
		if info.Pending > 0 {
			fmt.Fprintf(w, "%-10s %d actions ready to apply\n", "Preview:", info.Pending)
		}
		fmt.Fprintf(w, "%-10s undo %s, redo %s\n", "History:", yesNo(info.UndoAvailable), yesNo(info.RedoAvailable))
		if info.LastTx != "" {
			fmt.Fprintf(w, "%-10s %s\n", "Last tx:", info.LastTx)
		}
		fmt.Fprintf(w, "%-10s %d\n", "Requests:", info.Requests)
		return nil
	},
}

func yesNo(b bool) string {
	if b {
		return "available"
	}
	return "none"
}

func init() {
	addFormatFlag(statusCmd)
}
