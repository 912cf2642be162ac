// Package state holds the session state shared by the orchestrator, the
// coordinators and the presentation layers. Changes go through a closed set
// of actions applied by a pure reducer.
package state

import "github.com/lucasnoah/fixfactory/internal/backend"

// Role identifies the author of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one transcript entry.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// PendingPreview is the single-slot snapshot taken when a preview succeeds.
// It is valid only for the exact Actions captured with it.
type PendingPreview struct {
	Path     string             `json:"path"`
	Actions  []backend.Action   `json:"actions"`
	Diffs    []backend.DiffItem `json:"diffs"`
	Revision uint64             `json:"revision"`
}

func (p *PendingPreview) clone() *PendingPreview {
	if p == nil {
		return nil
	}
	return &PendingPreview{
		Path:     p.Path,
		Actions:  backend.CloneActions(p.Actions),
		Diffs:    append([]backend.DiffItem(nil), p.Diffs...),
		Revision: p.Revision,
	}
}

// BusyKind names the long-running operation currently holding the store.
type BusyKind string

const (
	BusyNone    BusyKind = ""
	BusyAnalyze BusyKind = "analyze"
	BusyPreview BusyKind = "preview"
	BusyApply   BusyKind = "apply"
	BusyVerify  BusyKind = "verify"
	BusyAgentic BusyKind = "agentic"
	BusyUndo    BusyKind = "undo"
)

// State is the full session state. Values returned by Store.Snapshot are
// copies and may be kept by the caller.
type State struct {
	Transcript    []Message                 `json:"transcript"`
	Path          string                    `json:"path"`
	Report        *backend.AnalyzeReport    `json:"report,omitempty"`
	Pending       *PendingPreview           `json:"pending,omitempty"`
	Agentic       *backend.AgenticRunResult `json:"agentic,omitempty"`
	UndoAvailable bool                      `json:"undo_available"`
	RedoAvailable bool                      `json:"redo_available"`
	Busy          BusyKind                  `json:"busy,omitempty"`
}

func (s State) clone() State {
	s.Transcript = append([]Message(nil), s.Transcript...)
	s.Pending = s.Pending.clone()
	return s
}

// Action is a state transition. The set of actions is closed to this package.
type Action interface {
	reduce(State) State
}

// AppendMessage adds a transcript line.
type AppendMessage struct {
	Role Role
	Text string
}

func (a AppendMessage) reduce(s State) State {
	s.Transcript = append(s.Transcript, Message{Role: a.Role, Text: a.Text})
	return s
}

// SetPath records the current target directory.
type SetPath struct{ Path string }

func (a SetPath) reduce(s State) State {
	if a.Path != s.Path {
		s.Pending = nil
	}
	s.Path = a.Path
	return s
}

// SetReport installs a fresh analysis report and drops any pending preview.
type SetReport struct{ Report *backend.AnalyzeReport }

func (a SetReport) reduce(s State) State {
	s.Report = a.Report
	s.Pending = nil
	return s
}

// ClearReport removes the displayed report.
type ClearReport struct{}

func (ClearReport) reduce(s State) State {
	s.Report = nil
	s.Pending = nil
	return s
}

// SetPending replaces the pending-preview slot with a copy of Preview.
type SetPending struct{ Preview PendingPreview }

func (a SetPending) reduce(s State) State {
	s.Pending = a.Preview.clone()
	return s
}

// ClearPending empties the pending-preview slot.
type ClearPending struct{}

func (ClearPending) reduce(s State) State {
	s.Pending = nil
	return s
}

// SetAgenticResult stores the last agentic run result.
type SetAgenticResult struct{ Result *backend.AgenticRunResult }

func (a SetAgenticResult) reduce(s State) State {
	s.Agentic = a.Result
	return s
}

// SetUndoRedo sets the availability flags.
type SetUndoRedo struct{ Undo, Redo bool }

func (a SetUndoRedo) reduce(s State) State {
	s.UndoAvailable = a.Undo
	s.RedoAvailable = a.Redo
	return s
}

// ResetTransient starts a fresh request: transcript, path, report, pending
// preview and agentic result are cleared. Undo/redo flags survive.
type ResetTransient struct{}

func (ResetTransient) reduce(s State) State {
	s.Transcript = nil
	s.Path = ""
	s.Report = nil
	s.Pending = nil
	s.Agentic = nil
	return s
}

// Restore loads a saved request. The pending preview is always cleared.
type Restore struct {
	Transcript []Message
	Path       string
	Report     *backend.AnalyzeReport
}

func (a Restore) reduce(s State) State {
	s.Transcript = append([]Message(nil), a.Transcript...)
	s.Path = a.Path
	s.Report = a.Report
	s.Pending = nil
	s.Agentic = nil
	return s
}

type setBusy struct{ kind BusyKind }

func (a setBusy) reduce(s State) State {
	s.Busy = a.kind
	return s
}

// Reduce applies a to s and returns the new state. s is not modified.
func Reduce(s State, a Action) State {
	return a.reduce(s.clone())
}
