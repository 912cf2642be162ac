// Package backend defines the contract between the orchestrator and the
// service that analyses projects, proposes actions and applies them.
package backend

import "context"

// Analyzer produces analysis reports.
type Analyzer interface {
	AnalyzeProject(ctx context.Context, path string) (*AnalyzeReport, error)
}

// Planner turns reports and goals into actions.
type Planner interface {
	GenerateActionsFromReport(ctx context.Context, path string, report *AnalyzeReport, mode GenerateMode) (*GenerateResult, error)
	ProposeActions(ctx context.Context, req ProposeRequest) (*ProposeResult, error)
}

// Applier previews, applies and reverts action sets.
type Applier interface {
	PreviewActions(ctx context.Context, path string, actions []Action) (*PreviewResult, error)
	ApplyActionsTx(ctx context.Context, path string, actions []Action, opts ApplyOptions) (*ApplyTxResult, error)
	Verify(ctx context.Context, path string) (*VerifyResult, error)
	UndoLastTx(ctx context.Context, path string) (bool, error)
	UndoLast(ctx context.Context) (*CommandResult, error)
	RedoLast(ctx context.Context) (*CommandResult, error)
	GetUndoRedoState(ctx context.Context) (*UndoRedoState, error)
	GetUndoStatus(ctx context.Context, path string) (*UndoStatus, error)
}

// Agent runs the bounded repair loop and pushes progress events.
// Subscribe returns a channel of events and a function that ends the
// subscription; the channel is closed once cancel returns.
type Agent interface {
	AgenticRun(ctx context.Context, req AgenticRequest) (*AgenticRunResult, error)
	Subscribe() (<-chan ProgressEvent, func())
}

// Projects manages registered projects and their append-only session logs.
type Projects interface {
	ListProjects(ctx context.Context) ([]Project, error)
	AddProject(ctx context.Context, path string) (*Project, error)
	ListSessions(ctx context.Context, projectID int64) ([]SessionEvent, error)
	AppendSessionEvent(ctx context.Context, projectID int64, kind, role, text string) error
}

// AnalyzeProgressSource is implemented by analyzers that push free-text
// progress lines while a report is being produced.
type AnalyzeProgressSource interface {
	SubscribeAnalyze() (<-chan string, func())
}
