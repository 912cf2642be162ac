package backend

import "unicode/utf8"

// ActionKind names the filesystem operation an Action performs.
type ActionKind string

const (
	KindCreateFile ActionKind = "create_file"
	KindUpdateFile ActionKind = "update_file"
	KindDeleteFile ActionKind = "delete_file"
	KindCreateDir  ActionKind = "create_dir"
	KindDeleteDir  ActionKind = "delete_dir"
)

// Valid reports whether k is one of the known action kinds.
func (k ActionKind) Valid() bool {
	switch k {
	case KindCreateFile, KindUpdateFile, KindDeleteFile, KindCreateDir, KindDeleteDir:
		return true
	}
	return false
}

// Action is one proposed filesystem change. Treat it as immutable once proposed.
type Action struct {
	Kind    ActionKind `json:"kind" yaml:"kind"`
	Path    string     `json:"path" yaml:"path"`
	Content *string    `json:"content,omitempty" yaml:"content,omitempty"`
}

// ActionKey is the (kind, path) identity used for deduplication.
type ActionKey struct {
	Kind ActionKind `json:"kind"`
	Path string     `json:"path"`
}

// Key returns the action's identity.
func (a Action) Key() ActionKey {
	return ActionKey{Kind: a.Kind, Path: a.Path}
}

// String renders the key as "kind:path".
func (k ActionKey) String() string {
	return string(k.Kind) + ":" + k.Path
}

// CloneActions returns a deep copy so callers never share content pointers.
func CloneActions(actions []Action) []Action {
	if actions == nil {
		return nil
	}
	out := make([]Action, len(actions))
	for i, a := range actions {
		out[i] = Action{Kind: a.Kind, Path: a.Path}
		if a.Content != nil {
			c := *a.Content
			out[i].Content = &c
		}
	}
	return out
}

// SameActions reports whether a and b contain the same actions in the same order,
// comparing content as well as identity.
func SameActions(a, b []Action) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key() != b[i].Key() {
			return false
		}
		switch {
		case a[i].Content == nil && b[i].Content == nil:
		case a[i].Content == nil || b[i].Content == nil:
			return false
		case *a[i].Content != *b[i].Content:
			return false
		}
	}
	return true
}

// ActionGroup is a named bundle of actions selected as a unit.
type ActionGroup struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Actions     []Action `json:"actions"`
}

// FixPack is a higher-level recommendation referencing action groups.
type FixPack struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	GroupIDs    []string `json:"group_ids"`
}

// Finding is a single problem reported by analysis.
type Finding struct {
	ID       string `json:"id"`
	Severity string `json:"severity"`
	Title    string `json:"title"`
	Detail   string `json:"detail,omitempty"`
	Path     string `json:"path,omitempty"`
}

// Recommendation is a human-readable suggestion from analysis.
type Recommendation struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// AnalyzeReport is the output of analyzeProject.
type AnalyzeReport struct {
	Path               string           `json:"path"`
	Findings           []Finding        `json:"findings"`
	Recommendations    []Recommendation `json:"recommendations"`
	Actions            []Action         `json:"actions"`
	ActionGroups       []ActionGroup    `json:"action_groups,omitempty"`
	FixPacks           []FixPack        `json:"fix_packs,omitempty"`
	RecommendedPackIDs []string         `json:"recommended_pack_ids,omitempty"`
}

// DiffKind classifies a preview diff.
type DiffKind string

const (
	DiffCreate DiffKind = "create"
	DiffUpdate DiffKind = "update"
	DiffDelete DiffKind = "delete"
	DiffMkdir  DiffKind = "mkdir"
	DiffRmdir  DiffKind = "rmdir"
)

// DiffKindFor maps an action kind to the diff kind a preview reports for it.
func DiffKindFor(k ActionKind) DiffKind {
	switch k {
	case KindCreateFile:
		return DiffCreate
	case KindDeleteFile:
		return DiffDelete
	case KindCreateDir:
		return DiffMkdir
	case KindDeleteDir:
		return DiffRmdir
	default:
		return DiffUpdate
	}
}

// DiffItem is one advisory entry of a preview.
type DiffItem struct {
	Kind        DiffKind `json:"kind"`
	Path        string   `json:"path"`
	Before      *string  `json:"before,omitempty"`
	After       *string  `json:"after,omitempty"`
	Summary     string   `json:"summary"`
	Blocked     bool     `json:"blocked,omitempty"`
	BlockReason string   `json:"block_reason,omitempty"`
}

// IsText reports whether both sides of the diff are valid UTF-8 without NUL bytes.
func (d DiffItem) IsText() bool {
	for _, side := range []*string{d.Before, d.After} {
		if side == nil {
			continue
		}
		if !utf8.ValidString(*side) {
			return false
		}
		for i := 0; i < len(*side); i++ {
			if (*side)[i] == 0 {
				return false
			}
		}
	}
	return true
}

// PreviewResult is the output of previewActions.
type PreviewResult struct {
	Diffs []DiffItem `json:"diffs"`
}

// CheckResult is one verification check outcome.
type CheckResult struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Summary string `json:"summary,omitempty"`
	Output  string `json:"output,omitempty"`
}

// ApplyOptions carries the flags of applyActionsTx. UserConfirmed has no default:
// every caller sets it.
type ApplyOptions struct {
	AutoCheck     bool `json:"auto_check"`
	UserConfirmed bool `json:"user_confirmed"`
}

// ApplyTxResult is the outcome of one atomic apply request.
type ApplyTxResult struct {
	OK         bool          `json:"ok"`
	TxID       string        `json:"tx_id,omitempty"`
	Applied    bool          `json:"applied"`
	RolledBack bool          `json:"rolled_back"`
	Checks     []CheckResult `json:"checks,omitempty"`
	Error      string        `json:"error,omitempty"`
	ErrorCode  ErrorCode     `json:"error_code,omitempty"`
}

// VerifyResult is the outcome of an integrity check.
type VerifyResult struct {
	OK     bool          `json:"ok"`
	Checks []CheckResult `json:"checks"`
}

// CommandResult is the outcome of undoLast / redoLast.
type CommandResult struct {
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	ErrorCode ErrorCode `json:"error_code,omitempty"`
}

// UndoRedoState is the general transaction-state query result.
type UndoRedoState struct {
	UndoAvailable bool `json:"undo_available"`
	RedoAvailable bool `json:"redo_available"`
}

// UndoStatus is the path-scoped undo status.
type UndoStatus struct {
	Available bool   `json:"available"`
	TxID      string `json:"tx_id,omitempty"`
}

// GenerateMode selects which report actions generateActionsFromReport keeps.
type GenerateMode string

const (
	GenerateSafe GenerateMode = "safe"
	GenerateAll  GenerateMode = "all"
)

// SkippedAction is an action the generator declined to emit.
type SkippedAction struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// GenerateResult is the output of generateActionsFromReport.
type GenerateResult struct {
	OK      bool            `json:"ok"`
	Actions []Action        `json:"actions"`
	Skipped []SkippedAction `json:"skipped,omitempty"`
}

// ProposeRequest carries the inputs of proposeActions.
type ProposeRequest struct {
	Path            string `json:"path"`
	ReportContext   string `json:"report_context"`
	Goal            string `json:"goal"`
	DesignStyle     string `json:"design_style,omitempty"`
	TrendsContext   string `json:"trends_context,omitempty"`
	LastPlan        string `json:"last_plan,omitempty"`
	LastPlanContext string `json:"last_plan_context,omitempty"`
}

// ProposeResult is the output of proposeActions.
type ProposeResult struct {
	OK          bool     `json:"ok"`
	Summary     string   `json:"summary"`
	Actions     []Action `json:"actions"`
	Plan        string   `json:"plan,omitempty"`
	PlanContext string   `json:"plan_context,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// Project is a registered target directory.
type Project struct {
	ID        int64  `json:"id"`
	Path      string `json:"path"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// SessionEvent is one entry of a project's append-only session log.
type SessionEvent struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project_id"`
	Kind      string `json:"kind"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}
