package backend

// Stage is a step of an agentic run reported through progress events.
type Stage string

const (
	StageAnalyze Stage = "analyze"
	StagePlan    Stage = "plan"
	StagePreview Stage = "preview"
	StageApply   Stage = "apply"
	StageVerify  Stage = "verify"
	StageRevert  Stage = "revert"
	StageDone    Stage = "done"
	StageFailed  Stage = "failed"
)

// Terminal reports whether the stage ends a run.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageAnalyze, StagePlan, StagePreview, StageApply, StageVerify, StageRevert, StageDone, StageFailed:
		return true
	}
	return false
}

// ProgressEvent is the agentic_progress push event.
type ProgressEvent struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
	Attempt int    `json:"attempt"`
}

// Constraints bound an agentic run. UserConfirmed is forwarded to every apply
// the run performs and must be set explicitly by the caller.
type Constraints struct {
	AutoCheck     bool `json:"auto_check"`
	MaxAttempts   int  `json:"max_attempts"`
	MaxActions    int  `json:"max_actions"`
	UserConfirmed bool `json:"user_confirmed"`
}

// AgenticRequest is the input of agenticRun.
type AgenticRequest struct {
	Path        string      `json:"path"`
	Goal        string      `json:"goal"`
	Constraints Constraints `json:"constraints"`
}

// AgenticAttempt holds the sub-results of one loop iteration.
type AgenticAttempt struct {
	Attempt int            `json:"attempt"`
	Plan    *ProposeResult `json:"plan,omitempty"`
	Preview *PreviewResult `json:"preview,omitempty"`
	Apply   *ApplyTxResult `json:"apply,omitempty"`
	Verify  *VerifyResult  `json:"verify,omitempty"`
}

// AgenticRunResult is the final structured result of an agentic run.
type AgenticRunResult struct {
	Attempts     []AgenticAttempt `json:"attempts"`
	FinalSummary string           `json:"final_summary"`
}

// Succeeded reports whether the last attempt applied and verified cleanly.
func (r *AgenticRunResult) Succeeded() bool {
	if r == nil || len(r.Attempts) == 0 {
		return false
	}
	last := r.Attempts[len(r.Attempts)-1]
	if last.Apply == nil || !last.Apply.OK {
		return false
	}
	return last.Verify == nil || last.Verify.OK
}
