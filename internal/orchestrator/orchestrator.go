// Package orchestrator drives the analyse, select, preview and apply flow
// against a backend and interprets apply results into session state.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/lucasnoah/fixfactory/internal/action"
	"github.com/lucasnoah/fixfactory/internal/backend"
	"github.com/lucasnoah/fixfactory/internal/events"
	"github.com/lucasnoah/fixfactory/internal/preview"
	"github.com/lucasnoah/fixfactory/internal/state"
)

// ErrBusy is reported when an apply for the same path is already outstanding.
var ErrBusy = errors.New("apply already in progress for this path")

var errNoResult = errors.New("backend returned no result")

// ApplyRequest is one apply attempt. UserConfirmed must be set by every caller.
type ApplyRequest struct {
	Path          string
	Actions       []backend.Action
	AutoCheck     bool
	UserConfirmed bool
}

// Outcome is the interpreted result of an apply attempt.
type Outcome struct {
	Kind    backend.OutcomeKind    `json:"kind"`
	Message string                 `json:"message"`
	Result  *backend.ApplyTxResult `json:"result,omitempty"`
	Err     error                  `json:"-"`
}

// Orchestrator composes analysis, selection, preview and apply.
type Orchestrator struct {
	analyzer backend.Analyzer
	applier  backend.Applier
	preview  *preview.Adapter
	store    *state.Store
	log      *zap.Logger

	mu        sync.Mutex
	inflight  map[string]bool
	selection *action.Selection
	selReport *backend.AnalyzeReport
}

// New creates an Orchestrator. log may be nil.
func New(analyzer backend.Analyzer, applier backend.Applier, store *state.Store, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		analyzer:  analyzer,
		applier:   applier,
		preview:   preview.NewAdapter(applier),
		store:     store,
		log:       log.With(zap.String("component", "orchestrator")),
		inflight:  make(map[string]bool),
		selection: action.NewSelection(nil),
	}
}

// Store returns the session store.
func (o *Orchestrator) Store() *state.Store {
	return o.store
}

// Selection returns the selection over the current report, rebuilding it
// when the report has changed since the last call.
func (o *Orchestrator) Selection() *action.Selection {
	report := o.store.Snapshot().Report
	o.mu.Lock()
	defer o.mu.Unlock()
	if report != o.selReport {
		o.selection.Reset(report)
		o.selReport = report
	}
	return o.selection
}

// Analyze runs analysis on path and installs the report.
func (o *Orchestrator) Analyze(ctx context.Context, path string) (*backend.AnalyzeReport, error) {
	if err := o.store.Begin(state.BusyAnalyze); err != nil {
		return nil, err
	}
	defer o.store.End()

	if src, ok := o.analyzer.(backend.AnalyzeProgressSource); ok {
		lines, cancel := src.SubscribeAnalyze()
		defer cancel()
		go func() {
			for line := range lines {
				o.store.Bus().Publish(events.Event{Topic: events.TopicAnalyzeProgress, Text: line})
			}
		}()
	}

	o.store.Dispatch(state.SetPath{Path: path})
	report, err := o.analyzer.AnalyzeProject(ctx, path)
	if err != nil {
		o.log.Warn("analysis failed", zap.String("path", path), zap.Error(err))
		o.store.Say("Analysis failed: %v", err)
		return nil, fmt.Errorf("analyze %s: %w", path, err)
	}
	o.store.Dispatch(state.SetReport{Report: report})
	o.store.Say("Analysis of %s found %d findings and proposed %d actions.", path, len(report.Findings), len(report.Actions))
	o.log.Info("analysis complete", zap.String("path", path), zap.Int("findings", len(report.Findings)))
	return report, nil
}

// PreviewSelection previews the current selection and stores it as the
// pending preview. An empty selection is a no-op and returns nil, nil.
func (o *Orchestrator) PreviewSelection(ctx context.Context) (*preview.Result, error) {
	sel := o.Selection()
	if sel.IsEmpty() {
		o.store.Say("Select at least one action to preview.")
		return nil, nil
	}
	path := o.store.Snapshot().Path
	if path == "" {
		return nil, fmt.Errorf("no project path set")
	}

	if err := o.store.Begin(state.BusyPreview); err != nil {
		return nil, err
	}
	defer o.store.End()

	res, err := o.preview.Preview(ctx, path, sel.Selected())
	if err != nil {
		o.store.Say("Preview failed: %v", err)
		return nil, err
	}
	o.store.Dispatch(state.SetPending{Preview: state.PendingPreview{
		Path:     path,
		Actions:  res.Actions,
		Diffs:    res.Diffs,
		Revision: sel.Revision(),
	}})
	o.store.Say("Preview ready: %d changes for %d actions.", len(res.Diffs), len(res.Actions))
	if res.Warning != "" {
		o.store.Say("Warning: %s", res.Warning)
	}
	return res, nil
}

// ApplyPending applies the pending preview. The apply is refused as stale
// when the selection no longer matches the previewed actions.
func (o *Orchestrator) ApplyPending(ctx context.Context, autoCheck, userConfirmed bool) *Outcome {
	sel := o.Selection()
	if sel.IsEmpty() {
		return o.noop()
	}
	snap := o.store.Snapshot()
	if snap.Pending == nil {
		out := &Outcome{Kind: backend.OutcomeStale, Message: "Preview the selected actions before applying."}
		o.store.Say("%s", out.Message)
		return out
	}
	if snap.Pending.Path != snap.Path || !backend.SameActions(snap.Pending.Actions, sel.Selected()) {
		out := &Outcome{Kind: backend.OutcomeStale, Message: "The selection changed since the last preview. Preview again before applying."}
		o.store.Say("%s", out.Message)
		return out
	}
	return o.Apply(ctx, ApplyRequest{
		Path:          snap.Pending.Path,
		Actions:       snap.Pending.Actions,
		AutoCheck:     autoCheck,
		UserConfirmed: userConfirmed,
	})
}

func (o *Orchestrator) noop() *Outcome {
	out := &Outcome{Kind: backend.OutcomeNoop, Message: "Nothing to apply: no actions selected."}
	o.store.Say("%s", out.Message)
	return out
}

func (o *Orchestrator) acquire(path string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight[path] {
		return false
	}
	o.inflight[path] = true
	return true
}

func (o *Orchestrator) release(path string) {
	o.mu.Lock()
	delete(o.inflight, path)
	o.mu.Unlock()
}

// Apply sends one atomic apply request and folds the result into state.
// At most one apply per path is outstanding; a second is rejected as busy.
func (o *Orchestrator) Apply(ctx context.Context, req ApplyRequest) *Outcome {
	if len(req.Actions) == 0 {
		return o.noop()
	}
	if !o.acquire(req.Path) {
		out := &Outcome{Kind: backend.OutcomeBusy, Message: fmt.Sprintf("An apply for %s is already running.", req.Path), Err: ErrBusy}
		o.store.Say("%s", out.Message)
		return out
	}
	defer o.release(req.Path)

	if err := o.store.Begin(state.BusyApply); err != nil {
		out := &Outcome{Kind: backend.OutcomeBusy, Message: fmt.Sprintf("Cannot apply now: %v.", err), Err: err}
		o.store.Say("%s", out.Message)
		return out
	}
	defer o.store.End()

	log := o.log.With(zap.String("path", req.Path), zap.Int("actions", len(req.Actions)))
	res, err := o.applier.ApplyActionsTx(ctx, req.Path, backend.CloneActions(req.Actions), backend.ApplyOptions{
		AutoCheck:     req.AutoCheck,
		UserConfirmed: req.UserConfirmed,
	})
	if err != nil {
		log.Error("apply transport error", zap.Error(err))
		out := &Outcome{Kind: backend.OutcomeFailed, Message: err.Error(), Err: err}
		o.store.Say("Apply failed: %s", out.Message)
		return out
	}
	if res == nil {
		log.Error("apply returned no result")
		out := &Outcome{Kind: backend.OutcomeFailed, Message: errNoResult.Error(), Err: errNoResult}
		o.store.Say("Apply failed: %s", out.Message)
		return out
	}

	out := &Outcome{Kind: backend.ClassifyOutcome(res), Result: res}
	snap := o.store.Snapshot()
	switch out.Kind {
	case backend.OutcomeApplied:
		out.Message = fmt.Sprintf("Applied %d actions to %s.", len(req.Actions), req.Path)
		if res.TxID != "" {
			out.Message = fmt.Sprintf("Applied %d actions to %s (transaction %s).", len(req.Actions), req.Path, res.TxID)
		}
		o.store.Dispatch(state.ClearPending{}, state.SetUndoRedo{Undo: true, Redo: false})
	case backend.OutcomeConfirmRequired:
		out.Message = "Apply needs explicit confirmation. Nothing was changed."
	case backend.OutcomePolicyRejected:
		out.Message = "Blocked by policy: " + messageOr(res.Error, "a protected path was targeted") + ". Nothing was changed."
	case backend.OutcomeReverted:
		out.Message = "The changes were applied but verification failed, so they were reverted."
		if failed := failedChecks(res.Checks); failed != "" {
			out.Message += " Failed checks: " + failed + "."
		}
		o.store.Dispatch(state.SetUndoRedo{Undo: false, Redo: snap.RedoAvailable})
	default:
		out.Message = messageOr(res.Error, "Apply failed.")
	}
	o.store.Say("%s", out.Message)
	log.Info("apply finished", zap.String("outcome", out.Kind.String()), zap.String("tx_id", res.TxID))
	return out
}

// Verify runs the backend's integrity checks on path.
func (o *Orchestrator) Verify(ctx context.Context, path string) (*backend.VerifyResult, error) {
	if err := o.store.Begin(state.BusyVerify); err != nil {
		return nil, err
	}
	defer o.store.End()

	res, err := o.applier.Verify(ctx, path)
	if err != nil {
		o.store.Say("Verification failed to run: %v", err)
		return nil, fmt.Errorf("verify %s: %w", path, err)
	}
	if res == nil {
		o.store.Say("Verification failed to run: %v", errNoResult)
		return nil, fmt.Errorf("verify %s: %w", path, errNoResult)
	}
	if res.OK {
		o.store.Say("Verification passed (%d checks).", len(res.Checks))
	} else {
		o.store.Say("Verification failed: %s.", failedChecks(res.Checks))
	}
	return res, nil
}

func failedChecks(checks []backend.CheckResult) string {
	var names []string
	for _, c := range checks {
		if !c.Passed {
			names = append(names, c.Name)
		}
	}
	return strings.Join(names, ", ")
}

func messageOr(msg, fallback string) string {
	if msg == "" {
		return fallback
	}
	return msg
}
