package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lucasnoah/fixfactory/internal/backend"
)

// Subscribe streams agentic progress events.
func (e *Engine) Subscribe() (<-chan backend.ProgressEvent, func()) {
	return e.agentHub.subscribe()
}

func (e *Engine) emit(stage backend.Stage, attempt int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	e.agentHub.publish(backend.ProgressEvent{Stage: stage, Message: msg, Attempt: attempt})
	e.logf("[attempt %d] %s: %s", attempt, stage, msg)
}

// AgenticRun loops analyze → plan → preview → apply → verify until a change
// applies and verifies cleanly or MaxAttempts is exhausted. A change that
// applies but fails verification is undone before the next attempt, and the
// failures are fed to the planner as context.
func (e *Engine) AgenticRun(ctx context.Context, req backend.AgenticRequest) (*backend.AgenticRunResult, error) {
	cons := req.Constraints
	if cons.MaxAttempts <= 0 {
		cons.MaxAttempts = 1
	}
	log := e.log.With(zap.String("path", req.Path), zap.String("goal", req.Goal))
	log.Info("agentic run started", zap.Int("max_attempts", cons.MaxAttempts), zap.Int("max_actions", cons.MaxActions))

	result := &backend.AgenticRunResult{}
	var lastPlan, lastContext string

	for attempt := 1; attempt <= cons.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		at := backend.AgenticAttempt{Attempt: attempt}
		done := func(stage backend.Stage, summary string) (*backend.AgenticRunResult, error) {
			result.Attempts = append(result.Attempts, at)
			result.FinalSummary = summary
			e.emit(stage, attempt, "%s", summary)
			log.Info("agentic run finished", zap.String("stage", string(stage)), zap.Int("attempts", attempt))
			return result, nil
		}

		e.emit(backend.StageAnalyze, attempt, "analyzing %s", req.Path)
		report, err := e.analyzer.AnalyzeProject(ctx, req.Path)
		if err != nil {
			return done(backend.StageFailed, fmt.Sprintf("Analysis failed: %v", err))
		}

		e.emit(backend.StagePlan, attempt, "planning for %q", req.Goal)
		plan, err := e.planner.ProposeActions(ctx, backend.ProposeRequest{
			Path:            req.Path,
			ReportContext:   reportContext(report),
			Goal:            req.Goal,
			LastPlan:        lastPlan,
			LastPlanContext: lastContext,
		})
		if err != nil {
			return done(backend.StageFailed, fmt.Sprintf("Planning failed: %v", err))
		}
		at.Plan = plan
		if !plan.OK {
			return done(backend.StageFailed, "Planning failed: "+plan.Error)
		}
		actions := plan.Actions
		if cons.MaxActions > 0 && len(actions) > cons.MaxActions {
			actions = actions[:cons.MaxActions]
		}
		if len(actions) == 0 {
			return done(backend.StageDone, plan.Summary)
		}
		lastPlan = plan.Plan

		e.emit(backend.StagePreview, attempt, "previewing %d actions", len(actions))
		preview, err := e.PreviewActions(ctx, req.Path, actions)
		if err != nil {
			return done(backend.StageFailed, fmt.Sprintf("Preview failed: %v", err))
		}
		at.Preview = preview

		e.emit(backend.StageApply, attempt, "applying %d actions", len(actions))
		applied, err := e.ApplyActionsTx(ctx, req.Path, actions, backend.ApplyOptions{
			AutoCheck:     cons.AutoCheck,
			UserConfirmed: cons.UserConfirmed,
		})
		if err != nil {
			return done(backend.StageFailed, fmt.Sprintf("Apply failed: %v", err))
		}
		at.Apply = applied
		if !applied.OK {
			if applied.ErrorCode.Reverted() {
				lastContext = checkFailures(applied.Checks)
				result.Attempts = append(result.Attempts, at)
				e.emit(backend.StageRevert, attempt, "auto-check failed, changes rolled back")
				continue
			}
			return done(backend.StageFailed, "Apply failed: "+applied.Error)
		}

		e.emit(backend.StageVerify, attempt, "verifying")
		verify, err := e.Verify(ctx, req.Path)
		if err != nil {
			return done(backend.StageFailed, fmt.Sprintf("Verify failed: %v", err))
		}
		at.Verify = verify
		if verify.OK {
			return done(backend.StageDone, fmt.Sprintf("Applied and verified %d actions (tx %s).", len(actions), applied.TxID))
		}

		e.emit(backend.StageRevert, attempt, "verification failed, undoing tx %s", applied.TxID)
		if _, err := e.UndoLastTx(ctx, req.Path); err != nil {
			return done(backend.StageFailed, fmt.Sprintf("Verification failed and undo failed: %v", err))
		}
		lastContext = checkFailures(verify.Checks)
		result.Attempts = append(result.Attempts, at)
	}

	result.FinalSummary = fmt.Sprintf("No change passed verification after %d attempts.", cons.MaxAttempts)
	e.emit(backend.StageFailed, cons.MaxAttempts, "%s", result.FinalSummary)
	log.Info("agentic run exhausted", zap.Int("attempts", cons.MaxAttempts))
	return result, nil
}

func reportContext(r *backend.AnalyzeReport) string {
	var b strings.Builder
	for _, f := range r.Findings {
		fmt.Fprintf(&b, "- [%s] %s", f.Severity, f.Title)
		if f.Path != "" {
			fmt.Fprintf(&b, " (%s)", f.Path)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// checkFailures formats failed checks for the next planning round.
func checkFailures(results []backend.CheckResult) string {
	var b strings.Builder
	for _, c := range results {
		if c.Passed {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Summary)
		if c.Output != "" {
			b.WriteString(c.Output)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
