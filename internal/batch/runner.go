// Package batch fans analyse, preview and apply out over several target
// directories as one ordered event stream.
package batch

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/lucasnoah/fixfactory/internal/backend"
	"github.com/lucasnoah/fixfactory/internal/orchestrator"
	"github.com/lucasnoah/fixfactory/internal/preview"
)

// EventKind tags a batch event.
type EventKind string

const (
	EventReport  EventKind = "report"
	EventPreview EventKind = "preview"
	EventApply   EventKind = "apply"
	EventError   EventKind = "error"
	EventDone    EventKind = "done"
)

// ErrConfirmationRequired is reported for a path when apply was requested
// without user confirmation.
var ErrConfirmationRequired = errors.New("apply requested without user confirmation")

// Event is one entry of the batch stream. Exactly one payload field is set
// according to Kind; Error events carry Err.
type Event struct {
	Seq         int                    `json:"seq"`
	Kind        EventKind              `json:"kind"`
	Path        string                 `json:"path,omitempty"`
	Report      *backend.AnalyzeReport `json:"report,omitempty"`
	Preview     *preview.Result        `json:"preview,omitempty"`
	Outcome     *orchestrator.Outcome  `json:"outcome,omitempty"`
	Err         error                  `json:"-"`
	Error       string                 `json:"error,omitempty"`
	Attachments []string               `json:"attachments,omitempty"`
}

// Request describes a batch. SelectedActions, when set, replaces each
// report's proposed actions for every path.
type Request struct {
	Paths           []string
	ConfirmApply    bool
	AutoCheck       bool
	SelectedActions []backend.Action
	UserConfirmed   bool
	Attachments     []string
}

// Applier is the apply entry point the runner drives.
type Applier interface {
	Apply(ctx context.Context, req orchestrator.ApplyRequest) *orchestrator.Outcome
}

// Runner processes batch requests.
type Runner struct {
	analyzer backend.Analyzer
	preview  *preview.Adapter
	applier  Applier
	log      *zap.Logger
}

// NewRunner creates a Runner. log may be nil.
func NewRunner(analyzer backend.Analyzer, previewer preview.Previewer, applier Applier, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		analyzer: analyzer,
		preview:  preview.NewAdapter(previewer),
		applier:  applier,
		log:      log.With(zap.String("component", "batch")),
	}
}

// Run starts the batch and returns its event stream. Paths are processed in
// order; each path emits report, preview and apply in that order. A failure
// ends only that path with an error event. The stream ends with a done
// event and is then closed. Cancelling ctx stops after the current step.
func (r *Runner) Run(ctx context.Context, req Request) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		seq := 0
		emit := func(e Event) bool {
			seq++
			e.Seq = seq
			if e.Err != nil {
				e.Error = e.Err.Error()
			}
			select {
			case out <- e:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for _, path := range req.Paths {
			if ctx.Err() != nil {
				return
			}
			if !r.runPath(ctx, path, req, emit) {
				return
			}
		}
		emit(Event{Kind: EventDone})
	}()
	return out
}

// runPath returns false when the consumer has gone away.
func (r *Runner) runPath(ctx context.Context, path string, req Request, emit func(Event) bool) bool {
	log := r.log.With(zap.String("path", path))
	fail := func(err error) bool {
		log.Warn("batch path failed", zap.Error(err))
		return emit(Event{Kind: EventError, Path: path, Err: err})
	}

	report, err := r.analyzer.AnalyzeProject(ctx, path)
	if err != nil {
		return fail(fmt.Errorf("analyze: %w", err))
	}
	if !emit(Event{Kind: EventReport, Path: path, Report: report, Attachments: req.Attachments}) {
		return false
	}

	actions := backend.CloneActions(req.SelectedActions)
	if len(actions) == 0 && report != nil {
		actions = backend.CloneActions(report.Actions)
	}
	if len(actions) == 0 {
		return true
	}

	pv, err := r.preview.Preview(ctx, path, actions)
	if err != nil {
		return fail(err)
	}
	if !emit(Event{Kind: EventPreview, Path: path, Preview: pv}) {
		return false
	}

	if !req.ConfirmApply {
		return true
	}
	if !req.UserConfirmed {
		return fail(ErrConfirmationRequired)
	}
	outcome := r.applier.Apply(ctx, orchestrator.ApplyRequest{
		Path:          path,
		Actions:       pv.Actions,
		AutoCheck:     req.AutoCheck,
		UserConfirmed: true,
	})
	log.Info("batch apply finished", zap.String("outcome", outcome.Kind.String()))
	return emit(Event{Kind: EventApply, Path: path, Outcome: outcome})
}

// Tracker checks that a consumer sees each path's events in order.
type Tracker struct {
	last map[string]EventKind
}

// Observe records e and returns an error if it arrives out of order for its
// path.
func (t *Tracker) Observe(e Event) error {
	if e.Kind == EventDone {
		return nil
	}
	if t.last == nil {
		t.last = make(map[string]EventKind)
	}
	prev, seen := t.last[e.Path]
	if prev == EventError {
		return fmt.Errorf("%s: %s event after error", e.Path, e.Kind)
	}
	switch e.Kind {
	case EventReport:
		if seen {
			return fmt.Errorf("%s: duplicate report", e.Path)
		}
	case EventPreview:
		if prev != EventReport {
			return fmt.Errorf("%s: preview before report", e.Path)
		}
	case EventApply:
		if prev != EventPreview {
			return fmt.Errorf("%s: apply before preview", e.Path)
		}
	}
	t.last[e.Path] = e.Kind
	return nil
}
