// Package preview asks the backend what an action set would change and
// classifies the resulting diffs. It never mutates session state.
package preview

import (
	"context"
	"errors"
	"fmt"

	"github.com/lucasnoah/fixfactory/internal/backend"
)

// ErrNothingSelected is returned when Preview is called with no actions.
var ErrNothingSelected = errors.New("no actions selected")

// Previewer is the part of the backend the adapter needs.
type Previewer interface {
	PreviewActions(ctx context.Context, path string, actions []backend.Action) (*backend.PreviewResult, error)
}

// Result is a classified preview. Actions is a copy of the exact set that
// was previewed.
type Result struct {
	Path    string
	Actions []backend.Action
	Diffs   []backend.DiffItem
	Blocked int
	Warning string
}

// Summaries returns the diff summaries in order.
func (r *Result) Summaries() []string {
	out := make([]string, len(r.Diffs))
	for i, d := range r.Diffs {
		out[i] = d.Summary
	}
	return out
}

// Adapter wraps a Previewer.
type Adapter struct {
	previewer Previewer
}

// NewAdapter returns an adapter over p.
func NewAdapter(p Previewer) *Adapter {
	return &Adapter{previewer: p}
}

// Preview requests diffs for actions against path. Blocked and non-text
// diffs stay in the result and are counted in Blocked; the action set is
// never filtered.
func (a *Adapter) Preview(ctx context.Context, path string, actions []backend.Action) (*Result, error) {
	if len(actions) == 0 {
		return nil, ErrNothingSelected
	}
	snapshot := backend.CloneActions(actions)
	res, err := a.previewer.PreviewActions(ctx, path, backend.CloneActions(snapshot))
	if err != nil {
		return nil, fmt.Errorf("preview actions: %w", err)
	}

	out := &Result{Path: path, Actions: snapshot}
	if res != nil {
		out.Diffs = make([]backend.DiffItem, len(res.Diffs))
		copy(out.Diffs, res.Diffs)
	}
	for i := range out.Diffs {
		d := &out.Diffs[i]
		if !d.Blocked && !d.IsText() {
			d.Blocked = true
			if d.BlockReason == "" {
				d.BlockReason = "binary content"
			}
		}
		if d.Blocked {
			out.Blocked++
		}
	}
	if out.Blocked > 0 {
		out.Warning = fmt.Sprintf("%d of %d changes are blocked or binary and may be rejected on apply", out.Blocked, len(out.Diffs))
	}
	return out, nil
}
