package checks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lucasnoah/fixfactory/internal/backend"
)

// GateCheckResult holds the result of a single check within a gate run.
type GateCheckResult struct {
	Check   string `json:"check"`
	Passed  bool   `json:"passed"`
	Summary string `json:"summary,omitempty"`
	Output  string `json:"output,omitempty"`
}

// GateFailure describes a remaining failure after a gate run.
type GateFailure struct {
	Summary string `json:"summary"`
}

// GateResult is the structured output of a full gate run.
type GateResult struct {
	Gate              string                 `json:"gate"`
	Dir               string                 `json:"dir"`
	Passed            bool                   `json:"passed"`
	Checks            []GateCheckResult      `json:"checks"`
	RemainingFailures map[string]GateFailure `json:"remaining_failures,omitempty"`
}

// JSON returns the gate result as indented JSON.
func (g *GateResult) JSON() (string, error) {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CheckResults returns the per-check outcomes in the backend contract shape.
func (g *GateResult) CheckResults() []backend.CheckResult {
	out := make([]backend.CheckResult, 0, len(g.Checks))
	for _, c := range g.Checks {
		out = append(out, backend.CheckResult{Name: c.Check, Passed: c.Passed, Summary: c.Summary, Output: c.Output})
	}
	return out
}

// GateOpts configures a gate run.
type GateOpts struct {
	Gate     string // "auto_check" or "verify"
	Checks   []CheckConfig
	Continue bool // run all checks even if some fail
}

// RunGate executes the checks in order against dir. An empty check list
// passes. Each raw result is also returned for logging.
func (r *Runner) RunGate(ctx context.Context, dir string, opts GateOpts) (*GateResult, []*Result, error) {
	gate := &GateResult{
		Gate:              opts.Gate,
		Dir:               dir,
		Passed:            true,
		Checks:            []GateCheckResult{},
		RemainingFailures: make(map[string]GateFailure),
	}

	var allResults []*Result
	for _, chk := range opts.Checks {
		if err := ctx.Err(); err != nil {
			return nil, allResults, err
		}
		result, err := r.Run(ctx, dir, chk)
		if err != nil {
			return nil, allResults, fmt.Errorf("run gate %s: %w", opts.Gate, err)
		}
		allResults = append(allResults, result)

		cr := result.CheckResult()
		gate.Checks = append(gate.Checks, GateCheckResult{
			Check:   cr.Name,
			Passed:  cr.Passed,
			Summary: cr.Summary,
			Output:  cr.Output,
		})

		if !result.Passed {
			gate.Passed = false
			gate.RemainingFailures[chk.Name] = GateFailure{Summary: result.Summary}
			if !opts.Continue {
				break
			}
		}
	}
	return gate, allResults, nil
}
