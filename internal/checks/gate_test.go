package checks

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestRunGate_AllPass(t *testing.T) {
	mock := &mockCmd{
		results: []mockResult{
			{ExitCode: 0, Stdout: "ok"},
			{ExitCode: 0, Stdout: "ok"},
		},
	}
	runner := NewRunner(mock)

	gate, results, err := runner.RunGate(context.Background(), "/tmp", GateOpts{
		Gate: "verify",
		Checks: []CheckConfig{
			{Name: "build", Command: "go build ./...", Parser: "go-build", Timeout: 30 * time.Second},
			{Name: "test", Command: "go test ./...", Parser: "go-test", Timeout: 60 * time.Second},
		},
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !gate.Passed {
		t.Error("expected gate to pass")
	}
	if gate.Gate != "verify" || gate.Dir != "/tmp" {
		t.Errorf("gate = %q dir = %q", gate.Gate, gate.Dir)
	}
	if len(gate.Checks) != 2 {
		t.Fatalf("expected 2 check results, got %d", len(gate.Checks))
	}
	if len(gate.RemainingFailures) != 0 {
		t.Errorf("expected no failures, got %d", len(gate.RemainingFailures))
	}
	if len(results) != 2 {
		t.Errorf("expected 2 raw results, got %d", len(results))
	}
}

func TestRunGate_Empty(t *testing.T) {
	runner := NewRunner(&mockCmd{})
	gate, _, err := runner.RunGate(context.Background(), "/tmp", GateOpts{Gate: "auto_check"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !gate.Passed || len(gate.CheckResults()) != 0 {
		t.Errorf("empty gate = %+v", gate)
	}
}

func TestRunGate_StopOnFirstFailure(t *testing.T) {
	mock := &mockCmd{
		results: []mockResult{
			{ExitCode: 1, Stdout: "build errors"},
		},
	}
	runner := NewRunner(mock)

	gate, results, err := runner.RunGate(context.Background(), "/tmp", GateOpts{
		Gate: "auto_check",
		Checks: []CheckConfig{
			{Name: "build", Command: "go build ./...", Parser: "generic"},
			{Name: "test", Command: "go test ./...", Parser: "generic"},
		},
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gate.Passed {
		t.Error("expected gate to fail")
	}
	if len(gate.Checks) != 1 {
		t.Errorf("expected 1 check (stopped early), got %d", len(gate.Checks))
	}
	if len(results) != 1 {
		t.Errorf("expected 1 raw result, got %d", len(results))
	}
	if _, ok := gate.RemainingFailures["build"]; !ok {
		t.Error("expected build in remaining failures")
	}
	crs := gate.CheckResults()
	if len(crs) != 1 || crs[0].Name != "build" || crs[0].Output != "build errors" {
		t.Errorf("CheckResults = %+v", crs)
	}
}

func TestRunGate_ContinueOnFailure(t *testing.T) {
	mock := &mockCmd{
		results: []mockResult{
			{ExitCode: 1},
			{ExitCode: 0},
		},
	}
	runner := NewRunner(mock)

	gate, _, err := runner.RunGate(context.Background(), "/tmp", GateOpts{
		Gate:     "verify",
		Continue: true,
		Checks: []CheckConfig{
			{Name: "vet", Command: "go vet ./...", Parser: "go-vet"},
			{Name: "test", Command: "go test ./...", Parser: "generic"},
		},
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gate.Passed {
		t.Error("expected gate to fail")
	}
	if len(gate.Checks) != 2 {
		t.Errorf("expected 2 checks with continue, got %d", len(gate.Checks))
	}
	if !gate.Checks[1].Passed {
		t.Error("expected second check to pass")
	}
}

func TestRunGate_CancelledContext(t *testing.T) {
	runner := NewRunner(&mockCmd{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := runner.RunGate(ctx, "/tmp", GateOpts{Checks: []CheckConfig{{Name: "x", Command: "true"}}})
	if err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestGateResult_JSON(t *testing.T) {
	gate := &GateResult{
		Gate:   "verify",
		Passed: true,
		Checks: []GateCheckResult{
			{Check: "build", Passed: true, Summary: "no errors"},
		},
	}

	s, err := gate.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(s), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed["gate"] != "verify" {
		t.Errorf("expected gate=verify in JSON")
	}
}
