package checks

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// mockCmd records calls and returns configured results.
type mockCmd struct {
	calls   []mockCall
	results []mockResult
	callIdx int
}

type mockCall struct {
	Dir     string
	Command string
}

type mockResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
	Block    bool // wait for ctx to end
}

func (m *mockCmd) Run(ctx context.Context, dir string, command string) (string, string, int, error) {
	m.calls = append(m.calls, mockCall{Dir: dir, Command: command})
	if m.callIdx >= len(m.results) {
		return "", "", 0, nil
	}
	r := m.results[m.callIdx]
	m.callIdx++
	if r.Block {
		<-ctx.Done()
		return r.Stdout, r.Stderr, -1, ctx.Err()
	}
	return r.Stdout, r.Stderr, r.ExitCode, r.Err
}

func TestRunner_Run_HappyPath(t *testing.T) {
	mock := &mockCmd{
		results: []mockResult{
			{Stdout: "ok  \texample.com/app\t0.01s", ExitCode: 0},
		},
	}
	runner := NewRunner(mock)

	result, err := runner.Run(context.Background(), "/tmp/test", CheckConfig{
		Name:    "test",
		Command: "go test ./...",
		Parser:  "go-test",
		Timeout: 30 * time.Second,
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Passed {
		t.Errorf("expected passed=true, got false")
	}
	if result.CheckName != "test" {
		t.Errorf("expected check_name=test, got %q", result.CheckName)
	}
	if result.Summary != "1 packages ok" {
		t.Errorf("summary = %q", result.Summary)
	}
	if len(mock.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(mock.calls))
	}
	if mock.calls[0].Dir != "/tmp/test" {
		t.Errorf("expected dir=/tmp/test, got %q", mock.calls[0].Dir)
	}
	if mock.calls[0].Command != "go test ./..." {
		t.Errorf("expected command=go test ./..., got %q", mock.calls[0].Command)
	}
}

func TestRunner_Run_FailedCheck(t *testing.T) {
	mock := &mockCmd{
		results: []mockResult{
			{Stdout: "errors found", ExitCode: 1},
		},
	}
	runner := NewRunner(mock)

	result, err := runner.Run(context.Background(), "/tmp/test", CheckConfig{
		Name:    "lint",
		Command: "make lint",
		Parser:  "generic",
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Passed {
		t.Errorf("expected passed=false, got true")
	}
	if result.ExitCode != 1 {
		t.Errorf("expected exit_code=1, got %d", result.ExitCode)
	}
	if result.Findings != "errors found" {
		t.Errorf("findings = %q", result.Findings)
	}
	cr := result.CheckResult()
	if cr.Name != "lint" || cr.Passed || cr.Output != "errors found" {
		t.Errorf("CheckResult = %+v", cr)
	}
}

func TestRunner_Run_UnknownParserFallsBack(t *testing.T) {
	mock := &mockCmd{results: []mockResult{{ExitCode: 0}}}
	runner := NewRunner(mock)

	result, err := runner.Run(context.Background(), "/tmp", CheckConfig{Name: "x", Command: "true", Parser: "nope"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Summary != "passed (exit code 0)" {
		t.Errorf("summary = %q, want generic summary", result.Summary)
	}
	if runner.HasParser("nope") || !runner.HasParser("go-build") {
		t.Error("HasParser misreports registered parsers")
	}
}

func TestRunner_Run_StructuredFindingsAreJSON(t *testing.T) {
	mock := &mockCmd{results: []mockResult{{Stderr: "./main.go:3:2: undefined: foo", ExitCode: 1}}}
	runner := NewRunner(mock)

	result, err := runner.Run(context.Background(), "/tmp", CheckConfig{Name: "build", Command: "go build ./...", Parser: "go-build"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result.Findings, `"file":"./main.go"`) {
		t.Errorf("findings = %s", result.Findings)
	}
}

func TestRunner_Run_Timeout(t *testing.T) {
	mock := &mockCmd{results: []mockResult{{Block: true}}}
	runner := NewRunner(mock)

	result, err := runner.Run(context.Background(), "/tmp", CheckConfig{
		Name:    "slow",
		Command: "sleep 60",
		Timeout: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("timeout should be a failed result, got error %v", err)
	}
	if result.Passed || result.ExitCode != -1 {
		t.Errorf("result = %+v", result)
	}
	if !strings.HasPrefix(result.Summary, "timeout after") {
		t.Errorf("summary = %q", result.Summary)
	}
}

func TestRunner_Run_CallerCancelIsError(t *testing.T) {
	mock := &mockCmd{results: []mockResult{{Block: true}}}
	runner := NewRunner(mock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := runner.Run(ctx, "/tmp", CheckConfig{Name: "x", Command: "true"}); err == nil {
		t.Error("expected error when the caller cancels")
	}
}

func TestRunner_Run_ExecError(t *testing.T) {
	mock := &mockCmd{results: []mockResult{{Err: errors.New("no shell")}}}
	runner := NewRunner(mock)

	if _, err := runner.Run(context.Background(), "/tmp", CheckConfig{Name: "x", Command: "true"}); err == nil {
		t.Error("expected exec error to surface")
	}
}

func TestExecRunner(t *testing.T) {
	dir := t.TempDir()
	r := &ExecRunner{}

	stdout, _, code, err := r.Run(context.Background(), dir, "pwd && exit 3")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
	if !strings.Contains(stdout, dir) {
		t.Errorf("stdout = %q, want it to contain %q", stdout, dir)
	}
}
