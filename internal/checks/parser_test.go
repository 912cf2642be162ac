package checks

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestCompilerParser_NoErrors(t *testing.T) {
	p := &CompilerParser{}
	r := p.Parse("", "", 0)
	if !r.Passed {
		t.Error("expected passed=true")
	}
	if r.Summary != "no errors" {
		t.Errorf("unexpected summary: %q", r.Summary)
	}
}

func TestCompilerParser_GoErrors(t *testing.T) {
	stderr := `# example.com/app
./main.go:12:3: undefined: foo
vet: internal/x/x.go:4:1: unreachable code`
	p := &CompilerParser{}
	r := p.Parse("", stderr, 1)
	if r.Passed {
		t.Error("expected passed=false")
	}

	result := r.Findings.(compilerResult)
	if result.Errors != 2 {
		t.Fatalf("expected 2 errors, got %d", result.Errors)
	}
	f := result.Findings[0]
	if f.File != "./main.go" || f.Line != 12 || f.Col != 3 || f.Message != "undefined: foo" {
		t.Errorf("finding = %+v", f)
	}
	if result.Findings[1].File != "internal/x/x.go" {
		t.Errorf("vet finding file = %q", result.Findings[1].File)
	}
	if !strings.HasPrefix(r.Summary, "2 errors (first: ./main.go:12") {
		t.Errorf("summary = %q", r.Summary)
	}
}

func TestCompilerParser_TypeScriptErrors(t *testing.T) {
	input := `src/auth.ts(42,5): error TS2345: Argument of type 'string' is not assignable to parameter of type 'number'.`
	p := &CompilerParser{}
	r := p.Parse(input, "", 2)

	result := r.Findings.(compilerResult)
	if result.Errors != 1 {
		t.Fatalf("expected 1 error, got %d", result.Errors)
	}
	f := result.Findings[0]
	if f.File != "src/auth.ts" || f.Line != 42 || f.Code != "TS2345" {
		t.Errorf("finding = %+v", f)
	}
	if !strings.HasPrefix(r.Summary, "1 error ") {
		t.Errorf("summary = %q", r.Summary)
	}
}

func TestCompilerParser_FailureWithoutDiagnostics(t *testing.T) {
	p := &CompilerParser{}
	r := p.Parse("", "go: cannot find main module", 1)
	if r.Passed {
		t.Error("expected passed=false")
	}
	if r.Findings != "go: cannot find main module" {
		t.Errorf("findings = %v", r.Findings)
	}
}

func TestGoTestParser_Pass(t *testing.T) {
	out := "ok  \texample.com/a\t0.01s\nok  \texample.com/b\t(cached)\n?   \texample.com/c\t[no test files]\n"
	r := (&GoTestParser{}).Parse(out, "", 0)
	if !r.Passed {
		t.Error("expected passed=true")
	}
	if r.Summary != "2 packages ok" {
		t.Errorf("summary = %q", r.Summary)
	}
}

func TestGoTestParser_Failures(t *testing.T) {
	out := `--- FAIL: TestApply (0.00s)
    apply_test.go:10: want 1, got 2
--- FAIL: TestUndo (0.01s)
FAIL
FAIL	example.com/engine	0.02s
ok  	example.com/db	0.01s
`
	r := (&GoTestParser{}).Parse(out, "", 1)
	if r.Passed {
		t.Error("expected passed=false")
	}
	res := r.Findings.(goTestResult)
	if len(res.FailedTests) != 2 || res.FailedTests[0] != "TestApply" {
		t.Errorf("failed tests = %v", res.FailedTests)
	}
	if len(res.FailedPackages) != 1 || res.FailedPackages[0] != "example.com/engine" {
		t.Errorf("failed packages = %v", res.FailedPackages)
	}
	if res.PassedPackages != 1 {
		t.Errorf("passed packages = %d", res.PassedPackages)
	}
	if r.Summary != "2 tests failed in 1 packages" {
		t.Errorf("summary = %q", r.Summary)
	}
}

func TestGoTestParser_Panic(t *testing.T) {
	r := (&GoTestParser{}).Parse("panic: runtime error: index out of range\n", "", 2)
	if r.Passed || r.Summary != "test binary panicked" {
		t.Errorf("result = %+v", r)
	}
}

func TestGenericParser_Pass(t *testing.T) {
	p := &GenericParser{}
	r := p.Parse("output text", "stderr text", 0)
	if !r.Passed {
		t.Error("expected passed=true")
	}
	if r.Summary != "passed (exit code 0)" {
		t.Errorf("unexpected summary: %q", r.Summary)
	}
	if r.Findings != "" {
		t.Errorf("passing run should keep no output, got %q", r.Findings)
	}
}

func TestGenericParser_FailKeepsTail(t *testing.T) {
	long := strings.Repeat("a", maxOutputLen) + "THE END"
	r := (&GenericParser{}).Parse(long, "boom", 1)
	if r.Passed {
		t.Error("expected passed=false")
	}
	out := r.Findings.(string)
	if !strings.HasPrefix(out, "…(truncated)\n") || !strings.HasSuffix(out, "THE END\nboom") {
		t.Errorf("findings head/tail wrong: %q...%q", out[:20], out[len(out)-20:])
	}
}

func TestParseResult_JSONSerializable(t *testing.T) {
	r := ParseResult{
		Passed:   false,
		Summary:  "1 error",
		Findings: compilerResult{Errors: 1, Findings: []compilerFinding{{File: "a.go", Line: 1, Message: "x"}}},
	}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	if !strings.Contains(string(data), `"errors":1`) {
		t.Errorf("json = %s", data)
	}
}
