package checks

import (
	"fmt"
	"strings"
)

// GoTestParser reads the plain (non -json) output of go test.
type GoTestParser struct{}

type goTestResult struct {
	PassedPackages int      `json:"passed_packages"`
	FailedPackages []string `json:"failed_packages,omitempty"`
	FailedTests    []string `json:"failed_tests,omitempty"`
	Panicked       bool     `json:"panicked,omitempty"`
}

func (p *GoTestParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	var res goTestResult
	for _, line := range strings.Split(combine(stdout, stderr), "\n") {
		trimmed := strings.TrimSpace(line)
		fields := strings.Fields(trimmed)
		switch {
		case strings.HasPrefix(trimmed, "--- FAIL: ") && len(fields) >= 3:
			res.FailedTests = append(res.FailedTests, fields[2])
		case strings.HasPrefix(line, "ok ") || strings.HasPrefix(line, "ok\t"):
			res.PassedPackages++
		case strings.HasPrefix(line, "FAIL\t") && len(fields) >= 2:
			res.FailedPackages = append(res.FailedPackages, fields[1])
		case strings.HasPrefix(line, "panic: "):
			res.Panicked = true
		}
	}

	passed := exitCode == 0 && len(res.FailedTests) == 0 && len(res.FailedPackages) == 0 && !res.Panicked
	if passed {
		return ParseResult{Passed: true, Summary: fmt.Sprintf("%d packages ok", res.PassedPackages), Findings: res}
	}

	var summary string
	switch {
	case len(res.FailedTests) > 0:
		summary = fmt.Sprintf("%d tests failed in %d packages", len(res.FailedTests), max(len(res.FailedPackages), 1))
	case res.Panicked:
		summary = "test binary panicked"
	case len(res.FailedPackages) > 0:
		summary = fmt.Sprintf("%d packages failed", len(res.FailedPackages))
	default:
		summary = fmt.Sprintf("exit code %d", exitCode)
	}
	return ParseResult{Passed: false, Summary: summary, Findings: res}
}
