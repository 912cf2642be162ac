package checks

import "fmt"

// GenericParser is the fallback parser: exit code decides, and a failing run
// keeps the tail of its output.
type GenericParser struct{}

// maxOutputLen caps how much stdout/stderr a parser retains in findings.
const maxOutputLen = 8000

func (p *GenericParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	if exitCode == 0 {
		return ParseResult{Passed: true, Summary: "passed (exit code 0)", Findings: ""}
	}
	return ParseResult{
		Passed:   false,
		Summary:  fmt.Sprintf("exit code %d, stdout=%d bytes, stderr=%d bytes", exitCode, len(stdout), len(stderr)),
		Findings: tail(combine(stdout, stderr)),
	}
}

func combine(stdout, stderr string) string {
	switch {
	case stderr == "":
		return stdout
	case stdout == "":
		return stderr
	}
	return stdout + "\n" + stderr
}

// tail keeps the end of s; error summaries and panics print last.
func tail(s string) string {
	if len(s) <= maxOutputLen {
		return s
	}
	return "…(truncated)\n" + s[len(s)-maxOutputLen:]
}
