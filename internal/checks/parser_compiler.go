package checks

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// CompilerParser reads file:line diagnostics from go build, go vet and tsc.
type CompilerParser struct{}

type compilerFinding struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type compilerResult struct {
	Errors   int               `json:"errors"`
	Findings []compilerFinding `json:"findings"`
}

var (
	// main.go:12:3: undefined: foo   (vet prefixes "vet: ")
	goDiagRe = regexp.MustCompile(`^(?:vet: )?(\S+\.go):(\d+):(\d+): (.+)$`)
	// src/a.ts(42,5): error TS2345: message
	tscDiagRe = regexp.MustCompile(`^(.+?)\((\d+),(\d+)\): error (TS\d+): (.+)$`)
)

func (p *CompilerParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	var res compilerResult
	for _, line := range strings.Split(combine(stdout, stderr), "\n") {
		line = strings.TrimSpace(line)
		if m := goDiagRe.FindStringSubmatch(line); m != nil {
			res.add(m[1], m[2], m[3], "", m[4])
			continue
		}
		if m := tscDiagRe.FindStringSubmatch(line); m != nil {
			res.add(m[1], m[2], m[3], m[4], m[5])
		}
	}

	switch {
	case res.Errors == 0 && exitCode == 0:
		return ParseResult{Passed: true, Summary: "no errors", Findings: res}
	case res.Errors == 0:
		// Failed without recognizable diagnostics; keep the raw output.
		return ParseResult{
			Passed:   false,
			Summary:  fmt.Sprintf("exit code %d", exitCode),
			Findings: tail(combine(stdout, stderr)),
		}
	}

	summary := fmt.Sprintf("%d errors", res.Errors)
	if res.Errors == 1 {
		summary = "1 error"
	}
	first := res.Findings[0]
	summary += fmt.Sprintf(" (first: %s:%d %s)", first.File, first.Line, first.Message)
	return ParseResult{Passed: false, Summary: summary, Findings: res}
}

func (r *compilerResult) add(file, line, col, code, msg string) {
	l, _ := strconv.Atoi(line)
	c, _ := strconv.Atoi(col)
	r.Findings = append(r.Findings, compilerFinding{File: file, Line: l, Col: c, Code: code, Message: msg})
	r.Errors++
}
