package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/lucasnoah/fixfactory/internal/backend"
)

func actionFor(actions []backend.Action, path string) *backend.Action {
	for i := range actions {
		if actions[i].Path == path {
			return &actions[i]
		}
	}
	return nil
}

func TestAnalyzeProject(t *testing.T) {
	e := newTestEngine(t, nil)
	root := writeTree(t, map[string]string{
		"go.mod":            "module example.com/x\n",
		"main.go":           "package main\r\n\r\nfunc main() {}",
		"empty/":            "",
		".env":              "SECRET=1",
		"node_modules/x.js": "x",
		"internal/ok/ok.go": "package ok\n",
	})
	before := snapshotTree(t, root)

	report, err := e.AnalyzeProject(context.Background(), root)
	if err != nil {
		t.Fatalf("AnalyzeProject: %v", err)
	}

	readme := actionFor(report.Actions, "README.md")
	if readme == nil || readme.Kind != backend.KindCreateFile {
		t.Errorf("README action = %+v", readme)
	}
	gi := actionFor(report.Actions, ".gitignore")
	if gi == nil || gi.Content == nil || !containsLine(*gi.Content, "*.test") {
		t.Errorf(".gitignore action = %+v, want Go entries", gi)
	}
	mainFix := actionFor(report.Actions, "main.go")
	if mainFix == nil || mainFix.Kind != backend.KindUpdateFile || *mainFix.Content != "package main\n\nfunc main() {}\n" {
		t.Errorf("main.go action = %+v", mainFix)
	}
	if a := actionFor(report.Actions, "empty"); a == nil || a.Kind != backend.KindDeleteDir {
		t.Errorf("empty dir action = %+v", a)
	}
	for _, p := range []string{".env", "node_modules/x.js", "internal/ok/ok.go", "internal", "internal/ok"} {
		if a := actionFor(report.Actions, p); a != nil {
			t.Errorf("unexpected action for %s: %+v", p, a)
		}
	}

	if len(report.RecommendedPackIDs) != 1 || report.RecommendedPackIDs[0] != PackEssentials {
		t.Errorf("recommended = %v", report.RecommendedPackIDs)
	}
	if len(report.FixPacks) != 2 {
		t.Errorf("fix packs = %+v", report.FixPacks)
	}
	if len(report.Findings) == 0 || report.Findings[0].Severity != "warning" {
		t.Errorf("findings should be sorted by severity: %+v", report.Findings)
	}
	if snapshotTree(t, root) != before {
		t.Error("analyze must not modify the project")
	}
}

func containsLine(s, line string) bool {
	for _, l := range strings.Split(s, "\n") {
		if l == line {
			return true
		}
	}
	return false
}

func TestAnalyzeCleanProject(t *testing.T) {
	e := newTestEngine(t, nil)
	root := writeTree(t, map[string]string{
		"README.md":     "# x\n",
		"LICENSE":       "MIT\n",
		".gitignore":    "*.log\n",
		".editorconfig": "root = true\n",
	})

	report, err := e.AnalyzeProject(context.Background(), root)
	if err != nil {
		t.Fatalf("AnalyzeProject: %v", err)
	}
	if len(report.Actions) != 0 || len(report.Findings) != 0 || len(report.RecommendedPackIDs) != 0 {
		t.Errorf("clean project report = %+v", report)
	}
}

func TestSubscribeAnalyze(t *testing.T) {
	e := newTestEngine(t, nil)
	root := writeTree(t, map[string]string{"README.md": "# x\n"})

	ch, cancel := e.SubscribeAnalyze()
	if _, err := e.AnalyzeProject(context.Background(), root); err != nil {
		t.Fatal(err)
	}
	cancel()

	var lines []string
	for l := range ch {
		lines = append(lines, l)
	}
	if len(lines) != 2 {
		t.Fatalf("progress lines = %q", lines)
	}
	if lines[1] != "found 3 findings, 2 actions" {
		t.Errorf("last line = %q", lines[1])
	}
}

func TestAnalyzeMissingRoot(t *testing.T) {
	e := newTestEngine(t, nil)
	if _, err := e.AnalyzeProject(context.Background(), "/does/not/exist"); err == nil {
		t.Error("expected error for missing project")
	}
}
