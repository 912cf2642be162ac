package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/lucasnoah/fixfactory/internal/backend"
)

func sampleProject(t *testing.T) string {
	return writeTree(t, map[string]string{
		"go.mod":  "module example.com/x\n",
		"main.go": "package main\r\n",
		"empty/":  "",
	})
}

func paths(actions []backend.Action) []string {
	var out []string
	for _, a := range actions {
		out = append(out, a.Path)
	}
	return out
}

func TestGenerateActionsSafeAndAll(t *testing.T) {
	e := newTestEngine(t, nil)
	root := sampleProject(t)
	ctx := context.Background()

	report, err := e.AnalyzeProject(ctx, root)
	if err != nil {
		t.Fatal(err)
	}
	report.Actions = append(report.Actions, create(".env", "X=1"))

	safe, err := e.GenerateActionsFromReport(ctx, root, report, backend.GenerateSafe)
	if err != nil {
		t.Fatalf("safe: %v", err)
	}
	for _, a := range safe.Actions {
		if a.Kind != backend.KindCreateFile && a.Kind != backend.KindCreateDir {
			t.Errorf("safe mode kept %s %s", a.Kind, a.Path)
		}
	}
	if got := strings.Join(paths(safe.Actions), ","); got != "README.md,.gitignore,.editorconfig" {
		t.Errorf("safe actions = %s", got)
	}
	skipped := make(map[string]string)
	for _, s := range safe.Skipped {
		skipped[s.Path] = s.Reason
	}
	if !strings.Contains(skipped["main.go"], "changes existing content") {
		t.Errorf("main.go skip reason = %q", skipped["main.go"])
	}
	if !strings.Contains(skipped[".env"], "protected") {
		t.Errorf(".env skip reason = %q", skipped[".env"])
	}

	all, err := e.GenerateActionsFromReport(ctx, root, report, backend.GenerateAll)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all.Actions) != 5 || len(all.Skipped) != 1 {
		t.Errorf("all = %v skipped %+v", paths(all.Actions), all.Skipped)
	}
}

func TestGenerateActionsSkipsExistingTargetInSafeMode(t *testing.T) {
	e := newTestEngine(t, nil)
	root := writeTree(t, map[string]string{"README.md": "# x\n"})
	report := &backend.AnalyzeReport{Actions: []backend.Action{create("README.md", "# y\n")}}

	res, err := e.GenerateActionsFromReport(context.Background(), root, report, backend.GenerateSafe)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Actions) != 0 || len(res.Skipped) != 1 || res.Skipped[0].Reason != "target already exists" {
		t.Errorf("result = %+v", res)
	}
}

func TestGenerateActionsRejectsBadInput(t *testing.T) {
	e := newTestEngine(t, nil)
	root := writeTree(t, nil)
	if _, err := e.GenerateActionsFromReport(context.Background(), root, nil, backend.GenerateSafe); err == nil {
		t.Error("expected error for nil report")
	}
	if _, err := e.GenerateActionsFromReport(context.Background(), root, &backend.AnalyzeReport{}, "risky"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestProposeActions(t *testing.T) {
	e := newTestEngine(t, nil)
	root := sampleProject(t)
	ctx := context.Background()

	tests := []struct {
		name        string
		req         backend.ProposeRequest
		wantPaths   string
		wantSummary string
	}{
		{
			name:      "goal keyword",
			req:       backend.ProposeRequest{Path: root, Goal: "Add a README"},
			wantPaths: "README.md",
		},
		{
			name:      "recommended fallback",
			req:       backend.ProposeRequest{Path: root, Goal: "make it nicer"},
			wantPaths: "README.md,.gitignore,.editorconfig",
		},
		{
			name:      "tidy",
			req:       backend.ProposeRequest{Path: root, Goal: "tidy"},
			wantPaths: "empty,main.go",
		},
		{
			name:      "previous failure excluded",
			req:       backend.ProposeRequest{Path: root, Goal: "essentials", LastPlanContext: "- lint: README.md: bad"},
			wantPaths: ".gitignore,.editorconfig",
		},
		{
			name:        "nothing left",
			req:         backend.ProposeRequest{Path: root, Goal: "readme", LastPlanContext: "README.md"},
			wantPaths:   "",
			wantSummary: `Nothing to change for "readme".`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.ProposeActions(ctx, tt.req)
			if err != nil {
				t.Fatalf("ProposeActions: %v", err)
			}
			if !res.OK {
				t.Fatalf("result = %+v", res)
			}
			if got := strings.Join(paths(res.Actions), ","); got != tt.wantPaths {
				t.Errorf("actions = %s, want %s", got, tt.wantPaths)
			}
			if tt.wantSummary != "" && res.Summary != tt.wantSummary {
				t.Errorf("summary = %q, want %q", res.Summary, tt.wantSummary)
			}
			if res.Actions == nil {
				t.Error("actions must be non-nil")
			}
		})
	}
}

func TestProposeActionsPlanText(t *testing.T) {
	e := newTestEngine(t, nil)
	root := sampleProject(t)

	res, err := e.ProposeActions(context.Background(), backend.ProposeRequest{Path: root, Goal: "docs"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Plan != "create_file README.md\n" {
		t.Errorf("plan = %q", res.Plan)
	}
	if res.PlanContext != "groups: docs" {
		t.Errorf("plan context = %q", res.PlanContext)
	}
	if res.Summary != `1 actions from docs for "docs".` {
		t.Errorf("summary = %q", res.Summary)
	}
}
