package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lucasnoah/fixfactory/internal/backend"
)

// GenerateActionsFromReport turns a report into an applicable action list.
// Safe mode keeps only actions that add new files or directories; all mode
// keeps everything the policy allows.
func (e *Engine) GenerateActionsFromReport(ctx context.Context, root string, report *backend.AnalyzeReport, mode backend.GenerateMode) (*backend.GenerateResult, error) {
	if report == nil {
		return nil, fmt.Errorf("generate actions: no report")
	}
	if mode != backend.GenerateSafe && mode != backend.GenerateAll {
		return nil, fmt.Errorf("generate actions: unknown mode %q", mode)
	}
	root, err := resolveRoot(root)
	if err != nil {
		return nil, err
	}

	res := &backend.GenerateResult{OK: true, Actions: []backend.Action{}}
	for _, a := range reportActions(report) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if reason := e.policy.Violation(a.Path); reason != "" {
			res.Skipped = append(res.Skipped, backend.SkippedAction{Path: a.Path, Reason: reason})
			continue
		}
		if mode == backend.GenerateSafe {
			if reason := unsafeReason(root, a); reason != "" {
				res.Skipped = append(res.Skipped, backend.SkippedAction{Path: a.Path, Reason: reason})
				continue
			}
		}
		res.Actions = append(res.Actions, a)
	}
	return res, nil
}

// reportActions merges top-level and grouped actions, first occurrence wins.
func reportActions(report *backend.AnalyzeReport) []backend.Action {
	seen := make(map[backend.ActionKey]bool)
	var out []backend.Action
	add := func(list []backend.Action) {
		for _, a := range list {
			if seen[a.Key()] {
				continue
			}
			seen[a.Key()] = true
			out = append(out, a)
		}
	}
	add(report.Actions)
	for _, g := range report.ActionGroups {
		add(g.Actions)
	}
	return backend.CloneActions(out)
}

func unsafeReason(root string, a backend.Action) string {
	switch a.Kind {
	case backend.KindCreateFile, backend.KindCreateDir:
		rel, err := CleanRel(a.Path)
		if err != nil {
			return err.Error()
		}
		cur, err := capture(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil || cur.Kind != EntryAbsent {
			return "target already exists"
		}
		return ""
	}
	return fmt.Sprintf("%s changes existing content", a.Kind)
}

// goalGroups maps goal keywords onto analyzer groups.
var goalGroups = map[string][]string{
	"readme":        {GroupDocs},
	"docs":          {GroupDocs},
	"documentation": {GroupDocs},
	"license":       {GroupDocs},
	"gitignore":     {GroupHygiene},
	"editorconfig":  {GroupHygiene},
	"hygiene":       {GroupHygiene},
	"crlf":          {GroupNormalize},
	"line":          {GroupNormalize},
	"endings":       {GroupNormalize},
	"newline":       {GroupNormalize},
	"whitespace":    {GroupNormalize},
	"normalize":     {GroupNormalize},
	"empty":         {GroupCleanup},
	"cleanup":       {GroupCleanup},
	"tidy":          {GroupNormalize, GroupCleanup},
	"essentials":    {GroupDocs, GroupHygiene},
	"everything":    {GroupDocs, GroupHygiene, GroupNormalize, GroupCleanup},
	"all":           {GroupDocs, GroupHygiene, GroupNormalize, GroupCleanup},
}

// ProposeActions analyzes req.Path and picks the groups the goal mentions,
// falling back to the recommended packs. On a retry, paths named in
// LastPlanContext (the previous attempt's failures) are left out.
func (e *Engine) ProposeActions(ctx context.Context, req backend.ProposeRequest) (*backend.ProposeResult, error) {
	report, err := e.analyzer.AnalyzeProject(ctx, req.Path)
	if err != nil {
		return nil, fmt.Errorf("propose actions: %w", err)
	}

	wanted := make(map[string]bool)
	for _, word := range strings.FieldsFunc(strings.ToLower(req.Goal), func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	}) {
		for _, g := range goalGroups[word] {
			wanted[g] = true
		}
	}
	if len(wanted) == 0 {
		for _, id := range report.RecommendedPackIDs {
			for _, p := range report.FixPacks {
				if p.ID == id {
					for _, g := range p.GroupIDs {
						wanted[g] = true
					}
				}
			}
		}
	}

	var picked []backend.Action
	var groups []string
	seen := make(map[backend.ActionKey]bool)
	for _, g := range report.ActionGroups {
		if !wanted[g.ID] {
			continue
		}
		groups = append(groups, g.ID)
		for _, a := range g.Actions {
			if seen[a.Key()] || e.policy.Violation(a.Path) != "" {
				continue
			}
			if req.LastPlanContext != "" && strings.Contains(req.LastPlanContext, a.Path) {
				continue
			}
			seen[a.Key()] = true
			picked = append(picked, a)
		}
	}

	res := &backend.ProposeResult{
		OK:          true,
		Actions:     backend.CloneActions(picked),
		PlanContext: "groups: " + strings.Join(groups, ", "),
	}
	if res.Actions == nil {
		res.Actions = []backend.Action{}
	}
	var plan strings.Builder
	for _, a := range picked {
		fmt.Fprintf(&plan, "%s %s\n", a.Kind, a.Path)
	}
	res.Plan = plan.String()
	switch {
	case len(picked) == 0:
		res.Summary = fmt.Sprintf("Nothing to change for %q.", req.Goal)
	default:
		res.Summary = fmt.Sprintf("%d actions from %s for %q.", len(picked), strings.Join(groups, ", "), req.Goal)
	}
	return res, nil
}
