package engine

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/lucasnoah/fixfactory/internal/backend"
)

// Analysis limits.
const (
	maxScanFiles = 5000
	maxScanBytes = 1 << 20
)

// Group and pack ids produced by the built-in analyzer.
const (
	GroupDocs      = "docs"
	GroupHygiene   = "hygiene"
	GroupNormalize = "normalize"
	GroupCleanup   = "cleanup"

	PackEssentials = "essentials"
	PackTidy       = "tidy"
)

// skipDirs are never descended into.
var skipDirs = map[string]bool{".git": true, "node_modules": true, "vendor": true, ".venv": true, "dist": true, "build": true}

// SubscribeAnalyze streams progress lines from AnalyzeProject calls.
func (e *Engine) SubscribeAnalyze() (<-chan string, func()) {
	return e.analyzeHub.subscribe()
}

func (e *Engine) analyzeProgress(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	e.analyzeHub.publish(msg)
	e.logf("%s", msg)
}

// AnalyzeProject inspects root for missing project files, inconsistent line
// endings and empty directories, and proposes grouped actions for each.
func (e *Engine) AnalyzeProject(ctx context.Context, root string) (*backend.AnalyzeReport, error) {
	root, err := resolveRoot(root)
	if err != nil {
		return nil, err
	}
	e.analyzeProgress("scanning %s", root)

	a := &analysis{report: &backend.AnalyzeReport{Path: root}, groups: make(map[string]*backend.ActionGroup)}
	a.checkProjectFiles(root)
	if err := a.walk(ctx, root, e.policy); err != nil {
		return nil, fmt.Errorf("analyze %s: %w", root, err)
	}
	a.finish()

	e.analyzeProgress("found %d findings, %d actions", len(a.report.Findings), len(a.report.Actions))
	e.log.Info("analyzed", zap.String("root", root), zap.Int("findings", len(a.report.Findings)), zap.Int("actions", len(a.report.Actions)))
	return a.report, nil
}

type analysis struct {
	report *backend.AnalyzeReport
	groups map[string]*backend.ActionGroup
	order  []string
	files  int
}

var groupTitles = map[string]string{
	GroupDocs:      "Project documentation",
	GroupHygiene:   "Repository hygiene files",
	GroupNormalize: "Normalize line endings",
	GroupCleanup:   "Remove empty directories",
}

func (a *analysis) add(group string, f backend.Finding, act *backend.Action) {
	f.ID = fmt.Sprintf("%s-%d", f.ID, len(a.report.Findings)+1)
	a.report.Findings = append(a.report.Findings, f)
	if act == nil {
		return
	}
	g, ok := a.groups[group]
	if !ok {
		g = &backend.ActionGroup{ID: group, Title: groupTitles[group]}
		a.groups[group] = g
		a.order = append(a.order, group)
	}
	g.Actions = append(g.Actions, *act)
	a.report.Actions = append(a.report.Actions, *act)
}

func createFile(path, content string) *backend.Action {
	return &backend.Action{Kind: backend.KindCreateFile, Path: path, Content: &content}
}

func (a *analysis) checkProjectFiles(root string) {
	entries, _ := os.ReadDir(root)
	has := func(names ...string) bool {
		for _, e := range entries {
			for _, n := range names {
				if strings.EqualFold(e.Name(), n) {
					return true
				}
			}
		}
		return false
	}
	name := filepath.Base(root)

	if !has("README", "README.md", "README.txt", "README.rst") {
		a.add(GroupDocs, backend.Finding{
			ID: "missing-readme", Severity: "warning", Title: "No README",
			Detail: "The project has no README describing what it is or how to build it.",
		}, createFile("README.md", fmt.Sprintf("# %s\n", name)))
	}
	if !has("LICENSE", "LICENSE.md", "LICENSE.txt", "COPYING") {
		a.add(GroupDocs, backend.Finding{
			ID: "missing-license", Severity: "info", Title: "No license file",
			Detail: "Without a license others cannot legally reuse the code.",
		}, nil)
		a.report.Recommendations = append(a.report.Recommendations, backend.Recommendation{
			ID: "choose-license", Title: "Choose a license",
			Detail: "Pick a license and add it as LICENSE at the project root.",
		})
	}
	if !has(".gitignore") {
		a.add(GroupHygiene, backend.Finding{
			ID: "missing-gitignore", Severity: "warning", Title: "No .gitignore",
			Detail: "Build output and local files may be committed by accident.",
		}, createFile(".gitignore", gitignoreFor(has)))
	}
	if !has(".editorconfig") {
		a.add(GroupHygiene, backend.Finding{
			ID: "missing-editorconfig", Severity: "info", Title: "No .editorconfig",
			Detail: "Editors will not agree on indentation and line endings.",
		}, createFile(".editorconfig", editorconfig))
	}
	if has("go.mod") && !has("Makefile") {
		a.report.Recommendations = append(a.report.Recommendations, backend.Recommendation{
			ID: "add-verify-checks", Title: "Configure verify checks",
			Detail: "Add go build, go vet and go test to the verify list in fixfactory.yaml.",
		})
	}
}

const editorconfig = `root = true

[*]
end_of_line = lf
insert_final_newline = true
charset = utf-8
`

func gitignoreFor(has func(...string) bool) string {
	var b strings.Builder
	b.WriteString(".DS_Store\n*.log\n.env\n")
	if has("go.mod") {
		b.WriteString("/bin/\n*.test\n*.out\n")
	}
	if has("package.json") {
		b.WriteString("node_modules/\ndist/\n")
	}
	if has("pyproject.toml", "requirements.txt", "setup.py") {
		b.WriteString("__pycache__/\n.venv/\n")
	}
	return b.String()
}

func (a *analysis) walk(ctx context.Context, root string, policy *Policy) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, _ := filepath.Rel(root, p)
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if skipDirs[d.Name()] || policy.Violation(rel) != "" {
				return filepath.SkipDir
			}
			a.checkEmptyDir(p, rel)
			return nil
		}
		if !d.Type().IsRegular() || policy.Violation(rel) != "" {
			return nil
		}
		a.files++
		if a.files > maxScanFiles {
			return filepath.SkipAll
		}
		a.checkLineEndings(p, rel)
		return nil
	})
}

func (a *analysis) checkEmptyDir(abs, rel string) {
	entries, err := os.ReadDir(abs)
	if err != nil || len(entries) > 0 {
		return
	}
	a.add(GroupCleanup, backend.Finding{
		ID: "empty-dir", Severity: "info", Title: "Empty directory", Path: rel,
	}, &backend.Action{Kind: backend.KindDeleteDir, Path: rel})
}

func (a *analysis) checkLineEndings(abs, rel string) {
	info, err := os.Stat(abs)
	if err != nil || info.Size() == 0 || info.Size() > maxScanBytes {
		return
	}
	data, err := os.ReadFile(abs)
	if err != nil || bytes.IndexByte(data, 0) >= 0 || !utf8.Valid(data) {
		return
	}
	crlf := bytes.Contains(data, []byte("\r\n"))
	noEOL := data[len(data)-1] != '\n'
	if !crlf && !noEOL {
		return
	}

	fixed := bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	if fixed[len(fixed)-1] != '\n' {
		fixed = append(fixed, '\n')
	}
	var problems []string
	if crlf {
		problems = append(problems, "CRLF line endings")
	}
	if noEOL {
		problems = append(problems, "no final newline")
	}
	content := string(fixed)
	a.add(GroupNormalize, backend.Finding{
		ID: "line-endings", Severity: "info", Title: strings.Join(problems, " and "), Path: rel,
	}, &backend.Action{Kind: backend.KindUpdateFile, Path: rel, Content: &content})
}

// finish materialises groups and packs in a stable order.
func (a *analysis) finish() {
	for _, id := range a.order {
		g := a.groups[id]
		g.Description = fmt.Sprintf("%d actions", len(g.Actions))
		a.report.ActionGroups = append(a.report.ActionGroups, *g)
	}

	pack := func(id, title, desc string, groups ...string) {
		var present []string
		for _, g := range groups {
			if _, ok := a.groups[g]; ok {
				present = append(present, g)
			}
		}
		if len(present) == 0 {
			return
		}
		a.report.FixPacks = append(a.report.FixPacks, backend.FixPack{ID: id, Title: title, Description: desc, GroupIDs: present})
	}
	pack(PackEssentials, "Project essentials", "Documentation and repository hygiene files", GroupDocs, GroupHygiene)
	pack(PackTidy, "Tidy up", "Line endings and empty directories", GroupNormalize, GroupCleanup)

	for _, p := range a.report.FixPacks {
		if p.ID == PackEssentials {
			a.report.RecommendedPackIDs = []string{PackEssentials}
		}
	}
	sort.SliceStable(a.report.Findings, func(i, j int) bool {
		return severityRank(a.report.Findings[i].Severity) < severityRank(a.report.Findings[j].Severity)
	})
}

func severityRank(s string) int {
	switch s {
	case "error":
		return 0
	case "warning":
		return 1
	}
	return 2
}
