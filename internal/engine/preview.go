package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/lucasnoah/fixfactory/internal/backend"
)

// PreviewActions describes what applying actions to root would do without
// touching the filesystem. Actions that apply would refuse are flagged
// Blocked with a reason; none are dropped.
func (e *Engine) PreviewActions(ctx context.Context, root string, actions []backend.Action) (*backend.PreviewResult, error) {
	root, err := resolveRoot(root)
	if err != nil {
		return nil, err
	}
	res := &backend.PreviewResult{Diffs: make([]backend.DiffItem, 0, len(actions))}
	for _, a := range actions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res.Diffs = append(res.Diffs, e.previewOne(root, a))
	}
	return res, nil
}

func (e *Engine) previewOne(root string, a backend.Action) backend.DiffItem {
	d := backend.DiffItem{Kind: backend.DiffKindFor(a.Kind), Path: a.Path, After: a.Content}
	block := func(reason string) backend.DiffItem {
		d.Blocked = true
		d.BlockReason = reason
		if d.Summary == "" {
			d.Summary = "blocked: " + reason
		}
		return d
	}

	if reason := e.policy.Violation(a.Path); reason != "" {
		return block(reason)
	}
	if !a.Kind.Valid() {
		return block(fmt.Sprintf("unknown action kind %q", a.Kind))
	}
	rel, _ := CleanRel(a.Path)
	cur, err := capture(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return block(err.Error())
	}
	if cur.Kind == EntryFile {
		before := string(cur.Content)
		d.Before = &before
	}

	switch a.Kind {
	case backend.KindCreateFile:
		if a.Content == nil {
			return block("missing content")
		}
		if cur.Kind != EntryAbsent {
			return block("already exists")
		}
		d.Summary = fmt.Sprintf("create %s (%d lines)", rel, countLines(*a.Content))
	case backend.KindUpdateFile:
		if a.Content == nil {
			return block("missing content")
		}
		if cur.Kind != EntryFile {
			return block("no such file")
		}
		d.Summary = fmt.Sprintf("update %s (%s)", rel, lineDelta(*d.Before, *a.Content))
	case backend.KindDeleteFile:
		if cur.Kind != EntryFile {
			return block("no such file")
		}
		d.Summary = fmt.Sprintf("delete %s (%d lines)", rel, countLines(*d.Before))
	case backend.KindCreateDir:
		switch cur.Kind {
		case EntryDir:
			d.Summary = fmt.Sprintf("directory %s already exists", rel)
		case EntryFile:
			return block("a file is in the way")
		default:
			d.Summary = fmt.Sprintf("create directory %s", rel)
		}
	case backend.KindDeleteDir:
		if cur.Kind != EntryDir {
			return block("no such directory")
		}
		entries, err := os.ReadDir(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return block(err.Error())
		}
		if len(entries) > 0 {
			return block("directory not empty")
		}
		d.Summary = fmt.Sprintf("remove directory %s", rel)
	}
	return d
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

// lineDelta summarises a line-level diff as "+a -b lines".
func lineDelta(before, after string) string {
	if before == after {
		return "no changes"
	}
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var added, removed int
	for _, df := range diffs {
		switch df.Type {
		case diffmatchpatch.DiffInsert:
			added += countLines(df.Text)
		case diffmatchpatch.DiffDelete:
			removed += countLines(df.Text)
		}
	}
	return fmt.Sprintf("+%d -%d lines", added, removed)
}
