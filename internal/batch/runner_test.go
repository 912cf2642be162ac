package batch

import (
	"context"
	"errors"
	"testing"

	"github.com/lucasnoah/fixfactory/internal/backend"
	"github.com/lucasnoah/fixfactory/internal/orchestrator"
)

func str(s string) *string { return &s }

// --- Mocks ---

type mockAnalyzer struct {
	fail map[string]bool
}

func (m *mockAnalyzer) AnalyzeProject(_ context.Context, path string) (*backend.AnalyzeReport, error) {
	if m.fail[path] {
		return nil, errors.New("not a project")
	}
	return &backend.AnalyzeReport{
		Path:    path,
		Actions: []backend.Action{{Kind: backend.KindCreateFile, Path: "README.md", Content: str("# " + path)}},
	}, nil
}

type mockPreviewer struct {
	fail map[string]bool
}

func (m *mockPreviewer) PreviewActions(_ context.Context, path string, actions []backend.Action) (*backend.PreviewResult, error) {
	if m.fail[path] {
		return nil, errors.New("preview crashed")
	}
	res := &backend.PreviewResult{}
	for _, a := range actions {
		res.Diffs = append(res.Diffs, backend.DiffItem{Kind: backend.DiffKindFor(a.Kind), Path: a.Path, After: a.Content, Summary: a.Path})
	}
	return res, nil
}

type mockApplier struct {
	reqs []orchestrator.ApplyRequest
}

func (m *mockApplier) Apply(_ context.Context, req orchestrator.ApplyRequest) *orchestrator.Outcome {
	m.reqs = append(m.reqs, req)
	return &orchestrator.Outcome{Kind: backend.OutcomeApplied}
}

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var tr Tracker
	var evs []Event
	for e := range ch {
		if err := tr.Observe(e); err != nil {
			t.Errorf("order violation: %v", err)
		}
		evs = append(evs, e)
	}
	return evs
}

func kinds(evs []Event) []string {
	var out []string
	for _, e := range evs {
		out = append(out, e.Path+":"+string(e.Kind))
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRunOrderedStream(t *testing.T) {
	ap := &mockApplier{}
	r := NewRunner(&mockAnalyzer{}, &mockPreviewer{}, ap, nil)

	evs := collect(t, r.Run(context.Background(), Request{
		Paths:         []string{"/a", "/b"},
		ConfirmApply:  true,
		UserConfirmed: true,
		AutoCheck:     true,
		Attachments:   []string{"notes.md"},
	}))

	want := []string{"/a:report", "/a:preview", "/a:apply", "/b:report", "/b:preview", "/b:apply", ":done"}
	if got := kinds(evs); !equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	for i, e := range evs {
		if e.Seq != i+1 {
			t.Errorf("event %d Seq = %d", i, e.Seq)
		}
	}
	if len(evs[0].Attachments) != 1 {
		t.Errorf("report attachments = %v", evs[0].Attachments)
	}
	if len(ap.reqs) != 2 {
		t.Fatalf("apply calls = %d, want 2", len(ap.reqs))
	}
	for _, req := range ap.reqs {
		if !req.UserConfirmed || !req.AutoCheck {
			t.Errorf("apply request = %+v", req)
		}
	}
}

func TestRunFailureIsolatedToPath(t *testing.T) {
	ap := &mockApplier{}
	r := NewRunner(&mockAnalyzer{fail: map[string]bool{"/a": true}}, &mockPreviewer{fail: map[string]bool{"/b": true}}, ap, nil)

	evs := collect(t, r.Run(context.Background(), Request{
		Paths:         []string{"/a", "/b", "/c"},
		ConfirmApply:  true,
		UserConfirmed: true,
	}))

	want := []string{"/a:error", "/b:report", "/b:error", "/c:report", "/c:preview", "/c:apply", ":done"}
	if got := kinds(evs); !equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if evs[0].Error == "" {
		t.Error("error event should carry a message")
	}
	if len(ap.reqs) != 1 || ap.reqs[0].Path != "/c" {
		t.Errorf("apply requests = %+v", ap.reqs)
	}
}

func TestRunPreviewOnly(t *testing.T) {
	ap := &mockApplier{}
	r := NewRunner(&mockAnalyzer{}, &mockPreviewer{}, ap, nil)
	evs := collect(t, r.Run(context.Background(), Request{Paths: []string{"/a"}}))

	want := []string{"/a:report", "/a:preview", ":done"}
	if got := kinds(evs); !equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if len(ap.reqs) != 0 {
		t.Error("apply must not run without ConfirmApply")
	}
}

func TestRunNeverAppliesUnconfirmed(t *testing.T) {
	ap := &mockApplier{}
	r := NewRunner(&mockAnalyzer{}, &mockPreviewer{}, ap, nil)
	evs := collect(t, r.Run(context.Background(), Request{Paths: []string{"/a"}, ConfirmApply: true}))

	if len(ap.reqs) != 0 {
		t.Fatal("apply was called without user confirmation")
	}
	last := evs[len(evs)-2]
	if last.Kind != EventError || !errors.Is(last.Err, ErrConfirmationRequired) {
		t.Errorf("event = %+v, want confirmation error", last)
	}
}

func TestRunSelectedActionsOverrideReport(t *testing.T) {
	ap := &mockApplier{}
	r := NewRunner(&mockAnalyzer{}, &mockPreviewer{}, ap, nil)
	selected := []backend.Action{{Kind: backend.KindCreateDir, Path: "docs"}}
	collect(t, r.Run(context.Background(), Request{
		Paths:           []string{"/a"},
		ConfirmApply:    true,
		UserConfirmed:   true,
		SelectedActions: selected,
	}))
	if len(ap.reqs) != 1 || len(ap.reqs[0].Actions) != 1 || ap.reqs[0].Actions[0].Path != "docs" {
		t.Errorf("apply requests = %+v", ap.reqs)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunner(&mockAnalyzer{}, &mockPreviewer{}, &mockApplier{}, nil)
	ch := r.Run(ctx, Request{Paths: []string{"/a", "/b"}})
	<-ch
	cancel()
	for range ch {
	}
}

func TestTrackerRejectsOutOfOrder(t *testing.T) {
	var tr Tracker
	if err := tr.Observe(Event{Kind: EventPreview, Path: "/a"}); err == nil {
		t.Error("preview before report accepted")
	}
	var tr2 Tracker
	_ = tr2.Observe(Event{Kind: EventReport, Path: "/a"})
	if err := tr2.Observe(Event{Kind: EventApply, Path: "/a"}); err == nil {
		t.Error("apply before preview accepted")
	}
}
