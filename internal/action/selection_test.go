package action

import (
	"testing"

	"github.com/lucasnoah/fixfactory/internal/backend"
)

func str(s string) *string { return &s }

func testReport() *backend.AnalyzeReport {
	readme := backend.Action{Kind: backend.KindCreateFile, Path: "README.md", Content: str("# app\n")}
	license := backend.Action{Kind: backend.KindCreateFile, Path: "LICENSE", Content: str("MIT\n")}
	gitignore := backend.Action{Kind: backend.KindUpdateFile, Path: ".gitignore", Content: str("node_modules\n")}
	ci := backend.Action{Kind: backend.KindCreateDir, Path: ".github/workflows"}
	return &backend.AnalyzeReport{
		Path:    "/tmp/app",
		Actions: []backend.Action{readme, license},
		ActionGroups: []backend.ActionGroup{
			{ID: "docs", Title: "Docs", Actions: []backend.Action{readme, license}},
			{ID: "hygiene", Title: "Hygiene", Actions: []backend.Action{gitignore, readme}},
			{ID: "ci", Title: "CI", Actions: []backend.Action{ci}},
		},
		FixPacks: []backend.FixPack{
			{ID: "starter", Title: "Starter", GroupIDs: []string{"docs", "hygiene"}},
			{ID: "broken", Title: "Broken", GroupIDs: []string{"missing"}},
		},
		RecommendedPackIDs: []string{"starter"},
	}
}

func TestNewSelectionEmpty(t *testing.T) {
	s := NewSelection(testReport())
	if !s.IsEmpty() {
		t.Error("new selection should be empty")
	}
	if got := s.Selected(); len(got) != 0 {
		t.Errorf("Selected() = %v, want none", got)
	}

	nilSel := NewSelection(nil)
	if !nilSel.IsEmpty() {
		t.Error("selection over nil report should be empty")
	}
}

func TestToggle(t *testing.T) {
	s := NewSelection(testReport())
	a := backend.Action{Kind: backend.KindCreateFile, Path: "LICENSE", Content: str("MIT\n")}

	if !s.Toggle(a) {
		t.Fatal("first Toggle should select")
	}
	if !s.IsSelected(a) {
		t.Error("IsSelected = false after Toggle")
	}
	if s.Toggle(a) {
		t.Fatal("second Toggle should deselect")
	}
	if !s.IsEmpty() {
		t.Error("selection should be empty after toggling twice")
	}
	if s.Revision() != 2 {
		t.Errorf("Revision = %d, want 2", s.Revision())
	}
}

func TestSelectedKeepsProposalOrder(t *testing.T) {
	s := NewSelection(testReport())
	if err := s.SelectGroup("ci"); err != nil {
		t.Fatalf("SelectGroup: %v", err)
	}
	if err := s.SelectGroup("docs"); err != nil {
		t.Fatalf("SelectGroup: %v", err)
	}

	got := s.Selected()
	want := []string{"README.md", "LICENSE", ".github/workflows"}
	if len(got) != len(want) {
		t.Fatalf("Selected() has %d actions, want %d", len(got), len(want))
	}
	for i, p := range want {
		if got[i].Path != p {
			t.Errorf("Selected()[%d].Path = %q, want %q", i, got[i].Path, p)
		}
	}
}

func TestSelectedReturnsCopies(t *testing.T) {
	s := NewSelection(testReport())
	_ = s.SelectGroup("docs")

	got := s.Selected()
	*got[0].Content = "mutated"

	again := s.Selected()
	if *again[0].Content != "# app\n" {
		t.Errorf("content = %q, selection was mutated through a returned action", *again[0].Content)
	}
}

func TestSelectPackDeduplicates(t *testing.T) {
	s := NewSelection(testReport())

	actions, err := s.PackActions("starter")
	if err != nil {
		t.Fatalf("PackActions: %v", err)
	}
	// docs(README, LICENSE) + hygiene(.gitignore, README) -> README once.
	if len(actions) != 3 {
		t.Fatalf("PackActions has %d actions, want 3", len(actions))
	}
	seen := make(map[backend.ActionKey]int)
	for _, a := range actions {
		seen[a.Key()]++
	}
	for k, n := range seen {
		if n != 1 {
			t.Errorf("%s appears %d times", k, n)
		}
	}

	if err := s.SelectPack("starter"); err != nil {
		t.Fatalf("SelectPack: %v", err)
	}
	if s.Len() != 3 {
		t.Errorf("Len = %d, want 3", s.Len())
	}

	if err := s.DeselectPack("starter"); err != nil {
		t.Fatalf("DeselectPack: %v", err)
	}
	if !s.IsEmpty() {
		t.Error("selection should be empty after DeselectPack")
	}
}

func TestSelectPackUnknown(t *testing.T) {
	s := NewSelection(testReport())
	if err := s.SelectPack("nope"); err == nil {
		t.Error("expected error for unknown pack")
	}
	if err := s.SelectPack("broken"); err == nil {
		t.Error("expected error for pack referencing unknown group")
	}
	if err := s.SelectGroup("nope"); err == nil {
		t.Error("expected error for unknown group")
	}
	if !s.IsEmpty() {
		t.Error("failed selections must not change state")
	}
}

func TestSelectRecommended(t *testing.T) {
	r := testReport()
	s := NewSelection(r)
	if err := s.SelectRecommended(r.RecommendedPackIDs); err != nil {
		t.Fatalf("SelectRecommended: %v", err)
	}
	if s.Len() != 3 {
		t.Errorf("Len = %d, want 3", s.Len())
	}
}

func TestRevisionOnlyCountsEffectiveChanges(t *testing.T) {
	s := NewSelection(testReport())
	_ = s.SelectGroup("docs")
	rev := s.Revision()

	_ = s.SelectGroup("docs")
	if s.Revision() != rev {
		t.Errorf("Revision = %d after no-op select, want %d", s.Revision(), rev)
	}
}

func TestRestoreAndReset(t *testing.T) {
	r := testReport()
	s := NewSelection(r)
	_ = s.SelectGroup("hygiene")
	keys := s.SelectedKeys()

	other := NewSelection(r)
	other.Restore(append(keys, backend.ActionKey{Kind: backend.KindDeleteFile, Path: "ghost"}))
	if other.Len() != 2 {
		t.Errorf("restored Len = %d, want 2", other.Len())
	}

	rev := other.Revision()
	other.Reset(nil)
	if !other.IsEmpty() {
		t.Error("Reset should clear the selection")
	}
	if other.Revision() <= rev {
		t.Errorf("Revision = %d after Reset, want > %d", other.Revision(), rev)
	}
}

func TestGroupsKeepReportOrder(t *testing.T) {
	for i := 0; i < 20; i++ {
		groups := NewSelection(testReport()).Groups()
		if len(groups) != 3 {
			t.Fatalf("len(Groups()) = %d, want 3", len(groups))
		}
		if groups[0].ID != "docs" || groups[1].ID != "hygiene" || groups[2].ID != "ci" {
			t.Fatalf("Groups() order = %s, %s, %s; want docs, hygiene, ci", groups[0].ID, groups[1].ID, groups[2].ID)
		}
	}
}
