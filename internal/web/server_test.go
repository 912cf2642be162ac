package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/lucasnoah/fixfactory/internal/agentic"
	"github.com/lucasnoah/fixfactory/internal/backend"
	"github.com/lucasnoah/fixfactory/internal/db"
	"github.com/lucasnoah/fixfactory/internal/engine"
	"github.com/lucasnoah/fixfactory/internal/events"
	"github.com/lucasnoah/fixfactory/internal/orchestrator"
	"github.com/lucasnoah/fixfactory/internal/state"
)

type fixture struct {
	srv   *httptest.Server
	store *state.Store
	db    *db.DB
}

func newFixture(t *testing.T, withProjects bool) *fixture {
	t.Helper()
	eng, err := engine.New(engine.Options{StateDir: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	store := state.NewStore(events.NewBus())
	f := &fixture{store: store}

	deps := Deps{
		Store:       store,
		Orch:        orchestrator.New(eng, eng, store, nil),
		Undo:        orchestrator.NewUndoController(eng, store, nil),
		Constraints: backend.Constraints{MaxAttempts: 2, MaxActions: 10},
	}
	var projects backend.Projects
	if withProjects {
		d, err := db.Open(":memory:")
		if err != nil {
			t.Fatalf("db.Open: %v", err)
		}
		if err := d.Migrate(); err != nil {
			t.Fatalf("Migrate: %v", err)
		}
		t.Cleanup(func() { d.Close() })
		f.db = d
		projects = d
		deps.Projects = d
	}
	deps.Agentic = agentic.New(eng, projects, store, nil)

	f.srv = httptest.NewServer(NewServer(deps, "", nil))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, _ := json.Marshal(body)
	resp, err := http.Post(f.srv.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestState(t *testing.T) {
	f := newFixture(t, false)
	f.store.Say("hello")

	resp := f.get(t, "/api/state")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var st state.State
	decodeBody(t, resp, &st)
	if len(st.Transcript) != 1 || st.Transcript[0].Text != "hello" {
		t.Errorf("transcript = %+v", st.Transcript)
	}
}

func TestProjectsWithoutStore(t *testing.T) {
	f := newFixture(t, false)
	if resp := f.get(t, "/api/projects"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestProjectsAndSessions(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	p, err := f.db.AddProject(ctx, "/work/app")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.db.AppendSessionEvent(ctx, p.ID, "note", "user", "first"); err != nil {
		t.Fatal(err)
	}

	var projects []backend.Project
	decodeBody(t, f.get(t, "/api/projects"), &projects)
	if len(projects) != 1 || projects[0].Path != "/work/app" {
		t.Errorf("projects = %+v", projects)
	}

	var sessions []backend.SessionEvent
	decodeBody(t, f.get(t, "/api/projects/"+strconv.FormatInt(p.ID, 10)+"/sessions"), &sessions)
	if len(sessions) != 1 || sessions[0].Text != "first" {
		t.Errorf("sessions = %+v", sessions)
	}

	if resp := f.get(t, "/api/projects/abc/sessions"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", resp.StatusCode)
	}
}

func TestAnalyze(t *testing.T) {
	f := newFixture(t, false)
	root := t.TempDir()

	resp := f.post(t, "/api/analyze", map[string]string{"path": root})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var report backend.AnalyzeReport
	decodeBody(t, resp, &report)
	if len(report.Actions) == 0 {
		t.Error("expected actions for an empty project")
	}
	if f.store.Snapshot().Path != root {
		t.Errorf("state path = %q", f.store.Snapshot().Path)
	}

	if resp := f.post(t, "/api/analyze", map[string]string{}); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty body status = %d, want 400", resp.StatusCode)
	}
	if resp := f.get(t, "/api/analyze"); resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", resp.StatusCode)
	}
}

func TestAgenticThenUndo(t *testing.T) {
	f := newFixture(t, true)
	root := t.TempDir()

	resp := f.post(t, "/api/agentic", map[string]string{"path": root, "goal": "add a readme"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var res backend.AgenticRunResult
	decodeBody(t, resp, &res)
	if !res.Succeeded() {
		t.Fatalf("run = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(root, "README.md")); err != nil {
		t.Fatalf("README.md not written: %v", err)
	}

	p, err := f.db.FindProject(context.Background(), root)
	if err != nil {
		t.Fatalf("FindProject: %v", err)
	}
	sessions, _ := f.db.ListSessions(context.Background(), p.ID)
	if len(sessions) != 1 || sessions[0].Kind != "agentic" {
		t.Errorf("sessions = %+v", sessions)
	}

	var undo commandResponse
	decodeBody(t, f.post(t, "/api/undo", nil), &undo)
	if !undo.OK || undo.UndoAvailable || !undo.RedoAvailable {
		t.Errorf("undo = %+v", undo)
	}
	if _, err := os.Stat(filepath.Join(root, "README.md")); !os.IsNotExist(err) {
		t.Error("README.md should be removed by undo")
	}

	var redo commandResponse
	decodeBody(t, f.post(t, "/api/redo", nil), &redo)
	if !redo.OK || !redo.UndoAvailable || redo.RedoAvailable {
		t.Errorf("redo = %+v", redo)
	}
}

func TestAgenticRequiresGoal(t *testing.T) {
	f := newFixture(t, false)
	if resp := f.post(t, "/api/agentic", map[string]string{"path": "/x"}); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestEventsStream(t *testing.T) {
	f := newFixture(t, false)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, f.srv.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /api/events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	lines := bufio.NewScanner(resp.Body)
	if !lines.Scan() || lines.Text() != ": connected" {
		t.Fatalf("first line = %q", lines.Text())
	}

	f.store.Bus().Publish(events.Event{
		Topic:    events.TopicProgress,
		Progress: backend.ProgressEvent{Stage: backend.StageVerify, Message: "verifying", Attempt: 2},
	})

	var event, data string
	for lines.Scan() {
		line := lines.Text()
		if strings.HasPrefix(line, "event: ") {
			event = strings.TrimPrefix(line, "event: ")
		}
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	if event != "agentic_progress" {
		t.Errorf("event = %q", event)
	}
	var payload streamEvent
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		t.Fatalf("data %q: %v", data, err)
	}
	if payload.Progress == nil || payload.Progress.Stage != backend.StageVerify || payload.Progress.Attempt != 2 {
		t.Errorf("payload = %+v", payload)
	}
}
