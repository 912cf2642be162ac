package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lucasnoah/fixfactory/internal/backend"
)

func newTestClient(url string) *Client {
	c := New(url, 5*time.Second, nil)
	c.Backoff = time.Millisecond
	return c
}

func TestAnalyzeProject(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/analyze" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var req analyzeRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotPath = req.Path
		json.NewEncoder(w).Encode(backend.AnalyzeReport{
			Path:     req.Path,
			Findings: []backend.Finding{{ID: "f1", Severity: "warning", Title: "No README"}},
			Actions:  []backend.Action{{Kind: backend.KindCreateDir, Path: "docs"}},
		})
	}))
	defer srv.Close()

	report, err := newTestClient(srv.URL+"/").AnalyzeProject(context.Background(), "/work/app")
	if err != nil {
		t.Fatalf("AnalyzeProject: %v", err)
	}
	if gotPath != "/work/app" {
		t.Errorf("server saw path %q", gotPath)
	}
	if report.Path != "/work/app" || len(report.Findings) != 1 || len(report.Actions) != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestGenerateActionsSendsModeAndReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		if req.Mode != backend.GenerateSafe || req.Report == nil || req.Report.Path != "/p" {
			t.Errorf("request = %+v", req)
		}
		w.Write([]byte(`{"ok":true,"actions":null,"skipped":[{"path":"a","reason":"r"}]}`))
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).GenerateActionsFromReport(context.Background(), "/p",
		&backend.AnalyzeReport{Path: "/p"}, backend.GenerateSafe)
	if err != nil {
		t.Fatalf("GenerateActionsFromReport: %v", err)
	}
	if !res.OK || res.Actions == nil || len(res.Skipped) != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestProposeActions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/actions/propose" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req backend.ProposeRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(backend.ProposeResult{
			OK:      true,
			Summary: "plan for " + req.Goal,
			Actions: []backend.Action{{Kind: backend.KindCreateDir, Path: "x"}},
		})
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).ProposeActions(context.Background(), backend.ProposeRequest{Path: "/p", Goal: "docs"})
	if err != nil {
		t.Fatalf("ProposeActions: %v", err)
	}
	if res.Summary != "plan for docs" || len(res.Actions) != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "overloaded", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"path":"/p"}`))
	}))
	defer srv.Close()

	report, err := newTestClient(srv.URL).AnalyzeProject(context.Background(), "/p")
	if err != nil {
		t.Fatalf("AnalyzeProject: %v", err)
	}
	if report.Path != "/p" || calls.Load() != 3 {
		t.Errorf("report = %+v after %d calls", report, calls.Load())
	}
}

func TestGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).AnalyzeProject(context.Background(), "/p")
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusServiceUnavailable {
		t.Fatalf("err = %v, want 503 StatusError", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 1 + 2 retries", calls.Load())
	}
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"path is not a project"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).AnalyzeProject(context.Background(), "/p")
	var se *StatusError
	if !errors.As(err, &se) || se.Message != "path is not a project" {
		t.Fatalf("err = %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newTestClient(url)
	c.Retries = 0
	_, err := c.AnalyzeProject(context.Background(), "/p")
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("err = %v, want ErrNetwork", err)
	}
}

func TestNoTimeoutByDefault(t *testing.T) {
	if c := New("http://localhost:1", 0, nil); c.httpClient.Timeout != 0 {
		t.Errorf("Timeout = %s, want none", c.httpClient.Timeout)
	}
	if c := New("http://localhost:1", 2*time.Minute, nil); c.httpClient.Timeout != 2*time.Minute {
		t.Errorf("Timeout = %s, want 2m", c.httpClient.Timeout)
	}
}
