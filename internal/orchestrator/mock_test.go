package orchestrator

import (
	"context"
	"errors"
	"sync"

	"github.com/lucasnoah/fixfactory/internal/backend"
)

func str(s string) *string { return &s }

// --- Mock backend ---

type applyCall struct {
	Path    string
	Actions []backend.Action
	Opts    backend.ApplyOptions
}

type mockBackend struct {
	mu sync.Mutex

	report     *backend.AnalyzeReport
	analyzeErr error

	diffs      []backend.DiffItem
	previewErr error

	applyResult *backend.ApplyTxResult
	applyErr    error
	applyGate   chan struct{} // when set, ApplyActionsTx blocks until closed
	applyCalls  []applyCall

	verifyResult *backend.VerifyResult

	undoTxOK    bool
	undoTxErr   error
	undoTxCalls int
	undoLast    *backend.CommandResult
	undoLastErr error
	undoCalls   int
	redoLast    *backend.CommandResult
	redoCalls   int

	general    *backend.UndoRedoState
	generalErr error
	status     *backend.UndoStatus
	statusErr  error
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		applyResult:  &backend.ApplyTxResult{OK: true, Applied: true, TxID: "tx-1"},
		verifyResult: &backend.VerifyResult{OK: true},
		undoLast:     &backend.CommandResult{OK: true},
		redoLast:     &backend.CommandResult{OK: true},
		general:      &backend.UndoRedoState{},
		status:       &backend.UndoStatus{},
	}
}

func (m *mockBackend) AnalyzeProject(_ context.Context, path string) (*backend.AnalyzeReport, error) {
	if m.analyzeErr != nil {
		return nil, m.analyzeErr
	}
	return m.report, nil
}

func (m *mockBackend) PreviewActions(_ context.Context, _ string, actions []backend.Action) (*backend.PreviewResult, error) {
	if m.previewErr != nil {
		return nil, m.previewErr
	}
	if m.diffs != nil {
		return &backend.PreviewResult{Diffs: m.diffs}, nil
	}
	res := &backend.PreviewResult{}
	for _, a := range actions {
		res.Diffs = append(res.Diffs, backend.DiffItem{Kind: backend.DiffKindFor(a.Kind), Path: a.Path, After: a.Content, Summary: string(a.Kind) + " " + a.Path})
	}
	return res, nil
}

func (m *mockBackend) ApplyActionsTx(_ context.Context, path string, actions []backend.Action, opts backend.ApplyOptions) (*backend.ApplyTxResult, error) {
	m.mu.Lock()
	m.applyCalls = append(m.applyCalls, applyCall{Path: path, Actions: actions, Opts: opts})
	gate := m.applyGate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if m.applyErr != nil {
		return nil, m.applyErr
	}
	if !opts.UserConfirmed {
		return &backend.ApplyTxResult{OK: false, ErrorCode: backend.CodeConfirmRequired, Error: "confirmation required"}, nil
	}
	return m.applyResult, nil
}

func (m *mockBackend) calls() []applyCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]applyCall(nil), m.applyCalls...)
}

func (m *mockBackend) Verify(context.Context, string) (*backend.VerifyResult, error) {
	return m.verifyResult, nil
}

func (m *mockBackend) UndoLastTx(context.Context, string) (bool, error) {
	m.undoTxCalls++
	return m.undoTxOK, m.undoTxErr
}

func (m *mockBackend) UndoLast(context.Context) (*backend.CommandResult, error) {
	m.undoCalls++
	return m.undoLast, m.undoLastErr
}

func (m *mockBackend) RedoLast(context.Context) (*backend.CommandResult, error) {
	m.redoCalls++
	return m.redoLast, nil
}

func (m *mockBackend) GetUndoRedoState(context.Context) (*backend.UndoRedoState, error) {
	return m.general, m.generalErr
}

func (m *mockBackend) GetUndoStatus(context.Context, string) (*backend.UndoStatus, error) {
	return m.status, m.statusErr
}

var errTransport = errors.New("connection refused")

func testReport() *backend.AnalyzeReport {
	return &backend.AnalyzeReport{
		Path: "/proj",
		Findings: []backend.Finding{
			{ID: "f1", Severity: "warn", Title: "No README"},
		},
		Actions: []backend.Action{
			{Kind: backend.KindCreateFile, Path: "README.md", Content: str("# proj\n")},
			{Kind: backend.KindCreateFile, Path: "LICENSE", Content: str("MIT\n")},
			{Kind: backend.KindCreateDir, Path: "docs"},
		},
	}
}
