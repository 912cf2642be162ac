package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/lucasnoah/fixfactory/internal/state"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps orchestration errors onto HTTP statuses.
func statusFor(err error) int {
	if errors.Is(err, state.ErrBusy) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func decode(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Store.Snapshot())
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	if s.deps.Projects == nil {
		writeError(w, http.StatusNotFound, errors.New("no project store configured"))
		return
	}
	projects, err := s.deps.Projects.ListProjects(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Projects == nil {
		writeError(w, http.StatusNotFound, errors.New("no project store configured"))
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid project id"))
		return
	}
	events, err := s.deps.Projects.ListSessions(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

type analyzeBody struct {
	Path string `json:"path"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var body analyzeBody
	if err := decode(r, &body); err != nil || body.Path == "" {
		writeError(w, http.StatusBadRequest, errors.New("body must be {\"path\": ...}"))
		return
	}
	report, err := s.deps.Orch.Analyze(r.Context(), body.Path)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type agenticBody struct {
	Path        string `json:"path"`
	Goal        string `json:"goal"`
	AutoCheck   *bool  `json:"auto_check,omitempty"`
	MaxAttempts int    `json:"max_attempts,omitempty"`
	MaxActions  int    `json:"max_actions,omitempty"`
}

func (s *Server) handleAgentic(w http.ResponseWriter, r *http.Request) {
	var body agenticBody
	if err := decode(r, &body); err != nil || body.Path == "" || body.Goal == "" {
		writeError(w, http.StatusBadRequest, errors.New("body must include path and goal"))
		return
	}
	cons := s.deps.Constraints
	if body.AutoCheck != nil {
		cons.AutoCheck = *body.AutoCheck
	}
	if body.MaxAttempts > 0 {
		cons.MaxAttempts = body.MaxAttempts
	}
	if body.MaxActions > 0 {
		cons.MaxActions = body.MaxActions
	}

	res, err := s.deps.Agentic.Run(r.Context(), body.Path, body.Goal, cons)
	if err != nil {
		s.log.Warn("agentic run over http failed", zap.String("path", body.Path), zap.Error(err))
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type commandResponse struct {
	OK            bool `json:"ok"`
	UndoAvailable bool `json:"undo_available"`
	RedoAvailable bool `json:"redo_available"`
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, s.deps.Undo.Undo)
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, s.deps.Undo.Redo)
}

func (s *Server) command(w http.ResponseWriter, r *http.Request, run func(context.Context) (bool, error)) {
	ok, err := run(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	snap := s.deps.Store.Snapshot()
	writeJSON(w, http.StatusOK, commandResponse{OK: ok, UndoAvailable: snap.UndoAvailable, RedoAvailable: snap.RedoAvailable})
}
