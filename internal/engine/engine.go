// Package engine is the local backend: it previews, applies and reverts
// action sets against a project directory, keeps a transaction log for
// undo and redo, analyzes projects with built-in heuristics and runs the
// bounded agentic repair loop.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/lucasnoah/fixfactory/internal/backend"
	"github.com/lucasnoah/fixfactory/internal/checks"
)

var (
	_ backend.Applier               = (*Engine)(nil)
	_ backend.Agent                 = (*Engine)(nil)
	_ backend.Analyzer              = (*Engine)(nil)
	_ backend.Planner               = (*Engine)(nil)
	_ backend.AnalyzeProgressSource = (*Engine)(nil)
)

// Options configures an Engine.
type Options struct {
	StateDir  string
	Protected []string
	// Checks form both the auto-check gate and the verify gate.
	Checks []checks.CheckConfig
	// Runner executes checks; nil shells out with checks.ExecRunner.
	Runner *checks.Runner
	// Analyzer and Planner default to the engine's built-in heuristics.
	Analyzer backend.Analyzer
	Planner  backend.Planner
}

// Engine implements the backend contract on the local filesystem.
type Engine struct {
	stateDir string
	policy   *Policy
	checker  *checks.Runner
	checks   []checks.CheckConfig
	analyzer backend.Analyzer
	planner  backend.Planner
	txlog    *TxLog
	log      *zap.Logger
	progress io.Writer // live progress output; nil = silent

	mu sync.Mutex // serialises transaction log changes in-process

	agentHub   *hub[backend.ProgressEvent]
	analyzeHub *hub[string]
}

// New creates an engine rooted at opts.StateDir.
func New(opts Options, log *zap.Logger) (*Engine, error) {
	if opts.StateDir == "" {
		return nil, fmt.Errorf("engine: state dir is required")
	}
	policy, err := NewPolicy(opts.Protected)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	runner := opts.Runner
	if runner == nil {
		runner = checks.NewRunner(&checks.ExecRunner{})
	}
	e := &Engine{
		stateDir:   opts.StateDir,
		policy:     policy,
		checker:    runner,
		checks:     append([]checks.CheckConfig(nil), opts.Checks...),
		txlog:      NewTxLog(filepath.Join(opts.StateDir, "tx")),
		log:        log.With(zap.String("component", "engine")),
		agentHub:   newHub[backend.ProgressEvent](),
		analyzeHub: newHub[string](),
	}
	e.analyzer = opts.Analyzer
	if e.analyzer == nil {
		e.analyzer = e
	}
	e.planner = opts.Planner
	if e.planner == nil {
		e.planner = e
	}
	return e, nil
}

// SetProgress sets a writer for live progress output (e.g. os.Stderr).
func (e *Engine) SetProgress(w io.Writer) {
	e.progress = w
}

// logf prints a progress line if a progress writer is configured.
func (e *Engine) logf(format string, args ...interface{}) {
	if e.progress != nil {
		fmt.Fprintf(e.progress, "  → "+format+"\n", args...)
	}
}

// resolveRoot returns the absolute, existing project directory for path.
func resolveRoot(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("project path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("project %s: %w", path, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("project %s: not a directory", path)
	}
	return abs, nil
}

// lockPath is the per-project lock file guarding filesystem changes.
func (e *Engine) lockPath(root string) string {
	sum := sha256.Sum256([]byte(root))
	return filepath.Join(e.stateDir, "locks", hex.EncodeToString(sum[:8])+".lock")
}

// runGate runs the configured checks against root.
func (e *Engine) runGate(ctx context.Context, root, gate string, cont bool) (*checks.GateResult, error) {
	result, raw, err := e.checker.RunGate(ctx, root, checks.GateOpts{Gate: gate, Checks: e.checks, Continue: cont})
	for _, r := range raw {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
		}
		e.logf("check %s: %s (%dms)", r.CheckName, status, r.DurationMs)
		e.log.Debug("check finished",
			zap.String("gate", gate),
			zap.String("check", r.CheckName),
			zap.Bool("passed", r.Passed),
			zap.Int("duration_ms", r.DurationMs))
	}
	return result, err
}
