package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lucasnoah/fixfactory/internal/agentic"
	"github.com/lucasnoah/fixfactory/internal/backend"
	"github.com/lucasnoah/fixfactory/internal/batch"
	"github.com/lucasnoah/fixfactory/internal/checks"
	"github.com/lucasnoah/fixfactory/internal/config"
	"github.com/lucasnoah/fixfactory/internal/db"
	"github.com/lucasnoah/fixfactory/internal/engine"
	"github.com/lucasnoah/fixfactory/internal/events"
	"github.com/lucasnoah/fixfactory/internal/history"
	"github.com/lucasnoah/fixfactory/internal/logging"
	"github.com/lucasnoah/fixfactory/internal/orchestrator"
	"github.com/lucasnoah/fixfactory/internal/remote"
	"github.com/lucasnoah/fixfactory/internal/state"
)

// app is everything one command invocation needs, wired from config.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	db      *db.DB
	engine  *engine.Engine
	planner backend.Planner
	store   *state.Store
	orch    *orchestrator.Orchestrator
	undo    *orchestrator.UndoController
	agentic *agentic.Coordinator
	history *history.Manager
	batch   *batch.Runner

	out       io.Writer
	workspace string
}

// lockedWriter serialises writes from the command and background observers.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// newApp loads config, opens the database and builds the session. The
// saved workspace is restored so commands chain across invocations. The
// returned cleanup saves the workspace again and releases resources.
func newApp(cmd *cobra.Command) (*app, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, nil, fmt.Errorf("invalid config: %s (run `fixfactory config validate` for all errors)", errs[0])
	}

	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create state dir: %w", err)
	}
	logCfg := cfg.Log
	if logCfg.File == "" {
		logCfg.File = filepath.Join(cfg.StateDir, "fixfactory.log")
	}
	log, err := logging.New(logCfg)
	if err != nil {
		return nil, nil, err
	}
	undoGlobals := zap.ReplaceGlobals(log)
	database, err := openDB(cfg)
	if err != nil {
		return nil, nil, err
	}

	named, err := cfg.VerifyChecks()
	if err != nil {
		database.Close()
		return nil, nil, err
	}
	opts := engine.Options{
		StateDir:  cfg.StateDir,
		Protected: cfg.Policy.Protected,
		Checks:    runnerChecks(named),
	}
	if cfg.Backend.URL != "" {
		client := remote.New(cfg.Backend.URL, cfg.Backend.BackendTimeout(), log)
		client.Retries = uint64(cfg.Backend.Retries)
		opts.Analyzer = client
		opts.Planner = client
	}
	eng, err := engine.New(opts, log)
	if err != nil {
		database.Close()
		return nil, nil, err
	}
	var analyzer backend.Analyzer = eng
	var planner backend.Planner = eng
	if opts.Analyzer != nil {
		analyzer, planner = opts.Analyzer, opts.Planner
	}

	var mu sync.Mutex
	out := &lockedWriter{mu: &mu, w: cmd.OutOrStdout()}
	if !jsonOutput(cmd) {
		eng.SetProgress(&lockedWriter{mu: &mu, w: cmd.ErrOrStderr()})
	}

	store := state.NewStore(events.NewBus())
	a := &app{
		cfg:       cfg,
		log:       log,
		db:        database,
		engine:    eng,
		planner:   planner,
		store:     store,
		orch:      orchestrator.New(analyzer, eng, store, log),
		undo:      orchestrator.NewUndoController(eng, store, log),
		agentic:   agentic.New(eng, database, store, log),
		history:   history.NewManager(store, database, log),
		out:       out,
		workspace: filepath.Join(cfg.StateDir, "workspace.json"),
	}
	a.batch = batch.NewRunner(analyzer, eng, a.orch, log)

	ctx := cmd.Context()
	if err := a.history.Load(ctx); err != nil {
		log.Warn("load request history", zap.Error(err))
	}
	keys, err := store.LoadWorkspace(a.workspace)
	if err != nil {
		log.Warn("discarding unreadable workspace", zap.String("path", a.workspace), zap.Error(err))
	}
	a.orch.Selection().Restore(keys)
	if err := a.undo.Refresh(ctx); err != nil {
		log.Warn("refresh undo state", zap.Error(err))
	}

	if !jsonOutput(cmd) {
		store.Bus().Subscribe(events.TopicTranscript, events.ObserverFunc(func(e events.Event) {
			fmt.Fprintln(out, e.Text)
		}))
	}

	cleanup := func() {
		if err := store.SaveWorkspace(a.workspace, a.orch.Selection().SelectedKeys()); err != nil {
			log.Warn("save workspace", zap.Error(err))
		}
		database.Close()
		_ = log.Sync()
		undoGlobals()
	}
	return a, cleanup, nil
}

// openDB opens and migrates the configured database, creating the parent
// directory of a SQLite file when needed.
func openDB(cfg *config.Config) (*db.DB, error) {
	if !db.IsPostgresDSN(cfg.Database) && cfg.Database != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	database, err := db.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return database, nil
}

func runnerChecks(named []config.NamedCheck) []checks.CheckConfig {
	out := make([]checks.CheckConfig, 0, len(named))
	for _, n := range named {
		out = append(out, checks.CheckConfig{
			Name:    n.Name,
			Command: n.Command,
			Parser:  n.Parser,
			Timeout: n.CheckTimeout(),
		})
	}
	return out
}

// targetPath resolves an optional path argument, falling back to the
// session's current path and then to the working directory.
func (a *app) targetPath(args []string) (string, error) {
	p := a.store.Snapshot().Path
	if len(args) > 0 {
		p = args[0]
	}
	if p == "" {
		p = "."
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve path %s: %w", p, err)
	}
	return abs, nil
}

// requireReport returns the current analysis report or a hint to create one.
func (a *app) requireReport() (*backend.AnalyzeReport, error) {
	report := a.store.Snapshot().Report
	if report == nil {
		return nil, fmt.Errorf("no analysis yet: run `fixfactory analyze [path]` first")
	}
	return report, nil
}

func jsonOutput(cmd *cobra.Command) bool {
	f := cmd.Flags().Lookup("format")
	return f != nil && f.Value.String() == "json"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func addFormatFlag(cmds ...*cobra.Command) {
	for _, c := range cmds {
		c.Flags().String("format", "text", "Output format: text or json")
	}
}
