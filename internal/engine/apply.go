package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lucasnoah/fixfactory/internal/backend"
	"github.com/lucasnoah/fixfactory/internal/checks"
	"github.com/lucasnoah/fixfactory/internal/fsutil"
)

// ApplyActionsTx applies actions to the project at root as one transaction.
// Either every action lands and the transaction is recorded for undo, or
// the filesystem is restored and the result says why.
func (e *Engine) ApplyActionsTx(ctx context.Context, root string, actions []backend.Action, opts backend.ApplyOptions) (*backend.ApplyTxResult, error) {
	if !opts.UserConfirmed {
		return &backend.ApplyTxResult{
			ErrorCode: backend.CodeConfirmRequired,
			Error:     "applying changes requires user confirmation",
		}, nil
	}
	if len(actions) == 0 {
		return &backend.ApplyTxResult{Error: "no actions to apply"}, nil
	}

	root, err := resolveRoot(root)
	if err != nil {
		return &backend.ApplyTxResult{Error: err.Error()}, nil
	}
	log := e.log.With(zap.String("root", root))

	if msg, code := e.validate(actions); msg != "" {
		log.Info("apply rejected", zap.String("reason", msg))
		return &backend.ApplyTxResult{Error: msg, ErrorCode: code}, nil
	}

	release, err := fsutil.AcquireLock(e.lockPath(root))
	if err != nil {
		if errors.Is(err, fsutil.ErrLocked) {
			return &backend.ApplyTxResult{Error: "another change is being applied to " + root}, nil
		}
		return nil, fmt.Errorf("apply: %w", err)
	}
	defer release()

	e.logf("applying %d actions to %s", len(actions), root)
	changes, err := e.execute(ctx, root, actions)
	if err != nil {
		rbErr := rollback(root, changes)
		log.Warn("apply failed", zap.Error(err), zap.NamedError("rollback", rbErr))
		return &backend.ApplyTxResult{
			RolledBack: len(changes) > 0 && rbErr == nil,
			Error:      failureMessage(err, rbErr),
		}, nil
	}

	res := &backend.ApplyTxResult{Applied: true}
	if opts.AutoCheck {
		e.logf("running auto-check")
		gate, err := e.runGate(ctx, root, "auto_check", false)
		if err != nil || !gate.Passed {
			if gate != nil {
				res.Checks = gate.CheckResults()
			}
			rbErr := rollback(root, changes)
			cause := err
			if cause == nil {
				cause = fmt.Errorf("auto-check failed: %s", failedNames(gate))
			}
			log.Info("auto-check failed", zap.Error(cause), zap.NamedError("rollback", rbErr))
			if rbErr != nil {
				res.Error = failureMessage(cause, rbErr)
				return res, nil
			}
			res.RolledBack = true
			res.ErrorCode = backend.CodeAutoCheckFailedRolledBack
			res.Error = cause.Error() + "; changes rolled back"
			return res, nil
		}
		res.Checks = gate.CheckResults()
	}

	tx := &Tx{
		ID:        uuid.NewString(),
		Root:      root,
		CreatedAt: time.Now().UTC(),
		Actions:   backend.CloneActions(actions),
		Changes:   changes,
	}
	e.mu.Lock()
	err = e.txlog.Record(tx)
	e.mu.Unlock()
	if err != nil {
		rbErr := rollback(root, changes)
		log.Error("record transaction", zap.Error(err), zap.NamedError("rollback", rbErr))
		return &backend.ApplyTxResult{
			RolledBack: rbErr == nil,
			Error:      failureMessage(err, rbErr),
		}, nil
	}

	res.OK = true
	res.TxID = tx.ID
	log.Info("applied", zap.String("tx", tx.ID), zap.Int("actions", len(actions)), zap.Int("changes", len(changes)))
	e.logf("applied tx %s (%d paths changed)", tx.ID, len(changes))
	return res, nil
}

// validate checks every action before anything is touched. Policy
// violations win over malformed actions so the caller sees PROTECTED_PATH.
func (e *Engine) validate(actions []backend.Action) (string, backend.ErrorCode) {
	var protected, invalid []string
	for _, a := range actions {
		if reason := e.policy.Violation(a.Path); reason != "" {
			if _, err := CleanRel(a.Path); err != nil {
				invalid = append(invalid, reason)
			} else {
				protected = append(protected, reason)
			}
			continue
		}
		if !a.Kind.Valid() {
			invalid = append(invalid, fmt.Sprintf("%s: unknown action kind %q", a.Path, a.Kind))
			continue
		}
		if (a.Kind == backend.KindCreateFile || a.Kind == backend.KindUpdateFile) && a.Content == nil {
			invalid = append(invalid, fmt.Sprintf("%s: %s requires content", a.Path, a.Kind))
		}
	}
	switch {
	case len(protected) > 0:
		return "protected path: " + strings.Join(protected, "; "), backend.CodeProtectedPath
	case len(invalid) > 0:
		return "invalid actions: " + strings.Join(invalid, "; "), backend.CodeNone
	}
	return "", backend.CodeNone
}

// execute performs actions in order, returning the changes made so far even
// on error so the caller can roll them back.
func (e *Engine) execute(ctx context.Context, root string, actions []backend.Action) ([]Change, error) {
	var changes []Change
	for _, a := range actions {
		if err := ctx.Err(); err != nil {
			return changes, err
		}
		rel, _ := CleanRel(a.Path)
		var err error
		changes, err = applyOne(root, rel, a, changes)
		if err != nil {
			return changes, fmt.Errorf("%s %s: %w", a.Kind, rel, err)
		}
	}
	return changes, nil
}

func applyOne(root, rel string, a backend.Action, changes []Change) ([]Change, error) {
	abs := filepath.Join(root, filepath.FromSlash(rel))
	before, err := capture(abs)
	if err != nil {
		return changes, err
	}

	var after Entry
	switch a.Kind {
	case backend.KindCreateFile:
		if before.Kind != EntryAbsent {
			return changes, fmt.Errorf("already exists")
		}
		if changes, err = ensureParents(root, rel, changes); err != nil {
			return changes, err
		}
		after = Entry{Kind: EntryFile, Content: []byte(*a.Content), Mode: 0o644}
	case backend.KindUpdateFile:
		if before.Kind != EntryFile {
			return changes, fmt.Errorf("no such file")
		}
		after = Entry{Kind: EntryFile, Content: []byte(*a.Content), Mode: before.Mode}
	case backend.KindDeleteFile:
		if before.Kind != EntryFile {
			return changes, fmt.Errorf("no such file")
		}
		after = Entry{Kind: EntryAbsent}
	case backend.KindCreateDir:
		if before.Kind == EntryDir {
			return changes, nil
		}
		if before.Kind != EntryAbsent {
			return changes, fmt.Errorf("a file is in the way")
		}
		if changes, err = ensureParents(root, rel, changes); err != nil {
			return changes, err
		}
		after = Entry{Kind: EntryDir}
	case backend.KindDeleteDir:
		if before.Kind != EntryDir {
			return changes, fmt.Errorf("no such directory")
		}
		entries, err := os.ReadDir(abs)
		if err != nil {
			return changes, err
		}
		if len(entries) > 0 {
			return changes, fmt.Errorf("directory not empty")
		}
		after = Entry{Kind: EntryAbsent}
	}

	if err := restore(abs, after); err != nil {
		return changes, err
	}
	return append(changes, Change{Path: rel, Before: before, After: after}), nil
}

// ensureParents creates missing ancestors of rel, recording each as a change
// so undo removes them again.
func ensureParents(root, rel string, changes []Change) ([]Change, error) {
	var missing []string
	for dir := path.Dir(rel); dir != "."; dir = path.Dir(dir) {
		e, err := capture(filepath.Join(root, filepath.FromSlash(dir)))
		if err != nil {
			return changes, err
		}
		if e.Kind == EntryDir {
			break
		}
		if e.Kind == EntryFile {
			return changes, fmt.Errorf("%s is a file", dir)
		}
		missing = append(missing, dir)
	}
	for i := len(missing) - 1; i >= 0; i-- {
		dir := missing[i]
		if err := os.Mkdir(filepath.Join(root, filepath.FromSlash(dir)), 0o755); err != nil {
			return changes, err
		}
		changes = append(changes, Change{Path: dir, Before: Entry{Kind: EntryAbsent}, After: Entry{Kind: EntryDir}})
	}
	return changes, nil
}

// rollback restores the before state of changes in reverse order.
func rollback(root string, changes []Change) error {
	var errs []error
	for i := len(changes) - 1; i >= 0; i-- {
		c := changes[i]
		if err := restore(filepath.Join(root, filepath.FromSlash(c.Path)), c.Before); err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", c.Path, err))
		}
	}
	return errors.Join(errs...)
}

func failureMessage(err, rbErr error) string {
	if rbErr != nil {
		return fmt.Sprintf("%v; rollback failed: %v", err, rbErr)
	}
	return err.Error()
}

func failedNames(gate *checks.GateResult) string {
	var names []string
	for name := range gate.RemainingFailures {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
