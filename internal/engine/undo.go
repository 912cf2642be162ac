package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/lucasnoah/fixfactory/internal/backend"
	"github.com/lucasnoah/fixfactory/internal/fsutil"
)

var (
	errNothingToUndo = errors.New("nothing to undo")
	errNothingToRedo = errors.New("nothing to redo")
)

// UndoLastTx reverts root's newest transaction. It returns false when root
// has nothing to undo.
func (e *Engine) UndoLastTx(ctx context.Context, root string) (bool, error) {
	root, err := resolveRoot(root)
	if err != nil {
		return false, err
	}
	err = e.move(ctx, func(stack []TxRef) int { return latestFor(stack, root) }, true)
	if errors.Is(err, errNothingToUndo) {
		return false, nil
	}
	return err == nil, err
}

// UndoLast reverts the newest transaction across all projects.
func (e *Engine) UndoLast(ctx context.Context) (*backend.CommandResult, error) {
	err := e.move(ctx, top, true)
	return commandResult(err), nil
}

// RedoLast re-applies the most recently undone transaction.
func (e *Engine) RedoLast(ctx context.Context) (*backend.CommandResult, error) {
	err := e.move(ctx, top, false)
	return commandResult(err), nil
}

func commandResult(err error) *backend.CommandResult {
	if err != nil {
		return &backend.CommandResult{Error: err.Error()}
	}
	return &backend.CommandResult{OK: true}
}

// top picks the newest entry of a stack.
func top(stack []TxRef) int { return len(stack) - 1 }

// move undoes (or redoes) the transaction pick selects from the undo (or
// redo) stack and moves its reference to the other stack. Files changed
// since the transaction was applied (or undone) block the move.
func (e *Engine) move(ctx context.Context, pick func([]TxRef) int, undo bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	nothing := errNothingToUndo
	if !undo {
		nothing = errNothingToRedo
	}

	ix, err := e.txlog.index()
	if err != nil {
		return err
	}
	stack := ix.Undo
	if !undo {
		stack = ix.Redo
	}
	i := pick(stack)
	if i < 0 {
		return nothing
	}
	ref := stack[i]
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := e.txlog.Get(ref.ID)
	if err != nil {
		return err
	}
	release, err := fsutil.AcquireLock(e.lockPath(tx.Root))
	if err != nil {
		return fmt.Errorf("lock %s: %w", tx.Root, err)
	}
	defer release()

	if undo {
		err = revert(tx)
	} else {
		err = reapply(tx)
	}
	if err != nil {
		return err
	}

	err = e.txlog.Update(func(cur *txIndex) error {
		from, to := &cur.Undo, &cur.Redo
		if !undo {
			from, to = &cur.Redo, &cur.Undo
		}
		*from = removeRef(*from, ref.ID)
		*to = append(*to, ref)
		return nil
	})
	if err != nil {
		return fmt.Errorf("update transaction log: %w", err)
	}

	verb := "undid"
	if !undo {
		verb = "redid"
	}
	e.log.Info(verb+" transaction", zap.String("tx", tx.ID), zap.String("root", tx.Root))
	e.logf("%s tx %s in %s", verb, tx.ID, tx.Root)
	return nil
}

func removeRef(refs []TxRef, id string) []TxRef {
	out := refs[:0:0]
	for _, r := range refs {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}

// revert restores every change's before state after confirming nothing
// drifted since apply.
func revert(tx *Tx) error {
	seen := make(map[string]bool)
	for i := len(tx.Changes) - 1; i >= 0; i-- {
		c := tx.Changes[i]
		if seen[c.Path] {
			continue
		}
		seen[c.Path] = true
		cur, err := capture(filepath.Join(tx.Root, filepath.FromSlash(c.Path)))
		if err != nil {
			return err
		}
		if !cur.Same(c.After) {
			return fmt.Errorf("cannot undo tx %s: %s changed since it was applied", tx.ID, c.Path)
		}
	}
	return rollback(tx.Root, tx.Changes)
}

// reapply restores every change's after state after confirming the files
// still match their pre-apply state.
func reapply(tx *Tx) error {
	seen := make(map[string]bool)
	for _, c := range tx.Changes {
		if seen[c.Path] {
			continue
		}
		seen[c.Path] = true
		cur, err := capture(filepath.Join(tx.Root, filepath.FromSlash(c.Path)))
		if err != nil {
			return err
		}
		if !cur.Same(c.Before) {
			return fmt.Errorf("cannot redo tx %s: %s changed since it was undone", tx.ID, c.Path)
		}
	}
	for i, c := range tx.Changes {
		if err := restore(filepath.Join(tx.Root, filepath.FromSlash(c.Path)), c.After); err != nil {
			rbErr := rollback(tx.Root, tx.Changes[:i])
			return fmt.Errorf("redo tx %s: %s", tx.ID, failureMessage(err, rbErr))
		}
	}
	return nil
}

// GetUndoRedoState reports whether the global stacks are non-empty.
func (e *Engine) GetUndoRedoState(ctx context.Context) (*backend.UndoRedoState, error) {
	undo, redo, err := e.txlog.Stacks()
	if err != nil {
		return nil, fmt.Errorf("read transaction log: %w", err)
	}
	return &backend.UndoRedoState{UndoAvailable: len(undo) > 0, RedoAvailable: len(redo) > 0}, nil
}

// GetUndoStatus reports root's newest undoable transaction.
func (e *Engine) GetUndoStatus(ctx context.Context, root string) (*backend.UndoStatus, error) {
	root, err := resolveRoot(root)
	if err != nil {
		return nil, err
	}
	ref, err := e.txlog.LatestFor(root)
	if err != nil {
		return nil, fmt.Errorf("read transaction log: %w", err)
	}
	if ref == nil {
		return &backend.UndoStatus{}, nil
	}
	return &backend.UndoStatus{Available: true, TxID: ref.ID}, nil
}
