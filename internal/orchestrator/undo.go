package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lucasnoah/fixfactory/internal/backend"
	"github.com/lucasnoah/fixfactory/internal/state"
)

// UndoController keeps undo/redo availability in sync with the backend and
// performs undo and redo. Undo prefers the path-scoped transaction and falls
// back to the global stack; redo is global only.
type UndoController struct {
	applier backend.Applier
	store   *state.Store
	log     *zap.Logger
}

// NewUndoController creates an UndoController. log may be nil.
func NewUndoController(applier backend.Applier, store *state.Store, log *zap.Logger) *UndoController {
	if log == nil {
		log = zap.NewNop()
	}
	return &UndoController{applier: applier, store: store, log: log.With(zap.String("component", "undo"))}
}

// Refresh reconciles the availability flags. Undo is available when either
// the general state or the current path's status says so. One failing query
// is tolerated; the error is returned only when both fail.
func (u *UndoController) Refresh(ctx context.Context) error {
	snap := u.store.Snapshot()

	general, gerr := u.applier.GetUndoRedoState(ctx)
	if gerr != nil {
		u.log.Warn("undo/redo state query failed", zap.Error(gerr))
	}

	var status *backend.UndoStatus
	var serr error
	if snap.Path != "" {
		status, serr = u.applier.GetUndoStatus(ctx, snap.Path)
		if serr != nil {
			u.log.Warn("undo status query failed", zap.String("path", snap.Path), zap.Error(serr))
		}
	}

	if gerr != nil && (serr != nil || snap.Path == "") {
		return fmt.Errorf("refresh undo state: %w", gerr)
	}

	undo := status != nil && status.Available
	redo := snap.RedoAvailable
	if general != nil {
		undo = undo || general.UndoAvailable
		redo = general.RedoAvailable
	}
	u.store.Dispatch(state.SetUndoRedo{Undo: undo, Redo: redo})
	return nil
}

// Undo reverts the most recent transaction. It returns whether anything was
// reverted.
func (u *UndoController) Undo(ctx context.Context) (bool, error) {
	if err := u.store.Begin(state.BusyUndo); err != nil {
		return false, err
	}
	done, err := u.undo(ctx)
	u.store.End()
	_ = u.Refresh(ctx)
	return done, err
}

func (u *UndoController) undo(ctx context.Context) (bool, error) {
	path := u.store.Snapshot().Path
	if path != "" {
		ok, err := u.applier.UndoLastTx(ctx, path)
		if err == nil && ok {
			u.store.Say("Reverted the last transaction on %s.", path)
			return true, nil
		}
		if err != nil {
			u.log.Warn("path-scoped undo failed, falling back to global undo", zap.String("path", path), zap.Error(err))
		}
	}

	res, err := u.applier.UndoLast(ctx)
	if err != nil {
		u.store.Say("Undo failed: %v", err)
		return false, fmt.Errorf("undo last: %w", err)
	}
	if res == nil {
		u.store.Say("Undo failed: %v", errNoResult)
		return false, fmt.Errorf("undo last: %w", errNoResult)
	}
	if !res.OK {
		u.store.Say("Nothing to undo%s.", suffix(res.Error))
		return false, nil
	}
	u.store.Dispatch(state.ClearReport{})
	u.store.Say("Reverted the last change. Run analysis again to refresh the report.")
	return true, nil
}

// Redo re-applies the most recently undone change from the global stack.
func (u *UndoController) Redo(ctx context.Context) (bool, error) {
	if err := u.store.Begin(state.BusyUndo); err != nil {
		return false, err
	}
	res, err := u.applier.RedoLast(ctx)
	u.store.End()
	defer func() { _ = u.Refresh(ctx) }()

	if err != nil {
		u.store.Say("Redo failed: %v", err)
		return false, fmt.Errorf("redo last: %w", err)
	}
	if res == nil {
		u.store.Say("Redo failed: %v", errNoResult)
		return false, fmt.Errorf("redo last: %w", errNoResult)
	}
	if !res.OK {
		u.store.Say("Nothing to redo%s.", suffix(res.Error))
		return false, nil
	}
	u.store.Say("Re-applied the last undone change.")
	return true, nil
}

func suffix(msg string) string {
	if msg == "" {
		return ""
	}
	return ": " + msg
}
