package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/lucasnoah/fixfactory/internal/backend"
	"github.com/lucasnoah/fixfactory/internal/fsutil"
)

// Change is one path's state before and after a transaction.
type Change struct {
	Path   string `json:"path"`
	Before Entry  `json:"before"`
	After  Entry  `json:"after"`
}

// Tx is a committed apply: the actions requested and every path it changed,
// including parent directories it had to create.
type Tx struct {
	ID        string           `json:"id"`
	Root      string           `json:"root"`
	CreatedAt time.Time        `json:"created_at"`
	Actions   []backend.Action `json:"actions"`
	Changes   []Change         `json:"changes"`
}

// TxRef is a stack entry in the index.
type TxRef struct {
	ID        string    `json:"id"`
	Root      string    `json:"root"`
	CreatedAt time.Time `json:"created_at"`
}

// txIndex holds the global undo and redo stacks, newest last.
type txIndex struct {
	Undo []TxRef `json:"undo"`
	Redo []TxRef `json:"redo"`
}

// latestFor returns the position of root's newest entry in stack, or -1.
func latestFor(stack []TxRef, root string) int {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].Root == root {
			return i
		}
	}
	return -1
}

// TxLog stores transactions as JSON files plus an index of the undo/redo stacks.
type TxLog struct {
	dir string
}

// NewTxLog creates a TxLog rooted at dir.
func NewTxLog(dir string) *TxLog {
	return &TxLog{dir: dir}
}

func (l *TxLog) indexPath() string       { return filepath.Join(l.dir, "index.json") }
func (l *TxLog) txPath(id string) string { return filepath.Join(l.dir, id+".json") }

func (l *TxLog) index() (*txIndex, error) {
	var ix txIndex
	if err := fsutil.ReadJSON(l.indexPath(), &ix); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &txIndex{}, nil
		}
		return nil, err
	}
	return &ix, nil
}

// Update performs a locked read-modify-write of the index. fn's error aborts
// the write.
func (l *TxLog) Update(fn func(*txIndex) error) error {
	release, err := fsutil.AcquireLock(filepath.Join(l.dir, "index.lock"))
	if err != nil {
		return fmt.Errorf("lock transaction log: %w", err)
	}
	defer release()

	ix, err := l.index()
	if err != nil {
		return err
	}
	if err := fn(ix); err != nil {
		return err
	}
	return fsutil.WriteJSON(l.indexPath(), ix)
}

// Record stores tx, pushes it onto the undo stack and clears the redo stack.
func (l *TxLog) Record(tx *Tx) error {
	if err := fsutil.WriteJSON(l.txPath(tx.ID), tx); err != nil {
		return fmt.Errorf("write tx %s: %w", tx.ID, err)
	}
	return l.Update(func(ix *txIndex) error {
		for _, ref := range ix.Redo {
			_ = os.Remove(l.txPath(ref.ID))
		}
		ix.Redo = nil
		ix.Undo = append(ix.Undo, TxRef{ID: tx.ID, Root: tx.Root, CreatedAt: tx.CreatedAt})
		return nil
	})
}

// Get reads a transaction body.
func (l *TxLog) Get(id string) (*Tx, error) {
	var tx Tx
	if err := fsutil.ReadJSON(l.txPath(id), &tx); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("tx %s not found", id)
		}
		return nil, err
	}
	return &tx, nil
}

// Stacks returns copies of the undo and redo stacks, newest last.
func (l *TxLog) Stacks() (undo, redo []TxRef, err error) {
	ix, err := l.index()
	if err != nil {
		return nil, nil, err
	}
	return ix.Undo, ix.Redo, nil
}

// LatestFor returns root's newest undoable transaction, or nil.
func (l *TxLog) LatestFor(root string) (*TxRef, error) {
	ix, err := l.index()
	if err != nil {
		return nil, err
	}
	i := latestFor(ix.Undo, root)
	if i < 0 {
		return nil, nil
	}
	ref := ix.Undo[i]
	return &ref, nil
}
