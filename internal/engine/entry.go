package engine

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/lucasnoah/fixfactory/internal/fsutil"
)

// EntryKind is what exists at a path.
type EntryKind string

const (
	EntryAbsent EntryKind = "absent"
	EntryFile   EntryKind = "file"
	EntryDir    EntryKind = "dir"
)

// Entry is the recorded state of one path: nothing, a directory, or a file
// with its content and mode.
type Entry struct {
	Kind    EntryKind   `json:"kind"`
	Content []byte      `json:"content,omitempty"`
	Mode    fs.FileMode `json:"mode,omitempty"`
}

// capture reads the current state of abs. Symlinks and special files are
// refused: the engine never follows or replaces them.
func capture(abs string) (Entry, error) {
	info, err := os.Lstat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return Entry{Kind: EntryAbsent}, nil
	}
	if err != nil {
		return Entry{}, err
	}
	switch {
	case info.IsDir():
		return Entry{Kind: EntryDir}, nil
	case info.Mode().IsRegular():
		data, err := os.ReadFile(abs)
		if err != nil {
			return Entry{}, err
		}
		return Entry{Kind: EntryFile, Content: data, Mode: info.Mode().Perm()}, nil
	}
	return Entry{}, fmt.Errorf("%s: unsupported file type %s", abs, info.Mode().Type())
}

// Same reports whether two entries describe the same on-disk state.
func (e Entry) Same(o Entry) bool {
	if e.Kind != o.Kind {
		return false
	}
	return e.Kind != EntryFile || bytes.Equal(e.Content, o.Content)
}

// restore makes abs match e. Directories are only ever removed when empty.
func restore(abs string, e Entry) error {
	cur, err := capture(abs)
	if err != nil {
		return err
	}
	if cur.Same(e) {
		if e.Kind == EntryFile && e.Mode != 0 && cur.Mode != e.Mode {
			return os.Chmod(abs, e.Mode)
		}
		return nil
	}
	if (cur.Kind != EntryAbsent && cur.Kind != e.Kind) || e.Kind == EntryAbsent {
		if err := os.Remove(abs); err != nil {
			return fmt.Errorf("remove %s: %w", abs, err)
		}
	}
	switch e.Kind {
	case EntryDir:
		if err := os.Mkdir(abs, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", abs, err)
		}
	case EntryFile:
		mode := e.Mode
		if mode == 0 {
			mode = 0o644
		}
		if err := fsutil.WriteAtomic(abs, e.Content, mode); err != nil {
			return err
		}
	}
	return nil
}
