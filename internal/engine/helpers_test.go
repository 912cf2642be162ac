package engine

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/lucasnoah/fixfactory/internal/backend"
	"github.com/lucasnoah/fixfactory/internal/checks"
)

// fakeCmd answers check commands without a shell. fn gets the 1-based call
// number and the command.
type fakeCmd struct {
	mu    sync.Mutex
	calls []string
	fn    func(n int, command string) (stdout string, exitCode int)
}

func (f *fakeCmd) Run(ctx context.Context, dir string, command string) (string, string, int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, command)
	n := len(f.calls)
	f.mu.Unlock()
	if f.fn == nil {
		return "", "", 0, nil
	}
	out, code := f.fn(n, command)
	return out, "", code, nil
}

func (f *fakeCmd) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestEngine(t *testing.T, cmd *fakeCmd, checkCfgs ...checks.CheckConfig) *Engine {
	t.Helper()
	if cmd == nil {
		cmd = &fakeCmd{}
	}
	e, err := New(Options{
		StateDir:  t.TempDir(),
		Protected: []string{".git/**", "**/.env", "**/*.pem"},
		Checks:    checkCfgs,
		Runner:    checks.NewRunner(cmd),
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

// writeTree creates files under a fresh project dir. A name ending in "/"
// creates a directory.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if strings.HasSuffix(name, "/") {
			if err := os.MkdirAll(p, 0o755); err != nil {
				t.Fatal(err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

// snapshotTree lists every path under root with file contents, for
// before/after comparisons.
func snapshotTree(t *testing.T, root string) string {
	t.Helper()
	var lines []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, p)
		if d.IsDir() {
			lines = append(lines, rel+"/")
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		lines = append(lines, rel+"="+string(data))
		return nil
	})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

func readFile(t *testing.T, root, rel string) (string, bool) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if os.IsNotExist(err) {
		return "", false
	}
	if err != nil {
		t.Fatal(err)
	}
	return string(data), true
}

func str(s string) *string { return &s }

func create(path, content string) backend.Action {
	return backend.Action{Kind: backend.KindCreateFile, Path: path, Content: str(content)}
}

func update(path, content string) backend.Action {
	return backend.Action{Kind: backend.KindUpdateFile, Path: path, Content: str(content)}
}

var confirmed = backend.ApplyOptions{UserConfirmed: true}
