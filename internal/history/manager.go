// Package history keeps snapshots of past requests so a user can set one
// line of work aside and come back to it later.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lucasnoah/fixfactory/internal/backend"
	"github.com/lucasnoah/fixfactory/internal/db"
	"github.com/lucasnoah/fixfactory/internal/state"
)

// ErrNotFound is returned for unknown snapshot ids.
var ErrNotFound = errors.New("request not found")

// TitleLimit is the number of characters kept from the first user message.
const TitleLimit = 45

// Snapshot is a frozen request. Pending previews are never part of it.
type Snapshot struct {
	ID         string                 `json:"id"`
	Title      string                 `json:"title"`
	Transcript []state.Message        `json:"transcript"`
	Path       string                 `json:"path"`
	Report     *backend.AnalyzeReport `json:"report,omitempty"`
	CreatedAt  string                 `json:"created_at"`
}

// Persister stores snapshots across restarts. *db.DB implements it.
type Persister interface {
	SaveHistory(ctx context.Context, item db.HistoryItem) error
	ListHistory(ctx context.Context) ([]db.HistoryItem, error)
	DeleteHistory(ctx context.Context, id string) error
}

// Manager owns the snapshot list, newest first.
type Manager struct {
	store   *state.Store
	persist Persister
	log     *zap.Logger

	mu    sync.Mutex
	items []Snapshot
}

// NewManager creates a Manager. persist and log may be nil; without a
// persister snapshots live in memory only.
func NewManager(store *state.Store, persist Persister, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{store: store, persist: persist, log: log.With(zap.String("component", "history"))}
}

// Load replaces the in-memory list with the persisted snapshots.
func (m *Manager) Load(ctx context.Context) error {
	if m.persist == nil {
		return nil
	}
	rows, err := m.persist.ListHistory(ctx)
	if err != nil {
		return fmt.Errorf("list history: %w", err)
	}
	items := make([]Snapshot, 0, len(rows))
	for _, row := range rows {
		var s Snapshot
		if err := json.Unmarshal(row.Payload, &s); err != nil {
			m.log.Warn("skipping unreadable history entry", zap.String("id", row.ID), zap.Error(err))
			continue
		}
		s.ID, s.Title, s.CreatedAt = row.ID, row.Title, row.CreatedAt
		items = append(items, s)
	}
	m.mu.Lock()
	m.items = items
	m.mu.Unlock()
	return nil
}

// NewRequest snapshots the current request if it has any messages, then
// resets the transient state. The reset happens even if saving fails.
func (m *Manager) NewRequest(ctx context.Context) (*Snapshot, error) {
	cur := m.store.Snapshot()
	defer m.store.Dispatch(state.ResetTransient{})

	if len(cur.Transcript) == 0 {
		return nil, nil
	}
	snap := Snapshot{
		ID:         uuid.NewString(),
		Title:      DeriveTitle(cur.Transcript),
		Transcript: cur.Transcript,
		Path:       cur.Path,
		Report:     cur.Report,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	}

	m.mu.Lock()
	m.items = append([]Snapshot{snap}, m.items...)
	m.mu.Unlock()

	if m.persist != nil {
		payload, err := json.Marshal(snap)
		if err != nil {
			return &snap, fmt.Errorf("encode snapshot: %w", err)
		}
		item := db.HistoryItem{ID: snap.ID, Title: snap.Title, Payload: payload, CreatedAt: snap.CreatedAt}
		if err := m.persist.SaveHistory(ctx, item); err != nil {
			m.log.Warn("persist snapshot failed", zap.String("id", snap.ID), zap.Error(err))
			return &snap, fmt.Errorf("save snapshot: %w", err)
		}
	}
	return &snap, nil
}

// SwitchTo restores a snapshot. Any pending preview is discarded.
func (m *Manager) SwitchTo(id string) error {
	snap, err := m.Get(id)
	if err != nil {
		return err
	}
	m.store.Dispatch(state.Restore{
		Transcript: snap.Transcript,
		Path:       snap.Path,
		Report:     snap.Report,
	})
	return nil
}

// Remove deletes a snapshot. Current state is untouched.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	idx := -1
	for i, s := range m.items {
		if s.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	m.items = append(m.items[:idx:idx], m.items[idx+1:]...)
	m.mu.Unlock()

	if m.persist != nil {
		if err := m.persist.DeleteHistory(ctx, id); err != nil && !errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("delete snapshot: %w", err)
		}
	}
	return nil
}

// Get returns the snapshot with id. Ids may be abbreviated to a unique prefix.
func (m *Manager) Get(id string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *Snapshot
	for i := range m.items {
		s := &m.items[i]
		if s.ID == id {
			cp := *s
			return &cp, nil
		}
		if id != "" && strings.HasPrefix(s.ID, id) {
			if found != nil {
				return nil, fmt.Errorf("ambiguous request id %q", id)
			}
			found = s
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	cp := *found
	return &cp, nil
}

// List returns the snapshots, newest first.
func (m *Manager) List() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Snapshot(nil), m.items...)
}

// DeriveTitle is the first user message cut to TitleLimit characters.
func DeriveTitle(transcript []state.Message) string {
	for _, msg := range transcript {
		if msg.Role != state.RoleUser {
			continue
		}
		text := strings.Join(strings.Fields(msg.Text), " ")
		if text == "" {
			continue
		}
		if utf8.RuneCountInString(text) <= TitleLimit {
			return text
		}
		return string([]rune(text)[:TitleLimit]) + "…"
	}
	return "Untitled request"
}
