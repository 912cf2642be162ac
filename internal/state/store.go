package state

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/lucasnoah/fixfactory/internal/backend"
	"github.com/lucasnoah/fixfactory/internal/events"
	"github.com/lucasnoah/fixfactory/internal/fsutil"
)

// ErrBusy is returned by Begin while another operation holds the store.
var ErrBusy = errors.New("another operation is in progress")

// Store owns the session state and serialises preview, apply and verify
// behind its busy flag.
type Store struct {
	mu    sync.Mutex
	state State
	bus   *events.Bus
}

// NewStore returns a store with empty state. bus may be nil.
func NewStore(bus *events.Bus) *Store {
	return &Store{bus: bus}
}

// Bus returns the bus the store publishes to.
func (s *Store) Bus() *events.Bus {
	return s.bus
}

// Dispatch applies the actions in order and notifies observers once.
func (s *Store) Dispatch(actions ...Action) {
	s.mu.Lock()
	for _, a := range actions {
		s.state = Reduce(s.state, a)
	}
	s.mu.Unlock()

	for _, a := range actions {
		if m, ok := a.(AppendMessage); ok {
			s.bus.Publish(events.Event{Topic: events.TopicTranscript, Text: m.Text})
		}
	}
	s.bus.Publish(events.Event{Topic: events.TopicStateChanged})
}

// Say appends an assistant message.
func (s *Store) Say(format string, args ...any) {
	s.Dispatch(AppendMessage{Role: RoleAssistant, Text: fmt.Sprintf(format, args...)})
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Begin marks the store busy with kind. It fails with ErrBusy if another
// operation already holds it.
func (s *Store) Begin(kind BusyKind) error {
	s.mu.Lock()
	if s.state.Busy != BusyNone {
		held := s.state.Busy
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", held, ErrBusy)
	}
	s.state = Reduce(s.state, setBusy{kind: kind})
	s.mu.Unlock()
	s.bus.Publish(events.Event{Topic: events.TopicStateChanged})
	return nil
}

// End clears the busy flag.
func (s *Store) End() {
	s.Dispatch(setBusy{kind: BusyNone})
}

// Workspace is the part of the state persisted between CLI invocations,
// together with the selected action keys.
type Workspace struct {
	State    State               `json:"state"`
	Selected []backend.ActionKey `json:"selected,omitempty"`
}

// SaveWorkspace writes the current state and selection to path.
func (s *Store) SaveWorkspace(path string, selected []backend.ActionKey) error {
	snap := s.Snapshot()
	snap.Busy = BusyNone
	if err := fsutil.WriteJSON(path, Workspace{State: snap, Selected: selected}); err != nil {
		return fmt.Errorf("save workspace: %w", err)
	}
	return nil
}

// LoadWorkspace replaces the state with the one saved at path and returns the
// saved selection. A missing file leaves the store empty.
func (s *Store) LoadWorkspace(path string) ([]backend.ActionKey, error) {
	var ws Workspace
	if err := fsutil.ReadJSON(path, &ws); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("load workspace: %w", err)
	}
	ws.State.Busy = BusyNone
	s.mu.Lock()
	s.state = ws.State.clone()
	s.mu.Unlock()
	s.bus.Publish(events.Event{Topic: events.TopicStateChanged})
	return ws.Selected, nil
}
