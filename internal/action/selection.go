// Package action tracks which proposed actions are chosen for preview and apply.
package action

import (
	"fmt"

	"github.com/lucasnoah/fixfactory/internal/backend"
)

// Selection is the set of chosen actions over one analysis report.
// It is not safe for concurrent use.
type Selection struct {
	order    []backend.ActionKey
	actions  map[backend.ActionKey]backend.Action
	groups   map[string]backend.ActionGroup
	groupIDs []string
	packs    map[string]backend.FixPack
	selected map[backend.ActionKey]bool
	revision uint64
}

// NewSelection indexes the actions, groups and packs of a report.
// Nothing is selected initially. A nil report yields an empty selection.
func NewSelection(report *backend.AnalyzeReport) *Selection {
	s := &Selection{
		actions:  make(map[backend.ActionKey]backend.Action),
		groups:   make(map[string]backend.ActionGroup),
		packs:    make(map[string]backend.FixPack),
		selected: make(map[backend.ActionKey]bool),
	}
	if report == nil {
		return s
	}
	for _, a := range report.Actions {
		s.register(a)
	}
	for _, g := range report.ActionGroups {
		if _, seen := s.groups[g.ID]; !seen {
			s.groupIDs = append(s.groupIDs, g.ID)
		}
		s.groups[g.ID] = g
		for _, a := range g.Actions {
			s.register(a)
		}
	}
	for _, p := range report.FixPacks {
		s.packs[p.ID] = p
	}
	return s
}

// Reset replaces the universe with a new report's actions and clears the
// selection. The revision keeps counting so stale previews stay detectable.
func (s *Selection) Reset(report *backend.AnalyzeReport) {
	rev := s.revision
	*s = *NewSelection(report)
	s.revision = rev + 1
}

// register adds an action to the universe; the first occurrence of a key wins.
func (s *Selection) register(a backend.Action) {
	k := a.Key()
	if _, ok := s.actions[k]; ok {
		return
	}
	s.actions[k] = backend.CloneActions([]backend.Action{a})[0]
	s.order = append(s.order, k)
}

func (s *Selection) set(k backend.ActionKey, on bool) {
	if s.selected[k] == on {
		return
	}
	if on {
		s.selected[k] = true
	} else {
		delete(s.selected, k)
	}
	s.revision++
}

// Toggle flips one action and returns its new state. Actions the report did
// not propose are registered at the end of the proposal order.
func (s *Selection) Toggle(a backend.Action) bool {
	s.register(a)
	k := a.Key()
	s.set(k, !s.selected[k])
	return s.selected[k]
}

// IsSelected reports whether the action's key is selected.
func (s *Selection) IsSelected(a backend.Action) bool {
	return s.selected[a.Key()]
}

// SelectGroup selects every action of a group.
func (s *Selection) SelectGroup(id string) error {
	return s.setGroup(id, true)
}

// DeselectGroup deselects every action of a group.
func (s *Selection) DeselectGroup(id string) error {
	return s.setGroup(id, false)
}

func (s *Selection) setGroup(id string, on bool) error {
	g, ok := s.groups[id]
	if !ok {
		return fmt.Errorf("unknown action group %q", id)
	}
	for _, a := range g.Actions {
		s.set(a.Key(), on)
	}
	return nil
}

// PackActions resolves a pack to the union of its groups' actions,
// deduplicated by (kind, path) in first-seen order.
func (s *Selection) PackActions(id string) ([]backend.Action, error) {
	p, ok := s.packs[id]
	if !ok {
		return nil, fmt.Errorf("unknown fix pack %q", id)
	}
	seen := make(map[backend.ActionKey]bool)
	var out []backend.Action
	for _, gid := range p.GroupIDs {
		g, ok := s.groups[gid]
		if !ok {
			return nil, fmt.Errorf("fix pack %q references unknown group %q", id, gid)
		}
		for _, a := range g.Actions {
			k := a.Key()
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, s.actions[k])
		}
	}
	return backend.CloneActions(out), nil
}

// SelectPack selects the deduplicated union of a pack's groups.
func (s *Selection) SelectPack(id string) error {
	actions, err := s.PackActions(id)
	if err != nil {
		return err
	}
	for _, a := range actions {
		s.set(a.Key(), true)
	}
	return nil
}

// DeselectPack deselects every action the pack resolves to.
func (s *Selection) DeselectPack(id string) error {
	actions, err := s.PackActions(id)
	if err != nil {
		return err
	}
	for _, a := range actions {
		s.set(a.Key(), false)
	}
	return nil
}

// SelectRecommended selects every pack the report recommends.
func (s *Selection) SelectRecommended(ids []string) error {
	for _, id := range ids {
		if err := s.SelectPack(id); err != nil {
			return err
		}
	}
	return nil
}

// SelectAll selects every known action.
func (s *Selection) SelectAll() {
	for _, k := range s.order {
		s.set(k, true)
	}
}

// Clear deselects everything.
func (s *Selection) Clear() {
	for _, k := range s.order {
		s.set(k, false)
	}
}

// Selected returns copies of the chosen actions in proposal order.
func (s *Selection) Selected() []backend.Action {
	var out []backend.Action
	for _, k := range s.order {
		if s.selected[k] {
			out = append(out, s.actions[k])
		}
	}
	return backend.CloneActions(out)
}

// SelectedKeys returns the chosen keys in proposal order.
func (s *Selection) SelectedKeys() []backend.ActionKey {
	var out []backend.ActionKey
	for _, k := range s.order {
		if s.selected[k] {
			out = append(out, k)
		}
	}
	return out
}

// Restore re-selects the given keys, ignoring keys the report does not know.
func (s *Selection) Restore(keys []backend.ActionKey) {
	for _, k := range keys {
		if _, ok := s.actions[k]; ok {
			s.set(k, true)
		}
	}
}

// Len returns the number of selected actions.
func (s *Selection) Len() int {
	return len(s.selected)
}

// IsEmpty reports whether nothing is selected. An empty selection blocks
// preview and apply.
func (s *Selection) IsEmpty() bool {
	return len(s.selected) == 0
}

// Revision increases on every effective selection change.
func (s *Selection) Revision() uint64 {
	return s.revision
}

// Groups returns the report's groups in report order.
func (s *Selection) Groups() []backend.ActionGroup {
	out := make([]backend.ActionGroup, 0, len(s.groupIDs))
	for _, id := range s.groupIDs {
		out = append(out, s.groups[id])
	}
	return out
}

// Lookup finds a known action by key.
func (s *Selection) Lookup(k backend.ActionKey) (backend.Action, bool) {
	a, ok := s.actions[k]
	return a, ok
}
