// Package console holds the I/O-free state behind the inventory, tasks and
// execute views: device selection, debounced search and import previews.
package console

import "sort"

// SelectState is the tri-state of a select-all checkbox
type SelectState int

const (
	SelectNone SelectState = iota
	SelectSome
	SelectAll
)

func (s SelectState) String() string {
	switch s {
	case SelectSome:
		return "some"
	case SelectAll:
		return "all"
	}
	return "none"
}

// Selection tracks selected device names against the currently visible set.
// Names selected and then filtered out stay selected but do not count
// towards State.
type Selection struct {
	selected map[string]struct{}
	visible  []string
}

// NewSelection creates an empty selection
func NewSelection() *Selection {
	return &Selection{selected: map[string]struct{}{}}
}

// SetVisible replaces the visible set, e.g. after filtering
func (s *Selection) SetVisible(names []string) {
	s.visible = append(s.visible[:0], names...)
}

// Visible returns the visible names in display order
func (s *Selection) Visible() []string {
	return append([]string(nil), s.visible...)
}

// Set selects or deselects one name
func (s *Selection) Set(name string, on bool) {
	if on {
		s.selected[name] = struct{}{}
	} else {
		delete(s.selected, name)
	}
}

// Toggle flips one name
func (s *Selection) Toggle(name string) {
	s.Set(name, !s.IsSelected(name))
}

// IsSelected reports whether name is selected
func (s *Selection) IsSelected(name string) bool {
	_, ok := s.selected[name]
	return ok
}

// State reports none/some/all relative to the visible set. An empty visible
// set is always SelectNone.
func (s *Selection) State() SelectState {
	n := 0
	for _, name := range s.visible {
		if s.IsSelected(name) {
			n++
		}
	}
	switch {
	case n == 0:
		return SelectNone
	case n == len(s.visible):
		return SelectAll
	}
	return SelectSome
}

// ToggleAll clears every visible name when all are selected, otherwise
// selects every visible name
func (s *Selection) ToggleAll() {
	on := s.State() != SelectAll
	for _, name := range s.visible {
		s.Set(name, on)
	}
}

// Selected returns every selected name, visible or not, sorted
func (s *Selection) Selected() []string {
	out := make([]string, 0, len(s.selected))
	for name := range s.selected {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// SelectedVisible returns the selected names that are visible, in display order
func (s *Selection) SelectedVisible() []string {
	var out []string
	for _, name := range s.visible {
		if s.IsSelected(name) {
			out = append(out, name)
		}
	}
	return out
}

// Retain drops selected names that are not in names, e.g. after a delete
func (s *Selection) Retain(names []string) {
	keep := make(map[string]struct{}, len(names))
	for _, n := range names {
		keep[n] = struct{}{}
	}
	for name := range s.selected {
		if _, ok := keep[name]; !ok {
			delete(s.selected, name)
		}
	}
}

// Clear deselects everything
func (s *Selection) Clear() {
	s.selected = map[string]struct{}{}
}

// Len is the number of selected names
func (s *Selection) Len() int {
	return len(s.selected)
}
