// Package idmap maps external user ids to the dense slot ids of one index
// snapshot and back.
package idmap

import (
	"errors"
	"fmt"
)

// Common errors for map construction and lookup.
var (
	ErrDuplicateID    = errors.New("idmap: duplicate external id")
	ErrNotFound       = errors.New("idmap: external id not found")
	ErrSlotOutOfRange = errors.New("idmap: slot out of range")
)

// Map is an immutable bijection between external ids and slots [0, N).
// Slot i is the id passed at position i to New.
type Map struct {
	ids   []string
	slots map[string]int
}

// New builds a map from ids in slot order.
func New(ids []string) (*Map, error) {
	m := &Map{
		ids:   make([]string, len(ids)),
		slots: make(map[string]int, len(ids)),
	}

	for i, id := range ids {
		if _, ok := m.slots[id]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, id)
		}
		m.ids[i] = id
		m.slots[id] = i
	}

	return m, nil
}

// Len returns the number of mapped ids.
func (m *Map) Len() int {
	return len(m.ids)
}

// Slot returns the slot assigned to the given external id.
func (m *Map) Slot(id string) (int, error) {
	slot, ok := m.slots[id]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return slot, nil
}

// ID returns the external id assigned to the given slot.
func (m *Map) ID(slot int) (string, error) {
	if slot < 0 || slot >= len(m.ids) {
		return "", fmt.Errorf("%w: slot %d, count %d", ErrSlotOutOfRange, slot, len(m.ids))
	}
	return m.ids[slot], nil
}

// IDs returns a copy of all external ids in slot order.
func (m *Map) IDs() []string {
	out := make([]string, len(m.ids))
	copy(out, m.ids)
	return out
}
