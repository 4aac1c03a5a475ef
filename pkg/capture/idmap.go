package capture

import (
	"sort"
	"sync"
)

type backendKey struct {
	backend string
	local   uint16
}

// BackendCounter identifies a counter by backend and backend-local id.
type BackendCounter struct {
	Backend string
	LocalID uint16
}

// IDMap maps backend-local counter ids to global UIDs and back.
type IDMap struct {
	mu       sync.RWMutex
	toGlobal map[backendKey]uint16
	toLocal  map[uint16]BackendCounter
}

// NewIDMap creates an empty map.
func NewIDMap() *IDMap {
	return &IDMap{
		toGlobal: make(map[backendKey]uint16),
		toLocal:  make(map[uint16]BackendCounter),
	}
}

// RegisterMapping records that local id on backend is global uid.
// A later mapping for the same global uid or local id replaces the earlier one.
func (m *IDMap) RegisterMapping(global, local uint16, backend string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.toLocal[global]; ok {
		delete(m.toGlobal, backendKey{old.Backend, old.LocalID})
	}
	k := backendKey{backend, local}
	if old, ok := m.toGlobal[k]; ok {
		delete(m.toLocal, old)
	}
	m.toGlobal[k] = global
	m.toLocal[global] = BackendCounter{Backend: backend, LocalID: local}
}

// GlobalID returns the global uid of a backend-local id.
func (m *IDMap) GlobalID(local uint16, backend string) (uint16, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.toGlobal[backendKey{backend, local}]
	return g, ok
}

// BackendID returns the backend counter behind a global uid.
func (m *IDMap) BackendID(global uint16) (BackendCounter, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.toLocal[global]
	return c, ok
}

// Backends returns the sorted names of all backends with mappings.
func (m *IDMap) Backends() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, c := range m.toLocal {
		seen[c.Backend] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for b := range seen {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of mappings.
func (m *IDMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.toLocal)
}

// Reset removes every mapping.
func (m *IDMap) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.toGlobal)
	clear(m.toLocal)
}
