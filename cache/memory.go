package cache

import (
	"context"
	"sync"
)

type memoryEntry struct {
	data  []byte
	fresh bool
}

// Memory is a process-local Backend.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	gens    map[string]uint64
}

// NewMemory returns an empty in-process backend.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		gens:    make(map[string]uint64),
	}
}

func (m *Memory) Load(_ context.Context, key string) (Entry, bool, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gen := m.gens[key]
	e, ok := m.entries[key]
	if !ok {
		return Entry{}, false, gen, nil
	}
	return Entry{Data: e.data, Fresh: e.fresh}, true, gen, nil
}

func (m *Memory) Store(_ context.Context, key string, data []byte, gen uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gens[key] != gen {
		return false, nil
	}
	m.entries[key] = memoryEntry{data: append([]byte(nil), data...), fresh: true}
	return true, nil
}

func (m *Memory) Invalidate(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gens[key]++
	if e, ok := m.entries[key]; ok {
		e.fresh = false
		m.entries[key] = e
	}
	return nil
}
