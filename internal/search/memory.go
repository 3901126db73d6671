package search

import (
	"context"
	"sync"
)

// MemoryEngine is an in-process Engine used for offline runs and tests.
type MemoryEngine struct {
	mu       sync.RWMutex
	objects  map[string]SearchIndexObject
	settings *Settings
}

// NewMemory creates an empty in-memory engine.
func NewMemory() *MemoryEngine {
	return &MemoryEngine{objects: make(map[string]SearchIndexObject)}
}

func (m *MemoryEngine) BulkUpsert(_ context.Context, objects []SearchIndexObject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, obj := range objects {
		m.objects[obj.ObjectID] = obj
	}
	return nil
}

func (m *MemoryEngine) ApplySettings(_ context.Context, settings Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = &settings
	return nil
}

func (m *MemoryEngine) Purge(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects = make(map[string]SearchIndexObject)
	return nil
}

// Get returns the stored object for the ID.
func (m *MemoryEngine) Get(objectID string) (SearchIndexObject, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[objectID]
	return obj, ok
}

// Len reports how many objects the index holds.
func (m *MemoryEngine) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// AppliedSettings returns the last settings pushed, or nil.
func (m *MemoryEngine) AppliedSettings() *Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}
