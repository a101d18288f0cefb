// Package store provides the durable persistence primitive shared by
// Herald's record collections: bounded, concurrency-safe lists of records
// with atomic, crash-safe snapshot persistence.
package store

import "sync"

// Backend persists the serialized snapshot of one collection.
// Save is all-or-nothing: a failed save must leave the previously
// persisted snapshot intact.
type Backend interface {
	// Load returns the last persisted snapshot, or (nil, nil) when
	// nothing has been persisted yet.
	Load() ([]byte, error)
	// Save atomically replaces the persisted snapshot.
	Save(data []byte) error
}

// MemoryBackend keeps the snapshot in memory. Used by tests and the
// "memory" storage mode.
type MemoryBackend struct {
	mu   sync.Mutex
	data []byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (m *MemoryBackend) Load() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out, nil
}

func (m *MemoryBackend) Save(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make([]byte, len(data))
	copy(m.data, data)
	return nil
}
