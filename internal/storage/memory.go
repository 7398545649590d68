package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryBackend keeps documents in memory (for testing and single-shot CLI runs).
type MemoryBackend struct {
	docs map[string]map[string][]byte
	mu   sync.RWMutex
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[string]map[string][]byte)}
}

func (m *MemoryBackend) Get(ctx context.Context, namespace, id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.docs[namespace][id]
	if !ok {
		return nil, errNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryBackend) Put(ctx context.Context, namespace, id string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.docs[namespace]
	if !ok {
		ns = make(map[string][]byte)
		m.docs[namespace] = ns
	}
	ns[id] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context, namespace, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.docs[namespace], id)
	return nil
}

// List returns documents ordered by id.
func (m *MemoryBackend) List(ctx context.Context, namespace string) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.docs[namespace]))
	for id := range m.docs[namespace] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([][]byte, 0, len(ids))
	for _, id := range ids {
		out = append(out, append([]byte(nil), m.docs[namespace][id]...))
	}
	return out, nil
}

func (m *MemoryBackend) Close() error { return nil }
