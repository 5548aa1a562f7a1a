package storage

import (
	"context"
	"sync"
)

// KV is the durable key-value collaborator used for history records and
// per-task monitor configuration. Values are JSON documents.
//
// GetItem returns (nil, nil) for a missing key so callers can distinguish
// "no data yet" from a real backend failure.
type KV interface {
	GetItem(ctx context.Context, key string) ([]byte, error)
	SetItem(ctx context.Context, key string, value []byte) error
}

// MemoryKV is a process-local KV used when no backend is configured and as a
// test double. Safe for concurrent use.
type MemoryKV struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemoryKV constructs an empty in-memory store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{items: make(map[string][]byte)}
}

// GetItem returns a copy of the stored value, or nil when absent.
func (m *MemoryKV) GetItem(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.items[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// SetItem stores a copy of value under key.
func (m *MemoryKV) SetItem(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	m.items[key] = stored
	return nil
}

var _ KV = (*MemoryKV)(nil)
