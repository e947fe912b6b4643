package credstore

import (
	"context"
	"sync"
)

// MemoryBackend keeps the triple in process memory. It backs single-run
// tools that have no reason to persist a session, and most of the test
// suite.
type MemoryBackend struct {
	mu sync.RWMutex
	t  *Triple
}

func NewMemoryBackend() *MemoryBackend { return &MemoryBackend{} }

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Read(ctx context.Context) (*Triple, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.t == nil {
		return nil, nil
	}
	copied := *m.t
	return &copied, nil
}

func (m *MemoryBackend) Write(ctx context.Context, t Triple) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t = &t
	return nil
}

func (m *MemoryBackend) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t = nil
	return nil
}
