// internal/manuscript/memory.go
package manuscript

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and local runs. Transitions are
// serialized by a single lock, which gives the same single-winner guarantee
// the Postgres compare-and-set provides.
type MemoryStore struct {
	mu          sync.Mutex
	manuscripts map[uuid.UUID]*Manuscript
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{manuscripts: make(map[uuid.UUID]*Manuscript)}
}

func (m *MemoryStore) Insert(ctx context.Context, ms *Manuscript) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	ms.CreatedAt = now
	ms.UpdatedAt = now

	stored := *ms
	m.manuscripts[ms.ID] = &stored
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Manuscript, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms, ok := m.manuscripts[id]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *ms
	return &copy, nil
}

func (m *MemoryStore) TransitionStatus(ctx context.Context, id uuid.UUID, expected, next Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms, ok := m.manuscripts[id]
	if !ok {
		return ErrNotFound
	}
	if ms.Status != expected {
		return &StatusConflictError{ManuscriptID: id, Expected: expected, Actual: ms.Status}
	}
	ms.Status = next
	ms.UpdatedAt = time.Now().UTC()
	return nil
}
