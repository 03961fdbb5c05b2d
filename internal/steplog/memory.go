// internal/steplog/memory.go
package steplog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu            sync.Mutex
	nextID        int64
	attempts      []*Attempt
	compensations []*CompensationEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) RecordAttempt(ctx context.Context, a *Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	a.ID = m.nextID
	a.CreatedAt = time.Now().UTC()

	stored := *a
	m.attempts = append(m.attempts, &stored)
	return nil
}

func (m *MemoryStore) LastAttempt(ctx context.Context, bookID uuid.UUID, step Step) (*Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.attempts) - 1; i >= 0; i-- {
		if m.attempts[i].BookID == bookID && m.attempts[i].Step == step {
			a := *m.attempts[i]
			return &a, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) ListAttempts(ctx context.Context, bookID uuid.UUID) ([]*Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var attempts []*Attempt
	for _, a := range m.attempts {
		if a.BookID == bookID {
			stored := *a
			attempts = append(attempts, &stored)
		}
	}
	return attempts, nil
}

func (m *MemoryStore) RecordCompensation(ctx context.Context, e *CompensationEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	e.ID = m.nextID
	e.CreatedAt = time.Now().UTC()

	stored := *e
	m.compensations = append(m.compensations, &stored)
	return nil
}

func (m *MemoryStore) ListCompensations(ctx context.Context, bookID uuid.UUID) ([]*CompensationEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var entries []*CompensationEntry
	for _, e := range m.compensations {
		if e.BookID == bookID {
			stored := *e
			entries = append(entries, &stored)
		}
	}
	return entries, nil
}
