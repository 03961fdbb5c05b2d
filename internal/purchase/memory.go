// internal/purchase/memory.go
package purchase

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"sarpay/internal/catalog"
)

type lineKey struct {
	ref  string
	line int
}

// MemoryStore is an in-memory Store for tests and local runs. It delegates
// the availability check to the catalog memory store, which holds a single
// lock over books and sold counts.
type MemoryStore struct {
	mu      sync.Mutex
	books   *catalog.MemoryStore
	byKey   map[lineKey]*Record
	records []*Record
}

func NewMemoryStore(books *catalog.MemoryStore) *MemoryStore {
	return &MemoryStore{
		books: books,
		byKey: make(map[lineKey]*Record),
	}
}

func (m *MemoryStore) Create(ctx context.Context, rec *Record) (*Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := lineKey{ref: rec.PaymentRef, line: rec.LineIndex}
	if existing, ok := m.byKey[key]; ok {
		stored := *existing
		return &stored, false, nil
	}

	if rec.Delivery == DeliveryPhysical && rec.Status == StatusCompleted {
		if err := m.books.RecordSale(ctx, rec.BookID, rec.Quantity); err != nil {
			return nil, false, err
		}
	} else {
		if _, err := m.books.Get(ctx, rec.BookID); err != nil {
			return nil, false, err
		}
	}

	rec.CreatedAt = time.Now().UTC()
	stored := *rec
	m.byKey[key] = &stored
	m.records = append(m.records, &stored)
	return rec, true, nil
}

func (m *MemoryStore) ListForBook(ctx context.Context, bookID uuid.UUID) ([]*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var records []*Record
	for _, rec := range m.records {
		if rec.BookID == bookID {
			stored := *rec
			records = append(records, &stored)
		}
	}
	return records, nil
}
