// internal/catalog/memory.go
package catalog

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used by tests and local runs without
// PostgreSQL. Books and sold counts live under one lock so check-and-write
// paths stay atomic, mirroring the row lock the Postgres store takes.
type MemoryStore struct {
	mu    sync.Mutex
	books map[uuid.UUID]*Book
	sold  map[uuid.UUID]int
}

// NewMemoryStore creates an empty in-memory book store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books: make(map[uuid.UUID]*Book),
		sold:  make(map[uuid.UUID]int),
	}
}

func (m *MemoryStore) Insert(ctx context.Context, book *Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if book.ManuscriptID != nil {
		for _, b := range m.books {
			if b.ManuscriptID != nil && *b.ManuscriptID == *book.ManuscriptID {
				return ErrManuscriptAlreadyPublished
			}
		}
	}

	now := time.Now().UTC()
	book.CreatedAt = now
	book.UpdatedAt = now
	book.Sold = 0
	book.Available = book.TotalCopies

	stored := *book
	m.books[book.ID] = &stored
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(id)
}

// get returns a copy with derived fields filled. Callers must hold mu.
func (m *MemoryStore) get(id uuid.UUID) (*Book, error) {
	b, ok := m.books[id]
	if !ok {
		return nil, ErrNotFound
	}
	book := *b
	book.Sold = m.sold[id]
	book.Available = book.TotalCopies - book.Sold
	return &book, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.books[id]; !ok {
		return ErrNotFound
	}
	delete(m.books, id)
	delete(m.sold, id)
	return nil
}

func (m *MemoryStore) AdjustTotalCopies(ctx context.Context, id uuid.UUID, direction Direction, amount int) (*InventorySummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.books[id]
	if !ok {
		return nil, ErrNotFound
	}

	sold := m.sold[id]
	newTotal, err := applyAdjustment(id, b.TotalCopies, sold, amount, direction)
	if err != nil {
		return nil, err
	}

	b.TotalCopies = newTotal
	b.UpdatedAt = time.Now().UTC()
	return &InventorySummary{
		BookID:      id,
		TotalCopies: newTotal,
		Sold:        sold,
		Available:   newTotal - sold,
	}, nil
}

// RecordSale atomically checks availability and counts qty physical copies as
// sold. The in-memory purchase store calls this when it records a completed
// physical purchase.
func (m *MemoryStore) RecordSale(ctx context.Context, id uuid.UUID, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.books[id]
	if !ok {
		return ErrNotFound
	}
	available := b.TotalCopies - m.sold[id]
	if qty > available {
		return &InsufficientStockError{BookID: id, Requested: qty, Available: available}
	}
	m.sold[id] += qty
	return nil
}

func (m *MemoryStore) Search(ctx context.Context, query string) ([]*Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := strings.ToLower(query)
	var books []*Book
	for id, b := range m.books {
		if strings.Contains(strings.ToLower(b.Title), q) ||
			strings.Contains(strings.ToLower(b.Author), q) ||
			strings.Contains(strings.ToLower(b.Category), q) {
			book, _ := m.get(id)
			books = append(books, book)
		}
	}
	return books, nil
}
