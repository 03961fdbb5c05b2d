// internal/catalog/implementation.go
package catalog

import (
	"context"
	"log"

	"github.com/google/uuid"
)

// service implements the Service interface.
type service struct {
	store Store
}

// NewService creates a new catalog service instance.
func NewService(store Store) Service {
	return &service{store: store}
}

func (s *service) GetBook(ctx context.Context, id uuid.UUID) (*Book, error) {
	return s.store.Get(ctx, id)
}

// AdjustInventory changes the declared print-run size of a book. The store
// makes the decision and the write in a single transaction.
func (s *service) AdjustInventory(ctx context.Context, id uuid.UUID, direction Direction, amount int) (*InventorySummary, error) {
	summary, err := s.store.AdjustTotalCopies(ctx, id, direction, amount)
	if err != nil {
		return nil, err
	}

	log.Printf("Inventory adjusted for book %s: total=%d sold=%d available=%d", id, summary.TotalCopies, summary.Sold, summary.Available)
	return summary, nil
}

func (s *service) Search(ctx context.Context, query string) ([]*Book, error) {
	return s.store.Search(ctx, query)
}
