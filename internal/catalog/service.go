// internal/catalog/service.go
package catalog

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the catalog operations exposed over HTTP.
type Service interface {
	GetBook(ctx context.Context, id uuid.UUID) (*Book, error)
	AdjustInventory(ctx context.Context, id uuid.UUID, direction Direction, amount int) (*InventorySummary, error)
	Search(ctx context.Context, query string) ([]*Book, error)
}
