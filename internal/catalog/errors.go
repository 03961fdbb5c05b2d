// internal/catalog/errors.go
package catalog

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no book exists for the given ID.
	ErrNotFound = errors.New("book not found")

	// ErrManuscriptAlreadyPublished is returned when inserting a book for a
	// manuscript that already has a catalog entry.
	ErrManuscriptAlreadyPublished = errors.New("manuscript already has a published catalog entry")
)

// InvalidAdjustmentError rejects an inventory adjustment that would violate
// the ledger invariants. It carries the state the decision was made against
// so callers can report what was actually rejected.
type InvalidAdjustmentError struct {
	BookID      uuid.UUID `json:"book_id"`
	TotalCopies int       `json:"total_copies"`
	Sold        int       `json:"sold"`
	Direction   Direction `json:"direction"`
	Amount      int       `json:"amount"`
	Reason      string    `json:"reason"`
}

func (e *InvalidAdjustmentError) Error() string {
	return fmt.Sprintf("invalid inventory adjustment for book %s: %s", e.BookID, e.Reason)
}

// InsufficientStockError rejects a physical purchase that asks for more
// copies than remain available.
type InsufficientStockError struct {
	BookID    uuid.UUID `json:"book_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for book %s: requested %d, available %d", e.BookID, e.Requested, e.Available)
}
