// internal/catalog/domain.go
package catalog

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Book is a published catalog entry. TotalCopies is the declared size of the
// physical print run. Sold and Available are derived from completed physical
// purchases on every read and are never stored.
type Book struct {
	ID           uuid.UUID  `json:"id"`
	Title        string     `json:"title"`
	Author       string     `json:"author"`
	Description  string     `json:"description"`
	Category     string     `json:"category"`
	Edition      string     `json:"edition,omitempty"`
	Price        float64    `json:"price"`
	TotalCopies  int        `json:"total_copies"`
	Sold         int        `json:"sold"`
	Available    int        `json:"available"`
	ManuscriptID *uuid.UUID `json:"manuscript_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Direction selects which way an inventory adjustment moves the declared total.
type Direction string

const (
	DirectionAdd    Direction = "add"
	DirectionDeduct Direction = "deduct"
)

// InventorySummary is the ledger view of a single book after an adjustment.
type InventorySummary struct {
	BookID      uuid.UUID `json:"book_id"`
	TotalCopies int       `json:"total_copies"`
	Sold        int       `json:"sold"`
	Available   int       `json:"available"`
}

// applyAdjustment computes the new declared total for an adjustment. The new
// total may never drop below zero or below the number of copies already sold;
// landing exactly on sold is allowed and leaves zero available.
func applyAdjustment(bookID uuid.UUID, total, sold, amount int, direction Direction) (int, error) {
	reject := func(reason string) error {
		return &InvalidAdjustmentError{
			BookID:      bookID,
			TotalCopies: total,
			Sold:        sold,
			Direction:   direction,
			Amount:      amount,
			Reason:      reason,
		}
	}

	if amount <= 0 {
		return 0, reject("amount must be a positive integer")
	}

	var newTotal int
	switch direction {
	case DirectionAdd:
		newTotal = total + amount
	case DirectionDeduct:
		newTotal = total - amount
	default:
		return 0, reject(fmt.Sprintf("unknown direction %q", direction))
	}

	if newTotal < 0 {
		return 0, reject("declared total cannot go negative")
	}
	if newTotal < sold {
		return 0, reject(fmt.Sprintf("declared total %d cannot drop below %d copies already sold", newTotal, sold))
	}

	return newTotal, nil
}
