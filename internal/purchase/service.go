// internal/purchase/service.go
package purchase

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the purchase recording operations.
type Service interface {
	// RecordCompletedPurchase records one paid line. The returned bool is
	// false when the line was already recorded by an earlier delivery.
	RecordCompletedPurchase(ctx context.Context, buyerID, paymentRef string, lineIndex int, line PaymentLine) (*Record, bool, error)

	// HandlePaymentConfirmed processes every line of a confirmed payment
	// independently and reports a per-line result.
	HandlePaymentConfirmed(ctx context.Context, evt PaymentConfirmedEvent) (*PaymentResult, error)

	ListForBook(ctx context.Context, bookID uuid.UUID) ([]*Record, error)
}
