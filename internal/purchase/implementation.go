// internal/purchase/implementation.go
package purchase

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"sarpay/internal/catalog"
)

// service implements the Service interface.
type service struct {
	store    Store
	recorded metric.Int64Counter
	rejected metric.Int64Counter
}

// NewService creates a new purchase service instance.
func NewService(store Store) Service {
	meter := otel.Meter("sarpay/purchase")
	recorded, _ := meter.Int64Counter("purchase.lines.recorded")
	rejected, _ := meter.Int64Counter("purchase.lines.rejected")

	return &service{
		store:    store,
		recorded: recorded,
		rejected: rejected,
	}
}

func (s *service) RecordCompletedPurchase(ctx context.Context, buyerID, paymentRef string, lineIndex int, line PaymentLine) (*Record, bool, error) {
	if err := validateLine(line); err != nil {
		return nil, false, err
	}

	rec := &Record{
		ID:         uuid.New(),
		BookID:     line.BookID,
		BuyerID:    buyerID,
		Delivery:   line.Delivery,
		Quantity:   line.Quantity,
		UnitPrice:  line.UnitPrice,
		TotalPrice: line.UnitPrice * float64(line.Quantity),
		PaymentRef: paymentRef,
		LineIndex:  lineIndex,
		Status:     StatusCompleted,
	}

	return s.store.Create(ctx, rec)
}

// HandlePaymentConfirmed walks the event lines one by one. Domain rejections
// (insufficient stock, unknown book, malformed line) only fail their own
// line; infrastructure errors abort the whole event so the provider retries
// it, which the idempotency key makes safe.
func (s *service) HandlePaymentConfirmed(ctx context.Context, evt PaymentConfirmedEvent) (*PaymentResult, error) {
	if evt.PaymentRef == "" {
		return nil, fmt.Errorf("%w: payment_ref is required", ErrInvalidEvent)
	}
	if len(evt.Lines) == 0 {
		return nil, fmt.Errorf("%w: at least one line is required", ErrInvalidEvent)
	}

	result := &PaymentResult{PaymentRef: evt.PaymentRef}
	var recorded, replayed, rejectedCount int

	for i, line := range evt.Lines {
		rec, created, err := s.RecordCompletedPurchase(ctx, evt.BuyerID, evt.PaymentRef, i, line)
		if err != nil {
			lr, ok := rejectLine(i, err)
			if !ok {
				return nil, fmt.Errorf("failed to record line %d of payment %s: %w", i, evt.PaymentRef, err)
			}
			s.rejected.Add(ctx, 1)
			rejectedCount++
			result.Lines = append(result.Lines, lr)
			continue
		}

		lr := LineResult{LineIndex: i, PurchaseID: &rec.ID}
		if created {
			lr.Status = LineRecorded
			s.recorded.Add(ctx, 1)
			recorded++
		} else {
			lr.Status = LineAlreadyRecorded
			replayed++
		}
		result.Lines = append(result.Lines, lr)
	}

	log.Printf("Payment %s processed: %d recorded, %d replayed, %d rejected", evt.PaymentRef, recorded, replayed, rejectedCount)
	return result, nil
}

// rejectLine maps domain errors to a per-line rejection. The second return
// is false for errors that should abort the event instead.
func rejectLine(index int, err error) (LineResult, bool) {
	lr := LineResult{LineIndex: index, Status: LineRejected, Error: err.Error()}

	var insufficient *catalog.InsufficientStockError
	switch {
	case errors.Is(err, ErrInvalidLine):
		lr.Code = "invalid_line"
	case errors.As(err, &insufficient):
		lr.Code = "insufficient_stock"
	case errors.Is(err, catalog.ErrNotFound):
		lr.Code = "book_not_found"
	default:
		return LineResult{}, false
	}
	return lr, true
}

func validateLine(line PaymentLine) error {
	if line.BookID == uuid.Nil {
		return fmt.Errorf("%w: book_id is required", ErrInvalidLine)
	}
	if line.Delivery != DeliveryPhysical && line.Delivery != DeliveryDigital {
		return fmt.Errorf("%w: delivery must be physical or digital", ErrInvalidLine)
	}
	if line.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidLine)
	}
	if line.UnitPrice < 0 {
		return fmt.Errorf("%w: unit price cannot be negative", ErrInvalidLine)
	}
	return nil
}

func (s *service) ListForBook(ctx context.Context, bookID uuid.UUID) ([]*Record, error) {
	return s.store.ListForBook(ctx, bookID)
}
