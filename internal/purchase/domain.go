// internal/purchase/domain.go
package purchase

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Delivery says whether a purchase consumes physical inventory.
type Delivery string

const (
	DeliveryPhysical Delivery = "physical"
	DeliveryDigital  Delivery = "digital"
)

// Status of a purchase record. Only completed physical purchases count
// against availability.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Record is one immutable line of a confirmed payment. The pair
// (payment_ref, line_index) identifies it across webhook redeliveries.
type Record struct {
	ID         uuid.UUID `json:"id"`
	BookID     uuid.UUID `json:"book_id"`
	BuyerID    string    `json:"buyer_id"`
	Delivery   Delivery  `json:"delivery"`
	Quantity   int       `json:"quantity"`
	UnitPrice  float64   `json:"unit_price"`
	TotalPrice float64   `json:"total_price"`
	PaymentRef string    `json:"payment_ref"`
	LineIndex  int       `json:"line_index"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// PaymentConfirmedEvent is the webhook payload the payment provider sends
// once a payment settles. It may be delivered more than once.
type PaymentConfirmedEvent struct {
	PaymentRef string        `json:"payment_ref"`
	BuyerID    string        `json:"buyer_id"`
	Lines      []PaymentLine `json:"lines"`
}

// PaymentLine is a single purchased item inside a confirmed payment.
type PaymentLine struct {
	BookID    uuid.UUID `json:"book_id"`
	Delivery  Delivery  `json:"delivery"`
	Quantity  int       `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
}

// Statuses of a single line in a PaymentResult.
const (
	LineRecorded        = "recorded"
	LineAlreadyRecorded = "already_recorded"
	LineRejected        = "rejected"
)

// LineResult reports what happened to one line of a payment event.
type LineResult struct {
	LineIndex  int        `json:"line_index"`
	Status     string     `json:"status"`
	PurchaseID *uuid.UUID `json:"purchase_id,omitempty"`
	Code       string     `json:"code,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// PaymentResult is the per-line outcome of processing a payment event.
// Redelivered lines come back as already_recorded rather than failing.
type PaymentResult struct {
	PaymentRef string       `json:"payment_ref"`
	Lines      []LineResult `json:"lines"`
}

var (
	// ErrInvalidEvent rejects a payment event missing its reference or lines.
	ErrInvalidEvent = errors.New("invalid payment event")

	// ErrInvalidLine rejects a single malformed line; other lines of the
	// same event still process.
	ErrInvalidLine = errors.New("invalid purchase line")
)
