// internal/publication/service.go
package publication

import (
	"context"

	"github.com/google/uuid"

	"sarpay/internal/catalog"
	"sarpay/internal/steplog"
)

// EmbeddingProvider generates and caches the derived embedding artifact for
// a catalog entry. A soft dependency: failures are recorded, never fatal.
type EmbeddingProvider interface {
	ProcessBook(ctx context.Context, book *catalog.Book) error
}

// MarketingNotifier fires the new-release campaign for a catalog entry.
// Also soft, but irreversible once fired.
type MarketingNotifier interface {
	AnnounceBook(ctx context.Context, book *catalog.Book) error
}

// Service runs the publication saga and its follow-up operations.
type Service interface {
	// Publish creates the catalog entry, runs the soft steps, and transitions
	// the manuscript when one is referenced. It returns a Result on the
	// completed path and a ValidationError, precondition error, or SagaError
	// otherwise.
	Publish(ctx context.Context, req Request) (*Result, error)

	// RetryStep re-invokes a soft step iff its last recorded attempt failed
	// or none exists. Already-succeeded steps are reported, not re-fired.
	RetryStep(ctx context.Context, bookID uuid.UUID, step steplog.Step) (*RetryResult, error)

	// AttemptHistory returns the durable step and compensation records for a
	// book, including books that a rollback has since deleted.
	AttemptHistory(ctx context.Context, bookID uuid.UUID) (*AttemptHistory, error)
}
