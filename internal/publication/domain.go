// internal/publication/domain.go
package publication

import (
	"strings"

	"github.com/google/uuid"

	"sarpay/internal/catalog"
	"sarpay/internal/steplog"
)

// Request carries the catalog fields for a new publication. ManuscriptID is
// optional; when set, the referenced manuscript must be approved and is
// transitioned to published as the saga's final step.
type Request struct {
	Title        string     `json:"title"`
	Author       string     `json:"author"`
	Description  string     `json:"description"`
	Category     string     `json:"category"`
	Edition      string     `json:"edition"`
	Price        float64    `json:"price"`
	TotalCopies  int        `json:"total_copies"`
	ManuscriptID *uuid.UUID `json:"manuscript_id,omitempty"`
}

func (r Request) validate() error {
	required := []struct {
		field string
		value string
	}{
		{"title", r.Title},
		{"author", r.Author},
		{"description", r.Description},
		{"category", r.Category},
		{"edition", r.Edition},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return &ValidationError{Field: f.field, Reason: "is required"}
		}
	}
	if r.Price <= 0 {
		return &ValidationError{Field: "price", Reason: "must be greater than zero"}
	}
	if r.TotalCopies < 0 {
		return &ValidationError{Field: "total_copies", Reason: "must not be negative"}
	}
	return nil
}

// State names where a saga run ended up.
type State string

const (
	StateStarted                State = "started"
	StateCatalogPersisted       State = "catalog_persisted"
	StateEmbeddingAttempted     State = "embedding_attempted"
	StateMarketingAttempted     State = "marketing_attempted"
	StateManuscriptTransitioned State = "manuscript_transitioned"
	StateCompleted              State = "completed"
	StateRolledBack             State = "rolled_back"
)

// StepOutcome reports how one soft step went. A failed soft step never fails
// the publication; it is recorded here and in the attempt log for retries.
type StepOutcome struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (o StepOutcome) succeeded() bool {
	return o.Status == string(steplog.OutcomeSucceeded)
}

// Result is the structured outcome of a completed publication.
type Result struct {
	Success   bool          `json:"success"`
	State     State         `json:"state"`
	Book      *catalog.Book `json:"book"`
	Embedding StepOutcome   `json:"embedding"`
	Marketing StepOutcome   `json:"marketing"`
	Summary   string        `json:"summary"`
}

// CompensationOutcome is one compensating action and whether it worked.
type CompensationOutcome struct {
	Action    string `json:"action"`
	Succeeded bool   `json:"succeeded"`
	Error     string `json:"error,omitempty"`
}

// CompensationReport lists every compensating action a rollback attempted.
// RollbackPerformed is true once at least one delete or revert was attempted,
// regardless of whether it worked; recording an orphaned side effect alone
// does not count.
type CompensationReport struct {
	Outcomes          []CompensationOutcome `json:"outcomes"`
	RollbackPerformed bool                  `json:"rollback_performed"`
}

// Statuses of a retry operation.
const (
	RetryStatusRetried          = "retried"
	RetryStatusAlreadySucceeded = "already_succeeded"
)

// RetryResult reports a manual re-trigger of a soft step. When the step's
// last attempt already succeeded nothing is re-invoked and Outcome is nil.
type RetryResult struct {
	BookID  uuid.UUID    `json:"book_id"`
	Step    steplog.Step `json:"step"`
	Status  string       `json:"status"`
	Outcome *StepOutcome `json:"outcome,omitempty"`
}

// AttemptHistory is the operational view over the durable step log. It stays
// readable after a rollback deleted the book itself.
type AttemptHistory struct {
	BookID        uuid.UUID                    `json:"book_id"`
	Attempts      []*steplog.Attempt           `json:"attempts"`
	Compensations []*steplog.CompensationEntry `json:"compensations"`
}
