// internal/manuscript/domain.go
package manuscript

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is a manuscript's position in the review workflow.
type Status string

const (
	StatusSubmitted   Status = "submitted"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusPublished   Status = "published"
	StatusArchived    Status = "archived"
)

// Manuscript is the review-side record a published book may originate from.
type Manuscript struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrNotFound is returned when no manuscript exists for the given ID.
var ErrNotFound = errors.New("manuscript not found")

// StatusConflictError is returned when a compare-and-set transition finds the
// manuscript in a different status than the caller expected.
type StatusConflictError struct {
	ManuscriptID uuid.UUID `json:"manuscript_id"`
	Expected     Status    `json:"expected"`
	Actual       Status    `json:"actual"`
}

func (e *StatusConflictError) Error() string {
	return fmt.Sprintf("manuscript %s is %q, expected %q", e.ManuscriptID, e.Actual, e.Expected)
}
