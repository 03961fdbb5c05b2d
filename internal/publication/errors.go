// internal/publication/errors.go
package publication

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrRateLimited rejects a retry request over the retry budget.
var ErrRateLimited = errors.New("too many retry requests")

// ValidationError rejects a publish request before any side effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("field %q %s", e.Field, e.Reason)
}

// SagaError reports a hard step failing after durable side effects had
// already happened. Report says what the rollback did; callers must inspect
// it when a compensating action itself failed. BookID names the rolled-back
// catalog entry so its attempt history stays addressable after the delete.
type SagaError struct {
	BookID uuid.UUID
	Step   string
	Report *CompensationReport
	Err    error
}

func (e *SagaError) Error() string {
	return fmt.Sprintf("publication failed at step %s (rollback performed: %t): %v",
		e.Step, e.Report.RollbackPerformed, e.Err)
}

func (e *SagaError) Unwrap() error {
	return e.Err
}
