// internal/publication/saga.go
package publication

import (
	"context"
	"log"

	"sarpay/internal/catalog"
	"sarpay/internal/manuscript"
	"sarpay/internal/steplog"
)

// Compensation action names, as they appear in reports and the durable log.
const (
	actionDeleteCatalogEntry      = "delete_catalog_entry"
	actionRecordOrphanedMarketing = "record_orphaned_marketing"
	actionRevertManuscriptStatus  = "revert_manuscript_status"
)

// compensation undoes a step's durable effect, or documents that it cannot
// be undone. Undo marks the delete/revert kind; only those flip
// RollbackPerformed.
type compensation struct {
	action string
	undo   bool
	run    func(ctx context.Context, st *sagaState) error
}

// sagaStep is one entry of the publication step list. Soft steps record
// their outcome and never abort the run; a hard step failing triggers
// compensation of everything marked dirty so far. DetachAfter cuts the
// caller's cancellation once the step's effect is durable: from there the
// saga finishes or rolls back on its own.
type sagaStep struct {
	name        string
	soft        bool
	after       State
	detachAfter bool
	run         func(ctx context.Context, st *sagaState) error
	compensate  *compensation
}

// sagaState is the mutable working set of one saga run. Run funcs mark
// dirty[name] when their side effect may have reached a durable store; the
// manuscript transition marks itself before the write because a failed
// compare-and-set may still have landed.
type sagaState struct {
	req        Request
	manuscript *manuscript.Manuscript
	book       *catalog.Book
	state      State
	dirty      map[string]bool
	embedding  StepOutcome
	marketing  StepOutcome
	failure    error
}

func newSagaState(req Request, m *manuscript.Manuscript) *sagaState {
	return &sagaState{
		req:        req,
		manuscript: m,
		state:      StateStarted,
		dirty:      make(map[string]bool),
	}
}

// runSaga walks the step list in order. A hard failure before anything
// durable happened is returned as-is; after that it comes back as a
// SagaError wrapping the compensation report.
func (s *service) runSaga(ctx context.Context, st *sagaState, steps []sagaStep) error {
	for i, step := range steps {
		err := step.run(ctx, st)
		if err != nil && !step.soft {
			if len(st.dirty) == 0 {
				return err
			}
			st.failure = err
			report := s.compensate(context.WithoutCancel(ctx), st, steps, i)
			st.state = StateRolledBack
			return &SagaError{BookID: st.book.ID, Step: step.name, Report: report, Err: err}
		}
		st.state = step.after
		if step.detachAfter {
			ctx = context.WithoutCancel(ctx)
		}
	}
	return nil
}

// compensate walks back from the failed step, running each declared
// compensation whose step is dirty. Every sub-operation is best-effort: a
// failed delete or revert goes into the report and the durable compensation
// log, and the walk continues.
func (s *service) compensate(ctx context.Context, st *sagaState, steps []sagaStep, failedIdx int) *CompensationReport {
	report := &CompensationReport{}

	for i := failedIdx; i >= 0; i-- {
		step := steps[i]
		if step.compensate == nil || !st.dirty[step.name] {
			continue
		}

		outcome := CompensationOutcome{Action: step.compensate.action}
		if err := step.compensate.run(ctx, st); err != nil {
			outcome.Error = err.Error()
			log.Printf("Compensation %s for book %s failed: %v", step.compensate.action, st.book.ID, err)
			if step.compensate.undo {
				entry := &steplog.CompensationEntry{
					BookID: st.book.ID,
					Action: step.compensate.action,
					Reason: "compensation failed: " + err.Error(),
				}
				if logErr := s.attempts.RecordCompensation(ctx, entry); logErr != nil {
					log.Printf("Failed to record compensation entry for book %s: %v", st.book.ID, logErr)
				}
			}
		} else {
			outcome.Succeeded = true
			log.Printf("Compensated %s for book %s", step.compensate.action, st.book.ID)
		}

		if step.compensate.undo {
			report.RollbackPerformed = true
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}

	return report
}
