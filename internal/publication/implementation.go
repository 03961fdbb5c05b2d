// internal/publication/implementation.go
package publication

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"sarpay/internal/catalog"
	"sarpay/internal/manuscript"
	"sarpay/internal/steplog"
)

// Step names as they appear in saga errors and logs.
const (
	stepPersistCatalogEntry  = "persist_catalog_entry"
	stepGenerateEmbedding    = "generate_embedding"
	stepNotifyMarketing      = "notify_marketing"
	stepTransitionManuscript = "transition_manuscript"
)

// Config bounds the soft steps. Zero values fall back to defaults.
type Config struct {
	EmbeddingTimeout time.Duration
	MarketingTimeout time.Duration
}

// service implements the Service interface.
type service struct {
	books       catalog.Store
	manuscripts manuscript.Store
	attempts    steplog.Store
	embeddings  EmbeddingProvider
	marketing   MarketingNotifier

	embeddingTimeout time.Duration
	marketingTimeout time.Duration

	retryLimiter *rate.Limiter
	tracer       trace.Tracer
	completed    metric.Int64Counter
	rolledBack   metric.Int64Counter
}

// NewService creates the publication orchestrator.
func NewService(books catalog.Store, manuscripts manuscript.Store, attempts steplog.Store, embeddings EmbeddingProvider, marketing MarketingNotifier, cfg Config) Service {
	if cfg.EmbeddingTimeout <= 0 {
		cfg.EmbeddingTimeout = 15 * time.Second
	}
	if cfg.MarketingTimeout <= 0 {
		cfg.MarketingTimeout = 10 * time.Second
	}

	meter := otel.Meter("sarpay/publication")
	completed, _ := meter.Int64Counter("publication.sagas.completed")
	rolledBack, _ := meter.Int64Counter("publication.sagas.rolled_back")

	return &service{
		books:            books,
		manuscripts:      manuscripts,
		attempts:         attempts,
		embeddings:       embeddings,
		marketing:        marketing,
		embeddingTimeout: cfg.EmbeddingTimeout,
		marketingTimeout: cfg.MarketingTimeout,
		retryLimiter:     rate.NewLimiter(rate.Every(1*time.Minute), 5),
		tracer:           otel.Tracer("sarpay/publication"),
		completed:        completed,
		rolledBack:       rolledBack,
	}
}

func (s *service) Publish(ctx context.Context, req Request) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "publication.publish",
		trace.WithAttributes(
			attribute.String("book.title", req.Title),
			attribute.Bool("manuscript.linked", req.ManuscriptID != nil),
		),
	)
	defer span.End()

	if err := req.validate(); err != nil {
		return nil, err
	}

	var m *manuscript.Manuscript
	if req.ManuscriptID != nil {
		// Precondition check before any side effect. The transition step at
		// the end of the saga remains the authoritative compare-and-set.
		var err error
		m, err = s.manuscripts.Get(ctx, *req.ManuscriptID)
		if err != nil {
			return nil, err
		}
		if m.Status != manuscript.StatusApproved {
			return nil, &manuscript.StatusConflictError{
				ManuscriptID: m.ID,
				Expected:     manuscript.StatusApproved,
				Actual:       m.Status,
			}
		}
	}

	st := newSagaState(req, m)
	if err := s.runSaga(ctx, st, s.sagaSteps(m != nil)); err != nil {
		var sagaErr *SagaError
		if errors.As(err, &sagaErr) {
			s.rolledBack.Add(ctx, 1)
			span.SetAttributes(attribute.String("saga.failed_step", sagaErr.Step))
		}
		return nil, err
	}
	st.state = StateCompleted
	s.completed.Add(ctx, 1)

	result := &Result{
		Success:   true,
		State:     st.state,
		Book:      st.book,
		Embedding: st.embedding,
		Marketing: st.marketing,
		Summary:   summarize(st),
	}
	log.Printf("Published book %s (%s): %s", st.book.ID, st.book.Title, result.Summary)
	return result, nil
}

// sagaSteps declares the publication step list. The rollback order and the
// soft/hard split are data here, not control flow scattered over handlers.
func (s *service) sagaSteps(withManuscript bool) []sagaStep {
	steps := []sagaStep{
		{
			name:        stepPersistCatalogEntry,
			after:       StateCatalogPersisted,
			detachAfter: true,
			run:         s.persistCatalogEntry,
			compensate: &compensation{
				action: actionDeleteCatalogEntry,
				undo:   true,
				run:    s.deleteCatalogEntry,
			},
		},
		{
			name:  stepGenerateEmbedding,
			soft:  true,
			after: StateEmbeddingAttempted,
			run:   s.attemptEmbedding,
		},
		{
			name:  stepNotifyMarketing,
			soft:  true,
			after: StateMarketingAttempted,
			run:   s.attemptMarketing,
			compensate: &compensation{
				action: actionRecordOrphanedMarketing,
				run:    s.recordOrphanedMarketing,
			},
		},
	}
	if withManuscript {
		steps = append(steps, sagaStep{
			name:  stepTransitionManuscript,
			after: StateManuscriptTransitioned,
			run:   s.transitionManuscript,
			compensate: &compensation{
				action: actionRevertManuscriptStatus,
				undo:   true,
				run:    s.revertManuscript,
			},
		})
	}
	return steps
}

func (s *service) persistCatalogEntry(ctx context.Context, st *sagaState) error {
	book := &catalog.Book{
		ID:           uuid.New(),
		Title:        st.req.Title,
		Author:       st.req.Author,
		Description:  st.req.Description,
		Category:     st.req.Category,
		Edition:      st.req.Edition,
		Price:        st.req.Price,
		TotalCopies:  st.req.TotalCopies,
		ManuscriptID: st.req.ManuscriptID,
	}
	if err := s.books.Insert(ctx, book); err != nil {
		return fmt.Errorf("failed to persist catalog entry: %w", err)
	}
	st.book = book
	st.dirty[stepPersistCatalogEntry] = true
	return nil
}

func (s *service) attemptEmbedding(ctx context.Context, st *sagaState) error {
	st.embedding = s.attemptStep(ctx, st.book, steplog.StepEmbedding, s.embeddingTimeout, func(ctx context.Context) error {
		return s.embeddings.ProcessBook(ctx, st.book)
	})
	return nil
}

func (s *service) attemptMarketing(ctx context.Context, st *sagaState) error {
	st.marketing = s.attemptStep(ctx, st.book, steplog.StepMarketing, s.marketingTimeout, func(ctx context.Context) error {
		return s.marketing.AnnounceBook(ctx, st.book)
	})
	if st.marketing.succeeded() {
		// A fired campaign cannot be retracted; the compensator can only
		// document it.
		st.dirty[stepNotifyMarketing] = true
	}
	return nil
}

func (s *service) transitionManuscript(ctx context.Context, st *sagaState) error {
	// Dirty before the write: an errored compare-and-set may still have
	// landed, so the compensator always tries the revert.
	st.dirty[stepTransitionManuscript] = true
	if err := s.manuscripts.TransitionStatus(ctx, st.manuscript.ID, st.manuscript.Status, manuscript.StatusPublished); err != nil {
		return fmt.Errorf("failed to transition manuscript %s: %w", st.manuscript.ID, err)
	}
	return nil
}

// attemptStep invokes a soft step under its timeout and durably records the
// outcome either way. Nothing propagates: the saga only ever reads the
// returned outcome, and the log write itself is best-effort.
func (s *service) attemptStep(ctx context.Context, book *catalog.Book, step steplog.Step, timeout time.Duration, invoke func(context.Context) error) StepOutcome {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outcome := StepOutcome{Status: string(steplog.OutcomeSucceeded)}
	if err := invoke(stepCtx); err != nil {
		outcome = StepOutcome{Status: string(steplog.OutcomeFailed), Error: err.Error()}
		log.Printf("Soft step %s failed for book %s: %v", step, book.ID, err)
	}

	// Recorded on the saga context, not the step's: a timed-out step still
	// gets its attempt row.
	attempt := &steplog.Attempt{
		BookID: book.ID,
		Step:   step,
		Status: steplog.Outcome(outcome.Status),
		Detail: outcome.Error,
	}
	if err := s.attempts.RecordAttempt(ctx, attempt); err != nil {
		log.Printf("Failed to record %s attempt for book %s: %v", step, book.ID, err)
	}

	return outcome
}

func (s *service) deleteCatalogEntry(ctx context.Context, st *sagaState) error {
	err := s.books.Delete(ctx, st.book.ID)
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		return err
	}
	return nil
}

// revertManuscript restores the captured pre-publication status. A conflict
// means the forward transition never landed, which is already the state the
// revert wants. No concurrent saga can own the published status because the
// catalog admits one book per manuscript.
func (s *service) revertManuscript(ctx context.Context, st *sagaState) error {
	err := s.manuscripts.TransitionStatus(ctx, st.manuscript.ID, manuscript.StatusPublished, st.manuscript.Status)
	if err != nil {
		var conflict *manuscript.StatusConflictError
		if errors.As(err, &conflict) {
			return nil
		}
		return err
	}
	return nil
}

func (s *service) recordOrphanedMarketing(ctx context.Context, st *sagaState) error {
	reason := "marketing campaign fired for a publication that was rolled back"
	if st.failure != nil {
		reason = fmt.Sprintf("%s: %v", reason, st.failure)
	}
	return s.attempts.RecordCompensation(ctx, &steplog.CompensationEntry{
		BookID: st.book.ID,
		Action: actionRecordOrphanedMarketing,
		Reason: reason,
	})
}

func (s *service) RetryStep(ctx context.Context, bookID uuid.UUID, step steplog.Step) (*RetryResult, error) {
	ctx, span := s.tracer.Start(ctx, "publication.retry_step",
		trace.WithAttributes(
			attribute.String("book.id", bookID.String()),
			attribute.String("step.name", string(step)),
		),
	)
	defer span.End()

	if !s.retryLimiter.Allow() {
		return nil, ErrRateLimited
	}

	book, err := s.books.Get(ctx, bookID)
	if err != nil {
		return nil, err
	}

	last, err := s.attempts.LastAttempt(ctx, bookID, step)
	if err != nil {
		return nil, err
	}
	if last != nil && last.Status == steplog.OutcomeSucceeded {
		return &RetryResult{BookID: bookID, Step: step, Status: RetryStatusAlreadySucceeded}, nil
	}

	var timeout time.Duration
	var invoke func(context.Context) error
	switch step {
	case steplog.StepEmbedding:
		timeout = s.embeddingTimeout
		invoke = func(ctx context.Context) error { return s.embeddings.ProcessBook(ctx, book) }
	case steplog.StepMarketing:
		timeout = s.marketingTimeout
		invoke = func(ctx context.Context) error { return s.marketing.AnnounceBook(ctx, book) }
	default:
		return nil, fmt.Errorf("unknown step %q", step)
	}

	outcome := s.attemptStep(ctx, book, step, timeout, invoke)
	log.Printf("Retried %s for book %s: %s", step, bookID, outcome.Status)
	return &RetryResult{BookID: bookID, Step: step, Status: RetryStatusRetried, Outcome: &outcome}, nil
}

func (s *service) AttemptHistory(ctx context.Context, bookID uuid.UUID) (*AttemptHistory, error) {
	attempts, err := s.attempts.ListAttempts(ctx, bookID)
	if err != nil {
		return nil, err
	}
	compensations, err := s.attempts.ListCompensations(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if attempts == nil {
		attempts = []*steplog.Attempt{}
	}
	if compensations == nil {
		compensations = []*steplog.CompensationEntry{}
	}
	return &AttemptHistory{BookID: bookID, Attempts: attempts, Compensations: compensations}, nil
}

func summarize(st *sagaState) string {
	summary := "Book published"
	if st.manuscript != nil {
		summary += "; manuscript transitioned to published"
	}

	var degraded []string
	if !st.embedding.succeeded() {
		degraded = append(degraded, "embedding")
	}
	if !st.marketing.succeeded() {
		degraded = append(degraded, "marketing")
	}
	if len(degraded) > 0 {
		summary += "; " + strings.Join(degraded, " and ") + " failed and can be retried"
	}
	return summary
}
