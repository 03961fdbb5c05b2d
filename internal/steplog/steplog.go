// internal/steplog/steplog.go
package steplog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Step identifies a side-effect step of the publication saga.
type Step string

const (
	StepEmbedding Step = "embedding"
	StepMarketing Step = "marketing"
)

// Outcome is the recorded result of a single step attempt.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Attempt is one durable record of a soft step firing, from the initial
// publication run or a later retry.
type Attempt struct {
	ID        int64     `json:"id"`
	BookID    uuid.UUID `json:"book_id"`
	Step      Step      `json:"step"`
	Status    Outcome   `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CompensationEntry records one compensating action taken while rolling a
// publication back.
type CompensationEntry struct {
	ID        int64     `json:"id"`
	BookID    uuid.UUID `json:"book_id"`
	Action    string    `json:"action"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the append-only log of step attempts and compensation actions.
// Entries are never updated or deleted.
type Store interface {
	RecordAttempt(ctx context.Context, a *Attempt) error
	LastAttempt(ctx context.Context, bookID uuid.UUID, step Step) (*Attempt, error)
	ListAttempts(ctx context.Context, bookID uuid.UUID) ([]*Attempt, error)
	RecordCompensation(ctx context.Context, e *CompensationEntry) error
	ListCompensations(ctx context.Context, bookID uuid.UUID) ([]*CompensationEntry, error)
}

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	tracer trace.Tracer
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:     db,
		tracer: otel.Tracer("sarpay/steplog"),
	}
}

// RecordAttempt appends an attempt row, filling the generated ID and
// timestamp.
func (s *PostgresStore) RecordAttempt(ctx context.Context, a *Attempt) error {
	ctx, span := s.tracer.Start(ctx, "steplog.record_attempt",
		trace.WithAttributes(
			attribute.String("book.id", a.BookID.String()),
			attribute.String("step.name", string(a.Step)),
			attribute.String("step.status", string(a.Status)),
		),
	)
	defer span.End()

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO step_attempts (book_id, step, status, detail)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, a.BookID, a.Step, a.Status, a.Detail).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// LastAttempt returns the most recent attempt for a step, or nil when the
// step never fired for this book.
func (s *PostgresStore) LastAttempt(ctx context.Context, bookID uuid.UUID, step Step) (*Attempt, error) {
	ctx, span := s.tracer.Start(ctx, "steplog.last_attempt",
		trace.WithAttributes(
			attribute.String("book.id", bookID.String()),
			attribute.String("step.name", string(step)),
		),
	)
	defer span.End()

	a := &Attempt{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, book_id, step, status, detail, created_at
		FROM step_attempts
		WHERE book_id = $1 AND step = $2
		ORDER BY id DESC
		LIMIT 1
	`, bookID, step).Scan(&a.ID, &a.BookID, &a.Step, &a.Status, &a.Detail, &a.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query last attempt: %w", err)
	}
	return a, nil
}

// ListAttempts returns every attempt for a book in the order they happened.
func (s *PostgresStore) ListAttempts(ctx context.Context, bookID uuid.UUID) ([]*Attempt, error) {
	ctx, span := s.tracer.Start(ctx, "steplog.list_attempts",
		trace.WithAttributes(
			attribute.String("book.id", bookID.String()),
		),
	)
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, book_id, step, status, detail, created_at
		FROM step_attempts
		WHERE book_id = $1
		ORDER BY id ASC
	`, bookID)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*Attempt
	for rows.Next() {
		a := &Attempt{}
		if err := rows.Scan(&a.ID, &a.BookID, &a.Step, &a.Status, &a.Detail, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}

	span.SetAttributes(attribute.Int("attempts.loaded", len(attempts)))
	return attempts, nil
}

// RecordCompensation appends a compensation log entry.
func (s *PostgresStore) RecordCompensation(ctx context.Context, e *CompensationEntry) error {
	ctx, span := s.tracer.Start(ctx, "steplog.record_compensation",
		trace.WithAttributes(
			attribute.String("book.id", e.BookID.String()),
			attribute.String("compensation.action", e.Action),
		),
	)
	defer span.End()

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO compensation_log (book_id, action, reason)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, e.BookID, e.Action, e.Reason).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("record compensation: %w", err)
	}
	return nil
}

// ListCompensations returns all compensation entries for a book in order.
func (s *PostgresStore) ListCompensations(ctx context.Context, bookID uuid.UUID) ([]*CompensationEntry, error) {
	ctx, span := s.tracer.Start(ctx, "steplog.list_compensations",
		trace.WithAttributes(
			attribute.String("book.id", bookID.String()),
		),
	)
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, book_id, action, reason, created_at
		FROM compensation_log
		WHERE book_id = $1
		ORDER BY id ASC
	`, bookID)
	if err != nil {
		return nil, fmt.Errorf("query compensations: %w", err)
	}
	defer rows.Close()

	var entries []*CompensationEntry
	for rows.Next() {
		e := &CompensationEntry{}
		if err := rows.Scan(&e.ID, &e.BookID, &e.Action, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan compensation: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate compensations: %w", err)
	}

	return entries, nil
}
