// internal/manuscript/store.go
package manuscript

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Store persists manuscripts. Status transitions are compare-and-set: the
// write succeeds only when the stored status still matches the expected one.
type Store interface {
	Insert(ctx context.Context, m *Manuscript) error
	Get(ctx context.Context, id uuid.UUID) (*Manuscript, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, expected, next Status) error
}

type PostgresStore struct {
	db     *sql.DB
	tracer trace.Tracer
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:     db,
		tracer: otel.Tracer("sarpay/manuscript"),
	}
}

func (s *PostgresStore) Insert(ctx context.Context, m *Manuscript) error {
	query := `
		INSERT INTO manuscripts (id, title, author, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query, m.ID, m.Title, m.Author, m.Status).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert manuscript: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Manuscript, error) {
	query := `
		SELECT id, title, author, status, created_at, updated_at
		FROM manuscripts
		WHERE id = $1
	`
	m := &Manuscript{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&m.ID,
		&m.Title,
		&m.Author,
		&m.Status,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get manuscript: %w", err)
	}
	return m, nil
}

// TransitionStatus performs the compare-and-set. Zero rows affected means the
// status moved underneath us; the follow-up read only names the winner, the
// verdict itself comes from the row count.
func (s *PostgresStore) TransitionStatus(ctx context.Context, id uuid.UUID, expected, next Status) error {
	ctx, span := s.tracer.Start(ctx, "manuscript.transition",
		trace.WithAttributes(
			attribute.String("manuscript.id", id.String()),
			attribute.String("status.expected", string(expected)),
			attribute.String("status.next", string(next)),
		),
	)
	defer span.End()

	res, err := s.db.ExecContext(ctx, `
		UPDATE manuscripts
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, next, id, expected)
	if err != nil {
		return fmt.Errorf("transition status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition status: %w", err)
	}
	if affected == 1 {
		return nil
	}

	span.SetAttributes(attribute.Bool("conflict.detected", true))

	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return &StatusConflictError{ManuscriptID: id, Expected: expected, Actual: current.Status}
}
