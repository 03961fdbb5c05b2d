// internal/catalog/store.go
package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Store persists books and answers the derived inventory view.
type Store interface {
	Insert(ctx context.Context, book *Book) error
	Get(ctx context.Context, id uuid.UUID) (*Book, error)
	Delete(ctx context.Context, id uuid.UUID) error
	AdjustTotalCopies(ctx context.Context, id uuid.UUID, direction Direction, amount int) (*InventorySummary, error)
	Search(ctx context.Context, query string) ([]*Book, error)
}

// PostgresStore implements Store on PostgreSQL. Sold counts are computed from
// the purchases table on every read; they are never materialized.
type PostgresStore struct {
	db     *sql.DB
	tracer trace.Tracer
}

// NewPostgresStore creates a Postgres-backed book store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:     db,
		tracer: otel.Tracer("sarpay/catalog"),
	}
}

// Insert persists a new book. A manuscript may back at most one book; the
// partial unique index on manuscript_id enforces that across concurrent
// publications.
func (s *PostgresStore) Insert(ctx context.Context, book *Book) error {
	ctx, span := s.tracer.Start(ctx, "catalog.insert",
		trace.WithAttributes(
			attribute.String("book.id", book.ID.String()),
		),
	)
	defer span.End()

	var manuscriptID uuid.NullUUID
	if book.ManuscriptID != nil {
		manuscriptID = uuid.NullUUID{UUID: *book.ManuscriptID, Valid: true}
	}

	query := `
		INSERT INTO books (id, title, author, description, category, edition, price, total_copies, manuscript_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		book.ID,
		book.Title,
		book.Author,
		book.Description,
		book.Category,
		book.Edition,
		book.Price,
		book.TotalCopies,
		manuscriptID,
	).Scan(&book.CreatedAt, &book.UpdatedAt)
	if err != nil {
		// The only non-key unique index on books is the partial index on
		// manuscript_id.
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			span.SetAttributes(attribute.Bool("conflict.manuscript", true))
			return ErrManuscriptAlreadyPublished
		}
		return fmt.Errorf("insert book: %w", err)
	}

	book.Sold = 0
	book.Available = book.TotalCopies
	return nil
}

// Get returns a book with its derived sold and available counts.
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.get",
		trace.WithAttributes(
			attribute.String("book.id", id.String()),
		),
	)
	defer span.End()

	query := `
		SELECT b.id, b.title, b.author, b.description, b.category, b.edition, b.price,
		       b.total_copies, b.manuscript_id, b.created_at, b.updated_at,
		       COALESCE((
		           SELECT SUM(p.quantity) FROM purchases p
		           WHERE p.book_id = b.id AND p.delivery = 'physical' AND p.status = 'completed'
		       ), 0) AS sold
		FROM books b
		WHERE b.id = $1
	`
	book := &Book{}
	var manuscriptID uuid.NullUUID
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&book.ID,
		&book.Title,
		&book.Author,
		&book.Description,
		&book.Category,
		&book.Edition,
		&book.Price,
		&book.TotalCopies,
		&manuscriptID,
		&book.CreatedAt,
		&book.UpdatedAt,
		&book.Sold,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get book: %w", err)
	}

	if manuscriptID.Valid {
		book.ManuscriptID = &manuscriptID.UUID
	}
	book.Available = book.TotalCopies - book.Sold
	return book, nil
}

// Delete removes a book row entirely. Used by publication compensation.
func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "catalog.delete",
		trace.WithAttributes(
			attribute.String("book.id", id.String()),
		),
	)
	defer span.End()

	res, err := s.db.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AdjustTotalCopies changes the declared print-run size. The decision and the
// write happen inside one transaction holding the book row lock, so the sold
// count cannot move between the check and the update.
func (s *PostgresStore) AdjustTotalCopies(ctx context.Context, id uuid.UUID, direction Direction, amount int) (*InventorySummary, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.adjust_total",
		trace.WithAttributes(
			attribute.String("book.id", id.String()),
			attribute.String("adjust.direction", string(direction)),
			attribute.Int("adjust.amount", amount),
		),
	)
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var total int
	err = tx.QueryRowContext(ctx, `SELECT total_copies FROM books WHERE id = $1 FOR UPDATE`, id).Scan(&total)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock book row: %w", err)
	}

	// Completed physical purchases take the same row lock before they write,
	// so this sum is stable for the rest of the transaction.
	var sold int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM purchases
		WHERE book_id = $1 AND delivery = 'physical' AND status = 'completed'
	`, id).Scan(&sold)
	if err != nil {
		return nil, fmt.Errorf("sum sold copies: %w", err)
	}

	newTotal, err := applyAdjustment(id, total, sold, amount, direction)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE books SET total_copies = $1, updated_at = NOW() WHERE id = $2
	`, newTotal, id); err != nil {
		return nil, fmt.Errorf("update total copies: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	span.SetAttributes(attribute.Int("total.new", newTotal))
	return &InventorySummary{
		BookID:      id,
		TotalCopies: newTotal,
		Sold:        sold,
		Available:   newTotal - sold,
	}, nil
}

// Search finds books by title, author or category. The simple text search
// configuration is used because titles are mostly Myanmar script.
func (s *PostgresStore) Search(ctx context.Context, query string) ([]*Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.search")
	defer span.End()

	dbQuery := `
		SELECT b.id, b.title, b.author, b.description, b.category, b.edition, b.price,
		       b.total_copies, b.manuscript_id, b.created_at, b.updated_at,
		       COALESCE((
		           SELECT SUM(p.quantity) FROM purchases p
		           WHERE p.book_id = b.id AND p.delivery = 'physical' AND p.status = 'completed'
		       ), 0) AS sold
		FROM books b
		WHERE to_tsvector('simple', b.title || ' ' || b.author || ' ' || b.category) @@ plainto_tsquery('simple', $1)
		ORDER BY b.created_at DESC
		LIMIT 20
	`
	rows, err := s.db.QueryContext(ctx, dbQuery, query)
	if err != nil {
		return nil, fmt.Errorf("search books: %w", err)
	}
	defer rows.Close()

	var books []*Book
	for rows.Next() {
		book := &Book{}
		var manuscriptID uuid.NullUUID
		err := rows.Scan(
			&book.ID,
			&book.Title,
			&book.Author,
			&book.Description,
			&book.Category,
			&book.Edition,
			&book.Price,
			&book.TotalCopies,
			&manuscriptID,
			&book.CreatedAt,
			&book.UpdatedAt,
			&book.Sold,
		)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		if manuscriptID.Valid {
			book.ManuscriptID = &manuscriptID.UUID
		}
		book.Available = book.TotalCopies - book.Sold
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate books: %w", err)
	}

	span.SetAttributes(attribute.Int("books.matched", len(books)))
	return books, nil
}
