// internal/purchase/store.go
package purchase

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"sarpay/internal/catalog"
)

// Store persists purchase records with idempotency on (payment_ref,
// line_index).
type Store interface {
	// Create persists rec. When a record with the same payment reference and
	// line index already exists, the stored record is returned with created
	// false and nothing is written.
	Create(ctx context.Context, rec *Record) (*Record, bool, error)
	ListForBook(ctx context.Context, bookID uuid.UUID) ([]*Record, error)
}

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	tracer trace.Tracer
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:     db,
		tracer: otel.Tracer("sarpay/purchase"),
	}
}

type rowQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Create records a purchase line. For completed physical purchases the
// availability check and the insert commit inside one transaction holding
// the book row lock.
func (s *PostgresStore) Create(ctx context.Context, rec *Record) (*Record, bool, error) {
	ctx, span := s.tracer.Start(ctx, "purchase.create",
		trace.WithAttributes(
			attribute.String("book.id", rec.BookID.String()),
			attribute.String("payment.ref", rec.PaymentRef),
			attribute.Int("payment.line", rec.LineIndex),
			attribute.String("purchase.delivery", string(rec.Delivery)),
		),
	)
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Fast path: this webhook line was already delivered.
	existing, err := s.getByPaymentLine(ctx, tx, rec.PaymentRef, rec.LineIndex)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		span.SetAttributes(attribute.Bool("idempotent.replay", true))
		return existing, false, nil
	}

	if rec.Delivery == DeliveryPhysical && rec.Status == StatusCompleted {
		var total int
		err := tx.QueryRowContext(ctx, `SELECT total_copies FROM books WHERE id = $1 FOR UPDATE`, rec.BookID).Scan(&total)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, false, catalog.ErrNotFound
			}
			return nil, false, fmt.Errorf("lock book row: %w", err)
		}

		var sold int
		err = tx.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(quantity), 0)
			FROM purchases
			WHERE book_id = $1 AND delivery = 'physical' AND status = 'completed'
		`, rec.BookID).Scan(&sold)
		if err != nil {
			return nil, false, fmt.Errorf("sum sold copies: %w", err)
		}

		available := total - sold
		if rec.Quantity > available {
			span.SetAttributes(attribute.Int("stock.available", available))
			return nil, false, &catalog.InsufficientStockError{
				BookID:    rec.BookID,
				Requested: rec.Quantity,
				Available: available,
			}
		}
	} else {
		// Digital lines consume no inventory but still need a real book.
		var exists bool
		err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM books WHERE id = $1)`, rec.BookID).Scan(&exists)
		if err != nil {
			return nil, false, fmt.Errorf("check book exists: %w", err)
		}
		if !exists {
			return nil, false, catalog.ErrNotFound
		}
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO purchases (id, book_id, buyer_id, delivery, quantity, unit_price, total_price, payment_ref, line_index, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`, rec.ID, rec.BookID, rec.BuyerID, rec.Delivery, rec.Quantity, rec.UnitPrice, rec.TotalPrice, rec.PaymentRef, rec.LineIndex, rec.Status).Scan(&rec.CreatedAt)
	if err != nil {
		// A concurrent delivery of the same webhook can win the race between
		// the existence check and the insert.
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			tx.Rollback()
			existing, lookupErr := s.getByPaymentLine(ctx, s.db, rec.PaymentRef, rec.LineIndex)
			if lookupErr != nil {
				return nil, false, lookupErr
			}
			if existing != nil {
				span.SetAttributes(attribute.Bool("idempotent.replay", true))
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("insert purchase: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit transaction: %w", err)
	}

	return rec, true, nil
}

func (s *PostgresStore) getByPaymentLine(ctx context.Context, q rowQueryer, paymentRef string, lineIndex int) (*Record, error) {
	rec := &Record{}
	err := q.QueryRowContext(ctx, `
		SELECT id, book_id, buyer_id, delivery, quantity, unit_price, total_price, payment_ref, line_index, status, created_at
		FROM purchases
		WHERE payment_ref = $1 AND line_index = $2
	`, paymentRef, lineIndex).Scan(
		&rec.ID,
		&rec.BookID,
		&rec.BuyerID,
		&rec.Delivery,
		&rec.Quantity,
		&rec.UnitPrice,
		&rec.TotalPrice,
		&rec.PaymentRef,
		&rec.LineIndex,
		&rec.Status,
		&rec.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query purchase by payment line: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListForBook(ctx context.Context, bookID uuid.UUID) ([]*Record, error) {
	ctx, span := s.tracer.Start(ctx, "purchase.list_for_book",
		trace.WithAttributes(
			attribute.String("book.id", bookID.String()),
		),
	)
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, book_id, buyer_id, delivery, quantity, unit_price, total_price, payment_ref, line_index, status, created_at
		FROM purchases
		WHERE book_id = $1
		ORDER BY created_at ASC, line_index ASC
	`, bookID)
	if err != nil {
		return nil, fmt.Errorf("query purchases: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec := &Record{}
		err := rows.Scan(
			&rec.ID,
			&rec.BookID,
			&rec.BuyerID,
			&rec.Delivery,
			&rec.Quantity,
			&rec.UnitPrice,
			&rec.TotalPrice,
			&rec.PaymentRef,
			&rec.LineIndex,
			&rec.Status,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchases: %w", err)
	}

	span.SetAttributes(attribute.Int("purchases.loaded", len(records)))
	return records, nil
}
