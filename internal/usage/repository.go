package usage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/garagehq/invoice-service-go/internal/db"
)

var (
	ErrNotFound  = errors.New("usage record not found")
	ErrZeroCount = errors.New("usage count must be positive")
)

// Repository stores the (invoice, part) -> count associations. It never
// touches inventory counters; restoring stock is the engine's job.
type Repository struct {
	pool db.Executor
}

func NewRepository(pool db.Executor) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Find(ctx context.Context, invoiceID int64) ([]Record, error) {
	return r.FindWithTx(ctx, r.pool, invoiceID)
}

func (r *Repository) FindWithTx(ctx context.Context, ex db.Executor, invoiceID int64) ([]Record, error) {
	rows, err := ex.Query(ctx, `
		SELECT invoice_id, part_id, count
		FROM invoice_uses
		WHERE invoice_id = $1
		ORDER BY part_id
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("select usage: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.InvoiceID, &rec.PartID, &rec.Count); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return records, nil
}

// FindOne returns the record for the pair, or ok=false when absent.
func (r *Repository) FindOneWithTx(ctx context.Context, ex db.Executor, invoiceID, partID int64) (Record, bool, error) {
	var rec Record
	err := ex.QueryRow(ctx, `
		SELECT invoice_id, part_id, count
		FROM invoice_uses
		WHERE invoice_id = $1 AND part_id = $2
	`, invoiceID, partID).Scan(&rec.InvoiceID, &rec.PartID, &rec.Count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("select usage record: %w", err)
	}
	return rec, true, nil
}

func (r *Repository) UpsertWithTx(ctx context.Context, ex db.Executor, rec Record) error {
	if rec.Count <= 0 {
		return ErrZeroCount
	}

	_, err := ex.Exec(ctx, `
		INSERT INTO invoice_uses (invoice_id, part_id, count)
		VALUES ($1, $2, $3)
		ON CONFLICT (invoice_id, part_id) DO UPDATE SET count = EXCLUDED.count
	`, rec.InvoiceID, rec.PartID, rec.Count)
	if err != nil {
		return fmt.Errorf("upsert usage record: %w", err)
	}
	return nil
}

func (r *Repository) DeleteWithTx(ctx context.Context, ex db.Executor, invoiceID, partID int64) error {
	tag, err := ex.Exec(ctx, `
		DELETE FROM invoice_uses WHERE invoice_id = $1 AND part_id = $2
	`, invoiceID, partID)
	if err != nil {
		return fmt.Errorf("delete usage record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteAllWithTx(ctx context.Context, ex db.Executor, invoiceID int64) error {
	_, err := ex.Exec(ctx, `DELETE FROM invoice_uses WHERE invoice_id = $1`, invoiceID)
	if err != nil {
		return fmt.Errorf("delete usage records: %w", err)
	}
	return nil
}
