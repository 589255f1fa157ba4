package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/garagehq/invoice-service-go/internal/db"
)

var (
	ErrNotFound          = errors.New("part not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// Repository owns the authoritative quantity_available counter per part.
// Every stock mutation in the system goes through Decrease/Increase so the
// non-negativity invariant is enforced in one place.
type Repository struct {
	pool db.Executor
}

func NewRepository(pool db.Executor) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Get(ctx context.Context, partID int64) (Part, error) {
	return r.GetWithTx(ctx, r.pool, partID)
}

func (r *Repository) GetWithTx(ctx context.Context, ex db.Executor, partID int64) (Part, error) {
	var p Part
	err := ex.QueryRow(ctx, `
		SELECT part_id, name, unit_price, quantity_available, created_at, updated_at
		FROM parts WHERE part_id = $1
	`, partID).Scan(&p.ID, &p.Name, &p.UnitPrice, &p.QuantityAvailable, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Part{}, ErrNotFound
		}
		return Part{}, fmt.Errorf("select part: %w", err)
	}
	return p, nil
}

func (r *Repository) List(ctx context.Context) ([]Part, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT part_id, name, unit_price, quantity_available, created_at, updated_at
		FROM parts ORDER BY part_id
	`)
	if err != nil {
		return nil, fmt.Errorf("select parts: %w", err)
	}
	defer rows.Close()

	var parts []Part
	for rows.Next() {
		var p Part
		if err := rows.Scan(&p.ID, &p.Name, &p.UnitPrice, &p.QuantityAvailable, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan part: %w", err)
		}
		parts = append(parts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return parts, nil
}

func (r *Repository) Create(ctx context.Context, p Part) (Part, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO parts (name, unit_price, quantity_available)
		VALUES ($1, $2, $3)
		RETURNING part_id, created_at, updated_at
	`, p.Name, p.UnitPrice, p.QuantityAvailable).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Part{}, fmt.Errorf("insert part: %w", err)
	}
	return p, nil
}

func (r *Repository) Update(ctx context.Context, p Part) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE parts
		SET name = $2, unit_price = $3, quantity_available = $4, updated_at = now()
		WHERE part_id = $1
	`, p.ID, p.Name, p.UnitPrice, p.QuantityAvailable)
	if err != nil {
		return fmt.Errorf("update part: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, partID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM parts WHERE part_id = $1`, partID)
	if err != nil {
		return fmt.Errorf("delete part: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Decrease atomically subtracts amount from a part's stock. The conditional
// update makes the check-and-subtract a single statement, so concurrent
// callers can never drive the counter below zero.
func (r *Repository) Decrease(ctx context.Context, partID int64, amount int) error {
	return r.DecreaseWithTx(ctx, r.pool, partID, amount)
}

func (r *Repository) DecreaseWithTx(ctx context.Context, ex db.Executor, partID int64, amount int) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	tag, err := ex.Exec(ctx, `
		UPDATE parts
		SET quantity_available = quantity_available - $2, updated_at = now()
		WHERE part_id = $1 AND quantity_available >= $2
	`, partID, amount)
	if err != nil {
		return fmt.Errorf("decrease stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := ex.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM parts WHERE part_id = $1)`, partID).Scan(&exists); err != nil {
			return fmt.Errorf("check part: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrInsufficientStock
	}
	return nil
}

// Increase atomically adds amount to a part's stock.
func (r *Repository) Increase(ctx context.Context, partID int64, amount int) error {
	return r.IncreaseWithTx(ctx, r.pool, partID, amount)
}

func (r *Repository) IncreaseWithTx(ctx context.Context, ex db.Executor, partID int64, amount int) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	tag, err := ex.Exec(ctx, `
		UPDATE parts
		SET quantity_available = quantity_available + $2, updated_at = now()
		WHERE part_id = $1
	`, partID, amount)
	if err != nil {
		return fmt.Errorf("increase stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
