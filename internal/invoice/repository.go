package invoice

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/garagehq/invoice-service-go/internal/db"
	"github.com/garagehq/invoice-service-go/internal/workshop"
)

// Repository persists invoice shells and the mechanic join. Usage rows and
// inventory counters belong to their own stores; the engine coordinates all
// three inside one transaction.
type Repository struct {
	pool db.Executor
}

func NewRepository(pool db.Executor) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) InsertWithTx(ctx context.Context, ex db.Executor, appointmentID *int64, taxPercentage, labourCost float64) (int64, error) {
	var id int64
	err := ex.QueryRow(ctx, `
		INSERT INTO invoices (appointment_id, tax_percentage, labour_cost)
		VALUES ($1, $2, $3)
		RETURNING invoice_id
	`, appointmentID, taxPercentage, labourCost).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert invoice: %w", err)
	}
	return id, nil
}

// GetHeaderForUpdate loads the invoice header and takes a row lock, so two
// reconciliations of the same invoice serialize at the storage layer.
func (r *Repository) GetHeaderForUpdateWithTx(ctx context.Context, ex db.Executor, invoiceID int64) (Invoice, error) {
	var inv Invoice
	err := ex.QueryRow(ctx, `
		SELECT invoice_id, appointment_id, tax_percentage, labour_cost, created_at, updated_at
		FROM invoices WHERE invoice_id = $1
		FOR UPDATE
	`, invoiceID).Scan(&inv.ID, &inv.AppointmentID, &inv.TaxPercentage, &inv.LabourCost, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrNotFound
		}
		return Invoice{}, fmt.Errorf("select invoice for update: %w", err)
	}
	return inv, nil
}

// GetByAppointment returns the id of the invoice linked to an appointment,
// or ok=false when the appointment has none.
func (r *Repository) GetByAppointmentWithTx(ctx context.Context, ex db.Executor, appointmentID int64) (int64, bool, error) {
	var id int64
	err := ex.QueryRow(ctx, `
		SELECT invoice_id FROM invoices WHERE appointment_id = $1
	`, appointmentID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("select invoice by appointment: %w", err)
	}
	return id, true, nil
}

func (r *Repository) UpdateHeaderWithTx(ctx context.Context, ex db.Executor, invoiceID int64, taxPercentage, labourCost float64) error {
	tag, err := ex.Exec(ctx, `
		UPDATE invoices
		SET tax_percentage = $2, labour_cost = $3, updated_at = now()
		WHERE invoice_id = $1
	`, invoiceID, taxPercentage, labourCost)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceMechanics swaps the mechanic set wholesale.
func (r *Repository) ReplaceMechanicsWithTx(ctx context.Context, ex db.Executor, invoiceID int64, mechanicIDs []int64) error {
	if _, err := ex.Exec(ctx, `DELETE FROM invoice_mechanics WHERE invoice_id = $1`, invoiceID); err != nil {
		return fmt.Errorf("clear invoice mechanics: %w", err)
	}
	for _, mechanicID := range mechanicIDs {
		_, err := ex.Exec(ctx, `
			INSERT INTO invoice_mechanics (invoice_id, mechanic_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, invoiceID, mechanicID)
		if err != nil {
			return fmt.Errorf("insert invoice mechanic: %w", err)
		}
	}
	return nil
}

func (r *Repository) DeleteWithTx(ctx context.Context, ex db.Executor, invoiceID int64) error {
	tag, err := ex.Exec(ctx, `DELETE FROM invoices WHERE invoice_id = $1`, invoiceID)
	if err != nil {
		return fmt.Errorf("delete invoice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Load assembles the full aggregate: header, priced usage lines, mechanics.
func (r *Repository) Load(ctx context.Context, invoiceID int64) (Invoice, error) {
	return r.LoadWithTx(ctx, r.pool, invoiceID)
}

func (r *Repository) LoadWithTx(ctx context.Context, ex db.Executor, invoiceID int64) (Invoice, error) {
	var inv Invoice
	err := ex.QueryRow(ctx, `
		SELECT invoice_id, appointment_id, tax_percentage, labour_cost, created_at, updated_at
		FROM invoices WHERE invoice_id = $1
	`, invoiceID).Scan(&inv.ID, &inv.AppointmentID, &inv.TaxPercentage, &inv.LabourCost, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrNotFound
		}
		return Invoice{}, fmt.Errorf("select invoice: %w", err)
	}

	if inv.UsedParts, err = r.loadUsedParts(ctx, ex, invoiceID); err != nil {
		return Invoice{}, err
	}
	if inv.Mechanics, err = r.loadMechanics(ctx, ex, invoiceID); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

func (r *Repository) loadUsedParts(ctx context.Context, ex db.Executor, invoiceID int64) ([]UsedPart, error) {
	rows, err := ex.Query(ctx, `
		SELECT u.part_id, p.name, p.unit_price, u.count
		FROM invoice_uses u
		JOIN parts p ON p.part_id = u.part_id
		WHERE u.invoice_id = $1
		ORDER BY u.part_id
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("select used parts: %w", err)
	}
	defer rows.Close()

	var parts []UsedPart
	for rows.Next() {
		var up UsedPart
		if err := rows.Scan(&up.PartID, &up.PartName, &up.UnitPrice, &up.Count); err != nil {
			return nil, fmt.Errorf("scan used part: %w", err)
		}
		up.LineTotal = up.UnitPrice * float64(up.Count)
		parts = append(parts, up)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return parts, nil
}

func (r *Repository) loadMechanics(ctx context.Context, ex db.Executor, invoiceID int64) ([]workshop.Mechanic, error) {
	rows, err := ex.Query(ctx, `
		SELECT m.mechanic_id, m.name
		FROM invoice_mechanics im
		JOIN mechanics m ON m.mechanic_id = im.mechanic_id
		WHERE im.invoice_id = $1
		ORDER BY m.mechanic_id
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("select invoice mechanics: %w", err)
	}
	defer rows.Close()

	var mechanics []workshop.Mechanic
	for rows.Next() {
		var m workshop.Mechanic
		if err := rows.Scan(&m.ID, &m.Name); err != nil {
			return nil, fmt.Errorf("scan mechanic: %w", err)
		}
		mechanics = append(mechanics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return mechanics, nil
}

// ListByCustomer returns all invoices whose appointment belongs to the
// customer (the customer link runs through the appointment's vehicle in the
// source schema; appointments carry both ids here).
func (r *Repository) ListByCustomer(ctx context.Context, customerID int64) ([]Invoice, error) {
	return r.listByAppointmentField(ctx, "customer_id", customerID)
}

// ListByVehicle returns all invoices whose appointment is for the vehicle.
func (r *Repository) ListByVehicle(ctx context.Context, vehicleID int64) ([]Invoice, error) {
	return r.listByAppointmentField(ctx, "vehicle_id", vehicleID)
}

func (r *Repository) listByAppointmentField(ctx context.Context, field string, id int64) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT i.invoice_id
		FROM invoices i
		JOIN appointments a ON a.appointment_id = i.appointment_id
		WHERE a.`+field+` = $1
		ORDER BY i.invoice_id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("select invoices: %w", err)
	}

	var ids []int64
	for rows.Next() {
		var invoiceID int64
		if err := rows.Scan(&invoiceID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan invoice id: %w", err)
		}
		ids = append(ids, invoiceID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	invoices := make([]Invoice, 0, len(ids))
	for _, invoiceID := range ids {
		inv, err := r.Load(ctx, invoiceID)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, nil
}
