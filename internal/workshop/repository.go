package workshop

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/garagehq/invoice-service-go/internal/db"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrMechanicNotFound    = errors.New("mechanic not found")
)

// Repository is the read path into the appointment and mechanic entities the
// invoicing core collaborates with. Their CRUD lives outside this service;
// only lookups and seed helpers are needed here.
type Repository struct {
	pool db.Executor
}

func NewRepository(pool db.Executor) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetAppointment(ctx context.Context, id int64) (Appointment, error) {
	return r.GetAppointmentWithTx(ctx, r.pool, id)
}

func (r *Repository) GetAppointmentWithTx(ctx context.Context, ex db.Executor, id int64) (Appointment, error) {
	var a Appointment
	err := ex.QueryRow(ctx, `
		SELECT appointment_id, customer_id, vehicle_id, scheduled_at
		FROM appointments WHERE appointment_id = $1
	`, id).Scan(&a.ID, &a.CustomerID, &a.VehicleID, &a.ScheduledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Appointment{}, ErrAppointmentNotFound
		}
		return Appointment{}, fmt.Errorf("select appointment: %w", err)
	}
	return a, nil
}

func (r *Repository) GetMechanic(ctx context.Context, id int64) (Mechanic, error) {
	var m Mechanic
	err := r.pool.QueryRow(ctx, `
		SELECT mechanic_id, name FROM mechanics WHERE mechanic_id = $1
	`, id).Scan(&m.ID, &m.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Mechanic{}, ErrMechanicNotFound
		}
		return Mechanic{}, fmt.Errorf("select mechanic: %w", err)
	}
	return m, nil
}

// MechanicsExist verifies every id references a mechanic. Returns the first
// missing id, if any.
func (r *Repository) MechanicsExistWithTx(ctx context.Context, ex db.Executor, ids []int64) (int64, bool, error) {
	for _, id := range ids {
		var exists bool
		err := ex.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM mechanics WHERE mechanic_id = $1)`, id).Scan(&exists)
		if err != nil {
			return 0, false, fmt.Errorf("check mechanic: %w", err)
		}
		if !exists {
			return id, false, nil
		}
	}
	return 0, true, nil
}

// CreateAppointment and CreateMechanic exist for seeding and tests; the
// appointment/mechanic CRUD API lives outside this service.
func (r *Repository) CreateAppointment(ctx context.Context, a Appointment) (Appointment, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (customer_id, vehicle_id, scheduled_at)
		VALUES ($1, $2, $3)
		RETURNING appointment_id
	`, a.CustomerID, a.VehicleID, a.ScheduledAt).Scan(&a.ID)
	if err != nil {
		return Appointment{}, fmt.Errorf("insert appointment: %w", err)
	}
	return a, nil
}

func (r *Repository) CreateMechanic(ctx context.Context, m Mechanic) (Mechanic, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO mechanics (name) VALUES ($1) RETURNING mechanic_id
	`, m.Name).Scan(&m.ID)
	if err != nil {
		return Mechanic{}, fmt.Errorf("insert mechanic: %w", err)
	}
	return m, nil
}
