package invoice

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"

	"github.com/garagehq/invoice-service-go/internal/db"
	"github.com/garagehq/invoice-service-go/internal/ledger"
	"github.com/garagehq/invoice-service-go/internal/usage"
	"github.com/garagehq/invoice-service-go/internal/workshop"
)

// PartLedger is the stock counter choke point (implemented by
// ledger.Repository). Every decrease checks availability atomically.
type PartLedger interface {
	GetWithTx(ctx context.Context, ex db.Executor, partID int64) (ledger.Part, error)
	DecreaseWithTx(ctx context.Context, ex db.Executor, partID int64, amount int) error
	IncreaseWithTx(ctx context.Context, ex db.Executor, partID int64, amount int) error
}

// UsageStore holds the (invoice, part) -> count records (usage.Repository).
type UsageStore interface {
	FindWithTx(ctx context.Context, ex db.Executor, invoiceID int64) ([]usage.Record, error)
	FindOneWithTx(ctx context.Context, ex db.Executor, invoiceID, partID int64) (usage.Record, bool, error)
	UpsertWithTx(ctx context.Context, ex db.Executor, rec usage.Record) error
	DeleteWithTx(ctx context.Context, ex db.Executor, invoiceID, partID int64) error
	DeleteAllWithTx(ctx context.Context, ex db.Executor, invoiceID int64) error
}

// Store persists invoice shells and mechanic assignments (Repository).
type Store interface {
	InsertWithTx(ctx context.Context, ex db.Executor, appointmentID *int64, taxPercentage, labourCost float64) (int64, error)
	GetHeaderForUpdateWithTx(ctx context.Context, ex db.Executor, invoiceID int64) (Invoice, error)
	GetByAppointmentWithTx(ctx context.Context, ex db.Executor, appointmentID int64) (int64, bool, error)
	UpdateHeaderWithTx(ctx context.Context, ex db.Executor, invoiceID int64, taxPercentage, labourCost float64) error
	ReplaceMechanicsWithTx(ctx context.Context, ex db.Executor, invoiceID int64, mechanicIDs []int64) error
	DeleteWithTx(ctx context.Context, ex db.Executor, invoiceID int64) error
	LoadWithTx(ctx context.Context, ex db.Executor, invoiceID int64) (Invoice, error)
	Load(ctx context.Context, invoiceID int64) (Invoice, error)
	ListByCustomer(ctx context.Context, customerID int64) ([]Invoice, error)
	ListByVehicle(ctx context.Context, vehicleID int64) ([]Invoice, error)
}

// Workshop resolves the collaborator entities referenced by invoices
// (workshop.Repository).
type Workshop interface {
	GetAppointmentWithTx(ctx context.Context, ex db.Executor, id int64) (workshop.Appointment, error)
	MechanicsExistWithTx(ctx context.Context, ex db.Executor, ids []int64) (int64, bool, error)
}

// ReconciliationPublisher announces applied stock movements and aborted
// draws. Publishing is best-effort after commit and never rolls back a
// reconciliation.
type ReconciliationPublisher interface {
	PublishUsageReconciled(ctx context.Context, invoiceID int64, consumed, returned []StockMovement) error
	PublishStockDepleted(ctx context.Context, invoiceID, partID int64, requested, available int) error
}

// AvailabilityCache invalidates advisory availability entries for parts whose
// counters moved. The ledger stays authoritative.
type AvailabilityCache interface {
	Invalidate(ctx context.Context, partIDs ...int64) error
}

// EngineOptions carries the optional collaborators.
type EngineOptions struct {
	Publisher ReconciliationPublisher
	Cache     AvailabilityCache
}

// Engine drives a usage set from its current state to a desired state while
// keeping inventory counters consistent. Each operation runs in exactly one
// transaction: either the invoice, its usage rows, and the counters all move,
// or none do.
type Engine struct {
	pool     db.Pool
	invoices Store
	parts    PartLedger
	records  UsageStore
	shop     Workshop

	publisher ReconciliationPublisher
	cache     AvailabilityCache
	logger    *log.Logger
}

func NewEngine(pool db.Pool, invoices Store, parts PartLedger, records UsageStore, shop Workshop, logger *log.Logger, opts EngineOptions) *Engine {
	return &Engine{
		pool:      pool,
		invoices:  invoices,
		parts:     parts,
		records:   records,
		shop:      shop,
		publisher: opts.Publisher,
		cache:     opts.Cache,
		logger:    logger,
	}
}

// movements accumulates the ledger adjustments of one reconciliation so they
// can be reported after commit.
type movements struct {
	consumed []StockMovement
	returned []StockMovement
}

func (m *movements) consume(partID int64, n int) {
	m.consumed = append(m.consumed, StockMovement{PartID: partID, Quantity: n})
}

func (m *movements) ret(partID int64, n int) {
	m.returned = append(m.returned, StockMovement{PartID: partID, Quantity: n})
}

func (m *movements) partIDs() []int64 {
	ids := make([]int64, 0, len(m.consumed)+len(m.returned))
	for _, mv := range m.consumed {
		ids = append(ids, mv.PartID)
	}
	for _, mv := range m.returned {
		ids = append(ids, mv.PartID)
	}
	return ids
}

// depletion remembers the draw that aborted a reconciliation so the failure
// can be reported once the transaction is gone.
type depletion struct {
	invoiceID int64
	partID    int64
	requested int
}

func (e *Engine) inTx(ctx context.Context, fn func(tx db.Tx) error) error {
	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CreateInvoice persists a new invoice together with its initial usage set
// and mechanic assignments. Any failed stock draw or missing reference aborts
// the whole creation.
func (e *Engine) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (Invoice, error) {
	lines, err := normalizeLines(in.UsedParts)
	if err != nil {
		return Invoice{}, err
	}
	if in.TaxPercentage < 0 || in.LabourCost < 0 {
		return Invoice{}, fmt.Errorf("%w: tax and labour must be non-negative", ErrInvalidArgument)
	}

	var (
		out Invoice
		mov movements
		dep *depletion
	)
	err = e.inTx(ctx, func(tx db.Tx) error {
		if in.AppointmentID != nil {
			if _, err := e.shop.GetAppointmentWithTx(ctx, tx, *in.AppointmentID); err != nil {
				return err
			}
			if _, taken, err := e.invoices.GetByAppointmentWithTx(ctx, tx, *in.AppointmentID); err != nil {
				return err
			} else if taken {
				return ErrConflict
			}
		}

		invoiceID, err := e.invoices.InsertWithTx(ctx, tx, in.AppointmentID, in.TaxPercentage, in.LabourCost)
		if err != nil {
			return err
		}

		for _, ln := range lines {
			if err := e.parts.DecreaseWithTx(ctx, tx, ln.PartID, ln.Count); err != nil {
				if errors.Is(err, ledger.ErrInsufficientStock) {
					dep = &depletion{invoiceID: invoiceID, partID: ln.PartID, requested: ln.Count}
				}
				return err
			}
			mov.consume(ln.PartID, ln.Count)
			if err := e.records.UpsertWithTx(ctx, tx, usage.Record{InvoiceID: invoiceID, PartID: ln.PartID, Count: ln.Count}); err != nil {
				return err
			}
		}

		if len(in.MechanicIDs) > 0 {
			if err := e.assignMechanics(ctx, tx, invoiceID, in.MechanicIDs); err != nil {
				return err
			}
		}

		out, err = e.invoices.LoadWithTx(ctx, tx, invoiceID)
		return err
	})
	if err != nil {
		e.reportDepletion(ctx, dep)
		return Invoice{}, err
	}

	e.afterCommit(ctx, out.ID, &mov)
	return out, nil
}

// UpdateInvoice reconciles an invoice against a full desired usage set using
// a three-way diff. Stock returns (removed lines, shrunk counts) are applied
// before draws so stock freed in the same call is reusable by its additions.
func (e *Engine) UpdateInvoice(ctx context.Context, invoiceID int64, in UpdateInvoiceInput) (Invoice, error) {
	lines, err := normalizeLines(in.UsedParts)
	if err != nil {
		return Invoice{}, err
	}
	if in.TaxPercentage < 0 || in.LabourCost < 0 {
		return Invoice{}, fmt.Errorf("%w: tax and labour must be non-negative", ErrInvalidArgument)
	}

	desired := make(map[int64]int, len(lines))
	for _, ln := range lines {
		desired[ln.PartID] = ln.Count
	}

	var (
		out Invoice
		mov movements
		dep *depletion
	)
	err = e.inTx(ctx, func(tx db.Tx) error {
		if _, err := e.invoices.GetHeaderForUpdateWithTx(ctx, tx, invoiceID); err != nil {
			return err
		}

		current, err := e.records.FindWithTx(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		existing := make(map[int64]int, len(current))
		for _, rec := range current {
			existing[rec.PartID] = rec.Count
		}

		// Phase 1: returns. Removed lines give back their full count, shrunk
		// lines give back the difference. Doing this first makes the freed
		// stock visible to this call's draws.
		for _, rec := range current {
			newCount, keep := desired[rec.PartID]
			switch {
			case !keep:
				if err := e.parts.IncreaseWithTx(ctx, tx, rec.PartID, rec.Count); err != nil {
					return err
				}
				if err := e.records.DeleteWithTx(ctx, tx, invoiceID, rec.PartID); err != nil {
					return err
				}
				mov.ret(rec.PartID, rec.Count)
			case newCount < rec.Count:
				if err := e.parts.IncreaseWithTx(ctx, tx, rec.PartID, rec.Count-newCount); err != nil {
					return err
				}
				if err := e.records.UpsertWithTx(ctx, tx, usage.Record{InvoiceID: invoiceID, PartID: rec.PartID, Count: newCount}); err != nil {
					return err
				}
				mov.ret(rec.PartID, rec.Count-newCount)
			}
		}

		// Phase 2: draws. New lines take their full count, grown lines the
		// difference. All-or-nothing: the first failed draw aborts every
		// adjustment made above.
		for _, ln := range lines {
			oldCount, existed := existing[ln.PartID]
			delta := ln.Count
			if existed {
				delta = ln.Count - oldCount
			}
			if delta <= 0 {
				continue
			}
			if err := e.parts.DecreaseWithTx(ctx, tx, ln.PartID, delta); err != nil {
				if errors.Is(err, ledger.ErrInsufficientStock) {
					dep = &depletion{invoiceID: invoiceID, partID: ln.PartID, requested: delta}
				}
				return err
			}
			if err := e.records.UpsertWithTx(ctx, tx, usage.Record{InvoiceID: invoiceID, PartID: ln.PartID, Count: ln.Count}); err != nil {
				return err
			}
			mov.consume(ln.PartID, delta)
		}

		if err := e.invoices.UpdateHeaderWithTx(ctx, tx, invoiceID, in.TaxPercentage, in.LabourCost); err != nil {
			return err
		}

		if in.MechanicIDs != nil {
			if err := e.assignMechanics(ctx, tx, invoiceID, in.MechanicIDs); err != nil {
				return err
			}
		}

		out, err = e.invoices.LoadWithTx(ctx, tx, invoiceID)
		return err
	})
	if err != nil {
		e.reportDepletion(ctx, dep)
		return Invoice{}, err
	}

	e.afterCommit(ctx, invoiceID, &mov)
	return out, nil
}

// AddUsedPart records count additional units of a part on an invoice. It is
// strictly additive; shrinking a line goes through UpdateUsedPart or
// UpdateInvoice.
func (e *Engine) AddUsedPart(ctx context.Context, invoiceID, partID int64, count int) (usage.Record, error) {
	if count <= 0 {
		return usage.Record{}, fmt.Errorf("%w: count must be positive", ErrInvalidArgument)
	}

	var (
		rec usage.Record
		mov movements
		dep *depletion
	)
	err := e.inTx(ctx, func(tx db.Tx) error {
		if _, err := e.invoices.GetHeaderForUpdateWithTx(ctx, tx, invoiceID); err != nil {
			return err
		}
		var err error
		rec, err = e.addUsage(ctx, tx, invoiceID, partID, count, &mov, &dep)
		return err
	})
	if err != nil {
		e.reportDepletion(ctx, dep)
		return usage.Record{}, err
	}

	e.afterCommit(ctx, invoiceID, &mov)
	return rec, nil
}

// AddUsedPartForAppointment is the shop-floor path: parts are booked against
// the appointment as work proceeds, and a zero-default invoice is created the
// first time.
func (e *Engine) AddUsedPartForAppointment(ctx context.Context, appointmentID, partID int64, count int) (usage.Record, error) {
	if count <= 0 {
		return usage.Record{}, fmt.Errorf("%w: count must be positive", ErrInvalidArgument)
	}

	var (
		rec       usage.Record
		invoiceID int64
		mov       movements
		dep       *depletion
	)
	err := e.inTx(ctx, func(tx db.Tx) error {
		if _, err := e.shop.GetAppointmentWithTx(ctx, tx, appointmentID); err != nil {
			return err
		}

		id, found, err := e.invoices.GetByAppointmentWithTx(ctx, tx, appointmentID)
		if err != nil {
			return err
		}
		if !found {
			apptID := appointmentID
			if id, err = e.invoices.InsertWithTx(ctx, tx, &apptID, 0, 0); err != nil {
				return err
			}
		} else if _, err := e.invoices.GetHeaderForUpdateWithTx(ctx, tx, id); err != nil {
			return err
		}
		invoiceID = id

		rec, err = e.addUsage(ctx, tx, id, partID, count, &mov, &dep)
		return err
	})
	if err != nil {
		e.reportDepletion(ctx, dep)
		return usage.Record{}, err
	}

	e.afterCommit(ctx, invoiceID, &mov)
	return rec, nil
}

func (e *Engine) addUsage(ctx context.Context, tx db.Tx, invoiceID, partID int64, count int, mov *movements, dep **depletion) (usage.Record, error) {
	if err := e.parts.DecreaseWithTx(ctx, tx, partID, count); err != nil {
		if errors.Is(err, ledger.ErrInsufficientStock) {
			*dep = &depletion{invoiceID: invoiceID, partID: partID, requested: count}
		}
		return usage.Record{}, err
	}
	mov.consume(partID, count)

	rec, found, err := e.records.FindOneWithTx(ctx, tx, invoiceID, partID)
	if err != nil {
		return usage.Record{}, err
	}
	if !found {
		rec = usage.Record{InvoiceID: invoiceID, PartID: partID}
	}
	rec.Count += count

	if err := e.records.UpsertWithTx(ctx, tx, rec); err != nil {
		return usage.Record{}, err
	}
	return rec, nil
}

// UpdateUsedPart sets a single line to newCount, adjusting stock by the
// delta. newCount 0 removes the line and restores its full count.
func (e *Engine) UpdateUsedPart(ctx context.Context, invoiceID, partID int64, newCount int) (usage.Record, error) {
	if newCount < 0 {
		return usage.Record{}, fmt.Errorf("%w: count must not be negative", ErrInvalidArgument)
	}
	if newCount == 0 {
		if err := e.RemoveUsedPart(ctx, invoiceID, partID); err != nil {
			return usage.Record{}, err
		}
		return usage.Record{InvoiceID: invoiceID, PartID: partID}, nil
	}

	var (
		out usage.Record
		mov movements
		dep *depletion
	)
	err := e.inTx(ctx, func(tx db.Tx) error {
		if _, err := e.invoices.GetHeaderForUpdateWithTx(ctx, tx, invoiceID); err != nil {
			return err
		}

		rec, found, err := e.records.FindOneWithTx(ctx, tx, invoiceID, partID)
		if err != nil {
			return err
		}
		if !found {
			return usage.ErrNotFound
		}

		delta := newCount - rec.Count
		switch {
		case delta > 0:
			if err := e.parts.DecreaseWithTx(ctx, tx, partID, delta); err != nil {
				if errors.Is(err, ledger.ErrInsufficientStock) {
					dep = &depletion{invoiceID: invoiceID, partID: partID, requested: delta}
				}
				return err
			}
			mov.consume(partID, delta)
		case delta < 0:
			if err := e.parts.IncreaseWithTx(ctx, tx, partID, -delta); err != nil {
				return err
			}
			mov.ret(partID, -delta)
		}

		rec.Count = newCount
		if err := e.records.UpsertWithTx(ctx, tx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		e.reportDepletion(ctx, dep)
		return usage.Record{}, err
	}

	e.afterCommit(ctx, invoiceID, &mov)
	return out, nil
}

// RemoveUsedPart deletes a line and restores its full count to inventory.
func (e *Engine) RemoveUsedPart(ctx context.Context, invoiceID, partID int64) error {
	var mov movements
	err := e.inTx(ctx, func(tx db.Tx) error {
		if _, err := e.invoices.GetHeaderForUpdateWithTx(ctx, tx, invoiceID); err != nil {
			return err
		}

		rec, found, err := e.records.FindOneWithTx(ctx, tx, invoiceID, partID)
		if err != nil {
			return err
		}
		if !found {
			return usage.ErrNotFound
		}

		if err := e.parts.IncreaseWithTx(ctx, tx, partID, rec.Count); err != nil {
			return err
		}
		mov.ret(partID, rec.Count)
		return e.records.DeleteWithTx(ctx, tx, invoiceID, partID)
	})
	if err != nil {
		return err
	}

	e.afterCommit(ctx, invoiceID, &mov)
	return nil
}

// DeleteInvoice returns every consumed unit to inventory and removes the
// invoice with its usage rows and mechanic assignments, all-or-nothing.
func (e *Engine) DeleteInvoice(ctx context.Context, invoiceID int64) error {
	var mov movements
	err := e.inTx(ctx, func(tx db.Tx) error {
		if _, err := e.invoices.GetHeaderForUpdateWithTx(ctx, tx, invoiceID); err != nil {
			return err
		}

		current, err := e.records.FindWithTx(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		for _, rec := range current {
			if err := e.parts.IncreaseWithTx(ctx, tx, rec.PartID, rec.Count); err != nil {
				return err
			}
			mov.ret(rec.PartID, rec.Count)
		}

		if err := e.records.DeleteAllWithTx(ctx, tx, invoiceID); err != nil {
			return err
		}
		return e.invoices.DeleteWithTx(ctx, tx, invoiceID)
	})
	if err != nil {
		return err
	}

	e.afterCommit(ctx, invoiceID, &mov)
	return nil
}

func (e *Engine) GetInvoice(ctx context.Context, invoiceID int64) (Invoice, error) {
	return e.invoices.Load(ctx, invoiceID)
}

func (e *Engine) GetInvoiceForAppointment(ctx context.Context, appointmentID int64) (Invoice, error) {
	id, found, err := e.invoices.GetByAppointmentWithTx(ctx, e.pool, appointmentID)
	if err != nil {
		return Invoice{}, err
	}
	if !found {
		return Invoice{}, ErrNotFound
	}
	return e.invoices.Load(ctx, id)
}

func (e *Engine) ListInvoicesForCustomer(ctx context.Context, customerID int64) ([]Invoice, error) {
	return e.invoices.ListByCustomer(ctx, customerID)
}

func (e *Engine) ListInvoicesForVehicle(ctx context.Context, vehicleID int64) ([]Invoice, error) {
	return e.invoices.ListByVehicle(ctx, vehicleID)
}

func (e *Engine) UsedParts(ctx context.Context, invoiceID int64) ([]usage.Record, error) {
	if _, err := e.invoices.Load(ctx, invoiceID); err != nil {
		return nil, err
	}
	return e.records.FindWithTx(ctx, e.pool, invoiceID)
}

// InvoiceSummary returns the priced projection for an invoice.
func (e *Engine) InvoiceSummary(ctx context.Context, invoiceID int64) (Summary, error) {
	inv, err := e.invoices.Load(ctx, invoiceID)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(inv), nil
}

func (e *Engine) assignMechanics(ctx context.Context, tx db.Tx, invoiceID int64, mechanicIDs []int64) error {
	ids := dedupeIDs(mechanicIDs)
	if _, ok, err := e.shop.MechanicsExistWithTx(ctx, tx, ids); err != nil {
		return err
	} else if !ok {
		return workshop.ErrMechanicNotFound
	}
	return e.invoices.ReplaceMechanicsWithTx(ctx, tx, invoiceID, ids)
}

func (e *Engine) afterCommit(ctx context.Context, invoiceID int64, mov *movements) {
	if len(mov.consumed) == 0 && len(mov.returned) == 0 {
		return
	}
	if e.cache != nil {
		if err := e.cache.Invalidate(ctx, mov.partIDs()...); err != nil {
			e.logger.Printf("cache invalidate failed: %v", err)
		}
	}
	if e.publisher != nil {
		if err := e.publisher.PublishUsageReconciled(ctx, invoiceID, mov.consumed, mov.returned); err != nil {
			e.logger.Printf("publish usage reconciled failed: %v", err)
		}
	}
}

func (e *Engine) reportDepletion(ctx context.Context, dep *depletion) {
	if dep == nil || e.publisher == nil {
		return
	}
	available := 0
	if part, err := e.parts.GetWithTx(ctx, e.pool, dep.partID); err == nil {
		available = part.QuantityAvailable
	}
	if err := e.publisher.PublishStockDepleted(ctx, dep.invoiceID, dep.partID, dep.requested, available); err != nil {
		e.logger.Printf("publish stock depleted failed: %v", err)
	}
}

// normalizeLines validates a desired usage set: duplicate part ids are a
// caller error, lines with count <= 0 are treated as absent.
func normalizeLines(in []Line) ([]Line, error) {
	seen := make(map[int64]bool, len(in))
	out := make([]Line, 0, len(in))
	for _, ln := range in {
		if seen[ln.PartID] {
			return nil, fmt.Errorf("%w: duplicate part %d in usage set", ErrInvalidArgument, ln.PartID)
		}
		seen[ln.PartID] = true
		if ln.Count <= 0 {
			continue
		}
		out = append(out, ln)
	}
	return out, nil
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
