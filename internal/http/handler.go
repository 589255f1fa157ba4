package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/garagehq/invoice-service-go/internal/invoice"
	"github.com/garagehq/invoice-service-go/internal/ledger"
	"github.com/garagehq/invoice-service-go/internal/usage"
	"github.com/garagehq/invoice-service-go/internal/workshop"
)

// ReconciliationEngine is the invoice core as the API layer sees it.
type ReconciliationEngine interface {
	CreateInvoice(ctx context.Context, in invoice.CreateInvoiceInput) (invoice.Invoice, error)
	UpdateInvoice(ctx context.Context, invoiceID int64, in invoice.UpdateInvoiceInput) (invoice.Invoice, error)
	DeleteInvoice(ctx context.Context, invoiceID int64) error
	AddUsedPart(ctx context.Context, invoiceID, partID int64, count int) (usage.Record, error)
	UpdateUsedPart(ctx context.Context, invoiceID, partID int64, newCount int) (usage.Record, error)
	RemoveUsedPart(ctx context.Context, invoiceID, partID int64) error
	GetInvoice(ctx context.Context, invoiceID int64) (invoice.Invoice, error)
	GetInvoiceForAppointment(ctx context.Context, appointmentID int64) (invoice.Invoice, error)
	ListInvoicesForCustomer(ctx context.Context, customerID int64) ([]invoice.Invoice, error)
	ListInvoicesForVehicle(ctx context.Context, vehicleID int64) ([]invoice.Invoice, error)
	UsedParts(ctx context.Context, invoiceID int64) ([]usage.Record, error)
	InvoiceSummary(ctx context.Context, invoiceID int64) (invoice.Summary, error)
}

// PartStore is the part catalog plus the ledger's stock primitives.
type PartStore interface {
	Get(ctx context.Context, partID int64) (ledger.Part, error)
	List(ctx context.Context) ([]ledger.Part, error)
	Create(ctx context.Context, p ledger.Part) (ledger.Part, error)
	Update(ctx context.Context, p ledger.Part) error
	Delete(ctx context.Context, partID int64) error
	Increase(ctx context.Context, partID int64, amount int) error
	Decrease(ctx context.Context, partID int64, amount int) error
}

// AvailabilityCache serves the fast availability read path; nil disables it.
type AvailabilityCache interface {
	Get(ctx context.Context, partID int64) (int, bool, error)
	Set(ctx context.Context, partID int64, available int) error
}

type Handler struct {
	engine ReconciliationEngine
	parts  PartStore
	cache  AvailabilityCache
}

func NewHandler(engine ReconciliationEngine, parts PartStore, cache AvailabilityCache) *Handler {
	return &Handler{engine: engine, parts: parts, cache: cache}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps the domain error taxonomy onto HTTP statuses.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, invoice.ErrNotFound),
		errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, usage.ErrNotFound),
		errors.Is(err, workshop.ErrAppointmentNotFound),
		errors.Is(err, workshop.ErrMechanicNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, invoice.ErrInvalidArgument),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, usage.ErrZeroCount):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ledger.ErrInsufficientStock),
		errors.Is(err, invoice.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
