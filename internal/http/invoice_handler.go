package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/garagehq/invoice-service-go/internal/invoice"
	"github.com/garagehq/invoice-service-go/internal/usage"
)

func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var in invoice.CreateInvoiceInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	inv, err := h.engine.CreateInvoice(r.Context(), in)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := pathID(r, "invoiceId")
	if !ok {
		http.Error(w, "bad invoice id", http.StatusBadRequest)
		return
	}

	inv, err := h.engine.GetInvoice(r.Context(), invoiceID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *Handler) UpdateInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := pathID(r, "invoiceId")
	if !ok {
		http.Error(w, "bad invoice id", http.StatusBadRequest)
		return
	}

	var in invoice.UpdateInvoiceInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	inv, err := h.engine.UpdateInvoice(r.Context(), invoiceID, in)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *Handler) DeleteInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := pathID(r, "invoiceId")
	if !ok {
		http.Error(w, "bad invoice id", http.StatusBadRequest)
		return
	}

	if err := h.engine.DeleteInvoice(r.Context(), invoiceID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetInvoiceSummary(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := pathID(r, "invoiceId")
	if !ok {
		http.Error(w, "bad invoice id", http.StatusBadRequest)
		return
	}

	summary, err := h.engine.InvoiceSummary(r.Context(), invoiceID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) ListUsedParts(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := pathID(r, "invoiceId")
	if !ok {
		http.Error(w, "bad invoice id", http.StatusBadRequest)
		return
	}

	records, err := h.engine.UsedParts(r.Context(), invoiceID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if records == nil {
		records = []usage.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func countParam(r *http.Request) (int, bool) {
	count, err := strconv.Atoi(r.URL.Query().Get("count"))
	if err != nil {
		return 0, false
	}
	return count, true
}

func (h *Handler) AddUsedPart(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := pathID(r, "invoiceId")
	if !ok {
		http.Error(w, "bad invoice id", http.StatusBadRequest)
		return
	}
	partID, ok := pathID(r, "partId")
	if !ok {
		http.Error(w, "bad part id", http.StatusBadRequest)
		return
	}
	count, ok := countParam(r)
	if !ok {
		http.Error(w, "bad count", http.StatusBadRequest)
		return
	}

	rec, err := h.engine.AddUsedPart(r.Context(), invoiceID, partID, count)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) UpdateUsedPart(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := pathID(r, "invoiceId")
	if !ok {
		http.Error(w, "bad invoice id", http.StatusBadRequest)
		return
	}
	partID, ok := pathID(r, "partId")
	if !ok {
		http.Error(w, "bad part id", http.StatusBadRequest)
		return
	}
	count, ok := countParam(r)
	if !ok {
		http.Error(w, "bad count", http.StatusBadRequest)
		return
	}

	rec, err := h.engine.UpdateUsedPart(r.Context(), invoiceID, partID, count)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) RemoveUsedPart(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := pathID(r, "invoiceId")
	if !ok {
		http.Error(w, "bad invoice id", http.StatusBadRequest)
		return
	}
	partID, ok := pathID(r, "partId")
	if !ok {
		http.Error(w, "bad part id", http.StatusBadRequest)
		return
	}

	if err := h.engine.RemoveUsedPart(r.Context(), invoiceID, partID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetInvoiceForAppointment(w http.ResponseWriter, r *http.Request) {
	appointmentID, ok := pathID(r, "appointmentId")
	if !ok {
		http.Error(w, "bad appointment id", http.StatusBadRequest)
		return
	}

	inv, err := h.engine.GetInvoiceForAppointment(r.Context(), appointmentID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *Handler) ListInvoicesForCustomer(w http.ResponseWriter, r *http.Request) {
	customerID, ok := pathID(r, "customerId")
	if !ok {
		http.Error(w, "bad customer id", http.StatusBadRequest)
		return
	}

	invoices, err := h.engine.ListInvoicesForCustomer(r.Context(), customerID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if invoices == nil {
		invoices = []invoice.Invoice{}
	}
	writeJSON(w, http.StatusOK, invoices)
}

func (h *Handler) ListInvoicesForVehicle(w http.ResponseWriter, r *http.Request) {
	vehicleID, ok := pathID(r, "vehicleId")
	if !ok {
		http.Error(w, "bad vehicle id", http.StatusBadRequest)
		return
	}

	invoices, err := h.engine.ListInvoicesForVehicle(r.Context(), vehicleID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if invoices == nil {
		invoices = []invoice.Invoice{}
	}
	writeJSON(w, http.StatusOK, invoices)
}
