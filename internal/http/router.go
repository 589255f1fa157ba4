package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Get("/health", h.Health)

	r.Route("/api/parts", func(r chi.Router) {
		r.Get("/", h.ListParts)
		r.Post("/", h.CreatePart)
		r.Get("/{partId}", h.GetPart)
		r.Put("/{partId}", h.UpdatePart)
		r.Delete("/{partId}", h.DeletePart)
		r.Get("/{partId}/availability", h.GetAvailability)
		r.Post("/{partId}/increase", h.IncreaseStock)
		r.Post("/{partId}/decrease", h.DecreaseStock)
	})

	r.Route("/api/invoices", func(r chi.Router) {
		r.Post("/", h.CreateInvoice)
		r.Get("/{invoiceId}", h.GetInvoice)
		r.Put("/{invoiceId}", h.UpdateInvoice)
		r.Delete("/{invoiceId}", h.DeleteInvoice)
		r.Get("/{invoiceId}/summary", h.GetInvoiceSummary)
		r.Get("/{invoiceId}/parts", h.ListUsedParts)
		r.Post("/{invoiceId}/parts/{partId}", h.AddUsedPart)
		r.Put("/{invoiceId}/parts/{partId}", h.UpdateUsedPart)
		r.Delete("/{invoiceId}/parts/{partId}", h.RemoveUsedPart)
	})

	r.Get("/api/appointments/{appointmentId}/invoice", h.GetInvoiceForAppointment)
	r.Get("/api/customers/{customerId}/invoices", h.ListInvoicesForCustomer)
	r.Get("/api/vehicles/{vehicleId}/invoices", h.ListInvoicesForVehicle)

	return r
}
