package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/garagehq/invoice-service-go/internal/ledger"
)

type partRequest struct {
	Name              string  `json:"name"`
	UnitPrice         float64 `json:"unitPrice"`
	QuantityAvailable int     `json:"quantityAvailable"`
}

func (h *Handler) ListParts(w http.ResponseWriter, r *http.Request) {
	parts, err := h.parts.List(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	if parts == nil {
		parts = []ledger.Part{}
	}
	writeJSON(w, http.StatusOK, parts)
}

func (h *Handler) GetPart(w http.ResponseWriter, r *http.Request) {
	partID, ok := pathID(r, "partId")
	if !ok {
		http.Error(w, "bad part id", http.StatusBadRequest)
		return
	}

	part, err := h.parts.Get(r.Context(), partID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, part)
}

func (h *Handler) CreatePart(w http.ResponseWriter, r *http.Request) {
	var req partRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.UnitPrice < 0 || req.QuantityAvailable < 0 {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	part, err := h.parts.Create(r.Context(), ledger.Part{
		Name:              req.Name,
		UnitPrice:         req.UnitPrice,
		QuantityAvailable: req.QuantityAvailable,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, part)
}

func (h *Handler) UpdatePart(w http.ResponseWriter, r *http.Request) {
	partID, ok := pathID(r, "partId")
	if !ok {
		http.Error(w, "bad part id", http.StatusBadRequest)
		return
	}

	var req partRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.UnitPrice < 0 || req.QuantityAvailable < 0 {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	part := ledger.Part{
		ID:                partID,
		Name:              req.Name,
		UnitPrice:         req.UnitPrice,
		QuantityAvailable: req.QuantityAvailable,
	}
	if err := h.parts.Update(r.Context(), part); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, part)
}

func (h *Handler) DeletePart(w http.ResponseWriter, r *http.Request) {
	partID, ok := pathID(r, "partId")
	if !ok {
		http.Error(w, "bad part id", http.StatusBadRequest)
		return
	}

	if err := h.parts.Delete(r.Context(), partID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type availabilityResponse struct {
	PartID    int64 `json:"partId"`
	Available int   `json:"available"`
	Cached    bool  `json:"cached"`
}

// GetAvailability serves the fast stock read. A cache hit skips the ledger;
// a miss reads the authoritative counter and refreshes the cache.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	partID, ok := pathID(r, "partId")
	if !ok {
		http.Error(w, "bad part id", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	if h.cache != nil {
		if available, hit, err := h.cache.Get(ctx, partID); err == nil && hit {
			writeJSON(w, http.StatusOK, availabilityResponse{PartID: partID, Available: available, Cached: true})
			return
		}
	}

	part, err := h.parts.Get(ctx, partID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if h.cache != nil {
		_ = h.cache.Set(ctx, partID, part.QuantityAvailable)
	}
	writeJSON(w, http.StatusOK, availabilityResponse{PartID: partID, Available: part.QuantityAvailable})
}

type stockAdjustRequest struct {
	Amount int `json:"amount"`
}

func (h *Handler) IncreaseStock(w http.ResponseWriter, r *http.Request) {
	h.adjustStock(w, r, h.parts.Increase)
}

func (h *Handler) DecreaseStock(w http.ResponseWriter, r *http.Request) {
	h.adjustStock(w, r, h.parts.Decrease)
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request, adjust func(ctx context.Context, partID int64, amount int) error) {
	partID, ok := pathID(r, "partId")
	if !ok {
		http.Error(w, "bad part id", http.StatusBadRequest)
		return
	}

	var req stockAdjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if err := adjust(r.Context(), partID, req.Amount); err != nil {
		writeErr(w, err)
		return
	}

	part, err := h.parts.Get(r.Context(), partID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, part)
}
