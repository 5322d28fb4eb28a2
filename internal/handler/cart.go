package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/coupon-engine/internal/domain/cart"
	"github.com/xenking/coupon-engine/internal/domain/strategy"
)

// cartRequest is the body of the discovery and apply endpoints. A missing
// totalAmount is computed from the items.
type cartRequest struct {
	Cart cart.Cart `json:"cart"`
}

type applicableResponse struct {
	ApplicableCoupons []strategy.Candidate `json:"applicableCoupons"`
}

type applyResponse struct {
	UpdatedCart *cart.Cart `json:"updatedCart"`
}

// ApplicableCoupons handles POST /api/applicable-coupons.
func (h *Handler) ApplicableCoupons(w http.ResponseWriter, r *http.Request) {
	var req cartRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	candidates, err := h.engine.Discover(r.Context(), &req.Cart)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if candidates == nil {
		candidates = []strategy.Candidate{}
	}
	writeJSON(w, http.StatusOK, applicableResponse{ApplicableCoupons: candidates})
}

// ApplyCoupon handles POST /api/apply-coupon/{id}.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req cartRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	updated, err := h.engine.Apply(r.Context(), chi.URLParam(r, "id"), &req.Cart)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, applyResponse{UpdatedCart: updated})
}
