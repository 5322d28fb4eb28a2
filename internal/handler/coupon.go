package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/coupon-engine/internal/domain/coupon"
)

// CreateCoupon handles POST /api/coupons.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var cp coupon.Coupon
	if err := decodeJSON(w, r, &cp); err != nil {
		writeDomainError(w, r, err)
		return
	}
	created, err := h.engine.CreateCoupon(r.Context(), &cp)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ListCoupons handles GET /api/coupons.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.engine.ListCoupons(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if coupons == nil {
		coupons = []coupon.Coupon{}
	}
	writeJSON(w, http.StatusOK, coupons)
}

// GetCoupon handles GET /api/coupons/{id}.
func (h *Handler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	cp, err := h.engine.GetCoupon(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

// UpdateCoupon handles PUT /api/coupons/{id}. The id in the path wins; a
// different id in the body is rejected.
func (h *Handler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var cp coupon.Coupon
	if err := decodeJSON(w, r, &cp); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if cp.ID != "" && cp.ID != id {
		writeError(w, http.StatusBadRequest, "coupon id does not match path", nil)
		return
	}
	cp.ID = id

	updated, err := h.engine.UpdateCoupon(r.Context(), &cp)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteCoupon handles DELETE /api/coupons/{id}.
func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteCoupon(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
