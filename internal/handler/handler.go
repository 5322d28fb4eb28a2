// Package handler exposes the coupon engine over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/coupon-engine/internal/domain/cart"
	"github.com/xenking/coupon-engine/internal/domain/coupon"
	"github.com/xenking/coupon-engine/internal/domain/discount"
	"github.com/xenking/coupon-engine/internal/domain/strategy"
	"github.com/xenking/coupon-engine/pkg/httpmiddleware"
)

// Engine is the coupon engine as seen by the HTTP layer.
type Engine interface {
	Discover(ctx context.Context, c *cart.Cart) ([]strategy.Candidate, error)
	Apply(ctx context.Context, id string, c *cart.Cart) (*cart.Cart, error)

	CreateCoupon(ctx context.Context, cp *coupon.Coupon) (*coupon.Coupon, error)
	ListCoupons(ctx context.Context) ([]coupon.Coupon, error)
	GetCoupon(ctx context.Context, id string) (*coupon.Coupon, error)
	UpdateCoupon(ctx context.Context, cp *coupon.Coupon) (*coupon.Coupon, error)
	DeleteCoupon(ctx context.Context, id string) error
}

var _ Engine = (*discount.Service)(nil)

// Handler serves the /api routes.
type Handler struct {
	engine Engine
}

// NewHandler creates a Handler backed by engine.
func NewHandler(engine Engine) *Handler {
	return &Handler{engine: engine}
}

// Routes mounts the API under /api. protect guards the routes that modify
// coupons; pass nil to leave them open.
func (h *Handler) Routes(r chi.Router, protect httpmiddleware.Middleware) {
	if protect == nil {
		protect = func(next http.Handler) http.Handler { return next }
	}
	r.Route("/api", func(r chi.Router) {
		r.Get("/coupons", h.ListCoupons)
		r.Get("/coupons/{id}", h.GetCoupon)
		r.Group(func(r chi.Router) {
			r.Use(protect)
			r.Post("/coupons", h.CreateCoupon)
			r.Put("/coupons/{id}", h.UpdateCoupon)
			r.Delete("/coupons/{id}", h.DeleteCoupon)
		})

		r.Post("/applicable-coupons", h.ApplicableCoupons)
		r.Post("/apply-coupon/{id}", h.ApplyCoupon)
	})
}
