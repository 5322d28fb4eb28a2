package strategy

import (
	"github.com/go-faster/errors"

	"github.com/xenking/coupon-engine/internal/domain/coupon"
)

// Registry maps a coupon type to its strategy. It is built once and read
// concurrently afterwards.
type Registry struct {
	byType map[coupon.Type]Strategy
}

// NewRegistry builds a registry from strategies. A later strategy replaces
// an earlier one of the same type.
func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{byType: make(map[coupon.Type]Strategy, len(strategies))}
	for _, s := range strategies {
		r.byType[s.Type()] = s
	}
	return r
}

// DefaultRegistry returns a registry holding every built-in strategy.
func DefaultRegistry() *Registry {
	return NewRegistry(CartWide{}, ProductScoped{}, BuyXGetY{})
}

// Lookup returns the strategy for t, or an error wrapping
// coupon.ErrUnknownCouponType.
func (r *Registry) Lookup(t coupon.Type) (Strategy, error) {
	s, ok := r.byType[t]
	if !ok {
		return nil, errors.Wrapf(coupon.ErrUnknownCouponType, "type %q", t)
	}
	return s, nil
}
