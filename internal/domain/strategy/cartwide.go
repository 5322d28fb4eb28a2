package strategy

import (
	"github.com/xenking/coupon-engine/internal/domain/cart"
	"github.com/xenking/coupon-engine/internal/domain/coupon"
	"github.com/xenking/coupon-engine/internal/domain/money"
)

var _ Strategy = CartWide{}

// CartWide discounts the cart total. It never touches item fields.
type CartWide struct{}

// Type implements Strategy.
func (CartWide) Type() coupon.Type { return coupon.TypeCartWide }

// IsApplicable implements Strategy.
func (s CartWide) IsApplicable(c *cart.Cart, coupons []coupon.Coupon) []Candidate {
	return collect(s.Type(), c, coupons, s.evaluate)
}

// CalculateDiscount implements Strategy.
func (s CartWide) CalculateDiscount(c *cart.Cart, cp *coupon.Coupon) int64 {
	return discountOf(c, cp, s.evaluate)
}

// ApplyDiscount implements Strategy.
func (s CartWide) ApplyDiscount(c *cart.Cart, cp *coupon.Coupon) *cart.Cart {
	c.DiscountCart(s.CalculateDiscount(c, cp))
	return c
}

func (CartWide) evaluate(c *cart.Cart, cp *coupon.Coupon) (int64, bool) {
	cond := cp.CartWide
	if cond == nil {
		return 0, false
	}

	total := c.TotalAmount
	if total < cond.MinCartValue {
		return 0, false
	}
	if cond.MaxCartValue != nil && total > *cond.MaxCartValue {
		return 0, false
	}
	if cond.MinItems != nil && c.TotalQuantity() < *cond.MinItems {
		return 0, false
	}

	// A fixed discount above the total would push SubTotal below zero.
	return money.Clamp(cp.Discount.Amount(total), total), true
}
