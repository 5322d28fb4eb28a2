// Package strategy implements the discount strategies behind a uniform
// contract. Strategies are stateless and safe to share between goroutines;
// only ApplyDiscount mutates the cart it is given.
package strategy

import (
	"github.com/xenking/coupon-engine/internal/domain/cart"
	"github.com/xenking/coupon-engine/internal/domain/coupon"
)

// Candidate is a coupon found applicable to a cart, with the discount it
// would grant. Candidates are never persisted.
type Candidate struct {
	CouponID string      `json:"couponId"`
	Type     coupon.Type `json:"type"`
	Discount int64       `json:"discount"`
}

// Strategy evaluates and applies one coupon type.
//
// IsApplicable and CalculateDiscount are pure. ApplyDiscount realizes the
// amount CalculateDiscount reports and must run at most once per coupon
// per cart: a second call discounts the cart twice.
type Strategy interface {
	Type() coupon.Type
	// IsApplicable returns one candidate per coupon that fits the cart with
	// a strictly positive discount. Coupons that do not fit are omitted.
	IsApplicable(c *cart.Cart, coupons []coupon.Coupon) []Candidate
	// CalculateDiscount returns the discount cp grants on c, or 0 when it
	// does not fit.
	CalculateDiscount(c *cart.Cart, cp *coupon.Coupon) int64
	// ApplyDiscount mutates c to reflect cp and returns it.
	ApplyDiscount(c *cart.Cart, cp *coupon.Coupon) *cart.Cart
}

// evaluateFunc reports the discount a coupon grants and whether the cart
// satisfies its conditions.
type evaluateFunc func(c *cart.Cart, cp *coupon.Coupon) (int64, bool)

func collect(typ coupon.Type, c *cart.Cart, coupons []coupon.Coupon, eval evaluateFunc) []Candidate {
	var out []Candidate
	for i := range coupons {
		cp := &coupons[i]
		if cp.Type != typ {
			continue
		}
		amount, ok := eval(c, cp)
		if !ok || amount <= 0 {
			continue
		}
		out = append(out, Candidate{CouponID: cp.ID, Type: typ, Discount: amount})
	}
	return out
}

func discountOf(c *cart.Cart, cp *coupon.Coupon, eval evaluateFunc) int64 {
	amount, ok := eval(c, cp)
	if !ok || amount <= 0 {
		return 0
	}
	return amount
}
