package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/coupon-engine/internal/domain/cart"
	"github.com/xenking/coupon-engine/internal/domain/coupon"
	"github.com/xenking/coupon-engine/internal/domain/money"
)

var _ Strategy = ProductScoped{}

// ProductScoped discounts each item matched by product id or category.
type ProductScoped struct{}

// itemDiscount is the discount planned for the item at idx.
type itemDiscount struct {
	idx    int
	amount int64
}

// Type implements Strategy.
func (ProductScoped) Type() coupon.Type { return coupon.TypeProductScoped }

// IsApplicable implements Strategy.
func (s ProductScoped) IsApplicable(c *cart.Cart, coupons []coupon.Coupon) []Candidate {
	return collect(s.Type(), c, coupons, s.evaluate)
}

// CalculateDiscount implements Strategy.
func (s ProductScoped) CalculateDiscount(c *cart.Cart, cp *coupon.Coupon) int64 {
	return discountOf(c, cp, s.evaluate)
}

// ApplyDiscount implements Strategy.
func (s ProductScoped) ApplyDiscount(c *cart.Cart, cp *coupon.Coupon) *cart.Cart {
	items, total, ok := s.plan(c, cp)
	if !ok || total <= 0 {
		return c
	}
	for _, d := range items {
		if d.amount > 0 {
			c.DiscountItem(d.idx, d.amount, 0, cp.ID)
		}
	}
	return c
}

func (s ProductScoped) evaluate(c *cart.Cart, cp *coupon.Coupon) (int64, bool) {
	_, total, ok := s.plan(c, cp)
	return total, ok
}

// plan computes the per-item discounts for cp. ok is false when no item
// matches or the matched quantity is below the coupon's minimum.
func (ProductScoped) plan(c *cart.Cart, cp *coupon.Coupon) (items []itemDiscount, total int64, ok bool) {
	cond := cp.ProductScoped
	if cond == nil {
		return nil, 0, false
	}

	matchedQty := 0
	for i := range c.Items {
		it := &c.Items[i]
		if !cond.Matches(it.ProductID, it.Category) {
			continue
		}
		matchedQty += it.Quantity

		amount := itemAmount(it, cp.Discount)
		items = append(items, itemDiscount{idx: i, amount: amount})
		total += amount
	}

	if len(items) == 0 {
		return nil, 0, false
	}
	if cond.MinQuantity != nil && matchedQty < *cond.MinQuantity {
		return nil, 0, false
	}
	return items, total, true
}

// itemAmount is a capped percentage of the line total, or the fixed value
// per unit. Either way it never exceeds the line total.
func itemAmount(it *cart.Item, d coupon.Discount) int64 {
	line := it.LineTotal()

	var amount int64
	switch d.Kind {
	case coupon.DiscountPercentage:
		amount = d.Amount(line)
	case coupon.DiscountFixed:
		amount = money.Floor(d.Value.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return money.Clamp(amount, line)
}
