package strategy

import (
	"github.com/xenking/coupon-engine/internal/domain/cart"
	"github.com/xenking/coupon-engine/internal/domain/coupon"
	"github.com/xenking/coupon-engine/internal/domain/money"
)

var _ Strategy = BuyXGetY{}

// BuyXGetY grants free units of the "get" products for every full set of
// "buy" products in the cart, up to the coupon's repetition limit.
//
// The coupon's discount details are not used: the discount is always the
// value of the granted free units.
type BuyXGetY struct{}

// grant is the number of free units given on the item at idx.
type grant struct {
	idx  int
	free int
}

type bxgyPlan struct {
	requiredBuyQty int
	totalBuyQty    int
	maxRepetitions int
	repetitions    int
	entitlement    int
	grants         []grant
	discount       int64
}

// Type implements Strategy.
func (BuyXGetY) Type() coupon.Type { return coupon.TypeBuyXGetY }

// IsApplicable implements Strategy.
func (s BuyXGetY) IsApplicable(c *cart.Cart, coupons []coupon.Coupon) []Candidate {
	return collect(s.Type(), c, coupons, s.evaluate)
}

// CalculateDiscount implements Strategy.
func (s BuyXGetY) CalculateDiscount(c *cart.Cart, cp *coupon.Coupon) int64 {
	return discountOf(c, cp, s.evaluate)
}

// ApplyDiscount implements Strategy.
func (BuyXGetY) ApplyDiscount(c *cart.Cart, cp *coupon.Coupon) *cart.Cart {
	p, ok := planBuyXGetY(c, cp)
	if !ok {
		return c
	}
	for _, g := range p.grants {
		it := &c.Items[g.idx]
		c.DiscountItem(g.idx, money.LineTotal(it.Price, g.free), g.free, cp.ID)
	}
	return c
}

func (BuyXGetY) evaluate(c *cart.Cart, cp *coupon.Coupon) (int64, bool) {
	p, ok := planBuyXGetY(c, cp)
	if !ok {
		return 0, false
	}
	return p.discount, true
}

// planBuyXGetY computes repetitions and distributes the free entitlement
// over the get entries in their declared order. ok is false when the deal
// does not trigger or grants nothing.
func planBuyXGetY(c *cart.Cart, cp *coupon.Coupon) (p bxgyPlan, ok bool) {
	cond := cp.BuyXGetY
	if cond == nil {
		return p, false
	}

	for _, b := range cond.Buy {
		p.requiredBuyQty += b.Quantity
		p.totalBuyQty += quantityOf(c, b.ProductID)
	}
	if p.requiredBuyQty <= 0 {
		return p, false
	}

	p.maxRepetitions = p.totalBuyQty / p.requiredBuyQty
	p.repetitions = min(p.maxRepetitions, cond.RepetitionLimit)
	if p.repetitions <= 0 {
		return p, false
	}

	perRepetition := 0
	for _, g := range cond.Get {
		perRepetition += g.Quantity
	}
	p.entitlement = p.repetitions * perRepetition

	// granted tracks units already given per item so a product listed in
	// several get entries is never granted beyond what the cart holds.
	granted := make(map[int]int)
	remaining := p.entitlement
	for _, g := range cond.Get {
		if remaining <= 0 {
			break
		}
		for i := range c.Items {
			if remaining <= 0 {
				break
			}
			it := &c.Items[i]
			if it.ProductID != g.ProductID {
				continue
			}
			free := min(remaining, it.Quantity-granted[i])
			if free <= 0 {
				continue
			}
			granted[i] += free
			remaining -= free
		}
	}

	for i := range c.Items {
		free := granted[i]
		if free == 0 {
			continue
		}
		p.grants = append(p.grants, grant{idx: i, free: free})
		p.discount += money.LineTotal(c.Items[i].Price, free)
	}

	return p, p.discount > 0
}

func quantityOf(c *cart.Cart, productID string) int {
	qty := 0
	for _, it := range c.Items {
		if it.ProductID == productID {
			qty += it.Quantity
		}
	}
	return qty
}
