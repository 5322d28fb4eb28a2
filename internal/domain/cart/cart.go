package cart

import (
	"fmt"
	"math"

	"github.com/go-faster/errors"

	"github.com/xenking/coupon-engine/internal/domain/money"
)

// ErrEmptyCart is returned when a cart has no items to evaluate.
var ErrEmptyCart = errors.New("cart has no items")

// InvalidItemError indicates a line item that cannot be priced.
type InvalidItemError struct {
	ProductID string
	Reason    string
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("invalid item %s: %s", e.ProductID, e.Reason)
}

// Item is a single cart line. Prices are integer minor currency units.
//
// TotalDiscount, FinalPrice, FreeQuantity and AppliedCoupons are derived
// fields written only when a discount is applied to the item.
type Item struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
	Price     int64  `json:"price" validate:"gte=0"`
	Category  string `json:"category,omitempty"`

	TotalDiscount  int64    `json:"totalDiscount"`
	FinalPrice     int64    `json:"finalPrice"`
	FreeQuantity   int      `json:"freeQuantity"`
	AppliedCoupons []string `json:"appliedCoupons,omitempty"`
}

// LineTotal returns Price * Quantity.
func (it *Item) LineTotal() int64 {
	return money.LineTotal(it.Price, it.Quantity)
}

// Cart is the unit of discount evaluation.
//
// A Cart is owned by the caller for a single request. Strategies mutate it
// in place when applying a discount, so callers that share a cart across
// goroutines must Clone it first.
type Cart struct {
	Items            []Item `json:"items" validate:"dive"`
	TotalAmount      int64  `json:"totalAmount"`
	DiscountedAmount int64  `json:"discountedAmount"`
	SubTotal         int64  `json:"subTotal"`
}

// Validate checks that the cart can be evaluated. A supplied TotalAmount
// must equal the sum of the line totals, since strategies discount items by
// their line totals and the cart by TotalAmount. Lines or totals that do not
// fit in an int64 are rejected.
func (c *Cart) Validate() error {
	if len(c.Items) == 0 {
		return ErrEmptyCart
	}
	if c.TotalAmount < 0 {
		return &InvalidItemError{Reason: "total amount must not be negative"}
	}

	var sum int64
	for _, it := range c.Items {
		switch {
		case it.ProductID == "":
			return &InvalidItemError{Reason: "product id is required"}
		case it.Quantity <= 0:
			return &InvalidItemError{ProductID: it.ProductID, Reason: "quantity must be greater than 0"}
		case it.Price < 0:
			return &InvalidItemError{ProductID: it.ProductID, Reason: "price must not be negative"}
		case it.Price > 0 && int64(it.Quantity) > math.MaxInt64/it.Price:
			return &InvalidItemError{ProductID: it.ProductID, Reason: "line total is too large"}
		}
		line := it.LineTotal()
		if sum > math.MaxInt64-line {
			return &InvalidItemError{ProductID: it.ProductID, Reason: "cart total is too large"}
		}
		sum += line
	}

	if c.TotalAmount != 0 && c.TotalAmount != sum {
		return &InvalidItemError{
			Reason: fmt.Sprintf("total amount %d does not match item total %d", c.TotalAmount, sum),
		}
	}
	return nil
}

// ComputeTotal returns the sum of line totals.
func (c *Cart) ComputeTotal() int64 {
	var sum int64
	for i := range c.Items {
		sum += c.Items[i].LineTotal()
	}
	return sum
}

// Normalize prepares a cart for evaluation. A zero TotalAmount means the
// caller omitted it, so it is computed from the items; Validate has already
// rejected any other value that disagrees with them. Any discount
// bookkeeping carried in by the caller is discarded: every item starts at
// its full line total and SubTotal equals TotalAmount.
func (c *Cart) Normalize() {
	if c.TotalAmount == 0 {
		c.TotalAmount = c.ComputeTotal()
	}
	for i := range c.Items {
		it := &c.Items[i]
		it.TotalDiscount = 0
		it.FreeQuantity = 0
		it.AppliedCoupons = nil
		it.FinalPrice = it.LineTotal()
	}
	c.DiscountedAmount = 0
	c.SubTotal = c.TotalAmount
}

// TotalQuantity returns the number of units across all lines.
func (c *Cart) TotalQuantity() int {
	total := 0
	for _, it := range c.Items {
		total += it.Quantity
	}
	return total
}

// Clone returns a deep copy of the cart.
func (c *Cart) Clone() *Cart {
	out := *c
	out.Items = append([]Item(nil), c.Items...)
	for i := range out.Items {
		if ac := out.Items[i].AppliedCoupons; ac != nil {
			out.Items[i].AppliedCoupons = append([]string(nil), ac...)
		}
	}
	return &out
}

// DiscountItem records amount (and free units) against the item at idx on
// behalf of couponID. The item discount never exceeds its line total.
// It returns the amount actually recorded.
func (c *Cart) DiscountItem(idx int, amount int64, free int, couponID string) int64 {
	it := &c.Items[idx]
	line := it.LineTotal()
	amount = money.Clamp(amount, line-it.TotalDiscount)

	it.TotalDiscount += amount
	it.FreeQuantity += free
	it.FinalPrice = line - it.TotalDiscount
	it.AppliedCoupons = append(it.AppliedCoupons, couponID)

	c.DiscountCart(amount)
	return amount
}

// DiscountCart adds amount to the cart-level discount, keeping
// DiscountedAmount within TotalAmount and SubTotal in sync.
func (c *Cart) DiscountCart(amount int64) {
	c.DiscountedAmount += money.Clamp(amount, c.TotalAmount-c.DiscountedAmount)
	c.SubTotal = c.TotalAmount - c.DiscountedAmount
}
