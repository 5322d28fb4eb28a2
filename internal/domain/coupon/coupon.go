package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/coupon-engine/internal/domain/money"
)

// Type tags the shape of a coupon's conditions and selects its strategy.
type Type string

const (
	// TypeCartWide discounts the whole cart.
	TypeCartWide Type = "cart_wide"
	// TypeProductScoped discounts matching products or categories.
	TypeProductScoped Type = "product_scoped"
	// TypeBuyXGetY grants free units of "get" products for bought ones.
	TypeBuyXGetY Type = "buy_x_get_y"
)

// Types lists every known coupon type in evaluation order.
func Types() []Type {
	return []Type{TypeCartWide, TypeProductScoped, TypeBuyXGetY}
}

// Known reports whether t is one of the supported coupon types.
func (t Type) Known() bool {
	switch t {
	case TypeCartWide, TypeProductScoped, TypeBuyXGetY:
		return true
	default:
		return false
	}
}

// DiscountKind enumerates how a discount value is interpreted.
type DiscountKind string

const (
	// DiscountPercentage takes Value percent of the discounted base.
	DiscountPercentage DiscountKind = "percentage"
	// DiscountFixed takes Value minor units off the discounted base.
	DiscountFixed DiscountKind = "fixed"
)

// Discount describes the discount granted once a coupon applies.
type Discount struct {
	Kind  DiscountKind    `json:"kind" validate:"required,oneof=percentage fixed"`
	Value decimal.Decimal `json:"value"`
	// MaxDiscount caps a percentage discount. Ignored for fixed discounts.
	MaxDiscount *int64 `json:"maxDiscount,omitempty" validate:"omitempty,gte=0"`
}

// Amount returns the floored discount for base: a capped percentage of base
// or the fixed value. It is never negative and it is not limited to base;
// callers clamp where the strategy requires it.
func (d Discount) Amount(base int64) int64 {
	switch d.Kind {
	case DiscountPercentage:
		return money.Cap(money.Percent(base, d.Value), d.MaxDiscount)
	case DiscountFixed:
		return money.Floor(d.Value)
	default:
		return 0
	}
}

// CartWideConditions gate a cart-wide coupon on cart value and size.
type CartWideConditions struct {
	MinCartValue int64  `json:"minCartValue" validate:"gte=0"`
	MaxCartValue *int64 `json:"maxCartValue,omitempty" validate:"omitempty,gte=0"`
	MinItems     *int   `json:"minItems,omitempty" validate:"omitempty,gte=0"`
}

// ProductScopedConditions select cart items by product id or category.
type ProductScopedConditions struct {
	ProductIDs  []string `json:"productIds,omitempty" validate:"omitempty,dive,required"`
	Categories  []string `json:"categories,omitempty" validate:"omitempty,dive,required"`
	MinQuantity *int     `json:"minQuantity,omitempty" validate:"omitempty,gte=0"`
}

// Matches reports whether an item with the given product id or category is
// covered. Category comparison ignores case.
func (p *ProductScopedConditions) Matches(productID, category string) bool {
	for _, id := range p.ProductIDs {
		if id == productID {
			return true
		}
	}
	if category == "" {
		return false
	}
	for _, c := range p.Categories {
		if strings.EqualFold(c, category) {
			return true
		}
	}
	return false
}

// ProductQuantity pairs a product with a unit count.
type ProductQuantity struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

// BuyXGetYConditions describe a buy/get deal. Get entries are granted in
// declaration order.
type BuyXGetYConditions struct {
	Buy             []ProductQuantity `json:"buyProducts" validate:"required,min=1,dive"`
	Get             []ProductQuantity `json:"getProducts" validate:"required,min=1,dive"`
	RepetitionLimit int               `json:"repetitionLimit" validate:"gte=1"`
}

// Coupon is a stored promotion. Exactly one conditions field is set and it
// always matches Type; JSON decoding and Validate enforce this.
type Coupon struct {
	ID         string     `json:"id" validate:"required,max=128"`
	Name       string     `json:"name" validate:"max=256"`
	Type       Type       `json:"type" validate:"required"`
	Active     bool       `json:"active"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	UsageLimit *int       `json:"usageLimit,omitempty" validate:"omitempty,gte=0"`
	UsedCount  int        `json:"usedCount" validate:"gte=0"`

	CartWide      *CartWideConditions      `json:"-"`
	ProductScoped *ProductScopedConditions `json:"-"`
	BuyXGetY      *BuyXGetYConditions      `json:"-"`

	Discount Discount `json:"discount"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CheckStatus is the coupon gate: it reports why a coupon may not be
// evaluated at now, or nil when it is active, unexpired and under its
// usage limit. The expiry instant itself counts as expired.
func (c *Coupon) CheckStatus(now time.Time) error {
	if !c.Active {
		return ErrCouponInactive
	}
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return ErrCouponExpired
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return ErrUsageLimitExceeded
	}
	return nil
}

// Eligible returns the coupons that pass CheckStatus at now, preserving
// order.
func Eligible(coupons []Coupon, now time.Time) []Coupon {
	out := make([]Coupon, 0, len(coupons))
	for _, c := range coupons {
		if c.CheckStatus(now) == nil {
			out = append(out, c)
		}
	}
	return out
}

// Repository stores coupons keyed by id.
type Repository interface {
	Create(ctx context.Context, c *Coupon) error
	Get(ctx context.Context, id string) (*Coupon, error)
	List(ctx context.Context) ([]Coupon, error)
	// Update replaces the stored definition but keeps the stored UsedCount.
	Update(ctx context.Context, c *Coupon) (*Coupon, error)
	Delete(ctx context.Context, id string) error
	// IncrementUsage atomically bumps UsedCount by one if it still equals
	// expectedUsed and the stored coupon still passes CheckStatus at now.
	// It returns ErrStaleUsage when the count moved, or the CheckStatus
	// error when the coupon was deactivated, expired or exhausted in the
	// meantime.
	IncrementUsage(ctx context.Context, id string, expectedUsed int, now time.Time) (*Coupon, error)
}
