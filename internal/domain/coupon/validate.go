package coupon

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	validate = newValidator()
	hundred  = decimal.NewFromInt(100)
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		switch tag {
		case "":
			return f.Name
		case "-":
			return "conditions"
		}
		return tag
	})
	return v
}

// Validate checks that the coupon is structurally well formed: field
// ranges, a conditions variant matching Type, and a sane discount. An
// unrecognised Type yields ErrUnknownCouponType; every other problem is
// reported as a *ValidationError.
func (c *Coupon) Validate() error {
	if c.Type != "" && !c.Type.Known() {
		return errors.Wrapf(ErrUnknownCouponType, "type %q", c.Type)
	}

	verr := &ValidationError{}
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return errors.Wrap(err, "validate coupon")
		}
		for _, fe := range fieldErrs {
			verr.add(fieldPath(fe), validationMessage(fe))
		}
	}

	c.validateConditions(verr)
	c.validateDiscount(verr)

	if c.UsageLimit != nil && c.UsedCount > *c.UsageLimit {
		verr.add("usedCount", "must not exceed usageLimit")
	}
	return verr.orNil()
}

func (c *Coupon) validateConditions(verr *ValidationError) {
	set := 0
	for _, present := range []bool{c.CartWide != nil, c.ProductScoped != nil, c.BuyXGetY != nil} {
		if present {
			set++
		}
	}
	if set > 1 {
		verr.add("conditions", "must describe exactly one coupon type")
		return
	}

	switch c.Type {
	case TypeCartWide:
		cw := c.CartWide
		if cw == nil {
			verr.add("conditions", "is required")
			return
		}
		if cw.MaxCartValue != nil && *cw.MaxCartValue < cw.MinCartValue {
			verr.add("conditions.maxCartValue", "must be at least minCartValue")
		}
	case TypeProductScoped:
		ps := c.ProductScoped
		if ps == nil {
			verr.add("conditions", "is required")
			return
		}
		if len(ps.ProductIDs) == 0 && len(ps.Categories) == 0 {
			verr.add("conditions", "must list at least one product id or category")
		}
	case TypeBuyXGetY:
		if c.BuyXGetY == nil {
			verr.add("conditions", "is required")
		}
	}
}

func (c *Coupon) validateDiscount(verr *ValidationError) {
	switch c.Discount.Kind {
	case DiscountPercentage:
		if !c.Discount.Value.IsPositive() || c.Discount.Value.GreaterThan(hundred) {
			verr.add("discount.value", "must be greater than 0 and at most 100")
		}
	case DiscountFixed:
		if !c.Discount.Value.IsPositive() {
			verr.add("discount.value", "must be greater than 0")
		}
		if c.Discount.MaxDiscount != nil {
			verr.add("discount.maxDiscount", "only applies to percentage discounts")
		}
	}
	// Buy-x-get-y coupons are valued by the free units they grant.
	if c.Type == TypeBuyXGetY {
		delete(verr.Fields, "discount.kind")
		delete(verr.Fields, "discount.value")
	}
}

// fieldPath turns a validator namespace such as
// "Coupon.conditions.buyProducts[0].quantity" into "conditions.buyProducts[0].quantity".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	}
	return "is invalid"
}
