package coupon

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
)

// couponJSON is the wire form of Coupon. Conditions stay raw until Type is
// known.
type couponJSON struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Type       Type            `json:"type"`
	Active     bool            `json:"active"`
	ExpiresAt  *time.Time      `json:"expiresAt,omitempty"`
	UsageLimit *int            `json:"usageLimit,omitempty"`
	UsedCount  int             `json:"usedCount"`
	Conditions json.RawMessage `json:"conditions,omitempty"`
	Discount   Discount        `json:"discount"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// MarshalJSON encodes the conditions variant selected by Type under
// "conditions".
func (c Coupon) MarshalJSON() ([]byte, error) {
	var conds any
	switch {
	case c.Type == TypeCartWide && c.CartWide != nil:
		conds = c.CartWide
	case c.Type == TypeProductScoped && c.ProductScoped != nil:
		conds = c.ProductScoped
	case c.Type == TypeBuyXGetY && c.BuyXGetY != nil:
		conds = c.BuyXGetY
	}

	w := couponJSON{
		ID:         c.ID,
		Name:       c.Name,
		Type:       c.Type,
		Active:     c.Active,
		ExpiresAt:  c.ExpiresAt,
		UsageLimit: c.UsageLimit,
		UsedCount:  c.UsedCount,
		Discount:   c.Discount,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
	if conds != nil {
		raw, err := json.Marshal(conds)
		if err != nil {
			return nil, errors.Wrap(err, "marshal conditions")
		}
		w.Conditions = raw
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes "conditions" into the variant selected by "type".
// Fields that do not belong to that variant are rejected. An unknown type
// decodes without conditions and is reported by Validate.
func (c *Coupon) UnmarshalJSON(data []byte) error {
	var w couponJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*c = Coupon{
		ID:         w.ID,
		Name:       w.Name,
		Type:       w.Type,
		Active:     w.Active,
		ExpiresAt:  w.ExpiresAt,
		UsageLimit: w.UsageLimit,
		UsedCount:  w.UsedCount,
		Discount:   w.Discount,
		CreatedAt:  w.CreatedAt,
		UpdatedAt:  w.UpdatedAt,
	}
	if len(w.Conditions) == 0 || bytes.Equal(w.Conditions, []byte("null")) {
		return nil
	}

	var err error
	switch w.Type {
	case TypeCartWide:
		c.CartWide = &CartWideConditions{}
		err = decodeStrict(w.Conditions, c.CartWide)
	case TypeProductScoped:
		c.ProductScoped = &ProductScopedConditions{}
		err = decodeStrict(w.Conditions, c.ProductScoped)
	case TypeBuyXGetY:
		c.BuyXGetY = &BuyXGetYConditions{}
		err = decodeStrict(w.Conditions, c.BuyXGetY)
	}
	if err != nil {
		return errors.Wrapf(err, "decode %s conditions", w.Type)
	}
	return nil
}

func decodeStrict(raw json.RawMessage, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
