// Package money holds the integer minor-unit arithmetic shared by every
// discount strategy. Amounts never go negative and fractional results are
// always floored.
package money

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// LineTotal returns price * qty.
func LineTotal(price int64, qty int) int64 {
	if qty <= 0 || price <= 0 {
		return 0
	}
	return price * int64(qty)
}

// Percent returns floor(base * rate / 100).
func Percent(base int64, rate decimal.Decimal) int64 {
	if base <= 0 || !rate.IsPositive() {
		return 0
	}
	return Floor(decimal.NewFromInt(base).Mul(rate).Div(hundred))
}

// Floor truncates d to a whole number of minor units. Negative values
// collapse to zero.
func Floor(d decimal.Decimal) int64 {
	if !d.IsPositive() {
		return 0
	}
	return d.Floor().IntPart()
}

// Cap limits amount to *limit when limit is set.
func Cap(amount int64, limit *int64) int64 {
	if limit != nil && amount > *limit {
		return *limit
	}
	return amount
}

// Clamp bounds amount to [0, ceiling].
func Clamp(amount, ceiling int64) int64 {
	if amount <= 0 || ceiling <= 0 {
		return 0
	}
	return min(amount, ceiling)
}
