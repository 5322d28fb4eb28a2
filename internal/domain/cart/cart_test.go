package cart

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cart    Cart
		wantErr bool
		empty   bool
	}{
		{name: "empty", cart: Cart{}, wantErr: true, empty: true},
		{
			name:    "zero quantity",
			cart:    Cart{Items: []Item{{ProductID: "p1", Quantity: 0, Price: 10}}},
			wantErr: true,
		},
		{
			name:    "negative price",
			cart:    Cart{Items: []Item{{ProductID: "p1", Quantity: 1, Price: -1}}},
			wantErr: true,
		},
		{
			name:    "missing product id",
			cart:    Cart{Items: []Item{{Quantity: 1, Price: 1}}},
			wantErr: true,
		},
		{
			name:    "total below item sum",
			cart:    Cart{Items: []Item{{ProductID: "p1", Quantity: 10, Price: 100}}, TotalAmount: 100},
			wantErr: true,
		},
		{
			name:    "total above item sum",
			cart:    Cart{Items: []Item{{ProductID: "p1", Quantity: 1, Price: 100}}, TotalAmount: 800},
			wantErr: true,
		},
		{
			name:    "negative total",
			cart:    Cart{Items: []Item{{ProductID: "p1", Quantity: 1, Price: 100}}, TotalAmount: -1},
			wantErr: true,
		},
		{
			name:    "line total overflows",
			cart:    Cart{Items: []Item{{ProductID: "p1", Quantity: 3, Price: math.MaxInt64 / 2}}},
			wantErr: true,
		},
		{
			name: "cart total overflows",
			cart: Cart{Items: []Item{
				{ProductID: "p1", Quantity: 1, Price: math.MaxInt64 - 10},
				{ProductID: "p2", Quantity: 1, Price: 11},
			}},
			wantErr: true,
		},
		{
			name: "largest total",
			cart: Cart{Items: []Item{
				{ProductID: "p1", Quantity: 1, Price: math.MaxInt64 - 10},
				{ProductID: "p2", Quantity: 1, Price: 10},
			}},
		},
		{
			name: "valid",
			cart: Cart{Items: []Item{{ProductID: "p1", Quantity: 2, Price: 0}}},
		},
		{
			name: "matching total",
			cart: Cart{Items: []Item{{ProductID: "p1", Quantity: 2, Price: 150}}, TotalAmount: 300},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cart.Validate()
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tt.empty {
				assert.ErrorIs(t, err, ErrEmptyCart)
				return
			}
			var itemErr *InvalidItemError
			assert.ErrorAs(t, err, &itemErr)
		})
	}
}

func TestNormalize(t *testing.T) {
	c := &Cart{
		Items: []Item{
			{ProductID: "p1", Quantity: 2, Price: 150, TotalDiscount: 40, AppliedCoupons: []string{"OLD"}},
			{ProductID: "p2", Quantity: 1, Price: 200, FreeQuantity: 1},
		},
		DiscountedAmount: 99,
	}

	c.Normalize()
	assert.Equal(t, int64(500), c.TotalAmount)
	assert.Equal(t, int64(500), c.SubTotal)
	assert.Zero(t, c.DiscountedAmount)

	assert.Zero(t, c.Items[0].TotalDiscount)
	assert.Nil(t, c.Items[0].AppliedCoupons)
	assert.Equal(t, int64(300), c.Items[0].FinalPrice)
	assert.Zero(t, c.Items[1].FreeQuantity)
	assert.Equal(t, int64(200), c.Items[1].FinalPrice)
}

func TestClone_IsDeep(t *testing.T) {
	c := &Cart{Items: []Item{{ProductID: "p1", Quantity: 1, Price: 10, AppliedCoupons: []string{"A"}}}}
	cp := c.Clone()

	cp.Items[0].Quantity = 5
	cp.Items[0].AppliedCoupons[0] = "B"
	cp.TotalAmount = 42

	assert.Equal(t, 1, c.Items[0].Quantity)
	assert.Equal(t, "A", c.Items[0].AppliedCoupons[0])
	assert.Zero(t, c.TotalAmount)
}

func TestDiscountItem_KeepsInvariants(t *testing.T) {
	c := &Cart{Items: []Item{
		{ProductID: "p1", Quantity: 2, Price: 100},
		{ProductID: "p2", Quantity: 1, Price: 50},
	}}
	c.Normalize()

	got := c.DiscountItem(0, 60, 0, "C1")
	assert.Equal(t, int64(60), got)
	got = c.DiscountItem(0, 500, 1, "C2")
	assert.Equal(t, int64(140), got, "clamped to the remaining line total")

	it := c.Items[0]
	assert.Equal(t, int64(200), it.TotalDiscount)
	assert.Equal(t, int64(0), it.FinalPrice)
	assert.Equal(t, 1, it.FreeQuantity)
	assert.Equal(t, []string{"C1", "C2"}, it.AppliedCoupons)

	assert.Equal(t, int64(200), c.DiscountedAmount)
	assert.Equal(t, c.TotalAmount-c.DiscountedAmount, c.SubTotal)
}

func TestDiscountCart_ClampsToTotal(t *testing.T) {
	c := &Cart{Items: []Item{{ProductID: "p1", Quantity: 1, Price: 300}}}
	c.Normalize()

	c.DiscountCart(1000)
	assert.Equal(t, int64(300), c.DiscountedAmount)
	assert.Equal(t, int64(0), c.SubTotal)
}

func TestTotalQuantity(t *testing.T) {
	c := &Cart{Items: []Item{
		{ProductID: "p1", Quantity: 2, Price: 1},
		{ProductID: "p2", Quantity: 3, Price: 1},
	}}
	assert.Equal(t, 5, c.TotalQuantity())
}
