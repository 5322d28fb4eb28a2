package strategy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/coupon-engine/internal/domain/cart"
	"github.com/xenking/coupon-engine/internal/domain/coupon"
)

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func newCart(items ...cart.Item) *cart.Cart {
	c := &cart.Cart{Items: items}
	c.Normalize()
	return c
}

func percent(v int64, limit *int64) coupon.Discount {
	return coupon.Discount{Kind: coupon.DiscountPercentage, Value: decimal.NewFromInt(v), MaxDiscount: limit}
}

func fixed(v int64) coupon.Discount {
	return coupon.Discount{Kind: coupon.DiscountFixed, Value: decimal.NewFromInt(v)}
}

func cartWide(id string, cond coupon.CartWideConditions, d coupon.Discount) coupon.Coupon {
	return coupon.Coupon{ID: id, Type: coupon.TypeCartWide, Active: true, CartWide: &cond, Discount: d}
}

func productScoped(id string, cond coupon.ProductScopedConditions, d coupon.Discount) coupon.Coupon {
	return coupon.Coupon{ID: id, Type: coupon.TypeProductScoped, Active: true, ProductScoped: &cond, Discount: d}
}

func bxgy(id string, buy, get []coupon.ProductQuantity, limit int) coupon.Coupon {
	return coupon.Coupon{
		ID:     id,
		Type:   coupon.TypeBuyXGetY,
		Active: true,
		BuyXGetY: &coupon.BuyXGetYConditions{
			Buy:             buy,
			Get:             get,
			RepetitionLimit: limit,
		},
	}
}

func requireCartInvariants(t *testing.T, c *cart.Cart) {
	t.Helper()
	assert.Equal(t, c.TotalAmount-c.DiscountedAmount, c.SubTotal)
	assert.GreaterOrEqual(t, c.SubTotal, int64(0))
	assert.LessOrEqual(t, c.DiscountedAmount, c.TotalAmount)
	for _, it := range c.Items {
		assert.Equal(t, it.LineTotal()-it.TotalDiscount, it.FinalPrice, "item %s", it.ProductID)
		assert.LessOrEqual(t, it.TotalDiscount, it.LineTotal(), "item %s", it.ProductID)
	}
}

func TestCartWide(t *testing.T) {
	tests := []struct {
		name   string
		cart   *cart.Cart
		coupon coupon.Coupon
		want   int64
	}{
		{
			name:   "ten percent without cap",
			cart:   newCart(cart.Item{ProductID: "p1", Quantity: 1, Price: 500}),
			coupon: cartWide("SAVE10", coupon.CartWideConditions{MinCartValue: 100}, percent(10, nil)),
			want:   50,
		},
		{
			name:   "percentage capped",
			cart:   newCart(cart.Item{ProductID: "p1", Quantity: 3, Price: 5000}),
			coupon: cartWide("SAVE20", coupon.CartWideConditions{}, percent(20, int64Ptr(2000))),
			want:   2000,
		},
		{
			name:   "fractional percentage floors",
			cart:   newCart(cart.Item{ProductID: "p1", Quantity: 1, Price: 999}),
			coupon: cartWide("SAVE15", coupon.CartWideConditions{}, percent(15, nil)),
			want:   149,
		},
		{
			name:   "fixed above total is clamped",
			cart:   newCart(cart.Item{ProductID: "p1", Quantity: 1, Price: 300}),
			coupon: cartWide("FLAT", coupon.CartWideConditions{}, fixed(1000)),
			want:   300,
		},
		{
			name:   "below minimum cart value",
			cart:   newCart(cart.Item{ProductID: "p1", Quantity: 1, Price: 99}),
			coupon: cartWide("SAVE10", coupon.CartWideConditions{MinCartValue: 100}, percent(10, nil)),
			want:   0,
		},
		{
			name:   "above maximum cart value",
			cart:   newCart(cart.Item{ProductID: "p1", Quantity: 1, Price: 1000}),
			coupon: cartWide("SMALL", coupon.CartWideConditions{MaxCartValue: int64Ptr(500)}, fixed(10)),
			want:   0,
		},
		{
			name: "min items counts units",
			cart: newCart(
				cart.Item{ProductID: "p1", Quantity: 2, Price: 100},
				cart.Item{ProductID: "p2", Quantity: 1, Price: 100},
			),
			coupon: cartWide("BULK", coupon.CartWideConditions{MinItems: intPtr(3)}, fixed(10)),
			want:   10,
		},
		{
			name:   "min items not met",
			cart:   newCart(cart.Item{ProductID: "p1", Quantity: 2, Price: 100}),
			coupon: cartWide("BULK", coupon.CartWideConditions{MinItems: intPtr(3)}, fixed(10)),
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := CartWide{}
			assert.Equal(t, tt.want, s.CalculateDiscount(tt.cart, &tt.coupon))

			candidates := s.IsApplicable(tt.cart, []coupon.Coupon{tt.coupon})
			if tt.want == 0 {
				assert.Empty(t, candidates)
				return
			}
			require.Len(t, candidates, 1)
			assert.Equal(t, Candidate{CouponID: tt.coupon.ID, Type: coupon.TypeCartWide, Discount: tt.want}, candidates[0])

			out := s.ApplyDiscount(tt.cart, &tt.coupon)
			assert.Equal(t, tt.want, out.DiscountedAmount)
			assert.Equal(t, out.TotalAmount-tt.want, out.SubTotal)
			for _, it := range out.Items {
				assert.Zero(t, it.TotalDiscount)
				assert.Empty(t, it.AppliedCoupons)
			}
			requireCartInvariants(t, out)
		})
	}
}

func TestCartWide_Scenarios(t *testing.T) {
	t.Run("no cap", func(t *testing.T) {
		c := &cart.Cart{Items: []cart.Item{{ProductID: "p1", Quantity: 1, Price: 500}}, TotalAmount: 500}
		c.Normalize()
		cp := cartWide("A", coupon.CartWideConditions{}, percent(10, nil))

		out := CartWide{}.ApplyDiscount(c, &cp)
		assert.Equal(t, int64(50), out.DiscountedAmount)
		assert.Equal(t, int64(450), out.SubTotal)
	})
	t.Run("capped", func(t *testing.T) {
		c := &cart.Cart{Items: []cart.Item{{ProductID: "p1", Quantity: 1, Price: 15000}}, TotalAmount: 15000}
		c.Normalize()
		cp := cartWide("B", coupon.CartWideConditions{}, percent(20, int64Ptr(2000)))

		out := CartWide{}.ApplyDiscount(c, &cp)
		assert.Equal(t, int64(2000), out.DiscountedAmount)
		assert.Equal(t, int64(13000), out.SubTotal)
	})
}

func TestProductScoped(t *testing.T) {
	tests := []struct {
		name      string
		cart      *cart.Cart
		coupon    coupon.Coupon
		want      int64
		wantItems map[string]int64
	}{
		{
			name: "category match",
			cart: newCart(cart.Item{ProductID: "tv", Quantity: 1, Price: 50000, Category: "Electronics"}),
			coupon: productScoped("ELEC20",
				coupon.ProductScopedConditions{Categories: []string{"Electronics"}}, percent(20, nil)),
			want:      10000,
			wantItems: map[string]int64{"tv": 10000},
		},
		{
			name: "category match ignores case",
			cart: newCart(cart.Item{ProductID: "tv", Quantity: 1, Price: 1000, Category: "electronics"}),
			coupon: productScoped("ELEC20",
				coupon.ProductScopedConditions{Categories: []string{"Electronics"}}, percent(20, nil)),
			want:      200,
			wantItems: map[string]int64{"tv": 200},
		},
		{
			name: "product id or category",
			cart: newCart(
				cart.Item{ProductID: "p1", Quantity: 2, Price: 100},
				cart.Item{ProductID: "p2", Quantity: 1, Price: 300, Category: "books"},
				cart.Item{ProductID: "p3", Quantity: 1, Price: 400, Category: "toys"},
			),
			coupon: productScoped("MIX",
				coupon.ProductScopedConditions{ProductIDs: []string{"p1"}, Categories: []string{"books"}}, percent(10, nil)),
			want:      50,
			wantItems: map[string]int64{"p1": 20, "p2": 30, "p3": 0},
		},
		{
			name: "per item cap",
			cart: newCart(
				cart.Item{ProductID: "p1", Quantity: 1, Price: 10000},
				cart.Item{ProductID: "p2", Quantity: 1, Price: 1000},
			),
			coupon: productScoped("CAP",
				coupon.ProductScopedConditions{ProductIDs: []string{"p1", "p2"}}, percent(50, int64Ptr(1000))),
			want:      1500,
			wantItems: map[string]int64{"p1": 1000, "p2": 500},
		},
		{
			name: "fixed per unit clamped to line",
			cart: newCart(
				cart.Item{ProductID: "p1", Quantity: 3, Price: 100},
				cart.Item{ProductID: "p2", Quantity: 2, Price: 10},
			),
			coupon: productScoped("FIX",
				coupon.ProductScopedConditions{ProductIDs: []string{"p1", "p2"}}, fixed(25)),
			want:      95,
			wantItems: map[string]int64{"p1": 75, "p2": 20},
		},
		{
			name: "min quantity across matched items",
			cart: newCart(
				cart.Item{ProductID: "p1", Quantity: 1, Price: 100, Category: "books"},
				cart.Item{ProductID: "p2", Quantity: 1, Price: 100, Category: "books"},
			),
			coupon: productScoped("TWO",
				coupon.ProductScopedConditions{Categories: []string{"books"}, MinQuantity: intPtr(2)}, fixed(10)),
			want:      20,
			wantItems: map[string]int64{"p1": 10, "p2": 10},
		},
		{
			name: "min quantity not met",
			cart: newCart(cart.Item{ProductID: "p1", Quantity: 1, Price: 100, Category: "books"}),
			coupon: productScoped("TWO",
				coupon.ProductScopedConditions{Categories: []string{"books"}, MinQuantity: intPtr(2)}, fixed(10)),
			want: 0,
		},
		{
			name: "no match",
			cart: newCart(cart.Item{ProductID: "p1", Quantity: 1, Price: 100}),
			coupon: productScoped("OTHER",
				coupon.ProductScopedConditions{ProductIDs: []string{"p9"}}, percent(10, nil)),
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ProductScoped{}
			assert.Equal(t, tt.want, s.CalculateDiscount(tt.cart, &tt.coupon))

			candidates := s.IsApplicable(tt.cart, []coupon.Coupon{tt.coupon})
			if tt.want == 0 {
				assert.Empty(t, candidates)
				return
			}
			require.Len(t, candidates, 1)
			assert.Equal(t, tt.want, candidates[0].Discount)

			out := s.ApplyDiscount(tt.cart, &tt.coupon)
			assert.Equal(t, tt.want, out.DiscountedAmount)
			for _, it := range out.Items {
				assert.Equal(t, tt.wantItems[it.ProductID], it.TotalDiscount, "item %s", it.ProductID)
				if it.TotalDiscount > 0 {
					assert.Equal(t, []string{tt.coupon.ID}, it.AppliedCoupons)
				} else {
					assert.Empty(t, it.AppliedCoupons)
				}
			}
			requireCartInvariants(t, out)
		})
	}
}

func TestProductScoped_ScenarioFinalPrice(t *testing.T) {
	c := newCart(cart.Item{ProductID: "tv", Quantity: 1, Price: 50000, Category: "Electronics"})
	cp := productScoped("C", coupon.ProductScopedConditions{Categories: []string{"Electronics"}}, percent(20, nil))

	out := ProductScoped{}.ApplyDiscount(c, &cp)
	assert.Equal(t, int64(10000), out.Items[0].TotalDiscount)
	assert.Equal(t, int64(40000), out.Items[0].FinalPrice)
	assert.Equal(t, int64(40000), out.SubTotal)
}

func TestBuyXGetY(t *testing.T) {
	pq := func(id string, qty int) coupon.ProductQuantity {
		return coupon.ProductQuantity{ProductID: id, Quantity: qty}
	}

	tests := []struct {
		name     string
		cart     *cart.Cart
		coupon   coupon.Coupon
		want     int64
		wantFree map[string]int
	}{
		{
			name: "entitlement limited by stock",
			cart: newCart(
				cart.Item{ProductID: "A", Quantity: 5, Price: 100},
				cart.Item{ProductID: "B", Quantity: 1, Price: 70},
			),
			coupon:   bxgy("D", []coupon.ProductQuantity{pq("A", 2)}, []coupon.ProductQuantity{pq("B", 1)}, 2),
			want:     70,
			wantFree: map[string]int{"A": 0, "B": 1},
		},
		{
			name: "repetition limit",
			cart: newCart(
				cart.Item{ProductID: "A", Quantity: 10, Price: 100},
				cart.Item{ProductID: "B", Quantity: 10, Price: 50},
			),
			coupon:   bxgy("LIM", []coupon.ProductQuantity{pq("A", 2)}, []coupon.ProductQuantity{pq("B", 1)}, 3),
			want:     150,
			wantFree: map[string]int{"B": 3},
		},
		{
			name: "buy quantity summed across entries",
			cart: newCart(
				cart.Item{ProductID: "A", Quantity: 1, Price: 100},
				cart.Item{ProductID: "C", Quantity: 1, Price: 100},
				cart.Item{ProductID: "B", Quantity: 2, Price: 40},
			),
			coupon: bxgy("SUM",
				[]coupon.ProductQuantity{pq("A", 1), pq("C", 1)}, []coupon.ProductQuantity{pq("B", 1)}, 5),
			want:     40,
			wantFree: map[string]int{"B": 1},
		},
		{
			name: "get entries granted in declared order",
			cart: newCart(
				cart.Item{ProductID: "A", Quantity: 2, Price: 100},
				cart.Item{ProductID: "B", Quantity: 1, Price: 30},
				cart.Item{ProductID: "C", Quantity: 5, Price: 20},
			),
			coupon: bxgy("ORDER",
				[]coupon.ProductQuantity{pq("A", 2)}, []coupon.ProductQuantity{pq("B", 1), pq("C", 2)}, 1),
			want:     70,
			wantFree: map[string]int{"B": 1, "C": 2},
		},
		{
			name: "same product as buy and get",
			cart: newCart(cart.Item{ProductID: "A", Quantity: 3, Price: 100}),
			coupon: bxgy("SELF",
				[]coupon.ProductQuantity{pq("A", 2)}, []coupon.ProductQuantity{pq("A", 1)}, 1),
			want:     100,
			wantFree: map[string]int{"A": 1},
		},
		{
			name: "not enough to buy",
			cart: newCart(
				cart.Item{ProductID: "A", Quantity: 1, Price: 100},
				cart.Item{ProductID: "B", Quantity: 1, Price: 100},
			),
			coupon: bxgy("NO", []coupon.ProductQuantity{pq("A", 2)}, []coupon.ProductQuantity{pq("B", 1)}, 1),
			want:   0,
		},
		{
			name:   "get product absent",
			cart:   newCart(cart.Item{ProductID: "A", Quantity: 4, Price: 100}),
			coupon: bxgy("ABSENT", []coupon.ProductQuantity{pq("A", 2)}, []coupon.ProductQuantity{pq("B", 1)}, 2),
			want:   0,
		},
		{
			name: "free product priced zero",
			cart: newCart(
				cart.Item{ProductID: "A", Quantity: 2, Price: 100},
				cart.Item{ProductID: "B", Quantity: 1, Price: 0},
			),
			coupon: bxgy("ZERO", []coupon.ProductQuantity{pq("A", 2)}, []coupon.ProductQuantity{pq("B", 1)}, 1),
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := BuyXGetY{}
			assert.Equal(t, tt.want, s.CalculateDiscount(tt.cart, &tt.coupon))

			candidates := s.IsApplicable(tt.cart, []coupon.Coupon{tt.coupon})
			if tt.want == 0 {
				assert.Empty(t, candidates)
				return
			}
			require.Len(t, candidates, 1)
			assert.Equal(t, tt.want, candidates[0].Discount)

			out := s.ApplyDiscount(tt.cart, &tt.coupon)
			assert.Equal(t, tt.want, out.DiscountedAmount)
			for _, it := range out.Items {
				assert.Equal(t, tt.wantFree[it.ProductID], it.FreeQuantity, "item %s", it.ProductID)
				assert.LessOrEqual(t, it.FreeQuantity, it.Quantity)
			}
			requireCartInvariants(t, out)
		})
	}
}

func TestBuyXGetY_RepetitionsMonotonic(t *testing.T) {
	cp := bxgy("M",
		[]coupon.ProductQuantity{{ProductID: "A", Quantity: 3}},
		[]coupon.ProductQuantity{{ProductID: "B", Quantity: 1}}, 4)

	prev := 0
	for qty := 1; qty <= 20; qty++ {
		c := newCart(
			cart.Item{ProductID: "A", Quantity: qty, Price: 10},
			cart.Item{ProductID: "B", Quantity: 100, Price: 10},
		)
		p, _ := planBuyXGetY(c, &cp)
		assert.GreaterOrEqual(t, p.repetitions, prev, "qty %d", qty)
		assert.LessOrEqual(t, p.repetitions, 4)
		prev = p.repetitions
	}
	assert.Equal(t, 4, prev)
}

func TestStrategies_Pure(t *testing.T) {
	c := newCart(
		cart.Item{ProductID: "A", Quantity: 4, Price: 100, Category: "books"},
		cart.Item{ProductID: "B", Quantity: 2, Price: 250},
	)
	coupons := []coupon.Coupon{
		cartWide("CW", coupon.CartWideConditions{}, percent(10, nil)),
		productScoped("PS", coupon.ProductScopedConditions{Categories: []string{"books"}}, fixed(5)),
		bxgy("BX",
			[]coupon.ProductQuantity{{ProductID: "A", Quantity: 2}},
			[]coupon.ProductQuantity{{ProductID: "B", Quantity: 1}}, 2),
	}
	before := c.Clone()

	for _, s := range []Strategy{CartWide{}, ProductScoped{}, BuyXGetY{}} {
		first := s.IsApplicable(c, coupons)
		second := s.IsApplicable(c, coupons)
		require.Len(t, first, 1, "strategy %s", s.Type())
		assert.Equal(t, first, second)

		cp := findCoupon(t, coupons, first[0].CouponID)
		assert.Equal(t, first[0].Discount, s.CalculateDiscount(c, cp))
		assert.Equal(t, first[0].Discount, s.CalculateDiscount(c, cp))
	}

	assert.Equal(t, before, c)
}

func TestStrategies_ApplyMatchesCalculate(t *testing.T) {
	coupons := []coupon.Coupon{
		cartWide("CW", coupon.CartWideConditions{}, fixed(120)),
		productScoped("PS", coupon.ProductScopedConditions{ProductIDs: []string{"A"}}, percent(15, nil)),
		bxgy("BX",
			[]coupon.ProductQuantity{{ProductID: "A", Quantity: 1}},
			[]coupon.ProductQuantity{{ProductID: "B", Quantity: 1}}, 1),
	}
	reg := DefaultRegistry()

	for i := range coupons {
		cp := &coupons[i]
		c := newCart(
			cart.Item{ProductID: "A", Quantity: 3, Price: 333},
			cart.Item{ProductID: "B", Quantity: 1, Price: 199},
		)
		s, err := reg.Lookup(cp.Type)
		require.NoError(t, err)

		want := s.CalculateDiscount(c, cp)
		out := s.ApplyDiscount(c, cp)
		assert.Equal(t, want, out.DiscountedAmount, "coupon %s", cp.ID)
		requireCartInvariants(t, out)
	}
}

func TestIsApplicable_SkipsOtherTypes(t *testing.T) {
	c := newCart(cart.Item{ProductID: "A", Quantity: 1, Price: 100})
	coupons := []coupon.Coupon{
		productScoped("PS", coupon.ProductScopedConditions{ProductIDs: []string{"A"}}, fixed(5)),
		cartWide("CW", coupon.CartWideConditions{}, fixed(5)),
	}

	got := CartWide{}.IsApplicable(c, coupons)
	require.Len(t, got, 1)
	assert.Equal(t, "CW", got[0].CouponID)
}

func TestRegistry_Lookup(t *testing.T) {
	reg := DefaultRegistry()
	for _, typ := range coupon.Types() {
		s, err := reg.Lookup(typ)
		require.NoError(t, err)
		assert.Equal(t, typ, s.Type())
	}

	_, err := reg.Lookup("free_shipping")
	require.ErrorIs(t, err, coupon.ErrUnknownCouponType)

	_, err = NewRegistry(CartWide{}).Lookup(coupon.TypeBuyXGetY)
	require.ErrorIs(t, err, coupon.ErrUnknownCouponType)
}

func findCoupon(t *testing.T, coupons []coupon.Coupon, id string) *coupon.Coupon {
	t.Helper()
	for i := range coupons {
		if coupons[i].ID == id {
			return &coupons[i]
		}
	}
	t.Fatalf("coupon %s not found", id)
	return nil
}
