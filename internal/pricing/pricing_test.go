package pricing

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"

	"restaurant-pos/internal/apperr"
	"restaurant-pos/internal/models"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCalculateTotals(t *testing.T) {
	tests := []struct {
		name         string
		items        []Line
		rate         string
		wantSubtotal string
		wantTax      string
		wantTotal    string
	}{
		{
			name:         "two of a kind",
			items:        []Line{{UnitPrice: d("10.50"), Quantity: 2}},
			rate:         "0.18",
			wantSubtotal: "21.00",
			wantTax:      "3.78",
			wantTotal:    "24.78",
		},
		{
			name:         "sub-cent unit price rounds once at subtotal",
			items:        []Line{{UnitPrice: decimal.NewFromFloat(0.00999999977656), Quantity: 1}},
			rate:         "0.18",
			wantSubtotal: "0.01",
			wantTax:      "0.00",
			wantTotal:    "0.01",
		},
		{
			name: "sub-cent prices summed before rounding",
			items: []Line{
				{UnitPrice: d("0.004"), Quantity: 1},
				{UnitPrice: d("0.004"), Quantity: 1},
			},
			rate:         "0",
			wantSubtotal: "0.01",
			wantTax:      "0",
			wantTotal:    "0.01",
		},
		{
			name:         "zero price",
			items:        []Line{{UnitPrice: decimal.Zero, Quantity: 3}},
			rate:         "0.05",
			wantSubtotal: "0",
			wantTax:      "0",
			wantTotal:    "0",
		},
		{
			name: "half cent tax rounds up",
			items: []Line{
				{UnitPrice: d("0.50"), Quantity: 1},
			},
			rate:         "0.05",
			wantSubtotal: "0.50",
			wantTax:      "0.03",
			wantTotal:    "0.53",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateTotals(tt.items, d(tt.rate))
			if err != nil {
				t.Fatalf("CalculateTotals returned error: %v", err)
			}
			if !got.Subtotal.Equal(d(tt.wantSubtotal)) {
				t.Errorf("subtotal = %s, want %s", got.Subtotal, tt.wantSubtotal)
			}
			if !got.Tax.Equal(d(tt.wantTax)) {
				t.Errorf("tax = %s, want %s", got.Tax, tt.wantTax)
			}
			if !got.Total.Equal(d(tt.wantTotal)) {
				t.Errorf("total = %s, want %s", got.Total, tt.wantTotal)
			}
		})
	}
}

func TestCalculateTotalsRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		items []Line
		rate  string
	}{
		{"negative price", []Line{{UnitPrice: d("-1"), Quantity: 1}}, "0.1"},
		{"zero quantity", []Line{{UnitPrice: d("1"), Quantity: 0}}, "0.1"},
		{"negative quantity", []Line{{UnitPrice: d("1"), Quantity: -2}}, "0.1"},
		{"negative rate", []Line{{UnitPrice: d("1"), Quantity: 1}}, "-0.1"},
		{"rate above one", []Line{{UnitPrice: d("1"), Quantity: 1}}, "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CalculateTotals(tt.items, d(tt.rate))
			if !apperr.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCalculateTotalsProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	rates := []decimal.Decimal{d("0"), d("0.05"), d("0.125"), d("0.18"), d("0.2")}

	for i := 0; i < 500; i++ {
		n := 1 + rng.Intn(8)
		items := make([]Line, n)
		sum := decimal.Zero
		for j := range items {
			// Prices down to a tenth of a cent, including zero.
			price := decimal.New(int64(rng.Intn(200000)), -3)
			qty := 1 + rng.Intn(5)
			items[j] = Line{UnitPrice: price, Quantity: qty}
			sum = sum.Add(price.Mul(decimal.NewFromInt(int64(qty))))
		}
		rate := rates[rng.Intn(len(rates))]

		got, err := CalculateTotals(items, rate)
		if err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
		if !got.Subtotal.Equal(sum.Round(2)) {
			t.Fatalf("iteration %d: subtotal %s != round(%s)", i, got.Subtotal, sum)
		}
		if !got.Tax.Equal(got.Subtotal.Mul(rate).Round(2)) {
			t.Fatalf("iteration %d: tax %s != round(%s×%s)", i, got.Tax, got.Subtotal, rate)
		}
		if !got.Total.Equal(got.Subtotal.Add(got.Tax)) {
			t.Fatalf("iteration %d: total %s != %s + %s", i, got.Total, got.Subtotal, got.Tax)
		}
		if sum.Sub(got.Subtotal).Abs().GreaterThan(d("0.01")) {
			t.Fatalf("iteration %d: items drift from subtotal by more than a cent", i)
		}
	}
}

func TestCalculateBill(t *testing.T) {
	got, err := CalculateBill(BillInput{
		Subtotal:          d("100.00"),
		ServiceChargeRate: d("0.10"),
		Discounts: []Discount{
			{Name: "Happy hour", Kind: models.DiscountPercentage, Value: d("10")},
			{Name: "Voucher", Kind: models.DiscountFixed, Value: d("5")},
		},
		Taxes: []TaxRate{
			{Name: "CGST", Rate: d("0.025")},
			{Name: "SGST", Rate: d("0.025")},
		},
	})
	if err != nil {
		t.Fatalf("CalculateBill returned error: %v", err)
	}

	// base = 100 + 10 - 15 = 95; each tax 2.375 -> 2.38
	if !got.ServiceCharge.Equal(d("10.00")) {
		t.Errorf("service charge = %s", got.ServiceCharge)
	}
	if !got.DiscountTotal.Equal(d("15.00")) {
		t.Errorf("discount total = %s", got.DiscountTotal)
	}
	if !got.TaxTotal.Equal(d("4.76")) {
		t.Errorf("tax total = %s", got.TaxTotal)
	}
	if !got.Total.Equal(d("99.76")) {
		t.Errorf("total = %s", got.Total)
	}
	if len(got.Taxes) != 2 || !got.Taxes[0].Amount.Equal(d("2.38")) {
		t.Errorf("unexpected tax lines %+v", got.Taxes)
	}
}

func TestCalculateBillRejectsOversizedDiscount(t *testing.T) {
	_, err := CalculateBill(BillInput{
		Subtotal:  d("10"),
		Discounts: []Discount{{Kind: models.DiscountFixed, Value: d("12")}},
	})
	if !apperr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
