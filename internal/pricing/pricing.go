// Package pricing computes order and bill totals.
//
// All amounts are shopspring decimals. Line totals stay unrounded; rounding to
// cents (half away from zero, which is half-up for the non-negative amounts
// handled here) happens once at each documented boundary.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"restaurant-pos/internal/apperr"
	"restaurant-pos/internal/models"
)

// Places is the number of decimal places money is rounded to.
const Places = 2

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Round rounds an amount to cents.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Line is a priced line of an order.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Totals is the result of CalculateTotals.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// LineTotal returns unitPrice×quantity without rounding.
func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// CalculateTotals prices items at taxRate (a fraction, 0.18 for 18%).
func CalculateTotals(items []Line, taxRate decimal.Decimal) (Totals, error) {
	if err := validateRate("tax_rate", taxRate); err != nil {
		return Totals{}, err
	}

	sum := decimal.Zero
	for i, item := range items {
		if item.UnitPrice.IsNegative() {
			return Totals{}, apperr.FieldValidation(fmt.Sprintf("items[%d].unit_price", i), "must not be negative")
		}
		if item.Quantity < 1 {
			return Totals{}, apperr.FieldValidation(fmt.Sprintf("items[%d].quantity", i), "must be at least 1")
		}
		sum = sum.Add(LineTotal(item.UnitPrice, item.Quantity))
	}

	subtotal := Round(sum)
	tax := Round(subtotal.Mul(taxRate))
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    Round(subtotal.Add(tax)),
	}, nil
}

// Discount is a requested bill discount.
type Discount struct {
	Name  string
	Kind  models.DiscountKind
	Value decimal.Decimal
}

// TaxRate is a named tax applied to a bill.
type TaxRate struct {
	Name string
	Rate decimal.Decimal
}

// BillInput describes the charges to apply on top of a bill subtotal.
type BillInput struct {
	Subtotal          decimal.Decimal
	Discounts         []Discount
	ServiceChargeRate decimal.Decimal
	Taxes             []TaxRate
}

// BillTotals is the result of CalculateBill.
type BillTotals struct {
	Subtotal      decimal.Decimal
	ServiceCharge decimal.Decimal
	Discounts     []models.BillDiscount
	DiscountTotal decimal.Decimal
	Taxes         []models.BillTax
	TaxTotal      decimal.Decimal
	Total         decimal.Decimal
}

// CalculateBill applies discounts, service charge and taxes to a subtotal.
// Discounts and service charge are both taken off the pre-tax subtotal; every
// tax is charged on subtotal + service charge − discounts.
func CalculateBill(in BillInput) (BillTotals, error) {
	if in.Subtotal.IsNegative() {
		return BillTotals{}, apperr.FieldValidation("subtotal", "must not be negative")
	}
	if err := validateRate("service_charge_rate", in.ServiceChargeRate); err != nil {
		return BillTotals{}, err
	}

	subtotal := Round(in.Subtotal)
	serviceCharge := Round(subtotal.Mul(in.ServiceChargeRate))

	out := BillTotals{
		Subtotal:      subtotal,
		ServiceCharge: serviceCharge,
		DiscountTotal: decimal.Zero,
		TaxTotal:      decimal.Zero,
	}

	for i, d := range in.Discounts {
		field := fmt.Sprintf("discounts[%d]", i)
		if d.Value.IsNegative() {
			return BillTotals{}, apperr.FieldValidation(field+".value", "must not be negative")
		}
		var amount decimal.Decimal
		switch d.Kind {
		case models.DiscountPercentage:
			if d.Value.GreaterThan(hundred) {
				return BillTotals{}, apperr.FieldValidation(field+".value", "percentage must not exceed 100")
			}
			amount = Round(subtotal.Mul(d.Value).Div(hundred))
		case models.DiscountFixed:
			amount = Round(d.Value)
		default:
			return BillTotals{}, apperr.FieldValidation(field+".type", "must be one of: PERCENTAGE, FIXED")
		}
		name := d.Name
		if name == "" {
			name = "Discount"
		}
		out.Discounts = append(out.Discounts, models.BillDiscount{Name: name, Kind: d.Kind, Value: d.Value, Amount: amount})
		out.DiscountTotal = out.DiscountTotal.Add(amount)
	}

	base := subtotal.Add(serviceCharge).Sub(out.DiscountTotal)
	if base.IsNegative() {
		return BillTotals{}, apperr.Validation("discounts %s exceed subtotal plus service charge %s",
			out.DiscountTotal.StringFixed(Places), subtotal.Add(serviceCharge).StringFixed(Places))
	}

	for i, t := range in.Taxes {
		if err := validateRate(fmt.Sprintf("taxes[%d].rate", i), t.Rate); err != nil {
			return BillTotals{}, err
		}
		amount := Round(base.Mul(t.Rate))
		out.Taxes = append(out.Taxes, models.BillTax{Name: t.Name, Rate: t.Rate, Amount: amount})
		out.TaxTotal = out.TaxTotal.Add(amount)
	}

	out.Total = Round(subtotal.Add(serviceCharge).Add(out.TaxTotal).Sub(out.DiscountTotal))
	return out, nil
}

func validateRate(field string, rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(one) {
		return apperr.FieldValidation(field, "must be between 0 and 1")
	}
	return nil
}
