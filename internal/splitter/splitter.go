// Package splitter partitions a payable total into fragments that sum exactly to it.
package splitter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"restaurant-pos/internal/apperr"
	"restaurant-pos/internal/models"
	"restaurant-pos/internal/pricing"
)

// Tolerance is the largest accepted gap between declared amounts and the total.
var Tolerance = decimal.New(1, -2)

// Line is an item that can be assigned to a group.
type Line struct {
	ID         string
	TotalPrice decimal.Decimal
}

// Charge is a named amount allocated across groups in proportion to their subtotal.
type Charge struct {
	Name   string
	Amount decimal.Decimal
}

// Target is what gets split: an order or a bill.
type Target struct {
	Paid          bool
	Subtotal      decimal.Decimal
	Total         decimal.Decimal
	Items         []Line
	Taxes         []Charge
	ServiceCharge decimal.Decimal
	Discount      decimal.Decimal
}

// Split is one payable fragment.
type Split struct {
	SplitNumber   int             `json:"split_number"`
	Amount        decimal.Decimal `json:"amount"`
	ItemIDs       []string        `json:"item_ids,omitempty"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Taxes         []Charge        `json:"taxes,omitempty"`
	Tax           decimal.Decimal `json:"tax"`
	ServiceCharge decimal.Decimal `json:"service_charge"`
	Discount      decimal.Decimal `json:"discount"`
}

func checkPayable(t Target) error {
	if t.Paid {
		return apperr.Validation("already paid")
	}
	if t.Total.IsNegative() {
		return apperr.Validation("total %s cannot be split", t.Total.StringFixed(pricing.Places))
	}
	return nil
}

// Equal splits the total into n parts; the last part absorbs the rounding remainder.
func Equal(t Target, n int) ([]Split, error) {
	if err := checkPayable(t); err != nil {
		return nil, err
	}
	if n < 2 {
		return nil, apperr.FieldValidation("number_of_splits", "must be at least 2")
	}

	per := pricing.Round(t.Total.Div(decimal.NewFromInt(int64(n))))
	splits := make([]Split, n)
	allocated := decimal.Zero
	for i := 0; i < n-1; i++ {
		splits[i] = Split{SplitNumber: i + 1, Amount: per, Subtotal: per}
		allocated = allocated.Add(per)
	}
	last := t.Total.Sub(allocated)
	if last.IsNegative() {
		return nil, apperr.Validation("total %s is too small to split %d ways", t.Total.StringFixed(pricing.Places), n)
	}
	splits[n-1] = Split{SplitNumber: n, Amount: last, Subtotal: last}
	return splits, nil
}

// ByAmount accepts caller-declared amounts when they add up to the total within Tolerance.
func ByAmount(t Target, amounts []decimal.Decimal) ([]Split, error) {
	if err := checkPayable(t); err != nil {
		return nil, err
	}
	if len(amounts) < 2 {
		return nil, apperr.FieldValidation("amounts", "at least 2 amounts are required")
	}

	sum := decimal.Zero
	splits := make([]Split, len(amounts))
	for i, a := range amounts {
		if !a.IsPositive() {
			return nil, apperr.FieldValidation(fmt.Sprintf("amounts[%d]", i), "must be greater than 0")
		}
		a = pricing.Round(a)
		sum = sum.Add(a)
		splits[i] = Split{SplitNumber: i + 1, Amount: a, Subtotal: a}
	}

	if sum.Sub(t.Total).Abs().GreaterThan(Tolerance) {
		return nil, apperr.Validation("split amounts total %s does not match bill total %s",
			sum.StringFixed(pricing.Places), t.Total.StringFixed(pricing.Places)).
			WithMetadata("split_total", sum.StringFixed(pricing.Places)).
			WithMetadata("bill_total", t.Total.StringFixed(pricing.Places))
	}
	return splits, nil
}

// ByItems assigns every item to exactly one group. Each group pays its items
// plus its proportional share of every tax, the service charge and the
// discount; the last group absorbs all rounding remainders.
func ByItems(t Target, groups [][]string) ([]Split, error) {
	if err := checkPayable(t); err != nil {
		return nil, err
	}
	if len(groups) < 2 {
		return nil, apperr.FieldValidation("groups", "at least 2 groups are required")
	}

	prices := make(map[string]decimal.Decimal, len(t.Items))
	for _, item := range t.Items {
		prices[item.ID] = item.TotalPrice
	}

	assigned := make(map[string]int, len(t.Items))
	subtotals := make([]decimal.Decimal, len(groups))
	for g, ids := range groups {
		if len(ids) == 0 {
			return nil, apperr.FieldValidation(fmt.Sprintf("groups[%d]", g), "must contain at least one item")
		}
		sum := decimal.Zero
		for _, id := range ids {
			price, ok := prices[id]
			if !ok {
				return nil, apperr.FieldValidation(fmt.Sprintf("groups[%d]", g), "unknown item %s", id)
			}
			if prev, dup := assigned[id]; dup {
				return nil, apperr.FieldValidation(fmt.Sprintf("groups[%d]", g), "item %s already assigned to group %d", id, prev+1)
			}
			assigned[id] = g
			sum = sum.Add(price)
		}
		subtotals[g] = sum
	}

	var unassigned []string
	for _, item := range t.Items {
		if _, ok := assigned[item.ID]; !ok {
			unassigned = append(unassigned, item.ID)
		}
	}
	if len(unassigned) > 0 {
		sort.Strings(unassigned)
		return nil, apperr.Validation("items not assigned to any group: %s", strings.Join(unassigned, ", "))
	}

	shares := proportions(subtotals, t.Subtotal)
	groupSubtotals := settle(t.Subtotal, subtotals)
	serviceCharges := allocate(t.ServiceCharge, shares)
	discounts := allocate(t.Discount, shares)
	taxes := make([][]decimal.Decimal, len(t.Taxes))
	for i, tax := range t.Taxes {
		taxes[i] = allocate(tax.Amount, shares)
	}

	splits := make([]Split, len(groups))
	for g := range groups {
		s := Split{
			SplitNumber:   g + 1,
			ItemIDs:       append([]string(nil), groups[g]...),
			Subtotal:      groupSubtotals[g],
			ServiceCharge: serviceCharges[g],
			Discount:      discounts[g],
			Tax:           decimal.Zero,
		}
		for i, tax := range t.Taxes {
			s.Taxes = append(s.Taxes, Charge{Name: tax.Name, Amount: taxes[i][g]})
			s.Tax = s.Tax.Add(taxes[i][g])
		}
		s.Amount = s.Subtotal.Add(s.ServiceCharge).Add(s.Tax).Sub(s.Discount)
		splits[g] = s
	}
	return splits, nil
}

// proportions returns each group's share of the whole; with a zero whole every
// share is zero and allocate hands everything to the last group.
func proportions(parts []decimal.Decimal, whole decimal.Decimal) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(parts))
	for i, p := range parts {
		if whole.IsZero() {
			shares[i] = decimal.Zero
			continue
		}
		shares[i] = p.Div(whole)
	}
	return shares
}

// settle rounds every part but the last, which becomes amount minus the others.
func settle(amount decimal.Decimal, parts []decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, len(parts))
	given := decimal.Zero
	for i := 0; i < len(parts)-1; i++ {
		out[i] = pricing.Round(parts[i])
		given = given.Add(out[i])
	}
	out[len(parts)-1] = amount.Sub(given)
	return out
}

// allocate distributes amount by shares, rounding every part but the last,
// which takes whatever is left so the parts always sum to amount.
func allocate(amount decimal.Decimal, shares []decimal.Decimal) []decimal.Decimal {
	parts := make([]decimal.Decimal, len(shares))
	for i, share := range shares {
		parts[i] = amount.Mul(share)
	}
	return settle(amount, parts)
}

// OrderTarget adapts an order for splitting.
func OrderTarget(o *models.Order) Target {
	t := Target{
		Paid:     o.PaymentStatus == models.PaymentPaid,
		Subtotal: o.Subtotal,
		Total:    o.Total,
		Taxes:    []Charge{{Name: "Tax", Amount: o.Tax}},
	}
	for _, item := range o.Items {
		t.Items = append(t.Items, Line{ID: item.ID, TotalPrice: item.TotalPrice})
	}
	return t
}

// BillTarget adapts a bill for splitting.
func BillTarget(b *models.Bill) Target {
	t := Target{
		Paid:          b.PaymentStatus == models.PaymentPaid,
		Subtotal:      b.Subtotal,
		Total:         b.Total,
		ServiceCharge: b.ServiceCharge,
		Discount:      b.DiscountTotal(),
	}
	for _, tax := range b.Taxes {
		t.Taxes = append(t.Taxes, Charge{Name: tax.Name, Amount: tax.Amount})
	}
	for _, item := range b.Items {
		t.Items = append(t.Items, Line{ID: item.OrderItemID, TotalPrice: item.TotalPrice})
	}
	return t
}
