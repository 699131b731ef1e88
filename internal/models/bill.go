package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DiscountKind selects how a discount value is interpreted.
type DiscountKind string

const (
	DiscountPercentage DiscountKind = "PERCENTAGE"
	DiscountFixed      DiscountKind = "FIXED"
)

// ParseDiscountKind validates s against the discount kinds.
func ParseDiscountKind(s string) (DiscountKind, error) {
	switch k := DiscountKind(strings.ToUpper(strings.TrimSpace(s))); k {
	case DiscountPercentage, DiscountFixed:
		return k, nil
	}
	return "", fmt.Errorf("discount type must be one of: PERCENTAGE, FIXED")
}

// SplitType records how a child bill was produced.
type SplitType string

const (
	SplitEqual    SplitType = "EQUAL"
	SplitByAmount SplitType = "BY_AMOUNT"
	SplitByItems  SplitType = "BY_ITEMS"
)

// BillItem is the snapshot of an order item carried on a bill.
type BillItem struct {
	OrderItemID string          `json:"order_item_id"`
	MenuItemID  string          `json:"menu_item_id"`
	Name        string          `json:"name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

// BillDiscount is an applied discount line.
type BillDiscount struct {
	Name   string          `json:"name"`
	Kind   DiscountKind    `json:"type"`
	Value  decimal.Decimal `json:"value"`
	Amount decimal.Decimal `json:"amount"`
}

// BillTax is an applied tax line.
type BillTax struct {
	Name   string          `json:"name"`
	Rate   decimal.Decimal `json:"rate"`
	Amount decimal.Decimal `json:"amount"`
}

// Bill is the payable representation of an order's charges, possibly split.
type Bill struct {
	ID                string          `json:"id"`
	OrderID           string          `json:"order_id"`
	OutletID          string          `json:"outlet_id"`
	OrderNumber       string          `json:"order_number"`
	ParentBillID      *string         `json:"parent_bill_id,omitempty"`
	SplitNumber       int             `json:"split_number"`
	SplitType         *SplitType      `json:"split_type,omitempty"`
	Items             []BillItem      `json:"items"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	Discounts         []BillDiscount  `json:"discounts"`
	ServiceChargeRate decimal.Decimal `json:"service_charge_rate"`
	ServiceCharge     decimal.Decimal `json:"service_charge"`
	Taxes             []BillTax       `json:"taxes"`
	Total             decimal.Decimal `json:"total"`
	PaymentStatus     PaymentStatus   `json:"payment_status"`
	IsSplit           bool            `json:"is_split"`
	InvoiceNumber     *string         `json:"invoice_number,omitempty"`
	Payments          []Payment       `json:"payments,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	PaidAt            *time.Time      `json:"paid_at,omitempty"`
}

// DiscountTotal sums the applied discounts.
func (b *Bill) DiscountTotal() decimal.Decimal {
	total := decimal.Zero
	for _, d := range b.Discounts {
		total = total.Add(d.Amount)
	}
	return total
}

// TaxTotal sums the applied taxes.
func (b *Bill) TaxTotal() decimal.Decimal {
	total := decimal.Zero
	for _, t := range b.Taxes {
		total = total.Add(t.Amount)
	}
	return total
}

// IsRoot reports whether the bill was generated from an order rather than split off a parent.
func (b *Bill) IsRoot() bool {
	return b.ParentBillID == nil
}
