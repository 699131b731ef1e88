package billing

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"restaurant-pos/internal/apperr"
	"restaurant-pos/internal/models"
)

const receiptWidth = 40

// Receipt is the printable projection of a paid bill.
type Receipt struct {
	BillID        string                `json:"bill_id"`
	OrderNumber   string                `json:"order_number"`
	InvoiceNumber string                `json:"invoice_number"`
	OutletID      string                `json:"outlet_id"`
	SplitNumber   int                   `json:"split_number,omitempty"`
	Items         []models.BillItem     `json:"items"`
	Subtotal      decimal.Decimal       `json:"subtotal"`
	Discounts     []models.BillDiscount `json:"discounts,omitempty"`
	ServiceCharge decimal.Decimal       `json:"service_charge"`
	Taxes         []models.BillTax      `json:"taxes"`
	Total         decimal.Decimal       `json:"total"`
	Payments      []models.Payment      `json:"payments"`
	IssuedAt      time.Time             `json:"issued_at"`
	PrintedAt     time.Time             `json:"printed_at"`
}

// GenerateReceipt projects a paid bill. A split parent lists the payments of
// its children.
func (s *Service) GenerateReceipt(ctx context.Context, billID string) (*Receipt, error) {
	b, err := s.store.GetBill(ctx, billID)
	if err != nil {
		return nil, err
	}
	if b.PaymentStatus != models.PaymentPaid {
		return nil, apperr.Validation("bill %s is not paid", b.ID).
			WithMetadata("payment_status", string(b.PaymentStatus))
	}

	payments := b.Payments
	if b.IsSplit {
		children, err := s.store.ListChildBills(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			payments = append(payments, child.Payments...)
		}
	}

	r := &Receipt{
		BillID:        b.ID,
		OrderNumber:   b.OrderNumber,
		OutletID:      b.OutletID,
		SplitNumber:   b.SplitNumber,
		Items:         b.Items,
		Subtotal:      b.Subtotal,
		Discounts:     b.Discounts,
		ServiceCharge: b.ServiceCharge,
		Taxes:         b.Taxes,
		Total:         b.Total,
		Payments:      payments,
		PrintedAt:     s.now(),
	}
	if b.InvoiceNumber != nil {
		r.InvoiceNumber = *b.InvoiceNumber
	}
	if b.PaidAt != nil {
		r.IssuedAt = *b.PaidAt
	}
	return r, nil
}

// Render prints the receipt as plain text with numbers formatted for tag.
func (r *Receipt) Render(w io.Writer, tag language.Tag, cur currency.Unit) error {
	p := message.NewPrinter(tag)
	money := func(d decimal.Decimal) string {
		return p.Sprintf("%s %.2f", cur, d.InexactFloat64())
	}
	line := func(label string, amount decimal.Decimal) string {
		value := money(amount)
		pad := receiptWidth - len([]rune(label)) - len([]rune(value))
		if pad < 1 {
			pad = 1
		}
		return label + strings.Repeat(" ", pad) + value + "\n"
	}
	rule := strings.Repeat("=", receiptWidth) + "\n"

	var b strings.Builder
	b.WriteString(rule)
	fmt.Fprintf(&b, "Invoice %s\n", r.InvoiceNumber)
	fmt.Fprintf(&b, "Order   %s\n", r.OrderNumber)
	if r.SplitNumber > 0 {
		fmt.Fprintf(&b, "Split   #%d\n", r.SplitNumber)
	}
	fmt.Fprintf(&b, "Issued  %s\n", r.IssuedAt.UTC().Format("2006-01-02 15:04"))
	b.WriteString(rule)

	for _, item := range r.Items {
		b.WriteString(line(p.Sprintf("%d x %s", item.Quantity, item.Name), item.TotalPrice))
	}
	if len(r.Items) > 0 {
		b.WriteString(strings.Repeat("-", receiptWidth) + "\n")
	}

	b.WriteString(line("Subtotal", r.Subtotal))
	if !r.ServiceCharge.IsZero() {
		b.WriteString(line("Service charge", r.ServiceCharge))
	}
	for _, d := range r.Discounts {
		b.WriteString(line(d.Name, d.Amount.Neg()))
	}
	for _, t := range r.Taxes {
		label := t.Name
		if !t.Rate.IsZero() {
			label = p.Sprintf("%s %v%%", t.Name, t.Rate.Shift(2).InexactFloat64())
		}
		b.WriteString(line(label, t.Amount))
	}
	b.WriteString(rule)
	b.WriteString(line("TOTAL", r.Total))
	b.WriteString(rule)

	for _, pay := range r.Payments {
		label := string(pay.Method)
		if pay.CardLast4 != nil {
			label += " ****" + *pay.CardLast4
		}
		b.WriteString(line(label, pay.Amount))
	}
	fmt.Fprintf(&b, "Printed %s\n", r.PrintedAt.UTC().Format("2006-01-02 15:04"))

	_, err := io.WriteString(w, b.String())
	return err
}
