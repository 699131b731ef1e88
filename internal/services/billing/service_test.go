package billing

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"restaurant-pos/internal/apperr"
	"restaurant-pos/internal/auth"
	"restaurant-pos/internal/logger"
	"restaurant-pos/internal/models"
	"restaurant-pos/internal/pricing"
	"restaurant-pos/internal/store/memory"
)

var fixedNow = time.Date(2026, 10, 15, 20, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []*models.StatusUpdateMessage
}

func (n *recordingNotifier) PublishNotification(_ context.Context, msg *models.StatusUpdateMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return nil
}

type fixture struct {
	ctx      context.Context
	store    *memory.Store
	notifier *recordingNotifier
	service  *Service
	orders   int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	rates, err := pricing.NewFixedRates(d("0.18"), d("0.10"))
	if err != nil {
		t.Fatalf("NewFixedRates: %v", err)
	}
	f := &fixture{
		ctx:      auth.WithIdentity(context.Background(), auth.Identity{TenantID: "acme", UserID: "cashier-1", Role: auth.RoleCashier}),
		store:    memory.New(),
		notifier: &recordingNotifier{},
	}
	log := logger.NewWithWriter("test", io.Discard, slog.LevelError)
	f.service = NewService(f.store, rates, log,
		WithNotifier(f.notifier), WithClock(func() time.Time { return fixedNow }))
	return f
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func item(id, name string, quantity int, price string) models.OrderItem {
	unit := d(price)
	return models.OrderItem{
		ID:         id,
		MenuItemID: "menu-" + id,
		Name:       name,
		Quantity:   quantity,
		UnitPrice:  unit,
		TotalPrice: pricing.LineTotal(unit, quantity),
		Status:     models.ItemPending,
	}
}

// order stores a priced order at 18% tax.
func (f *fixture) order(t *testing.T, items ...models.OrderItem) *models.Order {
	t.Helper()
	f.orders++
	lines := make([]pricing.Line, len(items))
	for i, it := range items {
		lines[i] = pricing.Line{UnitPrice: it.UnitPrice, Quantity: it.Quantity}
	}
	totals, err := pricing.CalculateTotals(lines, d("0.18"))
	if err != nil {
		t.Fatalf("CalculateTotals: %v", err)
	}
	id := "order-" + string(rune('0'+f.orders))
	for i := range items {
		items[i].OrderID = id
	}
	o := &models.Order{
		ID:            id,
		OutletID:      "main",
		OrderNumber:   "ORD-MAIN-20261015-000" + string(rune('0'+f.orders)),
		OrderType:     models.DineIn,
		Items:         items,
		Subtotal:      totals.Subtotal,
		Tax:           totals.Tax,
		Total:         totals.Total,
		Status:        models.OrderServed,
		PaymentStatus: models.PaymentPending,
		CreatedAt:     fixedNow,
		UpdatedAt:     fixedNow,
	}
	if err := f.store.CreateOrder(f.ctx, o); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	return o
}

func (f *fixture) plainBill(t *testing.T, o *models.Order) *models.Bill {
	t.Helper()
	zero := decimal.Zero
	b, err := f.service.GenerateBill(f.ctx, o.ID, &GenerateBillRequest{ServiceChargeRate: &zero})
	if err != nil {
		t.Fatalf("GenerateBill: %v", err)
	}
	return b
}

func cash(amounts ...string) *ProcessPaymentRequest {
	req := &ProcessPaymentRequest{}
	for _, a := range amounts {
		req.Payments = append(req.Payments, PaymentRequest{Method: "CASH", Amount: d(a)})
	}
	return req
}

func TestGenerateBill(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, item("a", "Margherita", 2, "10.50"))

	b, err := f.service.GenerateBill(f.ctx, o.ID, &GenerateBillRequest{})
	if err != nil {
		t.Fatalf("GenerateBill: %v", err)
	}
	if b.Subtotal.StringFixed(2) != "21.00" || b.ServiceCharge.StringFixed(2) != "2.10" || b.Total.StringFixed(2) != "27.26" {
		t.Fatalf("bill = %s + %s service, total %s", b.Subtotal, b.ServiceCharge, b.Total)
	}
	if len(b.Taxes) != 1 || b.Taxes[0].Name != "Tax" || b.Taxes[0].Amount.StringFixed(2) != "4.16" {
		t.Fatalf("taxes = %+v", b.Taxes)
	}
	if !b.IsRoot() || b.SplitNumber != 0 || len(b.Items) != 1 || b.Items[0].OrderItemID != "a" {
		t.Fatalf("bill shape = %+v", b)
	}

	zero := decimal.Zero
	custom, err := f.service.GenerateBill(f.ctx, o.ID, &GenerateBillRequest{
		Discounts:         []DiscountRequest{{Name: "Happy hour", Type: "percentage", Value: d("10")}},
		ServiceChargeRate: &zero,
		Taxes:             []TaxRequest{{Name: "CGST", Rate: d("0.09")}, {Name: "SGST", Rate: d("0.09")}},
	})
	if err != nil {
		t.Fatalf("GenerateBill custom: %v", err)
	}
	if custom.DiscountTotal().StringFixed(2) != "2.10" || custom.TaxTotal().StringFixed(2) != "3.40" || custom.Total.StringFixed(2) != "22.30" {
		t.Fatalf("custom bill discount %s tax %s total %s", custom.DiscountTotal(), custom.TaxTotal(), custom.Total)
	}

	if _, err := f.service.GenerateBill(f.ctx, o.ID, &GenerateBillRequest{
		Discounts: []DiscountRequest{{Type: "bogo", Value: d("1")}},
	}); !apperr.IsValidation(err) {
		t.Fatalf("unknown discount type accepted: %v", err)
	}
}

func TestGenerateBillRejectsClosedOrders(t *testing.T) {
	f := newFixture(t)
	paid := f.order(t, item("a", "Soup", 1, "5.00"))
	if _, err := f.service.ProcessOrderPayment(f.ctx, paid.ID, cash("5.90")); err != nil {
		t.Fatalf("pay: %v", err)
	}
	cancelled := f.order(t, item("b", "Soup", 1, "5.00"))
	if ok, _ := f.store.UpdateOrderStatus(f.ctx, cancelled.ID, models.OrderServed, models.OrderCancelled, fixedNow); !ok {
		t.Fatalf("cancel seed order")
	}

	for _, id := range []string{paid.ID, cancelled.ID} {
		if _, err := f.service.GenerateBill(f.ctx, id, &GenerateBillRequest{}); !apperr.IsValidation(err) {
			t.Errorf("bill for closed order %s: %v", id, err)
		}
	}
	if _, err := f.service.GenerateBill(f.ctx, "ghost", &GenerateBillRequest{}); !apperr.IsNotFound(err) {
		t.Errorf("bill for unknown order: %v", err)
	}
}

func TestProcessOrderPayment(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, item("a", "Margherita", 2, "10.50"))

	last4 := "4242"
	result, err := f.service.ProcessOrderPayment(f.ctx, o.ID, &ProcessPaymentRequest{Payments: []PaymentRequest{
		{Method: "cash", Amount: d("10.00")},
		{Method: "CARD", Amount: d("14.78"), CardLast4: &last4},
	}})
	if err != nil {
		t.Fatalf("ProcessOrderPayment: %v", err)
	}

	if result.Order.PaymentStatus != models.PaymentPaid || result.Order.PaidAt == nil {
		t.Fatalf("order = %s paid at %v", result.Order.PaymentStatus, result.Order.PaidAt)
	}
	want := "INV-20261015-0001-" + o.OrderNumber
	if result.Invoice.InvoiceNumber != want || *result.Order.InvoiceNumber != want {
		t.Fatalf("invoice = %s, want %s", result.Invoice.InvoiceNumber, want)
	}
	if result.Invoice.Amount.StringFixed(2) != "24.78" || len(result.Payments) != 2 {
		t.Fatalf("invoice amount %s, %d payments", result.Invoice.Amount, len(result.Payments))
	}
	for _, p := range result.Payments {
		if p.Status != models.PaymentCaptured || p.OrderID != o.ID {
			t.Errorf("payment = %+v", p)
		}
	}
	if len(f.notifier.messages) != 1 || f.notifier.messages[0].Entity != models.EntityPayment {
		t.Fatalf("notifications = %+v", f.notifier.messages)
	}

	if _, err := f.service.ProcessOrderPayment(f.ctx, o.ID, cash("24.78")); !apperr.IsValidation(err) ||
		!strings.Contains(err.Error(), "already paid") {
		t.Fatalf("second payment: %v", err)
	}
}

func TestProcessPaymentValidation(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, item("a", "Margherita", 2, "10.50"))

	bad4 := "12a4"
	tests := []struct {
		name string
		req  *ProcessPaymentRequest
		want string
	}{
		{"no payments", &ProcessPaymentRequest{}, "at least one payment"},
		{"unknown method", &ProcessPaymentRequest{Payments: []PaymentRequest{{Method: "BITCOIN", Amount: d("24.78")}}}, "payment method"},
		{"zero amount", &ProcessPaymentRequest{Payments: []PaymentRequest{{Method: "CASH", Amount: d("0")}, {Method: "CASH", Amount: d("24.78")}}}, "greater than 0"},
		{"bad card digits", &ProcessPaymentRequest{Payments: []PaymentRequest{{Method: "CARD", Amount: d("24.78"), CardLast4: &bad4}}}, "4 digits"},
		{"overpaid", cash("10", "10", "5"), "does not match"},
		{"underpaid", cash("24.76"), "does not match"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.ProcessOrderPayment(f.ctx, o.ID, tt.req)
			if !apperr.IsValidation(err) || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("got %v, want validation error containing %q", err, tt.want)
			}
		})
	}

	if _, err := f.service.ProcessOrderPayment(f.ctx, o.ID, cash("10", "10", "4.78")); err != nil {
		t.Fatalf("exact tenders rejected: %v", err)
	}
}

func TestSplitBillEqualAndSettle(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, item("a", "Margherita", 2, "10.50"))
	parent := f.plainBill(t, o)

	split, err := f.service.SplitBill(f.ctx, parent.ID, &SplitBillRequest{SplitType: "equal", NumberOfSplits: 3})
	if err != nil {
		t.Fatalf("SplitBill: %v", err)
	}
	if !split.Parent.IsSplit || len(split.Children) != 3 {
		t.Fatalf("split = %+v", split)
	}
	for i, child := range split.Children {
		if child.Total.StringFixed(2) != "8.26" || child.SplitNumber != i+1 || *child.ParentBillID != parent.ID {
			t.Errorf("child %d = total %s split %d", i, child.Total, child.SplitNumber)
		}
	}

	if _, err := f.service.SplitBillEqual(f.ctx, parent.ID, 2); !apperr.IsValidation(err) {
		t.Errorf("second split accepted: %v", err)
	}
	if _, err := f.service.SplitBillEqual(f.ctx, split.Children[0].ID, 2); !apperr.IsValidation(err) {
		t.Errorf("split of a child accepted: %v", err)
	}
	if _, err := f.service.ProcessBillPayment(f.ctx, parent.ID, cash("24.78")); !apperr.IsValidation(err) {
		t.Errorf("payment on split parent accepted: %v", err)
	}

	for i, child := range split.Children {
		result, err := f.service.ProcessBillPayment(f.ctx, child.ID, cash("8.26"))
		if err != nil {
			t.Fatalf("pay child %d: %v", i+1, err)
		}
		if result.Bill.PaymentStatus != models.PaymentPaid {
			t.Fatalf("child %d status = %s", i+1, result.Bill.PaymentStatus)
		}
		stored, _ := f.store.GetOrder(f.ctx, o.ID)
		wantOrder := models.PaymentPending
		if i == len(split.Children)-1 {
			wantOrder = models.PaymentPaid
		}
		if stored.PaymentStatus != wantOrder {
			t.Fatalf("after child %d order is %s, want %s", i+1, stored.PaymentStatus, wantOrder)
		}
	}

	settled, _ := f.store.GetBill(f.ctx, parent.ID)
	if settled.PaymentStatus != models.PaymentPaid {
		t.Fatalf("parent = %s", settled.PaymentStatus)
	}

	receipt, err := f.service.GenerateReceipt(f.ctx, parent.ID)
	if err != nil {
		t.Fatalf("GenerateReceipt: %v", err)
	}
	if len(receipt.Payments) != 3 || receipt.Total.StringFixed(2) != "24.78" {
		t.Fatalf("receipt = %d payments, total %s", len(receipt.Payments), receipt.Total)
	}
}

func TestSplitBillByItems(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, item("a", "Margherita", 2, "10.50"), item("b", "Lasagne", 1, "9.00"))

	parent, err := f.service.GenerateBill(f.ctx, o.ID, &GenerateBillRequest{})
	if err != nil {
		t.Fatalf("GenerateBill: %v", err)
	}
	if parent.Total.StringFixed(2) != "38.94" {
		t.Fatalf("parent total = %s", parent.Total)
	}

	split, err := f.service.SplitBillByItems(f.ctx, parent.ID, [][]string{{"a"}, {"b"}})
	if err != nil {
		t.Fatalf("SplitBillByItems: %v", err)
	}

	sum := decimal.Zero
	for _, child := range split.Children {
		sum = sum.Add(child.Total)
		if len(child.Items) != 1 {
			t.Errorf("child %d items = %+v", child.SplitNumber, child.Items)
		}
		parts := child.Subtotal.Add(child.ServiceCharge).Add(child.TaxTotal()).Sub(child.DiscountTotal())
		if !parts.Equal(child.Total) {
			t.Errorf("child %d total %s != components %s", child.SplitNumber, child.Total, parts)
		}
	}
	if !sum.Equal(parent.Total) {
		t.Fatalf("children sum %s, parent %s", sum, parent.Total)
	}
	if split.Children[0].Items[0].Name != "Margherita" || split.Children[1].Items[0].Name != "Lasagne" {
		t.Errorf("child items = %v / %v", split.Children[0].Items, split.Children[1].Items)
	}
}

func TestSplitBillByAmount(t *testing.T) {
	f := newFixture(t)
	parent := f.plainBill(t, f.order(t, item("a", "Margherita", 2, "10.50")))

	if _, err := f.service.SplitBillByAmount(f.ctx, parent.ID, []decimal.Decimal{d("10"), d("10"), d("5")}); !apperr.IsValidation(err) {
		t.Fatalf("mismatched amounts accepted: %v", err)
	}
	split, err := f.service.SplitBillByAmount(f.ctx, parent.ID, []decimal.Decimal{d("10"), d("10"), d("4.78")})
	if err != nil {
		t.Fatalf("SplitBillByAmount: %v", err)
	}
	if len(split.Children) != 3 || split.Children[2].Total.StringFixed(2) != "4.78" {
		t.Fatalf("children = %+v", split.Children)
	}
	if _, err := f.service.SplitBill(f.ctx, parent.ID, &SplitBillRequest{SplitType: "HALVES"}); !apperr.IsValidation(err) {
		t.Fatalf("unknown split type accepted: %v", err)
	}
}

func TestConcurrentBillPaymentSettlesOnce(t *testing.T) {
	f := newFixture(t)
	bill := f.plainBill(t, f.order(t, item("a", "Margherita", 2, "10.50")))

	var (
		g         errgroup.Group
		succeeded atomic.Int32
		rejected  atomic.Int32
	)
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := f.service.ProcessBillPayment(f.ctx, bill.ID, cash("24.78"))
			switch {
			case err == nil:
				succeeded.Add(1)
			case apperr.IsValidation(err):
				rejected.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if succeeded.Load() != 1 || rejected.Load() != 7 {
		t.Fatalf("succeeded %d, rejected %d", succeeded.Load(), rejected.Load())
	}
	payments, _ := f.store.ListPaymentsByBill(f.ctx, bill.ID)
	if len(payments) != 1 {
		t.Fatalf("recorded %d payments", len(payments))
	}
}

func capturedTotal(t *testing.T, f *fixture, orderID string) string {
	t.Helper()
	payments, err := f.store.ListPaymentsByOrder(f.ctx, orderID)
	if err != nil {
		t.Fatalf("ListPaymentsByOrder: %v", err)
	}
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total.StringFixed(2)
}

func TestPartiallyPaidSplitIsNotChargedAgain(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, item("a", "Margherita", 2, "10.50"))
	parent := f.plainBill(t, o)

	split, err := f.service.SplitBillEqual(f.ctx, parent.ID, 2)
	if err != nil {
		t.Fatalf("SplitBillEqual: %v", err)
	}
	if _, err := f.service.ProcessBillPayment(f.ctx, split.Children[0].ID, cash("12.39")); err != nil {
		t.Fatalf("pay first half: %v", err)
	}

	_, err = f.service.ProcessOrderPayment(f.ctx, o.ID, cash("24.78"))
	if !apperr.IsValidation(err) || !strings.Contains(err.Error(), "12.39 captured") {
		t.Fatalf("order payment after a split payment: %v", err)
	}

	second := f.plainBill(t, o)
	if _, err := f.service.ProcessBillPayment(f.ctx, second.ID, cash("24.78")); !apperr.IsValidation(err) {
		t.Fatalf("fresh bill payment after a split payment: %v", err)
	}
	if got := capturedTotal(t, f, o.ID); got != "12.39" {
		t.Fatalf("captured %s after rejected payments, want 12.39", got)
	}

	if _, err := f.service.ProcessBillPayment(f.ctx, split.Children[1].ID, cash("12.39")); err != nil {
		t.Fatalf("pay second half: %v", err)
	}
	stored, _ := f.store.GetOrder(f.ctx, o.ID)
	if stored.PaymentStatus != models.PaymentPaid {
		t.Fatalf("order = %s, want PAID", stored.PaymentStatus)
	}
	if got := capturedTotal(t, f, o.ID); got != "24.78" {
		t.Fatalf("captured %s, want 24.78", got)
	}
}

func TestConcurrentSplitAndOrderPaymentCaptureOnce(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, item("a", "Margherita", 2, "10.50"))
	split, err := f.service.SplitBillEqual(f.ctx, f.plainBill(t, o).ID, 2)
	if err != nil {
		t.Fatalf("SplitBillEqual: %v", err)
	}

	var (
		g         errgroup.Group
		succeeded atomic.Int32
	)
	pay := func(fn func() error) {
		g.Go(func() error {
			switch err := fn(); {
			case err == nil:
				succeeded.Add(1)
			case !apperr.IsValidation(err):
				return err
			}
			return nil
		})
	}
	pay(func() error {
		_, err := f.service.ProcessBillPayment(f.ctx, split.Children[0].ID, cash("12.39"))
		return err
	})
	pay(func() error {
		_, err := f.service.ProcessOrderPayment(f.ctx, o.ID, cash("24.78"))
		return err
	})
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if succeeded.Load() != 1 {
		t.Fatalf("%d payments succeeded, want 1", succeeded.Load())
	}
	if got := capturedTotal(t, f, o.ID); got != "12.39" && got != "24.78" {
		t.Fatalf("captured %s for a 24.78 order", got)
	}
}

func TestReceipt(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, item("a", "Margherita", 2, "10.50"))
	bill := f.plainBill(t, o)

	if _, err := f.service.GenerateReceipt(f.ctx, bill.ID); !apperr.IsValidation(err) {
		t.Fatalf("receipt for unpaid bill: %v", err)
	}

	last4 := "4242"
	if _, err := f.service.ProcessBillPayment(f.ctx, bill.ID, &ProcessPaymentRequest{Payments: []PaymentRequest{
		{Method: "CARD", Amount: d("24.78"), CardLast4: &last4},
	}}); err != nil {
		t.Fatalf("ProcessBillPayment: %v", err)
	}
	receipt, err := f.service.GenerateReceipt(f.ctx, bill.ID)
	if err != nil {
		t.Fatalf("GenerateReceipt: %v", err)
	}
	if receipt.InvoiceNumber == "" || !receipt.IssuedAt.Equal(fixedNow) || receipt.OrderNumber != o.OrderNumber {
		t.Fatalf("receipt = %+v", receipt)
	}
}
