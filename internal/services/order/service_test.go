package order

import (
	"context"
	"errors"
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
	"restaurant-pos/internal/store"
	"restaurant-pos/internal/store/memory"
)

var fixedNow = time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []*models.StatusUpdateMessage
	err      error
}

func (n *recordingNotifier) PublishNotification(_ context.Context, msg *models.StatusUpdateMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return n.err
}

type fixture struct {
	ctx      context.Context
	store    *memory.Store
	notifier *recordingNotifier
	service  *Service
}

// newFixture builds a service over a fresh memory store. withCatalog makes
// the store double as the menu catalog.
func newFixture(t *testing.T, withCatalog bool) *fixture {
	t.Helper()
	st := memory.New()
	notifier := &recordingNotifier{}
	rates, err := pricing.NewFixedRates(decimal.RequireFromString("0.18"), decimal.RequireFromString("0.10"))
	if err != nil {
		t.Fatalf("NewFixedRates: %v", err)
	}
	log := logger.NewWithWriter("test", io.Discard, slog.LevelError)
	opts := []Option{WithNotifier(notifier), WithClock(func() time.Time { return fixedNow })}
	if withCatalog {
		opts = append(opts, WithCatalog(st))
	}
	return &fixture{
		ctx:      auth.WithIdentity(context.Background(), auth.Identity{TenantID: "acme", UserID: "waiter-1", Role: auth.RoleWaiter}),
		store:    st,
		notifier: notifier,
		service:  NewService(st, rates, log, opts...),
	}
}

func price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func strPtr(s string) *string { return &s }

func (f *fixture) addTable(t *testing.T, id, outlet string, status models.TableStatus) {
	t.Helper()
	err := f.store.CreateTable(f.ctx, &models.Table{
		ID: id, OutletID: outlet, TableNumber: "T-" + id, Capacity: 4, Status: status,
		CreatedAt: fixedNow, UpdatedAt: fixedNow,
	})
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
}

func simpleOrder(tableID *string) *CreateOrderRequest {
	return &CreateOrderRequest{
		OutletID:  "main",
		TableID:   tableID,
		OrderType: "dine_in",
		Items:     []ItemRequest{{MenuItemID: "m-1", Name: "Margherita", Quantity: 2, UnitPrice: price("10.50")}},
	}
}

func TestCreateOrder(t *testing.T) {
	f := newFixture(t, false)
	f.addTable(t, "t1", "main", models.TableAvailable)

	o, err := f.service.CreateOrder(f.ctx, simpleOrder(strPtr("t1")))
	if err != nil {
		t.Fatalf("CreateOrder returned error: %v", err)
	}

	if o.OrderNumber != "ORD-MAIN-20261015-0001" {
		t.Errorf("order number = %s", o.OrderNumber)
	}
	if o.Subtotal.StringFixed(2) != "21.00" || o.Tax.StringFixed(2) != "3.78" || o.Total.StringFixed(2) != "24.78" {
		t.Errorf("totals = %s / %s / %s", o.Subtotal, o.Tax, o.Total)
	}
	if o.Status != models.OrderPending || o.PaymentStatus != models.PaymentPending {
		t.Errorf("status = %s / %s", o.Status, o.PaymentStatus)
	}

	stored, err := f.service.GetOrder(f.ctx, o.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if len(stored.Items) != 1 || stored.Items[0].TotalPrice.StringFixed(2) != "21.00" {
		t.Fatalf("stored items = %+v", stored.Items)
	}

	table, _ := f.store.GetTable(f.ctx, "t1")
	if table.Status != models.TableOccupied || table.CurrentOrderID == nil || *table.CurrentOrderID != o.ID {
		t.Fatalf("table not occupied by the order: %+v", table)
	}

	history, err := f.service.GetOrderHistory(f.ctx, o.ID)
	if err != nil || len(history) != 1 || history[0].Status != models.OrderPending || history[0].ChangedBy != "waiter-1" {
		t.Fatalf("history = %+v, err %v", history, err)
	}

	second, err := f.service.CreateOrder(f.ctx, simpleOrder(nil))
	if err != nil {
		t.Fatalf("second CreateOrder: %v", err)
	}
	if second.OrderNumber != "ORD-MAIN-20261015-0002" {
		t.Errorf("second order number = %s", second.OrderNumber)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(r *CreateOrderRequest)
		wantField string
	}{
		{"empty items", func(r *CreateOrderRequest) { r.Items = nil }, "items"},
		{"unknown order type", func(r *CreateOrderRequest) { r.OrderType = "drive_through" }, "order_type"},
		{"missing outlet", func(r *CreateOrderRequest) { r.OutletID = " " }, "outlet_id"},
		{"zero quantity", func(r *CreateOrderRequest) { r.Items[0].Quantity = 0 }, "items[0].quantity"},
		{"missing name", func(r *CreateOrderRequest) { r.Items[0].Name = "" }, "items[0].name"},
		{"missing price", func(r *CreateOrderRequest) { r.Items[0].UnitPrice = nil }, "items[0].unit_price"},
		{"negative price", func(r *CreateOrderRequest) { r.Items[0].UnitPrice = price("-1") }, "items[0].unit_price"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false)
			req := simpleOrder(nil)
			tt.mutate(req)

			_, err := f.service.CreateOrder(f.ctx, req)
			var appErr *apperr.Error
			if !errors.As(err, &appErr) || appErr.Kind != apperr.KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			if appErr.Field != tt.wantField {
				t.Errorf("field = %q, want %q", appErr.Field, tt.wantField)
			}
		})
	}
}

func TestCreateOrderRequiresIdentity(t *testing.T) {
	f := newFixture(t, false)
	if _, err := f.service.CreateOrder(context.Background(), simpleOrder(nil)); !errors.Is(err, auth.ErrNoIdentity) {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}
}

func TestCreateOrderTableRules(t *testing.T) {
	f := newFixture(t, false)
	f.addTable(t, "busy", "main", models.TableAvailable)
	f.addTable(t, "wet", "main", models.TableCleaning)
	f.addTable(t, "far", "uptown", models.TableAvailable)

	if _, err := f.service.CreateOrder(f.ctx, simpleOrder(strPtr("busy"))); err != nil {
		t.Fatalf("first order on table: %v", err)
	}

	tests := []struct {
		table   string
		wantMsg string
	}{
		{"busy", "already has active order"},
		{"wet", "is CLEANING"},
		{"far", "another outlet"},
		{"ghost", "does not exist"},
	}
	for _, tt := range tests {
		_, err := f.service.CreateOrder(f.ctx, simpleOrder(strPtr(tt.table)))
		if !apperr.IsValidation(err) || !strings.Contains(err.Error(), tt.wantMsg) {
			t.Errorf("table %s: got %v, want message containing %q", tt.table, err, tt.wantMsg)
		}
	}
}

// lockTracingStore records the table reads and locks made inside transactions.
type lockTracingStore struct {
	*memory.Store
	mu    sync.Mutex
	calls []string
}

func (s *lockTracingStore) WithTx(ctx context.Context, fn func(tx store.Repository) error) error {
	return s.Store.WithTx(ctx, func(tx store.Repository) error {
		return fn(&lockTracingRepo{Repository: tx, trace: s})
	})
}

func (s *lockTracingStore) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

type lockTracingRepo struct {
	store.Repository
	trace *lockTracingStore
}

func (r *lockTracingRepo) LockTable(ctx context.Context, id string) error {
	r.trace.record("LockTable " + id)
	return r.Repository.LockTable(ctx, id)
}

func (r *lockTracingRepo) GetTable(ctx context.Context, id string) (*models.Table, error) {
	r.trace.record("GetTable " + id)
	return r.Repository.GetTable(ctx, id)
}

func TestCreateOrderLocksTableBeforeSeating(t *testing.T) {
	f := newFixture(t, false)
	f.addTable(t, "t1", "main", models.TableAvailable)
	traced := &lockTracingStore{Store: f.store}
	rates, _ := pricing.NewFixedRates(decimal.RequireFromString("0.18"), decimal.Zero)
	svc := NewService(traced, rates, logger.NewWithWriter("test", io.Discard, slog.LevelError),
		WithClock(func() time.Time { return fixedNow }))

	if _, err := svc.CreateOrder(f.ctx, simpleOrder(strPtr("t1"))); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if len(traced.calls) < 2 || traced.calls[0] != "LockTable t1" || traced.calls[1] != "GetTable t1" {
		t.Fatalf("table access inside the transaction = %v, want the lock first", traced.calls)
	}
}

func TestConcurrentOrdersOnReusedTable(t *testing.T) {
	f := newFixture(t, false)
	f.addTable(t, "t1", "main", models.TableAvailable)

	// The previous party paid but the table was never released.
	previous, err := f.service.CreateOrder(f.ctx, simpleOrder(strPtr("t1")))
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if ok, err := f.store.SetOrderPaymentStatus(f.ctx, previous.ID, models.PaymentPaid, strPtr("INV-1"), fixedNow); !ok || err != nil {
		t.Fatalf("SetOrderPaymentStatus = %v, %v", ok, err)
	}

	var (
		g         errgroup.Group
		succeeded atomic.Int32
	)
	for i := 0; i < 6; i++ {
		g.Go(func() error {
			_, err := f.service.CreateOrder(f.ctx, simpleOrder(strPtr("t1")))
			switch {
			case err == nil:
				succeeded.Add(1)
			case !apperr.IsValidation(err):
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if succeeded.Load() != 1 {
		t.Fatalf("%d orders seated at one table, want 1", succeeded.Load())
	}
}

func TestCreateOrderWithCatalog(t *testing.T) {
	f := newFixture(t, true)
	f.store.AddMenuItem(f.ctx, store.MenuItem{ID: "m-1", Name: "Margherita", Price: decimal.RequireFromString("12.00"), Available: true})
	f.store.AddMenuItem(f.ctx, store.MenuItem{ID: "m-2", Name: "Truffle Pasta", Price: decimal.RequireFromString("30.00"), Available: false})

	req := &CreateOrderRequest{
		OutletID:  "main",
		OrderType: "TAKEAWAY",
		Items:     []ItemRequest{{MenuItemID: "m-1", Name: "ignored", Quantity: 1, UnitPrice: price("1.00")}},
	}
	o, err := f.service.CreateOrder(f.ctx, req)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if o.Items[0].Name != "Margherita" || o.Subtotal.StringFixed(2) != "12.00" {
		t.Fatalf("catalog snapshot not applied: %+v", o.Items[0])
	}

	req.Items[0].MenuItemID = "m-2"
	if _, err := f.service.CreateOrder(f.ctx, req); !apperr.IsValidation(err) {
		t.Fatalf("unavailable item accepted: %v", err)
	}
	req.Items[0].MenuItemID = "m-404"
	if _, err := f.service.CreateOrder(f.ctx, req); !apperr.IsValidation(err) {
		t.Fatalf("unknown item accepted: %v", err)
	}
}

func TestUpdateOrderStatus(t *testing.T) {
	f := newFixture(t, false)
	o, err := f.service.CreateOrder(f.ctx, simpleOrder(nil))
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	steps := []struct {
		status  string
		wantErr bool
	}{
		{"PREPARING", true},
		{"CONFIRMED", false},
		{"MERGED", true},
		{"PREPARING", false},
		{"READY", false},
		{"PENDING", true},
		{"SERVED", false},
		{"CANCELLED", true},
	}
	for _, step := range steps {
		_, err := f.service.UpdateOrderStatus(f.ctx, o.ID, &UpdateStatusRequest{Status: step.status})
		if (err != nil) != step.wantErr {
			t.Fatalf("-> %s: error = %v, wantErr %v", step.status, err, step.wantErr)
		}
		if err != nil && !apperr.IsValidation(err) {
			t.Fatalf("-> %s: expected validation error, got %v", step.status, err)
		}
	}

	history, err := f.service.GetOrderHistory(f.ctx, o.ID)
	if err != nil {
		t.Fatalf("GetOrderHistory: %v", err)
	}
	var got []models.OrderStatus
	for _, entry := range history {
		got = append(got, entry.Status)
	}
	want := []models.OrderStatus{models.OrderPending, models.OrderConfirmed, models.OrderPreparing, models.OrderReady, models.OrderServed}
	if len(got) != len(want) {
		t.Fatalf("history = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("history = %v, want %v", got, want)
		}
	}

	if len(f.notifier.messages) != 4 {
		t.Fatalf("published %d notifications, want 4", len(f.notifier.messages))
	}
	last := f.notifier.messages[3]
	if last.Entity != models.EntityOrder || last.OldStatus != "READY" || last.NewStatus != "SERVED" || last.Tenant != "acme" {
		t.Fatalf("unexpected notification %+v", last)
	}
}

func TestCancelOrderFreesTable(t *testing.T) {
	f := newFixture(t, false)
	f.addTable(t, "t1", "main", models.TableAvailable)
	o, err := f.service.CreateOrder(f.ctx, simpleOrder(strPtr("t1")))
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	f.notifier.err = errors.New("broker down")
	cancelled, err := f.service.UpdateOrderStatus(f.ctx, o.ID, &UpdateStatusRequest{Status: "cancelled", Notes: strPtr("guest left")})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.PaymentStatus != models.PaymentCancelled {
		t.Errorf("payment status = %s", cancelled.PaymentStatus)
	}

	table, _ := f.store.GetTable(f.ctx, "t1")
	if table.CurrentOrderID != nil {
		t.Fatalf("table still holds order %s", *table.CurrentOrderID)
	}

	if _, err := f.service.CreateOrder(f.ctx, simpleOrder(strPtr("t1"))); err != nil {
		t.Fatalf("table should accept a new order after cancellation: %v", err)
	}
}

func TestCannotCancelPaidOrder(t *testing.T) {
	f := newFixture(t, false)
	o, err := f.service.CreateOrder(f.ctx, simpleOrder(nil))
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	inv := "INV-1"
	if ok, err := f.store.SetOrderPaymentStatus(f.ctx, o.ID, models.PaymentPaid, &inv, fixedNow); !ok || err != nil {
		t.Fatalf("mark paid: %v %v", ok, err)
	}

	_, err = f.service.UpdateOrderStatus(f.ctx, o.ID, &UpdateStatusRequest{Status: "CANCELLED"})
	if !apperr.IsValidation(err) || !strings.Contains(err.Error(), "paid") {
		t.Fatalf("expected paid rejection, got %v", err)
	}
}

func TestUpdateOrderStatusNotFound(t *testing.T) {
	f := newFixture(t, false)
	if _, err := f.service.UpdateOrderStatus(f.ctx, "missing", &UpdateStatusRequest{Status: "CONFIRMED"}); !apperr.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.service.GetOrderHistory(f.ctx, "missing"); !apperr.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSplitOrder(t *testing.T) {
	f := newFixture(t, false)
	req := simpleOrder(nil)
	req.Items = append(req.Items, ItemRequest{MenuItemID: "m-2", Name: "Cola", Quantity: 2, UnitPrice: price("2.50")})
	o, err := f.service.CreateOrder(f.ctx, req)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	equal, err := f.service.SplitOrder(f.ctx, o.ID, &SplitRequest{SplitType: "EQUAL", NumberOfSplits: 3})
	if err != nil {
		t.Fatalf("equal split: %v", err)
	}
	sum := decimal.Zero
	for _, s := range equal.Splits {
		sum = sum.Add(s.Amount)
	}
	if !sum.Equal(o.Total) {
		t.Fatalf("equal splits sum %s, want %s", sum, o.Total)
	}

	byItems, err := f.service.SplitOrder(f.ctx, o.ID, &SplitRequest{
		SplitType: "BY_ITEMS",
		Groups:    [][]string{{o.Items[0].ID}, {o.Items[1].ID}},
	})
	if err != nil {
		t.Fatalf("by items split: %v", err)
	}
	if !byItems.Splits[0].Amount.Add(byItems.Splits[1].Amount).Equal(o.Total) {
		t.Fatalf("item splits do not add up: %+v", byItems.Splits)
	}

	if _, err := f.service.SplitOrder(f.ctx, o.ID, &SplitRequest{SplitType: "ROULETTE"}); !apperr.IsValidation(err) {
		t.Fatalf("unknown split type accepted: %v", err)
	}
}
