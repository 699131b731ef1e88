// Package memory is an in-process implementation of store.Store.
//
// Tenants are isolated in separate state maps. A single mutex serialises every
// call; WithTx works on a cloned state that replaces the live one on success.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"restaurant-pos/internal/apperr"
	"restaurant-pos/internal/auth"
	"restaurant-pos/internal/identifier"
	"restaurant-pos/internal/models"
	"restaurant-pos/internal/store"
)

type seqKey struct {
	outletID string
	kind     identifier.Kind
	day      string
}

type state struct {
	orders    map[string]models.Order
	items     map[string][]models.OrderItem
	logs      map[string][]models.OrderStatusLog
	bills     map[string]models.Bill
	payments  []models.Payment
	invoices  map[string]models.Invoice
	kots      map[string]models.KOT
	tables    map[string]models.Table
	sequences map[seqKey]int64
	menu      map[string]store.MenuItem
}

func newState() *state {
	return &state{
		orders:    make(map[string]models.Order),
		items:     make(map[string][]models.OrderItem),
		logs:      make(map[string][]models.OrderStatusLog),
		bills:     make(map[string]models.Bill),
		invoices:  make(map[string]models.Invoice),
		kots:      make(map[string]models.KOT),
		tables:    make(map[string]models.Table),
		sequences: make(map[seqKey]int64),
		menu:      make(map[string]store.MenuItem),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.items {
		c.items[k] = append([]models.OrderItem(nil), v...)
	}
	for k, v := range s.logs {
		c.logs[k] = append([]models.OrderStatusLog(nil), v...)
	}
	for k, v := range s.bills {
		c.bills[k] = cloneBill(v)
	}
	c.payments = append([]models.Payment(nil), s.payments...)
	for k, v := range s.invoices {
		c.invoices[k] = v
	}
	for k, v := range s.kots {
		v.Items = append([]models.KOTItem(nil), v.Items...)
		c.kots[k] = v
	}
	for k, v := range s.tables {
		c.tables[k] = v
	}
	for k, v := range s.sequences {
		c.sequences[k] = v
	}
	for k, v := range s.menu {
		c.menu[k] = v
	}
	return c
}

func cloneBill(b models.Bill) models.Bill {
	b.Items = append([]models.BillItem(nil), b.Items...)
	b.Discounts = append([]models.BillDiscount(nil), b.Discounts...)
	b.Taxes = append([]models.BillTax(nil), b.Taxes...)
	b.Payments = nil
	return b
}

// Store is the in-memory gateway.
type Store struct {
	mu      sync.Mutex
	tenants map[string]*state
}

var _ store.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{tenants: make(map[string]*state)}
}

func tenantOf(ctx context.Context) (string, error) {
	id, err := auth.FromContext(ctx)
	if err != nil {
		return "", err
	}
	return id.TenantID, nil
}

func (s *Store) tenant(id string) *state {
	st, ok := s.tenants[id]
	if !ok {
		st = newState()
		s.tenants[id] = st
	}
	return st
}

// do runs fn against the live state of the caller's tenant.
func (s *Store) do(ctx context.Context, fn func(v *view) error) error {
	tenant, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&view{st: s.tenant(tenant)})
}

// WithTx runs fn against a copy of the tenant state and publishes the copy on success.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Repository) error) error {
	tenant, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	draft := s.tenant(tenant).clone()
	if err := fn(&view{st: draft}); err != nil {
		return err
	}
	s.tenants[tenant] = draft
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error { return nil }

// AddMenuItem seeds the catalog of the tenant carried by ctx.
func (s *Store) AddMenuItem(ctx context.Context, item store.MenuItem) error {
	return s.do(ctx, func(v *view) error {
		v.st.menu[item.ID] = item
		return nil
	})
}

// LookupMenuItem implements store.Catalog.
func (s *Store) LookupMenuItem(ctx context.Context, outletID, menuItemID string) (item *store.MenuItem, err error) {
	err = s.do(ctx, func(v *view) error {
		found, ok := v.st.menu[menuItemID]
		if !ok {
			return apperr.NotFound("menu item", menuItemID)
		}
		item = &found
		return nil
	})
	return item, err
}

func (s *Store) CreateOrder(ctx context.Context, o *models.Order) error {
	return s.do(ctx, func(v *view) error { return v.CreateOrder(ctx, o) })
}

func (s *Store) GetOrder(ctx context.Context, id string) (o *models.Order, err error) {
	err = s.do(ctx, func(v *view) error { o, err = v.GetOrder(ctx, id); return err })
	return o, err
}

func (s *Store) ListOrderItems(ctx context.Context, orderID string) (items []models.OrderItem, err error) {
	err = s.do(ctx, func(v *view) error { items, err = v.ListOrderItems(ctx, orderID); return err })
	return items, err
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, from, to models.OrderStatus, at time.Time) (ok bool, err error) {
	err = s.do(ctx, func(v *view) error { ok, err = v.UpdateOrderStatus(ctx, id, from, to, at); return err })
	return ok, err
}

func (s *Store) SetOrderPaymentStatus(ctx context.Context, id string, to models.PaymentStatus, invoiceNumber *string, at time.Time) (ok bool, err error) {
	err = s.do(ctx, func(v *view) error { ok, err = v.SetOrderPaymentStatus(ctx, id, to, invoiceNumber, at); return err })
	return ok, err
}

func (s *Store) ListPayableOrdersByTables(ctx context.Context, tableIDs []string) (orders []*models.Order, err error) {
	err = s.do(ctx, func(v *view) error { orders, err = v.ListPayableOrdersByTables(ctx, tableIDs); return err })
	return orders, err
}

func (s *Store) MarkOrderMerged(ctx context.Context, id, mergedInto string, at time.Time) (ok bool, err error) {
	err = s.do(ctx, func(v *view) error { ok, err = v.MarkOrderMerged(ctx, id, mergedInto, at); return err })
	return ok, err
}

func (s *Store) AppendStatusLog(ctx context.Context, entry models.OrderStatusLog) error {
	return s.do(ctx, func(v *view) error { return v.AppendStatusLog(ctx, entry) })
}

func (s *Store) ListStatusLog(ctx context.Context, orderID string) (logs []models.OrderStatusLog, err error) {
	err = s.do(ctx, func(v *view) error { logs, err = v.ListStatusLog(ctx, orderID); return err })
	return logs, err
}

func (s *Store) CreateBill(ctx context.Context, b *models.Bill) error {
	return s.do(ctx, func(v *view) error { return v.CreateBill(ctx, b) })
}

func (s *Store) GetBill(ctx context.Context, id string) (b *models.Bill, err error) {
	err = s.do(ctx, func(v *view) error { b, err = v.GetBill(ctx, id); return err })
	return b, err
}

func (s *Store) ListChildBills(ctx context.Context, parentID string) (bills []*models.Bill, err error) {
	err = s.do(ctx, func(v *view) error { bills, err = v.ListChildBills(ctx, parentID); return err })
	return bills, err
}

func (s *Store) LockOrder(ctx context.Context, id string) error {
	return s.do(ctx, func(v *view) error { return v.LockOrder(ctx, id) })
}

func (s *Store) LockTable(ctx context.Context, id string) error {
	return s.do(ctx, func(v *view) error { return v.LockTable(ctx, id) })
}

func (s *Store) LockBill(ctx context.Context, id string) error {
	return s.do(ctx, func(v *view) error { return v.LockBill(ctx, id) })
}

func (s *Store) MarkBillSplit(ctx context.Context, id string) (ok bool, err error) {
	err = s.do(ctx, func(v *view) error { ok, err = v.MarkBillSplit(ctx, id); return err })
	return ok, err
}

func (s *Store) MarkBillPaid(ctx context.Context, id string, invoiceNumber *string, at time.Time) (ok bool, err error) {
	err = s.do(ctx, func(v *view) error { ok, err = v.MarkBillPaid(ctx, id, invoiceNumber, at); return err })
	return ok, err
}

func (s *Store) CreatePayments(ctx context.Context, payments []models.Payment) error {
	return s.do(ctx, func(v *view) error { return v.CreatePayments(ctx, payments) })
}

func (s *Store) ListPaymentsByOrder(ctx context.Context, orderID string) (payments []models.Payment, err error) {
	err = s.do(ctx, func(v *view) error { payments, err = v.ListPaymentsByOrder(ctx, orderID); return err })
	return payments, err
}

func (s *Store) ListPaymentsByBill(ctx context.Context, billID string) (payments []models.Payment, err error) {
	err = s.do(ctx, func(v *view) error { payments, err = v.ListPaymentsByBill(ctx, billID); return err })
	return payments, err
}

func (s *Store) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	return s.do(ctx, func(v *view) error { return v.CreateInvoice(ctx, inv) })
}

func (s *Store) CreateKOT(ctx context.Context, k *models.KOT) error {
	return s.do(ctx, func(v *view) error { return v.CreateKOT(ctx, k) })
}

func (s *Store) GetKOT(ctx context.Context, id string) (k *models.KOT, err error) {
	err = s.do(ctx, func(v *view) error { k, err = v.GetKOT(ctx, id); return err })
	return k, err
}

func (s *Store) UpdateKOT(ctx context.Context, k *models.KOT, expect models.ItemStatus) (ok bool, err error) {
	err = s.do(ctx, func(v *view) error { ok, err = v.UpdateKOT(ctx, k, expect); return err })
	return ok, err
}

func (s *Store) UpdateKOTItemStatus(ctx context.Context, kotID, itemID string, from, to models.ItemStatus) (ok bool, err error) {
	err = s.do(ctx, func(v *view) error { ok, err = v.UpdateKOTItemStatus(ctx, kotID, itemID, from, to); return err })
	return ok, err
}

func (s *Store) ListKOTs(ctx context.Context, filter models.KOTFilter) (kots []*models.KOT, err error) {
	err = s.do(ctx, func(v *view) error { kots, err = v.ListKOTs(ctx, filter); return err })
	return kots, err
}

func (s *Store) CreateTable(ctx context.Context, t *models.Table) error {
	return s.do(ctx, func(v *view) error { return v.CreateTable(ctx, t) })
}

func (s *Store) GetTable(ctx context.Context, id string) (t *models.Table, err error) {
	err = s.do(ctx, func(v *view) error { t, err = v.GetTable(ctx, id); return err })
	return t, err
}

func (s *Store) ListTables(ctx context.Context, outletID string, status *models.TableStatus) (tables []*models.Table, err error) {
	err = s.do(ctx, func(v *view) error { tables, err = v.ListTables(ctx, outletID, status); return err })
	return tables, err
}

func (s *Store) UpdateTable(ctx context.Context, t *models.Table, expect models.TableStatus) (ok bool, err error) {
	err = s.do(ctx, func(v *view) error { ok, err = v.UpdateTable(ctx, t, expect); return err })
	return ok, err
}

func (s *Store) DeleteTable(ctx context.Context, id string) error {
	return s.do(ctx, func(v *view) error { return v.DeleteTable(ctx, id) })
}

func (s *Store) NextSequence(ctx context.Context, outletID string, kind identifier.Kind, day time.Time) (n int64, err error) {
	err = s.do(ctx, func(v *view) error { n, err = v.NextSequence(ctx, outletID, kind, day); return err })
	return n, err
}

// view applies repository operations to one tenant state without locking.
type view struct {
	st *state
}

var _ store.Repository = (*view)(nil)

func (v *view) CreateOrder(_ context.Context, o *models.Order) error {
	if _, exists := v.st.orders[o.ID]; exists {
		return apperr.Database("insert order", fmt.Errorf("duplicate order id %s", o.ID))
	}
	for _, existing := range v.st.orders {
		if existing.OutletID == o.OutletID && existing.OrderNumber == o.OrderNumber {
			return apperr.Database("insert order", fmt.Errorf("duplicate order number %s", o.OrderNumber))
		}
	}
	stored := *o
	stored.Items = nil
	v.st.orders[o.ID] = stored
	v.st.items[o.ID] = append([]models.OrderItem(nil), o.Items...)
	return nil
}

func (v *view) GetOrder(_ context.Context, id string) (*models.Order, error) {
	o, ok := v.st.orders[id]
	if !ok {
		return nil, apperr.NotFound("order", id)
	}
	o.Items = append([]models.OrderItem(nil), v.st.items[id]...)
	return &o, nil
}

func (v *view) ListOrderItems(_ context.Context, orderID string) ([]models.OrderItem, error) {
	if _, ok := v.st.orders[orderID]; !ok {
		return nil, apperr.NotFound("order", orderID)
	}
	return append([]models.OrderItem(nil), v.st.items[orderID]...), nil
}

func (v *view) UpdateOrderStatus(_ context.Context, id string, from, to models.OrderStatus, at time.Time) (bool, error) {
	o, ok := v.st.orders[id]
	if !ok {
		return false, apperr.NotFound("order", id)
	}
	if o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = at
	v.st.orders[id] = o
	return true, nil
}

func (v *view) SetOrderPaymentStatus(_ context.Context, id string, to models.PaymentStatus, invoiceNumber *string, at time.Time) (bool, error) {
	o, ok := v.st.orders[id]
	if !ok {
		return false, apperr.NotFound("order", id)
	}
	if o.PaymentStatus != models.PaymentPending {
		return false, nil
	}
	o.PaymentStatus = to
	o.UpdatedAt = at
	if to == models.PaymentPaid {
		o.InvoiceNumber = invoiceNumber
		paidAt := at
		o.PaidAt = &paidAt
	}
	v.st.orders[id] = o
	return true, nil
}

func (v *view) ListPayableOrdersByTables(_ context.Context, tableIDs []string) ([]*models.Order, error) {
	wanted := make(map[string]bool, len(tableIDs))
	for _, id := range tableIDs {
		wanted[id] = true
	}
	var out []*models.Order
	for id, o := range v.st.orders {
		if o.TableID == nil || !wanted[*o.TableID] || !o.IsPayable() {
			continue
		}
		o.Items = append([]models.OrderItem(nil), v.st.items[id]...)
		found := o
		out = append(out, &found)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].OrderNumber < out[j].OrderNumber
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (v *view) MarkOrderMerged(_ context.Context, id, mergedInto string, at time.Time) (bool, error) {
	o, ok := v.st.orders[id]
	if !ok {
		return false, apperr.NotFound("order", id)
	}
	if !o.IsPayable() {
		return false, nil
	}
	o.Status = models.OrderMerged
	o.PaymentStatus = models.PaymentCancelled
	o.MergedInto = &mergedInto
	o.UpdatedAt = at
	v.st.orders[id] = o
	return true, nil
}

func (v *view) AppendStatusLog(_ context.Context, entry models.OrderStatusLog) error {
	v.st.logs[entry.OrderID] = append(v.st.logs[entry.OrderID], entry)
	return nil
}

func (v *view) ListStatusLog(_ context.Context, orderID string) ([]models.OrderStatusLog, error) {
	return append([]models.OrderStatusLog(nil), v.st.logs[orderID]...), nil
}

func (v *view) CreateBill(_ context.Context, b *models.Bill) error {
	if _, exists := v.st.bills[b.ID]; exists {
		return apperr.Database("insert bill", fmt.Errorf("duplicate bill id %s", b.ID))
	}
	v.st.bills[b.ID] = cloneBill(*b)
	return nil
}

func (v *view) GetBill(ctx context.Context, id string) (*models.Bill, error) {
	b, ok := v.st.bills[id]
	if !ok {
		return nil, apperr.NotFound("bill", id)
	}
	b = cloneBill(b)
	b.Payments, _ = v.ListPaymentsByBill(ctx, id)
	return &b, nil
}

func (v *view) ListChildBills(ctx context.Context, parentID string) ([]*models.Bill, error) {
	var out []*models.Bill
	for id, b := range v.st.bills {
		if b.ParentBillID != nil && *b.ParentBillID == parentID {
			child, _ := v.GetBill(ctx, id)
			out = append(out, child)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SplitNumber < out[j].SplitNumber })
	return out, nil
}

// LockOrder, LockTable and LockBill only check existence; the store mutex
// already serialises writers.
func (v *view) LockOrder(_ context.Context, id string) error {
	if _, ok := v.st.orders[id]; !ok {
		return apperr.NotFound("order", id)
	}
	return nil
}

func (v *view) LockTable(_ context.Context, id string) error {
	if _, ok := v.st.tables[id]; !ok {
		return apperr.NotFound("table", id)
	}
	return nil
}

func (v *view) LockBill(_ context.Context, id string) error {
	if _, ok := v.st.bills[id]; !ok {
		return apperr.NotFound("bill", id)
	}
	return nil
}

func (v *view) MarkBillSplit(_ context.Context, id string) (bool, error) {
	b, ok := v.st.bills[id]
	if !ok {
		return false, apperr.NotFound("bill", id)
	}
	if b.PaymentStatus != models.PaymentPending || b.IsSplit {
		return false, nil
	}
	b.IsSplit = true
	v.st.bills[id] = b
	return true, nil
}

func (v *view) MarkBillPaid(_ context.Context, id string, invoiceNumber *string, at time.Time) (bool, error) {
	b, ok := v.st.bills[id]
	if !ok {
		return false, apperr.NotFound("bill", id)
	}
	if b.PaymentStatus != models.PaymentPending {
		return false, nil
	}
	b.PaymentStatus = models.PaymentPaid
	b.InvoiceNumber = invoiceNumber
	paidAt := at
	b.PaidAt = &paidAt
	v.st.bills[id] = b
	return true, nil
}

func (v *view) CreatePayments(_ context.Context, payments []models.Payment) error {
	v.st.payments = append(v.st.payments, payments...)
	return nil
}

func (v *view) ListPaymentsByOrder(_ context.Context, orderID string) ([]models.Payment, error) {
	var out []models.Payment
	for _, p := range v.st.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (v *view) ListPaymentsByBill(_ context.Context, billID string) ([]models.Payment, error) {
	var out []models.Payment
	for _, p := range v.st.payments {
		if p.BillID != nil && *p.BillID == billID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (v *view) CreateInvoice(_ context.Context, inv *models.Invoice) error {
	for _, existing := range v.st.invoices {
		if existing.OutletID == inv.OutletID && existing.InvoiceNumber == inv.InvoiceNumber {
			return apperr.Database("insert invoice", fmt.Errorf("duplicate invoice number %s", inv.InvoiceNumber))
		}
	}
	v.st.invoices[inv.ID] = *inv
	return nil
}

func (v *view) CreateKOT(_ context.Context, k *models.KOT) error {
	for _, existing := range v.st.kots {
		if existing.OutletID == k.OutletID && existing.KOTNumber == k.KOTNumber {
			return apperr.Database("insert kot", fmt.Errorf("duplicate kot number %s", k.KOTNumber))
		}
	}
	stored := *k
	stored.Items = append([]models.KOTItem(nil), k.Items...)
	v.st.kots[k.ID] = stored
	return nil
}

func (v *view) GetKOT(_ context.Context, id string) (*models.KOT, error) {
	k, ok := v.st.kots[id]
	if !ok {
		return nil, apperr.NotFound("kot", id)
	}
	k.Items = append([]models.KOTItem(nil), k.Items...)
	return &k, nil
}

func (v *view) UpdateKOT(_ context.Context, k *models.KOT, expect models.ItemStatus) (bool, error) {
	stored, ok := v.st.kots[k.ID]
	if !ok {
		return false, apperr.NotFound("kot", k.ID)
	}
	if stored.Status != expect {
		return false, nil
	}
	stored.Status = k.Status
	stored.AssignedTo = k.AssignedTo
	stored.EstimatedCompletionTime = k.EstimatedCompletionTime
	stored.StartedAt = k.StartedAt
	stored.CompletedAt = k.CompletedAt
	stored.UpdatedAt = k.UpdatedAt
	v.st.kots[k.ID] = stored
	return true, nil
}

func (v *view) UpdateKOTItemStatus(_ context.Context, kotID, itemID string, from, to models.ItemStatus) (bool, error) {
	k, ok := v.st.kots[kotID]
	if !ok {
		return false, apperr.NotFound("kot", kotID)
	}
	items := append([]models.KOTItem(nil), k.Items...)
	for i := range items {
		if items[i].ID != itemID {
			continue
		}
		if items[i].Status != from {
			return false, nil
		}
		items[i].Status = to
		k.Items = items
		v.st.kots[kotID] = k
		return true, nil
	}
	return false, apperr.NotFound("kot item", itemID)
}

func (v *view) ListKOTs(_ context.Context, filter models.KOTFilter) ([]*models.KOT, error) {
	statuses := make(map[models.ItemStatus]bool, len(filter.Statuses))
	for _, s := range filter.Statuses {
		statuses[s] = true
	}

	var out []*models.KOT
	for _, k := range v.st.kots {
		if filter.OutletID != "" && k.OutletID != filter.OutletID {
			continue
		}
		if len(statuses) > 0 && !statuses[k.Status] {
			continue
		}
		if filter.CreatedGTE != nil && k.CreatedAt.Before(*filter.CreatedGTE) {
			continue
		}
		k.Items = append([]models.KOTItem(nil), k.Items...)
		found := k
		out = append(out, &found)
	}

	less := func(a, b *models.KOT) bool {
		switch filter.OrderBy {
		case models.KOTOrderByPriority:
			if a.Priority.Weight() != b.Priority.Weight() {
				return a.Priority.Weight() < b.Priority.Weight()
			}
		case models.KOTOrderByEstimation:
			if !a.EstimatedCompletionTime.Equal(b.EstimatedCompletionTime) {
				return a.EstimatedCompletionTime.Before(b.EstimatedCompletionTime)
			}
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.KOTNumber < b.KOTNumber
	}
	sort.Slice(out, func(i, j int) bool {
		if filter.Desc {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (v *view) CreateTable(_ context.Context, t *models.Table) error {
	for _, existing := range v.st.tables {
		if existing.OutletID == t.OutletID && existing.TableNumber == t.TableNumber {
			return apperr.FieldValidation("table_number", "table %s already exists in outlet %s", t.TableNumber, t.OutletID)
		}
	}
	v.st.tables[t.ID] = *t
	return nil
}

func (v *view) GetTable(_ context.Context, id string) (*models.Table, error) {
	t, ok := v.st.tables[id]
	if !ok {
		return nil, apperr.NotFound("table", id)
	}
	return &t, nil
}

func (v *view) ListTables(_ context.Context, outletID string, status *models.TableStatus) ([]*models.Table, error) {
	var out []*models.Table
	for _, t := range v.st.tables {
		if outletID != "" && t.OutletID != outletID {
			continue
		}
		if status != nil && t.Status != *status {
			continue
		}
		found := t
		out = append(out, &found)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TableNumber < out[j].TableNumber })
	return out, nil
}

func (v *view) UpdateTable(_ context.Context, t *models.Table, expect models.TableStatus) (bool, error) {
	stored, ok := v.st.tables[t.ID]
	if !ok {
		return false, apperr.NotFound("table", t.ID)
	}
	if stored.Status != expect {
		return false, nil
	}
	for id, existing := range v.st.tables {
		if id != t.ID && existing.OutletID == t.OutletID && existing.TableNumber == t.TableNumber {
			return false, apperr.FieldValidation("table_number", "table %s already exists in outlet %s", t.TableNumber, t.OutletID)
		}
	}
	v.st.tables[t.ID] = *t
	return true, nil
}

func (v *view) DeleteTable(_ context.Context, id string) error {
	if _, ok := v.st.tables[id]; !ok {
		return apperr.NotFound("table", id)
	}
	delete(v.st.tables, id)
	return nil
}

func (v *view) NextSequence(_ context.Context, outletID string, kind identifier.Kind, day time.Time) (int64, error) {
	key := seqKey{outletID: outletID, kind: kind, day: day.Format("2006-01-02")}
	v.st.sequences[key]++
	return v.st.sequences[key], nil
}
