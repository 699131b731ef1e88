package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"restaurant-pos/internal/apperr"
	"restaurant-pos/internal/auth"
	"restaurant-pos/internal/identifier"
	"restaurant-pos/internal/models"
	"restaurant-pos/internal/store"
)

const uniqueViolation = "23505"

// Store is the PostgreSQL gateway. Every call runs in a transaction pinned to
// the caller's tenant schema.
type Store struct {
	db *DB
}

var (
	_ store.Store   = (*Store)(nil)
	_ store.Catalog = (*Store)(nil)
)

func NewStore(db *DB) *Store {
	return &Store{db: db}
}

func (s *Store) run(ctx context.Context, fn func(r *repo) error) error {
	id, err := auth.FromContext(ctx)
	if err != nil {
		return err
	}
	err = s.db.inTenant(ctx, id.TenantID, func(tx pgx.Tx) error {
		return fn(&repo{tx: tx})
	})
	if err != nil && apperr.KindOf(err) == "" {
		return apperr.Database("transaction", err)
	}
	return err
}

// WithTx runs fn in one tenant transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Repository) error) error {
	return s.run(ctx, func(r *repo) error { return fn(r) })
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return apperr.Database("ping", err)
	}
	return nil
}

// LookupMenuItem implements store.Catalog.
func (s *Store) LookupMenuItem(ctx context.Context, outletID, menuItemID string) (item *store.MenuItem, err error) {
	err = s.run(ctx, func(r *repo) error {
		var found store.MenuItem
		err := r.tx.QueryRow(ctx, GetMenuItemSQL, menuItemID, outletID).
			Scan(&found.ID, &found.Name, &found.Price, &found.Available)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("menu item", menuItemID)
		}
		if err != nil {
			return apperr.Database("select menu item", err)
		}
		item = &found
		return nil
	})
	return item, err
}

func (s *Store) CreateOrder(ctx context.Context, o *models.Order) error {
	return s.run(ctx, func(r *repo) error { return r.CreateOrder(ctx, o) })
}

func (s *Store) GetOrder(ctx context.Context, id string) (o *models.Order, err error) {
	err = s.run(ctx, func(r *repo) error { o, err = r.GetOrder(ctx, id); return err })
	return o, err
}

func (s *Store) ListOrderItems(ctx context.Context, orderID string) (items []models.OrderItem, err error) {
	err = s.run(ctx, func(r *repo) error { items, err = r.ListOrderItems(ctx, orderID); return err })
	return items, err
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, from, to models.OrderStatus, at time.Time) (ok bool, err error) {
	err = s.run(ctx, func(r *repo) error { ok, err = r.UpdateOrderStatus(ctx, id, from, to, at); return err })
	return ok, err
}

func (s *Store) SetOrderPaymentStatus(ctx context.Context, id string, to models.PaymentStatus, invoiceNumber *string, at time.Time) (ok bool, err error) {
	err = s.run(ctx, func(r *repo) error { ok, err = r.SetOrderPaymentStatus(ctx, id, to, invoiceNumber, at); return err })
	return ok, err
}

func (s *Store) ListPayableOrdersByTables(ctx context.Context, tableIDs []string) (orders []*models.Order, err error) {
	err = s.run(ctx, func(r *repo) error { orders, err = r.ListPayableOrdersByTables(ctx, tableIDs); return err })
	return orders, err
}

func (s *Store) MarkOrderMerged(ctx context.Context, id, mergedInto string, at time.Time) (ok bool, err error) {
	err = s.run(ctx, func(r *repo) error { ok, err = r.MarkOrderMerged(ctx, id, mergedInto, at); return err })
	return ok, err
}

func (s *Store) AppendStatusLog(ctx context.Context, entry models.OrderStatusLog) error {
	return s.run(ctx, func(r *repo) error { return r.AppendStatusLog(ctx, entry) })
}

func (s *Store) ListStatusLog(ctx context.Context, orderID string) (logs []models.OrderStatusLog, err error) {
	err = s.run(ctx, func(r *repo) error { logs, err = r.ListStatusLog(ctx, orderID); return err })
	return logs, err
}

func (s *Store) CreateBill(ctx context.Context, b *models.Bill) error {
	return s.run(ctx, func(r *repo) error { return r.CreateBill(ctx, b) })
}

func (s *Store) GetBill(ctx context.Context, id string) (b *models.Bill, err error) {
	err = s.run(ctx, func(r *repo) error { b, err = r.GetBill(ctx, id); return err })
	return b, err
}

func (s *Store) ListChildBills(ctx context.Context, parentID string) (bills []*models.Bill, err error) {
	err = s.run(ctx, func(r *repo) error { bills, err = r.ListChildBills(ctx, parentID); return err })
	return bills, err
}

func (s *Store) LockOrder(ctx context.Context, id string) error {
	return s.run(ctx, func(r *repo) error { return r.LockOrder(ctx, id) })
}

func (s *Store) LockTable(ctx context.Context, id string) error {
	return s.run(ctx, func(r *repo) error { return r.LockTable(ctx, id) })
}

func (s *Store) LockBill(ctx context.Context, id string) error {
	return s.run(ctx, func(r *repo) error { return r.LockBill(ctx, id) })
}

func (s *Store) MarkBillSplit(ctx context.Context, id string) (ok bool, err error) {
	err = s.run(ctx, func(r *repo) error { ok, err = r.MarkBillSplit(ctx, id); return err })
	return ok, err
}

func (s *Store) MarkBillPaid(ctx context.Context, id string, invoiceNumber *string, at time.Time) (ok bool, err error) {
	err = s.run(ctx, func(r *repo) error { ok, err = r.MarkBillPaid(ctx, id, invoiceNumber, at); return err })
	return ok, err
}

func (s *Store) CreatePayments(ctx context.Context, payments []models.Payment) error {
	return s.run(ctx, func(r *repo) error { return r.CreatePayments(ctx, payments) })
}

func (s *Store) ListPaymentsByOrder(ctx context.Context, orderID string) (payments []models.Payment, err error) {
	err = s.run(ctx, func(r *repo) error { payments, err = r.ListPaymentsByOrder(ctx, orderID); return err })
	return payments, err
}

func (s *Store) ListPaymentsByBill(ctx context.Context, billID string) (payments []models.Payment, err error) {
	err = s.run(ctx, func(r *repo) error { payments, err = r.ListPaymentsByBill(ctx, billID); return err })
	return payments, err
}

func (s *Store) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	return s.run(ctx, func(r *repo) error { return r.CreateInvoice(ctx, inv) })
}

func (s *Store) CreateKOT(ctx context.Context, k *models.KOT) error {
	return s.run(ctx, func(r *repo) error { return r.CreateKOT(ctx, k) })
}

func (s *Store) GetKOT(ctx context.Context, id string) (k *models.KOT, err error) {
	err = s.run(ctx, func(r *repo) error { k, err = r.GetKOT(ctx, id); return err })
	return k, err
}

func (s *Store) UpdateKOT(ctx context.Context, k *models.KOT, expect models.ItemStatus) (ok bool, err error) {
	err = s.run(ctx, func(r *repo) error { ok, err = r.UpdateKOT(ctx, k, expect); return err })
	return ok, err
}

func (s *Store) UpdateKOTItemStatus(ctx context.Context, kotID, itemID string, from, to models.ItemStatus) (ok bool, err error) {
	err = s.run(ctx, func(r *repo) error { ok, err = r.UpdateKOTItemStatus(ctx, kotID, itemID, from, to); return err })
	return ok, err
}

func (s *Store) ListKOTs(ctx context.Context, filter models.KOTFilter) (kots []*models.KOT, err error) {
	err = s.run(ctx, func(r *repo) error { kots, err = r.ListKOTs(ctx, filter); return err })
	return kots, err
}

func (s *Store) CreateTable(ctx context.Context, t *models.Table) error {
	return s.run(ctx, func(r *repo) error { return r.CreateTable(ctx, t) })
}

func (s *Store) GetTable(ctx context.Context, id string) (t *models.Table, err error) {
	err = s.run(ctx, func(r *repo) error { t, err = r.GetTable(ctx, id); return err })
	return t, err
}

func (s *Store) ListTables(ctx context.Context, outletID string, status *models.TableStatus) (tables []*models.Table, err error) {
	err = s.run(ctx, func(r *repo) error { tables, err = r.ListTables(ctx, outletID, status); return err })
	return tables, err
}

func (s *Store) UpdateTable(ctx context.Context, t *models.Table, expect models.TableStatus) (ok bool, err error) {
	err = s.run(ctx, func(r *repo) error { ok, err = r.UpdateTable(ctx, t, expect); return err })
	return ok, err
}

func (s *Store) DeleteTable(ctx context.Context, id string) error {
	return s.run(ctx, func(r *repo) error { return r.DeleteTable(ctx, id) })
}

func (s *Store) NextSequence(ctx context.Context, outletID string, kind identifier.Kind, day time.Time) (n int64, err error) {
	err = s.run(ctx, func(r *repo) error { n, err = r.NextSequence(ctx, outletID, kind, day); return err })
	return n, err
}

// repo executes repository operations on one pinned transaction.
type repo struct {
	tx pgx.Tx
}

var _ store.Repository = (*repo)(nil)

// exists reports whether a row with id is present in table. table is always a
// package constant, never caller input.
func (r *repo) exists(ctx context.Context, table, id string) (bool, error) {
	var found bool
	err := r.tx.QueryRow(ctx, fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)", table), id).Scan(&found)
	if err != nil {
		return false, apperr.Database("select "+table, err)
	}
	return found, nil
}

// guarded turns a conditional update result into (applied, error): zero rows
// on a missing row is NotFound, zero rows on a present row is a failed guard.
func (r *repo) guarded(ctx context.Context, tag pgconn.CommandTag, table, resource, id string) (bool, error) {
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	found, err := r.exists(ctx, table, id)
	if err != nil {
		return false, err
	}
	if !found {
		return false, apperr.NotFound(resource, id)
	}
	return false, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// Orders

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.OutletID, &o.OrderNumber, &o.TableID, &o.CustomerID, &o.OrderType,
		&o.Subtotal, &o.Tax, &o.Total, &o.Status, &o.PaymentStatus, &o.InvoiceNumber, &o.Notes,
		&o.MergedInto, &o.CreatedAt, &o.UpdatedAt, &o.PaidAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *repo) CreateOrder(ctx context.Context, o *models.Order) error {
	_, err := r.tx.Exec(ctx, InsertOrderSQL,
		o.ID, o.OutletID, o.OrderNumber, o.TableID, o.CustomerID, string(o.OrderType),
		o.Subtotal, o.Tax, o.Total, string(o.Status), string(o.PaymentStatus), o.InvoiceNumber, o.Notes,
		o.MergedInto, o.CreatedAt, o.UpdatedAt, o.PaidAt)
	if err != nil {
		return apperr.Database("insert order", err)
	}

	batch := &pgx.Batch{}
	for i, item := range o.Items {
		batch.Queue(InsertOrderItemSQL, item.ID, o.ID, i, item.MenuItemID, item.Name, item.Quantity,
			item.UnitPrice, item.TotalPrice, item.SpecialInstructions, string(item.Status))
	}
	if err := r.tx.SendBatch(ctx, batch).Close(); err != nil {
		return apperr.Database("insert order items", err)
	}
	return nil
}

func (r *repo) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	o, err := scanOrder(r.tx.QueryRow(ctx, GetOrderSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("order", id)
	}
	if err != nil {
		return nil, apperr.Database("select order", err)
	}
	if o.Items, err = r.ListOrderItems(ctx, id); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *repo) ListOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	rows, err := r.tx.Query(ctx, ListOrderItemsSQL, orderID)
	if err != nil {
		return nil, apperr.Database("select order items", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.OrderItem, error) {
		var item models.OrderItem
		err := row.Scan(&item.ID, &item.OrderID, &item.MenuItemID, &item.Name, &item.Quantity,
			&item.UnitPrice, &item.TotalPrice, &item.SpecialInstructions, &item.Status)
		return item, err
	})
	if err != nil {
		return nil, apperr.Database("scan order items", err)
	}
	if len(items) == 0 {
		found, err := r.exists(ctx, "orders", orderID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, apperr.NotFound("order", orderID)
		}
	}
	return items, nil
}

func (r *repo) UpdateOrderStatus(ctx context.Context, id string, from, to models.OrderStatus, at time.Time) (bool, error) {
	tag, err := r.tx.Exec(ctx, UpdateOrderStatusSQL, id, string(from), string(to), at)
	if err != nil {
		return false, apperr.Database("update order status", err)
	}
	return r.guarded(ctx, tag, "orders", "order", id)
}

func (r *repo) SetOrderPaymentStatus(ctx context.Context, id string, to models.PaymentStatus, invoiceNumber *string, at time.Time) (bool, error) {
	tag, err := r.tx.Exec(ctx, SetOrderPaymentStatusSQL, id, string(to), invoiceNumber, at)
	if err != nil {
		return false, apperr.Database("update order payment status", err)
	}
	return r.guarded(ctx, tag, "orders", "order", id)
}

func (r *repo) ListPayableOrdersByTables(ctx context.Context, tableIDs []string) ([]*models.Order, error) {
	rows, err := r.tx.Query(ctx, ListPayableOrdersByTablesSQL, tableIDs)
	if err != nil {
		return nil, apperr.Database("select payable orders", err)
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Order, error) {
		return scanOrder(row)
	})
	if err != nil {
		return nil, apperr.Database("scan payable orders", err)
	}
	for _, o := range orders {
		if o.Items, err = r.ListOrderItems(ctx, o.ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *repo) MarkOrderMerged(ctx context.Context, id, mergedInto string, at time.Time) (bool, error) {
	tag, err := r.tx.Exec(ctx, MarkOrderMergedSQL, id, mergedInto, at)
	if err != nil {
		return false, apperr.Database("merge order", err)
	}
	return r.guarded(ctx, tag, "orders", "order", id)
}

func (r *repo) AppendStatusLog(ctx context.Context, entry models.OrderStatusLog) error {
	_, err := r.tx.Exec(ctx, InsertOrderStatusLogSQL, entry.OrderID, string(entry.Status), entry.ChangedBy,
		entry.ChangedAt, entry.Notes)
	if err != nil {
		return apperr.Database("insert order status log", err)
	}
	return nil
}

func (r *repo) ListStatusLog(ctx context.Context, orderID string) ([]models.OrderStatusLog, error) {
	rows, err := r.tx.Query(ctx, GetOrderStatusHistorySQL, orderID)
	if err != nil {
		return nil, apperr.Database("select order status log", err)
	}
	logs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.OrderStatusLog, error) {
		var entry models.OrderStatusLog
		err := row.Scan(&entry.OrderID, &entry.Status, &entry.ChangedBy, &entry.ChangedAt, &entry.Notes)
		return entry, err
	})
	if err != nil {
		return nil, apperr.Database("scan order status log", err)
	}
	return logs, nil
}

// Bills

func scanBill(row pgx.Row) (*models.Bill, error) {
	var b models.Bill
	err := row.Scan(&b.ID, &b.OrderID, &b.OutletID, &b.OrderNumber, &b.ParentBillID, &b.SplitNumber,
		&b.SplitType, &b.Subtotal, &b.ServiceChargeRate, &b.ServiceCharge, &b.Total, &b.PaymentStatus,
		&b.IsSplit, &b.InvoiceNumber, &b.CreatedAt, &b.PaidAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repo) CreateBill(ctx context.Context, b *models.Bill) error {
	var splitType *string
	if b.SplitType != nil {
		st := string(*b.SplitType)
		splitType = &st
	}
	_, err := r.tx.Exec(ctx, InsertBillSQL,
		b.ID, b.OrderID, b.OutletID, b.OrderNumber, b.ParentBillID, b.SplitNumber, splitType,
		b.Subtotal, b.ServiceChargeRate, b.ServiceCharge, b.Total, string(b.PaymentStatus), b.IsSplit,
		b.InvoiceNumber, b.CreatedAt, b.PaidAt)
	if err != nil {
		return apperr.Database("insert bill", err)
	}

	batch := &pgx.Batch{}
	for i, item := range b.Items {
		batch.Queue(InsertBillItemSQL, b.ID, i, item.OrderItemID, item.MenuItemID, item.Name, item.Quantity,
			item.UnitPrice, item.TotalPrice)
	}
	for i, d := range b.Discounts {
		batch.Queue(InsertBillDiscountSQL, b.ID, i, d.Name, string(d.Kind), d.Value, d.Amount)
	}
	for i, t := range b.Taxes {
		batch.Queue(InsertBillTaxSQL, b.ID, i, t.Name, t.Rate, t.Amount)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := r.tx.SendBatch(ctx, batch).Close(); err != nil {
		return apperr.Database("insert bill lines", err)
	}
	return nil
}

func (r *repo) loadBillLines(ctx context.Context, b *models.Bill) error {
	rows, err := r.tx.Query(ctx, ListBillItemsSQL, b.ID)
	if err != nil {
		return apperr.Database("select bill items", err)
	}
	b.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.BillItem, error) {
		var item models.BillItem
		err := row.Scan(&item.OrderItemID, &item.MenuItemID, &item.Name, &item.Quantity, &item.UnitPrice, &item.TotalPrice)
		return item, err
	})
	if err != nil {
		return apperr.Database("scan bill items", err)
	}

	rows, err = r.tx.Query(ctx, ListBillDiscountsSQL, b.ID)
	if err != nil {
		return apperr.Database("select bill discounts", err)
	}
	b.Discounts, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.BillDiscount, error) {
		var d models.BillDiscount
		err := row.Scan(&d.Name, &d.Kind, &d.Value, &d.Amount)
		return d, err
	})
	if err != nil {
		return apperr.Database("scan bill discounts", err)
	}

	rows, err = r.tx.Query(ctx, ListBillTaxesSQL, b.ID)
	if err != nil {
		return apperr.Database("select bill taxes", err)
	}
	b.Taxes, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.BillTax, error) {
		var t models.BillTax
		err := row.Scan(&t.Name, &t.Rate, &t.Amount)
		return t, err
	})
	if err != nil {
		return apperr.Database("scan bill taxes", err)
	}

	b.Payments, err = r.ListPaymentsByBill(ctx, b.ID)
	return err
}

func (r *repo) GetBill(ctx context.Context, id string) (*models.Bill, error) {
	b, err := scanBill(r.tx.QueryRow(ctx, GetBillSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("bill", id)
	}
	if err != nil {
		return nil, apperr.Database("select bill", err)
	}
	if err := r.loadBillLines(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *repo) ListChildBills(ctx context.Context, parentID string) ([]*models.Bill, error) {
	rows, err := r.tx.Query(ctx, ListChildBillsSQL, parentID)
	if err != nil {
		return nil, apperr.Database("select child bills", err)
	}
	bills, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Bill, error) {
		return scanBill(row)
	})
	if err != nil {
		return nil, apperr.Database("scan child bills", err)
	}
	for _, b := range bills {
		if err := r.loadBillLines(ctx, b); err != nil {
			return nil, err
		}
	}
	return bills, nil
}

func (r *repo) LockBill(ctx context.Context, id string) error {
	return r.lock(ctx, LockBillSQL, "bill", id)
}

func (r *repo) LockOrder(ctx context.Context, id string) error {
	return r.lock(ctx, LockOrderSQL, "order", id)
}

func (r *repo) LockTable(ctx context.Context, id string) error {
	return r.lock(ctx, LockTableSQL, "table", id)
}

// lock takes a row lock held until the transaction ends.
func (r *repo) lock(ctx context.Context, query, resource, id string) error {
	var locked string
	err := r.tx.QueryRow(ctx, query, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(resource, id)
	}
	if err != nil {
		return apperr.Database("lock "+resource, err)
	}
	return nil
}

func (r *repo) MarkBillSplit(ctx context.Context, id string) (bool, error) {
	tag, err := r.tx.Exec(ctx, MarkBillSplitSQL, id)
	if err != nil {
		return false, apperr.Database("mark bill split", err)
	}
	return r.guarded(ctx, tag, "bills", "bill", id)
}

func (r *repo) MarkBillPaid(ctx context.Context, id string, invoiceNumber *string, at time.Time) (bool, error) {
	tag, err := r.tx.Exec(ctx, MarkBillPaidSQL, id, invoiceNumber, at)
	if err != nil {
		return false, apperr.Database("mark bill paid", err)
	}
	return r.guarded(ctx, tag, "bills", "bill", id)
}

// Payments

func (r *repo) CreatePayments(ctx context.Context, payments []models.Payment) error {
	if len(payments) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range payments {
		batch.Queue(InsertPaymentSQL, p.ID, p.OrderID, p.BillID, string(p.Method), p.Amount, p.Reference,
			p.CardLast4, p.ApprovalCode, p.Status, p.ProcessedAt)
	}
	if err := r.tx.SendBatch(ctx, batch).Close(); err != nil {
		return apperr.Database("insert payments", err)
	}
	return nil
}

func (r *repo) listPayments(ctx context.Context, query, id string) ([]models.Payment, error) {
	rows, err := r.tx.Query(ctx, query, id)
	if err != nil {
		return nil, apperr.Database("select payments", err)
	}
	payments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Payment, error) {
		var p models.Payment
		err := row.Scan(&p.ID, &p.OrderID, &p.BillID, &p.Method, &p.Amount, &p.Reference, &p.CardLast4,
			&p.ApprovalCode, &p.Status, &p.ProcessedAt)
		return p, err
	})
	if err != nil {
		return nil, apperr.Database("scan payments", err)
	}
	return payments, nil
}

func (r *repo) ListPaymentsByOrder(ctx context.Context, orderID string) ([]models.Payment, error) {
	return r.listPayments(ctx, ListPaymentsByOrderSQL, orderID)
}

func (r *repo) ListPaymentsByBill(ctx context.Context, billID string) ([]models.Payment, error) {
	return r.listPayments(ctx, ListPaymentsByBillSQL, billID)
}

func (r *repo) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	_, err := r.tx.Exec(ctx, InsertInvoiceSQL, inv.ID, inv.InvoiceNumber, inv.OutletID, inv.OrderID, inv.BillID,
		inv.Amount, inv.IssuedAt)
	if err != nil {
		return apperr.Database("insert invoice", err)
	}
	return nil
}

// Kitchen

func scanKOT(row pgx.Row) (*models.KOT, error) {
	var k models.KOT
	err := row.Scan(&k.ID, &k.KOTNumber, &k.OutletID, &k.OrderID, &k.OrderNumber, &k.TableID, &k.OrderType,
		&k.Priority, &k.Status, &k.Notes, &k.EstimatedCompletionTime, &k.AssignedTo, &k.CreatedAt,
		&k.UpdatedAt, &k.StartedAt, &k.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func scanKOTItem(row pgx.CollectableRow) (models.KOTItem, error) {
	var item models.KOTItem
	err := row.Scan(&item.ID, &item.KOTID, &item.OrderItemID, &item.MenuItemID, &item.Name, &item.Quantity,
		&item.SpecialInstructions, &item.Status)
	return item, err
}

func (r *repo) CreateKOT(ctx context.Context, k *models.KOT) error {
	_, err := r.tx.Exec(ctx, InsertKOTSQL,
		k.ID, k.KOTNumber, k.OutletID, k.OrderID, k.OrderNumber, k.TableID, string(k.OrderType),
		string(k.Priority), string(k.Status), k.Notes, k.EstimatedCompletionTime, k.AssignedTo,
		k.CreatedAt, k.UpdatedAt, k.StartedAt, k.CompletedAt)
	if err != nil {
		return apperr.Database("insert kot", err)
	}

	batch := &pgx.Batch{}
	for i, item := range k.Items {
		batch.Queue(InsertKOTItemSQL, item.ID, k.ID, i, item.OrderItemID, item.MenuItemID, item.Name,
			item.Quantity, item.SpecialInstructions, string(item.Status))
	}
	if err := r.tx.SendBatch(ctx, batch).Close(); err != nil {
		return apperr.Database("insert kot items", err)
	}
	return nil
}

func (r *repo) GetKOT(ctx context.Context, id string) (*models.KOT, error) {
	k, err := scanKOT(r.tx.QueryRow(ctx, GetKOTSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("kot", id)
	}
	if err != nil {
		return nil, apperr.Database("select kot", err)
	}

	rows, err := r.tx.Query(ctx, ListKOTItemsSQL, id)
	if err != nil {
		return nil, apperr.Database("select kot items", err)
	}
	if k.Items, err = pgx.CollectRows(rows, scanKOTItem); err != nil {
		return nil, apperr.Database("scan kot items", err)
	}
	return k, nil
}

func (r *repo) UpdateKOT(ctx context.Context, k *models.KOT, expect models.ItemStatus) (bool, error) {
	tag, err := r.tx.Exec(ctx, UpdateKOTSQL, k.ID, string(expect), string(k.Status), k.AssignedTo,
		k.EstimatedCompletionTime, k.StartedAt, k.CompletedAt, k.UpdatedAt)
	if err != nil {
		return false, apperr.Database("update kot", err)
	}
	return r.guarded(ctx, tag, "kots", "kot", k.ID)
}

func (r *repo) UpdateKOTItemStatus(ctx context.Context, kotID, itemID string, from, to models.ItemStatus) (bool, error) {
	tag, err := r.tx.Exec(ctx, UpdateKOTItemStatusSQL, kotID, itemID, string(from), string(to))
	if err != nil {
		return false, apperr.Database("update kot item", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	found, err := r.exists(ctx, "kots", kotID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, apperr.NotFound("kot", kotID)
	}
	if err := r.tx.QueryRow(ctx, KOTItemExistsSQL, kotID, itemID).Scan(&found); err != nil {
		return false, apperr.Database("select kot item", err)
	}
	if !found {
		return false, apperr.NotFound("kot item", itemID)
	}
	return false, nil
}

// buildKOTQuery renders the kitchen display query for filter.
func buildKOTQuery(filter models.KOTFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if filter.OutletID != "" {
		args = append(args, filter.OutletID)
		where = append(where, fmt.Sprintf("outlet_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.CreatedGTE != nil {
		args = append(args, *filter.CreatedGTE)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	var b strings.Builder
	b.WriteString(ListKOTsSQL)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}

	dir := "ASC"
	if filter.Desc {
		dir = "DESC"
	}
	switch filter.OrderBy {
	case models.KOTOrderByPriority:
		fmt.Fprintf(&b, " ORDER BY CASE priority WHEN 'URGENT' THEN 10 WHEN 'HIGH' THEN 5 WHEN 'NORMAL' THEN 3 ELSE 1 END %s,", dir)
	case models.KOTOrderByEstimation:
		fmt.Fprintf(&b, " ORDER BY estimated_completion_time %s,", dir)
	default:
		b.WriteString(" ORDER BY")
	}
	fmt.Fprintf(&b, " created_at %s, kot_number %s", dir, dir)

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}

func (r *repo) ListKOTs(ctx context.Context, filter models.KOTFilter) ([]*models.KOT, error) {
	query, args := buildKOTQuery(filter)
	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Database("select kots", err)
	}
	kots, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.KOT, error) {
		return scanKOT(row)
	})
	if err != nil {
		return nil, apperr.Database("scan kots", err)
	}
	if len(kots) == 0 {
		return kots, nil
	}

	ids := make([]string, len(kots))
	byID := make(map[string]*models.KOT, len(kots))
	for i, k := range kots {
		ids[i] = k.ID
		byID[k.ID] = k
	}
	rows, err = r.tx.Query(ctx, `
		SELECT id, kot_id, order_item_id, menu_item_id, name, quantity, special_instructions, status
		FROM kot_items WHERE kot_id = ANY($1) ORDER BY kot_id, position ASC`, ids)
	if err != nil {
		return nil, apperr.Database("select kot items", err)
	}
	items, err := pgx.CollectRows(rows, scanKOTItem)
	if err != nil {
		return nil, apperr.Database("scan kot items", err)
	}
	for _, item := range items {
		k := byID[item.KOTID]
		k.Items = append(k.Items, item)
	}
	return kots, nil
}

// Tables

func scanTable(row pgx.Row) (*models.Table, error) {
	var t models.Table
	err := row.Scan(&t.ID, &t.OutletID, &t.TableNumber, &t.Capacity, &t.Section, &t.Status, &t.CurrentOrderID,
		&t.PartySize, &t.OccupiedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func duplicateTable(t *models.Table) error {
	return apperr.FieldValidation("table_number", "table %s already exists in outlet %s", t.TableNumber, t.OutletID)
}

func (r *repo) CreateTable(ctx context.Context, t *models.Table) error {
	_, err := r.tx.Exec(ctx, InsertTableSQL, t.ID, t.OutletID, t.TableNumber, t.Capacity, t.Section,
		string(t.Status), t.CurrentOrderID, t.PartySize, t.OccupiedAt, t.CreatedAt, t.UpdatedAt)
	if isUniqueViolation(err, tableNumberConstraint) {
		return duplicateTable(t)
	}
	if err != nil {
		return apperr.Database("insert table", err)
	}
	return nil
}

func (r *repo) GetTable(ctx context.Context, id string) (*models.Table, error) {
	t, err := scanTable(r.tx.QueryRow(ctx, GetTableSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("table", id)
	}
	if err != nil {
		return nil, apperr.Database("select table", err)
	}
	return t, nil
}

func (r *repo) ListTables(ctx context.Context, outletID string, status *models.TableStatus) ([]*models.Table, error) {
	var statusArg *string
	if status != nil {
		s := string(*status)
		statusArg = &s
	}
	rows, err := r.tx.Query(ctx, ListTablesSQL, outletID, statusArg)
	if err != nil {
		return nil, apperr.Database("select tables", err)
	}
	tables, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Table, error) {
		return scanTable(row)
	})
	if err != nil {
		return nil, apperr.Database("scan tables", err)
	}
	return tables, nil
}

func (r *repo) UpdateTable(ctx context.Context, t *models.Table, expect models.TableStatus) (bool, error) {
	tag, err := r.tx.Exec(ctx, UpdateTableSQL, t.ID, string(expect), t.TableNumber, t.Capacity, t.Section,
		string(t.Status), t.CurrentOrderID, t.PartySize, t.OccupiedAt, t.UpdatedAt)
	if isUniqueViolation(err, tableNumberConstraint) {
		return false, duplicateTable(t)
	}
	if err != nil {
		return false, apperr.Database("update table", err)
	}
	return r.guarded(ctx, tag, "dining_tables", "table", t.ID)
}

func (r *repo) DeleteTable(ctx context.Context, id string) error {
	tag, err := r.tx.Exec(ctx, DeleteTableSQL, id)
	if err != nil {
		return apperr.Database("delete table", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("table", id)
	}
	return nil
}

func (r *repo) NextSequence(ctx context.Context, outletID string, kind identifier.Kind, day time.Time) (int64, error) {
	var n int64
	if err := r.tx.QueryRow(ctx, NextSequenceSQL, outletID, string(kind), day).Scan(&n); err != nil {
		return 0, apperr.Database("next sequence", err)
	}
	return n, nil
}
