// Package store defines the tenant-scoped persistence gateway consumed by the services.
//
// Every method resolves the tenant from the auth.Identity carried by ctx.
// Implementations return apperr NotFound for unknown ids and wrap every other
// failure as apperr Database. Conditional updates report false when the guard
// no longer holds; callers decide what that means.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"restaurant-pos/internal/identifier"
	"restaurant-pos/internal/models"
)

// Orders persists orders, their items and their status history.
type Orders interface {
	// CreateOrder inserts the order row and every item.
	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	// LockOrder holds the order until the surrounding transaction ends.
	LockOrder(ctx context.Context, id string) error
	ListOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error)
	// UpdateOrderStatus moves the order from one status to another.
	UpdateOrderStatus(ctx context.Context, id string, from, to models.OrderStatus, at time.Time) (bool, error)
	// SetOrderPaymentStatus moves payment status away from PENDING.
	SetOrderPaymentStatus(ctx context.Context, id string, to models.PaymentStatus, invoiceNumber *string, at time.Time) (bool, error)
	ListPayableOrdersByTables(ctx context.Context, tableIDs []string) ([]*models.Order, error)
	// MarkOrderMerged sets MERGED/CANCELLED on a payable order and records the survivor.
	MarkOrderMerged(ctx context.Context, id, mergedInto string, at time.Time) (bool, error)
	AppendStatusLog(ctx context.Context, entry models.OrderStatusLog) error
	ListStatusLog(ctx context.Context, orderID string) ([]models.OrderStatusLog, error)
}

// Bills persists bills and their lines.
type Bills interface {
	CreateBill(ctx context.Context, b *models.Bill) error
	GetBill(ctx context.Context, id string) (*models.Bill, error)
	ListChildBills(ctx context.Context, parentID string) ([]*models.Bill, error)
	// LockBill holds the bill until the surrounding transaction ends.
	LockBill(ctx context.Context, id string) error
	// MarkBillSplit flags an unpaid, unsplit bill as split.
	MarkBillSplit(ctx context.Context, id string) (bool, error)
	// MarkBillPaid moves an unpaid bill to PAID.
	MarkBillPaid(ctx context.Context, id string, invoiceNumber *string, at time.Time) (bool, error)
}

// Payments persists captured payments and invoices.
type Payments interface {
	CreatePayments(ctx context.Context, payments []models.Payment) error
	ListPaymentsByOrder(ctx context.Context, orderID string) ([]models.Payment, error)
	ListPaymentsByBill(ctx context.Context, billID string) ([]models.Payment, error)
	CreateInvoice(ctx context.Context, inv *models.Invoice) error
}

// Kitchen persists kitchen order tickets.
type Kitchen interface {
	CreateKOT(ctx context.Context, k *models.KOT) error
	GetKOT(ctx context.Context, id string) (*models.KOT, error)
	// UpdateKOT writes status, assignment, estimate and timestamps while the
	// stored status still equals expect.
	UpdateKOT(ctx context.Context, k *models.KOT, expect models.ItemStatus) (bool, error)
	UpdateKOTItemStatus(ctx context.Context, kotID, itemID string, from, to models.ItemStatus) (bool, error)
	ListKOTs(ctx context.Context, filter models.KOTFilter) ([]*models.KOT, error)
}

// Tables persists physical tables.
type Tables interface {
	CreateTable(ctx context.Context, t *models.Table) error
	GetTable(ctx context.Context, id string) (*models.Table, error)
	// LockTable holds the table until the surrounding transaction ends.
	LockTable(ctx context.Context, id string) error
	ListTables(ctx context.Context, outletID string, status *models.TableStatus) ([]*models.Table, error)
	// UpdateTable writes every mutable column while the stored status still equals expect.
	UpdateTable(ctx context.Context, t *models.Table, expect models.TableStatus) (bool, error)
	DeleteTable(ctx context.Context, id string) error
}

// Repository is the full set of tenant-scoped operations.
type Repository interface {
	Orders
	Bills
	Payments
	Kitchen
	Tables
	identifier.Sequencer
}

// Store is a Repository that can run several operations atomically.
type Store interface {
	Repository
	// WithTx runs fn inside one transaction; fn's writes commit only if it returns nil.
	WithTx(ctx context.Context, fn func(tx Repository) error) error
	Ping(ctx context.Context) error
}

// Catalog resolves menu items at order time.
type Catalog interface {
	LookupMenuItem(ctx context.Context, outletID, menuItemID string) (*MenuItem, error)
}

// MenuItem is the catalog view the core needs.
type MenuItem struct {
	ID        string
	Name      string
	Price     decimal.Decimal
	Available bool
}
