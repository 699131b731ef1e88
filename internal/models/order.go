package models

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderType represents the type of an order
type OrderType string

const (
	DineIn   OrderType = "DINE_IN"
	Takeaway OrderType = "TAKEAWAY"
	Delivery OrderType = "DELIVERY"
)

// ParseOrderType validates s against the known order types.
func ParseOrderType(s string) (OrderType, error) {
	switch t := OrderType(strings.ToUpper(strings.TrimSpace(s))); t {
	case DineIn, Takeaway, Delivery:
		return t, nil
	}
	return "", fmt.Errorf("order_type must be one of: DINE_IN, TAKEAWAY, DELIVERY")
}

// OrderStatus represents the status of an order
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderConfirmed OrderStatus = "CONFIRMED"
	OrderPreparing OrderStatus = "PREPARING"
	OrderReady     OrderStatus = "READY"
	OrderServed    OrderStatus = "SERVED"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderMerged    OrderStatus = "MERGED"
)

// orderTransitions lists the statuses reachable from each non-terminal status
// through UpdateOrderStatus. MERGED is only reached through a table merge.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:   {OrderConfirmed, OrderCancelled},
	OrderConfirmed: {OrderPreparing, OrderCancelled},
	OrderPreparing: {OrderReady, OrderCancelled},
	OrderReady:     {OrderServed, OrderCancelled},
}

// ParseOrderStatus validates s against the order status vocabulary.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case OrderPending, OrderConfirmed, OrderPreparing, OrderReady, OrderServed, OrderCancelled, OrderMerged:
		return st, nil
	}
	return "", fmt.Errorf("status must be one of: PENDING, CONFIRMED, PREPARING, READY, SERVED, CANCELLED, MERGED")
}

// IsTerminal reports whether no further transition is allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderServed || s == OrderCancelled || s == OrderMerged
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, candidate := range orderTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// PaymentStatus tracks settlement of an order or bill.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentPaid      PaymentStatus = "PAID"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

// ItemStatus is the preparation status shared by order items, KOT items and KOTs.
type ItemStatus string

const (
	ItemPending    ItemStatus = "PENDING"
	ItemInProgress ItemStatus = "IN_PROGRESS"
	ItemReady      ItemStatus = "READY"
	ItemServed     ItemStatus = "SERVED"
	ItemCancelled  ItemStatus = "CANCELLED"
)

var itemStatusRank = map[ItemStatus]int{
	ItemPending:    0,
	ItemInProgress: 1,
	ItemReady:      2,
	ItemServed:     3,
}

// ParseItemStatus validates s against the preparation status vocabulary.
func ParseItemStatus(s string) (ItemStatus, error) {
	switch st := ItemStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case ItemPending, ItemInProgress, ItemReady, ItemServed, ItemCancelled:
		return st, nil
	}
	return "", fmt.Errorf("status must be one of: PENDING, IN_PROGRESS, READY, SERVED, CANCELLED")
}

// IsTerminal reports whether the preparation is finished one way or the other.
func (s ItemStatus) IsTerminal() bool {
	return s == ItemServed || s == ItemCancelled
}

// CanAdvanceTo reports whether an item may move from s to next. Items only move
// forward through PENDING, IN_PROGRESS, READY, SERVED (steps may be skipped) and
// may be cancelled at any point before they are served.
func (s ItemStatus) CanAdvanceTo(next ItemStatus) bool {
	if s.IsTerminal() || s == next {
		return false
	}
	if next == ItemCancelled {
		return true
	}
	return itemStatusRank[next] > itemStatusRank[s]
}

// OrderItem represents an item in an order, snapshotted at order time.
type OrderItem struct {
	ID                  string          `json:"id"`
	OrderID             string          `json:"order_id"`
	MenuItemID          string          `json:"menu_item_id"`
	Name                string          `json:"name"`
	Quantity            int             `json:"quantity"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	TotalPrice          decimal.Decimal `json:"total_price"`
	SpecialInstructions *string         `json:"special_instructions,omitempty"`
	Status              ItemStatus      `json:"status"`
}

// Order represents a customer order
type Order struct {
	ID            string          `json:"id"`
	OutletID      string          `json:"outlet_id"`
	OrderNumber   string          `json:"order_number"`
	TableID       *string         `json:"table_id,omitempty"`
	CustomerID    *string         `json:"customer_id,omitempty"`
	OrderType     OrderType       `json:"order_type"`
	Items         []OrderItem     `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	Status        OrderStatus     `json:"status"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	InvoiceNumber *string         `json:"invoice_number,omitempty"`
	Notes         *string         `json:"notes,omitempty"`
	MergedInto    *string         `json:"merged_into,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
}

// IsActive reports whether the order still occupies its table: not finished and not settled.
func (o *Order) IsActive() bool {
	return !o.Status.IsTerminal() && o.PaymentStatus == PaymentPending
}

// IsPayable reports whether a payment may still be captured against the order.
func (o *Order) IsPayable() bool {
	return o.PaymentStatus == PaymentPending && o.Status != OrderCancelled && o.Status != OrderMerged
}

// OrderStatusLog is an entry in the order status history.
type OrderStatusLog struct {
	OrderID   string      `json:"order_id"`
	Status    OrderStatus `json:"status"`
	ChangedBy string      `json:"changed_by"`
	ChangedAt time.Time   `json:"changed_at"`
	Notes     *string     `json:"notes,omitempty"`
}

// maxOutletCode bounds the outlet tag kept verbatim in identifiers.
const maxOutletCode = 12

// OutletCode derives the outlet tag embedded in identifiers. Short
// alphanumeric ids are kept as they are; anything else is shortened and
// suffixed with a hash of the full id so distinct outlets never share a code.
func OutletCode(outletID string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(outletID) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	code := b.String()
	if code != "" && len(code) == len(outletID) && len(code) <= maxOutletCode {
		return code
	}

	h := fnv.New32a()
	h.Write([]byte(outletID))
	if len(code) > 6 {
		code = code[:6]
	}
	if code == "" {
		code = "OUT"
	}
	return fmt.Sprintf("%s%04X", code, h.Sum32()&0xffff)
}
