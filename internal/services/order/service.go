// Package order is the order ledger: it prices, numbers and persists orders,
// drives their status machine and keeps their status history.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"restaurant-pos/internal/apperr"
	"restaurant-pos/internal/auth"
	"restaurant-pos/internal/identifier"
	"restaurant-pos/internal/logger"
	"restaurant-pos/internal/models"
	"restaurant-pos/internal/pricing"
	"restaurant-pos/internal/splitter"
	"restaurant-pos/internal/store"
)

// Notifier publishes status changes. Delivery is best effort.
type Notifier interface {
	PublishNotification(ctx context.Context, msg *models.StatusUpdateMessage) error
}

// ItemRequest is one requested line. Name and unit price are only read when
// the service has no catalog.
type ItemRequest struct {
	MenuItemID          string           `json:"menu_item_id"`
	Name                string           `json:"name"`
	Quantity            int              `json:"quantity"`
	UnitPrice           *decimal.Decimal `json:"unit_price,omitempty"`
	SpecialInstructions *string          `json:"special_instructions,omitempty"`
}

// CreateOrderRequest is the input of CreateOrder.
type CreateOrderRequest struct {
	OutletID   string        `json:"outlet_id"`
	TableID    *string       `json:"table_id,omitempty"`
	CustomerID *string       `json:"customer_id,omitempty"`
	OrderType  string        `json:"order_type"`
	Items      []ItemRequest `json:"items"`
	Notes      *string       `json:"notes,omitempty"`
}

// UpdateStatusRequest is the input of UpdateOrderStatus.
type UpdateStatusRequest struct {
	Status string  `json:"status"`
	Notes  *string `json:"notes,omitempty"`
}

// SplitRequest asks for payable fragments of an order.
type SplitRequest struct {
	SplitType      string            `json:"split_type"`
	NumberOfSplits int               `json:"number_of_splits,omitempty"`
	Groups         [][]string        `json:"groups,omitempty"`
	Amounts        []decimal.Decimal `json:"amounts,omitempty"`
}

// SplitResult lists the fragments of an order. Fragments are not persisted.
type SplitResult struct {
	OrderID     string           `json:"order_id"`
	OrderNumber string           `json:"order_number"`
	SplitType   models.SplitType `json:"split_type"`
	Total       decimal.Decimal  `json:"total"`
	Splits      []splitter.Split `json:"splits"`
}

// Service implements the order ledger.
type Service struct {
	store    store.Store
	catalog  store.Catalog
	rates    pricing.RatePolicy
	issuer   *identifier.Issuer
	notifier Notifier
	logger   *logger.Logger
	now      func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithCatalog resolves item names and prices from the menu.
func WithCatalog(c store.Catalog) Option {
	return func(s *Service) { s.catalog = c }
}

// WithNotifier publishes order status changes.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new order service
func NewService(st store.Store, rates pricing.RatePolicy, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		store:  st,
		rates:  rates,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.issuer = identifier.NewIssuer(st, s.now)
	return s
}

// CreateOrder prices and numbers a new order and seats it at its table.
func (s *Service) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*models.Order, error) {
	requestID := logger.RequestIDFromContext(ctx)

	orderType, err := validateCreateOrder(req, s.catalog != nil)
	if err != nil {
		return nil, err
	}

	id, err := auth.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	orderID := uuid.NewString()
	items, err := s.resolveItems(ctx, orderID, req)
	if err != nil {
		return nil, err
	}

	taxRate, err := s.rates.TaxRate(ctx, req.OutletID)
	if err != nil {
		return nil, err
	}
	lines := make([]pricing.Line, len(items))
	for i, item := range items {
		lines[i] = pricing.Line{UnitPrice: item.UnitPrice, Quantity: item.Quantity}
	}
	totals, err := pricing.CalculateTotals(lines, taxRate)
	if err != nil {
		return nil, err
	}

	number, err := s.issuer.OrderNumber(ctx, req.OutletID)
	if err != nil {
		return nil, apperr.Database("issue order number", err)
	}

	now := s.now()
	o := &models.Order{
		ID:            orderID,
		OutletID:      req.OutletID,
		OrderNumber:   number,
		TableID:       req.TableID,
		CustomerID:    req.CustomerID,
		OrderType:     orderType,
		Items:         items,
		Subtotal:      totals.Subtotal,
		Tax:           totals.Tax,
		Total:         totals.Total,
		Status:        models.OrderPending,
		PaymentStatus: models.PaymentPending,
		Notes:         req.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.store.WithTx(ctx, func(tx store.Repository) error {
		var table *models.Table
		if o.TableID != nil {
			t, err := seatable(ctx, tx, *o.TableID, o.OutletID)
			if err != nil {
				return err
			}
			table = t
		}

		if err := tx.CreateOrder(ctx, o); err != nil {
			return err
		}
		initial := "order created"
		if err := tx.AppendStatusLog(ctx, models.OrderStatusLog{
			OrderID:   o.ID,
			Status:    models.OrderPending,
			ChangedBy: id.Actor(),
			ChangedAt: now,
			Notes:     &initial,
		}); err != nil {
			return err
		}

		if table == nil {
			return nil
		}
		expect := table.Status
		table.Status = models.TableOccupied
		table.CurrentOrderID = &o.ID
		if table.OccupiedAt == nil {
			table.OccupiedAt = &now
		}
		table.UpdatedAt = now
		ok, err := tx.UpdateTable(ctx, table, expect)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.FieldValidation("table_id", "table %s changed concurrently", table.TableNumber)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("order_creation_failed", "Failed to create order", requestID, err, map[string]any{
			"outlet_id":  req.OutletID,
			"order_type": req.OrderType,
		})
		return nil, err
	}

	s.logger.Info("order_created", "Order created", requestID, map[string]any{
		"order_number": o.OrderNumber,
		"total":        o.Total.StringFixed(pricing.Places),
		"items":        len(o.Items),
	})
	return o, nil
}

// seatable loads a table that can take a new order: same outlet, and either
// free or occupied without an active order.
// The table row stays locked until tx ends so concurrent orders cannot both
// take it.
func seatable(ctx context.Context, tx store.Repository, tableID, outletID string) (*models.Table, error) {
	if err := tx.LockTable(ctx, tableID); err != nil {
		if apperr.IsNotFound(err) {
			return nil, apperr.FieldValidation("table_id", "table %s does not exist", tableID)
		}
		return nil, err
	}
	table, err := tx.GetTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if table.OutletID != outletID {
		return nil, apperr.FieldValidation("table_id", "table %s belongs to another outlet", table.TableNumber)
	}

	switch table.Status {
	case models.TableAvailable:
		return table, nil
	case models.TableOccupied:
		if table.CurrentOrderID == nil {
			return table, nil
		}
		current, err := tx.GetOrder(ctx, *table.CurrentOrderID)
		if err != nil && !apperr.IsNotFound(err) {
			return nil, err
		}
		if current != nil && current.IsActive() {
			return nil, apperr.FieldValidation("table_id", "table %s already has active order %s",
				table.TableNumber, current.OrderNumber).WithMetadata("current_order_id", current.ID)
		}
		return table, nil
	default:
		return nil, apperr.FieldValidation("table_id", "table %s is %s", table.TableNumber, table.Status)
	}
}

func (s *Service) resolveItems(ctx context.Context, orderID string, req *CreateOrderRequest) ([]models.OrderItem, error) {
	items := make([]models.OrderItem, len(req.Items))
	for i, in := range req.Items {
		name := in.Name
		var price decimal.Decimal
		if in.UnitPrice != nil {
			price = *in.UnitPrice
		}

		if s.catalog != nil {
			menuItem, err := s.catalog.LookupMenuItem(ctx, req.OutletID, in.MenuItemID)
			if apperr.IsNotFound(err) {
				return nil, apperr.FieldValidation(indexedField(i, "menu_item_id"), "unknown menu item %s", in.MenuItemID)
			}
			if err != nil {
				return nil, err
			}
			if !menuItem.Available {
				return nil, apperr.FieldValidation(indexedField(i, "menu_item_id"), "%s is not available", menuItem.Name)
			}
			name, price = menuItem.Name, menuItem.Price
		}

		items[i] = models.OrderItem{
			ID:                  uuid.NewString(),
			OrderID:             orderID,
			MenuItemID:          in.MenuItemID,
			Name:                name,
			Quantity:            in.Quantity,
			UnitPrice:           price,
			TotalPrice:          pricing.LineTotal(price, in.Quantity),
			SpecialInstructions: in.SpecialInstructions,
			Status:              models.ItemPending,
		}
	}
	return items, nil
}

// GetOrder returns an order with its items.
func (s *Service) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return s.store.GetOrder(ctx, id)
}

// UpdateOrderStatus moves an order along its status machine.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, req *UpdateStatusRequest) (*models.Order, error) {
	requestID := logger.RequestIDFromContext(ctx)

	next, err := models.ParseOrderStatus(req.Status)
	if err != nil {
		return nil, apperr.FieldValidation("status", "%v", err)
	}
	if next == models.OrderMerged {
		return nil, apperr.FieldValidation("status", "MERGED is only reachable through a table merge")
	}

	id, err := auth.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	var (
		updated  *models.Order
		previous models.OrderStatus
	)
	now := s.now()
	err = s.store.WithTx(ctx, func(tx store.Repository) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		previous = o.Status

		if !o.Status.CanTransitionTo(next) {
			return apperr.Validation("cannot change order %s from %s to %s", o.OrderNumber, o.Status, next).
				WithMetadata("current_status", string(o.Status))
		}
		if next == models.OrderCancelled && o.PaymentStatus == models.PaymentPaid {
			return apperr.Validation("order %s is paid and cannot be cancelled", o.OrderNumber)
		}

		ok, err := tx.UpdateOrderStatus(ctx, o.ID, o.Status, next, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Validation("order %s was changed concurrently", o.OrderNumber)
		}
		if err := tx.AppendStatusLog(ctx, models.OrderStatusLog{
			OrderID:   o.ID,
			Status:    next,
			ChangedBy: id.Actor(),
			ChangedAt: now,
			Notes:     req.Notes,
		}); err != nil {
			return err
		}

		o.Status = next
		o.UpdatedAt = now
		if next == models.OrderCancelled {
			if err := cancelOrder(ctx, tx, o, now); err != nil {
				return err
			}
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order_status_updated", "Order status updated", requestID, map[string]any{
		"order_number": updated.OrderNumber,
		"old_status":   previous,
		"new_status":   next,
	})
	s.notify(ctx, models.NewStatusUpdateMessage(id.TenantID, models.EntityOrder, updated.OrderNumber,
		string(previous), string(next), id.Actor(), nil))
	return updated, nil
}

// cancelOrder voids the pending payment and frees the order's table.
func cancelOrder(ctx context.Context, tx store.Repository, o *models.Order, now time.Time) error {
	if o.PaymentStatus == models.PaymentPending {
		ok, err := tx.SetOrderPaymentStatus(ctx, o.ID, models.PaymentCancelled, nil, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Validation("order %s was paid concurrently", o.OrderNumber)
		}
		o.PaymentStatus = models.PaymentCancelled
	}

	if o.TableID == nil {
		return nil
	}
	table, err := tx.GetTable(ctx, *o.TableID)
	if apperr.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if table.CurrentOrderID == nil || *table.CurrentOrderID != o.ID {
		return nil
	}
	table.CurrentOrderID = nil
	table.UpdatedAt = now
	ok, err := tx.UpdateTable(ctx, table, table.Status)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Validation("table %s changed concurrently", table.TableNumber)
	}
	return nil
}

// SplitOrder computes payable fragments of an order without persisting them.
func (s *Service) SplitOrder(ctx context.Context, orderID string, req *SplitRequest) (*SplitResult, error) {
	splitType, err := validateSplitRequest(req)
	if err != nil {
		return nil, err
	}

	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status == models.OrderCancelled || o.Status == models.OrderMerged {
		return nil, apperr.Validation("order %s is %s", o.OrderNumber, o.Status)
	}

	target := splitter.OrderTarget(o)
	var splits []splitter.Split
	switch splitType {
	case models.SplitEqual:
		splits, err = splitter.Equal(target, req.NumberOfSplits)
	case models.SplitByItems:
		splits, err = splitter.ByItems(target, req.Groups)
	case models.SplitByAmount:
		splits, err = splitter.ByAmount(target, req.Amounts)
	}
	if err != nil {
		return nil, err
	}

	return &SplitResult{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		SplitType:   splitType,
		Total:       o.Total,
		Splits:      splits,
	}, nil
}

// GetOrderHistory returns the status log of an order, oldest first.
func (s *Service) GetOrderHistory(ctx context.Context, orderID string) ([]models.OrderStatusLog, error) {
	if _, err := s.store.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.store.ListStatusLog(ctx, orderID)
}

func (s *Service) notify(ctx context.Context, msg *models.StatusUpdateMessage) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishNotification(ctx, msg); err != nil {
		s.logger.Warn("notification_publish_failed", "Failed to publish status notification",
			logger.RequestIDFromContext(ctx), map[string]any{
				"entity": msg.Entity,
				"number": msg.Number,
				"error":  err.Error(),
			})
	}
}

func indexedField(index int, name string) string {
	return fmt.Sprintf("items[%d].%s", index, name)
}
