// Package table coordinates the physical state of tables: seating, release,
// cleaning and the merge of several tables' orders into one.
package table

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"restaurant-pos/internal/apperr"
	"restaurant-pos/internal/auth"
	"restaurant-pos/internal/identifier"
	"restaurant-pos/internal/logger"
	"restaurant-pos/internal/models"
	"restaurant-pos/internal/pricing"
	"restaurant-pos/internal/store"
)

const (
	maxCapacity     = 100
	maxNumberLength = 20
	maxMergeTables  = 10
)

// Notifier publishes status changes. Delivery is best effort.
type Notifier interface {
	PublishNotification(ctx context.Context, msg *models.StatusUpdateMessage) error
}

// CreateTableRequest is the input of CreateTable.
type CreateTableRequest struct {
	OutletID    string  `json:"outlet_id"`
	TableNumber string  `json:"table_number"`
	Capacity    int     `json:"capacity"`
	Section     *string `json:"section,omitempty"`
}

// UpdateTableRequest changes the descriptive fields of a table.
type UpdateTableRequest struct {
	TableNumber *string `json:"table_number,omitempty"`
	Capacity    *int    `json:"capacity,omitempty"`
	Section     *string `json:"section,omitempty"`
}

// AssignTableRequest seats a party, optionally bound to an existing order.
type AssignTableRequest struct {
	PartySize *int    `json:"party_size,omitempty"`
	OrderID   *string `json:"order_id,omitempty"`
}

// MergeTablesRequest merges the payable orders of several tables. The first
// table keeps the merged order.
type MergeTablesRequest struct {
	TableIDs []string `json:"table_ids"`
	Notes    *string  `json:"notes,omitempty"`
}

// MergeResult is the outcome of MergeTables.
type MergeResult struct {
	Order        *models.Order   `json:"order"`
	MergedOrders []string        `json:"merged_orders"`
	Tables       []*models.Table `json:"tables"`
}

// Service implements the table coordinator.
type Service struct {
	store    store.Store
	issuer   *identifier.Issuer
	notifier Notifier
	logger   *logger.Logger
	now      func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithNotifier publishes table status changes.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(st store.Store, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		store:  st,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.issuer = identifier.NewIssuer(st, s.now)
	return s
}

func (s *Service) CreateTable(ctx context.Context, req *CreateTableRequest) (*models.Table, error) {
	if strings.TrimSpace(req.OutletID) == "" {
		return nil, apperr.FieldValidation("outlet_id", "outlet id is required")
	}
	number, err := validateNumber(req.TableNumber)
	if err != nil {
		return nil, err
	}
	if err := validateCapacity(req.Capacity); err != nil {
		return nil, err
	}

	now := s.now()
	t := &models.Table{
		ID:          uuid.NewString(),
		OutletID:    req.OutletID,
		TableNumber: number,
		Capacity:    req.Capacity,
		Section:     req.Section,
		Status:      models.TableAvailable,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateTable(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("table_created", "Table created", logger.RequestIDFromContext(ctx), map[string]any{
		"outlet_id":    t.OutletID,
		"table_number": t.TableNumber,
	})
	return t, nil
}

func (s *Service) GetTable(ctx context.Context, id string) (*models.Table, error) {
	return s.store.GetTable(ctx, id)
}

// ListTables lists the tables of an outlet, optionally filtered by status.
func (s *Service) ListTables(ctx context.Context, outletID, status string) ([]*models.Table, error) {
	var filter *models.TableStatus
	if status != "" {
		st, err := models.ParseTableStatus(status)
		if err != nil {
			return nil, apperr.FieldValidation("status", "%v", err)
		}
		filter = &st
	}
	return s.store.ListTables(ctx, outletID, filter)
}

func (s *Service) UpdateTable(ctx context.Context, id string, req *UpdateTableRequest) (*models.Table, error) {
	var updated *models.Table
	err := s.store.WithTx(ctx, func(tx store.Repository) error {
		t, err := tx.GetTable(ctx, id)
		if err != nil {
			return err
		}
		if req.TableNumber != nil {
			if t.TableNumber, err = validateNumber(*req.TableNumber); err != nil {
				return err
			}
		}
		if req.Capacity != nil {
			if err := validateCapacity(*req.Capacity); err != nil {
				return err
			}
			if t.PartySize != nil && *req.Capacity < *t.PartySize {
				return apperr.FieldValidation("capacity", "capacity %d is below the seated party of %d", *req.Capacity, *t.PartySize)
			}
			t.Capacity = *req.Capacity
		}
		if req.Section != nil {
			t.Section = req.Section
		}
		t.UpdatedAt = s.now()
		if err := s.write(ctx, tx, t, t.Status); err != nil {
			return err
		}
		updated = t
		return nil
	})
	return updated, err
}

// DeleteTable removes a table that is not seating anyone.
func (s *Service) DeleteTable(ctx context.Context, id string) error {
	return s.store.WithTx(ctx, func(tx store.Repository) error {
		t, err := tx.GetTable(ctx, id)
		if err != nil {
			return err
		}
		if t.Status == models.TableOccupied {
			return apperr.Validation("table %s is occupied and cannot be deleted", t.TableNumber)
		}
		return tx.DeleteTable(ctx, id)
	})
}

// UpdateTableStatus applies a direct status change. Seating goes through
// AssignTable; leaving OCCUPIED goes through the release rules.
func (s *Service) UpdateTableStatus(ctx context.Context, id, status string) (*models.Table, error) {
	next, err := models.ParseTableStatus(status)
	if err != nil {
		return nil, apperr.FieldValidation("status", "%v", err)
	}
	if next == models.TableOccupied {
		return nil, apperr.FieldValidation("status", "tables become OCCUPIED through assignment")
	}

	var (
		updated  *models.Table
		previous models.TableStatus
	)
	err = s.store.WithTx(ctx, func(tx store.Repository) error {
		t, err := tx.GetTable(ctx, id)
		if err != nil {
			return err
		}
		previous = t.Status
		if !t.Status.CanTransitionTo(next) {
			return apperr.Validation("cannot change table %s from %s to %s", t.TableNumber, t.Status, next).
				WithMetadata("current_status", string(t.Status))
		}
		if t.Status == models.TableOccupied {
			if err := releasable(ctx, tx, t); err != nil {
				return err
			}
			vacate(t)
		}
		t.Status = next
		t.UpdatedAt = s.now()
		if err := s.write(ctx, tx, t, previous); err != nil {
			return err
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifyTable(ctx, updated, previous)
	return updated, nil
}

// AssignTable seats a party at an available table.
func (s *Service) AssignTable(ctx context.Context, id string, req *AssignTableRequest) (*models.Table, error) {
	if req.PartySize != nil && *req.PartySize < 1 {
		return nil, apperr.FieldValidation("party_size", "party size must be at least 1")
	}

	var updated *models.Table
	err := s.store.WithTx(ctx, func(tx store.Repository) error {
		t, err := tx.GetTable(ctx, id)
		if err != nil {
			return err
		}
		if t.Status != models.TableAvailable {
			return apperr.Validation("table %s is %s", t.TableNumber, t.Status).
				WithMetadata("current_status", string(t.Status))
		}
		if req.PartySize != nil && *req.PartySize > t.Capacity {
			return apperr.FieldValidation("party_size", "party of %d exceeds capacity %d of table %s",
				*req.PartySize, t.Capacity, t.TableNumber)
		}
		if req.OrderID != nil {
			o, err := tx.GetOrder(ctx, *req.OrderID)
			if apperr.IsNotFound(err) {
				return apperr.FieldValidation("order_id", "order %s does not exist", *req.OrderID)
			}
			if err != nil {
				return err
			}
			if o.OutletID != t.OutletID {
				return apperr.FieldValidation("order_id", "order %s belongs to another outlet", o.OrderNumber)
			}
			if !o.IsActive() {
				return apperr.FieldValidation("order_id", "order %s is no longer active", o.OrderNumber)
			}
			t.CurrentOrderID = &o.ID
		}

		now := s.now()
		t.Status = models.TableOccupied
		t.PartySize = req.PartySize
		t.OccupiedAt = &now
		t.UpdatedAt = now
		if err := s.write(ctx, tx, t, models.TableAvailable); err != nil {
			return err
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifyTable(ctx, updated, models.TableAvailable)
	return updated, nil
}

// ReleaseTable sends an occupied table to cleaning once its order is settled.
func (s *Service) ReleaseTable(ctx context.Context, id string) (*models.Table, error) {
	var updated *models.Table
	err := s.store.WithTx(ctx, func(tx store.Repository) error {
		t, err := tx.GetTable(ctx, id)
		if err != nil {
			return err
		}
		if t.Status != models.TableOccupied {
			return apperr.Validation("table %s is %s, not OCCUPIED", t.TableNumber, t.Status)
		}
		if err := releasable(ctx, tx, t); err != nil {
			return err
		}
		vacate(t)
		t.Status = models.TableCleaning
		t.UpdatedAt = s.now()
		if err := s.write(ctx, tx, t, models.TableOccupied); err != nil {
			return err
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifyTable(ctx, updated, models.TableOccupied)
	return updated, nil
}

// releasable rejects a release while the table's order is still open or unpaid.
func releasable(ctx context.Context, tx store.Repository, t *models.Table) error {
	if t.CurrentOrderID == nil {
		return nil
	}
	o, err := tx.GetOrder(ctx, *t.CurrentOrderID)
	if apperr.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if o.IsActive() || o.IsPayable() {
		return apperr.Validation("table %s still holds unsettled order %s", t.TableNumber, o.OrderNumber).
			WithMetadata("order_id", o.ID)
	}
	return nil
}

func vacate(t *models.Table) {
	t.CurrentOrderID = nil
	t.PartySize = nil
	t.OccupiedAt = nil
}

// GetStatistics summarises the tables of an outlet.
func (s *Service) GetStatistics(ctx context.Context, outletID string) (*models.TableStatistics, error) {
	if strings.TrimSpace(outletID) == "" {
		return nil, apperr.FieldValidation("outlet_id", "outlet id is required")
	}
	tables, err := s.store.ListTables(ctx, outletID, nil)
	if err != nil {
		return nil, err
	}

	stats := &models.TableStatistics{
		OutletID: outletID,
		ByStatus: map[models.TableStatus]int{
			models.TableAvailable:  0,
			models.TableOccupied:   0,
			models.TableCleaning:   0,
			models.TableReserved:   0,
			models.TableOutOfOrder: 0,
		},
	}
	for _, t := range tables {
		stats.TotalTables++
		stats.TotalCapacity += t.Capacity
		stats.ByStatus[t.Status]++
		if t.Status == models.TableOccupied && t.PartySize != nil {
			stats.SeatedGuests += *t.PartySize
		}
	}
	if stats.TotalTables > 0 {
		rate := decimal.NewFromInt(int64(stats.ByStatus[models.TableOccupied])).
			Div(decimal.NewFromInt(int64(stats.TotalTables))).Round(4)
		stats.OccupancyRate = rate.InexactFloat64()
	}
	return stats, nil
}

// MergeTables consolidates the payable orders seated at several tables into
// one new order on the first table.
func (s *Service) MergeTables(ctx context.Context, req *MergeTablesRequest) (*MergeResult, error) {
	requestID := logger.RequestIDFromContext(ctx)

	ids, err := validateMerge(req.TableIDs)
	if err != nil {
		return nil, err
	}
	id, err := auth.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	primary, err := s.store.GetTable(ctx, ids[0])
	if err != nil {
		return nil, err
	}
	number, err := s.issuer.OrderNumber(ctx, primary.OutletID)
	if err != nil {
		return nil, apperr.Database("issue order number", err)
	}

	result := &MergeResult{}
	err = s.store.WithTx(ctx, func(tx store.Repository) error {
		now := s.now()

		// Lock in id order so overlapping merges cannot deadlock.
		for _, tableID := range slices.Sorted(slices.Values(ids)) {
			if err := tx.LockTable(ctx, tableID); err != nil {
				return err
			}
		}

		tables := make([]*models.Table, len(ids))
		for i, tableID := range ids {
			t, err := tx.GetTable(ctx, tableID)
			if err != nil {
				return err
			}
			if t.OutletID != primary.OutletID {
				return apperr.FieldValidation("table_ids", "table %s belongs to another outlet", t.TableNumber)
			}
			tables[i] = t
		}
		if st := tables[0].Status; st != models.TableOccupied && st != models.TableAvailable {
			return apperr.FieldValidation("table_ids", "primary table %s is %s", tables[0].TableNumber, st)
		}

		originals, err := tx.ListPayableOrdersByTables(ctx, ids)
		if err != nil {
			return err
		}
		if len(originals) == 0 {
			return apperr.Validation("no payable orders on the selected tables")
		}
		for _, o := range originals {
			if err := tx.LockOrder(ctx, o.ID); err != nil {
				return err
			}
			if err := uncaptured(ctx, tx, o); err != nil {
				return err
			}
		}

		merged := combine(originals, number, tables[0], now)
		merged.Notes = req.Notes
		if err := tx.CreateOrder(ctx, merged); err != nil {
			return err
		}
		fromNote := "merged from " + joinNumbers(originals)
		if err := tx.AppendStatusLog(ctx, models.OrderStatusLog{
			OrderID: merged.ID, Status: merged.Status, ChangedBy: id.Actor(), ChangedAt: now, Notes: &fromNote,
		}); err != nil {
			return err
		}

		intoNote := "merged into " + merged.OrderNumber
		for _, o := range originals {
			ok, err := tx.MarkOrderMerged(ctx, o.ID, merged.ID, now)
			if err != nil {
				return err
			}
			if !ok {
				return apperr.Validation("order %s was changed concurrently", o.OrderNumber)
			}
			if err := tx.AppendStatusLog(ctx, models.OrderStatusLog{
				OrderID: o.ID, Status: models.OrderMerged, ChangedBy: id.Actor(), ChangedAt: now, Notes: &intoNote,
			}); err != nil {
				return err
			}
			result.MergedOrders = append(result.MergedOrders, o.OrderNumber)
		}

		partySize := 0
		for _, t := range tables {
			if t.PartySize != nil {
				partySize += *t.PartySize
			}
		}

		for i, t := range tables {
			expect := t.Status
			switch {
			case i == 0:
				t.Status = models.TableOccupied
				t.CurrentOrderID = &merged.ID
				if t.OccupiedAt == nil {
					t.OccupiedAt = &now
				}
				if partySize > 0 {
					t.PartySize = &partySize
				}
			case t.Status == models.TableOccupied:
				vacate(t)
				t.Status = models.TableCleaning
			default:
				continue
			}
			t.UpdatedAt = now
			if err := s.write(ctx, tx, t, expect); err != nil {
				return err
			}
		}

		result.Order = merged
		result.Tables = tables
		return nil
	})
	if err != nil {
		s.logger.Error("table_merge_failed", "Failed to merge tables", requestID, err, map[string]any{
			"table_ids": ids,
		})
		return nil, err
	}

	s.logger.Info("tables_merged", "Tables merged", requestID, map[string]any{
		"order_number":  result.Order.OrderNumber,
		"merged_orders": result.MergedOrders,
		"total":         result.Order.Total.StringFixed(pricing.Places),
	})
	return result, nil
}

// uncaptured rejects merging an order that already has payments captured
// against its split bills; folding its full total into the merged order would
// charge that money again.
func uncaptured(ctx context.Context, tx store.Repository, o *models.Order) error {
	captured, err := tx.ListPaymentsByOrder(ctx, o.ID)
	if err != nil {
		return err
	}
	if len(captured) == 0 {
		return nil
	}
	amount := decimal.Zero
	for _, p := range captured {
		amount = amount.Add(p.Amount)
	}
	return apperr.FieldValidation("table_ids", "order %s already has %s captured on split bills; settle them before merging",
		o.OrderNumber, amount.StringFixed(pricing.Places)).WithMetadata("order_id", o.ID)
}

// combine builds the surviving order. Sums are exact: the originals are
// already rounded, so nothing is re-priced.
func combine(originals []*models.Order, number string, primary *models.Table, now time.Time) *models.Order {
	merged := &models.Order{
		ID:            uuid.NewString(),
		OutletID:      primary.OutletID,
		OrderNumber:   number,
		TableID:       &primary.ID,
		OrderType:     models.DineIn,
		Subtotal:      decimal.Zero,
		Tax:           decimal.Zero,
		Total:         decimal.Zero,
		Status:        originals[0].Status,
		PaymentStatus: models.PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, o := range originals {
		merged.Subtotal = merged.Subtotal.Add(o.Subtotal)
		merged.Tax = merged.Tax.Add(o.Tax)
		merged.Total = merged.Total.Add(o.Total)
		if statusRank(o.Status) < statusRank(merged.Status) {
			merged.Status = o.Status
		}
		if merged.CustomerID == nil {
			merged.CustomerID = o.CustomerID
		}
		for _, item := range o.Items {
			item.ID = uuid.NewString()
			item.OrderID = merged.ID
			merged.Items = append(merged.Items, item)
		}
	}
	return merged
}

// statusRank orders the live statuses so the merged order takes the least
// advanced one.
func statusRank(s models.OrderStatus) int {
	switch s {
	case models.OrderPending:
		return 0
	case models.OrderConfirmed:
		return 1
	case models.OrderPreparing:
		return 2
	case models.OrderReady:
		return 3
	default:
		return 4
	}
}

func joinNumbers(orders []*models.Order) string {
	numbers := make([]string, len(orders))
	for i, o := range orders {
		numbers[i] = o.OrderNumber
	}
	return strings.Join(numbers, ", ")
}

func (s *Service) write(ctx context.Context, tx store.Repository, t *models.Table, expect models.TableStatus) error {
	ok, err := tx.UpdateTable(ctx, t, expect)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Validation("table %s was changed concurrently", t.TableNumber)
	}
	return nil
}

func (s *Service) notifyTable(ctx context.Context, t *models.Table, previous models.TableStatus) {
	if s.notifier == nil || t.Status == previous {
		return
	}
	id, _ := auth.FromContext(ctx)
	msg := models.NewStatusUpdateMessage(id.TenantID, models.EntityTable, t.TableNumber,
		string(previous), string(t.Status), id.Actor(), nil)
	if err := s.notifier.PublishNotification(ctx, msg); err != nil {
		s.logger.Warn("notification_publish_failed", "Failed to publish table notification",
			logger.RequestIDFromContext(ctx), map[string]any{
				"table_number": t.TableNumber,
				"error":        err.Error(),
			})
	}
}

func validateNumber(number string) (string, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return "", apperr.FieldValidation("table_number", "table number is required")
	}
	if len(number) > maxNumberLength {
		return "", apperr.FieldValidation("table_number", "table number must be at most %d characters", maxNumberLength)
	}
	return number, nil
}

func validateCapacity(capacity int) error {
	if capacity < 1 || capacity > maxCapacity {
		return apperr.FieldValidation("capacity", "capacity must be between 1 and %d", maxCapacity)
	}
	return nil
}

func validateMerge(ids []string) ([]string, error) {
	if len(ids) < 2 {
		return nil, apperr.FieldValidation("table_ids", "at least 2 tables are required")
	}
	if len(ids) > maxMergeTables {
		return nil, apperr.FieldValidation("table_ids", "at most %d tables can be merged", maxMergeTables)
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, len(ids))
	for i, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, apperr.FieldValidation(fmt.Sprintf("table_ids[%d]", i), "table id must not be blank")
		}
		if seen[id] {
			return nil, apperr.FieldValidation("table_ids", "table %s is listed twice", id)
		}
		seen[id] = true
		out[i] = id
	}
	return out, nil
}
