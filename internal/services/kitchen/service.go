// Package kitchen dispatches kitchen order tickets (KOTs): it derives them
// from orders, routes them to kitchen printers and tracks their preparation.
package kitchen

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"restaurant-pos/internal/apperr"
	"restaurant-pos/internal/auth"
	"restaurant-pos/internal/identifier"
	"restaurant-pos/internal/logger"
	"restaurant-pos/internal/models"
	"restaurant-pos/internal/store"
)

const (
	prepTimePerItem = 15 * time.Minute
	minPrepTime     = 15 * time.Minute

	defaultDisplayLimit = 50
	maxDisplayLimit     = 200
	maxAssigneeLength   = 100
)

// Publisher routes tickets to the kitchen and status changes to subscribers.
// Delivery is best effort.
type Publisher interface {
	PublishTicket(ctx context.Context, msg *models.KitchenTicketMessage) error
	PublishNotification(ctx context.Context, msg *models.StatusUpdateMessage) error
}

// GenerateKOTRequest is the input of GenerateKOT.
type GenerateKOTRequest struct {
	Priority string  `json:"priority,omitempty"`
	Notes    *string `json:"notes,omitempty"`
}

// UpdateStatusRequest changes the status of a ticket or of one of its items.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// AssignRequest hands a ticket to a cook or station.
type AssignRequest struct {
	AssignedTo string `json:"assigned_to"`
}

// PreparationTimeRequest moves the estimated completion time.
type PreparationTimeRequest struct {
	EstimatedCompletionTime time.Time `json:"estimated_completion_time"`
}

// DisplayFilter selects the tickets shown on a kitchen display.
type DisplayFilter struct {
	OutletID string
	Status   string
	OrderBy  string
	Desc     bool
	Limit    int
}

// OverdueKOT is a ticket past its estimated completion time.
type OverdueKOT struct {
	*models.KOT
	OverdueBy        time.Duration `json:"-"`
	OverdueByMinutes int           `json:"overdue_by_minutes"`
}

// Service implements the kitchen ticket dispatcher.
type Service struct {
	store     store.Store
	issuer    *identifier.Issuer
	publisher Publisher
	logger    *logger.Logger
	now       func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithPublisher routes tickets and notifications through p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new kitchen service
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

// GenerateKOT derives a ticket from the live items of an order, stores it and
// sends it to the kitchen.
func (s *Service) GenerateKOT(ctx context.Context, orderID string, req *GenerateKOTRequest) (*models.KOT, error) {
	requestID := logger.RequestIDFromContext(ctx)

	priority, err := models.ParseKOTPriority(req.Priority)
	if err != nil {
		return nil, apperr.FieldValidation("priority", "%v", err)
	}
	id, err := auth.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status == models.OrderCancelled || o.Status == models.OrderMerged {
		return nil, apperr.Validation("cannot generate a KOT for %s order %s", o.Status, o.OrderNumber).
			WithMetadata("order_status", string(o.Status))
	}

	kotID := uuid.NewString()
	var (
		items    []models.KOTItem
		quantity int
	)
	for _, item := range o.Items {
		if item.Status == models.ItemCancelled {
			continue
		}
		items = append(items, models.KOTItem{
			ID:                  uuid.NewString(),
			KOTID:               kotID,
			OrderItemID:         item.ID,
			MenuItemID:          item.MenuItemID,
			Name:                item.Name,
			Quantity:            item.Quantity,
			SpecialInstructions: item.SpecialInstructions,
			Status:              models.ItemPending,
		})
		quantity += item.Quantity
	}
	if len(items) == 0 {
		return nil, apperr.Validation("order %s has no items to prepare", o.OrderNumber)
	}

	number, err := s.issuer.KOTNumber(ctx, o.OutletID, o.OrderNumber)
	if err != nil {
		return nil, apperr.Database("issue kot number", err)
	}

	now := s.now()
	k := &models.KOT{
		ID:                      kotID,
		KOTNumber:               number,
		OutletID:                o.OutletID,
		OrderID:                 o.ID,
		OrderNumber:             o.OrderNumber,
		TableID:                 o.TableID,
		OrderType:               o.OrderType,
		Items:                   items,
		Priority:                priority,
		Status:                  models.ItemPending,
		Notes:                   req.Notes,
		EstimatedCompletionTime: now.Add(estimate(quantity)),
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if err := s.store.CreateKOT(ctx, k); err != nil {
		s.logger.Error("kot_creation_failed", "Failed to store KOT", requestID, err, map[string]any{
			"order_number": o.OrderNumber,
		})
		return nil, err
	}

	s.logger.Info("kot_created", "KOT created", requestID, map[string]any{
		"kot_number": k.KOTNumber,
		"priority":   k.Priority,
		"items":      len(k.Items),
	})

	if s.publisher != nil {
		if err := s.publisher.PublishTicket(ctx, models.NewKitchenTicketMessage(id.TenantID, k)); err != nil {
			s.logger.Warn("kot_publish_failed", "Failed to route KOT to the kitchen", requestID, map[string]any{
				"kot_number": k.KOTNumber,
				"error":      err.Error(),
			})
		}
	}
	return k, nil
}

// estimate is the preparation time of quantity portions.
func estimate(quantity int) time.Duration {
	d := time.Duration(quantity) * prepTimePerItem
	if d < minPrepTime {
		return minPrepTime
	}
	return d
}

func (s *Service) GetKOT(ctx context.Context, id string) (*models.KOT, error) {
	return s.store.GetKOT(ctx, id)
}

// UpdateKOTStatus sets the ticket status and carries the change to every item
// that can still follow it.
func (s *Service) UpdateKOTStatus(ctx context.Context, id string, req *UpdateStatusRequest) (*models.KOT, error) {
	next, err := models.ParseItemStatus(req.Status)
	if err != nil {
		return nil, apperr.FieldValidation("status", "%v", err)
	}

	var (
		updated  *models.KOT
		previous models.ItemStatus
	)
	err = s.store.WithTx(ctx, func(tx store.Repository) error {
		k, err := tx.GetKOT(ctx, id)
		if err != nil {
			return err
		}
		previous = k.Status
		if k.Status.IsTerminal() {
			return apperr.Validation("KOT %s is already %s", k.KOTNumber, k.Status).
				WithMetadata("current_status", string(k.Status))
		}
		if k.Status == next {
			return apperr.FieldValidation("status", "KOT %s is already %s", k.KOTNumber, next)
		}

		for i, item := range k.Items {
			if !item.Status.CanAdvanceTo(next) {
				continue
			}
			ok, err := tx.UpdateKOTItemStatus(ctx, k.ID, item.ID, item.Status, next)
			if err != nil {
				return err
			}
			if !ok {
				return apperr.Validation("KOT %s was changed concurrently", k.KOTNumber)
			}
			k.Items[i].Status = next
		}

		if err := s.setStatus(ctx, tx, k, next); err != nil {
			return err
		}
		updated = k
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, updated, previous)
	return updated, nil
}

// UpdateKOTItemStatus advances one item and rolls the ticket status up from
// its items.
func (s *Service) UpdateKOTItemStatus(ctx context.Context, kotID, itemID string, req *UpdateStatusRequest) (*models.KOT, error) {
	next, err := models.ParseItemStatus(req.Status)
	if err != nil {
		return nil, apperr.FieldValidation("status", "%v", err)
	}

	var (
		updated  *models.KOT
		previous models.ItemStatus
	)
	err = s.store.WithTx(ctx, func(tx store.Repository) error {
		k, err := tx.GetKOT(ctx, kotID)
		if err != nil {
			return err
		}
		previous = k.Status

		index := -1
		for i := range k.Items {
			if k.Items[i].ID == itemID {
				index = i
				break
			}
		}
		if index < 0 {
			return apperr.NotFound("kot item", itemID)
		}
		item := k.Items[index]
		if !item.Status.CanAdvanceTo(next) {
			return apperr.Validation("cannot move item %s from %s to %s", item.Name, item.Status, next).
				WithMetadata("current_status", string(item.Status))
		}
		ok, err := tx.UpdateKOTItemStatus(ctx, k.ID, item.ID, item.Status, next)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Validation("item %s was changed concurrently", item.Name)
		}
		k.Items[index].Status = next

		if rolled := rollUp(k.Items); k.Status.CanAdvanceTo(rolled) {
			if err := s.setStatus(ctx, tx, k, rolled); err != nil {
				return err
			}
		}
		updated = k
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, updated, previous)
	return updated, nil
}

// rollUp derives a ticket status from its items: cancelled items are ignored
// and the least advanced live item decides.
func rollUp(items []models.KOTItem) models.ItemStatus {
	status := models.ItemCancelled
	for _, item := range items {
		if item.Status == models.ItemCancelled {
			continue
		}
		if status == models.ItemCancelled || rank(item.Status) < rank(status) {
			status = item.Status
		}
	}
	return status
}

func rank(s models.ItemStatus) int {
	switch s {
	case models.ItemPending:
		return 0
	case models.ItemInProgress:
		return 1
	case models.ItemReady:
		return 2
	default:
		return 3
	}
}

// setStatus writes the ticket with its status timestamps stamped.
func (s *Service) setStatus(ctx context.Context, tx store.Repository, k *models.KOT, next models.ItemStatus) error {
	expect := k.Status
	now := s.now()
	switch next {
	case models.ItemInProgress:
		if k.StartedAt == nil {
			k.StartedAt = &now
		}
	case models.ItemReady, models.ItemServed:
		if k.StartedAt == nil {
			k.StartedAt = &now
		}
		if k.CompletedAt == nil {
			k.CompletedAt = &now
		}
	}
	k.Status = next
	k.UpdatedAt = now
	return s.write(ctx, tx, k, expect)
}

// AssignKOT records who prepares the ticket.
func (s *Service) AssignKOT(ctx context.Context, id string, req *AssignRequest) (*models.KOT, error) {
	assignee := strings.TrimSpace(req.AssignedTo)
	if assignee == "" {
		return nil, apperr.FieldValidation("assigned_to", "assigned_to is required")
	}
	if len(assignee) > maxAssigneeLength {
		return nil, apperr.FieldValidation("assigned_to", "assigned_to must be at most %d characters", maxAssigneeLength)
	}

	var updated *models.KOT
	err := s.store.WithTx(ctx, func(tx store.Repository) error {
		k, err := tx.GetKOT(ctx, id)
		if err != nil {
			return err
		}
		if k.Status.IsTerminal() {
			return apperr.Validation("KOT %s is already %s", k.KOTNumber, k.Status)
		}
		k.AssignedTo = &assignee
		k.UpdatedAt = s.now()
		if err := s.write(ctx, tx, k, k.Status); err != nil {
			return err
		}
		updated = k
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("kot_assigned", "KOT assigned", logger.RequestIDFromContext(ctx), map[string]any{
		"kot_number":  updated.KOTNumber,
		"assigned_to": assignee,
	})
	return updated, nil
}

// UpdatePreparationTime moves the estimated completion time of an open ticket.
func (s *Service) UpdatePreparationTime(ctx context.Context, id string, req *PreparationTimeRequest) (*models.KOT, error) {
	if !req.EstimatedCompletionTime.After(s.now()) {
		return nil, apperr.FieldValidation("estimated_completion_time", "estimated completion time must be in the future")
	}

	var updated *models.KOT
	err := s.store.WithTx(ctx, func(tx store.Repository) error {
		k, err := tx.GetKOT(ctx, id)
		if err != nil {
			return err
		}
		if k.Status.IsTerminal() || k.Status == models.ItemReady {
			return apperr.Validation("KOT %s is already %s", k.KOTNumber, k.Status)
		}
		k.EstimatedCompletionTime = req.EstimatedCompletionTime.UTC()
		k.UpdatedAt = s.now()
		if err := s.write(ctx, tx, k, k.Status); err != nil {
			return err
		}
		updated = k
		return nil
	})
	return updated, err
}

// GetKitchenDisplay lists tickets matching the filter for a kitchen screen.
func (s *Service) GetKitchenDisplay(ctx context.Context, f DisplayFilter) ([]*models.KOT, error) {
	filter := models.KOTFilter{OutletID: f.OutletID, Desc: f.Desc}
	if f.Status != "" {
		st, err := models.ParseItemStatus(f.Status)
		if err != nil {
			return nil, apperr.FieldValidation("status", "%v", err)
		}
		filter.Statuses = []models.ItemStatus{st}
	}

	orderBy, err := models.ParseKOTOrderBy(f.OrderBy)
	if err != nil {
		return nil, apperr.FieldValidation("order_by", "%v", err)
	}
	filter.OrderBy = orderBy

	switch {
	case f.Limit == 0:
		filter.Limit = defaultDisplayLimit
	case f.Limit < 0 || f.Limit > maxDisplayLimit:
		return nil, apperr.FieldValidation("limit", "limit must be between 1 and %d", maxDisplayLimit)
	default:
		filter.Limit = f.Limit
	}

	return s.store.ListKOTs(ctx, filter)
}

// GetOverdueKOTs lists tickets neither served nor cancelled past their
// estimated completion time, most overdue first.
func (s *Service) GetOverdueKOTs(ctx context.Context, outletID string) ([]OverdueKOT, error) {
	kots, err := s.store.ListKOTs(ctx, models.KOTFilter{
		OutletID: outletID,
		Statuses: models.ActiveKOTStatuses,
		OrderBy:  models.KOTOrderByEstimation,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]OverdueKOT, 0, len(kots))
	for _, k := range kots {
		if !k.EstimatedCompletionTime.Before(now) {
			continue
		}
		late := now.Sub(k.EstimatedCompletionTime)
		out = append(out, OverdueKOT{KOT: k, OverdueBy: late, OverdueByMinutes: int(late.Minutes())})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OverdueBy > out[j].OverdueBy })
	return out, nil
}

// GetStatistics summarises the tickets created since the given time, which
// defaults to the start of the current day.
func (s *Service) GetStatistics(ctx context.Context, outletID string, since *time.Time) (*models.KitchenStatistics, error) {
	now := s.now()
	from := now.Truncate(24 * time.Hour)
	if since != nil {
		from = since.UTC()
	}

	kots, err := s.store.ListKOTs(ctx, models.KOTFilter{OutletID: outletID, CreatedGTE: &from})
	if err != nil {
		return nil, err
	}

	stats := &models.KitchenStatistics{
		OutletID: outletID,
		Since:    from,
		ByStatus: map[models.ItemStatus]int{
			models.ItemPending:    0,
			models.ItemInProgress: 0,
			models.ItemReady:      0,
			models.ItemServed:     0,
			models.ItemCancelled:  0,
		},
	}
	var (
		prepTotal time.Duration
		prepCount int
	)
	for _, k := range kots {
		stats.TotalKOTs++
		stats.ByStatus[k.Status]++
		if !k.Status.IsTerminal() && k.EstimatedCompletionTime.Before(now) {
			stats.Overdue++
		}
		if k.CompletedAt != nil {
			started := k.CreatedAt
			if k.StartedAt != nil {
				started = *k.StartedAt
			}
			prepTotal += k.CompletedAt.Sub(started)
			prepCount++
		}
	}
	if prepCount > 0 {
		avg := prepTotal / time.Duration(prepCount)
		stats.AveragePreparationMinutes = float64(avg.Round(time.Second)) / float64(time.Minute)
	}
	return stats, nil
}

func (s *Service) write(ctx context.Context, tx store.Repository, k *models.KOT, expect models.ItemStatus) error {
	ok, err := tx.UpdateKOT(ctx, k, expect)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Validation("KOT %s was changed concurrently", k.KOTNumber)
	}
	return nil
}

func (s *Service) notify(ctx context.Context, k *models.KOT, previous models.ItemStatus) {
	if s.publisher == nil || k.Status == previous {
		return
	}
	id, _ := auth.FromContext(ctx)
	var est *time.Time
	if !k.Status.IsTerminal() && k.Status != models.ItemReady {
		est = &k.EstimatedCompletionTime
	}
	msg := models.NewStatusUpdateMessage(id.TenantID, models.EntityKOT, k.KOTNumber,
		string(previous), string(k.Status), id.Actor(), est)
	if err := s.publisher.PublishNotification(ctx, msg); err != nil {
		s.logger.Warn("notification_publish_failed", "Failed to publish KOT notification",
			logger.RequestIDFromContext(ctx), map[string]any{
				"kot_number": k.KOTNumber,
				"error":      err.Error(),
			})
	}
}
