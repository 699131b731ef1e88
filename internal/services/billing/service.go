// Package billing turns orders into bills, splits them among payers, records
// payments and issues invoices and receipts.
package billing

import (
	"context"
	"fmt"
	"regexp"
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
	"restaurant-pos/internal/splitter"
	"restaurant-pos/internal/store"
)

const (
	maxPayments        = 20
	maxReferenceLength = 100
	defaultTaxName     = "Tax"
)

var cardLast4Pattern = regexp.MustCompile(`^[0-9]{4}$`)

// Notifier publishes status changes. Delivery is best effort.
type Notifier interface {
	PublishNotification(ctx context.Context, msg *models.StatusUpdateMessage) error
}

// DiscountRequest is a discount applied when a bill is generated.
type DiscountRequest struct {
	Name  string          `json:"name"`
	Type  string          `json:"type"`
	Value decimal.Decimal `json:"value"`
}

// TaxRequest overrides the default tax line of a bill.
type TaxRequest struct {
	Name string          `json:"name"`
	Rate decimal.Decimal `json:"rate"`
}

// GenerateBillRequest is the input of GenerateBill. Absent taxes and service
// charge fall back to the outlet's configured rates.
type GenerateBillRequest struct {
	Discounts         []DiscountRequest `json:"discounts,omitempty"`
	ServiceChargeRate *decimal.Decimal  `json:"service_charge_rate,omitempty"`
	Taxes             []TaxRequest      `json:"taxes,omitempty"`
}

// SplitBillRequest selects one of the split strategies.
type SplitBillRequest struct {
	SplitType      string            `json:"split_type"`
	NumberOfSplits int               `json:"number_of_splits,omitempty"`
	Amounts        []decimal.Decimal `json:"amounts,omitempty"`
	Groups         [][]string        `json:"groups,omitempty"`
}

// SplitBillResult is the split parent and its new child bills.
type SplitBillResult struct {
	Parent   *models.Bill   `json:"parent"`
	Children []*models.Bill `json:"children"`
}

// PaymentRequest is one tender of a payment.
type PaymentRequest struct {
	Method       string          `json:"method"`
	Amount       decimal.Decimal `json:"amount"`
	Reference    *string         `json:"reference,omitempty"`
	CardLast4    *string         `json:"card_last4,omitempty"`
	ApprovalCode *string         `json:"approval_code,omitempty"`
}

// ProcessPaymentRequest settles an order or a bill with one or more tenders.
type ProcessPaymentRequest struct {
	Payments []PaymentRequest `json:"payments"`
}

// PaymentResult is the outcome of a successful payment.
type PaymentResult struct {
	Order    *models.Order    `json:"order,omitempty"`
	Bill     *models.Bill     `json:"bill,omitempty"`
	Invoice  *models.Invoice  `json:"invoice"`
	Payments []models.Payment `json:"payments"`
}

// Service implements the payment processor.
type Service struct {
	store    store.Store
	rates    pricing.RatePolicy
	issuer   *identifier.Issuer
	notifier Notifier
	logger   *logger.Logger
	now      func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithNotifier publishes payment notifications.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new billing service
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

// GenerateBill prices the order's items with discounts, service charge and
// taxes into a new root bill.
func (s *Service) GenerateBill(ctx context.Context, orderID string, req *GenerateBillRequest) (*models.Bill, error) {
	requestID := logger.RequestIDFromContext(ctx)

	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := payable(o); err != nil {
		return nil, err
	}

	in := pricing.BillInput{Subtotal: decimal.Zero}
	items := make([]models.BillItem, len(o.Items))
	for i, item := range o.Items {
		items[i] = models.BillItem{
			OrderItemID: item.ID,
			MenuItemID:  item.MenuItemID,
			Name:        item.Name,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TotalPrice:  item.TotalPrice,
		}
		in.Subtotal = in.Subtotal.Add(item.TotalPrice)
	}

	for i, d := range req.Discounts {
		kind, err := models.ParseDiscountKind(d.Type)
		if err != nil {
			return nil, apperr.FieldValidation(fmt.Sprintf("discounts[%d].type", i), "%v", err)
		}
		in.Discounts = append(in.Discounts, pricing.Discount{Name: strings.TrimSpace(d.Name), Kind: kind, Value: d.Value})
	}

	if req.ServiceChargeRate != nil {
		in.ServiceChargeRate = *req.ServiceChargeRate
	} else if in.ServiceChargeRate, err = s.rates.ServiceChargeRate(ctx, o.OutletID); err != nil {
		return nil, err
	}

	if len(req.Taxes) > 0 {
		for i, t := range req.Taxes {
			name := strings.TrimSpace(t.Name)
			if name == "" {
				return nil, apperr.FieldValidation(fmt.Sprintf("taxes[%d].name", i), "tax name is required")
			}
			in.Taxes = append(in.Taxes, pricing.TaxRate{Name: name, Rate: t.Rate})
		}
	} else {
		rate, err := s.rates.TaxRate(ctx, o.OutletID)
		if err != nil {
			return nil, err
		}
		in.Taxes = []pricing.TaxRate{{Name: defaultTaxName, Rate: rate}}
	}

	totals, err := pricing.CalculateBill(in)
	if err != nil {
		return nil, err
	}

	b := &models.Bill{
		ID:                uuid.NewString(),
		OrderID:           o.ID,
		OutletID:          o.OutletID,
		OrderNumber:       o.OrderNumber,
		Items:             items,
		Subtotal:          totals.Subtotal,
		Discounts:         totals.Discounts,
		ServiceChargeRate: in.ServiceChargeRate,
		ServiceCharge:     totals.ServiceCharge,
		Taxes:             totals.Taxes,
		Total:             totals.Total,
		PaymentStatus:     models.PaymentPending,
		CreatedAt:         s.now(),
	}
	if err := s.store.CreateBill(ctx, b); err != nil {
		s.logger.Error("bill_creation_failed", "Failed to store bill", requestID, err, map[string]any{
			"order_number": o.OrderNumber,
		})
		return nil, err
	}

	s.logger.Info("bill_generated", "Bill generated", requestID, map[string]any{
		"order_number": o.OrderNumber,
		"total":        b.Total.StringFixed(pricing.Places),
	})
	return b, nil
}

func (s *Service) GetBill(ctx context.Context, id string) (*models.Bill, error) {
	return s.store.GetBill(ctx, id)
}

// SplitBill dispatches on the requested split type.
func (s *Service) SplitBill(ctx context.Context, billID string, req *SplitBillRequest) (*SplitBillResult, error) {
	switch models.SplitType(strings.ToUpper(strings.TrimSpace(req.SplitType))) {
	case models.SplitEqual:
		return s.SplitBillEqual(ctx, billID, req.NumberOfSplits)
	case models.SplitByAmount:
		return s.SplitBillByAmount(ctx, billID, req.Amounts)
	case models.SplitByItems:
		return s.SplitBillByItems(ctx, billID, req.Groups)
	}
	return nil, apperr.FieldValidation("split_type", "split_type must be one of: EQUAL, BY_AMOUNT, BY_ITEMS")
}

// SplitBillEqual splits a bill into n equal child bills.
func (s *Service) SplitBillEqual(ctx context.Context, billID string, n int) (*SplitBillResult, error) {
	return s.split(ctx, billID, models.SplitEqual, func(t splitter.Target) ([]splitter.Split, error) {
		return splitter.Equal(t, n)
	})
}

// SplitBillByAmount splits a bill into child bills of the given amounts.
func (s *Service) SplitBillByAmount(ctx context.Context, billID string, amounts []decimal.Decimal) (*SplitBillResult, error) {
	return s.split(ctx, billID, models.SplitByAmount, func(t splitter.Target) ([]splitter.Split, error) {
		return splitter.ByAmount(t, amounts)
	})
}

// SplitBillByItems splits a bill by groups of order item ids.
func (s *Service) SplitBillByItems(ctx context.Context, billID string, groups [][]string) (*SplitBillResult, error) {
	return s.split(ctx, billID, models.SplitByItems, func(t splitter.Target) ([]splitter.Split, error) {
		return splitter.ByItems(t, groups)
	})
}

func (s *Service) split(ctx context.Context, billID string, kind models.SplitType,
	fn func(splitter.Target) ([]splitter.Split, error)) (*SplitBillResult, error) {
	requestID := logger.RequestIDFromContext(ctx)

	result := &SplitBillResult{}
	err := s.store.WithTx(ctx, func(tx store.Repository) error {
		if err := tx.LockBill(ctx, billID); err != nil {
			return err
		}
		parent, err := tx.GetBill(ctx, billID)
		if err != nil {
			return err
		}
		if !parent.IsRoot() {
			return apperr.Validation("bill %s is itself a split and cannot be split again", parent.ID)
		}
		if parent.IsSplit {
			return apperr.Validation("bill %s has already been split", parent.ID)
		}

		splits, err := fn(splitter.BillTarget(parent))
		if err != nil {
			return err
		}

		now := s.now()
		for _, sp := range splits {
			child := childBill(parent, sp, kind, now)
			if err := tx.CreateBill(ctx, child); err != nil {
				return err
			}
			result.Children = append(result.Children, child)
		}

		ok, err := tx.MarkBillSplit(ctx, parent.ID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Validation("bill %s was changed concurrently", parent.ID)
		}
		parent.IsSplit = true
		result.Parent = parent
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("bill_split", "Bill split", requestID, map[string]any{
		"bill_id":    billID,
		"split_type": kind,
		"splits":     len(result.Children),
	})
	return result, nil
}

// childBill turns a split fragment into a payable bill. Item snapshots are
// copied only for item splits.
func childBill(parent *models.Bill, sp splitter.Split, kind models.SplitType, now time.Time) *models.Bill {
	splitType := kind
	child := &models.Bill{
		ID:            uuid.NewString(),
		OrderID:       parent.OrderID,
		OutletID:      parent.OutletID,
		OrderNumber:   parent.OrderNumber,
		ParentBillID:  &parent.ID,
		SplitNumber:   sp.SplitNumber,
		SplitType:     &splitType,
		Subtotal:      sp.Subtotal,
		ServiceCharge: sp.ServiceCharge,
		Total:         sp.Amount,
		PaymentStatus: models.PaymentPending,
		CreatedAt:     now,
	}
	if !sp.ServiceCharge.IsZero() {
		child.ServiceChargeRate = parent.ServiceChargeRate
	}

	if len(sp.ItemIDs) > 0 {
		wanted := make(map[string]bool, len(sp.ItemIDs))
		for _, id := range sp.ItemIDs {
			wanted[id] = true
		}
		for _, item := range parent.Items {
			if wanted[item.OrderItemID] {
				child.Items = append(child.Items, item)
			}
		}
	}

	rates := make(map[string]decimal.Decimal, len(parent.Taxes))
	for _, t := range parent.Taxes {
		rates[t.Name] = t.Rate
	}
	for _, t := range sp.Taxes {
		child.Taxes = append(child.Taxes, models.BillTax{Name: t.Name, Rate: rates[t.Name], Amount: t.Amount})
	}
	if !sp.Discount.IsZero() {
		child.Discounts = []models.BillDiscount{{
			Name:   "Discount share",
			Kind:   models.DiscountFixed,
			Value:  sp.Discount,
			Amount: sp.Discount,
		}}
	}
	return child
}

// ProcessOrderPayment settles an order directly, without a bill.
func (s *Service) ProcessOrderPayment(ctx context.Context, orderID string, req *ProcessPaymentRequest) (*PaymentResult, error) {
	requestID := logger.RequestIDFromContext(ctx)

	tenders, sum, err := validatePayments(req.Payments)
	if err != nil {
		return nil, err
	}
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := payable(o); err != nil {
		return nil, err
	}
	if err := matchesDue(sum, o.Total); err != nil {
		return nil, err
	}

	number, err := s.issuer.InvoiceNumber(ctx, o.OutletID, o.OrderNumber)
	if err != nil {
		return nil, apperr.Database("issue invoice number", err)
	}

	now := s.now()
	result := &PaymentResult{}
	err = s.store.WithTx(ctx, func(tx store.Repository) error {
		if err := tx.LockOrder(ctx, o.ID); err != nil {
			return err
		}
		if err := uncollected(ctx, tx, o, nil); err != nil {
			return err
		}

		ok, err := tx.SetOrderPaymentStatus(ctx, o.ID, models.PaymentPaid, &number, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Validation("order %s already paid", o.OrderNumber)
		}

		payments := buildPayments(tenders, o.ID, nil, now)
		if err := tx.CreatePayments(ctx, payments); err != nil {
			return err
		}
		inv := &models.Invoice{
			ID:            uuid.NewString(),
			InvoiceNumber: number,
			OutletID:      o.OutletID,
			OrderID:       o.ID,
			Amount:        o.Total,
			IssuedAt:      now,
		}
		if err := tx.CreateInvoice(ctx, inv); err != nil {
			return err
		}

		if result.Order, err = tx.GetOrder(ctx, o.ID); err != nil {
			return err
		}
		result.Invoice = inv
		result.Payments = payments
		return nil
	})
	if err != nil {
		s.logger.Error("payment_failed", "Failed to process order payment", requestID, err, map[string]any{
			"order_number": o.OrderNumber,
		})
		return nil, err
	}

	s.logger.Info("payment_processed", "Order paid", requestID, map[string]any{
		"order_number":   o.OrderNumber,
		"invoice_number": number,
		"amount":         o.Total.StringFixed(pricing.Places),
		"tenders":        len(tenders),
	})
	s.notify(ctx, o.OrderNumber)
	return result, nil
}

// ProcessBillPayment settles a root bill or one child of a split. Paying the
// last open child also settles the parent bill and the order.
func (s *Service) ProcessBillPayment(ctx context.Context, billID string, req *ProcessPaymentRequest) (*PaymentResult, error) {
	requestID := logger.RequestIDFromContext(ctx)

	tenders, sum, err := validatePayments(req.Payments)
	if err != nil {
		return nil, err
	}
	b, err := s.store.GetBill(ctx, billID)
	if err != nil {
		return nil, err
	}
	if b.PaymentStatus == models.PaymentPaid {
		return nil, apperr.Validation("bill %s already paid", b.ID)
	}
	if b.IsSplit {
		return nil, apperr.Validation("bill %s has been split; pay its split bills instead", b.ID)
	}
	o, err := s.store.GetOrder(ctx, b.OrderID)
	if err != nil {
		return nil, err
	}
	if err := payable(o); err != nil {
		return nil, err
	}
	if err := matchesDue(sum, b.Total); err != nil {
		return nil, err
	}

	number, err := s.issuer.InvoiceNumber(ctx, b.OutletID, b.OrderNumber)
	if err != nil {
		return nil, apperr.Database("issue invoice number", err)
	}

	now := s.now()
	result := &PaymentResult{}
	settled := false
	err = s.store.WithTx(ctx, func(tx store.Repository) error {
		if err := tx.LockOrder(ctx, b.OrderID); err != nil {
			return err
		}
		current, err := tx.GetOrder(ctx, b.OrderID)
		if err != nil {
			return err
		}
		if err := payable(current); err != nil {
			return err
		}

		var siblings []*models.Bill
		if !b.IsRoot() {
			if err := tx.LockBill(ctx, *b.ParentBillID); err != nil {
				return err
			}
			if siblings, err = tx.ListChildBills(ctx, *b.ParentBillID); err != nil {
				return err
			}
		}
		if err := uncollected(ctx, tx, current, siblings); err != nil {
			return err
		}

		ok, err := tx.MarkBillPaid(ctx, b.ID, &number, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Validation("bill %s already paid", b.ID)
		}

		payments := buildPayments(tenders, b.OrderID, &b.ID, now)
		if err := tx.CreatePayments(ctx, payments); err != nil {
			return err
		}
		inv := &models.Invoice{
			ID:            uuid.NewString(),
			InvoiceNumber: number,
			OutletID:      b.OutletID,
			OrderID:       b.OrderID,
			BillID:        &b.ID,
			Amount:        b.Total,
			IssuedAt:      now,
		}
		if err := tx.CreateInvoice(ctx, inv); err != nil {
			return err
		}

		settleOrder := b.IsRoot()
		if !b.IsRoot() {
			if siblings, err = tx.ListChildBills(ctx, *b.ParentBillID); err != nil {
				return err
			}
			settleOrder = allPaid(siblings)
			if settleOrder {
				ok, err := tx.MarkBillPaid(ctx, *b.ParentBillID, &number, now)
				if err != nil {
					return err
				}
				if !ok {
					return apperr.Validation("bill %s already paid", *b.ParentBillID)
				}
			}
		}
		if settleOrder {
			ok, err := tx.SetOrderPaymentStatus(ctx, b.OrderID, models.PaymentPaid, &number, now)
			if err != nil {
				return err
			}
			if !ok {
				return apperr.Validation("order %s is no longer payable", b.OrderNumber)
			}
		}
		settled = settleOrder

		if result.Bill, err = tx.GetBill(ctx, b.ID); err != nil {
			return err
		}
		result.Invoice = inv
		result.Payments = payments
		return nil
	})
	if err != nil {
		s.logger.Error("payment_failed", "Failed to process bill payment", requestID, err, map[string]any{
			"bill_id":      b.ID,
			"order_number": b.OrderNumber,
		})
		return nil, err
	}

	s.logger.Info("payment_processed", "Bill paid", requestID, map[string]any{
		"bill_id":        b.ID,
		"split_number":   b.SplitNumber,
		"invoice_number": number,
		"amount":         b.Total.StringFixed(pricing.Places),
		"order_settled":  settled,
	})
	if settled {
		s.notify(ctx, b.OrderNumber)
	}
	return result, nil
}

// uncollected rejects a payment while the order already has money captured
// outside the given split bills, so nothing is charged twice.
func uncollected(ctx context.Context, tx store.Repository, o *models.Order, siblings []*models.Bill) error {
	captured, err := tx.ListPaymentsByOrder(ctx, o.ID)
	if err != nil {
		return err
	}
	allowed := make(map[string]bool, len(siblings))
	for _, b := range siblings {
		allowed[b.ID] = true
	}

	amount := decimal.Zero
	count := 0
	for _, p := range captured {
		if p.BillID != nil && allowed[*p.BillID] {
			continue
		}
		amount = amount.Add(p.Amount)
		count++
	}
	if count == 0 {
		return nil
	}
	return apperr.Validation("order %s already has %s captured on other bills; pay its remaining split bills instead",
		o.OrderNumber, amount.StringFixed(pricing.Places)).
		WithMetadata("captured", amount.StringFixed(pricing.Places))
}

func allPaid(bills []*models.Bill) bool {
	for _, b := range bills {
		if b.PaymentStatus != models.PaymentPaid {
			return false
		}
	}
	return len(bills) > 0
}

// payable rejects orders that can no longer take a bill or a payment.
func payable(o *models.Order) error {
	switch {
	case o.PaymentStatus == models.PaymentPaid:
		return apperr.Validation("order %s already paid", o.OrderNumber)
	case o.Status == models.OrderCancelled || o.Status == models.OrderMerged:
		return apperr.Validation("order %s is %s", o.OrderNumber, o.Status).
			WithMetadata("order_status", string(o.Status))
	case !o.IsPayable():
		return apperr.Validation("order %s is not payable", o.OrderNumber)
	}
	return nil
}

type tender struct {
	method       models.PaymentMethod
	amount       decimal.Decimal
	reference    *string
	cardLast4    *string
	approvalCode *string
}

func validatePayments(reqs []PaymentRequest) ([]tender, decimal.Decimal, error) {
	if len(reqs) == 0 {
		return nil, decimal.Zero, apperr.FieldValidation("payments", "at least one payment is required")
	}
	if len(reqs) > maxPayments {
		return nil, decimal.Zero, apperr.FieldValidation("payments", "at most %d payments are allowed", maxPayments)
	}

	sum := decimal.Zero
	tenders := make([]tender, len(reqs))
	for i, p := range reqs {
		field := func(name string) string { return fmt.Sprintf("payments[%d].%s", i, name) }

		method, err := models.ParsePaymentMethod(p.Method)
		if err != nil {
			return nil, decimal.Zero, apperr.FieldValidation(field("method"), "%v", err)
		}
		if !p.Amount.IsPositive() {
			return nil, decimal.Zero, apperr.FieldValidation(field("amount"), "amount must be greater than 0")
		}
		if p.CardLast4 != nil && !cardLast4Pattern.MatchString(*p.CardLast4) {
			return nil, decimal.Zero, apperr.FieldValidation(field("card_last4"), "card_last4 must be exactly 4 digits")
		}
		if p.Reference != nil && len(*p.Reference) > maxReferenceLength {
			return nil, decimal.Zero, apperr.FieldValidation(field("reference"), "reference must be at most %d characters", maxReferenceLength)
		}

		amount := pricing.Round(p.Amount)
		tenders[i] = tender{
			method:       method,
			amount:       amount,
			reference:    p.Reference,
			cardLast4:    p.CardLast4,
			approvalCode: p.ApprovalCode,
		}
		sum = sum.Add(amount)
	}
	return tenders, sum, nil
}

func matchesDue(sum, due decimal.Decimal) error {
	if sum.Sub(due).Abs().GreaterThan(splitter.Tolerance) {
		return apperr.FieldValidation("payments", "payments total %s does not match amount due %s",
			sum.StringFixed(pricing.Places), due.StringFixed(pricing.Places)).
			WithMetadata("payment_total", sum.StringFixed(pricing.Places)).
			WithMetadata("amount_due", due.StringFixed(pricing.Places))
	}
	return nil
}

func buildPayments(tenders []tender, orderID string, billID *string, now time.Time) []models.Payment {
	payments := make([]models.Payment, len(tenders))
	for i, t := range tenders {
		payments[i] = models.Payment{
			ID:           uuid.NewString(),
			OrderID:      orderID,
			BillID:       billID,
			Method:       t.method,
			Amount:       t.amount,
			Reference:    t.reference,
			CardLast4:    t.cardLast4,
			ApprovalCode: t.approvalCode,
			Status:       models.PaymentCaptured,
			ProcessedAt:  now,
		}
	}
	return payments
}

func (s *Service) notify(ctx context.Context, orderNumber string) {
	if s.notifier == nil {
		return
	}
	id, _ := auth.FromContext(ctx)
	msg := models.NewStatusUpdateMessage(id.TenantID, models.EntityPayment, orderNumber,
		string(models.PaymentPending), string(models.PaymentPaid), id.Actor(), nil)
	if err := s.notifier.PublishNotification(ctx, msg); err != nil {
		s.logger.Warn("notification_publish_failed", "Failed to publish payment notification",
			logger.RequestIDFromContext(ctx), map[string]any{
				"order_number": orderNumber,
				"error":        err.Error(),
			})
	}
}
