package kitchen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"restaurant-pos/internal/logger"
	"restaurant-pos/internal/messaging"
	"restaurant-pos/internal/models"
)

// replaySubscriber hands every body to the handler once and then returns.
type replaySubscriber struct {
	bodies [][]byte
	errs   []error
}

func (s *replaySubscriber) StartConsuming(ctx context.Context, handler messaging.MessageHandler) error {
	for _, body := range s.bodies {
		s.errs = append(s.errs, handler(ctx, body))
	}
	return nil
}

func ticket(orderType models.OrderType, priority models.KOTPriority) *models.KitchenTicketMessage {
	return &models.KitchenTicketMessage{
		Tenant:      "acme",
		KOTNumber:   "KOT-20261015-0001-ORD-MAIN-20261015-0001",
		OrderNumber: "ORD-MAIN-20261015-0001",
		OutletID:    "main",
		OrderType:   orderType,
		TableID:     strPtr("T-7"),
		Items: []models.KOTItem{
			{Name: "Margherita", Quantity: 2, SpecialInstructions: strPtr("no basil")},
			{Name: "Tiramisu", Quantity: 1},
		},
		Priority:                priority,
		Notes:                   strPtr("birthday"),
		EstimatedCompletionTime: fixedNow.Add(30 * time.Minute),
	}
}

func TestRenderTicket(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderTicket(&buf, ticket(models.DineIn, models.PriorityUrgent)); err != nil {
		t.Fatalf("RenderTicket: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"KOT-20261015-0001-ORD-MAIN-20261015-0001",
		"Order: ORD-MAIN-20261015-0001  DINE_IN",
		"Table: T-7",
		"*** URGENT ***",
		"Ready by: 12:30",
		"  2 x Margherita",
		"      > no basil",
		"  1 x Tiramisu",
		"Notes: birthday",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("ticket missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	RenderTicket(&buf, ticket(models.Takeaway, models.PriorityNormal))
	if strings.Contains(buf.String(), "***") {
		t.Errorf("normal priority ticket flagged:\n%s", buf.String())
	}
}

func TestPrinterHandlesOwnStationOnly(t *testing.T) {
	dineIn, _ := json.Marshal(ticket(models.DineIn, models.PriorityNormal))
	delivery, _ := json.Marshal(ticket(models.Delivery, models.PriorityHigh))

	sub := &replaySubscriber{bodies: [][]byte{dineIn, delivery, []byte("{not json")}}
	var out bytes.Buffer
	log := logger.NewWithWriter("test", io.Discard, slog.LevelError)
	p := NewPrinter("hot-line", []models.OrderType{models.DineIn}, 0, sub, &out, log)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(sub.errs) != 3 {
		t.Fatalf("handled %d messages", len(sub.errs))
	}
	if sub.errs[0] != nil {
		t.Errorf("dine-in ticket: %v", sub.errs[0])
	}
	if sub.errs[1] == nil || errors.Is(sub.errs[1], messaging.ErrPoison) {
		t.Errorf("delivery ticket should be refused for requeue, got %v", sub.errs[1])
	}
	if !errors.Is(sub.errs[2], messaging.ErrPoison) {
		t.Errorf("malformed ticket should be poison, got %v", sub.errs[2])
	}
	if got := strings.Count(out.String(), "Margherita"); got != 1 {
		t.Errorf("printed %d tickets, want 1", got)
	}
	if p.printed.Load() != 1 {
		t.Errorf("printed counter = %d", p.printed.Load())
	}
}
