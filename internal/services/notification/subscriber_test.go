package notification

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

var stamp = time.Date(2026, 10, 15, 19, 30, 0, 0, time.UTC)

type replayConsumer struct {
	bodies [][]byte
	errs   []error
}

func (c *replayConsumer) StartConsuming(ctx context.Context, handler messaging.MessageHandler) error {
	for _, body := range c.bodies {
		c.errs = append(c.errs, handler(ctx, body))
	}
	return nil
}

func message(entity, number, oldStatus, newStatus string) *models.StatusUpdateMessage {
	return &models.StatusUpdateMessage{
		Tenant:    "acme",
		Entity:    entity,
		Number:    number,
		OldStatus: oldStatus,
		NewStatus: newStatus,
		ChangedBy: "chef-1",
		Timestamp: stamp,
	}
}

func TestFormatNotification(t *testing.T) {
	eta := stamp.Add(20 * time.Minute)
	preparing := message(models.EntityKOT, "KOT-20261015-0001-ORD-MAIN-20261015-0001", "PENDING", "IN_PROGRESS")
	preparing.EstimatedCompletion = &eta
	system := message(models.EntityOrder, "ORD-MAIN-20261015-0002", "", "PENDING")
	system.ChangedBy = ""

	tests := []struct {
		name string
		msg  *models.StatusUpdateMessage
		want string
	}{
		{
			name: "kitchen started",
			msg:  preparing,
			want: "🍳 [2026-10-15 19:30:00] [acme] Ticket KOT-20261015-0001-ORD-MAIN-20261015-0001 is now being prepared by chef-1. Estimated completion: 19:50:00",
		},
		{
			name: "ready",
			msg:  message(models.EntityOrder, "ORD-MAIN-20261015-0001", "PREPARING", "READY"),
			want: "✅ [2026-10-15 19:30:00] [acme] Order ORD-MAIN-20261015-0001 is ready! Prepared by chef-1.",
		},
		{
			name: "paid",
			msg:  message(models.EntityPayment, "ORD-MAIN-20261015-0001", "PENDING", "PAID"),
			want: "💳 [2026-10-15 19:30:00] [acme] Order ORD-MAIN-20261015-0001 has been paid in full. Thank you!",
		},
		{
			name: "merged",
			msg:  message(models.EntityOrder, "ORD-MAIN-20261015-0003", "CONFIRMED", "MERGED"),
			want: "🔗 [2026-10-15 19:30:00] [acme] Order ORD-MAIN-20261015-0003 has been merged into another order.",
		},
		{
			name: "table cleaning",
			msg:  message(models.EntityTable, "T4", "OCCUPIED", "CLEANING"),
			want: "🧽 [2026-10-15 19:30:00] [acme] Table T4 needs cleaning.",
		},
		{
			name: "generic transition",
			msg:  message(models.EntityTable, "T4", "CLEANING", "AVAILABLE"),
			want: "📋 [2026-10-15 19:30:00] [acme] Table T4 status changed from 'CLEANING' to 'AVAILABLE' by chef-1.",
		},
		{
			name: "new entity by system",
			msg:  system,
			want: "📋 [2026-10-15 19:30:00] [acme] Order ORD-MAIN-20261015-0002 is now 'PENDING' (by system).",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatNotification(tt.msg); got != tt.want {
				t.Errorf("FormatNotification() =\n%q\nwant\n%q", got, tt.want)
			}
		})
	}
}

func TestSubscriberFiltersTenantsAndRejectsPoison(t *testing.T) {
	encode := func(m *models.StatusUpdateMessage) []byte {
		b, err := json.Marshal(m)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return b
	}
	other := message(models.EntityOrder, "ORD-MAIN-20261015-0009", "PENDING", "CANCELLED")
	other.Tenant = "globex"

	consumer := &replayConsumer{bodies: [][]byte{
		encode(message(models.EntityOrder, "ORD-MAIN-20261015-0001", "PENDING", "CANCELLED")),
		encode(other),
		[]byte("{not json"),
	}}
	var out bytes.Buffer
	log := logger.NewWithWriter("test", io.Discard, slog.LevelError)
	sub := NewSubscriber(consumer, &out, log, "acme", " ")

	if err := sub.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 || !strings.Contains(lines[0], "ORD-MAIN-20261015-0001 has been cancelled") {
		t.Fatalf("output = %q", out.String())
	}
	if consumer.errs[0] != nil || consumer.errs[1] != nil {
		t.Fatalf("unexpected handler errors: %v", consumer.errs)
	}
	if !errors.Is(consumer.errs[2], messaging.ErrPoison) {
		t.Fatalf("malformed body error = %v, want ErrPoison", consumer.errs[2])
	}
}
