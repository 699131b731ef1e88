package notification

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"restaurant-pos/internal/logger"
	"restaurant-pos/internal/messaging"
	"restaurant-pos/internal/models"
)

const timestampLayout = "2006-01-02 15:04:05"

// Consumer delivers queued messages to a handler until ctx is done.
type Consumer interface {
	StartConsuming(ctx context.Context, handler messaging.MessageHandler) error
}

// Subscriber prints status update notifications as they arrive
type Subscriber struct {
	consumer Consumer
	logger   *logger.Logger

	// tenants filters the output; empty means every tenant.
	tenants map[string]bool

	mu  sync.Mutex
	out io.Writer
}

// NewSubscriber creates a new notification subscriber
func NewSubscriber(consumer Consumer, out io.Writer, log *logger.Logger, tenants ...string) *Subscriber {
	s := &Subscriber{consumer: consumer, out: out, logger: log, tenants: map[string]bool{}}
	for _, t := range tenants {
		if t = strings.TrimSpace(t); t != "" {
			s.tenants[t] = true
		}
	}
	return s
}

// Run consumes notifications until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	requestID := logger.GenerateRequestID()
	s.logger.Info("service_started", "Notification subscriber started", requestID, map[string]any{
		"queue": messaging.NotificationsQueue,
	})

	err := s.consumer.StartConsuming(ctx, s.HandleNotification)
	s.logger.Info("graceful_shutdown", "Notification subscriber stopped", requestID, nil)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// HandleNotification processes one status update.
func (s *Subscriber) HandleNotification(ctx context.Context, body []byte) error {
	var msg models.StatusUpdateMessage
	if err := messaging.ParseMessage(body, &msg); err != nil {
		return err
	}

	requestID := logger.RequestIDFromContext(ctx)
	if len(s.tenants) > 0 && !s.tenants[msg.Tenant] {
		s.logger.Debug("notification_skipped", "Notification for another tenant", requestID, map[string]any{
			"tenant": msg.Tenant,
		})
		return nil
	}

	s.mu.Lock()
	_, err := fmt.Fprintln(s.out, FormatNotification(&msg))
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("write notification: %w", err)
	}

	s.logger.Info("notification_displayed", "Notification displayed", requestID, map[string]any{
		"tenant":     msg.Tenant,
		"entity":     msg.Entity,
		"number":     msg.Number,
		"old_status": msg.OldStatus,
		"new_status": msg.NewStatus,
		"changed_by": msg.ChangedBy,
	})
	return nil
}

// FormatNotification renders a status update as one human-readable line.
func FormatNotification(msg *models.StatusUpdateMessage) string {
	timestamp := msg.Timestamp.UTC().Format(timestampLayout)
	subject := subjectOf(msg)

	switch {
	case msg.Entity == models.EntityPayment && msg.NewStatus == string(models.PaymentPaid):
		return fmt.Sprintf("💳 [%s] %s has been paid in full. Thank you!", timestamp, subject)
	case msg.NewStatus == string(models.ItemInProgress) || msg.NewStatus == string(models.OrderPreparing):
		if msg.EstimatedCompletion != nil {
			return fmt.Sprintf("🍳 [%s] %s is now being prepared by %s. Estimated completion: %s",
				timestamp, subject, changedBy(msg), msg.EstimatedCompletion.UTC().Format("15:04:05"))
		}
		return fmt.Sprintf("🍳 [%s] %s is now being prepared by %s.", timestamp, subject, changedBy(msg))
	case msg.NewStatus == string(models.OrderReady):
		return fmt.Sprintf("✅ [%s] %s is ready! Prepared by %s.", timestamp, subject, changedBy(msg))
	case msg.NewStatus == string(models.OrderServed):
		return fmt.Sprintf("🍽️ [%s] %s has been served.", timestamp, subject)
	case msg.NewStatus == string(models.OrderCancelled):
		return fmt.Sprintf("❌ [%s] %s has been cancelled.", timestamp, subject)
	case msg.NewStatus == string(models.OrderMerged):
		return fmt.Sprintf("🔗 [%s] %s has been merged into another order.", timestamp, subject)
	case msg.Entity == models.EntityTable && msg.NewStatus == string(models.TableCleaning):
		return fmt.Sprintf("🧽 [%s] %s needs cleaning.", timestamp, subject)
	}

	if msg.OldStatus == "" {
		return fmt.Sprintf("📋 [%s] %s is now '%s' (by %s).", timestamp, subject, msg.NewStatus, changedBy(msg))
	}
	return fmt.Sprintf("📋 [%s] %s status changed from '%s' to '%s' by %s.",
		timestamp, subject, msg.OldStatus, msg.NewStatus, changedBy(msg))
}

func subjectOf(msg *models.StatusUpdateMessage) string {
	var kind string
	switch msg.Entity {
	case models.EntityKOT:
		kind = "Ticket"
	case models.EntityTable:
		kind = "Table"
	case models.EntityPayment, models.EntityOrder:
		kind = "Order"
	default:
		kind = msg.Entity
	}
	subject := strings.TrimSpace(kind + " " + msg.Number)
	if msg.Tenant != "" {
		subject = "[" + msg.Tenant + "] " + subject
	}
	return subject
}

func changedBy(msg *models.StatusUpdateMessage) string {
	if msg.ChangedBy == "" {
		return "system"
	}
	return msg.ChangedBy
}
