package kitchen

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"restaurant-pos/internal/logger"
	"restaurant-pos/internal/messaging"
	"restaurant-pos/internal/models"
)

// Subscriber delivers queued messages to a handler until ctx is done.
type Subscriber interface {
	StartConsuming(ctx context.Context, handler messaging.MessageHandler) error
}

// Printer renders routed kitchen tickets for one station.
type Printer struct {
	name              string
	orderTypes        []models.OrderType
	heartbeatInterval time.Duration

	subscriber Subscriber
	logger     *logger.Logger

	mu      sync.Mutex
	out     io.Writer
	printed atomic.Int64
}

// NewPrinter creates a printer. An empty orderTypes accepts every ticket.
func NewPrinter(name string, orderTypes []models.OrderType, heartbeatInterval time.Duration,
	subscriber Subscriber, out io.Writer, log *logger.Logger) *Printer {
	return &Printer{
		name:              name,
		orderTypes:        orderTypes,
		heartbeatInterval: heartbeatInterval,
		subscriber:        subscriber,
		out:               out,
		logger:            log,
	}
}

// Run consumes tickets until ctx is cancelled.
func (p *Printer) Run(ctx context.Context) error {
	requestID := logger.GenerateRequestID()

	p.logger.Info("printer_started", fmt.Sprintf("Kitchen printer %s started", p.name), requestID, map[string]any{
		"printer_name":       p.name,
		"order_types":        p.orderTypes,
		"heartbeat_interval": p.heartbeatInterval.Seconds(),
	})

	if p.heartbeatInterval > 0 {
		go p.heartbeatLoop(ctx)
	}

	err := p.subscriber.StartConsuming(ctx, p.HandleMessage)
	p.logger.Info("graceful_shutdown", fmt.Sprintf("Kitchen printer %s stopped", p.name), requestID, map[string]any{
		"printed": p.printed.Load(),
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// HandleMessage prints one ticket. Tickets for other stations are refused so
// the broker can hand them to another printer.
func (p *Printer) HandleMessage(ctx context.Context, body []byte) error {
	var msg models.KitchenTicketMessage
	if err := messaging.ParseMessage(body, &msg); err != nil {
		return err
	}

	if !p.canHandle(msg.OrderType) {
		p.logger.Debug("ticket_rejected", fmt.Sprintf("Printer %s does not handle %s tickets", p.name, msg.OrderType), "",
			map[string]any{
				"kot_number":      msg.KOTNumber,
				"order_type":      msg.OrderType,
				"specializations": p.orderTypes,
			})
		return fmt.Errorf("printer %s cannot handle order type %s", p.name, msg.OrderType)
	}

	p.mu.Lock()
	err := RenderTicket(p.out, &msg)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("print ticket %s: %w", msg.KOTNumber, err)
	}

	p.printed.Add(1)
	p.logger.Debug("ticket_printed", fmt.Sprintf("Printed %s", msg.KOTNumber), "", map[string]any{
		"tenant":     msg.Tenant,
		"kot_number": msg.KOTNumber,
		"priority":   msg.Priority,
		"printer":    p.name,
	})
	return nil
}

func (p *Printer) canHandle(orderType models.OrderType) bool {
	if len(p.orderTypes) == 0 {
		return true
	}
	for _, t := range p.orderTypes {
		if t == orderType {
			return true
		}
	}
	return false
}

func (p *Printer) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(p.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.logger.Debug("heartbeat_sent", "Printer alive", "", map[string]any{
				"printer_name": p.name,
				"printed":      p.printed.Load(),
			})
		}
	}
}

// RenderTicket writes the kitchen copy of a ticket.
func RenderTicket(w io.Writer, msg *models.KitchenTicketMessage) error {
	var b strings.Builder
	rule := strings.Repeat("-", 40)

	fmt.Fprintf(&b, "%s\n", rule)
	fmt.Fprintf(&b, "%s\n", msg.KOTNumber)
	fmt.Fprintf(&b, "Order: %s  %s\n", msg.OrderNumber, msg.OrderType)
	if msg.TableID != nil {
		fmt.Fprintf(&b, "Table: %s\n", *msg.TableID)
	}
	if msg.Priority != models.PriorityNormal && msg.Priority != "" {
		fmt.Fprintf(&b, "*** %s ***\n", msg.Priority)
	}
	fmt.Fprintf(&b, "Ready by: %s\n", msg.EstimatedCompletionTime.UTC().Format("15:04"))
	fmt.Fprintf(&b, "%s\n", rule)
	for _, item := range msg.Items {
		fmt.Fprintf(&b, "%3d x %s\n", item.Quantity, item.Name)
		if item.SpecialInstructions != nil && *item.SpecialInstructions != "" {
			fmt.Fprintf(&b, "      > %s\n", *item.SpecialInstructions)
		}
	}
	if msg.Notes != nil && *msg.Notes != "" {
		fmt.Fprintf(&b, "%s\n", rule)
		fmt.Fprintf(&b, "Notes: %s\n", *msg.Notes)
	}
	fmt.Fprintf(&b, "%s\n", rule)

	_, err := io.WriteString(w, b.String())
	return err
}
