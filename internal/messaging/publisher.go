package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"restaurant-pos/internal/logger"
	"restaurant-pos/internal/models"
)

// Publisher handles message publishing to RabbitMQ
type Publisher struct {
	conn   *Connection
	logger *logger.Logger
}

// NewPublisher creates a new message publisher
func NewPublisher(conn *Connection, log *logger.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: log,
	}
}

// PublishTicket routes a kitchen ticket by order type and priority.
func (p *Publisher) PublishTicket(ctx context.Context, msg *models.KitchenTicketMessage) error {
	routingKey := models.KitchenRoutingKey(msg.OrderType, msg.Priority)
	return p.publishMessage(ctx, KitchenExchange, routingKey, msg, uint8(msg.Priority.Weight()), true)
}

// PublishNotification publishes a status update message to the notifications fanout exchange
func (p *Publisher) PublishNotification(ctx context.Context, msg *models.StatusUpdateMessage) error {
	return p.publishMessage(ctx, NotificationExchange, "", msg, 0, false)
}

func (p *Publisher) publishMessage(ctx context.Context, exchange, routingKey string, message any, priority uint8, persistent bool) error {
	channel, err := p.conn.Channel(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	deliveryMode := amqp091.Transient
	if persistent {
		deliveryMode = amqp091.Persistent
	}

	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: deliveryMode,
		Priority:     priority,
		Timestamp:    time.Now(),
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err = channel.PublishWithContext(ctx, exchange, routingKey, false, false, publishing)
	if err != nil {
		p.logger.Error("message_publish_failed",
			fmt.Sprintf("Failed to publish message to exchange %s", exchange),
			"", err, map[string]any{
				"exchange":    exchange,
				"routing_key": routingKey,
			})
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.logger.Debug("message_published",
		fmt.Sprintf("Published message to exchange %s", exchange),
		"", map[string]any{
			"exchange":     exchange,
			"routing_key":  routingKey,
			"message_size": len(body),
		})
	return nil
}
