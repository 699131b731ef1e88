package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"restaurant-pos/internal/logger"
)

// MessageHandler processes one delivery body.
type MessageHandler func(ctx context.Context, body []byte) error

// ErrPoison marks a message that can never be processed; it is dropped
// instead of requeued.
var ErrPoison = errors.New("unprocessable message")

// Consumer handles message consumption from RabbitMQ
type Consumer struct {
	conn        *Connection
	logger      *logger.Logger
	queueName   string
	consumerTag string
	prefetch    int
}

// NewConsumer creates a new message consumer
func NewConsumer(conn *Connection, log *logger.Logger, queueName, consumerTag string, prefetch int) *Consumer {
	return &Consumer{
		conn:        conn,
		logger:      log,
		queueName:   queueName,
		consumerTag: consumerTag,
		prefetch:    prefetch,
	}
}

// StartConsuming blocks until ctx is done, handing every delivery to handler.
func (c *Consumer) StartConsuming(ctx context.Context, handler MessageHandler) error {
	for {
		err := c.consume(ctx, handler)
		if ctx.Err() != nil {
			c.logger.Info("consumer_stopped", "Consumer stopped by context", "", map[string]any{"queue": c.queueName})
			return ctx.Err()
		}
		if err != nil {
			return err
		}
		c.logger.Error("consumer_channel_closed", "Message channel closed, attempting to reconnect", "", nil,
			map[string]any{"queue": c.queueName})
	}
}

// consume runs one subscription; it returns nil when the delivery channel closes.
func (c *Consumer) consume(ctx context.Context, handler MessageHandler) error {
	channel, err := c.conn.Channel(ctx)
	if err != nil {
		return err
	}

	if err := channel.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := channel.Consume(c.queueName, c.consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("consumer_started",
		fmt.Sprintf("Started consuming from queue %s", c.queueName),
		"", map[string]any{
			"queue":    c.queueName,
			"consumer": c.consumerTag,
			"prefetch": c.prefetch,
		})

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			c.processMessage(ctx, d, handler)
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, delivery amqp091.Delivery, handler MessageHandler) {
	startTime := time.Now()
	requestID := delivery.MessageId
	if requestID == "" {
		requestID = logger.GenerateRequestID()
	}

	processingCtx, cancel := context.WithTimeout(logger.WithRequestID(ctx, requestID), 30*time.Second)
	defer cancel()

	err := handler(processingCtx, delivery.Body)
	fields := map[string]any{
		"queue":        c.queueName,
		"routing_key":  delivery.RoutingKey,
		"duration_ms":  time.Since(startTime).Milliseconds(),
		"delivery_tag": delivery.DeliveryTag,
	}

	switch {
	case err == nil:
		c.logger.Debug("message_processed", "Successfully processed message", requestID, fields)
		if ackErr := delivery.Ack(false); ackErr != nil {
			c.logger.Error("message_ack_failed", "Failed to ack message", requestID, ackErr, nil)
		}
	case errors.Is(err, ErrPoison):
		c.logger.Error("message_rejected", "Dropping unprocessable message", requestID, err, fields)
		if nackErr := delivery.Nack(false, false); nackErr != nil {
			c.logger.Error("message_nack_failed", "Failed to nack message", requestID, nackErr, nil)
		}
	default:
		c.logger.Error("message_processing_failed", "Failed to process message", requestID, err, fields)
		if nackErr := delivery.Nack(false, !delivery.Redelivered); nackErr != nil {
			c.logger.Error("message_nack_failed", "Failed to nack message", requestID, nackErr, nil)
		}
	}
}

// ParseMessage decodes a JSON body into v; malformed bodies are poison.
func ParseMessage(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrPoison, err)
	}
	return nil
}
