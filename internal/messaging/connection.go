package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"restaurant-pos/internal/config"
	"restaurant-pos/internal/logger"
)

const maxConnectAttempts = 5

// Connection wraps RabbitMQ connection with reconnection logic
type Connection struct {
	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
	logger  *logger.Logger
	url     string
}

// New creates a new RabbitMQ connection and declares the topology
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Connection, error) {
	conn := &Connection{
		logger: log,
		url:    cfg.RabbitMQURL(),
	}

	if err := conn.connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to establish initial connection: %w", err)
	}
	return conn, nil
}

// connect establishes connection to RabbitMQ with retry logic
func (c *Connection) connect(ctx context.Context) error {
	var err error

	for i := 0; i < maxConnectAttempts; i++ {
		c.conn, err = amqp091.Dial(c.url)
		if err == nil {
			c.channel, err = c.conn.Channel()
			if err == nil {
				if setupErr := declareTopology(c.channel); setupErr != nil {
					c.logger.Error("rabbitmq_setup_failed", "Failed to set up topology", "startup", setupErr, nil)
					c.close()
					err = setupErr
				} else {
					c.logger.Info("rabbitmq_connected", "Connected to RabbitMQ", "startup", nil)
					return nil
				}
			} else {
				c.conn.Close()
			}
		}

		if i < maxConnectAttempts-1 {
			waitTime := time.Duration(i+1) * 2 * time.Second
			c.logger.Error("rabbitmq_connection_failed",
				fmt.Sprintf("Failed to connect to RabbitMQ, retrying in %v", waitTime),
				"startup", err, map[string]any{"attempt": i + 1})
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitTime):
			}
		}
	}

	return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxConnectAttempts, err)
}

func wrapTopology(step string, err error) error {
	return fmt.Errorf("failed to %s: %w", step, err)
}

// Channel returns the current channel, reconnecting first when the
// connection has dropped.
func (c *Connection) Channel(ctx context.Context) (*amqp091.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.conn.IsClosed() || c.channel == nil || c.channel.IsClosed() {
		c.close()
		if err := c.connect(ctx); err != nil {
			return nil, fmt.Errorf("failed to reconnect: %w", err)
		}
	}
	return c.channel, nil
}

// Close closes the connection
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.close()
}

func (c *Connection) close() error {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// Ping reports whether the broker connection is still open.
func (c *Connection) Ping(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection is closed")
	}
	return nil
}
