package rabbitmq

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rabbitmq/amqp091-go"
)

// Consumer handles the connection and consumption of messages from RabbitMQ.
type Consumer struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	logger  *slog.Logger
}

// NewConsumer creates a new RabbitMQ consumer.
func NewConsumer(amqpURL string, logger *slog.Logger) (*Consumer, error) {
	conn, ch, err := dial(amqpURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{conn: conn, channel: ch, logger: logger}, nil
}

// MessageHandler processes a single delivery. Returning true acks the message;
// false nacks and requeues it.
type MessageHandler func(ctx context.Context, routingKey string, body []byte) bool

// Consume binds a durable queue to every routing key on the exchange and
// dispatches deliveries to handler until ctx is cancelled or the channel closes.
func (c *Consumer) Consume(ctx context.Context, exchange, queueName string, routingKeys []string, handler MessageHandler) error {
	if err := declareExchange(c.channel, exchange); err != nil {
		return err
	}

	q, err := c.channel.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return err
	}

	for _, key := range routingKeys {
		if err := c.channel.QueueBind(q.Name, key, exchange, false, nil); err != nil {
			return err
		}
	}

	if err := c.channel.Qos(10, 0, false); err != nil {
		return err
	}

	msgs, err := c.channel.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			c.logger.Debug("received message", "routing_key", d.RoutingKey)
			if handler(ctx, d.RoutingKey, d.Body) {
				_ = d.Ack(false)
			} else {
				_ = d.Nack(false, true)
			}
		}
	}
}

// Close gracefully closes the channel and connection.
func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
