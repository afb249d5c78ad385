package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Producer publishes messages to the configured exchange. Every publish opens
// its own connection and closes it afterwards.
type Producer struct {
	config *Config
	dial   func() (amqpConnection, error)
	logger *slog.Logger
}

// NewProducer creates a producer.
func NewProducer(config *Config, logger *slog.Logger) *Producer {
	return &Producer{
		config: config,
		dial: func() (amqpConnection, error) {
			conn, err := dial(config)
			if err != nil {
				return nil, err
			}
			return connection{conn}, nil
		},
		logger: logger,
	}
}

// Publish sends body to the exchange with routingKey. It does not retry.
func (p *Producer) Publish(ctx context.Context, routingKey string, body []byte) error {
	conn, err := p.dial()
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			p.logger.Warn("Failed to close RabbitMQ connection", slog.Any("error", err))
		}
	}()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to create channel: %w", err)
	}
	defer ch.Close()

	if err := declareExchange(ch, p.config); err != nil {
		return err
	}

	err = ch.PublishWithContext(
		ctx,
		p.config.ExchangeName, // exchange
		routingKey,            // routing key
		false,                 // mandatory
		false,                 // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.logger.Debug("Message published to RabbitMQ",
		slog.String("routing_key", routingKey),
		slog.Int("body_size", len(body)),
	)
	return nil
}
