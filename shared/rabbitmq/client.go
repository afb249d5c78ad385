package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Config holds RabbitMQ connection configuration
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	VHost              string
	ExchangeName       string
	ExchangeType       string
	ExchangeDurable    bool
	ExchangeAutoDelete bool
	QueueDurable       bool
	QueueAutoDelete    bool
	RetryAttempts      int
	RetryInterval      time.Duration
	Heartbeat          time.Duration
	ConnectionTimeout  time.Duration
	PrefetchCount      int
	ConsumerTag        string
}

// URL returns the AMQP connection URL.
func (c *Config) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.VHost,
	}
	return u.String()
}

// amqpChannel is the subset of *amqp.Channel used by this package.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// amqpConnection is the subset of *amqp.Connection used by this package.
type amqpConnection interface {
	Channel() (amqpChannel, error)
	Close() error
}

type connection struct {
	*amqp.Connection
}

func (c connection) Channel() (amqpChannel, error) {
	return c.Connection.Channel()
}

// dial opens a single connection to the broker.
func dial(config *Config) (*amqp.Connection, error) {
	amqpConfig := amqp.Config{
		Heartbeat: config.Heartbeat,
		Locale:    "en_US",
	}
	if config.ConnectionTimeout > 0 {
		amqpConfig.Dial = amqp.DefaultDial(config.ConnectionTimeout)
	}
	return amqp.DialConfig(config.URL(), amqpConfig)
}

// dialWithRetry connects to RabbitMQ, retrying up to RetryAttempts times.
func dialWithRetry(ctx context.Context, config *Config, logger *slog.Logger) (*amqp.Connection, error) {
	attempts := max(config.RetryAttempts, 1)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		logger.Info("Connecting to RabbitMQ",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
		)

		var conn *amqp.Connection
		conn, err = dial(config)
		if err == nil {
			logger.Info("Successfully connected to RabbitMQ")
			return conn, nil
		}

		logger.Error("Failed to connect to RabbitMQ",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
		)

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(config.RetryInterval):
			}
		}
	}

	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, err)
}

// declareExchange declares the configured exchange on ch.
func declareExchange(ch amqpChannel, config *Config) error {
	kind := config.ExchangeType
	if kind == "" {
		kind = amqp.ExchangeDirect
	}
	err := ch.ExchangeDeclare(
		config.ExchangeName,       // name
		kind,                      // type
		config.ExchangeDurable,    // durable
		config.ExchangeAutoDelete, // auto-deleted
		false,                     // internal
		false,                     // no-wait
		nil,                       // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	return nil
}
