package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer receives deliveries from one queue per channel name.
type Consumer struct {
	config *Config
	logger *slog.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewConsumer creates a consumer. No connection is made until Consume.
func NewConsumer(config *Config, logger *slog.Logger) *Consumer {
	return &Consumer{
		config: config,
		logger: logger,
	}
}

// Consume connects, declares and binds a queue for every channel name and
// returns the merged delivery stream. The stream is closed when the broker
// connection drops, when ctx is done or after Close.
func (c *Consumer) Consume(ctx context.Context, channels []string) (<-chan amqp.Delivery, error) {
	if len(channels) == 0 {
		return nil, errors.New("no channels to consume")
	}

	conn, err := dialWithRetry(ctx, c.config, c.logger)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	// prefetch_size 0 means no byte limit; global false applies it per consumer
	if err := ch.Qos(c.config.PrefetchCount, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	if err := declareExchange(ch, c.config); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	sources := make([]<-chan amqp.Delivery, 0, len(channels))
	for _, name := range channels {
		deliveries, err := c.subscribe(ch, name)
		if err != nil {
			ch.Close()
			conn.Close()
			return nil, err
		}
		sources = append(sources, deliveries)
	}

	c.mu.Lock()
	c.conn, c.channel = conn, ch
	c.mu.Unlock()

	c.logger.Info("RabbitMQ consumer started",
		slog.String("exchange", c.config.ExchangeName),
		slog.Any("queues", channels),
		slog.Int("prefetch_count", c.config.PrefetchCount),
	)

	return merge(ctx, sources), nil
}

// subscribe declares the queue named after channel, binds it with the same
// routing key and starts consuming it.
func (c *Consumer) subscribe(ch *amqp.Channel, name string) (<-chan amqp.Delivery, error) {
	_, err := ch.QueueDeclare(
		name,                     // name
		c.config.QueueDurable,    // durable
		c.config.QueueAutoDelete, // auto-delete
		false,                    // exclusive
		false,                    // no-wait
		nil,                      // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", name, err)
	}

	if err := ch.QueueBind(name, name, c.config.ExchangeName, false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind queue %s: %w", name, err)
	}

	tag := consumerTag(c.config.ConsumerTag, name)
	deliveries, err := ch.Consume(
		name,  // queue
		tag,   // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume queue %s: %w", name, err)
	}
	return deliveries, nil
}

func consumerTag(prefix, queue string) string {
	if prefix == "" {
		return ""
	}
	return prefix + "-" + queue
}

// merge fans several delivery streams into one. The output is closed once
// every source is closed or ctx is done.
func merge(ctx context.Context, sources []<-chan amqp.Delivery) <-chan amqp.Delivery {
	out := make(chan amqp.Delivery)

	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src <-chan amqp.Delivery) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-src:
					if !ok {
						return
					}
					select {
					case out <- d:
					case <-ctx.Done():
						return
					}
				}
			}
		}(src)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

// Close closes the channel and connection opened by the last Consume.
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			c.logger.Error("Failed to close RabbitMQ channel",
				slog.Any("error", err),
			)
		}
		c.channel = nil
	}

	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		if err != nil && !errors.Is(err, amqp.ErrClosed) {
			return fmt.Errorf("failed to close RabbitMQ connection: %w", err)
		}
	}
	return nil
}
