package worker

import (
	"context"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/gwo-trainer/internal/metrics"
)

// Source yields deliveries from the queues bound to the given channels.
type Source interface {
	Consume(ctx context.Context, channels []string) (<-chan amqp.Delivery, error)
	Close() error
}

// Config holds worker configuration
type Config struct {
	Logger            *slog.Logger
	Source            Source
	Registry          *Registry
	Metrics           metrics.Sink
	ReconnectInterval time.Duration
}

// Worker runs the single receive loop over every registered channel.
type Worker struct {
	logger            *slog.Logger
	source            Source
	registry          *Registry
	metrics           metrics.Sink
	reconnectInterval time.Duration
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	sink := cfg.Metrics
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	reconnect := cfg.ReconnectInterval
	if reconnect <= 0 {
		reconnect = 5 * time.Second
	}
	return &Worker{
		logger:            cfg.Logger,
		source:            cfg.Source,
		registry:          cfg.Registry,
		metrics:           sink,
		reconnectInterval: reconnect,
	}
}

// Start consumes until ctx is done, reconnecting whenever the delivery stream
// closes or cannot be opened.
func (w *Worker) Start(ctx context.Context) error {
	channels := w.registry.Channels()
	w.logger.Info("Starting worker",
		slog.Any("channels", channels),
	)

	for {
		w.consume(ctx, channels)

		select {
		case <-ctx.Done():
			w.logger.Info("Worker context canceled, stopping...")
			return nil
		case <-time.After(w.reconnectInterval):
		}
	}
}

// consume runs one broker session.
func (w *Worker) consume(ctx context.Context, channels []string) {
	deliveries, err := w.source.Consume(ctx, channels)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("Failed to start consuming",
				slog.Any("error", err),
				slog.Duration("retry_after", w.reconnectInterval),
			)
		}
		return
	}
	defer func() {
		if err := w.source.Close(); err != nil {
			w.logger.Warn("Failed to close consumer", slog.Any("error", err))
		}
	}()

	w.receive(ctx, deliveries)

	if ctx.Err() == nil {
		w.logger.Warn("Delivery channel closed, reconnecting",
			slog.Duration("retry_after", w.reconnectInterval),
		)
	}
}

// receive drains deliveries one at a time until the stream closes or ctx is done.
func (w *Worker) receive(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-deliveries:
			if !ok {
				return
			}
			w.process(ctx, delivery)
		}
	}
}
