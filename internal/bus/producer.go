package bus

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/cuongbtq/gwo-trainer/internal/domain"
	"github.com/cuongbtq/gwo-trainer/internal/metrics"
)

// Publisher sends a raw message to a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// Producer emits dispatch events to the channel named by their SentTo field.
type Producer struct {
	publisher Publisher
	metrics   metrics.Sink
	logger    *slog.Logger
}

// NewProducer creates a dispatch event producer.
func NewProducer(publisher Publisher, sink metrics.Sink, logger *slog.Logger) *Producer {
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	return &Producer{
		publisher: publisher,
		metrics:   sink,
		logger:    logger,
	}
}

// Send publishes event and reports whether the broker accepted it.
// Failures are logged and never retried.
func (p *Producer) Send(ctx context.Context, event *domain.DispatchEvent) bool {
	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to encode dispatch event",
			slog.String("event_id", event.ID),
			slog.Any("error", err),
		)
		p.metrics.EventPublished(event.SentTo, false)
		return false
	}

	if err := p.publisher.Publish(ctx, event.SentTo, body); err != nil {
		p.logger.Error("Failed to publish dispatch event",
			slog.String("event_id", event.ID),
			slog.String("channel", event.SentTo),
			slog.Any("error", err),
		)
		p.metrics.EventPublished(event.SentTo, false)
		return false
	}

	p.metrics.EventPublished(event.SentTo, true)
	p.logger.Info("Dispatch event published",
		slog.String("event_id", event.ID),
		slog.String("origin", event.Origin),
		slog.String("channel", event.SentTo),
	)
	return true
}
