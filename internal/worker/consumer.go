package worker

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/gwo-trainer/internal/domain"
	"github.com/cuongbtq/gwo-trainer/internal/metrics"
)

// process handles one delivery. The message is acknowledged before anything
// else, so a failing or panicking handler never causes a redelivery.
func (w *Worker) process(ctx context.Context, delivery amqp.Delivery) {
	channel := delivery.RoutingKey

	if err := delivery.Ack(false); err != nil {
		w.logger.Error("Failed to ACK message",
			slog.String("channel", channel),
			slog.Uint64("delivery_tag", delivery.DeliveryTag),
			slog.Any("error", err),
		)
	}

	outcome := w.dispatch(ctx, delivery)
	w.metrics.MessageConsumed(channel, outcome)
}

func (w *Worker) dispatch(ctx context.Context, delivery amqp.Delivery) (outcome string) {
	channel := delivery.RoutingKey

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Handler panicked",
				slog.String("channel", channel),
				slog.Any("error", fmt.Errorf("%v", r)),
			)
			outcome = metrics.OutcomeFailed
		}
	}()

	handler, ok := w.registry.Lookup(channel)
	if !ok {
		w.logger.Error("No handler registered for channel",
			slog.String("channel", channel),
			slog.Any("error", domain.ErrUnroutable),
		)
		return metrics.OutcomeUnroutable
	}

	event, err := domain.DecodeDispatchEvent(delivery.Body)
	if err != nil {
		w.logger.Error("Failed to parse message JSON",
			slog.String("channel", channel),
			slog.String("body", string(delivery.Body)),
			slog.Any("error", err),
		)
		return metrics.OutcomeMalformed
	}

	w.logger.Info("Received dispatch event",
		slog.String("channel", channel),
		slog.String("event_id", event.ID),
		slog.String("origin", event.Origin),
	)

	if err := handler.Handle(ctx, event); err != nil {
		w.logger.Error("Dispatch event handling failed",
			slog.String("channel", channel),
			slog.String("event_id", event.ID),
			slog.Any("error", err),
		)
		return metrics.OutcomeFailed
	}

	return metrics.OutcomeHandled
}
