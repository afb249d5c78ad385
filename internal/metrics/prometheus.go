package metrics

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink with Prometheus collectors.
// Registration errors are logged and never propagated.
type PrometheusSink struct {
	eventsPublished  *prometheus.CounterVec
	messagesConsumed *prometheus.CounterVec

	transitions        *prometheus.CounterVec
	evaluationDuration prometheus.Histogram

	storeRetries      prometheus.Counter
	stuckModelsFailed prometheus.Counter

	logger *slog.Logger
}

// NewPrometheusSink creates the collectors and registers them with reg.
func NewPrometheusSink(reg prometheus.Registerer, logger *slog.Logger) *PrometheusSink {
	s := &PrometheusSink{logger: logger}

	s.eventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gwo_bus_events_published_total",
		Help: "Dispatch events published, by channel and result.",
	}, []string{"channel", "ok"})
	s.messagesConsumed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gwo_bus_messages_consumed_total",
		Help: "Messages taken off the bus, by channel and outcome.",
	}, []string{"channel", "outcome"})
	s.transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gwo_model_transitions_total",
		Help: "Model status transitions, by target status.",
	}, []string{"status"})
	s.evaluationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gwo_training_evaluation_duration_seconds",
		Help:    "Time spent fitting and scoring one candidate.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300},
	})
	s.storeRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gwo_store_retries_total",
		Help: "Failed store attempts that discarded their connection.",
	})
	s.stuckModelsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gwo_reconciler_stuck_models_failed_total",
		Help: "TRAINING models moved to ERROR after their heartbeat went stale.",
	})

	s.register(reg, s.eventsPublished, "gwo_bus_events_published_total")
	s.register(reg, s.messagesConsumed, "gwo_bus_messages_consumed_total")
	s.register(reg, s.transitions, "gwo_model_transitions_total")
	s.register(reg, s.evaluationDuration, "gwo_training_evaluation_duration_seconds")
	s.register(reg, s.storeRetries, "gwo_store_retries_total")
	s.register(reg, s.stuckModelsFailed, "gwo_reconciler_stuck_models_failed_total")

	return s
}

var _ Sink = (*PrometheusSink)(nil)

func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		s.logger.Warn("Failed to register metric",
			slog.String("metric", name),
			slog.Any("error", err),
		)
	}
}

func (s *PrometheusSink) EventPublished(channel string, ok bool) {
	s.eventsPublished.WithLabelValues(channel, strconv.FormatBool(ok)).Inc()
}

func (s *PrometheusSink) MessageConsumed(channel, outcome string) {
	s.messagesConsumed.WithLabelValues(channel, outcome).Inc()
}

func (s *PrometheusSink) StatusTransition(status string) {
	s.transitions.WithLabelValues(status).Inc()
}

func (s *PrometheusSink) EvaluationCompleted(duration time.Duration) {
	s.evaluationDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) StoreRetry() {
	s.storeRetries.Inc()
}

func (s *PrometheusSink) StuckModelsFailed(count int) {
	s.stuckModelsFailed.Add(float64(count))
}
