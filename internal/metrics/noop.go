package metrics

import "time"

// NoopSink discards every measurement. Used when metrics are disabled.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

var _ Sink = (*NoopSink)(nil)

func (n *NoopSink) EventPublished(channel string, ok bool)     {}
func (n *NoopSink) MessageConsumed(channel, outcome string)    {}
func (n *NoopSink) StatusTransition(status string)             {}
func (n *NoopSink) EvaluationCompleted(duration time.Duration) {}
func (n *NoopSink) StoreRetry()                                {}
func (n *NoopSink) StuckModelsFailed(count int)                {}
