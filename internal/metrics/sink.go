package metrics

import "time"

// Sink records orchestration metrics.
// Methods are fire-and-forget and must never block the caller.
type Sink interface {
	// Message bus
	EventPublished(channel string, ok bool)
	MessageConsumed(channel, outcome string)

	// Lifecycle
	StatusTransition(status string)
	EvaluationCompleted(duration time.Duration)

	// Store
	StoreRetry()
	StuckModelsFailed(count int)
}

// Outcome labels for MessageConsumed.
const (
	OutcomeHandled    = "handled"
	OutcomeFailed     = "failed"
	OutcomeUnroutable = "unroutable"
	OutcomeMalformed  = "malformed"
)
