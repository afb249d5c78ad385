package worker

import (
	"context"
	"fmt"
	"sort"

	"github.com/cuongbtq/gwo-trainer/internal/domain"
)

// Handler processes one dispatch event.
type Handler interface {
	Handle(ctx context.Context, event *domain.DispatchEvent) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event *domain.DispatchEvent) error

// Handle calls f(ctx, event).
func (f HandlerFunc) Handle(ctx context.Context, event *domain.DispatchEvent) error {
	return f(ctx, event)
}

// Registry maps channel names to handlers. It is filled once at startup and
// only read afterwards.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds handler to channel.
func (r *Registry) Register(channel string, handler Handler) error {
	if channel == "" {
		return fmt.Errorf("channel name is required")
	}
	if handler == nil {
		return fmt.Errorf("handler for channel %s is nil", channel)
	}
	if _, exists := r.handlers[channel]; exists {
		return fmt.Errorf("channel %s is already registered", channel)
	}
	r.handlers[channel] = handler
	return nil
}

// Lookup returns the handler bound to channel.
func (r *Registry) Lookup(channel string) (Handler, bool) {
	h, ok := r.handlers[channel]
	return h, ok
}

// Channels returns the registered channel names in sorted order.
func (r *Registry) Channels() []string {
	channels := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		channels = append(channels, name)
	}
	sort.Strings(channels)
	return channels
}
