package bus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/gwo-trainer/internal/domain"
	"github.com/cuongbtq/gwo-trainer/internal/metrics"
)

type recordedPublish struct {
	key  string
	body []byte
}

type fakePublisher struct {
	err       error
	published []recordedPublish
}

func (p *fakePublisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, recordedPublish{key: routingKey, body: body})
	return nil
}

type publishCounter struct {
	metrics.NoopSink
	ok, failed int
}

func (c *publishCounter) EventPublished(channel string, ok bool) {
	if ok {
		c.ok++
	} else {
		c.failed++
	}
}

func TestProducer_Send(t *testing.T) {
	tests := []struct {
		name       string
		publishErr error
		want       bool
	}{
		{name: "delivered", want: true},
		{name: "broker unavailable", publishErr: errors.New("connection refused"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher := &fakePublisher{err: tt.publishErr}
			counter := &publishCounter{}
			producer := NewProducer(publisher, counter, slog.New(slog.NewTextHandler(io.Discard, nil)))

			event, err := domain.NewDispatchEvent("api-service", "train_model", map[string]any{"id": 12})
			require.NoError(t, err)

			assert.Equal(t, tt.want, producer.Send(context.Background(), event))

			if tt.want {
				require.Len(t, publisher.published, 1)
				assert.Equal(t, "train_model", publisher.published[0].key)

				decoded, err := domain.DecodeDispatchEvent(publisher.published[0].body)
				require.NoError(t, err)
				assert.Equal(t, event.ID, decoded.ID)
				assert.JSONEq(t, `{"id":12}`, string(decoded.Payload))
				assert.Equal(t, 1, counter.ok)
			} else {
				assert.Empty(t, publisher.published)
				assert.Equal(t, 1, counter.failed)
			}
		})
	}
}
