package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/gwo-trainer/internal/domain"
)

type fakeExecutor struct {
	mu    sync.Mutex
	ids   []int64
	err   error
	delay time.Duration
}

func (e *fakeExecutor) Execute(ctx context.Context, id int64) error {
	e.mu.Lock()
	e.ids = append(e.ids, id)
	e.mu.Unlock()
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	return e.err
}

type countingToucher struct {
	touches atomic.Int32
}

func (c *countingToucher) Touch(ctx context.Context, id int64) bool {
	c.touches.Add(1)
	return true
}

func modelEvent(t *testing.T, payload any) *domain.DispatchEvent {
	t.Helper()
	event, err := domain.NewDispatchEvent("api-service", "train_model", payload)
	require.NoError(t, err)
	return event
}

func TestTrainModelCallback_Handle(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		execErr error
		wantIDs []int64
		wantErr error
	}{
		{
			name:    "executes the model",
			payload: domain.Model{ID: 42, Name: "price", Status: domain.StatusScheduled},
			wantIDs: []int64{42},
		},
		{
			name:    "not claimable is skipped",
			payload: domain.Model{ID: 42},
			execErr: domain.ErrModelNotClaimable,
			wantIDs: []int64{42},
		},
		{
			name:    "execution error is returned",
			payload: domain.Model{ID: 42},
			execErr: domain.ErrNoDataset,
			wantIDs: []int64{42},
			wantErr: domain.ErrNoDataset,
		},
		{
			name:    "missing id",
			payload: map[string]any{"name": "price"},
			wantErr: domain.ErrInvalidPayload,
		},
		{
			name:    "wrong payload shape",
			payload: map[string]any{"id": "forty-two"},
			wantErr: domain.ErrInvalidPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executor := &fakeExecutor{err: tt.execErr}
			callback := NewTrainModelCallback(executor, nil, 0, discardLogger())

			err := callback.Handle(context.Background(), modelEvent(t, tt.payload))

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantIDs, executor.ids)
		})
	}
}

func TestTrainModelCallback_Heartbeat(t *testing.T) {
	executor := &fakeExecutor{delay: 60 * time.Millisecond}
	toucher := &countingToucher{}
	callback := NewTrainModelCallback(executor, toucher, 10*time.Millisecond, discardLogger())

	require.NoError(t, callback.Handle(context.Background(), modelEvent(t, domain.Model{ID: 5})))

	touches := toucher.touches.Load()
	assert.GreaterOrEqual(t, touches, int32(2))

	// heartbeat stops with the handler
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, touches, toucher.touches.Load())
}

func TestTrainModelCallback_AsHandler(t *testing.T) {
	registry := NewRegistry()
	executor := &fakeExecutor{err: errors.New("boom")}
	require.NoError(t, registry.Register("train_model", NewTrainModelCallback(executor, nil, 0, discardLogger())))

	handler, ok := registry.Lookup("train_model")
	require.True(t, ok)
	assert.Error(t, handler.Handle(context.Background(), modelEvent(t, domain.Model{ID: 1})))
}
