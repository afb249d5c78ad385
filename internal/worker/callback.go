package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/gwo-trainer/internal/domain"
)

// Executor trains a model by id.
type Executor interface {
	Execute(ctx context.Context, id int64) error
}

// Toucher refreshes a TRAINING model's updated_at.
type Toucher interface {
	Touch(ctx context.Context, id int64) bool
}

// TrainModelCallback handles train_model events.
type TrainModelCallback struct {
	executor  Executor
	toucher   Toucher
	heartbeat time.Duration
	logger    *slog.Logger
}

// NewTrainModelCallback creates the train_model handler. toucher should not
// share a database session with executor; a nil toucher or non-positive
// interval disables the heartbeat.
func NewTrainModelCallback(executor Executor, toucher Toucher, heartbeat time.Duration, logger *slog.Logger) *TrainModelCallback {
	return &TrainModelCallback{
		executor:  executor,
		toucher:   toucher,
		heartbeat: heartbeat,
		logger:    logger,
	}
}

// Handle decodes the model carried by event and trains it.
// A model that is no longer SCHEDULED is skipped without error.
func (c *TrainModelCallback) Handle(ctx context.Context, event *domain.DispatchEvent) error {
	var model domain.Model
	if err := event.DecodePayload(&model); err != nil {
		return err
	}
	if model.ID <= 0 {
		return fmt.Errorf("%w: model id is missing", domain.ErrInvalidPayload)
	}

	hbCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	if c.toucher != nil && c.heartbeat > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.sendHeartbeat(hbCtx, model.ID)
		}()
	}
	defer func() {
		cancel()
		wg.Wait()
	}()

	err := c.executor.Execute(ctx, model.ID)
	if errors.Is(err, domain.ErrModelNotClaimable) {
		return nil
	}
	return err
}

// sendHeartbeat periodically touches the model until ctx is done.
func (c *TrainModelCallback) sendHeartbeat(ctx context.Context, id int64) {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	c.logger.Debug("Model heartbeat started",
		slog.Int64("model_id", id),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Model heartbeat stopped",
				slog.Int64("model_id", id),
			)
			return

		case <-ticker.C:
			if !c.toucher.Touch(ctx, id) {
				c.logger.Warn("Failed to update model heartbeat",
					slog.Int64("model_id", id),
				)
			}
		}
	}
}
