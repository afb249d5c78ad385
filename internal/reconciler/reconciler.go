// Package reconciler fails models left in TRAINING by a worker that died.
//
// A training worker refreshes its model's updated_at on a heartbeat. A model
// still TRAINING whose updated_at is older than the threshold has no live
// worker and is moved to ERROR. It is never retried.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cuongbtq/gwo-trainer/internal/metrics"
)

// Store marks stale TRAINING models as ERROR.
type Store interface {
	FailStuck(ctx context.Context, olderThan time.Time, limit int) ([]int64, bool)
}

// Config holds reconciler configuration
type Config struct {
	// Schedule is a cron spec, descriptors such as "@every 5m" included.
	Schedule string

	// Threshold is the heartbeat age after which a TRAINING model is stuck.
	Threshold time.Duration

	// BatchSize bounds the models failed per cycle.
	BatchSize int
}

// DefaultConfig returns the default reconciler configuration.
func DefaultConfig() Config {
	return Config{
		Schedule:  "@every 5m",
		Threshold: 30 * time.Minute,
		BatchSize: 100,
	}
}

// Reconciler periodically sweeps stuck models.
type Reconciler struct {
	config  Config
	store   Store
	metrics metrics.Sink
	logger  *slog.Logger
	clock   func() time.Time
}

// New creates a new Reconciler.
func New(config Config, store Store, sink metrics.Sink, logger *slog.Logger) *Reconciler {
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	return &Reconciler{
		config:  config,
		store:   store,
		metrics: sink,
		logger:  logger,
		clock:   time.Now,
	}
}

// Run sweeps once immediately, then on the configured schedule until ctx is
// cancelled. A sweep in progress is allowed to finish before Run returns.
func (r *Reconciler) Run(ctx context.Context) error {
	scheduler := cron.New(cron.WithLocation(time.UTC))
	if _, err := scheduler.AddFunc(r.config.Schedule, func() { r.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("invalid reconciler schedule %q: %w", r.config.Schedule, err)
	}

	r.logger.Info("Reconciler started",
		slog.String("schedule", r.config.Schedule),
		slog.Duration("threshold", r.config.Threshold),
		slog.Int("batch_size", r.config.BatchSize),
	)

	r.RunOnce(ctx)
	scheduler.Start()

	<-ctx.Done()
	<-scheduler.Stop().Done()

	r.logger.Info("Reconciler stopped")
	return nil
}

// RunOnce performs one sweep and returns the number of models failed.
func (r *Reconciler) RunOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}

	olderThan := r.clock().UTC().Add(-r.config.Threshold)

	ids, ok := r.store.FailStuck(ctx, olderThan, r.config.BatchSize)
	if !ok {
		r.logger.Error("Failed to sweep stuck models")
		return 0
	}
	if len(ids) == 0 {
		return 0
	}

	r.metrics.StuckModelsFailed(len(ids))
	r.logger.Warn("Stuck models marked as errored",
		slog.Int("count", len(ids)),
		slog.Any("model_ids", ids),
		slog.Time("older_than", olderThan),
	)
	return len(ids)
}
