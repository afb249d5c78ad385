package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/gwo-trainer/internal/artifact"
	"github.com/cuongbtq/gwo-trainer/internal/cache"
	"github.com/cuongbtq/gwo-trainer/internal/domain"
	"github.com/cuongbtq/gwo-trainer/internal/metrics"
	"github.com/cuongbtq/gwo-trainer/internal/training"
)

// ModelStore is the model repository surface the manager uses.
type ModelStore interface {
	Create(ctx context.Context, model *domain.Model) *domain.Model
	UpdateStatus(ctx context.Context, id int64, status domain.Status) bool
	Update(ctx context.Context, model *domain.Model) bool
	ClaimForTraining(ctx context.Context, id int64) *domain.Model
	SelectLatest(ctx context.Context) *domain.Model
	SelectLatestReady(ctx context.Context) *domain.Model
	SelectCompleteByID(ctx context.Context, id int64) *domain.Model
	SelectByID(ctx context.Context, id int64) *domain.ModelSummary
	SelectPage(ctx context.Context, page, pageSize int) ([]domain.Model, bool)
	SelectStatistics(ctx context.Context) (map[domain.Status]int, bool)
	DeleteByID(ctx context.Context, id int64) bool
}

// HistoryStore is the history repository surface the manager uses.
type HistoryStore interface {
	SelectByModelID(ctx context.Context, modelID int64) ([]domain.History, bool)
	SelectByModelIDs(ctx context.Context, modelIDs []int64) (map[int64][]domain.History, bool)
	DeleteByModelID(ctx context.Context, modelID int64) bool
}

// Publisher delivers dispatch events.
type Publisher interface {
	Send(ctx context.Context, event *domain.DispatchEvent) bool
}

// Preparer builds the training dataset.
type Preparer interface {
	Prepare(ctx context.Context) (*training.Dataset, training.Encoders, error)
}

// Trainer runs the optimization for one model.
type Trainer interface {
	Run(ctx context.Context, model *domain.Model, data *training.Dataset) (*training.Result, error)
}

// Config holds lifecycle configuration
type Config struct {
	Origin                string
	TrainChannel          string
	DefaultEpochs         int
	DefaultPopulationSize int
	MinimalAge            time.Duration
}

// Dependencies are the collaborators of a Manager. Preparer, Trainer and
// Artifacts are only needed to Execute; Cache and Metrics are optional.
type Dependencies struct {
	Models    ModelStore
	Histories HistoryStore
	Publisher Publisher
	Preparer  Preparer
	Trainer   Trainer
	Artifacts artifact.Store
	Cache     cache.SummaryCache
	Metrics   metrics.Sink
	Logger    *slog.Logger
}

// Manager drives models through SCHEDULED, TRAINING and READY or ERROR.
type Manager struct {
	models    ModelStore
	histories HistoryStore
	publisher Publisher
	preparer  Preparer
	trainer   Trainer
	artifacts artifact.Store
	cache     cache.SummaryCache
	metrics   metrics.Sink
	config    Config
	logger    *slog.Logger
	clock     func() time.Time
}

// NewManager creates a lifecycle manager.
func NewManager(config Config, deps Dependencies) *Manager {
	if deps.Cache == nil {
		deps.Cache = cache.NoopCache{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoopSink()
	}
	return &Manager{
		models:    deps.Models,
		histories: deps.Histories,
		publisher: deps.Publisher,
		preparer:  deps.Preparer,
		trainer:   deps.Trainer,
		artifacts: deps.Artifacts,
		cache:     deps.Cache,
		metrics:   deps.Metrics,
		config:    config,
		logger:    deps.Logger,
		clock:     time.Now,
	}
}

// ScheduleRequest describes a model to train.
type ScheduleRequest struct {
	Name            string
	Hyperparameters domain.HyperparameterSpec
	Epochs          int
	PopulationSize  int
}

// PreCreate validates the search space and stores a SCHEDULED model.
func (m *Manager) PreCreate(ctx context.Context, req ScheduleRequest) (*domain.Model, error) {
	if err := req.Hyperparameters.Validate(); err != nil {
		return nil, err
	}

	epochs := req.Epochs
	if epochs <= 0 {
		epochs = m.config.DefaultEpochs
	}
	population := req.PopulationSize
	if population <= 0 {
		population = m.config.DefaultPopulationSize
	}

	created := m.models.Create(ctx, &domain.Model{
		Name:           req.Name,
		GWOParams:      req.Hyperparameters.Expand(),
		Epochs:         epochs,
		PopulationSize: population,
	})
	if created == nil {
		return nil, fmt.Errorf("failed to create model: %w", domain.ErrStoreUnavailable)
	}
	m.metrics.StatusTransition(string(domain.StatusScheduled))

	m.logger.Info("Model scheduled",
		slog.Int64("model_id", created.ID),
		slog.String("name", created.Name),
		slog.Int("epochs", created.Epochs),
		slog.Int("population_size", created.PopulationSize),
	)
	return created, nil
}

// Dispatch publishes a training event for model. It reports whether the event was delivered.
func (m *Manager) Dispatch(ctx context.Context, model *domain.Model) bool {
	event, err := domain.NewDispatchEvent(m.config.Origin, m.config.TrainChannel, model)
	if err != nil {
		m.logger.Error("Failed to build dispatch event",
			slog.Int64("model_id", model.ID),
			slog.Any("error", err),
		)
		return false
	}
	return m.publisher.Send(ctx, event)
}

// Schedule creates a model and dispatches it for training.
//
// Scheduling is refused while the most recently created model is younger than
// the configured minimal age. A model whose event cannot be delivered is moved
// to ERROR since no worker would ever pick it up.
func (m *Manager) Schedule(ctx context.Context, req ScheduleRequest) (*domain.Model, error) {
	if m.config.MinimalAge > 0 {
		if latest := m.models.SelectLatest(ctx); latest != nil && m.clock().Sub(latest.CreatedAt) <= m.config.MinimalAge {
			return nil, domain.ErrTrainingThrottled
		}
	}

	model, err := m.PreCreate(ctx, req)
	if err != nil {
		return nil, err
	}

	if !m.Dispatch(ctx, model) {
		if m.models.UpdateStatus(ctx, model.ID, domain.StatusError) {
			m.metrics.StatusTransition(string(domain.StatusError))
		}
		return nil, fmt.Errorf("model %d: %w", model.ID, domain.ErrDispatchFailed)
	}
	return model, nil
}

// Execute trains the model with id.
//
// The model is claimed atomically; if it is no longer SCHEDULED nothing
// happens and ErrModelNotClaimable is returned. Once claimed, any error or
// panic ends the model in ERROR.
func (m *Manager) Execute(ctx context.Context, id int64) (err error) {
	model := m.models.ClaimForTraining(ctx, id)
	if model == nil {
		m.logger.Info("Model is not claimable, skipping",
			slog.Int64("model_id", id),
		)
		return domain.ErrModelNotClaimable
	}
	m.metrics.StatusTransition(string(domain.StatusTraining))
	m.cache.Evict(ctx, id)

	m.logger.Info("Training started",
		slog.Int64("model_id", id),
		slog.String("name", model.Name),
	)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("training panicked: %v", r)
		}
		if err != nil {
			m.fail(ctx, id, err)
		}
	}()

	if m.preparer == nil || m.trainer == nil || m.artifacts == nil {
		return errors.New("manager is not configured for training")
	}

	data, encoders, err := m.preparer.Prepare(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare dataset: %w", err)
	}

	result, err := m.trainer.Run(ctx, model, data)
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	if err := m.persistArtifacts(ctx, model, result, encoders); err != nil {
		return err
	}
	model.MSE = result.MSE

	// paths, mse and READY land together or not at all
	if !m.models.Update(ctx, model) {
		return fmt.Errorf("failed to store training result: %w", domain.ErrStoreUnavailable)
	}
	m.metrics.StatusTransition(string(domain.StatusReady))
	m.cache.Evict(ctx, id)

	m.logger.Info("Training completed",
		slog.Int64("model_id", id),
		slog.Float64("mse", result.MSE),
		slog.Int("evaluations", result.Evaluations),
		slog.String("path", model.Path),
	)
	return nil
}

func (m *Manager) persistArtifacts(ctx context.Context, model *domain.Model, result *training.Result, encoders training.Encoders) error {
	now := m.clock()

	blobs := []struct {
		dest *string
		path string
		blob []byte
	}{
		{&model.Path, artifact.ModelPath(model.ID, now), result.Artifact},
		{&model.NeighborhoodEncoder, artifact.EncoderPath(artifact.NeighborhoodEncoder, model.ID, now), encoders.Neighborhood},
		{&model.OneHotEncoder, artifact.EncoderPath(artifact.OneHotEncoder, model.ID, now), encoders.OneHot},
		{&model.XMinMax, artifact.EncoderPath(artifact.XMinMax, model.ID, now), encoders.XMinMax},
		{&model.YMinMax, artifact.EncoderPath(artifact.YMinMax, model.ID, now), encoders.YMinMax},
	}

	for _, b := range blobs {
		written, err := m.artifacts.Write(ctx, b.path, b.blob)
		if err != nil {
			return fmt.Errorf("failed to store artifact: %w", err)
		}
		*b.dest = written
	}
	return nil
}

// fail moves a claimed model to ERROR. It runs even when ctx is already cancelled.
func (m *Manager) fail(ctx context.Context, id int64, cause error) {
	ctx = context.WithoutCancel(ctx)

	m.logger.Error("Training failed",
		slog.Int64("model_id", id),
		slog.Any("error", cause),
	)

	if !m.models.UpdateStatus(ctx, id, domain.StatusError) {
		m.logger.Error("Failed to mark model as errored",
			slog.Int64("model_id", id),
		)
		return
	}
	m.metrics.StatusTransition(string(domain.StatusError))
	m.cache.Evict(ctx, id)
}

// Summary returns the status projection of a model. TRAINING models carry an
// estimate of the seconds left.
func (m *Manager) Summary(ctx context.Context, id int64) (*domain.ModelSummary, error) {
	if cached, ok := m.cache.Get(ctx, id); ok {
		return cached, nil
	}

	summary := m.models.SelectByID(ctx, id)
	if summary == nil {
		return nil, domain.ErrModelNotFound
	}

	if summary.Status == domain.StatusTraining {
		histories, ok := m.histories.SelectByModelID(ctx, id)
		if !ok {
			return nil, fmt.Errorf("failed to load history: %w", domain.ErrStoreUnavailable)
		}
		seconds := EstimateRemaining(histories, summary.Epochs, summary.PopulationSize).Seconds()
		summary.EstimatedSecondsRemaining = &seconds
	}

	m.cache.Set(ctx, summary)
	return summary, nil
}

// Page returns READY models newest first, each with its history.
func (m *Manager) Page(ctx context.Context, page, pageSize int) ([]domain.ModelWithHistory, error) {
	models, ok := m.models.SelectPage(ctx, page, pageSize)
	if !ok {
		return nil, fmt.Errorf("failed to list models: %w", domain.ErrStoreUnavailable)
	}

	ids := make([]int64, len(models))
	for i, model := range models {
		ids[i] = model.ID
	}

	histories, ok := m.histories.SelectByModelIDs(ctx, ids)
	if !ok {
		return nil, fmt.Errorf("failed to load histories: %w", domain.ErrStoreUnavailable)
	}

	out := make([]domain.ModelWithHistory, len(models))
	for i, model := range models {
		h := histories[model.ID]
		if h == nil {
			h = []domain.History{}
		}
		out[i] = domain.ModelWithHistory{Model: model, Histories: h}
	}
	return out, nil
}

// LatestReady returns the newest READY model.
func (m *Manager) LatestReady(ctx context.Context) (*domain.Model, error) {
	model := m.models.SelectLatestReady(ctx)
	if model == nil {
		return nil, domain.ErrModelNotFound
	}
	return model, nil
}

// Complete returns the model with id if it is READY.
func (m *Manager) Complete(ctx context.Context, id int64) (*domain.Model, error) {
	model := m.models.SelectCompleteByID(ctx, id)
	if model == nil {
		return nil, domain.ErrModelNotFound
	}
	return model, nil
}

// Statistics counts models by status.
func (m *Manager) Statistics(ctx context.Context) (map[domain.Status]int, error) {
	stats, ok := m.models.SelectStatistics(ctx)
	if !ok {
		return nil, fmt.Errorf("failed to count models: %w", domain.ErrStoreUnavailable)
	}
	return stats, nil
}

// Delete removes a model after its history.
func (m *Manager) Delete(ctx context.Context, id int64) error {
	if !m.histories.DeleteByModelID(ctx, id) {
		return fmt.Errorf("failed to delete history: %w", domain.ErrStoreUnavailable)
	}
	if !m.models.DeleteByID(ctx, id) {
		return domain.ErrModelNotFound
	}
	m.cache.Evict(ctx, id)

	m.logger.Info("Model deleted", slog.Int64("model_id", id))
	return nil
}
