package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/cuongbtq/gwo-trainer/internal/domain"
)

// Store is the retrying session the repositories run their statements on.
type Store interface {
	ExecuteWithRetry(ctx context.Context, dest any, many bool, query string, args ...any) bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

const modelColumns = `id, name, status, gwo_params, epochs, population_size, path,
	neighborhood_encoder, one_hot_encoder, x_min_max, y_min_max, mse, created_at, updated_at`

// ModelRepository persists models.
//
// Reads roll back and writes commit once their statement has run. A false or
// nil result means the row was absent or the store gave up; the store has
// already logged the latter.
type ModelRepository struct {
	store  Store
	logger *slog.Logger
}

// NewModelRepository creates a model repository on store.
func NewModelRepository(store Store, logger *slog.Logger) *ModelRepository {
	return &ModelRepository{
		store:  store,
		logger: logger,
	}
}

// Create inserts a SCHEDULED model and returns it with its generated fields.
func (r *ModelRepository) Create(ctx context.Context, model *domain.Model) *domain.Model {
	query := `
		INSERT INTO models (name, status, gwo_params, epochs, population_size, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING ` + modelColumns

	var created domain.Model
	if !write(ctx, r.store, r.logger, &created, false, query,
		model.Name, domain.StatusScheduled, model.GWOParams, model.Epochs, model.PopulationSize) {
		return nil
	}
	return &created
}

// UpdateStatus moves a model to status if the state machine allows it from its current status.
func (r *ModelRepository) UpdateStatus(ctx context.Context, id int64, status domain.Status) bool {
	from := status.Predecessors()
	if len(from) == 0 {
		return false
	}

	query := `
		UPDATE models
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = ANY($3)
		RETURNING id`

	var updated int64
	return write(ctx, r.store, r.logger, &updated, false, query, status, id, pq.Array(statusStrings(from)))
}

// ClaimForTraining atomically moves a SCHEDULED model to TRAINING and returns it.
// It returns nil when the model is missing or no longer SCHEDULED.
func (r *ModelRepository) ClaimForTraining(ctx context.Context, id int64) *domain.Model {
	query := `
		UPDATE models
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
		RETURNING ` + modelColumns

	var claimed domain.Model
	if !write(ctx, r.store, r.logger, &claimed, false, query, domain.StatusTraining, id, domain.StatusScheduled) {
		return nil
	}
	return &claimed
}

// Update stores the training outcome of a model that is still TRAINING and marks it READY
// in the same statement, so a READY row always carries its artifacts.
func (r *ModelRepository) Update(ctx context.Context, model *domain.Model) bool {
	query := `
		UPDATE models
		SET status = $10,
			path = $1,
			neighborhood_encoder = $2,
			one_hot_encoder = $3,
			x_min_max = $4,
			y_min_max = $5,
			mse = $6,
			gwo_params = $7,
			updated_at = NOW()
		WHERE id = $8 AND status = $9
		RETURNING id`

	var updated int64
	return write(ctx, r.store, r.logger, &updated, false, query,
		model.Path,
		model.NeighborhoodEncoder,
		model.OneHotEncoder,
		model.XMinMax,
		model.YMinMax,
		model.MSE,
		model.GWOParams,
		model.ID,
		domain.StatusTraining,
		domain.StatusReady,
	)
}

// Touch refreshes updated_at of a TRAINING model.
func (r *ModelRepository) Touch(ctx context.Context, id int64) bool {
	query := `
		UPDATE models
		SET updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING id`

	var touched int64
	return write(ctx, r.store, r.logger, &touched, false, query, id, domain.StatusTraining)
}

// FailStuck moves up to limit TRAINING models not updated since olderThan to ERROR
// and returns their ids.
func (r *ModelRepository) FailStuck(ctx context.Context, olderThan time.Time, limit int) ([]int64, bool) {
	query := `
		UPDATE models
		SET status = $1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM models
			WHERE status = $2 AND updated_at < $3
			ORDER BY updated_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id`

	var ids []int64
	if !write(ctx, r.store, r.logger, &ids, true, query, domain.StatusError, domain.StatusTraining, olderThan, limit) {
		return nil, false
	}
	return ids, true
}

// SelectLatest returns the most recently created model in any status.
func (r *ModelRepository) SelectLatest(ctx context.Context) *domain.Model {
	query := `SELECT ` + modelColumns + ` FROM models ORDER BY created_at DESC, id DESC LIMIT 1`

	var model domain.Model
	if !read(ctx, r.store, r.logger, &model, false, query) {
		return nil
	}
	return &model
}

// SelectLatestReady returns the most recently created READY model.
func (r *ModelRepository) SelectLatestReady(ctx context.Context) *domain.Model {
	query := `
		SELECT ` + modelColumns + `
		FROM models
		WHERE status = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	var model domain.Model
	if !read(ctx, r.store, r.logger, &model, false, query, domain.StatusReady) {
		return nil
	}
	return &model
}

// SelectCompleteByID returns the model with id only if it is READY.
func (r *ModelRepository) SelectCompleteByID(ctx context.Context, id int64) *domain.Model {
	query := `SELECT ` + modelColumns + ` FROM models WHERE id = $1 AND status = $2`

	var model domain.Model
	if !read(ctx, r.store, r.logger, &model, false, query, id, domain.StatusReady) {
		return nil
	}
	return &model
}

// SelectByID returns the summary projection of a model in any status.
func (r *ModelRepository) SelectByID(ctx context.Context, id int64) *domain.ModelSummary {
	query := `
		SELECT id, name, status, epochs, population_size, created_at, updated_at
		FROM models
		WHERE id = $1`

	var summary domain.ModelSummary
	if !read(ctx, r.store, r.logger, &summary, false, query, id) {
		return nil
	}
	return &summary
}

// SelectPage returns one page of READY models with a positive error, newest first.
// Pages start at 1.
func (r *ModelRepository) SelectPage(ctx context.Context, page, pageSize int) ([]domain.Model, bool) {
	if page < 1 {
		page = 1
	}
	query := `
		SELECT ` + modelColumns + `
		FROM models
		WHERE status = $1 AND mse > 0
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	var models []domain.Model
	if !read(ctx, r.store, r.logger, &models, true, query, domain.StatusReady, pageSize, (page-1)*pageSize) {
		return nil, false
	}
	return models, true
}

type statusCount struct {
	Status domain.Status `db:"status"`
	Total  int           `db:"total"`
}

// SelectStatistics counts models by status. Every status is present, zero when unused.
func (r *ModelRepository) SelectStatistics(ctx context.Context) (map[domain.Status]int, bool) {
	query := `SELECT status, COUNT(*) AS total FROM models GROUP BY status`

	var counts []statusCount
	if !read(ctx, r.store, r.logger, &counts, true, query) {
		return nil, false
	}

	stats := make(map[domain.Status]int, len(domain.Statuses))
	for _, s := range domain.Statuses {
		stats[s] = 0
	}
	for _, c := range counts {
		stats[c.Status] = c.Total
	}
	return stats, true
}

// DeleteByID removes a model. Its history must be deleted first.
func (r *ModelRepository) DeleteByID(ctx context.Context, id int64) bool {
	query := `DELETE FROM models WHERE id = $1 RETURNING id`

	var deleted int64
	return write(ctx, r.store, r.logger, &deleted, false, query, id)
}

func statusStrings(statuses []domain.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func write(ctx context.Context, store Store, logger *slog.Logger, dest any, many bool, query string, args ...any) bool {
	if !store.ExecuteWithRetry(ctx, dest, many, query, args...) {
		if err := store.Rollback(ctx); err != nil {
			logger.Warn("Failed to roll back after unsuccessful write", slog.Any("error", err))
		}
		return false
	}
	if err := store.Commit(ctx); err != nil {
		logger.Error("Failed to commit write", slog.Any("error", err))
		return false
	}
	return true
}

func read(ctx context.Context, store Store, logger *slog.Logger, dest any, many bool, query string, args ...any) bool {
	ok := store.ExecuteWithRetry(ctx, dest, many, query, args...)
	if err := store.Rollback(ctx); err != nil {
		logger.Warn("Failed to end read transaction", slog.Any("error", err))
	}
	return ok
}
