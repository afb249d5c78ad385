package storage

import (
	"context"
	"log/slog"

	"github.com/lib/pq"

	"github.com/cuongbtq/gwo-trainer/internal/domain"
)

const historyColumns = `id, model_id, epoch, mse, params, created_at, updated_at`

// HistoryRepository persists per-evaluation training history.
type HistoryRepository struct {
	store  Store
	logger *slog.Logger
}

// NewHistoryRepository creates a history repository on store.
func NewHistoryRepository(store Store, logger *slog.Logger) *HistoryRepository {
	return &HistoryRepository{
		store:  store,
		logger: logger,
	}
}

// Create inserts one evaluation record.
func (r *HistoryRepository) Create(ctx context.Context, history *domain.History) *domain.History {
	query := `
		INSERT INTO model_histories (model_id, epoch, mse, params, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING ` + historyColumns

	var created domain.History
	if !write(ctx, r.store, r.logger, &created, false, query,
		history.ModelID, history.Epoch, history.MSE, history.Params) {
		return nil
	}
	return &created
}

// SelectByModelID returns the history of one model ordered by epoch.
func (r *HistoryRepository) SelectByModelID(ctx context.Context, modelID int64) ([]domain.History, bool) {
	query := `
		SELECT ` + historyColumns + `
		FROM model_histories
		WHERE model_id = $1
		ORDER BY epoch`

	var histories []domain.History
	if !read(ctx, r.store, r.logger, &histories, true, query, modelID) {
		return nil, false
	}
	return histories, true
}

// SelectByModelIDs returns the histories of several models grouped by model id,
// each ordered by epoch. Models without history are absent from the map.
func (r *HistoryRepository) SelectByModelIDs(ctx context.Context, modelIDs []int64) (map[int64][]domain.History, bool) {
	grouped := make(map[int64][]domain.History, len(modelIDs))
	if len(modelIDs) == 0 {
		return grouped, true
	}

	query := `
		SELECT ` + historyColumns + `
		FROM model_histories
		WHERE model_id = ANY($1)
		ORDER BY model_id, epoch`

	var histories []domain.History
	if !read(ctx, r.store, r.logger, &histories, true, query, pq.Array(modelIDs)) {
		return nil, false
	}

	for _, h := range histories {
		grouped[h.ModelID] = append(grouped[h.ModelID], h)
	}
	return grouped, true
}

// DeleteByModelID removes the whole history of a model.
// It reports whether the statement ran, which is also true when there was nothing to delete.
func (r *HistoryRepository) DeleteByModelID(ctx context.Context, modelID int64) bool {
	query := `DELETE FROM model_histories WHERE model_id = $1 RETURNING id`

	var deleted []int64
	return write(ctx, r.store, r.logger, &deleted, true, query, modelID)
}
