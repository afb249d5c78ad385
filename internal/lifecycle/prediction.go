package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/gwo-trainer/internal/domain"
	"github.com/cuongbtq/gwo-trainer/internal/preprocessing"
	"github.com/cuongbtq/gwo-trainer/internal/training"
)

// Prediction is the price estimated for a listing by one READY model.
type Prediction struct {
	ModelID int64
	Price   float64
	// MSE is the model's held-out error in price units
	MSE float64
}

// Predict estimates the price of listing with the READY model modelID, or the
// newest READY model when modelID is 0.
func (m *Manager) Predict(ctx context.Context, modelID int64, listing preprocessing.Listing) (*Prediction, error) {
	if m.artifacts == nil {
		return nil, errors.New("manager is not configured for prediction")
	}

	var model *domain.Model
	if modelID == 0 {
		model = m.models.SelectLatestReady(ctx)
	} else {
		model = m.models.SelectCompleteByID(ctx, modelID)
	}
	if model == nil {
		return nil, domain.ErrModelNotFound
	}

	blobs := make([][]byte, 0, 5)
	for _, p := range model.ArtifactPaths() {
		blob, err := m.artifacts.Read(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("failed to read artifact %s: %w", p, err)
		}
		blobs = append(blobs, blob)
	}

	net, err := training.DecodeNetwork(blobs[0])
	if err != nil {
		return nil, err
	}
	transformer, err := preprocessing.LoadTransformer(blobs[1], blobs[2], blobs[3], blobs[4])
	if err != nil {
		return nil, err
	}

	features, err := transformer.Features(listing)
	if err != nil {
		return nil, err
	}
	if len(features) != net.Inputs() {
		return nil, fmt.Errorf("model %d expects %d features, encoders produced %d", model.ID, net.Inputs(), len(features))
	}

	prediction := &Prediction{
		ModelID: model.ID,
		Price:   transformer.Price(net.Predict(features)),
		MSE:     transformer.Price(model.MSE),
	}

	m.logger.Debug("Price predicted",
		slog.Int64("model_id", model.ID),
		slog.Float64("price", prediction.Price),
	)
	return prediction, nil
}
