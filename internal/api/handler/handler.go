package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/gwo-trainer/internal/domain"
	"github.com/cuongbtq/gwo-trainer/internal/lifecycle"
	"github.com/cuongbtq/gwo-trainer/internal/preprocessing"
)

// Service is the model lifecycle surface exposed over HTTP.
type Service interface {
	Schedule(ctx context.Context, req lifecycle.ScheduleRequest) (*domain.Model, error)
	Summary(ctx context.Context, id int64) (*domain.ModelSummary, error)
	Page(ctx context.Context, page, pageSize int) ([]domain.ModelWithHistory, error)
	LatestReady(ctx context.Context) (*domain.Model, error)
	Complete(ctx context.Context, id int64) (*domain.Model, error)
	Statistics(ctx context.Context) (map[domain.Status]int, error)
	Delete(ctx context.Context, id int64) error
	Predict(ctx context.Context, modelID int64, listing preprocessing.Listing) (*lifecycle.Prediction, error)
}

// ServiceFactory builds a Service for one request. The returned function
// releases what the service holds and must be called when the request is done.
type ServiceFactory func() (Service, func())

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger         *slog.Logger
	Services       ServiceFactory
	HealthCheck    func(ctx context.Context) error
	MetricsHandler http.Handler
	ServiceName    string
}

// ModelHandler handles model-related HTTP requests
type ModelHandler struct {
	logger   *slog.Logger
	services ServiceFactory
}

// NewModelHandler creates a new ModelHandler instance
func NewModelHandler(deps *Dependencies) *ModelHandler {
	return &ModelHandler{
		logger:   deps.Logger,
		services: deps.Services,
	}
}
