package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/gwo-trainer/internal/api/dto"
	"github.com/cuongbtq/gwo-trainer/internal/domain"
	"github.com/cuongbtq/gwo-trainer/internal/lifecycle"
	"github.com/cuongbtq/gwo-trainer/internal/preprocessing"
)

// CreateModel handles POST /api/v1/models
// Schedules a new model and dispatches it for training
func (h *ModelHandler) CreateModel(c *gin.Context) {
	var req dto.CreateModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.Any("error", err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	service, release := h.services()
	defer release()

	model, err := service.Schedule(c.Request.Context(), lifecycle.ScheduleRequest{
		Name:            req.Name,
		Hyperparameters: req.Hyperparameters,
		Epochs:          req.Epochs,
		PopulationSize:  req.PopulationSize,
	})
	if err != nil {
		h.writeError(c, "Failed to schedule model", err)
		return
	}

	c.JSON(http.StatusAccepted, model)
}

// ListModels handles GET /api/v1/models
// Returns a page of READY models, newest first, with their histories
func (h *ModelHandler) ListModels(c *gin.Context) {
	var req dto.ListModelsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid pagination parameters"})
		return
	}
	req.Normalize()

	service, release := h.services()
	defer release()

	models, err := service.Page(c.Request.Context(), req.Page, req.PageSize)
	if err != nil {
		h.writeError(c, "Failed to list models", err)
		return
	}

	c.JSON(http.StatusOK, dto.ListModelsResponse{
		Models:   models,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
}

// GetLatestModel handles GET /api/v1/models/latest
func (h *ModelHandler) GetLatestModel(c *gin.Context) {
	service, release := h.services()
	defer release()

	model, err := service.LatestReady(c.Request.Context())
	if err != nil {
		h.writeError(c, "Failed to get latest model", err)
		return
	}

	c.JSON(http.StatusOK, model)
}

// GetStatistics handles GET /api/v1/models/statistics
func (h *ModelHandler) GetStatistics(c *gin.Context) {
	service, release := h.services()
	defer release()

	stats, err := service.Statistics(c.Request.Context())
	if err != nil {
		h.writeError(c, "Failed to count models", err)
		return
	}

	c.JSON(http.StatusOK, dto.NewStatisticsResponse(stats))
}

// PredictPrice handles POST /api/v1/models/predict
// Estimates a listing's price with a READY model
func (h *ModelHandler) PredictPrice(c *gin.Context) {
	var req dto.PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.Any("error", err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	service, release := h.services()
	defer release()

	prediction, err := service.Predict(c.Request.Context(), req.ModelID, preprocessing.Listing{
		Rooms:        float64(req.Rooms),
		Bathrooms:    float64(req.Bathrooms),
		Size:         float64(req.Size),
		ParkingSpace: float64(req.ParkingSpace),
		Neighborhood: req.NeighborhoodName,
		FloodQuota:   req.FloodQuota,
	})
	if err != nil {
		h.writeError(c, "Failed to predict price", err)
		return
	}

	c.JSON(http.StatusOK, dto.PredictResponse{
		ModelID:        prediction.ModelID,
		Property:       req,
		PredictedPrice: prediction.Price,
		MSE:            prediction.MSE,
	})
}

// GetModel handles GET /api/v1/models/:id
// Returns the model status, with an estimate of the time left while training
func (h *ModelHandler) GetModel(c *gin.Context) {
	id, ok := h.modelID(c)
	if !ok {
		return
	}

	service, release := h.services()
	defer release()

	summary, err := service.Summary(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "Failed to get model", err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// GetCompleteModel handles GET /api/v1/models/:id/complete
func (h *ModelHandler) GetCompleteModel(c *gin.Context) {
	id, ok := h.modelID(c)
	if !ok {
		return
	}

	service, release := h.services()
	defer release()

	model, err := service.Complete(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "Failed to get model", err)
		return
	}

	c.JSON(http.StatusOK, model)
}

// DeleteModel handles DELETE /api/v1/models/:id
func (h *ModelHandler) DeleteModel(c *gin.Context) {
	id, ok := h.modelID(c)
	if !ok {
		return
	}

	service, release := h.services()
	defer release()

	if err := service.Delete(c.Request.Context(), id); err != nil {
		h.writeError(c, "Failed to delete model", err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *ModelHandler) modelID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid model id"})
		return 0, false
	}
	return id, true
}

// writeError maps domain errors to HTTP status codes.
func (h *ModelHandler) writeError(c *gin.Context, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidHyperparameters), errors.Is(err, domain.ErrInvalidListing):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrModelNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrTrainingThrottled):
		status = http.StatusTooManyRequests
	case errors.Is(err, domain.ErrStoreUnavailable), errors.Is(err, domain.ErrDispatchFailed):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	}
	c.JSON(status, dto.ErrorResponse{Error: err.Error()})
}
