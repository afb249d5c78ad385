package dto

import "github.com/cuongbtq/gwo-trainer/internal/domain"

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type CreateModelRequest struct {
	Name            string                    `json:"name" binding:"required,max=255"`
	Hyperparameters domain.HyperparameterSpec `json:"hyperparameters"`
	Epochs          int                       `json:"epochs" binding:"omitempty,min=1"`
	PopulationSize  int                       `json:"population_size" binding:"omitempty,min=1"`
}

type ListModelsRequest struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1"`
}

// Normalize fills in the first page and clamps the page size.
func (r *ListModelsRequest) Normalize() {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PageSize < 1 {
		r.PageSize = DefaultPageSize
	}
	if r.PageSize > MaxPageSize {
		r.PageSize = MaxPageSize
	}
}

type ListModelsResponse struct {
	Models   []domain.ModelWithHistory `json:"models"`
	Page     int                       `json:"page"`
	PageSize int                       `json:"page_size"`
}

type StatisticsResponse struct {
	Statistics map[string]int `json:"statistics"`
	Total      int            `json:"total"`
}

// NewStatisticsResponse keys counts by status label. Every status is listed.
func NewStatisticsResponse(stats map[domain.Status]int) StatisticsResponse {
	resp := StatisticsResponse{Statistics: make(map[string]int, len(domain.Statuses))}
	for _, status := range domain.Statuses {
		resp.Statistics[status.Label()] = 0
	}
	for status, n := range stats {
		resp.Statistics[status.Label()] += n
		resp.Total += n
	}
	return resp
}

type PredictRequest struct {
	// ModelID selects a READY model; the newest one is used when omitted
	ModelID          int64    `json:"model_id" binding:"omitempty,min=1"`
	Rooms            int      `json:"rooms" binding:"min=0"`
	Bathrooms        int      `json:"bathrooms" binding:"min=0"`
	ParkingSpace     int      `json:"parking_space" binding:"min=0"`
	Size             int      `json:"size" binding:"min=1"`
	NeighborhoodName string   `json:"neighborhood_name" binding:"required"`
	FloodQuota       *float64 `json:"flood_quota"`
}

type PredictResponse struct {
	ModelID        int64          `json:"model_id"`
	Property       PredictRequest `json:"property"`
	PredictedPrice float64        `json:"predicted_price"`
	MSE            float64        `json:"mse"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
