package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/gwo-trainer/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		if deps.HealthCheck != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
			defer cancel()

			if err := deps.HealthCheck(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": deps.ServiceName,
					"error":   err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": deps.ServiceName,
		})
	})

	if deps.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	// Initialize model handler
	modelHandler := handler.NewModelHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		models := v1.Group("/models")
		{
			// POST /api/v1/models - Schedule a model for training
			models.POST("", modelHandler.CreateModel)

			// GET /api/v1/models - Page through READY models
			models.GET("", modelHandler.ListModels)

			// GET /api/v1/models/latest - Latest READY model
			models.GET("/latest", modelHandler.GetLatestModel)

			// GET /api/v1/models/statistics - Model counts by status
			models.GET("/statistics", modelHandler.GetStatistics)

			// POST /api/v1/models/predict - Price estimate from a READY model
			models.POST("/predict", modelHandler.PredictPrice)

			// GET /api/v1/models/:id - Model status
			models.GET("/:id", modelHandler.GetModel)

			// GET /api/v1/models/:id/complete - READY model with artifact paths
			models.GET("/:id/complete", modelHandler.GetCompleteModel)

			// DELETE /api/v1/models/:id - Delete a model and its history
			models.DELETE("/:id", modelHandler.DeleteModel)
		}
	}

	return r
}
