package routes

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/itsdivyanshjha/meta-data-tag-generator/api/handlers"
	"github.com/itsdivyanshjha/meta-data-tag-generator/api/middleware"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/logger"
)

type Options struct {
	RateLimitRPS   float64
	RateLimitBurst int
}

// SetupRoutes registers the API. ctx bounds the rate limiter's cleanup.
func SetupRoutes(ctx context.Context, r *gin.Engine, h *handlers.Handlers, log logger.Logger, opts Options) {
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(log))
	r.Use(middleware.CORS())

	v1 := r.Group("/api/v1")
	v1.GET("/health", h.Health.Check)

	limited := v1.Group("")
	limited.Use(middleware.RateLimit(ctx, opts.RateLimitRPS, opts.RateLimitBurst))

	docs := limited.Group("/documents")
	{
		docs.POST("/tag", h.Document.TagDocument)
	}

	batches := limited.Group("/batches")
	{
		batches.POST("", h.Batch.Submit)
		batches.POST("/stream", h.Batch.Stream)
		batches.DELETE("/:jobId", h.Batch.Cancel)
	}

	// reads are not rate limited so clients can poll and follow streams
	reads := v1.Group("/batches")
	{
		reads.GET("/:jobId", h.Batch.Status)
		reads.GET("/:jobId/events", h.Batch.Events)
		reads.GET("/:jobId/export", h.Batch.Export)
	}
}
