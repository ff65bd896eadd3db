package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/service/document"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/logger"
)

// EventSource follows the progress events of a queued job.
type EventSource interface {
	Subscribe(ctx context.Context, jobID string) (<-chan models.ProgressEvent, error)
}

// HealthCheck reports whether one backend is reachable.
type HealthCheck func(ctx context.Context) error

type Handlers struct {
	Document *DocumentHandler
	Batch    *BatchHandler
	Health   *HealthHandler
}

type Options struct {
	MaxUploadBytes int64
	Events         EventSource
	Checks         map[string]HealthCheck
}

func NewHandlers(service document.TaggingService, log logger.Logger, opts Options) *Handlers {
	log = log.Named("api")
	return &Handlers{
		Document: NewDocumentHandler(service, log, opts.MaxUploadBytes),
		Batch:    NewBatchHandler(service, opts.Events, log, opts.MaxUploadBytes),
		Health:   NewHealthHandler(opts.Checks),
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// writeError maps service errors to HTTP statuses and logs server-side
// failures.
func writeError(c *gin.Context, log logger.Logger, message string, err error) {
	status := http.StatusInternalServerError
	resp := ErrorResponse{Message: message}
	if err != nil {
		resp.Error = err.Error()
	}

	var invalid *document.InvalidRequestError
	switch {
	case errors.As(err, &invalid):
		status = http.StatusBadRequest
		resp.Details = invalid.Errors
	case errors.Is(err, models.ErrJobNotFound):
		status = http.StatusNotFound
	case errors.Is(err, document.ErrJobFinished):
		status = http.StatusConflict
	case errors.Is(err, document.ErrQueueUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		// client went away; nothing useful to send
		status = 499
	}

	if status >= http.StatusInternalServerError {
		log.Error(message, logger.String("path", c.Request.URL.Path), logger.Error(err))
	} else {
		log.Debug(message, logger.String("path", c.Request.URL.Path), logger.Error(err))
	}
	c.JSON(status, resp)
}

func badRequest(c *gin.Context, message string, err error) {
	resp := ErrorResponse{Message: message}
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(http.StatusBadRequest, resp)
}
