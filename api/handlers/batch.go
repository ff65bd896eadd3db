package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/service/document"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/logger"
)

const keepAliveInterval = 15 * time.Second

type BatchHandler struct {
	service   document.TaggingService
	events    EventSource
	logger    logger.Logger
	maxUpload int64
}

// SubmitResponse is returned when a batch is accepted.
type SubmitResponse struct {
	JobID     string    `json:"jobId"`
	Status    string    `json:"status"`
	Total     int       `json:"total"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewBatchHandler(service document.TaggingService, events EventSource, log logger.Logger, maxUpload int64) *BatchHandler {
	if maxUpload <= 0 {
		maxUpload = 50 * 1024 * 1024
	}
	return &BatchHandler{
		service:   service,
		events:    events,
		logger:    log,
		maxUpload: maxUpload,
	}
}

// batchInput reads a batch either as JSON references or as a multipart
// form of uploaded files.
func (h *BatchHandler) batchInput(c *gin.Context) ([]models.DocumentRef, models.JobConfig, BatchRequest, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		form, err := c.MultipartForm()
		if err != nil {
			return nil, models.JobConfig{}, BatchRequest{}, fmt.Errorf("invalid form data: %w", err)
		}
		files := form.File["files"]
		if len(files) == 0 {
			return nil, models.JobConfig{}, BatchRequest{}, fmt.Errorf("no files provided")
		}
		titles := form.Value["titles"]
		refs := make([]models.DocumentRef, 0, len(files))
		for i, fh := range files {
			upload, err := readUpload(fh, h.maxUpload)
			if err != nil {
				return nil, models.JobConfig{}, BatchRequest{}, err
			}
			ref := models.DocumentRef{
				SourceKind: models.SourceInline,
				Locator:    upload.Filename,
				Data:       upload.Data,
			}
			if i < len(titles) {
				ref.Title = strings.TrimSpace(titles[i])
			}
			refs = append(refs, ref)
		}
		cfg, err := formConfig(c)
		if err != nil {
			return nil, models.JobConfig{}, BatchRequest{}, err
		}
		req := BatchRequest{
			Priority:          c.PostForm("priority"),
			RequireSubscriber: c.PostForm("require_subscriber") == "true",
		}
		return refs, cfg, req, nil
	}

	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, models.JobConfig{}, BatchRequest{}, err
	}
	cfg := req.Config.JobConfig()
	if cfg.APIKey == "" {
		cfg.APIKey = bearerToken(c)
	}
	return req.Refs(), cfg, req, nil
}

// Submit queues a batch for the worker pool.
func (h *BatchHandler) Submit(c *gin.Context) {
	refs, cfg, req, err := h.batchInput(c)
	if err != nil {
		badRequest(c, "Invalid batch request", err)
		return
	}
	priority, err := parsePriority(req.Priority)
	if err != nil {
		badRequest(c, "Invalid batch request", err)
		return
	}

	job, err := h.service.SubmitBatch(c.Request.Context(), refs, cfg, document.SubmitOptions{
		Priority:          priority,
		RequireSubscriber: req.RequireSubscriber,
	})
	if err != nil {
		writeError(c, h.logger, "Failed to submit batch", err)
		return
	}

	c.JSON(http.StatusAccepted, SubmitResponse{
		JobID:     job.ID,
		Status:    string(job.Status),
		Total:     job.TotalDocuments,
		CreatedAt: job.CreatedAt,
	})
}

// Stream runs a batch inside this request and reports progress as
// server-sent events. Closing the connection cancels the job.
func (h *BatchHandler) Stream(c *gin.Context) {
	refs, cfg, _, err := h.batchInput(c)
	if err != nil {
		badRequest(c, "Invalid batch request", err)
		return
	}

	job, events, err := h.service.StreamBatch(c.Request.Context(), refs, cfg)
	if err != nil {
		writeError(c, h.logger, "Failed to start batch", err)
		return
	}

	setSSEHeaders(c)
	c.SSEvent("started", SubmitResponse{
		JobID:     job.ID,
		Status:    string(models.JobProcessing),
		Total:     job.TotalDocuments,
		CreatedAt: job.CreatedAt,
	})
	c.Writer.Flush()

	if !h.pump(c, events) {
		return
	}

	// the event channel closes only after the run has recorded its results
	final, err := h.service.GetBatch(c.Request.Context(), job.ID)
	if err != nil {
		h.logger.Warn("Finished job not readable", logger.String("jobId", job.ID), logger.Error(err))
		return
	}
	c.SSEvent("complete", final)
	c.Writer.Flush()
}

// Events follows a queued job's progress as server-sent events until its
// closing event.
func (h *BatchHandler) Events(c *gin.Context) {
	if h.events == nil {
		writeError(c, h.logger, "Event stream unavailable", document.ErrQueueUnavailable)
		return
	}
	jobID := c.Param("jobId")
	if _, err := h.service.GetBatch(c.Request.Context(), jobID); err != nil {
		writeError(c, h.logger, "Failed to follow batch", err)
		return
	}

	events, err := h.events.Subscribe(c.Request.Context(), jobID)
	if err != nil {
		writeError(c, h.logger, "Failed to follow batch", err)
		return
	}

	setSSEHeaders(c)
	c.Writer.Flush()
	h.pump(c, events)
}

// pump forwards events until the channel closes (true) or the client
// disconnects (false).
func (h *BatchHandler) pump(c *gin.Context, events <-chan models.ProgressEvent) bool {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return true
			}
			name := "progress"
			if ev.JobStatus != "" {
				name = "complete"
			}
			c.SSEvent(name, ev)
		case <-ticker.C:
			_, _ = io.WriteString(c.Writer, ": keep-alive\n\n")
		case <-c.Request.Context().Done():
			return false
		}
		c.Writer.Flush()
	}
}

func setSSEHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
}

// Status returns the job with the results recorded so far.
func (h *BatchHandler) Status(c *gin.Context) {
	job, err := h.service.GetBatch(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		writeError(c, h.logger, "Failed to get status", err)
		return
	}
	progress := 0.0
	if job.TotalDocuments > 0 {
		progress = float64(job.ProcessedCount) / float64(job.TotalDocuments)
	}
	c.JSON(http.StatusOK, gin.H{
		"job":      job,
		"progress": progress,
	})
}

func (h *BatchHandler) Cancel(c *gin.Context) {
	jobID := c.Param("jobId")
	if err := h.service.CancelBatch(c.Request.Context(), jobID); err != nil {
		writeError(c, h.logger, "Failed to cancel batch", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"message": "Cancellation requested",
		"jobId":   jobID,
	})
}

// Export downloads the job's results as JSON or XLSX.
func (h *BatchHandler) Export(c *gin.Context) {
	out, err := h.service.ExportBatch(c.Request.Context(), c.Param("jobId"), c.DefaultQuery("format", "json"))
	if err != nil {
		writeError(c, h.logger, "Failed to export batch", err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", out.Filename))
	c.Data(http.StatusOK, out.ContentType, out.Body)
}
