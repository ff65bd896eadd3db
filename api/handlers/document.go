package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/service/document"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/logger"
)

type DocumentHandler struct {
	service   document.TaggingService
	logger    logger.Logger
	maxUpload int64
}

// TagResponse is returned for a single tagged document.
type TagResponse struct {
	Success          bool     `json:"success"`
	Title            string   `json:"title"`
	Tags             []string `json:"tags"`
	Error            string   `json:"error,omitempty"`
	ErrorKind        string   `json:"errorKind,omitempty"`
	ExtractionMethod string   `json:"extractionMethod,omitempty"`
	Language         string   `json:"language,omitempty"`
	QualityTier      string   `json:"qualityTier,omitempty"`
	PageCount        int      `json:"pageCount"`
	PagesExtracted   int      `json:"pagesExtracted"`
	IsScanned        bool     `json:"isScanned"`
	ProcessingMs     int64    `json:"processingMs"`
}

func NewDocumentHandler(service document.TaggingService, log logger.Logger, maxUpload int64) *DocumentHandler {
	if maxUpload <= 0 {
		maxUpload = 50 * 1024 * 1024
	}
	return &DocumentHandler{
		service:   service,
		logger:    log,
		maxUpload: maxUpload,
	}
}

// TagDocument extracts and tags one uploaded PDF and answers when done.
func (h *DocumentHandler) TagDocument(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "Invalid file upload", err)
		return
	}
	upload, err := readUpload(header, h.maxUpload)
	if err != nil {
		badRequest(c, "Invalid file upload", err)
		return
	}
	upload.Title = strings.TrimSpace(c.PostForm("title"))
	upload.Description = strings.TrimSpace(c.PostForm("description"))

	cfg, err := formConfig(c)
	if err != nil {
		badRequest(c, "Invalid configuration", err)
		return
	}

	res, err := h.service.TagDocument(c.Request.Context(), upload, cfg)
	if err != nil {
		writeError(c, h.logger, "Failed to tag document", err)
		return
	}

	tags := res.Tags
	if tags == nil {
		tags = []string{}
	}
	c.JSON(http.StatusOK, TagResponse{
		Success:          res.Error == "",
		Title:            res.Title,
		Tags:             tags,
		Error:            res.Error,
		ErrorKind:        string(res.ErrorKind),
		ExtractionMethod: string(res.ExtractionMethod),
		Language:         res.Language,
		QualityTier:      string(res.QualityTier),
		PageCount:        res.PageCount,
		PagesExtracted:   res.PagesExtracted,
		IsScanned:        res.IsScanned,
		ProcessingMs:     res.ProcessingMs,
	})
}
