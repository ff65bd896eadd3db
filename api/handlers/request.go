package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/service/document"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/queue"
)

// ConfigRequest is the job configuration accepted by every endpoint. Zero
// values fall back to the server defaults.
type ConfigRequest struct {
	APIKey         string   `json:"apiKey" form:"api_key"`
	ModelName      string   `json:"modelName" form:"model_name"`
	PagesToExtract int      `json:"pagesToExtract" form:"num_pages"`
	TagsRequested  int      `json:"tagsRequested" form:"num_tags"`
	ExclusionWords []string `json:"exclusionWords"`
}

func (r ConfigRequest) JobConfig() models.JobConfig {
	return models.JobConfig{
		APIKey:         strings.TrimSpace(r.APIKey),
		ModelName:      strings.TrimSpace(r.ModelName),
		PagesToExtract: r.PagesToExtract,
		TagsRequested:  r.TagsRequested,
		ExclusionWords: r.ExclusionWords,
	}
}

type DocumentRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	SourceKind  string `json:"sourceKind" binding:"required"`
	Locator     string `json:"locator" binding:"required"`
}

// BatchRequest is the JSON body of the batch endpoints.
type BatchRequest struct {
	Documents         []DocumentRequest `json:"documents" binding:"required,min=1,dive"`
	Config            ConfigRequest     `json:"config"`
	Priority          string            `json:"priority"`
	RequireSubscriber bool              `json:"requireSubscriber"`
}

func (r BatchRequest) Refs() []models.DocumentRef {
	refs := make([]models.DocumentRef, len(r.Documents))
	for i, d := range r.Documents {
		refs[i] = models.DocumentRef{
			Title:       strings.TrimSpace(d.Title),
			Description: strings.TrimSpace(d.Description),
			SourceKind:  models.SourceKind(d.SourceKind),
			Locator:     strings.TrimSpace(d.Locator),
		}
	}
	return refs
}

func parsePriority(s string) (queue.Priority, error) {
	switch strings.ToLower(s) {
	case "", "default":
		return queue.PriorityDefault, nil
	case "low":
		return queue.PriorityLow, nil
	case "critical", "high":
		return queue.PriorityCritical, nil
	default:
		return 0, fmt.Errorf("unknown priority %q", s)
	}
}

// formConfig reads the job settings of a multipart request. Exclusion words
// arrive comma separated.
func formConfig(c *gin.Context) (models.JobConfig, error) {
	var req ConfigRequest
	if err := c.ShouldBind(&req); err != nil {
		return models.JobConfig{}, err
	}
	if words := c.PostForm("exclusion_words"); words != "" {
		for _, w := range strings.Split(words, ",") {
			if w = strings.TrimSpace(w); w != "" {
				req.ExclusionWords = append(req.ExclusionWords, w)
			}
		}
	}
	if req.APIKey == "" {
		req.APIKey = bearerToken(c)
	}
	return req.JobConfig(), nil
}

func bearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// readUpload reads one multipart file, refusing anything past limit.
func readUpload(header *multipart.FileHeader, limit int64) (document.Upload, error) {
	if header.Size > limit {
		return document.Upload{}, fmt.Errorf("file %s exceeds %d bytes", header.Filename, limit)
	}
	f, err := header.Open()
	if err != nil {
		return document.Upload{}, fmt.Errorf("failed to open %s: %w", header.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return document.Upload{}, fmt.Errorf("failed to read %s: %w", header.Filename, err)
	}
	if int64(len(data)) > limit {
		return document.Upload{}, fmt.Errorf("file %s exceeds %d bytes", header.Filename, limit)
	}
	return document.Upload{Filename: header.Filename, Data: data}, nil
}
