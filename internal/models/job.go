package models

import (
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of a batch job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// CanTransition is the total transition table of the job state machine.
func (s JobStatus) CanTransition(to JobStatus) bool {
	switch s {
	case JobPending:
		return to == JobProcessing || to == JobFailed || to == JobCancelled
	case JobProcessing:
		return to == JobCompleted || to == JobFailed || to == JobCancelled
	default:
		return false
	}
}

// SourceKind tells the retriever where a document's bytes live.
type SourceKind string

const (
	SourceURL         SourceKind = "url"
	SourceObjectStore SourceKind = "object-store"
	SourceLocal       SourceKind = "local"
	// SourceInline carries the bytes on the ref itself (direct uploads).
	SourceInline SourceKind = "inline"
)

// DocumentRef identifies one row of a batch.
type DocumentRef struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	SourceKind  SourceKind `json:"sourceKind"`
	Locator     string     `json:"locator"`
	Data        []byte     `json:"data,omitempty"`
}

// JobConfig is the configuration surface consumed by the pipeline.
type JobConfig struct {
	APIKey         string   `json:"-"`
	ModelName      string   `json:"modelName"`
	PagesToExtract int      `json:"pagesToExtract"`
	TagsRequested  int      `json:"tagsRequested"`
	ExclusionWords []string `json:"exclusionWords,omitempty"`
}

const (
	MinTagsRequested = 3
	MaxTagsRequested = 15
)

// Validate checks the bounds the pipeline relies on.
func (c JobConfig) Validate() error {
	if c.ModelName == "" {
		return fmt.Errorf("model name is required")
	}
	if c.TagsRequested < MinTagsRequested || c.TagsRequested > MaxTagsRequested {
		return fmt.Errorf("tags requested must be between %d and %d, got %d",
			MinTagsRequested, MaxTagsRequested, c.TagsRequested)
	}
	if c.PagesToExtract < 1 {
		return fmt.Errorf("pages to extract must be positive, got %d", c.PagesToExtract)
	}
	return nil
}

// DocumentStatus is the per-row outcome.
type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "pending"
	DocumentProcessing DocumentStatus = "processing"
	DocumentSuccess    DocumentStatus = "success"
	DocumentFailed     DocumentStatus = "failed"
)

// ErrorKind is the coarse failure class reported for a failed row.
type ErrorKind string

const (
	ErrorKindRateLimit  ErrorKind = "rate-limit"
	ErrorKindModelError ErrorKind = "model-error"
	ErrorKindNetwork    ErrorKind = "network"
	ErrorKindUnknown    ErrorKind = "unknown"
)

// DocumentResult is the record produced for every processed row.
type DocumentResult struct {
	RowIndex         int              `json:"rowIndex"`
	Title            string           `json:"title"`
	Status           DocumentStatus   `json:"status"`
	Tags             []string         `json:"tags,omitempty"`
	Error            string           `json:"error,omitempty"`
	ErrorKind        ErrorKind        `json:"errorKind,omitempty"`
	ExtractionMethod ExtractionMethod `json:"extractionMethod,omitempty"`
	Language         string           `json:"language,omitempty"`
	QualityTier      QualityTier      `json:"qualityTier,omitempty"`
	PageCount        int              `json:"pageCount"`
	PagesExtracted   int              `json:"pagesExtracted"`
	IsScanned        bool             `json:"isScanned"`
	ProcessingMs     int64            `json:"processingMs"`
}

// BatchJob is owned and mutated by exactly one orchestrator run.
type BatchJob struct {
	ID             string           `json:"id"`
	Documents      []DocumentRef    `json:"documents,omitempty"`
	TotalDocuments int              `json:"totalDocuments"`
	Config         JobConfig        `json:"config"`
	Status         JobStatus        `json:"status"`
	ProcessedCount int              `json:"processedCount"`
	FailedCount    int              `json:"failedCount"`
	Cancelled      bool             `json:"cancelled"`
	Results        []DocumentResult `json:"results"`
	Error          string           `json:"error,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// NewBatchJob creates a pending job.
func NewBatchJob(id string, docs []DocumentRef, cfg JobConfig) *BatchJob {
	now := time.Now()
	return &BatchJob{
		ID:             id,
		Documents:      docs,
		TotalDocuments: len(docs),
		Config:         cfg,
		Status:         JobPending,
		Results:        make([]DocumentResult, 0, len(docs)),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Transition moves the job to a new status or returns an error when the
// move is not allowed. Terminal states never change.
func (j *BatchJob) Transition(to JobStatus) error {
	if !j.Status.CanTransition(to) {
		return fmt.Errorf("invalid job transition %s -> %s", j.Status, to)
	}
	j.Status = to
	j.UpdatedAt = time.Now()
	if to == JobCancelled {
		j.Cancelled = true
	}
	return nil
}

// Record appends a row result and updates the counters.
func (j *BatchJob) Record(result DocumentResult) {
	if j.Status.Terminal() {
		return
	}
	j.Results = append(j.Results, result)
	j.ProcessedCount++
	if result.Status == DocumentFailed {
		j.FailedCount++
	}
	j.UpdatedAt = time.Now()
}

// SuccessCount is the number of rows that produced tags.
func (j *BatchJob) SuccessCount() int {
	return j.ProcessedCount - j.FailedCount
}
