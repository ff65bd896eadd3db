package document

import (
	"context"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
)

// TaggingService is what the HTTP API needs from the pipeline.
type TaggingService interface {
	// TagDocument extracts and tags one uploaded PDF synchronously.
	TagDocument(ctx context.Context, upload Upload, cfg models.JobConfig) (*models.DocumentResult, error)
	// SubmitBatch queues a batch for a worker and returns the pending job.
	SubmitBatch(ctx context.Context, docs []models.DocumentRef, cfg models.JobConfig, opts SubmitOptions) (*models.BatchJob, error)
	// StreamBatch runs a batch in this process. Events are delivered on the
	// returned channel, which closes when the job ends.
	StreamBatch(ctx context.Context, docs []models.DocumentRef, cfg models.JobConfig) (*models.BatchJob, <-chan models.ProgressEvent, error)
	GetBatch(ctx context.Context, jobID string) (*models.BatchJob, error)
	CancelBatch(ctx context.Context, jobID string) error
	ExportBatch(ctx context.Context, jobID, format string) (*Export, error)
}
