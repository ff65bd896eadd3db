package repository

import (
	"context"
	"errors"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
)

// Recorder is the write side used by the batch orchestrator.
type Recorder interface {
	RecordJobStatus(ctx context.Context, job *models.BatchJob) error
	RecordDocumentResult(ctx context.Context, jobID string, result models.DocumentResult) error
}

// JobRepository stores batch jobs and their per-row results.
type JobRepository interface {
	Recorder
	// GetJob returns models.ErrJobNotFound for unknown ids.
	GetJob(ctx context.Context, jobID string) (*models.BatchJob, error)
}

// Fanout writes to every recorder and joins their errors.
func Fanout(recorders ...Recorder) Recorder {
	return fanout(recorders)
}

type fanout []Recorder

func (f fanout) RecordJobStatus(ctx context.Context, job *models.BatchJob) error {
	var errs []error
	for _, r := range f {
		errs = append(errs, r.RecordJobStatus(ctx, job))
	}
	return errors.Join(errs...)
}

func (f fanout) RecordDocumentResult(ctx context.Context, jobID string, result models.DocumentResult) error {
	var errs []error
	for _, r := range f {
		errs = append(errs, r.RecordDocumentResult(ctx, jobID, result))
	}
	return errors.Join(errs...)
}

// Chain reads from the first repository that knows the job.
func Chain(repos ...JobRepository) JobRepository {
	return chain(repos)
}

type chain []JobRepository

func (c chain) RecordJobStatus(ctx context.Context, job *models.BatchJob) error {
	return fanout(c.recorders()).RecordJobStatus(ctx, job)
}

func (c chain) RecordDocumentResult(ctx context.Context, jobID string, result models.DocumentResult) error {
	return fanout(c.recorders()).RecordDocumentResult(ctx, jobID, result)
}

func (c chain) GetJob(ctx context.Context, jobID string) (*models.BatchJob, error) {
	var errs []error
	for _, r := range c {
		job, err := r.GetJob(ctx, jobID)
		if err == nil {
			return job, nil
		}
		if !errors.Is(err, models.ErrJobNotFound) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, models.ErrJobNotFound
}

func (c chain) recorders() []Recorder {
	out := make([]Recorder, len(c))
	for i, r := range c {
		out[i] = r
	}
	return out
}

// cloneJob copies the job without its input documents, which may carry
// inline file bytes.
func cloneJob(job *models.BatchJob) *models.BatchJob {
	clone := *job
	clone.Documents = nil
	clone.Results = append([]models.DocumentResult(nil), job.Results...)
	for i := range clone.Results {
		clone.Results[i].Tags = append([]string(nil), clone.Results[i].Tags...)
	}
	return &clone
}
