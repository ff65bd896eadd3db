package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
)

// MemoryRepository keeps jobs in process memory for local runs and tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	jobs    map[string]*models.BatchJob
	results map[string]map[int]models.DocumentResult
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		jobs:    make(map[string]*models.BatchJob),
		results: make(map[string]map[int]models.DocumentResult),
	}
}

func (r *MemoryRepository) RecordJobStatus(_ context.Context, job *models.BatchJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.jobs[job.ID]; ok && prev.Status.Terminal() {
		return nil
	}
	clone := cloneJob(job)
	clone.Results = nil
	r.jobs[job.ID] = clone
	return nil
}

func (r *MemoryRepository) RecordDocumentResult(_ context.Context, jobID string, result models.DocumentResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, ok := r.results[jobID]
	if !ok {
		rows = make(map[int]models.DocumentResult)
		r.results[jobID] = rows
	}
	result.Tags = append([]string(nil), result.Tags...)
	rows[result.RowIndex] = result
	return nil
}

func (r *MemoryRepository) GetJob(_ context.Context, jobID string) (*models.BatchJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil, models.ErrJobNotFound
	}
	clone := cloneJob(job)
	for _, res := range r.results[jobID] {
		res.Tags = append([]string(nil), res.Tags...)
		clone.Results = append(clone.Results, res)
	}
	sort.Slice(clone.Results, func(i, j int) bool {
		return clone.Results[i].RowIndex < clone.Results[j].RowIndex
	})
	return clone, nil
}
