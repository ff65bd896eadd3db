package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
)

const statusTTL = 24 * time.Hour

func statusKey(jobID string) string  { return "batch_status:" + jobID }
func resultsKey(jobID string) string { return "batch_results:" + jobID }

// StatusStore keeps a short-lived copy of job state in Redis so the API can
// answer status reads without the database.
type StatusStore struct {
	redis redis.UniversalClient
}

func NewStatusStore(rdb redis.UniversalClient) *StatusStore {
	return &StatusStore{redis: rdb}
}

func (s *StatusStore) RecordJobStatus(ctx context.Context, job *models.BatchJob) error {
	snapshot := *job
	snapshot.Documents = nil
	snapshot.Results = nil
	snapshot.Config.APIKey = ""
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := s.redis.Set(ctx, statusKey(job.ID), data, statusTTL).Err(); err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

func (s *StatusStore) RecordDocumentResult(ctx context.Context, jobID string, result models.DocumentResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, resultsKey(jobID), strconv.Itoa(result.RowIndex), data)
		pipe.Expire(ctx, resultsKey(jobID), statusTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}

func (s *StatusStore) GetJob(ctx context.Context, jobID string) (*models.BatchJob, error) {
	data, err := s.redis.Get(ctx, statusKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get status from redis: %w", err)
	}
	var job models.BatchJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}

	rows, err := s.redis.HGetAll(ctx, resultsKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get results from redis: %w", err)
	}
	job.Results = decodeResults(rows)
	return &job, nil
}

func decodeResults(rows map[string]string) []models.DocumentResult {
	results := make([]models.DocumentResult, 0, len(rows))
	for _, raw := range rows {
		var r models.DocumentResult
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			continue
		}
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].RowIndex < results[j].RowIndex })
	return results
}
