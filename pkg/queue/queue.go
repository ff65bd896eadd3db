package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/logger"
)

const TaskTypeBatchTag = "batch:tag"

// Priority selects one of the weighted asynq queues.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityDefault
	PriorityCritical
)

var queueNames = map[Priority]string{
	PriorityCritical: "critical",
	PriorityDefault:  "default",
	PriorityLow:      "low",
}

// Weights is the asynq queue weighting shared by client and server.
func Weights() map[string]int {
	return map[string]int{
		"critical": 6,
		"default":  3,
		"low":      1,
	}
}

// Queue hands batch jobs to workers and tracks cancellation requests.
type Queue interface {
	Enqueue(ctx context.Context, job *models.BatchJob, opts EnqueueOptions) error
	RequestCancel(ctx context.Context, jobID string) error
	CancelRequested(ctx context.Context, jobID string) (bool, error)
}

type EnqueueOptions struct {
	Priority Priority
	// RequireSubscriber cancels the job once nobody follows its events.
	RequireSubscriber bool
}

// BatchPayload is the asynq task body for TaskTypeBatchTag. The API key
// travels separately because JobConfig never serializes it.
type BatchPayload struct {
	JobID             string               `json:"jobId"`
	Documents         []models.DocumentRef `json:"documents"`
	Config            models.JobConfig     `json:"config"`
	APIKey            string               `json:"apiKey,omitempty"`
	RequireSubscriber bool                 `json:"requireSubscriber,omitempty"`
	CreatedAt         time.Time            `json:"createdAt"`
}

func NewBatchPayload(job *models.BatchJob, requireSubscriber bool) BatchPayload {
	return BatchPayload{
		JobID:             job.ID,
		Documents:         job.Documents,
		Config:            job.Config,
		APIKey:            job.Config.APIKey,
		RequireSubscriber: requireSubscriber,
		CreatedAt:         job.CreatedAt,
	}
}

// Job rebuilds a pending job from the payload.
func (p BatchPayload) Job() *models.BatchJob {
	cfg := p.Config
	cfg.APIKey = p.APIKey
	job := models.NewBatchJob(p.JobID, p.Documents, cfg)
	if !p.CreatedAt.IsZero() {
		job.CreatedAt = p.CreatedAt
	}
	return job
}

func DecodeBatchPayload(data []byte) (BatchPayload, error) {
	var p BatchPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return BatchPayload{}, fmt.Errorf("failed to unmarshal batch payload: %w", err)
	}
	if p.JobID == "" {
		return BatchPayload{}, fmt.Errorf("invalid batch payload: missing job id")
	}
	return p, nil
}

func cancelKey(jobID string) string { return "batch_cancel:" + jobID }

type QueueConfig struct {
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	MaxRetries     int
	ProcessTimeout time.Duration
}

func (c *QueueConfig) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// AsynqQueue enqueues batch tasks with asynq and keeps cancel flags in Redis.
type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	redis     redis.UniversalClient
	cfg       QueueConfig
	logger    logger.Logger
}

func NewAsynqQueue(cfg *QueueConfig, rdb redis.UniversalClient, log logger.Logger) *AsynqQueue {
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = 2 * time.Hour
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	opt := cfg.RedisOpt()
	return &AsynqQueue{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		redis:     rdb,
		cfg:       *cfg,
		logger:    log.Named("queue"),
	}
}

func (q *AsynqQueue) Close() error {
	return errors.Join(q.client.Close(), q.inspector.Close())
}

func (q *AsynqQueue) Enqueue(ctx context.Context, job *models.BatchJob, opts EnqueueOptions) error {
	payload, err := json.Marshal(NewBatchPayload(job, opts.RequireSubscriber))
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	name, ok := queueNames[opts.Priority]
	if !ok {
		name = queueNames[PriorityDefault]
	}
	t := asynq.NewTask(TaskTypeBatchTag, payload,
		asynq.TaskID(job.ID),
		asynq.Queue(name),
		asynq.MaxRetry(q.cfg.MaxRetries),
		asynq.Timeout(q.cfg.ProcessTimeout),
		asynq.Retention(24*time.Hour),
	)
	info, err := q.client.EnqueueContext(ctx, t)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	q.logger.Info("Batch job enqueued",
		logger.String("jobId", info.ID),
		logger.String("queue", info.Queue),
		logger.Int("documents", len(job.Documents)),
	)
	return nil
}

// RequestCancel raises the job's cancel flag, removes the task if it has
// not started yet and signals the handler if it is running.
func (q *AsynqQueue) RequestCancel(ctx context.Context, jobID string) error {
	if err := q.redis.Set(ctx, cancelKey(jobID), "1", 24*time.Hour).Err(); err != nil {
		return fmt.Errorf("failed to set cancel flag: %w", err)
	}

	for _, name := range queueNames {
		if err := q.inspector.DeleteTask(name, jobID); err == nil {
			q.logger.Info("Removed queued batch job", logger.String("jobId", jobID), logger.String("queue", name))
			return nil
		}
	}
	if err := q.inspector.CancelProcessing(jobID); err != nil {
		q.logger.Debug("Cancel signal not delivered", logger.String("jobId", jobID), logger.Error(err))
	}
	return nil
}

func (q *AsynqQueue) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	n, err := q.redis.Exists(ctx, cancelKey(jobID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read cancel flag: %w", err)
	}
	return n > 0, nil
}
