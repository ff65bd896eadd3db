package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/service/batch"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/converters"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/logger"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/progress"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/queue"
)

// Runner executes one batch job; batch.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, job *models.BatchJob, sink batch.ProgressSink) *models.BatchJob
}

// CancelChecker reports whether a job was asked to stop.
type CancelChecker interface {
	CancelRequested(ctx context.Context, jobID string) (bool, error)
}

// Exporter stores a finished job's results.
type Exporter interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
}

type BatchWorkerOptions struct {
	Redis        redis.UniversalClient
	Cancels      CancelChecker
	Exporter     Exporter
	Converter    converters.BatchConverter
	ExportPrefix string
	CancelPoll   time.Duration
}

// BatchWorker executes batch:tag tasks with the orchestrator.
type BatchWorker struct {
	BaseWorker
	runner Runner
	opts   BatchWorkerOptions
}

func NewBatchWorker(cfg *Config, runner Runner, opts BatchWorkerOptions, log logger.Logger) *BatchWorker {
	if opts.CancelPoll <= 0 {
		opts.CancelPoll = cfg.CancelPoll
	}
	if opts.CancelPoll <= 0 {
		opts.CancelPoll = time.Second
	}
	if opts.Converter == nil {
		opts.Converter = converters.NewJSONConverter()
	}
	w := &BatchWorker{
		BaseWorker: newBaseWorker(cfg, log),
		runner:     runner,
		opts:       opts,
	}
	w.mux.HandleFunc(queue.TaskTypeBatchTag, w.handleBatch)
	return w
}

func (w *BatchWorker) handleBatch(ctx context.Context, t *asynq.Task) error {
	payload, err := queue.DecodeBatchPayload(t.Payload())
	if err != nil {
		w.logger.Error("Invalid batch task", logger.Error(err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	job := payload.Job()
	log := w.logger.With(logger.String("jobId", job.ID))
	log.Info("Processing batch task", logger.Int("documents", len(job.Documents)))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go w.watchCancel(ctx, job.ID, cancel, log)

	var sink batch.ProgressSink = progress.Discard{}
	var redisSink *progress.RedisSink
	if w.opts.Redis != nil {
		redisSink = progress.NewRedisSink(w.opts.Redis, job.ID, payload.RequireSubscriber, w.logger)
		sink = redisSink
	}

	job = w.runner.Run(ctx, job, sink)

	finishCtx, finishCancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer finishCancel()
	if redisSink != nil {
		if err := redisSink.Finish(finishCtx, job); err != nil {
			log.Warn("Failed to publish job end", logger.Error(err))
		}
	}
	w.export(finishCtx, job, log)

	if job.Status == models.JobFailed {
		// a job-level failure is a configuration problem; retrying would repeat it
		return fmt.Errorf("%w: batch job failed: %s", asynq.SkipRetry, job.Error)
	}
	log.Info("Batch task finished",
		logger.String("status", string(job.Status)),
		logger.Int("processed", job.ProcessedCount),
		logger.Int("failed", job.FailedCount),
	)
	return nil
}

// watchCancel polls the job's cancel flag and cancels ctx when it is set.
func (w *BatchWorker) watchCancel(ctx context.Context, jobID string, cancel context.CancelFunc, log logger.Logger) {
	if w.opts.Cancels == nil {
		return
	}
	ticker := time.NewTicker(w.opts.CancelPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			requested, err := w.opts.Cancels.CancelRequested(ctx, jobID)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Debug("Cancel flag check failed", logger.Error(err))
				}
				continue
			}
			if requested {
				log.Info("Cancellation requested")
				cancel()
				return
			}
		}
	}
}

func (w *BatchWorker) export(ctx context.Context, job *models.BatchJob, log logger.Logger) {
	if w.opts.Exporter == nil || job.ProcessedCount == 0 {
		return
	}
	data, err := w.opts.Converter.Convert(job)
	if err != nil {
		log.Warn("Failed to convert batch results", logger.Error(err))
		return
	}
	key := ExportKey(w.opts.ExportPrefix, job.ID, w.opts.Converter.Extension())
	if err := w.opts.Exporter.Put(ctx, key, bytes.NewReader(data), int64(len(data)), w.opts.Converter.ContentType()); err != nil {
		log.Warn("Failed to export batch results", logger.Error(err))
		return
	}
	log.Info("Batch results exported", logger.String("key", key))
}

// ExportKey is where a job's export lands in object storage.
func ExportKey(prefix, jobID, ext string) string {
	if prefix != "" && prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}
	return prefix + jobID + ext
}
