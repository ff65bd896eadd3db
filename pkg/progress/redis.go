package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/logger"
)

const historyTTL = 24 * time.Hour

// EventsChannel is the pub/sub channel carrying a job's events.
func EventsChannel(jobID string) string { return "batch_events:" + jobID }

// HistoryKey is the list that keeps a job's events for late subscribers.
func HistoryKey(jobID string) string { return "batch_events_history:" + jobID }

// RedisSink publishes events for a queued job. With RequireSubscriber set,
// a publish that reaches nobody marks the sink dead, which cancels the job.
type RedisSink struct {
	client            redis.UniversalClient
	jobID             string
	requireSubscriber bool
	logger            logger.Logger
	dead              atomic.Bool
}

func NewRedisSink(client redis.UniversalClient, jobID string, requireSubscriber bool, log logger.Logger) *RedisSink {
	return &RedisSink{
		client:            client,
		jobID:             jobID,
		requireSubscriber: requireSubscriber,
		logger:            log.Named("progress"),
	}
}

func (s *RedisSink) Send(ctx context.Context, ev models.ProgressEvent) error {
	receivers, err := s.publish(ctx, ev)
	if err != nil {
		return err
	}
	if s.requireSubscriber && receivers == 0 {
		s.dead.Store(true)
		s.logger.Info("No subscribers left for job events", logger.String("jobId", s.jobID))
		return ErrConsumerGone
	}
	return nil
}

// Finish publishes the job's closing event so followers can stop.
func (s *RedisSink) Finish(ctx context.Context, job *models.BatchJob) error {
	_, err := s.publish(ctx, models.JobFinished(job))
	return err
}

func (s *RedisSink) publish(ctx context.Context, ev models.ProgressEvent) (int64, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}

	var published *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, HistoryKey(s.jobID), data)
		pipe.Expire(ctx, HistoryKey(s.jobID), historyTTL)
		published = pipe.Publish(ctx, EventsChannel(s.jobID), data)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to publish event: %w", err)
	}
	return published.Val(), nil
}

func (s *RedisSink) Alive() bool { return !s.dead.Load() }

// Subscribe replays the stored history of a job and then follows live
// events until the job's closing event or the end of ctx. Events that show
// up in both the history and the live feed are delivered once.
func Subscribe(ctx context.Context, client redis.UniversalClient, jobID string) (<-chan models.ProgressEvent, error) {
	sub := client.Subscribe(ctx, EventsChannel(jobID))
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	history, err := client.LRange(ctx, HistoryKey(jobID), 0, -1).Result()
	if err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to read event history: %w", err)
	}

	out := make(chan models.ProgressEvent, 16)
	go func() {
		defer close(out)
		defer sub.Close()

		seen := make(map[string]struct{})
		emit := func(payload string) bool {
			if _, dup := seen[payload]; dup {
				return true
			}
			seen[payload] = struct{}{}
			var ev models.ProgressEvent
			if err := json.Unmarshal([]byte(payload), &ev); err != nil {
				return true
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return false
			}
			return !ev.JobStatus.Terminal()
		}
		for _, payload := range history {
			if !emit(payload) {
				return
			}
		}
		live := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-live:
				if !ok || !emit(msg.Payload) {
					return
				}
			}
		}
	}()
	return out, nil
}

// RedisEvents lets HTTP handlers follow queued jobs.
type RedisEvents struct {
	client redis.UniversalClient
}

func NewRedisEvents(client redis.UniversalClient) *RedisEvents {
	return &RedisEvents{client: client}
}

func (e *RedisEvents) Subscribe(ctx context.Context, jobID string) (<-chan models.ProgressEvent, error) {
	return Subscribe(ctx, e.client, jobID)
}
