package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/logger"
)

type Worker interface {
	Start(ctx context.Context) error
	Stop() error
}

type Config struct {
	RedisOpt    asynq.RedisClientOpt
	Concurrency int
	Queues      map[string]int
	// CancelPoll is how often a running job checks its cancel flag.
	CancelPoll time.Duration
}

type BaseWorker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger logger.Logger
}

func newBaseWorker(cfg *Config, log logger.Logger) BaseWorker {
	server := asynq.NewServer(cfg.RedisOpt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      cfg.Queues,
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			return time.Duration(n) * time.Minute
		},
		Logger: asynqLogger{log: log.Named("asynq")},
	})
	return BaseWorker{
		server: server,
		mux:    asynq.NewServeMux(),
		logger: log,
	}
}

// Start runs the asynq server until ctx ends.
func (w *BaseWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		w.Stop()
	}()
	return nil
}

func (w *BaseWorker) Stop() error {
	w.server.Shutdown()
	return nil
}

// asynqLogger routes asynq's own logging through the service logger.
type asynqLogger struct {
	log logger.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug(sprint(args)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info(sprint(args)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn(sprint(args)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error(sprint(args)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Fatal(sprint(args)) }

func sprint(args []interface{}) string {
	return fmt.Sprint(args...)
}
