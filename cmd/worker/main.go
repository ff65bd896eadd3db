package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/itsdivyanshjha/meta-data-tag-generator/config"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/service/document"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/converters"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/logger"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/queue"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/worker"
)

func main() {
	cfg, err := config.GetAppConfig()
	if err != nil {
		panic(err)
	}

	log, err := logger.NewLogger(
		logger.WithLevel(cfg.Log.Level),
		logger.WithEncoding(cfg.Log.Encoding),
		logger.WithOutputPaths([]string{"stdout", "logs/worker.log"}),
		logger.WithInitialFields(map[string]interface{}{"binary": "worker"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	deps, err := document.Connect(ctx, log, cfg)
	if err != nil {
		log.Error("Failed to connect backends", logger.Error(err))
		os.Exit(1)
	}
	defer deps.Close()

	// the worker writes to redis and postgres; the API reads whichever has
	// the job
	orchestrator := deps.Orchestrator(log, deps.Jobs())

	converter, err := converters.ForFormat(cfg.Worker.ExportFormat)
	if err != nil {
		log.Error("Invalid export format", logger.Error(err))
		os.Exit(1)
	}
	opts := worker.BatchWorkerOptions{
		Redis:        deps.Redis,
		Cancels:      deps.Queue,
		Converter:    converter,
		ExportPrefix: config.GetS3Config().ExportPrefix,
	}
	if deps.Storage != nil {
		opts.Exporter = deps.Storage
	}

	workerCfg := &worker.Config{
		RedisOpt: (&queue.QueueConfig{
			RedisAddr:     cfg.Redis.Addr,
			RedisPassword: cfg.Redis.Password,
			RedisDB:       cfg.Redis.DB,
		}).RedisOpt(),
		Concurrency: cfg.Worker.Concurrency,
		Queues:      queue.Weights(),
		CancelPoll:  cfg.Worker.CancelPoll,
	}

	batchWorker := worker.NewBatchWorker(workerCfg, orchestrator, opts, log)
	if err := batchWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}

	<-ctx.Done()
	log.Info("Shutting down worker...")
	batchWorker.Stop()
	log.Info("Worker stopped")
}
