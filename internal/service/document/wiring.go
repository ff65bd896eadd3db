package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/itsdivyanshjha/meta-data-tag-generator/config"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/agent"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/repository"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/service/batch"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/logger"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/queue"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/retriever"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/storage"
)

// Dependencies are the backends shared by the API server and the worker.
type Dependencies struct {
	Config    *config.AppConfig
	Redis     *redis.Client
	Queue     *queue.AsynqQueue
	Status    *queue.StatusStore
	Postgres  *repository.PostgresRepository
	Storage   storage.Storage
	Retriever *retriever.Retriever
	Factory   *agent.ProcessorFactory
}

// Connect opens every configured backend. Redis is required; PostgreSQL
// and object storage are optional.
func Connect(ctx context.Context, log logger.Logger, cfg *config.AppConfig) (*Dependencies, error) {
	d := &Dependencies{Config: cfg}

	d.Redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := d.Redis.Ping(pingCtx).Err(); err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	d.Status = queue.NewStatusStore(d.Redis)
	d.Queue = queue.NewAsynqQueue(&queue.QueueConfig{
		RedisAddr:     cfg.Redis.Addr,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
	}, d.Redis, log)

	if cfg.Postgres.URL != "" {
		pg, err := repository.NewPostgresRepository(ctx, cfg.Postgres.URL)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to initialize postgres: %w", err)
		}
		d.Postgres = pg
		if err := pg.Migrate(ctx); err != nil {
			d.Close()
			return nil, err
		}
	} else {
		log.Warn("DATABASE_URL not set, results are kept in redis only")
	}

	store, err := storage.NewStorage(ctx, storage.StorageType(cfg.Storage.Type), log)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	d.Storage = store

	var getter retriever.ObjectGetter
	if store != nil {
		getter = store
	}
	d.Retriever = retriever.New(log, getter, retriever.Config{
		LocalBaseDir: cfg.Retriever.LocalBaseDir,
		MaxBytes:     cfg.Retriever.MaxBytes,
		HTTPTimeout:  cfg.Retriever.HTTPTimeout,
	})

	d.Factory, err = agent.NewProcessorFactory(ctx, log, cfg)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to initialize processor factory: %w", err)
	}
	return d, nil
}

// Jobs chains the given repositories in front of the Redis status store and
// PostgreSQL, so reads hit the fastest copy first and writes reach all.
func (d *Dependencies) Jobs(front ...repository.JobRepository) repository.JobRepository {
	repos := append([]repository.JobRepository(nil), front...)
	repos = append(repos, d.Status)
	if d.Postgres != nil {
		repos = append(repos, d.Postgres)
	}
	return repository.Chain(repos...)
}

// Orchestrator builds a batch orchestrator that records into jobs.
func (d *Dependencies) Orchestrator(log logger.Logger, jobs repository.Recorder) *batch.Orchestrator {
	return batch.NewOrchestrator(
		log,
		d.Retriever,
		d.Factory.Extractor(),
		batch.ProviderTaggers(log, d.Factory.ProviderConfig(), d.Factory.TaggingOptions()),
		jobs,
		batch.Options{DocumentDelay: d.Config.Pipeline.InterDocumentDelay},
	)
}

func (d *Dependencies) Close() error {
	var errs []error
	if d.Queue != nil {
		errs = append(errs, d.Queue.Close())
	}
	if d.Postgres != nil {
		d.Postgres.Close()
	}
	if d.Redis != nil {
		errs = append(errs, d.Redis.Close())
	}
	return errors.Join(errs...)
}
