package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/repository"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/service/batch"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/utils/validator"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/converters"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/logger"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/progress"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/queue"
)

var (
	ErrQueueUnavailable = errors.New("batch queue unavailable")
	ErrJobFinished      = errors.New("job already finished")
)

// InvalidRequestError lists everything wrong with a request.
type InvalidRequestError struct {
	Errors []validator.ValidationError
}

func (e *InvalidRequestError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		msgs[i] = ve.Message
	}
	return "invalid request: " + strings.Join(msgs, "; ")
}

// Upload is one file received over HTTP.
type Upload struct {
	Filename    string
	Title       string
	Description string
	Data        []byte
}

type SubmitOptions struct {
	Priority queue.Priority
	// RequireSubscriber cancels the job when nobody follows its events.
	RequireSubscriber bool
}

// Export is a finished job rendered by a converter.
type Export struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Runner executes a batch job; batch.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, job *models.BatchJob, sink batch.ProgressSink) *models.BatchJob
}

// Uploader moves inline uploads into object storage before queueing.
type Uploader interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
}

type ServiceConfig struct {
	// Defaults fill unset job settings.
	Defaults          models.JobConfig
	UploadPrefix      string
	UploadConcurrency int
	StreamBuffer      int
}

// DocumentService implements TaggingService.
type DocumentService struct {
	runner    Runner
	queue     queue.Queue
	uploader  Uploader
	jobs      repository.JobRepository
	validator *validator.DocumentValidator
	logger    logger.Logger
	config    *ServiceConfig

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func NewService(
	runner Runner,
	q queue.Queue,
	uploader Uploader,
	jobs repository.JobRepository,
	v *validator.DocumentValidator,
	log logger.Logger,
	cfg *ServiceConfig,
) *DocumentService {
	if cfg == nil {
		cfg = &ServiceConfig{}
	}
	if cfg.UploadPrefix == "" {
		cfg.UploadPrefix = "uploads/"
	}
	if cfg.UploadConcurrency <= 0 {
		cfg.UploadConcurrency = 4
	}
	if cfg.StreamBuffer <= 0 {
		cfg.StreamBuffer = 16
	}
	return &DocumentService{
		runner:    runner,
		queue:     q,
		uploader:  uploader,
		jobs:      jobs,
		validator: v,
		logger:    log.Named("service"),
		config:    cfg,
		running:   make(map[string]context.CancelFunc),
	}
}

// GetService wires the service on top of deps. The in-memory repository
// sits first so that in-process runs are readable immediately.
func GetService(log logger.Logger, deps *Dependencies) *DocumentService {
	jobs := deps.Jobs(repository.NewMemoryRepository())
	cfg := deps.Config

	var uploader Uploader
	if deps.Storage != nil {
		uploader = deps.Storage
	}
	return NewService(
		deps.Orchestrator(log, jobs),
		deps.Queue,
		uploader,
		jobs,
		validator.NewDocumentValidator(log, &validator.ValidatorConfig{
			MaxFileSize: cfg.Server.MaxUploadBytes,
		}),
		log,
		&ServiceConfig{
			Defaults: models.JobConfig{
				APIKey:         cfg.Provider.APIKey,
				ModelName:      cfg.Provider.Model,
				PagesToExtract: cfg.Pipeline.PagesToExtract,
				TagsRequested:  cfg.Pipeline.TagsRequested,
				ExclusionWords: cfg.Pipeline.ExclusionWords,
			},
		},
	)
}

// WithDefaults fills unset fields of cfg from the service defaults.
func (s *DocumentService) WithDefaults(cfg models.JobConfig) models.JobConfig {
	d := s.config.Defaults
	if cfg.APIKey == "" {
		cfg.APIKey = d.APIKey
	}
	if cfg.ModelName == "" {
		cfg.ModelName = d.ModelName
	}
	if cfg.PagesToExtract == 0 {
		cfg.PagesToExtract = d.PagesToExtract
	}
	if cfg.TagsRequested == 0 {
		cfg.TagsRequested = d.TagsRequested
	}
	if cfg.ExclusionWords == nil {
		cfg.ExclusionWords = d.ExclusionWords
	}
	return cfg
}

func (s *DocumentService) TagDocument(ctx context.Context, upload Upload, cfg models.JobConfig) (*models.DocumentResult, error) {
	check := s.validator.ValidateUpload(upload.Filename, upload.Data)
	if !check.IsValid {
		return nil, &InvalidRequestError{Errors: check.Errors}
	}
	cfg = s.WithDefaults(cfg)
	doc := models.DocumentRef{
		Title:       upload.Title,
		Description: upload.Description,
		SourceKind:  models.SourceInline,
		Locator:     upload.Filename,
		Data:        upload.Data,
	}
	if err := s.validate([]models.DocumentRef{doc}, cfg); err != nil {
		return nil, err
	}

	s.logger.Info("Tagging single document",
		logger.String("filename", upload.Filename),
		logger.Int64("size", check.FileInfo.Size),
		logger.String("sha256", check.FileInfo.Hash),
	)

	job := models.NewBatchJob(uuid.New().String(), []models.DocumentRef{doc}, cfg)
	job = s.runner.Run(ctx, job, progress.Discard{})
	if len(job.Results) == 0 {
		if job.Error != "" {
			return nil, errors.New(job.Error)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("document was not processed (job %s)", job.Status)
	}
	result := job.Results[0]
	return &result, nil
}

func (s *DocumentService) SubmitBatch(ctx context.Context, docs []models.DocumentRef, cfg models.JobConfig, opts SubmitOptions) (*models.BatchJob, error) {
	if s.queue == nil {
		return nil, ErrQueueUnavailable
	}
	cfg = s.WithDefaults(cfg)
	if err := s.validate(docs, cfg); err != nil {
		return nil, err
	}

	jobID := uuid.New().String()
	docs, err := s.stageUploads(ctx, jobID, docs)
	if err != nil {
		return nil, err
	}

	job := models.NewBatchJob(jobID, docs, cfg)
	if err := s.jobs.RecordJobStatus(ctx, job); err != nil {
		s.logger.Error("Failed to save initial status",
			logger.String("jobId", jobID),
			logger.Error(err),
		)
	}
	if err := s.queue.Enqueue(ctx, job, queue.EnqueueOptions{
		Priority:          opts.Priority,
		RequireSubscriber: opts.RequireSubscriber,
	}); err != nil {
		s.logger.Error("Failed to enqueue batch",
			logger.String("jobId", jobID),
			logger.Error(err),
		)
		return nil, fmt.Errorf("failed to enqueue batch: %w", err)
	}

	s.logger.Info("Batch job submitted",
		logger.String("jobId", jobID),
		logger.Int("documents", len(docs)),
	)
	return job, nil
}

// stageUploads replaces inline documents with object-store references so
// the queued task stays small. Without object storage the bytes travel in
// the task.
func (s *DocumentService) stageUploads(ctx context.Context, jobID string, docs []models.DocumentRef) ([]models.DocumentRef, error) {
	if s.uploader == nil {
		return docs, nil
	}
	out := append([]models.DocumentRef(nil), docs...)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.UploadConcurrency)
	for i := range out {
		if out[i].SourceKind != models.SourceInline {
			continue
		}
		i := i
		g.Go(func() error {
			key := fmt.Sprintf("%s%s/%03d.pdf", s.config.UploadPrefix, jobID, i)
			data := out[i].Data
			if err := s.uploader.Put(gctx, key, bytes.NewReader(data), int64(len(data)), "application/pdf"); err != nil {
				return fmt.Errorf("failed to store upload %d: %w", i+1, err)
			}
			if out[i].Title == "" {
				out[i].Title = strings.TrimSuffix(out[i].Locator, ".pdf")
			}
			out[i].SourceKind = models.SourceObjectStore
			out[i].Locator = key
			out[i].Data = nil
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *DocumentService) StreamBatch(ctx context.Context, docs []models.DocumentRef, cfg models.JobConfig) (*models.BatchJob, <-chan models.ProgressEvent, error) {
	cfg = s.WithDefaults(cfg)
	if err := s.validate(docs, cfg); err != nil {
		return nil, nil, err
	}

	job := models.NewBatchJob(uuid.New().String(), docs, cfg)
	runCtx, cancel := context.WithCancel(ctx)
	sink := progress.NewChannelSink(s.config.StreamBuffer, runCtx.Done())
	s.track(job.ID, cancel)

	// the orchestrator owns job until Run returns, so the caller gets a
	// snapshot taken before the run starts
	snapshot := *job
	snapshot.Documents = nil

	go func() {
		defer sink.Close()
		defer s.untrack(job.ID)
		defer cancel()
		s.runner.Run(runCtx, job, sink)
	}()
	return &snapshot, sink.Events(), nil
}

func (s *DocumentService) GetBatch(ctx context.Context, jobID string) (*models.BatchJob, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}
	return job, nil
}

// CancelBatch stops a job in this process when it runs here, otherwise
// raises the queue's cancel flag. Already finished jobs are left alone.
func (s *DocumentService) CancelBatch(ctx context.Context, jobID string) error {
	if s.cancelLocal(jobID) {
		s.logger.Info("Batch job cancelled", logger.String("jobId", jobID), logger.String("where", "local"))
		return nil
	}

	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to get job %s: %w", jobID, err)
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrJobFinished, job.Status)
	}
	if s.queue == nil {
		return ErrQueueUnavailable
	}
	if err := s.queue.RequestCancel(ctx, jobID); err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}
	s.logger.Info("Batch job cancelled", logger.String("jobId", jobID), logger.String("where", "queue"))
	return nil
}

func (s *DocumentService) ExportBatch(ctx context.Context, jobID, format string) (*Export, error) {
	conv, err := converters.ForFormat(format)
	if err != nil {
		return nil, &InvalidRequestError{Errors: []validator.ValidationError{{
			Code: "INVALID_FORMAT", Message: err.Error(), Field: "format",
		}}}
	}
	job, err := s.GetBatch(ctx, jobID)
	if err != nil {
		return nil, err
	}
	body, err := conv.Convert(job)
	if err != nil {
		return nil, fmt.Errorf("failed to convert job: %w", err)
	}
	return &Export{
		Filename:    jobID + conv.Extension(),
		ContentType: conv.ContentType(),
		Body:        body,
	}, nil
}

func (s *DocumentService) validate(docs []models.DocumentRef, cfg models.JobConfig) error {
	if errs := s.validator.ValidateJob(docs, cfg); len(errs) > 0 {
		return &InvalidRequestError{Errors: errs}
	}
	return nil
}

func (s *DocumentService) track(jobID string, cancel context.CancelFunc) {
	s.mu.Lock()
	s.running[jobID] = cancel
	s.mu.Unlock()
}

func (s *DocumentService) untrack(jobID string) {
	s.mu.Lock()
	delete(s.running, jobID)
	s.mu.Unlock()
}

func (s *DocumentService) cancelLocal(jobID string) bool {
	s.mu.Lock()
	cancel, ok := s.running[jobID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}
