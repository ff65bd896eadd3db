package batch

import (
	"context"
	"fmt"
	"path"
	"runtime/debug"
	"sync"
	"time"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/agent/tagging"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/logger"
)

const (
	defaultDocumentDelay  = 500 * time.Millisecond
	defaultPersistTimeout = 10 * time.Second
)

// Retriever fetches the raw bytes of one batch row.
type Retriever interface {
	Fetch(ctx context.Context, ref models.DocumentRef) ([]byte, error)
}

// Extractor turns a PDF into text. It never returns an error; failures are
// described by the result.
type Extractor interface {
	Extract(ctx context.Context, doc models.RawDocument) models.ExtractionResult
}

// Tagger is one job's tag synthesis engine.
type Tagger interface {
	Generate(ctx context.Context, req tagging.Request) tagging.Result
}

// TaggerFactory builds a fresh tagger for a job, so that backoff state is
// never shared between jobs.
type TaggerFactory func(cfg models.JobConfig) (Tagger, error)

// ProgressSink receives one event per row transition.
type ProgressSink interface {
	Send(ctx context.Context, ev models.ProgressEvent) error
	// Alive is false once the consumer has gone away.
	Alive() bool
}

// Persistence records results outside the job. Errors are logged and
// otherwise ignored by the orchestrator.
type Persistence interface {
	RecordDocumentResult(ctx context.Context, jobID string, result models.DocumentResult) error
	RecordJobStatus(ctx context.Context, job *models.BatchJob) error
}

type Options struct {
	// DocumentDelay is the pause between rows. Zero uses the default,
	// negative disables it.
	DocumentDelay  time.Duration
	PersistTimeout time.Duration
}

// Orchestrator runs batch jobs one document at a time.
type Orchestrator struct {
	logger      logger.Logger
	retriever   Retriever
	extractor   Extractor
	newTagger   TaggerFactory
	persistence Persistence
	delay       time.Duration
	persistTO   time.Duration
}

func NewOrchestrator(
	log logger.Logger,
	retriever Retriever,
	extractor Extractor,
	newTagger TaggerFactory,
	persistence Persistence,
	opts Options,
) *Orchestrator {
	if opts.DocumentDelay == 0 {
		opts.DocumentDelay = defaultDocumentDelay
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = defaultPersistTimeout
	}
	return &Orchestrator{
		logger:      log.Named("batch"),
		retriever:   retriever,
		extractor:   extractor,
		newTagger:   newTagger,
		persistence: persistence,
		delay:       max(opts.DocumentDelay, 0),
		persistTO:   opts.PersistTimeout,
	}
}

// run carries the per-job state of one Run call.
type run struct {
	o          *Orchestrator
	job        *models.BatchJob
	sink       ProgressSink
	tagger     Tagger
	exclusions models.ExclusionSet
	log        logger.Logger
	pending    sync.WaitGroup
	// lastStatus closes when the previous status write has finished.
	// Status writes are chained on it so stores see them in order.
	lastStatus chan struct{}
}

// Run processes every document of job in order and returns the same job in
// a terminal state. Cancelling ctx or losing the progress consumer stops the
// job before the next document; rows not reached stay unresolved.
func (o *Orchestrator) Run(ctx context.Context, job *models.BatchJob, sink ProgressSink) *models.BatchJob {
	ctx = logger.IntoContext(ctx, logger.String("jobId", job.ID))
	r := &run{
		o:    o,
		job:  job,
		sink: sink,
		log:  logger.FromContext(ctx, o.logger).With(logger.Int("documents", len(job.Documents))),
	}
	defer r.pending.Wait()
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Batch job panicked",
				logger.Any("panic", rec),
				logger.String("stack", string(debug.Stack())),
			)
			r.fail(ctx, fmt.Errorf("internal error: %v", rec))
		}
	}()

	if err := job.Transition(models.JobProcessing); err != nil {
		r.log.Warn("Batch job not runnable", logger.Error(err))
		return job
	}
	r.persistJob(ctx)
	r.log.Info("Batch job started", logger.String("model", job.Config.ModelName))

	if err := job.Config.Validate(); err != nil {
		r.fail(ctx, fmt.Errorf("invalid job config: %w", err))
		return job
	}
	tagger, err := o.newTagger(job.Config)
	if err != nil {
		r.fail(ctx, fmt.Errorf("failed to create tagger: %w", err))
		return job
	}
	r.tagger = tagger
	r.exclusions = models.NewExclusionSet(job.Config.ExclusionWords, tagging.Normalize)

	for i := range job.Documents {
		if !r.proceed(ctx) {
			return job
		}
		if err := r.send(ctx, r.event(i, models.DocumentProcessing, float64(i))); err != nil {
			r.log.Info("Progress consumer rejected event, cancelling", logger.Error(err))
			r.cancel(ctx)
			return job
		}
		if !r.proceed(ctx) {
			return job
		}

		result, ok := r.process(ctx, i)
		if !ok {
			r.cancel(ctx)
			return job
		}
		job.Record(result.DocumentResult)
		r.persistResult(ctx, result)

		ev := r.event(i, result.Status, float64(i+1))
		ev.Title = result.Title
		ev.Tags = result.Tags
		ev.Error = result.Error
		ev.ErrorKind = result.ErrorKind
		if result.retryAfter > 0 {
			ev.RetryAfterMs = result.retryAfter.Milliseconds()
		}
		ev.RetryCount = result.retryCount
		if err := r.send(ctx, ev); err != nil {
			r.log.Info("Progress consumer rejected event, cancelling", logger.Error(err))
			r.cancel(ctx)
			return job
		}

		if i < len(job.Documents)-1 {
			r.pause(ctx)
		}
	}

	if err := job.Transition(models.JobCompleted); err != nil {
		r.log.Error("Failed to complete batch job", logger.Error(err))
		return job
	}
	r.persistJob(ctx)
	r.log.Info("Batch job completed",
		logger.Int("processed", job.ProcessedCount),
		logger.Int("failed", job.FailedCount),
	)
	return job
}

// proceed is the cancellation point checked around every row.
func (r *run) proceed(ctx context.Context) bool {
	if ctx.Err() != nil {
		r.log.Info("Batch job cancelled", logger.Int("processed", r.job.ProcessedCount))
		r.cancel(ctx)
		return false
	}
	if !r.sink.Alive() {
		r.log.Info("Progress consumer gone, cancelling", logger.Int("processed", r.job.ProcessedCount))
		r.cancel(ctx)
		return false
	}
	return true
}

func (r *run) cancel(ctx context.Context) {
	if err := r.job.Transition(models.JobCancelled); err != nil {
		r.log.Warn("Failed to cancel batch job", logger.Error(err))
		return
	}
	r.persistJob(ctx)
}

func (r *run) fail(ctx context.Context, err error) {
	r.job.Error = err.Error()
	if terr := r.job.Transition(models.JobFailed); terr != nil {
		r.log.Warn("Failed to mark batch job failed", logger.Error(terr))
		return
	}
	r.log.Error("Batch job failed", logger.Error(err))
	r.persistJob(ctx)
}

// pause waits between documents and returns early on cancellation.
func (r *run) pause(ctx context.Context) {
	if r.o.delay <= 0 {
		return
	}
	timer := time.NewTimer(r.o.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (r *run) event(i int, status models.DocumentStatus, done float64) models.ProgressEvent {
	total := len(r.job.Documents)
	progress := 1.0
	if total > 0 {
		progress = done / float64(total)
	}
	return models.ProgressEvent{
		JobID:     r.job.ID,
		RowIndex:  i,
		RowNumber: i + 1,
		Title:     r.job.Documents[i].Title,
		Status:    status,
		Progress:  progress,
	}
}

func (r *run) send(ctx context.Context, ev models.ProgressEvent) error {
	if err := r.sink.Send(ctx, ev); err != nil {
		return fmt.Errorf("failed to send progress for row %d: %w", ev.RowNumber, err)
	}
	return nil
}

// persistResult and persistJob hand a snapshot to the persistence layer in
// the background. Run waits for them before returning.
func (r *run) persistResult(ctx context.Context, result rowResult) {
	if r.o.persistence == nil {
		return
	}
	snapshot := result.DocumentResult
	r.background(ctx, "document result", nil, func(ctx context.Context) error {
		return r.o.persistence.RecordDocumentResult(ctx, r.job.ID, snapshot)
	})
}

func (r *run) persistJob(ctx context.Context) {
	if r.o.persistence == nil {
		return
	}
	snapshot := *r.job
	snapshot.Results = append([]models.DocumentResult(nil), r.job.Results...)
	after := r.lastStatus
	done := make(chan struct{})
	r.lastStatus = done
	r.background(ctx, "job status", after, func(ctx context.Context) error {
		defer close(done)
		return r.o.persistence.RecordJobStatus(ctx, &snapshot)
	})
}

// background runs fn off the row loop once after (if any) has closed.
func (r *run) background(ctx context.Context, what string, after <-chan struct{}, fn func(context.Context) error) {
	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		if after != nil {
			<-after
		}
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.o.persistTO)
		defer cancel()
		if err := fn(pctx); err != nil {
			r.log.Warn("Failed to persist "+what, logger.Error(err))
		}
	}()
}

// rowResult is a DocumentResult plus the retry details only the progress
// event carries.
type rowResult struct {
	models.DocumentResult
	retryAfter time.Duration
	retryCount int
}

// process runs one row. ok is false when the job was cancelled before the
// row finished, in which case the row stays unresolved.
func (r *run) process(ctx context.Context, i int) (result rowResult, ok bool) {
	ref := r.job.Documents[i]
	start := time.Now()
	result.RowIndex = i
	result.Title = ref.Title
	ctx = logger.IntoContext(ctx, logger.Int("row", i+1))
	log := logger.FromContext(ctx, r.o.logger).With(logger.String("title", ref.Title))

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("Document processing panicked",
				logger.Any("panic", rec),
				logger.String("stack", string(debug.Stack())),
			)
			result.Status = models.DocumentFailed
			result.Tags = nil
			result.Error = fmt.Sprintf("internal error: %v", rec)
			result.ErrorKind = models.ErrorKindUnknown
			ok = true
		}
		result.ProcessingMs = time.Since(start).Milliseconds()
	}()

	data, err := r.o.retriever.Fetch(ctx, ref)
	if ctx.Err() != nil {
		return result, false
	}
	if err != nil {
		log.Warn("Failed to retrieve document", logger.Error(err))
		result.Status = models.DocumentFailed
		result.Error = err.Error()
		result.ErrorKind = ClassifyError(err)
		return result, true
	}

	ext := r.o.extractor.Extract(ctx, models.RawDocument{
		Data:      data,
		PageLimit: r.job.Config.PagesToExtract,
	})
	if ctx.Err() != nil {
		return result, false
	}
	result.ExtractionMethod = ext.ExtractionMethod
	result.Language = ext.LanguageName
	result.QualityTier = ext.QualityInfo.Tier
	result.PageCount = ext.PageCount
	result.PagesExtracted = ext.PagesExtracted
	result.IsScanned = ext.IsScanned
	if result.Title == "" {
		result.Title = fallbackTitle(ext.Title, ref.Locator)
	}
	if !ext.Success {
		log.Warn("Extraction failed", logger.String("error", ext.Error))
		result.Status = models.DocumentFailed
		result.Error = ext.Error
		result.ErrorKind = ClassifyMessage(ext.Error)
		return result, true
	}

	tr := r.tagger.Generate(ctx, tagging.Request{
		Title:        result.Title,
		Description:  ref.Description,
		Text:         ext.Text,
		TargetCount:  r.job.Config.TagsRequested,
		LanguageHint: ext.LanguageName,
		QualityHint:  ext.QualityInfo.Tier,
		Exclusions:   r.exclusions,
	})
	result.retryCount = tr.RetryCount
	if !tr.Success {
		if ctx.Err() != nil {
			return result, false
		}
		log.Warn("Tag generation failed",
			logger.String("kind", string(tr.ErrorKind)),
			logger.String("error", tr.Error),
		)
		result.Status = models.DocumentFailed
		result.Error = tr.Error
		result.ErrorKind = KindForTagging(tr.ErrorKind)
		result.retryAfter = tr.RetryAfter
		return result, true
	}

	result.Status = models.DocumentSuccess
	result.Tags = tr.Tags
	log.Info("Document tagged",
		logger.Strings("tags", tr.Tags),
		logger.String("method", string(ext.ExtractionMethod)),
		logger.Int("attempts", tr.Attempts),
	)
	return result, true
}

func fallbackTitle(extracted, locator string) string {
	if extracted != "" {
		return extracted
	}
	if locator == "" {
		return ""
	}
	return path.Base(locator)
}
