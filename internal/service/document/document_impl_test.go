package document

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/repository"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/service/batch"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/utils/validator"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/logger"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/queue"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj << /Type /Catalog >> endobj\n%%EOF\n")

type runnerFunc func(ctx context.Context, job *models.BatchJob, sink batch.ProgressSink) *models.BatchJob

func (f runnerFunc) Run(ctx context.Context, job *models.BatchJob, sink batch.ProgressSink) *models.BatchJob {
	return f(ctx, job, sink)
}

// tagAll marks every document as tagged and emits the usual events.
func tagAll(ctx context.Context, job *models.BatchJob, sink batch.ProgressSink) *models.BatchJob {
	_ = job.Transition(models.JobProcessing)
	for i, d := range job.Documents {
		_ = sink.Send(ctx, models.ProgressEvent{JobID: job.ID, RowIndex: i, Status: models.DocumentProcessing})
		res := models.DocumentResult{RowIndex: i, Title: d.Title, Status: models.DocumentSuccess, Tags: []string{"budget"}}
		job.Record(res)
		_ = sink.Send(ctx, models.ProgressEvent{JobID: job.ID, RowIndex: i, Status: models.DocumentSuccess, Tags: res.Tags})
	}
	_ = job.Transition(models.JobCompleted)
	return job
}

type fakeQueue struct {
	mu        sync.Mutex
	enqueued  []*models.BatchJob
	opts      []queue.EnqueueOptions
	cancelled []string
	err       error
}

func (q *fakeQueue) Enqueue(_ context.Context, job *models.BatchJob, opts queue.EnqueueOptions) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, job)
	q.opts = append(q.opts, opts)
	return nil
}

func (q *fakeQueue) RequestCancel(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled = append(q.cancelled, jobID)
	return nil
}

func (q *fakeQueue) CancelRequested(context.Context, string) (bool, error) { return false, nil }

type memUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (u *memUploader) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.objects[key] = data
	return nil
}

type serviceHarness struct {
	svc      *DocumentService
	queue    *fakeQueue
	uploader *memUploader
	jobs     *repository.MemoryRepository
}

func newHarness(t *testing.T, runner Runner, withStorage bool) *serviceHarness {
	t.Helper()
	h := &serviceHarness{
		queue: &fakeQueue{},
		jobs:  repository.NewMemoryRepository(),
	}
	var up Uploader
	if withStorage {
		h.uploader = &memUploader{objects: map[string][]byte{}}
		up = h.uploader
	}
	log := logger.NewNop()
	h.svc = NewService(runner, h.queue, up, h.jobs,
		validator.NewDocumentValidator(log, nil), log,
		&ServiceConfig{Defaults: models.JobConfig{
			ModelName:      "openai/gpt-4o-mini",
			PagesToExtract: 3,
			TagsRequested:  8,
		}},
	)
	return h
}

func TestWithDefaultsKeepsExplicitValues(t *testing.T) {
	h := newHarness(t, runnerFunc(tagAll), false)

	cfg := h.svc.WithDefaults(models.JobConfig{TagsRequested: 5})
	assert.Equal(t, "openai/gpt-4o-mini", cfg.ModelName)
	assert.Equal(t, 3, cfg.PagesToExtract)
	assert.Equal(t, 5, cfg.TagsRequested)
}

func TestTagDocument(t *testing.T) {
	var seen *models.BatchJob
	h := newHarness(t, runnerFunc(func(ctx context.Context, job *models.BatchJob, sink batch.ProgressSink) *models.BatchJob {
		seen = job
		return tagAll(ctx, job, sink)
	}), false)

	res, err := h.svc.TagDocument(context.Background(), Upload{Filename: "circular.pdf", Title: "Circular", Data: samplePDF}, models.JobConfig{})
	require.NoError(t, err)
	assert.Equal(t, models.DocumentSuccess, res.Status)
	assert.Equal(t, []string{"budget"}, res.Tags)

	require.NotNil(t, seen)
	require.Len(t, seen.Documents, 1)
	assert.Equal(t, models.SourceInline, seen.Documents[0].SourceKind)
	assert.Equal(t, 8, seen.Config.TagsRequested)
}

func TestTagDocumentRejectsNonPDF(t *testing.T) {
	h := newHarness(t, runnerFunc(tagAll), false)

	_, err := h.svc.TagDocument(context.Background(), Upload{Filename: "notes.txt", Data: []byte("hello")}, models.JobConfig{})
	var invalid *InvalidRequestError
	require.ErrorAs(t, err, &invalid)
	assert.NotEmpty(t, invalid.Errors)
}

func TestTagDocumentReportsJobFailure(t *testing.T) {
	h := newHarness(t, runnerFunc(func(_ context.Context, job *models.BatchJob, _ batch.ProgressSink) *models.BatchJob {
		_ = job.Transition(models.JobFailed)
		job.Error = "failed to create provider"
		return job
	}), false)

	_, err := h.svc.TagDocument(context.Background(), Upload{Filename: "a.pdf", Data: samplePDF}, models.JobConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create provider")
}

func TestSubmitBatchStagesUploads(t *testing.T) {
	h := newHarness(t, runnerFunc(tagAll), true)
	docs := []models.DocumentRef{
		{Title: "A", SourceKind: models.SourceInline, Locator: "a.pdf", Data: samplePDF},
		{Title: "B", SourceKind: models.SourceURL, Locator: "https://example.org/b.pdf"},
		{SourceKind: models.SourceInline, Locator: "c.pdf", Data: samplePDF},
	}

	job, err := h.svc.SubmitBatch(context.Background(), docs, models.JobConfig{}, SubmitOptions{Priority: queue.PriorityCritical})
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, job.Status)
	assert.Equal(t, 3, job.TotalDocuments)

	require.Len(t, h.queue.enqueued, 1)
	queued := h.queue.enqueued[0]
	assert.Equal(t, queue.PriorityCritical, h.queue.opts[0].Priority)
	assert.Equal(t, models.SourceObjectStore, queued.Documents[0].SourceKind)
	assert.Equal(t, "uploads/"+job.ID+"/000.pdf", queued.Documents[0].Locator)
	assert.Nil(t, queued.Documents[0].Data)
	assert.Equal(t, models.SourceURL, queued.Documents[1].SourceKind)
	assert.Equal(t, "c", queued.Documents[2].Title)
	assert.Len(t, h.uploader.objects, 2)

	// caller's refs are untouched
	assert.Equal(t, models.SourceInline, docs[0].SourceKind)

	stored, err := h.jobs.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, stored.Status)
}

func TestSubmitBatchErrors(t *testing.T) {
	h := newHarness(t, runnerFunc(tagAll), false)
	docs := []models.DocumentRef{{SourceKind: models.SourceURL, Locator: "https://example.org/a.pdf"}}

	_, err := h.svc.SubmitBatch(context.Background(), docs, models.JobConfig{TagsRequested: 20}, SubmitOptions{})
	var invalid *InvalidRequestError
	require.ErrorAs(t, err, &invalid)

	h.queue.err = errors.New("redis down")
	_, err = h.svc.SubmitBatch(context.Background(), docs, models.JobConfig{}, SubmitOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")

	noQueue := NewService(runnerFunc(tagAll), nil, nil, repository.NewMemoryRepository(),
		validator.NewDocumentValidator(logger.NewNop(), nil), logger.NewNop(), nil)
	_, err = noQueue.SubmitBatch(context.Background(), docs, models.JobConfig{ModelName: "m", PagesToExtract: 1, TagsRequested: 5}, SubmitOptions{})
	assert.ErrorIs(t, err, ErrQueueUnavailable)
}

func TestStreamBatchDeliversEvents(t *testing.T) {
	h := newHarness(t, runnerFunc(tagAll), false)
	docs := []models.DocumentRef{
		{Title: "A", SourceKind: models.SourceURL, Locator: "https://example.org/a.pdf"},
		{Title: "B", SourceKind: models.SourceURL, Locator: "https://example.org/b.pdf"},
	}

	job, events, err := h.svc.StreamBatch(context.Background(), docs, models.JobConfig{})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)

	var got []models.ProgressEvent
	for ev := range events {
		got = append(got, ev)
	}
	require.Len(t, got, 4)
	assert.True(t, got[3].Terminal())
}

func TestCancelBatchStopsLocalRun(t *testing.T) {
	started := make(chan struct{})
	h := newHarness(t, runnerFunc(func(ctx context.Context, job *models.BatchJob, _ batch.ProgressSink) *models.BatchJob {
		_ = job.Transition(models.JobProcessing)
		close(started)
		<-ctx.Done()
		_ = job.Transition(models.JobCancelled)
		return job
	}), false)

	job, events, err := h.svc.StreamBatch(context.Background(),
		[]models.DocumentRef{{SourceKind: models.SourceURL, Locator: "https://example.org/a.pdf"}},
		models.JobConfig{})
	require.NoError(t, err)
	<-started

	require.NoError(t, h.svc.CancelBatch(context.Background(), job.ID))
	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close after cancel")
	}
	assert.Empty(t, h.queue.cancelled)
}

func TestCancelBatchQueued(t *testing.T) {
	h := newHarness(t, runnerFunc(tagAll), false)
	ctx := context.Background()

	pending := models.NewBatchJob("queued", nil, models.JobConfig{})
	require.NoError(t, h.jobs.RecordJobStatus(ctx, pending))
	require.NoError(t, h.svc.CancelBatch(ctx, "queued"))
	assert.Equal(t, []string{"queued"}, h.queue.cancelled)

	done := models.NewBatchJob("done", nil, models.JobConfig{})
	require.NoError(t, done.Transition(models.JobProcessing))
	require.NoError(t, done.Transition(models.JobCompleted))
	require.NoError(t, h.jobs.RecordJobStatus(ctx, done))
	assert.ErrorIs(t, h.svc.CancelBatch(ctx, "done"), ErrJobFinished)

	assert.ErrorIs(t, h.svc.CancelBatch(ctx, "missing"), models.ErrJobNotFound)
}

func TestExportBatch(t *testing.T) {
	h := newHarness(t, runnerFunc(tagAll), false)
	ctx := context.Background()

	job := models.NewBatchJob("exp", []models.DocumentRef{{Title: "A"}, {Title: "B"}}, models.JobConfig{ModelName: "m"})
	require.NoError(t, job.Transition(models.JobProcessing))
	job.Record(models.DocumentResult{RowIndex: 0, Title: "A", Status: models.DocumentSuccess, Tags: []string{"budget"}})
	require.NoError(t, h.jobs.RecordJobStatus(ctx, job))
	require.NoError(t, h.jobs.RecordDocumentResult(ctx, job.ID, job.Results[0]))

	out, err := h.svc.ExportBatch(ctx, "exp", "json")
	require.NoError(t, err)
	assert.Equal(t, "exp.json", out.Filename)
	assert.Equal(t, "application/json", out.ContentType)
	assert.Contains(t, string(out.Body), `"status": "pending"`)

	_, err = h.svc.ExportBatch(ctx, "exp", "csv")
	var invalid *InvalidRequestError
	assert.ErrorAs(t, err, &invalid)
}
