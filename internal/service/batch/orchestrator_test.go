package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/agent/tagging"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/logger"
)

var sampleText = strings.Repeat("The Ministry of Jal Shakti issued revised guidelines for rural water supply. ", 10)

type fakeRetriever struct {
	errs map[string]error
}

func (f *fakeRetriever) Fetch(_ context.Context, ref models.DocumentRef) ([]byte, error) {
	if err := f.errs[ref.Locator]; err != nil {
		return nil, err
	}
	return []byte("%PDF-1.7 " + ref.Locator), nil
}

type fakeExtractor struct {
	results map[string]models.ExtractionResult
	panics  map[string]bool
}

func (f *fakeExtractor) Extract(_ context.Context, doc models.RawDocument) models.ExtractionResult {
	locator := strings.TrimPrefix(string(doc.Data), "%PDF-1.7 ")
	if f.panics[locator] {
		panic("corrupt xref")
	}
	if res, ok := f.results[locator]; ok {
		return res
	}
	return models.ExtractionResult{
		Success:          true,
		Text:             sampleText,
		PageCount:        4,
		PagesExtracted:   3,
		ExtractionMethod: models.MethodNative,
		LanguageName:     "English",
		QualityInfo:      models.QualityInfo{Type: models.DocumentDigital, Tier: models.QualityHigh},
	}
}

type countingTagger struct {
	calls   atomic.Int32
	results map[string]tagging.Result
	seen    []tagging.Request
	mu      sync.Mutex
}

func (t *countingTagger) Generate(_ context.Context, req tagging.Request) tagging.Result {
	t.calls.Add(1)
	t.mu.Lock()
	t.seen = append(t.seen, req)
	t.mu.Unlock()
	if res, ok := t.results[req.Title]; ok {
		return res
	}
	return tagging.Result{Success: true, Tags: []string{"jal shakti", "water supply", "guidelines"}, Attempts: 1}
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.ProgressEvent
	dead   atomic.Bool
	onSend func(ev models.ProgressEvent) error
}

func (s *recordingSink) Send(_ context.Context, ev models.ProgressEvent) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	if s.onSend != nil {
		return s.onSend(ev)
	}
	return nil
}

func (s *recordingSink) Alive() bool { return !s.dead.Load() }

func (s *recordingSink) all() []models.ProgressEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ProgressEvent(nil), s.events...)
}

func (s *recordingSink) terminal() []models.ProgressEvent {
	var out []models.ProgressEvent
	for _, ev := range s.all() {
		if ev.Terminal() {
			out = append(out, ev)
		}
	}
	return out
}

type memPersistence struct {
	mu       sync.Mutex
	results  []models.DocumentResult
	statuses []models.JobStatus
	err      error
	// delays slows down writes of the given status.
	delays map[models.JobStatus]time.Duration
}

func (p *memPersistence) RecordDocumentResult(_ context.Context, _ string, r models.DocumentResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, r)
	return p.err
}

func (p *memPersistence) RecordJobStatus(_ context.Context, job *models.BatchJob) error {
	if d := p.delays[job.Status]; d > 0 {
		time.Sleep(d)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, job.Status)
	return p.err
}

type harness struct {
	log         *logger.TestLogger
	retriever   *fakeRetriever
	extractor   *fakeExtractor
	tagger      *countingTagger
	persistence *memPersistence
	factoryErr  error
	factoryRuns atomic.Int32
	delay       time.Duration
}

func newHarness() *harness {
	return &harness{
		log:         logger.NewTestLogger(),
		retriever:   &fakeRetriever{errs: map[string]error{}},
		extractor:   &fakeExtractor{results: map[string]models.ExtractionResult{}, panics: map[string]bool{}},
		tagger:      &countingTagger{results: map[string]tagging.Result{}},
		persistence: &memPersistence{},
		delay:       -1,
	}
}

func (h *harness) orchestrator() *Orchestrator {
	factory := func(models.JobConfig) (Tagger, error) {
		h.factoryRuns.Add(1)
		if h.factoryErr != nil {
			return nil, h.factoryErr
		}
		return h.tagger, nil
	}
	return NewOrchestrator(h.log, h.retriever, h.extractor, factory, h.persistence, Options{DocumentDelay: h.delay})
}

func newJob(n int) *models.BatchJob {
	docs := make([]models.DocumentRef, n)
	for i := range docs {
		docs[i] = models.DocumentRef{
			Title:      fmt.Sprintf("doc-%d", i+1),
			SourceKind: models.SourceURL,
			Locator:    fmt.Sprintf("https://example.gov.in/doc-%d.pdf", i+1),
		}
	}
	return models.NewBatchJob("job-1", docs, models.JobConfig{
		ModelName:      "openai/gpt-4o-mini",
		PagesToExtract: 3,
		TagsRequested:  5,
		ExclusionWords: []string{"Ministry"},
	})
}

func TestRunCompletesAllDocuments(t *testing.T) {
	h := newHarness()
	job := h.orchestrator().Run(context.Background(), newJob(3), &recordingSink{})

	assert.Equal(t, models.JobCompleted, job.Status)
	assert.False(t, job.Cancelled)
	assert.Equal(t, 3, job.ProcessedCount)
	assert.Equal(t, 0, job.FailedCount)
	require.Len(t, job.Results, 3)
	for i, r := range job.Results {
		assert.Equal(t, i, r.RowIndex)
		assert.Equal(t, models.DocumentSuccess, r.Status)
		assert.Equal(t, []string{"jal shakti", "water supply", "guidelines"}, r.Tags)
		assert.Equal(t, models.MethodNative, r.ExtractionMethod)
		assert.Equal(t, 3, r.PagesExtracted)
	}

	h.persistence.mu.Lock()
	defer h.persistence.mu.Unlock()
	assert.Len(t, h.persistence.results, 3)
	assert.Contains(t, h.persistence.statuses, models.JobCompleted)
}

func TestRunEventSequence(t *testing.T) {
	h := newHarness()
	sink := &recordingSink{}
	h.orchestrator().Run(context.Background(), newJob(2), sink)

	events := sink.all()
	require.Len(t, events, 4)
	assert.Equal(t, models.DocumentProcessing, events[0].Status)
	assert.Equal(t, 1, events[0].RowNumber)
	assert.Equal(t, 0.0, events[0].Progress)
	assert.Equal(t, models.DocumentSuccess, events[1].Status)
	assert.Equal(t, 0.5, events[1].Progress)
	assert.NotEmpty(t, events[1].Tags)
	assert.Equal(t, models.DocumentProcessing, events[2].Status)
	assert.Equal(t, 2, events[2].RowNumber)
	assert.Equal(t, 1.0, events[3].Progress)
	for _, ev := range events {
		assert.Equal(t, "job-1", ev.JobID)
	}
}

func TestRunPassesExtractionToTagger(t *testing.T) {
	h := newHarness()
	h.orchestrator().Run(context.Background(), newJob(1), &recordingSink{})

	require.Len(t, h.tagger.seen, 1)
	req := h.tagger.seen[0]
	assert.Equal(t, "doc-1", req.Title)
	assert.Equal(t, 5, req.TargetCount)
	assert.Equal(t, "English", req.LanguageHint)
	assert.Equal(t, models.QualityHigh, req.QualityHint)
	assert.True(t, req.Exclusions.Contains("ministry"))
	assert.Equal(t, sampleText, req.Text)
}

func TestRunCancelledMidBatch(t *testing.T) {
	h := newHarness()
	h.delay = 10 * time.Second
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	terminal := 0
	sink := &recordingSink{onSend: func(ev models.ProgressEvent) error {
		if ev.Terminal() {
			terminal++
			if terminal == 3 {
				cancel()
			}
		}
		return nil
	}}

	start := time.Now()
	job := h.orchestrator().Run(ctx, newJob(10), sink)

	assert.Less(t, time.Since(start), 5*time.Second, "inter-document delay must observe cancellation")
	assert.Equal(t, models.JobCancelled, job.Status)
	assert.True(t, job.Cancelled)
	assert.Equal(t, 3, job.ProcessedCount)
	assert.Len(t, job.Results, 3)
	assert.Len(t, sink.terminal(), 3)
	assert.Equal(t, int32(3), h.tagger.calls.Load())
}

func TestRunCancelledBeforeStart(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &recordingSink{}
	job := h.orchestrator().Run(ctx, newJob(4), sink)

	assert.Equal(t, models.JobCancelled, job.Status)
	assert.Empty(t, sink.all())
	assert.Zero(t, h.tagger.calls.Load())
}

func TestRunStopsWhenConsumerGone(t *testing.T) {
	h := newHarness()
	sink := &recordingSink{}
	sink.onSend = func(ev models.ProgressEvent) error {
		if ev.Terminal() {
			sink.dead.Store(true)
		}
		return nil
	}

	job := h.orchestrator().Run(context.Background(), newJob(5), sink)

	assert.Equal(t, models.JobCancelled, job.Status)
	assert.Equal(t, 1, job.ProcessedCount)
	assert.Equal(t, int32(1), h.tagger.calls.Load())
}

func TestRunSendFailureCancels(t *testing.T) {
	h := newHarness()
	sink := &recordingSink{onSend: func(models.ProgressEvent) error {
		return errors.New("broken pipe")
	}}

	job := h.orchestrator().Run(context.Background(), newJob(3), sink)

	assert.Equal(t, models.JobCancelled, job.Status)
	assert.Zero(t, job.ProcessedCount)
	assert.Zero(t, h.tagger.calls.Load())
}

func TestRunRowFailuresDoNotStopJob(t *testing.T) {
	h := newHarness()
	h.retriever.errs["https://example.gov.in/doc-1.pdf"] = fmt.Errorf("failed to download: dial tcp: connection refused")
	h.extractor.results["https://example.gov.in/doc-2.pdf"] = models.FailedExtraction("insufficient content: no text found")
	h.tagger.results["doc-3"] = tagging.Result{
		ErrorKind:  tagging.KindRateLimited,
		Error:      "rate limited",
		RetryAfter: 4 * time.Second,
		RetryCount: 1,
	}
	h.tagger.results["doc-4"] = tagging.Result{ErrorKind: tagging.KindModelIncompatible, Error: "model rejected request"}
	sink := &recordingSink{}

	job := h.orchestrator().Run(context.Background(), newJob(5), sink)

	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, 5, job.ProcessedCount)
	assert.Equal(t, 4, job.FailedCount)
	assert.Equal(t, 1, job.SuccessCount())

	kinds := make([]models.ErrorKind, 0, 4)
	for _, r := range job.Results[:4] {
		assert.Equal(t, models.DocumentFailed, r.Status)
		assert.Empty(t, r.Tags)
		kinds = append(kinds, r.ErrorKind)
	}
	assert.Equal(t, []models.ErrorKind{
		models.ErrorKindNetwork,
		models.ErrorKindUnknown,
		models.ErrorKindRateLimit,
		models.ErrorKindModelError,
	}, kinds)
	assert.Equal(t, models.DocumentSuccess, job.Results[4].Status)

	terminal := sink.terminal()
	require.Len(t, terminal, 5)
	assert.Equal(t, int64(4000), terminal[2].RetryAfterMs)
	assert.Equal(t, 1, terminal[2].RetryCount)
}

func TestRunRecoversFromDocumentPanic(t *testing.T) {
	h := newHarness()
	h.extractor.panics["https://example.gov.in/doc-1.pdf"] = true

	job := h.orchestrator().Run(context.Background(), newJob(2), &recordingSink{})

	assert.Equal(t, models.JobCompleted, job.Status)
	require.Len(t, job.Results, 2)
	assert.Equal(t, models.DocumentFailed, job.Results[0].Status)
	assert.Equal(t, models.ErrorKindUnknown, job.Results[0].ErrorKind)
	assert.Contains(t, job.Results[0].Error, "corrupt xref")
	assert.Equal(t, models.DocumentSuccess, job.Results[1].Status)
}

func TestRunTaggerFactoryFailure(t *testing.T) {
	h := newHarness()
	h.factoryErr = errors.New("unsupported provider kind: grpc")

	job := h.orchestrator().Run(context.Background(), newJob(2), &recordingSink{})

	assert.Equal(t, models.JobFailed, job.Status)
	assert.Contains(t, job.Error, "unsupported provider kind")
	assert.Zero(t, job.ProcessedCount)
}

func TestRunInvalidConfig(t *testing.T) {
	h := newHarness()
	job := newJob(1)
	job.Config.TagsRequested = 40

	h.orchestrator().Run(context.Background(), job, &recordingSink{})

	assert.Equal(t, models.JobFailed, job.Status)
	assert.Contains(t, job.Error, "tags requested")
}

func TestRunTerminalJobUntouched(t *testing.T) {
	h := newHarness()
	job := newJob(2)
	require.NoError(t, job.Transition(models.JobCancelled))
	sink := &recordingSink{}

	h.orchestrator().Run(context.Background(), job, sink)

	assert.Equal(t, models.JobCancelled, job.Status)
	assert.Empty(t, sink.all())
	assert.Zero(t, h.factoryRuns.Load())
}

func TestRunBuildsTaggerPerJob(t *testing.T) {
	h := newHarness()
	o := h.orchestrator()
	o.Run(context.Background(), newJob(1), &recordingSink{})
	o.Run(context.Background(), newJob(1), &recordingSink{})

	assert.Equal(t, int32(2), h.factoryRuns.Load())
}

func TestRunPersistenceErrorsAreLogged(t *testing.T) {
	h := newHarness()
	h.persistence.err = errors.New("connection pool exhausted")

	job := h.orchestrator().Run(context.Background(), newJob(2), &recordingSink{})

	assert.Equal(t, models.JobCompleted, job.Status)
	assert.True(t, h.log.HasMessage("WARN", "Failed to persist document result"))
	assert.True(t, h.log.HasMessage("WARN", "Failed to persist job status"))
}

func TestRunPersistsStatusesInOrder(t *testing.T) {
	h := newHarness()
	h.persistence.delays = map[models.JobStatus]time.Duration{models.JobProcessing: 50 * time.Millisecond}
	job := newJob(1)
	job.Config.TagsRequested = 40

	h.orchestrator().Run(context.Background(), job, &recordingSink{})

	assert.Equal(t, models.JobFailed, job.Status)
	h.persistence.mu.Lock()
	defer h.persistence.mu.Unlock()
	assert.Equal(t, []models.JobStatus{models.JobProcessing, models.JobFailed}, h.persistence.statuses)
}

func TestRunPersistsStatusesInOrderAcrossRows(t *testing.T) {
	h := newHarness()
	h.persistence.delays = map[models.JobStatus]time.Duration{models.JobProcessing: 30 * time.Millisecond}

	job := h.orchestrator().Run(context.Background(), newJob(3), &recordingSink{})

	assert.Equal(t, models.JobCompleted, job.Status)
	h.persistence.mu.Lock()
	defer h.persistence.mu.Unlock()
	assert.Equal(t, []models.JobStatus{models.JobProcessing, models.JobCompleted}, h.persistence.statuses)
}

func TestRunRowLogsCarryJobAndRow(t *testing.T) {
	h := newHarness()
	h.retriever.errs["https://example.gov.in/doc-2.pdf"] = errors.New("failed to download: connection refused")

	h.orchestrator().Run(context.Background(), newJob(2), &recordingSink{})

	var found bool
	for _, e := range h.log.GetEntries() {
		if e.Message != "Failed to retrieve document" {
			continue
		}
		found = true
		fields := e.FieldMap()
		assert.Equal(t, "job-1", fields["jobId"])
		assert.EqualValues(t, 2, fields["row"])
		assert.Equal(t, "doc-2", fields["title"])
	}
	assert.True(t, found)
}

func TestRunWithoutTitleFallsBack(t *testing.T) {
	h := newHarness()
	job := newJob(2)
	job.Documents[0].Title = ""
	job.Documents[1].Title = ""
	h.extractor.results["https://example.gov.in/doc-1.pdf"] = models.ExtractionResult{
		Success:          true,
		Text:             sampleText,
		Title:            "Jal Jeevan Mission Guidelines",
		ExtractionMethod: models.MethodNative,
	}

	h.orchestrator().Run(context.Background(), job, &recordingSink{})

	assert.Equal(t, "Jal Jeevan Mission Guidelines", job.Results[0].Title)
	assert.Equal(t, "doc-2.pdf", job.Results[1].Title)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want models.ErrorKind
	}{
		{"rate limit sentinel", &models.RateLimitError{RetryAfter: time.Second}, models.ErrorKindRateLimit},
		{"auth", fmt.Errorf("call: %w", models.ErrProviderAuth), models.ErrorKindModelError},
		{"network sentinel", fmt.Errorf("call: %w", models.ErrProviderNetwork), models.ErrorKindNetwork},
		{"deadline", context.DeadlineExceeded, models.ErrorKindNetwork},
		{"message 429", errors.New("HTTP 429 Too Many Requests"), models.ErrorKindRateLimit},
		{"message host", errors.New("lookup files.example: no such host"), models.ErrorKindNetwork},
		{"message model", errors.New("model gpt-9 not found"), models.ErrorKindModelError},
		{"other", errors.New("disk full"), models.ErrorKindUnknown},
		{"nil", nil, models.ErrorKindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestKindForTagging(t *testing.T) {
	assert.Equal(t, models.ErrorKindRateLimit, KindForTagging(tagging.KindRateLimited))
	assert.Equal(t, models.ErrorKindModelError, KindForTagging(tagging.KindAuth))
	assert.Equal(t, models.ErrorKindModelError, KindForTagging(tagging.KindModelIncompatible))
	assert.Equal(t, models.ErrorKindNetwork, KindForTagging(tagging.KindNetwork))
	assert.Equal(t, models.ErrorKindUnknown, KindForTagging(tagging.KindInsufficientContent))
	assert.Equal(t, models.ErrorKindUnknown, KindForTagging(tagging.KindUnknown))
}
