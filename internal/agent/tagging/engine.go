package tagging

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/agent/llm"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/logger"
)

// ErrorKind classifies a failed generation for callers.
type ErrorKind string

const (
	KindAuth                ErrorKind = "auth_error"
	KindRateLimited         ErrorKind = "rate_limited"
	KindModelIncompatible   ErrorKind = "model_incompatible"
	KindInsufficientContent ErrorKind = "insufficient_content"
	KindNetwork             ErrorKind = "network"
	KindUnknown             ErrorKind = "unknown"
)

const (
	minContentChars    = 50
	defaultTargetCount = 8
	defaultMaxAttempts = 2
	defaultMaxTokens   = 800
	defaultTemperature = 0.3
)

// Request is one document to tag.
type Request struct {
	Title        string
	Description  string
	Text         string
	TargetCount  int
	LanguageHint string
	QualityHint  models.QualityTier
	Exclusions   models.ExclusionSet
}

// Result is always returned; failures are described, never raised.
type Result struct {
	Success    bool
	Tags       []string
	Error      string
	ErrorKind  ErrorKind
	RetryAfter time.Duration
	RetryCount int
	TokensUsed int
	Attempts   int
}

type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
	// Vocabulary defaults to DefaultVocabulary when nil.
	Vocabulary  *Vocabulary
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	MaxAttempts int
	WindowChars int
}

// Engine generates tags for one job. It keeps backoff state and whether the
// model needs instructions merged into the user turn, so it must not be
// shared between jobs.
type Engine struct {
	logger      logger.Logger
	provider    llm.Provider
	vocab       Vocabulary
	backoff     *Backoff
	model       string
	maxTokens   int
	temperature float64
	maxAttempts int
	windowChars int
	mergeSystem bool
}

func NewEngine(log logger.Logger, provider llm.Provider, opts Options) *Engine {
	vocab := DefaultVocabulary()
	if opts.Vocabulary != nil {
		vocab = *opts.Vocabulary
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Temperature <= 0 {
		opts.Temperature = defaultTemperature
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.WindowChars <= 0 {
		opts.WindowChars = defaultWindowChars
	}
	return &Engine{
		logger:      log.Named("tagging"),
		provider:    provider,
		vocab:       vocab,
		backoff:     NewBackoff(opts.BaseBackoff, opts.MaxBackoff),
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		maxAttempts: opts.MaxAttempts,
		windowChars: opts.WindowChars,
	}
}

// Backoff exposes the engine's rate-limit state.
func (e *Engine) Backoff() *Backoff { return e.backoff }

// Generate asks the provider for tags, tops up after filtering losses and
// returns at most req.TargetCount tags ordered names, subjects, actions.
func (e *Engine) Generate(ctx context.Context, req Request) Result {
	text := strings.TrimSpace(req.Text)
	if n := utf8.RuneCountInString(text); n < minContentChars {
		return Result{
			ErrorKind: KindInsufficientContent,
			Error:     fmt.Sprintf("%v: %d characters of text, need %d", models.ErrInsufficientContent, n, minContentChars),
		}
	}
	target := req.TargetCount
	if target <= 0 {
		target = defaultTargetCount
	}

	log := logger.FromContext(ctx, e.logger).With(logger.String("title", req.Title), logger.Int("target", target))
	anchors := e.vocab.ExtractAnchors(req.Title, req.Description, text).All()
	window := e.vocab.ContentWindow(text, e.windowChars)

	var (
		res        Result
		candidates []models.TagCandidate
		accepted   []string
	)
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		deficit := target - len(accepted)
		if deficit <= 0 {
			break
		}
		res.Attempts = attempt

		prompt := buildUserPrompt(promptInput{
			Title:       req.Title,
			Description: req.Description,
			Window:      window,
			Anchors:     anchors,
			Language:    req.LanguageHint,
			Quality:     req.QualityHint,
			Quotas:      TierQuotas(deficit + surplus(deficit)),
			Collected:   accepted,
			Generic:     e.vocab.GenericTerms(),
		})

		resp, retries, err := e.complete(ctx, prompt, log)
		res.RetryCount += retries
		if err != nil {
			if len(accepted) > 0 && ctx.Err() == nil {
				log.Warn("Top-up request failed, keeping collected tags",
					logger.Int("attempt", attempt),
					logger.Int("collected", len(accepted)),
					logger.Error(err),
				)
				break
			}
			return e.failure(err, res)
		}
		res.TokensUsed += resp.Usage.TotalTokens

		parsed, structured := ParseResponse(resp.Text)
		candidates = append(candidates, parsed...)
		sel := e.vocab.Select(candidates, req.Exclusions, target)
		accepted = sel.Tags

		log.Debug("Tag attempt finished",
			logger.Int("attempt", attempt),
			logger.Bool("structured", structured),
			logger.Int("candidates", len(parsed)),
			logger.Int("accepted", len(accepted)),
			logger.Any("rejected", sel.Rejected),
		)
	}

	if len(accepted) == 0 {
		res.ErrorKind = KindUnknown
		res.Error = "model returned no usable tags"
		return res
	}
	res.Success = true
	res.Tags = accepted
	return res
}

// complete performs one logical provider call: the backoff wait, the call,
// and at most one retry with instructions merged into the user message.
func (e *Engine) complete(ctx context.Context, prompt string, log logger.Logger) (llm.Response, int, error) {
	if err := e.backoff.Wait(ctx); err != nil {
		return llm.Response{}, 0, err
	}

	retries := 0
	resp, err := e.provider.Complete(ctx, e.request(prompt))
	if err != nil && !e.mergeSystem && llm.IsSystemRoleRejected(err) {
		log.Info("Model rejected system role, merging instructions into user message",
			logger.String("model", e.model),
		)
		e.mergeSystem = true
		retries++
		resp, err = e.provider.Complete(ctx, e.request(prompt))
		if err != nil && llm.IsSystemRoleRejected(err) {
			err = fmt.Errorf("%w: %v", models.ErrProviderIncompatibleModel, err)
		}
	}
	if err != nil {
		var rl *models.RateLimitError
		if errors.As(err, &rl) {
			delay := e.backoff.OnRateLimit(rl.RetryAfter)
			log.Warn("Rate limited by provider", logger.Duration("backoff", delay))
		}
		return llm.Response{}, retries, err
	}
	e.backoff.OnSuccess()
	return resp, retries, nil
}

func (e *Engine) request(prompt string) llm.Request {
	return llm.Request{
		Model:       e.model,
		Messages:    messages(prompt, e.mergeSystem),
		MaxTokens:   e.maxTokens,
		Temperature: e.temperature,
	}
}

func (e *Engine) failure(err error, res Result) Result {
	res.Success = false
	res.Tags = nil
	res.Error = err.Error()

	var (
		rl   *models.RateLimitError
		perr *llm.ProviderError
	)
	switch {
	case errors.Is(err, models.ErrProviderAuth):
		res.ErrorKind = KindAuth
	case errors.As(err, &rl):
		res.ErrorKind = KindRateLimited
		res.RetryAfter = max(rl.RetryAfter, e.backoff.Delay())
	case errors.Is(err, models.ErrProviderIncompatibleModel):
		res.ErrorKind = KindModelIncompatible
	case errors.As(err, &perr) && perr.Kind == llm.KindBadRequest:
		res.ErrorKind = KindModelIncompatible
	case errors.Is(err, models.ErrProviderNetwork):
		res.ErrorKind = KindNetwork
	default:
		res.ErrorKind = KindUnknown
	}
	return res
}

// surplus is the extra tags requested to absorb filtering losses.
func surplus(n int) int {
	return max(2, int(math.Ceil(float64(n)*0.4)))
}
