package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/agent/document"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/agent/language"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/logger"
)

// MethodLegacyFont is reported when the language was inferred from a
// legacy Indic font encoding rather than from readable text.
const MethodLegacyFont = "legacy-font"

const defaultPageLimit = 3

// LanguageResolver narrows a tesseract language string to installed models.
type LanguageResolver interface {
	Resolve(ocrLang string) string
}

// Options wires the engine's collaborators. Accurate and Rescue are optional.
type Options struct {
	Reader    document.TextLayerReader
	Renderer  document.PageRenderer
	Fast      document.OCREngine
	Accurate  document.OCREngine
	Rescue    document.PageRenderer
	Languages LanguageResolver
	PageLimit int
}

// Engine turns PDF bytes into text plus quality and language metadata.
type Engine struct {
	logger     logger.Logger
	reader     document.TextLayerReader
	languages  LanguageResolver
	pageLimit  int
	strategies []Strategy
}

func NewEngine(log logger.Logger, opts Options) *Engine {
	if opts.PageLimit <= 0 {
		opts.PageLimit = defaultPageLimit
	}
	strategies := []Strategy{
		{Method: models.MethodFastOCR, Renderer: opts.Renderer, Engine: opts.Fast},
		{Method: models.MethodAccurateOCR, Renderer: opts.Renderer, Engine: opts.Accurate},
		{Method: models.MethodRescueRender, Renderer: opts.Rescue, Engine: opts.Fast},
	}
	return &Engine{
		logger:     log.Named("extraction"),
		reader:     opts.Reader,
		languages:  opts.Languages,
		pageLimit:  opts.PageLimit,
		strategies: strategies,
	}
}

// Strategies returns the OCR strategies in the order they are tried.
func (e *Engine) Strategies() []Strategy {
	return append([]Strategy(nil), e.strategies...)
}

// Extract never panics and never returns an error: failures are reported
// through Success and Error on the result.
func (e *Engine) Extract(ctx context.Context, doc models.RawDocument) (result models.ExtractionResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Extraction panicked", logger.Any("panic", r), logger.Stack())
			result = models.FailedExtraction(fmt.Sprintf("%v: unexpected failure: %v", models.ErrExtractionFailure, r))
		}
	}()

	if len(doc.Data) == 0 {
		return models.FailedExtraction(fmt.Sprintf("%v: empty document", models.ErrExtractionFailure))
	}
	pageLimit := doc.PageLimit
	if pageLimit <= 0 {
		pageLimit = e.pageLimit
	}

	layer, err := e.reader.ReadText(ctx, doc.Data, pageLimit)
	if err != nil {
		e.logger.Warn("Failed to read PDF", logger.Error(err))
		return models.FailedExtraction(fmt.Errorf("%w: %v", models.ErrExtractionFailure, err).Error())
	}

	native := strings.TrimSpace(layer.Text)
	corruption := DetectCorruption(native)
	needsOCR, reason := ShouldAttemptOCR(native, layer.PagesRead)

	detection := language.Detect(native)
	if corruption.Corrupt() {
		e.logger.Info("Discarding corrupted text layer",
			logger.Float64("extendedRatio", corruption.Ratio),
			logger.Int("legacySignatures", corruption.Signatures),
		)
		native = ""
		detection = language.Detection{Language: language.Lookup("hin"), Method: MethodLegacyFont}
	}

	log := e.logger.With(
		logger.Int("pages", layer.PageCount),
		logger.String("language", detection.Code),
	)

	result = models.ExtractionResult{
		PageCount:        layer.PageCount,
		PagesExtracted:   layer.PagesRead,
		Title:            layer.Title,
		DetectedLanguage: detection.Code,
		LanguageName:     detection.Name,
		DetectionMethod:  detection.Method,
	}

	if !needsOCR {
		log.Debug("Native text sufficient", logger.String("reason", reason))
		result.Success = true
		result.Text = native
		result.ExtractionMethod = models.MethodNative
		result.QualityInfo = qualityInfo(models.MethodNative, false, nil, native, layer.PagesRead)
		return result
	}
	log.Info("Attempting OCR", logger.String("reason", reason))

	lang := detection.OCRLang
	if e.languages != nil {
		lang = e.languages.Resolve(lang)
	}

	best := e.runOCR(ctx, newPageSource(doc.Data, pageLimit), lang, log)
	if err := ctx.Err(); err != nil {
		return models.FailedExtraction(err.Error())
	}

	final := SelectFinal(native, best)
	if final.Method == models.MethodFailed {
		log.Warn("No text recovered from document")
		failed := models.FailedExtraction(fmt.Sprintf("%v: no text recovered", models.ErrInsufficientContent))
		failed.PageCount = layer.PageCount
		failed.Title = layer.Title
		return failed
	}

	result.Success = true
	result.Text = final.Text
	result.IsScanned = true
	result.ExtractionMethod = final.Method
	result.OCRConfidence = final.Confidence
	if final.Method.IsOCR() {
		if final.Pages > 0 {
			result.PagesExtracted = final.Pages
		}
		if d := language.Detect(final.Text); d.Method != language.MethodDefault {
			result.DetectedLanguage = d.Code
			result.LanguageName = d.Name
			result.DetectionMethod = d.Method
		}
	}
	result.QualityInfo = qualityInfo(final.Method, true, final.Confidence, final.Text, result.PagesExtracted)

	log.Info("Extraction finished",
		logger.String("method", string(final.Method)),
		logger.Int("chars", utf8.RuneCountInString(final.Text)),
		logger.Duration("elapsed", time.Since(start)),
	)
	return result
}

// runOCR walks the strategy list, skipping strategies made unnecessary by
// earlier results, and returns the best OCR output.
func (e *Engine) runOCR(ctx context.Context, src *pageSource, lang string, log logger.Logger) StrategyResult {
	done := make(map[models.ExtractionMethod]StrategyResult, len(e.strategies))
	for _, s := range e.strategies {
		if ctx.Err() != nil {
			break
		}
		if !ShouldRun(s.Method, done) {
			continue
		}
		if s.Engine == nil || s.Renderer == nil {
			continue
		}

		stageStart := time.Now()
		res := s.Run(ctx, src, lang)
		done[s.Method] = res

		if res.Err != nil {
			level := log.Warn
			if errors.Is(res.Err, context.Canceled) {
				level = log.Debug
			}
			level("OCR stage failed",
				logger.String("method", string(s.Method)),
				logger.Error(res.Err),
			)
			continue
		}
		log.Debug("OCR stage finished",
			logger.String("method", string(s.Method)),
			logger.Int("chars", res.Length()),
			logger.Float64("confidence", res.Confidence),
			logger.Duration("elapsed", time.Since(stageStart)),
		)
	}
	return BestOCR(done)
}

func qualityInfo(method models.ExtractionMethod, scanned bool, confidence *float64, text string, pages int) models.QualityInfo {
	if pages < 1 {
		pages = 1
	}
	docType := models.DocumentDigital
	if scanned {
		docType = models.DocumentScanned
	}
	tier := QualityTierFor(scanned, confidence)
	return models.QualityInfo{
		Type:              docType,
		TextDensity:       float64(utf8.RuneCountInString(text)) / float64(pages),
		Tier:              tier,
		RecommendedEngine: RecommendedEngine(method, tier),
	}
}
