package agent

import (
	"context"
	"fmt"

	"github.com/itsdivyanshjha/meta-data-tag-generator/config"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/agent/document"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/agent/document/image"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/agent/document/ocrworker"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/agent/document/pdf"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/agent/extraction"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/agent/language"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/agent/llm"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/agent/tagging"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/logger"
)

const (
	AccurateSubprocess = "subprocess"
	AccurateTextract   = "textract"
	AccurateNone       = "none"
)

// ProcessorFactory assembles the extraction engine and the tagging
// settings from the application config. The engine is shared by every job
// in the process; taggers are built per job from ProviderConfig and
// TaggingOptions.
type ProcessorFactory struct {
	logger    logger.Logger
	cfg       *config.AppConfig
	extractor *extraction.Engine
}

func NewProcessorFactory(ctx context.Context, log logger.Logger, cfg *config.AppConfig) (*ProcessorFactory, error) {
	accurate, err := newAccurateEngine(ctx, log, cfg)
	if err != nil {
		return nil, err
	}

	fast := image.NewTesseractEngine(log, &image.TesseractOptions{
		Name:          "tesseract-fast",
		TessdataDir:   cfg.OCR.TessdataDir,
		Concurrency:   cfg.OCR.FastConcurrency,
		Preprocessors: image.FastPipeline(),
	})

	engine := extraction.NewEngine(log, extraction.Options{
		Reader:    pdf.NewProcessor(log),
		Renderer:  image.NewPopplerRenderer(log, cfg.OCR.RendererPath, cfg.OCR.RenderDPI),
		Fast:      fast,
		Accurate:  accurate,
		Rescue:    image.NewEmbeddedImageRenderer(log),
		Languages: language.NewTessdataCache(cfg.OCR.TessdataDir),
		PageLimit: cfg.Pipeline.PagesToExtract,
	})

	log.Info("Extraction engine ready",
		logger.String("renderer", cfg.OCR.RendererPath),
		logger.String("accurateBackend", cfg.OCR.AccurateBackend),
		logger.String("tessdata", cfg.OCR.TessdataDir),
	)

	return &ProcessorFactory{
		logger:    log,
		cfg:       cfg,
		extractor: engine,
	}, nil
}

// newAccurateEngine returns nil for AccurateNone, which leaves the accurate
// OCR strategy out of the chain.
func newAccurateEngine(ctx context.Context, log logger.Logger, cfg *config.AppConfig) (document.OCREngine, error) {
	switch cfg.OCR.AccurateBackend {
	case AccurateSubprocess, "":
		return ocrworker.NewWorker(log, ocrworker.Config{
			Command:      cfg.OCR.WorkerBinary,
			Timeout:      cfg.OCR.WorkerTimeout,
			MemoryMB:     cfg.OCR.WorkerMemoryMB,
			MaxDimension: cfg.OCR.MaxImageDimension,
			TessdataDir:  cfg.OCR.TessdataDir,
		}), nil
	case AccurateTextract:
		tc := config.GetTextractConfig()
		p, err := image.NewTextractProcessor(ctx, &image.TextractConfig{
			Region:        tc.Region,
			Endpoint:      tc.Endpoint,
			AccessKey:     tc.AccessKey,
			SecretKey:     tc.SecretKey,
			MinConfidence: float32(tc.MinConfidence),
			MaxDimension:  cfg.OCR.MaxImageDimension,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create textract processor: %w", err)
		}
		return p, nil
	case AccurateNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported accurate OCR backend: %s", cfg.OCR.AccurateBackend)
	}
}

func (f *ProcessorFactory) Extractor() *extraction.Engine { return f.extractor }

// ProviderConfig is the base provider configuration; a job's own API key
// replaces APIKey.
func (f *ProcessorFactory) ProviderConfig() llm.Config {
	p := f.cfg.Provider
	return llm.Config{
		Kind:    p.Kind,
		BaseURL: p.BaseURL,
		APIKey:  p.APIKey,
		Timeout: p.Timeout,
		SiteURL: p.SiteURL,
		AppName: p.AppName,
	}
}

func (f *ProcessorFactory) TaggingOptions() tagging.Options {
	opts := tagging.Options{
		Model:       f.cfg.Provider.Model,
		MaxTokens:   f.cfg.Provider.MaxTokens,
		Temperature: f.cfg.Provider.Temperature,
		BaseBackoff: f.cfg.Tagging.BaseBackoff,
		MaxBackoff:  f.cfg.Tagging.MaxBackoff,
	}
	t := f.cfg.Tagging
	if len(t.NoiseWords) > 0 || len(t.GenericTerms) > 0 || len(t.SignalKeywords) > 0 {
		vocab := tagging.NewVocabulary(t.NoiseWords, t.GenericTerms, t.SignalKeywords)
		opts.Vocabulary = &vocab
	}
	return opts
}
