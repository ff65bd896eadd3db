package image

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"golang.org/x/sync/errgroup"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/agent/document"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/logger"
)

// TesseractOptions configures a TesseractEngine.
type TesseractOptions struct {
	Name          string
	TessdataDir   string
	PageSegMode   gosseract.PageSegMode
	Concurrency   int
	Preprocessors []ImagePreprocessor
	// Variables are passed to tesseract as-is, e.g. load_system_dawg.
	Variables map[string]string
}

// TesseractEngine runs gosseract in-process. A gosseract client is not safe
// for concurrent use, so every page gets its own.
type TesseractEngine struct {
	logger logger.Logger
	opts   TesseractOptions
}

func NewTesseractEngine(log logger.Logger, opts *TesseractOptions) *TesseractEngine {
	if opts == nil {
		opts = &TesseractOptions{}
	}
	if opts.Name == "" {
		opts.Name = "tesseract"
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.PageSegMode == 0 {
		opts.PageSegMode = gosseract.PSM_AUTO
	}
	if opts.Preprocessors == nil {
		opts.Preprocessors = FastPipeline()
	}
	return &TesseractEngine{
		logger: log.Named(opts.Name),
		opts:   *opts,
	}
}

func (e *TesseractEngine) Name() string { return e.opts.Name }

type pageOCR struct {
	text      string
	confSum   float64
	wordCount int
}

// Recognize OCRs every page and reports the mean word confidence (0-100).
func (e *TesseractEngine) Recognize(ctx context.Context, pages []image.Image, lang string) (document.OCRResult, error) {
	if len(pages) == 0 {
		return document.OCRResult{}, fmt.Errorf("no pages to recognize")
	}

	results := make([]pageOCR, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)

	for i, page := range pages {
		i, page := i, page
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := e.recognizePage(page, lang)
			if err != nil {
				e.logger.Warn("Page OCR failed",
					logger.Int("page", i+1),
					logger.Error(err),
				)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return document.OCRResult{}, err
	}

	var (
		texts     []string
		confSum   float64
		wordCount int
	)
	for _, r := range results {
		if t := strings.TrimSpace(r.text); t != "" {
			texts = append(texts, t)
		}
		confSum += r.confSum
		wordCount += r.wordCount
	}

	out := document.OCRResult{
		Text:  strings.Join(texts, "\n\n"),
		Pages: len(pages),
	}
	if wordCount > 0 {
		out.Confidence = confSum / float64(wordCount)
		out.HasConfidence = true
	}
	return out, nil
}

func (e *TesseractEngine) recognizePage(img image.Image, lang string) (pageOCR, error) {
	processed, err := Apply(img, e.opts.Preprocessors)
	if err != nil {
		return pageOCR{}, err
	}

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, processed); err != nil {
		return pageOCR{}, fmt.Errorf("failed to encode image: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if e.opts.TessdataDir != "" {
		if err := client.SetTessdataPrefix(e.opts.TessdataDir); err != nil {
			return pageOCR{}, fmt.Errorf("failed to set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(lang); err != nil {
		return pageOCR{}, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetPageSegMode(e.opts.PageSegMode); err != nil {
		return pageOCR{}, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	for k, v := range e.opts.Variables {
		if err := client.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return pageOCR{}, fmt.Errorf("failed to set %s: %w", k, err)
		}
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return pageOCR{}, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return pageOCR{}, fmt.Errorf("failed to get text: %w", err)
	}

	res := pageOCR{text: text}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		e.logger.Debug("Failed to get word boxes", logger.Error(err))
		return res, nil
	}
	for _, b := range boxes {
		if strings.TrimSpace(b.Word) == "" || b.Confidence < 0 {
			continue
		}
		res.confSum += b.Confidence
		res.wordCount++
	}
	return res, nil
}
