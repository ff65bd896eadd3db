package extraction

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/agent/document"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
)

// StrategyResult is the uniform outcome of one OCR strategy.
type StrategyResult struct {
	Method        models.ExtractionMethod
	Text          string
	Confidence    float64
	HasConfidence bool
	Pages         int
	Err           error
}

// Length is the number of characters of trimmed text.
func (r StrategyResult) Length() int {
	return utf8.RuneCountInString(strings.TrimSpace(r.Text))
}

// Succeeded reports whether the strategy ran and produced any text.
func (r StrategyResult) Succeeded() bool {
	return r.Err == nil && r.Length() > 0
}

// Strategy pairs a renderer with an OCR engine under an extraction method.
type Strategy struct {
	Method   models.ExtractionMethod
	Renderer document.PageRenderer
	Engine   document.OCREngine
}

// Run renders (or reuses) page images and recognizes them.
func (s Strategy) Run(ctx context.Context, src *pageSource, lang string) StrategyResult {
	out := StrategyResult{Method: s.Method}
	if s.Renderer == nil || s.Engine == nil {
		out.Err = fmt.Errorf("%w: %s not configured", models.ErrOCRUnavailable, s.Method)
		return out
	}

	pages, err := src.pages(ctx, s.Renderer)
	if err != nil {
		out.Err = fmt.Errorf("failed to render pages with %s: %w", s.Renderer.Name(), err)
		return out
	}

	res, err := s.Engine.Recognize(ctx, pages, lang)
	if err != nil {
		out.Err = fmt.Errorf("%s failed: %w", s.Engine.Name(), err)
		return out
	}
	out.Text = strings.TrimSpace(res.Text)
	out.Confidence = res.Confidence
	out.HasConfidence = res.HasConfidence
	out.Pages = res.Pages
	return out
}

type rendered struct {
	images []image.Image
	err    error
}

// pageSource renders a document at most once per renderer for one
// extraction, so fast and accurate OCR share the same page images.
type pageSource struct {
	data      []byte
	pageLimit int

	mu    sync.Mutex
	cache map[string]rendered
}

func newPageSource(data []byte, pageLimit int) *pageSource {
	return &pageSource{
		data:      data,
		pageLimit: pageLimit,
		cache:     make(map[string]rendered),
	}
}

func (p *pageSource) pages(ctx context.Context, r document.PageRenderer) ([]image.Image, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.cache[r.Name()]; ok {
		return c.images, c.err
	}
	images, err := r.Render(ctx, p.data, p.pageLimit)
	if err == nil && len(images) == 0 {
		err = fmt.Errorf("no pages rendered")
	}
	// a cancelled render says nothing about the document, so do not cache it
	if ctx.Err() == nil {
		p.cache[r.Name()] = rendered{images: images, err: err}
	}
	return images, err
}
