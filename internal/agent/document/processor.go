package document

import (
	"context"
	"image"
	"strings"
	"unicode/utf8"
)

// TextLayer is the embedded text of a PDF, read without OCR.
type TextLayer struct {
	Text      string
	Title     string
	PageCount int
	PagesRead int
	PageTexts []string
}

// TextLayerReader reads the embedded text layer of a document.
type TextLayerReader interface {
	ReadText(ctx context.Context, data []byte, pageLimit int) (TextLayer, error)
}

// PageRenderer rasterizes the first pageLimit pages of a document.
type PageRenderer interface {
	Name() string
	Render(ctx context.Context, data []byte, pageLimit int) ([]image.Image, error)
}

// OCRResult is the output of one OCR engine over a set of page images.
type OCRResult struct {
	Text          string
	Confidence    float64
	HasConfidence bool
	Pages         int
}

// Length is the number of characters of trimmed text.
func (r OCRResult) Length() int {
	return utf8.RuneCountInString(strings.TrimSpace(r.Text))
}

// OCREngine recognizes text in page images.
type OCREngine interface {
	Name() string
	Recognize(ctx context.Context, pages []image.Image, lang string) (OCRResult, error)
}
