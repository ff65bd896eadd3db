package pdf

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/agent/document"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/logger"
)

// Processor reads the native text layer with ledongthuc/pdf.
type Processor struct {
	logger     logger.Logger
	maxWorkers int
}

func NewProcessor(log logger.Logger) *Processor {
	return &Processor{
		logger:     log.Named("pdf"),
		maxWorkers: 4,
	}
}

// ReadText extracts text from the first pageLimit pages. A parse failure is
// returned as an error; unreadable individual pages are skipped.
func (p *Processor) ReadText(ctx context.Context, data []byte, pageLimit int) (layer document.TextLayer, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to parse pdf: %v", r)
		}
	}()

	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, reader.Size())
	if err != nil {
		return document.TextLayer{}, fmt.Errorf("failed to parse pdf: %w", err)
	}

	numPages := pdfReader.NumPage()
	toRead := numPages
	if pageLimit > 0 && pageLimit < toRead {
		toRead = pageLimit
	}

	texts := make([]string, toRead)

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, p.maxWorkers)

	for i := 1; i <= toRead; i++ {
		pageNum := i
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return gctx.Err()
			}

			text, err := p.pageText(pdfReader, pageNum)
			if err != nil {
				p.logger.Debug("Skipping unreadable page",
					logger.Int("page", pageNum),
					logger.Error(err),
				)
				return nil
			}
			texts[pageNum-1] = text
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return document.TextLayer{}, err
	}

	for i := range texts {
		texts[i] = CleanText(texts[i])
	}

	return document.TextLayer{
		Text:      strings.TrimSpace(strings.Join(texts, "\n\n")),
		Title:     p.title(pdfReader),
		PageCount: numPages,
		PagesRead: toRead,
		PageTexts: texts,
	}, nil
}

func (p *Processor) pageText(r *pdf.Reader, pageNum int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("page %d: %v", pageNum, rec)
		}
	}()

	page := r.Page(pageNum)
	if page.V.IsNull() {
		return "", nil
	}
	text, err = page.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("failed to get text from page %d: %w", pageNum, err)
	}
	return text, nil
}

func (p *Processor) title(r *pdf.Reader) string {
	trailer := r.Trailer()
	if trailer.IsNull() {
		return ""
	}
	info := trailer.Key("Info")
	if info.IsNull() {
		return ""
	}
	title := info.Key("Title")
	if title.IsNull() {
		return ""
	}
	return strings.TrimSpace(title.Text())
}

var (
	spaceRun = regexp.MustCompile(`[ \t\f\v\x{00A0}]+`)
	blankRun = regexp.MustCompile(`\n{3,}`)
)

// CleanText normalizes whitespace and drops control characters.
func CleanText(text string) string {
	text = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == '\r':
			return '\n'
		case r < 0x20 || r == 0xFFFD:
			return -1
		default:
			return r
		}
	}, text)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	return strings.TrimSpace(blankRun.ReplaceAllString(text, "\n\n"))
}
