package image

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/agent/document"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/logger"
)

// TextractAPI is the subset of the Textract client used here.
type TextractAPI interface {
	DetectDocumentText(ctx context.Context, in *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
}

// TextractProcessor is a cloud alternative for the accurate OCR stage. It
// needs no local isolation since the heavy lifting happens remotely.
type TextractProcessor struct {
	client        TextractAPI
	logger        logger.Logger
	minConfidence float32
	maxDimension  int
}

type TextractConfig struct {
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	MinConfidence float32
	MaxDimension  int
}

func NewTextractProcessor(ctx context.Context, cfg *TextractConfig, log logger.Logger) (*TextractProcessor, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	client := textract.NewFromConfig(awsCfg, func(o *textract.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return NewTextractProcessorWithClient(client, cfg, log), nil
}

func NewTextractProcessorWithClient(client TextractAPI, cfg *TextractConfig, log logger.Logger) *TextractProcessor {
	return &TextractProcessor{
		client:        client,
		logger:        log.Named("textract"),
		minConfidence: cfg.MinConfidence,
		maxDimension:  cfg.MaxDimension,
	}
}

func (p *TextractProcessor) Name() string { return "textract" }

func (p *TextractProcessor) Recognize(ctx context.Context, pages []image.Image, _ string) (document.OCRResult, error) {
	if len(pages) == 0 {
		return document.OCRResult{}, fmt.Errorf("no pages to recognize")
	}

	var (
		texts   []string
		confSum float64
		lines   int
	)
	pipeline := []ImagePreprocessor{NewDownscaleProcessor(p.maxDimension)}

	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return document.OCRResult{}, err
		}
		img, err := Apply(page, pipeline)
		if err != nil {
			return document.OCRResult{}, err
		}
		buf := new(bytes.Buffer)
		if err := png.Encode(buf, img); err != nil {
			return document.OCRResult{}, fmt.Errorf("failed to encode page %d: %w", i+1, err)
		}

		out, err := p.client.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
			Document: &types.Document{Bytes: buf.Bytes()},
		})
		if err != nil {
			return document.OCRResult{}, fmt.Errorf("failed to analyze page %d: %w", i+1, err)
		}

		pageLines, pageConf := p.processBlocks(out.Blocks)
		if len(pageLines) > 0 {
			texts = append(texts, strings.Join(pageLines, "\n"))
		}
		confSum += pageConf
		lines += len(pageLines)
	}

	result := document.OCRResult{
		Text:  strings.Join(texts, "\n\n"),
		Pages: len(pages),
	}
	if lines > 0 {
		result.Confidence = confSum / float64(lines)
		result.HasConfidence = true
	}
	return result, nil
}

// processBlocks keeps LINE blocks above the confidence floor and returns
// them with their summed confidence.
func (p *TextractProcessor) processBlocks(blocks []types.Block) ([]string, float64) {
	var (
		texts []string
		sum   float64
	)
	for _, block := range blocks {
		if block.BlockType != types.BlockTypeLine || block.Text == nil || block.Confidence == nil {
			continue
		}
		if *block.Confidence < p.minConfidence {
			continue
		}
		texts = append(texts, *block.Text)
		sum += float64(*block.Confidence)
	}
	return texts, sum
}
