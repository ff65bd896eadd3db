package image

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/logger"
)

type fakeTextract struct {
	blocks []types.Block
	err    error
	calls  int
}

func (f *fakeTextract) DetectDocumentText(ctx context.Context, in *textract.DetectDocumentTextInput, _ ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &textract.DetectDocumentTextOutput{Blocks: f.blocks}, nil
}

func line(text string, conf float32) types.Block {
	return types.Block{BlockType: types.BlockTypeLine, Text: aws.String(text), Confidence: aws.Float32(conf)}
}

func TestTextractRecognize(t *testing.T) {
	client := &fakeTextract{blocks: []types.Block{
		line("Ministry of Railways", 90),
		line("smudge", 20),
		{BlockType: types.BlockTypeWord, Text: aws.String("Ministry"), Confidence: aws.Float32(99)},
		line("Annual Report 2019", 80),
	}}
	p := NewTextractProcessorWithClient(client, &TextractConfig{MinConfidence: 50, MaxDimension: 1500}, logger.NewTestLogger())

	pages := []image.Image{solid(10, 10, color.White), solid(10, 10, color.White)}
	res, err := p.Recognize(context.Background(), pages, "eng")
	require.NoError(t, err)

	assert.Equal(t, 2, client.calls)
	assert.Equal(t, "Ministry of Railways\nAnnual Report 2019\n\nMinistry of Railways\nAnnual Report 2019", res.Text)
	assert.True(t, res.HasConfidence)
	assert.InDelta(t, 85.0, res.Confidence, 0.001)
}

func TestTextractRecognizePropagatesErrors(t *testing.T) {
	client := &fakeTextract{err: errors.New("throttled")}
	p := NewTextractProcessorWithClient(client, &TextractConfig{}, logger.NewTestLogger())

	_, err := p.Recognize(context.Background(), []image.Image{solid(4, 4, color.White)}, "eng")
	require.Error(t, err)
}
