package image

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestDownscaleCapsLongestSide(t *testing.T) {
	p := NewDownscaleProcessor(1500)

	out, err := p.Process(solid(3000, 1000, color.White))
	require.NoError(t, err)
	assert.Equal(t, 1500, out.Bounds().Dx())
	assert.Equal(t, 500, out.Bounds().Dy())

	small := solid(800, 600, color.White)
	out, err = p.Process(small)
	require.NoError(t, err)
	assert.Same(t, small, out)
}

func TestAdaptiveThresholdBinarizes(t *testing.T) {
	img := solid(40, 40, color.White)
	for y := 15; y < 25; y++ {
		for x := 15; x < 25; x++ {
			img.Set(x, y, color.Black)
		}
	}

	out, err := NewAdaptiveThresholdProcessor(15, 8).Process(img)
	require.NoError(t, err)

	gray, ok := out.(*image.Gray)
	require.True(t, ok)
	assert.Equal(t, uint8(255), gray.GrayAt(2, 2).Y)
	assert.Equal(t, uint8(0), gray.GrayAt(16, 16).Y)
	for _, v := range gray.Pix {
		assert.True(t, v == 0 || v == 255)
	}
}

func TestApplyRejectsNil(t *testing.T) {
	_, err := Apply(nil, FastPipeline())
	require.Error(t, err)
}

func TestAccuratePipelineBoundsMemory(t *testing.T) {
	out, err := Apply(solid(2400, 1800, color.White), AccuratePipeline(1500))
	require.NoError(t, err)
	assert.LessOrEqual(t, out.Bounds().Dx(), 1500)
	assert.LessOrEqual(t, out.Bounds().Dy(), 1500)
}
