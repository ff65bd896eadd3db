package image

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// ImagePreprocessor transforms a page image before OCR.
type ImagePreprocessor interface {
	Process(img image.Image) (image.Image, error)
}

// FastPipeline is the cheap grayscale + contrast pass used by the fast engine.
func FastPipeline() []ImagePreprocessor {
	return []ImagePreprocessor{
		NewGrayscaleProcessor(),
		NewContrastNormalizationProcessor(),
	}
}

// AccuratePipeline bounds image size first, then cleans the page up.
func AccuratePipeline(maxDimension int) []ImagePreprocessor {
	return []ImagePreprocessor{
		NewDownscaleProcessor(maxDimension),
		NewGrayscaleProcessor(),
		NewDenoiseProcessor(0.5),
		NewContrastNormalizationProcessor(),
		NewAdaptiveThresholdProcessor(15, 8),
		NewSharpenProcessor(0.5),
	}
}

// Apply runs img through each preprocessor in order.
func Apply(img image.Image, pipeline []ImagePreprocessor) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}
	var err error
	result := img
	for _, p := range pipeline {
		result, err = p.Process(result)
		if err != nil {
			return nil, fmt.Errorf("preprocessing failed: %w", err)
		}
		if result == nil {
			return nil, fmt.Errorf("preprocessor returned nil image")
		}
	}
	return result, nil
}

type GrayscaleProcessor struct{}

func NewGrayscaleProcessor() *GrayscaleProcessor {
	return &GrayscaleProcessor{}
}

func (p *GrayscaleProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.Grayscale(img), nil
}

// DownscaleProcessor caps the longest side; smaller images pass through.
type DownscaleProcessor struct {
	maxDimension int
}

func NewDownscaleProcessor(maxDimension int) *DownscaleProcessor {
	return &DownscaleProcessor{maxDimension: maxDimension}
}

func (p *DownscaleProcessor) Process(img image.Image) (image.Image, error) {
	b := img.Bounds()
	if p.maxDimension <= 0 || (b.Dx() <= p.maxDimension && b.Dy() <= p.maxDimension) {
		return img, nil
	}
	return imaging.Fit(img, p.maxDimension, p.maxDimension, imaging.Lanczos), nil
}

// AdaptiveThresholdProcessor binarizes against the local mean, computed
// from an integral image so the cost does not grow with the block size.
type AdaptiveThresholdProcessor struct {
	blockSize int
	constant  float64
}

func NewAdaptiveThresholdProcessor(blockSize int, constant float64) *AdaptiveThresholdProcessor {
	return &AdaptiveThresholdProcessor{
		blockSize: blockSize,
		constant:  constant,
	}
}

func (p *AdaptiveThresholdProcessor) Process(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}

	gray := imaging.Grayscale(img) // *image.NRGBA, R == G == B
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()

	integral := make([]int64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var rowSum int64
		for x := 0; x < w; x++ {
			rowSum += int64(gray.Pix[y*gray.Stride+x*4])
			integral[(y+1)*(w+1)+x+1] = integral[y*(w+1)+x+1] + rowSum
		}
	}

	result := image.NewGray(image.Rect(0, 0, w, h))
	half := p.blockSize / 2
	for y := 0; y < h; y++ {
		y0, y1 := clamp(y-half, 0, h-1), clamp(y+half, 0, h-1)
		for x := 0; x < w; x++ {
			x0, x1 := clamp(x-half, 0, w-1), clamp(x+half, 0, w-1)
			count := int64((x1 - x0 + 1) * (y1 - y0 + 1))
			sum := integral[(y1+1)*(w+1)+x1+1] - integral[y0*(w+1)+x1+1] -
				integral[(y1+1)*(w+1)+x0] + integral[y0*(w+1)+x0]
			mean := float64(sum) / float64(count)

			v := gray.Pix[y*gray.Stride+x*4]
			if float64(v) < mean-p.constant {
				result.Pix[y*result.Stride+x] = 0
			} else {
				result.Pix[y*result.Stride+x] = 255
			}
		}
	}
	return result, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// DenoiseProcessor applies a light gaussian blur.
type DenoiseProcessor struct {
	strength float64
}

func NewDenoiseProcessor(strength float64) *DenoiseProcessor {
	return &DenoiseProcessor{strength: strength}
}

func (p *DenoiseProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.Blur(img, p.strength), nil
}

type SharpenProcessor struct {
	strength float64
}

func NewSharpenProcessor(strength float64) *SharpenProcessor {
	return &SharpenProcessor{strength: strength}
}

func (p *SharpenProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.Sharpen(img, p.strength), nil
}

type ContrastNormalizationProcessor struct{}

func NewContrastNormalizationProcessor() *ContrastNormalizationProcessor {
	return &ContrastNormalizationProcessor{}
}

func (p *ContrastNormalizationProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.AdjustContrast(img, 20), nil
}
