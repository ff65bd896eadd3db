package image

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	_ "golang.org/x/image/tiff"

	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/logger"
)

// EmbeddedImageRenderer is the rescue renderer: instead of rasterizing the
// page it pulls the embedded image streams out with pdfcpu, which copes
// with encodings the primary renderer may not understand.
type EmbeddedImageRenderer struct {
	logger    logger.Logger
	maxImages int
}

func NewEmbeddedImageRenderer(log logger.Logger) *EmbeddedImageRenderer {
	return &EmbeddedImageRenderer{
		logger:    log.Named("rescue"),
		maxImages: 20,
	}
}

func (r *EmbeddedImageRenderer) Name() string { return "pdfcpu-images" }

func (r *EmbeddedImageRenderer) Render(ctx context.Context, data []byte, pageLimit int) ([]image.Image, error) {
	var selected []string
	if pageLimit > 0 {
		selected = []string{fmt.Sprintf("1-%d", pageLimit)}
	}

	conf := model.NewDefaultConfiguration()
	var pages []image.Image

	err := api.ExtractImages(bytes.NewReader(data), selected, func(img model.Image, singleImgPerPage bool, maxPageDigits int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(pages) >= r.maxImages {
			return nil
		}
		decoded, _, err := image.Decode(img)
		if err != nil {
			r.logger.Debug("Skipping undecodable embedded image",
				logger.Int("page", img.PageNr),
				logger.String("type", img.FileType),
				logger.Error(err),
			)
			return nil
		}
		pages = append(pages, decoded)
		return nil
	}, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to extract embedded images: %w", err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no decodable embedded images")
	}
	return pages, nil
}
