package image

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/logger"
)

// PopplerRenderer rasterizes pages with poppler's pdftoppm.
type PopplerRenderer struct {
	logger logger.Logger
	binary string
	dpi    int
}

func NewPopplerRenderer(log logger.Logger, binary string, dpi int) *PopplerRenderer {
	if binary == "" {
		binary = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = 200
	}
	return &PopplerRenderer{
		logger: log.Named("renderer"),
		binary: binary,
		dpi:    dpi,
	}
}

func (r *PopplerRenderer) Name() string { return "pdftoppm" }

func (r *PopplerRenderer) Render(ctx context.Context, data []byte, pageLimit int) ([]image.Image, error) {
	if _, err := exec.LookPath(r.binary); err != nil {
		return nil, fmt.Errorf("renderer %s not available: %w", r.binary, err)
	}

	dir, err := os.MkdirTemp("", "render-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(input, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write pdf: %w", err)
	}

	args := []string{"-r", strconv.Itoa(r.dpi), "-png"}
	if pageLimit > 0 {
		args = append(args, "-f", "1", "-l", strconv.Itoa(pageLimit))
	}
	args = append(args, input, filepath.Join(dir, "page"))

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w: %s", err, stderr.String())
	}

	files, err := filepath.Glob(filepath.Join(dir, "page-*.png"))
	if err != nil {
		return nil, err
	}
	// pdftoppm zero-pads page numbers, so lexical order is page order
	sort.Strings(files)

	pages := make([]image.Image, 0, len(files))
	for _, f := range files {
		img, err := decodeFile(f)
		if err != nil {
			r.logger.Warn("Skipping undecodable page render",
				logger.String("file", filepath.Base(f)),
				logger.Error(err),
			)
			continue
		}
		pages = append(pages, img)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("renderer produced no pages")
	}
	return pages, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

// EncodePNG writes img to path; used to hand pages to the OCR worker.
func EncodePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// DecodeFile loads a page image written by EncodePNG.
func DecodeFile(path string) (image.Image, error) {
	return decodeFile(path)
}
