// Command ocrworker runs the accurate OCR engine for a single request. It is
// spawned by the extraction engine; the request arrives as JSON on stdin and
// the response leaves as JSON on stdout, so logs go to stderr only.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/otiai10/gosseract/v2"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/agent/document"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/agent/document/image"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/agent/document/ocrworker"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/logger"
)

func main() {
	log, err := logger.NewLogger(
		logger.WithLevel(envOr("LOG_LEVEL", "warn")),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stderr"}),
		logger.WithInitialFields(map[string]interface{}{"binary": "ocrworker"}),
	)
	if err != nil {
		os.Exit(2)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	newEngine := func(req ocrworker.Request) document.OCREngine {
		return image.NewTesseractEngine(log, &image.TesseractOptions{
			Name:          "tesseract-accurate",
			TessdataDir:   req.TessdataDir,
			PageSegMode:   gosseract.PSM_AUTO,
			Concurrency:   1,
			Preprocessors: image.AccuratePipeline(req.MaxDimension),
			Variables: map[string]string{
				"preserve_interword_spaces": "1",
			},
		})
	}

	if err := ocrworker.Serve(ctx, os.Stdin, os.Stdout, newEngine); err != nil {
		log.Error("Failed to serve OCR request", logger.Error(err))
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
