package ocrworker

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/agent/document"
	docimage "github.com/itsdivyanshjha/meta-data-tag-generator/internal/agent/document/image"
)

// EngineFactory builds the engine the child process runs for a request.
type EngineFactory func(req Request) document.OCREngine

// Serve is the child side of the protocol: one request in, one response out.
// Engine failures are reported in the response; only I/O errors are returned.
func Serve(ctx context.Context, in io.Reader, out io.Writer, newEngine EngineFactory) error {
	var req Request
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return writeResponse(out, Response{Error: fmt.Sprintf("invalid request: %v", err)})
	}

	pages := make([]image.Image, 0, len(req.ImagePaths))
	for _, path := range req.ImagePaths {
		img, err := docimage.DecodeFile(path)
		if err != nil {
			return writeResponse(out, Response{Error: fmt.Sprintf("failed to load %s: %v", path, err)})
		}
		pages = append(pages, img)
	}

	res, err := newEngine(req).Recognize(ctx, pages, req.Lang)
	if err != nil {
		return writeResponse(out, Response{Error: err.Error()})
	}
	return writeResponse(out, Response{
		Text:          res.Text,
		Confidence:    res.Confidence,
		HasConfidence: res.HasConfidence,
		Pages:         res.Pages,
	})
}

func writeResponse(out io.Writer, resp Response) error {
	if err := json.NewEncoder(out).Encode(resp); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}
