package ocrworker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/agent/document"
	docimage "github.com/itsdivyanshjha/meta-data-tag-generator/internal/agent/document/image"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/logger"
)

// Config describes how to spawn the isolated OCR process.
type Config struct {
	Command      string
	Args         []string
	Env          []string
	Timeout      time.Duration
	MemoryMB     int
	MaxDimension int
	TessdataDir  string
}

// Worker runs the accurate OCR engine in a child process so that a crash,
// an OOM kill or a hang only fails this stage.
type Worker struct {
	logger logger.Logger
	cfg    Config
}

func NewWorker(log logger.Logger, cfg Config) *Worker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = 1500
	}
	return &Worker{
		logger: log.Named("ocrworker"),
		cfg:    cfg,
	}
}

func (w *Worker) Name() string { return "ocr-worker" }

// Recognize hands the pages to a fresh child process and waits for its
// answer, the timeout, or ctx, whichever comes first.
func (w *Worker) Recognize(ctx context.Context, pages []image.Image, lang string) (document.OCRResult, error) {
	if len(pages) == 0 {
		return document.OCRResult{}, fmt.Errorf("no pages to recognize")
	}

	command, args, err := w.commandLine()
	if err != nil {
		return document.OCRResult{}, err
	}

	dir, err := os.MkdirTemp("", "ocrworker-*")
	if err != nil {
		return document.OCRResult{}, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	req := Request{
		Lang:         lang,
		MaxDimension: w.cfg.MaxDimension,
		TessdataDir:  w.cfg.TessdataDir,
	}
	for i, page := range pages {
		path := filepath.Join(dir, fmt.Sprintf("page-%03d.png", i+1))
		if err := docimage.EncodePNG(path, page); err != nil {
			return document.OCRResult{}, fmt.Errorf("failed to write page %d: %w", i+1, err)
		}
		req.ImagePaths = append(req.ImagePaths, path)
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return document.OCRResult{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, command, args...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(), w.cfg.Env...)
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if runErr != nil {
		return document.OCRResult{}, w.classify(ctx, runCtx, runErr, stderr.String(), elapsed)
	}

	var resp Response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return document.OCRResult{}, fmt.Errorf("%w: unreadable worker output: %v", models.ErrOCRWorkerCrashed, err)
	}
	if resp.Error != "" {
		return document.OCRResult{}, fmt.Errorf("ocr worker reported: %s", resp.Error)
	}

	w.logger.Debug("OCR worker finished",
		logger.Int("pages", resp.Pages),
		logger.Duration("elapsed", elapsed),
	)
	return document.OCRResult{
		Text:          resp.Text,
		Confidence:    resp.Confidence,
		HasConfidence: resp.HasConfidence,
		Pages:         resp.Pages,
	}, nil
}

// commandLine resolves the worker binary and wraps it in prlimit when a
// memory cap is configured and prlimit is installed.
func (w *Worker) commandLine() (string, []string, error) {
	path, err := exec.LookPath(w.cfg.Command)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", models.ErrOCRUnavailable, err)
	}
	if w.cfg.MemoryMB <= 0 {
		return path, w.cfg.Args, nil
	}
	prlimit, err := exec.LookPath("prlimit")
	if err != nil {
		return path, w.cfg.Args, nil
	}
	bytesLimit := strconv.Itoa(w.cfg.MemoryMB * 1024 * 1024)
	args := append([]string{"--as=" + bytesLimit, "--", path}, w.cfg.Args...)
	return prlimit, args, nil
}

func (w *Worker) classify(parent, run context.Context, err error, stderr string, elapsed time.Duration) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(run.Err(), context.DeadlineExceeded) {
		w.logger.Warn("OCR worker timed out", logger.Duration("timeout", w.cfg.Timeout))
		return fmt.Errorf("%w after %s", models.ErrOCRTimeout, w.cfg.Timeout)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// ExitCode is -1 when the process was killed by a signal
		w.logger.Warn("OCR worker exited abnormally",
			logger.Int("exitCode", exitErr.ExitCode()),
			logger.String("state", exitErr.String()),
			logger.Duration("elapsed", elapsed),
			logger.String("stderr", truncate(stderr, 500)),
		)
		return fmt.Errorf("%w: %s", models.ErrOCRWorkerCrashed, exitErr.String())
	}
	return fmt.Errorf("%w: %v", models.ErrOCRWorkerCrashed, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
