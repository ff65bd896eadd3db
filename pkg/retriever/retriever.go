package retriever

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/logger"
)

const (
	defaultMaxBytes    = 50 << 20
	defaultHTTPTimeout = 60 * time.Second
)

// ObjectGetter is the part of pkg/storage the retriever needs.
type ObjectGetter interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

type Config struct {
	// LocalBaseDir confines local reads. Empty disables local sources.
	LocalBaseDir string
	MaxBytes     int64
	HTTPTimeout  time.Duration
	HTTPClient   *http.Client
	UserAgent    string
}

// Retriever resolves a batch row to the bytes of its PDF.
type Retriever struct {
	logger  logger.Logger
	store   ObjectGetter
	client  *http.Client
	baseDir string
	max     int64
	agent   string
}

func New(log logger.Logger, store ObjectGetter, cfg Config) *Retriever {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "meta-data-tag-generator/1.0"
	}
	base := cfg.LocalBaseDir
	if base != "" {
		base = filepath.Clean(base)
	}
	return &Retriever{
		logger:  log.Named("retriever"),
		store:   store,
		client:  client,
		baseDir: base,
		max:     cfg.MaxBytes,
		agent:   cfg.UserAgent,
	}
}

func (r *Retriever) Fetch(ctx context.Context, ref models.DocumentRef) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch ref.SourceKind {
	case models.SourceInline:
		if len(ref.Data) == 0 {
			return nil, fmt.Errorf("%w: inline document has no data", models.ErrSourceUnavailable)
		}
		data = ref.Data
	case models.SourceURL:
		data, err = r.fetchURL(ctx, ref.Locator)
	case models.SourceObjectStore:
		data, err = r.fetchObject(ctx, ref.Locator)
	case models.SourceLocal:
		data, err = r.fetchLocal(ref.Locator)
	default:
		return nil, fmt.Errorf("%w: unknown source kind %q", models.ErrSourceUnavailable, ref.SourceKind)
	}
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > r.max {
		return nil, fmt.Errorf("%w: document exceeds %d bytes", models.ErrSourceUnavailable, r.max)
	}
	r.logger.Debug("Fetched document",
		logger.String("kind", string(ref.SourceKind)),
		logger.String("locator", ref.Locator),
		logger.Int("bytes", len(data)),
	)
	return data, nil
}

func (r *Retriever) fetchURL(ctx context.Context, locator string) ([]byte, error) {
	if !strings.HasPrefix(locator, "http://") && !strings.HasPrefix(locator, "https://") {
		return nil, fmt.Errorf("%w: unsupported url %q", models.ErrSourceUnavailable, locator)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrSourceUnavailable, err)
	}
	req.Header.Set("User-Agent", r.agent)
	req.Header.Set("Accept", "application/pdf, */*")

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: download failed: %v", models.ErrSourceNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: download failed with status %d", models.ErrSourceNetwork, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: download failed with status %d", models.ErrSourceUnavailable, resp.StatusCode)
	}
	if resp.ContentLength > r.max {
		return nil, fmt.Errorf("%w: document exceeds %d bytes", models.ErrSourceUnavailable, r.max)
	}
	return r.readCapped(resp.Body, models.ErrSourceNetwork)
}

func (r *Retriever) fetchObject(ctx context.Context, key string) ([]byte, error) {
	if r.store == nil {
		return nil, fmt.Errorf("%w: object storage is not configured", models.ErrSourceUnavailable)
	}
	body, err := r.store.Get(ctx, objectKey(key))
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return r.readCapped(body, models.ErrSourceNetwork)
}

func (r *Retriever) fetchLocal(locator string) ([]byte, error) {
	if r.baseDir == "" {
		return nil, fmt.Errorf("%w: local files are disabled", models.ErrSourceUnavailable)
	}
	path, err := r.localPath(locator)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s not found", models.ErrSourceUnavailable, locator)
		}
		return nil, fmt.Errorf("%w: %v", models.ErrSourceUnavailable, err)
	}
	defer f.Close()
	return r.readCapped(f, models.ErrSourceUnavailable)
}

// localPath resolves locator under the base directory and refuses paths
// that escape it.
func (r *Retriever) localPath(locator string) (string, error) {
	rel := locator
	if filepath.IsAbs(locator) {
		var err error
		rel, err = filepath.Rel(r.baseDir, filepath.Clean(locator))
		if err != nil {
			return "", fmt.Errorf("%w: %s is outside the files directory", models.ErrSourceUnavailable, locator)
		}
	}
	path := filepath.Join(r.baseDir, rel)
	if path != r.baseDir && !strings.HasPrefix(path, r.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside the files directory", models.ErrSourceUnavailable, locator)
	}
	return path, nil
}

func (r *Retriever) readCapped(body io.Reader, readErr error) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, r.max+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read failed: %v", readErr, err)
	}
	if int64(len(data)) > r.max {
		return nil, fmt.Errorf("%w: document exceeds %d bytes", models.ErrSourceUnavailable, r.max)
	}
	return data, nil
}

// objectKey accepts bare keys as well as s3://bucket/key locators.
func objectKey(locator string) string {
	for _, scheme := range []string{"s3://", "minio://"} {
		if rest, ok := strings.CutPrefix(locator, scheme); ok {
			if i := strings.IndexByte(rest, '/'); i >= 0 {
				return rest[i+1:]
			}
			return rest
		}
	}
	return strings.TrimPrefix(locator, "/")
}
